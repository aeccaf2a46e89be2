// Package remote はリモートゲームのクライアントが共有するHTTP基盤を提供する。
// リダイレクトを追わないHTTPクライアント、認証情報の付与、HTMLの解析補助、
// 通信エラーの分類を含む。
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout はリモートへの1リクエストあたりのタイムアウト。
	DefaultTimeout = 5 * time.Second
	// maxBodySize はレスポンスボディの読み取り上限。
	maxBodySize = 4 << 20
)

// Options はHTTPクライアントの生成オプション。
type Options struct {
	// Timeout が0の場合は DefaultTimeout を使う。
	Timeout time.Duration
	// Transport がnilの場合は http.DefaultTransport を使う。
	// 本番では security.RemoteGuard の安全なTransportを渡す。
	Transport http.RoundTripper
	// Limiter はリクエストの間隔を制御する。nilなら制限しない。
	Limiter *rate.Limiter
}

// NewHTTPClient はリモートゲーム用のHTTPクライアントを生成する。
// ログインの応答を観測するため、リダイレクトは追わない。
func NewHTTPClient(userAgent string, opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if opts.Limiter != nil {
		base = &limitedTransport{base: base, limiter: opts.Limiter}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: base, userAgent: userAgent},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewCookieJar はセッション単位のクッキージャーを生成する。
// ジャーはセッション間で共有しない。
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// WithJar はクライアントの設定を引き継ぎ、指定したジャーを使うクライアントを返す。
func WithJar(client *http.Client, jar http.CookieJar) *http.Client {
	c := *client
	c.Jar = jar
	return &c
}

// userAgentTransport は全リクエストに固定のUser-Agentを設定する。
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTripperは元のリクエストを変更してはならない
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// limitedTransport はレートリミッターのトークンを待ってから送信する。
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// FetchRecorder はリモートへのリクエスト結果を記録する。
// metrics.MetricsCollector が実装する。
type FetchRecorder interface {
	RecordRemoteFetch(game, operation string, err error, duration time.Duration)
	RecordScraperFailure(game, code string)
}

// Doer はゲームごとのリクエスト送信を担う。
// 通信エラーの分類とメトリクスの記録を共通化する。
type Doer struct {
	Game     string
	Client   *http.Client
	Recorder FetchRecorder // nil可
	Logger   *slog.Logger  // nil可
}

// Do はリクエストを送信する。通信エラーと5xxは TransportError に変換される。
// 5xxの場合はボディを閉じてから返す。
func (d *Doer) Do(req *http.Request, auth Auth) (*http.Response, error) {
	if auth != nil {
		auth.Apply(req)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, MapTransportError(err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Get はGETリクエストを送信する。
func (d *Doer) Get(ctx context.Context, rawURL string, auth Auth) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return d.Do(req, auth)
}

// ReadBody はボディを読み取り、閉じる。上限を超えるボディは途中までで解析せずエラーにする。
func ReadBody(resp *http.Response) ([]byte, error) {
	return readBody(resp, maxBodySize)
}

func readBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, MapTransportError(err)
	}
	if int64(len(body)) > limit {
		return nil, NewScraperError(CodeResponseTooLarge, "body exceeds %d bytes", limit)
	}
	return body, nil
}

// Observe は操作の結果を記録する。クライアントの各操作で defer して使う。
//
//	defer c.doer.Observe("get_inventory", time.Now(), &err)
func (d *Doer) Observe(operation string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	if d.Recorder != nil {
		d.Recorder.RecordRemoteFetch(d.Game, operation, err, time.Since(start))
		if se, ok := AsScraperError(err); ok {
			d.Recorder.RecordScraperFailure(d.Game, se.Code)
		}
	}
	if err != nil && d.Logger != nil {
		d.Logger.Warn("リモートへのリクエストに失敗しました",
			slog.String("game", d.Game),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
}
