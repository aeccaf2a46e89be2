// Package dinorpg はDinoRPGの公開プロフィールを取得するクライアントを提供する。
package dinorpg

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

// UserAgent はDinoRPGへのリクエストに付与するUser-Agent。
const UserAgent = "EtwinDinorpgScraper"

// Client はDinoRPGクライアントのインターフェース。
type Client interface {
	// GetProfile は公開プロフィールを取得する。存在しないユーザーの場合は nil, nil を返す。
	GetProfile(ctx context.Context, ref model.DinorpgUserIDRef) (*model.DinorpgProfileResponse, error)
}

// HTTPClient はDinoRPGのサーバーにHTTPでアクセスするクライアント。
type HTTPClient struct {
	doer  *remote.Doer
	roots map[model.DinorpgServer]*url.URL
}

// NewHTTPClient はHTTPClientを生成する。
func NewHTTPClient(httpClient *http.Client, recorder remote.FetchRecorder, logger *slog.Logger) *HTTPClient {
	roots := map[model.DinorpgServer]*url.URL{}
	for _, server := range []model.DinorpgServer{model.DinorpgServerFr, model.DinorpgServerEn, model.DinorpgServerEs} {
		roots[server] = &url.URL{Scheme: "http", Host: string(server), Path: "/"}
	}
	return &HTTPClient{
		doer: &remote.Doer{
			Game:     "dinorpg",
			Client:   httpClient,
			Recorder: recorder,
			Logger:   logger,
		},
		roots: roots,
	}
}

// WithRoot はサーバーのルートURLを差し替える。
func (c *HTTPClient) WithRoot(server model.DinorpgServer, root *url.URL) *HTTPClient {
	r := *root
	c.roots[server] = &r
	return c
}

// GetProfile は /user/<id> を取得して解析する。
func (c *HTTPClient) GetProfile(ctx context.Context, ref model.DinorpgUserIDRef) (_ *model.DinorpgProfileResponse, err error) {
	defer c.doer.Observe("get_profile", time.Now(), &err)
	root, ok := c.roots[ref.Server]
	if !ok {
		return nil, model.NewInvalidRequestError("unknown dinorpg server " + string(ref.Server))
	}

	resp, err := c.doer.Get(ctx, root.JoinPath("user", string(ref.ID)).String(), remote.GuestAuth{})
	if err != nil {
		return nil, err
	}
	body, err := remote.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, remote.UnexpectedStatus(CodeUnexpectedResponse, resp.StatusCode)
	}

	doc, err := remote.ParseHTMLBytes(body)
	if err != nil {
		return nil, err
	}
	profile, err := ScrapeProfile(doc, ref)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}
	return &model.DinorpgProfileResponse{Profile: *profile}, nil
}

var _ Client = (*HTTPClient)(nil)
