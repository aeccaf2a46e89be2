// Package popotamo はPopotamoのメンバーページを取得するクライアントを提供する。
package popotamo

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

// UserAgent はPopotamoへのリクエストに付与するUser-Agent。
const UserAgent = "EtwinPopotamoScraper"

// Client はPopotamoクライアントのインターフェース。
type Client interface {
	// GetProfile はメンバーページを取得する。存在しないユーザーの場合は nil, nil を返す。
	GetProfile(ctx context.Context, ref model.PopotamoUserIDRef) (*model.PopotamoProfileResponse, error)
}

// HTTPClient はPopotamoのサーバーにHTTPでアクセスするクライアント。
type HTTPClient struct {
	doer *remote.Doer
	root *url.URL
}

// NewHTTPClient はHTTPClientを生成する。
func NewHTTPClient(httpClient *http.Client, recorder remote.FetchRecorder, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		doer: &remote.Doer{
			Game:     "popotamo",
			Client:   httpClient,
			Recorder: recorder,
			Logger:   logger,
		},
		root: &url.URL{Scheme: "http", Host: "www.popotamo.com", Path: "/"},
	}
}

// WithRoot はルートURLを差し替える。
func (c *HTTPClient) WithRoot(root *url.URL) *HTTPClient {
	r := *root
	c.root = &r
	return c
}

// GetProfile は /member/<id> を取得して解析する。
// 存在しないメンバーはトップページへ転送される。
func (c *HTTPClient) GetProfile(ctx context.Context, ref model.PopotamoUserIDRef) (_ *model.PopotamoProfileResponse, err error) {
	defer c.doer.Observe("get_profile", time.Now(), &err)
	if ref.Server != model.PopotamoServerFr {
		return nil, model.NewInvalidRequestError("unknown popotamo server " + string(ref.Server))
	}

	page := c.root.JoinPath("member", string(ref.ID))
	resp, err := c.doer.Get(ctx, page.String(), remote.GuestAuth{})
	if err != nil {
		return nil, err
	}
	body, err := remote.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusFound, http.StatusNotFound:
		return nil, nil
	default:
		return nil, remote.UnexpectedStatus(CodeUnexpectedResponse, resp.StatusCode)
	}

	doc, err := remote.ParseHTMLBytes(body)
	if err != nil {
		return nil, err
	}
	return ScrapeProfile(doc, page)
}

var _ Client = (*HTTPClient)(nil)
