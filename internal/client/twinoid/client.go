// Package twinoid はTwinoidのGraph APIを呼び出すクライアントを提供する。
package twinoid

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

// UserAgent はTwinoidへのリクエストに付与するUser-Agent。
const UserAgent = "EtwinTwinoidClient"

const (
	CodeUnexpectedResponse = "UnexpectedResponse"
	CodeUnexpectedAPIError = "UnexpectedApiError"
	CodeInvalidUser        = "InvalidUser"
)

// userFields はユーザー取得時に要求するフィールド。
const userFields = "id,name"

// Client はTwinoidクライアントのインターフェース。
type Client interface {
	// GetMe はアクセストークンの持ち主を返す。
	GetMe(ctx context.Context, token string) (*model.ShortTwinoidUser, error)
	// GetUser はIDでユーザーを取得する。存在しない場合は nil, nil を返す。
	GetUser(ctx context.Context, token string, id model.TwinoidUserID) (*model.ShortTwinoidUser, error)
}

// HTTPClient はTwinoidのGraph APIにHTTPでアクセスするクライアント。
type HTTPClient struct {
	doer *remote.Doer
	root *url.URL
}

var defaultRoot = &url.URL{Scheme: "https", Host: "twinoid.com", Path: "/"}

// NewHTTPClient はHTTPClientを生成する。
func NewHTTPClient(httpClient *http.Client, recorder remote.FetchRecorder, logger *slog.Logger) *HTTPClient {
	root := *defaultRoot
	return &HTTPClient{
		doer: &remote.Doer{
			Game:     "twinoid",
			Client:   httpClient,
			Recorder: recorder,
			Logger:   logger,
		},
		root: &root,
	}
}

// WithRoot はAPIのルートURLを差し替える。
func (c *HTTPClient) WithRoot(root *url.URL) *HTTPClient {
	r := *root
	c.root = &r
	return c
}

func (c *HTTPClient) graphURL(path string) string {
	u := c.root.JoinPath("graph", path)
	q := url.Values{}
	q.Set("fields", userFields)
	u.RawQuery = q.Encode()
	return u.String()
}

// GetMe は /graph/me を呼び出す。
func (c *HTTPClient) GetMe(ctx context.Context, token string) (_ *model.ShortTwinoidUser, err error) {
	defer c.doer.Observe("get_me", time.Now(), &err)
	user, err := c.getUser(ctx, token, c.graphURL("me"))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	return user, nil
}

// GetUser は /graph/user/<id> を呼び出す。
func (c *HTTPClient) GetUser(ctx context.Context, token string, id model.TwinoidUserID) (_ *model.ShortTwinoidUser, err error) {
	defer c.doer.Observe("get_user", time.Now(), &err)
	return c.getUser(ctx, token, c.graphURL("user/"+string(id)))
}

// apiUser はGraph APIのユーザー表現。エラー時は Error だけが埋まる。
type apiUser struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	Error string      `json:"error"`
}

func (c *HTTPClient) getUser(ctx context.Context, token, rawURL string) (*model.ShortTwinoidUser, error) {
	resp, err := c.doer.Get(ctx, rawURL, remote.BearerAuth{Token: token})
	if err != nil {
		return nil, err
	}
	body, err := remote.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	var res apiUser
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, remote.UnexpectedStatus(CodeUnexpectedResponse, resp.StatusCode)
		}
		return nil, remote.NewScraperError(CodeUnexpectedResponse, "failed to decode user: %v", err)
	}

	switch res.Error {
	case "":
	case "invalid_token":
		return nil, model.NewInvalidCredentialsError()
	case "not_found", "unknown_user":
		return nil, nil
	default:
		return nil, remote.NewScraperError(CodeUnexpectedAPIError, "%s", res.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remote.UnexpectedStatus(CodeUnexpectedResponse, resp.StatusCode)
	}
	return toShortUser(res)
}

func toShortUser(res apiUser) (*model.ShortTwinoidUser, error) {
	id, err := model.ParseTwinoidUserID(res.ID.String())
	if err != nil {
		return nil, remote.NewScraperError(CodeInvalidUser, "%v", err)
	}
	name, err := model.ParseTwinoidUserDisplayName(res.Name)
	if err != nil {
		return nil, remote.NewScraperError(CodeInvalidUser, "%v", err)
	}
	return &model.ShortTwinoidUser{ID: id, DisplayName: name}, nil
}

var _ Client = (*HTTPClient)(nil)
