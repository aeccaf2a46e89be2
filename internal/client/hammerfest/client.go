// Package hammerfest はHammerfestのページを取得して解析するクライアントを提供する。
package hammerfest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
	"github.com/eternaltwin/etwin/internal/security"
)

// UserAgent はHammerfestへのリクエストに付与するUser-Agent。
const UserAgent = "EtwinHammerfestScraper"

// sessionCookieName はHammerfestのセッションクッキー名。
const sessionCookieName = "SID"

// Client はHammerfestクライアントのインターフェース。
// session を受け取るメソッドで session がnilの場合はゲストとしてページを取得する。
type Client interface {
	CreateSession(ctx context.Context, creds model.HammerfestCredentials) (*model.HammerfestSession, error)
	// TestSession はセッションキーがまだ有効か確認する。無効な場合は nil, nil を返す。
	TestSession(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) (*model.HammerfestSession, error)
	// GetProfileByID は公開プロフィールを取得する。存在しないユーザーの場合は Profile が nil になる。
	GetProfileByID(ctx context.Context, session *model.HammerfestSession, ref model.HammerfestUserIDRef) (*model.HammerfestProfileResponse, error)
	GetOwnItems(ctx context.Context, session *model.HammerfestSession) (*model.HammerfestInventoryResponse, error)
	GetOwnGodchildren(ctx context.Context, session *model.HammerfestSession) (*model.HammerfestGodchildrenResponse, error)
	GetOwnShop(ctx context.Context, session *model.HammerfestSession) (*model.HammerfestShopResponse, error)
	GetForumThemes(ctx context.Context, session *model.HammerfestSession, server model.HammerfestServer) (*model.HammerfestForumHome, error)
	GetForumThemePage(ctx context.Context, session *model.HammerfestSession, server model.HammerfestServer, theme model.HammerfestForumThemeID, page uint16) (*model.HammerfestForumThemePage, error)
	GetForumThreadPage(ctx context.Context, session *model.HammerfestSession, server model.HammerfestServer, thread model.HammerfestForumThreadID, page uint16) (*model.HammerfestForumThreadPage, error)
}

// HTTPClient はHammerfestのサーバーにHTTPでアクセスするクライアント。
type HTTPClient struct {
	doer      *remote.Doer
	clock     clock.Clock
	sanitizer security.ContentSanitizer
	roots     map[model.HammerfestServer]URLs
}

// NewHTTPClient はHTTPClientを生成する。
// httpClient は remote.NewHTTPClient で生成したリダイレクトを追わないクライアントを渡す。
func NewHTTPClient(httpClient *http.Client, clk clock.Clock, sanitizer security.ContentSanitizer, recorder remote.FetchRecorder, logger *slog.Logger) *HTTPClient {
	roots := make(map[model.HammerfestServer]URLs, len(defaultRoots))
	for _, server := range model.HammerfestServers() {
		roots[server] = NewURLs(server)
	}
	return &HTTPClient{
		doer: &remote.Doer{
			Game:     "hammerfest",
			Client:   httpClient,
			Recorder: recorder,
			Logger:   logger,
		},
		clock:     clk,
		sanitizer: sanitizer,
		roots:     roots,
	}
}

// WithRoot はサーバーのルートURLを差し替える。
func (c *HTTPClient) WithRoot(server model.HammerfestServer, root *url.URL) *HTTPClient {
	c.roots[server] = NewURLsWithRoot(root)
	return c
}

func (c *HTTPClient) urls(server model.HammerfestServer) URLs {
	return c.roots[server]
}

// CreateSession はログインフォームを送信し、返されたSIDクッキーでトップページを開いてユーザーを確認する。
func (c *HTTPClient) CreateSession(ctx context.Context, creds model.HammerfestCredentials) (_ *model.HammerfestSession, err error) {
	defer c.doer.Observe("create_session", time.Now(), &err)
	urls := c.urls(creds.Server)

	form := url.Values{}
	form.Set("login", string(creds.Username))
	form.Set("pass", string(creds.Password))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urls.Login(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.doer.Do(req, remote.GuestAuth{})
	if err != nil {
		return nil, err
	}
	body, err := remote.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusFound {
		if doc, perr := remote.ParseHTMLBytes(body); perr == nil && findDoc(doc, "div.errorId").Length() > 0 {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, remote.UnexpectedStatus(CodeUnexpectedResponse, resp.StatusCode)
	}
	key, err := sessionKeyFromResponse(resp)
	if err != nil {
		return nil, err
	}

	doc, err := c.getPage(ctx, urls.Root().String(), &key)
	if err != nil {
		return nil, err
	}
	pageCtx, err := scrapeExpectedContext(doc, creds.Server)
	if err != nil {
		return nil, err
	}
	if pageCtx.User == nil {
		return nil, errLoginSessionRevoked
	}

	now := c.clock.Now()
	return &model.HammerfestSession{
		CreatedAt:  now,
		AccessedAt: now,
		Key:        key,
		User:       pageCtx.User.User,
	}, nil
}

func sessionKeyFromResponse(resp *http.Response) (model.HammerfestSessionKey, error) {
	for _, cookie := range resp.Cookies() {
		if cookie.Name != sessionCookieName {
			continue
		}
		key, err := model.ParseHammerfestSessionKey(cookie.Value)
		if err != nil {
			return "", scrapeErr(CodeInvalidSessionCookie, "malformed %s cookie (%d bytes)", cookie.Name, len(cookie.Value))
		}
		return key, nil
	}
	return "", scrapeErr(CodeMissingSessionCookie, "")
}

// TestSession はトップページを開き、セッションキーに紐づくユーザーを確認する。
func (c *HTTPClient) TestSession(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) (_ *model.HammerfestSession, err error) {
	defer c.doer.Observe("test_session", time.Now(), &err)

	doc, err := c.getPage(ctx, c.urls(server).Root().String(), &key)
	if err != nil {
		return nil, err
	}
	pageCtx, err := scrapeExpectedContext(doc, server)
	if err != nil {
		return nil, err
	}
	if pageCtx.User == nil {
		return nil, nil
	}
	now := c.clock.Now()
	return &model.HammerfestSession{
		CreatedAt:  now,
		AccessedAt: now,
		Key:        key,
		User:       pageCtx.User.User,
	}, nil
}

func (c *HTTPClient) GetProfileByID(ctx context.Context, session *model.HammerfestSession, ref model.HammerfestUserIDRef) (_ *model.HammerfestProfileResponse, err error) {
	defer c.doer.Observe("get_profile", time.Now(), &err)

	key, err := sessionKeyFor(session, ref.Server)
	if err != nil {
		return nil, err
	}
	doc, err := c.getPage(ctx, c.urls(ref.Server).User(ref.ID), key)
	if err != nil {
		return nil, err
	}
	return ScrapeProfile(doc, ref)
}

func (c *HTTPClient) GetOwnItems(ctx context.Context, session *model.HammerfestSession) (_ *model.HammerfestInventoryResponse, err error) {
	defer c.doer.Observe("get_inventory", time.Now(), &err)

	doc, err := c.getSessionPage(ctx, session, func(u URLs) string { return u.Inventory() })
	if err != nil {
		return nil, err
	}
	return ScrapeInventory(doc, session.User.Server)
}

func (c *HTTPClient) GetOwnGodchildren(ctx context.Context, session *model.HammerfestSession) (_ *model.HammerfestGodchildrenResponse, err error) {
	defer c.doer.Observe("get_godchildren", time.Now(), &err)

	doc, err := c.getSessionPage(ctx, session, func(u URLs) string { return u.Godchildren() })
	if err != nil {
		return nil, err
	}
	return ScrapeGodchildren(doc, session.User.Server)
}

func (c *HTTPClient) GetOwnShop(ctx context.Context, session *model.HammerfestSession) (_ *model.HammerfestShopResponse, err error) {
	defer c.doer.Observe("get_shop", time.Now(), &err)

	doc, err := c.getSessionPage(ctx, session, func(u URLs) string { return u.Shop() })
	if err != nil {
		return nil, err
	}
	return ScrapeShop(doc, session.User.Server)
}

func (c *HTTPClient) GetForumThemes(ctx context.Context, session *model.HammerfestSession, server model.HammerfestServer) (_ *model.HammerfestForumHome, err error) {
	defer c.doer.Observe("get_forum_themes", time.Now(), &err)

	key, err := sessionKeyFor(session, server)
	if err != nil {
		return nil, err
	}
	doc, err := c.getPage(ctx, c.urls(server).ForumHome(), key)
	if err != nil {
		return nil, err
	}
	return ScrapeForumHome(doc, server)
}

func (c *HTTPClient) GetForumThemePage(ctx context.Context, session *model.HammerfestSession, server model.HammerfestServer, theme model.HammerfestForumThemeID, page uint16) (_ *model.HammerfestForumThemePage, err error) {
	defer c.doer.Observe("get_forum_theme_page", time.Now(), &err)

	key, err := sessionKeyFor(session, server)
	if err != nil {
		return nil, err
	}
	if page == 0 {
		return nil, model.NewInvalidRequestError("forum pages start at 1")
	}
	doc, err := c.getPage(ctx, c.urls(server).ForumTheme(theme, page), key)
	if err != nil {
		return nil, err
	}
	return ScrapeForumThemePage(doc, server)
}

func (c *HTTPClient) GetForumThreadPage(ctx context.Context, session *model.HammerfestSession, server model.HammerfestServer, thread model.HammerfestForumThreadID, page uint16) (_ *model.HammerfestForumThreadPage, err error) {
	defer c.doer.Observe("get_forum_thread_page", time.Now(), &err)

	key, err := sessionKeyFor(session, server)
	if err != nil {
		return nil, err
	}
	if page == 0 {
		return nil, model.NewInvalidRequestError("forum pages start at 1")
	}
	doc, err := c.getPage(ctx, c.urls(server).ForumThread(thread, page), key)
	if err != nil {
		return nil, err
	}
	return ScrapeForumThreadPage(doc, server, c.sanitizer)
}

func sessionKeyFor(session *model.HammerfestSession, server model.HammerfestServer) (*model.HammerfestSessionKey, error) {
	if session == nil {
		return nil, nil
	}
	if session.User.Server != server {
		return nil, model.NewInvalidRequestError("session server mismatch")
	}
	return &session.Key, nil
}

func (c *HTTPClient) getSessionPage(ctx context.Context, session *model.HammerfestSession, page func(URLs) string) (*goquery.Document, error) {
	if session == nil {
		return nil, model.NewInvalidRequestError("missing hammerfest session")
	}
	return c.getPage(ctx, page(c.urls(session.User.Server)), &session.Key)
}

// getPage はページを取得して解析する。Hammerfestは未ログインでもページを表示するため、
// セッションの有効性は上部バーで判定する。
func (c *HTTPClient) getPage(ctx context.Context, rawURL string, key *model.HammerfestSessionKey) (*goquery.Document, error) {
	var auth remote.Auth = remote.GuestAuth{}
	if key != nil {
		auth = remote.CookieAuth{Name: sessionCookieName, Value: string(*key)}
	}
	resp, err := c.doer.Get(ctx, rawURL, auth)
	if err != nil {
		return nil, err
	}
	body, err := remote.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remote.UnexpectedStatus(CodeUnexpectedResponse, resp.StatusCode)
	}
	return remote.ParseHTMLBytes(body)
}

var _ Client = (*HTTPClient)(nil)
