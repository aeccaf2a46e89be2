// Package dinoparc はDinoparcのページを取得して解析するクライアントを提供する。
package dinoparc

import (
	"context"
	"crypto/md5"
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
)

// UserAgent はDinoparcへのリクエストに付与するUser-Agent。
const UserAgent = "EtwinDinoparcScraper"

// sessionCookieName はDinoparcのセッションクッキー名。
const sessionCookieName = "sid"

// Client はDinoparcクライアントのインターフェース。
type Client interface {
	// CreateSession はログインして新しいセッションを作成する。
	CreateSession(ctx context.Context, creds model.DinoparcCredentials) (*model.DinoparcSession, error)
	// TestSession はセッションキーがまだ有効か確認する。無効な場合は nil, nil を返す。
	TestSession(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) (*model.DinoparcSession, error)
	// GetProfileByID は公開プロフィールを取得する。存在しないユーザーの場合は nil, nil を返す。
	GetProfileByID(ctx context.Context, session *model.DinoparcSession, ref model.DinoparcUserIDRef) (*model.DinoparcProfileResponse, error)
	GetInventory(ctx context.Context, session *model.DinoparcSession) (*model.DinoparcInventoryResponse, error)
	GetCollection(ctx context.Context, session *model.DinoparcSession) (*model.DinoparcCollectionResponse, error)
	GetDinoz(ctx context.Context, session *model.DinoparcSession, id model.DinoparcDinozID) (*model.DinoparcDinozResponse, error)
	GetExchangeWith(ctx context.Context, session *model.DinoparcSession, other model.DinoparcUserID) (*model.DinoparcExchangeWithResponse, error)
}

// errSessionExpired は認証が必要なページでログイン画面へ転送されたことを表す。
var errSessionExpired = model.NewKindError(model.KindInvalidCredentials, "SessionExpired", nil)

// HTTPClient はDinoparcのサーバーにHTTPでアクセスするクライアント。
type HTTPClient struct {
	doer  *remote.Doer
	clock clock.Clock
	roots map[model.DinoparcServer]URLs
}

// NewHTTPClient はHTTPClientを生成する。
// httpClient は remote.NewHTTPClient で生成したリダイレクトを追わないクライアントを渡す。
func NewHTTPClient(httpClient *http.Client, clk clock.Clock, recorder remote.FetchRecorder, logger *slog.Logger) *HTTPClient {
	roots := make(map[model.DinoparcServer]URLs, len(defaultRoots))
	for _, server := range model.DinoparcServers() {
		roots[server] = NewURLs(server)
	}
	return &HTTPClient{
		doer: &remote.Doer{
			Game:     "dinoparc",
			Client:   httpClient,
			Recorder: recorder,
			Logger:   logger,
		},
		clock: clk,
		roots: roots,
	}
}

// WithRoot はサーバーのルートURLを差し替える。テストでhttptestのサーバーを指すのに使う。
func (c *HTTPClient) WithRoot(server model.DinoparcServer, root *url.URL) *HTTPClient {
	c.roots[server] = NewURLsWithRoot(root)
	return c
}

func (c *HTTPClient) urls(server model.DinoparcServer) URLs {
	return c.roots[server]
}

// CreateSession はログインの手順を順に実行する。
// ログイン、広告トラッキングの通知、ログインの確認を行った後、銀行ページからユーザーIDを取得する。
func (c *HTTPClient) CreateSession(ctx context.Context, creds model.DinoparcCredentials) (_ *model.DinoparcSession, err error) {
	defer c.doer.Observe("create_session", time.Now(), &err)
	urls := c.urls(creds.Server)

	jar, err := remote.NewCookieJar()
	if err != nil {
		return nil, err
	}
	// セッションごとのジャーを使い、以降のリクエストにはジャーがクッキーを付ける
	doer := *c.doer
	doer.Client = remote.WithJar(c.doer.Client, jar)

	form := url.Values{}
	form.Set("login", string(creds.Username))
	form.Set("pass", string(creds.Password))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urls.Login(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := doer.Do(req, remote.GuestAuth{})
	if err != nil {
		return nil, err
	}
	if _, err := remote.ReadBody(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return nil, remote.UnexpectedStatus(CodeUnexpectedLoginResponse, resp.StatusCode)
	}
	key, err := sessionKeyFromResponse(resp)
	if err != nil {
		return nil, err
	}

	if err := touchAdTracking(ctx, &doer, urls, DeriveMachineID(creds.Username)); err != nil {
		return nil, err
	}
	if err := confirmLogin(ctx, &doer, urls); err != nil {
		return nil, err
	}

	resp, err = doer.Get(ctx, urls.Bank(), remote.GuestAuth{})
	if err != nil {
		return nil, err
	}
	body, err := remote.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusFound {
		return nil, model.NewInvalidCredentialsError()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remote.UnexpectedStatus(CodeUnexpectedPageResponse, resp.StatusCode)
	}
	doc, err := remote.ParseHTMLBytes(body)
	if err != nil {
		return nil, err
	}
	bank, err := ScrapeBank(doc)
	if err != nil {
		return nil, err
	}
	if bank.Context.Server != creds.Server {
		return nil, scrapeErr(CodeServerMismatch, "expected %s, got %s", creds.Server, bank.Context.Server)
	}

	now := c.clock.Now()
	return &model.DinoparcSession{
		CreatedAt:  now,
		AccessedAt: now,
		Key:        key,
		User: model.ShortDinoparcUser{
			Server:   creds.Server,
			ID:       bank.UserID,
			Username: bank.Context.User.Username,
		},
	}, nil
}

func sessionKeyFromResponse(resp *http.Response) (model.DinoparcSessionKey, error) {
	for _, cookie := range resp.Cookies() {
		if cookie.Name != sessionCookieName {
			continue
		}
		key, err := model.ParseDinoparcSessionKey(cookie.Value)
		if err != nil {
			return "", scrapeErr(CodeInvalidSessionCookie, "malformed %s cookie (%d bytes)", cookie.Name, len(cookie.Value))
		}
		return key, nil
	}
	return "", scrapeErr(CodeMissingSessionCookie, "")
}

func touchAdTracking(ctx context.Context, doer *remote.Doer, urls URLs, mid model.DinoparcMachineID) error {
	resp, err := doer.Get(ctx, urls.AdTracking(mid), remote.GuestAuth{})
	if err != nil {
		return err
	}
	body, err := remote.ReadBody(resp)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusOK && string(body) == "OK":
		return nil
	case resp.StatusCode == http.StatusFound:
		return nil
	default:
		return remote.UnexpectedStatus(CodeUnexpectedAdTrackingResponse, resp.StatusCode)
	}
}

func confirmLogin(ctx context.Context, doer *remote.Doer, urls URLs) error {
	resp, err := doer.Get(ctx, urls.Login(), remote.GuestAuth{})
	if err != nil {
		return err
	}
	if _, err := remote.ReadBody(resp); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return remote.UnexpectedStatus(CodeUnexpectedLoginConfirmationResponse, resp.StatusCode)
	}
	return nil
}

// TestSession は銀行ページを開き、セッションキーに紐づくユーザーを確認する。
func (c *HTTPClient) TestSession(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) (_ *model.DinoparcSession, err error) {
	defer c.doer.Observe("test_session", time.Now(), &err)

	doc, err := c.getPage(ctx, c.urls(server).Bank(), &key)
	if err != nil {
		if model.KindOf(err) == model.KindInvalidCredentials {
			return nil, nil
		}
		return nil, err
	}
	bank, err := ScrapeBank(doc)
	if err != nil {
		return nil, err
	}
	if bank.Context.Server != server {
		return nil, scrapeErr(CodeServerMismatch, "expected %s, got %s", server, bank.Context.Server)
	}

	now := c.clock.Now()
	return &model.DinoparcSession{
		CreatedAt:  now,
		AccessedAt: now,
		Key:        key,
		User: model.ShortDinoparcUser{
			Server:   server,
			ID:       bank.UserID,
			Username: bank.Context.User.Username,
		},
	}, nil
}

// GetProfileByID は公開プロフィールページを取得する。session がnilの場合はゲストとして取得する。
func (c *HTTPClient) GetProfileByID(ctx context.Context, session *model.DinoparcSession, ref model.DinoparcUserIDRef) (_ *model.DinoparcProfileResponse, err error) {
	defer c.doer.Observe("get_profile", time.Now(), &err)

	var key *model.DinoparcSessionKey
	if session != nil {
		if session.User.Server != ref.Server {
			return nil, model.NewInvalidRequestError("session server mismatch")
		}
		key = &session.Key
	}
	doc, err := c.getPage(ctx, c.urls(ref.Server).User(ref.ID), key)
	if err != nil {
		return nil, err
	}
	page, err := ScrapeProfile(doc, ref.ID)
	if err != nil {
		return nil, err
	}
	if page.Context.Server != ref.Server {
		return nil, scrapeErr(CodeServerMismatch, "expected %s, got %s", ref.Server, page.Context.Server)
	}
	if page.Profile == nil {
		return nil, nil
	}

	var sessionUser *model.DinoparcSessionUser
	if session != nil && page.Context.User != nil {
		su := toSessionUser(session, page.Context.User)
		sessionUser = &su
	}
	return &model.DinoparcProfileResponse{SessionUser: sessionUser, Profile: *page.Profile}, nil
}

// GetInventory は所持品ページを取得する。
func (c *HTTPClient) GetInventory(ctx context.Context, session *model.DinoparcSession) (_ *model.DinoparcInventoryResponse, err error) {
	defer c.doer.Observe("get_inventory", time.Now(), &err)

	doc, err := c.getSessionPage(ctx, session, c.urls(session.User.Server).Inventory())
	if err != nil {
		return nil, err
	}
	page, err := ScrapeInventory(doc)
	if err != nil {
		return nil, err
	}
	if err := checkServer(session, page.Context); err != nil {
		return nil, err
	}
	return &model.DinoparcInventoryResponse{
		SessionUser: toSessionUser(session, page.Context.User),
		Inventory:   page.Inventory,
	}, nil
}

// GetCollection はコレクションページを取得する。
func (c *HTTPClient) GetCollection(ctx context.Context, session *model.DinoparcSession) (_ *model.DinoparcCollectionResponse, err error) {
	defer c.doer.Observe("get_collection", time.Now(), &err)

	doc, err := c.getSessionPage(ctx, session, c.urls(session.User.Server).Collection())
	if err != nil {
		return nil, err
	}
	page, err := ScrapeCollection(doc)
	if err != nil {
		return nil, err
	}
	if err := checkServer(session, page.Context); err != nil {
		return nil, err
	}
	return &model.DinoparcCollectionResponse{
		SessionUser: toSessionUser(session, page.Context.User),
		Collection:  page.Collection,
	}, nil
}

// GetDinoz はディノズページを取得する。
func (c *HTTPClient) GetDinoz(ctx context.Context, session *model.DinoparcSession, id model.DinoparcDinozID) (_ *model.DinoparcDinozResponse, err error) {
	defer c.doer.Observe("get_dinoz", time.Now(), &err)

	doc, err := c.getSessionPage(ctx, session, c.urls(session.User.Server).Dinoz(id))
	if err != nil {
		return nil, err
	}
	page, err := ScrapeDinoz(doc)
	if err != nil {
		return nil, err
	}
	if err := checkServer(session, page.Context); err != nil {
		return nil, err
	}
	return &model.DinoparcDinozResponse{
		SessionUser: toSessionUser(session, page.Context.User),
		Dinoz:       page.Dinoz,
	}, nil
}

// GetExchangeWith は交換ページを取得する。自分自身を指定することはできない。
func (c *HTTPClient) GetExchangeWith(ctx context.Context, session *model.DinoparcSession, other model.DinoparcUserID) (_ *model.DinoparcExchangeWithResponse, err error) {
	defer c.doer.Observe("get_exchange_with", time.Now(), &err)

	if other == session.User.ID {
		return nil, errSelfExchange
	}
	doc, err := c.getSessionPage(ctx, session, c.urls(session.User.Server).ExchangeWith(other))
	if err != nil {
		return nil, err
	}
	page, err := ScrapeExchangeWith(doc)
	if err != nil {
		return nil, err
	}
	if err := checkServer(session, page.Context); err != nil {
		return nil, err
	}
	return &model.DinoparcExchangeWithResponse{
		SessionUser: toSessionUser(session, page.Context.User),
		OwnBills:    page.OwnBills,
		OwnDinoz:    page.OwnDinoz,
		OtherUser:   page.OtherUser,
		OtherDinoz:  page.OtherDinoz,
	}, nil
}

func (c *HTTPClient) getSessionPage(ctx context.Context, session *model.DinoparcSession, rawURL string) (*goquery.Document, error) {
	if session == nil {
		return nil, model.NewInvalidRequestError("missing dinoparc session")
	}
	return c.getPage(ctx, rawURL, &session.Key)
}

// getPage はページを取得して解析する。認証付きのページで302が返った場合は
// セッションが失効したものとして扱う。
func (c *HTTPClient) getPage(ctx context.Context, rawURL string, key *model.DinoparcSessionKey) (*goquery.Document, error) {
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
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusFound && key != nil:
		return nil, errSessionExpired
	default:
		return nil, remote.UnexpectedStatus(CodeUnexpectedPageResponse, resp.StatusCode)
	}
	return remote.ParseHTMLBytes(body)
}

func checkServer(session *model.DinoparcSession, ctx PageContext) error {
	if ctx.Server != session.User.Server {
		return scrapeErr(CodeServerMismatch, "expected %s, got %s", session.User.Server, ctx.Server)
	}
	return nil
}

// toSessionUser はセッションのユーザーIDとサイドバーの情報を合わせる。
func toSessionUser(session *model.DinoparcSession, user *SidebarUser) model.DinoparcSessionUser {
	return model.DinoparcSessionUser{
		User: model.ShortDinoparcUser{
			Server:   session.User.Server,
			ID:       session.User.ID,
			Username: user.Username,
		},
		Coins: user.Coins,
		Dinoz: user.Dinoz,
	}
}

// GetPreferredExchangeWith は交換ページの取得に使う既定の相手ユーザーを返す。
// 自分自身が1人目の場合に備えて2人を返す。
func GetPreferredExchangeWith(server model.DinoparcServer) [2]model.DinoparcUserID {
	switch server {
	case model.DinoparcServerEn:
		return [2]model.DinoparcUserID{"1", "2"}
	case model.DinoparcServerSp:
		return [2]model.DinoparcUserID{"2", "1"}
	default:
		return [2]model.DinoparcUserID{"71", "72"}
	}
}

const machineIDCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DeriveMachineID はユーザー名から広告トラッキング用の32文字のマシンIDを導出する。
func DeriveMachineID(username model.DinoparcUsername) model.DinoparcMachineID {
	h := md5.Sum([]byte(username))
	var b [32]byte
	for i := range b {
		b[i] = machineIDCharset[int(h[i%len(h)])%len(machineIDCharset)]
	}
	return model.DinoparcMachineID(b[:])
}

var _ Client = (*HTTPClient)(nil)
