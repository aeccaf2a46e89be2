package hammerfest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
	"github.com/eternaltwin/etwin/internal/security"
)

const testSessionKey = "abcdefghijklmnopqrstuvwxyz"

// fakeServer はHammerfestのログインと上部バーの表示を模倣するテスト用サーバー。
type fakeServer struct {
	mu       sync.Mutex
	password string
	loggedIn map[string]bool
	// noCookie はログイン成功時にSIDクッキーを返さない
	noCookie bool
	status   int
}

func newFakeServer(password string) *fakeServer {
	return &fakeServer{password: password, loggedIn: map[string]bool{}}
}

func (s *fakeServer) sessionValid(r *http.Request) bool {
	cookie, err := r.Cookie("SID")
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn[cookie.Value]
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	bar := guestBar("Entrer")
	if s.sessionValid(r) {
		bar = loggedInBar
	}
	switch {
	case r.URL.Path == "/login.html" && r.Method == http.MethodPost:
		if r.FormValue("login") != "alice" || r.FormValue("pass") != s.password {
			_, _ = w.Write([]byte(testPage(guestBar("Entrer"), `<div class="errorId">Mot de passe incorrect</div>`)))
			return
		}
		s.mu.Lock()
		s.loggedIn[testSessionKey] = true
		s.mu.Unlock()
		if !s.noCookie {
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: testSessionKey, Path: "/"})
		}
		http.Redirect(w, r, "/", http.StatusFound)
	case r.URL.Path == "/":
		_, _ = w.Write([]byte(testPage(bar, "")))
	case r.URL.Path == "/user.html/42":
		content := profileContent
		if !s.sessionValid(r) {
			content = strings.Replace(profileContent, profileEmailRow, "", 1)
		}
		_, _ = w.Write([]byte(testPage(bar, content)))
	case r.URL.Path == "/user.html/404":
		_, _ = w.Write([]byte(testPage(bar, "<p>Utilisateur inconnu</p>")))
	case r.URL.Path == "/user.html/inventory":
		_, _ = w.Write([]byte(testPage(bar, `<table class="inventory"><tr><td><img src="/img/items/small/3.gif"/></td><td class="quantity">2</td></tr></table>`)))
	case r.URL.Path == "/forum.html/thread/11/" && r.URL.Query().Get("page") == "2":
		_, _ = w.Write([]byte(testPage(bar, `<div class="forumNav"><a class="theme" href="/forum.html/theme/2/">Général</a>`+
			`<a class="thread" href="/forum.html/thread/11/">Bonjour</a></div>`+
			`<div class="pagination"><span class="current">2</span>/<span class="total">2</span></div>`)))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *clock.VirtualClock) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	root, err := url.Parse(ts.URL + "/")
	require.NoError(t, err)
	clk := clock.NewVirtualClock(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewHTTPClient(remote.NewHTTPClient(UserAgent, remote.Options{}), clk, security.NewContentSanitizer(), nil, nil).
		WithRoot(model.HammerfestServerFr, root)
	return c, clk
}

func testSession() *model.HammerfestSession {
	return &model.HammerfestSession{
		Key:  testSessionKey,
		User: model.ShortHammerfestUser{Server: model.HammerfestServerFr, ID: "42", Username: "alice"},
	}
}

func aliceCredentials(password string) model.HammerfestCredentials {
	return model.HammerfestCredentials{Server: model.HammerfestServerFr, Username: "alice", Password: model.HammerfestPassword(password)}
}

// TestHTTPClient_CreateSession はログイン後のトップページからユーザーを読み取ることを検証する。
func TestHTTPClient_CreateSession(t *testing.T) {
	c, clk := newTestClient(t, newFakeServer("secret"))

	session, err := c.CreateSession(context.Background(), aliceCredentials("secret"))
	require.NoError(t, err)
	assert.Equal(t, model.HammerfestSessionKey(testSessionKey), session.Key)
	assert.Equal(t, model.ShortHammerfestUser{Server: model.HammerfestServerFr, ID: "42", Username: "alice"}, session.User)
	assert.Equal(t, clk.Now(), session.CreatedAt)
	assert.Equal(t, session.CreatedAt, session.AccessedAt)
}

// TestHTTPClient_CreateSession_Errors はログインの失敗を種類ごとに検証する。
func TestHTTPClient_CreateSession_Errors(t *testing.T) {
	t.Run("パスワードの誤り", func(t *testing.T) {
		c, _ := newTestClient(t, newFakeServer("secret"))
		_, err := c.CreateSession(context.Background(), aliceCredentials("wrong"))
		require.Error(t, err)
		assert.Equal(t, model.KindInvalidCredentials, model.KindOf(err))
	})
	t.Run("クッキーがない", func(t *testing.T) {
		srv := newFakeServer("secret")
		srv.noCookie = true
		c, _ := newTestClient(t, srv)
		_, err := c.CreateSession(context.Background(), aliceCredentials("secret"))
		requireScraperCode(t, err, CodeMissingSessionCookie)
	})
	t.Run("想定外の応答", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
		}))
		_, err := c.CreateSession(context.Background(), aliceCredentials("secret"))
		requireScraperCode(t, err, CodeUnexpectedResponse)
	})
	t.Run("ログイン直後にゲストとして扱われる", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				http.SetCookie(w, &http.Cookie{Name: "SID", Value: testSessionKey, Path: "/"})
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			_, _ = w.Write([]byte(testPage(guestBar("Entrer"), "")))
		}))
		_, err := c.CreateSession(context.Background(), aliceCredentials("secret"))
		require.Error(t, err)
		assert.Equal(t, model.KindInvalidCredentials, model.KindOf(err))
	})
}

// TestHTTPClient_TestSession は有効なキーでセッションを返し、無効なキーでnilを返すことを検証する。
func TestHTTPClient_TestSession(t *testing.T) {
	srv := newFakeServer("secret")
	srv.loggedIn[testSessionKey] = true
	c, _ := newTestClient(t, srv)

	session, err := c.TestSession(context.Background(), model.HammerfestServerFr, testSessionKey)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, model.HammerfestUserID("42"), session.User.ID)

	session, err = c.TestSession(context.Background(), model.HammerfestServerFr, "zzzzzzzzzzzzzzzzzzzzzzzzzz")
	require.NoError(t, err)
	assert.Nil(t, session, "無効なキーはnilを返すこと")
}

// TestHTTPClient_GetProfileByID はゲストとしてプロフィールを取得できることを検証する。
func TestHTTPClient_GetProfileByID(t *testing.T) {
	c, _ := newTestClient(t, newFakeServer("secret"))

	resp, err := c.GetProfileByID(context.Background(), nil, model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "42"})
	require.NoError(t, err)
	assert.Nil(t, resp.SessionUser)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, uint32(1234567), resp.Profile.BestScore)
	assert.Nil(t, resp.Profile.Email, "ゲストにはメールアドレスが見えないこと")

	resp, err = c.GetProfileByID(context.Background(), nil, model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "404"})
	require.NoError(t, err)
	assert.Nil(t, resp.Profile)
}

// TestHTTPClient_GetOwnItems はセッションのクッキーで所持品ページを取得することを検証する。
func TestHTTPClient_GetOwnItems(t *testing.T) {
	srv := newFakeServer("secret")
	srv.loggedIn[testSessionKey] = true
	c, _ := newTestClient(t, srv)

	resp, err := c.GetOwnItems(context.Background(), testSession())
	require.NoError(t, err)
	assert.Equal(t, map[model.HammerfestItemID]uint32{"3": 2}, resp.Inventory)

	srv.loggedIn[testSessionKey] = false
	_, err = c.GetOwnItems(context.Background(), testSession())
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidCredentials, model.KindOf(err), "失効したセッションは認証エラーになること")
}

// TestHTTPClient_GetForumThreadPage はページ番号をクエリに付けて取得することを検証する。
func TestHTTPClient_GetForumThreadPage(t *testing.T) {
	c, _ := newTestClient(t, newFakeServer("secret"))

	page, err := c.GetForumThreadPage(context.Background(), nil, model.HammerfestServerFr, "11", 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), page.Messages.Page1)
	assert.Empty(t, page.Messages.Items)

	_, err = c.GetForumThreadPage(context.Background(), nil, model.HammerfestServerFr, "11", 0)
	require.Error(t, err)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

// TestHTTPClient_ServerError は5xxの応答がリモート障害として分類されることを検証する。
func TestHTTPClient_ServerError(t *testing.T) {
	srv := newFakeServer("secret")
	srv.status = http.StatusServiceUnavailable
	c, _ := newTestClient(t, srv)

	_, err := c.GetOwnItems(context.Background(), testSession())
	require.Error(t, err)
	assert.True(t, model.KindOf(err).Retryable())
}

// TestSessionKeyFromResponse_DoesNotLeakCookie は不正なクッキーの値をエラーに含めないことを検証する。
func TestSessionKeyFromResponse_DoesNotLeakCookie(t *testing.T) {
	const bad = "NOT-A-VALID-HAMMERFEST-KEY"
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", sessionCookieName+"="+bad+"; Path=/")

	_, err := sessionKeyFromResponse(resp)
	require.Error(t, err)
	se, ok := remote.AsScraperError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidSessionCookie, se.Code)
	assert.NotContains(t, err.Error(), bad)

	resp = &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", sessionCookieName+"="+testSessionKey+"; Path=/")
	key, err := sessionKeyFromResponse(resp)
	require.NoError(t, err)
	assert.EqualValues(t, testSessionKey, key)
}
