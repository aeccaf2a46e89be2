package remote

import "net/http"

// Auth は送信するリクエストに付与する認証情報。
// GuestAuth, BearerAuth, CookieAuth, BasicAuth のいずれか。
type Auth interface {
	Apply(req *http.Request)
	isAuth()
}

// GuestAuth は認証情報を付与しない。
type GuestAuth struct{}

// BearerAuth はAuthorizationヘッダーにトークンを付与する。Twinoidで使う。
type BearerAuth struct {
	Token string
}

// CookieAuth はセッションクッキーを付与する。DinoparcとHammerfestで使う。
type CookieAuth struct {
	Name  string
	Value string
}

// BasicAuth はBasic認証を付与する。
type BasicAuth struct {
	User     string
	Password string
}

func (GuestAuth) Apply(*http.Request) {}

func (a BearerAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

func (a CookieAuth) Apply(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: a.Name, Value: a.Value})
}

func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.User, a.Password)
}

func (GuestAuth) isAuth()  {}
func (BearerAuth) isAuth() {}
func (CookieAuth) isAuth() {}
func (BasicAuth) isAuth()  {}
