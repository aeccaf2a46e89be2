package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eternaltwin/etwin/internal/middleware"
	"github.com/eternaltwin/etwin/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。user.Service が実装する。
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, login string, password model.Password) (model.AuthContext, error)
	CreateSession(ctx context.Context, id model.UserID) (*model.Session, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログインとログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// authResponse は認証コンテキストのAPIレスポンス。
type authResponse struct {
	Type            string           `json:"type"`
	Scope           model.AuthScope  `json:"scope"`
	User            *model.ShortUser `json:"user,omitempty"`
	IsAdministrator bool             `json:"is_administrator"`
}

func toAuthResponse(acx model.AuthContext) authResponse {
	switch a := acx.(type) {
	case model.UserAuthContext:
		u := a.User
		return authResponse{Type: "User", Scope: a.Scope, User: &u, IsAdministrator: a.IsAdministrator}
	case model.GuestAuthContext:
		return authResponse{Type: "Guest", Scope: a.Scope}
	default:
		return authResponse{Type: "Guest", Scope: model.AuthScopeDefault}
	}
}

// Login はユーザー名またはメールアドレスとパスワードで認証し、セッションCookieを設定する。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	acx, err := h.service.Authenticate(r.Context(), req.Login, model.Password(req.Password))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	u, ok := acx.(model.UserAuthContext)
	if !ok {
		middleware.WriteError(w, r, model.NewInvalidCredentialsError())
		return
	}

	session, err := h.service.CreateSession(r.Context(), u.User.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	slog.Info("ログインしました", slog.String("user_id", string(u.User.ID)))

	h.setSessionCookie(w, string(session.ID), h.config.SessionMaxAge)
	writeJSON(w, http.StatusOK, toAuthResponse(acx))
}

// Logout はセッションCookieを削除する。
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Self は現在の認証コンテキストを返す。ゲストの場合も200を返す。
// GET /api/v1/auth/self
func (h *AuthHandler) Self(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toAuthResponse(middleware.AuthFromContext(r.Context())))
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
