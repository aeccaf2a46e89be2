// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/eternaltwin/etwin/internal/model"
)

// SessionCookieName はetwinセッションIDを保持するCookieの名前。
const SessionCookieName = "etwin_session"

type authContextKey struct{}

// SessionAuthenticator はセッションIDから認証コンテキストを得る。user.Service が実装する。
type SessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, id model.SessionID) (model.AuthContext, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 認証コンテキストをリクエストコンテキストに注入するミドルウェアを返す。
// アーカイブの閲覧はゲストにも許可するため、Cookieがない場合や無効なセッションはゲストとして通す。
func NewSessionMiddleware(auth SessionAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), model.Guest())))
				return
			}
			// UUIDでない値はストアに問い合わせない
			if _, err := uuid.Parse(cookie.Value); err != nil {
				next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), model.Guest())))
				return
			}

			acx, err := auth.AuthenticateSession(r.Context(), model.SessionID(cookie.Value))
			if err != nil {
				slog.Error("セッションの検証に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), acx)))
		})
	}
}

// RequireUser はゲストのリクエストを401で拒否する。NewSessionMiddleware の後に配置する。
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthFromContext はリクエストコンテキストの認証コンテキストを返す。未設定の場合はゲスト。
func AuthFromContext(ctx context.Context) model.AuthContext {
	if acx, ok := ctx.Value(authContextKey{}).(model.AuthContext); ok && acx != nil {
		return acx
	}
	return model.Guest()
}

// ContextWithAuth はコンテキストに認証コンテキストを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAuth(ctx context.Context, acx model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, acx)
}

// UserIDFromContext はログイン済みの場合にユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (model.UserID, bool) {
	u, ok := AuthFromContext(ctx).(model.UserAuthContext)
	if !ok {
		return "", false
	}
	return u.User.ID, true
}
