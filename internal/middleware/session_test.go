package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eternaltwin/etwin/internal/model"
)

const testSessionID = "6c5e1f3a-8a52-4f0e-9c0b-3f1d2e4a5b6c"

// mockAuthenticator はSessionAuthenticatorのテスト用モック。
type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, id model.SessionID) (model.AuthContext, error)
	calls          int
}

func (m *mockAuthenticator) AuthenticateSession(ctx context.Context, id model.SessionID) (model.AuthContext, error) {
	m.calls++
	return m.authenticateFn(ctx, id)
}

func aliceAuth() model.UserAuthContext {
	return model.UserAuthContext{
		Scope: model.AuthScopeDefault,
		User:  model.ShortUser{ID: "user-1", DisplayName: "Alice"},
	}
}

// captureAuth はハンドラーが受け取った認証コンテキストを記録する。
func captureAuth(got *model.AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// TestSessionMiddleware_ValidSession_InjectsAuth は有効なセッションの認証コンテキストが注入されることを検証する。
func TestSessionMiddleware_ValidSession_InjectsAuth(t *testing.T) {
	auth := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, id model.SessionID) (model.AuthContext, error) {
			if id != testSessionID {
				t.Errorf("session id = %q, want %q", id, testSessionID)
			}
			return aliceAuth(), nil
		},
	}
	var got model.AuthContext
	handler := NewSessionMiddleware(auth)(captureAuth(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/user-1", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: testSessionID})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got != aliceAuth() {
		t.Errorf("auth = %+v, want alice", got)
	}
}

// TestSessionMiddleware_Guest はCookieがない、または不正な場合にゲストとして通すことを検証する。
func TestSessionMiddleware_Guest(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
	}{
		{"Cookieなし", ""},
		{"UUIDでない値", "not-a-uuid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuthenticator{}
			var got model.AuthContext
			handler := NewSessionMiddleware(auth)(captureAuth(&got))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if _, ok := got.(model.GuestAuthContext); !ok {
				t.Errorf("expected guest, got %T", got)
			}
			if auth.calls != 0 {
				t.Error("ストアに問い合わせないこと")
			}
		})
	}
}

// TestSessionMiddleware_StoreError_Returns500 はストアの障害で500を返すことを検証する。
func TestSessionMiddleware_StoreError_Returns500(t *testing.T) {
	auth := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, id model.SessionID) (model.AuthContext, error) {
			return nil, errors.New("connection refused")
		},
	}
	handler := NewSessionMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: testSessionID})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// TestRequireUser はゲストを401で拒否し、ログイン済みユーザーを通すことを検証する。
func TestRequireUser(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("guest: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(ContextWithAuth(req.Context(), aliceAuth()))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("user: status = %d, want 204", w.Code)
	}
}

// TestUserIDFromContext はコンテキストからユーザーIDを取り出せることを検証する。
func TestUserIDFromContext(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Error("空のコンテキストではfalseを返すこと")
	}
	id, ok := UserIDFromContext(ContextWithAuth(context.Background(), aliceAuth()))
	if !ok || id != "user-1" {
		t.Errorf("UserIDFromContext = (%q, %v), want (user-1, true)", id, ok)
	}
}
