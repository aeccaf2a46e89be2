package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfHandler(called *bool) http.Handler {
	return NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

// TestCSRFMiddleware_SafeMethods は安全なメソッドが検証なしで通り、Cookieが発行されることを検証する。
func TestCSRFMiddleware_SafeMethods(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			var called bool
			w := httptest.NewRecorder()
			csrfHandler(&called).ServeHTTP(w, httptest.NewRequest(method, "/api/v1/users/self", nil))

			if !called || w.Code != http.StatusOK {
				t.Fatalf("status = %d, called = %v", w.Code, called)
			}
			var found *http.Cookie
			for _, c := range w.Result().Cookies() {
				if c.Name == CSRFCookieName {
					found = c
				}
			}
			if found == nil || len(found.Value) != 64 {
				t.Fatalf("CSRF cookie = %+v, want 64 hex chars", found)
			}
			if found.HttpOnly {
				t.Error("CSRF cookie はクライアントから読めること")
			}
		})
	}
}

// TestCSRFMiddleware_ExistingCookie_DoesNotReplace は既存のCookieを置き換えないことを検証する。
func TestCSRFMiddleware_ExistingCookie_DoesNotReplace(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	csrfHandler(&called).ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Errorf("unexpected Set-Cookie: %v", w.Result().Cookies())
	}
}

// TestCSRFMiddleware_StateChanging はトークンの有無と一致で結果が変わることを検証する。
func TestCSRFMiddleware_StateChanging(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{"Cookieなし", http.MethodPost, "", "token", http.StatusForbidden},
		{"ヘッダーなし", http.MethodPost, "token", "", http.StatusForbidden},
		{"不一致", http.MethodDelete, "token", "other", http.StatusForbidden},
		{"一致するPOST", http.MethodPost, "token", "token", http.StatusOK},
		{"一致するDELETE", http.MethodDelete, "token", "token", http.StatusOK},
		{"トークンなしのPUT", http.MethodPut, "", "", http.StatusForbidden},
		{"トークンなしのPATCH", http.MethodPatch, "", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			req := httptest.NewRequest(tt.method, "/api/v1/links/dinoparc", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			csrfHandler(&called).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("called = %v", called)
			}
		})
	}
}

// TestCSRFTokenHandler はトークンをJSONで返し、既存のCookieがあれば同じ値を返すことを検証する。
func TestCSRFTokenHandler(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil))
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != body["token"] || !cookies[0].Secure {
		t.Errorf("cookie = %+v, token = %q", cookies, body["token"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "existing"})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["token"] != "existing" {
		t.Errorf("token = %q, want existing", body["token"])
	}
}
