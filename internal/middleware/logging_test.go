package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eternaltwin/etwin/internal/model"
)

// serveLogged はハンドラーをロギングミドルウェア経由で実行し、出力されたログ1行を返す。
func serveLogged(t *testing.T, req *http.Request, h http.HandlerFunc) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	NewLoggingMiddleware(logger)(h).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/archive/hammerfest/hammerfest.fr/users/42", nil)
	entry := serveLogged(t, req, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/api/v1/archive/hammerfest/hammerfest.fr/users/42" {
		t.Errorf("path = %v", entry["path"])
	}
	if status, _ := entry["status"].(float64); status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v, should be >= 0", entry["duration_ms"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("ゲストのリクエストにはuser_idを含めないこと")
	}
}

// TestLoggingMiddleware_IncludesUserID はログイン済みのユーザーIDがログに含まれることを検証する。
func TestLoggingMiddleware_IncludesUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/self", nil)
	acx := model.UserAuthContext{User: model.ShortUser{ID: "user-123"}}
	req = req.WithContext(ContextWithAuth(req.Context(), acx))

	entry := serveLogged(t, req, func(w http.ResponseWriter, r *http.Request) {})
	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
}

// TestLoggingMiddleware_CapturesStatusCode はステータスコードとログレベルを検証する。
func TestLoggingMiddleware_CapturesStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		write      bool
		wantLevel  string
	}{
		{"WriteのみでWriteHeaderなし", http.StatusOK, true, "INFO"},
		{"201 Created", http.StatusCreated, false, "INFO"},
		{"404 Not Found", http.StatusNotFound, false, "WARN"},
		{"503 Service Unavailable", http.StatusServiceUnavailable, false, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			entry := serveLogged(t, req, func(w http.ResponseWriter, r *http.Request) {
				if tt.write {
					w.Write([]byte("ok"))
					return
				}
				w.WriteHeader(tt.statusCode)
			})
			if status := int(entry["status"].(float64)); status != tt.statusCode {
				t.Errorf("status = %d, want %d", status, tt.statusCode)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
		})
	}
}

// TestLoggingMiddleware_RouteAndRequestID はchiのルートパターン、リクエストID、バイト数を記録することを検証する。
func TestLoggingMiddleware_RouteAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(NewLoggingMiddleware(logger))
	r.Get("/archive/{game}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/archive/dinoparc/1", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if entry["route"] != "/archive/{game}/{id}" {
		t.Errorf("route = %v", entry["route"])
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("request_id が記録されていない")
	}
	if n, _ := entry["bytes"].(float64); n != 5 {
		t.Errorf("bytes = %v, want 5", entry["bytes"])
	}
}
