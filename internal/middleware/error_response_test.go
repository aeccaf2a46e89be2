package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eternaltwin/etwin/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は {"error": code} 形式で書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusNotFound, model.ErrCodeHammerfestUserNotFound)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 1 || body["error"] != "HammerfestUserNotFound" {
		t.Errorf("body = %v", body)
	}
}

// TestStatusOf はエラーの分類ごとのステータスコードとエラーコードを検証する。
func TestStatusOf(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"リモートユーザーなし", model.NewRemoteUserNotFoundError(model.ErrCodeDinoparcUserNotFound, "en.dinoparc.com", "1"), http.StatusNotFound, "DinoparcUserNotFound"},
		{"ラップされたNotFound", fmt.Errorf("wrapped: %w", model.NewUserNotFoundError()), http.StatusNotFound, "UserNotFound"},
		{"パースエラー", &model.ParseError{Type: "HammerfestUserId", Input: "x"}, http.StatusBadRequest, "InvalidRequest"},
		{"不正なリクエスト", model.NewInvalidRequestError("time"), http.StatusBadRequest, "InvalidRequest"},
		{"リンクの衝突", model.NewLinkConflictError(&model.RawLink{}, nil), http.StatusConflict, "LinkConflict"},
		{"ユーザー名の衝突", model.NewUsernameConflictError(), http.StatusConflict, "UsernameConflict"},
		{"認証失敗", model.NewInvalidCredentialsError(), http.StatusUnauthorized, "InvalidCredentials"},
		{"権限なし", model.NewForbiddenError(), http.StatusForbidden, "Forbidden"},
		{"リモート障害", context.DeadlineExceeded, http.StatusServiceUnavailable, "RemoteUnavailable"},
		{"想定外の応答", model.NewKindError(model.KindRemoteUnexpectedResponse, "UnexpectedResponse", nil), http.StatusBadGateway, "RemoteUnexpectedResponse"},
		{"分類なし", errors.New("boom"), http.StatusInternalServerError, "InternalServerError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusOf(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("StatusOf = (%d, %q), want (%d, %q)", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

// TestWriteInternalServerError は内部エラーの詳細を返さないことを検証する。
func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if got := w.Body.String(); got != "{\"error\":\"InternalServerError\"}\n" {
		t.Errorf("body = %q", got)
	}
}
