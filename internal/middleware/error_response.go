package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eternaltwin/etwin/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Error string `json:"error"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Error: code})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者にはコードだけを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.ErrCodeInternalServerError)
}

// WriteError はエラーの分類からステータスコードとエラーコードを決めて書き込む。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("リクエストの処理に失敗しました",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	WriteErrorResponse(w, status, code)
}

// StatusOf はエラーに対応するHTTPステータスコードとエラーコードを返す。
func StatusOf(err error) (int, string) {
	kind := model.KindOf(err)
	code := kind.String()
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	var conflict *model.LinkConflictError
	if errors.As(err, &conflict) {
		code = model.ErrCodeLinkConflict
	}

	switch kind {
	case model.KindValidation:
		if apiErr == nil {
			code = model.ErrCodeInvalidRequest
		}
		return http.StatusBadRequest, code
	case model.KindNotFound:
		return http.StatusNotFound, code
	case model.KindConflict:
		return http.StatusConflict, code
	case model.KindInvalidCredentials:
		if code == model.ErrCodeForbidden {
			return http.StatusForbidden, code
		}
		return http.StatusUnauthorized, model.ErrCodeInvalidCredentials
	case model.KindRemoteUnavailable:
		return http.StatusServiceUnavailable, kind.String()
	case model.KindRemoteUnexpectedResponse:
		return http.StatusBadGateway, kind.String()
	default:
		return http.StatusInternalServerError, model.ErrCodeInternalServerError
	}
}
