// Package handler はREST APIのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/eternaltwin/etwin/internal/model"
)

// maxBodySize はリクエストボディの上限。
const maxBodySize = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。未知のフィールドと複数の値は拒否する。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var parseErr *model.ParseError
		if errors.As(err, &parseErr) {
			return parseErr
		}
		return model.NewInvalidRequestError("body")
	}
	if dec.More() {
		return model.NewInvalidRequestError("body")
	}
	return nil
}

// parseTime はクエリパラメータ time をRFC3339として解釈する。未指定の場合はnil。
func parseTime(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("time")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, model.NewInvalidRequestError("time")
	}
	t = t.UTC()
	return &t, nil
}
