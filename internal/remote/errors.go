package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/eternaltwin/etwin/internal/model"
)

// 共通のスクレイパーエラーコード
const (
	CodeNonUniqueElement = "NonUniqueElement"
	CodeTooManyElements  = "TooManyElements"
	CodeNonUniqueText    = "NonUniqueText"
	CodeInvalidHTML      = "InvalidHtml"
	CodeUnexpectedStatus = "UnexpectedStatus"
	CodeResponseTooLarge = "ResponseTooLarge"
)

// ScraperError はリモートのページが想定と異なる構造だったことを表す。
// Code はエラーの種類を表す固定の文字列で、メトリクスのラベルにも使う。
type ScraperError struct {
	Code   string
	Detail string
}

// NewScraperError はScraperErrorを生成する。
func NewScraperError(code, format string, args ...any) *ScraperError {
	return &ScraperError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func (e *ScraperError) Error() string {
	if e.Detail == "" {
		return "unexpected remote response: " + e.Code
	}
	return fmt.Sprintf("unexpected remote response: %s: %s", e.Code, e.Detail)
}

// Kind は分類を返す。
func (e *ScraperError) Kind() model.Kind { return model.KindRemoteUnexpectedResponse }

// AsScraperError はエラーチェーンからScraperErrorを取り出す。
func AsScraperError(err error) (*ScraperError, bool) {
	var se *ScraperError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// UnexpectedStatus は想定外のHTTPステータスを表すScraperErrorを返す。
func UnexpectedStatus(code string, status int) *ScraperError {
	if code == "" {
		code = CodeUnexpectedStatus
	}
	return NewScraperError(code, "status %d", status)
}

// TransportError は通信の失敗を表す。
// Err がnilの場合は5xxのステータスを受け取ったことを表す。
type TransportError struct {
	StatusCode int
	Err        error
}

// MapTransportError は http.Client のエラーを TransportError に包む。
func MapTransportError(err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Err: err}
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remote unavailable: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote unavailable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Kind はコンテキストのキャンセルを Cancelled、それ以外を RemoteUnavailable に分類する。
func (e *TransportError) Kind() model.Kind {
	if e.Err != nil && errors.Is(e.Err, context.Canceled) {
		return model.KindCancelled
	}
	return model.KindRemoteUnavailable
}
