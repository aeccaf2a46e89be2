// Package model はドメインモデルを定義する。
package model

import (
	"context"
	"errors"
	"fmt"
)

// Kind はエラーの分類を表す。REST層やワーカーはこの分類で扱いを決める。
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRemoteUnavailable
	KindRemoteUnexpectedResponse
	KindInvalidCredentials
	KindStorageFailure
	KindCancelled
)

var kindNames = map[Kind]string{
	KindUnknown:                  "Unknown",
	KindValidation:               "Validation",
	KindNotFound:                 "NotFound",
	KindConflict:                 "Conflict",
	KindRemoteUnavailable:        "RemoteUnavailable",
	KindRemoteUnexpectedResponse: "RemoteUnexpectedResponse",
	KindInvalidCredentials:       "InvalidCredentials",
	KindStorageFailure:           "StorageFailure",
	KindCancelled:                "Cancelled",
}

// String は分類名を返す。
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Retryable は呼び出し側が再試行してよい分類かどうかを返す。
func (k Kind) Retryable() bool {
	return k == KindRemoteUnavailable
}

// Kinded は自身の分類を知っているエラー。
type Kinded interface {
	error
	Kind() Kind
}

// KindOf はエラーチェーンを辿って分類を返す。
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindRemoteUnavailable
	}
	return KindUnknown
}

// KindError は任意のエラーに分類とコードを付与する。
type KindError struct {
	kind Kind
	Code string
	Err  error
}

// NewKindError は分類付きエラーを生成する。
func NewKindError(kind Kind, code string, err error) *KindError {
	return &KindError{kind: kind, Code: code, Err: err}
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// Kind は分類を返す。
func (e *KindError) Kind() Kind { return e.kind }

// ParseError は値型の生成時に入力が規則に合わなかったことを表す。
type ParseError struct {
	Type  string
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Type, e.Input)
}

// Kind は分類を返す。
func (e *ParseError) Kind() Kind { return KindValidation }

// APIError は統一エラーフォーマットを表す。
// Code はRESTレスポンスの "error" フィールドにそのまま出力される。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, not_found, conflict, auth, remote, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Kind はカテゴリから分類を返す。
func (e *APIError) Kind() Kind {
	switch e.Category {
	case "validation":
		return KindValidation
	case "not_found":
		return KindNotFound
	case "conflict":
		return KindConflict
	case "auth":
		return KindInvalidCredentials
	case "remote":
		return KindRemoteUnavailable
	default:
		return KindStorageFailure
	}
}

// Is はコードが一致するAPIErrorを同一とみなす。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeInternalServerError    = "InternalServerError"
	ErrCodeInvalidRequest         = "InvalidRequest"
	ErrCodeUserNotFound           = "UserNotFound"
	ErrCodeDinoparcUserNotFound   = "DinoparcUserNotFound"
	ErrCodeDinoparcDinozNotFound  = "DinoparcDinozNotFound"
	ErrCodeHammerfestUserNotFound = "HammerfestUserNotFound"
	ErrCodeTwinoidUserNotFound    = "TwinoidUserNotFound"
	ErrCodeSessionNotFound        = "SessionNotFound"
	ErrCodeNotLinked              = "NotLinked"
	ErrCodeLinkConflict           = "LinkConflict"
	ErrCodeUsernameConflict       = "UsernameConflict"
	ErrCodeEmailConflict          = "EmailConflict"
	ErrCodeInvalidCredentials     = "InvalidCredentials"
	ErrCodeForbidden              = "Forbidden"
)

// 比較用の番兵エラー。errors.Is でコードのみが比較される。
var (
	ErrUserNotFound           = &APIError{Code: ErrCodeUserNotFound, Category: "not_found"}
	ErrDinoparcUserNotFound   = &APIError{Code: ErrCodeDinoparcUserNotFound, Category: "not_found"}
	ErrDinoparcDinozNotFound  = &APIError{Code: ErrCodeDinoparcDinozNotFound, Category: "not_found"}
	ErrHammerfestUserNotFound = &APIError{Code: ErrCodeHammerfestUserNotFound, Category: "not_found"}
	ErrTwinoidUserNotFound    = &APIError{Code: ErrCodeTwinoidUserNotFound, Category: "not_found"}
	ErrNotLinked              = &APIError{Code: ErrCodeNotLinked, Category: "not_found"}
)

// NewInvalidRequestError は入力値が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力値を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "not_found",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewRemoteUserNotFoundError はアーカイブにもリモートにもユーザーが存在しない場合のエラーを生成する。
func NewRemoteUserNotFoundError(code, server, id string) *APIError {
	return &APIError{
		Code:     code,
		Message:  fmt.Sprintf("リモートユーザーが見つかりません: %s/%s", server, id),
		Category: "not_found",
		Action:   "サーバー名とユーザーIDを確認してください。",
	}
}

// NewNotLinkedError は解除対象のリンクが存在しない場合のエラーを生成する。
func NewNotLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotLinked,
		Message:  "指定されたアカウントはリンクされていません。",
		Category: "not_found",
		Action:   "リンク状態を確認してください。",
	}
}

// NewUsernameConflictError はユーザー名が既に使われている場合のエラーを生成する。
func NewUsernameConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameConflict,
		Message:  "このユーザー名は既に使用されています。",
		Category: "conflict",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewEmailConflictError はメールアドレスが既に使われている場合のエラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  "このメールアドレスは既に使用されています。",
		Category: "conflict",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewInvalidCredentialsError はリモートサーバーで認証に失敗した場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "認証情報を確認してください。",
	}
}

// NewForbiddenError は操作対象のユーザー本人でも管理者でもない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作は許可されていません。",
		Category: "auth",
		Action:   "ログイン中のユーザーを確認してください。",
	}
}

// NewInternalServerError は内部エラーを生成する。詳細は利用者に返さない。
func NewInternalServerError() *APIError {
	return &APIError{
		Code:     ErrCodeInternalServerError,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
