package model

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UserID はetwinユーザーのUUID。
type UserID string

// ParseUserID はUUID文字列を正規化して UserID を生成する。
func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", &ParseError{Type: "UserID", Input: s}
	}
	return UserID(id.String()), nil
}

// NewUserID はUUIDから UserID を生成する。
func NewUserID(id uuid.UUID) UserID {
	return UserID(id.String())
}

func (id UserID) String() string { return string(id) }

// UnmarshalText は文字列を検証して読み込む。
func (id *UserID) UnmarshalText(b []byte) error { return unmarshalParsed(id, b, ParseUserID) }

var (
	reUserDisplayName = regexp.MustCompile(`^[\p{L}_ ()][\p{L}_ ()0-9]*$`)
	reUsername        = regexp.MustCompile(`^[a-z_][a-z0-9_]{1,31}$`)
	reEmailAddress    = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
)

// UserDisplayName は表示名。履歴付きで保存される。
type UserDisplayName string

// ParseUserDisplayName は表示名を検証する。
func ParseUserDisplayName(s string) (UserDisplayName, error) {
	n := utf8.RuneCountInString(s)
	if n < 2 || n > 64 {
		return "", &ParseError{Type: "UserDisplayName", Input: s}
	}
	if err := checkPattern("UserDisplayName", reUserDisplayName, s); err != nil {
		return "", err
	}
	return UserDisplayName(s), nil
}

func (n UserDisplayName) String() string { return string(n) }

// UnmarshalText は文字列を検証して読み込む。
func (n *UserDisplayName) UnmarshalText(b []byte) error {
	return unmarshalParsed(n, b, ParseUserDisplayName)
}

// Username はログイン用のユーザー名。
type Username string

// ParseUsername はユーザー名を検証する。
func ParseUsername(s string) (Username, error) {
	if err := checkPattern("Username", reUsername, s); err != nil {
		return "", err
	}
	return Username(s), nil
}

func (u Username) String() string { return string(u) }

// UnmarshalText は文字列を検証して読み込む。
func (u *Username) UnmarshalText(b []byte) error { return unmarshalParsed(u, b, ParseUsername) }

// EmailAddress はメールアドレス。保存時は暗号化される。
type EmailAddress string

// ParseEmailAddress はメールアドレスを検証し小文字に正規化する。
func ParseEmailAddress(s string) (EmailAddress, error) {
	if len(s) > 320 {
		return "", &ParseError{Type: "EmailAddress", Input: s}
	}
	if err := checkPattern("EmailAddress", reEmailAddress, s); err != nil {
		return "", err
	}
	return EmailAddress(strings.ToLower(s)), nil
}

func (e EmailAddress) String() string { return string(e) }

// UnmarshalText は文字列を検証して読み込む。
func (e *EmailAddress) UnmarshalText(b []byte) error {
	return unmarshalParsed(e, b, ParseEmailAddress)
}

// Password は平文のパスワード。ログに出力してはならない。
type Password []byte

// PasswordHash はbcryptでハッシュ化されたパスワード。
type PasswordHash []byte

// UserIDRef はIDのみを持つユーザー参照。
type UserIDRef struct {
	ID UserID `json:"id"`
}

// UserRef はID、ユーザー名、メールアドレスのいずれか一つでユーザーを指す。
type UserRef struct {
	ID       *UserID
	Username *Username
	Email    *EmailAddress
}

// UserRefByID はIDによる参照を返す。
func UserRefByID(id UserID) UserRef { return UserRef{ID: &id} }

// ShortUser はユーザーの最小限の公開情報。
type ShortUser struct {
	ID          UserID          `json:"id"`
	DisplayName UserDisplayName `json:"display_name"`
}

// User は既定の公開情報を持つユーザー。
type User struct {
	ID              UserID          `json:"id"`
	CreatedAt       time.Time       `json:"ctime"`
	DisplayName     UserDisplayName `json:"display_name"`
	IsAdministrator bool            `json:"is_administrator"`
}

// Short は ShortUser に変換する。
func (u User) Short() ShortUser {
	return ShortUser{ID: u.ID, DisplayName: u.DisplayName}
}

// CompleteUser は本人または管理者のみが閲覧できる情報を含むユーザー。
type CompleteUser struct {
	User
	Username     *Username     `json:"username"`
	EmailAddress *EmailAddress `json:"email_address"`
	HasPassword  bool          `json:"has_password"`
}

// UserFields は取得するフィールドの範囲。
type UserFields int

const (
	UserFieldsShort UserFields = iota
	UserFieldsDefault
	UserFieldsComplete
)

// CreateUserOptions はユーザー作成の入力。
type CreateUserOptions struct {
	DisplayName UserDisplayName
	Username    *Username
	Email       *EmailAddress
	Password    PasswordHash
}

// GetUserOptions はユーザー取得の条件。Time が指定された場合はその時点の表示名を返す。
type GetUserOptions struct {
	Ref    UserRef
	Fields UserFields
	Time   *time.Time
}

// UpdateUserPatch はユーザー更新の差分。nil のフィールドは変更しない。
type UpdateUserPatch struct {
	DisplayName *UserDisplayName
	Username    *Username
	Password    PasswordHash
}

// SessionID はetwinセッションのUUID。
type SessionID string

// Session はetwinのログインセッション。
type Session struct {
	ID         SessionID `json:"id"`
	User       UserIDRef `json:"user"`
	CreatedAt  time.Time `json:"ctime"`
	AccessedAt time.Time `json:"atime"`
}

// EmailVerification はメールアドレス確認の記録。
type EmailVerification struct {
	User        UserIDRef
	Email       EmailAddress
	CreatedAt   time.Time
	ValidatedAt time.Time
}
