package model

import "regexp"

// PopotamoServer はPopotamoのサーバー。フランス語版のみ。
type PopotamoServer string

const PopotamoServerFr PopotamoServer = "popotamo.com"

var rePopotamoUsername = regexp.MustCompile(`^[0-9A-Za-z_-]{1,8}$`)

// PopotamoUserID はPopotamoのユーザーID。
type PopotamoUserID string

// ParsePopotamoUserID は10億未満の10進数を受け付ける。
func ParsePopotamoUserID(s string) (PopotamoUserID, error) {
	if _, err := checkDecimal("PopotamoUserID", s, 0, maxDecimalID); err != nil {
		return "", err
	}
	return PopotamoUserID(s), nil
}

// PopotamoUsername はPopotamoのユーザー名。
type PopotamoUsername string

// ParsePopotamoUsername はユーザー名を検証する。
func ParsePopotamoUsername(s string) (PopotamoUsername, error) {
	if err := checkPattern("PopotamoUsername", rePopotamoUsername, s); err != nil {
		return "", err
	}
	return PopotamoUsername(s), nil
}

// PopotamoUserIDRef はサーバーとユーザーIDの組。
type PopotamoUserIDRef struct {
	Server PopotamoServer `json:"server"`
	ID     PopotamoUserID `json:"id"`
}

// ShortPopotamoUser はユーザーの最小限の情報。
type ShortPopotamoUser struct {
	Server   PopotamoServer   `json:"server"`
	ID       PopotamoUserID   `json:"id"`
	Username PopotamoUsername `json:"username"`
}

// PopotamoSessionUser はログイン中のメニューに表示される情報。
type PopotamoSessionUser struct {
	User ShortPopotamoUser `json:"user"`
}

// PopotamoProfile は公開プロフィール。
type PopotamoProfile struct {
	User  ShortPopotamoUser `json:"user"`
	Rank  uint32            `json:"rank"`
	Score uint32            `json:"score"`
}

// PopotamoProfileResponse はプロフィールページの解析結果。
type PopotamoProfileResponse struct {
	SessionUser *PopotamoSessionUser `json:"session_user"`
	Profile     PopotamoProfile      `json:"profile"`
}
