package model

import (
	"regexp"
	"time"
)

// TwinoidServer はリンク参照で使うTwinoidのサーバー名。
const TwinoidServer = "twinoid.com"

var reTwinoidUserDisplayName = regexp.MustCompile(`^.{1,100}$`)

// TwinoidUserID はTwinoidのユーザーID。
type TwinoidUserID string

// ParseTwinoidUserID は1以上10億未満の10進数を受け付ける。
func ParseTwinoidUserID(s string) (TwinoidUserID, error) {
	if _, err := checkDecimal("TwinoidUserID", s, 1, maxDecimalID); err != nil {
		return "", err
	}
	return TwinoidUserID(s), nil
}

func (id TwinoidUserID) String() string { return string(id) }

// UnmarshalText は文字列を検証して読み込む。
func (id *TwinoidUserID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseTwinoidUserID)
}

// TwinoidUserDisplayName はTwinoidの表示名。
type TwinoidUserDisplayName string

// ParseTwinoidUserDisplayName は表示名を検証する。
func ParseTwinoidUserDisplayName(s string) (TwinoidUserDisplayName, error) {
	if err := checkPattern("TwinoidUserDisplayName", reTwinoidUserDisplayName, s); err != nil {
		return "", err
	}
	return TwinoidUserDisplayName(s), nil
}

// UnmarshalText は文字列を検証して読み込む。
func (n *TwinoidUserDisplayName) UnmarshalText(b []byte) error {
	return unmarshalParsed(n, b, ParseTwinoidUserDisplayName)
}

// TwinoidUserIDRef はTwinoidユーザーの参照。
type TwinoidUserIDRef struct {
	ID TwinoidUserID `json:"id"`
}

// Remote はリンク用の参照に変換する。
func (r TwinoidUserIDRef) Remote() RemoteUserRef {
	return RemoteUserRef{Game: RemoteGameTwinoid, Server: TwinoidServer, ID: string(r.ID)}
}

// ShortTwinoidUser はユーザーの最小限の情報。
type ShortTwinoidUser struct {
	ID          TwinoidUserID          `json:"id"`
	DisplayName TwinoidUserDisplayName `json:"display_name"`
}

// ArchivedTwinoidUser はアーカイブされたユーザー。
type ArchivedTwinoidUser struct {
	ID          TwinoidUserID                           `json:"id"`
	ArchivedAt  time.Time                               `json:"archived_at"`
	DisplayName TwinoidUserDisplayName                  `json:"display_name"`
	Name        *LatestTemporal[TwinoidUserDisplayName] `json:"name"`
}

// Short は ShortTwinoidUser に変換する。
func (u ArchivedTwinoidUser) Short() ShortTwinoidUser {
	return ShortTwinoidUser{ID: u.ID, DisplayName: u.DisplayName}
}

// EtwinTwinoidUser はアーカイブとリンク情報を合成したユーザー。
type EtwinTwinoidUser struct {
	ArchivedTwinoidUser
	Etwin VersionedEtwinLink `json:"etwin"`
}

// GetTwinoidUserOptions はユーザー取得の条件。
type GetTwinoidUserOptions struct {
	ID   TwinoidUserID
	Time *time.Time
}

// TwinoidAccessToken は保存されたアクセストークン。
type TwinoidAccessToken struct {
	Key        string        `json:"key"`
	CreatedAt  time.Time     `json:"ctime"`
	AccessedAt time.Time     `json:"atime"`
	ExpiresAt  time.Time     `json:"expiration_time"`
	User       TwinoidUserID `json:"twinoid_user_id"`
}

// TwinoidRefreshToken は保存されたリフレッシュトークン。
type TwinoidRefreshToken struct {
	Key        string        `json:"key"`
	CreatedAt  time.Time     `json:"ctime"`
	AccessedAt time.Time     `json:"atime"`
	User       TwinoidUserID `json:"twinoid_user_id"`
}

// TwinoidOAuth はユーザーの有効なトークンの組。
type TwinoidOAuth struct {
	AccessToken  *TwinoidAccessToken  `json:"access_token"`
	RefreshToken *TwinoidRefreshToken `json:"refresh_token"`
}

// TouchTwinoidOAuthOptions はトークン保存の入力。
type TouchTwinoidOAuthOptions struct {
	AccessToken    string
	RefreshToken   string
	ExpirationTime time.Time
	User           TwinoidUserID
}
