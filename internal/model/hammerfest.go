package model

import (
	"regexp"
	"time"
)

// HammerfestServer はHammerfestのサーバー。
type HammerfestServer string

const (
	HammerfestServerFr HammerfestServer = "hammerfest.fr"
	HammerfestServerEs HammerfestServer = "hammerfest.es"
	HammerfestServerEn HammerfestServer = "hfest.net"
)

// HammerfestServers は全サーバーを返す。
func HammerfestServers() []HammerfestServer {
	return []HammerfestServer{HammerfestServerFr, HammerfestServerEs, HammerfestServerEn}
}

// ParseHammerfestServer はホスト名からサーバーを返す。
func ParseHammerfestServer(s string) (HammerfestServer, error) {
	switch HammerfestServer(s) {
	case HammerfestServerFr, HammerfestServerEs, HammerfestServerEn:
		return HammerfestServer(s), nil
	}
	return "", &ParseError{Type: "HammerfestServer", Input: s}
}

func (s HammerfestServer) String() string { return string(s) }

// UnmarshalText は文字列を検証して読み込む。
func (s *HammerfestServer) UnmarshalText(b []byte) error {
	return unmarshalParsed(s, b, ParseHammerfestServer)
}

var (
	reHammerfestUsername    = regexp.MustCompile(`^[0-9A-Za-z]{1,12}$`)
	reHammerfestSessionKey  = regexp.MustCompile(`^[0-9a-z]{26}$`)
	reHammerfestTitle       = regexp.MustCompile(`^.{1,100}$`)
	reHammerfestDescription = regexp.MustCompile(`^(?s).{1,500}$`)
)

// HammerfestUserID はHammerfestのユーザーID。
type HammerfestUserID string

// ParseHammerfestUserID は1以上10億未満の10進数を受け付ける。
func ParseHammerfestUserID(s string) (HammerfestUserID, error) {
	if _, err := checkDecimal("HammerfestUserID", s, 1, maxDecimalID); err != nil {
		return "", err
	}
	return HammerfestUserID(s), nil
}

func (id HammerfestUserID) String() string { return string(id) }

// UnmarshalText は文字列を検証して読み込む。
func (id *HammerfestUserID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseHammerfestUserID)
}

// HammerfestUsername はHammerfestのユーザー名。
type HammerfestUsername string

// ParseHammerfestUsername はユーザー名を検証する。
func ParseHammerfestUsername(s string) (HammerfestUsername, error) {
	if err := checkPattern("HammerfestUsername", reHammerfestUsername, s); err != nil {
		return "", err
	}
	return HammerfestUsername(s), nil
}

func (u HammerfestUsername) String() string { return string(u) }

// UnmarshalText は文字列を検証して読み込む。
func (u *HammerfestUsername) UnmarshalText(b []byte) error {
	return unmarshalParsed(u, b, ParseHammerfestUsername)
}

// HammerfestPassword は平文のパスワード。
type HammerfestPassword string

// HammerfestSessionKey は SID クッキーの値。
type HammerfestSessionKey string

// ParseHammerfestSessionKey はセッションキーを検証する。
func ParseHammerfestSessionKey(s string) (HammerfestSessionKey, error) {
	if err := checkPattern("HammerfestSessionKey", reHammerfestSessionKey, s); err != nil {
		return "", err
	}
	return HammerfestSessionKey(s), nil
}

func (k HammerfestSessionKey) String() string { return string(k) }

// UnmarshalText は文字列を検証して読み込む。
func (k *HammerfestSessionKey) UnmarshalText(b []byte) error {
	return unmarshalParsed(k, b, ParseHammerfestSessionKey)
}

// HammerfestItemID はアイテムID。
type HammerfestItemID string

// ParseHammerfestItemID は10000未満の10進数を受け付ける。
func ParseHammerfestItemID(s string) (HammerfestItemID, error) {
	if _, err := checkDecimal("HammerfestItemID", s, 0, 10_000); err != nil {
		return "", err
	}
	return HammerfestItemID(s), nil
}

// UnmarshalText は文字列を検証して読み込む。
func (id *HammerfestItemID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseHammerfestItemID)
}

// HammerfestQuestID はクエストID。
type HammerfestQuestID string

// ParseHammerfestQuestID は76未満の10進数を受け付ける。
func ParseHammerfestQuestID(s string) (HammerfestQuestID, error) {
	if _, err := checkDecimal("HammerfestQuestID", s, 0, 76); err != nil {
		return "", err
	}
	return HammerfestQuestID(s), nil
}

// UnmarshalText は文字列を検証して読み込む。
func (id *HammerfestQuestID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseHammerfestQuestID)
}

// HammerfestQuestStatus はクエストの進行状況。
type HammerfestQuestStatus string

const (
	HammerfestQuestStatusNone     HammerfestQuestStatus = "None"
	HammerfestQuestStatusPending  HammerfestQuestStatus = "Pending"
	HammerfestQuestStatusComplete HammerfestQuestStatus = "Complete"
)

// HammerfestLadderLevel は0から4までのランキング階級。
type HammerfestLadderLevel uint8

// NewHammerfestLadderLevel は範囲を検証する。
func NewHammerfestLadderLevel(n int) (HammerfestLadderLevel, error) {
	if err := checkRange("HammerfestLadderLevel", n, 0, 4); err != nil {
		return 0, err
	}
	return HammerfestLadderLevel(n), nil
}

// HammerfestUserIDRef はサーバーとユーザーIDの組。
type HammerfestUserIDRef struct {
	Server HammerfestServer `json:"server"`
	ID     HammerfestUserID `json:"id"`
}

// Remote はリンク用の参照に変換する。
func (r HammerfestUserIDRef) Remote() RemoteUserRef {
	return RemoteUserRef{Game: RemoteGameHammerfest, Server: string(r.Server), ID: string(r.ID)}
}

// HammerfestCredentials はログイン情報。
type HammerfestCredentials struct {
	Server   HammerfestServer
	Username HammerfestUsername
	Password HammerfestPassword
}

// ShortHammerfestUser はユーザーの最小限の情報。
type ShortHammerfestUser struct {
	Server   HammerfestServer   `json:"server"`
	ID       HammerfestUserID   `json:"id"`
	Username HammerfestUsername `json:"username"`
}

// Ref は参照を返す。
func (u ShortHammerfestUser) Ref() HammerfestUserIDRef {
	return HammerfestUserIDRef{Server: u.Server, ID: u.ID}
}

// HammerfestSessionUser はログイン中の上部バーに表示される情報。
type HammerfestSessionUser struct {
	User   ShortHammerfestUser `json:"user"`
	Tokens uint32              `json:"tokens"`
}

// HammerfestSession はリモートのログインセッション。
type HammerfestSession struct {
	CreatedAt  time.Time            `json:"ctime"`
	AccessedAt time.Time            `json:"atime"`
	Key        HammerfestSessionKey `json:"key"`
	User       ShortHammerfestUser  `json:"user"`
}

// HammerfestHallOfFameMessage は殿堂入りメッセージ。
type HammerfestHallOfFameMessage struct {
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

// HammerfestProfileEmail はプロフィールに表示されたメールアドレス。
// Address が nil の場合はメールアドレス未登録。
type HammerfestProfileEmail struct {
	Address *EmailAddress `json:"address"`
}

// HammerfestProfile は公開プロフィール。Email が nil の場合は閲覧権限がない。
type HammerfestProfile struct {
	User        ShortHammerfestUser                         `json:"user"`
	Email       *HammerfestProfileEmail                     `json:"email,omitempty"`
	BestScore   uint32                                      `json:"best_score"`
	BestLevel   uint8                                       `json:"best_level"`
	HasCarrot   bool                                        `json:"has_carrot"`
	SeasonScore uint32                                      `json:"season_score"`
	LadderLevel HammerfestLadderLevel                       `json:"ladder_level"`
	HallOfFame  *HammerfestHallOfFameMessage                `json:"hall_of_fame"`
	Items       []HammerfestItemID                          `json:"items"`
	Quests      map[HammerfestQuestID]HammerfestQuestStatus `json:"quests"`
}

// HammerfestProfileResponse はプロフィールページの解析結果。
type HammerfestProfileResponse struct {
	SessionUser *HammerfestSessionUser `json:"session_user"`
	Profile     *HammerfestProfile     `json:"profile"`
}

// HammerfestInventoryResponse は所持品ページの解析結果。
type HammerfestInventoryResponse struct {
	SessionUser HammerfestSessionUser       `json:"session_user"`
	Inventory   map[HammerfestItemID]uint32 `json:"inventory"`
}

// HammerfestShop はショップの状態。PurchasedTokens が nil の場合は購入特典をすべて獲得済み。
type HammerfestShop struct {
	Tokens          uint32 `json:"tokens"`
	WeeklyTokens    uint8  `json:"weekly_tokens"`
	PurchasedTokens *uint8 `json:"purchased_tokens"`
	HasQuestBonus   bool   `json:"has_quest_bonus"`
}

// HammerfestShopResponse はショップページの解析結果。
type HammerfestShopResponse struct {
	SessionUser HammerfestSessionUser `json:"session_user"`
	Shop        HammerfestShop        `json:"shop"`
}

// HammerfestGodchild は紹介したユーザー。
type HammerfestGodchild struct {
	User   ShortHammerfestUser `json:"user"`
	Tokens uint32              `json:"tokens"`
}

// HammerfestGodchildrenResponse は紹介ページの解析結果。
type HammerfestGodchildrenResponse struct {
	SessionUser HammerfestSessionUser `json:"session_user"`
	Godchildren []HammerfestGodchild  `json:"godchildren"`
}

// ArchivedHammerfestProfile はアーカイブ対象のプロフィール項目。
type ArchivedHammerfestProfile struct {
	BestScore   uint32                                      `json:"best_score"`
	BestLevel   uint8                                       `json:"best_level"`
	SeasonScore uint32                                      `json:"season_score"`
	HasCarrot   bool                                        `json:"has_carrot"`
	LadderLevel HammerfestLadderLevel                       `json:"ladder_level"`
	HallOfFame  *HammerfestHallOfFameMessage                `json:"hall_of_fame"`
	Items       []HammerfestItemID                          `json:"items"`
	Quests      map[HammerfestQuestID]HammerfestQuestStatus `json:"quests"`
}

// ArchivedHammerfestUser はアーカイブされたユーザー。
type ArchivedHammerfestUser struct {
	Server      HammerfestServer                             `json:"server"`
	ID          HammerfestUserID                             `json:"id"`
	Username    HammerfestUsername                           `json:"username"`
	ArchivedAt  time.Time                                    `json:"archived_at"`
	Profile     *LatestTemporal[ArchivedHammerfestProfile]   `json:"profile"`
	Inventory   *LatestTemporal[map[HammerfestItemID]uint32] `json:"inventory"`
	Shop        *LatestTemporal[HammerfestShop]              `json:"shop"`
	Godchildren *LatestTemporal[[]HammerfestGodchild]        `json:"godchildren"`
	Tokens      *LatestTemporal[uint32]                      `json:"tokens"`
}

// Short は ShortHammerfestUser に変換する。
func (u ArchivedHammerfestUser) Short() ShortHammerfestUser {
	return ShortHammerfestUser{Server: u.Server, ID: u.ID, Username: u.Username}
}

// EtwinHammerfestUser はアーカイブとリンク情報を合成したユーザー。
type EtwinHammerfestUser struct {
	ArchivedHammerfestUser
	Etwin VersionedEtwinLink `json:"etwin"`
}

// GetHammerfestUserOptions はユーザー取得の条件。
type GetHammerfestUserOptions struct {
	Server HammerfestServer
	ID     HammerfestUserID
	Time   *time.Time
}

// Ref は参照を返す。
func (o GetHammerfestUserOptions) Ref() HammerfestUserIDRef {
	return HammerfestUserIDRef{Server: o.Server, ID: o.ID}
}

// StoredHammerfestSession はトークンストアに保存されたセッションキー。
type StoredHammerfestSession struct {
	Key        HammerfestSessionKey `json:"key"`
	User       HammerfestUserIDRef  `json:"user"`
	CreatedAt  time.Time            `json:"ctime"`
	AccessedAt time.Time            `json:"atime"`
}
