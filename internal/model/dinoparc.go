package model

import (
	"regexp"
	"time"
)

// DinoparcServer はDinoparcのサーバー。ホスト名で直列化される。
type DinoparcServer string

const (
	DinoparcServerFr DinoparcServer = "dinoparc.com"
	DinoparcServerEn DinoparcServer = "en.dinoparc.com"
	DinoparcServerSp DinoparcServer = "sp.dinoparc.com"
)

// DinoparcServers は全サーバーを返す。
func DinoparcServers() []DinoparcServer {
	return []DinoparcServer{DinoparcServerFr, DinoparcServerEn, DinoparcServerSp}
}

// ParseDinoparcServer はホスト名からサーバーを返す。
func ParseDinoparcServer(s string) (DinoparcServer, error) {
	switch DinoparcServer(s) {
	case DinoparcServerFr, DinoparcServerEn, DinoparcServerSp:
		return DinoparcServer(s), nil
	}
	return "", &ParseError{Type: "DinoparcServer", Input: s}
}

func (s DinoparcServer) String() string { return string(s) }

// UnmarshalText は文字列を検証して読み込む。
func (s *DinoparcServer) UnmarshalText(b []byte) error {
	return unmarshalParsed(s, b, ParseDinoparcServer)
}

var (
	reDinoparcUsername   = regexp.MustCompile(`^[0-9A-Za-z-]{1,14}$`)
	reDinoparcSessionKey = regexp.MustCompile(`^[0-9a-zA-Z]{32}$`)
	reDinoparcDinozName  = regexp.MustCompile(`^[0-9A-Za-z_é-]{1,15}$`)
	reDinoparcDinozSkin  = regexp.MustCompile(`^[0-9A-Za-z#]{1,30}$`)
	reDinoparcEpicReward = regexp.MustCompile(`^[a-z0-9_]{1,30}$`)
	maxDecimalID         = uint64(1_000_000_000)
)

// DinoparcUserID はDinoparcのユーザーID。
type DinoparcUserID string

// ParseDinoparcUserID は1以上10億未満の10進数を受け付ける。
func ParseDinoparcUserID(s string) (DinoparcUserID, error) {
	if _, err := checkDecimal("DinoparcUserID", s, 1, maxDecimalID); err != nil {
		return "", err
	}
	return DinoparcUserID(s), nil
}

func (id DinoparcUserID) String() string { return string(id) }

// UnmarshalText は文字列を検証して読み込む。
func (id *DinoparcUserID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseDinoparcUserID)
}

// DinoparcDinozID はディノズのID。
type DinoparcDinozID string

// ParseDinoparcDinozID は1以上10億未満の10進数を受け付ける。
func ParseDinoparcDinozID(s string) (DinoparcDinozID, error) {
	if _, err := checkDecimal("DinoparcDinozID", s, 1, maxDecimalID); err != nil {
		return "", err
	}
	return DinoparcDinozID(s), nil
}

func (id DinoparcDinozID) String() string { return string(id) }

// UnmarshalText は文字列を検証して読み込む。
func (id *DinoparcDinozID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseDinoparcDinozID)
}

// DinoparcItemID はアイテムID。
type DinoparcItemID string

// ParseDinoparcItemID は10億未満の10進数を受け付ける。
func ParseDinoparcItemID(s string) (DinoparcItemID, error) {
	if _, err := checkDecimal("DinoparcItemID", s, 0, maxDecimalID); err != nil {
		return "", err
	}
	return DinoparcItemID(s), nil
}

func (id DinoparcItemID) String() string { return string(id) }

// UnmarshalText は文字列を検証して読み込む。
func (id *DinoparcItemID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseDinoparcItemID)
}

// DinoparcRewardID はコレクションの通常報酬ID。
type DinoparcRewardID string

// ParseDinoparcRewardID は10億未満の10進数を受け付ける。
func ParseDinoparcRewardID(s string) (DinoparcRewardID, error) {
	if _, err := checkDecimal("DinoparcRewardID", s, 0, maxDecimalID); err != nil {
		return "", err
	}
	return DinoparcRewardID(s), nil
}

func (id DinoparcRewardID) String() string { return string(id) }

// UnmarshalText は文字列を検証して読み込む。
func (id *DinoparcRewardID) UnmarshalText(b []byte) error {
	return unmarshalParsed(id, b, ParseDinoparcRewardID)
}

// DinoparcEpicRewardKey はエピック報酬の画像キー。
type DinoparcEpicRewardKey string

// ParseDinoparcEpicRewardKey はキーを検証する。
func ParseDinoparcEpicRewardKey(s string) (DinoparcEpicRewardKey, error) {
	if err := checkPattern("DinoparcEpicRewardKey", reDinoparcEpicReward, s); err != nil {
		return "", err
	}
	return DinoparcEpicRewardKey(s), nil
}

// DinoparcUsername はDinoparcのユーザー名。
type DinoparcUsername string

// ParseDinoparcUsername はユーザー名を検証する。
func ParseDinoparcUsername(s string) (DinoparcUsername, error) {
	if err := checkPattern("DinoparcUsername", reDinoparcUsername, s); err != nil {
		return "", err
	}
	return DinoparcUsername(s), nil
}

func (u DinoparcUsername) String() string { return string(u) }

// UnmarshalText は文字列を検証して読み込む。
func (u *DinoparcUsername) UnmarshalText(b []byte) error {
	return unmarshalParsed(u, b, ParseDinoparcUsername)
}

// DinoparcPassword はDinoparcの平文パスワード。
type DinoparcPassword string

// DinoparcSessionKey は sid クッキーの値。
type DinoparcSessionKey string

// ParseDinoparcSessionKey はセッションキーを検証する。
func ParseDinoparcSessionKey(s string) (DinoparcSessionKey, error) {
	if err := checkPattern("DinoparcSessionKey", reDinoparcSessionKey, s); err != nil {
		return "", err
	}
	return DinoparcSessionKey(s), nil
}

func (k DinoparcSessionKey) String() string { return string(k) }

// UnmarshalText は文字列を検証して読み込む。
func (k *DinoparcSessionKey) UnmarshalText(b []byte) error {
	return unmarshalParsed(k, b, ParseDinoparcSessionKey)
}

// DinoparcMachineID は広告トラッキングに送るマシンID。
type DinoparcMachineID string

// ParseDinoparcMachineID はマシンIDを検証する。
func ParseDinoparcMachineID(s string) (DinoparcMachineID, error) {
	if err := checkPattern("DinoparcMachineID", reDinoparcSessionKey, s); err != nil {
		return "", err
	}
	return DinoparcMachineID(s), nil
}

// DinoparcDinozName はディノズの名前。
type DinoparcDinozName string

// ParseDinoparcDinozName は名前を検証する。
func ParseDinoparcDinozName(s string) (DinoparcDinozName, error) {
	if err := checkPattern("DinoparcDinozName", reDinoparcDinozName, s); err != nil {
		return "", err
	}
	return DinoparcDinozName(s), nil
}

// UnmarshalText は文字列を検証して読み込む。
func (n *DinoparcDinozName) UnmarshalText(b []byte) error {
	return unmarshalParsed(n, b, ParseDinoparcDinozName)
}

// DinoparcDinozSkin はFlashに渡される外見コード。
type DinoparcDinozSkin string

// ParseDinoparcDinozSkin は外見コードを検証する。
func ParseDinoparcDinozSkin(s string) (DinoparcDinozSkin, error) {
	if err := checkPattern("DinoparcDinozSkin", reDinoparcDinozSkin, s); err != nil {
		return "", err
	}
	return DinoparcDinozSkin(s), nil
}

// DinoparcLocationID は0から22までの場所ID。
type DinoparcLocationID uint8

// NewDinoparcLocationID は範囲を検証する。
func NewDinoparcLocationID(n int) (DinoparcLocationID, error) {
	if err := checkRange("DinoparcLocationID", n, 0, 22); err != nil {
		return 0, err
	}
	return DinoparcLocationID(n), nil
}

// DinoparcSkillLevel は0から5までの技能レベル。
type DinoparcSkillLevel uint8

// NewDinoparcSkillLevel は範囲を検証する。
func NewDinoparcSkillLevel(n int) (DinoparcSkillLevel, error) {
	if err := checkRange("DinoparcSkillLevel", n, 0, 5); err != nil {
		return 0, err
	}
	return DinoparcSkillLevel(n), nil
}

// DinoparcSkill はディノズの技能。
type DinoparcSkill string

const (
	DinoparcSkillDexterity         DinoparcSkill = "Dexterity"
	DinoparcSkillIntelligence      DinoparcSkill = "Intelligence"
	DinoparcSkillPerception        DinoparcSkill = "Perception"
	DinoparcSkillStamina           DinoparcSkill = "Stamina"
	DinoparcSkillStrength          DinoparcSkill = "Strength"
	DinoparcSkillDig               DinoparcSkill = "Dig"
	DinoparcSkillMedicine          DinoparcSkill = "Medicine"
	DinoparcSkillSwim              DinoparcSkill = "Swim"
	DinoparcSkillCamouflage        DinoparcSkill = "Camouflage"
	DinoparcSkillClimb             DinoparcSkill = "Climb"
	DinoparcSkillMartialArts       DinoparcSkill = "MartialArts"
	DinoparcSkillSteal             DinoparcSkill = "Steal"
	DinoparcSkillProvoke           DinoparcSkill = "Provoke"
	DinoparcSkillBargain           DinoparcSkill = "Bargain"
	DinoparcSkillNavigation        DinoparcSkill = "Navigation"
	DinoparcSkillRun               DinoparcSkill = "Run"
	DinoparcSkillSurvival          DinoparcSkill = "Survival"
	DinoparcSkillStrategy          DinoparcSkill = "Strategy"
	DinoparcSkillMusic             DinoparcSkill = "Music"
	DinoparcSkillJump              DinoparcSkill = "Jump"
	DinoparcSkillCook              DinoparcSkill = "Cook"
	DinoparcSkillLuck              DinoparcSkill = "Luck"
	DinoparcSkillCounterattack     DinoparcSkill = "Counterattack"
	DinoparcSkillJuggle            DinoparcSkill = "Juggle"
	DinoparcSkillFireProtection    DinoparcSkill = "FireProtection"
	DinoparcSkillFireApprentice    DinoparcSkill = "FireApprentice"
	DinoparcSkillEarthApprentice   DinoparcSkill = "EarthApprentice"
	DinoparcSkillWaterApprentice   DinoparcSkill = "WaterApprentice"
	DinoparcSkillThunderApprentice DinoparcSkill = "ThunderApprentice"
	DinoparcSkillShadowPower       DinoparcSkill = "ShadowPower"
	DinoparcSkillTotemThief        DinoparcSkill = "TotemThief"
	DinoparcSkillSaboteur          DinoparcSkill = "Saboteur"
	DinoparcSkillSpy               DinoparcSkill = "Spy"
	DinoparcSkillMercenary         DinoparcSkill = "Mercenary"
)

// DinoparcDinozRace はディノズの種族。外見コードの先頭文字から決まる。
type DinoparcDinozRace string

var dinozRaceBySkinPrefix = map[byte]DinoparcDinozRace{
	'0': "Moueffe",
	'1': "Picori",
	'2': "Castivore",
	'3': "Sirain",
	'4': "Winks",
	'5': "Gorriloz",
	'6': "Cargou",
	'7': "Hippoclamp",
	'8': "Rokky",
	'9': "Pigmou",
	'A': "Wanwan",
	'B': "Goupignon",
	'C': "Kump",
	'D': "Pteroz",
	'E': "Santaz",
	'F': "Ouistiti",
	'G': "Korgon",
	'H': "Kabuki",
	'I': "Serpantin",
	'J': "Soufflet",
	'K': "Feross",
}

// DinoparcDinozRaceFromSkin は外見コードから種族を返す。
func DinoparcDinozRaceFromSkin(skin DinoparcDinozSkin) (DinoparcDinozRace, bool) {
	if skin == "" {
		return "", false
	}
	race, ok := dinozRaceBySkinPrefix[skin[0]]
	return race, ok
}

// DinoparcUserIDRef はサーバーとユーザーIDの組。
type DinoparcUserIDRef struct {
	Server DinoparcServer `json:"server"`
	ID     DinoparcUserID `json:"id"`
}

// Remote はリンク用の参照に変換する。
func (r DinoparcUserIDRef) Remote() RemoteUserRef {
	return RemoteUserRef{Game: RemoteGameDinoparc, Server: string(r.Server), ID: string(r.ID)}
}

// DinoparcDinozIDRef はサーバーとディノズIDの組。
type DinoparcDinozIDRef struct {
	Server DinoparcServer  `json:"server"`
	ID     DinoparcDinozID `json:"id"`
}

// DinoparcCredentials はログイン情報。
type DinoparcCredentials struct {
	Server   DinoparcServer
	Username DinoparcUsername
	Password DinoparcPassword
}

// ShortDinoparcUser はユーザーの最小限の情報。
type ShortDinoparcUser struct {
	Server   DinoparcServer   `json:"server"`
	ID       DinoparcUserID   `json:"id"`
	Username DinoparcUsername `json:"username"`
}

// Ref は参照を返す。
func (u ShortDinoparcUser) Ref() DinoparcUserIDRef {
	return DinoparcUserIDRef{Server: u.Server, ID: u.ID}
}

// DinoparcSession はリモートのログインセッション。
type DinoparcSession struct {
	CreatedAt  time.Time          `json:"ctime"`
	AccessedAt time.Time          `json:"atime"`
	Key        DinoparcSessionKey `json:"key"`
	User       ShortDinoparcUser  `json:"user"`
}

// ShortDinoparcDinozWithLocation はサイドバーに表示されるディノズ。
// 名前のないディノズは場所も表示されない。
type ShortDinoparcDinozWithLocation struct {
	Server   DinoparcServer      `json:"server"`
	ID       DinoparcDinozID     `json:"id"`
	Name     *DinoparcDinozName  `json:"name"`
	Location *DinoparcLocationID `json:"location"`
}

// Ref は参照を返す。
func (d ShortDinoparcDinozWithLocation) Ref() DinoparcDinozIDRef {
	return DinoparcDinozIDRef{Server: d.Server, ID: d.ID}
}

// ShortDinoparcDinozWithLevel は交換画面に表示されるディノズ。
type ShortDinoparcDinozWithLevel struct {
	Server DinoparcServer     `json:"server"`
	ID     DinoparcDinozID    `json:"id"`
	Name   *DinoparcDinozName `json:"name"`
	Level  uint16             `json:"level"`
}

// Ref は参照を返す。
func (d ShortDinoparcDinozWithLevel) Ref() DinoparcDinozIDRef {
	return DinoparcDinozIDRef{Server: d.Server, ID: d.ID}
}

// DinoparcSessionUser はログイン中のサイドバーに表示される情報。
type DinoparcSessionUser struct {
	User  ShortDinoparcUser                `json:"user"`
	Coins uint32                           `json:"coins"`
	Dinoz []ShortDinoparcDinozWithLocation `json:"dinoz"`
}

// DinoparcProfile は公開プロフィール。
type DinoparcProfile struct {
	User  ShortDinoparcUser `json:"user"`
	Dinoz []DinoparcDinozID `json:"dinoz"`
}

// DinoparcProfileResponse はプロフィールページの解析結果。
type DinoparcProfileResponse struct {
	SessionUser *DinoparcSessionUser `json:"session_user"`
	Profile     DinoparcProfile      `json:"profile"`
}

// DinoparcInventoryResponse は所持品ページの解析結果。
type DinoparcInventoryResponse struct {
	SessionUser DinoparcSessionUser       `json:"session_user"`
	Inventory   map[DinoparcItemID]uint32 `json:"inventory"`
}

// DinoparcCollection はコレクションの解放状況。
type DinoparcCollection struct {
	Rewards     []DinoparcRewardID      `json:"rewards"`
	EpicRewards []DinoparcEpicRewardKey `json:"epic_rewards"`
}

// DinoparcCollectionResponse はコレクションページの解析結果。
type DinoparcCollectionResponse struct {
	SessionUser DinoparcSessionUser `json:"session_user"`
	Collection  DinoparcCollection  `json:"collection"`
}

// DinoparcDinozElements は属性値。
type DinoparcDinozElements struct {
	Fire    uint16 `json:"fire"`
	Earth   uint16 `json:"earth"`
	Water   uint16 `json:"water"`
	Thunder uint16 `json:"thunder"`
	Air     uint16 `json:"air"`
}

// DinoparcDinozNamedFields は名前のあるディノズのみが持つ情報。
type DinoparcDinozNamedFields struct {
	Location     DinoparcLocationID                   `json:"location"`
	Life         IntPercentage                        `json:"life"`
	Experience   IntPercentage                        `json:"experience"`
	Danger       int16                                `json:"danger"`
	InTournament bool                                 `json:"in_tournament"`
	Elements     DinoparcDinozElements                `json:"elements"`
	Skills       map[DinoparcSkill]DinoparcSkillLevel `json:"skills"`
}

// DinoparcDinoz はディノズページの内容。名前のないディノズは Named が nil。
type DinoparcDinoz struct {
	Server DinoparcServer            `json:"server"`
	ID     DinoparcDinozID           `json:"id"`
	Name   *DinoparcDinozName        `json:"name"`
	Race   DinoparcDinozRace         `json:"race"`
	Skin   DinoparcDinozSkin         `json:"skin"`
	Level  uint16                    `json:"level"`
	Named  *DinoparcDinozNamedFields `json:"named"`
}

// Ref は参照を返す。
func (d DinoparcDinoz) Ref() DinoparcDinozIDRef {
	return DinoparcDinozIDRef{Server: d.Server, ID: d.ID}
}

// DinoparcDinozResponse はディノズページの解析結果。
type DinoparcDinozResponse struct {
	SessionUser DinoparcSessionUser `json:"session_user"`
	Dinoz       DinoparcDinoz       `json:"dinoz"`
}

// DinoparcExchangeWithResponse は交換ページの解析結果。
type DinoparcExchangeWithResponse struct {
	SessionUser DinoparcSessionUser           `json:"session_user"`
	OwnBills    uint32                        `json:"own_bills"`
	OwnDinoz    []ShortDinoparcDinozWithLevel `json:"own_dinoz"`
	OtherUser   ShortDinoparcUser             `json:"other_user"`
	OtherDinoz  []ShortDinoparcDinozWithLevel `json:"other_dinoz"`
}

// ArchivedDinoparcUser はアーカイブされたユーザー。ArchivedAt は最初にアーカイブされた時刻。
type ArchivedDinoparcUser struct {
	Server     DinoparcServer                             `json:"server"`
	ID         DinoparcUserID                             `json:"id"`
	ArchivedAt time.Time                                  `json:"archived_at"`
	Username   DinoparcUsername                           `json:"username"`
	Coins      *LatestTemporal[uint32]                    `json:"coins"`
	Bills      *LatestTemporal[uint32]                    `json:"bills"`
	Dinoz      *LatestTemporal[[]DinoparcDinozIDRef]      `json:"dinoz"`
	Inventory  *LatestTemporal[map[DinoparcItemID]uint32] `json:"inventory"`
	Collection *LatestTemporal[DinoparcCollection]        `json:"collection"`
}

// Short は ShortDinoparcUser に変換する。
func (u ArchivedDinoparcUser) Short() ShortDinoparcUser {
	return ShortDinoparcUser{Server: u.Server, ID: u.ID, Username: u.Username}
}

// ArchivedDinoparcDinoz はアーカイブされたディノズ。
type ArchivedDinoparcDinoz struct {
	Server       DinoparcServer                                        `json:"server"`
	ID           DinoparcDinozID                                       `json:"id"`
	ArchivedAt   time.Time                                             `json:"archived_at"`
	Name         *LatestTemporal[*DinoparcDinozName]                   `json:"name"`
	Owner        *LatestTemporal[DinoparcUserIDRef]                    `json:"owner"`
	Location     *LatestTemporal[DinoparcLocationID]                   `json:"location"`
	Race         *LatestTemporal[DinoparcDinozRace]                    `json:"race"`
	Skin         *LatestTemporal[DinoparcDinozSkin]                    `json:"skin"`
	Life         *LatestTemporal[IntPercentage]                        `json:"life"`
	Level        *LatestTemporal[uint16]                               `json:"level"`
	Experience   *LatestTemporal[IntPercentage]                        `json:"experience"`
	Danger       *LatestTemporal[int16]                                `json:"danger"`
	InTournament *LatestTemporal[bool]                                 `json:"in_tournament"`
	Elements     *LatestTemporal[DinoparcDinozElements]                `json:"elements"`
	Skills       *LatestTemporal[map[DinoparcSkill]DinoparcSkillLevel] `json:"skills"`
}

// EtwinDinoparcUser はアーカイブとリンク情報を合成したユーザー。
type EtwinDinoparcUser struct {
	ArchivedDinoparcUser
	Etwin VersionedEtwinLink `json:"etwin"`
}

// GetDinoparcUserOptions はユーザー取得の条件。
type GetDinoparcUserOptions struct {
	Server DinoparcServer
	ID     DinoparcUserID
	Time   *time.Time
}

// Ref は参照を返す。
func (o GetDinoparcUserOptions) Ref() DinoparcUserIDRef {
	return DinoparcUserIDRef{Server: o.Server, ID: o.ID}
}

// GetDinoparcDinozOptions はディノズ取得の条件。
type GetDinoparcDinozOptions struct {
	Server DinoparcServer
	ID     DinoparcDinozID
	Time   *time.Time
}

// StoredDinoparcSession はトークンストアに保存されたセッションキー。
type StoredDinoparcSession struct {
	Key        DinoparcSessionKey `json:"key"`
	User       DinoparcUserIDRef  `json:"user"`
	CreatedAt  time.Time          `json:"ctime"`
	AccessedAt time.Time          `json:"atime"`
}
