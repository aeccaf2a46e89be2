package model

// HammerfestForumThemeID はフォーラムのテーマID。
type HammerfestForumThemeID string

// ParseHammerfestForumThemeID は100未満の10進数を受け付ける。
func ParseHammerfestForumThemeID(s string) (HammerfestForumThemeID, error) {
	if _, err := checkDecimal("HammerfestForumThemeID", s, 0, 100); err != nil {
		return "", err
	}
	return HammerfestForumThemeID(s), nil
}

// HammerfestForumThreadID はスレッドID。
type HammerfestForumThreadID string

// ParseHammerfestForumThreadID は10億未満の10進数を受け付ける。
func ParseHammerfestForumThreadID(s string) (HammerfestForumThreadID, error) {
	if _, err := checkDecimal("HammerfestForumThreadID", s, 0, maxDecimalID); err != nil {
		return "", err
	}
	return HammerfestForumThreadID(s), nil
}

// HammerfestForumMessageID は投稿ID。
type HammerfestForumMessageID string

// ParseHammerfestForumMessageID は10億未満の10進数を受け付ける。
func ParseHammerfestForumMessageID(s string) (HammerfestForumMessageID, error) {
	if _, err := checkDecimal("HammerfestForumMessageID", s, 0, maxDecimalID); err != nil {
		return "", err
	}
	return HammerfestForumMessageID(s), nil
}

// HammerfestForumThemeTitle はテーマ名。
type HammerfestForumThemeTitle string

// ParseHammerfestForumThemeTitle はテーマ名を検証する。
func ParseHammerfestForumThemeTitle(s string) (HammerfestForumThemeTitle, error) {
	if err := checkPattern("HammerfestForumThemeTitle", reHammerfestTitle, s); err != nil {
		return "", err
	}
	return HammerfestForumThemeTitle(s), nil
}

// HammerfestForumThemeDescription はテーマの説明。
type HammerfestForumThemeDescription string

// ParseHammerfestForumThemeDescription は説明を検証する。
func ParseHammerfestForumThemeDescription(s string) (HammerfestForumThemeDescription, error) {
	if err := checkPattern("HammerfestForumThemeDescription", reHammerfestDescription, s); err != nil {
		return "", err
	}
	return HammerfestForumThemeDescription(s), nil
}

// HammerfestForumThreadTitle はスレッド名。
type HammerfestForumThreadTitle string

// ParseHammerfestForumThreadTitle はスレッド名を検証する。
func ParseHammerfestForumThreadTitle(s string) (HammerfestForumThreadTitle, error) {
	if err := checkPattern("HammerfestForumThreadTitle", reHammerfestTitle, s); err != nil {
		return "", err
	}
	return HammerfestForumThreadTitle(s), nil
}

// HammerfestForumRole は投稿者の役割。
type HammerfestForumRole string

const (
	HammerfestForumRoleNone          HammerfestForumRole = "None"
	HammerfestForumRoleModerator     HammerfestForumRole = "Moderator"
	HammerfestForumRoleAdministrator HammerfestForumRole = "Administrator"
)

// HammerfestDate は年を含まない日付。Weekday は月曜日が1、日曜日が7。
type HammerfestDate struct {
	Month   uint8 `json:"month"`
	Day     uint8 `json:"day"`
	Weekday uint8 `json:"weekday"`
}

// HammerfestDateTime は年を含まない日時。
type HammerfestDateTime struct {
	Date   HammerfestDate `json:"date"`
	Hour   uint8          `json:"hour"`
	Minute uint8          `json:"minute"`
}

// ShortHammerfestForumTheme はテーマの最小限の情報。
type ShortHammerfestForumTheme struct {
	Server   HammerfestServer          `json:"server"`
	ID       HammerfestForumThemeID    `json:"id"`
	Name     HammerfestForumThemeTitle `json:"name"`
	IsPublic bool                      `json:"is_public"`
}

// HammerfestForumTheme はテーマ一覧の項目。
type HammerfestForumTheme struct {
	Short       ShortHammerfestForumTheme       `json:"short"`
	Description HammerfestForumThemeDescription `json:"description"`
}

// ShortHammerfestForumThread はスレッドの最小限の情報。
type ShortHammerfestForumThread struct {
	Server   HammerfestServer           `json:"server"`
	ID       HammerfestForumThreadID    `json:"id"`
	Name     HammerfestForumThreadTitle `json:"name"`
	IsClosed bool                       `json:"is_closed"`
}

// HammerfestForumThread はテーマページのスレッド行。LastMessageDate は固定スレッドでは nil。
type HammerfestForumThread struct {
	Short           ShortHammerfestForumThread `json:"short"`
	Author          ShortHammerfestUser        `json:"author"`
	AuthorRole      HammerfestForumRole        `json:"author_role"`
	IsSticky        bool                       `json:"is_sticky"`
	LastMessageDate *HammerfestDate            `json:"last_message_date"`
	ReplyCount      uint16                     `json:"reply_count"`
}

// PageCount はスレッドのページ数を返す。1ページ15件。
func (t HammerfestForumThread) PageCount() uint16 {
	return (t.ReplyCount + 1 + 14) / 15
}

// HammerfestForumThreadListing はテーマページのスレッド一覧。
type HammerfestForumThreadListing struct {
	Page1 uint16                  `json:"page1"`
	Pages uint16                  `json:"pages"`
	Items []HammerfestForumThread `json:"items"`
}

// HammerfestForumThemePage はテーマページの解析結果。
type HammerfestForumThemePage struct {
	SessionUser *HammerfestSessionUser       `json:"session_user"`
	Theme       ShortHammerfestForumTheme    `json:"theme"`
	Sticky      []HammerfestForumThread      `json:"sticky"`
	Threads     HammerfestForumThreadListing `json:"threads"`
}

// HammerfestForumPostAuthor は投稿者の情報。
type HammerfestForumPostAuthor struct {
	User        ShortHammerfestUser   `json:"user"`
	HasCarrot   bool                  `json:"has_carrot"`
	LadderLevel HammerfestLadderLevel `json:"ladder_level"`
	Rank        *uint32               `json:"rank"`
	Role        HammerfestForumRole   `json:"role"`
}

// HammerfestForumPost はスレッドの投稿。Content はサニタイズ済みHTML。
type HammerfestForumPost struct {
	ID      *HammerfestForumMessageID `json:"id"`
	Author  HammerfestForumPostAuthor `json:"author"`
	CTime   HammerfestDateTime        `json:"ctime"`
	Content string                    `json:"content"`
}

// HammerfestForumPostListing はスレッドページの投稿一覧。
type HammerfestForumPostListing struct {
	Page1 uint16                `json:"page1"`
	Pages uint16                `json:"pages"`
	Items []HammerfestForumPost `json:"items"`
}

// HammerfestForumThreadPage はスレッドページの解析結果。
type HammerfestForumThreadPage struct {
	SessionUser *HammerfestSessionUser     `json:"session_user"`
	Theme       ShortHammerfestForumTheme  `json:"theme"`
	Thread      ShortHammerfestForumThread `json:"thread"`
	Messages    HammerfestForumPostListing `json:"messages"`
}

// HammerfestForumHome はフォーラムのテーマ一覧ページの解析結果。
type HammerfestForumHome struct {
	SessionUser *HammerfestSessionUser `json:"session_user"`
	Themes      []HammerfestForumTheme `json:"themes"`
}
