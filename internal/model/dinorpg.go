package model

// DinorpgServer はDinoRPGのサーバー。
type DinorpgServer string

const (
	DinorpgServerFr DinorpgServer = "www.dinorpg.com"
	DinorpgServerEn DinorpgServer = "en.dinorpg.com"
	DinorpgServerEs DinorpgServer = "es.dinorpg.com"
)

// ParseDinorpgServer はホスト名からサーバーを返す。
func ParseDinorpgServer(s string) (DinorpgServer, error) {
	switch DinorpgServer(s) {
	case DinorpgServerFr, DinorpgServerEn, DinorpgServerEs:
		return DinorpgServer(s), nil
	}
	return "", &ParseError{Type: "DinorpgServer", Input: s}
}

// DinorpgUserID はDinoRPGのユーザーID。
type DinorpgUserID string

// ParseDinorpgUserID は10億未満の10進数を受け付ける。
func ParseDinorpgUserID(s string) (DinorpgUserID, error) {
	if _, err := checkDecimal("DinorpgUserID", s, 0, maxDecimalID); err != nil {
		return "", err
	}
	return DinorpgUserID(s), nil
}

// DinorpgUserIDRef はサーバーとユーザーIDの組。
type DinorpgUserIDRef struct {
	Server DinorpgServer `json:"server"`
	ID     DinorpgUserID `json:"id"`
}

// ShortDinorpgUser はユーザーの最小限の情報。表示名はTwinoidのもの。
type ShortDinorpgUser struct {
	Server      DinorpgServer          `json:"server"`
	ID          DinorpgUserID          `json:"id"`
	DisplayName TwinoidUserDisplayName `json:"display_name"`
}

// DinorpgProfile は公開プロフィール。
type DinorpgProfile struct {
	User ShortDinorpgUser `json:"user"`
}

// DinorpgProfileResponse はプロフィールページの解析結果。
type DinorpgProfileResponse struct {
	Profile DinorpgProfile `json:"profile"`
}
