package hammerfest

import (
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

// スクレイパーのエラーコード
const (
	CodeUnexpectedResponse           = "UnexpectedResponse"
	CodeMissingSessionCookie         = "MissingSessionCookie"
	CodeInvalidSessionCookie         = "InvalidSessionCookie"
	CodeHTMLFragmentNotFound         = "HtmlFragmentNotFound"
	CodeTooManyHTMLFragments         = "TooManyHtmlFragments"
	CodeInvalidInteger               = "InvalidInteger"
	CodeInvalidDate                  = "InvalidDate"
	CodeInvalidEmail                 = "InvalidEmail"
	CodeInvalidPagination            = "InvalidPagination"
	CodeInvalidItemID                = "InvalidItemId"
	CodeInvalidUserID                = "InvalidUserId"
	CodeInvalidForumThemeID          = "InvalidForumThemeId"
	CodeInvalidForumThemeTitle       = "InvalidForumThemeTitle"
	CodeInvalidForumThemeDescription = "InvalidForumThemeDescription"
	CodeInvalidForumThreadID         = "InvalidForumThreadId"
	CodeInvalidForumThreadTitle      = "InvalidForumThreadTitle"
	CodeInvalidForumPostID           = "InvalidForumPostId"
	CodeInvalidUsername              = "InvalidUsername"
	CodeUnknownQuestName             = "UnknownQuestName"
	CodeUnknownLadderLevelClass      = "UnknownLadderLevelClass"
	CodeUnknownUserRole              = "UnknownUserRole"
	CodeUnexpectedThreadKind         = "UnexpectedThreadKind"
	CodeFailedServerDetection        = "FailedServerDetection"
	CodeServerMismatch               = "ServerMismatch"
	CodeNonUniqueTopBar              = "NonUniqueTopBar"
	CodeTooManyPlayerInfo            = "TooManyPlayerInfo"
	CodeNonUniqueSignInButton        = "NonUniqueSignInButton"
	CodeNonUniquePlayerText          = "NonUniquePlayerText"
	CodeNonUniqueTokenLink           = "NonUniqueTokenLink"
	CodeNonUniqueTokenText           = "NonUniqueTokenText"
	CodeMissingSessionUser           = "MissingSessionUser"
)

func scrapeErr(code, format string, args ...any) *remote.ScraperError {
	return remote.NewScraperError(code, format, args...)
}

var (
	// errEvni はサーバーが内部エラーのページ(h2.evni)を返したことを表す。
	// 一時的な障害として再試行の対象にする。
	errEvni = model.NewKindError(model.KindRemoteUnavailable, "Evni", nil)
	// errLoginSessionRevoked はログイン直後のセッションがゲストとして扱われたことを表す。
	errLoginSessionRevoked = model.NewKindError(model.KindInvalidCredentials, "LoginSessionRevoked", nil)
	// errSessionExpired は認証が必要なページをゲストとして表示されたことを表す。
	errSessionExpired = model.NewKindError(model.KindInvalidCredentials, "SessionExpired", nil)
)
