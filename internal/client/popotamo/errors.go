package popotamo

// スクレイパーのエラーコード
const (
	CodeUnexpectedResponse           = "UnexpectedResponse"
	CodeDuplicateSessionBox          = "DuplicateSessionBox"
	CodeNonUniqueSessionUserRewards  = "NonUniqueSessionUserRewards"
	CodeMissingSessionUserLink       = "MissingSessionUserLink"
	CodeNonUniqueSessionUserLinkText = "NonUniqueSessionUserLinkText"
	CodeMissingLinkHref              = "MissingLinkHref"
	CodeInvalidUserLink              = "InvalidUserLink"
	CodeInvalidUserID                = "InvalidUserId"
	CodeInvalidUsername              = "InvalidUsername"
	CodeMissingProfileUserIDLink     = "MissingProfileUserIdLink"
	CodeMissingH2Selector            = "MissingH2Selector"
	CodeMissingProfileUsername       = "MissingProfileUsername"
	CodeMissingRankSelector          = "MissingRankSelector"
	CodeMissingRank                  = "MissingRank"
	CodeInvalidRank                  = "InvalidRank"
	CodeMissingScoreSelector         = "MissingScoreSelector"
	CodeMissingScore                 = "MissingScore"
	CodeInvalidScore                 = "InvalidScore"
)
