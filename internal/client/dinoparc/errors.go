package dinoparc

import (
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

// スクレイパーのエラーコード
const (
	CodeUnexpectedLoginResponse             = "UnexpectedLoginResponse"
	CodeMissingSessionCookie                = "MissingSessionCookie"
	CodeInvalidSessionCookie                = "InvalidSessionCookie"
	CodeUnexpectedAdTrackingResponse        = "UnexpectedAdTrackingResponse"
	CodeUnexpectedLoginConfirmationResponse = "UnexpectedLoginConfirmationResponse"
	CodeUnexpectedPageResponse              = "UnexpectedPageResponse"
	CodeNonUniqueHTML                       = "NonUniqueHtml"
	CodeServerDetectionFailure              = "ServerDetectionFailure"
	CodeServerMismatch                      = "ServerMismatch"
	CodeMissingSessionUser                  = "MissingSessionUser"
	CodeNonUniqueMenu                       = "NonUniqueMenu"
	CodeNonUniqueUsername                   = "NonUniqueUsername"
	CodeInvalidUsername                     = "InvalidUsername"
	CodeNonUniqueCoinSpan                   = "NonUniqueCoinSpan"
	CodeInvalidCoinCount                    = "InvalidCoinCount"
	CodeNonUniqueDinozList                  = "NonUniqueDinozList"
	CodeNonUniqueDinozLink                  = "NonUniqueDinozLink"
	CodeInvalidLinkHref                     = "InvalidLinkHref"
	CodeNonUniqueDinoparcRequest            = "NonUniqueDinoparcRequest"
	CodeNonUniqueIDInLink                   = "NonUniqueIdInLink"
	CodeInvalidUserID                       = "InvalidUserId"
	CodeInvalidDinozID                      = "InvalidDinozId"
	CodeNonUniqueDinozName                  = "NonUniqueDinozName"
	CodeInvalidDinozName                    = "InvalidDinozName"
	CodeNonUniqueLocationName               = "NonUniqueLocationName"
	CodeInvalidLocationName                 = "InvalidLocationName"
	CodeUnexpectedCashFrameArgument         = "UnexpectedCashFrameArgument"
	CodeNonUniqueCashFrameCall              = "NonUniqueCashFrameCall"
	CodeNonUniqueInventory                  = "NonUniqueInventory"
	CodeNonUniqueItemHelpLink               = "NonUniqueItemHelpLink"
	CodeInvalidItemID                       = "InvalidItemId"
	CodeNonUniqueItemCount                  = "NonUniqueItemCount"
	CodeInvalidItemCount                    = "InvalidItemCount"
	CodeDuplicateRegularRewardBox           = "DuplicateRegularRewardBox"
	CodeDuplicateEpicRewardBox              = "DuplicateEpicRewardBox"
	CodeUnexpectedRewardBox                 = "UnexpectedRewardBox"
	CodeMultipleEpicRewardImages            = "MultipleEpicRewardImages"
	CodeInvalidEpicReward                   = "InvalidEpicReward"
	CodeNonUniqueExchangeTable              = "NonUniqueExchangeTable"
	CodeUnexpectedExchangeTableLayout       = "UnexpectedExchangeTableLayout"
	CodeNonUniqueExchangeTarget             = "NonUniqueExchangeTarget"
	CodeNonUniqueBillCount                  = "NonUniqueBillCount"
	CodeNonUniqueExchangeDinozList          = "NonUniqueExchangeDinozList"
	CodeInvalidExchangeDinoz                = "InvalidExchangeDinoz"
	CodeNonUniqueContentPane                = "NonUniqueContentPane"
	CodeNonUniqueDinozView                  = "NonUniqueDinozView"
	CodeNonUniqueDinozSkin                  = "NonUniqueDinozSkin"
	CodeInvalidDinozSkin                    = "InvalidDinozSkin"
	CodeNonUniqueDinozDefTable              = "NonUniqueDinozDefTable"
	CodeInvalidDinozLife                    = "InvalidDinozLife"
	CodeInvalidDinozLevel                   = "InvalidDinozLevel"
	CodeInvalidDinozExperience              = "InvalidDinozExperience"
	CodeInvalidDinozDanger                  = "InvalidDinozDanger"
	CodeInvalidDinozElements                = "InvalidDinozElements"
	CodeInvalidDinozSkill                   = "InvalidDinozSkill"
	CodeNonUniqueActionsPane                = "NonUniqueActionsPane"
	CodeNonUniquePlacePane                  = "NonUniquePlacePane"
	CodeNonUniqueDinozNameForm              = "NonUniqueDinozNameForm"
	CodeInvalidProfile                      = "InvalidProfile"
)

func scrapeErr(code, format string, args ...any) *remote.ScraperError {
	return remote.NewScraperError(code, format, args...)
}

// errSelfExchange は自分自身との交換ページを要求したことを表す。
var errSelfExchange = model.NewKindError(model.KindValidation, "SelfExchange", nil)
