package dinorpg

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

const (
	CodeUnexpectedResponse    = "UnexpectedResponse"
	CodeFailedServerDetection = "FailedServerDetection"
	CodeServerMismatch        = "ServerMismatch"
	CodeNonUniqueProfileName  = "NonUniqueProfileName"
	CodeInvalidDisplayName    = "InvalidDisplayName"
)

// serversByLang は html[lang] の値とサーバーの対応。
var serversByLang = map[string]model.DinorpgServer{
	"fr": model.DinorpgServerFr,
	"en": model.DinorpgServerEn,
	"es": model.DinorpgServerEs,
}

// ScrapeServer は html[lang] からサーバーを判定する。"en-US" のような地域付きの値も受け付ける。
func ScrapeServer(doc *goquery.Document) (model.DinorpgServer, error) {
	lang, ok := doc.Find("html").Attr("lang")
	if !ok {
		return "", remote.NewScraperError(CodeFailedServerDetection, "missing html[lang]")
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexByte(lang, '-'); i >= 0 {
		lang = lang[:i]
	}
	server, ok := serversByLang[lang]
	if !ok {
		return "", remote.NewScraperError(CodeFailedServerDetection, "unknown lang %q", lang)
	}
	return server, nil
}

// ScrapeProfile はプロフィールページを解析する。
// プロフィールのヘッダー (#profile .header h1) がない場合は存在しないユーザーとして nil を返す。
func ScrapeProfile(doc *goquery.Document, ref model.DinorpgUserIDRef) (*model.DinorpgProfile, error) {
	server, err := ScrapeServer(doc)
	if err != nil {
		return nil, err
	}
	if server != ref.Server {
		return nil, remote.NewScraperError(CodeServerMismatch, "expected %s, got %s", ref.Server, server)
	}

	header, err := remote.SelectOneOpt(doc.Selection, "#profile .header h1")
	if err != nil {
		return nil, remote.NewScraperError(CodeNonUniqueProfileName, "%v", err)
	}
	if header == nil {
		return nil, nil
	}
	name, err := model.ParseTwinoidUserDisplayName(strings.Join(strings.Fields(header.Text()), " "))
	if err != nil {
		return nil, remote.NewScraperError(CodeInvalidDisplayName, "%v", err)
	}
	return &model.DinorpgProfile{
		User: model.ShortDinorpgUser{Server: server, ID: ref.ID, DisplayName: name},
	}, nil
}
