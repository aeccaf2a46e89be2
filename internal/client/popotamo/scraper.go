package popotamo

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

func scrapeErr(code, format string, args ...any) *remote.ScraperError {
	return remote.NewScraperError(code, format, args...)
}

// ScrapeSessionUser はメニューのセッション欄からログイン中のユーザーを読み取る。
// セッション欄がなければゲストとして nil を返す。
func ScrapeSessionUser(doc *goquery.Document, base *url.URL) (*model.PopotamoSessionUser, error) {
	box := remote.Find(doc.Selection, "#menu table#sheet")
	switch box.Length() {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, scrapeErr(CodeDuplicateSessionBox, "%d session boxes", box.Length())
	}

	rewards := remote.Find(box, "div.rewards")
	if rewards.Length() != 1 {
		return nil, scrapeErr(CodeNonUniqueSessionUserRewards, "%d reward blocks", rewards.Length())
	}
	link := remote.Find(rewards, "a").First()
	if link.Length() == 0 {
		return nil, scrapeErr(CodeMissingSessionUserLink, "no link in rewards")
	}
	id, err := scrapeUserLinkID(link, base)
	if err != nil {
		return nil, err
	}
	text, err := remote.OneText(link)
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueSessionUserLinkText, "%v", err)
	}
	username, err := model.ParsePopotamoUsername(strings.TrimSpace(text))
	if err != nil {
		return nil, scrapeErr(CodeInvalidUsername, "%v", err)
	}
	return &model.PopotamoSessionUser{
		User: model.ShortPopotamoUser{Server: model.PopotamoServerFr, ID: id, Username: username},
	}, nil
}

// scrapeUserLinkID は /member/<id> の形式のリンクからIDを読み取る。
func scrapeUserLinkID(link *goquery.Selection, base *url.URL) (model.PopotamoUserID, error) {
	if _, ok := link.Attr("href"); !ok {
		return "", scrapeErr(CodeMissingLinkHref, "link without href")
	}
	u, ok := remote.ResolveHref(base, link)
	if !ok {
		return "", scrapeErr(CodeInvalidUserLink, "unparsable href")
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return "", scrapeErr(CodeInvalidUserLink, "%q", u.Path)
	}
	id, err := model.ParsePopotamoUserID(segments[1])
	if err != nil {
		return "", scrapeErr(CodeInvalidUserID, "%v", err)
	}
	return id, nil
}

// ScrapeProfile はメンバーページを解析する。
func ScrapeProfile(doc *goquery.Document, base *url.URL) (*model.PopotamoProfileResponse, error) {
	sessionUser, err := ScrapeSessionUser(doc, base)
	if err != nil {
		return nil, err
	}

	position := remote.Find(doc.Selection, "a.position")
	id, err := scrapeProfileID(position)
	if err != nil {
		return nil, err
	}
	username, err := scrapeProfileUsername(doc)
	if err != nil {
		return nil, err
	}
	rank, err := scrapeRank(position)
	if err != nil {
		return nil, err
	}
	score, err := scrapeScore(doc)
	if err != nil {
		return nil, err
	}
	return &model.PopotamoProfileResponse{
		SessionUser: sessionUser,
		Profile: model.PopotamoProfile{
			User:  model.ShortPopotamoUser{Server: model.PopotamoServerFr, ID: id, Username: username},
			Rank:  rank,
			Score: score,
		},
	}, nil
}

// scrapeProfileID は順位へのリンク (…?uid=<id>) の最初の "=" 以降をIDとして読む。
func scrapeProfileID(position *goquery.Selection) (model.PopotamoUserID, error) {
	href, ok := position.First().Attr("href")
	if !ok {
		return "", scrapeErr(CodeMissingProfileUserIDLink, "no a.position link")
	}
	_, raw, found := strings.Cut(href, "=")
	if !found {
		return "", scrapeErr(CodeMissingProfileUserIDLink, "%q", href)
	}
	if i := strings.IndexAny(raw, "&#"); i >= 0 {
		raw = raw[:i]
	}
	id, err := model.ParsePopotamoUserID(raw)
	if err != nil {
		return "", scrapeErr(CodeInvalidUserID, "%v", err)
	}
	return id, nil
}

// scrapeProfileUsername は h2.mainsheet の直下にある最後の空でないテキストの最初の語を読む。
func scrapeProfileUsername(doc *goquery.Document) (model.PopotamoUsername, error) {
	h2 := remote.Find(doc.Selection, "h2.mainsheet")
	if h2.Length() != 1 {
		return "", scrapeErr(CodeMissingH2Selector, "%d h2.mainsheet", h2.Length())
	}
	var last string
	for _, text := range remote.TextNodes(h2) {
		if t := strings.TrimSpace(text); t != "" {
			last = t
		}
	}
	fields := strings.Fields(last)
	if len(fields) == 0 {
		return "", scrapeErr(CodeMissingProfileUsername, "empty heading")
	}
	username, err := model.ParsePopotamoUsername(fields[0])
	if err != nil {
		return "", scrapeErr(CodeInvalidUsername, "%v", err)
	}
	return username, nil
}

func scrapeRank(position *goquery.Selection) (uint32, error) {
	if position.Length() != 1 {
		return 0, scrapeErr(CodeMissingRankSelector, "%d a.position", position.Length())
	}
	text, err := remote.OneText(position)
	if err != nil {
		return 0, scrapeErr(CodeMissingRank, "%v", err)
	}
	return secondUint(text, CodeMissingRank, CodeInvalidRank)
}

func scrapeScore(doc *goquery.Document) (uint32, error) {
	span := remote.Find(doc.Selection, "span.score")
	if span.Length() != 1 {
		return 0, scrapeErr(CodeMissingScoreSelector, "%d span.score", span.Length())
	}
	text, err := remote.OneText(span)
	if err != nil {
		return 0, scrapeErr(CodeMissingScore, "%v", err)
	}
	return secondUint(text, CodeMissingScore, CodeInvalidScore)
}

// secondUint は "Rang 12" のような文字列の2語目を数値として読む。
func secondUint(text, missingCode, invalidCode string) (uint32, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, scrapeErr(missingCode, "%q", text)
	}
	n, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, scrapeErr(invalidCode, "%q", fields[1])
	}
	return uint32(n), nil
}
