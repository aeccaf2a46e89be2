package popotamo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

var testBase = &url.URL{Scheme: "http", Host: "www.popotamo.com", Path: "/member/42"}

const sessionBox = `<div id="menu"><table id="sheet"><tr><td>` +
	`<div class="rewards"><a href="/member/7">alice</a><a href="/trophies">Trophées</a></div>` +
	`</td></tr></table></div>`

func memberPage(menu, sheet string) string {
	return `<html><body>` + menu + `<div id="content">` + sheet + `</div></body></html>`
}

const memberSheet = `<h2 class="mainsheet"><img src="/img/avatar.png"/> <span>Fiche</span>
	bob
</h2>
<a class="position" href="/ranking?uid=42">Rang 12</a>
<span class="score">Score 3456</span>`

func parse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := remote.ParseHTML(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func requireScraperCode(t *testing.T, err error, code string) {
	t.Helper()
	se, ok := remote.AsScraperError(err)
	require.True(t, ok, "ScraperErrorであること: %v", err)
	assert.Equal(t, code, se.Code)
}

// TestScrapeProfile はプロフィールとセッション欄を読み取ることを検証する。
func TestScrapeProfile(t *testing.T) {
	resp, err := ScrapeProfile(parse(t, memberPage(sessionBox, memberSheet)), testBase)
	require.NoError(t, err)
	require.NotNil(t, resp.SessionUser)
	assert.Equal(t, model.ShortPopotamoUser{Server: model.PopotamoServerFr, ID: "7", Username: "alice"}, resp.SessionUser.User)
	assert.Equal(t, model.PopotamoProfile{
		User:  model.ShortPopotamoUser{Server: model.PopotamoServerFr, ID: "42", Username: "bob"},
		Rank:  12,
		Score: 3456,
	}, resp.Profile)
}

// TestScrapeProfile_Guest はセッション欄がなければゲストとして扱うことを検証する。
func TestScrapeProfile_Guest(t *testing.T) {
	resp, err := ScrapeProfile(parse(t, memberPage("", memberSheet)), testBase)
	require.NoError(t, err)
	assert.Nil(t, resp.SessionUser)
}

// TestScrapeProfile_Errors は不正なページのエラーコードを検証する。
func TestScrapeProfile_Errors(t *testing.T) {
	tests := []struct {
		name string
		page string
		code string
	}{
		{
			name: "セッション欄が重複",
			page: memberPage(sessionBox+sessionBox, memberSheet),
			code: CodeDuplicateSessionBox,
		},
		{
			name: "報酬欄がない",
			page: memberPage(`<div id="menu"><table id="sheet"></table></div>`, memberSheet),
			code: CodeNonUniqueSessionUserRewards,
		},
		{
			name: "ユーザーリンクがない",
			page: memberPage(`<div id="menu"><table id="sheet"><tr><td><div class="rewards"></div></td></tr></table></div>`, memberSheet),
			code: CodeMissingSessionUserLink,
		},
		{
			name: "見出しがない",
			page: memberPage("", `<a class="position" href="/ranking?uid=42">Rang 12</a><span class="score">Score 1</span>`),
			code: CodeMissingH2Selector,
		},
		{
			name: "順位リンクがない",
			page: memberPage("", `<h2 class="mainsheet">bob</h2><span class="score">Score 1</span>`),
			code: CodeMissingProfileUserIDLink,
		},
		{
			name: "順位が数値でない",
			page: memberPage("", `<h2 class="mainsheet">bob</h2><a class="position" href="/ranking?uid=42">Rang ?</a><span class="score">Score 1</span>`),
			code: CodeInvalidRank,
		},
		{
			name: "スコアがない",
			page: memberPage("", `<h2 class="mainsheet">bob</h2><a class="position" href="/ranking?uid=42">Rang 3</a>`),
			code: CodeMissingScoreSelector,
		},
		{
			name: "スコアの語が足りない",
			page: memberPage("", `<h2 class="mainsheet">bob</h2><a class="position" href="/ranking?uid=42">Rang 3</a><span class="score">Score</span>`),
			code: CodeMissingScore,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScrapeProfile(parse(t, tt.page), testBase)
			requireScraperCode(t, err, tt.code)
		})
	}
}

// TestHTTPClient_GetProfile はメンバーページのURLと転送の扱いを検証する。
func TestHTTPClient_GetProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/member/42" {
			_, _ = w.Write([]byte(memberPage("", memberSheet)))
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}))
	t.Cleanup(ts.Close)
	root, err := url.Parse(ts.URL + "/")
	require.NoError(t, err)
	c := NewHTTPClient(remote.NewHTTPClient(UserAgent, remote.Options{}), nil, nil).WithRoot(root)

	resp, err := c.GetProfile(context.Background(), model.PopotamoUserIDRef{Server: model.PopotamoServerFr, ID: "42"})
	require.NoError(t, err)
	assert.Equal(t, uint32(3456), resp.Profile.Score)

	resp, err = c.GetProfile(context.Background(), model.PopotamoUserIDRef{Server: model.PopotamoServerFr, ID: "1"})
	require.NoError(t, err)
	assert.Nil(t, resp, "存在しないメンバーは nil を返すこと")
}
