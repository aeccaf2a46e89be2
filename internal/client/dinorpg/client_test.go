package dinorpg

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

func profilePage(lang, header string) string {
	return `<!DOCTYPE html><html lang="` + lang + `"><head><title>DinoRPG</title></head><body>` +
		`<div id="profile"><div class="header">` + header + `</div></div></body></html>`
}

func parse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := remote.ParseHTML(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

// TestScrapeServer は html[lang] からサーバーを判定することを検証する。
func TestScrapeServer(t *testing.T) {
	tests := []struct {
		lang string
		want model.DinorpgServer
	}{
		{"fr", model.DinorpgServerFr},
		{"en-US", model.DinorpgServerEn},
		{"ES", model.DinorpgServerEs},
	}
	for _, tt := range tests {
		server, err := ScrapeServer(parse(t, profilePage(tt.lang, "")))
		require.NoError(t, err, tt.lang)
		assert.Equal(t, tt.want, server, tt.lang)
	}

	_, err := ScrapeServer(parse(t, profilePage("de", "")))
	se, ok := remote.AsScraperError(err)
	require.True(t, ok)
	assert.Equal(t, CodeFailedServerDetection, se.Code)
}

// TestScrapeProfile はヘッダーの表示名を空白を詰めて読み取ることを検証する。
func TestScrapeProfile(t *testing.T) {
	ref := model.DinorpgUserIDRef{Server: model.DinorpgServerFr, ID: "123"}

	profile, err := ScrapeProfile(parse(t, profilePage("fr", "<h1>\n  Demurgos <span>Grand</span>\n</h1>")), ref)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, model.ShortDinorpgUser{Server: model.DinorpgServerFr, ID: "123", DisplayName: "Demurgos Grand"}, profile.User)

	profile, err = ScrapeProfile(parse(t, profilePage("fr", "")), ref)
	require.NoError(t, err)
	assert.Nil(t, profile, "ヘッダーがなければ存在しないユーザーとして扱うこと")

	_, err = ScrapeProfile(parse(t, profilePage("en", "<h1>Demurgos</h1>")), ref)
	se, ok := remote.AsScraperError(err)
	require.True(t, ok)
	assert.Equal(t, CodeServerMismatch, se.Code)
}

// TestHTTPClient_GetProfile はプロフィールページのURLと404の扱いを検証する。
func TestHTTPClient_GetProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		if r.URL.Path == "/user/123" {
			_, _ = w.Write([]byte(profilePage("fr", "<h1>Demurgos</h1>")))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)
	root, err := url.Parse(ts.URL + "/")
	require.NoError(t, err)
	c := NewHTTPClient(remote.NewHTTPClient(UserAgent, remote.Options{}), nil, nil).WithRoot(model.DinorpgServerFr, root)

	resp, err := c.GetProfile(context.Background(), model.DinorpgUserIDRef{Server: model.DinorpgServerFr, ID: "123"})
	require.NoError(t, err)
	assert.Equal(t, model.TwinoidUserDisplayName("Demurgos"), resp.Profile.User.DisplayName)

	resp, err = c.GetProfile(context.Background(), model.DinorpgUserIDRef{Server: model.DinorpgServerFr, ID: "9"})
	require.NoError(t, err)
	assert.Nil(t, resp)
}
