package remote

import (
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternaltwin/etwin/internal/model"
)

const sampleHTML = `<html lang="fr"><body>
<div class="menu"><div class="title">alice</div><span class="money">1 200</span></div>
<ul class="list"><li>a</li><li>b</li></ul>
<p class="mixed">texte <b>gras</b></p>
<p class="empty"></p>
<a class="link" href="?a=dino&amp;id=42">lien</a>
</body></html>`

func mustParse(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := ParseHTMLBytes([]byte(sampleHTML))
	require.NoError(t, err)
	return doc
}

// TestSelector_Cached はコンパイル済みセレクタが再利用されることを検証する。
func TestSelector_Cached(t *testing.T) {
	a := Selector("div.menu > div.title")
	b := Selector("div.menu > div.title")
	doc := mustParse(t)
	assert.Equal(t, 1, doc.FindMatcher(a).Length())
	assert.Equal(t, doc.FindMatcher(a).Text(), doc.FindMatcher(b).Text())
}

// TestSelector_PanicsOnInvalid は不正なセレクタでpanicすることを検証する。
func TestSelector_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { Selector("div[") })
}

func TestSelectOne(t *testing.T) {
	doc := mustParse(t)

	menu, err := SelectOne(doc.Selection, "div.menu")
	require.NoError(t, err)
	assert.Equal(t, 1, menu.Length())

	_, err = SelectOne(doc.Selection, "ul.list > li")
	require.Error(t, err)
	se, ok := AsScraperError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNonUniqueElement, se.Code)
	assert.Equal(t, model.KindRemoteUnexpectedResponse, model.KindOf(err))

	_, err = SelectOne(doc.Selection, "div.absent")
	require.Error(t, err)
}

func TestSelectOneOpt(t *testing.T) {
	doc := mustParse(t)

	absent, err := SelectOneOpt(doc.Selection, "div.absent")
	require.NoError(t, err)
	assert.Nil(t, absent)

	title, err := SelectOneOpt(doc.Selection, "div.title")
	require.NoError(t, err)
	require.NotNil(t, title)

	_, err = SelectOneOpt(doc.Selection, "ul.list > li")
	se, ok := AsScraperError(err)
	require.True(t, ok)
	assert.Equal(t, CodeTooManyElements, se.Code)
}

func TestChildOne(t *testing.T) {
	doc := mustParse(t)
	menu, err := SelectOne(doc.Selection, "div.menu")
	require.NoError(t, err)

	title, err := ChildOne(menu, "div.title")
	require.NoError(t, err)
	assert.Equal(t, "alice", title.Text())

	_, err = ChildOne(doc.Selection, "div.title")
	assert.Error(t, err, "孫要素は直下の子として扱わないこと")
}

// TestOneText はテキストノードがちょうど1つの場合のみ成功することを検証する。
func TestOneText(t *testing.T) {
	doc := mustParse(t)

	text, err := OneText(Find(doc.Selection, "div.title"))
	require.NoError(t, err)
	assert.Equal(t, "alice", text)

	_, err = OneText(Find(doc.Selection, "p.mixed"))
	assert.Error(t, err)
	_, err = OneText(Find(doc.Selection, "p.empty"))
	assert.Error(t, err)
	_, err = OneText(Find(doc.Selection, "ul.list > li"))
	assert.Error(t, err)
}

func TestFirstTextAndTextNodes(t *testing.T) {
	doc := mustParse(t)

	text, ok := FirstText(Find(doc.Selection, "p.mixed"))
	require.True(t, ok)
	assert.Equal(t, "texte", text)

	_, ok = FirstText(Find(doc.Selection, "p.empty"))
	assert.False(t, ok)

	assert.Equal(t, []string{"texte "}, TextNodes(Find(doc.Selection, "p.mixed")))
}

func TestResolveHref(t *testing.T) {
	doc := mustParse(t)
	base, _ := url.Parse("http://www.dinoparc.com/")

	u, ok := ResolveHref(base, Find(doc.Selection, "a.link"))
	require.True(t, ok)
	assert.Equal(t, "www.dinoparc.com", u.Host)
	assert.Equal(t, "dino", u.Query().Get("a"))
	assert.Equal(t, "42", u.Query().Get("id"))

	_, ok = ResolveHref(base, Find(doc.Selection, "p.mixed"))
	assert.False(t, ok)
}
