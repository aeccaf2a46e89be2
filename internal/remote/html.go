package remote

import (
	"bytes"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// selectorCache はコンパイル済みのセレクタを保持する。キーはCSSセレクタ文字列。
var selectorCache sync.Map

// Selector はCSSセレクタをコンパイルして返す。結果はキャッシュされる。
// セレクタはソース中の定数なので、不正な場合はpanicする。
func Selector(css string) goquery.Matcher {
	if m, ok := selectorCache.Load(css); ok {
		return m.(cascadia.Selector)
	}
	sel := cascadia.MustCompile(css)
	actual, _ := selectorCache.LoadOrStore(css, sel)
	return actual.(cascadia.Selector)
}

// ParseHTML はHTMLを解析する。
func ParseHTML(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, NewScraperError(CodeInvalidHTML, "%v", err)
	}
	return doc, nil
}

// ParseHTMLBytes はバイト列のHTMLを解析する。
func ParseHTMLBytes(b []byte) (*goquery.Document, error) {
	return ParseHTML(bytes.NewReader(b))
}

// Find は子孫要素からセレクタに一致する要素を返す。
func Find(s *goquery.Selection, css string) *goquery.Selection {
	return s.FindMatcher(Selector(css))
}

// Children は直下の子要素からセレクタに一致する要素を返す。
func Children(s *goquery.Selection, css string) *goquery.Selection {
	return s.ChildrenMatcher(Selector(css))
}

// SelectOne は子孫要素から一致する要素がちょうど1つであることを確認して返す。
func SelectOne(s *goquery.Selection, css string) (*goquery.Selection, error) {
	found := Find(s, css)
	if found.Length() != 1 {
		return nil, NewScraperError(CodeNonUniqueElement, "%q: %d matches", css, found.Length())
	}
	return found, nil
}

// SelectOneOpt は一致する要素が0個ならnil、1個ならその要素を返す。
func SelectOneOpt(s *goquery.Selection, css string) (*goquery.Selection, error) {
	found := Find(s, css)
	switch found.Length() {
	case 0:
		return nil, nil
	case 1:
		return found, nil
	default:
		return nil, NewScraperError(CodeTooManyElements, "%q: %d matches", css, found.Length())
	}
}

// ChildOne は直下の子要素から一致する要素がちょうど1つであることを確認して返す。
func ChildOne(s *goquery.Selection, css string) (*goquery.Selection, error) {
	found := Children(s, css)
	if found.Length() != 1 {
		return nil, NewScraperError(CodeNonUniqueElement, "> %q: %d matches", css, found.Length())
	}
	return found, nil
}

// OneText は要素の子ノードがちょうど1つのテキストノードであることを確認し、その内容を返す。
func OneText(s *goquery.Selection) (string, error) {
	if s.Length() != 1 {
		return "", NewScraperError(CodeNonUniqueText, "expected one element, got %d", s.Length())
	}
	n := s.Get(0)
	child := n.FirstChild
	if child == nil || child.Type != html.TextNode || child.NextSibling != nil {
		return "", NewScraperError(CodeNonUniqueText, "<%s> must contain exactly one text node", n.Data)
	}
	return child.Data, nil
}

// FirstText は子孫の最初の空でないテキストノードを前後の空白を除いて返す。
func FirstText(s *goquery.Selection) (string, bool) {
	if s.Length() == 0 {
		return "", false
	}
	return firstText(s.Get(0))
}

func firstText(n *html.Node) (string, bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if t := strings.TrimSpace(c.Data); t != "" {
				return t, true
			}
		case html.ElementNode:
			if t, ok := firstText(c); ok {
				return t, true
			}
		}
	}
	return "", false
}

// TextNodes は要素の直下にあるテキストノードを順に返す。
func TextNodes(s *goquery.Selection) []string {
	var texts []string
	if s.Length() == 0 {
		return texts
	}
	for c := s.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			texts = append(texts, c.Data)
		}
	}
	return texts
}

// ResolveHref はhref属性をベースURLに対して解決する。
func ResolveHref(base *url.URL, s *goquery.Selection) (*url.URL, bool) {
	href, ok := s.Attr("href")
	if !ok {
		return nil, false
	}
	u, err := base.Parse(href)
	if err != nil {
		return nil, false
	}
	return u, true
}
