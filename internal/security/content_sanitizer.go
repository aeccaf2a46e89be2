package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はHammerfestフォーラムの投稿HTMLをアーカイブ前にサニタイズする。
type ContentSanitizer interface {
	// Sanitize は許可リストにない要素と属性を除去したHTMLを返す。
	// 空白のみの入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はUGCポリシーをもとにフォーラム用のポリシーを構築する。
//   - 顔文字は /img/forum/smile/... のような相対URLの画像で書かれるため、相対URLを許可する
//   - 文字色の指定に使われる span の class を許可する
//   - リンクには rel="nofollow" を付与する
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowRelativeURLs(true)
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("span")
	p.RequireNoFollowOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}
