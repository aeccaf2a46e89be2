package hammerfest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/eternaltwin/etwin/internal/model"
)

// defaultRoots は各サーバーのルートURL。
var defaultRoots = map[model.HammerfestServer]string{
	model.HammerfestServerFr: "http://www.hammerfest.fr/",
	model.HammerfestServerEs: "http://www.hammerfest.es/",
	model.HammerfestServerEn: "http://www.hfest.net/",
}

// URLs はサーバーごとのページURLを組み立てる。
type URLs struct {
	root *url.URL
}

// NewURLs は既定のルートURLでURLsを生成する。
func NewURLs(server model.HammerfestServer) URLs {
	root, err := url.Parse(defaultRoots[server])
	if err != nil {
		panic("invalid hammerfest root URL: " + err.Error())
	}
	return URLs{root: root}
}

// NewURLsWithRoot は任意のルートURLでURLsを生成する。
func NewURLsWithRoot(root *url.URL) URLs {
	return URLs{root: root}
}

// Root はルートURLのコピーを返す。
func (u URLs) Root() *url.URL {
	r := *u.root
	return &r
}

func (u URLs) page(path string, page uint16) string {
	r := u.Root()
	r.Path = strings.TrimSuffix(r.Path, "/") + path
	if page > 0 {
		r.RawQuery = "page=" + strconv.FormatUint(uint64(page), 10)
	}
	return r.String()
}

func (u URLs) Login() string       { return u.page("/login.html", 0) }
func (u URLs) Inventory() string   { return u.page("/user.html/inventory", 0) }
func (u URLs) Shop() string        { return u.page("/shop.html", 0) }
func (u URLs) Godchildren() string { return u.page("/user.html/godChildren", 0) }
func (u URLs) ForumHome() string   { return u.page("/forum.html", 0) }

// User は公開プロフィールページ。
func (u URLs) User(id model.HammerfestUserID) string {
	return u.page("/user.html/"+string(id), 0)
}

// ForumTheme はテーマのスレッド一覧。page は1から始まる。
func (u URLs) ForumTheme(id model.HammerfestForumThemeID, page uint16) string {
	return u.page("/forum.html/theme/"+string(id)+"/", page)
}

// ForumThread はスレッドの投稿一覧。page は1から始まる。
func (u URLs) ForumThread(id model.HammerfestForumThreadID, page uint16) string {
	return u.page("/forum.html/thread/"+string(id)+"/", page)
}
