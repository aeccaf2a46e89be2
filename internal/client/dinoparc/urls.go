package dinoparc

import (
	"net/url"
	"strings"

	"github.com/eternaltwin/etwin/internal/model"
)

// defaultRoots は各サーバーのルートURL。
var defaultRoots = map[model.DinoparcServer]string{
	model.DinoparcServerFr: "http://www.dinoparc.com/",
	model.DinoparcServerEn: "http://en.dinoparc.com/",
	model.DinoparcServerSp: "http://sp.dinoparc.com/",
}

// URLs はサーバーごとのページURLを組み立てる。
type URLs struct {
	root *url.URL
}

// NewURLs は既定のルートURLでURLsを生成する。
func NewURLs(server model.DinoparcServer) URLs {
	root, err := url.Parse(defaultRoots[server])
	if err != nil {
		panic("invalid dinoparc root URL: " + err.Error())
	}
	return URLs{root: root}
}

// NewURLsWithRoot は任意のルートURLでURLsを生成する。テストで使う。
func NewURLsWithRoot(root *url.URL) URLs {
	return URLs{root: root}
}

// Root はルートURLのコピーを返す。
func (u URLs) Root() *url.URL {
	r := *u.root
	return &r
}

func (u URLs) action(action string, params ...string) string {
	q := url.Values{}
	q.Set("a", action)
	for i := 0; i+1 < len(params); i += 2 {
		q.Set(params[i], params[i+1])
	}
	r := u.Root()
	r.RawQuery = q.Encode()
	return r.String()
}

func (u URLs) Login() string      { return u.action("login") }
func (u URLs) Bank() string       { return u.action("bank") }
func (u URLs) Inventory() string  { return u.action("inventory") }
func (u URLs) Collection() string { return u.action("collection") }

// ExchangeWith は指定ユーザーとの交換ページ。
func (u URLs) ExchangeWith(id model.DinoparcUserID) string {
	return u.action("bill", "uid", string(id))
}

// Dinoz はディノズページ。
func (u URLs) Dinoz(id model.DinoparcDinozID) string {
	return u.action("dino", "id", string(id))
}

// AdTracking はログイン時に通知する広告トラッキングのURL。
func (u URLs) AdTracking(mid model.DinoparcMachineID) string {
	return u.action("adtk", "m", string(mid))
}

// User は公開プロフィールページ。
func (u URLs) User(id model.DinoparcUserID) string {
	return u.action("user", "uid", string(id))
}

// ParseFromRoot はページ内のリンクをルートURLに対して解決する。
func (u URLs) ParseFromRoot(href string) (*url.URL, error) {
	return u.root.Parse(href)
}

// ParseRequestParams はリンクの r パラメータを "k=v;k=v" として読む。
// r パラメータがちょうど1つでない場合は ok=false を返す。
func ParseRequestParams(u *url.URL) (params map[string][]string, ok bool) {
	values := u.Query()["r"]
	if len(values) != 1 {
		return nil, false
	}
	params = map[string][]string{}
	for _, item := range strings.Split(values[0], ";") {
		k, v, _ := strings.Cut(item, "=")
		params[k] = append(params[k], v)
	}
	return params, true
}
