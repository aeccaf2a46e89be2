package dinoparc

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
)

var (
	// cashFrame.launch("...") の引数を取り出す
	cashFrameRe = regexp.MustCompile(`cashFrame\.launch\(("(?:[^"\\]|\\.)*")\)`)
	// パーセント記号は必須
	percentageRe    = regexp.MustCompile(`(\d{1,2}|100)(?:[.,]\d+)?\s?%`)
	skillLevelRe    = regexp.MustCompile(`lvl([0-5])\.`)
	epicRewardRe    = regexp.MustCompile(`^img/rewards/([^./]+)\.(?:jpeg|jpg|gif|png)$`)
	decimalRe       = regexp.MustCompile(`0|[1-9]\d*`)
	exchangeDinozRe = regexp.MustCompile(`^(.+) \(niv ([1-9]\d*)\)$`)
)

// PageContext はページ共通の情報。
type PageContext struct {
	Server model.DinoparcServer
	// User はサイドバーのログイン中ユーザー。ログインしていない場合nil。
	User *SidebarUser
}

// SidebarUser はサイドバーに表示されるログイン中ユーザーの情報。
// ユーザーIDはサイドバーに表示されないため含まない。
type SidebarUser struct {
	Username model.DinoparcUsername
	Coins    uint32
	Dinoz    []model.ShortDinoparcDinozWithLocation
}

// BankPage は銀行ページの解析結果。
type BankPage struct {
	Context PageContext
	UserID  model.DinoparcUserID
}

// InventoryPage は所持品ページの解析結果。
type InventoryPage struct {
	Context   PageContext
	Inventory map[model.DinoparcItemID]uint32
}

// CollectionPage はコレクションページの解析結果。
type CollectionPage struct {
	Context    PageContext
	Collection model.DinoparcCollection
}

// ExchangeWithPage は交換ページの解析結果。
type ExchangeWithPage struct {
	Context    PageContext
	OwnBills   uint32
	OwnDinoz   []model.ShortDinoparcDinozWithLevel
	OtherUser  model.ShortDinoparcUser
	OtherDinoz []model.ShortDinoparcDinozWithLevel
}

// DinozPage はディノズページの解析結果。
type DinozPage struct {
	Context PageContext
	Dinoz   model.DinoparcDinoz
}

// ProfilePage は公開プロフィールページの解析結果。
// 存在しないユーザーの場合 Profile はnil。
type ProfilePage struct {
	Context PageContext
	Profile *model.DinoparcProfile
}

// ScrapeContext はページの言語からサーバーを判定し、サイドバーを解析する。
func ScrapeContext(doc *goquery.Document) (PageContext, error) {
	root := remote.Children(doc.Selection, "html")
	if root.Length() != 1 {
		return PageContext{}, scrapeErr(CodeNonUniqueHTML, "")
	}
	var server model.DinoparcServer
	switch lang, _ := root.Attr("lang"); lang {
	case "fr":
		server = model.DinoparcServerFr
	case "en":
		server = model.DinoparcServerEn
	case "es":
		server = model.DinoparcServerSp
	default:
		return PageContext{}, scrapeErr(CodeServerDetectionFailure, "lang=%q", lang)
	}

	menu, err := remote.SelectOneOpt(root, "td.leftPane > div.menu")
	if err != nil {
		return PageContext{}, scrapeErr(CodeNonUniqueMenu, "%v", err)
	}
	if menu == nil {
		return PageContext{Server: server}, nil
	}
	user, err := scrapeSidebar(server, menu)
	if err != nil {
		return PageContext{}, err
	}
	return PageContext{Server: server, User: user}, nil
}

func scrapeSidebar(server model.DinoparcServer, menu *goquery.Selection) (*SidebarUser, error) {
	titles := remote.Children(menu, "div.title")
	if titles.Length() == 0 {
		return nil, scrapeErr(CodeNonUniqueUsername, "missing menu title")
	}
	rawUsername, err := remote.OneText(titles.First())
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueUsername, "%v", err)
	}
	username, err := model.ParseDinoparcUsername(rawUsername)
	if err != nil {
		return nil, scrapeErr(CodeInvalidUsername, "%q", rawUsername)
	}

	coinSpan, err := remote.SelectOne(menu, "span.money")
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueCoinSpan, "%v", err)
	}
	rawCoins, err := remote.OneText(coinSpan)
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueCoinSpan, "%v", err)
	}
	coins, err := strconv.ParseUint(strings.TrimSpace(rawCoins), 10, 32)
	if err != nil {
		return nil, scrapeErr(CodeInvalidCoinCount, "%q", rawCoins)
	}

	block, err := remote.ChildOne(menu, "#dinozListBlock")
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueDinozList, "%v", err)
	}
	list, err := remote.ChildOne(block, "ul.dinoList")
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueDinozList, "%v", err)
	}

	urls := NewURLs(server)
	dinoz := []model.ShortDinoparcDinozWithLocation{}
	var itemErr error
	remote.Children(list, "li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		d, err := scrapeSidebarDinoz(server, urls, li)
		if err != nil {
			itemErr = err
			return false
		}
		dinoz = append(dinoz, d)
		return true
	})
	if itemErr != nil {
		return nil, itemErr
	}

	return &SidebarUser{Username: username, Coins: uint32(coins), Dinoz: dinoz}, nil
}

func scrapeSidebarDinoz(server model.DinoparcServer, urls URLs, li *goquery.Selection) (model.ShortDinoparcDinozWithLocation, error) {
	var zero model.ShortDinoparcDinozWithLocation

	link, err := remote.ChildOne(li, "a")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueDinozLink, "%v", err)
	}
	rawID, err := requestParam(urls, link, "href", "id")
	if err != nil {
		return zero, err
	}
	id, err := model.ParseDinoparcDinozID(rawID)
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozID, "%q", rawID)
	}

	var name *model.DinoparcDinozName
	nameElem, err := remote.SelectOneOpt(li, "p.name")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueDinozName, "%v", err)
	}
	switch {
	case nameElem != nil:
		rawName, err := remote.OneText(nameElem)
		if err != nil {
			return zero, scrapeErr(CodeNonUniqueDinozName, "%v", err)
		}
		n, err := model.ParseDinoparcDinozName(rawName)
		if err != nil {
			return zero, scrapeErr(CodeInvalidDinozName, "%q", rawName)
		}
		name = &n
	case remote.Find(li, "p.notify").Length() > 0:
		// 名前の入力を促す表示があれば名前のないディノズ
	default:
		return zero, scrapeErr(CodeNonUniqueDinozName, "neither name nor naming prompt")
	}

	var location *model.DinoparcLocationID
	if name != nil {
		placeName, err := remote.SelectOne(li, "p.placeName")
		if err != nil {
			return zero, scrapeErr(CodeNonUniqueLocationName, "%v", err)
		}
		loc, err := parseLocation(server, placeName)
		if err != nil {
			return zero, err
		}
		location = &loc
	}

	return model.ShortDinoparcDinozWithLocation{Server: server, ID: id, Name: name, Location: location}, nil
}

func parseLocation(server model.DinoparcServer, s *goquery.Selection) (model.DinoparcLocationID, error) {
	raw, err := remote.OneText(s)
	if err != nil {
		return 0, scrapeErr(CodeNonUniqueLocationName, "%v", err)
	}
	loc, ok := localeFor(server).locationNames[raw]
	if !ok {
		return 0, scrapeErr(CodeInvalidLocationName, "%q", raw)
	}
	return loc, nil
}

// requestParam は要素の属性にあるリンクから r パラメータ内の key の値を取り出す。
func requestParam(urls URLs, s *goquery.Selection, attr, key string) (string, error) {
	href, ok := s.Attr(attr)
	if !ok {
		return "", scrapeErr(CodeInvalidLinkHref, "missing %s", attr)
	}
	u, err := urls.ParseFromRoot(href)
	if err != nil {
		return "", scrapeErr(CodeInvalidLinkHref, "%q", href)
	}
	params, ok := ParseRequestParams(u)
	if !ok {
		return "", scrapeErr(CodeNonUniqueDinoparcRequest, "%q", href)
	}
	values := params[key]
	if len(values) != 1 {
		return "", scrapeErr(CodeNonUniqueIDInLink, "%q: key %q", href, key)
	}
	return values[0], nil
}

func requireUser(ctx PageContext) (*SidebarUser, error) {
	if ctx.User == nil {
		return nil, scrapeErr(CodeMissingSessionUser, "")
	}
	return ctx.User, nil
}

// ScrapeBank は銀行ページの cashFrame 呼び出しからログイン中ユーザーのIDを取り出す。
func ScrapeBank(doc *goquery.Document) (*BankPage, error) {
	ctx, err := ScrapeContext(doc)
	if err != nil {
		return nil, err
	}
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}

	var ids []model.DinoparcUserID
	var scriptErr error
	remote.Find(doc.Selection, `script[type="text/javascript"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text, err := remote.OneText(script)
		if err != nil {
			return true
		}
		m := cashFrameRe.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		options, err := parseCashFrameArg(m[1])
		if err != nil {
			scriptErr = scrapeErr(CodeUnexpectedCashFrameArgument, "%q: %v", m[1], err)
			return false
		}
		rawID, ok := options["userId"]
		if !ok {
			scriptErr = scrapeErr(CodeUnexpectedCashFrameArgument, "%q: missing userId", m[1])
			return false
		}
		id, err := model.ParseDinoparcUserID(rawID)
		if err != nil {
			scriptErr = scrapeErr(CodeInvalidUserID, "%q", rawID)
			return false
		}
		ids = append(ids, id)
		return true
	})
	if scriptErr != nil {
		return nil, scriptErr
	}
	if len(ids) != 1 {
		return nil, scrapeErr(CodeNonUniqueCashFrameCall, "%d calls", len(ids))
	}
	return &BankPage{Context: ctx, UserID: ids[0]}, nil
}

// parseCashFrameArg はJSの文字列リテラルを "k=v;k=v" として読む。
// リテラルはJSON文字列と互換なのでJSONとして解析する。
func parseCashFrameArg(arg string) (map[string]string, error) {
	var decoded string
	if err := json.Unmarshal([]byte(arg), &decoded); err != nil {
		return nil, err
	}
	res := map[string]string{}
	for _, pair := range strings.Split(decoded, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, err := url.PathUnescape(k)
		if err != nil {
			return nil, err
		}
		value, err := url.PathUnescape(v)
		if err != nil {
			return nil, err
		}
		res[key] = value
	}
	return res, nil
}

// ScrapeInventory は所持品ページを解析する。
func ScrapeInventory(doc *goquery.Document) (*InventoryPage, error) {
	ctx, err := ScrapeContext(doc)
	if err != nil {
		return nil, err
	}
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}

	table, err := remote.SelectOne(doc.Selection, ".siteContent .contentPane .inventory table")
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueInventory, "%v", err)
	}

	urls := NewURLs(ctx.Server)
	inventory := map[model.DinoparcItemID]uint32{}
	var rowErr error
	// 先頭行は見出し
	remote.Find(table, "tr").Slice(1, goquery.ToEnd).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link := remote.Find(remote.Children(row, "td:nth-child(2)"), "a.helpLink")
		if link.Length() != 1 {
			rowErr = scrapeErr(CodeNonUniqueItemHelpLink, "%d links", link.Length())
			return false
		}
		rawID, err := requestParam(urls, link, "href", "it")
		if err != nil {
			rowErr = err
			return false
		}
		id, err := model.ParseDinoparcItemID(rawID)
		if err != nil {
			rowErr = scrapeErr(CodeInvalidItemID, "%q", rawID)
			return false
		}

		countElem := remote.Children(remote.Children(row, "td:nth-child(3)"), "strong")
		rawCount, err := remote.OneText(countElem)
		if err != nil {
			rowErr = scrapeErr(CodeNonUniqueItemCount, "%v", err)
			return false
		}
		count, err := strconv.ParseUint(strings.TrimSpace(rawCount), 10, 32)
		if err != nil {
			rowErr = scrapeErr(CodeInvalidItemCount, "%q", rawCount)
			return false
		}
		inventory[id] = uint32(count)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return &InventoryPage{Context: ctx, Inventory: inventory}, nil
}

// ScrapeCollection はコレクションページを解析する。
// 通常の報酬は表の位置が報酬IDになり、エピック報酬は画像名がキーになる。
func ScrapeCollection(doc *goquery.Document) (*CollectionPage, error) {
	ctx, err := ScrapeContext(doc)
	if err != nil {
		return nil, err
	}
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}

	var rewards []model.DinoparcRewardID
	var epicRewards []model.DinoparcEpicRewardKey
	var boxErr error
	remote.Find(doc.Selection, ".siteContent .contentPane div.rewardBox").EachWithBreak(func(_ int, box *goquery.Selection) bool {
		switch {
		case remote.Children(box, "div.header").Length() > 0:
			if rewards != nil {
				boxErr = scrapeErr(CodeDuplicateRegularRewardBox, "")
				return false
			}
			rewards = []model.DinoparcRewardID{}
			remote.Find(box, "table.rewards td").Each(func(i int, cell *goquery.Selection) {
				if remote.Find(cell, "a").Length() > 0 {
					rewards = append(rewards, model.DinoparcRewardID(strconv.Itoa(i+1)))
				}
			})
		case remote.Children(box, "div.epicHeader").Length() > 0:
			if epicRewards != nil {
				boxErr = scrapeErr(CodeDuplicateEpicRewardBox, "")
				return false
			}
			epicRewards, boxErr = scrapeEpicRewards(box)
			return boxErr == nil
		default:
			boxErr = scrapeErr(CodeUnexpectedRewardBox, "")
			return false
		}
		return true
	})
	if boxErr != nil {
		return nil, boxErr
	}
	if rewards == nil {
		rewards = []model.DinoparcRewardID{}
	}
	if epicRewards == nil {
		epicRewards = []model.DinoparcEpicRewardKey{}
	}
	return &CollectionPage{
		Context:    ctx,
		Collection: model.DinoparcCollection{Rewards: rewards, EpicRewards: epicRewards},
	}, nil
}

func scrapeEpicRewards(box *goquery.Selection) ([]model.DinoparcEpicRewardKey, error) {
	keys := []model.DinoparcEpicRewardKey{}
	seen := map[model.DinoparcEpicRewardKey]bool{}
	var cellErr error
	remote.Find(box, "table.rewards td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		img, err := remote.SelectOneOpt(cell, "img")
		if err != nil {
			cellErr = scrapeErr(CodeMultipleEpicRewardImages, "%v", err)
			return false
		}
		if img == nil {
			return true
		}
		src, _ := img.Attr("src")
		m := epicRewardRe.FindStringSubmatch(src)
		if m == nil {
			cellErr = scrapeErr(CodeInvalidEpicReward, "%q", src)
			return false
		}
		key, err := model.ParseDinoparcEpicRewardKey(m[1])
		if err != nil {
			cellErr = scrapeErr(CodeInvalidEpicReward, "%q", m[1])
			return false
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		return true
	})
	return keys, cellErr
}

// ScrapeExchangeWith は交換ページを解析する。表は6行で、
// 相手ユーザー、自分の紙幣、自分のディノズ、(2行)、相手のディノズの順に並ぶ。
func ScrapeExchangeWith(doc *goquery.Document) (*ExchangeWithPage, error) {
	ctx, err := ScrapeContext(doc)
	if err != nil {
		return nil, err
	}
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}

	table, err := remote.SelectOne(doc.Selection, ".siteContent .contentPane form > table")
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueExchangeTable, "%v", err)
	}
	rows := remote.Children(remote.Children(table, "tbody"), "tr")
	if rows.Length() != 6 {
		return nil, scrapeErr(CodeUnexpectedExchangeTableLayout, "%d rows", rows.Length())
	}

	urls := NewURLs(ctx.Server)
	target := remote.Children(remote.Children(rows.Eq(0), "th"), "a")
	if target.Length() != 1 {
		return nil, scrapeErr(CodeNonUniqueExchangeTarget, "%d links", target.Length())
	}
	rawID, err := requestParam(urls, target, "href", "id")
	if err != nil {
		return nil, err
	}
	otherID, err := model.ParseDinoparcUserID(rawID)
	if err != nil {
		return nil, scrapeErr(CodeInvalidUserID, "%q", rawID)
	}
	rawUsername, err := remote.OneText(target)
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueUsername, "%v", err)
	}
	otherUsername, err := model.ParseDinoparcUsername(rawUsername)
	if err != nil {
		return nil, scrapeErr(CodeInvalidUsername, "%q", rawUsername)
	}

	bill := remote.Children(remote.Children(rows.Eq(1), "td"), "span.bill")
	if bill.Length() != 1 {
		return nil, scrapeErr(CodeNonUniqueBillCount, "%d spans", bill.Length())
	}
	billDigits := decimalRe.FindAllString(bill.Text(), -1)
	if len(billDigits) != 1 {
		return nil, scrapeErr(CodeNonUniqueBillCount, "%q", bill.Text())
	}
	ownBills, err := strconv.ParseUint(billDigits[0], 10, 32)
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueBillCount, "%q", billDigits[0])
	}

	ownDinoz, err := scrapeExchangeDinozList(ctx.Server, rows.Eq(2))
	if err != nil {
		return nil, err
	}
	otherDinoz, err := scrapeExchangeDinozList(ctx.Server, rows.Eq(5))
	if err != nil {
		return nil, err
	}

	return &ExchangeWithPage{
		Context:    ctx,
		OwnBills:   uint32(ownBills),
		OwnDinoz:   ownDinoz,
		OtherUser:  model.ShortDinoparcUser{Server: ctx.Server, ID: otherID, Username: otherUsername},
		OtherDinoz: otherDinoz,
	}, nil
}

func scrapeExchangeDinozList(server model.DinoparcServer, row *goquery.Selection) ([]model.ShortDinoparcDinozWithLevel, error) {
	sel := remote.Children(remote.Children(row, "td"), "select")
	if sel.Length() != 1 {
		return nil, scrapeErr(CodeNonUniqueExchangeDinozList, "%d selects", sel.Length())
	}

	dinoz := []model.ShortDinoparcDinozWithLevel{}
	var optErr error
	// 先頭の選択肢は「なし」
	remote.Children(sel, "option").Slice(1, goquery.ToEnd).EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		d, err := scrapeExchangeDinoz(server, opt)
		if err != nil {
			optErr = err
			return false
		}
		dinoz = append(dinoz, d)
		return true
	})
	if optErr != nil {
		return nil, optErr
	}
	return dinoz, nil
}

func scrapeExchangeDinoz(server model.DinoparcServer, opt *goquery.Selection) (model.ShortDinoparcDinozWithLevel, error) {
	var zero model.ShortDinoparcDinozWithLevel

	rawID, ok := opt.Attr("value")
	if !ok {
		return zero, scrapeErr(CodeInvalidExchangeDinoz, "missing option value")
	}
	id, err := model.ParseDinoparcDinozID(rawID)
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozID, "%q", rawID)
	}
	text, err := remote.OneText(opt)
	if err != nil {
		return zero, scrapeErr(CodeInvalidExchangeDinoz, "%v", err)
	}
	m := exchangeDinozRe.FindStringSubmatch(text)
	if m == nil {
		return zero, scrapeErr(CodeInvalidExchangeDinoz, "%q", text)
	}

	var name *model.DinoparcDinozName
	if m[1] != "null" {
		n, err := model.ParseDinoparcDinozName(m[1])
		if err != nil {
			return zero, scrapeErr(CodeInvalidDinozName, "%q", m[1])
		}
		name = &n
	}
	level, err := strconv.ParseUint(m[2], 10, 16)
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozLevel, "%q", m[2])
	}
	return model.ShortDinoparcDinozWithLevel{Server: server, ID: id, Name: name, Level: uint16(level)}, nil
}

// ScrapeDinoz はディノズページを解析する。名前のないディノズは別のレイアウトで表示される。
func ScrapeDinoz(doc *goquery.Document) (*DinozPage, error) {
	ctx, err := ScrapeContext(doc)
	if err != nil {
		return nil, err
	}
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}

	pane, err := remote.SelectOne(doc.Selection, ".siteContent .contentPane")
	if err != nil {
		return nil, scrapeErr(CodeNonUniqueContentPane, "%v", err)
	}
	views := remote.Children(pane, "table.dinoView")
	var dinoz model.DinoparcDinoz
	switch views.Length() {
	case 0:
		sheet, err := remote.ChildOne(pane, "table.dinoSheet")
		if err != nil {
			return nil, scrapeErr(CodeNonUniqueDinozView, "%v", err)
		}
		dinoz, err = scrapeUnnamedDinoz(ctx.Server, sheet)
		if err != nil {
			return nil, err
		}
	case 1:
		h1, err := remote.ChildOne(pane, "h1")
		if err != nil {
			return nil, scrapeErr(CodeNonUniqueDinozName, "%v", err)
		}
		rawName, ok := remote.FirstText(h1)
		if !ok {
			return nil, scrapeErr(CodeNonUniqueDinozName, "empty title")
		}
		name, err := model.ParseDinoparcDinozName(rawName)
		if err != nil {
			return nil, scrapeErr(CodeInvalidDinozName, "%q", rawName)
		}
		dinoz, err = scrapeNamedDinoz(ctx.Server, name, views)
		if err != nil {
			return nil, err
		}
	default:
		return nil, scrapeErr(CodeNonUniqueDinozView, "%d views", views.Length())
	}
	return &DinozPage{Context: ctx, Dinoz: dinoz}, nil
}

func scrapeNamedDinoz(server model.DinoparcServer, name model.DinoparcDinozName, view *goquery.Selection) (model.DinoparcDinoz, error) {
	var zero model.DinoparcDinoz
	locale := localeFor(server)

	pane, err := remote.SelectOne(view, "div.dino")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueDinozView, "%v", err)
	}
	skin, race, err := scrapeSkin(remote.Find(remote.Children(pane, "div.pic.center"), "object > param[name=FlashVars]"))
	if err != nil {
		return zero, err
	}

	def, err := remote.ChildOne(pane, "table.def")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueDinozDefTable, "%v", err)
	}

	rawLife, err := remote.OneText(remote.Find(def, "tr:nth-child(2) td div.value"))
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozLife, "%v", err)
	}
	life, ok := parsePercentage(rawLife)
	if !ok {
		return zero, scrapeErr(CodeInvalidDinozLife, "%q", rawLife)
	}

	level, err := scrapeLevel(remote.Find(def, "tr:nth-child(3) td"))
	if err != nil {
		return zero, err
	}

	expCell := remote.Find(def, "tr:nth-child(4) td")
	if expCell.Length() != 1 {
		return zero, scrapeErr(CodeInvalidDinozExperience, "%d cells", expCell.Length())
	}
	var experience model.IntPercentage
	if remote.Children(expCell, "a").Length() > 0 {
		// レベルアップ可能な場合は経験値の代わりにリンクが表示される
		experience = 100
	} else {
		rawExp, err := remote.OneText(remote.Find(expCell, "div.value"))
		if err != nil {
			return zero, scrapeErr(CodeInvalidDinozExperience, "%v", err)
		}
		experience, ok = parsePercentage(rawExp)
		if !ok {
			return zero, scrapeErr(CodeInvalidDinozExperience, "%q", rawExp)
		}
	}

	dangerCell := remote.Find(def, "tr:nth-child(5) td")
	rawDanger, ok := remote.FirstText(dangerCell)
	if dangerCell.Length() != 1 || !ok {
		return zero, scrapeErr(CodeInvalidDinozDanger, "missing danger")
	}
	danger, err := strconv.ParseInt(rawDanger, 10, 16)
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozDanger, "%q", rawDanger)
	}

	elements, err := scrapeElements(pane)
	if err != nil {
		return zero, err
	}
	skills, err := scrapeSkills(locale, pane)
	if err != nil {
		return zero, err
	}

	actions, err := remote.SelectOne(view, "div.actions")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueActionsPane, "%v", err)
	}
	inTournament := false
	remote.Children(actions, "div.important").Each(func(_ int, s *goquery.Selection) {
		if locale.inTournamentPattern.MatchString(s.Text()) {
			inTournament = true
		}
	})

	place, err := remote.SelectOne(view, "div.place")
	if err != nil {
		return zero, scrapeErr(CodeNonUniquePlacePane, "%v", err)
	}
	placeTitle, err := remote.ChildOne(place, "div.title")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueLocationName, "%v", err)
	}
	location, err := parseLocation(server, placeTitle)
	if err != nil {
		return zero, err
	}
	placeLink := remote.Children(remote.Children(place, "div.link"), "a")
	if placeLink.Length() != 1 {
		return zero, scrapeErr(CodeNonUniquePlacePane, "%d place links", placeLink.Length())
	}
	rawID, err := requestParam(NewURLs(server), placeLink, "href", "id")
	if err != nil {
		return zero, err
	}
	id, err := model.ParseDinoparcDinozID(rawID)
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozID, "%q", rawID)
	}

	return model.DinoparcDinoz{
		Server: server,
		ID:     id,
		Name:   &name,
		Race:   race,
		Skin:   skin,
		Level:  level,
		Named: &model.DinoparcDinozNamedFields{
			Location:     location,
			Life:         life,
			Experience:   experience,
			Danger:       int16(danger),
			InTournament: inTournament,
			Elements:     elements,
			Skills:       skills,
		},
	}, nil
}

func scrapeUnnamedDinoz(server model.DinoparcServer, sheet *goquery.Selection) (model.DinoparcDinoz, error) {
	var zero model.DinoparcDinoz

	skin, race, err := scrapeSkin(remote.Find(sheet, "td.picBox object > param[name=FlashVars]"))
	if err != nil {
		return zero, err
	}

	form, err := remote.SelectOne(sheet, "form")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueDinozNameForm, "%v", err)
	}
	rawID, err := requestParam(NewURLs(server), form, "action", "id")
	if err != nil {
		return zero, err
	}
	id, err := model.ParseDinoparcDinozID(rawID)
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozID, "%q", rawID)
	}

	def, err := remote.ChildOne(form, "table.def")
	if err != nil {
		return zero, scrapeErr(CodeNonUniqueDinozDefTable, "%v", err)
	}
	level, err := scrapeLevel(remote.Find(def, "tr:nth-child(1) td"))
	if err != nil {
		return zero, err
	}

	return model.DinoparcDinoz{Server: server, ID: id, Race: race, Skin: skin, Level: level}, nil
}

// scrapeSkin はFlashVarsの data から外見コードを取り出し、種族を判定する。
func scrapeSkin(param *goquery.Selection) (model.DinoparcDinozSkin, model.DinoparcDinozRace, error) {
	if param.Length() != 1 {
		return "", "", scrapeErr(CodeNonUniqueDinozSkin, "%d FlashVars", param.Length())
	}
	raw, _ := param.Attr("value")
	vars, err := url.ParseQuery(raw)
	if err != nil || len(vars["data"]) != 1 {
		return "", "", scrapeErr(CodeNonUniqueDinozSkin, "%q", raw)
	}
	skin, err := model.ParseDinoparcDinozSkin(vars["data"][0])
	if err != nil {
		return "", "", scrapeErr(CodeInvalidDinozSkin, "%q", vars["data"][0])
	}
	race, ok := model.DinoparcDinozRaceFromSkin(skin)
	if !ok {
		return "", "", scrapeErr(CodeInvalidDinozSkin, "unknown race for %q", skin)
	}
	return skin, race, nil
}

func scrapeLevel(cell *goquery.Selection) (uint16, error) {
	text, ok := remote.FirstText(cell)
	if cell.Length() != 1 || !ok {
		return 0, scrapeErr(CodeInvalidDinozLevel, "missing level")
	}
	digits := decimalRe.FindString(text)
	if digits == "" {
		return 0, scrapeErr(CodeInvalidDinozLevel, "%q", text)
	}
	level, err := strconv.ParseUint(digits, 10, 16)
	if err != nil {
		return 0, scrapeErr(CodeInvalidDinozLevel, "%q", digits)
	}
	return uint16(level), nil
}

func scrapeElements(pane *goquery.Selection) (model.DinoparcDinozElements, error) {
	var zero model.DinoparcDinozElements
	list, err := remote.ChildOne(pane, "ul.elements")
	if err != nil {
		return zero, scrapeErr(CodeInvalidDinozElements, "%v", err)
	}
	var values []uint16
	var elemErr error
	remote.Children(remote.Children(list, "li"), "div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, err := remote.OneText(s)
		if err != nil {
			elemErr = scrapeErr(CodeInvalidDinozElements, "%v", err)
			return false
		}
		v, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			elemErr = scrapeErr(CodeInvalidDinozElements, "%q", raw)
			return false
		}
		values = append(values, uint16(v))
		return true
	})
	if elemErr != nil {
		return zero, elemErr
	}
	if len(values) != 5 {
		return zero, scrapeErr(CodeInvalidDinozElements, "%d elements", len(values))
	}
	return model.DinoparcDinozElements{
		Fire:    values[0],
		Earth:   values[1],
		Water:   values[2],
		Thunder: values[3],
		Air:     values[4],
	}, nil
}

func scrapeSkills(locale *scraperLocale, pane *goquery.Selection) (map[model.DinoparcSkill]model.DinoparcSkillLevel, error) {
	list, err := remote.ChildOne(pane, "ul.skills")
	if err != nil {
		return nil, scrapeErr(CodeInvalidDinozSkill, "%v", err)
	}
	skills := map[model.DinoparcSkill]model.DinoparcSkillLevel{}
	var skillErr error
	remote.Children(list, "li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		rawName, err := remote.OneText(remote.Children(li, "div.name"))
		if err != nil {
			skillErr = scrapeErr(CodeInvalidDinozSkill, "%v", err)
			return false
		}
		skill, ok := locale.skillNames[rawName]
		if !ok {
			skillErr = scrapeErr(CodeInvalidDinozSkill, "unknown skill %q", rawName)
			return false
		}
		img := remote.Children(remote.Children(li, "div.level"), "img")
		if img.Length() != 1 {
			skillErr = scrapeErr(CodeInvalidDinozSkill, "%d level images", img.Length())
			return false
		}
		src, _ := img.Attr("src")
		m := skillLevelRe.FindStringSubmatch(src)
		if m == nil {
			skillErr = scrapeErr(CodeInvalidDinozSkill, "level %q", src)
			return false
		}
		n, _ := strconv.Atoi(m[1])
		level, err := model.NewDinoparcSkillLevel(n)
		if err != nil {
			skillErr = scrapeErr(CodeInvalidDinozSkill, "level %q", src)
			return false
		}
		skills[skill] = level
		return true
	})
	if skillErr != nil {
		return nil, skillErr
	}
	return skills, nil
}

func parsePercentage(raw string) (model.IntPercentage, bool) {
	m := percentageRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	p, err := model.NewIntPercentage(n)
	if err != nil {
		return 0, false
	}
	return p, true
}

// ScrapeProfile は公開プロフィールページを解析する。
// プロフィール欄がない場合は存在しないユーザーとして Profile をnilにする。
func ScrapeProfile(doc *goquery.Document, id model.DinoparcUserID) (*ProfilePage, error) {
	ctx, err := ScrapeContext(doc)
	if err != nil {
		return nil, err
	}

	profile, err := remote.SelectOneOpt(doc.Selection, ".siteContent .contentPane div.profile")
	if err != nil {
		return nil, scrapeErr(CodeInvalidProfile, "%v", err)
	}
	if profile == nil {
		return &ProfilePage{Context: ctx}, nil
	}

	title, err := remote.ChildOne(profile, "h1")
	if err != nil {
		return nil, scrapeErr(CodeInvalidProfile, "%v", err)
	}
	rawUsername, ok := remote.FirstText(title)
	if !ok {
		return nil, scrapeErr(CodeInvalidProfile, "empty username")
	}
	username, err := model.ParseDinoparcUsername(rawUsername)
	if err != nil {
		return nil, scrapeErr(CodeInvalidUsername, "%q", rawUsername)
	}

	urls := NewURLs(ctx.Server)
	dinoz := []model.DinoparcDinozID{}
	var linkErr error
	remote.Find(profile, "ul.dinoz > li > a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		rawID, err := requestParam(urls, a, "href", "id")
		if err != nil {
			linkErr = err
			return false
		}
		dinozID, err := model.ParseDinoparcDinozID(rawID)
		if err != nil {
			linkErr = scrapeErr(CodeInvalidDinozID, "%q", rawID)
			return false
		}
		dinoz = append(dinoz, dinozID)
		return true
	})
	if linkErr != nil {
		return nil, linkErr
	}

	return &ProfilePage{
		Context: ctx,
		Profile: &model.DinoparcProfile{
			User:  model.ShortDinoparcUser{Server: ctx.Server, ID: id, Username: username},
			Dinoz: dinoz,
		},
	}, nil
}
