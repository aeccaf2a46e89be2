package hammerfest

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/remote"
	"github.com/eternaltwin/etwin/internal/security"
)

var (
	userURIRe    = regexp.MustCompile(`^/user\.html/([1-9]\d{0,8})$`)
	themeURIRe   = regexp.MustCompile(`^/forum\.html/theme/(\d{1,2})/?$`)
	threadURIRe  = regexp.MustCompile(`^/forum\.html/thread/(\d{1,9})/?$`)
	itemSrcRe    = regexp.MustCompile(`^/img/items/small/(a|\d{0,4})\.gif$`)
	scoreRe      = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})*$`)
	hofDateRe    = regexp.MustCompile(`\d+-\d+-\d+`)
	forumTimeRe  = regexp.MustCompile(`^(\d{1,2})[h:](\d{2})$`)
	messageIDRe  = regexp.MustCompile(`^m(\d{1,9})$`)
	ladderLevels = map[string]model.HammerfestLadderLevel{
		"icon_pyramid icon_pyramid_hof": 0,
		"icon_pyramid icon_pyramid_1":   1,
		"icon_pyramid icon_pyramid_2":   2,
		"icon_pyramid icon_pyramid_3":   3,
		"icon_pyramid icon_pyramid_4":   4,
	}
)

// PageContext はすべてのページに共通する上部バーの情報。User はゲストの場合 nil。
type PageContext struct {
	Server model.HammerfestServer
	User   *model.HammerfestSessionUser
}

// ScrapeContext は上部バーからサーバーとログイン中のユーザーを読み取る。
func ScrapeContext(doc *goquery.Document) (PageContext, error) {
	if findDoc(doc, "h2.evni").Length() > 0 {
		return PageContext{}, errEvni
	}
	topBar := findDoc(doc, "div.topMainBar")
	switch topBar.Length() {
	case 0:
		return PageContext{}, scrapeErr(CodeNonUniqueTopBar, "missing top bar")
	case 1:
	default:
		return PageContext{}, scrapeErr(CodeNonUniqueTopBar, "%d top bars", topBar.Length())
	}

	player, err := remote.SelectOneOpt(topBar, "div.playerInfo > a:nth-child(1)")
	if err != nil {
		return PageContext{}, scrapeErr(CodeTooManyPlayerInfo, "%v", err)
	}
	if player == nil {
		return scrapeGuestContext(topBar)
	}

	shop := remote.Find(doc.Selection, `a[href="/shop.html"]`).First()
	title, _ := shop.Attr("title")
	server, ok := detectServer("", strings.TrimSpace(title))
	if !ok {
		return PageContext{}, scrapeErr(CodeFailedServerDetection, "shop link title %q", title)
	}

	name, err := remote.OneText(player)
	if err != nil {
		return PageContext{}, scrapeErr(CodeNonUniquePlayerText, "%v", err)
	}
	username, err := model.ParseHammerfestUsername(strings.TrimSpace(name))
	if err != nil {
		return PageContext{}, scrapeErr(CodeInvalidUsername, "%q", name)
	}
	href, _ := player.Attr("href")
	_, rawID, found := strings.Cut(href, "user.html/")
	if !found {
		return PageContext{}, scrapeErr(CodeInvalidUserID, "%q", href)
	}
	id, err := model.ParseHammerfestUserID(rawID)
	if err != nil {
		return PageContext{}, scrapeErr(CodeInvalidUserID, "%q", href)
	}

	tokenLink := remote.Find(topBar, "div.playerInfo > a:nth-child(3)")
	if tokenLink.Length() != 1 {
		return PageContext{}, scrapeErr(CodeNonUniqueTokenLink, "%d links", tokenLink.Length())
	}
	tokenText, err := remote.OneText(tokenLink)
	if err != nil {
		return PageContext{}, scrapeErr(CodeNonUniqueTokenText, "%v", err)
	}
	tokens, err := parseDottedUint(tokenText)
	if err != nil {
		return PageContext{}, err
	}

	return PageContext{
		Server: server,
		User: &model.HammerfestSessionUser{
			User:   model.ShortHammerfestUser{Server: server, ID: id, Username: username},
			Tokens: tokens,
		},
	}, nil
}

func scrapeGuestContext(topBar *goquery.Selection) (PageContext, error) {
	button := remote.Find(topBar, "form span.enter")
	if button.Length() != 1 {
		return PageContext{}, scrapeErr(CodeNonUniqueSignInButton, "%d buttons", button.Length())
	}
	text, _ := remote.FirstText(button)
	server, ok := detectServer(text, "")
	if !ok {
		return PageContext{}, scrapeErr(CodeFailedServerDetection, "sign in button %q", text)
	}
	return PageContext{Server: server}, nil
}

// findDoc はドキュメント全体からセレクタに一致する要素を返す。
func findDoc(doc *goquery.Document, css string) *goquery.Selection {
	return remote.Find(doc.Selection, css)
}

func scrapeExpectedContext(doc *goquery.Document, server model.HammerfestServer) (PageContext, error) {
	ctx, err := ScrapeContext(doc)
	if err != nil {
		return PageContext{}, err
	}
	if ctx.Server != server {
		return PageContext{}, scrapeErr(CodeServerMismatch, "expected %s, got %s", server, ctx.Server)
	}
	return ctx, nil
}

// scrapeOwnPage はログインが必要なページの上部バーを読み取る。ゲストとして表示された場合はセッション切れとみなす。
func scrapeOwnPage(doc *goquery.Document, server model.HammerfestServer) (model.HammerfestSessionUser, error) {
	ctx, err := scrapeExpectedContext(doc, server)
	if err != nil {
		return model.HammerfestSessionUser{}, err
	}
	if ctx.User == nil {
		return model.HammerfestSessionUser{}, errSessionExpired
	}
	return *ctx.User, nil
}

// ScrapeProfile はプロフィールページを解析する。存在しないユーザーの場合 Profile は nil。
func ScrapeProfile(doc *goquery.Document, ref model.HammerfestUserIDRef) (*model.HammerfestProfileResponse, error) {
	ctx, err := scrapeExpectedContext(doc, ref.Server)
	if err != nil {
		return nil, err
	}
	resp := &model.HammerfestProfileResponse{SessionUser: ctx.User}

	dl, err := remote.SelectOneOpt(doc.Selection, "dl.profile")
	if err != nil {
		return nil, scrapeErr(CodeTooManyHTMLFragments, "%v", err)
	}
	if dl == nil {
		return resp, nil
	}

	dds := remote.Children(dl, "dd")
	hasEmail := remote.Find(dds, "a").Length() > 0
	expected := 5
	if hasEmail {
		expected = 6
	}
	if dds.Length() != expected {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "expected %d profile fields, got %d", expected, dds.Length())
	}
	i := 0
	next := func() *goquery.Selection {
		dd := dds.Eq(i)
		i++
		return dd
	}

	name, _ := remote.FirstText(next())
	username, err := model.ParseHammerfestUsername(name)
	if err != nil {
		return nil, scrapeErr(CodeInvalidUsername, "%q", name)
	}
	profile := &model.HammerfestProfile{
		User:   model.ShortHammerfestUser{Server: ref.Server, ID: ref.ID, Username: username},
		Items:  []model.HammerfestItemID{},
		Quests: map[model.HammerfestQuestID]model.HammerfestQuestStatus{},
	}

	// ゲストとして取得したページのメールアドレスは記録しない
	if hasEmail {
		raw, _ := remote.FirstText(next())
		email, err := model.ParseEmailAddress(raw)
		if err != nil {
			return nil, scrapeErr(CodeInvalidEmail, "%q", raw)
		}
		if ctx.User != nil {
			profile.Email = &model.HammerfestProfileEmail{Address: &email}
		}
	} else if ctx.User != nil {
		profile.Email = &model.HammerfestProfileEmail{}
	}

	if profile.BestScore, err = parseScore(next()); err != nil {
		return nil, err
	}

	levelDD := next()
	levelText := strings.TrimSpace(strings.Join(remote.TextNodes(levelDD), ""))
	if levelText != "" {
		level, err := strconv.ParseUint(levelText, 10, 8)
		if err != nil {
			return nil, scrapeErr(CodeInvalidInteger, "best level %q", levelText)
		}
		profile.BestLevel = uint8(level)
	}
	profile.HasCarrot = remote.Children(levelDD, "span").Length() > 0

	if profile.SeasonScore, err = parseScore(next()); err != nil {
		return nil, err
	}

	rankImg := remote.Find(next(), "img")
	class, _ := rankImg.Attr("class")
	ladder, ok := ladderLevels[class]
	if !ok {
		return nil, scrapeErr(CodeUnknownLadderLevelClass, "%q", class)
	}
	profile.LadderLevel = ladder

	if ladder == 0 {
		if profile.HallOfFame, err = scrapeHallOfFame(dl); err != nil {
			return nil, err
		}
	}

	for _, img := range nodes(remote.Find(doc.Selection, "div.profileItems img")) {
		src, _ := img.Attr("src")
		m := itemSrcRe.FindStringSubmatch(src)
		if m == nil {
			return nil, scrapeErr(CodeInvalidItemID, "%q", src)
		}
		if m[1] == "a" {
			continue
		}
		id, err := model.ParseHammerfestItemID(m[1])
		if err != nil {
			return nil, scrapeErr(CodeInvalidItemID, "%q", src)
		}
		profile.Items = append(profile.Items, id)
	}

	if err := scrapeQuests(doc, TextsFor(ref.Server), profile.Quests); err != nil {
		return nil, err
	}

	resp.Profile = profile
	return resp, nil
}

func parseScore(dd *goquery.Selection) (uint32, error) {
	text := strings.TrimSpace(dd.Text())
	if !scoreRe.MatchString(text) {
		return 0, scrapeErr(CodeInvalidInteger, "score %q", text)
	}
	return parseDottedUint(text)
}

func scrapeHallOfFame(profile *goquery.Selection) (*model.HammerfestHallOfFameMessage, error) {
	list := profile.Next()
	if goquery.NodeName(list) != "dl" {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "hall of fame list")
	}
	info := remote.Find(list, "div.wordsFameInfo")
	if info.Length() == 0 {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "hall of fame date")
	}
	raw := hofDateRe.FindString(info.First().Text())
	date, err := time.Parse("2006-1-2", raw)
	if err != nil {
		return nil, scrapeErr(CodeInvalidDate, "%q", info.First().Text())
	}
	message := remote.Find(list, "dd.wordsFameUser")
	if message.Length() == 0 {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "hall of fame message")
	}
	return &model.HammerfestHallOfFameMessage{
		Date:    date,
		Message: strings.TrimSpace(message.First().Text()),
	}, nil
}

// scrapeQuests は進行中と達成済みの2つのクエスト一覧を読む。
func scrapeQuests(doc *goquery.Document, texts *ScraperTexts, quests map[model.HammerfestQuestID]model.HammerfestQuestStatus) error {
	lists := findDoc(doc, "ul.profileQuestsTitle")
	if lists.Length() != 2 {
		return scrapeErr(CodeHTMLFragmentNotFound, "expected 2 quest lists, got %d", lists.Length())
	}
	statuses := []model.HammerfestQuestStatus{model.HammerfestQuestStatusPending, model.HammerfestQuestStatusComplete}
	for i, status := range statuses {
		for _, li := range nodes(remote.Children(lists.Eq(i), "li")) {
			if li.HasClass("nothing") {
				continue
			}
			name := strings.TrimSpace(li.Text())
			id, ok := texts.Quest(name)
			if !ok {
				return scrapeErr(CodeUnknownQuestName, "%q", name)
			}
			quests[id] = status
		}
	}
	return nil
}

// ScrapeInventory は所持品ページを解析する。
func ScrapeInventory(doc *goquery.Document, server model.HammerfestServer) (*model.HammerfestInventoryResponse, error) {
	user, err := scrapeOwnPage(doc, server)
	if err != nil {
		return nil, err
	}
	inventory := map[model.HammerfestItemID]uint32{}
	for _, row := range nodes(findDoc(doc, "table.inventory tr")) {
		img := remote.Find(row, "td img")
		if img.Length() == 0 {
			continue
		}
		src, _ := img.First().Attr("src")
		m := itemSrcRe.FindStringSubmatch(src)
		if m == nil || m[1] == "a" {
			return nil, scrapeErr(CodeInvalidItemID, "%q", src)
		}
		id, err := model.ParseHammerfestItemID(m[1])
		if err != nil {
			return nil, scrapeErr(CodeInvalidItemID, "%q", src)
		}
		count, err := parseDottedUint(remote.Find(row, "td.quantity").Text())
		if err != nil {
			return nil, err
		}
		inventory[id] = count
	}
	return &model.HammerfestInventoryResponse{SessionUser: user, Inventory: inventory}, nil
}

// ScrapeShop はショップページを解析する。所持トークン数は上部バーの値を使う。
func ScrapeShop(doc *goquery.Document, server model.HammerfestServer) (*model.HammerfestShopResponse, error) {
	user, err := scrapeOwnPage(doc, server)
	if err != nil {
		return nil, err
	}
	shop, err := remote.SelectOne(doc.Selection, "div.shop")
	if err != nil {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}

	weeklyDD, err := remote.SelectOne(shop, "dd.weeklyTokens")
	if err != nil {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	weekly, err := parseSmallUint(weeklyDD.Text())
	if err != nil {
		return nil, err
	}

	purchasedDD, err := remote.SelectOne(shop, "dd.purchasedTokens")
	if err != nil {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	var purchased *uint8
	if text := strings.TrimSpace(purchasedDD.Text()); text != "" && text != "-" {
		n, err := parseSmallUint(text)
		if err != nil {
			return nil, err
		}
		purchased = &n
	}

	bonusDD, err := remote.SelectOne(shop, "dd.questBonus")
	if err != nil {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}

	return &model.HammerfestShopResponse{
		SessionUser: user,
		Shop: model.HammerfestShop{
			Tokens:          user.Tokens,
			WeeklyTokens:    weekly,
			PurchasedTokens: purchased,
			HasQuestBonus:   remote.Find(bonusDD, "img").Length() > 0,
		},
	}, nil
}

// ScrapeGodchildren は紹介したユーザーの一覧ページを解析する。
func ScrapeGodchildren(doc *goquery.Document, server model.HammerfestServer) (*model.HammerfestGodchildrenResponse, error) {
	user, err := scrapeOwnPage(doc, server)
	if err != nil {
		return nil, err
	}
	godchildren := []model.HammerfestGodchild{}
	for _, row := range nodes(findDoc(doc, "table.godChildren tr")) {
		link := remote.Find(row, "td.name > a")
		if link.Length() == 0 {
			continue
		}
		child, _, err := scrapeUserLink(link, server)
		if err != nil {
			return nil, err
		}
		tokens, err := parseDottedUint(remote.Find(row, "td.tokens").Text())
		if err != nil {
			return nil, err
		}
		godchildren = append(godchildren, model.HammerfestGodchild{User: child, Tokens: tokens})
	}
	return &model.HammerfestGodchildrenResponse{SessionUser: user, Godchildren: godchildren}, nil
}

// ScrapeForumHome はフォーラムのテーマ一覧を解析する。
func ScrapeForumHome(doc *goquery.Document, server model.HammerfestServer) (*model.HammerfestForumHome, error) {
	ctx, err := scrapeExpectedContext(doc, server)
	if err != nil {
		return nil, err
	}
	texts := TextsFor(server)
	themes := []model.HammerfestForumTheme{}
	for _, row := range nodes(findDoc(doc, "table.forum tr.theme")) {
		link, err := remote.SelectOne(row, "td.name > a")
		if err != nil {
			return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
		}
		short, err := scrapeThemeLink(link, server, texts)
		if err != nil {
			return nil, err
		}
		rawDesc := strings.TrimSpace(remote.Find(row, "td.name > p.description").Text())
		desc, err := model.ParseHammerfestForumThemeDescription(rawDesc)
		if err != nil {
			return nil, scrapeErr(CodeInvalidForumThemeDescription, "%q", rawDesc)
		}
		themes = append(themes, model.HammerfestForumTheme{Short: short, Description: desc})
	}
	return &model.HammerfestForumHome{SessionUser: ctx.User, Themes: themes}, nil
}

// ScrapeForumThemePage はテーマのスレッド一覧ページを解析する。
// 固定スレッドは最初のページにのみ表示され、最終投稿日を持たない。
func ScrapeForumThemePage(doc *goquery.Document, server model.HammerfestServer) (*model.HammerfestForumThemePage, error) {
	ctx, err := scrapeExpectedContext(doc, server)
	if err != nil {
		return nil, err
	}
	texts := TextsFor(server)
	themeLink, err := remote.SelectOne(doc.Selection, "div.forumNav a.theme")
	if err != nil {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	theme, err := scrapeThemeLink(themeLink, server, texts)
	if err != nil {
		return nil, err
	}
	page1, pages, err := scrapePagination(doc)
	if err != nil {
		return nil, err
	}

	res := &model.HammerfestForumThemePage{
		SessionUser: ctx.User,
		Theme:       theme,
		Sticky:      []model.HammerfestForumThread{},
		Threads: model.HammerfestForumThreadListing{
			Page1: page1,
			Pages: pages,
			Items: []model.HammerfestForumThread{},
		},
	}
	for _, row := range nodes(findDoc(doc, "table.threads tr.thread")) {
		thread, err := scrapeThreadRow(row, server, texts)
		if err != nil {
			return nil, err
		}
		if thread.IsSticky {
			res.Sticky = append(res.Sticky, thread)
		} else {
			res.Threads.Items = append(res.Threads.Items, thread)
		}
	}
	return res, nil
}

func scrapeThreadRow(row *goquery.Selection, server model.HammerfestServer, texts *ScraperTexts) (model.HammerfestForumThread, error) {
	var thread model.HammerfestForumThread
	link, err := remote.SelectOne(row, "td.title > a")
	if err != nil {
		return thread, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	short, err := scrapeThreadLink(link, server)
	if err != nil {
		return thread, err
	}
	short.IsClosed = remote.Find(row, "td.title img.closed").Length() > 0
	thread.Short = short
	thread.IsSticky = row.HasClass("sticky")

	authorLink, err := remote.SelectOne(row, "td.author > a")
	if err != nil {
		return thread, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	if thread.Author, thread.AuthorRole, err = scrapeUserLink(authorLink, server); err != nil {
		return thread, err
	}

	replies, err := parseDottedUint(remote.Find(row, "td.replies").Text())
	if err != nil {
		return thread, err
	}
	if replies > 0xffff {
		return thread, scrapeErr(CodeInvalidInteger, "reply count %d", replies)
	}
	thread.ReplyCount = uint16(replies)

	dateText := strings.TrimSpace(remote.Find(row, "td.date").Text())
	switch {
	case thread.IsSticky && dateText == "":
	case thread.IsSticky:
		return thread, scrapeErr(CodeUnexpectedThreadKind, "sticky thread %s has a date", short.ID)
	default:
		date, _, err := parseForumDateTime(texts, dateText, false)
		if err != nil {
			return thread, err
		}
		thread.LastMessageDate = &date
	}
	return thread, nil
}

// ScrapeForumThreadPage はスレッドの投稿一覧ページを解析する。投稿の本文はsanitizerで無害化する。
func ScrapeForumThreadPage(doc *goquery.Document, server model.HammerfestServer, sanitizer security.ContentSanitizer) (*model.HammerfestForumThreadPage, error) {
	ctx, err := scrapeExpectedContext(doc, server)
	if err != nil {
		return nil, err
	}
	texts := TextsFor(server)
	themeLink, err := remote.SelectOne(doc.Selection, "div.forumNav a.theme")
	if err != nil {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	theme, err := scrapeThemeLink(themeLink, server, texts)
	if err != nil {
		return nil, err
	}
	threadLink, err := remote.SelectOne(doc.Selection, "div.forumNav a.thread")
	if err != nil {
		return nil, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	thread, err := scrapeThreadLink(threadLink, server)
	if err != nil {
		return nil, err
	}
	thread.IsClosed = findDoc(doc, "div.threadClosed").Length() > 0
	page1, pages, err := scrapePagination(doc)
	if err != nil {
		return nil, err
	}

	posts := []model.HammerfestForumPost{}
	for _, msg := range nodes(findDoc(doc, "div.message")) {
		post, err := scrapePost(msg, server, texts, sanitizer)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return &model.HammerfestForumThreadPage{
		SessionUser: ctx.User,
		Theme:       theme,
		Thread:      thread,
		Messages: model.HammerfestForumPostListing{
			Page1: page1,
			Pages: pages,
			Items: posts,
		},
	}, nil
}

func scrapePost(msg *goquery.Selection, server model.HammerfestServer, texts *ScraperTexts, sanitizer security.ContentSanitizer) (model.HammerfestForumPost, error) {
	var post model.HammerfestForumPost
	if anchor := remote.Find(msg, "a[name]"); anchor.Length() > 0 {
		name, _ := anchor.First().Attr("name")
		m := messageIDRe.FindStringSubmatch(name)
		if m == nil {
			return post, scrapeErr(CodeInvalidForumPostID, "%q", name)
		}
		id, err := model.ParseHammerfestForumMessageID(m[1])
		if err != nil {
			return post, scrapeErr(CodeInvalidForumPostID, "%q", name)
		}
		post.ID = &id
	}

	author, err := remote.SelectOne(msg, "div.author")
	if err != nil {
		return post, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	userLink, err := remote.ChildOne(author, "a")
	if err != nil {
		return post, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	if post.Author.User, post.Author.Role, err = scrapeUserLink(userLink, server); err != nil {
		return post, err
	}
	post.Author.HasCarrot = remote.Find(author, "span.carrot").Length() > 0

	pyramid := remote.Find(author, "img.icon_pyramid")
	class, _ := pyramid.Attr("class")
	ladder, ok := ladderLevels[class]
	if !ok {
		return post, scrapeErr(CodeUnknownLadderLevelClass, "%q", class)
	}
	post.Author.LadderLevel = ladder
	if rank := remote.Find(author, "span.rank"); rank.Length() > 0 {
		n, err := parseDottedUint(rank.Text())
		if err != nil {
			return post, err
		}
		post.Author.Rank = &n
	}

	date, clock, err := parseForumDateTime(texts, strings.TrimSpace(remote.Find(msg, "div.date").Text()), true)
	if err != nil {
		return post, err
	}
	post.CTime = model.HammerfestDateTime{Date: date, Hour: clock[0], Minute: clock[1]}

	content, err := remote.SelectOne(msg, "div.content")
	if err != nil {
		return post, scrapeErr(CodeHTMLFragmentNotFound, "%v", err)
	}
	raw, err := content.Html()
	if err != nil {
		return post, scrapeErr(CodeHTMLFragmentNotFound, "post content: %v", err)
	}
	post.Content = sanitizer.Sanitize(raw)
	return post, nil
}

// scrapeUserLink は "/user.html/<id>" へのリンクからユーザーと役割を読む。
// 役割はリンクのclass属性(mod, admin)で表される。
func scrapeUserLink(link *goquery.Selection, server model.HammerfestServer) (model.ShortHammerfestUser, model.HammerfestForumRole, error) {
	var user model.ShortHammerfestUser
	href, _ := link.Attr("href")
	u, err := url.Parse(href)
	if err != nil {
		return user, "", scrapeErr(CodeInvalidUserID, "%q", href)
	}
	m := userURIRe.FindStringSubmatch(u.Path)
	if m == nil {
		return user, "", scrapeErr(CodeInvalidUserID, "%q", href)
	}
	name := strings.TrimSpace(link.Text())
	username, err := model.ParseHammerfestUsername(name)
	if err != nil {
		return user, "", scrapeErr(CodeInvalidUsername, "%q", name)
	}

	role := model.HammerfestForumRoleNone
	class, _ := link.Attr("class")
	switch class {
	case "":
	case "mod":
		role = model.HammerfestForumRoleModerator
	case "admin":
		role = model.HammerfestForumRoleAdministrator
	default:
		return user, "", scrapeErr(CodeUnknownUserRole, "%q", class)
	}
	return model.ShortHammerfestUser{Server: server, ID: model.HammerfestUserID(m[1]), Username: username}, role, nil
}

func scrapeThemeLink(link *goquery.Selection, server model.HammerfestServer, texts *ScraperTexts) (model.ShortHammerfestForumTheme, error) {
	href, _ := link.Attr("href")
	m := themeURIRe.FindStringSubmatch(pathOf(href))
	if m == nil {
		return model.ShortHammerfestForumTheme{}, scrapeErr(CodeInvalidForumThemeID, "%q", href)
	}
	id, err := model.ParseHammerfestForumThemeID(m[1])
	if err != nil {
		return model.ShortHammerfestForumTheme{}, scrapeErr(CodeInvalidForumThemeID, "%q", href)
	}
	rawName := strings.TrimSpace(link.Text())
	name, err := model.ParseHammerfestForumThemeTitle(rawName)
	if err != nil {
		return model.ShortHammerfestForumTheme{}, scrapeErr(CodeInvalidForumThemeTitle, "%q", rawName)
	}
	return model.ShortHammerfestForumTheme{Server: server, ID: id, Name: name, IsPublic: texts.IsPublicTheme(id)}, nil
}

func scrapeThreadLink(link *goquery.Selection, server model.HammerfestServer) (model.ShortHammerfestForumThread, error) {
	href, _ := link.Attr("href")
	m := threadURIRe.FindStringSubmatch(pathOf(href))
	if m == nil {
		return model.ShortHammerfestForumThread{}, scrapeErr(CodeInvalidForumThreadID, "%q", href)
	}
	id, err := model.ParseHammerfestForumThreadID(m[1])
	if err != nil {
		return model.ShortHammerfestForumThread{}, scrapeErr(CodeInvalidForumThreadID, "%q", href)
	}
	rawName := strings.TrimSpace(link.Text())
	name, err := model.ParseHammerfestForumThreadTitle(rawName)
	if err != nil {
		return model.ShortHammerfestForumThread{}, scrapeErr(CodeInvalidForumThreadTitle, "%q", rawName)
	}
	return model.ShortHammerfestForumThread{Server: server, ID: id, Name: name}, nil
}

func pathOf(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Path
}

// scrapePagination はページ番号を読む。ページ送りがない場合は1ページのみとみなす。
func scrapePagination(doc *goquery.Document) (page1, pages uint16, err error) {
	nav, err := remote.SelectOneOpt(doc.Selection, "div.pagination")
	if err != nil {
		return 0, 0, scrapeErr(CodeInvalidPagination, "%v", err)
	}
	if nav == nil {
		return 1, 1, nil
	}
	current, err1 := strconv.ParseUint(strings.TrimSpace(remote.Find(nav, "span.current").Text()), 10, 16)
	total, err2 := strconv.ParseUint(strings.TrimSpace(remote.Find(nav, "span.total").Text()), 10, 16)
	if err1 != nil || err2 != nil || current < 1 || current > total {
		return 0, 0, scrapeErr(CodeInvalidPagination, "%q", strings.TrimSpace(nav.Text()))
	}
	return uint16(current), uint16(total), nil
}

// parseForumDateTime は "lundi 12 mars 14h05" のような日時を読む。
// 語順はサーバーによって異なるため、曜日・月・日・時刻を単語ごとに判定する。
func parseForumDateTime(texts *ScraperTexts, text string, withTime bool) (model.HammerfestDate, [2]uint8, error) {
	var date model.HammerfestDate
	var clock [2]uint8
	hasTime := false
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	for _, field := range fields {
		if n, ok := texts.Weekday(field); ok {
			date.Weekday = n
			continue
		}
		if n, ok := texts.Month(field); ok {
			date.Month = n
			continue
		}
		if m := forumTimeRe.FindStringSubmatch(field); m != nil {
			h, _ := strconv.Atoi(m[1])
			mi, _ := strconv.Atoi(m[2])
			if h > 23 || mi > 59 {
				return date, clock, scrapeErr(CodeInvalidDate, "%q", text)
			}
			clock = [2]uint8{uint8(h), uint8(mi)}
			hasTime = true
			continue
		}
		if n, err := strconv.Atoi(field); err == nil && n >= 1 && n <= 31 {
			date.Day = uint8(n)
			continue
		}
		// 前置詞など("de", "à", "the")は読み飛ばす
	}
	if date.Weekday == 0 || date.Month == 0 || date.Day == 0 || (withTime && !hasTime) {
		return date, clock, scrapeErr(CodeInvalidDate, "%q", text)
	}
	return date, clock, nil
}

// parseDottedUint はドットを桁区切りとする整数を読む。空文字列は0とする。
func parseDottedUint(raw string) (uint32, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ".", "")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, scrapeErr(CodeInvalidInteger, "%q", raw)
	}
	return uint32(n), nil
}

func parseSmallUint(raw string) (uint8, error) {
	n, err := parseDottedUint(raw)
	if err != nil {
		return 0, err
	}
	if n > 0xff {
		return 0, scrapeErr(CodeInvalidInteger, "%q", raw)
	}
	return uint8(n), nil
}

// nodes は選択された要素を1つずつのSelectionに分ける。
func nodes(s *goquery.Selection) []*goquery.Selection {
	res := make([]*goquery.Selection, s.Length())
	for i := range res {
		res[i] = s.Eq(i)
	}
	return res
}
