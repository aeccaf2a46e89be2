package hammerfest

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

// postsPerPage はスレッドページ1ページあたりの投稿数。
const postsPerPage = 15

// threadsPerPage はテーマページ1ページあたりの通常スレッド数。
const threadsPerPage = 15

var (
	errForumThemeNotFound  = model.NewKindError(model.KindNotFound, "ForumThemeNotFound", nil)
	errForumThreadNotFound = model.NewKindError(model.KindNotFound, "ForumThreadNotFound", nil)
)

// MemClient はメモリ上でHammerfestのサーバーを模倣するクライアント。
// 各ユーザーは同時に1つのセッションのみを持つ。
type MemClient struct {
	mu      sync.Mutex
	clock   clock.Clock
	servers map[model.HammerfestServer]*memServer
}

type memServer struct {
	users         map[model.HammerfestUserID]*memUser
	sessions      map[model.HammerfestSessionKey]*model.HammerfestSession
	sessionByUser map[model.HammerfestUserID]model.HammerfestSessionKey
	themes        map[model.HammerfestForumThemeID]*memTheme
	threads       map[model.HammerfestForumThreadID]*memThread
	nextMessageID uint64
}

type memUser struct {
	user        model.ShortHammerfestUser
	password    model.HammerfestPassword
	tokens      uint32
	inventory   map[model.HammerfestItemID]uint32
	godchildren []model.HammerfestGodchild
	shop        model.HammerfestShop
}

type memTheme struct {
	theme model.HammerfestForumTheme
	// hiddenBy が設定されたテーマはそのユーザーにのみ表示される
	hiddenBy *model.HammerfestUserID
}

type memThread struct {
	themeID         model.HammerfestForumThemeID
	thread          model.HammerfestForumThread
	lastMessageTime time.Time
	posts           []model.HammerfestForumPost
}

// NewMemClient はMemClientを生成する。
func NewMemClient(clk clock.Clock) *MemClient {
	servers := map[model.HammerfestServer]*memServer{}
	for _, server := range model.HammerfestServers() {
		servers[server] = &memServer{
			users:         map[model.HammerfestUserID]*memUser{},
			sessions:      map[model.HammerfestSessionKey]*model.HammerfestSession{},
			sessionByUser: map[model.HammerfestUserID]model.HammerfestSessionKey{},
			themes:        map[model.HammerfestForumThemeID]*memTheme{},
			threads:       map[model.HammerfestForumThreadID]*memThread{},
		}
	}
	return &MemClient{clock: clk, servers: servers}
}

// CreateUser はユーザーを登録する。
func (c *MemClient) CreateUser(server model.HammerfestServer, id model.HammerfestUserID, username model.HammerfestUsername, password model.HammerfestPassword) {
	c.mu.Lock()
	defer c.mu.Unlock()
	zero := uint8(0)
	c.servers[server].users[id] = &memUser{
		user:      model.ShortHammerfestUser{Server: server, ID: id, Username: username},
		password:  password,
		inventory: map[model.HammerfestItemID]uint32{},
		shop:      model.HammerfestShop{PurchasedTokens: &zero},
	}
}

// SetTokens は所持トークン数を設定する。
func (c *MemClient) SetTokens(ref model.HammerfestUserIDRef, tokens uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.user(ref); u != nil {
		u.tokens = tokens
	}
}

// SetInventory は所持品を設定する。
func (c *MemClient) SetInventory(ref model.HammerfestUserIDRef, inventory map[model.HammerfestItemID]uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.user(ref); u != nil {
		u.inventory = inventory
	}
}

// AddGodchild は紹介したユーザーを追加する。
func (c *MemClient) AddGodchild(ref model.HammerfestUserIDRef, child model.HammerfestGodchild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.user(ref); u != nil {
		u.godchildren = append(u.godchildren, child)
	}
}

// CreateForumTheme はテーマを登録する。hiddenBy を指定するとそのユーザー専用の非公開テーマになる。
func (c *MemClient) CreateForumTheme(server model.HammerfestServer, id model.HammerfestForumThemeID, name model.HammerfestForumThemeTitle, description model.HammerfestForumThemeDescription, hiddenBy *model.HammerfestUserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[server].themes[id] = &memTheme{
		theme: model.HammerfestForumTheme{
			Short:       model.ShortHammerfestForumTheme{Server: server, ID: id, Name: name, IsPublic: hiddenBy == nil},
			Description: description,
		},
		hiddenBy: hiddenBy,
	}
}

// CreateForumThread はスレッドを作成する。content は最初の投稿になる。
func (c *MemClient) CreateForumThread(author model.HammerfestUserIDRef, theme model.HammerfestForumThemeID, id model.HammerfestForumThreadID, title model.HammerfestForumThreadTitle, content string, sticky bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[author.Server]
	if !ok {
		return model.NewInvalidRequestError("unknown hammerfest server")
	}
	if _, ok := srv.themes[theme]; !ok {
		return errForumThemeNotFound
	}
	u, ok := srv.users[author.ID]
	if !ok {
		return model.NewRemoteUserNotFoundError(model.ErrCodeHammerfestUserNotFound, string(author.Server), string(author.ID))
	}
	now := c.clock.Now()
	date := makeForumDate(now)
	t := &memThread{
		themeID: theme,
		thread: model.HammerfestForumThread{
			Short:           model.ShortHammerfestForumThread{Server: author.Server, ID: id, Name: title},
			Author:          u.user,
			AuthorRole:      model.HammerfestForumRoleNone,
			IsSticky:        sticky,
			LastMessageDate: &date.Date,
		},
		lastMessageTime: now,
	}
	if sticky {
		t.thread.LastMessageDate = nil
	}
	t.posts = append(t.posts, c.newPost(srv, u, now, content))
	srv.threads[id] = t
	return nil
}

// CreateForumPost はスレッドに返信する。
func (c *MemClient) CreateForumPost(author model.HammerfestUserIDRef, thread model.HammerfestForumThreadID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[author.Server]
	if !ok {
		return model.NewInvalidRequestError("unknown hammerfest server")
	}
	t, ok := srv.threads[thread]
	if !ok {
		return errForumThreadNotFound
	}
	u, ok := srv.users[author.ID]
	if !ok {
		return model.NewRemoteUserNotFoundError(model.ErrCodeHammerfestUserNotFound, string(author.Server), string(author.ID))
	}
	now := c.clock.Now()
	t.posts = append(t.posts, c.newPost(srv, u, now, content))
	t.thread.ReplyCount++
	t.lastMessageTime = now
	if !t.thread.IsSticky {
		date := makeForumDate(now).Date
		t.thread.LastMessageDate = &date
	}
	return nil
}

func (c *MemClient) newPost(srv *memServer, u *memUser, now time.Time, content string) model.HammerfestForumPost {
	srv.nextMessageID++
	id := model.HammerfestForumMessageID(strconv.FormatUint(srv.nextMessageID, 10))
	return model.HammerfestForumPost{
		ID: &id,
		Author: model.HammerfestForumPostAuthor{
			User:        u.user,
			LadderLevel: 4,
			Role:        model.HammerfestForumRoleNone,
		},
		CTime:   makeForumDate(now),
		Content: content,
	}
}

// makeForumDate は時刻をフォーラムに表示される年なしの日時に変換する。
func makeForumDate(t time.Time) model.HammerfestDateTime {
	weekday := uint8(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return model.HammerfestDateTime{
		Date:   model.HammerfestDate{Month: uint8(t.Month()), Day: uint8(t.Day()), Weekday: weekday},
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
	}
}

func (c *MemClient) user(ref model.HammerfestUserIDRef) *memUser {
	srv, ok := c.servers[ref.Server]
	if !ok {
		return nil
	}
	return srv.users[ref.ID]
}

// CreateSession はユーザー名とパスワードを照合し、セッションを作り直す。既存のセッションは無効になる。
func (c *MemClient) CreateSession(_ context.Context, creds model.HammerfestCredentials) (*model.HammerfestSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[creds.Server]
	if !ok {
		return nil, model.NewInvalidRequestError("unknown hammerfest server")
	}
	var found *memUser
	for _, u := range srv.users {
		if u.user.Username == creds.Username {
			found = u
			break
		}
	}
	if found == nil || found.password != creds.Password {
		return nil, model.NewInvalidCredentialsError()
	}

	if old, ok := srv.sessionByUser[found.user.ID]; ok {
		delete(srv.sessions, old)
	}
	now := c.clock.Now()
	session := &model.HammerfestSession{
		CreatedAt:  now,
		AccessedAt: now,
		Key:        newSessionKey(),
		User:       found.user,
	}
	srv.sessions[session.Key] = session
	srv.sessionByUser[found.user.ID] = session.Key
	copied := *session
	return &copied, nil
}

// newSessionKey は [0-9a-z]{26} のキーを生成する。
func newSessionKey() model.HammerfestSessionKey {
	return model.HammerfestSessionKey(strings.ReplaceAll(uuid.NewString(), "-", "")[:26])
}

func (c *MemClient) TestSession(_ context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) (*model.HammerfestSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[server]
	if !ok {
		return nil, nil
	}
	session, ok := srv.sessions[key]
	if !ok {
		return nil, nil
	}
	session.AccessedAt = c.clock.Now()
	copied := *session
	return &copied, nil
}

func (c *MemClient) GetProfileByID(_ context.Context, session *model.HammerfestSession, ref model.HammerfestUserIDRef) (*model.HammerfestProfileResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionUser, err := c.optSessionUser(session, ref.Server)
	if err != nil {
		return nil, err
	}
	resp := &model.HammerfestProfileResponse{SessionUser: sessionUser}
	u := c.user(ref)
	if u == nil {
		return resp, nil
	}
	items := make([]model.HammerfestItemID, 0, len(u.inventory))
	for id := range u.inventory {
		items = append(items, id)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	profile := &model.HammerfestProfile{
		User:        u.user,
		LadderLevel: 4,
		Items:       items,
		Quests:      map[model.HammerfestQuestID]model.HammerfestQuestStatus{},
	}
	if sessionUser != nil {
		profile.Email = &model.HammerfestProfileEmail{}
	}
	resp.Profile = profile
	return resp, nil
}

func (c *MemClient) GetOwnItems(_ context.Context, session *model.HammerfestSession) (*model.HammerfestInventoryResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, u, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	inventory := make(map[model.HammerfestItemID]uint32, len(u.inventory))
	for k, v := range u.inventory {
		inventory[k] = v
	}
	return &model.HammerfestInventoryResponse{SessionUser: su, Inventory: inventory}, nil
}

func (c *MemClient) GetOwnGodchildren(_ context.Context, session *model.HammerfestSession) (*model.HammerfestGodchildrenResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, u, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	return &model.HammerfestGodchildrenResponse{
		SessionUser: su,
		Godchildren: append([]model.HammerfestGodchild{}, u.godchildren...),
	}, nil
}

func (c *MemClient) GetOwnShop(_ context.Context, session *model.HammerfestSession) (*model.HammerfestShopResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, u, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	shop := u.shop
	shop.Tokens = u.tokens
	return &model.HammerfestShopResponse{SessionUser: su, Shop: shop}, nil
}

// GetForumThemes は閲覧者に表示されるテーマをID順に返す。
func (c *MemClient) GetForumThemes(_ context.Context, session *model.HammerfestSession, server model.HammerfestServer) (*model.HammerfestForumHome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, err := c.optSessionUser(session, server)
	if err != nil {
		return nil, err
	}
	themes := []model.HammerfestForumTheme{}
	for _, t := range c.servers[server].themes {
		if t.visibleTo(su) {
			themes = append(themes, t.theme)
		}
	}
	sort.Slice(themes, func(i, j int) bool {
		return decimalLess(string(themes[i].Short.ID), string(themes[j].Short.ID))
	})
	return &model.HammerfestForumHome{SessionUser: su, Themes: themes}, nil
}

// GetForumThemePage はテーマのスレッド一覧を返す。
// 固定スレッドは毎ページ先頭に、通常スレッドは最終投稿の新しい順に並ぶ。
func (c *MemClient) GetForumThemePage(_ context.Context, session *model.HammerfestSession, server model.HammerfestServer, theme model.HammerfestForumThemeID, page uint16) (*model.HammerfestForumThemePage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, err := c.optSessionUser(session, server)
	if err != nil {
		return nil, err
	}
	srv := c.servers[server]
	t, ok := srv.themes[theme]
	if !ok || !t.visibleTo(su) {
		return nil, errForumThemeNotFound
	}

	sticky := []model.HammerfestForumThread{}
	var regular []*memThread
	for _, th := range srv.threads {
		if th.themeID != theme {
			continue
		}
		if th.thread.IsSticky {
			sticky = append(sticky, th.thread)
		} else {
			regular = append(regular, th)
		}
	}
	sort.Slice(sticky, func(i, j int) bool { return decimalLess(string(sticky[i].Short.ID), string(sticky[j].Short.ID)) })
	sort.Slice(regular, func(i, j int) bool { return regular[i].lastMessageTime.After(regular[j].lastMessageTime) })

	pages := pageCount(len(regular), threadsPerPage)
	items := []model.HammerfestForumThread{}
	for _, th := range pageSlice(regular, page, threadsPerPage) {
		items = append(items, th.thread)
	}
	return &model.HammerfestForumThemePage{
		SessionUser: su,
		Theme:       t.theme.Short,
		Sticky:      sticky,
		Threads:     model.HammerfestForumThreadListing{Page1: page, Pages: pages, Items: items},
	}, nil
}

// GetForumThreadPage はスレッドの投稿を1ページ15件ずつ返す。
func (c *MemClient) GetForumThreadPage(_ context.Context, session *model.HammerfestSession, server model.HammerfestServer, thread model.HammerfestForumThreadID, page uint16) (*model.HammerfestForumThreadPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, err := c.optSessionUser(session, server)
	if err != nil {
		return nil, err
	}
	srv := c.servers[server]
	th, ok := srv.threads[thread]
	if !ok {
		return nil, errForumThreadNotFound
	}
	t := srv.themes[th.themeID]
	if !t.visibleTo(su) {
		return nil, errForumThreadNotFound
	}
	posts := append([]model.HammerfestForumPost{}, pageSlice(th.posts, page, postsPerPage)...)
	return &model.HammerfestForumThreadPage{
		SessionUser: su,
		Theme:       t.theme.Short,
		Thread:      th.thread.Short,
		Messages: model.HammerfestForumPostListing{
			Page1: page,
			Pages: pageCount(len(th.posts), postsPerPage),
			Items: posts,
		},
	}, nil
}

func (t *memTheme) visibleTo(su *model.HammerfestSessionUser) bool {
	if t.hiddenBy == nil {
		return true
	}
	return su != nil && su.User.ID == *t.hiddenBy
}

// optSessionUser はセッションがあれば検証して上部バー相当の情報を返す。
func (c *MemClient) optSessionUser(session *model.HammerfestSession, server model.HammerfestServer) (*model.HammerfestSessionUser, error) {
	if session == nil {
		if _, ok := c.servers[server]; !ok {
			return nil, model.NewInvalidRequestError("unknown hammerfest server")
		}
		return nil, nil
	}
	if session.User.Server != server {
		return nil, model.NewInvalidRequestError("session server mismatch")
	}
	su, _, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	return &su, nil
}

func (c *MemClient) sessionUser(session *model.HammerfestSession) (model.HammerfestSessionUser, *memUser, error) {
	if session == nil {
		return model.HammerfestSessionUser{}, nil, model.NewInvalidRequestError("missing hammerfest session")
	}
	srv, ok := c.servers[session.User.Server]
	if !ok {
		return model.HammerfestSessionUser{}, nil, errSessionExpired
	}
	stored, ok := srv.sessions[session.Key]
	if !ok {
		return model.HammerfestSessionUser{}, nil, errSessionExpired
	}
	stored.AccessedAt = c.clock.Now()
	u := srv.users[stored.User.ID]
	return model.HammerfestSessionUser{User: u.user, Tokens: u.tokens}, u, nil
}

func pageCount(n, perPage int) uint16 {
	if n == 0 {
		return 1
	}
	return uint16((n + perPage - 1) / perPage)
}

// pageSlice は1から始まるページ番号の範囲を返す。範囲外のページは空になる。
func pageSlice[T any](items []T, page uint16, perPage int) []T {
	if page == 0 {
		return nil
	}
	start := (int(page) - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func decimalLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

var _ Client = (*MemClient)(nil)
