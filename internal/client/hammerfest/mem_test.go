package hammerfest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

var (
	memAlice = model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "42"}
	memBob   = model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "71"}
)

func newTestMemClient() (*MemClient, *clock.VirtualClock) {
	// 2021-01-04 は月曜日
	clk := clock.NewVirtualClock(time.Date(2021, 1, 4, 10, 30, 0, 0, time.UTC))
	c := NewMemClient(clk)
	c.CreateUser(model.HammerfestServerFr, "42", "alice", "secret")
	c.CreateUser(model.HammerfestServerFr, "71", "bob", "hunter2")
	return c, clk
}

func login(t *testing.T, c *MemClient, username model.HammerfestUsername, password model.HammerfestPassword) *model.HammerfestSession {
	t.Helper()
	session, err := c.CreateSession(context.Background(), model.HammerfestCredentials{Server: model.HammerfestServerFr, Username: username, Password: password})
	require.NoError(t, err)
	return session
}

// TestMemClient_CreateSession はパスワードの照合と、再ログインで古いセッションが無効になることを検証する。
func TestMemClient_CreateSession(t *testing.T) {
	c, clk := newTestMemClient()
	ctx := context.Background()

	_, err := c.CreateSession(ctx, model.HammerfestCredentials{Server: model.HammerfestServerFr, Username: "alice", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidCredentials, model.KindOf(err))

	first := login(t, c, "alice", "secret")
	_, err = model.ParseHammerfestSessionKey(string(first.Key))
	assert.NoError(t, err, "セッションキーの形式が正しいこと")

	clk.AdvanceBy(time.Minute)
	second := login(t, c, "alice", "secret")
	assert.NotEqual(t, first.Key, second.Key)

	old, err := c.TestSession(ctx, model.HammerfestServerFr, first.Key)
	require.NoError(t, err)
	assert.Nil(t, old, "古いセッションは無効になること")

	current, err := c.TestSession(ctx, model.HammerfestServerFr, second.Key)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, clk.Now(), current.AccessedAt)
}

// TestMemClient_OwnPages は所持品、ショップ、紹介ページを検証する。
func TestMemClient_OwnPages(t *testing.T) {
	c, _ := newTestMemClient()
	ctx := context.Background()
	c.SetTokens(memAlice, 30)
	c.SetInventory(memAlice, map[model.HammerfestItemID]uint32{"1000": 2, "7": 1})
	c.AddGodchild(memAlice, model.HammerfestGodchild{User: model.ShortHammerfestUser{Server: model.HammerfestServerFr, ID: "71", Username: "bob"}, Tokens: 5})
	session := login(t, c, "alice", "secret")

	inv, err := c.GetOwnItems(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), inv.SessionUser.Tokens)
	assert.Equal(t, map[model.HammerfestItemID]uint32{"1000": 2, "7": 1}, inv.Inventory)

	shop, err := c.GetOwnShop(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), shop.Shop.Tokens)
	require.NotNil(t, shop.Shop.PurchasedTokens)
	assert.Equal(t, uint8(0), *shop.Shop.PurchasedTokens)

	godchildren, err := c.GetOwnGodchildren(ctx, session)
	require.NoError(t, err)
	require.Len(t, godchildren.Godchildren, 1)

	profile, err := c.GetProfileByID(ctx, session, memAlice)
	require.NoError(t, err)
	require.NotNil(t, profile.Profile)
	assert.Equal(t, []model.HammerfestItemID{"1000", "7"}, profile.Profile.Items)
	require.NotNil(t, profile.Profile.Email, "ログイン中はメールアドレスの有無が分かること")
	assert.Nil(t, profile.Profile.Email.Address)

	missing, err := c.GetProfileByID(ctx, nil, model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "404"})
	require.NoError(t, err)
	assert.Nil(t, missing.Profile)

	_, err = c.GetOwnItems(ctx, &model.HammerfestSession{Key: "zzzzzzzzzzzzzzzzzzzzzzzzzz", User: session.User})
	assert.Equal(t, model.KindInvalidCredentials, model.KindOf(err))
}

// TestMemClient_Forum はテーマの公開範囲、スレッドの並び順、投稿のページ分割を検証する。
func TestMemClient_Forum(t *testing.T) {
	c, clk := newTestMemClient()
	ctx := context.Background()
	bobID := model.HammerfestUserID("71")
	c.CreateForumTheme(model.HammerfestServerFr, "3", "Général", "Discussions", nil)
	c.CreateForumTheme(model.HammerfestServerFr, "2", "Annonces", "Nouvelles", nil)
	c.CreateForumTheme(model.HammerfestServerFr, "50", "Privé", "Réservé", &bobID)

	require.NoError(t, c.CreateForumThread(memAlice, "3", "10", "Règles", "Lisez-moi", true))
	require.NoError(t, c.CreateForumThread(memAlice, "3", "11", "Bonjour", "Salut", false))
	clk.AdvanceBy(time.Hour)
	require.NoError(t, c.CreateForumThread(memBob, "3", "12", "Question", "Comment ?", false))
	clk.AdvanceBy(time.Hour)
	for i := 0; i < 15; i++ {
		require.NoError(t, c.CreateForumPost(memBob, "11", "Réponse"))
	}

	t.Run("テーマ一覧", func(t *testing.T) {
		home, err := c.GetForumThemes(ctx, nil, model.HammerfestServerFr)
		require.NoError(t, err)
		require.Len(t, home.Themes, 2, "非公開テーマはゲストに見えないこと")
		assert.Equal(t, model.HammerfestForumThemeID("2"), home.Themes[0].Short.ID)

		bob := login(t, c, "bob", "hunter2")
		home, err = c.GetForumThemes(ctx, bob, model.HammerfestServerFr)
		require.NoError(t, err)
		require.Len(t, home.Themes, 3)
		assert.False(t, home.Themes[2].Short.IsPublic)

		_, err = c.GetForumThemePage(ctx, nil, model.HammerfestServerFr, "50", 1)
		assert.Equal(t, model.KindNotFound, model.KindOf(err))
	})

	t.Run("テーマページ", func(t *testing.T) {
		page, err := c.GetForumThemePage(ctx, nil, model.HammerfestServerFr, "3", 1)
		require.NoError(t, err)
		require.Len(t, page.Sticky, 1)
		assert.Nil(t, page.Sticky[0].LastMessageDate)
		require.Len(t, page.Threads.Items, 2)
		assert.Equal(t, model.HammerfestForumThreadID("11"), page.Threads.Items[0].Short.ID, "最後に返信されたスレッドが先頭になること")
		assert.Equal(t, uint16(15), page.Threads.Items[0].ReplyCount)
		assert.Equal(t, &model.HammerfestDate{Month: 1, Day: 4, Weekday: 1}, page.Threads.Items[0].LastMessageDate)
	})

	t.Run("スレッドページ", func(t *testing.T) {
		first, err := c.GetForumThreadPage(ctx, nil, model.HammerfestServerFr, "11", 1)
		require.NoError(t, err)
		assert.Equal(t, uint16(2), first.Messages.Pages)
		require.Len(t, first.Messages.Items, 15)
		assert.Equal(t, "Salut", first.Messages.Items[0].Content)
		assert.Equal(t, model.HammerfestDateTime{Date: model.HammerfestDate{Month: 1, Day: 4, Weekday: 1}, Hour: 10, Minute: 30}, first.Messages.Items[0].CTime)

		second, err := c.GetForumThreadPage(ctx, nil, model.HammerfestServerFr, "11", 2)
		require.NoError(t, err)
		require.Len(t, second.Messages.Items, 1)
		assert.Equal(t, model.HammerfestUsername("bob"), second.Messages.Items[0].Author.User.Username)

		_, err = c.GetForumThreadPage(ctx, nil, model.HammerfestServerFr, "999", 1)
		assert.Equal(t, model.KindNotFound, model.KindOf(err))
	})
}

// TestMakeForumDate は日曜日を7として扱うことを検証する。
func TestMakeForumDate(t *testing.T) {
	got := makeForumDate(time.Date(2021, 1, 10, 23, 5, 0, 0, time.UTC))
	assert.Equal(t, model.HammerfestDateTime{Date: model.HammerfestDate{Month: 1, Day: 10, Weekday: 7}, Hour: 23, Minute: 5}, got)
}
