package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

const (
	fieldHammerfestUsername    = "hammerfest_user.username"
	fieldHammerfestProfile     = "hammerfest_user.profile"
	fieldHammerfestInventory   = "hammerfest_user.inventory"
	fieldHammerfestShop        = "hammerfest_user.shop"
	fieldHammerfestGodchildren = "hammerfest_user.godchildren"
	fieldHammerfestTokens      = "hammerfest_user.tokens"
	fieldForumThemeName        = "hammerfest_forum_theme.name"
	fieldForumThemeIsPublic    = "hammerfest_forum_theme.is_public"
	fieldForumThemeSticky      = "hammerfest_forum_theme.sticky"
	fieldForumThemePage        = "hammerfest_forum_theme.page"
	fieldForumThreadName       = "hammerfest_forum_thread.name"
	fieldForumThreadTheme      = "hammerfest_forum_thread.theme"
	fieldForumThreadIsClosed   = "hammerfest_forum_thread.is_closed"
	fieldForumThreadIsSticky   = "hammerfest_forum_thread.is_sticky"
	fieldForumThreadAuthor     = "hammerfest_forum_thread.author"
	fieldForumThreadReplyCount = "hammerfest_forum_thread.reply_count"
	fieldForumThreadLastDate   = "hammerfest_forum_thread.last_message_date"
	fieldForumPost             = "hammerfest_forum_post.message"
)

var hammerfestUserFields = []string{
	fieldHammerfestUsername,
	fieldHammerfestProfile,
	fieldHammerfestInventory,
	fieldHammerfestShop,
	fieldHammerfestGodchildren,
	fieldHammerfestTokens,
}

// archivedForumPost はアーカイブする投稿。投稿者はIDのみを保持し、ユーザー名はユーザーのアーカイブから引く。
type archivedForumPost struct {
	ID      *model.HammerfestForumMessageID `json:"id"`
	Author  model.HammerfestUserIDRef       `json:"author"`
	Role    model.HammerfestForumRole       `json:"role"`
	CTime   model.HammerfestDateTime        `json:"ctime"`
	Content string                          `json:"content"`
}

type hammerfestStore struct {
	archiveStore
}

// MemHammerfestStore はメモリ上のHammerfestアーカイブ。
type MemHammerfestStore struct {
	hammerfestStore
}

// NewMemHammerfestStore はMemHammerfestStoreを生成する。
func NewMemHammerfestStore(clk clock.Clock, opts ...StoreOption) *MemHammerfestStore {
	return &MemHammerfestStore{hammerfestStore{archiveStore{
		backend: newMemArchive(),
		now:     clk.Now,
		name:    "hammerfest",
		opts:    buildStoreOptions(opts),
	}}}
}

// PostgresHammerfestStore はPostgreSQLを使用したHammerfestアーカイブ。
type PostgresHammerfestStore struct {
	hammerfestStore
}

// NewPostgresHammerfestStore はPostgresHammerfestStoreを生成する。
func NewPostgresHammerfestStore(db *sql.DB, clk clock.Clock, opts ...StoreOption) *PostgresHammerfestStore {
	return &PostgresHammerfestStore{hammerfestStore{archiveStore{
		backend: newPgArchive(db),
		now:     clk.Now,
		name:    "hammerfest",
		opts:    buildStoreOptions(opts),
	}}}
}

func hammerfestUserSubject(ref model.HammerfestUserIDRef) string {
	return subjectOf(string(ref.Server), string(ref.ID))
}

// GetShortUser はユーザーの最小限の情報を返す。アーカイブにない場合はnilを返す。
func (s *hammerfestStore) GetShortUser(ctx context.Context, opts model.GetHammerfestUserOptions) (*model.ShortHammerfestUser, error) {
	user, err := s.GetUser(ctx, opts)
	if err != nil || user == nil {
		return nil, err
	}
	short := user.Short()
	return &short, nil
}

// GetUser はアーカイブされたユーザーを返す。Time がアーカイブ開始より前の場合はnilを返す。
func (s *hammerfestStore) GetUser(ctx context.Context, opts model.GetHammerfestUserOptions) (*model.ArchivedHammerfestUser, error) {
	ref := opts.Ref()
	var user *model.ArchivedHammerfestUser
	err := s.view(ctx, func(r archiveReader) error {
		var err error
		user, err = readHammerfestUser(ctx, r, ref, opts.Time)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get hammerfest user: %w", err)
	}
	return user, nil
}

func readHammerfestUser(ctx context.Context, r archiveReader, ref model.HammerfestUserIDRef, t *time.Time) (*model.ArchivedHammerfestUser, error) {
	archivedAt, err := r.archivedAt(ctx, entityHammerfestUser, string(ref.Server), string(ref.ID))
	if err != nil || archivedAt == nil {
		return nil, err
	}
	if t != nil && t.Before(*archivedAt) {
		return nil, nil
	}

	subject := hammerfestUserSubject(ref)
	values, err := r.read(ctx, subject, t, hammerfestUserFields...)
	if err != nil {
		return nil, err
	}
	username, err := readUsername[model.HammerfestUsername](ctx, r, subject, values, fieldHammerfestUsername)
	if err != nil {
		return nil, err
	}

	user := &model.ArchivedHammerfestUser{
		Server:     ref.Server,
		ID:         ref.ID,
		Username:   username,
		ArchivedAt: *archivedAt,
	}
	if user.Profile, err = decodeLatest[model.ArchivedHammerfestProfile](values, fieldHammerfestProfile); err != nil {
		return nil, err
	}
	if user.Inventory, err = decodeLatest[map[model.HammerfestItemID]uint32](values, fieldHammerfestInventory); err != nil {
		return nil, err
	}
	if user.Shop, err = decodeLatest[model.HammerfestShop](values, fieldHammerfestShop); err != nil {
		return nil, err
	}
	if user.Godchildren, err = decodeLatest[[]model.HammerfestGodchild](values, fieldHammerfestGodchildren); err != nil {
		return nil, err
	}
	if user.Tokens, err = decodeLatest[uint32](values, fieldHammerfestTokens); err != nil {
		return nil, err
	}
	return user, nil
}

// TouchShortUser はユーザー名を記録し、アーカイブされたユーザーを返す。
func (s *hammerfestStore) TouchShortUser(ctx context.Context, user model.ShortHammerfestUser) (*model.ArchivedHammerfestUser, error) {
	err := s.touch(ctx, func(t *toucher) {
		touchHammerfestUser(t, user)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch hammerfest user: %w", err)
	}
	return s.GetUser(ctx, model.GetHammerfestUserOptions{Server: user.Server, ID: user.ID})
}

// TouchProfile はプロフィールページを記録する。Profile が nil の場合はセッションユーザーのみを記録する。
func (s *hammerfestStore) TouchProfile(ctx context.Context, resp *model.HammerfestProfileResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		if resp.SessionUser != nil {
			touchHammerfestSessionUser(t, *resp.SessionUser)
		}
		p := resp.Profile
		if p == nil {
			return
		}
		touchHammerfestUser(t, p.User)
		archived := model.ArchivedHammerfestProfile{
			BestScore:   p.BestScore,
			BestLevel:   p.BestLevel,
			SeasonScore: p.SeasonScore,
			HasCarrot:   p.HasCarrot,
			LadderLevel: p.LadderLevel,
			HallOfFame:  p.HallOfFame,
			Items:       p.Items,
			Quests:      p.Quests,
		}
		if archived.Items == nil {
			archived.Items = []model.HammerfestItemID{}
		}
		if archived.Quests == nil {
			archived.Quests = map[model.HammerfestQuestID]model.HammerfestQuestStatus{}
		}
		t.field(fieldHammerfestProfile, hammerfestUserSubject(p.User.Ref()), archived)
	})
	if err != nil {
		return fmt.Errorf("failed to touch hammerfest profile: %w", err)
	}
	return nil
}

// TouchShop はショップページを記録する。
func (s *hammerfestStore) TouchShop(ctx context.Context, resp *model.HammerfestShopResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		touchHammerfestSessionUser(t, resp.SessionUser)
		t.field(fieldHammerfestShop, hammerfestUserSubject(resp.SessionUser.User.Ref()), resp.Shop)
	})
	if err != nil {
		return fmt.Errorf("failed to touch hammerfest shop: %w", err)
	}
	return nil
}

// TouchInventory は所持品ページを記録する。
func (s *hammerfestStore) TouchInventory(ctx context.Context, resp *model.HammerfestInventoryResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		touchHammerfestSessionUser(t, resp.SessionUser)
		inventory := resp.Inventory
		if inventory == nil {
			inventory = map[model.HammerfestItemID]uint32{}
		}
		t.field(fieldHammerfestInventory, hammerfestUserSubject(resp.SessionUser.User.Ref()), inventory)
	})
	if err != nil {
		return fmt.Errorf("failed to touch hammerfest inventory: %w", err)
	}
	return nil
}

// TouchGodchildren は紹介ページを記録する。紹介されたユーザーもアーカイブする。
func (s *hammerfestStore) TouchGodchildren(ctx context.Context, resp *model.HammerfestGodchildrenResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		touchHammerfestSessionUser(t, resp.SessionUser)
		godchildren := resp.Godchildren
		if godchildren == nil {
			godchildren = []model.HammerfestGodchild{}
		}
		for _, g := range godchildren {
			touchHammerfestUser(t, g.User)
		}
		t.field(fieldHammerfestGodchildren, hammerfestUserSubject(resp.SessionUser.User.Ref()), godchildren)
	})
	if err != nil {
		return fmt.Errorf("failed to touch hammerfest godchildren: %w", err)
	}
	return nil
}

// TouchThemePage はテーマのスレッド一覧ページを記録する。
// 固定スレッドはテーマ単位で、通常のスレッドはページ単位で一覧を記録する。
func (s *hammerfestStore) TouchThemePage(ctx context.Context, page *model.HammerfestForumThemePage) error {
	err := s.touch(ctx, func(t *toucher) {
		if page.SessionUser != nil {
			touchHammerfestSessionUser(t, *page.SessionUser)
		}
		theme := page.Theme
		touchForumTheme(t, theme)

		sticky := make([]model.HammerfestForumThreadID, 0, len(page.Sticky))
		for _, th := range page.Sticky {
			touchForumThread(t, theme.ID, th)
			sticky = append(sticky, th.Short.ID)
		}
		items := make([]model.HammerfestForumThreadID, 0, len(page.Threads.Items))
		for _, th := range page.Threads.Items {
			touchForumThread(t, theme.ID, th)
			items = append(items, th.Short.ID)
		}

		server := string(theme.Server)
		if page.Threads.Page1 == 1 {
			t.field(fieldForumThemeSticky, subjectOf(server, string(theme.ID)), sticky)
		}
		t.field(fieldForumThemePage, subjectOf(server, string(theme.ID), strconv.Itoa(int(page.Threads.Page1))), items)
	})
	if err != nil {
		return fmt.Errorf("failed to touch hammerfest theme page: %w", err)
	}
	return nil
}

// TouchThreadPage はスレッドの投稿ページを記録する。投稿はページ内の位置ごとに記録する。
func (s *hammerfestStore) TouchThreadPage(ctx context.Context, page *model.HammerfestForumThreadPage) error {
	err := s.touch(ctx, func(t *toucher) {
		if page.SessionUser != nil {
			touchHammerfestSessionUser(t, *page.SessionUser)
		}
		touchForumTheme(t, page.Theme)

		thread := page.Thread
		server := string(thread.Server)
		threadSubject := subjectOf(server, string(thread.ID))
		t.entity(entityHammerfestForumThread, server, string(thread.ID))
		t.field(fieldForumThreadName, threadSubject, thread.Name)
		t.field(fieldForumThreadTheme, threadSubject, page.Theme.ID)
		t.field(fieldForumThreadIsClosed, threadSubject, thread.IsClosed)

		pageNumber := strconv.Itoa(int(page.Messages.Page1))
		for i, m := range page.Messages.Items {
			touchHammerfestUser(t, m.Author.User)
			post := archivedForumPost{
				ID:      m.ID,
				Author:  m.Author.User.Ref(),
				Role:    m.Author.Role,
				CTime:   m.CTime,
				Content: m.Content,
			}
			t.field(fieldForumPost, subjectOf(server, string(thread.ID), pageNumber, strconv.Itoa(i)), post)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to touch hammerfest thread page: %w", err)
	}
	return nil
}

func touchHammerfestUser(t *toucher, user model.ShortHammerfestUser) {
	t.entity(entityHammerfestUser, string(user.Server), string(user.ID))
	t.unique(fieldHammerfestUsername, string(user.Server), hammerfestUserSubject(user.Ref()), user.Username)
}

func touchHammerfestSessionUser(t *toucher, su model.HammerfestSessionUser) {
	touchHammerfestUser(t, su.User)
	t.field(fieldHammerfestTokens, hammerfestUserSubject(su.User.Ref()), su.Tokens)
}

func touchForumTheme(t *toucher, theme model.ShortHammerfestForumTheme) {
	server := string(theme.Server)
	subject := subjectOf(server, string(theme.ID))
	t.entity(entityHammerfestForumTheme, server, string(theme.ID))
	t.field(fieldForumThemeName, subject, theme.Name)
	t.field(fieldForumThemeIsPublic, subject, theme.IsPublic)
}

func touchForumThread(t *toucher, theme model.HammerfestForumThemeID, th model.HammerfestForumThread) {
	server := string(th.Short.Server)
	subject := subjectOf(server, string(th.Short.ID))
	touchHammerfestUser(t, th.Author)
	t.entity(entityHammerfestForumThread, server, string(th.Short.ID))
	t.field(fieldForumThreadName, subject, th.Short.Name)
	t.field(fieldForumThreadTheme, subject, theme)
	t.field(fieldForumThreadIsClosed, subject, th.Short.IsClosed)
	t.field(fieldForumThreadIsSticky, subject, th.IsSticky)
	t.field(fieldForumThreadAuthor, subject, th.Author.Ref())
	t.field(fieldForumThreadReplyCount, subject, th.ReplyCount)
	if th.LastMessageDate != nil {
		t.field(fieldForumThreadLastDate, subject, *th.LastMessageDate)
	}
}

// compile-time interface check
var (
	_ HammerfestStore = (*MemHammerfestStore)(nil)
	_ HammerfestStore = (*PostgresHammerfestStore)(nil)
)
