package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/eternaltwin/etwin/internal/client/hammerfest"
	"github.com/eternaltwin/etwin/internal/model"
)

// HammerfestArchive はHammerfestサービスが使うアーカイブの操作。
type HammerfestArchive interface {
	GetUser(ctx context.Context, opts model.GetHammerfestUserOptions) (*model.ArchivedHammerfestUser, error)
	TouchShortUser(ctx context.Context, user model.ShortHammerfestUser) (*model.ArchivedHammerfestUser, error)
	TouchProfile(ctx context.Context, resp *model.HammerfestProfileResponse) error
	TouchShop(ctx context.Context, resp *model.HammerfestShopResponse) error
	TouchInventory(ctx context.Context, resp *model.HammerfestInventoryResponse) error
	TouchGodchildren(ctx context.Context, resp *model.HammerfestGodchildrenResponse) error
	TouchThemePage(ctx context.Context, page *model.HammerfestForumThemePage) error
	TouchThreadPage(ctx context.Context, page *model.HammerfestForumThreadPage) error
}

// HammerfestLinkReader はHammerfestアカウントのリンク履歴を読む。
type HammerfestLinkReader interface {
	GetLinkFromHammerfest(ctx context.Context, ref model.HammerfestUserIDRef, t *time.Time) (*model.VersionedRawLink, error)
}

// HammerfestService はHammerfestユーザーの参照とアーカイブを行う。
type HammerfestService struct {
	store  HammerfestArchive
	links  HammerfestLinkReader
	users  ShortUserReader
	client hammerfest.Client
	group  singleflight.Group
}

// NewHammerfestService はHammerfestServiceの新しいインスタンスを生成する。
func NewHammerfestService(store HammerfestArchive, links HammerfestLinkReader, users ShortUserReader, client hammerfest.Client) *HammerfestService {
	return &HammerfestService{
		store:  store,
		links:  links,
		users:  users,
		client: client,
	}
}

// GetUser はアーカイブからユーザーを返す。
// 現在の値を求められてアーカイブにない場合は、公開プロフィールを取得して記録してから返す。
func (s *HammerfestService) GetUser(ctx context.Context, _ model.AuthContext, opts model.GetHammerfestUserOptions) (*model.EtwinHammerfestUser, error) {
	ref := opts.Ref()
	user, err := s.store.GetUser(ctx, opts)
	if err != nil {
		return nil, err
	}
	if user == nil && opts.Time == nil {
		user, err = s.fetchUser(ctx, ref)
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, model.NewRemoteUserNotFoundError(model.ErrCodeHammerfestUserNotFound, string(ref.Server), string(ref.ID))
	}

	raw, err := s.links.GetLinkFromHammerfest(ctx, ref, opts.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to get hammerfest link: %w", err)
	}
	etwin, err := hydrateLink(ctx, s.users, raw, opts.Time)
	if err != nil {
		return nil, err
	}
	return &model.EtwinHammerfestUser{ArchivedHammerfestUser: *user, Etwin: etwin}, nil
}

func (s *HammerfestService) fetchUser(ctx context.Context, ref model.HammerfestUserIDRef) (*model.ArchivedHammerfestUser, error) {
	return shareFetch(ctx, &s.group, ref.Remote().String(), func(ctx context.Context) (*model.ArchivedHammerfestUser, error) {
		resp, err := s.client.GetProfileByID(ctx, nil, ref)
		if err != nil {
			return nil, err
		}
		if resp.Profile == nil {
			return nil, nil
		}
		if _, err := s.store.TouchShortUser(ctx, resp.Profile.User); err != nil {
			return nil, err
		}
		if err := s.store.TouchProfile(ctx, resp); err != nil {
			return nil, err
		}
		slog.Info("Hammerfestユーザーを取り込みました",
			slog.String("server", string(ref.Server)),
			slog.String("user_id", string(ref.ID)),
		)
		return s.store.GetUser(ctx, model.GetHammerfestUserOptions{Server: ref.Server, ID: ref.ID})
	})
}

// hammerfestSnapshot はセッションのアーカイブで取得したページ。
type hammerfestSnapshot struct {
	profile     *model.HammerfestProfileResponse
	inventory   *model.HammerfestInventoryResponse
	shop        *model.HammerfestShopResponse
	godchildren *model.HammerfestGodchildrenResponse
	forum       *model.HammerfestForumHome
	themes      []*model.HammerfestForumThemePage
	threads     []*model.HammerfestForumThreadPage
}

// ArchiveSession はセッションで閲覧できるページをすべて取得してからアーカイブに記録する。
// フォーラムは各テーマの1ページ目と、そこに並ぶスレッドの1ページ目を対象にする。
func (s *HammerfestService) ArchiveSession(ctx context.Context, session *model.HammerfestSession) error {
	snap, err := s.fetchSession(ctx, session)
	if err != nil {
		return err
	}

	if err := s.store.TouchProfile(ctx, snap.profile); err != nil {
		return err
	}
	if err := s.store.TouchInventory(ctx, snap.inventory); err != nil {
		return err
	}
	if err := s.store.TouchShop(ctx, snap.shop); err != nil {
		return err
	}
	if err := s.store.TouchGodchildren(ctx, snap.godchildren); err != nil {
		return err
	}
	for _, page := range snap.themes {
		if err := s.store.TouchThemePage(ctx, page); err != nil {
			return err
		}
	}
	for _, page := range snap.threads {
		if err := s.store.TouchThreadPage(ctx, page); err != nil {
			return err
		}
	}

	slog.Info("Hammerfestのセッションをアーカイブしました",
		slog.String("server", string(session.User.Server)),
		slog.String("user_id", string(session.User.ID)),
		slog.Int("themes", len(snap.themes)),
		slog.Int("threads", len(snap.threads)),
	)
	return nil
}

func (s *HammerfestService) fetchSession(ctx context.Context, session *model.HammerfestSession) (*hammerfestSnapshot, error) {
	server := session.User.Server
	snap := &hammerfestSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.profile, err = s.client.GetProfileByID(gctx, session, session.User.Ref())
		return err
	})
	g.Go(func() error {
		var err error
		snap.inventory, err = s.client.GetOwnItems(gctx, session)
		return err
	})
	g.Go(func() error {
		var err error
		snap.shop, err = s.client.GetOwnShop(gctx, session)
		return err
	})
	g.Go(func() error {
		var err error
		snap.godchildren, err = s.client.GetOwnGodchildren(gctx, session)
		return err
	})
	g.Go(func() error {
		var err error
		snap.forum, err = s.client.GetForumThemes(gctx, session, server)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.themes = make([]*model.HammerfestForumThemePage, len(snap.forum.Themes))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(archiveConcurrency)
	for i, theme := range snap.forum.Themes {
		g.Go(func() error {
			page, err := s.client.GetForumThemePage(gctx, session, server, theme.Short.ID, 1)
			if err != nil {
				return err
			}
			snap.themes[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var threadIDs []model.HammerfestForumThreadID
	for _, page := range snap.themes {
		for _, t := range page.Sticky {
			threadIDs = append(threadIDs, t.Short.ID)
		}
		for _, t := range page.Threads.Items {
			threadIDs = append(threadIDs, t.Short.ID)
		}
	}
	snap.threads = make([]*model.HammerfestForumThreadPage, len(threadIDs))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(archiveConcurrency)
	for i, id := range threadIDs {
		g.Go(func() error {
			page, err := s.client.GetForumThreadPage(gctx, session, server, id, 1)
			if err != nil {
				return err
			}
			snap.threads[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
