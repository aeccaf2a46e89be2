package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/eternaltwin/etwin/internal/client/dinoparc"
	"github.com/eternaltwin/etwin/internal/model"
)

// archiveConcurrency はセッションのアーカイブで同時に取得するページ数の上限。
const archiveConcurrency = 4

// DinoparcArchive はDinoparcサービスが使うアーカイブの操作。
type DinoparcArchive interface {
	GetUser(ctx context.Context, opts model.GetDinoparcUserOptions) (*model.ArchivedDinoparcUser, error)
	TouchShortUser(ctx context.Context, user model.ShortDinoparcUser) (*model.ArchivedDinoparcUser, error)
	TouchProfile(ctx context.Context, resp *model.DinoparcProfileResponse) error
	TouchInventory(ctx context.Context, resp *model.DinoparcInventoryResponse) error
	TouchCollection(ctx context.Context, resp *model.DinoparcCollectionResponse) error
	TouchDinoz(ctx context.Context, resp *model.DinoparcDinozResponse) error
}

// DinoparcLinkReader はDinoparcアカウントのリンク履歴を読む。
type DinoparcLinkReader interface {
	GetLinkFromDinoparc(ctx context.Context, ref model.DinoparcUserIDRef, t *time.Time) (*model.VersionedRawLink, error)
}

// DinoparcService はDinoparcユーザーの参照とアーカイブを行う。
type DinoparcService struct {
	store  DinoparcArchive
	links  DinoparcLinkReader
	users  ShortUserReader
	client dinoparc.Client
	group  singleflight.Group
}

// NewDinoparcService はDinoparcServiceの新しいインスタンスを生成する。
func NewDinoparcService(store DinoparcArchive, links DinoparcLinkReader, users ShortUserReader, client dinoparc.Client) *DinoparcService {
	return &DinoparcService{
		store:  store,
		links:  links,
		users:  users,
		client: client,
	}
}

// GetUser はアーカイブからユーザーを返す。
// 現在の値を求められてアーカイブにない場合は、公開プロフィールを取得して記録してから返す。
func (s *DinoparcService) GetUser(ctx context.Context, _ model.AuthContext, opts model.GetDinoparcUserOptions) (*model.EtwinDinoparcUser, error) {
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
		return nil, model.NewRemoteUserNotFoundError(model.ErrCodeDinoparcUserNotFound, string(ref.Server), string(ref.ID))
	}

	raw, err := s.links.GetLinkFromDinoparc(ctx, ref, opts.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to get dinoparc link: %w", err)
	}
	etwin, err := hydrateLink(ctx, s.users, raw, opts.Time)
	if err != nil {
		return nil, err
	}
	return &model.EtwinDinoparcUser{ArchivedDinoparcUser: *user, Etwin: etwin}, nil
}

// fetchUser は同じユーザーへの同時の取り込みを1回にまとめる。
func (s *DinoparcService) fetchUser(ctx context.Context, ref model.DinoparcUserIDRef) (*model.ArchivedDinoparcUser, error) {
	return shareFetch(ctx, &s.group, ref.Remote().String(), func(ctx context.Context) (*model.ArchivedDinoparcUser, error) {
		resp, err := s.client.GetProfileByID(ctx, nil, ref)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
		slog.Info("Dinoparcユーザーを取り込みました",
			slog.String("server", string(ref.Server)),
			slog.String("user_id", string(ref.ID)),
		)
		return s.store.TouchShortUser(ctx, resp.Profile.User)
	})
}

// ArchiveSession はセッションで閲覧できるページをすべて取得してからアーカイブに記録する。
// 取得に一つでも失敗した場合は何も記録しない。
func (s *DinoparcService) ArchiveSession(ctx context.Context, session *model.DinoparcSession) error {
	var (
		profile    *model.DinoparcProfileResponse
		inventory  *model.DinoparcInventoryResponse
		collection *model.DinoparcCollectionResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.client.GetProfileByID(gctx, session, session.User.Ref())
		return err
	})
	g.Go(func() error {
		var err error
		inventory, err = s.client.GetInventory(gctx, session)
		return err
	})
	g.Go(func() error {
		var err error
		collection, err = s.client.GetCollection(gctx, session)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	sidebar := inventory.SessionUser.Dinoz
	dinoz := make([]*model.DinoparcDinozResponse, len(sidebar))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(archiveConcurrency)
	for i, d := range sidebar {
		g.Go(func() error {
			resp, err := s.client.GetDinoz(gctx, session, d.ID)
			if err != nil {
				return err
			}
			dinoz[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if profile != nil {
		if err := s.store.TouchProfile(ctx, profile); err != nil {
			return err
		}
	}
	if err := s.store.TouchInventory(ctx, inventory); err != nil {
		return err
	}
	if err := s.store.TouchCollection(ctx, collection); err != nil {
		return err
	}
	for _, d := range dinoz {
		if err := s.store.TouchDinoz(ctx, d); err != nil {
			return err
		}
	}

	slog.Info("Dinoparcのセッションをアーカイブしました",
		slog.String("server", string(session.User.Server)),
		slog.String("user_id", string(session.User.ID)),
		slog.Int("dinoz", len(dinoz)),
	)
	return nil
}
