package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eternaltwin/etwin/internal/client/twinoid"
	"github.com/eternaltwin/etwin/internal/model"
)

// TwinoidArchive はTwinoidサービスが使うアーカイブの操作。
type TwinoidArchive interface {
	GetUser(ctx context.Context, opts model.GetTwinoidUserOptions) (*model.ArchivedTwinoidUser, error)
	TouchShortUser(ctx context.Context, user model.ShortTwinoidUser) (*model.ArchivedTwinoidUser, error)
}

// TwinoidLinkReader はTwinoidアカウントのリンク履歴を読む。
type TwinoidLinkReader interface {
	GetLinkFromTwinoid(ctx context.Context, ref model.TwinoidUserIDRef, t *time.Time) (*model.VersionedRawLink, error)
}

// TwinoidService はTwinoidユーザーの参照を行う。
// Graph APIはトークンなしで呼べないため、APIトークンが設定されていない場合はアーカイブのみを返す。
type TwinoidService struct {
	store    TwinoidArchive
	links    TwinoidLinkReader
	users    ShortUserReader
	client   twinoid.Client
	apiToken string
	group    singleflight.Group
}

// NewTwinoidService はTwinoidServiceの新しいインスタンスを生成する。apiToken は空でもよい。
func NewTwinoidService(store TwinoidArchive, links TwinoidLinkReader, users ShortUserReader, client twinoid.Client, apiToken string) *TwinoidService {
	return &TwinoidService{
		store:    store,
		links:    links,
		users:    users,
		client:   client,
		apiToken: apiToken,
	}
}

// GetUser はアーカイブからユーザーを返す。
func (s *TwinoidService) GetUser(ctx context.Context, _ model.AuthContext, opts model.GetTwinoidUserOptions) (*model.EtwinTwinoidUser, error) {
	ref := model.TwinoidUserIDRef{ID: opts.ID}
	user, err := s.store.GetUser(ctx, opts)
	if err != nil {
		return nil, err
	}
	if user == nil && opts.Time == nil && s.apiToken != "" {
		user, err = s.fetchUser(ctx, opts.ID)
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, model.NewRemoteUserNotFoundError(model.ErrCodeTwinoidUserNotFound, model.TwinoidServer, string(opts.ID))
	}

	raw, err := s.links.GetLinkFromTwinoid(ctx, ref, opts.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to get twinoid link: %w", err)
	}
	etwin, err := hydrateLink(ctx, s.users, raw, opts.Time)
	if err != nil {
		return nil, err
	}
	return &model.EtwinTwinoidUser{ArchivedTwinoidUser: *user, Etwin: etwin}, nil
}

func (s *TwinoidService) fetchUser(ctx context.Context, id model.TwinoidUserID) (*model.ArchivedTwinoidUser, error) {
	return shareFetch(ctx, &s.group, string(id), func(ctx context.Context) (*model.ArchivedTwinoidUser, error) {
		short, err := s.client.GetUser(ctx, s.apiToken, id)
		if err != nil {
			return nil, err
		}
		if short == nil {
			return nil, nil
		}
		return s.store.TouchShortUser(ctx, *short)
	})
}
