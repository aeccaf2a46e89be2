package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/eternaltwin/etwin/internal/client/dinoparc"
	"github.com/eternaltwin/etwin/internal/client/hammerfest"
	"github.com/eternaltwin/etwin/internal/client/twinoid"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/repository"
)

// LinkWriter はリンクの作成と解除を行う。
type LinkWriter interface {
	TouchLink(ctx context.Context, opts model.TouchLinkOptions) (*model.VersionedRawLink, error)
	DeleteLink(ctx context.Context, opts model.DeleteLinkOptions) (*model.VersionedRawLink, error)
}

// LinkToDinoparcOptions はDinoparcアカウントのリンクの入力。
type LinkToDinoparcOptions struct {
	User        model.UserID
	Credentials model.DinoparcCredentials
}

// LinkToHammerfestOptions はHammerfestアカウントのリンクの入力。
type LinkToHammerfestOptions struct {
	User        model.UserID
	Credentials model.HammerfestCredentials
}

// LinkToTwinoidOptions はTwinoidアカウントのリンクの入力。トークンはOAuthの認可で得たもの。
type LinkToTwinoidOptions struct {
	User         model.UserID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// UnlinkOptions はリンク解除の入力。
type UnlinkOptions struct {
	User   model.UserID
	Remote model.RemoteUserRef
}

// LinkService はetwinユーザーとリモートアカウントをリンクする。
// リモートでの認証に成功したアカウントだけをリンクする。
type LinkService struct {
	dinoparc        dinoparc.Client
	hammerfest      hammerfest.Client
	twinoid         twinoid.Client
	dinoparcStore   DinoparcArchive
	hammerfestStore HammerfestArchive
	twinoidStore    TwinoidArchive
	tokens          repository.TokenStore
	links           LinkWriter
}

// LinkServiceDeps はLinkServiceの依存。
type LinkServiceDeps struct {
	Dinoparc        dinoparc.Client
	Hammerfest      hammerfest.Client
	Twinoid         twinoid.Client
	DinoparcStore   DinoparcArchive
	HammerfestStore HammerfestArchive
	TwinoidStore    TwinoidArchive
	Tokens          repository.TokenStore
	Links           LinkWriter
}

// NewLinkService はLinkServiceの新しいインスタンスを生成する。
func NewLinkService(deps LinkServiceDeps) *LinkService {
	return &LinkService{
		dinoparc:        deps.Dinoparc,
		hammerfest:      deps.Hammerfest,
		twinoid:         deps.Twinoid,
		dinoparcStore:   deps.DinoparcStore,
		hammerfestStore: deps.HammerfestStore,
		twinoidStore:    deps.TwinoidStore,
		tokens:          deps.Tokens,
		links:           deps.Links,
	}
}

// actor は操作するユーザーを返す。本人か管理者でなければエラーになる。
func actor(acx model.AuthContext, target model.UserID) (model.UserIDRef, error) {
	u, ok := acx.(model.UserAuthContext)
	if !ok || !model.IsSelfOrAdmin(acx, target) {
		return model.UserIDRef{}, model.NewForbiddenError()
	}
	return model.UserIDRef{ID: u.User.ID}, nil
}

// LinkToDinoparc はDinoparcにログインし、セッションキーを保存してからリンクを作成する。
func (s *LinkService) LinkToDinoparc(ctx context.Context, acx model.AuthContext, opts LinkToDinoparcOptions) (*model.VersionedRawLink, error) {
	by, err := actor(acx, opts.User)
	if err != nil {
		return nil, err
	}
	session, err := s.dinoparc.CreateSession(ctx, opts.Credentials)
	if err != nil {
		return nil, err
	}
	ref := session.User.Ref()
	if _, err := s.tokens.TouchDinoparc(ctx, ref, session.Key); err != nil {
		return nil, err
	}
	if _, err := s.dinoparcStore.TouchShortUser(ctx, session.User); err != nil {
		return nil, err
	}
	return s.touchLink(ctx, opts.User, ref.Remote(), by)
}

// LinkToHammerfest はHammerfestにログインし、セッションキーを保存してからリンクを作成する。
func (s *LinkService) LinkToHammerfest(ctx context.Context, acx model.AuthContext, opts LinkToHammerfestOptions) (*model.VersionedRawLink, error) {
	by, err := actor(acx, opts.User)
	if err != nil {
		return nil, err
	}
	session, err := s.hammerfest.CreateSession(ctx, opts.Credentials)
	if err != nil {
		return nil, err
	}
	ref := session.User.Ref()
	if _, err := s.tokens.TouchHammerfest(ctx, ref, session.Key); err != nil {
		return nil, err
	}
	if _, err := s.hammerfestStore.TouchShortUser(ctx, session.User); err != nil {
		return nil, err
	}
	return s.touchLink(ctx, opts.User, ref.Remote(), by)
}

// LinkToTwinoid はアクセストークンの持ち主を確認し、トークンを保存してからリンクを作成する。
func (s *LinkService) LinkToTwinoid(ctx context.Context, acx model.AuthContext, opts LinkToTwinoidOptions) (*model.VersionedRawLink, error) {
	by, err := actor(acx, opts.User)
	if err != nil {
		return nil, err
	}
	me, err := s.twinoid.GetMe(ctx, opts.AccessToken)
	if err != nil {
		return nil, err
	}
	err = s.tokens.TouchTwinoidOAuth(ctx, model.TouchTwinoidOAuthOptions{
		AccessToken:    opts.AccessToken,
		RefreshToken:   opts.RefreshToken,
		ExpirationTime: opts.ExpiresAt,
		User:           me.ID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.twinoidStore.TouchShortUser(ctx, *me); err != nil {
		return nil, err
	}
	return s.touchLink(ctx, opts.User, model.TwinoidUserIDRef{ID: me.ID}.Remote(), by)
}

func (s *LinkService) touchLink(ctx context.Context, user model.UserID, remote model.RemoteUserRef, by model.UserIDRef) (*model.VersionedRawLink, error) {
	link, err := s.links.TouchLink(ctx, model.TouchLinkOptions{
		Etwin:    model.UserIDRef{ID: user},
		Remote:   remote,
		LinkedBy: by,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("リモートアカウントをリンクしました",
		slog.String("user_id", string(user)),
		slog.String("remote", remote.String()),
	)
	return link, nil
}

// Unlink はリンクを解除する。リンクされていない場合は model.ErrNotLinked を返す。
func (s *LinkService) Unlink(ctx context.Context, acx model.AuthContext, opts UnlinkOptions) (*model.VersionedRawLink, error) {
	by, err := actor(acx, opts.User)
	if err != nil {
		return nil, err
	}
	link, err := s.links.DeleteLink(ctx, model.DeleteLinkOptions{
		Etwin:      model.UserIDRef{ID: opts.User},
		Remote:     opts.Remote,
		UnlinkedBy: by,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("リモートアカウントのリンクを解除しました",
		slog.String("user_id", string(opts.User)),
		slog.String("remote", opts.Remote.String()),
	)
	return link, nil
}
