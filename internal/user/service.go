// Package user はetwinユーザーとセッションのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/repository"
)

// PasswordHasher はパスワードのハッシュ化と照合を行う。security.PasswordHasher が実装する。
type PasswordHasher interface {
	Hash(password model.Password) (model.PasswordHash, error)
	Verify(hash model.PasswordHash, password model.Password) (bool, error)
}

// CreateUserInput はユーザー登録の入力。Password は平文で、保存前にハッシュ化される。
type CreateUserInput struct {
	DisplayName model.UserDisplayName
	Username    *model.Username
	Email       *model.EmailAddress
	Password    model.Password
}

// Service はユーザー管理のサービス層。
// 登録、ログイン、セッションの検証、退会処理を提供する。
type Service struct {
	users  repository.UserStore
	auth   repository.AuthStore
	hasher PasswordHasher
	clock  clock.Clock
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserStore,
	auth repository.AuthStore,
	hasher PasswordHasher,
	clk clock.Clock,
) *Service {
	return &Service{
		users:  users,
		auth:   auth,
		hasher: hasher,
		clock:  clk,
	}
}

// CreateUser はユーザーを登録する。
// パスワードはbcryptでハッシュ化し、メールアドレスは確認済みとして記録する。
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*model.CompleteUser, error) {
	var hash model.PasswordHash
	if len(in.Password) > 0 {
		var err error
		hash, err = s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
	}

	user, err := s.users.CreateUser(ctx, model.CreateUserOptions{
		DisplayName: in.DisplayName,
		Username:    in.Username,
		Email:       in.Email,
		Password:    hash,
	})
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		ref := model.UserIDRef{ID: user.ID}
		if _, err := s.auth.CreateValidatedEmailVerification(ctx, ref, *in.Email, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("failed to record email verification: %w", err)
		}
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", string(user.ID)),
		slog.Bool("is_administrator", user.IsAdministrator),
	)
	return user, nil
}

// CreateSession はユーザーのセッションを作成する。
func (s *Service) CreateSession(ctx context.Context, id model.UserID) (*model.Session, error) {
	user, err := s.users.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(id), Fields: model.UserFieldsShort})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return s.auth.CreateSession(ctx, model.UserIDRef{ID: id})
}

// GetAndTouchSession はセッションの最終アクセス時刻を更新して返す。存在しない場合はnilを返す。
func (s *Service) GetAndTouchSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return s.auth.GetAndTouchSession(ctx, id)
}

// Authenticate はユーザー名またはメールアドレスとパスワードで認証する。
func (s *Service) Authenticate(ctx context.Context, login string, password model.Password) (model.AuthContext, error) {
	ref, err := parseLogin(login)
	if err != nil {
		return nil, model.NewInvalidCredentialsError()
	}
	user, hash, err := s.users.GetUserWithPassword(ctx, ref)
	if err != nil {
		return nil, err
	}
	if user == nil || hash == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	ok, err := s.hasher.Verify(hash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("パスワードが一致しません", slog.String("user_id", string(user.ID)))
		return nil, model.NewInvalidCredentialsError()
	}
	return authContextOf(&user.User), nil
}

// AuthenticateSession はセッションから認証コンテキストを作る。無効なセッションはゲストとして扱う。
func (s *Service) AuthenticateSession(ctx context.Context, id model.SessionID) (model.AuthContext, error) {
	session, err := s.auth.GetAndTouchSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return model.Guest(), nil
	}
	user, err := s.users.GetUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(session.User.ID), Fields: model.UserFieldsDefault})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return model.Guest(), nil
	}
	return authContextOf(&user.User), nil
}

// GetUser はユーザーを返す。本人と管理者にはユーザー名とメールアドレスも返す。
func (s *Service) GetUser(ctx context.Context, acx model.AuthContext, id model.UserID) (*model.CompleteUser, error) {
	fields := model.UserFieldsDefault
	if model.IsSelfOrAdmin(acx, id) {
		fields = model.UserFieldsComplete
	}
	user, err := s.users.GetUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(id), Fields: fields})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// セッションはCASCADEで削除され、リンクとアーカイブは履歴として残す。
func (s *Service) Withdraw(ctx context.Context, acx model.AuthContext, id model.UserID) error {
	if !model.IsSelfOrAdmin(acx, id) {
		return model.NewForbiddenError()
	}
	user, err := s.users.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(id), Fields: model.UserFieldsShort})
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します", slog.String("user_id", string(id)))
	if err := s.users.HardDeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	slog.Info("退会処理が完了しました", slog.String("user_id", string(id)))
	return nil
}

func authContextOf(u *model.User) model.AuthContext {
	return model.UserAuthContext{
		Scope:           model.AuthScopeDefault,
		User:            u.Short(),
		IsAdministrator: u.IsAdministrator,
	}
}

// parseLogin は "@" を含む場合はメールアドレス、それ以外はユーザー名として解釈する。
func parseLogin(login string) (model.UserRef, error) {
	if strings.Contains(login, "@") {
		email, err := model.ParseEmailAddress(login)
		if err != nil {
			return model.UserRef{}, err
		}
		return model.UserRef{Email: &email}, nil
	}
	username, err := model.ParseUsername(login)
	if err != nil {
		return model.UserRef{}, err
	}
	return model.UserRef{Username: &username}, nil
}
