// Package repository はデータ永続化のインターフェースを定義する。
//
// 各ストアにはPostgreSQL実装とメモリ実装がある。メモリ実装はテストと
// memory バックエンドで使う。
package repository

import (
	"context"
	"time"

	"github.com/eternaltwin/etwin/internal/model"
)

// DinoparcStore はDinoparcのアーカイブ。
type DinoparcStore interface {
	// GetShortUser はユーザーの最小限の情報を返す。アーカイブにない場合はnilを返す。
	GetShortUser(ctx context.Context, opts model.GetDinoparcUserOptions) (*model.ShortDinoparcUser, error)

	// GetUser はアーカイブされたユーザーを返す。Time が指定された場合はその時点の値を返す。
	GetUser(ctx context.Context, opts model.GetDinoparcUserOptions) (*model.ArchivedDinoparcUser, error)

	// GetDinoz はアーカイブされたディノズを返す。見つからない場合はnilを返す。
	GetDinoz(ctx context.Context, opts model.GetDinoparcDinozOptions) (*model.ArchivedDinoparcDinoz, error)

	// TouchShortUser はユーザー名を記録する。同じサーバーで同じユーザー名を持つ他のユーザーの行は閉じられる。
	TouchShortUser(ctx context.Context, user model.ShortDinoparcUser) (*model.ArchivedDinoparcUser, error)

	TouchProfile(ctx context.Context, resp *model.DinoparcProfileResponse) error
	TouchInventory(ctx context.Context, resp *model.DinoparcInventoryResponse) error
	TouchCollection(ctx context.Context, resp *model.DinoparcCollectionResponse) error
	TouchDinoz(ctx context.Context, resp *model.DinoparcDinozResponse) error
	TouchExchangeWith(ctx context.Context, resp *model.DinoparcExchangeWithResponse) error
}

// HammerfestStore はHammerfestのアーカイブ。
type HammerfestStore interface {
	// GetShortUser はユーザーの最小限の情報を返す。アーカイブにない場合はnilを返す。
	GetShortUser(ctx context.Context, opts model.GetHammerfestUserOptions) (*model.ShortHammerfestUser, error)

	// GetUser はアーカイブされたユーザーを返す。Time が指定された場合はその時点の値を返す。
	GetUser(ctx context.Context, opts model.GetHammerfestUserOptions) (*model.ArchivedHammerfestUser, error)

	// TouchShortUser はユーザー名を記録する。同じサーバーで同じユーザー名を持つ他のユーザーの行は閉じられる。
	TouchShortUser(ctx context.Context, user model.ShortHammerfestUser) (*model.ArchivedHammerfestUser, error)

	TouchProfile(ctx context.Context, resp *model.HammerfestProfileResponse) error
	TouchShop(ctx context.Context, resp *model.HammerfestShopResponse) error
	TouchInventory(ctx context.Context, resp *model.HammerfestInventoryResponse) error
	TouchGodchildren(ctx context.Context, resp *model.HammerfestGodchildrenResponse) error

	// TouchThemePage はテーマのスレッド一覧ページを記録する。
	TouchThemePage(ctx context.Context, page *model.HammerfestForumThemePage) error

	// TouchThreadPage はスレッドの投稿ページを記録する。
	TouchThreadPage(ctx context.Context, page *model.HammerfestForumThreadPage) error
}

// TwinoidStore はTwinoidのアーカイブ。
type TwinoidStore interface {
	GetShortUser(ctx context.Context, opts model.GetTwinoidUserOptions) (*model.ShortTwinoidUser, error)
	GetUser(ctx context.Context, opts model.GetTwinoidUserOptions) (*model.ArchivedTwinoidUser, error)
	TouchShortUser(ctx context.Context, user model.ShortTwinoidUser) (*model.ArchivedTwinoidUser, error)
}

// UserStore はetwinユーザーの永続化インターフェース。
type UserStore interface {
	// CreateUser はユーザーを作成する。最初のユーザーのみ管理者になる。
	// ユーザー名またはメールアドレスが使用済みの場合は Conflict のエラーを返す。
	CreateUser(ctx context.Context, opts model.CreateUserOptions) (*model.CompleteUser, error)

	// GetUser はユーザーを返す。見つからない場合はnilを返す。
	// Fields が Complete 未満の場合、ユーザー名とメールアドレスは設定されない。
	GetUser(ctx context.Context, opts model.GetUserOptions) (*model.CompleteUser, error)

	// GetShortUser はユーザーの最小限の情報を返す。見つからない場合はnilを返す。
	GetShortUser(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error)

	// GetUserWithPassword はユーザーとパスワードハッシュを返す。パスワード未設定の場合はハッシュがnil。
	GetUserWithPassword(ctx context.Context, ref model.UserRef) (*model.CompleteUser, model.PasswordHash, error)

	// UpdateUser はnilでないフィールドを更新する。表示名の変更は履歴に残る。
	UpdateUser(ctx context.Context, id model.UserID, patch model.UpdateUserPatch) (*model.CompleteUser, error)

	// HardDeleteUser はユーザーを削除する。セッションはCASCADE削除される。
	HardDeleteUser(ctx context.Context, id model.UserID) error
}

// AuthStore はetwinセッションとメールアドレス確認の永続化インターフェース。
type AuthStore interface {
	// CreateSession はセッションを作成する。ctime と atime は現在時刻。
	CreateSession(ctx context.Context, user model.UserIDRef) (*model.Session, error)

	// GetAndTouchSession は atime を更新してセッションを返す。見つからない場合はnilを返す。
	GetAndTouchSession(ctx context.Context, id model.SessionID) (*model.Session, error)

	// CreateValidatedEmailVerification は確認済みのメールアドレス確認を記録する。
	CreateValidatedEmailVerification(ctx context.Context, user model.UserIDRef, email model.EmailAddress, ctime time.Time) (*model.EmailVerification, error)
}

// LinkStore はetwinユーザーとリモートアカウントのリンクの永続化インターフェース。
type LinkStore interface {
	// TouchLink はリンクを作成する。同じリンクが有効な場合は何もしない。
	// 他の有効なリンクと衝突した場合は *model.LinkConflictError を返す。
	TouchLink(ctx context.Context, opts model.TouchLinkOptions) (*model.VersionedRawLink, error)

	// DeleteLink はリンクを解除する。有効なリンクがない場合は model.ErrNotLinked を返す。
	DeleteLink(ctx context.Context, opts model.DeleteLinkOptions) (*model.VersionedRawLink, error)

	GetLinkFromDinoparc(ctx context.Context, ref model.DinoparcUserIDRef, t *time.Time) (*model.VersionedRawLink, error)
	GetLinkFromHammerfest(ctx context.Context, ref model.HammerfestUserIDRef, t *time.Time) (*model.VersionedRawLink, error)
	GetLinkFromTwinoid(ctx context.Context, ref model.TwinoidUserIDRef, t *time.Time) (*model.VersionedRawLink, error)

	// GetLinksFromEtwin はetwinユーザーのゲームごとのリンクを返す。
	GetLinksFromEtwin(ctx context.Context, user model.UserIDRef, t *time.Time) (*model.VersionedRawLinks, error)
}

// TokenStore はリモートのセッションキーとOAuthトークンの永続化インターフェース。
type TokenStore interface {
	TouchTwinoidOAuth(ctx context.Context, opts model.TouchTwinoidOAuthOptions) error
	RevokeTwinoidAccessToken(ctx context.Context, key string) error
	RevokeTwinoidRefreshToken(ctx context.Context, key string) error

	// GetTwinoidOAuth は有効なトークンを返す。期限切れのアクセストークンは返さない。
	GetTwinoidOAuth(ctx context.Context, user model.TwinoidUserIDRef) (*model.TwinoidOAuth, error)

	// TouchDinoparc はセッションキーを記録する。
	// 同じユーザーの古いキーと、同じキーに紐付いた別のユーザーは置き換えられる。
	TouchDinoparc(ctx context.Context, user model.DinoparcUserIDRef, key model.DinoparcSessionKey) (*model.StoredDinoparcSession, error)
	RevokeDinoparc(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) error
	GetDinoparc(ctx context.Context, user model.DinoparcUserIDRef) (*model.StoredDinoparcSession, error)

	// ListDinoparc は保存されている全セッションを atime の昇順で返す。
	ListDinoparc(ctx context.Context) ([]model.StoredDinoparcSession, error)

	TouchHammerfest(ctx context.Context, user model.HammerfestUserIDRef, key model.HammerfestSessionKey) (*model.StoredHammerfestSession, error)
	RevokeHammerfest(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) error
	GetHammerfest(ctx context.Context, user model.HammerfestUserIDRef) (*model.StoredHammerfestSession, error)

	// ListHammerfest は保存されている全セッションを atime の昇順で返す。
	ListHammerfest(ctx context.Context) ([]model.StoredHammerfestSession, error)
}

// TouchRecorder はアーカイブへの書き込み結果を記録する。
type TouchRecorder interface {
	RecordArchiveTouch(store, outcome string)
}

// StoreOption はアーカイブストアの任意設定。
type StoreOption func(*storeOptions)

type storeOptions struct {
	recorder TouchRecorder
}

// WithTouchRecorder は書き込み結果の記録先を設定する。
func WithTouchRecorder(r TouchRecorder) StoreOption {
	return func(o *storeOptions) { o.recorder = r }
}

type nopRecorder struct{}

func (nopRecorder) RecordArchiveTouch(string, string) {}

func buildStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
