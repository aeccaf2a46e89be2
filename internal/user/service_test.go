package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/repository"
	"github.com/eternaltwin/etwin/internal/security"
	"github.com/eternaltwin/etwin/internal/uuidgen"
)

// --- モック定義 ---

type mockUserStore struct {
	repository.UserStore
	getShortUserFn   func(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error)
	hardDeleteUserFn func(ctx context.Context, id model.UserID) error
}

func (m *mockUserStore) GetShortUser(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error) {
	return m.getShortUserFn(ctx, opts)
}

func (m *mockUserStore) HardDeleteUser(ctx context.Context, id model.UserID) error {
	return m.hardDeleteUserFn(ctx, id)
}

func newTestService(t *testing.T) (*Service, *repository.MemUserStore, *clock.VirtualClock) {
	t.Helper()
	clk := clock.NewVirtualClock(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	store := repository.NewMemUserStore(clk, uuidgen.NewCounter())
	hasher := &security.PasswordHasher{Cost: bcrypt.MinCost}
	return NewService(store, store, hasher, clk), store, clk
}

func ptr[T any](v T) *T { return &v }

func createAlice(t *testing.T, svc *Service) *model.CompleteUser {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), CreateUserInput{
		DisplayName: "Alice",
		Username:    ptr(model.Username("alice")),
		Email:       ptr(model.EmailAddress("alice@example.com")),
		Password:    model.Password("hunter22"),
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	return user
}

// TestService_CreateUser は最初のユーザーが管理者になり、パスワードがハッシュ化されることを検証する。
func TestService_CreateUser(t *testing.T) {
	svc, store, _ := newTestService(t)
	user := createAlice(t, svc)

	if !user.IsAdministrator {
		t.Error("最初のユーザーは管理者であること")
	}
	_, hash, err := store.GetUserWithPassword(context.Background(), model.UserRefByID(user.ID))
	if err != nil {
		t.Fatalf("GetUserWithPassword returned error: %v", err)
	}
	if string(hash) == "hunter22" {
		t.Error("パスワードが平文で保存されている")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte("hunter22")); err != nil {
		t.Errorf("ハッシュが一致しない: %v", err)
	}

	bob, err := svc.CreateUser(context.Background(), CreateUserInput{DisplayName: "Bob"})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if bob.IsAdministrator {
		t.Error("2人目のユーザーは管理者でないこと")
	}
}

// TestService_Authenticate はユーザー名とメールアドレスの両方でログインできることを検証する。
func TestService_Authenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := createAlice(t, svc)

	for _, login := range []string{"alice", "alice@example.com"} {
		acx, err := svc.Authenticate(context.Background(), login, model.Password("hunter22"))
		if err != nil {
			t.Fatalf("Authenticate(%q) returned error: %v", login, err)
		}
		u, ok := acx.(model.UserAuthContext)
		if !ok {
			t.Fatalf("expected UserAuthContext, got %T", acx)
		}
		if u.User.ID != alice.ID {
			t.Errorf("expected user %s, got %s", alice.ID, u.User.ID)
		}
		if !u.IsAdministrator {
			t.Error("管理者フラグが引き継がれること")
		}
	}
}

// TestService_Authenticate_Invalid は認証に失敗した場合に InvalidCredentials を返すことを検証する。
func TestService_Authenticate_Invalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	createAlice(t, svc)
	if _, err := svc.CreateUser(context.Background(), CreateUserInput{DisplayName: "Bob", Username: ptr(model.Username("bob"))}); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	tests := []struct {
		name     string
		login    string
		password string
	}{
		{name: "パスワードの誤り", login: "alice", password: "wrong"},
		{name: "存在しないユーザー", login: "carol", password: "hunter22"},
		{name: "パスワード未設定", login: "bob", password: ""},
		{name: "不正なメールアドレス", login: "@", password: "hunter22"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tt.login, model.Password(tt.password))
			if model.KindOf(err) != model.KindInvalidCredentials {
				t.Errorf("expected InvalidCredentials, got %v", err)
			}
		})
	}
}

// TestService_Session はセッションの作成とアクセス時刻の更新を検証する。
func TestService_Session(t *testing.T) {
	svc, _, clk := newTestService(t)
	alice := createAlice(t, svc)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, alice.ID)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if !session.CreatedAt.Equal(clk.Now()) || !session.AccessedAt.Equal(clk.Now()) {
		t.Errorf("ctime と atime は現在時刻であること: %+v", session)
	}

	clk.AdvanceBy(time.Hour)
	touched, err := svc.GetAndTouchSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetAndTouchSession returned error: %v", err)
	}
	if !touched.CreatedAt.Equal(session.CreatedAt) {
		t.Error("ctime は変わらないこと")
	}
	if !touched.AccessedAt.Equal(clk.Now()) {
		t.Errorf("atime が更新されること: got %v", touched.AccessedAt)
	}

	acx, err := svc.AuthenticateSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("AuthenticateSession returned error: %v", err)
	}
	if u, ok := acx.(model.UserAuthContext); !ok || u.User.ID != alice.ID {
		t.Errorf("expected alice, got %+v", acx)
	}

	missing, err := svc.GetAndTouchSession(ctx, "00000000-0000-4000-8000-00000000ffff")
	if err != nil {
		t.Fatalf("GetAndTouchSession returned error: %v", err)
	}
	if missing != nil {
		t.Error("未知のセッションはnilであること")
	}
	acx, err = svc.AuthenticateSession(ctx, "00000000-0000-4000-8000-00000000ffff")
	if err != nil {
		t.Fatalf("AuthenticateSession returned error: %v", err)
	}
	if _, ok := acx.(model.GuestAuthContext); !ok {
		t.Errorf("未知のセッションはゲストとして扱うこと: %T", acx)
	}

	if _, err := svc.CreateSession(ctx, "00000000-0000-4000-8000-00000000ffff"); model.KindOf(err) != model.KindNotFound {
		t.Errorf("存在しないユーザーのセッションは作成できないこと: %v", err)
	}
}

// TestService_GetUser は本人以外にはメールアドレスが見えないことを検証する。
func TestService_GetUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := createAlice(t, svc)
	ctx := context.Background()

	self := model.UserAuthContext{Scope: model.AuthScopeDefault, User: alice.Short(), IsAdministrator: true}
	got, err := svc.GetUser(ctx, self, alice.ID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if got.EmailAddress == nil || *got.EmailAddress != "alice@example.com" {
		t.Errorf("本人にはメールアドレスが見えること: %+v", got)
	}

	got, err = svc.GetUser(ctx, model.Guest(), alice.ID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if got.EmailAddress != nil || got.Username != nil {
		t.Errorf("ゲストにはユーザー名とメールアドレスが見えないこと: %+v", got)
	}

	if _, err := svc.GetUser(ctx, model.Guest(), "00000000-0000-4000-8000-00000000ffff"); model.KindOf(err) != model.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

// TestService_Withdraw は退会処理でユーザーが削除されることを検証する。
func TestService_Withdraw(t *testing.T) {
	var deleted model.UserID
	users := &mockUserStore{
		getShortUserFn: func(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error) {
			return &model.ShortUser{ID: *opts.Ref.ID, DisplayName: "Alice"}, nil
		},
		hardDeleteUserFn: func(ctx context.Context, id model.UserID) error {
			deleted = id
			return nil
		},
	}
	svc := NewService(users, nil, nil, clock.SystemClock{})
	acx := model.UserAuthContext{User: model.ShortUser{ID: "user-1"}}

	if err := svc.Withdraw(context.Background(), acx, "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if deleted != "user-1" {
		t.Errorf("expected HardDeleteUser(user-1), got %q", deleted)
	}
}

// TestService_Withdraw_Forbidden は他人の退会ができないことを検証する。
func TestService_Withdraw_Forbidden(t *testing.T) {
	users := &mockUserStore{
		hardDeleteUserFn: func(ctx context.Context, id model.UserID) error {
			t.Fatal("HardDeleteUser should not be called")
			return nil
		},
	}
	svc := NewService(users, nil, nil, clock.SystemClock{})
	acx := model.UserAuthContext{User: model.ShortUser{ID: "user-2"}}

	err := svc.Withdraw(context.Background(), acx, "user-1")
	if model.KindOf(err) != model.KindInvalidCredentials {
		t.Errorf("expected Forbidden, got %v", err)
	}
	if err := svc.Withdraw(context.Background(), model.Guest(), "user-1"); err == nil {
		t.Error("ゲストは退会できないこと")
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	users := &mockUserStore{
		getShortUserFn: func(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error) {
			return nil, nil
		},
	}
	svc := NewService(users, nil, nil, clock.SystemClock{})
	admin := model.UserAuthContext{User: model.ShortUser{ID: "admin"}, IsAdministrator: true}

	err := svc.Withdraw(context.Background(), admin, "nonexistent-user")
	if err == nil {
		t.Fatal("expected error for nonexistent user, got nil")
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
