package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/uuidgen"
)

type userStore interface {
	UserStore
	AuthStore
}

func TestMemUserStore(t *testing.T) {
	runUserStoreSuite(t, func(t *testing.T, clk clock.Clock) userStore {
		return NewMemUserStore(clk, uuidgen.NewCounter())
	})
}

func TestPostgresUserStore(t *testing.T) {
	runUserStoreSuite(t, func(t *testing.T, clk clock.Clock) userStore {
		return NewPostgresUserStore(openTestDB(t), clk, uuidgen.NewCounter(), fakeCrypter{})
	})
}

func createAlice(t *testing.T, store UserStore) *model.CompleteUser {
	t.Helper()
	user, err := store.CreateUser(context.Background(), model.CreateUserOptions{
		DisplayName: "Alice",
		Username:    ptr(model.Username("alice")),
		Email:       ptr(model.EmailAddress("alice@example.com")),
		Password:    model.PasswordHash("hash"),
	})
	require.NoError(t, err)
	return user
}

func runUserStoreSuite(t *testing.T, newStore func(t *testing.T, clk clock.Clock) userStore) {
	ctx := context.Background()

	t.Run("最初のユーザーのみ管理者になる", func(t *testing.T) {
		store := newStore(t, newTestClock())
		first := createAlice(t, store)
		assert.True(t, first.IsAdministrator)
		assert.True(t, first.CreatedAt.Equal(testEpoch))
		assert.True(t, first.HasPassword)

		second, err := store.CreateUser(ctx, model.CreateUserOptions{DisplayName: "Bob"})
		require.NoError(t, err)
		assert.False(t, second.IsAdministrator)
		assert.False(t, second.HasPassword)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("ユーザー名とメールアドレスの重複はConflict", func(t *testing.T) {
		store := newStore(t, newTestClock())
		createAlice(t, store)

		_, err := store.CreateUser(ctx, model.CreateUserOptions{DisplayName: "Other", Username: ptr(model.Username("alice"))})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.NewUsernameConflictError()))
		assert.Equal(t, model.KindConflict, model.KindOf(err))

		_, err = store.CreateUser(ctx, model.CreateUserOptions{DisplayName: "Other", Email: ptr(model.EmailAddress("alice@example.com"))})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.NewEmailConflictError()))
	})

	t.Run("ID、ユーザー名、メールアドレスで取得できる", func(t *testing.T) {
		store := newStore(t, newTestClock())
		alice := createAlice(t, store)

		refs := map[string]model.UserRef{
			"id":       model.UserRefByID(alice.ID),
			"username": {Username: ptr(model.Username("alice"))},
			"email":    {Email: ptr(model.EmailAddress("alice@example.com"))},
		}
		for name, ref := range refs {
			user, err := store.GetUser(ctx, model.GetUserOptions{Ref: ref, Fields: model.UserFieldsComplete})
			require.NoError(t, err, name)
			require.NotNil(t, user, name)
			assert.Equal(t, alice.ID, user.ID, name)
			require.NotNil(t, user.EmailAddress, name)
			assert.Equal(t, model.EmailAddress("alice@example.com"), *user.EmailAddress, name)
		}
	})

	t.Run("Fieldsに応じて項目を省略する", func(t *testing.T) {
		store := newStore(t, newTestClock())
		alice := createAlice(t, store)

		def, err := store.GetUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID), Fields: model.UserFieldsDefault})
		require.NoError(t, err)
		assert.Nil(t, def.Username)
		assert.Nil(t, def.EmailAddress)
		assert.True(t, def.IsAdministrator)

		short, err := store.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID)})
		require.NoError(t, err)
		assert.Equal(t, &model.ShortUser{ID: alice.ID, DisplayName: "Alice"}, short)
	})

	t.Run("存在しないユーザーはnil", func(t *testing.T) {
		store := newStore(t, newTestClock())
		user, err := store.GetUser(ctx, model.GetUserOptions{Ref: model.UserRefByID("ffffffff-ffff-4fff-bfff-ffffffffffff")})
		require.NoError(t, err)
		assert.Nil(t, user)

		user, err = store.GetUser(ctx, model.GetUserOptions{Ref: model.UserRefByID("not-a-uuid")})
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("表示名の履歴を時刻で引ける", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)
		alice := createAlice(t, store)
		t0 := clk.Now()

		clk.AdvanceBy(time.Hour)
		updated, err := store.UpdateUser(ctx, alice.ID, model.UpdateUserPatch{DisplayName: ptr(model.UserDisplayName("Alicia"))})
		require.NoError(t, err)
		assert.Equal(t, model.UserDisplayName("Alicia"), updated.DisplayName)

		past, err := store.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID), Time: &t0})
		require.NoError(t, err)
		assert.Equal(t, model.UserDisplayName("Alice"), past.DisplayName)

		current, err := store.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID)})
		require.NoError(t, err)
		assert.Equal(t, model.UserDisplayName("Alicia"), current.DisplayName)

		before := t0.Add(-time.Second)
		missing, err := store.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID), Time: &before})
		require.NoError(t, err)
		assert.Nil(t, missing, "作成前の時点では存在しない")
	})

	t.Run("作成と同時刻の表示名の変更も反映される", func(t *testing.T) {
		store := newStore(t, newTestClock())
		alice := createAlice(t, store)

		updated, err := store.UpdateUser(ctx, alice.ID, model.UpdateUserPatch{
			DisplayName: ptr(model.UserDisplayName("Bobby")),
			Username:    ptr(model.Username("bobby")),
		})
		require.NoError(t, err)
		assert.Equal(t, model.UserDisplayName("Bobby"), updated.DisplayName)
		require.NotNil(t, updated.Username)
		assert.Equal(t, model.Username("bobby"), *updated.Username)

		current, err := store.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID)})
		require.NoError(t, err)
		assert.Equal(t, model.UserDisplayName("Bobby"), current.DisplayName)

		now := testEpoch
		atCreation, err := store.GetShortUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID), Time: &now})
		require.NoError(t, err)
		require.NotNil(t, atCreation)
		assert.Equal(t, model.UserDisplayName("Bobby"), atCreation.DisplayName, "同時刻の値は置き換えられる")
	})

	t.Run("ユーザー名とパスワードを更新する", func(t *testing.T) {
		store := newStore(t, newTestClock())
		alice := createAlice(t, store)
		bob, err := store.CreateUser(ctx, model.CreateUserOptions{DisplayName: "Bob", Username: ptr(model.Username("bob"))})
		require.NoError(t, err)

		_, err = store.UpdateUser(ctx, bob.ID, model.UpdateUserPatch{Username: ptr(model.Username("alice"))})
		assert.True(t, errors.Is(err, model.NewUsernameConflictError()))

		_, err = store.UpdateUser(ctx, alice.ID, model.UpdateUserPatch{
			Username: ptr(model.Username("alice2")),
			Password: model.PasswordHash("hash2"),
		})
		require.NoError(t, err)

		user, hash, err := store.GetUserWithPassword(ctx, model.UserRef{Username: ptr(model.Username("alice2"))})
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, alice.ID, user.ID)
		assert.Equal(t, model.PasswordHash("hash2"), hash)

		old, _, err := store.GetUserWithPassword(ctx, model.UserRef{Username: ptr(model.Username("alice"))})
		require.NoError(t, err)
		assert.Nil(t, old)
	})

	t.Run("存在しないユーザーの更新と削除はUserNotFound", func(t *testing.T) {
		store := newStore(t, newTestClock())
		id := model.UserID("ffffffff-ffff-4fff-bfff-ffffffffffff")

		_, err := store.UpdateUser(ctx, id, model.UpdateUserPatch{DisplayName: ptr(model.UserDisplayName("Ghost"))})
		assert.True(t, errors.Is(err, model.ErrUserNotFound))

		err = store.HardDeleteUser(ctx, id)
		assert.True(t, errors.Is(err, model.ErrUserNotFound))
	})

	t.Run("削除するとセッションも消える", func(t *testing.T) {
		store := newStore(t, newTestClock())
		alice := createAlice(t, store)
		session, err := store.CreateSession(ctx, model.UserIDRef{ID: alice.ID})
		require.NoError(t, err)

		require.NoError(t, store.HardDeleteUser(ctx, alice.ID))

		user, err := store.GetUser(ctx, model.GetUserOptions{Ref: model.UserRefByID(alice.ID)})
		require.NoError(t, err)
		assert.Nil(t, user)
		got, err := store.GetAndTouchSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = store.CreateUser(ctx, model.CreateUserOptions{DisplayName: "Alice", Username: ptr(model.Username("alice"))})
		require.NoError(t, err, "削除後はユーザー名を再利用できる")
	})

	t.Run("セッションの取得でatimeのみ更新する", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)
		alice := createAlice(t, store)

		session, err := store.CreateSession(ctx, model.UserIDRef{ID: alice.ID})
		require.NoError(t, err)
		assert.True(t, session.CreatedAt.Equal(session.AccessedAt))

		clk.AdvanceBy(time.Minute)
		got, err := store.GetAndTouchSession(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, alice.ID, got.User.ID)
		assert.True(t, got.CreatedAt.Equal(testEpoch))
		assert.True(t, got.AccessedAt.Equal(clk.Now()))

		unknown, err := store.GetAndTouchSession(ctx, "ffffffff-ffff-4fff-bfff-ffffffffffff")
		require.NoError(t, err)
		assert.Nil(t, unknown)
	})

	t.Run("メールアドレス確認を記録する", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)
		alice := createAlice(t, store)
		ctime := clk.Now()
		clk.AdvanceBy(time.Minute)

		v, err := store.CreateValidatedEmailVerification(ctx, model.UserIDRef{ID: alice.ID}, "alice@example.com", ctime)
		require.NoError(t, err)
		assert.True(t, v.ValidatedAt.Equal(clk.Now()))
		assert.True(t, v.CreatedAt.Equal(ctime))
	})
}
