package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

func TestMemTokenStore(t *testing.T) {
	runTokenStoreSuite(t, func(t *testing.T, clk clock.Clock) TokenStore {
		return NewMemTokenStore(clk)
	})
}

func TestPostgresTokenStore(t *testing.T) {
	runTokenStoreSuite(t, func(t *testing.T, clk clock.Clock) TokenStore {
		return NewPostgresTokenStore(openTestDB(t), clk)
	})
}

const (
	dpKey1 model.DinoparcSessionKey   = "0123456789abcdefABCDEF0123456789"
	dpKey2 model.DinoparcSessionKey   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hfKey1 model.HammerfestSessionKey = "0123456789abcdefghijklmnop"
)

func runTokenStoreSuite(t *testing.T, newStore func(t *testing.T, clk clock.Clock) TokenStore) {
	ctx := context.Background()

	t.Run("未保存のセッションはnil", func(t *testing.T) {
		store := newStore(t, newTestClock())
		got, err := store.GetDinoparc(ctx, dpAliceRef)
		require.NoError(t, err)
		assert.Nil(t, got)

		list, err := store.ListHammerfest(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("同じキーの再保存はatimeのみ更新する", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)

		first, err := store.TouchDinoparc(ctx, dpAliceRef, dpKey1)
		require.NoError(t, err)
		assert.True(t, first.CreatedAt.Equal(testEpoch))

		clk.AdvanceBy(time.Minute)
		second, err := store.TouchDinoparc(ctx, dpAliceRef, dpKey1)
		require.NoError(t, err)
		assert.True(t, second.CreatedAt.Equal(testEpoch))
		assert.True(t, second.AccessedAt.Equal(clk.Now()))

		got, err := store.GetDinoparc(ctx, dpAliceRef)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, dpKey1, got.Key)
		assert.Equal(t, dpAliceRef, got.User)
	})

	t.Run("新しいキーで古いキーを置き換える", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)

		_, err := store.TouchDinoparc(ctx, dpAliceRef, dpKey1)
		require.NoError(t, err)
		clk.AdvanceBy(time.Minute)
		_, err = store.TouchDinoparc(ctx, dpAliceRef, dpKey2)
		require.NoError(t, err)

		got, err := store.GetDinoparc(ctx, dpAliceRef)
		require.NoError(t, err)
		assert.Equal(t, dpKey2, got.Key)
		assert.True(t, got.CreatedAt.Equal(clk.Now()))

		list, err := store.ListDinoparc(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("同じキーが別のユーザーに移る", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)

		_, err := store.TouchDinoparc(ctx, dpAliceRef, dpKey1)
		require.NoError(t, err)
		clk.AdvanceBy(time.Minute)
		_, err = store.TouchDinoparc(ctx, dpBobRef, dpKey1)
		require.NoError(t, err)

		alice, err := store.GetDinoparc(ctx, dpAliceRef)
		require.NoError(t, err)
		assert.Nil(t, alice)
		bob, err := store.GetDinoparc(ctx, dpBobRef)
		require.NoError(t, err)
		require.NotNil(t, bob)
		assert.Equal(t, dpKey1, bob.Key)
	})

	t.Run("サーバーが違えば別のセッション", func(t *testing.T) {
		store := newStore(t, newTestClock())
		fr := model.DinoparcUserIDRef{Server: model.DinoparcServerFr, ID: dpAliceRef.ID}

		_, err := store.TouchDinoparc(ctx, dpAliceRef, dpKey1)
		require.NoError(t, err)
		_, err = store.TouchDinoparc(ctx, fr, dpKey1)
		require.NoError(t, err)

		list, err := store.ListDinoparc(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("失効したキーは取得できない", func(t *testing.T) {
		store := newStore(t, newTestClock())
		_, err := store.TouchDinoparc(ctx, dpAliceRef, dpKey1)
		require.NoError(t, err)

		require.NoError(t, store.RevokeDinoparc(ctx, dpAliceRef.Server, dpKey1))
		got, err := store.GetDinoparc(ctx, dpAliceRef)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, store.RevokeDinoparc(ctx, dpAliceRef.Server, dpKey1), "二重の失効はエラーにしない")
	})

	t.Run("一覧はatimeの昇順", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)
		alice := model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "127"}
		bob := model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "128"}
		bobKey := model.HammerfestSessionKey("zzzzzzzzzzzzzzzzzzzzzzzzzz")

		_, err := store.TouchHammerfest(ctx, alice, hfKey1)
		require.NoError(t, err)
		clk.AdvanceBy(time.Minute)
		_, err = store.TouchHammerfest(ctx, bob, bobKey)
		require.NoError(t, err)
		clk.AdvanceBy(time.Minute)
		_, err = store.TouchHammerfest(ctx, alice, hfKey1)
		require.NoError(t, err)

		list, err := store.ListHammerfest(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, bob, list[0].User)
		assert.Equal(t, alice, list[1].User)

		require.NoError(t, store.RevokeHammerfest(ctx, alice.Server, hfKey1))
		got, err := store.GetHammerfest(ctx, alice)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("期限切れのアクセストークンは返さない", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)
		user := model.TwinoidUserIDRef{ID: "38"}

		require.NoError(t, store.TouchTwinoidOAuth(ctx, model.TouchTwinoidOAuthOptions{
			AccessToken:    "access1",
			RefreshToken:   "refresh1",
			ExpirationTime: testEpoch.Add(time.Hour),
			User:           user.ID,
		}))

		got, err := store.GetTwinoidOAuth(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, got.AccessToken)
		assert.Equal(t, "access1", got.AccessToken.Key)
		require.NotNil(t, got.RefreshToken)
		assert.Equal(t, "refresh1", got.RefreshToken.Key)

		clk.AdvanceBy(time.Hour)
		got, err = store.GetTwinoidOAuth(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, got.AccessToken, "有効期限ちょうどで失効する")
		assert.NotNil(t, got.RefreshToken)
	})

	t.Run("新しいトークンで置き換えて失効させる", func(t *testing.T) {
		clk := newTestClock()
		store := newStore(t, clk)
		user := model.TwinoidUserIDRef{ID: "38"}

		require.NoError(t, store.TouchTwinoidOAuth(ctx, model.TouchTwinoidOAuthOptions{
			AccessToken:    "access1",
			RefreshToken:   "refresh1",
			ExpirationTime: testEpoch.Add(time.Hour),
			User:           user.ID,
		}))
		clk.AdvanceBy(time.Minute)
		require.NoError(t, store.TouchTwinoidOAuth(ctx, model.TouchTwinoidOAuthOptions{
			AccessToken:    "access2",
			RefreshToken:   "refresh1",
			ExpirationTime: clk.Now().Add(time.Hour),
			User:           user.ID,
		}))

		got, err := store.GetTwinoidOAuth(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, got.AccessToken)
		assert.Equal(t, "access2", got.AccessToken.Key)
		assert.True(t, got.RefreshToken.CreatedAt.Equal(testEpoch), "同じリフレッシュトークンは作り直さない")

		require.NoError(t, store.RevokeTwinoidAccessToken(ctx, "access2"))
		require.NoError(t, store.RevokeTwinoidRefreshToken(ctx, "refresh1"))
		got, err = store.GetTwinoidOAuth(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, got.AccessToken)
		assert.Nil(t, got.RefreshToken)
	})
}
