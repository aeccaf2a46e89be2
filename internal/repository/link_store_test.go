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

// linkStoreFactory はリンクストアと、リンク先のユーザーを作るユーザーストアを返す。
type linkStoreFactory func(t *testing.T, clk clock.Clock) (LinkStore, UserStore)

func TestMemLinkStore(t *testing.T) {
	runLinkStoreSuite(t, func(t *testing.T, clk clock.Clock) (LinkStore, UserStore) {
		return NewMemLinkStore(clk), NewMemUserStore(clk, uuidgen.NewCounter())
	})
}

func TestPostgresLinkStore(t *testing.T) {
	runLinkStoreSuite(t, func(t *testing.T, clk clock.Clock) (LinkStore, UserStore) {
		db := openTestDB(t)
		return NewPostgresLinkStore(db, clk), NewPostgresUserStore(db, clk, uuidgen.NewCounter(), fakeCrypter{})
	})
}

var (
	dpAliceRef = model.DinoparcUserIDRef{Server: model.DinoparcServerEn, ID: "1"}
	dpBobRef   = model.DinoparcUserIDRef{Server: model.DinoparcServerEn, ID: "2"}
)

func newLinkUser(t *testing.T, users UserStore, name model.UserDisplayName) model.UserIDRef {
	t.Helper()
	u, err := users.CreateUser(context.Background(), model.CreateUserOptions{DisplayName: name})
	require.NoError(t, err)
	return model.UserIDRef{ID: u.ID}
}

func runLinkStoreSuite(t *testing.T, newStore linkStoreFactory) {
	ctx := context.Background()

	t.Run("リンクがない場合は空の履歴", func(t *testing.T) {
		links, _ := newStore(t, newTestClock())
		v, err := links.GetLinkFromDinoparc(ctx, dpAliceRef, nil)
		require.NoError(t, err)
		assert.Nil(t, v.Current)
		assert.NotNil(t, v.Old)
		assert.Empty(t, v.Old)
	})

	t.Run("リンクを作成して取得する", func(t *testing.T) {
		links, users := newStore(t, newTestClock())
		alice := newLinkUser(t, users, "Alice")

		v, err := links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice})
		require.NoError(t, err)
		require.NotNil(t, v.Current)
		assert.Equal(t, alice, v.Current.Etwin)
		assert.True(t, v.Current.Link.Time.Equal(testEpoch))
		assert.Equal(t, alice, v.Current.Link.User)

		got, err := links.GetLinkFromDinoparc(ctx, dpAliceRef, nil)
		require.NoError(t, err)
		require.NotNil(t, got.Current)
		assert.Equal(t, dpAliceRef.Remote(), got.Current.Remote)
	})

	t.Run("同じリンクの再作成は何もしない", func(t *testing.T) {
		clk := newTestClock()
		links, users := newStore(t, clk)
		alice := newLinkUser(t, users, "Alice")
		opts := model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice}

		_, err := links.TouchLink(ctx, opts)
		require.NoError(t, err)
		clk.AdvanceBy(time.Hour)
		v, err := links.TouchLink(ctx, opts)
		require.NoError(t, err)
		require.NotNil(t, v.Current)
		assert.True(t, v.Current.Link.Time.Equal(testEpoch), "最初のリンク時刻が保たれる")
		assert.Empty(t, v.Old)
	})

	t.Run("衝突の種類を判定する", func(t *testing.T) {
		links, users := newStore(t, newTestClock())
		alice := newLinkUser(t, users, "Alice")
		bob := newLinkUser(t, users, "Bob")
		_, err := links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice})
		require.NoError(t, err)
		_, err = links.TouchLink(ctx, model.TouchLinkOptions{Etwin: bob, Remote: dpBobRef.Remote(), LinkedBy: bob})
		require.NoError(t, err)

		cases := []struct {
			name string
			opts model.TouchLinkOptions
			want model.LinkConflictKind
		}{
			{"別ユーザーにリンク済みのリモート", model.TouchLinkOptions{Etwin: newLinkUser(t, users, "Carol"), Remote: dpAliceRef.Remote(), LinkedBy: alice}, model.ConflictRemote},
			{"同じサーバーにリンク済みのユーザー", model.TouchLinkOptions{Etwin: alice, Remote: model.DinoparcUserIDRef{Server: model.DinoparcServerEn, ID: "3"}.Remote(), LinkedBy: alice}, model.ConflictEtwin},
			{"両方", model.TouchLinkOptions{Etwin: alice, Remote: dpBobRef.Remote(), LinkedBy: alice}, model.ConflictBoth},
		}
		for _, tc := range cases {
			_, err := links.TouchLink(ctx, tc.opts)
			var conflict *model.LinkConflictError
			require.True(t, errors.As(err, &conflict), tc.name)
			assert.Equal(t, tc.want, conflict.Conflict, tc.name)
			assert.Equal(t, model.KindConflict, model.KindOf(err), tc.name)
		}

		// 別のサーバーであれば同じユーザーでもリンクできる
		_, err = links.TouchLink(ctx, model.TouchLinkOptions{
			Etwin:    alice,
			Remote:   model.DinoparcUserIDRef{Server: model.DinoparcServerFr, ID: "1"}.Remote(),
			LinkedBy: alice,
		})
		require.NoError(t, err)
	})

	t.Run("リンクを解除すると履歴に残る", func(t *testing.T) {
		clk := newTestClock()
		links, users := newStore(t, clk)
		alice := newLinkUser(t, users, "Alice")
		bob := newLinkUser(t, users, "Bob")

		_, err := links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice})
		require.NoError(t, err)
		clk.AdvanceBy(time.Hour)
		v, err := links.DeleteLink(ctx, model.DeleteLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), UnlinkedBy: alice})
		require.NoError(t, err)
		assert.Nil(t, v.Current)
		require.Len(t, v.Old, 1)
		assert.True(t, v.Old[0].Unlink.Time.Equal(clk.Now()))

		clk.AdvanceBy(time.Hour)
		_, err = links.TouchLink(ctx, model.TouchLinkOptions{Etwin: bob, Remote: dpAliceRef.Remote(), LinkedBy: bob})
		require.NoError(t, err, "解除後は別のユーザーがリンクできる")
		clk.AdvanceBy(time.Hour)
		_, err = links.DeleteLink(ctx, model.DeleteLinkOptions{Etwin: bob, Remote: dpAliceRef.Remote(), UnlinkedBy: alice})
		require.NoError(t, err)

		got, err := links.GetLinkFromDinoparc(ctx, dpAliceRef, nil)
		require.NoError(t, err)
		require.Len(t, got.Old, 2)
		assert.Equal(t, bob, got.Old[0].Etwin, "新しいリンクが先")
		assert.Equal(t, alice, got.Old[1].Etwin)
		assert.Equal(t, alice, got.Old[0].Unlink.User)
	})

	t.Run("指定時刻の状態を返す", func(t *testing.T) {
		clk := newTestClock()
		links, users := newStore(t, clk)
		alice := newLinkUser(t, users, "Alice")

		_, err := links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice})
		require.NoError(t, err)
		clk.AdvanceBy(time.Hour)
		_, err = links.DeleteLink(ctx, model.DeleteLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), UnlinkedBy: alice})
		require.NoError(t, err)

		before := testEpoch.Add(-time.Second)
		during := testEpoch.Add(30 * time.Minute)
		after := clk.Now()

		v, err := links.GetLinkFromDinoparc(ctx, dpAliceRef, &before)
		require.NoError(t, err)
		assert.Nil(t, v.Current)
		assert.Empty(t, v.Old)

		v, err = links.GetLinkFromDinoparc(ctx, dpAliceRef, &during)
		require.NoError(t, err)
		require.NotNil(t, v.Current)
		assert.Empty(t, v.Old)

		v, err = links.GetLinkFromDinoparc(ctx, dpAliceRef, &after)
		require.NoError(t, err)
		assert.Nil(t, v.Current, "解除時刻ちょうどでは有効でない")
		assert.Len(t, v.Old, 1)
	})

	t.Run("リンクがない解除はNotLinked", func(t *testing.T) {
		clk := newTestClock()
		links, users := newStore(t, clk)
		alice := newLinkUser(t, users, "Alice")
		bob := newLinkUser(t, users, "Bob")

		_, err := links.DeleteLink(ctx, model.DeleteLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), UnlinkedBy: alice})
		assert.True(t, errors.Is(err, model.ErrNotLinked))

		_, err = links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice})
		require.NoError(t, err)
		clk.AdvanceBy(time.Minute)
		_, err = links.DeleteLink(ctx, model.DeleteLinkOptions{Etwin: bob, Remote: dpAliceRef.Remote(), UnlinkedBy: bob})
		assert.True(t, errors.Is(err, model.ErrNotLinked), "別のユーザーのリンクは解除できない")
	})

	t.Run("作成と同じ時刻の解除はInvalidRequest", func(t *testing.T) {
		links, users := newStore(t, newTestClock())
		alice := newLinkUser(t, users, "Alice")
		_, err := links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice})
		require.NoError(t, err)

		_, err = links.DeleteLink(ctx, model.DeleteLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), UnlinkedBy: alice})
		assert.Equal(t, model.KindValidation, model.KindOf(err))
	})

	t.Run("ユーザーのリンクをゲームごとにまとめる", func(t *testing.T) {
		clk := newTestClock()
		links, users := newStore(t, clk)
		alice := newLinkUser(t, users, "Alice")

		hf := model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "127"}
		tid := model.TwinoidUserIDRef{ID: "38"}
		for _, remote := range []model.RemoteUserRef{dpAliceRef.Remote(), hf.Remote(), tid.Remote()} {
			_, err := links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: remote, LinkedBy: alice})
			require.NoError(t, err)
		}
		clk.AdvanceBy(time.Minute)
		_, err := links.DeleteLink(ctx, model.DeleteLinkOptions{Etwin: alice, Remote: hf.Remote(), UnlinkedBy: alice})
		require.NoError(t, err)

		all, err := links.GetLinksFromEtwin(ctx, alice, nil)
		require.NoError(t, err)
		require.Contains(t, all.Dinoparc, model.DinoparcServerEn)
		assert.NotNil(t, all.Dinoparc[model.DinoparcServerEn].Current)
		require.Contains(t, all.Hammerfest, model.HammerfestServerFr)
		assert.Nil(t, all.Hammerfest[model.HammerfestServerFr].Current)
		assert.Len(t, all.Hammerfest[model.HammerfestServerFr].Old, 1)
		require.NotNil(t, all.Twinoid.Current)
		assert.Equal(t, tid.Remote(), all.Twinoid.Current.Remote)

		got, err := links.GetLinkFromTwinoid(ctx, tid, nil)
		require.NoError(t, err)
		assert.Equal(t, alice, got.Current.Etwin)
		got, err = links.GetLinkFromHammerfest(ctx, hf, nil)
		require.NoError(t, err)
		assert.Nil(t, got.Current)
	})

	t.Run("不正なユーザーIDは空のリンク", func(t *testing.T) {
		links, _ := newStore(t, newTestClock())
		all, err := links.GetLinksFromEtwin(ctx, model.UserIDRef{ID: "not-a-uuid"}, nil)
		require.NoError(t, err)
		assert.Empty(t, all.Dinoparc)
		assert.Empty(t, all.Hammerfest)
		assert.Nil(t, all.Twinoid.Current)
	})
}

// ユーザー削除でリンクも消えることを検証する
func TestMemLinkStore_DeleteUser(t *testing.T) {
	ctx := context.Background()
	links := NewMemLinkStore(newTestClock())
	alice := model.UserIDRef{ID: "00000000-0000-4000-8000-000000000001"}
	_, err := links.TouchLink(ctx, model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote(), LinkedBy: alice})
	require.NoError(t, err)

	links.DeleteUser(alice.ID)

	v, err := links.GetLinkFromDinoparc(ctx, dpAliceRef, nil)
	require.NoError(t, err)
	assert.Nil(t, v.Current)
	assert.Empty(t, v.Old)
}

func TestCheckTouchLink(t *testing.T) {
	alice := model.UserIDRef{ID: "a"}
	row := &linkRow{remote: dpAliceRef.Remote(), user: "a", linkedAt: testEpoch, linkedBy: "a"}

	create, err := checkTouchLink(model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote()}, nil, nil)
	require.NoError(t, err)
	assert.True(t, create)

	create, err = checkTouchLink(model.TouchLinkOptions{Etwin: alice, Remote: dpAliceRef.Remote()}, row, row)
	require.NoError(t, err)
	assert.False(t, create, "同じユーザーへの有効なリンクは作り直さない")
}
