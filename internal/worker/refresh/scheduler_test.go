package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/repository"
)

// --- モック定義 ---

// mockDinoparc はDinoparcのクライアントとアーカイブを兼ねるテスト用モック。
type mockDinoparc struct {
	testSessionFunc func(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) (*model.DinoparcSession, error)
	archiveFunc     func(ctx context.Context, session *model.DinoparcSession) error
	archived        atomic.Int32
}

func (m *mockDinoparc) TestSession(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) (*model.DinoparcSession, error) {
	if m.testSessionFunc != nil {
		return m.testSessionFunc(ctx, server, key)
	}
	return &model.DinoparcSession{
		Key:  key,
		User: model.ShortDinoparcUser{Server: server, ID: "1", Username: "alice"},
	}, nil
}

func (m *mockDinoparc) ArchiveSession(ctx context.Context, session *model.DinoparcSession) error {
	m.archived.Add(1)
	if m.archiveFunc != nil {
		return m.archiveFunc(ctx, session)
	}
	return nil
}

// mockHammerfest はHammerfestのクライアントとアーカイブを兼ねるテスト用モック。
type mockHammerfest struct {
	testSessionFunc func(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) (*model.HammerfestSession, error)
	archived        atomic.Int32
}

func (m *mockHammerfest) TestSession(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) (*model.HammerfestSession, error) {
	if m.testSessionFunc != nil {
		return m.testSessionFunc(ctx, server, key)
	}
	return &model.HammerfestSession{
		Key:  key,
		User: model.ShortHammerfestUser{Server: server, ID: "42", Username: "bob"},
	}, nil
}

func (m *mockHammerfest) ArchiveSession(ctx context.Context, session *model.HammerfestSession) error {
	m.archived.Add(1)
	return nil
}

// countingRecorder は破棄されたセッションの数をゲームごとに数える。
type countingRecorder struct {
	mu      sync.Mutex
	revoked map[string]int
}

func (r *countingRecorder) RecordSessionRevoked(game string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = map[string]int{}
	}
	r.revoked[game]++
}

func (r *countingRecorder) count(game string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[game]
}

// failingLister は列挙に失敗するセッションストア。
type failingLister struct {
	repository.TokenStore
}

func (failingLister) ListDinoparc(context.Context) ([]model.StoredDinoparcSession, error) {
	return nil, errors.New("connection refused")
}

const (
	dinoparcKey   = model.DinoparcSessionKey("0123456789abcdefghijABCDEFGHIJ01")
	hammerfestKey = model.HammerfestSessionKey("abcdefghijklmnopqrstuvwxyz")
)

var testStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// setupScheduler はセッションを1件ずつ保存したストアとスケジューラを返す。
func setupScheduler(t *testing.T, dp *mockDinoparc, hf *mockHammerfest) (*Scheduler, *repository.MemTokenStore, *clock.VirtualClock, *countingRecorder) {
	t.Helper()
	clk := clock.NewVirtualClock(testStart)
	tokens := repository.NewMemTokenStore(clk)
	ctx := context.Background()

	if _, err := tokens.TouchDinoparc(ctx, model.DinoparcUserIDRef{Server: model.DinoparcServerFr, ID: "1"}, dinoparcKey); err != nil {
		t.Fatalf("Dinoparcセッションの保存に失敗: %v", err)
	}
	if _, err := tokens.TouchHammerfest(ctx, model.HammerfestUserIDRef{Server: model.HammerfestServerFr, ID: "42"}, hammerfestKey); err != nil {
		t.Fatalf("Hammerfestセッションの保存に失敗: %v", err)
	}

	rec := &countingRecorder{}
	s := NewScheduler(SchedulerDeps{
		Sessions:          tokens,
		DinoparcClient:    dp,
		DinoparcArchive:   dp,
		HammerfestClient:  hf,
		HammerfestArchive: hf,
		Clock:             clk,
		Recorder:          rec,
		Logger:            slog.New(slog.DiscardHandler),
		MaxConcurrency:    2,
	})
	return s, tokens, clk, rec
}

// --- テスト ---

// TestRunOnce_ArchivesAllSessions は保存済みの全セッションがアーカイブされることを検証する。
func TestRunOnce_ArchivesAllSessions(t *testing.T) {
	dp := &mockDinoparc{}
	hf := &mockHammerfest{}
	s, tokens, _, rec := setupScheduler(t, dp, hf)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if got := dp.archived.Load(); got != 1 {
		t.Errorf("Dinoparcのアーカイブ回数 = %d, want 1", got)
	}
	if got := hf.archived.Load(); got != 1 {
		t.Errorf("Hammerfestのアーカイブ回数 = %d, want 1", got)
	}
	if rec.count("dinoparc") != 0 || rec.count("hammerfest") != 0 {
		t.Error("成功したセッションは破棄されないべき")
	}
	sessions, _ := tokens.ListDinoparc(context.Background())
	if len(sessions) != 1 {
		t.Errorf("Dinoparcのセッション数 = %d, want 1", len(sessions))
	}
}

// TestRunOnce_RevokesExpiredSession はTestSessionがnilを返したセッションが破棄されることを検証する。
func TestRunOnce_RevokesExpiredSession(t *testing.T) {
	dp := &mockDinoparc{
		testSessionFunc: func(context.Context, model.DinoparcServer, model.DinoparcSessionKey) (*model.DinoparcSession, error) {
			return nil, nil
		},
	}
	hf := &mockHammerfest{}
	s, tokens, _, rec := setupScheduler(t, dp, hf)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if got := dp.archived.Load(); got != 0 {
		t.Errorf("失効したセッションはアーカイブされないべき, got %d", got)
	}
	sessions, err := tokens.ListDinoparc(context.Background())
	if err != nil {
		t.Fatalf("ListDinoparc がエラーを返した: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("失効したセッションは破棄されるべき, 残り %d 件", len(sessions))
	}
	if got := rec.count("dinoparc"); got != 1 {
		t.Errorf("破棄の記録 = %d, want 1", got)
	}
	if got := hf.archived.Load(); got != 1 {
		t.Errorf("他のゲームの更新は継続されるべき, got %d", got)
	}
}

// TestRunOnce_RevokesOnInvalidCredentials はアーカイブ中の認証エラーでセッションが破棄されることを検証する。
func TestRunOnce_RevokesOnInvalidCredentials(t *testing.T) {
	dp := &mockDinoparc{
		archiveFunc: func(context.Context, *model.DinoparcSession) error {
			return model.NewKindError(model.KindInvalidCredentials, "Unauthenticated", errors.New("logged out"))
		},
	}
	s, tokens, _, rec := setupScheduler(t, dp, &mockHammerfest{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	sessions, _ := tokens.ListDinoparc(context.Background())
	if len(sessions) != 0 {
		t.Errorf("認証エラーのセッションは破棄されるべき, 残り %d 件", len(sessions))
	}
	if got := rec.count("dinoparc"); got != 1 {
		t.Errorf("破棄の記録 = %d, want 1", got)
	}
}

// TestRunOnce_BackoffOnRemoteUnavailable はリモート障害のセッションが残され、
// バックオフ期間が過ぎるまで再試行されないことを検証する。
func TestRunOnce_BackoffOnRemoteUnavailable(t *testing.T) {
	var calls atomic.Int32
	dp := &mockDinoparc{
		testSessionFunc: func(context.Context, model.DinoparcServer, model.DinoparcSessionKey) (*model.DinoparcSession, error) {
			calls.Add(1)
			return nil, model.NewKindError(model.KindRemoteUnavailable, "ServerError", errors.New("503"))
		},
	}
	s, tokens, clk, rec := setupScheduler(t, dp, &mockHammerfest{})
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("TestSession の呼び出し回数 = %d, want 1", got)
	}
	sessions, _ := tokens.ListDinoparc(ctx)
	if len(sessions) != 1 {
		t.Errorf("リモート障害ではセッションを残すべき, 残り %d 件", len(sessions))
	}
	if rec.count("dinoparc") != 0 {
		t.Error("リモート障害では破棄を記録しないべき")
	}

	// バックオフ中は飛ばす
	clk.AdvanceBy(10 * time.Minute)
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("バックオフ中は再試行しないべき, 呼び出し回数 = %d", got)
	}

	// 初回のバックオフ（30分）を過ぎたら再試行する
	clk.AdvanceBy(20 * time.Minute)
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("バックオフ後は再試行するべき, 呼び出し回数 = %d", got)
	}

	// 2回目の失敗後は60分待つ
	clk.AdvanceBy(45 * time.Minute)
	_ = s.RunOnce(ctx)
	if got := calls.Load(); got != 2 {
		t.Errorf("2回目のバックオフ中は再試行しないべき, 呼び出し回数 = %d", got)
	}
	clk.AdvanceBy(15 * time.Minute)
	_ = s.RunOnce(ctx)
	if got := calls.Load(); got != 3 {
		t.Errorf("2回目のバックオフ後は再試行するべき, 呼び出し回数 = %d", got)
	}
}

// TestRunOnce_SuccessClearsBackoff は成功するとバックオフの記録が消えることを検証する。
func TestRunOnce_SuccessClearsBackoff(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	dp := &mockDinoparc{
		archiveFunc: func(context.Context, *model.DinoparcSession) error {
			if fail.Load() {
				return errors.New("unexpected markup")
			}
			return nil
		},
	}
	s, _, clk, _ := setupScheduler(t, dp, &mockHammerfest{})
	ctx := context.Background()

	_ = s.RunOnce(ctx)
	fail.Store(false)
	clk.AdvanceBy(CalculateBackoff(0))
	_ = s.RunOnce(ctx)
	if got := dp.archived.Load(); got != 2 {
		t.Fatalf("アーカイブ回数 = %d, want 2", got)
	}

	// 成功後は次のティックでそのまま更新される
	_ = s.RunOnce(ctx)
	if got := dp.archived.Load(); got != 3 {
		t.Errorf("成功後はバックオフなしで更新されるべき, アーカイブ回数 = %d", got)
	}
}

// TestRunOnce_MaxConcurrency は並列数がMaxConcurrencyを超えないことを検証する。
func TestRunOnce_MaxConcurrency(t *testing.T) {
	clk := clock.NewVirtualClock(testStart)
	tokens := repository.NewMemTokenStore(clk)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		key := model.DinoparcSessionKey(fmt.Sprintf("%032d", i))
		ref := model.DinoparcUserIDRef{Server: model.DinoparcServerFr, ID: model.DinoparcUserID(fmt.Sprint(i + 1))}
		if _, err := tokens.TouchDinoparc(ctx, ref, key); err != nil {
			t.Fatalf("セッションの保存に失敗: %v", err)
		}
	}

	var running, maxRunning atomic.Int32
	dp := &mockDinoparc{
		archiveFunc: func(context.Context, *model.DinoparcSession) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	}
	s := NewScheduler(SchedulerDeps{
		Sessions:        tokens,
		DinoparcClient:  dp,
		DinoparcArchive: dp,
		Clock:           clk,
		Logger:          slog.New(slog.DiscardHandler),
		MaxConcurrency:  3,
	})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if got := dp.archived.Load(); got != 8 {
		t.Errorf("アーカイブ回数 = %d, want 8", got)
	}
	if got := maxRunning.Load(); got > 3 {
		t.Errorf("最大並列数 = %d, 3を超えるべきではない", got)
	}
}

// TestRunOnce_ListError は列挙の失敗がエラーとして返ることを検証する。
func TestRunOnce_ListError(t *testing.T) {
	dp := &mockDinoparc{}
	s := NewScheduler(SchedulerDeps{
		Sessions:        failingLister{},
		DinoparcClient:  dp,
		DinoparcArchive: dp,
		Logger:          slog.New(slog.DiscardHandler),
	})

	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("列挙の失敗はエラーを返すべき")
	}
	if got := dp.archived.Load(); got != 0 {
		t.Errorf("アーカイブは実行されないべき, got %d", got)
	}
}

// TestStart_StopsOnCancel はコンテキストのキャンセルでStartが戻ることを検証する。
func TestStart_StopsOnCancel(t *testing.T) {
	dp := &mockDinoparc{}
	s, _, _, _ := setupScheduler(t, dp, &mockHammerfest{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目の実行を待つ
	deadline := time.Now().Add(2 * time.Second)
	for dp.archived.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にStartが戻らなかった")
	}
	if got := dp.archived.Load(); got != 1 {
		t.Errorf("起動直後に1回実行されるべき, got %d", got)
	}
}
