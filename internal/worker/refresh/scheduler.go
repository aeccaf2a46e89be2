// Package refresh は保存済みのリモートセッションを定期的に使い、
// アカウントのアーカイブを更新するバックグラウンド処理を提供する。
// スケジューラと、失効・リトライ・バックオフの判定を含む。
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

// SessionLister は保存済みのセッションキーを列挙し、破棄する。
// repository.TokenStore が満たす。
type SessionLister interface {
	ListDinoparc(ctx context.Context) ([]model.StoredDinoparcSession, error)
	RevokeDinoparc(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) error
	ListHammerfest(ctx context.Context) ([]model.StoredHammerfestSession, error)
	RevokeHammerfest(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) error
}

// DinoparcSessionTester はDinoparcのセッションキーを検証する。
type DinoparcSessionTester interface {
	TestSession(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) (*model.DinoparcSession, error)
}

// DinoparcArchiver はDinoparcのセッションで見えるページをアーカイブする。
type DinoparcArchiver interface {
	ArchiveSession(ctx context.Context, session *model.DinoparcSession) error
}

// HammerfestSessionTester はHammerfestのセッションキーを検証する。
type HammerfestSessionTester interface {
	TestSession(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) (*model.HammerfestSession, error)
}

// HammerfestArchiver はHammerfestのセッションで見えるページをアーカイブする。
type HammerfestArchiver interface {
	ArchiveSession(ctx context.Context, session *model.HammerfestSession) error
}

// RevocationRecorder はセッションの破棄を記録する。
type RevocationRecorder interface {
	RecordSessionRevoked(game string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionRevoked(string) {}

// SchedulerDeps はSchedulerの依存。
// DinoparcとHammerfestはどちらか片方だけでもよい。nil のゲームは更新しない。
type SchedulerDeps struct {
	Sessions          SessionLister
	DinoparcClient    DinoparcSessionTester
	DinoparcArchive   DinoparcArchiver
	HammerfestClient  HammerfestSessionTester
	HammerfestArchive HammerfestArchiver
	Clock             clock.Clock
	Recorder          RevocationRecorder
	Logger            *slog.Logger
	MaxConcurrency    int
}

// job は1つのセッションの更新処理。
type job struct {
	game   model.RemoteGame
	server string
	user   string
	key    string

	// run はセッションを検証してアーカイブする。セッションが失効していた場合は
	// 認証エラーを返す。
	run    func(ctx context.Context) error
	revoke func(ctx context.Context) error
}

func (j job) id() string {
	return fmt.Sprintf("%s:%s:%s", j.game, j.server, j.key)
}

// errSessionExpired はセッションキーが既に無効になっていることを表す。
var errSessionExpired = model.NewKindError(model.KindInvalidCredentials, "SessionExpired", errors.New("remote session expired"))

// Scheduler はセッション更新のスケジューリングと並列制御を行う。
// 一定間隔のティッカーで保存済みセッションを列挙し、
// semaphoreパターンで最大並列数を制御しながらアーカイブを実行する。
type Scheduler struct {
	deps           SchedulerDeps
	clock          clock.Clock
	recorder       RevocationRecorder
	logger         *slog.Logger
	maxConcurrency int

	mu      sync.Mutex
	backoff map[string]*backoffState
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// MaxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		deps:           deps,
		clock:          deps.Clock,
		recorder:       deps.Recorder,
		logger:         deps.Logger,
		maxConcurrency: deps.MaxConcurrency,
		backoff:        map[string]*backoffState{},
	}
	if s.clock == nil {
		s.clock = clock.SystemClock{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxConcurrency <= 0 {
		s.maxConcurrency = 4
	}
	return s
}

// Start はinterval間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("セッション更新スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("更新サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("セッション更新スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("更新サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は保存済みセッションを1回列挙し、並列でアーカイブを実行する。
// バックオフ中のセッションは飛ばす。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.clock.Now()

	jobs, err := s.listJobs(ctx)
	if err != nil {
		return err
	}

	due := jobs[:0]
	for _, j := range jobs {
		if s.isDue(j, start) {
			due = append(due, j)
		}
	}

	if len(due) == 0 {
		s.logger.Info("更新対象のセッションはありません",
			slog.Int("session_count", len(jobs)),
		)
		return nil
	}

	s.logger.Info("更新サイクルを開始します",
		slog.Int("session_count", len(due)),
		slog.Int("skipped_count", len(jobs)-len(due)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, j := range due {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			s.refresh(ctx, j)
		}(j)
	}

	wg.Wait()

	s.logger.Info("更新サイクルが完了しました",
		slog.Int("session_count", len(due)),
		slog.Float64("duration_ms", float64(s.clock.Now().Sub(start).Milliseconds())),
	)

	return ctx.Err()
}

// refresh は1つのセッションを更新し、結果に応じて破棄またはバックオフを適用する。
func (s *Scheduler) refresh(ctx context.Context, j job) {
	err := j.run(ctx)
	if ctx.Err() != nil {
		return
	}
	attrs := []any{
		slog.String("game", string(j.game)),
		slog.String("server", j.server),
		slog.String("user_id", j.user),
	}

	switch action := ClassifyError(err); action {
	case ActionNone:
		s.clearBackoff(j)
		s.logger.Debug("アーカイブを更新しました", attrs...)
	case ActionRevoke:
		s.clearBackoff(j)
		if rerr := j.revoke(ctx); rerr != nil {
			s.logger.Error("セッションキーの破棄に失敗しました",
				append(attrs, slog.String("error", rerr.Error()))...,
			)
			return
		}
		s.recorder.RecordSessionRevoked(string(j.game))
		s.logger.Info("無効になったセッションキーを破棄しました", attrs...)
	case ActionRetry:
		next := s.applyBackoff(j)
		s.logger.Warn("リモートに接続できないため後で再試行します",
			append(attrs, slog.Time("next_attempt_at", next), slog.String("error", err.Error()))...,
		)
	default:
		next := s.applyBackoff(j)
		s.logger.Error("アーカイブの更新に失敗しました",
			append(attrs, slog.Time("next_attempt_at", next), slog.String("error", err.Error()))...,
		)
	}
}

func (s *Scheduler) isDue(j job, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.backoff[j.id()]
	return !ok || b.due(now)
}

func (s *Scheduler) applyBackoff(j job) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.backoff[j.id()]
	if !ok {
		b = &backoffState{}
		s.backoff[j.id()] = b
	}
	b.fail(s.clock.Now())
	return b.nextAttemptAt
}

func (s *Scheduler) clearBackoff(j job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backoff, j.id())
}

// listJobs はゲームごとの保存済みセッションを更新処理に変換する。
func (s *Scheduler) listJobs(ctx context.Context) ([]job, error) {
	var jobs []job
	if s.deps.DinoparcClient != nil && s.deps.DinoparcArchive != nil {
		sessions, err := s.deps.Sessions.ListDinoparc(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list dinoparc sessions: %w", err)
		}
		for _, stored := range sessions {
			jobs = append(jobs, s.dinoparcJob(stored))
		}
	}
	if s.deps.HammerfestClient != nil && s.deps.HammerfestArchive != nil {
		sessions, err := s.deps.Sessions.ListHammerfest(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list hammerfest sessions: %w", err)
		}
		for _, stored := range sessions {
			jobs = append(jobs, s.hammerfestJob(stored))
		}
	}
	return jobs, nil
}

func (s *Scheduler) dinoparcJob(stored model.StoredDinoparcSession) job {
	return job{
		game:   model.RemoteGameDinoparc,
		server: string(stored.User.Server),
		user:   string(stored.User.ID),
		key:    string(stored.Key),
		run: func(ctx context.Context) error {
			session, err := s.deps.DinoparcClient.TestSession(ctx, stored.User.Server, stored.Key)
			if err != nil {
				return err
			}
			if session == nil {
				return errSessionExpired
			}
			return s.deps.DinoparcArchive.ArchiveSession(ctx, session)
		},
		revoke: func(ctx context.Context) error {
			return s.deps.Sessions.RevokeDinoparc(ctx, stored.User.Server, stored.Key)
		},
	}
}

func (s *Scheduler) hammerfestJob(stored model.StoredHammerfestSession) job {
	return job{
		game:   model.RemoteGameHammerfest,
		server: string(stored.User.Server),
		user:   string(stored.User.ID),
		key:    string(stored.Key),
		run: func(ctx context.Context) error {
			session, err := s.deps.HammerfestClient.TestSession(ctx, stored.User.Server, stored.Key)
			if err != nil {
				return err
			}
			if session == nil {
				return errSessionExpired
			}
			return s.deps.HammerfestArchive.ArchiveSession(ctx, session)
		},
		revoke: func(ctx context.Context) error {
			return s.deps.Sessions.RevokeHammerfest(ctx, stored.User.Server, stored.Key)
		},
	}
}
