package refresh

import (
	"time"

	"github.com/eternaltwin/etwin/internal/model"
)

// Action はセッション更新の結果に対する処置。
type Action int

const (
	// ActionNone は成功。失敗の記録を消す。
	ActionNone Action = iota
	// ActionRevoke はセッションキーを破棄する（認証エラーまたは失効）。
	ActionRevoke
	// ActionRetry は次回以降のティックで再試行する（リモート障害）。
	ActionRetry
	// ActionReport は想定外の失敗。キーは残し、バックオフを適用する。
	ActionReport
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRevoke:
		return "revoke"
	case ActionRetry:
		return "retry"
	case ActionReport:
		return "report"
	default:
		return "unknown"
	}
}

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
)

// ClassifyError はエラーの種類を処置に分類する。
func ClassifyError(err error) Action {
	if err == nil {
		return ActionNone
	}
	kind := model.KindOf(err)
	switch {
	case kind == model.KindInvalidCredentials:
		return ActionRevoke
	case kind.Retryable():
		return ActionRetry
	default:
		return ActionReport
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// backoffState はセッションごとの連続失敗の記録。
type backoffState struct {
	consecutiveErrors int
	nextAttemptAt     time.Time
}

// fail は失敗を1回記録し、次の試行時刻を決める。
func (b *backoffState) fail(now time.Time) {
	b.consecutiveErrors++
	b.nextAttemptAt = now.Add(CalculateBackoff(b.consecutiveErrors - 1))
}

func (b backoffState) due(now time.Time) bool {
	return !now.Before(b.nextAttemptAt)
}
