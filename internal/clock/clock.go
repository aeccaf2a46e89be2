// Package clock は現在時刻の取得を抽象化する。
package clock

import (
	"sync/atomic"
	"time"
)

// Clock は現在時刻を返す。返す時刻はUTCかつマイクロ秒精度に丸められる。
type Clock interface {
	Now() time.Time
}

// Truncate は時刻をUTCのマイクロ秒精度に揃える。
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// SystemClock は壁時計を読む。
type SystemClock struct{}

// Now は現在時刻を返す。
func (SystemClock) Now() time.Time {
	return Truncate(time.Now())
}

// VirtualClock はテスト用の仮想時計。
// 開始時刻とマイクロ秒単位のオフセットを保持し、書き込みは単一の所有者のみが行う。
type VirtualClock struct {
	start  time.Time
	offset atomic.Int64
}

// NewVirtualClock は start から始まる仮想時計を生成する。
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{start: Truncate(start)}
}

// Now は仮想的な現在時刻を返す。
func (c *VirtualClock) Now() time.Time {
	return c.start.Add(time.Duration(c.offset.Load()) * time.Microsecond)
}

// AdvanceTo は時計を t まで進める。過去への移動はpanicする。
func (c *VirtualClock) AdvanceTo(t time.Time) {
	t = Truncate(t)
	if t.Before(c.Now()) {
		panic("clock: cannot move virtual clock backwards")
	}
	c.offset.Store(int64(t.Sub(c.start) / time.Microsecond))
}

// AdvanceBy は時計を d だけ進める。
func (c *VirtualClock) AdvanceBy(d time.Duration) {
	if d < 0 {
		panic("clock: negative duration")
	}
	c.offset.Add(int64(d / time.Microsecond))
}

// compile-time interface check
var (
	_ Clock = SystemClock{}
	_ Clock = (*VirtualClock)(nil)
)
