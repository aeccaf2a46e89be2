// Package temporal はアーカイブされた値の履歴を管理する。
//
// 1つのキーの履歴は期間 [Start, End) が重ならない行の列で、現在の行は高々1つ。
// 同じ値を再び観測した場合は現在の行の取得時刻に追記し、値が変わった場合は
// 現在の行を閉じて新しい行を追加する。
package temporal

import (
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/eternaltwin/etwin/internal/model"
)

// Outcome はTouchの結果。
type Outcome int

const (
	// Stale は最後の取得時刻以前の観測で、何も変更しなかった。
	Stale Outcome = iota
	// Inserted は現在の行がなかったため新しい行を追加した。
	Inserted
	// Confirmed は現在の行と同じ値で、取得時刻を追記した。
	Confirmed
	// Superseded は値が変わったため現在の行を閉じて新しい行を追加した。
	Superseded
	// Replaced は最後の取得時刻と同時刻に値が変わったため、その時刻の観測を置き換えた。Set のみが返す。
	Replaced
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Confirmed:
		return "confirmed"
	case Superseded:
		return "superseded"
	case Replaced:
		return "replaced"
	default:
		return "stale"
	}
}

// Row は履歴の1行。RetrievedAt は狭義単調増加で先頭は Period.Start と等しい。
type Row[T any] struct {
	Period      model.Period
	RetrievedAt []time.Time
	Value       T
}

// LastRetrieved は最後の取得時刻を返す。
func (r Row[T]) LastRetrieved() time.Time {
	return r.RetrievedAt[len(r.RetrievedAt)-1]
}

// Latest は LatestTemporal に変換する。
func (r Row[T]) Latest() *model.LatestTemporal[T] {
	return &model.LatestTemporal[T]{
		Period:    r.Period,
		Retrieved: model.Retrieved{Latest: r.LastRetrieved()},
		Value:     r.Value,
	}
}

func (r Row[T]) clone() Row[T] {
	r.RetrievedAt = slices.Clone(r.RetrievedAt)
	if r.Period.End != nil {
		end := *r.Period.End
		r.Period.End = &end
	}
	return r
}

// Decide は最後の行の状態と観測時刻から Touch の結果を決める。
// last が nil の場合は履歴が空。ストレージ実装はこの判定に従って行を書き換える。
func Decide(last *model.Period, lastRetrieved, now time.Time, equal bool) Outcome {
	if last == nil {
		return Inserted
	}
	if !now.After(lastRetrieved) {
		return Stale
	}
	if last.End != nil {
		if now.Before(*last.End) {
			return Stale
		}
		return Inserted
	}
	if equal {
		return Confirmed
	}
	return Superseded
}

// DecideSet は利用者による値の設定の結果を決める。
// Decide と異なり、開いた行の最後の取得時刻と同時刻の変更は捨てずに Replaced とする。
func DecideSet(last *model.Period, lastRetrieved, now time.Time, equal bool) Outcome {
	if last == nil || last.End != nil || !now.Equal(lastRetrieved) {
		return Decide(last, lastRetrieved, now, equal)
	}
	if equal {
		return Confirmed
	}
	return Replaced
}

// Equal は既定の等価判定。
func Equal[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// Log は1つのキーの履歴。ゼロ値は使えないため NewLog で生成する。
// 並行アクセスは呼び出し側で保護する。
type Log[T any] struct {
	rows  []Row[T]
	equal func(a, b T) bool
}

// NewLog は空の履歴を生成する。equal が nil の場合は reflect.DeepEqual を使う。
func NewLog[T any](equal func(a, b T) bool) *Log[T] {
	if equal == nil {
		equal = Equal[T]
	}
	return &Log[T]{equal: equal}
}

// Touch は now に value を観測したことを記録する。
func (l *Log[T]) Touch(now time.Time, value T) Outcome {
	var outcome Outcome
	if len(l.rows) == 0 {
		outcome = Decide(nil, time.Time{}, now, false)
	} else {
		last := &l.rows[len(l.rows)-1]
		equal := last.Period.End == nil && l.equal(last.Value, value)
		outcome = Decide(&last.Period, last.LastRetrieved(), now, equal)
	}

	switch outcome {
	case Confirmed:
		last := &l.rows[len(l.rows)-1]
		last.RetrievedAt = append(last.RetrievedAt, now)
	case Superseded:
		l.rows[len(l.rows)-1].Period.End = &now
		l.insert(now, value)
	case Inserted:
		l.insert(now, value)
	}
	return outcome
}

// Set は now に value が設定されたことを記録する。Stale の場合は何も変更しない。
//
// Replaced の場合、現在の行が now に始まっていれば値を置き換え、
// そうでなければ now の取得時刻を外して行を now で閉じ、新しい行を追加する。
func (l *Log[T]) Set(now time.Time, value T) Outcome {
	if len(l.rows) == 0 {
		l.insert(now, value)
		return Inserted
	}
	last := &l.rows[len(l.rows)-1]
	equal := last.Period.End == nil && l.equal(last.Value, value)
	outcome := DecideSet(&last.Period, last.LastRetrieved(), now, equal)

	switch outcome {
	case Confirmed:
		if now.After(last.LastRetrieved()) {
			last.RetrievedAt = append(last.RetrievedAt, now)
		}
	case Superseded:
		last.Period.End = &now
		l.insert(now, value)
	case Inserted:
		l.insert(now, value)
	case Replaced:
		if len(last.RetrievedAt) == 1 {
			last.Value = value
			break
		}
		last.RetrievedAt = last.RetrievedAt[:len(last.RetrievedAt)-1]
		last.Period.End = &now
		l.insert(now, value)
	}
	return outcome
}

func (l *Log[T]) insert(now time.Time, value T) {
	l.rows = append(l.rows, Row[T]{
		Period:      model.Period{Start: now},
		RetrievedAt: []time.Time{now},
		Value:       value,
	})
}

// Close は現在の行を now で閉じる。閉じた場合は true を返す。
// now が最後の取得時刻以前の場合は閉じない。
func (l *Log[T]) Close(now time.Time) bool {
	if len(l.rows) == 0 {
		return false
	}
	last := &l.rows[len(l.rows)-1]
	if last.Period.End != nil || !now.After(last.LastRetrieved()) {
		return false
	}
	last.Period.End = &now
	return true
}

// Current は現在の行を返す。
func (l *Log[T]) Current() (Row[T], bool) {
	if len(l.rows) == 0 || l.rows[len(l.rows)-1].Period.End != nil {
		return Row[T]{}, false
	}
	return l.rows[len(l.rows)-1].clone(), true
}

// Last は閉じているかに関わらず最新の行を返す。
func (l *Log[T]) Last() (Row[T], bool) {
	if len(l.rows) == 0 {
		return Row[T]{}, false
	}
	return l.rows[len(l.rows)-1].clone(), true
}

// At は t が nil なら現在の行を、そうでなければ t を含む行を返す。
func (l *Log[T]) At(t *time.Time) (Row[T], bool) {
	if t == nil {
		return l.Current()
	}
	i, found := slices.BinarySearchFunc(l.rows, *t, func(r Row[T], t time.Time) int {
		return r.Period.Start.Compare(t)
	})
	if !found {
		i--
	}
	if i < 0 || !l.rows[i].Period.Contains(*t) {
		return Row[T]{}, false
	}
	return l.rows[i].clone(), true
}

// Rows は時系列順の履歴のコピーを返す。
func (l *Log[T]) Rows() []Row[T] {
	out := make([]Row[T], len(l.rows))
	for i, r := range l.rows {
		out[i] = r.clone()
	}
	return out
}

// Archive はキーごとの履歴を保持する。
type Archive[K comparable, T any] struct {
	mu    sync.RWMutex
	logs  map[K]*Log[T]
	equal func(a, b T) bool
}

// NewArchive は空のアーカイブを生成する。equal が nil の場合は reflect.DeepEqual を使う。
func NewArchive[K comparable, T any](equal func(a, b T) bool) *Archive[K, T] {
	return &Archive[K, T]{logs: make(map[K]*Log[T]), equal: equal}
}

// Touch は key の履歴に観測を記録する。
func (a *Archive[K, T]) Touch(key K, now time.Time, value T) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	log, ok := a.logs[key]
	if !ok {
		log = NewLog(a.equal)
		a.logs[key] = log
	}
	return log.Touch(now, value)
}

// Set は key の履歴に利用者による設定を記録する。
func (a *Archive[K, T]) Set(key K, now time.Time, value T) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	log, ok := a.logs[key]
	if !ok {
		log = NewLog(a.equal)
		a.logs[key] = log
	}
	return log.Set(now, value)
}

// At は key の t 時点の行を返す。t が nil の場合は現在の行。
func (a *Archive[K, T]) At(key K, t *time.Time) (Row[T], bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	log, ok := a.logs[key]
	if !ok {
		return Row[T]{}, false
	}
	return log.At(t)
}

// Get は t が nil なら最新の行を、そうでなければ t 時点の行を返す。
func (a *Archive[K, T]) Get(key K, t *time.Time) (Row[T], bool) {
	if t != nil {
		return a.At(key, t)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	log, ok := a.logs[key]
	if !ok {
		return Row[T]{}, false
	}
	return log.Last()
}

// Latest は Get の結果を LatestTemporal で返す。見つからない場合は nil。
func (a *Archive[K, T]) Latest(key K, t *time.Time) *model.LatestTemporal[T] {
	row, ok := a.Get(key, t)
	if !ok {
		return nil
	}
	return row.Latest()
}

// Rows は key の履歴を返す。
func (a *Archive[K, T]) Rows(key K) []Row[T] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	log, ok := a.logs[key]
	if !ok {
		return nil
	}
	return log.Rows()
}

// CloseWhere は match が真を返す現在の行をすべて now で閉じ、閉じた件数を返す。
func (a *Archive[K, T]) CloseWhere(now time.Time, match func(key K, value T) bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for key, log := range a.logs {
		cur, ok := log.Current()
		if !ok || !match(key, cur.Value) {
			continue
		}
		if log.Close(now) {
			n++
		}
	}
	return n
}

// Len はキーの数を返す。
func (a *Archive[K, T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.logs)
}
