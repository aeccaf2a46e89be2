package model

import (
	"regexp"
	"strconv"
	"time"
)

// Period は半開区間 [Start, End) を表す。End が nil の場合は上限なし。
type Period struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end"`
}

// IsCurrent は上限のない区間かどうかを返す。
func (p Period) IsCurrent() bool {
	return p.End == nil
}

// Contains は t が区間に含まれるかを返す。
func (p Period) Contains(t time.Time) bool {
	if t.Before(p.Start) {
		return false
	}
	return p.End == nil || t.Before(*p.End)
}

// Retrieved は最後に同じ値を観測した時刻を保持する。
type Retrieved struct {
	Latest time.Time `json:"latest"`
}

// LatestTemporal はアーカイブされた値の最新スナップショット。
type LatestTemporal[T any] struct {
	Period    Period    `json:"period"`
	Retrieved Retrieved `json:"retrieved"`
	Value     T         `json:"value"`
}

// RawUserDot は操作時刻と操作したユーザーIDの組。
type RawUserDot struct {
	Time time.Time `json:"time"`
	User UserIDRef `json:"user"`
}

// UserDot は操作時刻と操作したユーザーの組。
type UserDot struct {
	Time time.Time `json:"time"`
	User ShortUser `json:"user"`
}

var reIntPercentage = regexp.MustCompile(`^(?:0|[1-9][0-9]?|100)$`)

// IntPercentage は0から100までの整数の割合。
type IntPercentage uint8

// NewIntPercentage は範囲を検証して IntPercentage を生成する。
func NewIntPercentage(n int) (IntPercentage, error) {
	if err := checkRange("IntPercentage", n, 0, 100); err != nil {
		return 0, err
	}
	return IntPercentage(n), nil
}

// ParseIntPercentage は10進文字列から IntPercentage を生成する。
func ParseIntPercentage(s string) (IntPercentage, error) {
	if err := checkPattern("IntPercentage", reIntPercentage, s); err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(s)
	return IntPercentage(n), nil
}
