package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/temporal"
)

// アーカイブの対象エンティティ。archive_entities.entity に保存される。
const (
	entityDinoparcUser          = "dinoparc_user"
	entityDinoparcDinoz         = "dinoparc_dinoz"
	entityHammerfestUser        = "hammerfest_user"
	entityHammerfestForumTheme  = "hammerfest_forum_theme"
	entityHammerfestForumThread = "hammerfest_forum_thread"
	entityTwinoidUser           = "twinoid_user"
)

// archiveValue は読み出した1フィールドの行。Raw は正規化済みのJSON。
type archiveValue struct {
	Period    model.Period
	Retrieved time.Time
	Raw       []byte
}

// archiveReader はアーカイブの読み取り操作。
type archiveReader interface {
	// archivedAt はエンティティの最初のアーカイブ時刻を返す。未登録の場合はnil。
	archivedAt(ctx context.Context, entity, server, id string) (*time.Time, error)

	// read は subject の各フィールドについて t 時点の行を返す。t が nil の場合は最新の行。
	// 行がないフィールドは結果に含まれない。
	read(ctx context.Context, subject string, t *time.Time, fields ...string) (map[string]archiveValue, error)
}

// archiveWriter はトランザクション内の書き込み操作。
type archiveWriter interface {
	archiveReader

	// touchEntity はエンティティを登録する。登録済みの場合は早い方の時刻を残す。
	touchEntity(ctx context.Context, entity, server, id string, now time.Time) error

	// touch は field/subject の履歴に raw を観測したことを記録する。
	touch(ctx context.Context, field, subject string, now time.Time, raw []byte) (temporal.Outcome, error)

	// closeOthers は同じサーバーの subject 以外で現在の値が raw である行を now で閉じる。
	closeOthers(ctx context.Context, field, server, subject string, now time.Time, raw []byte) (int, error)
}

// archiveBackend はアーカイブの保存先。
type archiveBackend interface {
	view(ctx context.Context, fn func(r archiveReader) error) error
	update(ctx context.Context, fn func(w archiveWriter) error) error
}

// subjectOf は "server/id/..." 形式の subject を組み立てる。先頭は常にサーバー。
func subjectOf(server string, parts ...string) string {
	s := server
	for _, p := range parts {
		s += "/" + p
	}
	return s
}

// encodeValue は値を正規化したJSONに変換する。
// マップのキーは整列され、構造体のフィールド順は型定義に従うため、同じ値は同じバイト列になる。
func encodeValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive value: %w", err)
	}
	return raw, nil
}

// decodeLatest は読み出した行を LatestTemporal に変換する。行がない場合はnil。
func decodeLatest[T any](values map[string]archiveValue, field string) (*model.LatestTemporal[T], error) {
	v, ok := values[field]
	if !ok {
		return nil, nil
	}
	var value T
	if err := json.Unmarshal(v.Raw, &value); err != nil {
		return nil, fmt.Errorf("failed to decode archive value %s: %w", field, err)
	}
	return &model.LatestTemporal[T]{
		Period:    v.Period,
		Retrieved: model.Retrieved{Latest: v.Retrieved},
		Value:     value,
	}, nil
}

// toucher は1回の観測で複数のフィールドを書き込む。
// 最初のエラー以降の書き込みは行わず、err に保持する。
type toucher struct {
	ctx      context.Context
	w        archiveWriter
	now      time.Time
	outcomes []temporal.Outcome
	err      error
}

func (t *toucher) entity(entity, server, id string) {
	if t.err != nil {
		return
	}
	if err := t.w.touchEntity(t.ctx, entity, server, id, t.now); err != nil {
		t.err = err
	}
}

func (t *toucher) field(field, subject string, value any) {
	if t.err != nil {
		return
	}
	raw, err := encodeValue(value)
	if err != nil {
		t.err = err
		return
	}
	outcome, err := t.w.touch(t.ctx, field, subject, t.now, raw)
	if err != nil {
		t.err = err
		return
	}
	t.outcomes = append(t.outcomes, outcome)
}

// unique は同じサーバーで値を共有する他の subject の行を閉じてから記録する。
func (t *toucher) unique(field, server, subject string, value any) {
	if t.err != nil {
		return
	}
	raw, err := encodeValue(value)
	if err != nil {
		t.err = err
		return
	}
	if _, err := t.w.closeOthers(t.ctx, field, server, subject, t.now, raw); err != nil {
		t.err = err
		return
	}
	outcome, err := t.w.touch(t.ctx, field, subject, t.now, raw)
	if err != nil {
		t.err = err
		return
	}
	t.outcomes = append(t.outcomes, outcome)
}

// archiveStore は各ゲームのストアが共有する書き込みと読み取りの手順。
type archiveStore struct {
	backend archiveBackend
	now     func() time.Time
	name    string
	opts    storeOptions
}

// touch は fn を1つのトランザクションで実行する。fn 内の時刻はすべて同じ。
// 書き込み結果はコミット後に記録する。
func (s *archiveStore) touch(ctx context.Context, fn func(t *toucher)) error {
	now := s.now()
	var outcomes []temporal.Outcome
	err := s.backend.update(ctx, func(w archiveWriter) error {
		t := &toucher{ctx: ctx, w: w, now: now}
		fn(t)
		outcomes = t.outcomes
		return t.err
	})
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		s.opts.recorder.RecordArchiveTouch(s.name, o.String())
	}
	return nil
}

// view は読み取り専用で fn を実行する。
func (s *archiveStore) view(ctx context.Context, fn func(r archiveReader) error) error {
	return s.backend.view(ctx, fn)
}
