package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

const fieldTwinoidName = "twinoid_user.name"

type twinoidStore struct {
	archiveStore
}

// MemTwinoidStore はメモリ上のTwinoidアーカイブ。
type MemTwinoidStore struct {
	twinoidStore
}

// NewMemTwinoidStore はMemTwinoidStoreを生成する。
func NewMemTwinoidStore(clk clock.Clock, opts ...StoreOption) *MemTwinoidStore {
	return &MemTwinoidStore{twinoidStore{archiveStore{
		backend: newMemArchive(),
		now:     clk.Now,
		name:    "twinoid",
		opts:    buildStoreOptions(opts),
	}}}
}

// PostgresTwinoidStore はPostgreSQLを使用したTwinoidアーカイブ。
type PostgresTwinoidStore struct {
	twinoidStore
}

// NewPostgresTwinoidStore はPostgresTwinoidStoreを生成する。
func NewPostgresTwinoidStore(db *sql.DB, clk clock.Clock, opts ...StoreOption) *PostgresTwinoidStore {
	return &PostgresTwinoidStore{twinoidStore{archiveStore{
		backend: newPgArchive(db),
		now:     clk.Now,
		name:    "twinoid",
		opts:    buildStoreOptions(opts),
	}}}
}

func twinoidUserSubject(id model.TwinoidUserID) string {
	return subjectOf(model.TwinoidServer, string(id))
}

// GetShortUser はユーザーの最小限の情報を返す。アーカイブにない場合はnilを返す。
func (s *twinoidStore) GetShortUser(ctx context.Context, opts model.GetTwinoidUserOptions) (*model.ShortTwinoidUser, error) {
	user, err := s.GetUser(ctx, opts)
	if err != nil || user == nil {
		return nil, err
	}
	short := user.Short()
	return &short, nil
}

// GetUser はアーカイブされたユーザーを返す。
func (s *twinoidStore) GetUser(ctx context.Context, opts model.GetTwinoidUserOptions) (*model.ArchivedTwinoidUser, error) {
	var user *model.ArchivedTwinoidUser
	err := s.view(ctx, func(r archiveReader) error {
		archivedAt, err := r.archivedAt(ctx, entityTwinoidUser, model.TwinoidServer, string(opts.ID))
		if err != nil || archivedAt == nil {
			return err
		}
		if opts.Time != nil && opts.Time.Before(*archivedAt) {
			return nil
		}
		subject := twinoidUserSubject(opts.ID)
		values, err := r.read(ctx, subject, opts.Time, fieldTwinoidName)
		if err != nil {
			return err
		}
		name, err := decodeLatest[model.TwinoidUserDisplayName](values, fieldTwinoidName)
		if err != nil {
			return err
		}
		if name == nil {
			return fmt.Errorf("archived user %s has no name", subject)
		}
		user = &model.ArchivedTwinoidUser{
			ID:          opts.ID,
			ArchivedAt:  *archivedAt,
			DisplayName: name.Value,
			Name:        name,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get twinoid user: %w", err)
	}
	return user, nil
}

// TouchShortUser は表示名を記録し、アーカイブされたユーザーを返す。Twinoidの表示名は一意ではない。
func (s *twinoidStore) TouchShortUser(ctx context.Context, user model.ShortTwinoidUser) (*model.ArchivedTwinoidUser, error) {
	err := s.touch(ctx, func(t *toucher) {
		t.entity(entityTwinoidUser, model.TwinoidServer, string(user.ID))
		t.field(fieldTwinoidName, twinoidUserSubject(user.ID), user.DisplayName)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch twinoid user: %w", err)
	}
	return s.GetUser(ctx, model.GetTwinoidUserOptions{ID: user.ID})
}

// compile-time interface check
var (
	_ TwinoidStore = (*MemTwinoidStore)(nil)
	_ TwinoidStore = (*PostgresTwinoidStore)(nil)
)
