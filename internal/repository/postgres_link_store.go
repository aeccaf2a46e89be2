package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/database"
	"github.com/eternaltwin/etwin/internal/model"
)

// PostgresLinkStore はPostgreSQLを使用したリンクストア。
// 有効なリンクの一意性は部分一意インデックスで保証される。
type PostgresLinkStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewPostgresLinkStore はPostgresLinkStoreを生成する。
func NewPostgresLinkStore(db *sql.DB, clk clock.Clock) *PostgresLinkStore {
	return &PostgresLinkStore{db: db, clock: clk}
}

const selectLinkColumns = `game, remote_server, remote_id, user_id, linked_at, linked_by, unlinked_at, unlinked_by`

func scanLinkRows(rows *sql.Rows) ([]linkRow, error) {
	defer rows.Close()

	var out []linkRow
	for rows.Next() {
		var (
			l          linkRow
			unlinkedAt sql.NullTime
			unlinkedBy sql.NullString
		)
		err := rows.Scan(&l.remote.Game, &l.remote.Server, &l.remote.ID, &l.user,
			&l.linkedAt, &l.linkedBy, &unlinkedAt, &unlinkedBy)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		l.linkedAt = l.linkedAt.UTC()
		if unlinkedAt.Valid {
			at := unlinkedAt.Time.UTC()
			l.unlinkedAt = &at
		}
		if unlinkedBy.Valid {
			by := model.UserID(unlinkedBy.String)
			l.unlinkedBy = &by
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate links: %w", err)
	}
	return out, nil
}

func queryLinks(ctx context.Context, q database.Queryer, where string, args ...any) ([]linkRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+selectLinkColumns+` FROM remote_links WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	return scanLinkRows(rows)
}

func firstLink(rows []linkRow) *linkRow {
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

func remoteLinks(ctx context.Context, q database.Queryer, ref model.RemoteUserRef) ([]linkRow, error) {
	return queryLinks(ctx, q, `game = $1 AND remote_server = $2 AND remote_id = $3`, ref.Game, ref.Server, ref.ID)
}

// TouchLink はリンクを作成する。同じリンクが有効な場合は何もしない。
func (s *PostgresLinkStore) TouchLink(ctx context.Context, opts model.TouchLinkOptions) (*model.VersionedRawLink, error) {
	now := s.clock.Now()
	var v model.VersionedRawLink
	err := database.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		byRemote, err := queryLinks(ctx, tx,
			`game = $1 AND remote_server = $2 AND remote_id = $3 AND unlinked_at IS NULL`,
			opts.Remote.Game, opts.Remote.Server, opts.Remote.ID)
		if err != nil {
			return err
		}
		byEtwin, err := queryLinks(ctx, tx,
			`user_id = $1 AND game = $2 AND remote_server = $3 AND unlinked_at IS NULL`,
			opts.Etwin.ID, opts.Remote.Game, opts.Remote.Server)
		if err != nil {
			return err
		}
		create, err := checkTouchLink(opts, firstLink(byRemote), firstLink(byEtwin))
		if err != nil {
			return err
		}
		if create {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO remote_links (game, remote_server, remote_id, user_id, linked_at, linked_by)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				opts.Remote.Game, opts.Remote.Server, opts.Remote.ID, opts.Etwin.ID, now, opts.LinkedBy.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert link: %w", err)
			}
		}
		rows, err := remoteLinks(ctx, tx, opts.Remote)
		if err != nil {
			return err
		}
		v = versionedLink(rows, nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch link: %w", err)
	}
	return &v, nil
}

// DeleteLink はリンクを解除する。
func (s *PostgresLinkStore) DeleteLink(ctx context.Context, opts model.DeleteLinkOptions) (*model.VersionedRawLink, error) {
	if _, err := uuid.Parse(string(opts.Etwin.ID)); err != nil {
		return nil, model.NewNotLinkedError()
	}
	now := s.clock.Now()
	var v model.VersionedRawLink
	err := database.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		var linkedAt time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT linked_at FROM remote_links
			 WHERE game = $1 AND remote_server = $2 AND remote_id = $3 AND user_id = $4 AND unlinked_at IS NULL
			 FOR UPDATE`,
			opts.Remote.Game, opts.Remote.Server, opts.Remote.ID, opts.Etwin.ID,
		).Scan(&linkedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewNotLinkedError()
		}
		if err != nil {
			return fmt.Errorf("failed to find link: %w", err)
		}
		if !now.After(linkedAt) {
			return model.NewInvalidRequestError("link cannot be deleted at its creation time")
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE remote_links SET unlinked_at = $5, unlinked_by = $6
			 WHERE game = $1 AND remote_server = $2 AND remote_id = $3 AND user_id = $4 AND unlinked_at IS NULL`,
			opts.Remote.Game, opts.Remote.Server, opts.Remote.ID, opts.Etwin.ID, now, opts.UnlinkedBy.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to unlink: %w", err)
		}
		rows, err := remoteLinks(ctx, tx, opts.Remote)
		if err != nil {
			return err
		}
		v = versionedLink(rows, nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete link: %w", err)
	}
	return &v, nil
}

func (s *PostgresLinkStore) getLink(ctx context.Context, ref model.RemoteUserRef, t *time.Time) (*model.VersionedRawLink, error) {
	rows, err := remoteLinks(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	v := versionedLink(rows, t)
	return &v, nil
}

// GetLinkFromDinoparc はDinoparcアカウントのリンク履歴を返す。
func (s *PostgresLinkStore) GetLinkFromDinoparc(ctx context.Context, ref model.DinoparcUserIDRef, t *time.Time) (*model.VersionedRawLink, error) {
	return s.getLink(ctx, ref.Remote(), t)
}

// GetLinkFromHammerfest はHammerfestアカウントのリンク履歴を返す。
func (s *PostgresLinkStore) GetLinkFromHammerfest(ctx context.Context, ref model.HammerfestUserIDRef, t *time.Time) (*model.VersionedRawLink, error) {
	return s.getLink(ctx, ref.Remote(), t)
}

// GetLinkFromTwinoid はTwinoidアカウントのリンク履歴を返す。
func (s *PostgresLinkStore) GetLinkFromTwinoid(ctx context.Context, ref model.TwinoidUserIDRef, t *time.Time) (*model.VersionedRawLink, error) {
	return s.getLink(ctx, ref.Remote(), t)
}

// GetLinksFromEtwin はetwinユーザーのリンクをゲームごとに返す。
func (s *PostgresLinkStore) GetLinksFromEtwin(ctx context.Context, user model.UserIDRef, t *time.Time) (*model.VersionedRawLinks, error) {
	if _, err := uuid.Parse(string(user.ID)); err != nil {
		return versionedLinks(nil, t), nil
	}
	rows, err := queryLinks(ctx, s.db, `user_id = $1`, user.ID)
	if err != nil {
		return nil, err
	}
	return versionedLinks(rows, t), nil
}

// compile-time interface check
var _ LinkStore = (*PostgresLinkStore)(nil)
