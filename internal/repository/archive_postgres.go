package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/sha3"

	"github.com/eternaltwin/etwin/internal/database"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/temporal"
)

// pgArchive はPostgreSQL上のアーカイブ。
// 値は archive_values に一度だけ保存し、archive_rows からSHA3-256のハッシュで参照する。
type pgArchive struct {
	db *sql.DB
}

func newPgArchive(db *sql.DB) *pgArchive {
	return &pgArchive{db: db}
}

func (a *pgArchive) view(ctx context.Context, fn func(r archiveReader) error) error {
	return fn(pgArchiveQueries{q: a.db})
}

// update は fn をシリアライザブルなトランザクションで実行する。衝突した場合は fn ごと再実行される。
func (a *pgArchive) update(ctx context.Context, fn func(w archiveWriter) error) error {
	return database.WithSerializableTx(ctx, a.db, func(tx *sql.Tx) error {
		return fn(pgArchiveQueries{q: tx})
	})
}

type pgArchiveQueries struct {
	q database.Queryer
}

func valueHash(raw []byte) []byte {
	sum := sha3.Sum256(raw)
	return sum[:]
}

func (p pgArchiveQueries) archivedAt(ctx context.Context, entity, server, id string) (*time.Time, error) {
	var at time.Time
	err := p.q.QueryRowContext(ctx,
		`SELECT archived_at FROM archive_entities WHERE entity = $1 AND server = $2 AND id = $3`,
		entity, server, id,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find archived entity: %w", err)
	}
	at = at.UTC()
	return &at, nil
}

func (p pgArchiveQueries) read(ctx context.Context, subject string, t *time.Time, fields ...string) (map[string]archiveValue, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT DISTINCT ON (r.field)
		        r.field, lower(r.period), upper(r.period),
		        r.retrieved_at[array_upper(r.retrieved_at, 1)], v.value
		 FROM archive_rows r
		 JOIN archive_values v ON v.hash = r.value_hash
		 WHERE r.subject = $1
		   AND r.field = ANY($2)
		   AND ($3::timestamptz IS NULL OR r.period @> $3::timestamptz)
		 ORDER BY r.field, lower(r.period) DESC`,
		subject, pq.Array(fields), t,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive rows: %w", err)
	}
	defer rows.Close()

	out := make(map[string]archiveValue, len(fields))
	for rows.Next() {
		var (
			field     string
			start     time.Time
			end       sql.NullTime
			retrieved time.Time
			raw       []byte
		)
		if err := rows.Scan(&field, &start, &end, &retrieved, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		v := archiveValue{
			Period:    model.Period{Start: start.UTC()},
			Retrieved: retrieved.UTC(),
			Raw:       raw,
		}
		if end.Valid {
			e := end.Time.UTC()
			v.Period.End = &e
		}
		out[field] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archive rows: %w", err)
	}
	return out, nil
}

func (p pgArchiveQueries) touchEntity(ctx context.Context, entity, server, id string, now time.Time) error {
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO archive_entities (entity, server, id, archived_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity, server, id)
		 DO UPDATE SET archived_at = LEAST(archive_entities.archived_at, EXCLUDED.archived_at)`,
		entity, server, id, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert archived entity: %w", err)
	}
	return nil
}

func (p pgArchiveQueries) putValue(ctx context.Context, raw []byte) ([]byte, error) {
	hash := valueHash(raw)
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO archive_values (hash, value) VALUES ($1, $2::jsonb) ON CONFLICT (hash) DO NOTHING`,
		hash, string(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert archive value: %w", err)
	}
	return hash, nil
}

// touch は temporal.Decide の判定に従って行を書き換える。
func (p pgArchiveQueries) touch(ctx context.Context, field, subject string, now time.Time, raw []byte) (temporal.Outcome, error) {
	return p.write(ctx, field, subject, now, raw, temporal.Decide)
}

// set は temporal.DecideSet の判定に従って行を書き換える。利用者による設定に使う。
func (p pgArchiveQueries) set(ctx context.Context, field, subject string, now time.Time, raw []byte) (temporal.Outcome, error) {
	return p.write(ctx, field, subject, now, raw, temporal.DecideSet)
}

func (p pgArchiveQueries) write(ctx context.Context, field, subject string, now time.Time, raw []byte, decide func(*model.Period, time.Time, time.Time, bool) temporal.Outcome) (temporal.Outcome, error) {
	hash, err := p.putValue(ctx, raw)
	if err != nil {
		return temporal.Stale, err
	}

	var (
		start      time.Time
		end        sql.NullTime
		retrieved  time.Time
		retrievals int
		lastHash   []byte
	)
	err = p.q.QueryRowContext(ctx,
		`SELECT lower(period), upper(period), retrieved_at[array_upper(retrieved_at, 1)],
		        array_length(retrieved_at, 1), value_hash
		 FROM archive_rows
		 WHERE field = $1 AND subject = $2
		 ORDER BY lower(period) DESC
		 LIMIT 1
		 FOR UPDATE`,
		field, subject,
	).Scan(&start, &end, &retrieved, &retrievals, &lastHash)

	var outcome temporal.Outcome
	switch {
	case errors.Is(err, sql.ErrNoRows):
		outcome = decide(nil, time.Time{}, now, false)
	case err != nil:
		return temporal.Stale, fmt.Errorf("failed to find last archive row: %w", err)
	default:
		period := &model.Period{Start: start}
		if end.Valid {
			period.End = &end.Time
		}
		outcome = decide(period, retrieved, now, !end.Valid && bytes.Equal(lastHash, hash))
	}

	switch outcome {
	case temporal.Confirmed:
		if !now.After(retrieved) {
			break
		}
		_, err = p.q.ExecContext(ctx,
			`UPDATE archive_rows SET retrieved_at = array_append(retrieved_at, $3::timestamptz)
			 WHERE field = $1 AND subject = $2 AND upper_inf(period)`,
			field, subject, now,
		)
		if err != nil {
			return outcome, fmt.Errorf("failed to append retrieval time: %w", err)
		}
	case temporal.Superseded:
		if err := p.closeCurrent(ctx, field, subject, now); err != nil {
			return outcome, err
		}
		if err := p.insertRow(ctx, field, subject, now, hash); err != nil {
			return outcome, err
		}
	case temporal.Inserted:
		if err := p.insertRow(ctx, field, subject, now, hash); err != nil {
			return outcome, err
		}
	case temporal.Replaced:
		if retrievals == 1 {
			_, err = p.q.ExecContext(ctx,
				`UPDATE archive_rows SET value_hash = $3
				 WHERE field = $1 AND subject = $2 AND upper_inf(period)`,
				field, subject, hash,
			)
			if err != nil {
				return outcome, fmt.Errorf("failed to replace archive value: %w", err)
			}
			break
		}
		_, err = p.q.ExecContext(ctx,
			`UPDATE archive_rows
			 SET retrieved_at = retrieved_at[1:array_upper(retrieved_at, 1) - 1],
			     period = tstzrange(lower(period), $3::timestamptz, '[)')
			 WHERE field = $1 AND subject = $2 AND upper_inf(period)`,
			field, subject, now,
		)
		if err != nil {
			return outcome, fmt.Errorf("failed to reopen archive row: %w", err)
		}
		if err := p.insertRow(ctx, field, subject, now, hash); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (p pgArchiveQueries) closeCurrent(ctx context.Context, field, subject string, now time.Time) error {
	_, err := p.q.ExecContext(ctx,
		`UPDATE archive_rows SET period = tstzrange(lower(period), $3::timestamptz, '[)')
		 WHERE field = $1 AND subject = $2 AND upper_inf(period)`,
		field, subject, now,
	)
	if err != nil {
		return fmt.Errorf("failed to close archive row: %w", err)
	}
	return nil
}

func (p pgArchiveQueries) insertRow(ctx context.Context, field, subject string, now time.Time, hash []byte) error {
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO archive_rows (field, subject, period, retrieved_at, value_hash)
		 VALUES ($1, $2, tstzrange($3::timestamptz, NULL, '[)'), ARRAY[$3::timestamptz], $4)`,
		field, subject, now, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert archive row: %w", err)
	}
	return nil
}

func (p pgArchiveQueries) closeOthers(ctx context.Context, field, server, subject string, now time.Time, raw []byte) (int, error) {
	result, err := p.q.ExecContext(ctx,
		`UPDATE archive_rows SET period = tstzrange(lower(period), $5::timestamptz, '[)')
		 WHERE field = $1
		   AND value_hash = $2
		   AND upper_inf(period)
		   AND subject <> $3
		   AND split_part(subject, '/', 1) = $4
		   AND retrieved_at[array_upper(retrieved_at, 1)] < $5::timestamptz`,
		field, valueHash(raw), subject, server, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close conflicting archive rows: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var _ archiveBackend = (*pgArchive)(nil)
var _ archiveWriter = pgArchiveQueries{}
