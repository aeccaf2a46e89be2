package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/omeid/pgerror"

	"github.com/eternaltwin/etwin/internal/model"
)

// MaxTxAttempts はシリアライザブルトランザクションの最大試行回数。
const MaxTxAttempts = 5

// Queryer は *sql.DB と *sql.Tx の共通部分。
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IsRetryable は同時実行の衝突により再試行すべきエラーかどうかを返す。
// シリアライズ失敗、一意制約違反、排他制約違反が該当する。
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pgerror.SerializationFailure(pqErr) != nil ||
		pgerror.UniqueViolation(pqErr) != nil ||
		pgerror.ExclusionViolation(pqErr) != nil
}

// IsUniqueViolation は指定した制約の一意制約違反かどうかを返す。constraint が空の場合は制約名を問わない。
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	e := pgerror.UniqueViolation(pqErr)
	return e != nil && (constraint == "" || e.Constraint == constraint)
}

func newTxBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxTxAttempts-1), ctx)
}

// WithSerializableTx は fn をシリアライザブルなトランザクションで実行する。
// 衝突による失敗は指数バックオフで再試行し、試行回数を使い切った場合は StorageFailure を返す。
// fn が返したその他のエラーはそのまま返す。
func WithSerializableTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	var lastErr error
	op := func() error {
		err := runTx(ctx, db, fn)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			lastErr = err
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, newTxBackOff(ctx))
	if err == nil {
		return nil
	}
	if lastErr != nil && errors.Is(err, lastErr) {
		return model.NewKindError(model.KindStorageFailure, model.ErrCodeInternalServerError,
			fmt.Errorf("transaction failed after %d attempts: %w", MaxTxAttempts, err))
	}
	return err
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
