package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/database"
	"github.com/eternaltwin/etwin/internal/model"
)

// pgTokens はPostgreSQL上のセッションキーとトークン。
type pgTokens struct {
	db *sql.DB
}

// touchSession は1つのトランザクションで既存の紐付けを置き換える。
// 同じユーザーの同じキーの場合は atime のみ更新する。
func (p *pgTokens) touchSession(ctx context.Context, game, server, user, key string, now time.Time) (remoteSession, error) {
	row := remoteSession{game: game, server: server, key: key, user: user}
	err := database.WithSerializableTx(ctx, p.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE remote_sessions SET atime = GREATEST(atime, $5)
			 WHERE game = $1 AND server = $2 AND session_key = $3 AND user_id = $4
			 RETURNING ctime, atime`,
			game, server, key, user, now,
		).Scan(&row.ctime, &row.atime)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to touch session: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM remote_sessions
			 WHERE game = $1 AND server = $2 AND (session_key = $3 OR user_id = $4)`,
			game, server, key, user,
		)
		if err != nil {
			return fmt.Errorf("failed to revoke previous sessions: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO remote_sessions (game, server, session_key, user_id, ctime, atime)
			 VALUES ($1, $2, $3, $4, $5, $5)`,
			game, server, key, user, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		row.ctime, row.atime = now, now
		return nil
	})
	if err != nil {
		return remoteSession{}, err
	}
	row.ctime = row.ctime.UTC()
	row.atime = row.atime.UTC()
	return row, nil
}

func (p *pgTokens) revokeSession(ctx context.Context, game, server, key string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM remote_sessions WHERE game = $1 AND server = $2 AND session_key = $3`,
		game, server, key,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (p *pgTokens) getSession(ctx context.Context, game, server, user string) (*remoteSession, error) {
	row := &remoteSession{game: game, server: server, user: user}
	err := p.db.QueryRowContext(ctx,
		`SELECT session_key, ctime, atime FROM remote_sessions
		 WHERE game = $1 AND server = $2 AND user_id = $3`,
		game, server, user,
	).Scan(&row.key, &row.ctime, &row.atime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	row.ctime = row.ctime.UTC()
	row.atime = row.atime.UTC()
	return row, nil
}

func (p *pgTokens) listSessions(ctx context.Context, game string) ([]remoteSession, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT server, session_key, user_id, ctime, atime FROM remote_sessions
		 WHERE game = $1
		 ORDER BY atime ASC, session_key ASC`,
		game,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []remoteSession
	for rows.Next() {
		r := remoteSession{game: game}
		if err := rows.Scan(&r.server, &r.key, &r.user, &r.ctime, &r.atime); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		r.ctime = r.ctime.UTC()
		r.atime = r.atime.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

func (p *pgTokens) touchTwinoidOAuth(ctx context.Context, opts model.TouchTwinoidOAuthOptions, now time.Time) error {
	return database.WithSerializableTx(ctx, p.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM twinoid_access_tokens WHERE twinoid_user_id = $1 AND token_key <> $2`,
			opts.User, opts.AccessToken,
		)
		if err != nil {
			return fmt.Errorf("failed to revoke previous access token: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO twinoid_access_tokens (token_key, twinoid_user_id, ctime, atime, expiration_time)
			 VALUES ($1, $2, $3, $3, $4)
			 ON CONFLICT (token_key)
			 DO UPDATE SET twinoid_user_id = EXCLUDED.twinoid_user_id,
			               atime = EXCLUDED.atime,
			               expiration_time = EXCLUDED.expiration_time`,
			opts.AccessToken, opts.User, now, opts.ExpirationTime,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert access token: %w", err)
		}

		if opts.RefreshToken == "" {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM twinoid_refresh_tokens WHERE twinoid_user_id = $1 AND token_key <> $2`,
			opts.User, opts.RefreshToken,
		)
		if err != nil {
			return fmt.Errorf("failed to revoke previous refresh token: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO twinoid_refresh_tokens (token_key, twinoid_user_id, ctime, atime)
			 VALUES ($1, $2, $3, $3)
			 ON CONFLICT (token_key)
			 DO UPDATE SET twinoid_user_id = EXCLUDED.twinoid_user_id, atime = EXCLUDED.atime`,
			opts.RefreshToken, opts.User, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert refresh token: %w", err)
		}
		return nil
	})
}

func (p *pgTokens) revokeTwinoidAccessToken(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM twinoid_access_tokens WHERE token_key = $1`, key); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	return nil
}

func (p *pgTokens) revokeTwinoidRefreshToken(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM twinoid_refresh_tokens WHERE token_key = $1`, key); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (p *pgTokens) getTwinoidOAuth(ctx context.Context, user model.TwinoidUserID, now time.Time) (*model.TwinoidOAuth, error) {
	out := &model.TwinoidOAuth{}

	access := &model.TwinoidAccessToken{User: user}
	err := p.db.QueryRowContext(ctx,
		`SELECT token_key, ctime, atime, expiration_time FROM twinoid_access_tokens
		 WHERE twinoid_user_id = $1 AND expiration_time > $2`,
		user, now,
	).Scan(&access.Key, &access.CreatedAt, &access.AccessedAt, &access.ExpiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to find access token: %w", err)
	default:
		access.CreatedAt = access.CreatedAt.UTC()
		access.AccessedAt = access.AccessedAt.UTC()
		access.ExpiresAt = access.ExpiresAt.UTC()
		out.AccessToken = access
	}

	refresh := &model.TwinoidRefreshToken{User: user}
	err = p.db.QueryRowContext(ctx,
		`SELECT token_key, ctime, atime FROM twinoid_refresh_tokens WHERE twinoid_user_id = $1`,
		user,
	).Scan(&refresh.Key, &refresh.CreatedAt, &refresh.AccessedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	default:
		refresh.CreatedAt = refresh.CreatedAt.UTC()
		refresh.AccessedAt = refresh.AccessedAt.UTC()
		out.RefreshToken = refresh
	}
	return out, nil
}

// PostgresTokenStore はPostgreSQLを使用したトークンストア。
type PostgresTokenStore struct {
	tokenStore
}

// NewPostgresTokenStore はPostgresTokenStoreを生成する。
func NewPostgresTokenStore(db *sql.DB, clk clock.Clock) *PostgresTokenStore {
	p := &pgTokens{db: db}
	return &PostgresTokenStore{tokenStore{sessions: p, tokens: p, now: clk.Now}}
}

// compile-time interface check
var _ TokenStore = (*PostgresTokenStore)(nil)
