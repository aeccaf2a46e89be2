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
	"github.com/eternaltwin/etwin/internal/temporal"
	"github.com/eternaltwin/etwin/internal/uuidgen"
)

// 表示名の履歴は archive_rows に subject = ユーザーID で保存する。
const fieldUserDisplayName = "user.display_name"

// EmailCrypter はメールアドレスの暗号化と検索用ハッシュを提供する。
type EmailCrypter interface {
	Encrypt(email model.EmailAddress) ([]byte, error)
	Decrypt(ciphertext []byte) (model.EmailAddress, error)
	Hash(email model.EmailAddress) []byte
}

// PostgresUserStore はPostgreSQLを使用したユーザーストア。AuthStore も実装する。
type PostgresUserStore struct {
	db     *sql.DB
	clock  clock.Clock
	uuid   uuidgen.Generator
	crypto EmailCrypter
}

// NewPostgresUserStore はPostgresUserStoreを生成する。
func NewPostgresUserStore(db *sql.DB, clk clock.Clock, uuid uuidgen.Generator, crypto EmailCrypter) *PostgresUserStore {
	return &PostgresUserStore{db: db, clock: clk, uuid: uuid, crypto: crypto}
}

type pgUserRow struct {
	id          model.UserID
	ctime       time.Time
	displayName model.UserDisplayName
	username    sql.NullString
	email       []byte
	password    []byte
	isAdmin     bool
}

const selectUserColumns = `user_id, ctime, display_name, username, email, password, is_administrator`

func (r *pgUserRow) scan(row interface{ Scan(dest ...any) error }) error {
	return row.Scan(&r.id, &r.ctime, &r.displayName, &r.username, &r.email, &r.password, &r.isAdmin)
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// CreateUser はユーザーを作成する。最初のユーザーのみ管理者になる。
func (s *PostgresUserStore) CreateUser(ctx context.Context, opts model.CreateUserOptions) (*model.CompleteUser, error) {
	var emailHash, emailCipher []byte
	if opts.Email != nil {
		var err error
		emailCipher, err = s.crypto.Encrypt(*opts.Email)
		if err != nil {
			return nil, err
		}
		emailHash = s.crypto.Hash(*opts.Email)
	}

	now := s.clock.Now()
	id := model.NewUserID(s.uuid.Next())
	var isAdmin bool
	err := database.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		if opts.Username != nil {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, *opts.Username,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check username: %w", err)
			}
			if exists {
				return model.NewUsernameConflictError()
			}
		}
		if emailHash != nil {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM users WHERE email_hash = $1)`, emailHash,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check email: %w", err)
			}
			if exists {
				return model.NewEmailConflictError()
			}
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO users (user_id, ctime, display_name, username, email_hash, email, password, is_administrator)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOT EXISTS (SELECT 1 FROM users))
			 RETURNING is_administrator`,
			id, now, opts.DisplayName, opts.Username, nullBytes(emailHash), nullBytes(emailCipher), nullBytes(opts.Password),
		).Scan(&isAdmin)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		raw, err := encodeValue(opts.DisplayName)
		if err != nil {
			return err
		}
		_, err = pgArchiveQueries{q: tx}.touch(ctx, fieldUserDisplayName, string(id), now, raw)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &model.CompleteUser{
		User: model.User{
			ID:              id,
			CreatedAt:       now,
			DisplayName:     opts.DisplayName,
			IsAdministrator: isAdmin,
		},
		Username:     opts.Username,
		EmailAddress: opts.Email,
		HasPassword:  opts.Password != nil,
	}, nil
}

func (s *PostgresUserStore) findUser(ctx context.Context, q database.Queryer, ref model.UserRef) (*pgUserRow, error) {
	var (
		query string
		arg   any
	)
	switch {
	case ref.ID != nil:
		if _, err := uuid.Parse(string(*ref.ID)); err != nil {
			return nil, nil
		}
		query, arg = `SELECT `+selectUserColumns+` FROM users WHERE user_id = $1`, *ref.ID
	case ref.Username != nil:
		query, arg = `SELECT `+selectUserColumns+` FROM users WHERE username = $1`, *ref.Username
	case ref.Email != nil:
		query, arg = `SELECT `+selectUserColumns+` FROM users WHERE email_hash = $1`, s.crypto.Hash(*ref.Email)
	default:
		return nil, nil
	}

	row := &pgUserRow{}
	err := row.scan(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	row.ctime = row.ctime.UTC()
	return row, nil
}

func (s *PostgresUserStore) complete(row *pgUserRow, fields model.UserFields) (*model.CompleteUser, error) {
	user := &model.CompleteUser{
		User: model.User{
			ID:          row.id,
			DisplayName: row.displayName,
		},
	}
	if fields == model.UserFieldsShort {
		return user, nil
	}
	user.CreatedAt = row.ctime
	user.IsAdministrator = row.isAdmin
	if fields != model.UserFieldsComplete {
		return user, nil
	}
	if row.username.Valid {
		username := model.Username(row.username.String)
		user.Username = &username
	}
	if row.email != nil {
		email, err := s.crypto.Decrypt(row.email)
		if err != nil {
			return nil, err
		}
		user.EmailAddress = &email
	}
	user.HasPassword = row.password != nil
	return user, nil
}

// GetUser はユーザーを返す。Time が指定された場合はその時点の表示名を返し、
// その時点で存在しなかったユーザーは見つからない扱いになる。
func (s *PostgresUserStore) GetUser(ctx context.Context, opts model.GetUserOptions) (*model.CompleteUser, error) {
	row, err := s.findUser(ctx, s.db, opts.Ref)
	if err != nil || row == nil {
		return nil, err
	}
	if opts.Time != nil {
		values, err := pgArchiveQueries{q: s.db}.read(ctx, string(row.id), opts.Time, fieldUserDisplayName)
		if err != nil {
			return nil, fmt.Errorf("failed to read display name history: %w", err)
		}
		name, err := decodeLatest[model.UserDisplayName](values, fieldUserDisplayName)
		if err != nil {
			return nil, err
		}
		if name == nil {
			return nil, nil
		}
		row.displayName = name.Value
	}
	user, err := s.complete(row, opts.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetShortUser はユーザーの最小限の情報を返す。
func (s *PostgresUserStore) GetShortUser(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error) {
	opts.Fields = model.UserFieldsShort
	user, err := s.GetUser(ctx, opts)
	if err != nil || user == nil {
		return nil, err
	}
	short := user.Short()
	return &short, nil
}

// GetUserWithPassword はユーザーとパスワードハッシュを返す。
func (s *PostgresUserStore) GetUserWithPassword(ctx context.Context, ref model.UserRef) (*model.CompleteUser, model.PasswordHash, error) {
	row, err := s.findUser(ctx, s.db, ref)
	if err != nil || row == nil {
		return nil, nil, err
	}
	user, err := s.complete(row, model.UserFieldsComplete)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, model.PasswordHash(row.password), nil
}

// UpdateUser はnilでないフィールドを更新する。
func (s *PostgresUserStore) UpdateUser(ctx context.Context, id model.UserID, patch model.UpdateUserPatch) (*model.CompleteUser, error) {
	now := s.clock.Now()
	var row *pgUserRow
	err := database.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		row, err = s.findUser(ctx, tx, model.UserRefByID(id))
		if err != nil {
			return err
		}
		if row == nil {
			return model.NewUserNotFoundError()
		}

		if patch.Username != nil {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND user_id <> $2)`,
				*patch.Username, id,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check username: %w", err)
			}
			if exists {
				return model.NewUsernameConflictError()
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET username = $2 WHERE user_id = $1`, id, *patch.Username,
			); err != nil {
				return fmt.Errorf("failed to update username: %w", err)
			}
			row.username = sql.NullString{String: string(*patch.Username), Valid: true}
		}

		if patch.Password != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET password = $2 WHERE user_id = $1`, id, []byte(patch.Password),
			); err != nil {
				return fmt.Errorf("failed to update password: %w", err)
			}
			row.password = patch.Password
		}

		if patch.DisplayName != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET display_name = $2 WHERE user_id = $1`, id, *patch.DisplayName,
			); err != nil {
				return fmt.Errorf("failed to update display name: %w", err)
			}
			raw, err := encodeValue(*patch.DisplayName)
			if err != nil {
				return err
			}
			outcome, err := (pgArchiveQueries{q: tx}).set(ctx, fieldUserDisplayName, string(id), now, raw)
			if err != nil {
				return err
			}
			if outcome == temporal.Stale {
				return errStaleDisplayName
			}
			row.displayName = *patch.DisplayName
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	user, err := s.complete(row, model.UserFieldsComplete)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// HardDeleteUser はユーザーを削除する。
// セッション、メールアドレス確認、リンクはCASCADE削除される。
func (s *PostgresUserStore) HardDeleteUser(ctx context.Context, id model.UserID) error {
	if _, err := uuid.Parse(string(id)); err != nil {
		return model.NewUserNotFoundError()
	}
	err := database.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return model.NewUserNotFoundError()
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM archive_rows WHERE field = $1 AND subject = $2`,
			fieldUserDisplayName, string(id),
		)
		if err != nil {
			return fmt.Errorf("failed to delete display name history: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to hard delete user: %w", err)
	}
	return nil
}

// CreateSession はセッションを作成する。
func (s *PostgresUserStore) CreateSession(ctx context.Context, user model.UserIDRef) (*model.Session, error) {
	now := s.clock.Now()
	session := &model.Session{
		ID:         model.SessionID(s.uuid.Next().String()),
		User:       user,
		CreatedAt:  now,
		AccessedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, ctime, atime) VALUES ($1, $2, $3, $4)`,
		session.ID, user.ID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetAndTouchSession は atime を更新してセッションを返す。見つからない場合はnilを返す。
func (s *PostgresUserStore) GetAndTouchSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	if _, err := uuid.Parse(string(id)); err != nil {
		return nil, nil
	}
	session := &model.Session{ID: id}
	err := s.db.QueryRowContext(ctx,
		`UPDATE sessions SET atime = GREATEST(atime, $2)
		 WHERE session_id = $1
		 RETURNING user_id, ctime, atime`,
		id, s.clock.Now(),
	).Scan(&session.User.ID, &session.CreatedAt, &session.AccessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.AccessedAt = session.AccessedAt.UTC()
	return session, nil
}

// CreateValidatedEmailVerification は確認済みのメールアドレス確認を記録する。
func (s *PostgresUserStore) CreateValidatedEmailVerification(ctx context.Context, user model.UserIDRef, email model.EmailAddress, ctime time.Time) (*model.EmailVerification, error) {
	v := &model.EmailVerification{
		User:        user,
		Email:       email,
		CreatedAt:   ctime,
		ValidatedAt: s.clock.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_verifications (user_id, email_hash, ctime, validation_time)
		 VALUES ($1, $2, $3, $4)`,
		user.ID, s.crypto.Hash(email), v.CreatedAt, v.ValidatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create email verification: %w", err)
	}
	return v, nil
}

// compile-time interface check
var (
	_ UserStore = (*PostgresUserStore)(nil)
	_ AuthStore = (*PostgresUserStore)(nil)
)
