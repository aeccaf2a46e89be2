package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/temporal"
	"github.com/eternaltwin/etwin/internal/uuidgen"
)

type memUser struct {
	id       model.UserID
	ctime    time.Time
	username *model.Username
	email    *model.EmailAddress
	password model.PasswordHash
	isAdmin  bool
}

// MemUserStore はメモリ上のユーザーストア。AuthStore も実装する。
type MemUserStore struct {
	clock clock.Clock
	uuid  uuidgen.Generator

	mu            sync.RWMutex
	users         map[model.UserID]*memUser
	byUsername    map[model.Username]model.UserID
	byEmail       map[model.EmailAddress]model.UserID
	displayNames  *temporal.Archive[model.UserID, model.UserDisplayName]
	sessions      map[model.SessionID]model.Session
	verifications []model.EmailVerification
}

// NewMemUserStore はMemUserStoreを生成する。
func NewMemUserStore(clk clock.Clock, uuid uuidgen.Generator) *MemUserStore {
	return &MemUserStore{
		clock:        clk,
		uuid:         uuid,
		users:        make(map[model.UserID]*memUser),
		byUsername:   make(map[model.Username]model.UserID),
		byEmail:      make(map[model.EmailAddress]model.UserID),
		displayNames: temporal.NewArchive[model.UserID, model.UserDisplayName](nil),
		sessions:     make(map[model.SessionID]model.Session),
	}
}

// CreateUser はユーザーを作成する。最初のユーザーのみ管理者になる。
func (s *MemUserStore) CreateUser(ctx context.Context, opts model.CreateUserOptions) (*model.CompleteUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Username != nil {
		if _, ok := s.byUsername[*opts.Username]; ok {
			return nil, model.NewUsernameConflictError()
		}
	}
	if opts.Email != nil {
		if _, ok := s.byEmail[*opts.Email]; ok {
			return nil, model.NewEmailConflictError()
		}
	}

	now := s.clock.Now()
	u := &memUser{
		id:       model.NewUserID(s.uuid.Next()),
		ctime:    now,
		username: opts.Username,
		email:    opts.Email,
		password: slices.Clone(opts.Password),
		isAdmin:  len(s.users) == 0,
	}
	s.users[u.id] = u
	if u.username != nil {
		s.byUsername[*u.username] = u.id
	}
	if u.email != nil {
		s.byEmail[*u.email] = u.id
	}
	s.displayNames.Touch(u.id, now, opts.DisplayName)

	return s.complete(u, opts.DisplayName, model.UserFieldsComplete), nil
}

// GetUser はユーザーを返す。Time より後に作成されたユーザーは見つからない扱いになる。
func (s *MemUserStore) GetUser(ctx context.Context, opts model.GetUserOptions) (*model.CompleteUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.resolve(opts.Ref)
	if u == nil {
		return nil, nil
	}
	row, ok := s.displayNames.At(u.id, opts.Time)
	if !ok {
		return nil, nil
	}
	return s.complete(u, row.Value, opts.Fields), nil
}

// GetShortUser はユーザーの最小限の情報を返す。
func (s *MemUserStore) GetShortUser(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error) {
	opts.Fields = model.UserFieldsShort
	user, err := s.GetUser(ctx, opts)
	if err != nil || user == nil {
		return nil, err
	}
	short := user.Short()
	return &short, nil
}

// GetUserWithPassword はユーザーとパスワードハッシュを返す。
func (s *MemUserStore) GetUserWithPassword(ctx context.Context, ref model.UserRef) (*model.CompleteUser, model.PasswordHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.resolve(ref)
	if u == nil {
		return nil, nil, nil
	}
	row, _ := s.displayNames.At(u.id, nil)
	return s.complete(u, row.Value, model.UserFieldsComplete), slices.Clone(u.password), nil
}

// errStaleDisplayName は表示名の最後の記録より前の時刻で更新しようとした場合のエラー。
var errStaleDisplayName = model.NewKindError(model.KindConflict, "StaleDisplayName", nil)

// UpdateUser はnilでないフィールドを更新する。
func (s *MemUserStore) UpdateUser(ctx context.Context, id model.UserID, patch model.UpdateUserPatch) (*model.CompleteUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, model.NewUserNotFoundError()
	}
	if patch.Username != nil {
		if owner, ok := s.byUsername[*patch.Username]; ok && owner != id {
			return nil, model.NewUsernameConflictError()
		}
	}
	// 表示名を先に記録し、拒否された場合は他のフィールドも変更しない
	if patch.DisplayName != nil {
		if s.displayNames.Set(id, s.clock.Now(), *patch.DisplayName) == temporal.Stale {
			return nil, errStaleDisplayName
		}
	}
	if patch.Username != nil {
		if u.username != nil {
			delete(s.byUsername, *u.username)
		}
		username := *patch.Username
		u.username = &username
		s.byUsername[username] = id
	}
	if patch.Password != nil {
		u.password = slices.Clone(patch.Password)
	}
	row, _ := s.displayNames.At(id, nil)
	return s.complete(u, row.Value, model.UserFieldsComplete), nil
}

// HardDeleteUser はユーザーとそのセッションを削除する。
func (s *MemUserStore) HardDeleteUser(ctx context.Context, id model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.NewUserNotFoundError()
	}
	if u.username != nil {
		delete(s.byUsername, *u.username)
	}
	if u.email != nil {
		delete(s.byEmail, *u.email)
	}
	delete(s.users, id)
	for sid, session := range s.sessions {
		if session.User.ID == id {
			delete(s.sessions, sid)
		}
	}
	return nil
}

// CreateSession はセッションを作成する。
func (s *MemUserStore) CreateSession(ctx context.Context, user model.UserIDRef) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return nil, model.NewUserNotFoundError()
	}
	now := s.clock.Now()
	session := model.Session{
		ID:         model.SessionID(s.uuid.Next().String()),
		User:       user,
		CreatedAt:  now,
		AccessedAt: now,
	}
	s.sessions[session.ID] = session
	return &session, nil
}

// GetAndTouchSession は atime を更新してセッションを返す。
func (s *MemUserStore) GetAndTouchSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	session.AccessedAt = s.clock.Now()
	s.sessions[id] = session
	return &session, nil
}

// CreateValidatedEmailVerification は確認済みのメールアドレス確認を記録する。
func (s *MemUserStore) CreateValidatedEmailVerification(ctx context.Context, user model.UserIDRef, email model.EmailAddress, ctime time.Time) (*model.EmailVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return nil, model.NewUserNotFoundError()
	}
	v := model.EmailVerification{
		User:        user,
		Email:       email,
		CreatedAt:   ctime,
		ValidatedAt: s.clock.Now(),
	}
	s.verifications = append(s.verifications, v)
	return &v, nil
}

func (s *MemUserStore) resolve(ref model.UserRef) *memUser {
	switch {
	case ref.ID != nil:
		return s.users[*ref.ID]
	case ref.Username != nil:
		if id, ok := s.byUsername[*ref.Username]; ok {
			return s.users[id]
		}
	case ref.Email != nil:
		if id, ok := s.byEmail[*ref.Email]; ok {
			return s.users[id]
		}
	}
	return nil
}

func (s *MemUserStore) complete(u *memUser, displayName model.UserDisplayName, fields model.UserFields) *model.CompleteUser {
	user := &model.CompleteUser{
		User: model.User{
			ID:          u.id,
			DisplayName: displayName,
		},
	}
	if fields == model.UserFieldsShort {
		return user
	}
	user.CreatedAt = u.ctime
	user.IsAdministrator = u.isAdmin
	if fields == model.UserFieldsComplete {
		user.Username = u.username
		user.EmailAddress = u.email
		user.HasPassword = u.password != nil
	}
	return user
}

// compile-time interface check
var (
	_ UserStore = (*MemUserStore)(nil)
	_ AuthStore = (*MemUserStore)(nil)
)
