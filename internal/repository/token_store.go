package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

// remote_sessions.game の値。
const (
	sessionGameDinoparc   = "dinoparc"
	sessionGameHammerfest = "hammerfest"
)

// remoteSession はゲームを問わないセッションキーの行。
type remoteSession struct {
	game   string
	server string
	key    string
	user   string
	ctime  time.Time
	atime  time.Time
}

func (r remoteSession) dinoparc() model.StoredDinoparcSession {
	return model.StoredDinoparcSession{
		Key:        model.DinoparcSessionKey(r.key),
		User:       model.DinoparcUserIDRef{Server: model.DinoparcServer(r.server), ID: model.DinoparcUserID(r.user)},
		CreatedAt:  r.ctime,
		AccessedAt: r.atime,
	}
}

func (r remoteSession) hammerfest() model.StoredHammerfestSession {
	return model.StoredHammerfestSession{
		Key:        model.HammerfestSessionKey(r.key),
		User:       model.HammerfestUserIDRef{Server: model.HammerfestServer(r.server), ID: model.HammerfestUserID(r.user)},
		CreatedAt:  r.ctime,
		AccessedAt: r.atime,
	}
}

// sessionTable はセッションキーの保存先。TouchDinoparc と TouchHammerfest が共有する。
type sessionTable interface {
	touchSession(ctx context.Context, game, server, user, key string, now time.Time) (remoteSession, error)
	revokeSession(ctx context.Context, game, server, key string) error
	getSession(ctx context.Context, game, server, user string) (*remoteSession, error)
	listSessions(ctx context.Context, game string) ([]remoteSession, error)
}

// tokenTable はTwinoidのトークンの保存先。
type tokenTable interface {
	touchTwinoidOAuth(ctx context.Context, opts model.TouchTwinoidOAuthOptions, now time.Time) error
	revokeTwinoidAccessToken(ctx context.Context, key string) error
	revokeTwinoidRefreshToken(ctx context.Context, key string) error
	getTwinoidOAuth(ctx context.Context, user model.TwinoidUserID, now time.Time) (*model.TwinoidOAuth, error)
}

// tokenStore は TokenStore の各ゲーム向けの操作を保存先に振り分ける。
type tokenStore struct {
	sessions sessionTable
	tokens   tokenTable
	now      func() time.Time
}

func (s *tokenStore) TouchTwinoidOAuth(ctx context.Context, opts model.TouchTwinoidOAuthOptions) error {
	return s.tokens.touchTwinoidOAuth(ctx, opts, s.now())
}

func (s *tokenStore) RevokeTwinoidAccessToken(ctx context.Context, key string) error {
	return s.tokens.revokeTwinoidAccessToken(ctx, key)
}

func (s *tokenStore) RevokeTwinoidRefreshToken(ctx context.Context, key string) error {
	return s.tokens.revokeTwinoidRefreshToken(ctx, key)
}

// GetTwinoidOAuth は有効なトークンを返す。期限切れのアクセストークンは返さない。
func (s *tokenStore) GetTwinoidOAuth(ctx context.Context, user model.TwinoidUserIDRef) (*model.TwinoidOAuth, error) {
	return s.tokens.getTwinoidOAuth(ctx, user.ID, s.now())
}

// TouchDinoparc はセッションキーを記録する。
func (s *tokenStore) TouchDinoparc(ctx context.Context, user model.DinoparcUserIDRef, key model.DinoparcSessionKey) (*model.StoredDinoparcSession, error) {
	row, err := s.sessions.touchSession(ctx, sessionGameDinoparc, string(user.Server), string(user.ID), string(key), s.now())
	if err != nil {
		return nil, err
	}
	stored := row.dinoparc()
	return &stored, nil
}

func (s *tokenStore) RevokeDinoparc(ctx context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) error {
	return s.sessions.revokeSession(ctx, sessionGameDinoparc, string(server), string(key))
}

// GetDinoparc はユーザーのセッションキーを返す。ない場合はnilを返す。
func (s *tokenStore) GetDinoparc(ctx context.Context, user model.DinoparcUserIDRef) (*model.StoredDinoparcSession, error) {
	row, err := s.sessions.getSession(ctx, sessionGameDinoparc, string(user.Server), string(user.ID))
	if err != nil || row == nil {
		return nil, err
	}
	stored := row.dinoparc()
	return &stored, nil
}

func (s *tokenStore) ListDinoparc(ctx context.Context) ([]model.StoredDinoparcSession, error) {
	rows, err := s.sessions.listSessions(ctx, sessionGameDinoparc)
	if err != nil {
		return nil, err
	}
	out := make([]model.StoredDinoparcSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.dinoparc())
	}
	return out, nil
}

// TouchHammerfest はセッションキーを記録する。
func (s *tokenStore) TouchHammerfest(ctx context.Context, user model.HammerfestUserIDRef, key model.HammerfestSessionKey) (*model.StoredHammerfestSession, error) {
	row, err := s.sessions.touchSession(ctx, sessionGameHammerfest, string(user.Server), string(user.ID), string(key), s.now())
	if err != nil {
		return nil, err
	}
	stored := row.hammerfest()
	return &stored, nil
}

func (s *tokenStore) RevokeHammerfest(ctx context.Context, server model.HammerfestServer, key model.HammerfestSessionKey) error {
	return s.sessions.revokeSession(ctx, sessionGameHammerfest, string(server), string(key))
}

// GetHammerfest はユーザーのセッションキーを返す。ない場合はnilを返す。
func (s *tokenStore) GetHammerfest(ctx context.Context, user model.HammerfestUserIDRef) (*model.StoredHammerfestSession, error) {
	row, err := s.sessions.getSession(ctx, sessionGameHammerfest, string(user.Server), string(user.ID))
	if err != nil || row == nil {
		return nil, err
	}
	stored := row.hammerfest()
	return &stored, nil
}

func (s *tokenStore) ListHammerfest(ctx context.Context) ([]model.StoredHammerfestSession, error) {
	rows, err := s.sessions.listSessions(ctx, sessionGameHammerfest)
	if err != nil {
		return nil, err
	}
	out := make([]model.StoredHammerfestSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.hammerfest())
	}
	return out, nil
}

type sessionKey struct {
	game   string
	server string
	key    string
}

// memTokens はメモリ上のセッションキーとトークン。
type memTokens struct {
	mu       sync.RWMutex
	sessions map[sessionKey]remoteSession
	access   map[string]model.TwinoidAccessToken
	refresh  map[string]model.TwinoidRefreshToken
}

func (m *memTokens) touchSession(_ context.Context, game, server, user, key string, now time.Time) (remoteSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := sessionKey{game, server, key}
	if row, ok := m.sessions[k]; ok && row.user == user {
		if now.After(row.atime) {
			row.atime = now
		}
		m.sessions[k] = row
		return row, nil
	}
	delete(m.sessions, k)
	for other, row := range m.sessions {
		if row.game == game && row.server == server && row.user == user {
			delete(m.sessions, other)
		}
	}
	row := remoteSession{game: game, server: server, key: key, user: user, ctime: now, atime: now}
	m.sessions[k] = row
	return row, nil
}

func (m *memTokens) revokeSession(_ context.Context, game, server, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey{game, server, key})
	return nil
}

func (m *memTokens) getSession(_ context.Context, game, server, user string) (*remoteSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, row := range m.sessions {
		if row.game == game && row.server == server && row.user == user {
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memTokens) listSessions(_ context.Context, game string) ([]remoteSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []remoteSession
	for _, row := range m.sessions {
		if row.game == game {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].atime.Equal(rows[j].atime) {
			return rows[i].atime.Before(rows[j].atime)
		}
		return rows[i].key < rows[j].key
	})
	return rows, nil
}

func (m *memTokens) touchTwinoidOAuth(_ context.Context, opts model.TouchTwinoidOAuthOptions, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.access[opts.AccessToken]; ok && old.User == opts.User {
		old.AccessedAt = now
		old.ExpiresAt = opts.ExpirationTime
		m.access[opts.AccessToken] = old
	} else {
		for k, t := range m.access {
			if t.User == opts.User {
				delete(m.access, k)
			}
		}
		m.access[opts.AccessToken] = model.TwinoidAccessToken{
			Key:        opts.AccessToken,
			CreatedAt:  now,
			AccessedAt: now,
			ExpiresAt:  opts.ExpirationTime,
			User:       opts.User,
		}
	}

	if opts.RefreshToken == "" {
		return nil
	}
	if old, ok := m.refresh[opts.RefreshToken]; ok && old.User == opts.User {
		old.AccessedAt = now
		m.refresh[opts.RefreshToken] = old
		return nil
	}
	for k, t := range m.refresh {
		if t.User == opts.User {
			delete(m.refresh, k)
		}
	}
	m.refresh[opts.RefreshToken] = model.TwinoidRefreshToken{
		Key:        opts.RefreshToken,
		CreatedAt:  now,
		AccessedAt: now,
		User:       opts.User,
	}
	return nil
}

func (m *memTokens) revokeTwinoidAccessToken(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.access, key)
	return nil
}

func (m *memTokens) revokeTwinoidRefreshToken(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, key)
	return nil
}

func (m *memTokens) getTwinoidOAuth(_ context.Context, user model.TwinoidUserID, now time.Time) (*model.TwinoidOAuth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := &model.TwinoidOAuth{}
	for _, t := range m.access {
		if t.User == user && now.Before(t.ExpiresAt) {
			t := t
			out.AccessToken = &t
		}
	}
	for _, t := range m.refresh {
		if t.User == user {
			t := t
			out.RefreshToken = &t
		}
	}
	return out, nil
}

// MemTokenStore はメモリ上のトークンストア。
type MemTokenStore struct {
	tokenStore
}

// NewMemTokenStore はMemTokenStoreを生成する。
func NewMemTokenStore(clk clock.Clock) *MemTokenStore {
	m := &memTokens{
		sessions: make(map[sessionKey]remoteSession),
		access:   make(map[string]model.TwinoidAccessToken),
		refresh:  make(map[string]model.TwinoidRefreshToken),
	}
	return &MemTokenStore{tokenStore{sessions: m, tokens: m, now: clk.Now}}
}

// compile-time interface check
var _ TokenStore = (*MemTokenStore)(nil)
