package twinoid

import (
	"context"
	"sync"

	"github.com/eternaltwin/etwin/internal/model"
)

// MemClient はトークンとユーザーの対応をメモリ上に持つクライアント。
type MemClient struct {
	mu     sync.Mutex
	users  map[model.TwinoidUserID]model.ShortTwinoidUser
	tokens map[string]model.TwinoidUserID
}

// NewMemClient はMemClientを生成する。
func NewMemClient() *MemClient {
	return &MemClient{
		users:  map[model.TwinoidUserID]model.ShortTwinoidUser{},
		tokens: map[string]model.TwinoidUserID{},
	}
}

// CreateUser はユーザーを登録する。
func (c *MemClient) CreateUser(id model.TwinoidUserID, name model.TwinoidUserDisplayName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[id] = model.ShortTwinoidUser{ID: id, DisplayName: name}
}

// IssueToken はユーザーのアクセストークンを登録する。
func (c *MemClient) IssueToken(token string, id model.TwinoidUserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token] = id
}

// RevokeToken はトークンを無効にする。
func (c *MemClient) RevokeToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, token)
}

func (c *MemClient) GetMe(ctx context.Context, token string) (*model.ShortTwinoidUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.tokens[token]
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}
	user := c.users[id]
	return &user, nil
}

func (c *MemClient) GetUser(ctx context.Context, token string, id model.TwinoidUserID) (*model.ShortTwinoidUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tokens[token]; !ok {
		return nil, model.NewInvalidCredentialsError()
	}
	user, ok := c.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

var _ Client = (*MemClient)(nil)
