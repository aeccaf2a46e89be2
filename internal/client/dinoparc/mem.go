package dinoparc

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

// MemClient はメモリ上でDinoparcのサーバーを模倣するクライアント。
// テストとインメモリ構成で使う。各ユーザーは同時に1つのセッションのみを持つ。
type MemClient struct {
	mu      sync.Mutex
	clock   clock.Clock
	servers map[model.DinoparcServer]*memServer
}

type memServer struct {
	users         map[model.DinoparcUserID]*memUser
	sessions      map[model.DinoparcSessionKey]*model.DinoparcSession
	sessionByUser map[model.DinoparcUserID]model.DinoparcSessionKey
	dinoz         map[model.DinoparcDinozID]model.DinoparcDinoz
}

type memUser struct {
	user       model.ShortDinoparcUser
	password   model.DinoparcPassword
	coins      uint32
	bills      uint32
	dinoz      []model.DinoparcDinozID
	inventory  map[model.DinoparcItemID]uint32
	collection model.DinoparcCollection
}

// NewMemClient はMemClientを生成する。
func NewMemClient(clk clock.Clock) *MemClient {
	servers := map[model.DinoparcServer]*memServer{}
	for _, server := range model.DinoparcServers() {
		servers[server] = &memServer{
			users:         map[model.DinoparcUserID]*memUser{},
			sessions:      map[model.DinoparcSessionKey]*model.DinoparcSession{},
			sessionByUser: map[model.DinoparcUserID]model.DinoparcSessionKey{},
			dinoz:         map[model.DinoparcDinozID]model.DinoparcDinoz{},
		}
	}
	return &MemClient{clock: clk, servers: servers}
}

// CreateUser はユーザーを登録する。
func (c *MemClient) CreateUser(server model.DinoparcServer, id model.DinoparcUserID, username model.DinoparcUsername, password model.DinoparcPassword) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[server].users[id] = &memUser{
		user:       model.ShortDinoparcUser{Server: server, ID: id, Username: username},
		password:   password,
		inventory:  map[model.DinoparcItemID]uint32{},
		collection: model.DinoparcCollection{Rewards: []model.DinoparcRewardID{}, EpicRewards: []model.DinoparcEpicRewardKey{}},
	}
}

// SetCoins は所持金と紙幣の枚数を設定する。
func (c *MemClient) SetCoins(ref model.DinoparcUserIDRef, coins, bills uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.user(ref); u != nil {
		u.coins = coins
		u.bills = bills
	}
}

// SetInventory は所持品を設定する。
func (c *MemClient) SetInventory(ref model.DinoparcUserIDRef, inventory map[model.DinoparcItemID]uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.user(ref); u != nil {
		u.inventory = inventory
	}
}

// SetCollection はコレクションを設定する。
func (c *MemClient) SetCollection(ref model.DinoparcUserIDRef, collection model.DinoparcCollection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.user(ref); u != nil {
		u.collection = collection
	}
}

// AddDinoz はディノズを登録し、所有者のサイドバーに加える。
func (c *MemClient) AddDinoz(owner model.DinoparcUserIDRef, dinoz model.DinoparcDinoz) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.user(owner)
	if u == nil {
		return
	}
	srv := c.servers[owner.Server]
	if _, ok := srv.dinoz[dinoz.ID]; !ok {
		u.dinoz = append(u.dinoz, dinoz.ID)
	}
	srv.dinoz[dinoz.ID] = dinoz
}

func (c *MemClient) user(ref model.DinoparcUserIDRef) *memUser {
	srv, ok := c.servers[ref.Server]
	if !ok {
		return nil
	}
	return srv.users[ref.ID]
}

// CreateSession はユーザー名とパスワードを照合し、セッションを作り直す。
// 既存のセッションは無効になる。
func (c *MemClient) CreateSession(_ context.Context, creds model.DinoparcCredentials) (*model.DinoparcSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[creds.Server]
	if !ok {
		return nil, model.NewInvalidRequestError("unknown dinoparc server")
	}
	var found *memUser
	for _, u := range srv.users {
		if u.user.Username == creds.Username {
			found = u
			break
		}
	}
	if found == nil || found.password != creds.Password {
		return nil, model.NewInvalidCredentialsError()
	}

	if old, ok := srv.sessionByUser[found.user.ID]; ok {
		delete(srv.sessions, old)
	}
	now := c.clock.Now()
	session := &model.DinoparcSession{
		CreatedAt:  now,
		AccessedAt: now,
		Key:        model.DinoparcSessionKey(strings.ReplaceAll(uuid.NewString(), "-", "")),
		User:       found.user,
	}
	srv.sessions[session.Key] = session
	srv.sessionByUser[found.user.ID] = session.Key
	copied := *session
	return &copied, nil
}

// TestSession はセッションが有効なら最終アクセス時刻を更新して返す。
func (c *MemClient) TestSession(_ context.Context, server model.DinoparcServer, key model.DinoparcSessionKey) (*model.DinoparcSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	srv, ok := c.servers[server]
	if !ok {
		return nil, nil
	}
	session, ok := srv.sessions[key]
	if !ok {
		return nil, nil
	}
	session.AccessedAt = c.clock.Now()
	copied := *session
	return &copied, nil
}

// GetProfileByID は登録されたユーザーの公開プロフィールを返す。
func (c *MemClient) GetProfileByID(_ context.Context, session *model.DinoparcSession, ref model.DinoparcUserIDRef) (*model.DinoparcProfileResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sessionUser *model.DinoparcSessionUser
	if session != nil {
		su, err := c.sessionUser(session)
		if err != nil {
			return nil, err
		}
		sessionUser = &su
	}
	u := c.user(ref)
	if u == nil {
		return nil, nil
	}
	return &model.DinoparcProfileResponse{
		SessionUser: sessionUser,
		Profile: model.DinoparcProfile{
			User:  u.user,
			Dinoz: append([]model.DinoparcDinozID{}, u.dinoz...),
		},
	}, nil
}

func (c *MemClient) GetInventory(_ context.Context, session *model.DinoparcSession) (*model.DinoparcInventoryResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	u := c.user(session.User.Ref())
	inventory := make(map[model.DinoparcItemID]uint32, len(u.inventory))
	for k, v := range u.inventory {
		inventory[k] = v
	}
	return &model.DinoparcInventoryResponse{SessionUser: su, Inventory: inventory}, nil
}

func (c *MemClient) GetCollection(_ context.Context, session *model.DinoparcSession) (*model.DinoparcCollectionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	u := c.user(session.User.Ref())
	return &model.DinoparcCollectionResponse{SessionUser: su, Collection: u.collection}, nil
}

// GetDinoz は登録されたディノズを返す。存在しないディノズは NotFound になる。
func (c *MemClient) GetDinoz(_ context.Context, session *model.DinoparcSession, id model.DinoparcDinozID) (*model.DinoparcDinozResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	dinoz, ok := c.servers[session.User.Server].dinoz[id]
	if !ok {
		return nil, model.NewRemoteUserNotFoundError(model.ErrCodeDinoparcDinozNotFound, string(session.User.Server), string(id))
	}
	return &model.DinoparcDinozResponse{SessionUser: su, Dinoz: dinoz}, nil
}

func (c *MemClient) GetExchangeWith(_ context.Context, session *model.DinoparcSession, other model.DinoparcUserID) (*model.DinoparcExchangeWithResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	su, err := c.sessionUser(session)
	if err != nil {
		return nil, err
	}
	if other == session.User.ID {
		return nil, errSelfExchange
	}
	srv := c.servers[session.User.Server]
	otherUser, ok := srv.users[other]
	if !ok {
		return nil, model.NewRemoteUserNotFoundError(model.ErrCodeDinoparcUserNotFound, string(session.User.Server), string(other))
	}
	self := srv.users[session.User.ID]
	return &model.DinoparcExchangeWithResponse{
		SessionUser: su,
		OwnBills:    self.bills,
		OwnDinoz:    c.dinozWithLevel(srv, self),
		OtherUser:   otherUser.user,
		OtherDinoz:  c.dinozWithLevel(srv, otherUser),
	}, nil
}

// sessionUser はセッションを検証し、サイドバー相当の情報を組み立てる。
func (c *MemClient) sessionUser(session *model.DinoparcSession) (model.DinoparcSessionUser, error) {
	if session == nil {
		return model.DinoparcSessionUser{}, model.NewInvalidRequestError("missing dinoparc session")
	}
	srv, ok := c.servers[session.User.Server]
	if !ok {
		return model.DinoparcSessionUser{}, errSessionExpired
	}
	stored, ok := srv.sessions[session.Key]
	if !ok {
		return model.DinoparcSessionUser{}, errSessionExpired
	}
	stored.AccessedAt = c.clock.Now()
	u := srv.users[stored.User.ID]

	dinoz := make([]model.ShortDinoparcDinozWithLocation, 0, len(u.dinoz))
	for _, id := range u.dinoz {
		d := srv.dinoz[id]
		short := model.ShortDinoparcDinozWithLocation{Server: d.Server, ID: d.ID, Name: d.Name}
		if d.Named != nil {
			loc := d.Named.Location
			short.Location = &loc
		}
		dinoz = append(dinoz, short)
	}
	return model.DinoparcSessionUser{User: u.user, Coins: u.coins, Dinoz: dinoz}, nil
}

func (c *MemClient) dinozWithLevel(srv *memServer, u *memUser) []model.ShortDinoparcDinozWithLevel {
	res := make([]model.ShortDinoparcDinozWithLevel, 0, len(u.dinoz))
	for _, id := range u.dinoz {
		d := srv.dinoz[id]
		res = append(res, model.ShortDinoparcDinozWithLevel{Server: d.Server, ID: d.ID, Name: d.Name, Level: d.Level})
	}
	return res
}

var _ Client = (*MemClient)(nil)
