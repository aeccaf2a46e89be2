package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

// MaxSidebarDinozCount はサイドバーに表示されるディノズの上限。
// サイドバーが上限まで埋まっている場合は一覧が切り詰められている可能性があるため、所持ディノズとして記録しない。
const MaxSidebarDinozCount = 100

const (
	fieldDinoparcUsername   = "dinoparc_user.username"
	fieldDinoparcCoins      = "dinoparc_user.coins"
	fieldDinoparcBills      = "dinoparc_user.bills"
	fieldDinoparcUserDinoz  = "dinoparc_user.dinoz"
	fieldDinoparcInventory  = "dinoparc_user.inventory"
	fieldDinoparcCollection = "dinoparc_user.collection"
	fieldDinozName          = "dinoparc_dinoz.name"
	fieldDinozOwner         = "dinoparc_dinoz.owner"
	fieldDinozLocation      = "dinoparc_dinoz.location"
	fieldDinozRace          = "dinoparc_dinoz.race"
	fieldDinozSkin          = "dinoparc_dinoz.skin"
	fieldDinozLife          = "dinoparc_dinoz.life"
	fieldDinozLevel         = "dinoparc_dinoz.level"
	fieldDinozExperience    = "dinoparc_dinoz.experience"
	fieldDinozDanger        = "dinoparc_dinoz.danger"
	fieldDinozInTournament  = "dinoparc_dinoz.in_tournament"
	fieldDinozElements      = "dinoparc_dinoz.elements"
	fieldDinozSkills        = "dinoparc_dinoz.skills"
)

var dinoparcUserFields = []string{
	fieldDinoparcUsername,
	fieldDinoparcCoins,
	fieldDinoparcBills,
	fieldDinoparcUserDinoz,
	fieldDinoparcInventory,
	fieldDinoparcCollection,
}

var dinoparcDinozFields = []string{
	fieldDinozName,
	fieldDinozOwner,
	fieldDinozLocation,
	fieldDinozRace,
	fieldDinozSkin,
	fieldDinozLife,
	fieldDinozLevel,
	fieldDinozExperience,
	fieldDinozDanger,
	fieldDinozInTournament,
	fieldDinozElements,
	fieldDinozSkills,
}

// dinoparcStore はメモリ実装とPostgreSQL実装で共有するDinoparcアーカイブの手順。
type dinoparcStore struct {
	archiveStore
}

// MemDinoparcStore はメモリ上のDinoparcアーカイブ。
type MemDinoparcStore struct {
	dinoparcStore
}

// NewMemDinoparcStore はMemDinoparcStoreを生成する。
func NewMemDinoparcStore(clk clock.Clock, opts ...StoreOption) *MemDinoparcStore {
	return &MemDinoparcStore{dinoparcStore{archiveStore{
		backend: newMemArchive(),
		now:     clk.Now,
		name:    "dinoparc",
		opts:    buildStoreOptions(opts),
	}}}
}

// PostgresDinoparcStore はPostgreSQLを使用したDinoparcアーカイブ。
type PostgresDinoparcStore struct {
	dinoparcStore
}

// NewPostgresDinoparcStore はPostgresDinoparcStoreを生成する。
func NewPostgresDinoparcStore(db *sql.DB, clk clock.Clock, opts ...StoreOption) *PostgresDinoparcStore {
	return &PostgresDinoparcStore{dinoparcStore{archiveStore{
		backend: newPgArchive(db),
		now:     clk.Now,
		name:    "dinoparc",
		opts:    buildStoreOptions(opts),
	}}}
}

func dinoparcUserSubject(ref model.DinoparcUserIDRef) string {
	return subjectOf(string(ref.Server), string(ref.ID))
}

func dinoparcDinozSubject(ref model.DinoparcDinozIDRef) string {
	return subjectOf(string(ref.Server), string(ref.ID))
}

// GetShortUser はユーザーの最小限の情報を返す。アーカイブにない場合はnilを返す。
func (s *dinoparcStore) GetShortUser(ctx context.Context, opts model.GetDinoparcUserOptions) (*model.ShortDinoparcUser, error) {
	user, err := s.GetUser(ctx, opts)
	if err != nil || user == nil {
		return nil, err
	}
	short := user.Short()
	return &short, nil
}

// GetUser はアーカイブされたユーザーを返す。
// Time がアーカイブ開始より前の場合はnilを返す。
func (s *dinoparcStore) GetUser(ctx context.Context, opts model.GetDinoparcUserOptions) (*model.ArchivedDinoparcUser, error) {
	var user *model.ArchivedDinoparcUser
	err := s.view(ctx, func(r archiveReader) error {
		var err error
		user, err = readDinoparcUser(ctx, r, opts.Ref(), opts.Time)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get dinoparc user: %w", err)
	}
	return user, nil
}

func readDinoparcUser(ctx context.Context, r archiveReader, ref model.DinoparcUserIDRef, t *time.Time) (*model.ArchivedDinoparcUser, error) {
	archivedAt, err := r.archivedAt(ctx, entityDinoparcUser, string(ref.Server), string(ref.ID))
	if err != nil || archivedAt == nil {
		return nil, err
	}
	if t != nil && t.Before(*archivedAt) {
		return nil, nil
	}

	subject := dinoparcUserSubject(ref)
	values, err := r.read(ctx, subject, t, dinoparcUserFields...)
	if err != nil {
		return nil, err
	}
	username, err := readUsername[model.DinoparcUsername](ctx, r, subject, values, fieldDinoparcUsername)
	if err != nil {
		return nil, err
	}

	user := &model.ArchivedDinoparcUser{
		Server:     ref.Server,
		ID:         ref.ID,
		ArchivedAt: *archivedAt,
		Username:   username,
	}
	if user.Coins, err = decodeLatest[uint32](values, fieldDinoparcCoins); err != nil {
		return nil, err
	}
	if user.Bills, err = decodeLatest[uint32](values, fieldDinoparcBills); err != nil {
		return nil, err
	}
	if user.Dinoz, err = decodeLatest[[]model.DinoparcDinozIDRef](values, fieldDinoparcUserDinoz); err != nil {
		return nil, err
	}
	if user.Inventory, err = decodeLatest[map[model.DinoparcItemID]uint32](values, fieldDinoparcInventory); err != nil {
		return nil, err
	}
	if user.Collection, err = decodeLatest[model.DinoparcCollection](values, fieldDinoparcCollection); err != nil {
		return nil, err
	}
	return user, nil
}

// readUsername は時点のユーザー名を返す。その時点の行が一意性のために閉じられている場合は最新の行を使う。
func readUsername[T ~string](ctx context.Context, r archiveReader, subject string, values map[string]archiveValue, field string) (T, error) {
	if _, ok := values[field]; !ok {
		latest, err := r.read(ctx, subject, nil, field)
		if err != nil {
			return "", err
		}
		values = latest
	}
	username, err := decodeLatest[T](values, field)
	if err != nil {
		return "", err
	}
	if username == nil {
		return "", fmt.Errorf("archived user %s has no username", subject)
	}
	return username.Value, nil
}

// GetDinoz はアーカイブされたディノズを返す。見つからない場合はnilを返す。
func (s *dinoparcStore) GetDinoz(ctx context.Context, opts model.GetDinoparcDinozOptions) (*model.ArchivedDinoparcDinoz, error) {
	ref := model.DinoparcDinozIDRef{Server: opts.Server, ID: opts.ID}
	var dinoz *model.ArchivedDinoparcDinoz
	err := s.view(ctx, func(r archiveReader) error {
		archivedAt, err := r.archivedAt(ctx, entityDinoparcDinoz, string(ref.Server), string(ref.ID))
		if err != nil || archivedAt == nil {
			return err
		}
		if opts.Time != nil && opts.Time.Before(*archivedAt) {
			return nil
		}
		values, err := r.read(ctx, dinoparcDinozSubject(ref), opts.Time, dinoparcDinozFields...)
		if err != nil {
			return err
		}
		dinoz, err = decodeDinoz(ref, *archivedAt, values)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get dinoparc dinoz: %w", err)
	}
	return dinoz, nil
}

func decodeDinoz(ref model.DinoparcDinozIDRef, archivedAt time.Time, values map[string]archiveValue) (*model.ArchivedDinoparcDinoz, error) {
	d := &model.ArchivedDinoparcDinoz{Server: ref.Server, ID: ref.ID, ArchivedAt: archivedAt}
	var err error
	if d.Name, err = decodeLatest[*model.DinoparcDinozName](values, fieldDinozName); err != nil {
		return nil, err
	}
	if d.Owner, err = decodeLatest[model.DinoparcUserIDRef](values, fieldDinozOwner); err != nil {
		return nil, err
	}
	if d.Location, err = decodeLatest[model.DinoparcLocationID](values, fieldDinozLocation); err != nil {
		return nil, err
	}
	if d.Race, err = decodeLatest[model.DinoparcDinozRace](values, fieldDinozRace); err != nil {
		return nil, err
	}
	if d.Skin, err = decodeLatest[model.DinoparcDinozSkin](values, fieldDinozSkin); err != nil {
		return nil, err
	}
	if d.Life, err = decodeLatest[model.IntPercentage](values, fieldDinozLife); err != nil {
		return nil, err
	}
	if d.Level, err = decodeLatest[uint16](values, fieldDinozLevel); err != nil {
		return nil, err
	}
	if d.Experience, err = decodeLatest[model.IntPercentage](values, fieldDinozExperience); err != nil {
		return nil, err
	}
	if d.Danger, err = decodeLatest[int16](values, fieldDinozDanger); err != nil {
		return nil, err
	}
	if d.InTournament, err = decodeLatest[bool](values, fieldDinozInTournament); err != nil {
		return nil, err
	}
	if d.Elements, err = decodeLatest[model.DinoparcDinozElements](values, fieldDinozElements); err != nil {
		return nil, err
	}
	if d.Skills, err = decodeLatest[map[model.DinoparcSkill]model.DinoparcSkillLevel](values, fieldDinozSkills); err != nil {
		return nil, err
	}
	return d, nil
}

// TouchShortUser はユーザー名を記録し、アーカイブされたユーザーを返す。
func (s *dinoparcStore) TouchShortUser(ctx context.Context, user model.ShortDinoparcUser) (*model.ArchivedDinoparcUser, error) {
	err := s.touch(ctx, func(t *toucher) {
		touchDinoparcUser(t, user)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch dinoparc user: %w", err)
	}
	return s.GetUser(ctx, model.GetDinoparcUserOptions{Server: user.Server, ID: user.ID})
}

// TouchProfile はプロフィールページを記録する。プロフィールのディノズ一覧は完全なため所持ディノズとして記録する。
func (s *dinoparcStore) TouchProfile(ctx context.Context, resp *model.DinoparcProfileResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		if resp.SessionUser != nil {
			touchDinoparcSessionUser(t, *resp.SessionUser)
		}
		p := resp.Profile
		touchDinoparcUser(t, p.User)
		refs := make([]model.DinoparcDinozIDRef, 0, len(p.Dinoz))
		for _, id := range p.Dinoz {
			ref := model.DinoparcDinozIDRef{Server: p.User.Server, ID: id}
			touchDinozOwner(t, ref, p.User.Ref())
			refs = append(refs, ref)
		}
		t.field(fieldDinoparcUserDinoz, dinoparcUserSubject(p.User.Ref()), refs)
	})
	if err != nil {
		return fmt.Errorf("failed to touch dinoparc profile: %w", err)
	}
	return nil
}

// TouchInventory は所持品ページを記録する。
func (s *dinoparcStore) TouchInventory(ctx context.Context, resp *model.DinoparcInventoryResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		touchDinoparcSessionUser(t, resp.SessionUser)
		inventory := resp.Inventory
		if inventory == nil {
			inventory = map[model.DinoparcItemID]uint32{}
		}
		t.field(fieldDinoparcInventory, dinoparcUserSubject(resp.SessionUser.User.Ref()), inventory)
	})
	if err != nil {
		return fmt.Errorf("failed to touch dinoparc inventory: %w", err)
	}
	return nil
}

// TouchCollection はコレクションページを記録する。
func (s *dinoparcStore) TouchCollection(ctx context.Context, resp *model.DinoparcCollectionResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		touchDinoparcSessionUser(t, resp.SessionUser)
		c := resp.Collection
		if c.Rewards == nil {
			c.Rewards = []model.DinoparcRewardID{}
		}
		if c.EpicRewards == nil {
			c.EpicRewards = []model.DinoparcEpicRewardKey{}
		}
		t.field(fieldDinoparcCollection, dinoparcUserSubject(resp.SessionUser.User.Ref()), c)
	})
	if err != nil {
		return fmt.Errorf("failed to touch dinoparc collection: %w", err)
	}
	return nil
}

// TouchDinoz はディノズページを記録する。ページを閲覧できるのは所有者のみ。
func (s *dinoparcStore) TouchDinoz(ctx context.Context, resp *model.DinoparcDinozResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		touchDinoparcSessionUser(t, resp.SessionUser)
		d := resp.Dinoz
		ref := d.Ref()
		subject := dinoparcDinozSubject(ref)
		touchDinozOwner(t, ref, resp.SessionUser.User.Ref())
		t.field(fieldDinozName, subject, d.Name)
		t.field(fieldDinozLevel, subject, d.Level)
		t.field(fieldDinozRace, subject, d.Race)
		t.field(fieldDinozSkin, subject, d.Skin)
		if n := d.Named; n != nil {
			skills := n.Skills
			if skills == nil {
				skills = map[model.DinoparcSkill]model.DinoparcSkillLevel{}
			}
			t.field(fieldDinozLocation, subject, n.Location)
			t.field(fieldDinozLife, subject, n.Life)
			t.field(fieldDinozExperience, subject, n.Experience)
			t.field(fieldDinozDanger, subject, n.Danger)
			t.field(fieldDinozInTournament, subject, n.InTournament)
			t.field(fieldDinozElements, subject, n.Elements)
			t.field(fieldDinozSkills, subject, skills)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to touch dinoparc dinoz: %w", err)
	}
	return nil
}

// TouchExchangeWith は交換ページを記録する。両者のディノズ一覧は完全なため所持ディノズとして記録する。
func (s *dinoparcStore) TouchExchangeWith(ctx context.Context, resp *model.DinoparcExchangeWithResponse) error {
	err := s.touch(ctx, func(t *toucher) {
		touchDinoparcSessionUser(t, resp.SessionUser)
		own := resp.SessionUser.User
		t.field(fieldDinoparcBills, dinoparcUserSubject(own.Ref()), resp.OwnBills)
		touchDinoparcUser(t, resp.OtherUser)
		touchDinozWithLevel(t, own.Ref(), resp.OwnDinoz)
		touchDinozWithLevel(t, resp.OtherUser.Ref(), resp.OtherDinoz)
	})
	if err != nil {
		return fmt.Errorf("failed to touch dinoparc exchange: %w", err)
	}
	return nil
}

func touchDinoparcUser(t *toucher, user model.ShortDinoparcUser) {
	t.entity(entityDinoparcUser, string(user.Server), string(user.ID))
	t.unique(fieldDinoparcUsername, string(user.Server), dinoparcUserSubject(user.Ref()), user.Username)
}

// touchDinoparcSessionUser はサイドバーの情報を記録する。
func touchDinoparcSessionUser(t *toucher, su model.DinoparcSessionUser) {
	touchDinoparcUser(t, su.User)
	owner := su.User.Ref()
	refs := make([]model.DinoparcDinozIDRef, 0, len(su.Dinoz))
	for _, d := range su.Dinoz {
		ref := d.Ref()
		subject := dinoparcDinozSubject(ref)
		touchDinozOwner(t, ref, owner)
		t.field(fieldDinozName, subject, d.Name)
		if d.Location != nil {
			t.field(fieldDinozLocation, subject, *d.Location)
		}
		refs = append(refs, ref)
	}
	userSubject := dinoparcUserSubject(owner)
	t.field(fieldDinoparcCoins, userSubject, su.Coins)
	if len(su.Dinoz) < MaxSidebarDinozCount {
		t.field(fieldDinoparcUserDinoz, userSubject, refs)
	}
}

func touchDinozOwner(t *toucher, ref model.DinoparcDinozIDRef, owner model.DinoparcUserIDRef) {
	t.entity(entityDinoparcDinoz, string(ref.Server), string(ref.ID))
	t.field(fieldDinozOwner, dinoparcDinozSubject(ref), owner)
}

func touchDinozWithLevel(t *toucher, owner model.DinoparcUserIDRef, dinoz []model.ShortDinoparcDinozWithLevel) {
	refs := make([]model.DinoparcDinozIDRef, 0, len(dinoz))
	for _, d := range dinoz {
		ref := d.Ref()
		subject := dinoparcDinozSubject(ref)
		touchDinozOwner(t, ref, owner)
		t.field(fieldDinozName, subject, d.Name)
		t.field(fieldDinozLevel, subject, d.Level)
		refs = append(refs, ref)
	}
	t.field(fieldDinoparcUserDinoz, dinoparcUserSubject(owner), refs)
}

// compile-time interface check
var (
	_ DinoparcStore = (*MemDinoparcStore)(nil)
	_ DinoparcStore = (*PostgresDinoparcStore)(nil)
)
