package repository

import (
	"context"
	"sync"
	"time"

	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/model"
)

// linkRow は remote_links の1行。
type linkRow struct {
	remote     model.RemoteUserRef
	user       model.UserID
	linkedAt   time.Time
	linkedBy   model.UserID
	unlinkedAt *time.Time
	unlinkedBy *model.UserID
}

func (l linkRow) active() bool {
	return l.unlinkedAt == nil
}

// activeAt は t 時点で有効だったかを返す。t が nil の場合は現在有効かどうか。
func (l linkRow) activeAt(t *time.Time) bool {
	if t == nil {
		return l.active()
	}
	if t.Before(l.linkedAt) {
		return false
	}
	return l.unlinkedAt == nil || t.Before(*l.unlinkedAt)
}

// closedBy は t 時点で既に解除されていたかを返す。t が nil の場合は解除済みかどうか。
func (l linkRow) closedBy(t *time.Time) bool {
	if l.unlinkedAt == nil {
		return false
	}
	return t == nil || !l.unlinkedAt.After(*t)
}

func (l linkRow) raw() *model.RawLink {
	return &model.RawLink{
		Link:   model.RawUserDot{Time: l.linkedAt, User: model.UserIDRef{ID: l.linkedBy}},
		Etwin:  model.UserIDRef{ID: l.user},
		Remote: l.remote,
	}
}

func (l linkRow) old() model.OldRawLink {
	return model.OldRawLink{
		Link:   model.RawUserDot{Time: l.linkedAt, User: model.UserIDRef{ID: l.linkedBy}},
		Unlink: model.RawUserDot{Time: *l.unlinkedAt, User: model.UserIDRef{ID: *l.unlinkedBy}},
		Etwin:  model.UserIDRef{ID: l.user},
		Remote: l.remote,
	}
}

// versionedLink は同じリモートアカウントまたは同じサーバーの行から t 時点の履歴を組み立てる。
func versionedLink(rows []linkRow, t *time.Time) model.VersionedRawLink {
	v := model.VersionedRawLink{Old: []model.OldRawLink{}}
	for _, row := range rows {
		switch {
		case row.activeAt(t):
			v.Current = row.raw()
		case row.closedBy(t):
			v.Old = append(v.Old, row.old())
		}
	}
	v.SortOld()
	return v
}

// versionedLinks はetwinユーザーの全リンクをゲームとサーバーごとにまとめる。
func versionedLinks(rows []linkRow, t *time.Time) *model.VersionedRawLinks {
	dinoparc := make(map[model.DinoparcServer][]linkRow)
	hammerfest := make(map[model.HammerfestServer][]linkRow)
	var twinoid []linkRow
	for _, row := range rows {
		switch row.remote.Game {
		case model.RemoteGameDinoparc:
			s := model.DinoparcServer(row.remote.Server)
			dinoparc[s] = append(dinoparc[s], row)
		case model.RemoteGameHammerfest:
			s := model.HammerfestServer(row.remote.Server)
			hammerfest[s] = append(hammerfest[s], row)
		case model.RemoteGameTwinoid:
			twinoid = append(twinoid, row)
		}
	}

	out := &model.VersionedRawLinks{
		Dinoparc:   make(map[model.DinoparcServer]model.VersionedRawLink, len(dinoparc)),
		Hammerfest: make(map[model.HammerfestServer]model.VersionedRawLink, len(hammerfest)),
		Twinoid:    versionedLink(twinoid, t),
	}
	for s, rows := range dinoparc {
		out.Dinoparc[s] = versionedLink(rows, t)
	}
	for s, rows := range hammerfest {
		out.Hammerfest[s] = versionedLink(rows, t)
	}
	return out
}

// checkTouchLink は既存の有効なリンクと比べて、作成が必要かを返す。
// byRemote はリモートアカウントの有効なリンク、byEtwin は同じユーザーの同じサーバーへの有効なリンク。
func checkTouchLink(opts model.TouchLinkOptions, byRemote, byEtwin *linkRow) (bool, error) {
	if byRemote != nil && byRemote.user == opts.Etwin.ID {
		return false, nil
	}
	var remoteLink, etwinLink *model.RawLink
	if byRemote != nil {
		remoteLink = byRemote.raw()
	}
	if byEtwin != nil {
		etwinLink = byEtwin.raw()
	}
	if conflict := model.NewLinkConflictError(etwinLink, remoteLink); conflict != nil {
		return false, conflict
	}
	return true, nil
}

func sameRemote(a, b model.RemoteUserRef) bool {
	return a.Game == b.Game && a.Server == b.Server && a.ID == b.ID
}

// MemLinkStore はメモリ上のリンクストア。
type MemLinkStore struct {
	clock clock.Clock

	mu    sync.RWMutex
	links []linkRow
}

// NewMemLinkStore はMemLinkStoreを生成する。
func NewMemLinkStore(clk clock.Clock) *MemLinkStore {
	return &MemLinkStore{clock: clk}
}

func (s *MemLinkStore) findActive(match func(l linkRow) bool) *linkRow {
	for i := range s.links {
		if s.links[i].active() && match(s.links[i]) {
			row := s.links[i]
			return &row
		}
	}
	return nil
}

func (s *MemLinkStore) byRemote(ref model.RemoteUserRef) []linkRow {
	var rows []linkRow
	for _, l := range s.links {
		if sameRemote(l.remote, ref) {
			rows = append(rows, l)
		}
	}
	return rows
}

// TouchLink はリンクを作成する。
func (s *MemLinkStore) TouchLink(ctx context.Context, opts model.TouchLinkOptions) (*model.VersionedRawLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRemote := s.findActive(func(l linkRow) bool { return sameRemote(l.remote, opts.Remote) })
	byEtwin := s.findActive(func(l linkRow) bool {
		return l.user == opts.Etwin.ID && l.remote.Game == opts.Remote.Game && l.remote.Server == opts.Remote.Server
	})
	create, err := checkTouchLink(opts, byRemote, byEtwin)
	if err != nil {
		return nil, err
	}
	if create {
		s.links = append(s.links, linkRow{
			remote:   opts.Remote,
			user:     opts.Etwin.ID,
			linkedAt: s.clock.Now(),
			linkedBy: opts.LinkedBy.ID,
		})
	}
	v := versionedLink(s.byRemote(opts.Remote), nil)
	return &v, nil
}

// DeleteLink はリンクを解除する。
func (s *MemLinkStore) DeleteLink(ctx context.Context, opts model.DeleteLinkOptions) (*model.VersionedRawLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for i := range s.links {
		l := &s.links[i]
		if !l.active() || l.user != opts.Etwin.ID || !sameRemote(l.remote, opts.Remote) {
			continue
		}
		if !now.After(l.linkedAt) {
			return nil, model.NewInvalidRequestError("link cannot be deleted at its creation time")
		}
		by := opts.UnlinkedBy.ID
		l.unlinkedAt = &now
		l.unlinkedBy = &by
		v := versionedLink(s.byRemote(opts.Remote), nil)
		return &v, nil
	}
	return nil, model.NewNotLinkedError()
}

func (s *MemLinkStore) getLink(ref model.RemoteUserRef, t *time.Time) *model.VersionedRawLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := versionedLink(s.byRemote(ref), t)
	return &v
}

// GetLinkFromDinoparc はDinoparcアカウントのリンク履歴を返す。
func (s *MemLinkStore) GetLinkFromDinoparc(ctx context.Context, ref model.DinoparcUserIDRef, t *time.Time) (*model.VersionedRawLink, error) {
	return s.getLink(ref.Remote(), t), nil
}

// GetLinkFromHammerfest はHammerfestアカウントのリンク履歴を返す。
func (s *MemLinkStore) GetLinkFromHammerfest(ctx context.Context, ref model.HammerfestUserIDRef, t *time.Time) (*model.VersionedRawLink, error) {
	return s.getLink(ref.Remote(), t), nil
}

// GetLinkFromTwinoid はTwinoidアカウントのリンク履歴を返す。
func (s *MemLinkStore) GetLinkFromTwinoid(ctx context.Context, ref model.TwinoidUserIDRef, t *time.Time) (*model.VersionedRawLink, error) {
	return s.getLink(ref.Remote(), t), nil
}

// GetLinksFromEtwin はetwinユーザーのリンクをゲームごとに返す。
func (s *MemLinkStore) GetLinksFromEtwin(ctx context.Context, user model.UserIDRef, t *time.Time) (*model.VersionedRawLinks, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []linkRow
	for _, l := range s.links {
		if l.user == user.ID {
			rows = append(rows, l)
		}
	}
	return versionedLinks(rows, t), nil
}

// DeleteUser はユーザーのリンクをすべて削除する。PostgreSQLのCASCADE削除に相当する。
func (s *MemLinkStore) DeleteUser(id model.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.links[:0]
	for _, l := range s.links {
		if l.user != id {
			kept = append(kept, l)
		}
	}
	s.links = kept
}

// compile-time interface check
var _ LinkStore = (*MemLinkStore)(nil)
