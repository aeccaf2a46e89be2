package model

import (
	"fmt"
	"sort"
)

// RemoteGame はリンク対象のリモートゲーム。
type RemoteGame string

const (
	RemoteGameDinoparc   RemoteGame = "dinoparc"
	RemoteGameHammerfest RemoteGame = "hammerfest"
	RemoteGameTwinoid    RemoteGame = "twinoid"
)

// RemoteUserRef はゲームを問わないリモートアカウントの参照。
type RemoteUserRef struct {
	Game   RemoteGame `json:"game"`
	Server string     `json:"server"`
	ID     string     `json:"id"`
}

func (r RemoteUserRef) String() string {
	return fmt.Sprintf("%s:%s/%s", r.Game, r.Server, r.ID)
}

// RawLink は有効なリンク。ユーザーは参照のみ。
type RawLink struct {
	Link   RawUserDot    `json:"link"`
	Etwin  UserIDRef     `json:"etwin"`
	Remote RemoteUserRef `json:"remote"`
}

// OldRawLink は解除済みのリンク。
type OldRawLink struct {
	Link   RawUserDot    `json:"link"`
	Unlink RawUserDot    `json:"unlink"`
	Etwin  UserIDRef     `json:"etwin"`
	Remote RemoteUserRef `json:"remote"`
}

// VersionedRawLink は現在のリンクと過去のリンク。Old は LinkedAt の降順。
type VersionedRawLink struct {
	Current *RawLink     `json:"current"`
	Old     []OldRawLink `json:"old"`
}

// SortOld は Old をリンク時刻の降順に並べる。
func (v *VersionedRawLink) SortOld() {
	sort.SliceStable(v.Old, func(i, j int) bool {
		return v.Old[i].Link.Time.After(v.Old[j].Link.Time)
	})
}

// VersionedRawLinks はetwinユーザーから見たゲームごとのリンク。
type VersionedRawLinks struct {
	Dinoparc   map[DinoparcServer]VersionedRawLink   `json:"dinoparc"`
	Hammerfest map[HammerfestServer]VersionedRawLink `json:"hammerfest"`
	Twinoid    VersionedRawLink                      `json:"twinoid"`
}

// EtwinLink はリモートアカウントから見た有効なリンク。
type EtwinLink struct {
	Link UserDot   `json:"link"`
	User ShortUser `json:"user"`
}

// OldEtwinLink はリモートアカウントから見た解除済みのリンク。
type OldEtwinLink struct {
	Link   UserDot   `json:"link"`
	Unlink UserDot   `json:"unlink"`
	User   ShortUser `json:"user"`
}

// VersionedEtwinLink はユーザー情報を解決済みのリンク履歴。
type VersionedEtwinLink struct {
	Current *EtwinLink     `json:"current"`
	Old     []OldEtwinLink `json:"old"`
}

// TouchLinkOptions はリンク作成の入力。
type TouchLinkOptions struct {
	Etwin    UserIDRef
	Remote   RemoteUserRef
	LinkedBy UserIDRef
}

// DeleteLinkOptions はリンク解除の入力。
type DeleteLinkOptions struct {
	Etwin      UserIDRef
	Remote     RemoteUserRef
	UnlinkedBy UserIDRef
}

// LinkConflictKind はリンク衝突の種類。
type LinkConflictKind string

const (
	ConflictEtwin  LinkConflictKind = "ConflictEtwin"
	ConflictRemote LinkConflictKind = "ConflictRemote"
	ConflictBoth   LinkConflictKind = "ConflictBoth"
)

// LinkConflictError は既存の有効なリンクと衝突したことを表す。
// ByEtwin は同じetwinユーザーの同じサーバーへのリンク、ByRemote は同じリモートアカウントへのリンク。
type LinkConflictError struct {
	Conflict LinkConflictKind
	ByEtwin  *RawLink
	ByRemote *RawLink
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("link conflict: %s", e.Conflict)
}

// Kind は分類を返す。
func (e *LinkConflictError) Kind() Kind { return KindConflict }

// NewLinkConflictError は衝突したリンクから種類を決めてエラーを生成する。
// 両方が nil の場合は nil を返す。
func NewLinkConflictError(byEtwin, byRemote *RawLink) *LinkConflictError {
	switch {
	case byEtwin != nil && byRemote != nil:
		return &LinkConflictError{Conflict: ConflictBoth, ByEtwin: byEtwin, ByRemote: byRemote}
	case byEtwin != nil:
		return &LinkConflictError{Conflict: ConflictEtwin, ByEtwin: byEtwin}
	case byRemote != nil:
		return &LinkConflictError{Conflict: ConflictRemote, ByRemote: byRemote}
	default:
		return nil
	}
}
