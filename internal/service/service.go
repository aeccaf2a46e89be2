// Package service はアーカイブの読み出し、リモートからの取り込み、アカウントのリンクを束ねるサービス層を提供する。
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eternaltwin/etwin/internal/model"
)

// sharedFetchTimeout はまとめられた取り込み全体の上限。
const sharedFetchTimeout = 2 * time.Minute

// shareFetch は key への同時の取り込みを1回にまとめる。
// 取り込みは最初の呼び出し元のキャンセルを引き継がずに実行され、
// 各呼び出し元は自身の ctx が終わった時点で待つのをやめる。
func shareFetch[T any](ctx context.Context, group *singleflight.Group, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	ch := group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fetch(fctx)
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// ShortUserReader はリンクに含まれるetwinユーザーを解決するためのインターフェース。
type ShortUserReader interface {
	GetShortUser(ctx context.Context, opts model.GetUserOptions) (*model.ShortUser, error)
}

// userResolver はリンク履歴の解決中に同じユーザーを何度も読まないようにする。
type userResolver struct {
	users ShortUserReader
	time  *time.Time
	cache map[model.UserID]model.ShortUser
}

func newUserResolver(users ShortUserReader, t *time.Time) *userResolver {
	return &userResolver{users: users, time: t, cache: map[model.UserID]model.ShortUser{}}
}

// resolve はユーザーを返す。削除済みのユーザーは表示名なしで返す。
func (r *userResolver) resolve(ctx context.Context, id model.UserID) (model.ShortUser, error) {
	if u, ok := r.cache[id]; ok {
		return u, nil
	}
	u, err := r.users.GetShortUser(ctx, model.GetUserOptions{
		Ref:    model.UserRefByID(id),
		Fields: model.UserFieldsShort,
		Time:   r.time,
	})
	if err != nil {
		return model.ShortUser{}, fmt.Errorf("failed to resolve linked user: %w", err)
	}
	short := model.ShortUser{ID: id}
	if u != nil {
		short = *u
	} else {
		slog.Warn("リンクのユーザーが見つかりません", slog.String("user_id", string(id)))
	}
	r.cache[id] = short
	return short, nil
}

func (r *userResolver) dot(ctx context.Context, d model.RawUserDot) (model.UserDot, error) {
	user, err := r.resolve(ctx, d.User.ID)
	if err != nil {
		return model.UserDot{}, err
	}
	return model.UserDot{Time: d.Time, User: user}, nil
}

// hydrateLink はリンク履歴のユーザー参照を表示用のユーザーに置き換える。
func hydrateLink(ctx context.Context, users ShortUserReader, raw *model.VersionedRawLink, t *time.Time) (model.VersionedEtwinLink, error) {
	result := model.VersionedEtwinLink{Old: []model.OldEtwinLink{}}
	if raw == nil {
		return result, nil
	}
	r := newUserResolver(users, t)

	if cur := raw.Current; cur != nil {
		link, err := r.dot(ctx, cur.Link)
		if err != nil {
			return result, err
		}
		user, err := r.resolve(ctx, cur.Etwin.ID)
		if err != nil {
			return result, err
		}
		result.Current = &model.EtwinLink{Link: link, User: user}
	}

	for _, old := range raw.Old {
		link, err := r.dot(ctx, old.Link)
		if err != nil {
			return result, err
		}
		unlink, err := r.dot(ctx, old.Unlink)
		if err != nil {
			return result, err
		}
		user, err := r.resolve(ctx, old.Etwin.ID)
		if err != nil {
			return result, err
		}
		result.Old = append(result.Old, model.OldEtwinLink{Link: link, Unlink: unlink, User: user})
	}
	return result, nil
}
