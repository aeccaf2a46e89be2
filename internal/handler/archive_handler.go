package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eternaltwin/etwin/internal/middleware"
	"github.com/eternaltwin/etwin/internal/model"
)

// DinoparcUserGetter は service.DinoparcService の読み取り部分。
type DinoparcUserGetter interface {
	GetUser(ctx context.Context, acx model.AuthContext, opts model.GetDinoparcUserOptions) (*model.EtwinDinoparcUser, error)
}

// HammerfestUserGetter は service.HammerfestService の読み取り部分。
type HammerfestUserGetter interface {
	GetUser(ctx context.Context, acx model.AuthContext, opts model.GetHammerfestUserOptions) (*model.EtwinHammerfestUser, error)
}

// TwinoidUserGetter は service.TwinoidService の読み取り部分。
type TwinoidUserGetter interface {
	GetUser(ctx context.Context, acx model.AuthContext, opts model.GetTwinoidUserOptions) (*model.EtwinTwinoidUser, error)
}

// ArchiveHandler はリモートアカウントのアーカイブを返すHTTPハンドラー。
type ArchiveHandler struct {
	dinoparc   DinoparcUserGetter
	hammerfest HammerfestUserGetter
	twinoid    TwinoidUserGetter
}

// NewArchiveHandler はArchiveHandlerを生成する。
func NewArchiveHandler(dinoparc DinoparcUserGetter, hammerfest HammerfestUserGetter, twinoid TwinoidUserGetter) *ArchiveHandler {
	return &ArchiveHandler{
		dinoparc:   dinoparc,
		hammerfest: hammerfest,
		twinoid:    twinoid,
	}
}

// GetUser はアーカイブ済みのリモートユーザーとetwinのリンクを返す。
// time を指定するとその時点の状態を返す。
// GET /api/v1/archive/{game}/{server}/users/{id}?time=
func (h *ArchiveHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	t, err := parseTime(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	acx := middleware.AuthFromContext(r.Context())
	server, id := chi.URLParam(r, "server"), chi.URLParam(r, "id")

	var user any
	switch model.RemoteGame(chi.URLParam(r, "game")) {
	case model.RemoteGameDinoparc:
		user, err = h.getDinoparcUser(r.Context(), acx, server, id, t)
	case model.RemoteGameHammerfest:
		user, err = h.getHammerfestUser(r.Context(), acx, server, id, t)
	case model.RemoteGameTwinoid:
		user, err = h.getTwinoidUser(r.Context(), acx, server, id, t)
	default:
		middleware.WriteErrorResponse(w, http.StatusNotFound, "GameNotFound")
		return
	}
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *ArchiveHandler) getDinoparcUser(ctx context.Context, acx model.AuthContext, rawServer, rawID string, t *time.Time) (any, error) {
	server, err := model.ParseDinoparcServer(rawServer)
	if err != nil {
		return nil, err
	}
	id, err := model.ParseDinoparcUserID(rawID)
	if err != nil {
		return nil, err
	}
	return h.dinoparc.GetUser(ctx, acx, model.GetDinoparcUserOptions{Server: server, ID: id, Time: t})
}

func (h *ArchiveHandler) getHammerfestUser(ctx context.Context, acx model.AuthContext, rawServer, rawID string, t *time.Time) (any, error) {
	server, err := model.ParseHammerfestServer(rawServer)
	if err != nil {
		return nil, err
	}
	id, err := model.ParseHammerfestUserID(rawID)
	if err != nil {
		return nil, err
	}
	return h.hammerfest.GetUser(ctx, acx, model.GetHammerfestUserOptions{Server: server, ID: id, Time: t})
}

func (h *ArchiveHandler) getTwinoidUser(ctx context.Context, acx model.AuthContext, rawServer, rawID string, t *time.Time) (any, error) {
	if rawServer != model.TwinoidServer {
		return nil, &model.ParseError{Type: "TwinoidServer", Input: rawServer}
	}
	id, err := model.ParseTwinoidUserID(rawID)
	if err != nil {
		return nil, err
	}
	return h.twinoid.GetUser(ctx, acx, model.GetTwinoidUserOptions{ID: id, Time: t})
}
