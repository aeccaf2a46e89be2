package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eternaltwin/etwin/internal/middleware"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/service"
)

// LinkServiceInterface はリンクハンドラーが必要とするサービスインターフェース。
type LinkServiceInterface interface {
	LinkToDinoparc(ctx context.Context, acx model.AuthContext, opts service.LinkToDinoparcOptions) (*model.VersionedRawLink, error)
	LinkToHammerfest(ctx context.Context, acx model.AuthContext, opts service.LinkToHammerfestOptions) (*model.VersionedRawLink, error)
	LinkToTwinoid(ctx context.Context, acx model.AuthContext, opts service.LinkToTwinoidOptions) (*model.VersionedRawLink, error)
	Unlink(ctx context.Context, acx model.AuthContext, opts service.UnlinkOptions) (*model.VersionedRawLink, error)
}

// LinkHandler はetwinユーザーとリモートアカウントのリンクを管理するHTTPハンドラー。
type LinkHandler struct {
	service LinkServiceInterface
	clock   func() time.Time
}

// NewLinkHandler はLinkHandlerを生成する。
func NewLinkHandler(service LinkServiceInterface) *LinkHandler {
	return &LinkHandler{service: service, clock: time.Now}
}

type linkDinoparcRequest struct {
	Server   model.DinoparcServer   `json:"server"`
	Username model.DinoparcUsername `json:"username"`
	Password string                 `json:"password"`
}

type linkHammerfestRequest struct {
	Server   model.HammerfestServer   `json:"server"`
	Username model.HammerfestUsername `json:"username"`
	Password string                   `json:"password"`
}

type linkTwinoidRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn はアクセストークンの残り有効秒数。
	ExpiresIn int64 `json:"expires_in"`
}

// LinkDinoparc はDinoparcにログインできたアカウントをリンクする。
// POST /api/v1/users/{id}/links/dinoparc
func (h *LinkHandler) LinkDinoparc(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req linkDinoparcRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if req.Server == "" || req.Username == "" {
		middleware.WriteError(w, r, model.NewInvalidRequestError("server, username"))
		return
	}
	link, err := h.service.LinkToDinoparc(r.Context(), middleware.AuthFromContext(r.Context()), service.LinkToDinoparcOptions{
		User: userID,
		Credentials: model.DinoparcCredentials{
			Server:   req.Server,
			Username: req.Username,
			Password: model.DinoparcPassword(req.Password),
		},
	})
	h.respond(w, r, link, err)
}

// LinkHammerfest はHammerfestにログインできたアカウントをリンクする。
// POST /api/v1/users/{id}/links/hammerfest
func (h *LinkHandler) LinkHammerfest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req linkHammerfestRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if req.Server == "" || req.Username == "" {
		middleware.WriteError(w, r, model.NewInvalidRequestError("server, username"))
		return
	}
	link, err := h.service.LinkToHammerfest(r.Context(), middleware.AuthFromContext(r.Context()), service.LinkToHammerfestOptions{
		User: userID,
		Credentials: model.HammerfestCredentials{
			Server:   req.Server,
			Username: req.Username,
			Password: model.HammerfestPassword(req.Password),
		},
	})
	h.respond(w, r, link, err)
}

// LinkTwinoid はOAuthで得たアクセストークンの持ち主のアカウントをリンクする。
// POST /api/v1/users/{id}/links/twinoid
func (h *LinkHandler) LinkTwinoid(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req linkTwinoidRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if req.AccessToken == "" || req.ExpiresIn <= 0 {
		middleware.WriteError(w, r, model.NewInvalidRequestError("access_token, expires_in"))
		return
	}
	link, err := h.service.LinkToTwinoid(r.Context(), middleware.AuthFromContext(r.Context()), service.LinkToTwinoidOptions{
		User:         userID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    h.clock().Add(time.Duration(req.ExpiresIn) * time.Second),
	})
	h.respond(w, r, link, err)
}

// Unlink はリンクを解除する。
// DELETE /api/v1/users/{id}/links/{game}/{server}/{remote_id}
func (h *LinkHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	remote, err := parseRemoteRef(chi.URLParam(r, "game"), chi.URLParam(r, "server"), chi.URLParam(r, "remote_id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	link, err := h.service.Unlink(r.Context(), middleware.AuthFromContext(r.Context()), service.UnlinkOptions{
		User:   userID,
		Remote: remote,
	})
	h.respond(w, r, link, err)
}

func (h *LinkHandler) userID(w http.ResponseWriter, r *http.Request) (model.UserID, bool) {
	id, err := model.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return "", false
	}
	return id, true
}

func (h *LinkHandler) respond(w http.ResponseWriter, r *http.Request, link *model.VersionedRawLink, err error) {
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// parseRemoteRef はURLのパス要素を検証してリモートアカウントの参照を作る。
func parseRemoteRef(game, server, id string) (model.RemoteUserRef, error) {
	switch model.RemoteGame(game) {
	case model.RemoteGameDinoparc:
		s, err := model.ParseDinoparcServer(server)
		if err != nil {
			return model.RemoteUserRef{}, err
		}
		uid, err := model.ParseDinoparcUserID(id)
		if err != nil {
			return model.RemoteUserRef{}, err
		}
		return model.DinoparcUserIDRef{Server: s, ID: uid}.Remote(), nil
	case model.RemoteGameHammerfest:
		s, err := model.ParseHammerfestServer(server)
		if err != nil {
			return model.RemoteUserRef{}, err
		}
		uid, err := model.ParseHammerfestUserID(id)
		if err != nil {
			return model.RemoteUserRef{}, err
		}
		return model.HammerfestUserIDRef{Server: s, ID: uid}.Remote(), nil
	case model.RemoteGameTwinoid:
		if server != model.TwinoidServer {
			return model.RemoteUserRef{}, &model.ParseError{Type: "TwinoidServer", Input: server}
		}
		uid, err := model.ParseTwinoidUserID(id)
		if err != nil {
			return model.RemoteUserRef{}, err
		}
		return model.TwinoidUserIDRef{ID: uid}.Remote(), nil
	default:
		return model.RemoteUserRef{}, &model.ParseError{Type: "RemoteGame", Input: game}
	}
}
