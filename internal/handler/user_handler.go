package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eternaltwin/etwin/internal/middleware"
	"github.com/eternaltwin/etwin/internal/model"
	"github.com/eternaltwin/etwin/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	CreateUser(ctx context.Context, in user.CreateUserInput) (*model.CompleteUser, error)
	GetUser(ctx context.Context, acx model.AuthContext, id model.UserID) (*model.CompleteUser, error)
	// Withdraw はユーザーを削除する。リンクとアーカイブは履歴として残す。
	Withdraw(ctx context.Context, acx model.AuthContext, id model.UserID) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	DisplayName model.UserDisplayName `json:"display_name"`
	Username    *model.Username       `json:"username"`
	Email       *model.EmailAddress   `json:"email"`
	Password    string                `json:"password"`
}

// Register はユーザーを登録する。
// POST /api/v1/users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if req.DisplayName == "" {
		middleware.WriteError(w, r, model.NewInvalidRequestError("display_name"))
		return
	}

	created, err := h.service.CreateUser(r.Context(), user.CreateUserInput{
		DisplayName: req.DisplayName,
		Username:    req.Username,
		Email:       req.Email,
		Password:    model.Password(req.Password),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetUser はユーザーを返す。本人と管理者以外にはユーザー名とメールアドレスを返さない。
// GET /api/v1/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	u, err := h.service.GetUser(r.Context(), middleware.AuthFromContext(r.Context()), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/v1/users/{id}
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := h.service.Withdraw(r.Context(), middleware.AuthFromContext(r.Context()), id); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
