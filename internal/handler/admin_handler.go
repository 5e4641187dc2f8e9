package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/user"
)

// AdminServiceInterface は管理者向けハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListUsers(ctx context.Context, params model.ListParams) (*user.UserPage, error)
	CreateUser(ctx context.Context, in user.CreateUserInput) (*model.User, error)
	EditUser(ctx context.Context, userID int64, in user.EditUserInput) (*model.User, error)
	SetAuthorized(ctx context.Context, userID int64, authorized bool) error
	DeleteUser(ctx context.Context, userID int64) error
	Stats(ctx context.Context) (*model.UserStats, error)
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type userPageResponse struct {
	Users       []userResponse `json:"users"`
	CurrentPage int            `json:"current_page"`
	SortBy      string         `json:"sort_by"`
	Direction   string         `json:"direction"`
}

type createUserRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Admin      bool   `json:"admin"`
	Authorized bool   `json:"authorized"`
}

type editUserRequest struct {
	Email                 *string `json:"email"`
	Password              *string `json:"password"`
	Admin                 *bool   `json:"admin"`
	Authorized            *bool   `json:"authorized"`
	SessionDurationAmount *int    `json:"session_duration_amount"`
	SessionDurationUnit   *string `json:"session_duration_unit"`
}

type statsResponse struct {
	URLs     int64 `json:"urls"`
	Users    int64 `json:"users"`
	Sessions int64 `json:"sessions"`
	Notes    int64 `json:"notes"`
}

// ListUsers はユーザー一覧を返す。
// GET /api/admin/users?sort_by=email&direction=asc&page=1
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params, ok := listParams(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := userPageResponse{
		Users:       make([]userResponse, len(page.Users)),
		CurrentPage: page.CurrentPage,
		SortBy:      page.SortBy,
		Direction:   page.Direction,
	}
	for i, u := range page.Users {
		resp.Users[i] = toUserResponse(u, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateUser は招待コードなしでユーザーを作成する。
// POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.CreateUser(r.Context(), user.CreateUserInput{
		Email:      req.Email,
		Password:   req.Password,
		Admin:      req.Admin,
		Authorized: req.Authorized,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u, false))
}

// EditUser はユーザーの属性を変更する。
// PATCH /api/admin/users/{id}
func (h *AdminHandler) EditUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req editUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.EditUser(r.Context(), userID, user.EditUserInput{
		Email:         req.Email,
		Password:      req.Password,
		Admin:         req.Admin,
		Authorized:    req.Authorized,
		SessionAmount: req.SessionDurationAmount,
		SessionUnit:   req.SessionDurationUnit,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u, false))
}

// Authorize はユーザーを承認する。
// POST /api/admin/users/{id}/authorize
func (h *AdminHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	h.setAuthorized(w, r, true)
}

// Unauthorize はユーザーの承認を取り消す。
// POST /api/admin/users/{id}/unauthorize
func (h *AdminHandler) Unauthorize(w http.ResponseWriter, r *http.Request) {
	h.setAuthorized(w, r, false)
}

func (h *AdminHandler) setAuthorized(w http.ResponseWriter, r *http.Request, authorized bool) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.SetAuthorized(r.Context(), userID, authorized); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser はユーザーを削除する。
// DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats は管理画面の集計値を返す。
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		URLs:     stats.URLs,
		Users:    stats.Users,
		Sessions: stats.Sessions,
		Notes:    stats.Notes,
	})
}

// pathUserID はパスの{id}をユーザーIDとして読み取る。
func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return 0, false
	}
	return id, true
}
