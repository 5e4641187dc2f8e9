package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/user"
)

// UserServiceInterface はアカウント関連ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Me(ctx context.Context, userID int64) (*model.User, error)
	UpdateAccount(ctx context.Context, userID int64, in user.AccountUpdate) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// sessionsを削除した後にユーザーを削除し、残りはCASCADEで削除される。
	Withdraw(ctx context.Context, userID int64) error
	ListSessions(ctx context.Context, userID int64) ([]*model.Session, error)
	RevokeSession(ctx context.Context, userID int64, token string) error
	ListInvites(ctx context.Context, owner int64) ([]*model.Invite, error)
	CreateInvite(ctx context.Context, owner int64, isAdmin bool, requiredEmail string) (*model.Invite, error)
}

// APIKeyRegenerator はAPIキーを再発行する。
type APIKeyRegenerator interface {
	RegenerateAPIKey(ctx context.Context, userID int64) (string, error)
}

// UserHandler はアカウント設定、セッション、招待コードのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	keys    APIKeyRegenerator
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, keys APIKeyRegenerator, cookies AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		keys:    keys,
		cookies: cookies,
	}
}

type sessionDurationJSON struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID              int64               `json:"id"`
	Email           string              `json:"email"`
	APIKey          string              `json:"api_key,omitempty"`
	Admin           bool                `json:"admin"`
	Authorized      bool                `json:"authorized"`
	HasPassword     bool                `json:"has_password"`
	SessionDuration sessionDurationJSON `json:"session_duration"`
	Joined          time.Time           `json:"joined"`
}

type updateAccountRequest struct {
	Email                 string `json:"email"`
	SessionDurationAmount int    `json:"session_duration_amount"`
	SessionDurationUnit   string `json:"session_duration_unit"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	IP        *string   `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

type createInviteRequest struct {
	RequiredEmail string `json:"required_email"`
}

type inviteResponse struct {
	Code          string    `json:"code"`
	RequiredEmail *string   `json:"required_email"`
	UsedBy        *int64    `json:"used_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// Me はログイン中のユーザー情報を返す。
// GET /api/account
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u, true))
}

// UpdateAccount はメールアドレスとセッション有効期間を変更する。
// PATCH /api/account
func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.UpdateAccount(r.Context(), userID, user.AccountUpdate{
		Email:         req.Email,
		SessionAmount: req.SessionDurationAmount,
		SessionUnit:   req.SessionDurationUnit,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u, true))
}

// RegenerateAPIKey はAPIキーを再発行する。
// POST /api/account/api-key
func (h *UserHandler) RegenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	key, err := h.keys.RegenerateAPIKey(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/account
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	clearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions は有効なセッション一覧を返す。リクエスト元のセッションにはcurrentを付ける。
// GET /api/account/sessions
func (h *UserHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var current string
	if c, err := r.Cookie(auth.SessionCookieName); err == nil {
		current = c.Value
	}

	resp := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = sessionResponse{
			ID:        s.Token,
			Browser:   s.Browser,
			OS:        s.OS,
			IP:        s.IP,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Current:   s.Token == current,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RevokeSession はセッションを破棄する。
// DELETE /api/account/sessions/{id}
func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.RevokeSession(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInvites は発行した招待コード一覧を返す。
// GET /api/invites
func (h *UserHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	invites, err := h.service.ListInvites(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]inviteResponse, len(invites))
	for i, inv := range invites {
		resp[i] = toInviteResponse(inv)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateInvite は招待コードを発行する。管理者以外は発行数に上限がある。
// POST /api/invites
func (h *UserHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || !principal.Has(model.FieldID) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createInviteRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	invite, err := h.service.CreateInvite(r.Context(), principal.ID, principal.Admin, req.RequiredEmail)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInviteResponse(invite))
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
// withKeyがfalseの場合はAPIキーを含めない。
func toUserResponse(u *model.User, withKey bool) userResponse {
	amount, unit := user.SplitSessionDuration(u.SessionDuration)
	resp := userResponse{
		ID:              u.ID,
		Email:           u.Email,
		Admin:           u.Admin,
		Authorized:      u.Authorized,
		HasPassword:     u.PasswordHash != nil,
		SessionDuration: sessionDurationJSON{Amount: amount, Unit: unit},
		Joined:          u.Joined,
	}
	if withKey {
		resp.APIKey = u.APIKey
	}
	return resp
}

func toInviteResponse(inv *model.Invite) inviteResponse {
	return inviteResponse{
		Code:          inv.Code,
		RequiredEmail: inv.RequiredEmail,
		UsedBy:        inv.UsedBy,
		CreatedAt:     inv.CreatedAt,
	}
}
