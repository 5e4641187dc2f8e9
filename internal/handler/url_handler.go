package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/shortener"
)

// ShortURLServiceInterface は短縮URLハンドラーが必要とするサービスインターフェース。
type ShortURLServiceInterface interface {
	Create(ctx context.Context, owner int64, in shortener.CreateInput) (*model.ShortURL, error)
	List(ctx context.Context, owner int64, params model.ListParams) (*shortener.Page, error)
	Get(ctx context.Context, owner int64, key string) (*model.ShortURL, error)
	Edit(ctx context.Context, owner int64, key string, in shortener.EditInput) (*model.ShortURL, error)
	Delete(ctx context.Context, owner int64, key string) error
	Resolve(ctx context.Context, key string) (string, error)
	ShortLink(key string) string
	ShareX(apiKey string) shortener.ShareXConfig
	ShareXFilename() string
}

// URLHandler は短縮URL管理とリダイレクトのHTTPハンドラー。
type URLHandler struct {
	service ShortURLServiceInterface
}

// NewURLHandler はURLHandlerを生成する。
func NewURLHandler(service ShortURLServiceInterface) *URLHandler {
	return &URLHandler{service: service}
}

type createURLRequest struct {
	Alias       string `json:"alias"`
	Destination string `json:"destination"`
}

type editURLRequest struct {
	Alias       *string `json:"alias"`
	Destination string  `json:"destination"`
	ResetClicks bool    `json:"reset_clicks"`
}

// shortURLResponse は短縮URLのAPIレスポンス。
type shortURLResponse struct {
	Alias       string    `json:"alias"`
	ShortURL    string    `json:"short_url"`
	Destination string    `json:"destination"`
	Title       *string   `json:"title"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

type shortURLPageResponse struct {
	URLs        []shortURLResponse `json:"urls"`
	CurrentPage int                `json:"current_page"`
	MaxPages    int                `json:"max_pages"`
	SortBy      string             `json:"sort_by"`
	Direction   string             `json:"direction"`
}

// Create は短縮URLを作成する。
// POST /api/urls
func (h *URLHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Destination == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	u, err := h.service.Create(r.Context(), userID, shortener.CreateInput{
		Alias:       req.Alias,
		Destination: req.Destination,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toResponse(u))
}

// List は短縮URL一覧を返す。
// GET /api/urls?sort_by=clicks&direction=desc&page=1
func (h *URLHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	params, ok := listParams(w, r)
	if !ok {
		return
	}

	page, err := h.service.List(r.Context(), userID, params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := shortURLPageResponse{
		URLs:        make([]shortURLResponse, len(page.URLs)),
		CurrentPage: page.CurrentPage,
		MaxPages:    page.MaxPages,
		SortBy:      page.SortBy,
		Direction:   page.Direction,
	}
	for i, u := range page.URLs {
		resp.URLs[i] = h.toResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は短縮URLの詳細を返す。
// GET /api/urls/{alias}
func (h *URLHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "alias"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(u))
}

// Edit はエイリアスとリダイレクト先を変更する。
// PATCH /api/urls/{alias}
func (h *URLHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req editURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Destination == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	u, err := h.service.Edit(r.Context(), userID, chi.URLParam(r, "alias"), shortener.EditInput{
		Alias:       req.Alias,
		Destination: req.Destination,
		ResetClicks: req.ResetClicks,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(u))
}

// Delete は短縮URLを削除する。
// DELETE /api/urls/{alias}
func (h *URLHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "alias")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShareX はユーザーのAPIキーを埋め込んだShareX設定ファイルを返す。
// GET /api/urls/sharex
func (h *URLHandler) ShareX(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || !user.Has(model.FieldAPIKey) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+h.service.ShareXFilename()+`"`)
	writeJSON(w, http.StatusOK, h.service.ShareX(user.APIKey))
}

// Redirect はエイリアスのリダイレクト先へ転送する。
// GET /{alias}
func (h *URLHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	destination, err := h.service.Resolve(r.Context(), chi.URLParam(r, "alias"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	http.Redirect(w, r, destination, http.StatusFound)
}

func (h *URLHandler) toResponse(u *model.ShortURL) shortURLResponse {
	return shortURLResponse{
		Alias:       u.Key,
		ShortURL:    h.service.ShortLink(u.Key),
		Destination: u.Destination,
		Title:       u.Title,
		Clicks:      u.Clicks,
		CreatedAt:   u.CreatedAt,
	}
}
