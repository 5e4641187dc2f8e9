package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/note"
)

// NoteServiceInterface はノートハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	Create(ctx context.Context, owner int64, in note.CreateInput) (*model.Note, error)
	List(ctx context.Context, owner int64, params model.ListParams) (*note.Page, error)
	Delete(ctx context.Context, owner int64, publicID string) error
	Info(ctx context.Context, publicID string) (*note.Info, error)
	View(ctx context.Context, in note.ViewInput) (*note.View, error)
}

// NoteHandler はノートのHTTPハンドラー。
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

type createNoteRequest struct {
	Name       string `json:"name"`
	Content    string `json:"content"`
	Password   string `json:"password"`
	ShareEmail bool   `json:"share_email"`
	Private    bool   `json:"private"`
}

// noteResponse は本文を含まないノート情報のAPIレスポンス。
type noteResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HasPassword bool      `json:"has_password"`
	ShareEmail  bool      `json:"share_email"`
	Private     bool      `json:"private"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

type notePageResponse struct {
	Notes       []noteResponse `json:"notes"`
	CurrentPage int            `json:"current_page"`
	MaxPages    int            `json:"max_pages"`
	SortBy      string         `json:"sort_by"`
	Direction   string         `json:"direction"`
}

type noteInfoResponse struct {
	ID          string `json:"id"`
	HasPassword bool   `json:"has_password"`
	Private     bool   `json:"private"`
}

type noteViewResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       *string `json:"email,omitempty"`
	Content     string  `json:"content"`
	ContentHTML string  `json:"content_html"`
}

// Create はノートを作成する。
// POST /api/notes
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.service.Create(r.Context(), userID, note.CreateInput{
		Name:       req.Name,
		Content:    req.Content,
		Password:   req.Password,
		ShareEmail: req.ShareEmail,
		Private:    req.Private,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(n))
}

// List はノート一覧を返す。
// GET /api/notes?sort_by=clicks&direction=desc&page=1
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
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

	resp := notePageResponse{
		Notes:       make([]noteResponse, len(page.Notes)),
		CurrentPage: page.CurrentPage,
		MaxPages:    page.MaxPages,
		SortBy:      page.SortBy,
		Direction:   page.Direction,
	}
	for i, n := range page.Notes {
		resp.Notes[i] = toNoteResponse(n)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete はノートを削除する。
// DELETE /api/notes/{id}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Info は閲覧前に必要なノートの概要を返す。
// GET /notes/{id}/info
func (h *NoteHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, noteInfoResponse{
		ID:          info.ID,
		HasPassword: info.HasPassword,
		Private:     info.Private,
	})
}

// View はパスワードなしでノートを閲覧する。
// GET /notes/{id}
func (h *NoteHandler) View(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, nil)
}

// Unlock はフォームのpasswordでパスワード付きノートを閲覧する。
// パスワードが違う場合は?incorrect_password=trueを付けて閲覧ページへリダイレクトする。
// POST /notes/{id}
func (h *NoteHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	password := r.PostForm.Get("password")
	h.view(w, r, &password)
}

func (h *NoteHandler) view(w http.ResponseWriter, r *http.Request, password *string) {
	id := chi.URLParam(r, "id")
	in := note.ViewInput{PublicID: id, Password: password}
	if userID, err := middleware.UserIDFromContext(r.Context()); err == nil {
		in.ViewerID = &userID
	}

	v, err := h.service.View(r.Context(), in)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeIncorrectPassword {
		http.Redirect(w, r, "/notes/"+url.PathEscape(id)+"?incorrect_password=true", http.StatusFound)
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, noteViewResponse{
		ID:          v.ID,
		Name:        v.Name,
		Email:       v.Email,
		Content:     v.Content,
		ContentHTML: v.ContentHTML,
	})
}

func toNoteResponse(n *model.Note) noteResponse {
	return noteResponse{
		ID:          note.EncodeID(n.ID),
		Name:        n.Name,
		HasPassword: n.HasPassword,
		ShareEmail:  n.ShareEmail,
		Private:     n.Private,
		Clicks:      n.Clicks,
		CreatedAt:   n.CreatedAt,
	}
}
