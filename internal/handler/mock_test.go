package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/note"
	"github.com/hitoshi/linknote/internal/shortener"
	"github.com/hitoshi/linknote/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn         func(ctx context.Context, in auth.SignupInput, meta auth.SessionMeta) (*model.Session, error)
	loginFn          func(ctx context.Context, email, password string, meta auth.SessionMeta) (*model.Session, error)
	logoutFn         func(ctx context.Context, token string) error
	getLoginURLFn    func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code string, meta auth.SessionMeta) (*model.Session, error)
	regenerateFn     func(ctx context.Context, userID int64) (string, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput, meta auth.SessionMeta) (*model.Session, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in, meta)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string, meta auth.SessionMeta) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password, meta)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) ProviderNames() []string {
	return []string{"discord", "github"}
}

func (m *mockAuthService) GetLoginURL(provider, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(provider, state)
	}
	return "", nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code string, meta auth.SessionMeta) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code, meta)
	}
	return nil, nil
}

func (m *mockAuthService) RegenerateAPIKey(ctx context.Context, userID int64) (string, error) {
	if m.regenerateFn != nil {
		return m.regenerateFn(ctx, userID)
	}
	return "", nil
}

type mockShortURLService struct {
	createFn  func(ctx context.Context, owner int64, in shortener.CreateInput) (*model.ShortURL, error)
	listFn    func(ctx context.Context, owner int64, params model.ListParams) (*shortener.Page, error)
	getFn     func(ctx context.Context, owner int64, key string) (*model.ShortURL, error)
	editFn    func(ctx context.Context, owner int64, key string, in shortener.EditInput) (*model.ShortURL, error)
	deleteFn  func(ctx context.Context, owner int64, key string) error
	resolveFn func(ctx context.Context, key string) (string, error)
}

func (m *mockShortURLService) Create(ctx context.Context, owner int64, in shortener.CreateInput) (*model.ShortURL, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, in)
	}
	return &model.ShortURL{Key: in.Alias, Owner: owner, Destination: in.Destination}, nil
}

func (m *mockShortURLService) List(ctx context.Context, owner int64, params model.ListParams) (*shortener.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, owner, params)
	}
	return &shortener.Page{URLs: []*model.ShortURL{}, CurrentPage: 1, MaxPages: 1}, nil
}

func (m *mockShortURLService) Get(ctx context.Context, owner int64, key string) (*model.ShortURL, error) {
	if m.getFn != nil {
		return m.getFn(ctx, owner, key)
	}
	return nil, model.NewShortURLNotFoundError(key)
}

func (m *mockShortURLService) Edit(ctx context.Context, owner int64, key string, in shortener.EditInput) (*model.ShortURL, error) {
	if m.editFn != nil {
		return m.editFn(ctx, owner, key, in)
	}
	return &model.ShortURL{Key: key, Owner: owner, Destination: in.Destination}, nil
}

func (m *mockShortURLService) Delete(ctx context.Context, owner int64, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, key)
	}
	return nil
}

func (m *mockShortURLService) Resolve(ctx context.Context, key string) (string, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, key)
	}
	return "", model.NewShortURLNotFoundError(key)
}

func (m *mockShortURLService) ShortLink(key string) string {
	return "https://sho.rt/" + key
}

func (m *mockShortURLService) ShareX(apiKey string) shortener.ShareXConfig {
	return shortener.ShareXConfig{
		Version:    "13.4.0",
		RequestURL: "https://sho.rt/api/urls",
		Headers:    map[string]string{"x-api-key": apiKey},
	}
}

func (m *mockShortURLService) ShareXFilename() string {
	return "sho.rt.sxcu"
}

type mockNoteService struct {
	createFn func(ctx context.Context, owner int64, in note.CreateInput) (*model.Note, error)
	listFn   func(ctx context.Context, owner int64, params model.ListParams) (*note.Page, error)
	deleteFn func(ctx context.Context, owner int64, publicID string) error
	infoFn   func(ctx context.Context, publicID string) (*note.Info, error)
	viewFn   func(ctx context.Context, in note.ViewInput) (*note.View, error)
}

func (m *mockNoteService) Create(ctx context.Context, owner int64, in note.CreateInput) (*model.Note, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, in)
	}
	return &model.Note{ID: "00000000-0000-0000-0000-000000000001", Owner: owner, Name: in.Name}, nil
}

func (m *mockNoteService) List(ctx context.Context, owner int64, params model.ListParams) (*note.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, owner, params)
	}
	return &note.Page{Notes: []*model.Note{}, CurrentPage: 1, MaxPages: 1}, nil
}

func (m *mockNoteService) Delete(ctx context.Context, owner int64, publicID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, publicID)
	}
	return nil
}

func (m *mockNoteService) Info(ctx context.Context, publicID string) (*note.Info, error) {
	if m.infoFn != nil {
		return m.infoFn(ctx, publicID)
	}
	return nil, model.NewNoteNotFoundError()
}

func (m *mockNoteService) View(ctx context.Context, in note.ViewInput) (*note.View, error) {
	if m.viewFn != nil {
		return m.viewFn(ctx, in)
	}
	return nil, model.NewNoteNotFoundError()
}

type mockUserService struct {
	meFn            func(ctx context.Context, userID int64) (*model.User, error)
	updateAccountFn func(ctx context.Context, userID int64, in user.AccountUpdate) (*model.User, error)
	withdrawFn      func(ctx context.Context, userID int64) error
	listSessionsFn  func(ctx context.Context, userID int64) ([]*model.Session, error)
	revokeSessionFn func(ctx context.Context, userID int64, token string) error
	listInvitesFn   func(ctx context.Context, owner int64) ([]*model.Invite, error)
	createInviteFn  func(ctx context.Context, owner int64, isAdmin bool, requiredEmail string) (*model.Invite, error)
}

func (m *mockUserService) Me(ctx context.Context, userID int64) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) UpdateAccount(ctx context.Context, userID int64, in user.AccountUpdate) (*model.User, error) {
	if m.updateAccountFn != nil {
		return m.updateAccountFn(ctx, userID, in)
	}
	return &model.User{ID: userID, Email: in.Email}, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID int64) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

func (m *mockUserService) ListSessions(ctx context.Context, userID int64) ([]*model.Session, error) {
	if m.listSessionsFn != nil {
		return m.listSessionsFn(ctx, userID)
	}
	return []*model.Session{}, nil
}

func (m *mockUserService) RevokeSession(ctx context.Context, userID int64, token string) error {
	if m.revokeSessionFn != nil {
		return m.revokeSessionFn(ctx, userID, token)
	}
	return nil
}

func (m *mockUserService) ListInvites(ctx context.Context, owner int64) ([]*model.Invite, error) {
	if m.listInvitesFn != nil {
		return m.listInvitesFn(ctx, owner)
	}
	return []*model.Invite{}, nil
}

func (m *mockUserService) CreateInvite(ctx context.Context, owner int64, isAdmin bool, requiredEmail string) (*model.Invite, error) {
	if m.createInviteFn != nil {
		return m.createInviteFn(ctx, owner, isAdmin, requiredEmail)
	}
	return &model.Invite{Code: "11111111-1111-1111-1111-111111111111", Owner: owner}, nil
}

type mockAdminService struct {
	listUsersFn     func(ctx context.Context, params model.ListParams) (*user.UserPage, error)
	createUserFn    func(ctx context.Context, in user.CreateUserInput) (*model.User, error)
	editUserFn      func(ctx context.Context, userID int64, in user.EditUserInput) (*model.User, error)
	setAuthorizedFn func(ctx context.Context, userID int64, authorized bool) error
	deleteUserFn    func(ctx context.Context, userID int64) error
	statsFn         func(ctx context.Context) (*model.UserStats, error)
}

func (m *mockAdminService) ListUsers(ctx context.Context, params model.ListParams) (*user.UserPage, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, params)
	}
	return &user.UserPage{Users: []*model.User{}, CurrentPage: 1}, nil
}

func (m *mockAdminService) CreateUser(ctx context.Context, in user.CreateUserInput) (*model.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, in)
	}
	return &model.User{ID: 1, Email: in.Email}, nil
}

func (m *mockAdminService) EditUser(ctx context.Context, userID int64, in user.EditUserInput) (*model.User, error) {
	if m.editUserFn != nil {
		return m.editUserFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockAdminService) SetAuthorized(ctx context.Context, userID int64, authorized bool) error {
	if m.setAuthorizedFn != nil {
		return m.setAuthorizedFn(ctx, userID, authorized)
	}
	return nil
}

func (m *mockAdminService) DeleteUser(ctx context.Context, userID int64) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, userID)
	}
	return nil
}

func (m *mockAdminService) Stats(ctx context.Context) (*model.UserStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.UserStats{}, nil
}

var (
	_ AuthServiceInterface     = (*mockAuthService)(nil)
	_ APIKeyRegenerator        = (*mockAuthService)(nil)
	_ ShortURLServiceInterface = (*mockShortURLService)(nil)
	_ NoteServiceInterface     = (*mockNoteService)(nil)
	_ UserServiceInterface     = (*mockUserService)(nil)
	_ AdminServiceInterface    = (*mockAdminService)(nil)
)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID int64) *http.Request {
	return withPrincipal(r, &model.ProjectedUser{
		User:   model.User{ID: userID},
		Fields: []model.UserField{model.FieldID},
	})
}

// withPrincipal はテスト用に認証済みユーザーを注入するヘルパー。
func withPrincipal(r *http.Request, u *model.ProjectedUser) *http.Request {
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), u))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// jsonRequest はJSONボディ付きのリクエストを作るヘルパー。
func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
