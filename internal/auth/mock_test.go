package auth

import (
	"context"

	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	projectBySessionFn   func(ctx context.Context, token string, fields []model.UserField) (*model.ProjectedUser, error)
	projectByAPIKeyFn    func(ctx context.Context, apiKey string, fields []model.UserField) (*model.ProjectedUser, error)
	apiKeyExistsFn       func(ctx context.Context, apiKey string) (bool, error)
	findByIDFn           func(ctx context.Context, id int64) (*model.User, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	createWithInviteFn   func(ctx context.Context, user *model.User, code string) error
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
	updateFn             func(ctx context.Context, id int64, patch repository.UserPatch) error
}

func (m *mockUserRepo) ProjectBySession(ctx context.Context, token string, fields []model.UserField) (*model.ProjectedUser, error) {
	if m.projectBySessionFn != nil {
		return m.projectBySessionFn(ctx, token, fields)
	}
	return nil, nil
}

func (m *mockUserRepo) ProjectByAPIKey(ctx context.Context, apiKey string, fields []model.UserField) (*model.ProjectedUser, error) {
	if m.projectByAPIKeyFn != nil {
		return m.projectByAPIKeyFn(ctx, apiKey, fields)
	}
	return nil, nil
}

func (m *mockUserRepo) APIKeyExists(ctx context.Context, apiKey string) (bool, error) {
	if m.apiKeyExistsFn != nil {
		return m.apiKeyExistsFn(ctx, apiKey)
	}
	return false, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(_ context.Context, _ *model.User) error {
	return nil
}

func (m *mockUserRepo) CreateWithInvite(ctx context.Context, user *model.User, code string) error {
	if m.createWithInviteFn != nil {
		return m.createWithInviteFn(ctx, user, code)
	}
	return nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, id int64, patch repository.UserPatch) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, patch)
	}
	return nil
}

func (m *mockUserRepo) List(_ context.Context, _ model.ListQuery) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ int64) ([]string, error) {
	return nil, nil
}

func (m *mockUserRepo) Stats(_ context.Context) (*model.UserStats, error) {
	return &model.UserStats{}, nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(_ context.Context, _ *model.Identity) error {
	return nil
}

type mockSessionRepo struct {
	createFn        func(ctx context.Context, session *model.Session) error
	existsFn        func(ctx context.Context, token string) (bool, error)
	deleteByTokenFn func(ctx context.Context, token string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) Exists(ctx context.Context, token string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, token)
	}
	return false, nil
}

func (m *mockSessionRepo) ListByUserID(_ context.Context, _ int64) ([]*model.Session, error) {
	return nil, nil
}

func (m *mockSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if m.deleteByTokenFn != nil {
		return m.deleteByTokenFn(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) DeleteForUser(_ context.Context, _ int64, _ string) error {
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ int64) error {
	return nil
}

type mockOAuthProvider struct {
	name           string
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) Name() string {
	return m.name
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// seqKeys は呼び出しごとに用意したキーを順に返す。
type seqKeys struct {
	keys  []string
	calls int
}

func (k *seqKeys) Generate(_ context.Context) (string, error) {
	key := k.keys[k.calls%len(k.keys)]
	k.calls++
	return key, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
var _ KeyGenerator = (*seqKeys)(nil)
