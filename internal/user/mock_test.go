package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/linknote/internal/cache"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id int64) (*model.User, error)
	createFn     func(ctx context.Context, user *model.User) error
	updateFn     func(ctx context.Context, id int64, patch repository.UserPatch) error
	listFn       func(ctx context.Context, query model.ListQuery) ([]*model.User, error)
	deleteByIDFn func(ctx context.Context, id int64) ([]string, error)
	statsFn      func(ctx context.Context) (*model.UserStats, error)
}

func (m *mockUserRepo) ProjectBySession(context.Context, string, []model.UserField) (*model.ProjectedUser, error) {
	return nil, nil
}
func (m *mockUserRepo) ProjectByAPIKey(context.Context, string, []model.UserField) (*model.ProjectedUser, error) {
	return nil, nil
}
func (m *mockUserRepo) APIKeyExists(context.Context, string) (bool, error) {
	return false, nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(context.Context, string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) CreateWithInvite(context.Context, *model.User, string) error {
	return nil
}
func (m *mockUserRepo) CreateWithIdentity(context.Context, *model.User, *model.Identity) error {
	return nil
}
func (m *mockUserRepo) Update(ctx context.Context, id int64, patch repository.UserPatch) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, patch)
	}
	return nil
}
func (m *mockUserRepo) List(ctx context.Context, query model.ListQuery) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, query)
	}
	return nil, nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id int64) ([]string, error) {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) Stats(ctx context.Context) (*model.UserStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.UserStats{}, nil
}

type mockSessionRepo struct {
	listByUserIDFn   func(ctx context.Context, userID int64) ([]*model.Session, error)
	deleteForUserFn  func(ctx context.Context, userID int64, token string) error
	deleteByUserIDFn func(ctx context.Context, userID int64) error
}

func (m *mockSessionRepo) Create(context.Context, *model.Session) error {
	return nil
}
func (m *mockSessionRepo) Exists(context.Context, string) (bool, error) {
	return false, nil
}
func (m *mockSessionRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Session, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockSessionRepo) DeleteByToken(context.Context, string) error {
	return nil
}
func (m *mockSessionRepo) DeleteForUser(ctx context.Context, userID int64, token string) error {
	if m.deleteForUserFn != nil {
		return m.deleteForUserFn(ctx, userID, token)
	}
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockInviteRepo struct {
	createWithinLimitFn func(ctx context.Context, invite *model.Invite, limit int) (bool, error)
	listByOwnerFn       func(ctx context.Context, owner int64) ([]*model.Invite, error)
}

func (m *mockInviteRepo) CreateWithinLimit(ctx context.Context, invite *model.Invite, limit int) (bool, error) {
	if m.createWithinLimitFn != nil {
		return m.createWithinLimitFn(ctx, invite, limit)
	}
	return true, nil
}
func (m *mockInviteRepo) ListByOwner(ctx context.Context, owner int64) ([]*model.Invite, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, owner)
	}
	return nil, nil
}

// seqKeys は順番にキーを返すKeyGenerator。
type seqKeys struct {
	keys []string
	n    int
}

func (g *seqKeys) Generate(context.Context) (string, error) {
	if g.n >= len(g.keys) {
		return "", errors.New("no more keys")
	}
	k := g.keys[g.n]
	g.n++
	return k, nil
}

// mockDestCache はDeleteで破棄されたエイリアスを記録する。
type mockDestCache struct {
	deleted  []string
	deleteFn func(ctx context.Context, alias string) error
}

func (m *mockDestCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (m *mockDestCache) Set(context.Context, string, string) error         { return nil }
func (m *mockDestCache) Delete(ctx context.Context, alias string) error {
	m.deleted = append(m.deleted, alias)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, alias)
	}
	return nil
}

var (
	_ cache.DestinationCache = (*mockDestCache)(nil)

	_ repository.UserRepository    = (*mockUserRepo)(nil)
	_ repository.SessionRepository = (*mockSessionRepo)(nil)
	_ repository.InviteRepository  = (*mockInviteRepo)(nil)
)

func newTestService(users *mockUserRepo, sessions *mockSessionRepo, invites *mockInviteRepo) *Service {
	return newTestServiceWithCache(users, sessions, invites, nil)
}

func newTestServiceWithCache(users *mockUserRepo, sessions *mockSessionRepo, invites *mockInviteRepo, destCache *mockDestCache) *Service {
	if users == nil {
		users = &mockUserRepo{}
	}
	if sessions == nil {
		sessions = &mockSessionRepo{}
	}
	if invites == nil {
		invites = &mockInviteRepo{}
	}
	var dc cache.DestinationCache
	if destCache != nil {
		dc = destCache
	}
	return NewService(users, sessions, invites,
		&seqKeys{keys: []string{"key-1", "key-2", "key-3", "key-4"}}, dc, Config{})
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}
