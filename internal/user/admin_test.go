package user

import (
	"context"
	"testing"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

func TestService_ListUsers_Defaults(t *testing.T) {
	var got model.ListQuery
	users := &mockUserRepo{
		listFn: func(_ context.Context, q model.ListQuery) ([]*model.User, error) {
			got = q
			return nil, nil
		},
	}
	svc := newTestService(users, nil, nil)

	page, err := svc.ListUsers(context.Background(), model.ListParams{})
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if got.SortBy != "joined" || !got.Descending || got.Page != 1 || got.PageSize != model.PageSize {
		t.Errorf("query = %+v", got)
	}
	if page.Users == nil {
		t.Error("expected empty slice, got nil")
	}
	if page.Direction != "desc" {
		t.Errorf("Direction = %q, want desc", page.Direction)
	}
}

func TestService_ListUsers_InvalidSort(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.ListUsers(context.Background(), model.ListParams{SortBy: "password"})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidSort)
}

func TestService_CreateUser(t *testing.T) {
	var created *model.User
	users := &mockUserRepo{
		createFn: func(_ context.Context, u *model.User) error {
			u.ID = 11
			created = u
			return nil
		},
	}
	svc := newTestService(users, nil, nil)

	user, err := svc.CreateUser(context.Background(), CreateUserInput{
		Email:      "Admin@Example.com",
		Password:   "correct horse",
		Admin:      true,
		Authorized: true,
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.ID != 11 || created.Email != "admin@example.com" {
		t.Errorf("user = %+v", created)
	}
	if created.APIKey != "key-1" {
		t.Errorf("APIKey = %q, want key-1", created.APIKey)
	}
	if created.PasswordHash == nil || !auth.CheckPassword(*created.PasswordHash, "correct horse") {
		t.Error("password hash does not match")
	}
	if created.SessionDuration != model.DefaultSessionDuration {
		t.Errorf("SessionDuration = %d", created.SessionDuration)
	}
	if !created.Admin || !created.Authorized {
		t.Error("expected admin and authorized")
	}
}

// TestService_CreateUser_RetriesOnAPIKeyCollision はAPIキー重複時に再生成することを検証する。
func TestService_CreateUser_RetriesOnAPIKeyCollision(t *testing.T) {
	var tried []string
	users := &mockUserRepo{
		createFn: func(_ context.Context, u *model.User) error {
			tried = append(tried, u.APIKey)
			if len(tried) < 2 {
				return repository.ErrAPIKeyTaken
			}
			return nil
		},
	}
	svc := newTestService(users, nil, nil)

	user, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.APIKey != "key-2" || len(tried) != 2 {
		t.Errorf("tried = %v, APIKey = %q", tried, user.APIKey)
	}
}

func TestService_CreateUser_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	users := &mockUserRepo{
		createFn: func(context.Context, *model.User) error {
			calls++
			return repository.ErrAPIKeyTaken
		},
	}
	svc := newTestService(users, nil, nil)

	if _, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com", Password: "password1"}); err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != maxAPIKeyAttempts {
		t.Errorf("calls = %d, want %d", calls, maxAPIKeyAttempts)
	}
}

func TestService_CreateUser_Validation(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com", Password: "short"})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)

	users := &mockUserRepo{
		createFn: func(context.Context, *model.User) error { return repository.ErrEmailTaken },
	}
	svc = newTestService(users, nil, nil)
	_, err = svc.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com", Password: "password1"})
	assertAPIErrorCode(t, err, model.ErrCodeEmailTaken)
}

func TestService_EditUser_OnlyGivenFields(t *testing.T) {
	var got repository.UserPatch
	users := &mockUserRepo{
		updateFn: func(_ context.Context, _ int64, p repository.UserPatch) error {
			got = p
			return nil
		},
		findByIDFn: func(_ context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	svc := newTestService(users, nil, nil)

	admin := true
	amount, unit := 2, "weeks"
	if _, err := svc.EditUser(context.Background(), 5, EditUserInput{
		Admin:         &admin,
		SessionAmount: &amount,
		SessionUnit:   &unit,
	}); err != nil {
		t.Fatalf("EditUser returned error: %v", err)
	}
	if got.Admin == nil || !*got.Admin {
		t.Error("expected Admin=true in patch")
	}
	if got.SessionDuration == nil || *got.SessionDuration != 2*604800 {
		t.Errorf("SessionDuration = %v", got.SessionDuration)
	}
	if got.Email != nil || got.PasswordHash != nil || got.Authorized != nil {
		t.Errorf("unexpected fields in patch: %+v", got)
	}
}

func TestService_EditUser_DurationNeedsBothParts(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	amount := 3
	_, err := svc.EditUser(context.Background(), 5, EditUserInput{SessionAmount: &amount})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestService_SetAuthorized_UserNotFound(t *testing.T) {
	users := &mockUserRepo{
		updateFn: func(context.Context, int64, repository.UserPatch) error {
			return repository.ErrNotFound
		},
	}
	svc := newTestService(users, nil, nil)

	err := svc.SetAuthorized(context.Background(), 5, true)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

func TestService_DeleteUser(t *testing.T) {
	var deleted int64
	users := &mockUserRepo{
		deleteByIDFn: func(_ context.Context, id int64) ([]string, error) {
			deleted = id
			return nil, nil
		},
	}
	svc := newTestService(users, nil, nil)

	if err := svc.DeleteUser(context.Background(), 8); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if deleted != 8 {
		t.Errorf("deleted = %d, want 8", deleted)
	}

	users.deleteByIDFn = func(context.Context, int64) ([]string, error) { return nil, repository.ErrNotFound }
	err := svc.DeleteUser(context.Background(), 8)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// TestService_DeleteUser_InvalidatesCachedRedirects は管理者による削除でもキャッシュが破棄され、
// 存在しないユーザーの場合は何も破棄しないことを検証する。
func TestService_DeleteUser_InvalidatesCachedRedirects(t *testing.T) {
	users := &mockUserRepo{
		deleteByIDFn: func(context.Context, int64) ([]string, error) {
			return []string{"promo"}, nil
		},
	}
	destCache := &mockDestCache{}
	svc := newTestServiceWithCache(users, nil, nil, destCache)

	if err := svc.DeleteUser(context.Background(), 9); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if len(destCache.deleted) != 1 || destCache.deleted[0] != "promo" {
		t.Errorf("invalidated = %v, want [promo]", destCache.deleted)
	}

	destCache.deleted = nil
	users.deleteByIDFn = func(context.Context, int64) ([]string, error) { return nil, repository.ErrNotFound }
	err := svc.DeleteUser(context.Background(), 9)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
	if len(destCache.deleted) != 0 {
		t.Errorf("invalidated = %v, want none for missing user", destCache.deleted)
	}
}

func TestService_Stats(t *testing.T) {
	users := &mockUserRepo{
		statsFn: func(context.Context) (*model.UserStats, error) {
			return &model.UserStats{URLs: 3, Users: 2, Sessions: 1, Notes: 4}, nil
		},
	}
	svc := newTestService(users, nil, nil)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.URLs != 3 || stats.Notes != 4 {
		t.Errorf("stats = %+v", stats)
	}
}
