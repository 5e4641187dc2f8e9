package note

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/notecrypt"
	"github.com/hitoshi/linknote/internal/repository"
	"github.com/hitoshi/linknote/internal/security"
)

type mockNoteRepo struct {
	createFn       func(ctx context.Context, n *model.Note) error
	findByIDFn     func(ctx context.Context, id string) (*model.NoteWithOwner, error)
	listByOwnerFn  func(ctx context.Context, owner int64, q model.ListQuery) ([]*model.Note, error)
	countByOwnerFn func(ctx context.Context, owner int64) (int, error)
	deleteFn       func(ctx context.Context, owner int64, id string) error

	mu      sync.Mutex
	clicked []string
}

func (m *mockNoteRepo) Create(ctx context.Context, n *model.Note) error {
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	return nil
}

func (m *mockNoteRepo) FindByID(ctx context.Context, id string) (*model.NoteWithOwner, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockNoteRepo) ListByOwner(ctx context.Context, owner int64, q model.ListQuery) ([]*model.Note, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, owner, q)
	}
	return nil, nil
}

func (m *mockNoteRepo) CountByOwner(ctx context.Context, owner int64) (int, error) {
	if m.countByOwnerFn != nil {
		return m.countByOwnerFn(ctx, owner)
	}
	return 0, nil
}

func (m *mockNoteRepo) Delete(ctx context.Context, owner int64, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, id)
	}
	return nil
}

func (m *mockNoteRepo) IncrementClicks(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicked = append(m.clicked, id)
	return nil
}

func (m *mockNoteRepo) clickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clicked)
}

var _ repository.NoteRepository = (*mockNoteRepo)(nil)

type decryptCounter struct{ failures int }

func (d *decryptCounter) RecordNoteDecryptFailure() { d.failures++ }

const testNoteID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

// storedNote は指定内容のノートを返すリポジトリを用意する。
func storedNote(n model.NoteWithOwner) *mockNoteRepo {
	return &mockNoteRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.NoteWithOwner, error) {
			if id != n.ID {
				return nil, nil
			}
			return &n, nil
		},
	}
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func TestEncodeDecodeID(t *testing.T) {
	public := EncodeID(testNoteID)
	if strings.ContainsAny(public, "+/") {
		t.Errorf("public id should be url safe: %s", public)
	}

	got, err := DecodeID(public)
	if err != nil || got != testNoteID {
		t.Fatalf("DecodeID = (%q, %v), want %q", got, err, testNoteID)
	}

	for _, bad := range []string{"", "!!!", EncodeID("not-a-uuid")} {
		_, err := DecodeID(bad)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidNoteID)
	}
}

func TestService_Create_PlainNote(t *testing.T) {
	var saved *model.Note
	repo := &mockNoteRepo{createFn: func(ctx context.Context, n *model.Note) error {
		saved = n
		return nil
	}}
	svc := NewService(repo, security.NewNoteSanitizer(), nil)

	n, err := svc.Create(context.Background(), 3, CreateInput{Name: " <b>メモ</b> ", Content: "hello", Private: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved != n || n.Name != "メモ" || string(n.Content) != "hello" || n.HasPassword || !n.Private || n.Owner != 3 {
		t.Errorf("saved note = %+v", n)
	}
	if _, err := DecodeID(EncodeID(n.ID)); err != nil {
		t.Errorf("note id should be a uuid: %v", err)
	}
}

func TestService_Create_EncryptsWithPassword(t *testing.T) {
	repo := &mockNoteRepo{}
	svc := NewService(repo, security.NewNoteSanitizer(), nil)

	n, err := svc.Create(context.Background(), 3, CreateInput{Name: "secret", Content: "hidden text", Password: "pw"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !n.HasPassword {
		t.Error("HasPassword should be true")
	}
	if strings.Contains(string(n.Content), "hidden text") {
		t.Error("content should be encrypted")
	}
	plain, err := notecrypt.Decrypt(n.Content, []byte("pw"))
	if err != nil || string(plain) != "hidden text" {
		t.Errorf("Decrypt = (%q, %v)", plain, err)
	}
}

func TestService_Create_Validation(t *testing.T) {
	svc := NewService(&mockNoteRepo{}, security.NewNoteSanitizer(), nil)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"名前なし", CreateInput{Content: "x"}},
		{"タグだけの名前", CreateInput{Name: "<i></i>", Content: "x"}},
		{"長すぎる名前", CreateInput{Name: strings.Repeat("名", security.MaxNoteNameLength+1), Content: "x"}},
		{"本文なし", CreateInput{Name: "n"}},
		{"長すぎる本文", CreateInput{Name: "n", Content: strings.Repeat("a", MaxContentLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), 1, tt.in)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)
		})
	}
}

func TestService_View_PublicNote(t *testing.T) {
	repo := storedNote(model.NoteWithOwner{
		Note:       model.Note{ID: testNoteID, Owner: 1, Name: "n", Content: []byte("<script>x</script>hi"), ShareEmail: true},
		OwnerEmail: "owner@example.com",
	})
	svc := NewService(repo, security.NewNoteSanitizer(), nil)

	v, err := svc.View(context.Background(), ViewInput{PublicID: EncodeID(testNoteID)})
	svc.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Content != "<script>x</script>hi" {
		t.Errorf("Content = %q, want raw content", v.Content)
	}
	if strings.Contains(v.ContentHTML, "<script") {
		t.Errorf("ContentHTML should be sanitized: %q", v.ContentHTML)
	}
	if v.Email == nil || *v.Email != "owner@example.com" {
		t.Errorf("Email = %v, want shared owner email", v.Email)
	}
	if repo.clickCount() != 1 {
		t.Errorf("clicks = %d, want 1", repo.clickCount())
	}
}

func TestService_View_HidesEmailUnlessShared(t *testing.T) {
	repo := storedNote(model.NoteWithOwner{
		Note:       model.Note{ID: testNoteID, Owner: 1, Name: "n", Content: []byte("c")},
		OwnerEmail: "owner@example.com",
	})
	svc := NewService(repo, security.NewNoteSanitizer(), nil)

	v, err := svc.View(context.Background(), ViewInput{PublicID: EncodeID(testNoteID)})
	svc.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Email != nil {
		t.Errorf("Email = %v, want nil", *v.Email)
	}
}

func TestService_View_PrivateNote(t *testing.T) {
	repo := storedNote(model.NoteWithOwner{Note: model.Note{ID: testNoteID, Owner: 5, Name: "n", Content: []byte("c"), Private: true}})
	svc := NewService(repo, security.NewNoteSanitizer(), nil)
	public := EncodeID(testNoteID)

	_, err := svc.View(context.Background(), ViewInput{PublicID: public})
	assertAPIErrorCode(t, err, model.ErrCodeNotePrivate)

	_, err = svc.View(context.Background(), ViewInput{PublicID: public, ViewerID: int64Ptr(6)})
	assertAPIErrorCode(t, err, model.ErrCodeNotePrivate)

	if _, err := svc.View(context.Background(), ViewInput{PublicID: public, ViewerID: int64Ptr(5)}); err != nil {
		t.Errorf("owner should view private note: %v", err)
	}
	svc.Wait()
	if repo.clickCount() != 1 {
		t.Errorf("only the successful view should count, got %d", repo.clickCount())
	}
}

func TestService_View_PasswordProtected(t *testing.T) {
	stored, err := notecrypt.Encrypt([]byte("secret body"), []byte("right"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	repo := storedNote(model.NoteWithOwner{Note: model.Note{ID: testNoteID, Owner: 1, Name: "n", Content: stored, HasPassword: true}})
	rec := &decryptCounter{}
	svc := NewService(repo, security.NewNoteSanitizer(), rec)
	public := EncodeID(testNoteID)

	_, err = svc.View(context.Background(), ViewInput{PublicID: public})
	assertAPIErrorCode(t, err, model.ErrCodePasswordRequired)

	_, err = svc.View(context.Background(), ViewInput{PublicID: public, Password: strPtr("wrong")})
	assertAPIErrorCode(t, err, model.ErrCodeIncorrectPassword)
	if rec.failures != 1 {
		t.Errorf("decrypt failures = %d, want 1", rec.failures)
	}

	v, err := svc.View(context.Background(), ViewInput{PublicID: public, Password: strPtr("right")})
	svc.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Content != "secret body" {
		t.Errorf("Content = %q", v.Content)
	}
}

func TestService_View_NotFound(t *testing.T) {
	svc := NewService(&mockNoteRepo{}, security.NewNoteSanitizer(), nil)

	_, err := svc.View(context.Background(), ViewInput{PublicID: EncodeID(testNoteID)})
	assertAPIErrorCode(t, err, model.ErrCodeNoteNotFound)

	_, err = svc.Info(context.Background(), "garbage!")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidNoteID)
}

func TestService_Info(t *testing.T) {
	repo := storedNote(model.NoteWithOwner{Note: model.Note{ID: testNoteID, HasPassword: true, Private: true}})
	svc := NewService(repo, security.NewNoteSanitizer(), nil)

	info, err := svc.Info(context.Background(), EncodeID(testNoteID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.HasPassword || !info.Private {
		t.Errorf("info = %+v", info)
	}
}

func TestService_Delete(t *testing.T) {
	var gotID string
	repo := &mockNoteRepo{deleteFn: func(ctx context.Context, owner int64, id string) error {
		gotID = id
		if owner != 1 {
			return repository.ErrNotFound
		}
		return nil
	}}
	svc := NewService(repo, security.NewNoteSanitizer(), nil)

	if err := svc.Delete(context.Background(), 1, EncodeID(testNoteID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != testNoteID {
		t.Errorf("deleted id = %q, want %q", gotID, testNoteID)
	}

	err := svc.Delete(context.Background(), 2, EncodeID(testNoteID))
	assertAPIErrorCode(t, err, model.ErrCodeNoteNotFound)
}

func TestService_List(t *testing.T) {
	var gotQuery model.ListQuery
	repo := &mockNoteRepo{
		listByOwnerFn: func(ctx context.Context, owner int64, q model.ListQuery) ([]*model.Note, error) {
			gotQuery = q
			return nil, nil
		},
		countByOwnerFn: func(ctx context.Context, owner int64) (int, error) { return 60, nil },
	}
	svc := NewService(repo, security.NewNoteSanitizer(), nil)

	page, err := svc.List(context.Background(), 1, model.ListParams{SortBy: "name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery.SortBy != "name" || !gotQuery.Descending {
		t.Errorf("query = %+v", gotQuery)
	}
	if page.Notes == nil || page.MaxPages != 2 {
		t.Errorf("page = %+v", page)
	}

	_, err = svc.List(context.Background(), 1, model.ListParams{SortBy: "content"})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidSort)
}
