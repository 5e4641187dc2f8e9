// Package note はノート（ペーストビン）の作成と閲覧のドメインロジックを提供する。
// パスワード付きノートの本文はnotecryptで暗号化して保存する。
package note

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/notecrypt"
	"github.com/hitoshi/linknote/internal/repository"
	"github.com/hitoshi/linknote/internal/security"
)

const (
	// MaxContentLength はノート本文の最大文字数。
	MaxContentLength = 5000

	clickTimeout = 5 * time.Second
)

// Sanitizer はノート名と表示用HTMLのサニタイズを行う。
type Sanitizer interface {
	SanitizeName(name string) string
	RenderContent(content string) string
}

// Recorder はノートに関するメトリクスを記録する。
type Recorder interface {
	RecordNoteDecryptFailure()
}

// CreateInput はノート作成の入力。Passwordが空の場合は暗号化しない。
type CreateInput struct {
	Name       string
	Content    string
	Password   string
	ShareEmail bool
	Private    bool
}

// ViewInput はノート閲覧の入力。
type ViewInput struct {
	PublicID string
	ViewerID *int64  // 未ログインの場合はnil
	Password *string // 指定がない場合はnil
}

// View は閲覧者に返すノートの内容。
type View struct {
	ID          string
	Name        string
	Email       *string // share_emailが有効な場合のみ
	Content     string
	ContentHTML string
}

// Info は本文を含まないノートの概要。閲覧前の画面で使用する。
type Info struct {
	ID          string
	HasPassword bool
	Private     bool
}

// Page はノート一覧の1ページ分。
type Page struct {
	Notes       []*model.Note
	CurrentPage int
	MaxPages    int
	SortBy      string
	Direction   string
}

// Service はノートのビジネスロジックを提供する。
type Service struct {
	repo      repository.NoteRepository
	sanitizer Sanitizer
	recorder  Recorder

	clicks sync.WaitGroup
}

// NewService はServiceを生成する。
func NewService(repo repository.NoteRepository, sanitizer Sanitizer, recorder Recorder) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		recorder:  recorder,
	}
}

// Create はノートを作成する。
func (s *Service) Create(ctx context.Context, owner int64, in CreateInput) (*model.Note, error) {
	name := s.sanitizer.SanitizeName(in.Name)
	if n := utf8.RuneCountInString(name); n == 0 || n > security.MaxNoteNameLength {
		return nil, model.NewValidationError("name", fmt.Sprintf("1〜%d文字で指定してください", security.MaxNoteNameLength))
	}
	if n := utf8.RuneCountInString(in.Content); n == 0 || n > MaxContentLength {
		return nil, model.NewValidationError("content", fmt.Sprintf("1〜%d文字で指定してください", MaxContentLength))
	}

	content := []byte(in.Content)
	hasPassword := in.Password != ""
	if hasPassword {
		encrypted, err := notecrypt.Encrypt(content, []byte(in.Password))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt note: %w", err)
		}
		content = encrypted
	}

	n := &model.Note{
		ID:          uuid.NewString(),
		Owner:       owner,
		Name:        name,
		Content:     content,
		HasPassword: hasPassword,
		ShareEmail:  in.ShareEmail,
		Private:     in.Private,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	slog.Info("note created",
		slog.Int64("user_id", owner),
		slog.String("note_id", n.ID),
		slog.Bool("has_password", hasPassword),
	)
	return n, nil
}

// List は所有者のノート一覧を返す。
func (s *Service) List(ctx context.Context, owner int64, params model.ListParams) (*Page, error) {
	query, err := params.Query(func(v string) bool {
		return model.NoteSort(v).Valid()
	}, string(model.NoteSortByCreationDate))
	if err != nil {
		return nil, err
	}

	notes, err := s.repo.ListByOwner(ctx, owner, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	total, err := s.repo.CountByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}

	if notes == nil {
		notes = []*model.Note{}
	}
	return &Page{
		Notes:       notes,
		CurrentPage: query.Page,
		MaxPages:    model.MaxPages(total, query.PageSize),
		SortBy:      query.SortBy,
		Direction:   query.Direction(),
	}, nil
}

// Delete は所有者のノートを削除する。
func (s *Service) Delete(ctx context.Context, owner int64, publicID string) error {
	id, err := DecodeID(publicID)
	if err != nil {
		return err
	}

	err = s.repo.Delete(ctx, owner, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewNoteNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	slog.Info("note deleted",
		slog.Int64("user_id", owner),
		slog.String("note_id", id),
	)
	return nil
}

// Info はノートの概要を返す。本文は復号しない。
func (s *Service) Info(ctx context.Context, publicID string) (*Info, error) {
	n, err := s.find(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return &Info{ID: publicID, HasPassword: n.HasPassword, Private: n.Private}, nil
}

// View はノートの本文を返し、閲覧数を非同期で1増やす。
// 非公開ノートは所有者のみ、パスワード付きノートは正しいパスワードでのみ閲覧できる。
// パスワードが違う場合はIncorrectPasswordを返す。
func (s *Service) View(ctx context.Context, in ViewInput) (*View, error) {
	n, err := s.find(ctx, in.PublicID)
	if err != nil {
		return nil, err
	}

	if n.Private && (in.ViewerID == nil || *in.ViewerID != n.Owner) {
		return nil, model.NewNotePrivateError()
	}

	content := n.Content
	if n.HasPassword {
		if in.Password == nil {
			return nil, model.NewPasswordRequiredError()
		}
		decrypted, err := notecrypt.Decrypt(n.Content, []byte(*in.Password))
		if errors.Is(err, notecrypt.ErrInvalidToken) {
			if s.recorder != nil {
				s.recorder.RecordNoteDecryptFailure()
			}
			return nil, model.NewIncorrectPasswordError()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt note: %w", err)
		}
		content = decrypted
	}

	view := &View{
		ID:          in.PublicID,
		Name:        n.Name,
		Content:     string(content),
		ContentHTML: s.sanitizer.RenderContent(string(content)),
	}
	if n.ShareEmail {
		email := n.OwnerEmail
		view.Email = &email
	}

	s.countClick(ctx, n.ID)
	return view, nil
}

// Wait は実行中の閲覧数更新が終わるまで待つ。
func (s *Service) Wait() {
	s.clicks.Wait()
}

func (s *Service) find(ctx context.Context, publicID string) (*model.NoteWithOwner, error) {
	id, err := DecodeID(publicID)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	if n == nil {
		return nil, model.NewNoteNotFoundError()
	}
	return n, nil
}

func (s *Service) countClick(ctx context.Context, id string) {
	detached := context.WithoutCancel(ctx)

	s.clicks.Add(1)
	go func() {
		defer s.clicks.Done()

		ctx, cancel := context.WithTimeout(detached, clickTimeout)
		defer cancel()

		if err := s.repo.IncrementClicks(ctx, id); err != nil {
			slog.Error("failed to increment note clicks",
				slog.String("note_id", id),
				slog.String("error", err.Error()),
			)
		}
	}()
}
