// Package shortener は短縮URLの作成・編集・解決のドメインロジックを提供する。
package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/linknote/internal/cache"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
	"github.com/hitoshi/linknote/internal/security"
)

const (
	// maxGeneratedAttempts は自動生成したエイリアスが登録時に衝突した場合の再試行回数。
	maxGeneratedAttempts = 3
	// clickTimeout はクリック数更新に与える時間。リクエストとは独立して数える。
	clickTimeout = 5 * time.Second
)

// AliasGenerator は未使用のエイリアスを生成する。shortcode.Generatorが実装する。
type AliasGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// URLValidator はリダイレクト先URLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Recorder は短縮URLに関するメトリクスを記録する。
type Recorder interface {
	RecordShortURLCreated()
	RecordRedirect(cacheHit bool)
}

// Config はServiceの設定。
type Config struct {
	BaseURL string // 短縮URLの前に付けるURL（例: https://sho.rt）
}

// CreateInput は短縮URL作成の入力。Aliasが空の場合は自動生成する。
type CreateInput struct {
	Alias       string
	Destination string
}

// EditInput は短縮URL編集の入力。
// Aliasがnilの場合は変更せず、空文字の場合は新しいエイリアスを自動生成する。
type EditInput struct {
	Alias       *string
	Destination string
	ResetClicks bool
}

// Page は短縮URL一覧の1ページ分。
type Page struct {
	URLs        []*model.ShortURL
	CurrentPage int
	MaxPages    int
	SortBy      string
	Direction   string
}

// Service は短縮URLのビジネスロジックを提供する。
type Service struct {
	repo      repository.ShortURLRepository
	aliases   AliasGenerator
	validator URLValidator
	cache     cache.DestinationCache
	recorder  Recorder
	config    Config

	clicks sync.WaitGroup
}

// NewService はServiceを生成する。cacheがnilの場合はキャッシュしない。
func NewService(
	repo repository.ShortURLRepository,
	aliases AliasGenerator,
	validator URLValidator,
	destCache cache.DestinationCache,
	recorder Recorder,
	config Config,
) *Service {
	if destCache == nil {
		destCache = cache.Nop{}
	}
	return &Service{
		repo:      repo,
		aliases:   aliases,
		validator: validator,
		cache:     destCache,
		recorder:  recorder,
		config:    config,
	}
}

// Create は短縮URLを作成する。
// 指定されたエイリアスが使用済みの場合はAliasTakenを返す。
// 自動生成したエイリアスが登録時に衝突した場合は生成し直す。
func (s *Service) Create(ctx context.Context, owner int64, in CreateInput) (*model.ShortURL, error) {
	if err := s.validateDestination(in.Destination); err != nil {
		return nil, err
	}

	generated := in.Alias == ""
	if !generated && !ValidateAlias(in.Alias) {
		return nil, model.NewInvalidAliasError(in.Alias)
	}

	u := &model.ShortURL{
		Key:         in.Alias,
		Owner:       owner,
		Destination: in.Destination,
	}

	for attempt := 0; ; attempt++ {
		if generated {
			alias, err := s.aliases.Generate(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to generate alias: %w", err)
			}
			u.Key = alias
		}

		err := s.repo.Create(ctx, u)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrAliasTaken) {
			return nil, fmt.Errorf("failed to create short url: %w", err)
		}
		if !generated {
			return nil, model.NewAliasTakenError(u.Key)
		}
		if attempt+1 >= maxGeneratedAttempts {
			return nil, fmt.Errorf("failed to find a free alias after %d attempts", maxGeneratedAttempts)
		}
	}

	if s.recorder != nil {
		s.recorder.RecordShortURLCreated()
	}
	slog.Info("short url created",
		slog.Int64("user_id", owner),
		slog.String("alias", u.Key),
	)
	return u, nil
}

// List は所有者の短縮URL一覧を返す。
func (s *Service) List(ctx context.Context, owner int64, params model.ListParams) (*Page, error) {
	query, err := params.Query(func(v string) bool {
		return model.ShortURLSort(v).Valid()
	}, string(model.SortByCreationDate))
	if err != nil {
		return nil, err
	}

	urls, err := s.repo.ListByOwner(ctx, owner, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list short urls: %w", err)
	}
	total, err := s.repo.CountByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to count short urls: %w", err)
	}

	if urls == nil {
		urls = []*model.ShortURL{}
	}
	return &Page{
		URLs:        urls,
		CurrentPage: query.Page,
		MaxPages:    model.MaxPages(total, query.PageSize),
		SortBy:      query.SortBy,
		Direction:   query.Direction(),
	}, nil
}

// Get は所有者の短縮URLを返す。他人の短縮URLは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, owner int64, key string) (*model.ShortURL, error) {
	u, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find short url: %w", err)
	}
	if u == nil || u.Owner != owner {
		return nil, model.NewShortURLNotFoundError(key)
	}
	return u, nil
}

// Edit は所有者の短縮URLのエイリアスとリダイレクト先を変更する。
func (s *Service) Edit(ctx context.Context, owner int64, key string, in EditInput) (*model.ShortURL, error) {
	if err := s.validateDestination(in.Destination); err != nil {
		return nil, err
	}

	patch := repository.ShortURLPatch{
		Destination: &in.Destination,
		ResetClicks: in.ResetClicks,
	}
	if in.Alias != nil {
		newKey := *in.Alias
		if newKey == "" {
			generated, err := s.aliases.Generate(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to generate alias: %w", err)
			}
			newKey = generated
		} else if newKey != key && !ValidateAlias(newKey) {
			return nil, model.NewInvalidAliasError(newKey)
		}
		patch.NewKey = &newKey
	}

	updated, err := s.repo.Update(ctx, owner, key, patch)
	if errors.Is(err, repository.ErrAliasTaken) {
		return nil, model.NewAliasTakenError(*patch.NewKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update short url: %w", err)
	}
	if updated == nil {
		return nil, model.NewShortURLNotFoundError(key)
	}

	s.invalidate(ctx, key)
	if updated.Key != key {
		s.invalidate(ctx, updated.Key)
	}

	slog.Info("short url edited",
		slog.Int64("user_id", owner),
		slog.String("alias", key),
		slog.String("new_alias", updated.Key),
	)
	return updated, nil
}

// Delete は所有者の短縮URLを削除する。
func (s *Service) Delete(ctx context.Context, owner int64, key string) error {
	err := s.repo.Delete(ctx, owner, key)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewShortURLNotFoundError(key)
	}
	if err != nil {
		return fmt.Errorf("failed to delete short url: %w", err)
	}

	s.invalidate(ctx, key)
	slog.Info("short url deleted",
		slog.Int64("user_id", owner),
		slog.String("alias", key),
	)
	return nil
}

// Resolve はエイリアスのリダイレクト先を返し、クリック数を非同期で1増やす。
// クリック数の更新はリクエストのキャンセルに影響されない。
func (s *Service) Resolve(ctx context.Context, key string) (string, error) {
	destination, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("destination cache lookup failed",
			slog.String("alias", key),
			slog.String("error", err.Error()),
		)
	}

	if !hit {
		u, err := s.repo.FindByKey(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to find short url: %w", err)
		}
		if u == nil {
			return "", model.NewShortURLNotFoundError(key)
		}
		destination = u.Destination

		if err := s.cache.Set(ctx, key, destination); err != nil {
			slog.Warn("failed to cache destination",
				slog.String("alias", key),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.recorder != nil {
		s.recorder.RecordRedirect(hit)
	}
	s.countClick(ctx, key)
	return destination, nil
}

// countClick はリクエストから切り離したコンテキストでクリック数を更新する。
func (s *Service) countClick(ctx context.Context, key string) {
	detached := context.WithoutCancel(ctx)

	s.clicks.Add(1)
	go func() {
		defer s.clicks.Done()

		ctx, cancel := context.WithTimeout(detached, clickTimeout)
		defer cancel()

		if err := s.repo.IncrementClicks(ctx, key); err != nil {
			slog.Error("failed to increment clicks",
				slog.String("alias", key),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait は実行中のクリック数更新が終わるまで待つ。シャットダウン時に呼ぶ。
func (s *Service) Wait() {
	s.clicks.Wait()
}

// ShortLink はエイリアスから公開URLを組み立てる。
func (s *Service) ShortLink(key string) string {
	return strings.TrimRight(s.config.BaseURL, "/") + "/" + key
}

func (s *Service) validateDestination(destination string) error {
	if destination == "" {
		return model.NewValidationError("destination", "必須です")
	}
	if err := s.validator.ValidateURL(destination); err != nil {
		if errors.Is(err, security.ErrBlockedDestination) {
			return model.NewSSRFBlockedError()
		}
		return model.NewInvalidURLError(err.Error())
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("failed to invalidate cached destination",
			slog.String("alias", key),
			slog.String("error", err.Error()),
		)
	}
}
