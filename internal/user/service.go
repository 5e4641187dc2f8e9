// Package user はアカウント設定、招待コード、管理者向けユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/cache"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

// DefaultInviteLimit は管理者以外が発行できる招待コードの既定の上限。
const DefaultInviteLimit = 5

// Config はServiceの設定。
type Config struct {
	InviteLimit            int // 管理者以外の招待コード上限。0以下はDefaultInviteLimit
	DefaultSessionDuration int // 管理者が作成するユーザーのセッション有効期間（秒）
}

// AccountUpdate はアカウント設定の更新内容。
type AccountUpdate struct {
	Email         string
	SessionAmount int
	SessionUnit   string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	inviteRepo  repository.InviteRepository
	apiKeys     auth.KeyGenerator
	destCache   cache.DestinationCache
	config      Config
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	inviteRepo repository.InviteRepository,
	apiKeys auth.KeyGenerator,
	destCache cache.DestinationCache,
	config Config,
) *Service {
	if destCache == nil {
		destCache = cache.Nop{}
	}
	if config.InviteLimit <= 0 {
		config.InviteLimit = DefaultInviteLimit
	}
	if config.DefaultSessionDuration <= 0 {
		config.DefaultSessionDuration = model.DefaultSessionDuration
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		inviteRepo:  inviteRepo,
		apiKeys:     apiKeys,
		destCache:   destCache,
		config:      config,
	}
}

// Me はユーザー自身の情報を返す。
func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateAccount はメールアドレスとセッション有効期間を変更する。
// 変更後の有効期間は次回ログイン時のセッションから適用される。
func (s *Service) UpdateAccount(ctx context.Context, userID int64, in AccountUpdate) (*model.User, error) {
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	duration, err := ParseSessionDuration(in.SessionAmount, in.SessionUnit)
	if err != nil {
		return nil, err
	}

	if err := s.update(ctx, userID, repository.UserPatch{Email: &email, SessionDuration: &duration}); err != nil {
		return nil, err
	}

	slog.Info("アカウント設定を更新しました",
		slog.Int64("user_id", userID),
		slog.Int("session_duration", duration),
	)
	return s.Me(ctx, userID)
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: urls, notes, invites, identities） → リダイレクト先キャッシュ
func (s *Service) Withdraw(ctx context.Context, userID int64) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.Int64("user_id", userID),
	)

	// 1. セッションを削除し、以降のリクエストを即座に無効にする
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 2. ユーザーを削除し、短縮URLのキャッシュを破棄する
	if err := s.deleteUser(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理が完了しました",
		slog.Int64("user_id", userID),
	)
	return nil
}

// ListSessions はユーザーの有効なセッション一覧を返す。
func (s *Service) ListSessions(ctx context.Context, userID int64) ([]*model.Session, error) {
	sessions, err := s.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗しました: %w", err)
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	return sessions, nil
}

// RevokeSession はユーザー自身のセッションを破棄する。
// 他のユーザーのセッションは存在しないものとして扱う。
func (s *Service) RevokeSession(ctx context.Context, userID int64, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return model.NewSessionNotFoundError()
	}

	err := s.sessionRepo.DeleteForUser(ctx, userID, token)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewSessionNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("セッションを破棄しました", slog.Int64("user_id", userID))
	return nil
}

// ListInvites はユーザーが発行した招待コード一覧を返す。
func (s *Service) ListInvites(ctx context.Context, owner int64) ([]*model.Invite, error) {
	invites, err := s.inviteRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("招待コード一覧の取得に失敗しました: %w", err)
	}
	if invites == nil {
		invites = []*model.Invite{}
	}
	return invites, nil
}

// CreateInvite は招待コードを発行する。
// requiredEmailを指定した場合、そのメールアドレスでの登録にのみ使用できる。
// 管理者以外は発行数の上限を超えられない。
func (s *Service) CreateInvite(ctx context.Context, owner int64, isAdmin bool, requiredEmail string) (*model.Invite, error) {
	invite := &model.Invite{
		Code:  uuid.NewString(),
		Owner: owner,
	}
	if strings.TrimSpace(requiredEmail) != "" {
		email, err := auth.NormalizeEmail(requiredEmail)
		if err != nil {
			return nil, err
		}
		invite.RequiredEmail = &email
	}

	limit := s.config.InviteLimit
	if isAdmin {
		limit = 0
	}

	created, err := s.inviteRepo.CreateWithinLimit(ctx, invite, limit)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewUserNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("招待コードの発行に失敗しました: %w", err)
	}
	if !created {
		return nil, model.NewInviteLimitError(limit)
	}

	slog.Info("招待コードを発行しました",
		slog.Int64("user_id", owner),
		slog.Bool("email_restricted", invite.RequiredEmail != nil),
	)
	return invite, nil
}

// update はpatchを適用し、リポジトリのエラーをAPIエラーに変換する。
func (s *Service) update(ctx context.Context, userID int64, patch repository.UserPatch) error {
	err := s.userRepo.Update(ctx, userID, patch)
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return model.NewEmailTakenError()
	case errors.Is(err, repository.ErrNotFound):
		return model.NewUserNotFoundError()
	case err != nil:
		return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return nil
}

// deleteUser はユーザーを削除し、CASCADE削除された短縮URLのリダイレクト先キャッシュを破棄する。
// キャッシュが残ると削除済みのエイリアスがTTLまでリダイレクトし続けるため、DB削除の直後に行う。
func (s *Service) deleteUser(ctx context.Context, userID int64) error {
	aliases, err := s.userRepo.DeleteByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	for _, alias := range aliases {
		if err := s.destCache.Delete(ctx, alias); err != nil {
			slog.Warn("リダイレクト先キャッシュの破棄に失敗しました",
				slog.Int64("user_id", userID),
				slog.String("alias", alias),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
