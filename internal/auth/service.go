// Package auth は認証情報の検証、ルートごとの認可、ログインとセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

// maxAPIKeyAttempts はAPIキーの一意制約違反時に再生成する回数。
const maxAPIKeyAttempts = 3

// KeyGenerator はAPIキーを生成する。
type KeyGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // ユーザーに設定がない場合のセッション有効期間（秒）
}

// SessionMeta はセッション作成時に記録するクライアント情報。
type SessionMeta struct {
	UserAgent string
	IP        string
}

// SignupInput はパスワード登録の入力。
type SignupInput struct {
	Email      string
	Password   string
	InviteCode string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers   Providers
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	apiKeys     KeyGenerator
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	providers Providers,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	apiKeys KeyGenerator,
	config ServiceConfig,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = model.DefaultSessionDuration
	}
	return &Service{
		providers:   providers,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		apiKeys:     apiKeys,
		config:      config,
	}
}

// Signup は招待コードを使ってパスワードユーザーを登録し、セッションを発行する。
// 招待コードの消費はユーザー作成と同一トランザクションで行う。
func (s *Service) Signup(ctx context.Context, in SignupInput, meta SessionMeta) (*model.Session, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(in.InviteCode); err != nil {
		return nil, model.NewInviteInvalidError()
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:           email,
		PasswordHash:    &hash,
		SessionDuration: s.config.SessionMaxAge,
	}
	err = s.createWithAPIKey(ctx, user, func(u *model.User) error {
		return s.userRepo.CreateWithInvite(ctx, u, in.InviteCode)
	})
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return nil, model.NewEmailTakenError()
	case errors.Is(err, repository.ErrInviteUnavailable):
		return nil, model.NewInviteInvalidError()
	case err != nil:
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user signed up",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return s.createSession(ctx, user, meta)
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string, meta SessionMeta) (*model.Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == nil || !CheckPassword(*user.PasswordHash, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("provider", "password"),
	)

	return s.createSession(ctx, user, meta)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session token is required")
	}
	if _, err := uuid.Parse(token); err != nil {
		// UUIDでないトークンに対応する行は存在しない
		return nil
	}

	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// ProviderNames は利用可能なOAuthプロバイダー名を返す。
func (s *Service) ProviderNames() []string {
	return s.providers.Names()
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers.Get(provider)
	if !ok {
		return "", model.NewUnknownProviderError(provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録の場合はusersレコードとidentitiesレコードを同時に作成する。
// 同じメールアドレスのユーザーが既にいる場合は紐付けずにEmailTakenを返す。
func (s *Service) HandleCallback(ctx context.Context, provider, code string, meta SessionMeta) (*model.Session, error) {
	p, ok := s.providers.Get(provider)
	if !ok {
		return nil, model.NewUnknownProviderError(provider)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User
	if identity != nil {
		// 3a. 既存ユーザー
		user, err = s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity %s has no user", identity.ID)
		}
		slog.Info("user logged in",
			slog.Int64("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 3b. 新規ユーザー
		user, err = s.createOAuthUser(ctx, userInfo)
		if err != nil {
			return nil, err
		}
		slog.Info("new user created",
			slog.Int64("user_id", user.ID),
			slog.String("email", user.Email),
			slog.String("provider", userInfo.Provider),
		)
	}

	// 4. セッションを発行
	return s.createSession(ctx, user, meta)
}

func (s *Service) createOAuthUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	email, err := NormalizeEmail(info.Email)
	if err != nil {
		return nil, model.NewValidationError("email", "OAuthプロバイダーからメールアドレスを取得できませんでした")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	user := &model.User{
		Email:           email,
		SessionDuration: s.config.SessionMaxAge,
	}
	identity := &model.Identity{
		ID:             uuid.NewString(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      time.Now(),
	}

	err = s.createWithAPIKey(ctx, user, func(u *model.User) error {
		return s.userRepo.CreateWithIdentity(ctx, u, identity)
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil, model.NewEmailTakenError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}
	return user, nil
}

// RegenerateAPIKey は新しいAPIキーを発行して置き換える。
func (s *Service) RegenerateAPIKey(ctx context.Context, userID int64) (string, error) {
	for attempt := 0; attempt < maxAPIKeyAttempts; attempt++ {
		key, err := s.apiKeys.Generate(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to generate api key: %w", err)
		}

		err = s.userRepo.Update(ctx, userID, repository.UserPatch{APIKey: &key})
		switch {
		case err == nil:
			slog.Info("api key regenerated", slog.Int64("user_id", userID))
			return key, nil
		case errors.Is(err, repository.ErrAPIKeyTaken):
			continue
		case errors.Is(err, repository.ErrNotFound):
			return "", model.NewUserNotFoundError()
		default:
			return "", fmt.Errorf("failed to update api key: %w", err)
		}
	}
	return "", fmt.Errorf("failed to generate unique api key after %d attempts", maxAPIKeyAttempts)
}

// GenerateAPIKey は未使用のAPIキーを生成する。
func (s *Service) GenerateAPIKey(ctx context.Context) (string, error) {
	return s.apiKeys.Generate(ctx)
}

// createWithAPIKey はAPIキーを割り当ててinsertを実行する。
// 生成と登録の間に同じキーが使われた場合は生成し直す。
func (s *Service) createWithAPIKey(ctx context.Context, user *model.User, insert func(*model.User) error) error {
	for attempt := 0; attempt < maxAPIKeyAttempts; attempt++ {
		key, err := s.apiKeys.Generate(ctx)
		if err != nil {
			return fmt.Errorf("failed to generate api key: %w", err)
		}
		user.APIKey = key

		err = insert(user)
		if errors.Is(err, repository.ErrAPIKeyTaken) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to generate unique api key after %d attempts", maxAPIKeyAttempts)
}

// createSession はセッションを作成し永続化する。
// 有効期限はユーザーごとのsession_durationから決める。
func (s *Service) createSession(ctx context.Context, user *model.User, meta SessionMeta) (*model.Session, error) {
	duration := user.SessionDuration
	if duration <= 0 {
		duration = s.config.SessionMaxAge
	}
	browser, os := ParseUserAgent(meta.UserAgent)

	now := time.Now()
	session := &model.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(duration) * time.Second),
		Browser:   browser,
		OS:        os,
	}
	if meta.IP != "" {
		ip := meta.IP
		session.IP = &ip
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// ParseUserAgent はUser-Agentからブラウザ名とOS名を取り出す。
func ParseUserAgent(s string) (browser, os string) {
	browser, os = "Unknown", "Unknown"
	if s == "" {
		return browser, os
	}
	ua := useragent.New(s)
	if name, _ := ua.Browser(); name != "" {
		browser = name
	}
	if info := ua.OSInfo(); info.Name != "" {
		os = info.Name
	}
	return browser, os
}

// NormalizeEmail はメールアドレスを検証し小文字に揃える。
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", model.NewValidationError("email", "必須です")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email", "メールアドレスの形式ではありません")
	}
	return strings.ToLower(email), nil
}

// ValidatePassword はパスワードの長さを検証する。bcryptは72バイトを超える部分を無視する。
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return model.NewValidationError("password", "8文字以上で指定してください")
	}
	if len(password) > maxPasswordBytes {
		return model.NewValidationError("password", "72バイト以下で指定してください")
	}
	return nil
}
