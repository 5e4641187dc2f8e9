package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

// maxAPIKeyAttempts はAPIキーの一意制約違反時に再生成する回数。
const maxAPIKeyAttempts = 3

// CreateUserInput は管理者によるユーザー作成の入力。
type CreateUserInput struct {
	Email      string
	Password   string
	Admin      bool
	Authorized bool
}

// EditUserInput は管理者によるユーザー編集の入力。nilのフィールドは変更しない。
// セッション有効期間は量と単位の両方を指定した場合のみ変更する。
type EditUserInput struct {
	Email         *string
	Password      *string
	Admin         *bool
	Authorized    *bool
	SessionAmount *int
	SessionUnit   *string
}

// UserPage はユーザー一覧の1ページ分。
type UserPage struct {
	Users       []*model.User
	CurrentPage int
	SortBy      string
	Direction   string
}

// ListUsers はユーザー一覧を返す。並び順はid、email、joinedのいずれかで、既定は登録日時の新しい順。
func (s *Service) ListUsers(ctx context.Context, params model.ListParams) (*UserPage, error) {
	query, err := params.Query(func(v string) bool {
		return model.UserSort(v).Valid()
	}, string(model.UserSortByJoined))
	if err != nil {
		return nil, err
	}

	users, err := s.userRepo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return &UserPage{
		Users:       users,
		CurrentPage: query.Page,
		SortBy:      query.SortBy,
		Direction:   query.Direction(),
	}, nil
}

// CreateUser は招待コードなしでユーザーを作成する。
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:           email,
		PasswordHash:    &hash,
		Admin:           in.Admin,
		Authorized:      in.Authorized,
		SessionDuration: s.config.DefaultSessionDuration,
	}

	for attempt := 0; ; attempt++ {
		key, err := s.apiKeys.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("APIキーの生成に失敗しました: %w", err)
		}
		user.APIKey = key

		err = s.userRepo.Create(ctx, user)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, model.NewEmailTakenError()
		}
		if !errors.Is(err, repository.ErrAPIKeyTaken) || attempt+1 >= maxAPIKeyAttempts {
			return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
		}
	}

	slog.Info("管理者がユーザーを作成しました",
		slog.Int64("user_id", user.ID),
		slog.Bool("admin", user.Admin),
	)
	return user, nil
}

// EditUser はユーザーの属性を変更する。
func (s *Service) EditUser(ctx context.Context, userID int64, in EditUserInput) (*model.User, error) {
	var patch repository.UserPatch

	if in.Email != nil {
		email, err := auth.NormalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		patch.Email = &email
	}
	if in.Password != nil {
		if err := auth.ValidatePassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}
	if in.SessionAmount != nil || in.SessionUnit != nil {
		if in.SessionAmount == nil || in.SessionUnit == nil {
			return nil, model.NewValidationError("session_duration", "量と単位の両方を指定してください")
		}
		duration, err := ParseSessionDuration(*in.SessionAmount, *in.SessionUnit)
		if err != nil {
			return nil, err
		}
		patch.SessionDuration = &duration
	}
	patch.Admin = in.Admin
	patch.Authorized = in.Authorized

	if err := s.update(ctx, userID, patch); err != nil {
		return nil, err
	}

	slog.Info("管理者がユーザーを編集しました", slog.Int64("user_id", userID))
	return s.Me(ctx, userID)
}

// SetAuthorized はユーザーの承認状態を切り替える。
func (s *Service) SetAuthorized(ctx context.Context, userID int64, authorized bool) error {
	if err := s.update(ctx, userID, repository.UserPatch{Authorized: &authorized}); err != nil {
		return err
	}
	slog.Info("ユーザーの承認状態を変更しました",
		slog.Int64("user_id", userID),
		slog.Bool("authorized", authorized),
	)
	return nil
}

// DeleteUser はユーザーを削除する。関連データはCASCADE削除される。
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	if err := s.deleteUser(ctx, userID); err != nil {
		return err
	}
	slog.Info("管理者がユーザーを削除しました", slog.Int64("user_id", userID))
	return nil
}

// Stats は管理画面用の件数を返す。
func (s *Service) Stats(ctx context.Context) (*model.UserStats, error) {
	stats, err := s.userRepo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("集計に失敗しました: %w", err)
	}
	return stats, nil
}
