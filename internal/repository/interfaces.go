// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/linknote/internal/model"
)

var (
	// ErrAliasTaken は短縮URLのエイリアスが一意制約に違反した場合に返す。
	ErrAliasTaken = errors.New("alias already exists")
	// ErrEmailTaken はメールアドレスが一意制約に違反した場合に返す。
	ErrEmailTaken = errors.New("email already exists")
	// ErrAPIKeyTaken はAPIキーが一意制約に違反した場合に返す。
	ErrAPIKeyTaken = errors.New("api key already exists")
	// ErrInviteUnavailable は招待コードが存在しないか使用済みの場合に返す。
	ErrInviteUnavailable = errors.New("invite unavailable")
	// ErrNotFound は更新・削除対象の行が存在しない場合に返す。
	ErrNotFound = errors.New("not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// ProjectBySession は有効なセッションのユーザーをfieldsのカラムだけ読み込む。
	// 見つからない場合はnilを返す。
	ProjectBySession(ctx context.Context, token string, fields []model.UserField) (*model.ProjectedUser, error)

	// ProjectByAPIKey はAPIキーに一致するユーザーをfieldsのカラムだけ読み込む。
	// 見つからない場合はnilを返す。
	ProjectByAPIKey(ctx context.Context, apiKey string, fields []model.UserField) (*model.ProjectedUser, error)

	// APIKeyExists はAPIキーを持つユーザーが存在するかを返す。
	APIKeyExists(ctx context.Context, apiKey string) (bool, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番したIDと登録日時をuserに設定する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithInvite はユーザー作成と招待コードの消費を同一トランザクションで行う。
	// 招待コードが使えない場合はErrInviteUnavailableを返す。
	CreateWithInvite(ctx context.Context, user *model.User, inviteCode string) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// Update はpatchの非nilフィールドだけを更新する。対象がない場合はErrNotFoundを返す。
	Update(ctx context.Context, id int64, patch UserPatch) error

	// List はユーザー一覧を返す。sortByはid、email、joinedのいずれか。
	List(ctx context.Context, query model.ListQuery) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除し、CASCADE削除された短縮URLのエイリアスを返す。
	// 関連するsessions、urls、notes、invites、identitiesはCASCADE削除される。
	// ユーザーが存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id int64) (aliases []string, err error)

	// Stats は管理画面用の件数を集計する。
	Stats(ctx context.Context) (*model.UserStats, error)
}

// UserPatch はユーザーの部分更新内容。nilのフィールドは変更しない。
type UserPatch struct {
	Email           *string
	PasswordHash    *string
	APIKey          *string
	Admin           *bool
	Authorized      *bool
	SessionDuration *int
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// Exists は期限内のセッションが存在するかを返す。
	Exists(ctx context.Context, token string) (bool, error)
	// ListByUserID は指定ユーザーの期限内のセッションを作成日時の新しい順に返す。
	ListByUserID(ctx context.Context, userID int64) ([]*model.Session, error)
	// DeleteByToken は指定トークンのセッションを削除する。
	DeleteByToken(ctx context.Context, token string) error
	// DeleteForUser は指定ユーザーが所有するセッションを削除する。
	// 該当がない場合はErrNotFoundを返す。
	DeleteForUser(ctx context.Context, userID int64, token string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
}

// ShortURLRepository は短縮URLの永続化インターフェース。
type ShortURLRepository interface {
	// Create は短縮URLを作成する。エイリアスが重複する場合はErrAliasTakenを返す。
	Create(ctx context.Context, u *model.ShortURL) error
	// Exists はエイリアスが使用済みかを返す。
	Exists(ctx context.Context, key string) (bool, error)
	// FindByKey はエイリアスで短縮URLを取得する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.ShortURL, error)
	// ListByOwner は所有者の短縮URL一覧を返す。
	ListByOwner(ctx context.Context, owner int64, query model.ListQuery) ([]*model.ShortURL, error)
	// CountByOwner は所有者の短縮URL数を返す。
	CountByOwner(ctx context.Context, owner int64) (int, error)
	// Update は所有者の短縮URLを更新する。
	// 該当がない場合はnil、新しいエイリアスが重複する場合はErrAliasTakenを返す。
	Update(ctx context.Context, owner int64, key string, patch ShortURLPatch) (*model.ShortURL, error)
	// Delete は所有者の短縮URLを削除する。該当がない場合はErrNotFoundを返す。
	Delete(ctx context.Context, owner int64, key string) error
	// IncrementClicks はクリック数を1増やす。
	IncrementClicks(ctx context.Context, key string) error
	// ListPendingTitles はタイトル未取得の短縮URLを古い順にlimit件返す。
	ListPendingTitles(ctx context.Context, limit int) ([]*model.ShortURL, error)
	// UpdateTitle はタイトルと取得日時を記録する。titleがnilでも取得済みとして扱う。
	UpdateTitle(ctx context.Context, key string, title *string, fetchedAt time.Time) error
}

// ShortURLPatch は短縮URLの更新内容。
type ShortURLPatch struct {
	NewKey      *string
	Destination *string
	ResetClicks bool
}

// NoteRepository はノートの永続化インターフェース。
type NoteRepository interface {
	// Create はノートを作成する。
	Create(ctx context.Context, note *model.Note) error
	// FindByID はノートを所有者のメールアドレス付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.NoteWithOwner, error)
	// ListByOwner は所有者のノート一覧を返す。Contentは読み込まない。
	ListByOwner(ctx context.Context, owner int64, query model.ListQuery) ([]*model.Note, error)
	// CountByOwner は所有者のノート数を返す。
	CountByOwner(ctx context.Context, owner int64) (int, error)
	// Delete は所有者のノートを削除する。該当がない場合はErrNotFoundを返す。
	Delete(ctx context.Context, owner int64, id string) error
	// IncrementClicks は閲覧数を1増やす。
	IncrementClicks(ctx context.Context, id string) error
}

// InviteRepository は招待コードの永続化インターフェース。
type InviteRepository interface {
	// CreateWithinLimit は所有者の発行数がlimit未満の場合に招待コードを作成する。
	// limitが0以下の場合は上限なし。作成できた場合はtrueを返す。
	CreateWithinLimit(ctx context.Context, invite *model.Invite, limit int) (bool, error)
	// ListByOwner は所有者の招待コード一覧を返す。
	ListByOwner(ctx context.Context, owner int64) ([]*model.Invite, error)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}
