package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/linknote/internal/database"
	"github.com/hitoshi/linknote/internal/model"
)

// userColumns は射影可能なフィールドとカラムの対応。
// password_hashはここに含めないため、認証経由で読み込まれることはない。
var userColumns = map[model.UserField]string{
	model.FieldID:              "u.id",
	model.FieldEmail:           "u.email",
	model.FieldAPIKey:          "u.api_key",
	model.FieldAdmin:           "u.admin",
	model.FieldAuthorized:      "u.authorized",
	model.FieldSessionDuration: "u.session_duration",
	model.FieldJoined:          "u.joined",
}

// userSortColumns はユーザー一覧で指定可能な並び順。
var userSortColumns = map[string]string{
	"id":     "id",
	"email":  "email",
	"joined": "joined",
}

const userSelectColumns = `id, email, password_hash, api_key, admin, authorized, session_duration, joined`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// ProjectBySession は有効なセッションのユーザーをfieldsのカラムだけ読み込む。
func (r *PostgresUserRepo) ProjectBySession(ctx context.Context, token string, fields []model.UserField) (*model.ProjectedUser, error) {
	query, err := buildProjectionQuery(fields,
		`FROM users u JOIN sessions s ON s.user_id = u.id
		 WHERE s.token = $1 AND s.expires_at > now()`)
	if err != nil {
		return nil, err
	}
	return r.project(ctx, query, token, fields)
}

// ProjectByAPIKey はAPIキーに一致するユーザーをfieldsのカラムだけ読み込む。
func (r *PostgresUserRepo) ProjectByAPIKey(ctx context.Context, apiKey string, fields []model.UserField) (*model.ProjectedUser, error) {
	query, err := buildProjectionQuery(fields, `FROM users u WHERE u.api_key = $1`)
	if err != nil {
		return nil, err
	}
	return r.project(ctx, query, apiKey, fields)
}

func (r *PostgresUserRepo) project(ctx context.Context, query, arg string, fields []model.UserField) (*model.ProjectedUser, error) {
	p := &model.ProjectedUser{Fields: fields}
	targets, err := projectionTargets(&p.User, fields)
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, query, arg).Scan(targets...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to project user: %w", err)
	}
	return p, nil
}

// buildProjectionQuery は許可リストのカラムだけでSELECT文を組み立てる。
func buildProjectionQuery(fields []model.UserField, from string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no user fields requested")
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		col, ok := userColumns[f]
		if !ok {
			return "", fmt.Errorf("unknown user field: %q", f)
		}
		cols[i] = col
	}
	return "SELECT " + strings.Join(cols, ", ") + " " + from, nil
}

// projectionTargets はfieldsの順にScan先を返す。
func projectionTargets(u *model.User, fields []model.UserField) ([]any, error) {
	targets := make([]any, len(fields))
	for i, f := range fields {
		switch f {
		case model.FieldID:
			targets[i] = &u.ID
		case model.FieldEmail:
			targets[i] = &u.Email
		case model.FieldAPIKey:
			targets[i] = &u.APIKey
		case model.FieldAdmin:
			targets[i] = &u.Admin
		case model.FieldAuthorized:
			targets[i] = &u.Authorized
		case model.FieldSessionDuration:
			targets[i] = &u.SessionDuration
		case model.FieldJoined:
			targets[i] = &u.Joined
		default:
			return nil, fmt.Errorf("unknown user field: %q", f)
		}
	}
	return targets, nil
}

// APIKeyExists はAPIキーを持つユーザーが存在するかを返す。
func (r *PostgresUserRepo) APIKeyExists(ctx context.Context, apiKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE api_key = $1)`,
		apiKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check api key: %w", err)
	}
	return exists, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userSelectColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userSelectColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成し、採番したIDと登録日時をuserに設定する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	return insertUser(ctx, r.db, user)
}

// CreateWithInvite はユーザー作成と招待コードの消費を同一トランザクションで行う。
// 招待コードの消費は used_by IS NULL を条件にした単一のUPDATEで行うため、
// 同じコードで同時に登録しても成功するのは1件だけになる。
func (r *PostgresUserRepo) CreateWithInvite(ctx context.Context, user *model.User, inviteCode string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE invites SET used_by = $1
		 WHERE code = $2 AND used_by IS NULL
		   AND (required_email IS NULL OR lower(required_email) = lower($3))`,
		user.ID, inviteCode, user.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to consume invite: %w", err)
	}
	consumed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if consumed == 0 {
		return ErrInviteUnavailable
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	identity.UserID = user.ID
	if err := insertIdentity(ctx, tx, identity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update はpatchの非nilフィールドだけを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, id int64, patch UserPatch) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.APIKey != nil {
		add("api_key", *patch.APIKey)
	}
	if patch.Admin != nil {
		add("admin", *patch.Admin)
	}
	if patch.Authorized != nil {
		add("authorized", *patch.Authorized)
	}
	if patch.SessionDuration != nil {
		add("session_duration", *patch.SessionDuration)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapUserConstraintError(err, "failed to update user")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List はユーザー一覧を返す。
func (r *PostgresUserRepo) List(ctx context.Context, query model.ListQuery) ([]*model.User, error) {
	col, ok := userSortColumns[query.SortBy]
	if !ok {
		col = "id"
	}
	direction := "ASC"
	if query.Descending {
		direction = "DESC"
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM users ORDER BY %s %s, id ASC LIMIT $1 OFFSET $2`,
			userSelectColumns, col, direction),
		query.PageSize, query.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// DeleteByID は指定IDのユーザーを削除し、CASCADE削除された短縮URLのエイリアスを返す。
// エイリアスはリダイレクト先キャッシュの破棄に使う。
// 取得と削除の間に短縮URLが作られないよう、ユーザー行をFOR UPDATEでロックする。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id int64) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT key FROM urls WHERE owner = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list user aliases: %w", err)
	}
	var aliases []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate aliases: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return aliases, nil
}

// Stats は管理画面用の件数を集計する。期限切れのセッションは数えない。
func (r *PostgresUserRepo) Stats(ctx context.Context) (*model.UserStats, error) {
	stats := &model.UserStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT count(*) FROM urls),
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM sessions WHERE expires_at > now()),
			(SELECT count(*) FROM notes)`,
	).Scan(&stats.URLs, &stats.Users, &stats.Sessions, &stats.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return stats, nil
}

// execQueryer は*sql.DBと*sql.Txの共通部分。
type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertUser(ctx context.Context, q execQueryer, user *model.User) error {
	if user.SessionDuration <= 0 {
		user.SessionDuration = model.DefaultSessionDuration
	}
	var passwordHash sql.NullString
	if user.PasswordHash != nil {
		passwordHash = sql.NullString{String: *user.PasswordHash, Valid: true}
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, api_key, admin, authorized, session_duration)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, joined`,
		user.Email, passwordHash, user.APIKey, user.Admin, user.Authorized, user.SessionDuration,
	).Scan(&user.ID, &user.Joined)
	if err != nil {
		return mapUserConstraintError(err, "failed to insert user")
	}
	return nil
}

// mapUserConstraintError はusersテーブルの一意制約違反を番兵エラーに変換する。
func mapUserConstraintError(err error, msg string) error {
	switch {
	case database.IsUniqueViolation(err, "users_email_key"):
		return ErrEmailTaken
	case database.IsUniqueViolation(err, "users_api_key_key"):
		return ErrAPIKeyTaken
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var passwordHash sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &passwordHash, &u.APIKey, &u.Admin, &u.Authorized, &u.SessionDuration, &u.Joined); err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	return u, nil
}

// IsNotFound はerrがErrNotFoundかどうかを返す。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
