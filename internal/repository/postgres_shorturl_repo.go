package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/linknote/internal/database"
	"github.com/hitoshi/linknote/internal/model"
)

// shortURLSortColumns は一覧の並び順とカラムの対応。
var shortURLSortColumns = map[model.ShortURLSort]string{
	model.SortByAlias:        "key",
	model.SortByDestination:  "destination",
	model.SortByClicks:       "clicks",
	model.SortByCreationDate: "creation_date",
}

const shortURLColumns = `key, owner, destination, clicks, title, title_fetched_at, creation_date`

// PostgresShortURLRepo はPostgreSQLを使用した短縮URLリポジトリ。
type PostgresShortURLRepo struct {
	db *sql.DB
}

// NewPostgresShortURLRepo はPostgresShortURLRepoを生成する。
func NewPostgresShortURLRepo(db *sql.DB) *PostgresShortURLRepo {
	return &PostgresShortURLRepo{db: db}
}

// Create は短縮URLを作成する。エイリアスが重複する場合はErrAliasTakenを返す。
func (r *PostgresShortURLRepo) Create(ctx context.Context, u *model.ShortURL) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO urls (key, owner, destination)
		 VALUES ($1, $2, $3)
		 RETURNING clicks, creation_date`,
		u.Key, u.Owner, u.Destination,
	).Scan(&u.Clicks, &u.CreatedAt)
	if database.IsUniqueViolation(err, "urls_pkey") {
		return ErrAliasTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create short url: %w", err)
	}
	return nil
}

// Exists はエイリアスが使用済みかを返す。
func (r *PostgresShortURLRepo) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM urls WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check short url: %w", err)
	}
	return exists, nil
}

// FindByKey はエイリアスで短縮URLを取得する。見つからない場合はnilを返す。
func (r *PostgresShortURLRepo) FindByKey(ctx context.Context, key string) (*model.ShortURL, error) {
	u, err := scanShortURL(r.db.QueryRowContext(ctx,
		`SELECT `+shortURLColumns+` FROM urls WHERE key = $1`, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find short url: %w", err)
	}
	return u, nil
}

// ListByOwner は所有者の短縮URL一覧を返す。
func (r *PostgresShortURLRepo) ListByOwner(ctx context.Context, owner int64, query model.ListQuery) ([]*model.ShortURL, error) {
	col, ok := shortURLSortColumns[model.ShortURLSort(query.SortBy)]
	if !ok {
		col = "creation_date"
	}
	direction := "ASC"
	if query.Descending {
		direction = "DESC"
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM urls WHERE owner = $1 ORDER BY %s %s, key ASC LIMIT $2 OFFSET $3`,
			shortURLColumns, col, direction),
		owner, query.PageSize, query.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list short urls: %w", err)
	}
	defer rows.Close()

	return collectShortURLs(rows)
}

// CountByOwner は所有者の短縮URL数を返す。
func (r *PostgresShortURLRepo) CountByOwner(ctx context.Context, owner int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM urls WHERE owner = $1`, owner,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count short urls: %w", err)
	}
	return count, nil
}

// Update は所有者の短縮URLを更新する。
// 宛先を変更した場合はタイトルを取り直すため title と title_fetched_at を消去する。
func (r *PostgresShortURLRepo) Update(ctx context.Context, owner int64, key string, patch ShortURLPatch) (*model.ShortURL, error) {
	var sets []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if patch.NewKey != nil {
		add("key = $%d", *patch.NewKey)
	}
	if patch.Destination != nil {
		add("destination = $%d", *patch.Destination)
		sets = append(sets, "title = NULL", "title_fetched_at = NULL")
	}
	if patch.ResetClicks {
		sets = append(sets, "clicks = 0")
	}
	if len(sets) == 0 {
		return r.findOwned(ctx, owner, key)
	}

	args = append(args, key, owner)
	query := fmt.Sprintf(`UPDATE urls SET %s WHERE key = $%d AND owner = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), shortURLColumns)

	u, err := scanShortURL(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if database.IsUniqueViolation(err, "urls_pkey") {
		return nil, ErrAliasTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update short url: %w", err)
	}
	return u, nil
}

func (r *PostgresShortURLRepo) findOwned(ctx context.Context, owner int64, key string) (*model.ShortURL, error) {
	u, err := r.FindByKey(ctx, key)
	if err != nil || u == nil {
		return nil, err
	}
	if u.Owner != owner {
		return nil, nil
	}
	return u, nil
}

// Delete は所有者の短縮URLを削除する。
func (r *PostgresShortURLRepo) Delete(ctx context.Context, owner int64, key string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM urls WHERE key = $1 AND owner = $2`, key, owner)
	if err != nil {
		return fmt.Errorf("failed to delete short url: %w", err)
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

// IncrementClicks はクリック数を1増やす。
func (r *PostgresShortURLRepo) IncrementClicks(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE urls SET clicks = clicks + 1 WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}
	return nil
}

// ListPendingTitles はタイトル未取得の短縮URLを古い順にlimit件返す。
func (r *PostgresShortURLRepo) ListPendingTitles(ctx context.Context, limit int) ([]*model.ShortURL, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+shortURLColumns+` FROM urls
		 WHERE title_fetched_at IS NULL
		 ORDER BY creation_date ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending titles: %w", err)
	}
	defer rows.Close()

	return collectShortURLs(rows)
}

// UpdateTitle はタイトルと取得日時を記録する。
func (r *PostgresShortURLRepo) UpdateTitle(ctx context.Context, key string, title *string, fetchedAt time.Time) error {
	var t sql.NullString
	if title != nil {
		t = sql.NullString{String: *title, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE urls SET title = $1, title_fetched_at = $2 WHERE key = $3`,
		t, fetchedAt, key,
	)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

func collectShortURLs(rows *sql.Rows) ([]*model.ShortURL, error) {
	var urls []*model.ShortURL
	for rows.Next() {
		u, err := scanShortURL(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan short url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate short urls: %w", err)
	}
	return urls, nil
}

func scanShortURL(row rowScanner) (*model.ShortURL, error) {
	u := &model.ShortURL{}
	var title sql.NullString
	var fetchedAt sql.NullTime
	if err := row.Scan(&u.Key, &u.Owner, &u.Destination, &u.Clicks, &title, &fetchedAt, &u.CreatedAt); err != nil {
		return nil, err
	}
	if title.Valid {
		u.Title = &title.String
	}
	if fetchedAt.Valid {
		u.TitleFetchedAt = &fetchedAt.Time
	}
	return u, nil
}

// compile-time interface check
var _ ShortURLRepository = (*PostgresShortURLRepo)(nil)
