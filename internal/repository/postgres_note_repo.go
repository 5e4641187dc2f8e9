package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/linknote/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したノートリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

// Create はノートを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notes (id, owner, name, content, has_password, share_email, private)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING clicks, creation_date`,
		note.ID, note.Owner, note.Name, note.Content, note.HasPassword, note.ShareEmail, note.Private,
	).Scan(&note.Clicks, &note.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// FindByID はノートを所有者のメールアドレス付きで取得する。見つからない場合はnilを返す。
func (r *PostgresNoteRepo) FindByID(ctx context.Context, id string) (*model.NoteWithOwner, error) {
	n := &model.NoteWithOwner{}
	err := r.db.QueryRowContext(ctx,
		`SELECT n.id, n.owner, n.name, n.content, n.has_password, n.share_email, n.private,
		        n.clicks, n.creation_date, u.email
		 FROM notes n JOIN users u ON u.id = n.owner
		 WHERE n.id = $1`,
		id,
	).Scan(&n.ID, &n.Owner, &n.Name, &n.Content, &n.HasPassword, &n.ShareEmail, &n.Private,
		&n.Clicks, &n.CreatedAt, &n.OwnerEmail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return n, nil
}

// noteSortColumns は一覧の並び順とカラムの対応。
var noteSortColumns = map[model.NoteSort]string{
	model.NoteSortByID:           "id",
	model.NoteSortByName:         "name",
	model.NoteSortByHasPassword:  "has_password",
	model.NoteSortByShareEmail:   "share_email",
	model.NoteSortByPrivate:      "private",
	model.NoteSortByClicks:       "clicks",
	model.NoteSortByCreationDate: "creation_date",
}

// ListByOwner は所有者のノート一覧を返す。本文は読み込まない。
func (r *PostgresNoteRepo) ListByOwner(ctx context.Context, owner int64, query model.ListQuery) ([]*model.Note, error) {
	col, ok := noteSortColumns[model.NoteSort(query.SortBy)]
	if !ok {
		col = "creation_date"
	}
	direction := "ASC"
	if query.Descending {
		direction = "DESC"
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, owner, name, has_password, share_email, private, clicks, creation_date
		 FROM notes
		 WHERE owner = $1
		 ORDER BY %s %s, id ASC
		 LIMIT $2 OFFSET $3`, col, direction),
		owner, query.PageSize, query.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		n := &model.Note{}
		if err := rows.Scan(&n.ID, &n.Owner, &n.Name, &n.HasPassword, &n.ShareEmail, &n.Private, &n.Clicks, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// CountByOwner は所有者のノート数を返す。
func (r *PostgresNoteRepo) CountByOwner(ctx context.Context, owner int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notes WHERE owner = $1`, owner,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return count, nil
}

// Delete は所有者のノートを削除する。
func (r *PostgresNoteRepo) Delete(ctx context.Context, owner int64, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND owner = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
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

// IncrementClicks は閲覧数を1増やす。
func (r *PostgresNoteRepo) IncrementClicks(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notes SET clicks = clicks + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment note clicks: %w", err)
	}
	return nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
