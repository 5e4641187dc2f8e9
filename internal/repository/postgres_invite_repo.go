package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/linknote/internal/model"
)

// PostgresInviteRepo はPostgreSQLを使用した招待コードリポジトリ。
type PostgresInviteRepo struct {
	db *sql.DB
}

// NewPostgresInviteRepo はPostgresInviteRepoを生成する。
func NewPostgresInviteRepo(db *sql.DB) *PostgresInviteRepo {
	return &PostgresInviteRepo{db: db}
}

// CreateWithinLimit は所有者の発行数がlimit未満の場合に招待コードを作成する。
// 所有者の行をFOR UPDATEでロックしてから数えるため、同時発行でも上限を超えない。
func (r *PostgresInviteRepo) CreateWithinLimit(ctx context.Context, invite *model.Invite, limit int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if limit > 0 {
		var locked int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE id = $1 FOR UPDATE`, invite.Owner,
		).Scan(&locked)
		if err == sql.ErrNoRows {
			return false, ErrNotFound
		}
		if err != nil {
			return false, fmt.Errorf("failed to lock invite owner: %w", err)
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM invites WHERE owner = $1`, invite.Owner,
		).Scan(&count); err != nil {
			return false, fmt.Errorf("failed to count invites: %w", err)
		}
		if count >= limit {
			return false, nil
		}
	}

	var requiredEmail sql.NullString
	if invite.RequiredEmail != nil {
		requiredEmail = sql.NullString{String: *invite.RequiredEmail, Valid: true}
	}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO invites (code, owner, required_email)
		 VALUES ($1, $2, $3)
		 RETURNING creation_date`,
		invite.Code, invite.Owner, requiredEmail,
	).Scan(&invite.CreatedAt); err != nil {
		return false, fmt.Errorf("failed to create invite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ListByOwner は所有者の招待コード一覧を新しい順に返す。
func (r *PostgresInviteRepo) ListByOwner(ctx context.Context, owner int64) ([]*model.Invite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, owner, required_email, used_by, creation_date
		 FROM invites
		 WHERE owner = $1
		 ORDER BY creation_date DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*model.Invite
	for rows.Next() {
		inv := &model.Invite{}
		var requiredEmail sql.NullString
		var usedBy sql.NullInt64
		if err := rows.Scan(&inv.Code, &inv.Owner, &requiredEmail, &usedBy, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		if requiredEmail.Valid {
			inv.RequiredEmail = &requiredEmail.String
		}
		if usedBy.Valid {
			inv.UsedBy = &usedBy.Int64
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}
	return invites, nil
}

// compile-time interface check
var _ InviteRepository = (*PostgresInviteRepo)(nil)
