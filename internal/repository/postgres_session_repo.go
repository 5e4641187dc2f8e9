package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/linknote/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// expires_atを過ぎたセッションは存在しないものとして扱う。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	var ip sql.NullString
	if session.IP != nil {
		ip = sql.NullString{String: *session.IP, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at, browser, os, ip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.Token, session.UserID, session.CreatedAt, session.ExpiresAt,
		session.Browser, session.OS, ip,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Exists は期限内のセッションが存在するかを返す。
func (r *PostgresSessionRepo) Exists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE token = $1 AND expires_at > now())`,
		token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists, nil
}

// ListByUserID は指定ユーザーの期限内のセッションを新しい順に返す。
func (r *PostgresSessionRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, user_id, created_at, expires_at, browser, os, ip
		 FROM sessions
		 WHERE user_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s := &model.Session{}
		var ip sql.NullString
		if err := rows.Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.Browser, &s.OS, &ip); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if ip.Valid {
			s.IP = &ip.String
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteByToken は指定トークンのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteForUser は指定ユーザーが所有するセッションを削除する。
func (r *PostgresSessionRepo) DeleteForUser(ctx context.Context, userID int64, token string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = $1 AND user_id = $2`,
		token, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
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

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
