// Package revocation 记录已登出但尚未过期的凭证，并定期清理过期记录。
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX 同时被 *pgxpool.Pool 与 pgxmock 满足。
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store 直接用 SQL 访问 token_revocations 表，表结构由 gorm 迁移创建。
type Store struct {
	db  DBTX
	now func() time.Time
}

func NewStore(db DBTX) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

// Revoke 幂等地记录一次吊销；重复 token 不报错，已过期的 token 不落库。
func (s *Store) Revoke(ctx context.Context, token string, userID uint, expiresAt time.Time) error {
	const op = "revocation.Revoke"
	now := s.now()
	if !expiresAt.After(now) {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO token_revocations (token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING`,
		token, userID, now, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	const op = "revocation.IsRevoked"
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM token_revocations WHERE token = $1)`, token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// Sweep 删除 expires_at 早于 now 的记录并返回删除条数。
func (s *Store) Sweep(ctx context.Context, now time.Time) (int64, error) {
	const op = "revocation.Sweep"
	tag, err := s.db.Exec(ctx, `DELETE FROM token_revocations WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}
