package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/identity/domain"
)

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a reset token repository that uses the given pool for persistence.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.PasswordResetToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO password_reset_tokens (id, tenant_id, user_id, token_hash, expires_at, used_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.TenantID, t.UserID, t.TokenHash, t.ExpiresAt, t.UsedAt, t.CreatedAt)
	if err != nil {
		return oops.Code("RESET_TOKEN_SAVE_FAILED").With("user_id", t.UserID).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tenantID, hash string) (*domain.PasswordResetToken, error) {
	var t domain.PasswordResetToken
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, token_hash, expires_at, used_at, created_at
		 FROM password_reset_tokens WHERE tenant_id = $1 AND token_hash = $2`,
		tenantID, hash).Scan(&t.ID, &t.TenantID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("RESET_TOKEN_QUERY_FAILED").Wrap(err)
	}
	return &t, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, tenantID, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE password_reset_tokens SET used_at = $3 WHERE tenant_id = $1 AND id = $2 AND used_at IS NULL`,
		tenantID, id, at.UTC())
	if err != nil {
		return oops.Code("RESET_TOKEN_SAVE_FAILED").With("token_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResetTokenUsed
	}
	return nil
}

func (r *PostgresRepository) DeleteByUserID(ctx context.Context, tenantID, userID string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID); err != nil {
		return oops.Code("RESET_TOKEN_DELETE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}
