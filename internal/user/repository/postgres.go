package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/user/domain"
)

const userColumns = `id, tenant_id, email, username, password_hash, status,
	two_factor_enabled, two_factor_secret, pending_two_factor_secret, created_at, updated_at`

type PostgresRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresRepository returns a user repository that uses the given pool for persistence.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, now: time.Now}
}

func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.User, error) {
	return r.get(ctx, "get by id", `WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

// GetByEmail matches the normalized email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	return r.get(ctx, "get by email", `WHERE tenant_id = $1 AND email = $2`, tenantID, domain.NormalizeEmail(email))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, tenantID, username string) (*domain.User, error) {
	return r.get(ctx, "get by username", `WHERE tenant_id = $1 AND username = $2`, tenantID, username)
}

func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.TenantID, u.Email, u.Username, u.PasswordHash, string(u.Status),
		u.TwoFactorEnabled, nullString(u.TwoFactorSecret), nullString(u.PendingTwoFactorSecret), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.ErrEmailTaken
		}
		return oops.Code("USER_SAVE_FAILED").With("tenant_id", u.TenantID).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, tenantID, userID, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		tenantID, userID, passwordHash, r.now().UTC())
	if err != nil {
		return oops.Code("USER_SAVE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) UpdateTwoFactor(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET two_factor_enabled = $3, two_factor_secret = $4, pending_two_factor_secret = $5, updated_at = $6
		 WHERE tenant_id = $1 AND id = $2`,
		u.TenantID, u.ID, u.TwoFactorEnabled, nullString(u.TwoFactorSecret), nullString(u.PendingTwoFactorSecret), r.now().UTC())
	if err != nil {
		return oops.Code("USER_SAVE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, op, where string, args ...any) (*domain.User, error) {
	var (
		u               domain.User
		status          string
		secret, pending *string
	)
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, args...).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Username, &u.PasswordHash, &status,
		&u.TwoFactorEnabled, &secret, &pending, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	u.Status = domain.UserStatus(status)
	if secret != nil {
		u.TwoFactorSecret = *secret
	}
	if pending != nil {
		u.PendingTwoFactorSecret = *pending
	}
	return &u, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
