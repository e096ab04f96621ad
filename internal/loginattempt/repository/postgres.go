package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/loginattempt/domain"
	sessiondomain "tenant-iam/backend/internal/session/domain"
)

const attemptColumns = `id, tenant_id, user_id, email, status, type, ip_address, user_agent,
	device_type, browser, os, location, failure_reason, created_at`

// PostgresRepository stores login attempts in the login_attempts table.
type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a login attempt repository that uses the given pool for persistence.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Save(ctx context.Context, a *domain.LoginAttempt) error {
	loc, err := marshalLocation(a.Location())
	if err != nil {
		return oops.Code("LOGIN_ATTEMPT_SAVE_FAILED").With("attempt_id", a.ID()).Wrap(err)
	}
	d := a.Device()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO login_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID(), a.TenantID(), nullString(a.UserID()), a.Email(), string(a.Status()), string(a.Type()),
		d.IPAddress, d.UserAgent, d.DeviceType, d.Browser, d.OS, loc, nullString(a.FailureReason()), a.CreatedAt())
	if err != nil {
		return oops.Code("LOGIN_ATTEMPT_SAVE_FAILED").
			With("attempt_id", a.ID()).
			With("tenant_id", a.TenantID()).
			Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) GetRecentFailedAttempts(ctx context.Context, tenantID, email string, since time.Time) ([]*domain.LoginAttempt, error) {
	return r.list(ctx, "recent failed by email",
		`SELECT `+attemptColumns+` FROM login_attempts
		 WHERE tenant_id = $1 AND email = $2 AND status = 'failed' AND created_at >= $3
		 ORDER BY created_at ASC`,
		tenantID, email, since)
}

func (r *PostgresRepository) GetRecentFailedAttemptsByIP(ctx context.Context, tenantID, ip string, since time.Time) ([]*domain.LoginAttempt, error) {
	return r.list(ctx, "recent failed by ip",
		`SELECT `+attemptColumns+` FROM login_attempts
		 WHERE tenant_id = $1 AND ip_address = $2 AND status = 'failed' AND created_at >= $3
		 ORDER BY created_at ASC`,
		tenantID, ip, since)
}

func (r *PostgresRepository) CountFailedAttemptsByEmail(ctx context.Context, tenantID, email string, since time.Time) (int, error) {
	return r.count(ctx, "count failed by email",
		`SELECT COUNT(*) FROM login_attempts
		 WHERE tenant_id = $1 AND email = $2 AND status = 'failed' AND created_at >= $3`,
		tenantID, email, since)
}

func (r *PostgresRepository) CountByIPAddress(ctx context.Context, tenantID, ip string, since time.Time) (int, error) {
	return r.count(ctx, "count by ip",
		`SELECT COUNT(*) FROM login_attempts
		 WHERE tenant_id = $1 AND ip_address = $2 AND created_at >= $3`,
		tenantID, ip, since)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, tenantID, email string, limit int) ([]*domain.LoginAttempt, error) {
	return r.list(ctx, "find by email",
		`SELECT `+attemptColumns+` FROM login_attempts
		 WHERE tenant_id = $1 AND email = $2
		 ORDER BY created_at DESC LIMIT $3`,
		tenantID, email, limitArg(limit))
}

func (r *PostgresRepository) FindByUserID(ctx context.Context, tenantID, userID string, limit int) ([]*domain.LoginAttempt, error) {
	return r.list(ctx, "find by user",
		`SELECT `+attemptColumns+` FROM login_attempts
		 WHERE tenant_id = $1 AND user_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		tenantID, userID, limitArg(limit))
}

func (r *PostgresRepository) DeleteOldAttempts(ctx context.Context, tenantID string, before time.Time) (int, error) {
	return r.delete(ctx, "delete old",
		`DELETE FROM login_attempts WHERE tenant_id = $1 AND created_at < $2`, tenantID, before)
}

func (r *PostgresRepository) DeleteByUserID(ctx context.Context, tenantID, userID string) (int, error) {
	return r.delete(ctx, "delete by user",
		`DELETE FROM login_attempts WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
}

func (r *PostgresRepository) DeleteByEmail(ctx context.Context, tenantID, email string) (int, error) {
	return r.delete(ctx, "delete by email",
		`DELETE FROM login_attempts WHERE tenant_id = $1 AND email = $2`, tenantID, email)
}

func (r *PostgresRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM login_attempts ORDER BY tenant_id`)
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", "list tenants").Wrap(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", "scan tenants").Wrap(err)
	}
	return ids, nil
}

func (r *PostgresRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.LoginAttempt, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	defer rows.Close()

	var out []*domain.LoginAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", op).Wrap(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	return out, nil
}

func (r *PostgresRepository) count(ctx context.Context, op, query string, args ...any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	return n, nil
}

func (r *PostgresRepository) delete(ctx context.Context, op, query string, args ...any) (int, error) {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").With("operation", op).Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}

func scanAttempt(row pgx.Row) (*domain.LoginAttempt, error) {
	var (
		id, status, typ string
		userID, reason  *string
		loc             []byte
		p               domain.NewAttemptParams
	)
	err := row.Scan(&id, &p.TenantID, &userID, &p.Email, &status, &typ,
		&p.Device.IPAddress, &p.Device.UserAgent, &p.Device.DeviceType, &p.Device.Browser, &p.Device.OS,
		&loc, &reason, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		p.UserID = *userID
	}
	if reason != nil {
		p.FailureReason = *reason
	}
	p.Status = domain.Status(status)
	p.Type = domain.Type(typ)
	if p.Location, err = unmarshalLocation(loc); err != nil {
		return nil, err
	}
	return domain.Restore(id, p), nil
}

// limitArg maps "no limit" to NULL, which Postgres treats as LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalLocation(l *sessiondomain.LocationInfo) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func unmarshalLocation(b []byte) (*sessiondomain.LocationInfo, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var l sessiondomain.LocationInfo
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
