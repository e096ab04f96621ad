package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/session/domain"
)

const sessionColumns = `id, tenant_id, user_id, access_token_id, refresh_token_id, refresh_token_hash,
	user_agent, ip_address, device_type, browser, os, location, status,
	last_activity_at, expires_at, revoked_at, created_at, updated_at`

// PostgresRepository stores sessions in the auth_sessions table.
type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a session repository that uses the given pool for persistence.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save upserts the session. Raw tokens are never written: only their ids and the refresh
// token hash. Only the token references, status, and timestamps change on conflict.
func (r *PostgresRepository) Save(ctx context.Context, s *domain.AuthSession) error {
	loc, err := encodeLocation(s.Location)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("session_id", s.ID.String()).Wrap(err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO auth_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (id) DO UPDATE SET
		   access_token_id = EXCLUDED.access_token_id,
		   refresh_token_id = EXCLUDED.refresh_token_id,
		   refresh_token_hash = EXCLUDED.refresh_token_hash,
		   status = EXCLUDED.status,
		   last_activity_at = EXCLUDED.last_activity_at,
		   revoked_at = EXCLUDED.revoked_at,
		   updated_at = EXCLUDED.updated_at
		 WHERE auth_sessions.tenant_id = EXCLUDED.tenant_id`,
		s.ID.String(), s.TenantID, s.UserID, s.AccessTokenID, s.RefreshTokenID, s.RefreshTokenHash,
		s.Device.UserAgent, s.Device.IPAddress, s.Device.DeviceType, s.Device.Browser, s.Device.OS, loc, string(s.Status),
		s.LastActivityAt, s.ExpiresAt, s.RevokedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("session_id", s.ID.String()).
			With("tenant_id", s.TenantID).
			Wrap(err)
	}
	return nil
}

// FindByID returns the session for id in the tenant, or nil if not found.
func (r *PostgresRepository) FindByID(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE tenant_id = $1 AND id = $2`,
		tenantID, id.String())
	s, err := scanSession(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "find by id").With("session_id", id.String()).Wrap(err)
	}
	return s, nil
}

// FindByRefreshTokenHash returns the session holding the refresh token with the given hash, or nil.
func (r *PostgresRepository) FindByRefreshTokenHash(ctx context.Context, tenantID, hash string) (*domain.AuthSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE tenant_id = $1 AND refresh_token_hash = $2`,
		tenantID, hash)
	s, err := scanSession(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "find by refresh token").Wrap(err)
	}
	return s, nil
}

// FindByUserID returns all sessions of the user, newest first.
func (r *PostgresRepository) FindByUserID(ctx context.Context, tenantID, userID string) ([]*domain.AuthSession, error) {
	return r.list(ctx, "find by user",
		`SELECT `+sessionColumns+` FROM auth_sessions
		 WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at DESC`,
		tenantID, userID)
}

func (r *PostgresRepository) FindByDeviceInfo(ctx context.Context, tenantID, userID string, device domain.DeviceInfo) ([]*domain.AuthSession, error) {
	return r.list(ctx, "find by device",
		`SELECT `+sessionColumns+` FROM auth_sessions
		 WHERE tenant_id = $1 AND user_id = $2
		   AND ($3 = '' OR user_agent = $3)
		   AND ($4 = '' OR ip_address = $4)
		 ORDER BY created_at DESC`,
		tenantID, userID, device.UserAgent, device.IPAddress)
}

func (r *PostgresRepository) FindExpiredSessions(ctx context.Context, tenantID string, now time.Time) ([]*domain.AuthSession, error) {
	return r.list(ctx, "find expired",
		`SELECT `+sessionColumns+` FROM auth_sessions
		 WHERE tenant_id = $1 AND expires_at < $2 AND status <> 'REVOKED'
		 ORDER BY expires_at`,
		tenantID, now)
}

func (r *PostgresRepository) FindRevokedSessions(ctx context.Context, tenantID string) ([]*domain.AuthSession, error) {
	return r.list(ctx, "find revoked",
		`SELECT `+sessionColumns+` FROM auth_sessions
		 WHERE tenant_id = $1 AND status = 'REVOKED'
		 ORDER BY revoked_at DESC`,
		tenantID)
}

func (r *PostgresRepository) CountByUserID(ctx context.Context, tenantID, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auth_sessions WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID).Scan(&n)
	if err != nil {
		return 0, oops.Code("SESSION_QUERY_FAILED").With("operation", "count by user").With("user_id", userID).Wrap(err)
	}
	return n, nil
}

func (r *PostgresRepository) CountActiveSessions(ctx context.Context, tenantID, userID string, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auth_sessions
		 WHERE tenant_id = $1 AND user_id = $2 AND status = 'ACTIVE' AND expires_at >= $3`,
		tenantID, userID, now).Scan(&n)
	if err != nil {
		return 0, oops.Code("SESSION_QUERY_FAILED").With("operation", "count active").With("user_id", userID).Wrap(err)
	}
	return n, nil
}

func (r *PostgresRepository) ExistsActiveSession(ctx context.Context, tenantID, userID string, now time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM auth_sessions
		 WHERE tenant_id = $1 AND user_id = $2 AND status = 'ACTIVE' AND expires_at >= $3)`,
		tenantID, userID, now).Scan(&exists)
	if err != nil {
		return false, oops.Code("SESSION_QUERY_FAILED").With("operation", "exists active").With("user_id", userID).Wrap(err)
	}
	return exists, nil
}

func (r *PostgresRepository) RevokeAllUserSessions(ctx context.Context, tenantID, userID string, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE auth_sessions SET status = 'REVOKED', revoked_at = $3, updated_at = $3
		 WHERE tenant_id = $1 AND user_id = $2 AND status <> 'REVOKED'`,
		tenantID, userID, now)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_FAILED").With("user_id", userID).With("tenant_id", tenantID).Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, tenantID string, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM auth_sessions WHERE tenant_id = $1 AND (expires_at < $2 OR status = 'REVOKED')`,
		tenantID, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").With("operation", "delete expired").With("tenant_id", tenantID).Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, tenantID string, id domain.SessionID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE tenant_id = $1 AND id = $2`, tenantID, id.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("session_id", id.String()).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUserID(ctx context.Context, tenantID, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").With("operation", "delete by user").With("user_id", userID).Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM auth_sessions ORDER BY tenant_id`)
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "list tenants").Wrap(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "scan tenants").Wrap(err)
	}
	return ids, nil
}

func (r *PostgresRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.AuthSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	defer rows.Close()

	var out []*domain.AuthSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", op).Wrap(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*domain.AuthSession, error) {
	var (
		id, status string
		loc        []byte
		s          domain.AuthSession
	)
	err := row.Scan(&id, &s.TenantID, &s.UserID, &s.AccessTokenID, &s.RefreshTokenID, &s.RefreshTokenHash,
		&s.Device.UserAgent, &s.Device.IPAddress, &s.Device.DeviceType, &s.Device.Browser, &s.Device.OS,
		&loc, &status, &s.LastActivityAt, &s.ExpiresAt, &s.RevokedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.ID, err = domain.NewSessionID(id); err != nil {
		return nil, err
	}
	if s.Location, err = decodeLocation(loc); err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	return &s, nil
}

func encodeLocation(l *domain.LocationInfo) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func decodeLocation(b []byte) (*domain.LocationInfo, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var l domain.LocationInfo
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
