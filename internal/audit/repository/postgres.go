package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/audit/domain"
	"tenant-iam/backend/internal/db"
)

const auditColumns = `id, tenant_id, user_id, action, resource, ip, metadata, created_at`

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns an audit log repository backed by pool.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the audit log for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.AuditLog, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	a, err := scanAuditLog(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, oops.Code("AUDIT_QUERY_FAILED").With("tenant_id", tenantID).With("id", id).Wrap(err)
	}
	return a, nil
}

func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*domain.AuditLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, oops.Code("AUDIT_QUERY_FAILED").With("tenant_id", tenantID).Wrap(err)
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, oops.Code("AUDIT_QUERY_FAILED").With("tenant_id", tenantID).Wrap(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_QUERY_FAILED").With("tenant_id", tenantID).Wrap(err)
	}
	return out, nil
}

// Create persists a. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TenantID, nullString(a.UserID), a.Action, a.Resource, a.IP, nullString(a.Metadata), a.CreatedAt)
	if err != nil {
		return oops.Code("AUDIT_SAVE_FAILED").With("tenant_id", a.TenantID).With("action", a.Action).Wrap(err)
	}
	return nil
}

func scanAuditLog(row pgx.Row) (*domain.AuditLog, error) {
	var a domain.AuditLog
	var userID, metadata *string
	if err := row.Scan(&a.ID, &a.TenantID, &userID, &a.Action, &a.Resource, &a.IP, &metadata, &a.CreatedAt); err != nil {
		return nil, err
	}
	if userID != nil {
		a.UserID = *userID
	}
	if metadata != nil {
		a.Metadata = *metadata
	}
	return &a, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
