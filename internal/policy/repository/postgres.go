package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/policy/domain"
)

const policyColumns = `id, tenant_id, name, rules, enabled, created_at`

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a policy repository that uses the given pool for persistence.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns nil, nil when the policy does not exist.
func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Policy, error) {
	var p domain.Policy
	err := r.pool.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM login_policies WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("POLICY_QUERY_FAILED").With("policy_id", id).Wrap(err)
	}
	return &p, nil
}

func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM login_policies WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
}

func (r *PostgresRepository) GetEnabledByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM login_policies WHERE tenant_id = $1 AND enabled ORDER BY created_at`, tenantID)
}

func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_policies (`+policyColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.TenantID, p.Name, p.Rules, p.Enabled, p.CreatedAt)
	if err != nil {
		return oops.Code("POLICY_SAVE_FAILED").With("tenant_id", p.TenantID).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *domain.Policy) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE login_policies SET name = $3, rules = $4, enabled = $5 WHERE tenant_id = $1 AND id = $2`,
		p.TenantID, p.ID, p.Name, p.Rules, p.Enabled)
	if err != nil {
		return oops.Code("POLICY_SAVE_FAILED").With("policy_id", p.ID).Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query, tenantID string) ([]*domain.Policy, error) {
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, oops.Code("POLICY_QUERY_FAILED").With("tenant_id", tenantID).Wrap(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Policy, error) {
		var p domain.Policy
		err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt)
		return &p, err
	})
	if err != nil {
		return nil, oops.Code("POLICY_QUERY_FAILED").With("tenant_id", tenantID).Wrap(err)
	}
	return out, nil
}
