package repository

import (
	"context"

	"tenant-iam/backend/internal/policy/domain"
)

// Repository defines persistence for tenant login policies.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Policy, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	// GetEnabledByTenant returns the tenant's enabled policies, oldest first.
	GetEnabledByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	Update(ctx context.Context, p *domain.Policy) error
}
