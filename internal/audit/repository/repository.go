package repository

import (
	"context"

	"tenant-iam/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.AuditLog, error)
	// ListByTenant returns the newest entries first.
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
