package repository

import (
	"context"
	"time"

	"tenant-iam/backend/internal/loginattempt/domain"
)

// Repository defines persistence for login attempts. Attempts are append-only;
// the only mutations are deletions. Every method is scoped by tenant.
type Repository interface {
	Save(ctx context.Context, a *domain.LoginAttempt) error
	// GetRecentFailedAttempts returns FAILED attempts for email created at or after since, oldest first.
	GetRecentFailedAttempts(ctx context.Context, tenantID, email string, since time.Time) ([]*domain.LoginAttempt, error)
	// GetRecentFailedAttemptsByIP returns FAILED attempts from ip created at or after since, oldest first.
	GetRecentFailedAttemptsByIP(ctx context.Context, tenantID, ip string, since time.Time) ([]*domain.LoginAttempt, error)
	CountFailedAttemptsByEmail(ctx context.Context, tenantID, email string, since time.Time) (int, error)
	// CountByIPAddress counts attempts of any status from ip since the given time.
	CountByIPAddress(ctx context.Context, tenantID, ip string, since time.Time) (int, error)
	// FindByEmail returns up to limit attempts for email, newest first. limit <= 0 means no limit.
	FindByEmail(ctx context.Context, tenantID, email string, limit int) ([]*domain.LoginAttempt, error)
	FindByUserID(ctx context.Context, tenantID, userID string, limit int) ([]*domain.LoginAttempt, error)
	// DeleteOldAttempts removes attempts created before the given time.
	DeleteOldAttempts(ctx context.Context, tenantID string, before time.Time) (int, error)
	DeleteByUserID(ctx context.Context, tenantID, userID string) (int, error)
	DeleteByEmail(ctx context.Context, tenantID, email string) (int, error)
	ListTenantIDs(ctx context.Context) ([]string, error)
}
