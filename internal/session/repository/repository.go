package repository

import (
	"context"
	"time"

	"tenant-iam/backend/internal/session/domain"
)

// Repository defines persistence for auth sessions. Every method is scoped by tenant.
// Finders return (nil, nil) when no row matches; errors are reserved for storage failures.
type Repository interface {
	// Save inserts the session or overwrites the mutable columns of an existing one.
	Save(ctx context.Context, s *domain.AuthSession) error
	FindByID(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error)
	FindByRefreshTokenHash(ctx context.Context, tenantID, hash string) (*domain.AuthSession, error)
	FindByUserID(ctx context.Context, tenantID, userID string) ([]*domain.AuthSession, error)
	// FindByDeviceInfo matches user agent and IP address; empty fields are ignored.
	FindByDeviceInfo(ctx context.Context, tenantID, userID string, device domain.DeviceInfo) ([]*domain.AuthSession, error)
	// FindExpiredSessions returns sessions past expiry at now that are not revoked.
	FindExpiredSessions(ctx context.Context, tenantID string, now time.Time) ([]*domain.AuthSession, error)
	FindRevokedSessions(ctx context.Context, tenantID string) ([]*domain.AuthSession, error)
	CountByUserID(ctx context.Context, tenantID, userID string) (int, error)
	// CountActiveSessions counts ACTIVE sessions of the user not yet expired at now.
	CountActiveSessions(ctx context.Context, tenantID, userID string, now time.Time) (int, error)
	ExistsActiveSession(ctx context.Context, tenantID, userID string, now time.Time) (bool, error)
	// RevokeAllUserSessions revokes every non-revoked session of the user and returns how many changed.
	RevokeAllUserSessions(ctx context.Context, tenantID, userID string, now time.Time) (int, error)
	// DeleteExpiredSessions removes sessions that are expired at now or revoked.
	DeleteExpiredSessions(ctx context.Context, tenantID string, now time.Time) (int, error)
	Delete(ctx context.Context, tenantID string, id domain.SessionID) error
	DeleteByUserID(ctx context.Context, tenantID, userID string) (int, error)
	// ListTenantIDs returns every tenant that owns at least one session.
	ListTenantIDs(ctx context.Context) ([]string, error)
}
