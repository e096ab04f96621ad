package repository

import (
	"context"
	"time"

	"tenant-iam/backend/internal/identity/domain"
)

// ResetTokenRepository persists password reset tokens.
type ResetTokenRepository interface {
	Create(ctx context.Context, t *domain.PasswordResetToken) error
	// GetByTokenHash returns nil, nil when no token has the hash.
	GetByTokenHash(ctx context.Context, tenantID, hash string) (*domain.PasswordResetToken, error)
	// MarkUsed sets used_at once. It returns domain.ErrResetTokenUsed when the token was already used.
	MarkUsed(ctx context.Context, tenantID, id string, at time.Time) error
	DeleteByUserID(ctx context.Context, tenantID, userID string) error
}
