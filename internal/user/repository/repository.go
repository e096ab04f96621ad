package repository

import (
	"context"

	"tenant-iam/backend/internal/user/domain"
)

// Repository defines tenant-scoped persistence for users. Lookups return (nil, nil) when
// no row matches.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, tenantID, username string) (*domain.User, error)
	// Create returns domain.ErrEmailTaken when email or username is already used in the tenant.
	Create(ctx context.Context, u *domain.User) error
	UpdatePassword(ctx context.Context, tenantID, userID, passwordHash string) error
	// UpdateTwoFactor writes the three two-factor columns of u.
	UpdateTwoFactor(ctx context.Context, u *domain.User) error
}
