// Package domain holds the tenant-scoped user account.
package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrInvalidEmail     = errors.New("email is invalid")
	ErrUsernameRequired = errors.New("username is required")
	ErrWeakPassword     = errors.New("password must be at least 8 characters")
	ErrEmailTaken       = errors.New("email or username already registered")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// User is a tenant's user account. Email is stored normalized (lowercase, trimmed).
type User struct {
	ID           string
	TenantID     string
	Email        string
	Username     string
	PasswordHash string
	Status       UserStatus
	// TwoFactorSecret is the confirmed TOTP secret; PendingTwoFactorSecret awaits verification.
	TwoFactorEnabled       bool
	TwoFactorSecret        string
	PendingTwoFactorSecret string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// NewUser validates the registration fields and returns an active user with a fresh id.
func NewUser(tenantID, email, username, passwordHash string, now time.Time) (*User, error) {
	u := &User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        NormalizeEmail(email),
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		Status:       UserStatusActive,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate returns the first validation failure. An empty status becomes active.
func (u *User) Validate() error {
	if u.Email == "" {
		return ErrEmailRequired
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return ErrInvalidEmail
	}
	if u.Username == "" {
		return ErrUsernameRequired
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

func (u *User) IsActive() bool { return u.Status == UserStatusActive }

// ValidatePassword enforces the minimum password length.
func ValidatePassword(p string) error {
	if len(p) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
