// Package domain holds password reset tokens.
package domain

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrResetTokenInvalid = errors.New("password reset token is invalid")
	ErrResetTokenExpired = errors.New("password reset token has expired")
	ErrResetTokenUsed    = errors.New("password reset token has already been used")
)

// PasswordResetToken is a single-use reset grant. Only the hash of the secret is stored.
type PasswordResetToken struct {
	ID        string
	TenantID  string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// NewPasswordResetToken returns a token record for hash, valid for ttl from now.
func NewPasswordResetToken(tenantID, userID, hash string, now time.Time, ttl time.Duration) *PasswordResetToken {
	now = now.UTC()
	return &PasswordResetToken{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// UsableAt returns nil when the token can still be redeemed at now.
func (t *PasswordResetToken) UsableAt(now time.Time) error {
	if t.UsedAt != nil {
		return ErrResetTokenUsed
	}
	if now.After(t.ExpiresAt) {
		return ErrResetTokenExpired
	}
	return nil
}

// GenerateResetSecret returns 32 random bytes, base64url encoded without padding.
func GenerateResetSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
