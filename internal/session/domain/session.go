// Package domain holds the AuthSession aggregate and its status state machine.
package domain

import (
	"time"

	tokendomain "tenant-iam/backend/internal/token/domain"
)

// Status is the stored session status. EXPIRED is never stored; it is derived from ExpiresAt.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusRevoked   Status = "REVOKED"
	StatusSuspended Status = "SUSPENDED"
)

// DeviceInfo describes the client that opened the session.
type DeviceInfo struct {
	UserAgent  string
	IPAddress  string
	DeviceType string
	Browser    string
	OS         string
}

// LocationInfo is optional geo metadata resolved from the client address.
type LocationInfo struct {
	Country   string   `json:"country,omitempty"`
	Region    string   `json:"region,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
}

// AuthSession is one authenticated session of a user within a tenant.
// ExpiresAt is fixed at creation and never extended.
//
// AccessToken and RefreshToken are only held by a freshly created session. Repositories
// persist the token ids and the refresh token hash, so loaded sessions have nil tokens.
type AuthSession struct {
	ID               SessionID
	UserID           string
	TenantID         string
	AccessToken      *tokendomain.JWTToken
	RefreshToken     *tokendomain.RefreshToken
	AccessTokenID    string // jti of the access token
	RefreshTokenID   string // jti of the refresh token; empty for opaque refresh tokens
	RefreshTokenHash string // SHA-256 of the refresh token, used for lookup on refresh
	Device           DeviceInfo
	Location         *LocationInfo
	Status           Status
	LastActivityAt   time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil when not revoked
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSessionParams carries the inputs of NewAuthSession. A zero ID is generated; a zero Now uses time.Now.
type NewSessionParams struct {
	ID               SessionID
	UserID           string
	TenantID         string
	AccessToken      *tokendomain.JWTToken
	RefreshToken     *tokendomain.RefreshToken
	RefreshTokenHash string
	Device           DeviceInfo
	Location         *LocationInfo
	Now              time.Time
}

// NewAuthSession returns an ACTIVE session expiring with its access token.
func NewAuthSession(p NewSessionParams) (*AuthSession, error) {
	if p.UserID == "" || p.TenantID == "" || p.AccessToken == nil || p.RefreshToken == nil {
		return nil, ErrIncompleteSession
	}
	id := p.ID
	if id.IsZero() {
		id = GenerateSessionID()
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &AuthSession{
		ID:               id,
		UserID:           p.UserID,
		TenantID:         p.TenantID,
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessTokenID:    p.AccessToken.TokenID(),
		RefreshTokenID:   p.RefreshToken.TokenID(),
		RefreshTokenHash: p.RefreshTokenHash,
		Device:           p.Device,
		Location:         p.Location,
		Status:           StatusActive,
		LastActivityAt:   now,
		ExpiresAt:        p.AccessToken.ExpiresAt().UTC(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Revoke moves the session to REVOKED. Revoking twice is a no-op.
func (s *AuthSession) Revoke() { s.RevokeAt(time.Now()) }

func (s *AuthSession) RevokeAt(now time.Time) {
	if s.Status == StatusRevoked {
		return
	}
	now = now.UTC()
	s.Status = StatusRevoked
	s.RevokedAt = &now
	s.UpdatedAt = now
}

// Suspend moves an ACTIVE session to SUSPENDED.
func (s *AuthSession) Suspend() error { return s.SuspendAt(time.Now()) }

func (s *AuthSession) SuspendAt(now time.Time) error {
	if s.Status != StatusActive {
		return ErrInvalidSessionTransition
	}
	s.Status = StatusSuspended
	s.UpdatedAt = now.UTC()
	return nil
}

// Activate moves a SUSPENDED session back to ACTIVE. Activating an ACTIVE session
// is a no-op; a REVOKED session cannot be reactivated.
func (s *AuthSession) Activate() error { return s.ActivateAt(time.Now()) }

func (s *AuthSession) ActivateAt(now time.Time) error {
	switch s.Status {
	case StatusRevoked:
		return ErrInvalidSessionTransition
	case StatusActive:
		return nil
	}
	s.Status = StatusActive
	s.UpdatedAt = now.UTC()
	return nil
}

// UpdateActivity bumps LastActivityAt. It fails without mutating the session when
// the session is revoked (checked first) or expired.
func (s *AuthSession) UpdateActivity() error { return s.UpdateActivityAt(time.Now()) }

func (s *AuthSession) UpdateActivityAt(now time.Time) error {
	if s.Status == StatusRevoked {
		return ErrSessionRevoked
	}
	if s.IsExpiredAt(now) {
		return ErrSessionExpired
	}
	if s.Status != StatusActive {
		return ErrInvalidSessionTransition
	}
	now = now.UTC()
	s.LastActivityAt = now
	s.UpdatedAt = now
	return nil
}

// IsActive reports status ACTIVE and not past expiry.
func (s *AuthSession) IsActive() bool { return s.IsActiveAt(time.Now()) }

func (s *AuthSession) IsActiveAt(now time.Time) bool {
	return s.Status == StatusActive && !s.IsExpiredAt(now)
}

func (s *AuthSession) IsExpired() bool { return s.IsExpiredAt(time.Now()) }

func (s *AuthSession) IsExpiredAt(now time.Time) bool { return now.After(s.ExpiresAt) }

func (s *AuthSession) IsRevoked() bool { return s.Status == StatusRevoked }

func (s *AuthSession) IsSuspended() bool { return s.Status == StatusSuspended }

// TimeToExpiry is negative once the session has expired.
func (s *AuthSession) TimeToExpiry() time.Duration { return s.TimeToExpiryAt(time.Now()) }

func (s *AuthSession) TimeToExpiryAt(now time.Time) time.Duration { return s.ExpiresAt.Sub(now) }

// InactivityDuration is the time since the last recorded activity.
func (s *AuthSession) InactivityDuration() time.Duration { return s.InactivityDurationAt(time.Now()) }

func (s *AuthSession) InactivityDurationAt(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// EffectiveStatus reports EXPIRED for ACTIVE or SUSPENDED sessions past expiry.
func (s *AuthSession) EffectiveStatus() Status { return s.EffectiveStatusAt(time.Now()) }

func (s *AuthSession) EffectiveStatusAt(now time.Time) Status {
	if s.Status != StatusRevoked && s.IsExpiredAt(now) {
		return StatusExpired
	}
	return s.Status
}
