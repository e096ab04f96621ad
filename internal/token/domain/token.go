// Package domain holds the access and refresh token value objects. Tokens are
// immutable once constructed and validate their own shape and expiry; signature
// verification is done by security.TokenProvider before a token reaches here.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	minJWTLength           = 20
	minOpaqueRefreshLength = 32
	opaqueRefreshTTL       = 30 * 24 * time.Hour
)

var opaqueRefreshPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Claims is the claim set issued by security.TokenProvider and read by the value objects.
type Claims struct {
	jwt.RegisteredClaims
	TenantID      string `json:"tenant_id"`
	Type          string `json:"type,omitempty"`
	SessionID     string `json:"sid,omitempty"`
	AccessTokenID string `json:"ati,omitempty"`
}

// JWTToken is an access token. Equality is by raw value.
type JWTToken struct {
	value     string
	claims    Claims
	issuedAt  time.Time
	expiresAt time.Time
}

// NewJWTToken parses raw and rejects empty, malformed, or already expired tokens.
func NewJWTToken(raw string) (*JWTToken, error) {
	return NewJWTTokenAt(raw, time.Now())
}

// NewJWTTokenAt is NewJWTToken with an explicit current time.
func NewJWTTokenAt(raw string, now time.Time) (*JWTToken, error) {
	t, err := ParseJWTToken(raw)
	if err != nil {
		return nil, err
	}
	if t.IsExpiredAt(now) {
		return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, t.expiresAt.UTC().Format(time.RFC3339))
	}
	return t, nil
}

// ParseJWTToken performs the structural checks of NewJWTToken but accepts expired
// tokens. Repositories use it to rehydrate sessions whose access token has lapsed.
func ParseJWTToken(raw string) (*JWTToken, error) {
	c, err := parseClaims(raw)
	if err != nil {
		return nil, err
	}
	t := &JWTToken{value: raw, claims: *c, expiresAt: c.ExpiresAt.Time}
	if c.IssuedAt != nil {
		t.issuedAt = c.IssuedAt.Time
	} else {
		t.issuedAt = time.Now()
	}
	return t, nil
}

// IsValidJWTToken reports whether NewJWTToken would succeed for raw.
func IsValidJWTToken(raw string) bool {
	_, err := NewJWTToken(raw)
	return err == nil
}

func (t *JWTToken) Value() string        { return t.value }
func (t *JWTToken) ExpiresAt() time.Time { return t.expiresAt }
func (t *JWTToken) IssuedAt() time.Time  { return t.issuedAt }
func (t *JWTToken) UserID() string       { return t.claims.Subject }
func (t *JWTToken) TenantID() string     { return t.claims.TenantID }
func (t *JWTToken) SessionID() string    { return t.claims.SessionID }
func (t *JWTToken) TokenID() string      { return t.claims.ID }

// TokenType returns the "type" claim, "access" when absent.
func (t *JWTToken) TokenType() string {
	if t.claims.Type == "" {
		return TokenTypeAccess
	}
	return t.claims.Type
}

// IsExpired is evaluated against the wall clock on every call.
func (t *JWTToken) IsExpired() bool { return t.IsExpiredAt(time.Now()) }

// IsExpiredAt reports whether the token is past its exp claim at now.
func (t *JWTToken) IsExpiredAt(now time.Time) bool { return now.After(t.expiresAt) }

// Equals compares raw values. A nil receiver or argument is never equal.
func (t *JWTToken) Equals(other *JWTToken) bool {
	if t == nil || other == nil {
		return false
	}
	return t.value == other.value
}

func (t *JWTToken) String() string { return maskToken(t.value) }

// RefreshToken is a refresh token, either a JWT issued next to an access token or
// an opaque random string.
type RefreshToken struct {
	value     string
	claims    Claims
	opaque    bool
	issuedAt  time.Time
	expiresAt time.Time
}

// NewRefreshToken parses raw and rejects empty, malformed, or already expired tokens.
// Opaque tokens (UUID or >=32 url-safe characters) default to a 30-day lifetime.
func NewRefreshToken(raw string) (*RefreshToken, error) {
	return NewRefreshTokenAt(raw, time.Now())
}

// NewRefreshTokenAt is NewRefreshToken with an explicit current time.
func NewRefreshTokenAt(raw string, now time.Time) (*RefreshToken, error) {
	t, err := parseRefresh(raw, now)
	if err != nil {
		return nil, err
	}
	if t.IsExpiredAt(now) {
		return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, t.expiresAt.UTC().Format(time.RFC3339))
	}
	return t, nil
}

// ParseRefreshToken accepts expired tokens; see ParseJWTToken.
func ParseRefreshToken(raw string) (*RefreshToken, error) {
	return parseRefresh(raw, time.Now())
}

// IsValidRefreshToken reports whether NewRefreshToken would succeed for raw.
func IsValidRefreshToken(raw string) bool {
	_, err := NewRefreshToken(raw)
	return err == nil
}

func parseRefresh(raw string, now time.Time) (*RefreshToken, error) {
	if raw == "" {
		return nil, ErrTokenRequired
	}
	if strings.Count(raw, ".") == 2 {
		c, err := parseClaims(raw)
		if err != nil {
			return nil, err
		}
		t := &RefreshToken{value: raw, claims: *c, expiresAt: c.ExpiresAt.Time, issuedAt: now}
		if c.IssuedAt != nil {
			t.issuedAt = c.IssuedAt.Time
		}
		return t, nil
	}
	if !isOpaqueRefresh(raw) {
		return nil, fmt.Errorf("%w: %w: unrecognised refresh token format", ErrInvalidToken, ErrTokenMalformed)
	}
	return &RefreshToken{
		value:     raw,
		opaque:    true,
		issuedAt:  now,
		expiresAt: now.Add(opaqueRefreshTTL),
	}, nil
}

func isOpaqueRefresh(raw string) bool {
	if _, err := uuid.Parse(raw); err == nil {
		return true
	}
	return len(raw) >= minOpaqueRefreshLength && opaqueRefreshPattern.MatchString(raw)
}

func (t *RefreshToken) Value() string         { return t.value }
func (t *RefreshToken) ExpiresAt() time.Time  { return t.expiresAt }
func (t *RefreshToken) IssuedAt() time.Time   { return t.issuedAt }
func (t *RefreshToken) UserID() string        { return t.claims.Subject }
func (t *RefreshToken) TenantID() string      { return t.claims.TenantID }
func (t *RefreshToken) SessionID() string     { return t.claims.SessionID }
func (t *RefreshToken) TokenID() string       { return t.claims.ID }
func (t *RefreshToken) AccessTokenID() string { return t.claims.AccessTokenID }

// IsOpaque reports whether the token is a non-JWT random string.
func (t *RefreshToken) IsOpaque() bool { return t.opaque }

// TokenType returns the "type" claim, "refresh" when absent.
func (t *RefreshToken) TokenType() string {
	if t.claims.Type == "" {
		return TokenTypeRefresh
	}
	return t.claims.Type
}

func (t *RefreshToken) IsExpired() bool                { return t.IsExpiredAt(time.Now()) }
func (t *RefreshToken) IsExpiredAt(now time.Time) bool { return now.After(t.expiresAt) }

// Equals compares raw values. A nil receiver or argument is never equal.
func (t *RefreshToken) Equals(other *RefreshToken) bool {
	if t == nil || other == nil {
		return false
	}
	return t.value == other.value
}

func (t *RefreshToken) String() string { return maskToken(t.value) }

func parseClaims(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenRequired
	}
	if len(raw) < minJWTLength {
		return nil, fmt.Errorf("%w: %w: token too short", ErrInvalidToken, ErrTokenMalformed)
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %w: expected 3 segments, got %d", ErrInvalidToken, ErrTokenMalformed, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %w: empty segment", ErrInvalidToken, ErrTokenMalformed)
		}
	}
	c := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, c); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrInvalidToken, ErrTokenMalformed, err)
	}
	if c.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}
	return c, nil
}

func maskToken(v string) string {
	if len(v) <= 8 {
		return "***"
	}
	return v[:8] + "..."
}
