// Package tokentest builds token pairs for unit tests.
// For tests only; tokens are HMAC-signed with a fixed key.
package tokentest

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tenant-iam/backend/internal/token/domain"
)

var testKey = []byte("tokentest-signing-key")

// Sign returns c signed with HS256.
func Sign(c domain.Claims) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testKey)
	if err != nil {
		panic(err)
	}
	return s
}

// Pair returns an access token and a refresh token for userID in tenantID, both
// issued at iat. The access token expires at accessExp; the refresh token a day later.
// Tokens are parsed without the expiry check so callers can build already-lapsed pairs.
func Pair(userID, tenantID string, iat, accessExp time.Time) (*domain.JWTToken, *domain.RefreshToken) {
	ati := uuid.NewString()
	access, err := domain.ParseJWTToken(Sign(domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ati,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
		TenantID: tenantID,
		Type:     domain.TokenTypeAccess,
	}))
	if err != nil {
		panic(err)
	}
	refresh, err := domain.ParseRefreshToken(Sign(domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(accessExp.Add(24 * time.Hour)),
		},
		TenantID:      tenantID,
		Type:          domain.TokenTypeRefresh,
		AccessTokenID: ati,
	}))
	if err != nil {
		panic(err)
	}
	return access, refresh
}
