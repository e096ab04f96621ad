package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	tokendomain "tenant-iam/backend/internal/token/domain"
)

// TokenPair is an access token and the refresh token issued alongside it.
// The refresh token's ati claim is the access token's jti.
type TokenPair struct {
	Access  *tokendomain.JWTToken
	Refresh *tokendomain.RefreshToken
}

// TokenProvider issues and verifies access and refresh JWTs signed with RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey and verifies with publicKey.
// issuer and audience are set on issued claims and required on verification.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of p that reads the current time from now.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	c := *p
	c.now = now
	return &c
}

func (p *TokenProvider) AccessTTL() time.Duration  { return p.accessTTL }
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssuePair signs a new access/refresh pair for the user's session in tenantID.
func (p *TokenProvider) IssuePair(tenantID, userID, sessionID string) (*TokenPair, error) {
	now := p.now().UTC().Truncate(time.Second)

	accessJTI, err := generateJTI()
	if err != nil {
		return nil, err
	}
	accessRaw, err := p.sign(p.claims(tenantID, userID, sessionID, tokendomain.TokenTypeAccess, accessJTI, "", now, now.Add(p.accessTTL)))
	if err != nil {
		return nil, err
	}
	refreshJTI, err := generateJTI()
	if err != nil {
		return nil, err
	}
	refreshRaw, err := p.sign(p.claims(tenantID, userID, sessionID, tokendomain.TokenTypeRefresh, refreshJTI, accessJTI, now, now.Add(p.refreshTTL)))
	if err != nil {
		return nil, err
	}

	access, err := tokendomain.NewJWTTokenAt(accessRaw, now)
	if err != nil {
		return nil, err
	}
	refresh, err := tokendomain.NewRefreshTokenAt(refreshRaw, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (p *TokenProvider) claims(tenantID, userID, sessionID, typ, jti, ati string, iat, exp time.Time) tokendomain.Claims {
	return tokendomain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID:      tenantID,
		Type:          typ,
		SessionID:     sessionID,
		AccessTokenID: ati,
	}
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	return jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
}

// ValidateAccess verifies signature, expiry, issuer, audience, and the access type claim.
// Expired tokens fail with tokendomain.ErrTokenExpired, everything else with ErrInvalidToken.
func (p *TokenProvider) ValidateAccess(raw string) (*tokendomain.Claims, error) {
	return p.validate(raw, tokendomain.TokenTypeAccess)
}

// ValidateRefresh is ValidateAccess for refresh tokens.
func (p *TokenProvider) ValidateRefresh(raw string) (*tokendomain.Claims, error) {
	return p.validate(raw, tokendomain.TokenTypeRefresh)
}

func (p *TokenProvider) validate(raw, wantType string) (*tokendomain.Claims, error) {
	if raw == "" {
		return nil, tokendomain.ErrTokenRequired
	}
	claims := &tokendomain.Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return p.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, tokendomain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", tokendomain.ErrInvalidToken, err)
	}
	typ := claims.Type
	if typ == "" {
		typ = tokendomain.TokenTypeAccess
	}
	if typ != wantType || claims.TenantID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: unexpected claims", tokendomain.ErrInvalidToken)
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
