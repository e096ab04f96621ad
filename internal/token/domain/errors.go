package domain

import "errors"

var (
	// ErrTokenRequired is returned when an empty token string is supplied.
	ErrTokenRequired = errors.New("token is required")
	// ErrInvalidToken is returned when a token cannot be parsed or lacks required claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenMalformed is wrapped together with ErrInvalidToken when the token is not structurally a token.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenExpired is returned when the token's exp claim is already in the past.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenRevoked is returned by callers that find the token's session revoked.
	ErrTokenRevoked = errors.New("token has been revoked")
)
