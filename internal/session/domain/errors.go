package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no session exists for the id in the tenant.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session is past its expiry.
	ErrSessionExpired = errors.New("session has expired")
	// ErrSessionRevoked is returned when a session has been revoked.
	ErrSessionRevoked = errors.New("session has been revoked")
	// ErrSessionSuspended is returned when a suspended session is used.
	ErrSessionSuspended = errors.New("session is suspended")
	// ErrTooManySessions is matched by *TooManySessionsError.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrInvalidSessionID is returned when a session id has an unrecognised format.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrSessionIDRequired is returned when an empty session id is supplied.
	ErrSessionIDRequired = errors.New("session id is required")
	// ErrInvalidSessionTransition is returned for status changes the state machine does not allow.
	ErrInvalidSessionTransition = errors.New("invalid session status transition")
	// ErrIncompleteSession is returned by NewAuthSession when ownership or tokens are missing.
	ErrIncompleteSession = errors.New("session requires user, tenant and token pair")
)

// TooManySessionsError reports that a user already holds the maximum number of active sessions.
type TooManySessionsError struct {
	UserID string
	Limit  int
}

func (e *TooManySessionsError) Error() string {
	return fmt.Sprintf("user %s has reached the maximum of %d active sessions", e.UserID, e.Limit)
}

// Is makes errors.Is(err, ErrTooManySessions) hold.
func (e *TooManySessionsError) Is(target error) bool { return target == ErrTooManySessions }
