// Package domain holds the LoginAttempt record, the append-only history that
// drives lockout and captcha decisions.
package domain

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	sessiondomain "tenant-iam/backend/internal/session/domain"
)

// Status is the outcome of an attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusBlocked Status = "blocked"
)

// Type is the authentication method used.
type Type string

const (
	TypePassword  Type = "password"
	TypeOTP       Type = "otp"
	TypeSSO       Type = "sso"
	TypeMagicLink Type = "magic_link"
)

// ErrIncompleteAttempt is returned when an attempt lacks its tenant or email.
var ErrIncompleteAttempt = errors.New("login attempt requires tenant and email")

// LoginAttempt is one authentication try. It is immutable once created.
type LoginAttempt struct {
	id            string
	userID        string
	tenantID      string
	email         string
	status        Status
	attemptType   Type
	device        sessiondomain.DeviceInfo
	location      *sessiondomain.LocationInfo
	failureReason string
	createdAt     time.Time
}

// NewAttemptParams carries the inputs of NewLoginAttempt. UserID is empty when the
// email did not resolve to a user. A zero CreatedAt uses time.Now.
type NewAttemptParams struct {
	UserID        string
	TenantID      string
	Email         string
	Status        Status
	Type          Type
	Device        sessiondomain.DeviceInfo
	Location      *sessiondomain.LocationInfo
	FailureReason string
	CreatedAt     time.Time
}

// NewLoginAttempt returns a new attempt with a time-ordered ULID id.
func NewLoginAttempt(p NewAttemptParams) (*LoginAttempt, error) {
	if p.TenantID == "" || p.Email == "" {
		return nil, ErrIncompleteAttempt
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()
	typ := p.Type
	if typ == "" {
		typ = TypePassword
	}
	return &LoginAttempt{
		id:            ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()).String(),
		userID:        p.UserID,
		tenantID:      p.TenantID,
		email:         p.Email,
		status:        p.Status,
		attemptType:   typ,
		device:        p.Device,
		location:      p.Location,
		failureReason: p.FailureReason,
		createdAt:     createdAt,
	}, nil
}

// Restore rebuilds a persisted attempt.
func Restore(id string, p NewAttemptParams) *LoginAttempt {
	return &LoginAttempt{
		id:            id,
		userID:        p.UserID,
		tenantID:      p.TenantID,
		email:         p.Email,
		status:        p.Status,
		attemptType:   p.Type,
		device:        p.Device,
		location:      p.Location,
		failureReason: p.FailureReason,
		createdAt:     p.CreatedAt.UTC(),
	}
}

func (a *LoginAttempt) ID() string                            { return a.id }
func (a *LoginAttempt) UserID() string                        { return a.userID }
func (a *LoginAttempt) TenantID() string                      { return a.tenantID }
func (a *LoginAttempt) Email() string                         { return a.email }
func (a *LoginAttempt) Status() Status                        { return a.status }
func (a *LoginAttempt) Type() Type                            { return a.attemptType }
func (a *LoginAttempt) Device() sessiondomain.DeviceInfo      { return a.device }
func (a *LoginAttempt) Location() *sessiondomain.LocationInfo { return a.location }
func (a *LoginAttempt) FailureReason() string                 { return a.failureReason }
func (a *LoginAttempt) CreatedAt() time.Time                  { return a.createdAt }
func (a *LoginAttempt) IPAddress() string                     { return a.device.IPAddress }
func (a *LoginAttempt) UserAgent() string                     { return a.device.UserAgent }
func (a *LoginAttempt) IsSuccessful() bool                    { return a.status == StatusSuccess }
func (a *LoginAttempt) IsFailed() bool                        { return a.status == StatusFailed }
func (a *LoginAttempt) IsBlocked() bool                       { return a.status == StatusBlocked }
