// Package events defines the domain event port used by the session, login-security,
// and identity services. Publishing is best-effort: failures are logged and never
// returned to the caller of the business operation.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event names.
const (
	SessionCreated    = "session.created"
	SessionRevoked    = "session.revoked"
	SessionSuspended  = "session.suspended"
	SessionActivated  = "session.activated"
	LoginSucceeded    = "login.succeeded"
	LoginFailed       = "login.failed"
	LoginLocked       = "login.locked"
	PasswordReset     = "password.reset"
	TwoFactorEnabled  = "twofactor.enabled"
	TwoFactorDisabled = "twofactor.disabled"
)

// publishTimeout bounds a single asynchronous publish.
const publishTimeout = 5 * time.Second

// Event is one domain event.
type Event struct {
	Name       string            `json:"name"`
	TenantID   string            `json:"tenant_id"`
	UserID     string            `json:"user_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishAsync runs Publish in a goroutine with a short timeout so the caller is not blocked.
// The goroutine uses context.Background so request cancellation does not abort the publish.
// A nil publisher is a no-op.
func PublishAsync(p Publisher, logger *slog.Logger, e Event) {
	if p == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, e); err != nil {
			logger.Warn("event publish failed", "event", e.Name, "tenant_id", e.TenantID, "error", err)
		}
	}()
}
