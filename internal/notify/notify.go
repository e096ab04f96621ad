// Package notify delivers password reset messages.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Notifier sends a password reset secret to a user.
type Notifier interface {
	SendPasswordReset(ctx context.Context, tenantID, email, token string, expiresAt time.Time) error
}

// LogNotifier writes reset messages to the log instead of sending them. For development.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, tenantID, email, token string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "password reset email (not sent)",
		"tenant_id", tenantID,
		"to", email,
		"subject", resetSubject,
		"token", token,
		"expires_at", expiresAt.UTC().Format(time.RFC3339))
	return nil
}

const resetSubject = "Reset your password"

func resetBody(token string, expiresAt time.Time) string {
	return fmt.Sprintf("Use this code to reset your password: %s\n\nThe code expires at %s. "+
		"If you did not request a reset you can ignore this email.",
		token, expiresAt.UTC().Format(time.RFC1123))
}
