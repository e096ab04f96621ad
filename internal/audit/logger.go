// Package audit records security-relevant actions per tenant. Writes are best-effort.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tenant-iam/backend/internal/audit/domain"
	auditrepo "tenant-iam/backend/internal/audit/repository"
	"tenant-iam/backend/internal/logging"
)

// SentinelTenantID is recorded when an event has no resolvable tenant.
const SentinelTenantID = "_system"

// Actions written by the session, login-security, and identity flows.
const (
	ActionRegister               = "register"
	ActionLoginSuccess           = "login_success"
	ActionLoginFailure           = "login_failure"
	ActionLoginBlocked           = "login_blocked"
	ActionLogout                 = "logout"
	ActionSessionCreated         = "session_created"
	ActionSessionRevoked         = "session_revoked"
	ActionSessionsRevoked        = "sessions_revoked"
	ActionSessionSuspended       = "session_suspended"
	ActionSessionActivated       = "session_activated"
	ActionTokenRefresh           = "token_refresh"
	ActionRefreshReuse           = "refresh_token_reuse"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordReset          = "password_reset"
	ActionTwoFactorEnabled       = "two_factor_enabled"
	ActionTwoFactorDisabled      = "two_factor_disabled"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. LogEvent never fails the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger on an audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *slog.Logger
	now         func() time.Time
}

// NewLogger returns a Logger persisting to repo. ipExtractor and logger may be nil;
// the IP is then recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger, now: time.Now}
}

// LogEvent writes one audit entry. Errors are logged, not returned.
func (l *Logger) LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	var ip string
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	entry := domain.NewAuditLog(tenantID, userID, action, resource, ip, metadata, l.now())
	if err := l.repo.Create(ctx, entry); err != nil {
		logging.LogError(l.logger, "audit: failed to log event", err)
	}
}

// Metadata encodes attrs as a JSON object, or "" when empty.
func Metadata(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return ""
	}
	return string(b)
}
