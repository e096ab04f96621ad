// Package service implements the identity use cases: registration, login, logout, token
// refresh, password reset, two-factor enrollment and session revocation. Every use case
// returns a result with Success and a human readable Error; business failures never surface
// as Go errors.
package service

import (
	"context"
	"log/slog"
	"time"

	"tenant-iam/backend/internal/audit"
	"tenant-iam/backend/internal/events"
	identityrepo "tenant-iam/backend/internal/identity/repository"
	"tenant-iam/backend/internal/logging"
	attemptdomain "tenant-iam/backend/internal/loginattempt/domain"
	attemptsvc "tenant-iam/backend/internal/loginattempt/service"
	"tenant-iam/backend/internal/notify"
	"tenant-iam/backend/internal/policy/engine"
	"tenant-iam/backend/internal/security"
	sessiondomain "tenant-iam/backend/internal/session/domain"
	tokendomain "tenant-iam/backend/internal/token/domain"
	userrepo "tenant-iam/backend/internal/user/repository"
)

// User facing messages.
const (
	MsgInvalidInput         = "Invalid request"
	MsgInvalidCredentials   = "Invalid credentials"
	MsgInternal             = "An internal error occurred"
	MsgTwoFactorRequired    = "Two-factor code required"
	MsgInvalidTwoFactorCode = "Invalid two-factor code"
	MsgLoginDenied          = "Login denied by policy"
	MsgTooManySessions      = "Maximum number of active sessions reached"
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgRefreshTokenExpired  = "Refresh token has expired"
	MsgRefreshTokenReuse    = "Refresh token reuse detected; all sessions revoked"
	MsgSessionSuspended     = "Session is suspended"
	MsgSessionNotFound      = "Session not found"
	MsgUserNotFound         = "User not found"
	MsgEmailTaken           = "Email or username already registered"
	MsgInvalidResetToken    = "Invalid or expired reset token"
	MsgInvalidPassword      = "Invalid password"
	MsgTwoFactorEnabled     = "Two-factor authentication is already enabled"
	MsgTwoFactorNotEnabled  = "Two-factor authentication is not enabled"
	MsgTwoFactorNotStarted  = "Two-factor setup has not been started"
)

// Result is embedded in every use case result.
type Result struct {
	Success bool
	Error   string
}

func ok() Result              { return Result{Success: true} }
func fail(msg string) Result { return Result{Error: msg} }

// SessionManager is the part of SessionManagementService the use cases need.
type SessionManager interface {
	SessionCreator
	GetSession(ctx context.Context, tenantID string, id sessiondomain.SessionID) (*sessiondomain.AuthSession, error)
	RevokeSession(ctx context.Context, tenantID string, id sessiondomain.SessionID) (*sessiondomain.AuthSession, error)
	RevokeAllUserSessions(ctx context.Context, tenantID, userID string) (int, error)
	FindByRefreshToken(ctx context.Context, tenantID, refreshToken string) (*sessiondomain.AuthSession, error)
	GetUserSessions(ctx context.Context, tenantID, userID string) ([]*sessiondomain.AuthSession, error)
}

// LoginSecurity is the part of LoginSecurityService the use cases need.
type LoginSecurity interface {
	CheckLoginSecurity(ctx context.Context, tenantID, email, ip string, policy attemptsvc.SecurityPolicy) (attemptsvc.LoginSecurityResult, error)
	RecordLoginAttempt(ctx context.Context, in attemptsvc.RecordAttemptInput) (*attemptdomain.LoginAttempt, error)
	DetectSuspiciousActivity(ctx context.Context, tenantID, email, ip string, policy attemptsvc.SecurityPolicy) (bool, error)
	ResetEmailAttempts(ctx context.Context, tenantID, email string) (int, error)
}

// TokenService issues token pairs and verifies refresh tokens. *security.TokenProvider satisfies it.
type TokenService interface {
	TokenIssuer
	ValidateRefresh(raw string) (*tokendomain.Claims, error)
}

// Settings are the tunables of the identity use cases.
type Settings struct {
	SecurityPolicy     attemptsvc.SecurityPolicy
	MaxSessionsPerUser int
	ResetTTL           time.Duration
	TOTPIssuer         string
}

// Deps are the collaborators of IdentityService. Policy, Notifier, Events, Audit, Logger
// and Clock are optional.
type Deps struct {
	Users       userrepo.Repository
	ResetTokens identityrepo.ResetTokenRepository
	Sessions    SessionManager
	Security    LoginSecurity
	Tokens      TokenService
	Hasher      *security.Hasher
	Policy      engine.Evaluator
	Notifier    notify.Notifier
	Events      events.Publisher
	Audit       audit.AuditLogger
	Logger      *slog.Logger
	Clock       func() time.Time
}

// IdentityService runs the identity use cases.
type IdentityService struct {
	users       userrepo.Repository
	resetTokens identityrepo.ResetTokenRepository
	sessions    SessionManager
	security    LoginSecurity
	tokens      TokenService
	hasher      *security.Hasher
	notifier    notify.Notifier
	events      events.Publisher
	audit       audit.AuditLogger
	logger      *slog.Logger
	now         func() time.Time
	settings    Settings
	login       *LoginFlow
}

// NewIdentityService wires the use cases and the login flow from deps.
func NewIdentityService(deps Deps, settings Settings) *IdentityService {
	s := &IdentityService{
		users:       deps.Users,
		resetTokens: deps.ResetTokens,
		sessions:    deps.Sessions,
		security:    deps.Security,
		tokens:      deps.Tokens,
		hasher:      deps.Hasher,
		notifier:    deps.Notifier,
		events:      deps.Events,
		audit:       deps.Audit,
		logger:      deps.Logger,
		now:         deps.Clock,
		settings:    settings,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger)
	}
	if s.settings.ResetTTL <= 0 {
		s.settings.ResetTTL = time.Hour
	}
	s.login = &LoginFlow{
		Users:        deps.Users,
		Security:     deps.Security,
		Policy:       settings.SecurityPolicy,
		Credentials:  &PasswordValidator{Hasher: deps.Hasher},
		SecondFactor: &TOTPValidator{Clock: s.now},
		Decider:      deps.Policy,
		Tokens:       deps.Tokens,
		Sessions:     deps.Sessions,
		MaxSessions:  settings.MaxSessionsPerUser,
		Logger:       s.logger,
	}
	return s
}

// Login runs the login flow.
func (s *IdentityService) Login(ctx context.Context, req LoginRequest) LoginResult {
	return s.login.Run(ctx, req)
}

func (s *IdentityService) auditLog(ctx context.Context, tenantID, userID, action string, attrs map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, tenantID, userID, action, "user", audit.Metadata(attrs))
}

func (s *IdentityService) publish(tenantID, userID, name string) {
	events.PublishAsync(s.events, s.logger, events.Event{
		Name:       name,
		TenantID:   tenantID,
		UserID:     userID,
		OccurredAt: s.now().UTC(),
	})
}

// internal logs err and returns the generic failure result.
func (s *IdentityService) internal(op string, err error) Result {
	logging.LogError(s.logger.With("operation", op), "identity use case failed", err)
	return fail(MsgInternal)
}
