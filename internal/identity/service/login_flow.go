package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	attemptdomain "tenant-iam/backend/internal/loginattempt/domain"
	attemptsvc "tenant-iam/backend/internal/loginattempt/service"
	"tenant-iam/backend/internal/policy/engine"
	"tenant-iam/backend/internal/security"
	sessiondomain "tenant-iam/backend/internal/session/domain"
	sessionsvc "tenant-iam/backend/internal/session/service"
	userdomain "tenant-iam/backend/internal/user/domain"
	userrepo "tenant-iam/backend/internal/user/repository"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
)

// LoginRequest is one login attempt as received from the transport.
type LoginRequest struct {
	TenantID string
	Email    string
	Password string
	// TOTPCode is the second factor; required when the login policy asks for it.
	TOTPCode string
	Device   sessiondomain.DeviceInfo
	Location *sessiondomain.LocationInfo
}

// LoginResult carries the issued tokens on success and the security state on failure.
type LoginResult struct {
	Result
	AccessToken       string
	RefreshToken      string
	AccessExpiresAt   time.Time
	UserID            string
	SessionID         string
	RequiresTwoFactor bool
	RequiresCaptcha   bool
	// RemainingAttempts is -1 when no lockout threshold applies.
	RemainingAttempts int
	LockoutEndTime    *time.Time
}

// CredentialValidator checks one credential of an already resolved user.
type CredentialValidator interface {
	Type() attemptdomain.Type
	Validate(ctx context.Context, u *userdomain.User, req LoginRequest) error
}

// TokenIssuer mints the access/refresh pair for a session.
type TokenIssuer interface {
	IssuePair(tenantID, userID, sessionID string) (*security.TokenPair, error)
}

// SessionCreator persists the session backing an issued token pair.
type SessionCreator interface {
	CreateSession(ctx context.Context, in sessionsvc.CreateSessionInput) (*sessiondomain.AuthSession, error)
}

// PasswordValidator checks the request password against the stored bcrypt hash.
type PasswordValidator struct {
	Hasher *security.Hasher
}

func (v *PasswordValidator) Type() attemptdomain.Type { return attemptdomain.TypePassword }

func (v *PasswordValidator) Validate(_ context.Context, u *userdomain.User, req LoginRequest) error {
	if u.PasswordHash == "" || req.Password == "" {
		return ErrInvalidCredentials
	}
	if err := v.Hasher.Compare(u.PasswordHash, req.Password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// TOTPValidator checks the request TOTP code against the user's confirmed secret.
type TOTPValidator struct {
	Clock func() time.Time
}

func (v *TOTPValidator) Type() attemptdomain.Type { return attemptdomain.TypeOTP }

func (v *TOTPValidator) Validate(_ context.Context, u *userdomain.User, req LoginRequest) error {
	if !u.TwoFactorEnabled || u.TwoFactorSecret == "" {
		return ErrInvalidTwoFactorCode
	}
	if !validTOTP(req.TOTPCode, u.TwoFactorSecret, v.now()) {
		return ErrInvalidTwoFactorCode
	}
	return nil
}

func (v *TOTPValidator) now() time.Time {
	if v.Clock == nil {
		return time.Now()
	}
	return v.Clock()
}

// validTOTP accepts six digit SHA1 codes with one step of skew either way.
func validTOTP(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// LoginFlow is the login use case: security gate, credential check, attempt recording,
// login policy, second factor, token issue and session creation.
type LoginFlow struct {
	Users        userrepo.Repository
	Security     LoginSecurity
	Policy       attemptsvc.SecurityPolicy
	Credentials  CredentialValidator
	SecondFactor CredentialValidator
	// Decider is optional; without it the second factor is required iff the user enrolled one.
	Decider     engine.Evaluator
	Tokens      TokenIssuer
	Sessions    SessionCreator
	MaxSessions int
	Logger      *slog.Logger
}

// Run executes the flow. It never returns a Go error; failures are reported in the result.
func (f *LoginFlow) Run(ctx context.Context, req LoginRequest) LoginResult {
	email := attemptsvc.NormalizeEmail(req.Email)
	if req.TenantID == "" || email == "" || req.Password == "" {
		return LoginResult{Result: fail(MsgInvalidInput), RemainingAttempts: attemptsvc.UnlimitedAttempts}
	}
	req.Email = email
	ip := req.Device.IPAddress

	sec, err := f.Security.CheckLoginSecurity(ctx, req.TenantID, email, ip, f.Policy)
	if err != nil {
		return f.internal(ctx, "check login security", err)
	}
	if !sec.IsAllowed {
		f.record(ctx, req, "", attemptdomain.StatusBlocked, f.Credentials.Type(), sec.Reason)
		return LoginResult{
			Result:            fail(sec.Reason),
			RequiresCaptcha:   sec.RequiresCaptcha,
			RemainingAttempts: 0,
			LockoutEndTime:    sec.LockoutEndTime,
		}
	}

	u, err := f.Users.GetByEmail(ctx, req.TenantID, email)
	if err != nil {
		return f.internal(ctx, "load user", err)
	}
	if u == nil || !u.IsActive() {
		reason := "unknown user"
		userID := ""
		if u != nil {
			reason, userID = "user disabled", u.ID
		}
		f.record(ctx, req, userID, attemptdomain.StatusFailed, f.Credentials.Type(), reason)
		return f.failed(MsgInvalidCredentials, sec)
	}
	if err := f.Credentials.Validate(ctx, u, req); err != nil {
		f.record(ctx, req, u.ID, attemptdomain.StatusFailed, f.Credentials.Type(), "invalid password")
		return f.failed(MsgInvalidCredentials, sec)
	}

	decision := f.decide(ctx, req, u, sec)
	if decision.Deny {
		reason := decision.Reason
		if reason == "" {
			reason = MsgLoginDenied
		}
		f.record(ctx, req, u.ID, attemptdomain.StatusBlocked, f.Credentials.Type(), reason)
		return LoginResult{Result: fail(reason), RemainingAttempts: sec.RemainingAttempts, RequiresCaptcha: sec.RequiresCaptcha}
	}
	attemptType := f.Credentials.Type()
	if decision.RequireTwoFactor {
		if strings.TrimSpace(req.TOTPCode) == "" {
			return LoginResult{
				Result:            fail(MsgTwoFactorRequired),
				UserID:            u.ID,
				RequiresTwoFactor: true,
				RequiresCaptcha:   sec.RequiresCaptcha,
				RemainingAttempts: sec.RemainingAttempts,
			}
		}
		if err := f.SecondFactor.Validate(ctx, u, req); err != nil {
			f.record(ctx, req, u.ID, attemptdomain.StatusFailed, f.SecondFactor.Type(), "invalid two-factor code")
			res := f.failed(MsgInvalidTwoFactorCode, sec)
			res.RequiresTwoFactor = true
			return res
		}
		attemptType = f.SecondFactor.Type()
	}

	sid := sessiondomain.GenerateSessionID()
	pair, err := f.Tokens.IssuePair(req.TenantID, u.ID, sid.String())
	if err != nil {
		return f.internal(ctx, "issue tokens", err)
	}
	sess, err := f.Sessions.CreateSession(ctx, sessionsvc.CreateSessionInput{
		ID:                 sid,
		UserID:             u.ID,
		TenantID:           req.TenantID,
		AccessToken:        pair.Access,
		RefreshToken:       pair.Refresh,
		Device:             req.Device,
		Location:           req.Location,
		MaxSessionsPerUser: f.MaxSessions,
	})
	if err != nil {
		if errors.Is(err, sessiondomain.ErrTooManySessions) {
			return LoginResult{Result: fail(MsgTooManySessions), UserID: u.ID, RemainingAttempts: sec.RemainingAttempts}
		}
		return f.internal(ctx, "create session", err)
	}
	f.record(ctx, req, u.ID, attemptdomain.StatusSuccess, attemptType, "")

	return LoginResult{
		Result:            ok(),
		AccessToken:       pair.Access.Value(),
		RefreshToken:      pair.Refresh.Value(),
		AccessExpiresAt:   pair.Access.ExpiresAt(),
		UserID:            u.ID,
		SessionID:         sess.ID.String(),
		RemainingAttempts: sec.RemainingAttempts,
	}
}

func (f *LoginFlow) decide(ctx context.Context, req LoginRequest, u *userdomain.User, sec attemptsvc.LoginSecurityResult) engine.LoginDecision {
	fallback := engine.LoginDecision{RequireTwoFactor: u.TwoFactorEnabled}
	if f.Decider == nil {
		return fallback
	}
	suspicious, err := f.Security.DetectSuspiciousActivity(ctx, req.TenantID, req.Email, req.Device.IPAddress, f.Policy)
	if err != nil {
		f.Logger.WarnContext(ctx, "suspicious activity check failed", "tenant_id", req.TenantID, "error", err)
	}
	d, err := f.Decider.EvaluateLogin(ctx, engine.LoginInput{
		TenantID:          req.TenantID,
		UserID:            u.ID,
		UserStatus:        string(u.Status),
		TwoFactorEnabled:  u.TwoFactorEnabled,
		Suspicious:        suspicious,
		RequiresCaptcha:   sec.RequiresCaptcha,
		RemainingAttempts: sec.RemainingAttempts,
		IPAddress:         req.Device.IPAddress,
		UserAgent:         req.Device.UserAgent,
		DeviceType:        req.Device.DeviceType,
	})
	if err != nil {
		f.Logger.WarnContext(ctx, "login policy evaluation failed", "tenant_id", req.TenantID, "error", err)
	}
	// A user with an enrolled second factor is always asked for it.
	d.RequireTwoFactor = d.RequireTwoFactor || fallback.RequireTwoFactor
	// Only an enrolled user can be asked for a code.
	if d.RequireTwoFactor && !u.TwoFactorEnabled {
		d.RequireTwoFactor = false
	}
	return d
}

// failed reports a credential failure together with the headroom left after it.
func (f *LoginFlow) failed(msg string, sec attemptsvc.LoginSecurityResult) LoginResult {
	remaining := sec.RemainingAttempts
	if remaining > 0 {
		remaining--
	}
	return LoginResult{Result: fail(msg), RequiresCaptcha: sec.RequiresCaptcha, RemainingAttempts: remaining}
}

// record stores the attempt. A storage failure is logged; it does not change the login outcome.
func (f *LoginFlow) record(ctx context.Context, req LoginRequest, userID string, status attemptdomain.Status, typ attemptdomain.Type, reason string) {
	_, err := f.Security.RecordLoginAttempt(ctx, attemptsvc.RecordAttemptInput{
		UserID:        userID,
		TenantID:      req.TenantID,
		Email:         req.Email,
		Status:        status,
		Type:          typ,
		Device:        req.Device,
		Location:      req.Location,
		FailureReason: reason,
	})
	if err != nil {
		f.Logger.WarnContext(ctx, "login attempt not recorded", "tenant_id", req.TenantID, "status", string(status), "error", err)
	}
}

func (f *LoginFlow) internal(ctx context.Context, op string, err error) LoginResult {
	f.Logger.ErrorContext(ctx, "login failed", "operation", op, "error", err)
	return LoginResult{Result: fail(MsgInternal), RemainingAttempts: attemptsvc.UnlimitedAttempts}
}
