package service

import (
	"context"

	"github.com/pquerna/otp/totp"

	"tenant-iam/backend/internal/audit"
	"tenant-iam/backend/internal/events"
	userdomain "tenant-iam/backend/internal/user/domain"
)

const defaultTOTPIssuer = "tenant-iam"

type TwoFactorSetupResult struct {
	Result
	Secret string
	// OTPAuthURL is the otpauth:// provisioning URI for authenticator apps.
	OTPAuthURL string
}

// SetupTwoFactor re-checks the password and generates a pending TOTP secret. The secret
// becomes active only after VerifyTwoFactor confirms a code generated from it.
func (s *IdentityService) SetupTwoFactor(ctx context.Context, tenantID, userID, password string) TwoFactorSetupResult {
	u, res := s.loadUser(ctx, tenantID, userID)
	if u == nil {
		return TwoFactorSetupResult{Result: res}
	}
	if u.TwoFactorEnabled {
		return TwoFactorSetupResult{Result: fail(MsgTwoFactorEnabled)}
	}
	if password == "" || s.hasher.Compare(u.PasswordHash, password) != nil {
		return TwoFactorSetupResult{Result: fail(MsgInvalidPassword)}
	}
	issuer := s.settings.TOTPIssuer
	if issuer == "" {
		issuer = defaultTOTPIssuer
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: u.Email})
	if err != nil {
		return TwoFactorSetupResult{Result: s.internal("generate totp key", err)}
	}
	u.PendingTwoFactorSecret = key.Secret()
	if err := s.users.UpdateTwoFactor(ctx, u); err != nil {
		return TwoFactorSetupResult{Result: s.internal("store pending secret", err)}
	}
	return TwoFactorSetupResult{Result: ok(), Secret: key.Secret(), OTPAuthURL: key.URL()}
}

// VerifyTwoFactor confirms the pending secret with a code and enables two-factor login.
func (s *IdentityService) VerifyTwoFactor(ctx context.Context, tenantID, userID, code string) Result {
	u, res := s.loadUser(ctx, tenantID, userID)
	if u == nil {
		return res
	}
	if u.TwoFactorEnabled {
		return fail(MsgTwoFactorEnabled)
	}
	if u.PendingTwoFactorSecret == "" {
		return fail(MsgTwoFactorNotStarted)
	}
	if !validTOTP(code, u.PendingTwoFactorSecret, s.now()) {
		return fail(MsgInvalidTwoFactorCode)
	}
	u.TwoFactorSecret = u.PendingTwoFactorSecret
	u.PendingTwoFactorSecret = ""
	u.TwoFactorEnabled = true
	if err := s.users.UpdateTwoFactor(ctx, u); err != nil {
		return s.internal("enable two-factor", err)
	}
	s.auditLog(ctx, tenantID, u.ID, audit.ActionTwoFactorEnabled, nil)
	s.publish(tenantID, u.ID, events.TwoFactorEnabled)
	return ok()
}

// DisableTwoFactor turns two-factor login off. Both the password and a current code are required.
func (s *IdentityService) DisableTwoFactor(ctx context.Context, tenantID, userID, password, code string) Result {
	u, res := s.loadUser(ctx, tenantID, userID)
	if u == nil {
		return res
	}
	if !u.TwoFactorEnabled {
		return fail(MsgTwoFactorNotEnabled)
	}
	if password == "" || s.hasher.Compare(u.PasswordHash, password) != nil {
		return fail(MsgInvalidPassword)
	}
	if !validTOTP(code, u.TwoFactorSecret, s.now()) {
		return fail(MsgInvalidTwoFactorCode)
	}
	u.TwoFactorEnabled = false
	u.TwoFactorSecret = ""
	u.PendingTwoFactorSecret = ""
	if err := s.users.UpdateTwoFactor(ctx, u); err != nil {
		return s.internal("disable two-factor", err)
	}
	s.auditLog(ctx, tenantID, u.ID, audit.ActionTwoFactorDisabled, nil)
	s.publish(tenantID, u.ID, events.TwoFactorDisabled)
	return ok()
}

// loadUser returns the active user or a nil user with the failure result.
func (s *IdentityService) loadUser(ctx context.Context, tenantID, userID string) (*userdomain.User, Result) {
	if tenantID == "" || userID == "" {
		return nil, fail(MsgInvalidInput)
	}
	u, err := s.users.GetByID(ctx, tenantID, userID)
	if err != nil {
		return nil, s.internal("load user", err)
	}
	if u == nil || !u.IsActive() {
		return nil, fail(MsgUserNotFound)
	}
	return u, Result{}
}
