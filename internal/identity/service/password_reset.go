package service

import (
	"context"
	"errors"
	"strings"

	"tenant-iam/backend/internal/audit"
	"tenant-iam/backend/internal/events"
	identitydomain "tenant-iam/backend/internal/identity/domain"
	"tenant-iam/backend/internal/security"
	userdomain "tenant-iam/backend/internal/user/domain"
)

// RequestPasswordReset mails a single-use reset secret to an active user. The result is the
// same whether or not the email belongs to a user.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, tenantID, email string) Result {
	email = userdomain.NormalizeEmail(email)
	if tenantID == "" || email == "" {
		return fail(MsgInvalidInput)
	}
	u, err := s.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return s.internal("load user", err)
	}
	if u == nil || !u.IsActive() {
		s.logger.InfoContext(ctx, "password reset requested for unknown or inactive user", "tenant_id", tenantID)
		return ok()
	}

	secret, err := identitydomain.GenerateResetSecret()
	if err != nil {
		return s.internal("generate reset secret", err)
	}
	tok := identitydomain.NewPasswordResetToken(tenantID, u.ID, security.HashSecret(secret), s.now(), s.settings.ResetTTL)
	if err := s.resetTokens.Create(ctx, tok); err != nil {
		return s.internal("store reset token", err)
	}
	if err := s.notifier.SendPasswordReset(ctx, tenantID, u.Email, secret, tok.ExpiresAt); err != nil {
		// The token stays valid; the user can request another mail.
		s.logger.ErrorContext(ctx, "password reset mail failed", "tenant_id", tenantID, "user_id", u.ID, "error", err)
	}
	s.auditLog(ctx, tenantID, u.ID, audit.ActionPasswordResetRequested, nil)
	return ok()
}

// ResetPassword redeems a reset secret: the token is spent, the password replaced, every
// session revoked and the failed login history for the email cleared.
func (s *IdentityService) ResetPassword(ctx context.Context, tenantID, secret, newPassword string) Result {
	secret = strings.TrimSpace(secret)
	if tenantID == "" || secret == "" {
		return fail(MsgInvalidInput)
	}
	if err := userdomain.ValidatePassword(newPassword); err != nil {
		return fail(err.Error())
	}
	tok, err := s.resetTokens.GetByTokenHash(ctx, tenantID, security.HashSecret(secret))
	if err != nil {
		return s.internal("load reset token", err)
	}
	if tok == nil || tok.UsableAt(s.now()) != nil {
		return fail(MsgInvalidResetToken)
	}
	u, err := s.users.GetByID(ctx, tenantID, tok.UserID)
	if err != nil {
		return s.internal("load user", err)
	}
	if u == nil || !u.IsActive() {
		return fail(MsgInvalidResetToken)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.internal("hash password", err)
	}
	if err := s.resetTokens.MarkUsed(ctx, tenantID, tok.ID, s.now().UTC()); err != nil {
		if errors.Is(err, identitydomain.ErrResetTokenUsed) {
			return fail(MsgInvalidResetToken)
		}
		return s.internal("mark reset token used", err)
	}
	if err := s.users.UpdatePassword(ctx, tenantID, u.ID, hash); err != nil {
		return s.internal("update password", err)
	}

	s.revokeAllQuietly(ctx, tenantID, u.ID)
	if _, err := s.security.ResetEmailAttempts(ctx, tenantID, u.Email); err != nil {
		s.logger.WarnContext(ctx, "clearing login attempts failed", "tenant_id", tenantID, "user_id", u.ID, "error", err)
	}
	s.auditLog(ctx, tenantID, u.ID, audit.ActionPasswordReset, nil)
	s.publish(tenantID, u.ID, events.PasswordReset)
	return ok()
}
