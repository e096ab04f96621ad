// Package service implements login security decisions (lockout, rate limiting, captcha
// escalation) computed from the persisted login attempt history.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"tenant-iam/backend/internal/audit"
	"tenant-iam/backend/internal/events"
	"tenant-iam/backend/internal/loginattempt/domain"
	attemptrepo "tenant-iam/backend/internal/loginattempt/repository"
	sessiondomain "tenant-iam/backend/internal/session/domain"
)

const (
	// ReasonAccountLocked is returned when the email axis is locked out.
	ReasonAccountLocked = "Account temporarily locked due to too many failed attempts"
	// ReasonIPBlocked is returned when the IP axis is locked out.
	ReasonIPBlocked = "Too many failed attempts from this IP address"

	// UnlimitedAttempts is reported as RemainingAttempts when neither axis has a threshold.
	UnlimitedAttempts = -1

	suspiciousActivityWindow = 60 * time.Minute
)

// SecurityPolicy holds the caller-supplied thresholds. A zero threshold disables its check.
type SecurityPolicy struct {
	MaxFailedAttemptsPerEmail   int
	MaxFailedAttemptsPerIP      int
	LockoutDurationMinutes      int
	SuspiciousActivityThreshold int
	RequireCaptchaAfterAttempts int
}

// LockoutDuration is both the counting window and the lockout length.
func (p SecurityPolicy) LockoutDuration() time.Duration {
	return time.Duration(p.LockoutDurationMinutes) * time.Minute
}

// LoginSecurityResult is the decision returned by CheckLoginSecurity.
type LoginSecurityResult struct {
	IsAllowed         bool
	Reason            string
	RemainingAttempts int
	// LockoutEndTime is set only when IsAllowed is false.
	LockoutEndTime  *time.Time
	RequiresCaptcha bool
}

// Metrics receives login security counts. *observability.Metrics satisfies it.
type Metrics interface {
	LoginAttempt(status, attemptType string)
	Lockout(axis string)
	CaptchaRequiredCheck()
	CleanupDeletedCount(kind string, n int)
}

// Options holds the optional collaborators of LoginSecurityService.
type Options struct {
	Clock   func() time.Time
	Logger  *slog.Logger
	Events  events.Publisher
	Audit   audit.AuditLogger
	Metrics Metrics
}

// LoginSecurityService records login attempts and derives lockout decisions from them.
// Decisions re-read the history on every call; a check and the following record are not atomic.
type LoginSecurityService struct {
	repo    attemptrepo.Repository
	now     func() time.Time
	logger  *slog.Logger
	events  events.Publisher
	audit   audit.AuditLogger
	metrics Metrics
}

func NewLoginSecurityService(repo attemptrepo.Repository, opts Options) *LoginSecurityService {
	s := &LoginSecurityService{
		repo:    repo,
		now:     opts.Clock,
		logger:  opts.Logger,
		events:  opts.Events,
		audit:   opts.Audit,
		metrics: opts.Metrics,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// NormalizeEmail lowercases and trims email so history lookups match regardless of input casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RecordAttemptInput carries the inputs of RecordLoginAttempt. UserID is empty when the email
// did not resolve to a user.
type RecordAttemptInput struct {
	UserID        string
	TenantID      string
	Email         string
	Status        domain.Status
	Type          domain.Type
	Device        sessiondomain.DeviceInfo
	Location      *sessiondomain.LocationInfo
	FailureReason string
}

// RecordLoginAttempt appends one attempt to the history. Only storage failures are returned.
func (s *LoginSecurityService) RecordLoginAttempt(ctx context.Context, in RecordAttemptInput) (*domain.LoginAttempt, error) {
	a, err := domain.NewLoginAttempt(domain.NewAttemptParams{
		UserID:        in.UserID,
		TenantID:      in.TenantID,
		Email:         NormalizeEmail(in.Email),
		Status:        in.Status,
		Type:          in.Type,
		Device:        in.Device,
		Location:      in.Location,
		FailureReason: in.FailureReason,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.LoginAttempt(string(a.Status()), string(a.Type()))
	}
	s.recordAttempt(ctx, a)
	return a, nil
}

func (s *LoginSecurityService) recordAttempt(ctx context.Context, a *domain.LoginAttempt) {
	name, action := events.LoginFailed, audit.ActionLoginFailure
	switch a.Status() {
	case domain.StatusSuccess:
		name, action = events.LoginSucceeded, audit.ActionLoginSuccess
	case domain.StatusBlocked:
		name, action = events.LoginLocked, audit.ActionLoginBlocked
	}
	attrs := map[string]string{"email": a.Email(), "type": string(a.Type()), "ip": a.IPAddress()}
	if a.FailureReason() != "" {
		attrs["reason"] = a.FailureReason()
	}
	events.PublishAsync(s.events, s.logger, events.Event{
		Name:       name,
		TenantID:   a.TenantID(),
		UserID:     a.UserID(),
		OccurredAt: a.CreatedAt(),
		Attributes: attrs,
	})
	if s.audit != nil {
		s.audit.LogEvent(ctx, a.TenantID(), a.UserID(), action, "user", audit.Metadata(map[string]string{
			"attempt_id": a.ID(),
			"type":       string(a.Type()),
		}))
	}
}

// CheckLoginSecurity decides whether a login for email from ip may proceed. The email axis
// is checked first and the first lockout found wins. When allowed, RemainingAttempts is the
// smaller headroom of the enabled axes and RequiresCaptcha reports whether either axis has
// reached the captcha threshold.
func (s *LoginSecurityService) CheckLoginSecurity(ctx context.Context, tenantID, email, ip string, policy SecurityPolicy) (LoginSecurityResult, error) {
	now := s.now()
	emailFailed, err := s.failedByEmail(ctx, tenantID, email, now.Add(-policy.LockoutDuration()))
	if err != nil {
		return LoginSecurityResult{}, err
	}
	if end, locked := lockoutEnd(emailFailed, policy.MaxFailedAttemptsPerEmail, policy.LockoutDuration(), now); locked {
		s.lockedOut(tenantID, email, ip, "email", end)
		return LoginSecurityResult{Reason: ReasonAccountLocked, LockoutEndTime: &end, RequiresCaptcha: true}, nil
	}

	ipFailed, err := s.failedByIP(ctx, tenantID, ip, now.Add(-policy.LockoutDuration()))
	if err != nil {
		return LoginSecurityResult{}, err
	}
	if end, locked := lockoutEnd(ipFailed, policy.MaxFailedAttemptsPerIP, policy.LockoutDuration(), now); locked {
		s.lockedOut(tenantID, email, ip, "ip", end)
		return LoginSecurityResult{Reason: ReasonIPBlocked, LockoutEndTime: &end, RequiresCaptcha: true}, nil
	}

	res := LoginSecurityResult{
		IsAllowed:         true,
		RemainingAttempts: remaining(policy, len(emailFailed), len(ipFailed)),
		RequiresCaptcha:   captchaRequired(policy, len(emailFailed), len(ipFailed)),
	}
	if res.RequiresCaptcha && s.metrics != nil {
		s.metrics.CaptchaRequiredCheck()
	}
	return res, nil
}

func (s *LoginSecurityService) lockedOut(tenantID, email, ip, axis string, end time.Time) {
	if s.metrics != nil {
		s.metrics.Lockout(axis)
	}
	s.logger.Info("login locked out", "tenant_id", tenantID, "axis", axis, "lockout_end", end)
	events.PublishAsync(s.events, s.logger, events.Event{
		Name:       events.LoginLocked,
		TenantID:   tenantID,
		OccurredAt: s.now().UTC(),
		Attributes: map[string]string{"axis": axis, "email": NormalizeEmail(email), "ip": ip, "lockout_end": end.Format(time.RFC3339)},
	})
}

// IsAccountLocked reports whether the email axis alone is locked out.
func (s *LoginSecurityService) IsAccountLocked(ctx context.Context, tenantID, email string, policy SecurityPolicy) (bool, error) {
	end, err := s.GetLockoutEndTime(ctx, tenantID, email, policy)
	return end != nil, err
}

// IsIPBlocked reports whether the IP axis alone is locked out.
func (s *LoginSecurityService) IsIPBlocked(ctx context.Context, tenantID, ip string, policy SecurityPolicy) (bool, error) {
	now := s.now()
	failed, err := s.failedByIP(ctx, tenantID, ip, now.Add(-policy.LockoutDuration()))
	if err != nil {
		return false, err
	}
	_, locked := lockoutEnd(failed, policy.MaxFailedAttemptsPerIP, policy.LockoutDuration(), now)
	return locked, nil
}

// GetLockoutEndTime returns when the email lockout ends, or nil when the email is not locked.
func (s *LoginSecurityService) GetLockoutEndTime(ctx context.Context, tenantID, email string, policy SecurityPolicy) (*time.Time, error) {
	now := s.now()
	failed, err := s.failedByEmail(ctx, tenantID, email, now.Add(-policy.LockoutDuration()))
	if err != nil {
		return nil, err
	}
	if end, locked := lockoutEnd(failed, policy.MaxFailedAttemptsPerEmail, policy.LockoutDuration(), now); locked {
		return &end, nil
	}
	return nil, nil
}

// GetRemainingAttempts returns the failures left before lockout on the tighter axis.
// An empty ip skips the IP axis.
func (s *LoginSecurityService) GetRemainingAttempts(ctx context.Context, tenantID, email, ip string, policy SecurityPolicy) (int, error) {
	since := s.now().Add(-policy.LockoutDuration())
	emailFailed, err := s.failedByEmail(ctx, tenantID, email, since)
	if err != nil {
		return 0, err
	}
	ipFailed, err := s.failedByIP(ctx, tenantID, ip, since)
	if err != nil {
		return 0, err
	}
	return remaining(policy, len(emailFailed), len(ipFailed)), nil
}

// DetectSuspiciousActivity reports whether failures in the last hour on either axis reach
// SuspiciousActivityThreshold. The window is independent of the lockout window.
func (s *LoginSecurityService) DetectSuspiciousActivity(ctx context.Context, tenantID, email, ip string, policy SecurityPolicy) (bool, error) {
	if policy.SuspiciousActivityThreshold <= 0 {
		return false, nil
	}
	since := s.now().Add(-suspiciousActivityWindow)
	emailFailed, err := s.failedByEmail(ctx, tenantID, email, since)
	if err != nil {
		return false, err
	}
	if len(emailFailed) >= policy.SuspiciousActivityThreshold {
		return true, nil
	}
	ipFailed, err := s.failedByIP(ctx, tenantID, ip, since)
	if err != nil {
		return false, err
	}
	return len(ipFailed) >= policy.SuspiciousActivityThreshold, nil
}

// GetLoginHistory returns up to limit attempts for email, newest first.
func (s *LoginSecurityService) GetLoginHistory(ctx context.Context, tenantID, email string, limit int) ([]*domain.LoginAttempt, error) {
	return s.repo.FindByEmail(ctx, tenantID, NormalizeEmail(email), limit)
}

// GetUserLoginHistory returns up to limit attempts attributed to userID, newest first.
func (s *LoginSecurityService) GetUserLoginHistory(ctx context.Context, tenantID, userID string, limit int) ([]*domain.LoginAttempt, error) {
	return s.repo.FindByUserID(ctx, tenantID, userID, limit)
}

// GetRecentFailedAttempts returns failed attempts for email within the last minutes, oldest first.
func (s *LoginSecurityService) GetRecentFailedAttempts(ctx context.Context, tenantID, email string, minutes int) ([]*domain.LoginAttempt, error) {
	return s.failedByEmail(ctx, tenantID, email, s.now().Add(-time.Duration(minutes)*time.Minute))
}

// CleanupOldAttempts deletes the tenant's attempts older than daysToKeep days.
func (s *LoginSecurityService) CleanupOldAttempts(ctx context.Context, tenantID string, daysToKeep int) (int, error) {
	if daysToKeep < 0 {
		return 0, oops.Code("INVALID_RETENTION").With("days_to_keep", daysToKeep).Errorf("daysToKeep must not be negative")
	}
	before := s.now().UTC().AddDate(0, 0, -daysToKeep)
	n, err := s.repo.DeleteOldAttempts(ctx, tenantID, before)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.CleanupDeletedCount("login_attempts", n)
	}
	if n > 0 {
		s.logger.Info("old login attempts removed", "tenant_id", tenantID, "count", n, "before", before)
	}
	return n, nil
}

// ResetUserAttempts deletes every attempt attributed to userID.
func (s *LoginSecurityService) ResetUserAttempts(ctx context.Context, tenantID, userID string) (int, error) {
	return s.repo.DeleteByUserID(ctx, tenantID, userID)
}

// ResetEmailAttempts deletes every attempt for email, lifting an email lockout.
func (s *LoginSecurityService) ResetEmailAttempts(ctx context.Context, tenantID, email string) (int, error) {
	return s.repo.DeleteByEmail(ctx, tenantID, NormalizeEmail(email))
}

// ListTenants returns every tenant with recorded attempts, for cleanup jobs.
func (s *LoginSecurityService) ListTenants(ctx context.Context) ([]string, error) {
	return s.repo.ListTenantIDs(ctx)
}

func (s *LoginSecurityService) failedByEmail(ctx context.Context, tenantID, email string, since time.Time) ([]*domain.LoginAttempt, error) {
	return s.repo.GetRecentFailedAttempts(ctx, tenantID, NormalizeEmail(email), since.UTC())
}

func (s *LoginSecurityService) failedByIP(ctx context.Context, tenantID, ip string, since time.Time) ([]*domain.LoginAttempt, error) {
	if ip == "" {
		return nil, nil
	}
	return s.repo.GetRecentFailedAttemptsByIP(ctx, tenantID, ip, since.UTC())
}

// lockoutEnd reports a lockout when failed (oldest first) reaches limit and the oldest
// qualifying failure plus duration is still in the future.
func lockoutEnd(failed []*domain.LoginAttempt, limit int, duration time.Duration, now time.Time) (time.Time, bool) {
	if limit <= 0 || len(failed) < limit {
		return time.Time{}, false
	}
	end := failed[0].CreatedAt().Add(duration)
	return end, now.Before(end)
}

func remaining(policy SecurityPolicy, emailFailures, ipFailures int) int {
	rem := UnlimitedAttempts
	for _, axis := range [][2]int{
		{policy.MaxFailedAttemptsPerEmail, emailFailures},
		{policy.MaxFailedAttemptsPerIP, ipFailures},
	} {
		if axis[0] <= 0 {
			continue
		}
		left := max(axis[0]-axis[1], 0)
		if rem == UnlimitedAttempts || left < rem {
			rem = left
		}
	}
	return rem
}

func captchaRequired(policy SecurityPolicy, emailFailures, ipFailures int) bool {
	t := policy.RequireCaptchaAfterAttempts
	return t > 0 && (emailFailures >= t || ipFailures >= t)
}
