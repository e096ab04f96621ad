// Package service implements session lifecycle management: creation under a per-user
// concurrency cap, validation, state transitions, and tenant-scoped queries.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/oops"

	"tenant-iam/backend/internal/audit"
	"tenant-iam/backend/internal/events"
	"tenant-iam/backend/internal/security"
	"tenant-iam/backend/internal/session/domain"
	sessionrepo "tenant-iam/backend/internal/session/repository"
	tokendomain "tenant-iam/backend/internal/token/domain"
)

// Metrics receives session lifecycle counts. *observability.Metrics satisfies it.
type Metrics interface {
	SessionCreated()
	SessionsRevokedCount(reason string, n int)
	CleanupDeletedCount(kind string, n int)
}

// Options holds the optional collaborators of SessionManagementService.
type Options struct {
	// Clock defaults to time.Now.
	Clock   func() time.Time
	Logger  *slog.Logger
	Events  events.Publisher
	Audit   audit.AuditLogger
	Metrics Metrics
}

// SessionManagementService orchestrates AuthSession persistence. Each mutating call performs
// exactly one repository write.
type SessionManagementService struct {
	repo    sessionrepo.Repository
	now     func() time.Time
	logger  *slog.Logger
	events  events.Publisher
	audit   audit.AuditLogger
	metrics Metrics
}

// NewSessionManagementService returns a service over repo.
func NewSessionManagementService(repo sessionrepo.Repository, opts Options) *SessionManagementService {
	s := &SessionManagementService{
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

// CreateSessionInput carries the inputs of CreateSession.
type CreateSessionInput struct {
	// ID is used as the session id when set, so tokens carrying it can be issued first.
	ID           domain.SessionID
	UserID       string
	TenantID     string
	AccessToken  *tokendomain.JWTToken
	RefreshToken *tokendomain.RefreshToken
	Device       domain.DeviceInfo
	Location     *domain.LocationInfo
	// MaxSessionsPerUser caps the user's ACTIVE sessions. Zero means no cap.
	MaxSessionsPerUser int
}

// CreateSession persists a new ACTIVE session expiring with the access token. When the user
// already has MaxSessionsPerUser active sessions it returns *domain.TooManySessionsError;
// no session is evicted. The count and the insert are not atomic.
func (s *SessionManagementService) CreateSession(ctx context.Context, in CreateSessionInput) (*domain.AuthSession, error) {
	now := s.now()
	if in.MaxSessionsPerUser > 0 {
		count, err := s.repo.CountActiveSessions(ctx, in.TenantID, in.UserID, now)
		if err != nil {
			return nil, err
		}
		if count >= in.MaxSessionsPerUser {
			return nil, &domain.TooManySessionsError{UserID: in.UserID, Limit: in.MaxSessionsPerUser}
		}
	}
	var hash string
	if in.RefreshToken != nil {
		hash = security.HashRefreshToken(in.RefreshToken.Value())
	}
	sess, err := domain.NewAuthSession(domain.NewSessionParams{
		ID:               in.ID,
		UserID:           in.UserID,
		TenantID:         in.TenantID,
		AccessToken:      in.AccessToken,
		RefreshToken:     in.RefreshToken,
		RefreshTokenHash: hash,
		Device:           in.Device,
		Location:         in.Location,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SessionCreated()
	}
	s.record(ctx, sess, events.SessionCreated, audit.ActionSessionCreated)
	return sess, nil
}

// GetSession returns the session or an error matching domain.ErrSessionNotFound.
func (s *SessionManagementService) GetSession(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	sess, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFound(tenantID, id.String())
	}
	return sess, nil
}

// ValidateSession returns the session only if it is ACTIVE and unexpired. Revocation is
// reported before expiry.
func (s *SessionManagementService) ValidateSession(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	sess, err := s.GetSession(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.usable(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionManagementService) usable(sess *domain.AuthSession) error {
	errb := oops.Code("SESSION_INVALID").With("tenant_id", sess.TenantID).With("session_id", sess.ID.String())
	switch {
	case sess.IsRevoked():
		return errb.Wrap(domain.ErrSessionRevoked)
	case sess.IsExpiredAt(s.now()):
		return errb.Wrap(domain.ErrSessionExpired)
	case sess.IsSuspended():
		return errb.Wrap(domain.ErrSessionSuspended)
	}
	return nil
}

// UpdateActivity bumps the session's last activity. Revoked or expired sessions are rejected
// and left unchanged.
func (s *SessionManagementService) UpdateActivity(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	sess, err := s.GetSession(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.UpdateActivityAt(s.now()); err != nil {
		return nil, oops.Code("SESSION_INVALID").With("tenant_id", tenantID).With("session_id", id.String()).Wrap(err)
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// RevokeSession moves the session to REVOKED. Revoking a revoked session succeeds.
func (s *SessionManagementService) RevokeSession(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	sess, err := s.GetSession(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	wasRevoked := sess.IsRevoked()
	sess.RevokeAt(s.now())
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	if !wasRevoked {
		if s.metrics != nil {
			s.metrics.SessionsRevokedCount("revoke", 1)
		}
		s.record(ctx, sess, events.SessionRevoked, audit.ActionSessionRevoked)
	}
	return sess, nil
}

// RevokeAllUserSessions revokes every non-revoked session of the user and returns the count.
func (s *SessionManagementService) RevokeAllUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	n, err := s.repo.RevokeAllUserSessions(ctx, tenantID, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.SessionsRevokedCount("revoke_all", n)
		}
		count := strconv.Itoa(n)
		events.PublishAsync(s.events, s.logger, events.Event{
			Name:       events.SessionRevoked,
			TenantID:   tenantID,
			UserID:     userID,
			OccurredAt: s.now().UTC(),
			Attributes: map[string]string{"count": count},
		})
		s.auditLog(ctx, tenantID, userID, audit.ActionSessionsRevoked, map[string]string{"count": count})
	}
	return n, nil
}

// SuspendSession moves an ACTIVE session to SUSPENDED.
func (s *SessionManagementService) SuspendSession(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	sess, err := s.GetSession(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.SuspendAt(s.now()); err != nil {
		return nil, oops.Code("SESSION_TRANSITION_REJECTED").With("status", string(sess.Status)).Wrap(err)
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.record(ctx, sess, events.SessionSuspended, audit.ActionSessionSuspended)
	return sess, nil
}

// ActivateSession moves a SUSPENDED session back to ACTIVE. Revoked sessions stay revoked.
func (s *SessionManagementService) ActivateSession(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	sess, err := s.GetSession(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.ActivateAt(s.now()); err != nil {
		return nil, oops.Code("SESSION_TRANSITION_REJECTED").With("status", string(sess.Status)).Wrap(err)
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.record(ctx, sess, events.SessionActivated, audit.ActionSessionActivated)
	return sess, nil
}

// DeleteSession physically removes one session.
func (s *SessionManagementService) DeleteSession(ctx context.Context, tenantID string, id domain.SessionID) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// DeleteUserSessions removes every session of the user and returns the count.
func (s *SessionManagementService) DeleteUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	return s.repo.DeleteByUserID(ctx, tenantID, userID)
}

// CleanupExpiredSessions deletes the tenant's expired and revoked sessions and returns the count.
func (s *SessionManagementService) CleanupExpiredSessions(ctx context.Context, tenantID string) (int, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, tenantID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.CleanupDeletedCount("sessions", n)
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "tenant_id", tenantID, "count", n)
	}
	return n, nil
}

// ListTenants returns every tenant holding sessions, for cleanup jobs.
func (s *SessionManagementService) ListTenants(ctx context.Context) ([]string, error) {
	return s.repo.ListTenantIDs(ctx)
}

// GetUserSessions returns all of the user's sessions in any state, newest first.
func (s *SessionManagementService) GetUserSessions(ctx context.Context, tenantID, userID string) ([]*domain.AuthSession, error) {
	return s.repo.FindByUserID(ctx, tenantID, userID)
}

// GetActiveSessions returns the user's sessions that are ACTIVE and unexpired.
func (s *SessionManagementService) GetActiveSessions(ctx context.Context, tenantID, userID string) ([]*domain.AuthSession, error) {
	all, err := s.repo.FindByUserID(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := make([]*domain.AuthSession, 0, len(all))
	for _, sess := range all {
		if sess.IsActiveAt(now) {
			active = append(active, sess)
		}
	}
	return active, nil
}

func (s *SessionManagementService) CountUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	return s.repo.CountByUserID(ctx, tenantID, userID)
}

func (s *SessionManagementService) CountActiveSessions(ctx context.Context, tenantID, userID string) (int, error) {
	return s.repo.CountActiveSessions(ctx, tenantID, userID, s.now().UTC())
}

// FindSessionsByDevice matches on user agent and IP address.
func (s *SessionManagementService) FindSessionsByDevice(ctx context.Context, tenantID, userID string, device domain.DeviceInfo) ([]*domain.AuthSession, error) {
	return s.repo.FindByDeviceInfo(ctx, tenantID, userID, device)
}

func (s *SessionManagementService) ExistsActiveSession(ctx context.Context, tenantID, userID string) (bool, error) {
	return s.repo.ExistsActiveSession(ctx, tenantID, userID, s.now().UTC())
}

// GetExpiredSessions returns sessions past expiry that have not been revoked.
func (s *SessionManagementService) GetExpiredSessions(ctx context.Context, tenantID string) ([]*domain.AuthSession, error) {
	return s.repo.FindExpiredSessions(ctx, tenantID, s.now().UTC())
}

func (s *SessionManagementService) GetRevokedSessions(ctx context.Context, tenantID string) ([]*domain.AuthSession, error) {
	return s.repo.FindRevokedSessions(ctx, tenantID)
}

// FindByRefreshToken looks a session up by the raw refresh token it was issued with,
// in any state. Sessions are stored with the token hash, never the raw token.
func (s *SessionManagementService) FindByRefreshToken(ctx context.Context, tenantID, refreshToken string) (*domain.AuthSession, error) {
	if refreshToken == "" {
		return nil, tokendomain.ErrTokenRequired
	}
	sess, err := s.repo.FindByRefreshTokenHash(ctx, tenantID, security.HashRefreshToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFound(tenantID, "")
	}
	return sess, nil
}

func notFound(tenantID, sessionID string) error {
	b := oops.Code("SESSION_NOT_FOUND").With("tenant_id", tenantID)
	if sessionID != "" {
		b = b.With("session_id", sessionID)
	}
	return b.Wrap(domain.ErrSessionNotFound)
}

// record publishes the event and writes the audit entry for one session transition.
func (s *SessionManagementService) record(ctx context.Context, sess *domain.AuthSession, event, action string) {
	events.PublishAsync(s.events, s.logger, events.Event{
		Name:       event,
		TenantID:   sess.TenantID,
		UserID:     sess.UserID,
		SessionID:  sess.ID.String(),
		OccurredAt: s.now().UTC(),
	})
	s.auditLog(ctx, sess.TenantID, sess.UserID, action, map[string]string{"session_id": sess.ID.String()})
}

func (s *SessionManagementService) auditLog(ctx context.Context, tenantID, userID, action string, attrs map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, tenantID, userID, action, "session", audit.Metadata(attrs))
}
