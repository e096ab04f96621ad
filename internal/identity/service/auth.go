package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"tenant-iam/backend/internal/audit"
	"tenant-iam/backend/internal/security"
	sessiondomain "tenant-iam/backend/internal/session/domain"
	sessionsvc "tenant-iam/backend/internal/session/service"
	tokendomain "tenant-iam/backend/internal/token/domain"
	userdomain "tenant-iam/backend/internal/user/domain"
)

// RegisterRequest creates a user in a tenant.
type RegisterRequest struct {
	TenantID string
	Email    string
	Username string
	Password string
}

type RegisterResult struct {
	Result
	UserID string
}

// Register validates the request, hashes the password and stores an active user.
func (s *IdentityService) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	if req.TenantID == "" {
		return RegisterResult{Result: fail(MsgInvalidInput)}
	}
	if err := userdomain.ValidatePassword(req.Password); err != nil {
		return RegisterResult{Result: fail(err.Error())}
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return RegisterResult{Result: s.internal("hash password", err)}
	}
	u, err := userdomain.NewUser(req.TenantID, req.Email, req.Username, hash, s.now())
	if err != nil {
		return RegisterResult{Result: fail(err.Error())}
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, userdomain.ErrEmailTaken) {
			return RegisterResult{Result: fail(MsgEmailTaken)}
		}
		return RegisterResult{Result: s.internal("create user", err)}
	}
	s.auditLog(ctx, u.TenantID, u.ID, audit.ActionRegister, map[string]string{"email": u.Email})
	return RegisterResult{Result: ok(), UserID: u.ID}
}

// Logout revokes one session. Logging out of an unknown or revoked session succeeds.
func (s *IdentityService) Logout(ctx context.Context, tenantID, sessionID string) Result {
	id, err := sessiondomain.NewSessionID(sessionID)
	if err != nil || tenantID == "" {
		return fail(MsgInvalidInput)
	}
	sess, err := s.sessions.RevokeSession(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, sessiondomain.ErrSessionNotFound) {
			return ok()
		}
		return s.internal("logout", err)
	}
	s.auditLog(ctx, tenantID, sess.UserID, audit.ActionLogout, map[string]string{"session_id": id.String()})
	return ok()
}

type LogoutAllResult struct {
	Result
	RevokedCount int
}

// LogoutAll revokes every session of the user.
func (s *IdentityService) LogoutAll(ctx context.Context, tenantID, userID string) LogoutAllResult {
	if tenantID == "" || userID == "" {
		return LogoutAllResult{Result: fail(MsgInvalidInput)}
	}
	n, err := s.sessions.RevokeAllUserSessions(ctx, tenantID, userID)
	if err != nil {
		return LogoutAllResult{Result: s.internal("logout all", err)}
	}
	s.auditLog(ctx, tenantID, userID, audit.ActionLogout, map[string]string{"scope": "all", "revoked": strconv.Itoa(n)})
	return LogoutAllResult{Result: ok(), RevokedCount: n}
}

type RefreshResult struct {
	Result
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	SessionID       string
}

// Refresh rotates a refresh token. A new session carrying a fresh pair is saved first and
// only then is the presented session revoked, so a failed rotation leaves it usable. Presenting a refresh token whose session is already revoked
// is treated as token theft and revokes every session of the user.
func (s *IdentityService) Refresh(ctx context.Context, tenantID, refreshToken string, device sessiondomain.DeviceInfo) RefreshResult {
	refreshToken = strings.TrimSpace(refreshToken)
	if tenantID == "" || refreshToken == "" {
		return RefreshResult{Result: fail(MsgInvalidInput)}
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, tokendomain.ErrTokenExpired) {
			return RefreshResult{Result: fail(MsgRefreshTokenExpired)}
		}
		return RefreshResult{Result: fail(MsgInvalidRefreshToken)}
	}
	if claims.TenantID != tenantID {
		return RefreshResult{Result: fail(MsgInvalidRefreshToken)}
	}

	old, err := s.sessions.FindByRefreshToken(ctx, tenantID, refreshToken)
	if err != nil {
		if errors.Is(err, sessiondomain.ErrSessionNotFound) {
			return RefreshResult{Result: fail(MsgInvalidRefreshToken)}
		}
		return RefreshResult{Result: s.internal("find session by refresh token", err)}
	}
	switch {
	case old.IsRevoked():
		n, err := s.sessions.RevokeAllUserSessions(ctx, tenantID, old.UserID)
		if err != nil {
			s.logger.ErrorContext(ctx, "revoke after refresh token reuse failed", "tenant_id", tenantID, "user_id", old.UserID, "error", err)
		}
		s.logger.WarnContext(ctx, "refresh token reuse detected", "tenant_id", tenantID, "user_id", old.UserID, "session_id", old.ID.String())
		s.auditLog(ctx, tenantID, old.UserID, audit.ActionRefreshReuse, map[string]string{
			"session_id": old.ID.String(),
			"revoked":    strconv.Itoa(n),
		})
		return RefreshResult{Result: fail(MsgRefreshTokenReuse)}
	case old.IsSuspended():
		return RefreshResult{Result: fail(MsgSessionSuspended)}
	}

	sid := sessiondomain.GenerateSessionID()
	pair, err := s.tokens.IssuePair(tenantID, old.UserID, sid.String())
	if err != nil {
		return RefreshResult{Result: s.internal("issue tokens", err)}
	}
	if device.IPAddress == "" && device.UserAgent == "" {
		device = old.Device
	}
	sess, err := s.sessions.CreateSession(ctx, sessionsvc.CreateSessionInput{
		ID:           sid,
		UserID:       old.UserID,
		TenantID:     tenantID,
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		Device:       device,
		Location:     old.Location,
	})
	if err != nil {
		return RefreshResult{Result: s.internal("create rotated session", err)}
	}
	if _, err := s.sessions.RevokeSession(ctx, tenantID, old.ID); err != nil {
		// The old token stays valid; drop the replacement so only one session survives.
		if _, rerr := s.sessions.RevokeSession(ctx, tenantID, sess.ID); rerr != nil {
			s.logger.ErrorContext(ctx, "revoke unused rotated session failed", "tenant_id", tenantID, "session_id", sess.ID.String(), "error", rerr)
		}
		return RefreshResult{Result: s.internal("revoke rotated session", err)}
	}
	s.auditLog(ctx, tenantID, old.UserID, audit.ActionTokenRefresh, map[string]string{
		"session_id":          sess.ID.String(),
		"previous_session_id": old.ID.String(),
	})
	return RefreshResult{
		Result:          ok(),
		AccessToken:     pair.Access.Value(),
		RefreshToken:    pair.Refresh.Value(),
		AccessExpiresAt: pair.Access.ExpiresAt(),
		SessionID:       sess.ID.String(),
	}
}

// RevokeSession revokes one of the caller's own sessions.
func (s *IdentityService) RevokeSession(ctx context.Context, tenantID, userID, sessionID string) Result {
	id, err := sessiondomain.NewSessionID(sessionID)
	if err != nil || tenantID == "" || userID == "" {
		return fail(MsgInvalidInput)
	}
	sess, err := s.sessions.GetSession(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, sessiondomain.ErrSessionNotFound) {
			return fail(MsgSessionNotFound)
		}
		return s.internal("get session", err)
	}
	// Another user's session is reported as missing.
	if sess.UserID != userID {
		return fail(MsgSessionNotFound)
	}
	if _, err := s.sessions.RevokeSession(ctx, tenantID, id); err != nil {
		return s.internal("revoke session", err)
	}
	return ok()
}

// SessionView is the listing shape of a session; tokens are never exposed.
type SessionView struct {
	ID             string
	Status         sessiondomain.Status
	Device         sessiondomain.DeviceInfo
	Location       *sessiondomain.LocationInfo
	LastActivityAt time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
	Current        bool
}

type ListSessionsResult struct {
	Result
	Sessions []SessionView
}

// ListSessions returns the user's sessions, newest first, with their effective status.
// currentSessionID marks the caller's own session and may be empty.
func (s *IdentityService) ListSessions(ctx context.Context, tenantID, userID, currentSessionID string) ListSessionsResult {
	if tenantID == "" || userID == "" {
		return ListSessionsResult{Result: fail(MsgInvalidInput)}
	}
	sessions, err := s.sessions.GetUserSessions(ctx, tenantID, userID)
	if err != nil {
		return ListSessionsResult{Result: s.internal("list sessions", err)}
	}
	now := s.now()
	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, SessionView{
			ID:             sess.ID.String(),
			Status:         sess.EffectiveStatusAt(now),
			Device:         sess.Device,
			Location:       sess.Location,
			LastActivityAt: sess.LastActivityAt,
			ExpiresAt:      sess.ExpiresAt,
			CreatedAt:      sess.CreatedAt,
			Current:        sess.ID.String() == currentSessionID,
		})
	}
	return ListSessionsResult{Result: ok(), Sessions: views}
}

// revokeAllQuietly is used after credential changes; a failure is logged only.
func (s *IdentityService) revokeAllQuietly(ctx context.Context, tenantID, userID string) int {
	n, err := s.sessions.RevokeAllUserSessions(ctx, tenantID, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "revoke sessions failed", "tenant_id", tenantID, "user_id", userID, "error", err)
		return 0
	}
	return n
}

var _ TokenService = (*security.TokenProvider)(nil)
