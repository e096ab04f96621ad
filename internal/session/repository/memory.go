package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"tenant-iam/backend/internal/session/domain"
)

// MemoryRepository is an in-process Repository for tests and local runs. It stores copies,
// so callers never share a session value with the store.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.AuthSession
	writes   int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: map[string]*domain.AuthSession{}}
}

func memKey(tenantID, id string) string { return tenantID + "\x00" + id }

func clone(s *domain.AuthSession) *domain.AuthSession {
	c := *s
	return &c
}

// Writes reports how many mutating calls have been made.
func (r *MemoryRepository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *MemoryRepository) Save(ctx context.Context, s *domain.AuthSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.sessions[memKey(s.TenantID, s.ID.String())] = clone(s)
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, tenantID string, id domain.SessionID) (*domain.AuthSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[memKey(tenantID, id.String())]; ok {
		return clone(s), nil
	}
	return nil, nil
}

func (r *MemoryRepository) FindByRefreshTokenHash(ctx context.Context, tenantID, hash string) (*domain.AuthSession, error) {
	found := r.filter(tenantID, func(s *domain.AuthSession) bool { return s.RefreshTokenHash == hash })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r *MemoryRepository) FindByUserID(ctx context.Context, tenantID, userID string) ([]*domain.AuthSession, error) {
	return r.filter(tenantID, func(s *domain.AuthSession) bool { return s.UserID == userID }), nil
}

func (r *MemoryRepository) FindByDeviceInfo(ctx context.Context, tenantID, userID string, device domain.DeviceInfo) ([]*domain.AuthSession, error) {
	return r.filter(tenantID, func(s *domain.AuthSession) bool {
		return s.UserID == userID &&
			(device.UserAgent == "" || s.Device.UserAgent == device.UserAgent) &&
			(device.IPAddress == "" || s.Device.IPAddress == device.IPAddress)
	}), nil
}

func (r *MemoryRepository) FindExpiredSessions(ctx context.Context, tenantID string, now time.Time) ([]*domain.AuthSession, error) {
	return r.filter(tenantID, func(s *domain.AuthSession) bool { return !s.IsRevoked() && s.IsExpiredAt(now) }), nil
}

func (r *MemoryRepository) FindRevokedSessions(ctx context.Context, tenantID string) ([]*domain.AuthSession, error) {
	return r.filter(tenantID, func(s *domain.AuthSession) bool { return s.IsRevoked() }), nil
}

func (r *MemoryRepository) CountByUserID(ctx context.Context, tenantID, userID string) (int, error) {
	return len(r.filter(tenantID, func(s *domain.AuthSession) bool { return s.UserID == userID })), nil
}

func (r *MemoryRepository) CountActiveSessions(ctx context.Context, tenantID, userID string, now time.Time) (int, error) {
	return len(r.filter(tenantID, func(s *domain.AuthSession) bool { return s.UserID == userID && s.IsActiveAt(now) })), nil
}

func (r *MemoryRepository) ExistsActiveSession(ctx context.Context, tenantID, userID string, now time.Time) (bool, error) {
	n, _ := r.CountActiveSessions(ctx, tenantID, userID, now)
	return n > 0, nil
}

func (r *MemoryRepository) RevokeAllUserSessions(ctx context.Context, tenantID, userID string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	n := 0
	for _, s := range r.sessions {
		if s.TenantID == tenantID && s.UserID == userID && !s.IsRevoked() {
			s.RevokeAt(now)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpiredSessions(ctx context.Context, tenantID string, now time.Time) (int, error) {
	return r.deleteWhere(tenantID, func(s *domain.AuthSession) bool { return s.IsRevoked() || s.ExpiresAt.Before(now) }), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, tenantID string, id domain.SessionID) error {
	r.deleteWhere(tenantID, func(s *domain.AuthSession) bool { return s.ID.Equals(id) })
	return nil
}

func (r *MemoryRepository) DeleteByUserID(ctx context.Context, tenantID, userID string) (int, error) {
	return r.deleteWhere(tenantID, func(s *domain.AuthSession) bool { return s.UserID == userID }), nil
}

func (r *MemoryRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, s := range r.sessions {
		if !seen[s.TenantID] {
			seen[s.TenantID] = true
			out = append(out, s.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// filter returns copies of the tenant's matching sessions, newest first.
func (r *MemoryRepository) filter(tenantID string, keep func(*domain.AuthSession) bool) []*domain.AuthSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuthSession
	for _, s := range r.sessions {
		if s.TenantID == tenantID && keep(s) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepository) deleteWhere(tenantID string, match func(*domain.AuthSession) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	n := 0
	for k, s := range r.sessions {
		if s.TenantID == tenantID && match(s) {
			delete(r.sessions, k)
			n++
		}
	}
	return n
}
