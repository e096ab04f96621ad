package service

import (
	"context"
	"sync"
	"time"

	identitydomain "tenant-iam/backend/internal/identity/domain"
	userdomain "tenant-iam/backend/internal/user/domain"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*userdomain.User{}} }

func (m *memUsers) GetByID(_ context.Context, tenantID, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, tenantID, email string) (*userdomain.User, error) {
	return m.find(func(u *userdomain.User) bool { return u.TenantID == tenantID && u.Email == email }), nil
}

func (m *memUsers) GetByUsername(_ context.Context, tenantID, username string) (*userdomain.User, error) {
	return m.find(func(u *userdomain.User) bool { return u.TenantID == tenantID && u.Username == username }), nil
}

func (m *memUsers) find(match func(*userdomain.User) bool) *userdomain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.TenantID == u.TenantID && (existing.Email == u.Email || existing.Username == u.Username) {
			return userdomain.ErrEmailTaken
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, tenantID, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok && u.TenantID == tenantID {
		u.PasswordHash = hash
	}
	return nil
}

func (m *memUsers) UpdateTwoFactor(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.users[u.ID]; ok && stored.TenantID == u.TenantID {
		stored.TwoFactorEnabled = u.TwoFactorEnabled
		stored.TwoFactorSecret = u.TwoFactorSecret
		stored.PendingTwoFactorSecret = u.PendingTwoFactorSecret
	}
	return nil
}

type memResetTokens struct {
	mu     sync.Mutex
	tokens map[string]*identitydomain.PasswordResetToken
}

func newMemResetTokens() *memResetTokens {
	return &memResetTokens{tokens: map[string]*identitydomain.PasswordResetToken{}}
}

func (m *memResetTokens) Create(_ context.Context, t *identitydomain.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memResetTokens) GetByTokenHash(_ context.Context, tenantID, hash string) (*identitydomain.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TenantID == tenantID && t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memResetTokens) MarkUsed(_ context.Context, tenantID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.TenantID != tenantID || t.UsedAt != nil {
		return identitydomain.ErrResetTokenUsed
	}
	t.UsedAt = &at
	return nil
}

func (m *memResetTokens) DeleteByUserID(_ context.Context, tenantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.TenantID == tenantID && t.UserID == userID {
			delete(m.tokens, id)
		}
	}
	return nil
}

type sentReset struct {
	email string
	token string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentReset
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, _, email, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{email: email, token: token})
	return nil
}

func (n *captureNotifier) last() (sentReset, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentReset{}, false
	}
	return n.sent[len(n.sent)-1], true
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
