package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tenant-iam/backend/internal/session/domain"
	sessionrepo "tenant-iam/backend/internal/session/repository"
	sessionsvc "tenant-iam/backend/internal/session/service"
	"tenant-iam/backend/internal/token/tokentest"
)

type fakeAttempts struct {
	mu       sync.Mutex
	tenants  []string
	deleted  map[string]int
	failures map[string]int
	days     []int
	calls    int
}

func (f *fakeAttempts) ListTenants(context.Context) ([]string, error) { return f.tenants, nil }

func (f *fakeAttempts) CleanupOldAttempts(_ context.Context, tenantID string, days int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.days = append(f.days, days)
	if f.failures[tenantID] > 0 {
		f.failures[tenantID]--
		return 0, errors.New("redis unavailable")
	}
	return f.deleted[tenantID], nil
}

func (f *fakeAttempts) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedSessions(t *testing.T, svc *sessionsvc.SessionManagementService, tenantID string, now time.Time) domain.SessionID {
	t.Helper()
	expiredAccess, expiredRefresh := tokentest.Pair("user-1", tenantID, now.Add(-2*time.Hour), now.Add(time.Second))
	_, err := svc.CreateSession(context.Background(), sessionsvc.CreateSessionInput{
		UserID: "user-1", TenantID: tenantID, AccessToken: expiredAccess, RefreshToken: expiredRefresh,
	})
	require.NoError(t, err)

	access, refresh := tokentest.Pair("user-1", tenantID, now, now.Add(time.Hour))
	live, err := svc.CreateSession(context.Background(), sessionsvc.CreateSessionInput{
		UserID: "user-1", TenantID: tenantID, AccessToken: access, RefreshToken: refresh,
	})
	require.NoError(t, err)
	return live.ID
}

func TestRunOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	now := time.Now()
	clock := now
	sessions := sessionsvc.NewSessionManagementService(sessionrepo.NewMemoryRepository(), sessionsvc.Options{Clock: func() time.Time { return clock }})
	liveA := seedSessions(t, sessions, "tenant-a", now)
	seedSessions(t, sessions, "tenant-b", now)
	clock = now.Add(time.Minute)

	attempts := &fakeAttempts{tenants: []string{"tenant-a", "tenant-b"}, deleted: map[string]int{"tenant-a": 4, "tenant-b": 1}}
	r := NewRunner(sessions, attempts, Options{AttemptRetentionDays: 30, RetryBase: time.Millisecond})

	rep, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Tenants)
	assert.Equal(t, 2, rep.SessionsDeleted)
	assert.Equal(t, 5, rep.AttemptsDeleted)
	assert.Equal(t, []int{30, 30}, attempts.days)

	_, err = sessions.GetSession(context.Background(), "tenant-a", liveA)
	assert.NoError(t, err)
}

func TestRunOnce_RetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	attempts := &fakeAttempts{
		tenants:  []string{"flaky", "down"},
		deleted:  map[string]int{"flaky": 2},
		failures: map[string]int{"flaky": 2, "down": 100},
	}
	r := NewRunner(nil, attempts, Options{RetryBase: time.Millisecond, MaxRetries: 3})

	rep, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis unavailable")
	assert.Equal(t, 2, rep.AttemptsDeleted)
	// flaky: 2 failures + 1 success; down: 1 try + 3 retries.
	assert.Equal(t, 7, attempts.callCount())
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	attempts := &fakeAttempts{tenants: []string{"t"}, deleted: map[string]int{"t": 1}}
	r := NewRunner(nil, attempts, Options{Interval: 5 * time.Millisecond, RetryBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return attempts.callCount() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(nil, nil, Options{})
	assert.Equal(t, defaultInterval, r.opts.Interval)
	assert.Equal(t, defaultRetryBase, r.opts.RetryBase)
	assert.Equal(t, uint64(defaultMaxRetries), r.opts.MaxRetries)

	rep, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}
