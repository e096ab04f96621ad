package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil)
	s.Metrics().SessionCreated()
	s.Metrics().LoginAttempt("failed", "password")

	code, body := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "tenant_iam_sessions_created_total 1")
	assert.Contains(t, body, `tenant_iam_login_attempts_total{status="failed",type="password"} 1`)
}

func TestServer_Probes(t *testing.T) {
	ready := false
	s := NewServer("127.0.0.1:0", func() bool { return ready }, nil)

	code, body := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	ready = true
	code, _ = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil)
	_, err := s.Start()
	require.NoError(t, err)
	_, err = s.Start()
	assert.Error(t, err)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Lockout("email")
	m.Lockout("email")
	m.CaptchaRequiredCheck()
	m.CaptchaRequiredCheck()
	m.SessionsRevokedCount("logout_all", 3)
	m.SessionsRevokedCount("logout_all", 0)
	m.CleanupDeletedCount("sessions", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lockouts.WithLabelValues("email")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CaptchaRequired))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsRevoked.WithLabelValues("logout_all")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CleanupDeleted.WithLabelValues("sessions")))

	var nilMetrics *Metrics
	nilMetrics.SessionCreated()
	nilMetrics.Lockout("ip")
}
