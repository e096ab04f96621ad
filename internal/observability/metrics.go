// Package observability exposes Prometheus metrics and HTTP health probes.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tenant_iam"

// Metrics holds the subsystem counters. A nil *Metrics records nothing.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	Lockouts        *prometheus.CounterVec
	CaptchaRequired prometheus.Counter
	SessionsCreated prometheus.Counter
	SessionsRevoked *prometheus.CounterVec
	CleanupDeleted  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Recorded login attempts by status and type.",
		}, []string{"status", "type"}),
		Lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_lockouts_total",
			Help:      "Login security checks denied by lockout, by axis (email or ip).",
		}, []string{"axis"}),
		CaptchaRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_captcha_required_total",
			Help:      "Allowed login security checks that required a captcha, counted per check.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		SessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked, by reason.",
		}, []string{"reason"}),
		CleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Rows removed by retention cleanup, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.LoginAttempts, m.Lockouts, m.CaptchaRequired, m.SessionsCreated, m.SessionsRevoked, m.CleanupDeleted)
	return m
}

func (m *Metrics) LoginAttempt(status, attemptType string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(status, attemptType).Inc()
}

func (m *Metrics) Lockout(axis string) {
	if m == nil {
		return
	}
	m.Lockouts.WithLabelValues(axis).Inc()
}

// CaptchaRequiredCheck counts one allowed check that required a captcha.
func (m *Metrics) CaptchaRequiredCheck() {
	if m == nil {
		return
	}
	m.CaptchaRequired.Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

func (m *Metrics) SessionsRevokedCount(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) CleanupDeletedCount(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CleanupDeleted.WithLabelValues(kind).Add(float64(n))
}
