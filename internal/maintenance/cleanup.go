// Package maintenance runs the periodic removal of expired sessions and old login attempts.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// SessionCleaner is the part of SessionManagementService the cleanup needs.
type SessionCleaner interface {
	ListTenants(ctx context.Context) ([]string, error)
	CleanupExpiredSessions(ctx context.Context, tenantID string) (int, error)
}

// AttemptCleaner is the part of LoginSecurityService the cleanup needs.
type AttemptCleaner interface {
	ListTenants(ctx context.Context) ([]string, error)
	CleanupOldAttempts(ctx context.Context, tenantID string, daysToKeep int) (int, error)
}

const (
	defaultInterval   = time.Hour
	defaultRetryBase  = 200 * time.Millisecond
	defaultMaxRetries = 3
)

// Options configures a Runner. Zero values take the defaults.
type Options struct {
	Interval time.Duration
	// AttemptRetentionDays is how many days of login attempts are kept.
	AttemptRetentionDays int
	RetryBase            time.Duration
	MaxRetries           uint64
	Logger               *slog.Logger
}

// Report counts what one pass removed.
type Report struct {
	Tenants         int
	SessionsDeleted int
	AttemptsDeleted int
}

// Runner deletes expired or revoked sessions and login attempts past retention for every tenant.
type Runner struct {
	sessions SessionCleaner
	attempts AttemptCleaner
	opts     Options
	logger   *slog.Logger
}

// NewRunner returns a Runner. Either cleaner may be nil to skip that kind of record.
func NewRunner(sessions SessionCleaner, attempts AttemptCleaner, opts Options) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sessions: sessions, attempts: attempts, opts: opts, logger: logger.With("component", "cleanup")}
}

// Run performs a pass immediately and then every Interval until ctx is done. Pass failures
// are logged; Run only returns ctx's error.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "cleanup pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs one pass over every tenant. A tenant that keeps failing after retries
// does not stop the pass; the failures are joined into the returned error.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	var (
		rep  Report
		errs []error
	)
	if r.sessions != nil {
		tenants, err := r.sessions.ListTenants(ctx)
		if err != nil {
			errs = append(errs, oops.Code("CLEANUP_LIST_TENANTS_FAILED").With("kind", "sessions").Wrap(err))
		}
		rep.Tenants = max(rep.Tenants, len(tenants))
		for _, tenantID := range tenants {
			n, err := r.withRetry(ctx, func(ctx context.Context) (int, error) {
				return r.sessions.CleanupExpiredSessions(ctx, tenantID)
			})
			if err != nil {
				errs = append(errs, oops.Code("CLEANUP_SESSIONS_FAILED").With("tenant_id", tenantID).Wrap(err))
				continue
			}
			rep.SessionsDeleted += n
		}
	}
	if r.attempts != nil {
		tenants, err := r.attempts.ListTenants(ctx)
		if err != nil {
			errs = append(errs, oops.Code("CLEANUP_LIST_TENANTS_FAILED").With("kind", "login_attempts").Wrap(err))
		}
		rep.Tenants = max(rep.Tenants, len(tenants))
		for _, tenantID := range tenants {
			n, err := r.withRetry(ctx, func(ctx context.Context) (int, error) {
				return r.attempts.CleanupOldAttempts(ctx, tenantID, r.opts.AttemptRetentionDays)
			})
			if err != nil {
				errs = append(errs, oops.Code("CLEANUP_ATTEMPTS_FAILED").With("tenant_id", tenantID).Wrap(err))
				continue
			}
			rep.AttemptsDeleted += n
		}
	}
	r.logger.InfoContext(ctx, "cleanup pass finished",
		"tenants", rep.Tenants,
		"sessions_deleted", rep.SessionsDeleted,
		"attempts_deleted", rep.AttemptsDeleted,
		"failures", len(errs))
	return rep, errors.Join(errs...)
}

// withRetry retries fn with exponential backoff. Context errors are not retried.
func (r *Runner) withRetry(ctx context.Context, fn func(context.Context) (int, error)) (int, error) {
	var n int
	b := retry.WithMaxRetries(r.opts.MaxRetries, retry.NewExponential(r.opts.RetryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		n = v
		return nil
	})
	return n, err
}
