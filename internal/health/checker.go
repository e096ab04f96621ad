// Package health aggregates dependency checks for readiness probes and the gRPC health service.
package health

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CheckFunc reports whether one dependency is usable.
type CheckFunc func(ctx context.Context) error

// Checker runs named dependency checks. The zero value has no checks and is always ready.
type Checker struct {
	checks map[string]CheckFunc
}

// NewChecker returns an empty Checker.
func NewChecker() *Checker {
	return &Checker{checks: map[string]CheckFunc{}}
}

// Add registers a check under name. A nil fn is ignored.
func (c *Checker) Add(name string, fn CheckFunc) *Checker {
	if fn == nil {
		return c
	}
	if c.checks == nil {
		c.checks = map[string]CheckFunc{}
	}
	c.checks[name] = fn
	return c
}

// Check runs every check and joins the failures, each tagged with its check name.
func (c *Checker) Check(ctx context.Context) error {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := c.checks[name](ctx); err != nil {
			errs = append(errs, oops.Code("HEALTH_CHECK_FAILED").With("check", name).Wrap(err))
		}
	}
	return errors.Join(errs...)
}

// Ready runs Check with timeout and reports success.
func (c *Checker) Ready(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Check(ctx) == nil
}

// Watch updates the serving status of srv for the empty service name every interval until
// ctx is done.
func (c *Checker) Watch(ctx context.Context, srv *health.Server, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		c.update(ctx, srv, interval, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Checker) update(ctx context.Context, srv *health.Server, timeout time.Duration, logger *slog.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Check(checkCtx); err != nil {
		logger.Warn("health check failed", "error", err)
		srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}
