// Worker runs the periodic maintenance jobs: deleting expired or revoked sessions and
// login attempts older than LOGIN_ATTEMPT_RETENTION_DAYS, for every tenant.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"tenant-iam/backend/internal/config"
	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/logging"
	attemptrepo "tenant-iam/backend/internal/loginattempt/repository"
	attemptsvc "tenant-iam/backend/internal/loginattempt/service"
	"tenant-iam/backend/internal/maintenance"
	sessionrepo "tenant-iam/backend/internal/session/repository"
	sessionsvc "tenant-iam/backend/internal/session/service"
)

var version = "dev"

func main() {
	cmd := newRootCmd()
	cmd.Version = version
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Tenant IAM maintenance worker",
		SilenceUsage: true,
	}
	cmd.AddCommand(newCleanupCmd())
	return cmd
}

func newCleanupCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired sessions and old login attempts",
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Run cleanup on an interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd.Context(), interval, func(ctx context.Context, r *maintenance.Runner) error {
				if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	run.Flags().DurationVar(&interval, "interval", 0, "cleanup interval (defaults to CLEANUP_INTERVAL)")

	once := &cobra.Command{
		Use:   "once",
		Short: "Run a single cleanup pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd.Context(), 0, func(ctx context.Context, r *maintenance.Runner) error {
				report, err := r.RunOnce(ctx)
				cmd.Printf("tenants=%d sessions_deleted=%d attempts_deleted=%d\n",
					report.Tenants, report.SessionsDeleted, report.AttemptsDeleted)
				return err
			})
		},
	}
	cmd.AddCommand(run, once)
	return cmd
}

// withRunner loads config, connects to Postgres and hands fn a Runner bound to a context
// cancelled on SIGINT or SIGTERM.
func withRunner(parent context.Context, interval time.Duration, fn func(context.Context, *maintenance.Runner) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	logger := logging.Setup("tenant-iam-worker", version, cfg.LogFormat, !cfg.IsProduction(), os.Stdout)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if interval <= 0 {
		interval = cfg.CleanupEvery()
	}
	sessions := sessionsvc.NewSessionManagementService(sessionrepo.NewPostgresRepository(pool), sessionsvc.Options{Logger: logger})
	attempts := attemptsvc.NewLoginSecurityService(attemptrepo.NewPostgresRepository(pool), attemptsvc.Options{Logger: logger})
	runner := maintenance.NewRunner(sessions, attempts, maintenance.Options{
		Interval:             interval,
		AttemptRetentionDays: cfg.LoginAttemptRetentionDays,
		Logger:               logger,
	})
	logger.Info("worker started", "interval", interval.String())
	return fn(ctx, runner)
}

// connect opens the pool, retrying while the database is still starting.
func connect(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := db.Open(ctx, dsn)
		if err != nil {
			logger.Warn("database not ready", "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	return pool, err
}
