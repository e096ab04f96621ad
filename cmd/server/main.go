// Server runs the tenant IAM gRPC API with its metrics and health endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"tenant-iam/backend/internal/audit"
	auditrepo "tenant-iam/backend/internal/audit/repository"
	"tenant-iam/backend/internal/config"
	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/events"
	healthcheck "tenant-iam/backend/internal/health"
	identityrepo "tenant-iam/backend/internal/identity/repository"
	identitysvc "tenant-iam/backend/internal/identity/service"
	"tenant-iam/backend/internal/logging"
	attemptrepo "tenant-iam/backend/internal/loginattempt/repository"
	attemptsvc "tenant-iam/backend/internal/loginattempt/service"
	"tenant-iam/backend/internal/notify"
	"tenant-iam/backend/internal/observability"
	"tenant-iam/backend/internal/policy/engine"
	policyrepo "tenant-iam/backend/internal/policy/repository"
	"tenant-iam/backend/internal/security"
	"tenant-iam/backend/internal/server"
	"tenant-iam/backend/internal/server/interceptors"
	sessionrepo "tenant-iam/backend/internal/session/repository"
	sessionsvc "tenant-iam/backend/internal/session/service"
	oteltelemetry "tenant-iam/backend/internal/telemetry/otel"
	userrepo "tenant-iam/backend/internal/user/repository"
)

const serviceName = "tenant-iam"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(serviceName, version, cfg.LogFormat, !cfg.IsProduction(), os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logging.LogError(logger, "server exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Options{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Insecure:       cfg.OTLPInsecure,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer shutdown(logger, "otel", providers.Shutdown)

	publishers := events.Multi{oteltelemetry.NewEventPublisher(providers.LoggerProvider)}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 && cfg.KafkaEventsTopic != "" {
		kafka := events.NewKafkaPublisher(brokers, cfg.KafkaEventsTopic)
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("kafka publisher close failed", "error", err)
			}
		}()
		publishers = append(publishers, kafka)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	checker := healthcheck.NewChecker().Add("postgres", pool.Ping)
	attempts, closeAttempts, err := attemptStore(cfg, pool, checker)
	if err != nil {
		return err
	}
	defer closeAttempts()

	obs := observability.NewServer(cfg.MetricsAddr, func() bool { return checker.Ready(2 * time.Second) }, logger)
	metrics := obs.Metrics()

	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(pool), interceptors.ClientIP, logger)

	sessions := sessionsvc.NewSessionManagementService(sessionrepo.NewPostgresRepository(pool), sessionsvc.Options{
		Logger:  logger,
		Events:  publishers,
		Audit:   auditLogger,
		Metrics: metrics,
	})
	loginSecurity := attemptsvc.NewLoginSecurityService(attempts, attemptsvc.Options{
		Logger:  logger,
		Events:  publishers,
		Audit:   auditLogger,
		Metrics: metrics,
	})

	tokens, err := tokenProvider(cfg)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	evaluator := engine.NewOPAEvaluator(policyrepo.NewPostgresRepository(pool), logger)
	checker.Add("policy", evaluator.HealthCheck)

	identity := identitysvc.NewIdentityService(identitysvc.Deps{
		Users:       userrepo.NewPostgresRepository(pool),
		ResetTokens: identityrepo.NewPostgresRepository(pool),
		Sessions:    sessions,
		Security:    loginSecurity,
		Tokens:      tokens,
		Hasher:      security.NewHasher(cfg.BcryptCost),
		Policy:      evaluator,
		Notifier:    notifier,
		Events:      publishers,
		Audit:       auditLogger,
		Logger:      logger,
	}, identitysvc.Settings{
		SecurityPolicy:     cfg.SecurityPolicy(),
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
		ResetTTL:           cfg.ResetTTL(),
		TOTPIssuer:         cfg.TOTPIssuer,
	})

	healthSrv := health.NewServer()
	deps := server.Deps{
		Identity: identity,
		Tokens:   tokens,
		Sessions: sessions,
		Audit:    auditLogger,
		Health:   healthSrv,
		Logger:   logger,
	}
	grpcServer := server.NewServer(deps)
	server.RegisterServices(grpcServer, deps)

	go checker.Watch(ctx, healthSrv, 10*time.Second, logger)

	var obsErrs <-chan error
	if cfg.MetricsAddr != "" {
		if obsErrs, err = obs.Start(); err != nil {
			return err
		}
		defer shutdown(logger, "observability", obs.Stop)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gRPC server")
	case err := <-serveErr:
		return err
	case err, ok := <-obsErrs:
		if ok && err != nil {
			grpcServer.Stop()
			return err
		}
	}
	healthSrv.Shutdown()
	stopGracefully(grpcServer, 15*time.Second)
	logger.Info("gRPC server stopped")
	return nil
}

// attemptStore picks the login attempt backend and registers its health check.
func attemptStore(cfg *config.Config, pool *pgxpool.Pool, checker *healthcheck.Checker) (attemptrepo.Repository, func(), error) {
	if cfg.LoginAttemptStore != "redis" {
		return attemptrepo.NewPostgresRepository(pool), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	checker.Add("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	return attemptrepo.NewRedisRepository(rdb, ""), func() { _ = rdb.Close() }, nil
}

func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL()), nil
}

func newNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.EmailProvider == "ses" {
		return notify.NewSESNotifier(ctx, cfg.AWSRegion, cfg.EmailFrom)
	}
	return notify.NewLogNotifier(logger), nil
}

// stopGracefully drains in-flight RPCs, forcing a stop after timeout.
func stopGracefully(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.Stop()
	}
}

func shutdown(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("shutdown failed", "component", name, "error", err)
	}
}
