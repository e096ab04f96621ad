package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tenant-iam/backend/internal/audit"
	"tenant-iam/backend/internal/server/interceptors"
)

// Deps holds the collaborators of the gRPC server.
type Deps struct {
	// Identity backs IdentityService. If nil, its RPCs return Unimplemented.
	Identity IdentityUseCases
	// Tokens and Sessions back AuthUnary. Sessions may be nil to trust token signatures alone.
	Tokens   interceptors.AccessValidator
	Sessions interceptors.SessionTracker
	// Audit receives one entry per audited RPC. If nil, RPCs are not audited.
	Audit audit.AuditLogger
	// Health is the standard gRPC health service. If nil, it is not registered.
	Health *health.Server
	Logger *slog.Logger
}

var healthMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

// PublicMethods returns the full method names callable without a Bearer token.
func PublicMethods() map[string]bool {
	m := map[string]bool{
		FullMethod("Register"):             true,
		FullMethod("Login"):                true,
		FullMethod("Refresh"):              true,
		FullMethod("RequestPasswordReset"): true,
		FullMethod("ResetPassword"):        true,
	}
	for k := range healthMethods {
		m[k] = true
	}
	return m
}

// NewServer returns a gRPC server with OpenTelemetry instrumentation, the telemetry, auth and
// audit interceptors (in that order) and every service registered. opts are appended.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(logger, healthMethods),
			interceptors.AuthUnary(deps.Tokens, deps.Sessions, PublicMethods(), logger),
			interceptors.AuditUnary(deps.Audit),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers IdentityService and, when configured, the health service.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	s.RegisterService(&IdentityServiceDesc, NewIdentityServer(deps.Identity))
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
