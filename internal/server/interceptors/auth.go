package interceptors

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sessiondomain "tenant-iam/backend/internal/session/domain"
	tokendomain "tenant-iam/backend/internal/token/domain"
)

const bearerPrefix = "bearer "

// AccessValidator verifies an access token signature and claims. *security.TokenProvider satisfies it.
type AccessValidator interface {
	ValidateAccess(raw string) (*tokendomain.Claims, error)
}

// SessionTracker checks that the session behind a token is still usable and records activity.
// *sessionsvc.SessionManagementService satisfies it.
type SessionTracker interface {
	ValidateSession(ctx context.Context, tenantID string, id sessiondomain.SessionID) (*sessiondomain.AuthSession, error)
	UpdateActivity(ctx context.Context, tenantID string, id sessiondomain.SessionID) (*sessiondomain.AuthSession, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access token and the
// session it names, then sets user_id, tenant_id and session_id in context.
// publicMethods is the set of full method names that do not require a Bearer token.
// A revoked, expired or suspended session fails the call even when the token signature is valid.
func AuthUnary(tokens AccessValidator, sessions SessionTracker, publicMethods map[string]bool, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		claims, err := tokens.ValidateAccess(token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		if sessions != nil {
			sid, err := sessiondomain.NewSessionID(claims.SessionID)
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
			}
			if _, err := sessions.ValidateSession(ctx, claims.TenantID, sid); err != nil {
				return nil, status.Error(codes.Unauthenticated, "session is no longer valid")
			}
			if _, err := sessions.UpdateActivity(ctx, claims.TenantID, sid); err != nil {
				logger.WarnContext(ctx, "session activity not recorded", "session_id", sid.String(), "error", err)
			}
		}

		ctx = WithIdentity(ctx, claims.Subject, claims.TenantID, claims.SessionID)
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
