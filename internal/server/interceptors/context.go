package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	tenantIDKey  = contextKey{"tenant_id"}
	sessionIDKey = contextKey{"session_id"}
)

// TenantHeader carries the tenant of unauthenticated calls such as Login.
const TenantHeader = "x-tenant-id"

// WithIdentity returns a context with user_id, tenant_id, and session_id set.
func WithIdentity(ctx context.Context, userID, tenantID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetTenantID returns the authenticated tenant_id from context and true if set.
func GetTenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// RequestTenant returns the authenticated tenant, or the x-tenant-id header for anonymous calls.
func RequestTenant(ctx context.Context) string {
	if v, ok := GetTenantID(ctx); ok && v != "" {
		return v
	}
	return firstMetadata(ctx, TenantHeader)
}

// UserAgent returns the user-agent metadata of the call.
func UserAgent(ctx context.Context) string {
	return firstMetadata(ctx, "user-agent")
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
