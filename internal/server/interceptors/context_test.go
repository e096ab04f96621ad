package interceptors

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "tenant-1", "session-1")

	if v, ok := GetUserID(ctx); !ok || v != "user-1" {
		t.Errorf("user_id = %q, ok = %v, want %q", v, ok, "user-1")
	}
	if v, ok := GetTenantID(ctx); !ok || v != "tenant-1" {
		t.Errorf("tenant_id = %q, ok = %v, want %q", v, ok, "tenant-1")
	}
	if v, ok := GetSessionID(ctx); !ok || v != "session-1" {
		t.Errorf("session_id = %q, ok = %v, want %q", v, ok, "session-1")
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserID(ctx); ok {
		t.Error("GetUserID should return false when not set")
	}
	if _, ok := GetTenantID(ctx); ok {
		t.Error("GetTenantID should return false when not set")
	}
	if _, ok := GetSessionID(ctx); ok {
		t.Error("GetSessionID should return false when not set")
	}
}

func TestRequestTenant(t *testing.T) {
	withHeader := metadata.NewIncomingContext(context.Background(), metadata.Pairs(TenantHeader, " acme "))

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"none", context.Background(), ""},
		{"header", withHeader, "acme"},
		{"identity wins over header", WithIdentity(withHeader, "u", "tenant-1", "s"), "tenant-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequestTenant(tt.ctx); got != tt.want {
				t.Errorf("RequestTenant = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("user-agent", "grpc-go/1.78"))
	if got := UserAgent(ctx); got != "grpc-go/1.78" {
		t.Errorf("UserAgent = %q", got)
	}
	if got := UserAgent(context.Background()); got != "" {
		t.Errorf("UserAgent without metadata = %q, want empty", got)
	}
}
