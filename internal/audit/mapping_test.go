package audit

import "testing"

func TestParseFullMethod(t *testing.T) {
	tests := []struct {
		fullMethod   string
		wantAction   string
		wantResource string
	}{
		{"/tenantiam.identity.v1.IdentityService/Register", "register", "identity"},
		{"/tenantiam.identity.v1.IdentityService/Login", "login", "identity"},
		{"/tenantiam.identity.v1.IdentityService/Refresh", "refresh", "identity"},
		{"/tenantiam.identity.v1.IdentityService/Logout", "logout", "identity"},
		{"/tenantiam.identity.v1.IdentityService/LogoutAll", "logout", "identity"},
		{"/tenantiam.identity.v1.IdentityService/ListSessions", "list", "identity"},
		{"/tenantiam.identity.v1.IdentityService/RevokeSession", "revoke", "identity"},
		{"/tenantiam.identity.v1.IdentityService/RequestPasswordReset", "request", "identity"},
		{"/tenantiam.identity.v1.IdentityService/ResetPassword", "reset", "identity"},
		{"/tenantiam.identity.v1.IdentityService/SetupTwoFactor", "setup", "identity"},
		{"/tenantiam.identity.v1.IdentityService/VerifyTwoFactor", "verify", "identity"},
		{"/tenantiam.identity.v1.IdentityService/DisableTwoFactor", "disable", "identity"},
		{"/tenantiam.session.v1.SessionService/GetSession", "get", "session"},
		{"/tenantiam.session.v1.SessionService/ListSessions", "list", "session"},
		{"/tenantiam.session.v1.SessionService/RevokeSession", "revoke", "session"},
		{"/tenantiam.session.v1.SessionService/SuspendSession", "suspend", "session"},
		{"/tenantiam.auth.v1.AuthService/LoginWithPassword", "login", "auth"},
		{"/tenantiam.auth.v1.AuthService/LogoutAll", "logout", "auth"},
		{"/tenantiam.auth.v1.AuthService/RefreshToken", "refresh", "auth"},
		{"/tenantiam.auth.v1.AuthService/ResetPassword", "reset", "auth"},
		{"/tenantiam.auth.v1.AuthService/RequestPasswordReset", "request", "auth"},
		{"/tenantiam.auth.v1.AuthService/EnableTwoFactor", "enable", "auth"},
		{"/tenantiam.user.v1.UserService/Whoami", "whoami", "user"},
		{"/tenantiam.user.v1.UserService/Get", "get", "user"},
		{"/Service/Method", "method", "unknown"},
		{"/tenantiam.v1.Service/Ping", "ping", "unknown"},
		{"no-slash", "unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.fullMethod, func(t *testing.T) {
			ar := ParseFullMethod(tt.fullMethod)
			if ar.Action != tt.wantAction || ar.Resource != tt.wantResource {
				t.Errorf("ParseFullMethod(%q) = %+v, want %s/%s", tt.fullMethod, ar, tt.wantAction, tt.wantResource)
			}
		})
	}
}

func TestShouldAudit(t *testing.T) {
	if ShouldAudit("/grpc.health.v1.Health/Check") {
		t.Error("health checks should not be audited")
	}
	if ShouldAudit("/grpc.reflection.v1.ServerReflection/ServerReflectionInfo") {
		t.Error("reflection should not be audited")
	}
	if !ShouldAudit("/tenantiam.identity.v1.IdentityService/Login") {
		t.Error("identity calls should be audited")
	}
	if !ShouldAudit("/tenantiam.session.v1.SessionService/RevokeSession") {
		t.Error("session calls should be audited")
	}
}
