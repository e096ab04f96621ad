package server

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	identityservice "tenant-iam/backend/internal/identity/service"
	"tenant-iam/backend/internal/security"
	sessiondomain "tenant-iam/backend/internal/session/domain"
	sessionrepo "tenant-iam/backend/internal/session/repository"
	sessionsvc "tenant-iam/backend/internal/session/service"
)

// fakeUseCases records the inputs it receives and answers with canned results.
type fakeUseCases struct {
	mu        sync.Mutex
	login     identityservice.LoginRequest
	listCall  [3]string
	setupCall [3]string
	loginResp identityservice.LoginResult
}

func (f *fakeUseCases) Register(_ context.Context, req identityservice.RegisterRequest) identityservice.RegisterResult {
	return identityservice.RegisterResult{Result: identityservice.Result{Success: true}, UserID: "user-" + req.Username}
}

func (f *fakeUseCases) Login(_ context.Context, req identityservice.LoginRequest) identityservice.LoginResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.login = req
	return f.loginResp
}

func (f *fakeUseCases) Refresh(context.Context, string, string, sessiondomain.DeviceInfo) identityservice.RefreshResult {
	return identityservice.RefreshResult{Result: identityservice.Result{Error: identityservice.MsgInvalidRefreshToken}}
}

func (f *fakeUseCases) Logout(context.Context, string, string) identityservice.Result {
	return identityservice.Result{Success: true}
}

func (f *fakeUseCases) LogoutAll(context.Context, string, string) identityservice.LogoutAllResult {
	return identityservice.LogoutAllResult{Result: identityservice.Result{Success: true}, RevokedCount: 2}
}

func (f *fakeUseCases) ListSessions(_ context.Context, tenantID, userID, current string) identityservice.ListSessionsResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCall = [3]string{tenantID, userID, current}
	return identityservice.ListSessionsResult{
		Result:   identityservice.Result{Success: true},
		Sessions: []identityservice.SessionView{{ID: current, Status: sessiondomain.StatusActive, Current: true}},
	}
}

func (f *fakeUseCases) RevokeSession(context.Context, string, string, string) identityservice.Result {
	return identityservice.Result{Error: identityservice.MsgSessionNotFound}
}

func (f *fakeUseCases) RequestPasswordReset(context.Context, string, string) identityservice.Result {
	return identityservice.Result{Error: identityservice.MsgInternal}
}

func (f *fakeUseCases) ResetPassword(context.Context, string, string, string) identityservice.Result {
	return identityservice.Result{Error: identityservice.MsgInvalidInput}
}

func (f *fakeUseCases) SetupTwoFactor(_ context.Context, tenantID, userID, password string) identityservice.TwoFactorSetupResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupCall = [3]string{tenantID, userID, password}
	return identityservice.TwoFactorSetupResult{Result: identityservice.Result{Success: true}, Secret: "SECRET"}
}

func (f *fakeUseCases) VerifyTwoFactor(context.Context, string, string, string) identityservice.Result {
	return identityservice.Result{Success: true}
}

func (f *fakeUseCases) DisableTwoFactor(context.Context, string, string, string, string) identityservice.Result {
	return identityservice.Result{Success: true}
}

var _ IdentityUseCases = (*identityservice.IdentityService)(nil)

type serverFixture struct {
	conn   *grpc.ClientConn
	uc     *fakeUseCases
	access string
	sid    string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	sessions := sessionsvc.NewSessionManagementService(sessionrepo.NewMemoryRepository(), sessionsvc.Options{})
	sid := sessiondomain.GenerateSessionID()
	pair, err := tokens.IssuePair("tenant-1", "user-1", sid.String())
	require.NoError(t, err)
	_, err = sessions.CreateSession(context.Background(), sessionsvc.CreateSessionInput{
		ID: sid, UserID: "user-1", TenantID: "tenant-1", AccessToken: pair.Access, RefreshToken: pair.Refresh,
	})
	require.NoError(t, err)

	uc := &fakeUseCases{}
	hs := health.NewServer()
	srv := NewServer(Deps{Identity: uc, Tokens: tokens, Sessions: sessions, Health: hs})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &serverFixture{conn: conn, uc: uc, access: pair.Access.Value(), sid: sid.String()}
}

func withTenant(tenantID string, kv ...string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), append([]string{"x-tenant-id", tenantID}, kv...)...)
}

func TestLogin_PassesTenantAndDevice(t *testing.T) {
	f := newServerFixture(t)
	f.uc.loginResp = identityservice.LoginResult{
		Result:            identityservice.Result{Error: identityservice.MsgTwoFactorRequired},
		RequiresTwoFactor: true,
		RemainingAttempts: 4,
	}

	var resp LoginResponse
	ctx := withTenant("tenant-1", "x-forwarded-for", "203.0.113.5")
	err := f.conn.Invoke(ctx, FullMethod("Login"), &LoginRequest{Email: "ada@example.com", Password: "pw", DeviceType: "mobile"}, &resp)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, identityservice.MsgTwoFactorRequired, resp.Error)
	assert.True(t, resp.RequiresTwoFactor)
	assert.Equal(t, 4, resp.RemainingAttempts)

	f.uc.mu.Lock()
	defer f.uc.mu.Unlock()
	assert.Equal(t, "tenant-1", f.uc.login.TenantID)
	assert.Equal(t, "ada@example.com", f.uc.login.Email)
	assert.Equal(t, "203.0.113.5", f.uc.login.Device.IPAddress)
	assert.Equal(t, "mobile", f.uc.login.Device.DeviceType)
	assert.Contains(t, f.uc.login.Device.UserAgent, "grpc-go")
}

func TestLogin_RequiresTenant(t *testing.T) {
	f := newServerFixture(t)
	var resp LoginResponse
	err := f.conn.Invoke(context.Background(), FullMethod("Login"), &LoginRequest{Email: "a@b.c", Password: "pw"}, &resp)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestProtectedMethod_RequiresToken(t *testing.T) {
	f := newServerFixture(t)
	var resp ListSessionsResponse
	err := f.conn.Invoke(withTenant("tenant-1"), FullMethod("ListSessions"), &ListSessionsRequest{}, &resp)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestProtectedMethod_UsesTokenIdentity(t *testing.T) {
	f := newServerFixture(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+f.access)

	var resp ListSessionsResponse
	require.NoError(t, f.conn.Invoke(ctx, FullMethod("ListSessions"), &ListSessionsRequest{}, &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "ACTIVE", resp.Sessions[0].Status)

	f.uc.mu.Lock()
	defer f.uc.mu.Unlock()
	assert.Equal(t, [3]string{"tenant-1", "user-1", f.sid}, f.uc.listCall)
}

func TestSetupTwoFactor_ForwardsPassword(t *testing.T) {
	f := newServerFixture(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+f.access)

	var resp SetupTwoFactorResponse
	require.NoError(t, f.conn.Invoke(ctx, FullMethod("SetupTwoFactor"), &SetupTwoFactorRequest{Password: "s3cret"}, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "SECRET", resp.Secret)

	f.uc.mu.Lock()
	defer f.uc.mu.Unlock()
	assert.Equal(t, [3]string{"tenant-1", "user-1", "s3cret"}, f.uc.setupCall)
}

func TestResultMapping(t *testing.T) {
	f := newServerFixture(t)
	ctx := withTenant("tenant-1")

	var reset RequestPasswordResetResponse
	err := f.conn.Invoke(ctx, FullMethod("RequestPasswordReset"), &RequestPasswordResetRequest{Email: "a@b.c"}, &reset)
	assert.Equal(t, codes.Internal, status.Code(err))

	var pw ResetPasswordResponse
	err = f.conn.Invoke(ctx, FullMethod("ResetPassword"), &ResetPasswordRequest{}, &pw)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	var refresh RefreshResponse
	require.NoError(t, f.conn.Invoke(ctx, FullMethod("Refresh"), &RefreshRequest{RefreshToken: "x"}, &refresh))
	assert.False(t, refresh.Success)
	assert.Equal(t, identityservice.MsgInvalidRefreshToken, refresh.Error)

	var reg RegisterResponse
	require.NoError(t, f.conn.Invoke(ctx, FullMethod("Register"), &RegisterRequest{Username: "ada"}, &reg))
	assert.True(t, reg.Success)
	assert.Equal(t, "user-ada", reg.UserID)
}

func TestHealthIsPublic(t *testing.T) {
	f := newServerFixture(t)
	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{},
		grpc.CallContentSubtype("proto"))
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, _ any) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	assert.Equal(t, []string{IdentityServiceName}, reg.services)

	reg = &mockServiceRegistrar{}
	RegisterServices(reg, Deps{Health: health.NewServer()})
	assert.Equal(t, []string{IdentityServiceName, "grpc.health.v1.Health"}, reg.services)
}

func TestPublicMethods(t *testing.T) {
	m := PublicMethods()
	assert.True(t, m[FullMethod("Login")])
	assert.True(t, m["/grpc.health.v1.Health/Check"])
	assert.False(t, m[FullMethod("ListSessions")])
	assert.False(t, m[FullMethod("Logout")])
}
