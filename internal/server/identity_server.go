package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	identityservice "tenant-iam/backend/internal/identity/service"
	"tenant-iam/backend/internal/server/interceptors"
	sessiondomain "tenant-iam/backend/internal/session/domain"
)

// IdentityServiceName is the gRPC service name of the identity API.
const IdentityServiceName = "tenantiam.identity.v1.IdentityService"

// IdentityUseCases is the identity API backend. *identityservice.IdentityService satisfies it.
type IdentityUseCases interface {
	Register(ctx context.Context, req identityservice.RegisterRequest) identityservice.RegisterResult
	Login(ctx context.Context, req identityservice.LoginRequest) identityservice.LoginResult
	Refresh(ctx context.Context, tenantID, refreshToken string, device sessiondomain.DeviceInfo) identityservice.RefreshResult
	Logout(ctx context.Context, tenantID, sessionID string) identityservice.Result
	LogoutAll(ctx context.Context, tenantID, userID string) identityservice.LogoutAllResult
	ListSessions(ctx context.Context, tenantID, userID, currentSessionID string) identityservice.ListSessionsResult
	RevokeSession(ctx context.Context, tenantID, userID, sessionID string) identityservice.Result
	RequestPasswordReset(ctx context.Context, tenantID, email string) identityservice.Result
	ResetPassword(ctx context.Context, tenantID, secret, newPassword string) identityservice.Result
	SetupTwoFactor(ctx context.Context, tenantID, userID, password string) identityservice.TwoFactorSetupResult
	VerifyTwoFactor(ctx context.Context, tenantID, userID, code string) identityservice.Result
	DisableTwoFactor(ctx context.Context, tenantID, userID, password, code string) identityservice.Result
}

// IdentityServer adapts the identity use cases to gRPC.
type IdentityServer struct {
	uc IdentityUseCases
}

func NewIdentityServer(uc IdentityUseCases) *IdentityServer {
	return &IdentityServer{uc: uc}
}

func (s *IdentityServer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	res := s.uc.Register(ctx, identityservice.RegisterRequest{TenantID: tenantID, Email: req.Email, Username: req.Username, Password: req.Password})
	st, err := toStatus(res.Result)
	if err != nil {
		return nil, err
	}
	return &RegisterResponse{Status: st, UserID: res.UserID}, nil
}

func (s *IdentityServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	dev := device(ctx)
	dev.DeviceType, dev.Browser, dev.OS = req.DeviceType, req.Browser, req.OS
	res := s.uc.Login(ctx, identityservice.LoginRequest{
		TenantID: tenantID,
		Email:    req.Email,
		Password: req.Password,
		TOTPCode: req.TOTPCode,
		Device:   dev,
	})
	st, err := toStatus(res.Result)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		Status:            st,
		AccessToken:       res.AccessToken,
		RefreshToken:      res.RefreshToken,
		AccessExpiresAt:   timePtr(res.AccessExpiresAt),
		UserID:            res.UserID,
		SessionID:         res.SessionID,
		RequiresTwoFactor: res.RequiresTwoFactor,
		RequiresCaptcha:   res.RequiresCaptcha,
		RemainingAttempts: res.RemainingAttempts,
		LockoutEndTime:    res.LockoutEndTime,
	}, nil
}

func (s *IdentityServer) Refresh(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	res := s.uc.Refresh(ctx, tenantID, req.RefreshToken, device(ctx))
	st, err := toStatus(res.Result)
	if err != nil {
		return nil, err
	}
	return &RefreshResponse{
		Status:          st,
		AccessToken:     res.AccessToken,
		RefreshToken:    res.RefreshToken,
		AccessExpiresAt: timePtr(res.AccessExpiresAt),
		SessionID:       res.SessionID,
	}, nil
}

func (s *IdentityServer) Logout(ctx context.Context, _ *LogoutRequest) (*LogoutResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := toStatus(s.uc.Logout(ctx, id.tenantID, id.sessionID))
	if err != nil {
		return nil, err
	}
	return &LogoutResponse{Status: st}, nil
}

func (s *IdentityServer) LogoutAll(ctx context.Context, _ *LogoutAllRequest) (*LogoutAllResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	res := s.uc.LogoutAll(ctx, id.tenantID, id.userID)
	st, err := toStatus(res.Result)
	if err != nil {
		return nil, err
	}
	return &LogoutAllResponse{Status: st, RevokedCount: res.RevokedCount}, nil
}

func (s *IdentityServer) ListSessions(ctx context.Context, _ *ListSessionsRequest) (*ListSessionsResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	res := s.uc.ListSessions(ctx, id.tenantID, id.userID, id.sessionID)
	st, err := toStatus(res.Result)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(res.Sessions))
	for _, v := range res.Sessions {
		out = append(out, Session{
			ID:             v.ID,
			Status:         string(v.Status),
			UserAgent:      v.Device.UserAgent,
			IPAddress:      v.Device.IPAddress,
			DeviceType:     v.Device.DeviceType,
			LastActivityAt: v.LastActivityAt,
			ExpiresAt:      v.ExpiresAt,
			CreatedAt:      v.CreatedAt,
			Current:        v.Current,
		})
	}
	return &ListSessionsResponse{Status: st, Sessions: out}, nil
}

func (s *IdentityServer) RevokeSession(ctx context.Context, req *RevokeSessionRequest) (*RevokeSessionResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := toStatus(s.uc.RevokeSession(ctx, id.tenantID, id.userID, req.SessionID))
	if err != nil {
		return nil, err
	}
	return &RevokeSessionResponse{Status: st}, nil
}

func (s *IdentityServer) RequestPasswordReset(ctx context.Context, req *RequestPasswordResetRequest) (*RequestPasswordResetResponse, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	st, err := toStatus(s.uc.RequestPasswordReset(ctx, tenantID, req.Email))
	if err != nil {
		return nil, err
	}
	return &RequestPasswordResetResponse{Status: st}, nil
}

func (s *IdentityServer) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*ResetPasswordResponse, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	st, err := toStatus(s.uc.ResetPassword(ctx, tenantID, req.Token, req.NewPassword))
	if err != nil {
		return nil, err
	}
	return &ResetPasswordResponse{Status: st}, nil
}

func (s *IdentityServer) SetupTwoFactor(ctx context.Context, req *SetupTwoFactorRequest) (*SetupTwoFactorResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	res := s.uc.SetupTwoFactor(ctx, id.tenantID, id.userID, req.Password)
	st, err := toStatus(res.Result)
	if err != nil {
		return nil, err
	}
	return &SetupTwoFactorResponse{Status: st, Secret: res.Secret, OTPAuthURL: res.OTPAuthURL}, nil
}

func (s *IdentityServer) VerifyTwoFactor(ctx context.Context, req *VerifyTwoFactorRequest) (*VerifyTwoFactorResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := toStatus(s.uc.VerifyTwoFactor(ctx, id.tenantID, id.userID, req.Code))
	if err != nil {
		return nil, err
	}
	return &VerifyTwoFactorResponse{Status: st}, nil
}

func (s *IdentityServer) DisableTwoFactor(ctx context.Context, req *DisableTwoFactorRequest) (*DisableTwoFactorResponse, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := toStatus(s.uc.DisableTwoFactor(ctx, id.tenantID, id.userID, req.Password, req.Code))
	if err != nil {
		return nil, err
	}
	return &DisableTwoFactorResponse{Status: st}, nil
}

func (s *IdentityServer) tenant(ctx context.Context) (string, error) {
	if s.uc == nil {
		return "", status.Error(codes.Unimplemented, "identity service not configured")
	}
	tenantID := interceptors.RequestTenant(ctx)
	if tenantID == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s metadata is required", interceptors.TenantHeader)
	}
	return tenantID, nil
}

type identity struct {
	userID, tenantID, sessionID string
}

// caller returns the authenticated identity set by AuthUnary.
func (s *IdentityServer) caller(ctx context.Context) (identity, error) {
	if s.uc == nil {
		return identity{}, status.Error(codes.Unimplemented, "identity service not configured")
	}
	userID, _ := interceptors.GetUserID(ctx)
	tenantID, _ := interceptors.GetTenantID(ctx)
	sessionID, _ := interceptors.GetSessionID(ctx)
	if userID == "" || tenantID == "" {
		return identity{}, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	return identity{userID: userID, tenantID: tenantID, sessionID: sessionID}, nil
}

func device(ctx context.Context) sessiondomain.DeviceInfo {
	return sessiondomain.DeviceInfo{
		IPAddress: interceptors.ClientIP(ctx),
		UserAgent: interceptors.UserAgent(ctx),
	}
}

// toStatus maps a use case result to the response status. Malformed input and internal
// failures become gRPC errors.
func toStatus(r identityservice.Result) (Status, error) {
	switch {
	case r.Success:
		return Status{Success: true}, nil
	case r.Error == identityservice.MsgInvalidInput:
		return Status{}, status.Error(codes.InvalidArgument, r.Error)
	case r.Error == identityservice.MsgInternal:
		return Status{}, status.Error(codes.Internal, r.Error)
	}
	return Status{Error: r.Error}, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// identityHandler is the method set registered under IdentityServiceName.
type identityHandler interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	LogoutAll(context.Context, *LogoutAllRequest) (*LogoutAllResponse, error)
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
	RevokeSession(context.Context, *RevokeSessionRequest) (*RevokeSessionResponse, error)
	RequestPasswordReset(context.Context, *RequestPasswordResetRequest) (*RequestPasswordResetResponse, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*ResetPasswordResponse, error)
	SetupTwoFactor(context.Context, *SetupTwoFactorRequest) (*SetupTwoFactorResponse, error)
	VerifyTwoFactor(context.Context, *VerifyTwoFactorRequest) (*VerifyTwoFactorResponse, error)
	DisableTwoFactor(context.Context, *DisableTwoFactorRequest) (*DisableTwoFactorResponse, error)
}

// IdentityServiceDesc describes the identity API for grpc.ServiceRegistrar.
var IdentityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*identityHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", identityHandler.Register),
		unary("Login", identityHandler.Login),
		unary("Refresh", identityHandler.Refresh),
		unary("Logout", identityHandler.Logout),
		unary("LogoutAll", identityHandler.LogoutAll),
		unary("ListSessions", identityHandler.ListSessions),
		unary("RevokeSession", identityHandler.RevokeSession),
		unary("RequestPasswordReset", identityHandler.RequestPasswordReset),
		unary("ResetPassword", identityHandler.ResetPassword),
		unary("SetupTwoFactor", identityHandler.SetupTwoFactor),
		unary("VerifyTwoFactor", identityHandler.VerifyTwoFactor),
		unary("DisableTwoFactor", identityHandler.DisableTwoFactor),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tenantiam/identity/v1",
}

// FullMethod returns the full gRPC method name of an identity API method.
func FullMethod(method string) string {
	return "/" + IdentityServiceName + "/" + method
}

func unary[Req, Resp any](name string, call func(identityHandler, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(identityHandler)
			if interceptor == nil {
				return call(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(h, ctx, req.(*Req))
			})
		},
	}
}
