package server

import "time"

// Status is embedded in every response. Business failures are reported here with an OK
// gRPC status; only malformed requests and internal failures become gRPC errors.
type Status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Status
	UserID string `json:"user_id,omitempty"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totp_code,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
}

type LoginResponse struct {
	Status
	AccessToken       string     `json:"access_token,omitempty"`
	RefreshToken      string     `json:"refresh_token,omitempty"`
	AccessExpiresAt   *time.Time `json:"access_expires_at,omitempty"`
	UserID            string     `json:"user_id,omitempty"`
	SessionID         string     `json:"session_id,omitempty"`
	RequiresTwoFactor bool       `json:"requires_two_factor,omitempty"`
	RequiresCaptcha   bool       `json:"requires_captcha,omitempty"`
	RemainingAttempts int        `json:"remaining_attempts"`
	LockoutEndTime    *time.Time `json:"lockout_end_time,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	Status
	AccessToken     string     `json:"access_token,omitempty"`
	RefreshToken    string     `json:"refresh_token,omitempty"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
}

type LogoutRequest struct{}

type LogoutResponse struct {
	Status
}

type LogoutAllRequest struct{}

type LogoutAllResponse struct {
	Status
	RevokedCount int `json:"revoked_count"`
}

type ListSessionsRequest struct{}

type Session struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	UserAgent      string    `json:"user_agent,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	DeviceType     string    `json:"device_type,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	Current        bool      `json:"current,omitempty"`
}

type ListSessionsResponse struct {
	Status
	Sessions []Session `json:"sessions"`
}

type RevokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

type RevokeSessionResponse struct {
	Status
}

type RequestPasswordResetRequest struct {
	Email string `json:"email"`
}

type RequestPasswordResetResponse struct {
	Status
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ResetPasswordResponse struct {
	Status
}

type SetupTwoFactorRequest struct {
	Password string `json:"password"`
}

type SetupTwoFactorResponse struct {
	Status
	Secret     string `json:"secret,omitempty"`
	OTPAuthURL string `json:"otpauth_url,omitempty"`
}

type VerifyTwoFactorRequest struct {
	Code string `json:"code"`
}

type VerifyTwoFactorResponse struct {
	Status
}

type DisableTwoFactorRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

type DisableTwoFactorResponse struct {
	Status
}
