// Package engine evaluates tenant login policies with OPA.
package engine

import (
	"context"
)

// LoginInput is what the login policy sees about one authentication.
type LoginInput struct {
	TenantID          string
	UserID            string
	UserStatus        string
	TwoFactorEnabled  bool
	Suspicious        bool
	RequiresCaptcha   bool
	RemainingAttempts int
	IPAddress         string
	UserAgent         string
	DeviceType        string
}

// LoginDecision is the outcome of the login policy.
type LoginDecision struct {
	RequireTwoFactor bool
	Deny             bool
	Reason           string
}

// Evaluator decides whether a credential-verified login needs a second factor or must be denied.
type Evaluator interface {
	EvaluateLogin(ctx context.Context, in LoginInput) (LoginDecision, error)
}
