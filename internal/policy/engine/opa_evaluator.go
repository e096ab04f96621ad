package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/policy/domain"
)

const policyQuery = "data.tenantiam.login"

// DefaultPolicy requires the second factor for every user who enrolled one. It never denies.
const DefaultPolicy = `package tenantiam.login

default require_two_factor := false
default deny := false
default reason := ""

require_two_factor if {
	input.user.two_factor_enabled
}

require_two_factor if {
	input.security.suspicious
	input.user.two_factor_enabled
}
`

// PolicySource loads a tenant's enabled login policies.
type PolicySource interface {
	GetEnabledByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
}

// OPAEvaluator evaluates the tenant's enabled policies, or DefaultPolicy when it has none.
type OPAEvaluator struct {
	policies PolicySource
	logger   *slog.Logger
}

// NewOPAEvaluator returns an OPA-based login policy evaluator. policies may be nil.
func NewOPAEvaluator(policies PolicySource, logger *slog.Logger) *OPAEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OPAEvaluator{policies: policies, logger: logger}
}

// HealthCheck compiles and evaluates DefaultPolicy in process. It does not touch the policy store.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := evaluate(ctx, []string{DefaultPolicy}, buildInput(LoginInput{}))
	return err
}

// EvaluateLogin evaluates the login policy. When a tenant policy cannot be loaded or evaluated it
// falls back to DefaultPolicy and returns that decision together with the error.
func (e *OPAEvaluator) EvaluateLogin(ctx context.Context, in LoginInput) (LoginDecision, error) {
	input := buildInput(in)

	var modules []string
	if e.policies != nil {
		list, err := e.policies.GetEnabledByTenant(ctx, in.TenantID)
		if err != nil {
			e.logger.WarnContext(ctx, "login policy load failed, using default", "tenant_id", in.TenantID, "error", err)
		}
		for _, p := range list {
			if p.Enabled && p.Rules != "" {
				modules = append(modules, p.Rules)
			}
		}
	}
	if len(modules) > 0 {
		d, err := evaluate(ctx, modules, input)
		if err == nil {
			return d, nil
		}
		e.logger.WarnContext(ctx, "tenant login policy failed, using default", "tenant_id", in.TenantID, "error", err)
		fallback, ferr := evaluate(ctx, []string{DefaultPolicy}, input)
		if ferr != nil {
			return fallbackDecision(in), ferr
		}
		return fallback, err
	}
	d, err := evaluate(ctx, []string{DefaultPolicy}, input)
	if err != nil {
		return fallbackDecision(in), err
	}
	return d, nil
}

func buildInput(in LoginInput) map[string]any {
	return map[string]any{
		"tenant_id": in.TenantID,
		"user": map[string]any{
			"id":                 in.UserID,
			"status":             in.UserStatus,
			"two_factor_enabled": in.TwoFactorEnabled,
		},
		"security": map[string]any{
			"suspicious":         in.Suspicious,
			"requires_captcha":   in.RequiresCaptcha,
			"remaining_attempts": in.RemainingAttempts,
		},
		"device": map[string]any{
			"ip_address":  in.IPAddress,
			"user_agent":  in.UserAgent,
			"device_type": in.DeviceType,
		},
	}
}

func evaluate(ctx context.Context, policies []string, input map[string]any) (LoginDecision, error) {
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return LoginDecision{}, oops.Code("POLICY_COMPILE_FAILED").Wrap(err)
	}
	rs, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return LoginDecision{}, oops.Code("POLICY_EVAL_FAILED").Wrap(err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return LoginDecision{}, oops.Code("POLICY_EVAL_FAILED").Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return LoginDecision{}, oops.Code("POLICY_EVAL_FAILED").Errorf("policy document is %T", rs[0].Expressions[0].Value)
	}
	var d LoginDecision
	d.RequireTwoFactor, _ = doc["require_two_factor"].(bool)
	d.Deny, _ = doc["deny"].(bool)
	d.Reason, _ = doc["reason"].(string)
	return d, nil
}

func fallbackDecision(in LoginInput) LoginDecision {
	return LoginDecision{RequireTwoFactor: in.TwoFactorEnabled}
}
