// seed inserts development sample data for local testing: two users in the dev tenant
// and a sample login policy. Idempotent: existing users and policies are left as they are.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"tenant-iam/backend/internal/config"
	"tenant-iam/backend/internal/db"
	"tenant-iam/backend/internal/logging"
	policydomain "tenant-iam/backend/internal/policy/domain"
	policyrepo "tenant-iam/backend/internal/policy/repository"
	"tenant-iam/backend/internal/security"
	userdomain "tenant-iam/backend/internal/user/domain"
	userrepo "tenant-iam/backend/internal/user/repository"
)

// devLoginPolicy denies suspicious logins for users without a second factor and asks
// enrolled users for their code.
const devLoginPolicy = `package tenantiam.login

default require_two_factor := false
default deny := false
default reason := ""

require_two_factor if {
	input.user.two_factor_enabled
}

deny if {
	input.security.suspicious
	not input.user.two_factor_enabled
}

reason := "suspicious activity from this address" if {
	deny
}
`

const (
	devTenantID   = "dev-tenant"
	devPassword   = "password123"
	devPolicyName = "dev-suspicious-requires-2fa"
)

var devUsers = []struct{ email, username string }{
	{"dev@example.com", "dev"},
	{"alice@example.com", "alice"},
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	logger := logging.Setup("tenant-iam-seed", "dev", "text", true, os.Stdout)

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	hasher := security.NewHasher(cfg.BcryptCost)
	now := time.Now().UTC()
	for _, du := range devUsers {
		existing, err := users.GetByEmail(ctx, devTenantID, du.email)
		if err != nil {
			return err
		}
		if existing != nil {
			logger.Info("user exists, skipping", "email", du.email)
			continue
		}
		hash, err := hasher.Hash(devPassword)
		if err != nil {
			return err
		}
		u, err := userdomain.NewUser(devTenantID, du.email, du.username, hash, now)
		if err != nil {
			return err
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
		logger.Info("user created", "email", du.email, "user_id", u.ID)
	}

	policies := policyrepo.NewPostgresRepository(pool)
	existing, err := policies.ListByTenant(ctx, devTenantID)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.Name == devPolicyName {
			logger.Info("policy exists, skipping", "name", devPolicyName)
			return nil
		}
	}
	p := &policydomain.Policy{
		ID:        uuid.NewString(),
		TenantID:  devTenantID,
		Name:      devPolicyName,
		Rules:     devLoginPolicy,
		Enabled:   true,
		CreatedAt: now,
	}
	if err := policies.Create(ctx, p); err != nil {
		return err
	}
	logger.Info("policy created", "name", devPolicyName, "tenant_id", devTenantID)
	return nil
}
