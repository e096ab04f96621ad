// Package domain holds tenant login policies.
package domain

import "time"

// Policy is a tenant-supplied Rego module in package tenantiam.login. Enabled
// policies replace the built-in login policy for that tenant.
type Policy struct {
	ID        string
	TenantID  string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
