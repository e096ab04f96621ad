package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is one recorded security-relevant action within a tenant.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// NewAuditLog stamps a new entry with a random id and the UTC time at.
// An empty ip is stored as "unknown".
func NewAuditLog(tenantID, userID, action, resource, ip, metadata string, at time.Time) *AuditLog {
	if ip == "" {
		ip = "unknown"
	}
	return &AuditLog{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: at.UTC(),
	}
}
