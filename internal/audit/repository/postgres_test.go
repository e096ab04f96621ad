package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-iam/backend/internal/audit/domain"
)

var auditColumnNames = []string{"id", "tenant_id", "user_id", "action", "resource", "ip", "metadata", "created_at"}

func TestPostgresRepository_Create(t *testing.T) {
	now := time.Now().UTC()
	entry := &domain.AuditLog{ID: "a1", TenantID: "t1", Action: "session_revoked", Resource: "session", IP: "unknown", CreatedAt: now}

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs("a1", "t1", (*string)(nil), "session_revoked", "session", "unknown", (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPostgresRepository(mock).Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("disk full")
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(boom)

	err = NewPostgresRepository(mock).Create(context.Background(), &domain.AuditLog{ID: "a1", TenantID: "t1"})
	assert.ErrorIs(t, err, boom)
}

func TestPostgresRepository_GetByID(t *testing.T) {
	now := time.Now().UTC()
	user := "u1"

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM audit_logs WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("t1", "a1").
		WillReturnRows(pgxmock.NewRows(auditColumnNames).AddRow("a1", "t1", &user, "login_success", "user", "10.0.0.1", (*string)(nil), now))
	mock.ExpectQuery(`FROM audit_logs WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("t1", "missing").
		WillReturnRows(pgxmock.NewRows(auditColumnNames))

	repo := NewPostgresRepository(mock)
	got, err := repo.GetByID(context.Background(), "t1", "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Empty(t, got.Metadata)

	got, err = repo.GetByID(context.Background(), "t1", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByTenant(t *testing.T) {
	now := time.Now().UTC()
	meta := `{"count":"3"}`

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("t1", 10, 0).
		WillReturnRows(pgxmock.NewRows(auditColumnNames).
			AddRow("a2", "t1", (*string)(nil), "sessions_revoked", "session", "unknown", &meta, now).
			AddRow("a1", "t1", (*string)(nil), "login_failure", "user", "unknown", (*string)(nil), now.Add(-time.Minute)))

	got, err := NewPostgresRepository(mock).ListByTenant(context.Background(), "t1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, meta, got[0].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}
