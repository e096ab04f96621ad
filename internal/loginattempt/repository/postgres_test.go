package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-iam/backend/internal/loginattempt/domain"
)

var attemptColumnNames = []string{
	"id", "tenant_id", "user_id", "email", "status", "type", "ip_address", "user_agent",
	"device_type", "browser", "os", "location", "failure_reason", "created_at",
}

func strPtr(s string) *string { return &s }

func TestPostgresRepository_Save(t *testing.T) {
	a := newAttempt(t, "t1", "a@x.io", "1.1.1.1", "", domain.StatusFailed, time.Now())

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "insert"},
		{name: "database error", err: errors.New("connection refused"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(`INSERT INTO login_attempts`).
				WithArgs(a.ID(), "t1", (*string)(nil), "a@x.io", "failed", "password",
					"1.1.1.1", "ua", "", "", "", pgxmock.AnyArg(), (*string)(nil), a.CreatedAt())
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err = NewPostgresRepository(mock).Save(context.Background(), a)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_GetRecentFailedAttempts(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	since := now.Add(-30 * time.Minute)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(attemptColumnNames).
		AddRow("01A", "t1", (*string)(nil), "a@x.io", "failed", "password", "1.1.1.1", "ua", "", "", "",
			[]byte(nil), strPtr("invalid password"), now.Add(-20*time.Minute)).
		AddRow("01B", "t1", strPtr("u1"), "a@x.io", "failed", "otp", "1.1.1.1", "ua", "", "", "",
			[]byte(`{"country":"DE"}`), (*string)(nil), now.Add(-10*time.Minute))
	mock.ExpectQuery(`FROM login_attempts\s+WHERE tenant_id = \$1 AND email = \$2 AND status = 'failed'`).
		WithArgs("t1", "a@x.io", since).
		WillReturnRows(rows)

	got, err := NewPostgresRepository(mock).GetRecentFailedAttempts(context.Background(), "t1", "a@x.io", since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "01A", got[0].ID())
	assert.Empty(t, got[0].UserID())
	assert.Equal(t, "invalid password", got[0].FailureReason())
	assert.Nil(t, got[0].Location())
	assert.Equal(t, "u1", got[1].UserID())
	assert.Equal(t, domain.TypeOTP, got[1].Type())
	require.NotNil(t, got[1].Location())
	assert.Equal(t, "DE", got[1].Location().Country)
	assert.True(t, got[1].IsFailed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Counts(t *testing.T) {
	since := time.Now().Add(-time.Hour)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM login_attempts\s+WHERE tenant_id = \$1 AND email = \$2`).
		WithArgs("t1", "a@x.io", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM login_attempts\s+WHERE tenant_id = \$1 AND ip_address = \$2`).
		WithArgs("t1", "1.1.1.1", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(9))

	repo := NewPostgresRepository(mock)
	n, err := repo.CountFailedAttemptsByEmail(context.Background(), "t1", "a@x.io", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = repo.CountByIPAddress(context.Background(), "t1", "1.1.1.1", since)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByEmail_NoLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("t1", "a@x.io", nil).
		WillReturnRows(pgxmock.NewRows(attemptColumnNames))

	got, err := NewPostgresRepository(mock).FindByEmail(context.Background(), "t1", "a@x.io", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Deletes(t *testing.T) {
	before := time.Now().AddDate(0, 0, -30)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM login_attempts WHERE tenant_id = \$1 AND created_at < \$2`).
		WithArgs("t1", before).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))
	mock.ExpectExec(`DELETE FROM login_attempts WHERE tenant_id = \$1 AND user_id = \$2`).
		WithArgs("t1", "u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM login_attempts WHERE tenant_id = \$1 AND email = \$2`).
		WithArgs("t1", "a@x.io").
		WillReturnError(errors.New("deadlock detected"))

	repo := NewPostgresRepository(mock)
	n, err := repo.DeleteOldAttempts(context.Background(), "t1", before)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	n, err = repo.DeleteByUserID(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = repo.DeleteByEmail(context.Background(), "t1", "a@x.io")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}
