package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-iam/backend/internal/session/domain"
	"tenant-iam/backend/internal/token/tokentest"
)

var sessionColumnNames = []string{
	"id", "tenant_id", "user_id", "access_token_id", "refresh_token_id", "refresh_token_hash",
	"user_agent", "ip_address", "device_type", "browser", "os", "location", "status",
	"last_activity_at", "expires_at", "revoked_at", "created_at", "updated_at",
}

func testSession(t *testing.T, now time.Time) *domain.AuthSession {
	t.Helper()
	access, refresh := tokentest.Pair("user-1", "tenant-1", now, now.Add(time.Hour))
	s, err := domain.NewAuthSession(domain.NewSessionParams{
		UserID:           "user-1",
		TenantID:         "tenant-1",
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshTokenHash: "hash-1",
		Device:           domain.DeviceInfo{UserAgent: "ua", IPAddress: "10.0.0.1", Browser: "firefox"},
		Location:         &domain.LocationInfo{Country: "NO", City: "Oslo"},
		Now:              now,
	})
	require.NoError(t, err)
	return s
}

func sessionRow(rows *pgxmock.Rows, s *domain.AuthSession, location []byte) *pgxmock.Rows {
	return rows.AddRow(s.ID.String(), s.TenantID, s.UserID, s.AccessTokenID, s.RefreshTokenID, s.RefreshTokenHash,
		s.Device.UserAgent, s.Device.IPAddress, s.Device.DeviceType, s.Device.Browser, s.Device.OS,
		location, string(s.Status), s.LastActivityAt, s.ExpiresAt, s.RevokedAt, s.CreatedAt, s.UpdatedAt)
}

func TestPostgresRepository_Save(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	s := testSession(t, now)

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "upsert"},
		{name: "database error", err: errors.New("connection refused"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(`INSERT INTO auth_sessions`)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err = NewPostgresRepository(mock).Save(context.Background(), s)
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

// notIn matches any argument that is none of the given values.
type notIn []any

func (n notIn) Match(v any) bool {
	for _, x := range n {
		if v == x {
			return false
		}
	}
	return true
}

func TestPostgresRepository_Save_StoresOnlyTokenReferences(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	s := testSession(t, now)
	require.NotEmpty(t, s.AccessTokenID)
	require.NotEmpty(t, s.RefreshTokenID)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	raw := notIn{s.AccessToken.Value(), s.RefreshToken.Value()}
	mock.ExpectExec(`INSERT INTO auth_sessions`).
		WithArgs(s.ID.String(), "tenant-1", "user-1", s.AccessTokenID, s.RefreshTokenID, "hash-1",
			raw, raw, raw, raw, raw, raw, raw, raw, raw, raw, raw, raw).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPostgresRepository(mock).Save(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByID(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	s := testSession(t, now)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM auth_sessions WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("tenant-1", s.ID.String()).
		WillReturnRows(sessionRow(pgxmock.NewRows(sessionColumnNames), s, []byte(`{"country":"NO","city":"Oslo"}`)))

	got, err := NewPostgresRepository(mock).FindByID(context.Background(), "tenant-1", s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ID.Equals(s.ID))
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, s.AccessTokenID, got.AccessTokenID)
	assert.Equal(t, s.RefreshTokenID, got.RefreshTokenID)
	assert.Equal(t, "hash-1", got.RefreshTokenHash)
	assert.Nil(t, got.AccessToken)
	assert.Nil(t, got.RefreshToken)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, "firefox", got.Device.Browser)
	require.NotNil(t, got.Location)
	assert.Equal(t, "Oslo", got.Location.City)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := domain.GenerateSessionID()
	mock.ExpectQuery(`FROM auth_sessions WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("tenant-1", id.String()).
		WillReturnRows(pgxmock.NewRows(sessionColumnNames))

	got, err := NewPostgresRepository(mock).FindByID(context.Background(), "tenant-1", id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByUserID(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	a := testSession(t, now)
	b := testSession(t, now)
	b.RevokeAt(now)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(sessionColumnNames)
	sessionRow(rows, a, nil)
	sessionRow(rows, b, nil)
	mock.ExpectQuery(`WHERE tenant_id = \$1 AND user_id = \$2 ORDER BY created_at DESC`).
		WithArgs("tenant-1", "user-1").
		WillReturnRows(rows)

	got, err := NewPostgresRepository(mock).FindByUserID(context.Background(), "tenant-1", "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Location)
	assert.True(t, got[1].IsRevoked())
	require.NotNil(t, got[1].RevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CountActiveSessions(t *testing.T) {
	now := time.Now()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM auth_sessions`).
		WithArgs("tenant-1", "user-1", now).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := NewPostgresRepository(mock).CountActiveSessions(context.Background(), "tenant-1", "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ExistsActiveSession(t *testing.T) {
	now := time.Now()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("tenant-1", "user-1", now).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewPostgresRepository(mock).ExistsActiveSession(context.Background(), "tenant-1", "user-1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_RevokeAllUserSessions(t *testing.T) {
	now := time.Now()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE auth_sessions SET status = 'REVOKED'`).
		WithArgs("tenant-1", "user-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := NewPostgresRepository(mock).RevokeAllUserSessions(context.Background(), "tenant-1", "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DeleteExpiredSessions(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		err     error
		want    int
		wantErr bool
	}{
		{name: "deletes expired and revoked", want: 7},
		{name: "database error", err: errors.New("timeout"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(`DELETE FROM auth_sessions WHERE tenant_id = \$1 AND \(expires_at < \$2 OR status = 'REVOKED'\)`).
				WithArgs("tenant-1", now)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("DELETE", int64(tt.want)))
			}

			n, err := NewPostgresRepository(mock).DeleteExpiredSessions(context.Background(), "tenant-1", now)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "timeout")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, n)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := domain.GenerateSessionID()
	mock.ExpectExec(`DELETE FROM auth_sessions WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("tenant-1", id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, NewPostgresRepository(mock).Delete(context.Background(), "tenant-1", id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListTenantIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT DISTINCT tenant_id FROM auth_sessions`).
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id"}).AddRow("a").AddRow("b"))

	ids, err := NewPostgresRepository(mock).ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
