package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-iam/backend/internal/identity/domain"
)

func TestPostgresRepository_GetByTokenHash(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"id", "tenant_id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}
	mock.ExpectQuery(`FROM password_reset_tokens WHERE tenant_id = \$1 AND token_hash = \$2`).
		WithArgs("tenant-1", "h1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("r1", "tenant-1", "u1", "h1", now.Add(time.Hour), (*time.Time)(nil), now))
	mock.ExpectQuery(`FROM password_reset_tokens`).
		WithArgs("tenant-1", "missing").
		WillReturnRows(pgxmock.NewRows(cols))

	repo := NewPostgresRepository(mock)
	tok, err := repo.GetByTokenHash(context.Background(), "tenant-1", "h1")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "u1", tok.UserID)
	assert.Nil(t, tok.UsedAt)

	tok, err = repo.GetByTokenHash(context.Background(), "tenant-1", "missing")
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_MarkUsed(t *testing.T) {
	now := time.Now().UTC()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE password_reset_tokens SET used_at = \$3 WHERE tenant_id = \$1 AND id = \$2 AND used_at IS NULL`).
		WithArgs("tenant-1", "r1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WithArgs("tenant-1", "r1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPostgresRepository(mock)
	require.NoError(t, repo.MarkUsed(context.Background(), "tenant-1", "r1", now))
	assert.ErrorIs(t, repo.MarkUsed(context.Background(), "tenant-1", "r1", now), domain.ErrResetTokenUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tok := domain.NewPasswordResetToken("tenant-1", "u1", "h1", time.Now(), time.Hour)
	mock.ExpectExec(`INSERT INTO password_reset_tokens`).
		WithArgs(tok.ID, "tenant-1", "u1", "h1", tok.ExpiresAt, tok.UsedAt, tok.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM password_reset_tokens WHERE tenant_id = \$1 AND user_id = \$2`).
		WithArgs("tenant-1", "u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	repo := NewPostgresRepository(mock)
	require.NoError(t, repo.Create(context.Background(), tok))
	require.NoError(t, repo.DeleteByUserID(context.Background(), "tenant-1", "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
