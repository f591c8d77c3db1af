package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/internal/repository"
	"github.com/tempuro/auth-service/pkg/database"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

func newRefreshTokenTestFixture(t *testing.T) (*RefreshTokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock := database.NewMockPool(t)
	return NewRefreshTokenRepository(mock), mock
}

func refreshTokenColumns() []string {
	return []string{"id", "user_id", "email", "token_hash", "created_at", "expires_at", "revoked", "revoked_at"}
}

func sampleRefreshToken() *domain.RefreshToken {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.RefreshToken{
		AccountID: 11,
		TokenHash: domain.HashToken("refresh-token-value"),
		CreatedAt: now,
		ExpiresAt: now.Add(domain.RefreshTokenTTL),
	}
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Save(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	rt := sampleRefreshToken()

	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(rt.AccountID, rt.TokenHash, rt.CreatedAt, rt.ExpiresAt, false).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))

	require.NoError(t, repo.Save(context.Background(), rt))
	assert.Equal(t, int64(5), rt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Save_DuplicateHash(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	rt := sampleRefreshToken()

	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(rt.AccountID, rt.TokenHash, rt.CreatedAt, rt.ExpiresAt, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Save(context.Background(), rt)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Save_Error(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	rt := sampleRefreshToken()

	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(rt.AccountID, rt.TokenHash, rt.CreatedAt, rt.ExpiresAt, false).
		WillReturnError(errors.New("disk full"))

	err := repo.Save(context.Background(), rt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert refresh token")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// FindByValue
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_FindByValue_ReturnsRevokedRow(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	rt := sampleRefreshToken()
	revokedAt := rt.CreatedAt.Add(time.Minute)

	mock.ExpectQuery("FROM refresh_tokens rt JOIN users u .+ WHERE rt.token_hash =").
		WithArgs(rt.TokenHash).
		WillReturnRows(pgxmock.NewRows(refreshTokenColumns()).AddRow(
			int64(5), int64(11), "alice@example.com", rt.TokenHash, rt.CreatedAt, rt.ExpiresAt, true, &revokedAt,
		))

	got, err := repo.FindByValue(context.Background(), rt.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, "alice@example.com", got.AccountEmail)
	assert.True(t, got.Revoked)
	require.NotNil(t, got.RevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_FindByValue_NotFound(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)

	mock.ExpectQuery("WHERE rt.token_hash =").
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.FindByValue(context.Background(), "unknown")
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// FindAllActiveForAccount / FindExpiredBefore
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_FindAllActiveForAccount(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE rt.user_id = .+ AND rt.revoked = false ORDER BY rt.created_at DESC").
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(refreshTokenColumns()).
			AddRow(int64(7), int64(11), "alice@example.com", "h2", now, now.Add(time.Hour), false, nil).
			AddRow(int64(6), int64(11), "alice@example.com", "h1", now.Add(-time.Hour), now.Add(time.Hour), false, nil))

	got, err := repo.FindAllActiveForAccount(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Nil(t, got[0].RevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_FindAllActiveForAccount_Empty(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)

	mock.ExpectQuery("AND rt.revoked = false").
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(refreshTokenColumns()))

	got, err := repo.FindAllActiveForAccount(context.Background(), 11)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_FindExpiredBefore(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	cutoff := time.Now().UTC()

	mock.ExpectQuery("WHERE rt.expires_at <").
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows(refreshTokenColumns()).
			AddRow(int64(3), int64(11), "alice@example.com", "h", cutoff.Add(-48*time.Hour), cutoff.Add(-time.Hour), false, nil))

	got, err := repo.FindExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_List_QueryError(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)

	mock.ExpectQuery("WHERE rt.expires_at <").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("timeout"))

	_, err := repo.FindExpiredBefore(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list refresh tokens")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// RevokeAll
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_RevokeAll_Idempotent(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = true, revoked_at = .+ WHERE user_id = .+ AND revoked = false").
		WithArgs(fixed, int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked = true").
		WithArgs(fixed, int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := repo.RevokeAll(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.RevokeAll(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeAll_Error(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(pgxmock.AnyArg(), int64(11)).
		WillReturnError(errors.New("deadlock detected"))

	_, err := repo.RevokeAll(context.Background(), 11)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revoke refresh tokens")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// DeleteByIDs
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_DeleteByIDs(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE id = ANY").
		WithArgs([]int64{3, 4}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := repo.DeleteByIDs(context.Background(), []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteByIDs_EmptyIsNoop(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)

	n, err := repo.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Transactor
// ---------------------------------------------------------------------------

func TestTransactor_CommitsSharedTransaction(t *testing.T) {
	mock := database.NewMockPool(t)
	tx := NewTransactor(mock)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET last_login_at").
		WithArgs(at, int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(pgxmock.AnyArg(), int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := tx.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Accounts.TouchLastLogin(ctx, 11, at); err != nil {
			return err
		}
		_, err := repos.RefreshTokens.RevokeAll(ctx, 11)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	mock := database.NewMockPool(t)
	tx := NewTransactor(mock)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tx.WithinTx(context.Background(), func(context.Context, repository.Repositories) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
