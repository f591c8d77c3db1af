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
	"github.com/tempuro/auth-service/pkg/database"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

func newAccountTestFixture(t *testing.T) (*AccountRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock := database.NewMockPool(t)
	return NewAccountRepository(mock), mock
}

func sampleAccount() *domain.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Account{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$hash",
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Roles:        []domain.Role{{ID: domain.RoleClientID, Name: "ROLE_CLIENT"}},
	}
}

func accountColumnNames() []string {
	return []string{"id", "username", "email", "password_hash", "enabled", "created_at", "updated_at", "last_login_at"}
}

func accountRow(a *domain.Account) *pgxmock.Rows {
	return pgxmock.NewRows(accountColumnNames()).AddRow(
		a.ID, a.Username, a.Email, a.PasswordHash, a.Enabled, a.CreatedAt, a.UpdatedAt, a.LastLoginAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestAccountRepository_Create_Success(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	a := sampleAccount()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(a.Username, a.Email, a.PasswordHash, a.Enabled, a.CreatedAt, a.UpdatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(int64(11), domain.RoleClientID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, int64(11), a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	a := sampleAccount()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(a.Username, a.Email, a.PasswordHash, a.Enabled, a.CreatedAt, a.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "expected ErrAlreadyExists, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create_RoleLinkFails(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	a := sampleAccount()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(a.Username, a.Email, a.PasswordHash, a.Enabled, a.CreatedAt, a.UpdatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(int64(11), domain.RoleClientID).
		WillReturnError(errors.New("foreign key violation"))

	err := repo.Create(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link role 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID / GetByEmail
// ---------------------------------------------------------------------------

func TestAccountRepository_GetByEmail_LoadsRoles(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	a := sampleAccount()
	a.ID = 11
	lastLogin := a.CreatedAt.Add(time.Hour)
	a.LastLoginAt = &lastLogin

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs(a.Email).
		WillReturnRows(accountRow(a))
	mock.ExpectQuery("FROM roles r JOIN user_roles").
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow(domain.RoleClientID, "ROLE_CLIENT"))

	got, err := repo.GetByEmail(context.Background(), a.Email)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.Enabled)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, lastLogin.Equal(*got.LastLoginAt))
	assert.Equal(t, []domain.Role{{ID: domain.RoleClientID, Name: "ROLE_CLIENT"}}, got.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByID_NeverLoggedIn(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	a := sampleAccount()
	a.ID = 11

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(int64(11)).
		WillReturnRows(accountRow(a))
	mock.ExpectQuery("FROM roles r JOIN user_roles").
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}))

	got, err := repo.GetByID(context.Background(), 11)
	require.NoError(t, err)
	assert.Nil(t, got.LastLoginAt)
	assert.Empty(t, got.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newAccountTestFixture(t)

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), 404)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByEmail_QueryError(t *testing.T) {
	repo, mock := newAccountTestFixture(t)

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs("alice@example.com").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), "scan account")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ExistsByEmail / TouchLastLogin
// ---------------------------------------------------------------------------

func TestAccountRepository_ExistsByEmail(t *testing.T) {
	for _, exists := range []bool{true, false} {
		repo, mock := newAccountTestFixture(t)

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))

		got, err := repo.ExistsByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, exists, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestAccountRepository_TouchLastLogin(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE users SET last_login_at").
		WithArgs(at, int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.TouchLastLogin(context.Background(), 11, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_TouchLastLogin_NotFound(t *testing.T) {
	repo, mock := newAccountTestFixture(t)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE users SET last_login_at").
		WithArgs(at, int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.TouchLastLogin(context.Background(), 404, at)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

func TestRoleRepository_GetByID(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRoleRepository(mock)

	mock.ExpectQuery("SELECT id, name FROM roles WHERE id =").
		WithArgs(domain.RoleClientID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(domain.RoleClientID, "ROLE_CLIENT"))

	role, err := repo.GetByID(context.Background(), domain.RoleClientID)
	require.NoError(t, err)
	assert.Equal(t, "ROLE_CLIENT", role.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_GetByID_Missing(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRoleRepository(mock)

	mock.ExpectQuery("SELECT id, name FROM roles WHERE id =").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
