package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/pkg/database"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, email, password_hash, enabled, created_at, updated_at, last_login_at`

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db database.DBTX
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts the account and one user_roles row per role.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (err error) {
	query := `
		INSERT INTO users (username, email, password_hash, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	ctx, end := database.TraceQuery(ctx, "CreateAccount", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.Enabled,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("account", "email", a.Email)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	for _, role := range a.Roles {
		if _, err = r.db.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
			a.ID, role.ID,
		); err != nil {
			return fmt.Errorf("link role %d: %w", role.ID, err)
		}
	}

	return nil
}

// GetByID retrieves an account and its roles by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, "GetAccountByID", query, id)
}

// GetByEmail retrieves an account and its roles by email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, "GetAccountByEmail", query, email)
}

// ExistsByEmail reports whether the email is taken.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (exists bool, err error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	ctx, end := database.TraceQuery(ctx, "AccountExistsByEmail", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check account email: %w", err)
	}
	return exists, nil
}

// TouchLastLogin records a successful login.
func (r *AccountRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) (err error) {
	query := `UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "TouchLastLogin", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", fmt.Sprint(id))
	}
	return nil
}

func (r *AccountRepository) getOne(ctx context.Context, op, query string, arg any) (_ *domain.Account, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var a domain.Account
	err = r.db.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Enabled,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if a.Roles, err = r.rolesOf(ctx, a.ID); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) rolesOf(ctx context.Context, accountID int64) ([]domain.Role, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account roles: %w", err)
	}
	defer rows.Close()

	roles := []domain.Role{}
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role row: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role rows: %w", err)
	}
	return roles, nil
}

// RoleRepository implements repository.RoleRepository using PostgreSQL.
type RoleRepository struct {
	db database.DBTX
}

// NewRoleRepository creates a new PostgreSQL-backed role repository.
func NewRoleRepository(db database.DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

// GetByID retrieves a role by ID.
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (_ *domain.Role, err error) {
	query := `SELECT id, name FROM roles WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetRoleByID", query)
	defer func() { end(err) }()

	var role domain.Role
	if err = r.db.QueryRow(ctx, query, id).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
