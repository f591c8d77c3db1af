package repository

import (
	"context"
	"time"

	"github.com/tempuro/auth-service/internal/domain"
)

// AccountRepository defines the interface for account persistence operations.
// Emails passed in are expected to be normalized already.
type AccountRepository interface {
	// Create inserts the account and links its roles. It sets account.ID.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its identifier.
	GetByID(ctx context.Context, id int64) (*domain.Account, error)

	// GetByEmail retrieves an account by its email address.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// ExistsByEmail reports whether an account with the email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// TouchLastLogin sets last_login_at and updated_at to at.
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// RoleRepository defines the interface for role lookups.
type RoleRepository interface {
	// GetByID retrieves a role by its identifier.
	GetByID(ctx context.Context, id int64) (*domain.Role, error)
}

// RefreshTokenRepository defines the interface for refresh token persistence.
type RefreshTokenRepository interface {
	// Save inserts a new token record and sets token.ID.
	Save(ctx context.Context, token *domain.RefreshToken) error

	// FindByValue returns the record with the given token hash regardless of
	// its revoked or expiry state.
	FindByValue(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// FindAllActiveForAccount returns the account's non-revoked tokens,
	// newest first.
	FindAllActiveForAccount(ctx context.Context, accountID int64) ([]domain.RefreshToken, error)

	// RevokeAll revokes every non-revoked token of the account and returns
	// the number of rows changed. Calling it again changes nothing.
	RevokeAll(ctx context.Context, accountID int64) (int64, error)

	// FindExpiredBefore returns tokens whose expiry is before cutoff.
	FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]domain.RefreshToken, error)

	// DeleteByIDs removes the given tokens and returns the number deleted.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// Repositories groups the repositories bound to one unit of work.
type Repositories struct {
	Accounts      AccountRepository
	Roles         RoleRepository
	RefreshTokens RefreshTokenRepository
}

// Transactor runs fn with repositories sharing one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
