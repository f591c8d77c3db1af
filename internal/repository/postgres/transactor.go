package postgres

import (
	"context"

	"github.com/tempuro/auth-service/internal/repository"
	"github.com/tempuro/auth-service/pkg/database"
)

// NewRepositories binds every repository to db, which may be a pool or a
// transaction.
func NewRepositories(db database.DBTX) repository.Repositories {
	return repository.Repositories{
		Accounts:      NewAccountRepository(db),
		Roles:         NewRoleRepository(db),
		RefreshTokens: NewRefreshTokenRepository(db),
	}
}

// Transactor implements repository.Transactor on top of database.WithTx.
type Transactor struct {
	db database.DBTX
}

// NewTransactor creates a transactor that opens transactions on db.
func NewTransactor(db database.DBTX) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn with repositories bound to a single transaction.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return database.WithTx(ctx, t.db, func(tx database.DBTX) error {
		return fn(ctx, NewRepositories(tx))
	})
}
