package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/internal/repository"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

// AccountDirectory looks up and creates accounts and knows the default role.
type AccountDirectory struct {
	defaultRoleID int64
}

// NewAccountDirectory creates a directory that assigns defaultRoleID to new
// accounts.
func NewAccountDirectory(defaultRoleID int64) *AccountDirectory {
	return &AccountDirectory{defaultRoleID: defaultRoleID}
}

// FindByID returns the account or domain.ErrUserNotFound.
func (d *AccountDirectory) FindByID(ctx context.Context, repos repository.Repositories, id int64) (*domain.Account, error) {
	account, err := repos.Accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", domain.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return account, nil
}

// FindByEmail returns the account or domain.ErrUserNotFound.
func (d *AccountDirectory) FindByEmail(ctx context.Context, repos repository.Repositories, email string) (*domain.Account, error) {
	account, err := repos.Accounts.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

// EmailTaken reports whether an account already uses email.
func (d *AccountDirectory) EmailTaken(ctx context.Context, repos repository.Repositories, email string) (bool, error) {
	taken, err := repos.Accounts.ExistsByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

// DefaultRole returns the role given to every new account. A missing role
// yields domain.ErrDefaultRoleMissing.
func (d *AccountDirectory) DefaultRole(ctx context.Context, repos repository.Repositories) (*domain.Role, error) {
	role, err := repos.Roles.GetByID(ctx, d.defaultRoleID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, defaultRoleMissing(d.defaultRoleID, err)
		}
		return nil, fmt.Errorf("get default role: %w", err)
	}
	return role, nil
}

// Create persists account. A duplicate email yields
// domain.ErrEmailAlreadyRegistered.
func (d *AccountDirectory) Create(ctx context.Context, repos repository.Repositories, account *domain.Account) error {
	account.Email = domain.NormalizeEmail(account.Email)
	if err := repos.Accounts.Create(ctx, account); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return fmt.Errorf("%w: %w", domain.ErrEmailAlreadyRegistered, err)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}
