package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/internal/repository"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

// LoginAttemptTracker counts failed logins per email.
type LoginAttemptTracker interface {
	IsLocked(ctx context.Context, email string) bool
	RecordFailure(ctx context.Context, email string)
	Reset(ctx context.Context, email string)
}

type noopTracker struct{}

func (noopTracker) IsLocked(context.Context, string) bool { return false }
func (noopTracker) RecordFailure(context.Context, string) {}
func (noopTracker) Reset(context.Context, string)         {}

// CredentialVerifier checks an email/password pair against the stored
// account.
type CredentialVerifier struct {
	tracker   LoginAttemptTracker
	dummyHash []byte
}

// NewCredentialVerifier creates a verifier. A nil tracker disables lockout.
// The dummy hash is generated at cost so that unknown emails take as long to
// reject as wrong passwords.
func NewCredentialVerifier(tracker LoginAttemptTracker, cost int) (*CredentialVerifier, error) {
	if tracker == nil {
		tracker = noopTracker{}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &CredentialVerifier{tracker: tracker, dummyHash: dummy}, nil
}

// Authenticate returns the identity for email when password matches an
// enabled, unlocked account. Failures wrap domain.ErrAuthenticationFailed.
func (v *CredentialVerifier) Authenticate(ctx context.Context, repos repository.Repositories, email, password string) (*domain.Identity, error) {
	email = domain.NormalizeEmail(email)

	account, err := repos.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("look up account: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
		return nil, domain.ErrBadCredentials
	}

	status := account.Status(v.tracker.IsLocked(ctx, email))
	if status == domain.IdentityLocked {
		return nil, domain.ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		v.tracker.RecordFailure(ctx, email)
		return nil, domain.ErrBadCredentials
	}

	// The disabled flag is only disclosed to callers holding the password.
	if status == domain.IdentityDisabled {
		return nil, domain.ErrAccountDisabled
	}

	v.tracker.Reset(ctx, email)

	return &domain.Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Username:  account.Username,
		Status:    status,
	}, nil
}
