package domain

import (
	"errors"
	"fmt"
)

// ErrAuthenticationFailed is the parent of every credential-check failure.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Authentication sub-reasons. Each wraps ErrAuthenticationFailed.
var (
	ErrBadCredentials  = fmt.Errorf("%w: bad credentials", ErrAuthenticationFailed)
	ErrAccountDisabled = fmt.Errorf("%w: account disabled", ErrAuthenticationFailed)
	ErrAccountLocked   = fmt.Errorf("%w: account locked", ErrAuthenticationFailed)
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrMissingRefreshToken    = errors.New("missing refresh token")
	ErrRefreshTokenNotFound   = errors.New("refresh token not found")
	ErrInvalidRefreshToken    = errors.New("refresh token revoked or expired")
	ErrJWTGeneration          = errors.New("jwt generation failed")
	ErrTokenPersistence       = errors.New("refresh token persistence failed")
	ErrUserPersistence        = errors.New("user persistence failed")

	// ErrDefaultRoleMissing means the configured default role does not exist.
	// It is a deployment fault, not a client error.
	ErrDefaultRoleMissing = errors.New("default role missing")
)
