package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tempuro/auth-service/internal/domain"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

const internalMessage = "an internal error occurred"

// chain joins a domain sentinel and its cause so errors.Is matches both.
func chain(sentinel, cause error) error {
	if cause == nil || errors.Is(cause, sentinel) {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// failure builds an AppError whose cause chain contains both the domain
// sentinel and the underlying error.
func failure(code, message string, status int, sentinel, cause error) *apperrors.AppError {
	return apperrors.New(code, message, status, chain(sentinel, cause))
}

// classify narrows a generic client error to a domain code. The result still
// matches base's sentinel, so apperrors.HTTPStatus agrees with its status.
func classify(base *apperrors.AppError, code string, sentinel, cause error) *apperrors.AppError {
	base.Code = code
	base.Err = fmt.Errorf("%w: %w", base.Err, chain(sentinel, cause))
	return base
}

// authFailure maps a credential-check error to its HTTP form. Errors that are
// not authentication failures pass through unchanged.
func authFailure(err error) error {
	switch {
	case errors.Is(err, domain.ErrAccountLocked):
		return classify(apperrors.Locked("account is temporarily locked"), "ACCOUNT_LOCKED", domain.ErrAccountLocked, err)
	case errors.Is(err, domain.ErrAccountDisabled):
		return classify(apperrors.Forbidden("account is disabled"), "ACCOUNT_DISABLED", domain.ErrAccountDisabled, err)
	case errors.Is(err, domain.ErrBadCredentials):
		return classify(apperrors.Unauthorized("invalid email or password"), "BAD_CREDENTIALS", domain.ErrBadCredentials, err)
	default:
		return err
	}
}

func userNotFound(cause error) error {
	return failure("USER_NOT_FOUND", internalMessage, http.StatusInternalServerError, domain.ErrUserNotFound, cause)
}

func sessionAccountNotFound(cause error) error {
	return classify(apperrors.Unauthorized("account no longer exists"), "USER_NOT_FOUND", domain.ErrUserNotFound, cause)
}

func emailAlreadyRegistered(cause error) error {
	return failure("EMAIL_ALREADY_REGISTERED", "email is already registered", http.StatusConflict, domain.ErrEmailAlreadyRegistered, cause)
}

func missingRefreshToken() error {
	return classify(apperrors.Unauthorized("refresh token is required"), "MISSING_REFRESH_TOKEN", domain.ErrMissingRefreshToken, nil)
}

func refreshTokenNotFound(cause error) error {
	return classify(apperrors.Unauthorized("refresh token not found"), "REFRESH_TOKEN_NOT_FOUND", domain.ErrRefreshTokenNotFound, cause)
}

func invalidRefreshToken() error {
	return classify(apperrors.Unauthorized("refresh token is revoked or expired"), "INVALID_REFRESH_TOKEN", domain.ErrInvalidRefreshToken, nil)
}

func jwtGeneration(cause error) error {
	return failure("JWT_GENERATION_ERROR", internalMessage, http.StatusInternalServerError, domain.ErrJWTGeneration, cause)
}

func tokenPersistence(cause error) error {
	return failure("TOKEN_PERSISTENCE_ERROR", internalMessage, http.StatusInternalServerError, domain.ErrTokenPersistence, cause)
}

func userPersistence(cause error) error {
	return failure("USER_PERSISTENCE_ERROR", internalMessage, http.StatusInternalServerError, domain.ErrUserPersistence, cause)
}

func defaultRoleMissing(roleID int64, cause error) error {
	return apperrors.Internal(fmt.Errorf("%w: role %d: %w", domain.ErrDefaultRoleMissing, roleID, cause))
}
