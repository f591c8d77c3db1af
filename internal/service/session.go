package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/crypto/bcrypt"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/internal/repository"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

// TokenIssuer mints signed tokens for a subject.
type TokenIssuer interface {
	IssueAccessToken(subject string) (string, error)
	IssueRefreshToken(subject string) (string, error)
}

// EventPublisher announces completed flows. Failures never fail the flow.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, account *domain.Account) error
	PublishSessionStarted(ctx context.Context, token *domain.RefreshToken) error
}

type noopPublisher struct{}

func (noopPublisher) PublishAccountRegistered(context.Context, *domain.Account) error   { return nil }
func (noopPublisher) PublishSessionStarted(context.Context, *domain.RefreshToken) error { return nil }

// LoginInput holds the parameters for a login.
type LoginInput struct {
	Email    string
	Password string
}

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// SessionService implements login, refresh and registration, plus session
// management for authenticated accounts. Every flow runs in one transaction.
type SessionService struct {
	tx         repository.Transactor
	verifier   *CredentialVerifier
	directory  *AccountDirectory
	tokens     TokenIssuer
	events     EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
	bcryptCost int
	now        func() time.Time
}

// NewSessionService creates a new session service. A nil events publisher
// or tracer is replaced by a no-op.
func NewSessionService(
	tx repository.Transactor,
	verifier *CredentialVerifier,
	directory *AccountDirectory,
	tokens TokenIssuer,
	events EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	bcryptCost int,
) *SessionService {
	if events == nil {
		events = noopPublisher{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &SessionService{
		tx:         tx,
		verifier:   verifier,
		directory:  directory,
		tokens:     tokens,
		events:     events,
		tracer:     tracer,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// Login authenticates the credentials, issues an access and a refresh token
// and records the refresh token with a 30-day expiry.
func (s *SessionService) Login(ctx context.Context, input LoginInput) (pair *domain.TokenPair, err error) {
	start := time.Now()
	ctx, end := startFlow(ctx, s.tracer, "login")
	defer func() {
		end(err)
		observeFlow("login", start, err)
	}()

	if strings.TrimSpace(input.Email) == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	var saved *domain.RefreshToken
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var identity *domain.Identity
		if err := step(ctx, s.tracer, "auth.login.authenticate", func(ctx context.Context) error {
			id, err := s.verifier.Authenticate(ctx, repos, input.Email, input.Password)
			if err != nil {
				return authFailure(err)
			}
			identity = id
			return nil
		}); err != nil {
			return err
		}

		var access, refresh string
		if err := step(ctx, s.tracer, "auth.login.issue_tokens", func(context.Context) error {
			var err error
			if access, err = s.tokens.IssueAccessToken(identity.Email); err != nil {
				return jwtGeneration(err)
			}
			if refresh, err = s.tokens.IssueRefreshToken(identity.Email); err != nil {
				return jwtGeneration(err)
			}
			return nil
		}); err != nil {
			return err
		}

		var account *domain.Account
		if err := step(ctx, s.tracer, "auth.login.find_account", func(ctx context.Context) error {
			a, err := s.directory.FindByID(ctx, repos, identity.AccountID)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					return userNotFound(err)
				}
				return err
			}
			account = a
			return nil
		}); err != nil {
			return err
		}

		now := s.now().UTC()
		token := &domain.RefreshToken{
			AccountID:    account.ID,
			AccountEmail: account.Email,
			TokenHash:    domain.HashToken(refresh),
			CreatedAt:    now,
			ExpiresAt:    now.Add(domain.RefreshTokenTTL),
		}
		if err := step(ctx, s.tracer, "auth.login.save_refresh_token", func(ctx context.Context) error {
			if err := repos.RefreshTokens.Save(ctx, token); err != nil {
				return tokenPersistence(err)
			}
			return nil
		}); err != nil {
			return err
		}

		if err := step(ctx, s.tracer, "auth.login.touch_last_login", func(ctx context.Context) error {
			if err := repos.Accounts.TouchLastLogin(ctx, account.ID, now); err != nil {
				return userPersistence(err)
			}
			return nil
		}); err != nil {
			return err
		}

		pair = &domain.TokenPair{AccessToken: access, RefreshToken: refresh}
		saved = token
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishSessionStarted(ctx, saved); err != nil {
		s.logger.WarnContext(ctx, "failed to publish session.started event",
			slog.Int64("account_id", saved.AccountID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "session started",
		slog.Int64("account_id", saved.AccountID),
		slog.Time("refresh_expires_at", saved.ExpiresAt),
	)

	return pair, nil
}

// Refresh exchanges a usable refresh token for a new access token. The
// presented refresh token is neither rotated nor revoked, so the returned
// pair carries an empty RefreshToken.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (pair *domain.TokenPair, err error) {
	start := time.Now()
	ctx, end := startFlow(ctx, s.tracer, "refresh")
	defer func() {
		end(err)
		observeFlow("refresh", start, err)
	}()

	if refreshToken == "" {
		return nil, missingRefreshToken()
	}

	var subject string
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var stored *domain.RefreshToken
		if err := step(ctx, s.tracer, "auth.refresh.find_token", func(ctx context.Context) error {
			t, err := repos.RefreshTokens.FindByValue(ctx, domain.HashToken(refreshToken))
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return refreshTokenNotFound(err)
				}
				return fmt.Errorf("find refresh token: %w", err)
			}
			stored = t
			return nil
		}); err != nil {
			return err
		}

		if !stored.Usable(s.now()) {
			return invalidRefreshToken()
		}

		return step(ctx, s.tracer, "auth.refresh.issue_access_token", func(context.Context) error {
			access, err := s.tokens.IssueAccessToken(stored.AccountEmail)
			if err != nil {
				return jwtGeneration(err)
			}
			subject = stored.AccountEmail
			pair = &domain.TokenPair{AccessToken: access}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "access token refreshed", slog.String("subject", subject))
	return pair, nil
}

// Register creates an enabled account holding the default role. It issues
// no tokens.
func (s *SessionService) Register(ctx context.Context, input RegisterInput) (err error) {
	start := time.Now()
	ctx, end := startFlow(ctx, s.tracer, "register")
	defer func() {
		end(err)
		observeFlow("register", start, err)
	}()

	if strings.TrimSpace(input.Username) == "" {
		return apperrors.InvalidInput("username is required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return apperrors.InvalidInput("password is required")
	}

	var created *domain.Account
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := step(ctx, s.tracer, "auth.register.check_email", func(ctx context.Context) error {
			taken, err := s.directory.EmailTaken(ctx, repos, input.Email)
			if err != nil {
				return userPersistence(err)
			}
			if taken {
				return emailAlreadyRegistered(nil)
			}
			return nil
		}); err != nil {
			return err
		}

		var role *domain.Role
		if err := step(ctx, s.tracer, "auth.register.default_role", func(ctx context.Context) error {
			r, err := s.directory.DefaultRole(ctx, repos)
			if err != nil {
				if errors.Is(err, domain.ErrDefaultRoleMissing) {
					s.logger.ErrorContext(ctx, "default role is not configured",
						slog.String("error", err.Error()),
					)
				}
				return err
			}
			role = r
			return nil
		}); err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
		if err != nil {
			if errors.Is(err, bcrypt.ErrPasswordTooLong) {
				return apperrors.InvalidInput("password must be at most 72 bytes")
			}
			return fmt.Errorf("hash password: %w", err)
		}

		now := s.now().UTC()
		account := &domain.Account{
			Username:     strings.TrimSpace(input.Username),
			Email:        input.Email,
			PasswordHash: string(hash),
			Enabled:      true,
			CreatedAt:    now,
			UpdatedAt:    now,
			Roles:        []domain.Role{*role},
		}

		return step(ctx, s.tracer, "auth.register.create_account", func(ctx context.Context) error {
			if err := s.directory.Create(ctx, repos, account); err != nil {
				if errors.Is(err, domain.ErrEmailAlreadyRegistered) {
					return emailAlreadyRegistered(err)
				}
				return userPersistence(err)
			}
			created = account
			return nil
		})
	})
	if err != nil {
		return err
	}

	if err := s.events.PublishAccountRegistered(ctx, created); err != nil {
		s.logger.WarnContext(ctx, "failed to publish account.registered event",
			slog.Int64("account_id", created.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.Int64("account_id", created.ID),
		slog.String("username", created.Username),
	)

	return nil
}

// RevokeAllSessions revokes every active refresh token of the account with
// email and returns how many were revoked.
func (s *SessionService) RevokeAllSessions(ctx context.Context, email string) (revoked int64, err error) {
	start := time.Now()
	ctx, end := startFlow(ctx, s.tracer, "revoke_all")
	defer func() {
		end(err)
		observeFlow("revoke_all", start, err)
	}()

	var accountID int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		account, err := s.directory.FindByEmail(ctx, repos, email)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return sessionAccountNotFound(err)
			}
			return err
		}
		accountID = account.ID

		return step(ctx, s.tracer, "auth.revoke_all.revoke", func(ctx context.Context) error {
			n, err := repos.RefreshTokens.RevokeAll(ctx, account.ID)
			if err != nil {
				return tokenPersistence(err)
			}
			revoked = n
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "sessions revoked",
		slog.Int64("account_id", accountID),
		slog.Int64("revoked", revoked),
	)
	return revoked, nil
}

// ListActiveSessions returns the non-revoked refresh tokens of the account
// with email, newest first.
func (s *SessionService) ListActiveSessions(ctx context.Context, email string) (sessions []domain.RefreshToken, err error) {
	ctx, end := startFlow(ctx, s.tracer, "list_sessions")
	defer func() { end(err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		account, err := s.directory.FindByEmail(ctx, repos, email)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return sessionAccountNotFound(err)
			}
			return err
		}

		sessions, err = repos.RefreshTokens.FindAllActiveForAccount(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("list active sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// PurgeExpired deletes refresh tokens that expired before cutoff and returns
// how many were removed.
func (s *SessionService) PurgeExpired(ctx context.Context, cutoff time.Time) (purged int64, err error) {
	ctx, end := startFlow(ctx, s.tracer, "purge_expired", attribute.String("auth.cutoff", cutoff.UTC().Format(time.RFC3339)))
	defer func() { end(err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		expired, err := repos.RefreshTokens.FindExpiredBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("find expired tokens: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(expired))
		for _, t := range expired {
			ids = append(ids, t.ID)
		}

		purged, err = repos.RefreshTokens.DeleteByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete expired tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}
