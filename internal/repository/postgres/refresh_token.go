package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/pkg/database"
	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

const refreshTokenSelect = `
		SELECT rt.id, rt.user_id, u.email, rt.token_hash, rt.created_at, rt.expires_at, rt.revoked, rt.revoked_at
		FROM refresh_tokens rt
		JOIN users u ON u.id = rt.user_id`

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, now: time.Now}
}

// Save inserts a new refresh token record.
func (r *RefreshTokenRepository) Save(ctx context.Context, t *domain.RefreshToken) (err error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	ctx, end := database.TraceQuery(ctx, "SaveRefreshToken", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		t.AccountID,
		t.TokenHash,
		t.CreatedAt,
		t.ExpiresAt,
		t.Revoked,
	).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert refresh token: %w: %w", apperrors.ErrAlreadyExists, err)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindByValue retrieves a refresh token record by its hash.
func (r *RefreshTokenRepository) FindByValue(ctx context.Context, tokenHash string) (_ *domain.RefreshToken, err error) {
	query := refreshTokenSelect + ` WHERE rt.token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "FindRefreshToken", query)
	defer func() { end(err) }()

	var t domain.RefreshToken
	err = r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.AccountID,
		&t.AccountEmail,
		&t.TokenHash,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.Revoked,
		&t.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}

// FindAllActiveForAccount returns the account's non-revoked tokens, newest first.
func (r *RefreshTokenRepository) FindAllActiveForAccount(ctx context.Context, accountID int64) ([]domain.RefreshToken, error) {
	query := refreshTokenSelect + `
		WHERE rt.user_id = $1 AND rt.revoked = false
		ORDER BY rt.created_at DESC, rt.id DESC`
	return r.list(ctx, "FindActiveRefreshTokens", query, accountID)
}

// FindExpiredBefore returns tokens that expired before cutoff.
func (r *RefreshTokenRepository) FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]domain.RefreshToken, error) {
	query := refreshTokenSelect + `
		WHERE rt.expires_at < $1
		ORDER BY rt.id`
	return r.list(ctx, "FindExpiredRefreshTokens", query, cutoff)
}

// RevokeAll revokes every active token of the account. Already revoked rows
// are never touched, so revocation is monotonic and repeat calls return 0.
func (r *RefreshTokenRepository) RevokeAll(ctx context.Context, accountID int64) (_ int64, err error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $1
		WHERE user_id = $2 AND revoked = false`

	ctx, end := database.TraceQuery(ctx, "RevokeAllRefreshTokens", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, r.now().UTC(), accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

// DeleteByIDs removes the given tokens.
func (r *RefreshTokenRepository) DeleteByIDs(ctx context.Context, ids []int64) (_ int64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM refresh_tokens WHERE id = ANY($1)`

	ctx, end := database.TraceQuery(ctx, "DeleteRefreshTokens", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *RefreshTokenRepository) list(ctx context.Context, op, query string, arg any) (_ []domain.RefreshToken, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []domain.RefreshToken{}
	for rows.Next() {
		var t domain.RefreshToken
		if err = rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.AccountEmail,
			&t.TokenHash,
			&t.CreatedAt,
			&t.ExpiresAt,
			&t.Revoked,
			&t.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("scan refresh token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh token rows: %w", err)
	}
	return tokens, nil
}
