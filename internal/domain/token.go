package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshTokenTTL is the lifetime of a persisted refresh token. The stored
// expiry is authoritative; the JWT exp claim is informational.
const RefreshTokenTTL = 30 * 24 * time.Hour

// RefreshToken is the server-side record of an issued refresh token.
type RefreshToken struct {
	ID           int64      `json:"id"`
	AccountID    int64      `json:"account_id"`
	AccountEmail string     `json:"-"`
	TokenHash    string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Revoked      bool       `json:"revoked"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Usable reports whether the token may still mint access tokens at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// HashToken returns the hex SHA-256 digest under which a refresh token
// string is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenPair is returned by login and refresh. RefreshToken is empty when no
// new refresh token was issued.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
