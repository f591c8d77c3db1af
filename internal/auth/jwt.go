package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrSigning is wrapped by every token minting failure.
var ErrSigning = errors.New("sign token")

// ErrWrongTokenType is returned when a refresh token is presented where an
// access token is expected.
var ErrWrongTokenType = errors.New("unexpected token type")

// Claims are the JWT claims of both token kinds. The subject is the
// account email.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager mints and verifies HS256 tokens with one shared secret.
type JWTManager struct {
	secret        []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

// NewJWTManager creates a JWT manager with the given secret, issuer and
// token lifetimes.
func NewJWTManager(secret, issuer string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		issuer:        issuer,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
}

// IssueAccessToken creates a signed access token for subject.
func (m *JWTManager) IssueAccessToken(subject string) (string, error) {
	return m.issue(subject, TokenTypeAccess, m.accessExpiry)
}

// IssueRefreshToken creates a signed refresh token for subject.
func (m *JWTManager) IssueRefreshToken(subject string) (string, error) {
	return m.issue(subject, TokenTypeRefresh, m.refreshExpiry)
}

func (m *JWTManager) issue(subject, typ string, ttl time.Duration) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("%w: empty signing key", ErrSigning)
	}

	now := m.now().UTC()
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %s token: %w", ErrSigning, typ, err)
	}
	return signed, nil
}

// ValidateAccessToken parses and validates an access token, returning the claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: %q", ErrWrongTokenType, claims.Type)
	}

	return claims, nil
}
