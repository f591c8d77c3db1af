package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "alice@example.com"},
		{"Alice@Example.COM", "alice@example.com"},
		{"  bob@example.com\t", "bob@example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEmail(tt.in), "input %q", tt.in)
	}
}

func TestRefreshToken_Usable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	live := RefreshToken{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, live.Usable(now))

	revoked := RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true}
	assert.False(t, revoked.Usable(now))

	expired := RefreshToken{ExpiresAt: now.Add(-time.Second)}
	assert.False(t, expired.Usable(now))

	boundary := RefreshToken{ExpiresAt: now}
	assert.False(t, boundary.Usable(now), "a token is unusable at its exact expiry instant")
}

func TestHashToken_StableAndDistinct(t *testing.T) {
	a := HashToken("token-a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("token-a"))
	assert.NotEqual(t, a, HashToken("token-b"))
}

func TestAuthenticationErrorsShareParent(t *testing.T) {
	for _, err := range []error{ErrBadCredentials, ErrAccountDisabled, ErrAccountLocked} {
		assert.True(t, errors.Is(err, ErrAuthenticationFailed), err.Error())
	}
	assert.False(t, errors.Is(ErrBadCredentials, ErrAccountLocked))
}

func TestRefreshTokenTTL(t *testing.T) {
	assert.Equal(t, 720*time.Hour, RefreshTokenTTL)
}

func TestAccount_Status(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		locked  bool
		want    IdentityStatus
	}{
		{"enabled", true, false, IdentityActive},
		{"disabled", false, false, IdentityDisabled},
		{"locked", true, true, IdentityLocked},
		{"locked and disabled", false, true, IdentityLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{Enabled: tt.enabled}
			assert.Equal(t, tt.want, a.Status(tt.locked))
		})
	}
}
