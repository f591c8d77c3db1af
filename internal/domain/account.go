package domain

import (
	"strings"
	"time"
)

// Account represents a registered user.
type Account struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	Roles        []Role     `json:"roles"`
}

// Role is a named permission group. Every account holds at least one.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Seeded role identifiers.
const (
	RoleAdminID  int64 = 1
	RoleClientID int64 = 2
)

// NormalizeEmail lower-cases and trims an email address. Every lookup and
// insert goes through it so that uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentityStatus is the state of an account as seen by authentication.
type IdentityStatus string

const (
	IdentityActive   IdentityStatus = "active"
	IdentityDisabled IdentityStatus = "disabled"
	IdentityLocked   IdentityStatus = "locked"
)

// Status reports how authentication treats the account. A lock from repeated
// failures takes precedence over the enabled flag.
func (a *Account) Status(locked bool) IdentityStatus {
	switch {
	case locked:
		return IdentityLocked
	case !a.Enabled:
		return IdentityDisabled
	default:
		return IdentityActive
	}
}

// Identity is the result of a successful credential check.
type Identity struct {
	AccountID int64
	Email     string
	Username  string
	Status    IdentityStatus
}
