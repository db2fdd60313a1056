package auth

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is the credential view of an account.
type User struct {
	ID           int64
	TenantID     int64
	Email        string
	Role         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// canSignIn reports whether the account may hold a session at all.
func (u *User) canSignIn() bool {
	return u != nil && u.IsActive && u.PasswordHash != ""
}

// decoyHash is compared against when no account matches, so unknown emails
// cost the same bcrypt work as known ones.
var decoyHash, _ = bcrypt.GenerateFromPassword([]byte("ecolix-decoy-password"), bcrypt.DefaultCost)
