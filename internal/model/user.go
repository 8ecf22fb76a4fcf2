// Package model defines the data structures used throughout the application.
package model

import "time"

// Provider values for User.Provider. They record where an account's
// identity comes from, which decides whether a password check applies.
const (
	ProviderLocal  = "LOCAL"  // username + bcrypt password
	ProviderGoogle = "GOOGLE" // federated; Google vouches for the email
)

// RoleUser is the default role assigned to every new account.
// Authorization is coarse for now — a single role tag on the record.
const RoleUser = "USER"

// User represents one account.
//
// USERNAME AS NATURAL KEY:
// The username is UNIQUE in the store and is what the JWT subject claim
// carries. For federated accounts the username IS the email claim from the
// provider — first Google login creates the row lazily, and every later
// login resolves the same row by that email. No duplicate accounts per email.
//
// WHY PasswordHash string (not *string)?
// Federated accounts have no password. We use the empty string as "no
// password set" rather than a nullable pointer — same convention the rest
// of the codebase uses for optional text, and it keeps scanning simple.
// Login must still treat an empty hash as a guaranteed mismatch, never as
// "accept any password".
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"` // never serialized
	Provider     string    `json:"provider"  db:"provider"`
	Role         string    `json:"role"      db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"` // set once, immutable
}

// IsFederated reports whether the account was created through an external
// identity provider and therefore has no local password.
func (u *User) IsFederated() bool {
	return u.Provider != ProviderLocal
}
