// Package models contains the domain structures shared between the
// business logic and the storage layer: users, pending registrations,
// catalog entities and billing records.
package models

import "time"

// User types. UserTypePro unlocks the 20% checkout discount.
const (
	UserTypeBasic = "basic"
	UserTypePro   = "pro"
)

// User represents a registered account. EmailVerifiedAt is nil until the
// user has confirmed the verification code sent at registration.
type User struct {
	UID             string     `json:"uid"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	PasswordHash    string     `json:"-"`
	UserType        string     `json:"user_type"`
	IsDisabled      bool       `json:"is_disabled"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsVerified reports whether the email has been confirmed.
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// PendingRegistration is the staging row for an unverified signup.
// At most one live row exists per email: a repeated registration attempt
// replaces any earlier one. PasswordHash is already hashed.
type PendingRegistration struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Code         string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// IsValid reports whether the verification code has not expired yet.
func (p *PendingRegistration) IsValid(now time.Time) bool {
	return !p.ExpiresAt.Before(now)
}
