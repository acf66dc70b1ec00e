// Package model defines the data structures used throughout the application.
//
// Entities reference each other by integer id only. A Library does not hold
// its members and a User does not hold their libraries; relationships are
// walked with explicit repository queries.
package model

import "time"

// User represents a registered account.
//
// Email and GitHubID are optional. Email is unique when present; GitHubID is
// set only for accounts that signed in through GitHub at least once.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	FirstName    string    `json:"firstname"`
	LastName     string    `json:"lastname"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasPassword reports whether the account can sign in with a password.
// GitHub-only accounts are created without one.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
