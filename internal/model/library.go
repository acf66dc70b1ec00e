package model

import (
	"fmt"
	"time"
)

// Library is a named book collection with an owner and a membership roster.
//
// A library with a password hash is private: joining it requires the
// password. OwnerID is nil only after the owning account has been removed,
// which the user service refuses while ownership is held.
type Library struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	PasswordHash string    `json:"-"`
	OwnerID      *int64    `json:"ownerId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsPrivate reports whether joining requires a password.
func (l *Library) IsPrivate() bool {
	return l.PasswordHash != ""
}

// IsOwnedBy reports whether userID is the library's owner.
func (l *Library) IsOwnedBy(userID int64) bool {
	return l.OwnerID != nil && *l.OwnerID == userID
}

// Role is a user's standing inside one library.
//
// CLOSED SET:
// Role is a string type so it stores and serialises as plain text, but only
// the three constants below are valid. ParseRole rejects anything else, and
// the database has a CHECK constraint with the same values.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleMember, RoleGuest:
		return true
	}
	return false
}

// ParseRole converts a stored string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("model: unknown role %q", s)
	}
	return r, nil
}

// Membership is the join record granting a user a role within a library.
// There is at most one per (UserID, LibraryID).
type Membership struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"userId"`
	LibraryID int64 `json:"libraryId"`
	Role      Role  `json:"role"`
}

// LibraryWithRole is a library as seen by one of its members.
type LibraryWithRole struct {
	Library
	Role Role `json:"role"`
}

// Member is a roster entry: the membership plus the member's username.
type Member struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
