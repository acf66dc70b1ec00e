package model

import (
	"fmt"
	"time"
)

// Book is a catalog entry belonging to exactly one library.
//
// SHELVING:
// Two shelving schemes are stored side by side. LibAddress/Room/Shelf
// describe a structured position ("Main St 4", "Study", "Top"); Location is a
// free-text alternative. Both are protected fields: only the library owner or
// the book's creator may change them.
//
// CreatorID is nil when the creating account was removed; the book itself
// stays in the library.
type Book struct {
	ID          int64     `json:"id"`
	LibraryID   int64     `json:"libraryId"`
	CreatorID   *int64    `json:"creatorId,omitempty"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Genre       string    `json:"genre"`
	Color       string    `json:"color"`
	LibAddress  string    `json:"libAddress"`
	Room        string    `json:"room"`
	Shelf       string    `json:"shelf"`
	Location    string    `json:"location"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsCreatedBy reports whether userID created the book.
func (b *Book) IsCreatedBy(userID int64) bool {
	return b.CreatorID != nil && *b.CreatorID == userID
}

// ReadStatus is one user's progress on one book.
type ReadStatus string

const (
	StatusNotRead ReadStatus = "not_read"
	StatusReading ReadStatus = "reading"
	StatusRead    ReadStatus = "read"
)

// Valid reports whether s is one of the known statuses.
func (s ReadStatus) Valid() bool {
	switch s {
	case StatusNotRead, StatusReading, StatusRead:
		return true
	}
	return false
}

// ParseReadStatus converts user input into a ReadStatus. Empty input means
// the default, StatusNotRead.
func ParseReadStatus(s string) (ReadStatus, error) {
	if s == "" {
		return StatusNotRead, nil
	}
	st := ReadStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("model: unknown read status %q", s)
	}
	return st, nil
}

// BookPermissions is what one user may do to one book. It is computed fresh
// for every request and never stored.
type BookPermissions struct {
	CanEditFull        bool `json:"canEditFull"`
	CanEditStatus      bool `json:"canEditStatus"`
	CanEditDescription bool `json:"canEditDescription"`
	CanDelete          bool `json:"canDelete"`
	Role               Role `json:"role"`
}

// BookDetail bundles a book with the viewer-specific data the detail page
// and the JSON API both need.
type BookDetail struct {
	Book        Book            `json:"book"`
	LibraryName string          `json:"libraryName"`
	Creator     string          `json:"creator"`
	Status      ReadStatus      `json:"status"`
	Permissions BookPermissions `json:"permissions"`
}

// BookWithStatus pairs a book with the requesting user's read status.
type BookWithStatus struct {
	Book
	Status ReadStatus `json:"status"`
}

// CountedValue is one row of a group-by-count aggregation.
type CountedValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
