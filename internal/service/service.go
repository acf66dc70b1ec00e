// Package service contains the business rules of the home library.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes JSON or HTML
//	Service (business layer) → validates, resolves permissions, orchestrates
//	Repository (data layer)  → reads/writes SQLite
//
// Every service receives a repository.Store (an interface), never the sqlite
// package. Multi-step writes go through Store.WithTx so that a failure
// halfway leaves no orphaned rows: a library without its owner membership,
// or a book without its creator's read status.
//
// ERRORS:
// Services return *apperror.AppError values for anything the caller did
// wrong (validation, permission, missing rows). Anything else is a wrapped
// persistence failure and becomes a 500 at the HTTP edge.
package service

import (
	"strings"
	"unicode/utf8"

	"github.com/sakif/homelibrary/internal/apperror"
)

// Validation limits.
const (
	MaxLibraryNameLength = 100
	MaxBookFieldLength   = 255
	MaxDescriptionLength = 5000
	MaxCommentLength     = 2000

	MinUsernameLength = 5
	MaxUsernameLength = 15
	MinPasswordLength = 5

	DefaultBookLimit    = 20
	MaxBookLimit        = 100
	DefaultCommentLimit = 50
	MaxCommentLimit     = 200
	SearchLimit         = 50
	PopularLimit        = 10
)

// requireText trims s and checks it is non-empty and at most max runes.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	return limitText(field, s, max)
}

// limitText trims s and checks it is at most max runes. Empty is fine.
func limitText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > max {
		return "", apperror.ValidationFailed(field, field+" is too long")
	}
	return s, nil
}
