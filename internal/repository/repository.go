// Package repository declares the storage contracts the services depend on.
//
// Services only ever see these interfaces. The sqlite package provides the
// implementation; tests in the service package run against it with an
// in-memory database.
//
// ERROR CONTRACT:
// Every implementation must return apperror NotFound for a missing row and
// apperror Conflict for a uniqueness violation. Other failures are wrapped
// driver errors.
package repository

import (
	"context"

	"github.com/sakif/homelibrary/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options into a usable range.
func (o ListOptions) Normalize(defaultLimit, maxLimit int) ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id int64) error
}

type LibraryRepository interface {
	Create(ctx context.Context, lib *model.Library) error
	GetByID(ctx context.Context, id int64) (*model.Library, error)
	GetByName(ctx context.Context, name string) (*model.Library, error)
	GetBySlug(ctx context.Context, slug string) (*model.Library, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateName(ctx context.Context, id int64, name, slug string) error
	SetOwner(ctx context.Context, id, ownerID int64) error
	Delete(ctx context.Context, id int64) error
	ListByUser(ctx context.Context, userID int64) ([]model.LibraryWithRole, error)
	// SearchNotJoined matches names case-insensitively, skipping libraries
	// userID already belongs to.
	SearchNotJoined(ctx context.Context, userID int64, query string, limit int) ([]model.Library, error)
	CountOwnedBy(ctx context.Context, userID int64) (int, error)
}

type MembershipRepository interface {
	Create(ctx context.Context, m *model.Membership) error
	// Get is the single membership lookup the permission resolver relies on.
	Get(ctx context.Context, userID, libraryID int64) (*model.Membership, error)
	UpdateRole(ctx context.Context, userID, libraryID int64, role model.Role) error
	Delete(ctx context.Context, userID, libraryID int64) error
	DeleteByLibrary(ctx context.Context, libraryID int64) error
	DeleteByUser(ctx context.Context, userID int64) error
	ListMembers(ctx context.Context, libraryID int64) ([]model.Member, error)
	Count(ctx context.Context, libraryID int64) (int, error)
}

type BookRepository interface {
	Create(ctx context.Context, book *model.Book) error
	GetByID(ctx context.Context, id int64) (*model.Book, error)
	Update(ctx context.Context, book *model.Book) error
	Delete(ctx context.Context, id int64) error
	DeleteByLibrary(ctx context.Context, libraryID int64) error
	ClearCreator(ctx context.Context, userID int64) error
	// ListAccessible returns books from every library userID is a member of,
	// newest first.
	ListAccessible(ctx context.Context, userID int64, opts ListOptions) ([]model.Book, error)
	SearchAccessible(ctx context.Context, userID int64, query string, limit int) ([]model.Book, error)
	ListByLibrary(ctx context.Context, libraryID int64) ([]model.Book, error)
	ListByAddress(ctx context.Context, libraryID int64, address string) ([]model.Book, error)
	ListByCreator(ctx context.Context, userID int64) ([]model.BookWithStatus, error)
	PopularGenres(ctx context.Context, limit int) ([]model.CountedValue, error)
	PopularAuthors(ctx context.Context, limit int) ([]model.CountedValue, error)
}

type ReadStatusRepository interface {
	// Get returns NotFound when the user never recorded a status.
	Get(ctx context.Context, userID, bookID int64) (model.ReadStatus, error)
	Upsert(ctx context.Context, userID, bookID int64, status model.ReadStatus) error
	DeleteByUser(ctx context.Context, userID int64) error
}

type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	GetByID(ctx context.Context, id int64) (*model.Comment, error)
	ListByBook(ctx context.Context, bookID int64, opts ListOptions) ([]model.Comment, error)
	Update(ctx context.Context, c *model.Comment) error
	Delete(ctx context.Context, id int64) error
	DeleteByUser(ctx context.Context, userID int64) error
}

// Repositories hands out every repository bound to the same connection or
// transaction.
type Repositories interface {
	Users() UserRepository
	Libraries() LibraryRepository
	Memberships() MembershipRepository
	Books() BookRepository
	Statuses() ReadStatusRepository
	Comments() CommentRepository
}

// Store is the entry point services receive.
//
// WithTx runs fn inside one transaction. If fn returns an error (or panics)
// nothing it wrote is kept. Inside fn, only the Repositories passed in may be
// used; the outer Store would wait on the connection the transaction holds.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(r Repositories) error) error
}
