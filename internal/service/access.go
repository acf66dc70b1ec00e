package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
)

// ACCESS RULES
//
// Everything a user may do to a library or book follows from two facts:
// the user's membership row in the library (which carries a role), and
// whether the user created the book.
//
//	no membership      → no access at all (Forbidden, or NotFound on reads
//	                     that must not reveal the library exists)
//	owner              → everything
//	creator            → full edit + delete on their own book
//	member             → status + description on any book
//	guest              → read only
//
// The helpers below take a repository.Repositories so that they work both on
// the Store and inside a WithTx callback.

// AccessService answers "what may this user do" questions for the request
// layer. The other services use the package-level helpers directly.
type AccessService struct {
	store repository.Store
}

func NewAccessService(store repository.Store) *AccessService {
	return &AccessService{store: store}
}

// ResolveBookPermissions re-reads the book and the caller's membership and
// returns the capability set. Read-only; safe to call on every request.
//
// NotFound if the book does not exist, Forbidden if the caller holds no
// membership in the book's library.
func (s *AccessService) ResolveBookPermissions(ctx context.Context, userID, bookID int64) (model.BookPermissions, error) {
	_, perms, err := resolveBookPermissions(ctx, s.store, userID, bookID)
	return perms, err
}

// IsLibraryMember returns the caller's role in the library, and false when
// there is no membership row. It does not check that the library exists.
func (s *AccessService) IsLibraryMember(ctx context.Context, userID, libraryID int64) (model.Role, bool, error) {
	role, err := memberRole(ctx, s.store, userID, libraryID)
	if err != nil {
		return "", false, err
	}
	return role, role != "", nil
}

// memberRole is the single membership lookup every access check goes
// through. An empty role means "not a member".
func memberRole(ctx context.Context, r repository.Repositories, userID, libraryID int64) (model.Role, error) {
	m, err := r.Memberships().Get(ctx, userID, libraryID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("service/access: looking up membership: %w", err)
	}
	return m.Role, nil
}

// resolveBookPermissions loads the book and maps the caller's role onto it.
func resolveBookPermissions(ctx context.Context, r repository.Repositories, userID, bookID int64) (*model.Book, model.BookPermissions, error) {
	book, err := r.Books().GetByID(ctx, bookID)
	if err != nil {
		return nil, model.BookPermissions{}, err
	}

	role, err := memberRole(ctx, r, userID, book.LibraryID)
	if err != nil {
		return nil, model.BookPermissions{}, err
	}
	if role == "" {
		return nil, model.BookPermissions{}, apperror.Forbidden("you are not a member of this book's library")
	}

	return book, permissionsFor(role, book.IsCreatedBy(userID)), nil
}

// permissionsFor is the pure role → capability mapping. The switch is
// exhaustive over model.Role; an unknown role grants nothing.
func permissionsFor(role model.Role, isCreator bool) model.BookPermissions {
	var isOwner, isMemberOrOwner bool
	switch role {
	case model.RoleOwner:
		isOwner, isMemberOrOwner = true, true
	case model.RoleMember:
		isMemberOrOwner = true
	case model.RoleGuest:
	default:
		return model.BookPermissions{Role: role}
	}

	return model.BookPermissions{
		CanEditFull:        isOwner || isCreator,
		CanEditStatus:      isMemberOrOwner,
		CanEditDescription: isMemberOrOwner,
		CanDelete:          isOwner || isCreator,
		Role:               role,
	}
}

// requireMember fails with Forbidden unless the user belongs to the library.
func requireMember(ctx context.Context, r repository.Repositories, userID, libraryID int64) (model.Role, error) {
	role, err := memberRole(ctx, r, userID, libraryID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", apperror.Forbidden("you are not a member of this library")
	}
	return role, nil
}
