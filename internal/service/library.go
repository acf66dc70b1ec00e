package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
	"github.com/sakif/homelibrary/internal/slug"
)

// LibraryService owns the library lifecycle: create, join, leave, rename,
// transfer and delete, plus the member-only reads.
//
// VISIBILITY:
// A library is invisible to non-members. Reads by a non-member return
// NotFound rather than Forbidden so that ids can't be probed. Writes by a
// member who lacks the right role return Forbidden.
type LibraryService struct {
	store     repository.Store
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewLibraryService(store repository.Store, passwords *auth.PasswordService, logger *slog.Logger) *LibraryService {
	return &LibraryService{store: store, passwords: passwords, logger: logger}
}

// CreateLibraryInput is what a user submits to create a library. An empty
// Password makes the library public.
type CreateLibraryInput struct {
	Name     string
	Password string
}

// Create inserts the library and the owner's membership in one transaction,
// so the creator is an owner from the first moment the library exists.
func (s *LibraryService) Create(ctx context.Context, ownerID int64, in CreateLibraryInput) (*model.Library, error) {
	name, err := requireText("name", in.Name, MaxLibraryNameLength)
	if err != nil {
		return nil, err
	}

	var hash string
	if in.Password != "" {
		if hash, err = s.hashPassword(in.Password); err != nil {
			return nil, err
		}
	}

	lib := &model.Library{Name: name, PasswordHash: hash, OwnerID: &ownerID}

	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		lib.Slug, err = librarySlug(ctx, r.Libraries(), name, "")
		if err != nil {
			return err
		}
		if err := r.Libraries().Create(ctx, lib); err != nil {
			return err
		}
		return r.Memberships().Create(ctx, &model.Membership{
			UserID:    ownerID,
			LibraryID: lib.ID,
			Role:      model.RoleOwner,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("service/library: creating %q: %w", name, err)
	}

	s.logger.Info("library created",
		slog.Int64("libraryID", lib.ID),
		slog.Int64("ownerID", ownerID),
		slog.Bool("private", lib.IsPrivate()),
	)
	return lib, nil
}

// Join adds the user to a library found by id, name or slug.
//
// A private library requires the correct password, checked before anything
// else. Joining a library the user already belongs to returns the library
// and changes nothing.
func (s *LibraryService) Join(ctx context.Context, userID int64, identifier, password string) (*model.Library, error) {
	lib, err := s.findForJoin(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return nil, err
	}

	if lib.IsPrivate() {
		if err := s.passwords.Verify(lib.PasswordHash, password); err != nil {
			if errors.Is(err, auth.ErrPasswordMismatch) {
				return nil, apperror.Unauthorized("incorrect library password")
			}
			return nil, fmt.Errorf("service/library: verifying password of library %d: %w", lib.ID, err)
		}
	}

	role, err := memberRole(ctx, s.store, userID, lib.ID)
	if err != nil {
		return nil, err
	}
	if role != "" {
		return lib, nil
	}

	err = s.store.Memberships().Create(ctx, &model.Membership{
		UserID:    userID,
		LibraryID: lib.ID,
		Role:      model.RoleMember,
	})
	// A concurrent join for the same pair loses on the UNIQUE constraint;
	// the user is a member either way.
	if err != nil && !errors.Is(err, apperror.ErrConflict) {
		return nil, fmt.Errorf("service/library: joining library %d: %w", lib.ID, err)
	}

	s.logger.Info("library joined", slog.Int64("libraryID", lib.ID), slog.Int64("userID", userID))
	return lib, nil
}

// findForJoin resolves a numeric identifier as an id first, then falls back
// to the name and finally the slug.
func (s *LibraryService) findForJoin(ctx context.Context, identifier string) (*model.Library, error) {
	if identifier == "" {
		return nil, apperror.ValidationFailed("library", "library id or name is required")
	}

	libs := s.store.Libraries()
	lookups := []func() (*model.Library, error){
		func() (*model.Library, error) { return libs.GetByName(ctx, identifier) },
		func() (*model.Library, error) { return libs.GetBySlug(ctx, identifier) },
	}
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		byID := func() (*model.Library, error) { return libs.GetByID(ctx, id) }
		lookups = append([]func() (*model.Library, error){byID}, lookups...)
	}

	for _, lookup := range lookups {
		lib, err := lookup()
		if err == nil {
			return lib, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/library: finding %q: %w", identifier, err)
		}
	}
	return nil, apperror.NotFound("library", identifier)
}

// Leave removes the caller's membership.
//
// It fails with NotFound if the library does not exist or the caller is not
// a member, and with Forbidden for the owner: ownership can't be abandoned
// by leaving, only by deleting the library or transferring it.
func (s *LibraryService) Leave(ctx context.Context, userID, libraryID int64) error {
	lib, err := s.store.Libraries().GetByID(ctx, libraryID)
	if err != nil {
		return err
	}

	role, err := memberRole(ctx, s.store, userID, libraryID)
	if err != nil {
		return err
	}
	if role == "" {
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: "you are not a member of this library"}
	}
	if role == model.RoleOwner || lib.IsOwnedBy(userID) {
		return apperror.Forbidden("the owner cannot leave a library; delete it or transfer ownership first")
	}

	if err := s.store.Memberships().Delete(ctx, userID, libraryID); err != nil {
		return fmt.Errorf("service/library: leaving library %d: %w", libraryID, err)
	}

	s.logger.Info("library left", slog.Int64("libraryID", libraryID), slog.Int64("userID", userID))
	return nil
}

// Delete removes a library with its books and memberships. Only the owner
// (or an admin caller) may do this.
func (s *LibraryService) Delete(ctx context.Context, userID, libraryID int64, isAdmin bool) error {
	lib, err := s.store.Libraries().GetByID(ctx, libraryID)
	if err != nil {
		return err
	}
	if !lib.IsOwnedBy(userID) && !isAdmin {
		return apperror.Forbidden("only the owner can delete this library")
	}

	// The foreign keys cascade too; deleting explicitly keeps the outcome
	// independent of PRAGMA foreign_keys.
	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Books().DeleteByLibrary(ctx, libraryID); err != nil {
			return err
		}
		if err := r.Memberships().DeleteByLibrary(ctx, libraryID); err != nil {
			return err
		}
		return r.Libraries().Delete(ctx, libraryID)
	})
	if err != nil {
		return fmt.Errorf("service/library: deleting library %d: %w", libraryID, err)
	}

	s.logger.Info("library deleted",
		slog.Int64("libraryID", libraryID),
		slog.Int64("userID", userID),
		slog.Bool("admin", isAdmin && !lib.IsOwnedBy(userID)),
	)
	return nil
}

// UpdateName renames a library and regenerates its slug. Owner only.
func (s *LibraryService) UpdateName(ctx context.Context, userID, libraryID int64, newName string) (*model.Library, error) {
	name, err := requireText("name", newName, MaxLibraryNameLength)
	if err != nil {
		return nil, err
	}

	lib, err := s.store.Libraries().GetByID(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	if !lib.IsOwnedBy(userID) {
		return nil, apperror.Forbidden("only the owner can rename this library")
	}
	if name == lib.Name {
		return lib, nil
	}

	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		newSlug, err := librarySlug(ctx, r.Libraries(), name, lib.Slug)
		if err != nil {
			return err
		}
		if err := r.Libraries().UpdateName(ctx, libraryID, name, newSlug); err != nil {
			return err
		}
		lib, err = r.Libraries().GetByID(ctx, libraryID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/library: renaming library %d: %w", libraryID, err)
	}

	s.logger.Info("library renamed", slog.Int64("libraryID", libraryID), slog.String("name", name))
	return lib, nil
}

// SearchToJoin finds libraries whose name contains query, skipping the
// ones the user already belongs to. An empty query matches nothing.
func (s *LibraryService) SearchToJoin(ctx context.Context, userID int64, query string) ([]model.Library, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Library{}, nil
	}
	libs, err := s.store.Libraries().SearchNotJoined(ctx, userID, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("service/library: searching %q: %w", query, err)
	}
	return libs, nil
}

// ListForUser returns every library the user belongs to, with their role.
func (s *LibraryService) ListForUser(ctx context.Context, userID int64) ([]model.LibraryWithRole, error) {
	libs, err := s.store.Libraries().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/library: listing libraries of user %d: %w", userID, err)
	}
	return libs, nil
}

// Get returns the library with the caller's role. Members only.
func (s *LibraryService) Get(ctx context.Context, userID, libraryID int64) (*model.LibraryWithRole, error) {
	lib, err := s.store.Libraries().GetByID(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	return s.withRole(ctx, userID, lib, libraryID)
}

// GetBySlug is Get keyed by slug.
func (s *LibraryService) GetBySlug(ctx context.Context, userID int64, librarySlug string) (*model.LibraryWithRole, error) {
	lib, err := s.store.Libraries().GetBySlug(ctx, librarySlug)
	if err != nil {
		return nil, err
	}
	return s.withRole(ctx, userID, lib, librarySlug)
}

func (s *LibraryService) withRole(ctx context.Context, userID int64, lib *model.Library, key any) (*model.LibraryWithRole, error) {
	role, err := memberRole(ctx, s.store, userID, lib.ID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, apperror.NotFound("library", key)
	}
	return &model.LibraryWithRole{Library: *lib, Role: role}, nil
}

// Members lists the roster, owner first. Members only.
func (s *LibraryService) Members(ctx context.Context, userID, libraryID int64) ([]model.Member, error) {
	if _, err := s.Get(ctx, userID, libraryID); err != nil {
		return nil, err
	}
	members, err := s.store.Memberships().ListMembers(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("service/library: listing members of %d: %w", libraryID, err)
	}
	return members, nil
}

// Books lists a library's books, or only those at one address when address
// is non-empty. Members only.
func (s *LibraryService) Books(ctx context.Context, userID, libraryID int64, address string) ([]model.Book, error) {
	if _, err := s.Get(ctx, userID, libraryID); err != nil {
		return nil, err
	}

	var (
		books []model.Book
		err   error
	)
	if address = strings.TrimSpace(address); address != "" {
		books, err = s.store.Books().ListByAddress(ctx, libraryID, address)
	} else {
		books, err = s.store.Books().ListByLibrary(ctx, libraryID)
	}
	if err != nil {
		return nil, fmt.Errorf("service/library: listing books of %d: %w", libraryID, err)
	}
	return books, nil
}

// TransferOwnership hands the library to another member. The two roles are
// swapped and library.owner_id updated in one transaction.
func (s *LibraryService) TransferOwnership(ctx context.Context, ownerID, libraryID, newOwnerID int64) error {
	lib, err := s.store.Libraries().GetByID(ctx, libraryID)
	if err != nil {
		return err
	}
	if !lib.IsOwnedBy(ownerID) {
		return apperror.Forbidden("only the owner can transfer this library")
	}
	if newOwnerID == ownerID {
		return apperror.ValidationFailed("newOwnerId", "you already own this library")
	}

	role, err := memberRole(ctx, s.store, newOwnerID, libraryID)
	if err != nil {
		return err
	}
	if role == "" {
		return apperror.ValidationFailed("newOwnerId", "the new owner must already be a member of the library")
	}

	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Memberships().UpdateRole(ctx, newOwnerID, libraryID, model.RoleOwner); err != nil {
			return err
		}
		if err := r.Memberships().UpdateRole(ctx, ownerID, libraryID, model.RoleMember); err != nil {
			return err
		}
		return r.Libraries().SetOwner(ctx, libraryID, newOwnerID)
	})
	if err != nil {
		return fmt.Errorf("service/library: transferring library %d: %w", libraryID, err)
	}

	s.logger.Info("library ownership transferred",
		slog.Int64("libraryID", libraryID),
		slog.Int64("from", ownerID),
		slog.Int64("to", newOwnerID),
	)
	return nil
}

func (s *LibraryService) hashPassword(password string) (string, error) {
	if len(password) > auth.MaxPasswordBytes {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return "", fmt.Errorf("service/library: hashing password: %w", err)
	}
	return hash, nil
}

// librarySlug prefers the plain slug of name and only appends a unique
// suffix when another library already holds it. current is the library's
// own slug on rename, which it may keep.
func librarySlug(ctx context.Context, libs repository.LibraryRepository, name, current string) (string, error) {
	plain := slug.Make(name, false)
	if plain == current {
		return plain, nil
	}
	taken, err := libs.SlugExists(ctx, plain)
	if err != nil {
		return "", err
	}
	if taken {
		return slug.Make(name, true), nil
	}
	return plain, nil
}
