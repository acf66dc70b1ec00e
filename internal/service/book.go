package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
	"github.com/sakif/homelibrary/internal/slug"
)

type BookService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewBookService(store repository.Store, logger *slog.Logger) *BookService {
	return &BookService{store: store, logger: logger}
}

// BookInput is a new book as submitted by a member. Status is the
// creator's initial read status; empty means not_read.
type BookInput struct {
	Author      string
	Title       string
	Description string
	Genre       string
	Color       string
	LibAddress  string
	Room        string
	Shelf       string
	Location    string
	Status      model.ReadStatus
}

// BookUpdate is a partial update: nil fields are left as they are.
//
// PROTECTED FIELDS:
// Author, Title, Genre, Color and the shelving fields need CanEditFull.
// Description needs CanEditDescription and Status needs CanEditStatus.
// A caller without full rights is not rejected; their protected fields are
// dropped and the rest is applied, so members can still log progress and
// notes on books they didn't add.
type BookUpdate struct {
	Author      *string
	Title       *string
	Description *string
	Genre       *string
	Color       *string
	LibAddress  *string
	Room        *string
	Shelf       *string
	Location    *string
	Status      *model.ReadStatus
}

func (u BookUpdate) touchesProtected() bool {
	return u.Author != nil || u.Title != nil || u.Genre != nil || u.Color != nil ||
		u.LibAddress != nil || u.Room != nil || u.Shelf != nil || u.Location != nil
}

// Create adds a book to a library the user belongs to and records the
// creator's initial read status, both in one transaction.
func (s *BookService) Create(ctx context.Context, userID, libraryID int64, in BookInput) (*model.Book, error) {
	book, err := newBook(in)
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = model.StatusNotRead
	}
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown read status %q", status))
	}

	book.LibraryID = libraryID
	book.CreatorID = &userID
	book.Slug = slug.Make(book.Author+"-"+book.Title, true)

	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		if _, err := r.Libraries().GetByID(ctx, libraryID); err != nil {
			return err
		}
		if _, err := requireMember(ctx, r, userID, libraryID); err != nil {
			return err
		}
		if err := r.Books().Create(ctx, book); err != nil {
			return err
		}
		return r.Statuses().Upsert(ctx, userID, book.ID, status)
	})
	if err != nil {
		return nil, fmt.Errorf("service/book: creating %q: %w", book.Title, err)
	}

	s.logger.Info("book created",
		slog.Int64("bookID", book.ID),
		slog.Int64("libraryID", libraryID),
		slog.Int64("userID", userID),
	)
	return book, nil
}

func newBook(in BookInput) (*model.Book, error) {
	var (
		b   model.Book
		err error
	)
	if b.Author, err = requireText("author", in.Author, MaxBookFieldLength); err != nil {
		return nil, err
	}
	if b.Title, err = requireText("title", in.Title, MaxBookFieldLength); err != nil {
		return nil, err
	}
	if b.Description, err = limitText("description", in.Description, MaxDescriptionLength); err != nil {
		return nil, err
	}
	optional := []struct {
		field string
		src   string
		dst   *string
	}{
		{"genre", in.Genre, &b.Genre},
		{"color", in.Color, &b.Color},
		{"libAddress", in.LibAddress, &b.LibAddress},
		{"room", in.Room, &b.Room},
		{"shelf", in.Shelf, &b.Shelf},
		{"location", in.Location, &b.Location},
	}
	for _, f := range optional {
		if *f.dst, err = limitText(f.field, f.src, MaxBookFieldLength); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// Update applies a partial update under the caller's current permissions.
// Permissions are resolved inside the transaction, never taken from an
// earlier request.
func (s *BookService) Update(ctx context.Context, userID, bookID int64, upd BookUpdate) (*model.Book, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown read status %q", *upd.Status))
	}

	var book *model.Book
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		var (
			perms model.BookPermissions
			err   error
		)
		book, perms, err = resolveBookPermissions(ctx, r, userID, bookID)
		if err != nil {
			return err
		}
		if !perms.CanEditFull && !perms.CanEditDescription && !perms.CanEditStatus {
			return apperror.Forbidden("you cannot edit this book")
		}

		if perms.CanEditFull {
			if err := applyProtected(book, upd); err != nil {
				return err
			}
		} else if upd.touchesProtected() {
			s.logger.Debug("protected book fields ignored",
				slog.Int64("bookID", bookID),
				slog.Int64("userID", userID),
			)
		}
		if upd.Description != nil && perms.CanEditDescription {
			if book.Description, err = limitText("description", *upd.Description, MaxDescriptionLength); err != nil {
				return err
			}
		}

		if err := r.Books().Update(ctx, book); err != nil {
			return err
		}
		if upd.Status != nil && perms.CanEditStatus {
			return r.Statuses().Upsert(ctx, userID, bookID, *upd.Status)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/book: updating book %d: %w", bookID, err)
	}

	s.logger.Info("book updated", slog.Int64("bookID", bookID), slog.Int64("userID", userID))
	return book, nil
}

func applyProtected(book *model.Book, upd BookUpdate) error {
	required := []struct {
		field string
		src   *string
		dst   *string
	}{
		{"author", upd.Author, &book.Author},
		{"title", upd.Title, &book.Title},
	}
	for _, f := range required {
		if f.src == nil {
			continue
		}
		v, err := requireText(f.field, *f.src, MaxBookFieldLength)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	optional := []struct {
		field string
		src   *string
		dst   *string
	}{
		{"genre", upd.Genre, &book.Genre},
		{"color", upd.Color, &book.Color},
		{"libAddress", upd.LibAddress, &book.LibAddress},
		{"room", upd.Room, &book.Room},
		{"shelf", upd.Shelf, &book.Shelf},
		{"location", upd.Location, &book.Location},
	}
	for _, f := range optional {
		if f.src == nil {
			continue
		}
		v, err := limitText(f.field, *f.src, MaxBookFieldLength)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

// Delete hard-deletes a book. Allowed for the library owner and the book's
// creator.
func (s *BookService) Delete(ctx context.Context, userID, bookID int64) error {
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		_, perms, err := resolveBookPermissions(ctx, r, userID, bookID)
		if err != nil {
			return err
		}
		if !perms.CanDelete {
			return apperror.Forbidden("only the library owner or the book's creator can delete it")
		}
		return r.Books().Delete(ctx, bookID)
	})
	if err != nil {
		return fmt.Errorf("service/book: deleting book %d: %w", bookID, err)
	}

	s.logger.Info("book deleted", slog.Int64("bookID", bookID), slog.Int64("userID", userID))
	return nil
}

// Get returns the book with everything a detail page shows: library name,
// creator, the caller's status and permissions.
func (s *BookService) Get(ctx context.Context, userID, bookID int64) (*model.BookDetail, error) {
	book, perms, err := resolveBookPermissions(ctx, s.store, userID, bookID)
	if err != nil {
		return nil, err
	}

	lib, err := s.store.Libraries().GetByID(ctx, book.LibraryID)
	if err != nil {
		return nil, fmt.Errorf("service/book: loading library of book %d: %w", bookID, err)
	}

	detail := &model.BookDetail{
		Book:        *book,
		LibraryName: lib.Name,
		Permissions: perms,
	}

	if book.CreatorID != nil {
		creator, err := s.store.Users().GetByID(ctx, *book.CreatorID)
		switch {
		case err == nil:
			detail.Creator = creator.Username
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("service/book: loading creator of book %d: %w", bookID, err)
		}
	}

	if detail.Status, err = readStatus(ctx, s.store, userID, bookID); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAccessible pages through books in every library the user belongs to,
// newest first.
func (s *BookService) ListAccessible(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.Book, error) {
	opts = opts.Normalize(DefaultBookLimit, MaxBookLimit)
	books, err := s.store.Books().ListAccessible(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/book: listing books for user %d: %w", userID, err)
	}
	return books, nil
}

// Search matches title, author or genre within the user's libraries. An
// empty query matches nothing.
func (s *BookService) Search(ctx context.Context, userID int64, query string) ([]model.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Book{}, nil
	}
	books, err := s.store.Books().SearchAccessible(ctx, userID, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("service/book: searching %q: %w", query, err)
	}
	return books, nil
}

// ListByCreator returns the books the user added, each with their status.
func (s *BookService) ListByCreator(ctx context.Context, userID int64) ([]model.BookWithStatus, error) {
	books, err := s.store.Books().ListByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/book: listing books created by %d: %w", userID, err)
	}
	return books, nil
}

// PopularGenres and PopularAuthors count across all books. They only feed
// autocomplete hints.
func (s *BookService) PopularGenres(ctx context.Context, limit int) ([]model.CountedValue, error) {
	if limit <= 0 {
		limit = PopularLimit
	}
	out, err := s.store.Books().PopularGenres(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/book: popular genres: %w", err)
	}
	return out, nil
}

func (s *BookService) PopularAuthors(ctx context.Context, limit int) ([]model.CountedValue, error) {
	if limit <= 0 {
		limit = PopularLimit
	}
	out, err := s.store.Books().PopularAuthors(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/book: popular authors: %w", err)
	}
	return out, nil
}
