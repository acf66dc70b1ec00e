package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
)

// BookDB stores catalog entries in the book table.
type BookDB struct {
	q querier
}

var _ repository.BookRepository = (*BookDB)(nil)

const bookColumns = `b.id, b.library_id, b.user_id, b.author, b.title, b.description, b.genre, b.color,
	b.lib_address, b.room, b.shelf, b.location, b.slug, b.created_at, b.updated_at`

// Create inserts a book. A duplicate slug yields apperror.Conflict.
func (b *BookDB) Create(ctx context.Context, book *model.Book) error {
	ts := now()
	book.CreatedAt = ts
	book.UpdatedAt = ts

	res, err := b.q.ExecContext(ctx,
		`INSERT INTO book (library_id, user_id, author, title, description, genre, color,
		                   lib_address, room, shelf, location, slug, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.LibraryID,
		nullInt64(book.CreatorID),
		book.Author,
		book.Title,
		book.Description,
		book.Genre,
		book.Color,
		book.LibAddress,
		book.Room,
		book.Shelf,
		book.Location,
		book.Slug,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr("book", "creating book", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading book id: %w", err)
	}
	book.ID = id
	return nil
}

func (b *BookDB) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	var book model.Book
	err := scanBook(b.q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM book b WHERE b.id = ?`, id), &book)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("book", id)
		}
		return nil, fmt.Errorf("sqlite: getting book %d: %w", id, err)
	}
	return &book, nil
}

// Update writes every descriptive and shelving field. Library, creator and
// slug are fixed at creation.
func (b *BookDB) Update(ctx context.Context, book *model.Book) error {
	book.UpdatedAt = now()

	res, err := b.q.ExecContext(ctx,
		`UPDATE book SET author = ?, title = ?, description = ?, genre = ?, color = ?,
		                 lib_address = ?, room = ?, shelf = ?, location = ?, updated_at = ?
		 WHERE id = ?`,
		book.Author,
		book.Title,
		book.Description,
		book.Genre,
		book.Color,
		book.LibAddress,
		book.Room,
		book.Shelf,
		book.Location,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating book %d: %w", book.ID, err)
	}
	return requireAffected(res, "book", book.ID)
}

func (b *BookDB) Delete(ctx context.Context, id int64) error {
	res, err := b.q.ExecContext(ctx, `DELETE FROM book WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting book %d: %w", id, err)
	}
	return requireAffected(res, "book", id)
}

func (b *BookDB) DeleteByLibrary(ctx context.Context, libraryID int64) error {
	if _, err := b.q.ExecContext(ctx, `DELETE FROM book WHERE library_id = ?`, libraryID); err != nil {
		return fmt.Errorf("sqlite: deleting books of library %d: %w", libraryID, err)
	}
	return nil
}

// ClearCreator detaches a user's books from their account before the
// account is removed.
func (b *BookDB) ClearCreator(ctx context.Context, userID int64) error {
	if _, err := b.q.ExecContext(ctx, `UPDATE book SET user_id = NULL WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: clearing creator %d: %w", userID, err)
	}
	return nil
}

// ListAccessible is one query: books joined to the caller's memberships.
func (b *BookDB) ListAccessible(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.Book, error) {
	return b.list(ctx, "listing accessible books",
		`SELECT `+bookColumns+`
		 FROM book b
		 JOIN user_library ul ON ul.library_id = b.library_id
		 WHERE ul.user_id = ?
		 ORDER BY b.created_at DESC, b.id DESC
		 LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset,
	)
}

// SearchAccessible matches title, author or genre case-insensitively inside
// the caller's libraries.
func (b *BookDB) SearchAccessible(ctx context.Context, userID int64, query string, limit int) ([]model.Book, error) {
	pattern := likePattern(query)
	return b.list(ctx, "searching books",
		`SELECT `+bookColumns+`
		 FROM book b
		 JOIN user_library ul ON ul.library_id = b.library_id
		 WHERE ul.user_id = ?
		   AND (fold(b.title) LIKE ? ESCAPE '\'
		        OR fold(b.author) LIKE ? ESCAPE '\'
		        OR fold(b.genre) LIKE ? ESCAPE '\')
		 ORDER BY b.title COLLATE NOCASE, b.id
		 LIMIT ?`,
		userID, pattern, pattern, pattern, limit,
	)
}

func (b *BookDB) ListByLibrary(ctx context.Context, libraryID int64) ([]model.Book, error) {
	return b.list(ctx, "listing library books",
		`SELECT `+bookColumns+` FROM book b
		 WHERE b.library_id = ?
		 ORDER BY b.created_at DESC, b.id DESC`,
		libraryID,
	)
}

func (b *BookDB) ListByAddress(ctx context.Context, libraryID int64, address string) ([]model.Book, error) {
	return b.list(ctx, "listing books at address",
		`SELECT `+bookColumns+` FROM book b
		 WHERE b.library_id = ? AND b.lib_address = ?
		 ORDER BY b.room, b.shelf, b.title COLLATE NOCASE`,
		libraryID, address,
	)
}

// ListByCreator pairs each book the user created with their own status,
// defaulting to not_read where no status row exists.
func (b *BookDB) ListByCreator(ctx context.Context, userID int64) ([]model.BookWithStatus, error) {
	rows, err := b.q.QueryContext(ctx,
		`SELECT `+bookColumns+`, COALESCE(s.read_status, 'not_read')
		 FROM book b
		 LEFT JOIN user_book_status s ON s.book_id = b.id AND s.user_id = ?
		 WHERE b.user_id = ?
		 ORDER BY b.created_at DESC, b.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing books of user %d: %w", userID, err)
	}
	defer rows.Close()

	books := []model.BookWithStatus{}
	for rows.Next() {
		var (
			bws    model.BookWithStatus
			status string
		)
		if err := scanBook(rows, &bws.Book, &status); err != nil {
			return nil, fmt.Errorf("sqlite: scanning book: %w", err)
		}
		bws.Status = model.ReadStatus(status)
		books = append(books, bws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating books: %w", err)
	}
	return books, nil
}

func (b *BookDB) PopularGenres(ctx context.Context, limit int) ([]model.CountedValue, error) {
	return b.countBy(ctx, "genre", limit)
}

func (b *BookDB) PopularAuthors(ctx context.Context, limit int) ([]model.CountedValue, error) {
	return b.countBy(ctx, "author", limit)
}

// countBy groups all books by column. column is always one of the two
// constants above, never user input.
func (b *BookDB) countBy(ctx context.Context, column string, limit int) ([]model.CountedValue, error) {
	rows, err := b.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %[1]s, COUNT(*) AS n FROM book
		 WHERE %[1]s <> ''
		 GROUP BY %[1]s
		 ORDER BY n DESC, %[1]s
		 LIMIT ?`, column),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting books by %s: %w", column, err)
	}
	defer rows.Close()

	out := []model.CountedValue{}
	for rows.Next() {
		var cv model.CountedValue
		if err := rows.Scan(&cv.Value, &cv.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s count: %w", column, err)
		}
		out = append(out, cv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s counts: %w", column, err)
	}
	return out, nil
}

func (b *BookDB) list(ctx context.Context, op, query string, args ...any) ([]model.Book, error) {
	rows, err := b.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	books := []model.Book{}
	for rows.Next() {
		var book model.Book
		if err := scanBook(rows, &book); err != nil {
			return nil, fmt.Errorf("sqlite: %s: scanning: %w", op, err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: iterating: %w", op, err)
	}
	return books, nil
}

func scanBook(s scanner, book *model.Book, extra ...any) error {
	var creator sql.NullInt64
	dest := append([]any{
		&book.ID,
		&book.LibraryID,
		&creator,
		&book.Author,
		&book.Title,
		&book.Description,
		&book.Genre,
		&book.Color,
		&book.LibAddress,
		&book.Room,
		&book.Shelf,
		&book.Location,
		&book.Slug,
		&book.CreatedAt,
		&book.UpdatedAt,
	}, extra...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	book.CreatorID = int64Ptr(creator)
	return nil
}
