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

// LibraryDB stores libraries in the library table.
type LibraryDB struct {
	q querier
}

var _ repository.LibraryRepository = (*LibraryDB)(nil)

const libraryColumns = `l.id, l.name, l.slug, l.password_hash, l.owner_id, l.created_at, l.updated_at`

// Create inserts the library row only. The owner's membership is the
// caller's job, inside the same transaction.
func (l *LibraryDB) Create(ctx context.Context, lib *model.Library) error {
	ts := now()
	lib.CreatedAt = ts
	lib.UpdatedAt = ts

	res, err := l.q.ExecContext(ctx,
		`INSERT INTO library (name, slug, password_hash, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		lib.Name,
		lib.Slug,
		lib.PasswordHash,
		nullInt64(lib.OwnerID),
		lib.CreatedAt,
		lib.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr("library", "creating library", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading library id: %w", err)
	}
	lib.ID = id
	return nil
}

func (l *LibraryDB) GetByID(ctx context.Context, id int64) (*model.Library, error) {
	return l.getOne(ctx, id, `SELECT `+libraryColumns+` FROM library l WHERE l.id = ?`, id)
}

func (l *LibraryDB) GetByName(ctx context.Context, name string) (*model.Library, error) {
	return l.getOne(ctx, name, `SELECT `+libraryColumns+` FROM library l WHERE l.name = ?`, name)
}

func (l *LibraryDB) GetBySlug(ctx context.Context, slug string) (*model.Library, error) {
	return l.getOne(ctx, slug, `SELECT `+libraryColumns+` FROM library l WHERE l.slug = ?`, slug)
}

func (l *LibraryDB) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := l.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM library WHERE slug = ?)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking library slug %q: %w", slug, err)
	}
	return exists, nil
}

func (l *LibraryDB) UpdateName(ctx context.Context, id int64, name, slug string) error {
	res, err := l.q.ExecContext(ctx,
		`UPDATE library SET name = ?, slug = ?, updated_at = ? WHERE id = ?`,
		name, slug, now(), id,
	)
	if err != nil {
		return translateWriteErr("library", fmt.Sprintf("renaming library %d", id), err)
	}
	return requireAffected(res, "library", id)
}

func (l *LibraryDB) SetOwner(ctx context.Context, id, ownerID int64) error {
	res, err := l.q.ExecContext(ctx,
		`UPDATE library SET owner_id = ?, updated_at = ? WHERE id = ?`,
		ownerID, now(), id,
	)
	if err != nil {
		return translateWriteErr("library", fmt.Sprintf("setting owner of library %d", id), err)
	}
	return requireAffected(res, "library", id)
}

func (l *LibraryDB) Delete(ctx context.Context, id int64) error {
	res, err := l.q.ExecContext(ctx, `DELETE FROM library WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting library %d: %w", id, err)
	}
	return requireAffected(res, "library", id)
}

// ListByUser joins through user_library, so it returns libraries the user
// merely belongs to as well as ones they own.
func (l *LibraryDB) ListByUser(ctx context.Context, userID int64) ([]model.LibraryWithRole, error) {
	rows, err := l.q.QueryContext(ctx,
		`SELECT `+libraryColumns+`, ul.role
		 FROM library l
		 JOIN user_library ul ON ul.library_id = l.id
		 WHERE ul.user_id = ?
		 ORDER BY l.name COLLATE NOCASE`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing libraries for user %d: %w", userID, err)
	}
	defer rows.Close()

	libs := []model.LibraryWithRole{}
	for rows.Next() {
		var (
			lwr  model.LibraryWithRole
			role string
		)
		if err := scanLibrary(rows, &lwr.Library, &role); err != nil {
			return nil, fmt.Errorf("sqlite: scanning library: %w", err)
		}
		if lwr.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		libs = append(libs, lwr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating libraries: %w", err)
	}
	return libs, nil
}

func (l *LibraryDB) SearchNotJoined(ctx context.Context, userID int64, query string, limit int) ([]model.Library, error) {
	rows, err := l.q.QueryContext(ctx,
		`SELECT `+libraryColumns+`
		 FROM library l
		 WHERE fold(l.name) LIKE ? ESCAPE '\'
		   AND NOT EXISTS (
		       SELECT 1 FROM user_library ul
		       WHERE ul.library_id = l.id AND ul.user_id = ?
		   )
		 ORDER BY l.name COLLATE NOCASE
		 LIMIT ?`,
		likePattern(query), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching libraries: %w", err)
	}
	defer rows.Close()

	libs := []model.Library{}
	for rows.Next() {
		var lib model.Library
		if err := scanLibrary(rows, &lib); err != nil {
			return nil, fmt.Errorf("sqlite: scanning library: %w", err)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating libraries: %w", err)
	}
	return libs, nil
}

func (l *LibraryDB) CountOwnedBy(ctx context.Context, userID int64) (int, error) {
	var n int
	err := l.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM library WHERE owner_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting libraries owned by %d: %w", userID, err)
	}
	return n, nil
}

func (l *LibraryDB) getOne(ctx context.Context, key any, query string, args ...any) (*model.Library, error) {
	var lib model.Library
	if err := scanLibrary(l.q.QueryRowContext(ctx, query, args...), &lib); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("library", key)
		}
		return nil, fmt.Errorf("sqlite: getting library %v: %w", key, err)
	}
	return &lib, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanLibrary reads libraryColumns, followed by any extra destinations.
func scanLibrary(s scanner, lib *model.Library, extra ...any) error {
	var owner sql.NullInt64
	dest := append([]any{
		&lib.ID,
		&lib.Name,
		&lib.Slug,
		&lib.PasswordHash,
		&owner,
		&lib.CreatedAt,
		&lib.UpdatedAt,
	}, extra...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	lib.OwnerID = int64Ptr(owner)
	return nil
}
