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

// MembershipDB stores roles in the user_library table.
type MembershipDB struct {
	q querier
}

var _ repository.MembershipRepository = (*MembershipDB)(nil)

// Create inserts a membership. The UNIQUE(user_id, library_id) constraint
// turns a second insert for the same pair into apperror.Conflict.
func (m *MembershipDB) Create(ctx context.Context, mem *model.Membership) error {
	if !mem.Role.Valid() {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", mem.Role))
	}

	res, err := m.q.ExecContext(ctx,
		`INSERT INTO user_library (user_id, library_id, role) VALUES (?, ?, ?)`,
		mem.UserID, mem.LibraryID, string(mem.Role),
	)
	if err != nil {
		return translateWriteErr("membership", "creating membership", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading membership id: %w", err)
	}
	mem.ID = id
	return nil
}

// Get is a single indexed lookup on the (user_id, library_id) pair.
func (m *MembershipDB) Get(ctx context.Context, userID, libraryID int64) (*model.Membership, error) {
	var (
		mem  model.Membership
		role string
	)
	err := m.q.QueryRowContext(ctx,
		`SELECT id, user_id, library_id, role FROM user_library
		 WHERE user_id = ? AND library_id = ?`,
		userID, libraryID,
	).Scan(&mem.ID, &mem.UserID, &mem.LibraryID, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("membership", fmt.Sprintf("%d/%d", userID, libraryID))
		}
		return nil, fmt.Errorf("sqlite: getting membership %d/%d: %w", userID, libraryID, err)
	}

	if mem.Role, err = model.ParseRole(role); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return &mem, nil
}

func (m *MembershipDB) UpdateRole(ctx context.Context, userID, libraryID int64, role model.Role) error {
	if !role.Valid() {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}
	res, err := m.q.ExecContext(ctx,
		`UPDATE user_library SET role = ? WHERE user_id = ? AND library_id = ?`,
		string(role), userID, libraryID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating role %d/%d: %w", userID, libraryID, err)
	}
	return requireAffected(res, "membership", fmt.Sprintf("%d/%d", userID, libraryID))
}

func (m *MembershipDB) Delete(ctx context.Context, userID, libraryID int64) error {
	res, err := m.q.ExecContext(ctx,
		`DELETE FROM user_library WHERE user_id = ? AND library_id = ?`,
		userID, libraryID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting membership %d/%d: %w", userID, libraryID, err)
	}
	return requireAffected(res, "membership", fmt.Sprintf("%d/%d", userID, libraryID))
}

func (m *MembershipDB) DeleteByLibrary(ctx context.Context, libraryID int64) error {
	if _, err := m.q.ExecContext(ctx, `DELETE FROM user_library WHERE library_id = ?`, libraryID); err != nil {
		return fmt.Errorf("sqlite: deleting memberships of library %d: %w", libraryID, err)
	}
	return nil
}

func (m *MembershipDB) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := m.q.ExecContext(ctx, `DELETE FROM user_library WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting memberships of user %d: %w", userID, err)
	}
	return nil
}

// ListMembers returns the roster with the owner first, then members by name.
func (m *MembershipDB) ListMembers(ctx context.Context, libraryID int64) ([]model.Member, error) {
	rows, err := m.q.QueryContext(ctx,
		`SELECT ul.user_id, u.username, ul.role
		 FROM user_library ul
		 JOIN user u ON u.id = ul.user_id
		 WHERE ul.library_id = ?
		 ORDER BY CASE ul.role WHEN 'owner' THEN 0 ELSE 1 END, u.username COLLATE NOCASE`,
		libraryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members of library %d: %w", libraryID, err)
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		var (
			mem  model.Member
			role string
		)
		if err := rows.Scan(&mem.UserID, &mem.Username, &role); err != nil {
			return nil, fmt.Errorf("sqlite: scanning member: %w", err)
		}
		if mem.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		members = append(members, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating members: %w", err)
	}
	return members, nil
}

func (m *MembershipDB) Count(ctx context.Context, libraryID int64) (int, error) {
	var n int
	err := m.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_library WHERE library_id = ?`, libraryID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting members of library %d: %w", libraryID, err)
	}
	return n, nil
}
