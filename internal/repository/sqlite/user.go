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

// UserDB stores accounts in the user table.
type UserDB struct {
	q querier
}

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, email, password_hash, github_id, firstname, lastname, created_at`

// Create inserts a new user and fills in ID and CreatedAt.
// A taken username, email or GitHub id yields apperror.Conflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	user.CreatedAt = now()

	res, err := u.q.ExecContext(ctx,
		`INSERT INTO user (username, email, password_hash, github_id, firstname, lastname, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		nullString(user.Email),
		user.PasswordHash,
		nullInt64(user.GitHubID),
		user.FirstName,
		user.LastName,
		user.CreatedAt,
	)
	if err != nil {
		return translateWriteErr("user", "creating user", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id
	return nil
}

func (u *UserDB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return u.getOne(ctx, "user", id, `SELECT `+userColumns+` FROM user WHERE id = ?`, id)
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getOne(ctx, "user", username, `SELECT `+userColumns+` FROM user WHERE username = ?`, username)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "user", email, `SELECT `+userColumns+` FROM user WHERE email = ?`, email)
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return u.getOne(ctx, "user", githubID, `SELECT `+userColumns+` FROM user WHERE github_id = ?`, githubID)
}

// Update writes the mutable profile fields back. Username and GitHub id
// never change after creation.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE user SET email = ?, password_hash = ?, firstname = ?, lastname = ?
		 WHERE id = ?`,
		nullString(user.Email),
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.ID,
	)
	if err != nil {
		return translateWriteErr("user", fmt.Sprintf("updating user %d", user.ID), err)
	}
	return requireAffected(res, "user", user.ID)
}

// Delete removes the account row. Memberships, statuses and comments go with
// it through ON DELETE CASCADE; books keep existing with a NULL creator.
func (u *UserDB) Delete(ctx context.Context, id int64) error {
	res, err := u.q.ExecContext(ctx, `DELETE FROM user WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	return requireAffected(res, "user", id)
}

func (u *UserDB) getOne(ctx context.Context, resource string, key any, query string, args ...any) (*model.User, error) {
	var (
		user     model.User
		email    sql.NullString
		githubID sql.NullInt64
	)

	err := u.q.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Username,
		&email,
		&user.PasswordHash,
		&githubID,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, fmt.Errorf("sqlite: getting %s %v: %w", resource, key, err)
	}

	user.Email = stringPtr(email)
	user.GitHubID = int64Ptr(githubID)
	return &user, nil
}

// requireAffected turns a zero-row UPDATE/DELETE into apperror.NotFound.
func requireAffected(res sql.Result, resource string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
