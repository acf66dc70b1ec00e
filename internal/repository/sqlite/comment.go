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

// CommentDB stores book comments in the comments table.
type CommentDB struct {
	q querier
}

var _ repository.CommentRepository = (*CommentDB)(nil)

const commentSelect = `SELECT c.id, c.book_id, c.user_id, u.username, c.message, c.created_at, c.updated_at
	FROM comments c JOIN user u ON u.id = c.user_id`

func (c *CommentDB) Create(ctx context.Context, cm *model.Comment) error {
	ts := now()
	cm.CreatedAt = ts
	cm.UpdatedAt = ts

	res, err := c.q.ExecContext(ctx,
		`INSERT INTO comments (message, user_id, book_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cm.Message, cm.UserID, cm.BookID, cm.CreatedAt, cm.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr("comment", "creating comment", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading comment id: %w", err)
	}
	cm.ID = id
	return nil
}

func (c *CommentDB) GetByID(ctx context.Context, id int64) (*model.Comment, error) {
	var cm model.Comment
	err := scanComment(c.q.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id), &cm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %d: %w", id, err)
	}
	return &cm, nil
}

// ListByBook returns comments newest first.
func (c *CommentDB) ListByBook(ctx context.Context, bookID int64, opts repository.ListOptions) ([]model.Comment, error) {
	rows, err := c.q.QueryContext(ctx,
		commentSelect+` WHERE c.book_id = ?
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT ? OFFSET ?`,
		bookID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of book %d: %w", bookID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var cm model.Comment
		if err := scanComment(rows, &cm); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		comments = append(comments, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

func (c *CommentDB) Update(ctx context.Context, cm *model.Comment) error {
	cm.UpdatedAt = now()
	res, err := c.q.ExecContext(ctx,
		`UPDATE comments SET message = ?, updated_at = ? WHERE id = ?`,
		cm.Message, cm.UpdatedAt, cm.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating comment %d: %w", cm.ID, err)
	}
	return requireAffected(res, "comment", cm.ID)
}

func (c *CommentDB) Delete(ctx context.Context, id int64) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %d: %w", id, err)
	}
	return requireAffected(res, "comment", id)
}

func (c *CommentDB) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM comments WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting comments of user %d: %w", userID, err)
	}
	return nil
}

func scanComment(s scanner, cm *model.Comment) error {
	return s.Scan(&cm.ID, &cm.BookID, &cm.UserID, &cm.Username, &cm.Message, &cm.CreatedAt, &cm.UpdatedAt)
}
