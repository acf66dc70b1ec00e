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

// StatusDB stores per-user reading progress in user_book_status.
type StatusDB struct {
	q querier
}

var _ repository.ReadStatusRepository = (*StatusDB)(nil)

func (s *StatusDB) Get(ctx context.Context, userID, bookID int64) (model.ReadStatus, error) {
	var status string
	err := s.q.QueryRowContext(ctx,
		`SELECT read_status FROM user_book_status WHERE user_id = ? AND book_id = ?`,
		userID, bookID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("read status", fmt.Sprintf("%d/%d", userID, bookID))
		}
		return "", fmt.Errorf("sqlite: getting read status %d/%d: %w", userID, bookID, err)
	}
	return model.ReadStatus(status), nil
}

// Upsert relies on UNIQUE(user_id, book_id): an existing row is updated in
// place, never duplicated.
func (s *StatusDB) Upsert(ctx context.Context, userID, bookID int64, status model.ReadStatus) error {
	if !status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("unknown read status %q", status))
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO user_book_status (user_id, book_id, read_status) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, book_id) DO UPDATE SET read_status = excluded.read_status`,
		userID, bookID, string(status),
	)
	if err != nil {
		return translateWriteErr("read status", fmt.Sprintf("upserting read status %d/%d", userID, bookID), err)
	}
	return nil
}

func (s *StatusDB) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM user_book_status WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting read statuses of user %d: %w", userID, err)
	}
	return nil
}
