package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
)

// StatusService tracks each user's reading progress per book, separately
// from the book's own data.
//
// It does not check library membership: the request layer resolves the
// caller's book permissions first (CanEditStatus for writes).
type StatusService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewStatusService(store repository.Store, logger *slog.Logger) *StatusService {
	return &StatusService{store: store, logger: logger}
}

// Get returns the user's status for the book, not_read when none was ever
// recorded.
func (s *StatusService) Get(ctx context.Context, userID, bookID int64) (model.ReadStatus, error) {
	return readStatus(ctx, s.store, userID, bookID)
}

// Update records the status, replacing any earlier value.
func (s *StatusService) Update(ctx context.Context, userID, bookID int64, status model.ReadStatus) error {
	if !status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("unknown read status %q", status))
	}
	if err := s.store.Statuses().Upsert(ctx, userID, bookID, status); err != nil {
		return fmt.Errorf("service/status: updating %d/%d: %w", userID, bookID, err)
	}
	s.logger.Debug("read status updated",
		slog.Int64("userID", userID),
		slog.Int64("bookID", bookID),
		slog.String("status", string(status)),
	)
	return nil
}

func readStatus(ctx context.Context, r repository.Repositories, userID, bookID int64) (model.ReadStatus, error) {
	status, err := r.Statuses().Get(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.StatusNotRead, nil
		}
		return "", fmt.Errorf("service/status: reading %d/%d: %w", userID, bookID, err)
	}
	return status, nil
}
