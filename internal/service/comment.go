package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
)

// CommentService manages discussion on books. Any member of the book's
// library may read and post; only the author may edit or delete a comment.
type CommentService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewCommentService(store repository.Store, logger *slog.Logger) *CommentService {
	return &CommentService{store: store, logger: logger}
}

func (s *CommentService) Create(ctx context.Context, userID, bookID int64, message string) (*model.Comment, error) {
	msg, err := requireText("message", message, MaxCommentLength)
	if err != nil {
		return nil, err
	}
	if _, _, err := resolveBookPermissions(ctx, s.store, userID, bookID); err != nil {
		return nil, err
	}

	c := &model.Comment{BookID: bookID, UserID: userID, Message: msg}
	if err := s.store.Comments().Create(ctx, c); err != nil {
		return nil, fmt.Errorf("service/comment: creating on book %d: %w", bookID, err)
	}

	// Re-read to pick up the author's username.
	created, err := s.store.Comments().GetByID(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: reloading comment %d: %w", c.ID, err)
	}

	s.logger.Info("comment created", slog.Int64("commentID", c.ID), slog.Int64("bookID", bookID))
	return created, nil
}

// List returns a page of comments on the book, newest first.
func (s *CommentService) List(ctx context.Context, userID, bookID int64, opts repository.ListOptions) ([]model.Comment, error) {
	if _, _, err := resolveBookPermissions(ctx, s.store, userID, bookID); err != nil {
		return nil, err
	}
	comments, err := s.store.Comments().ListByBook(ctx, bookID, opts.Normalize(DefaultCommentLimit, MaxCommentLimit))
	if err != nil {
		return nil, fmt.Errorf("service/comment: listing book %d: %w", bookID, err)
	}
	return comments, nil
}

func (s *CommentService) Edit(ctx context.Context, userID, commentID int64, message string) (*model.Comment, error) {
	msg, err := requireText("message", message, MaxCommentLength)
	if err != nil {
		return nil, err
	}
	c, err := s.authored(ctx, userID, commentID)
	if err != nil {
		return nil, err
	}

	c.Message = msg
	if err := s.store.Comments().Update(ctx, c); err != nil {
		return nil, fmt.Errorf("service/comment: editing %d: %w", commentID, err)
	}
	return c, nil
}

func (s *CommentService) Delete(ctx context.Context, userID, commentID int64) error {
	if _, err := s.authored(ctx, userID, commentID); err != nil {
		return err
	}
	if err := s.store.Comments().Delete(ctx, commentID); err != nil {
		return fmt.Errorf("service/comment: deleting %d: %w", commentID, err)
	}
	s.logger.Info("comment deleted", slog.Int64("commentID", commentID), slog.Int64("userID", userID))
	return nil
}

// authored loads the comment and checks that userID wrote it.
func (s *CommentService) authored(ctx context.Context, userID, commentID int64) (*model.Comment, error) {
	c, err := s.store.Comments().GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, apperror.Forbidden("you can only change your own comments")
	}
	return c, nil
}
