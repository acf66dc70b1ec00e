package model

import "time"

// Comment is a free-text note a member leaves on a book.
type Comment struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"bookId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
