package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/service"
)

// BookHandler serves /api/books (collections) and /api/book/{id} (one book
// with its status, permissions and comments).
type BookHandler struct {
	books    *service.BookService
	statuses *service.StatusService
	comments *service.CommentService
	access   *service.AccessService
	logger   *slog.Logger
}

func NewBookHandler(
	books *service.BookService,
	statuses *service.StatusService,
	comments *service.CommentService,
	access *service.AccessService,
	logger *slog.Logger,
) *BookHandler {
	return &BookHandler{
		books:    books,
		statuses: statuses,
		comments: comments,
		access:   access,
		logger:   logger,
	}
}

type createBookRequest struct {
	LibraryID   int64  `json:"libraryId"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	Color       string `json:"color"`
	LibAddress  string `json:"libAddress"`
	Room        string `json:"room"`
	Shelf       string `json:"shelf"`
	Location    string `json:"location"`
	Status      string `json:"status"`
}

type updateBookRequest struct {
	Author      *string `json:"author"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Genre       *string `json:"genre"`
	Color       *string `json:"color"`
	LibAddress  *string `json:"libAddress"`
	Room        *string `json:"room"`
	Shelf       *string `json:"shelf"`
	Location    *string `json:"location"`
	Status      *string `json:"status"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	BookID int64            `json:"bookId"`
	Status model.ReadStatus `json:"status"`
}

type commentRequest struct {
	Message string `json:"message"`
}

type popularResponse struct {
	Genres  []model.CountedValue `json:"genres"`
	Authors []model.CountedValue `json:"authors"`
}

func parseStatus(s string) (model.ReadStatus, error) {
	st, err := model.ParseReadStatus(s)
	if err != nil {
		return "", apperror.ValidationFailed("status", "must be one of not_read, reading, read")
	}
	return st, nil
}

// HandleList pages through every book in the caller's libraries.
//
// HTTP: GET /api/books?offset=0&limit=20
func (h *BookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.ListAccessible(r.Context(), currentUser(r), listOptions(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleCreate adds a book to one of the caller's libraries.
//
// HTTP: POST /api/books
func (h *BookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	book, err := h.books.Create(r.Context(), currentUser(r), req.LibraryID, service.BookInput{
		Author:      req.Author,
		Title:       req.Title,
		Description: req.Description,
		Genre:       req.Genre,
		Color:       req.Color,
		LibAddress:  req.LibAddress,
		Room:        req.Room,
		Shelf:       req.Shelf,
		Location:    req.Location,
		Status:      status,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// HandleSearch matches title, author or genre.
//
// HTTP: GET /api/books/search?q=dune
func (h *BookHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.Search(r.Context(), currentUser(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandlePopular returns the most common genres and authors for form hints.
//
// HTTP: GET /api/books/popular
func (h *BookHandler) HandlePopular(w http.ResponseWriter, r *http.Request) {
	genres, err := h.books.PopularGenres(r.Context(), 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	authors, err := h.books.PopularAuthors(r.Context(), 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, popularResponse{Genres: genres, Authors: authors})
}

// HandleGet returns the book page data: the book, its library, creator,
// the caller's status and what the caller may do.
//
// HTTP: GET /api/book/{id}
func (h *BookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	detail, err := h.books.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleUpdate applies the fields the caller is allowed to change.
//
// HTTP: PUT /api/book/{id}/edit
func (h *BookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req updateBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	upd := service.BookUpdate{
		Author:      req.Author,
		Title:       req.Title,
		Description: req.Description,
		Genre:       req.Genre,
		Color:       req.Color,
		LibAddress:  req.LibAddress,
		Room:        req.Room,
		Shelf:       req.Shelf,
		Location:    req.Location,
	}
	if req.Status != nil {
		st, err := parseStatus(*req.Status)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		upd.Status = &st
	}

	book, err := h.books.Update(r.Context(), currentUser(r), id, upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleDelete removes the book.
//
// HTTP: POST /api/book/{id}/delete
func (h *BookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.books.Delete(r.Context(), currentUser(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "book deleted"})
}

// HandlePermissions reports what the caller may do with the book.
//
// HTTP: GET /api/book/{id}/permissions
func (h *BookHandler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	perms, err := h.access.ResolveBookPermissions(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

// HandleGetStatus returns the caller's read status for the book.
//
// HTTP: GET /api/book/{id}/status
func (h *BookHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	userID := currentUser(r)

	// Resolving permissions doubles as the membership check.
	if _, err := h.access.ResolveBookPermissions(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	status, err := h.statuses.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{BookID: id, Status: status})
}

// HandleUpdateStatus records the caller's read status.
//
// HTTP: PUT /api/book/{id}/status
// Body: {"status": "reading"}
func (h *BookHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	userID := currentUser(r)

	perms, err := h.access.ResolveBookPermissions(r.Context(), userID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !perms.CanEditStatus {
		writeError(w, h.logger, apperror.Forbidden("you may not change the status of this book"))
		return
	}
	if err := h.statuses.Update(r.Context(), userID, id, status); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{BookID: id, Status: status})
}

// HandleListComments returns the book's comments, newest first.
//
// HTTP: GET /api/book/{id}/comments?offset=0&limit=50
func (h *BookHandler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	comments, err := h.comments.List(r.Context(), currentUser(r), id, listOptions(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// HandleCreateComment posts a comment on the book.
//
// HTTP: POST /api/book/{id}/comments
// Body: {"message": "..."}
func (h *BookHandler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	comment, err := h.comments.Create(r.Context(), currentUser(r), id, req.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}
