package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/service"
)

// UserHandler serves /api/users: accounts, sessions and "my books".
type UserHandler struct {
	users   *service.UserService
	books   *service.BookService
	session Session
	logger  *slog.Logger
}

func NewUserHandler(users *service.UserService, books *service.BookService, session Session, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, books: books, session: session, logger: logger}
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type profileRequest struct {
	CurrentPassword string  `json:"currentPassword"`
	Email           *string `json:"email"`
	FirstName       *string `json:"firstname"`
	LastName        *string `json:"lastname"`
	NewPassword     string  `json:"newPassword"`
}

// authResponse is returned by login so API clients that don't keep cookies
// can send the token as a Bearer header instead.
type authResponse struct {
	User        *model.User `json:"user"`
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /api/users/register
// Body: {"username": "reader", "password": "...", "email": "...", "firstname": "...", "lastname": "..."}
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput(req))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin checks credentials, sets the access_token cookie and also
// returns the token in the body.
//
// HTTP: POST /api/users/login
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.session.set(w, res.Token)
	writeJSON(w, http.StatusOK, authResponse{User: res.User, AccessToken: res.Token, TokenType: "bearer"})
}

// HandleLogout clears the cookie.
//
// HTTP: POST /api/users/logout
//
// Tokens are stateless, so the token itself stays valid until it expires;
// without the cookie the browser just stops sending it.
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.session.clear(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe changes profile fields. Omitted fields are kept.
//
// HTTP: PUT /api/users/me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), currentUser(r), service.ProfileUpdate(req))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleDeleteMe deletes the account and signs the caller out.
//
// HTTP: DELETE /api/users/me
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), currentUser(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.session.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMyBooks lists the books the caller added, each with the caller's
// read status.
//
// HTTP: GET /api/users/me/books
func (h *UserHandler) HandleMyBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.ListByCreator(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}
