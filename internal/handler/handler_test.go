package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/flash"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository/sqlite"
	"github.com/sakif/homelibrary/internal/service"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================

const (
	testPassword = "hunter22"
	testUserKey  = "X-Test-User"
)

// testEnv runs the real services on an in-memory database behind a chi
// router with the same paths the server mounts. Authentication is replaced
// by a header carrying the user id so tests can act as anyone.
type testEnv struct {
	svc    Services
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	passwords := auth.NewPasswordServiceForTest(4)
	tokens, err := auth.NewTokenService(strings.Repeat("s", auth.MinSecretLength), time.Hour, "test")
	require.NoError(t, err)

	svc := Services{
		Users:     service.NewUserService(db, tokens, passwords, logger),
		Libraries: service.NewLibraryService(db, passwords, logger),
		Books:     service.NewBookService(db, logger),
		Statuses:  service.NewStatusService(db, logger),
		Comments:  service.NewCommentService(db, logger),
		Access:    service.NewAccessService(db),
	}
	session := Session{TTL: time.Hour}

	pages, err := NewPageHandler(svc, flash.New(strings.Repeat("f", 32), false, logger), session,
		PageOptions{AppName: "HomeLibrary", Registration: true}, logger)
	require.NoError(t, err)

	users := NewUserHandler(svc.Users, svc.Books, session, logger)
	libraries := NewLibraryHandler(svc.Libraries, logger)
	books := NewBookHandler(svc.Books, svc.Statuses, svc.Comments, svc.Access, logger)
	comments := NewCommentHandler(svc.Comments, logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id, err := strconv.ParseInt(req.Header.Get(testUserKey), 10, 64); err == nil {
				req = req.WithContext(auth.WithUserID(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.NotFound(pages.HandleNotFound)

	r.Post("/api/users/register", users.HandleRegister)
	r.Post("/api/users/login", users.HandleLogin)
	r.Post("/api/users/logout", users.HandleLogout)
	r.Get("/api/users/me", users.HandleMe)
	r.Put("/api/users/me", users.HandleUpdateMe)
	r.Delete("/api/users/me", users.HandleDeleteMe)
	r.Get("/api/users/me/books", users.HandleMyBooks)

	r.Get("/api/libraries", libraries.HandleList)
	r.Post("/api/libraries", libraries.HandleCreate)
	r.Post("/api/libraries/join", libraries.HandleJoin)
	r.Get("/api/libraries/search", libraries.HandleSearch)
	r.Put("/api/libraries/edit_name", libraries.HandleRename)
	r.Get("/api/libraries/slug/{slug}", libraries.HandleGetBySlug)
	r.Get("/api/libraries/{id}", libraries.HandleGet)
	r.Delete("/api/libraries/{id}", libraries.HandleDelete)
	r.Get("/api/libraries/{id}/books", libraries.HandleBooks)
	r.Get("/api/libraries/{id}/members", libraries.HandleMembers)
	r.Post("/api/libraries/{id}/leave", libraries.HandleLeave)
	r.Post("/api/libraries/{id}/transfer", libraries.HandleTransfer)

	r.Get("/api/books", books.HandleList)
	r.Post("/api/books", books.HandleCreate)
	r.Get("/api/books/search", books.HandleSearch)
	r.Get("/api/books/popular", books.HandlePopular)
	r.Get("/api/book/{id}", books.HandleGet)
	r.Put("/api/book/{id}/edit", books.HandleUpdate)
	r.Post("/api/book/{id}/delete", books.HandleDelete)
	r.Get("/api/book/{id}/permissions", books.HandlePermissions)
	r.Get("/api/book/{id}/status", books.HandleGetStatus)
	r.Put("/api/book/{id}/status", books.HandleUpdateStatus)
	r.Get("/api/book/{id}/comments", books.HandleListComments)
	r.Post("/api/book/{id}/comments", books.HandleCreateComment)
	r.Put("/api/comments/{id}", comments.HandleEdit)
	r.Delete("/api/comments/{id}", comments.HandleDelete)

	r.Get("/", pages.HandleHome)
	r.Get("/login", pages.HandleLoginPage)
	r.Post("/login", pages.HandleLogin)
	r.Post("/logout", pages.HandleLogout)
	r.Get("/register", pages.HandleRegisterPage)
	r.Post("/register", pages.HandleRegister)
	r.Get("/user/me", pages.HandleProfile)
	r.Get("/user/edit", pages.HandleProfileEditForm)
	r.Post("/user/edit", pages.HandleUpdateProfile)
	r.Post("/user/delete", pages.HandleDeleteAccount)
	r.Get("/library/", pages.HandleLibraries)
	r.Get("/library/create", pages.HandleLibraryForm)
	r.Post("/library/create", pages.HandleCreateLibrary)
	r.Get("/library/search", pages.HandleLibrarySearch)
	r.Get("/library/{id}", pages.HandleLibrary)
	r.Get("/library/{id}/edit", pages.HandleLibraryEditForm)
	r.Post("/library/{id}/edit", pages.HandleRenameLibrary)
	r.Post("/library/{id}/join", pages.HandleJoinLibrary)
	r.Post("/library/{id}/leave", pages.HandleLeaveLibrary)
	r.Post("/library/{id}/delete", pages.HandleDeleteLibrary)
	r.Get("/book/", pages.HandleBooks)
	r.Get("/book/create", pages.HandleBookForm)
	r.Post("/book/create", pages.HandleCreateBook)
	r.Get("/book/{id}", pages.HandleBook)
	r.Get("/book/{id}/edit", pages.HandleBookEditForm)
	r.Post("/book/{id}/edit", pages.HandleUpdateBook)
	r.Post("/book/{id}/delete", pages.HandleDeleteBook)
	r.Post("/book/{id}/status", pages.HandleBookStatus)
	r.Post("/book/{id}/comments", pages.HandleBookComment)

	return &testEnv{svc: svc, router: r}
}

// do sends a request as userID (0 = anonymous). body may be nil, a string
// (sent as a form), or anything else (sent as JSON).
func (e *testEnv) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var (
		rd          io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case string:
		rd, contentType = strings.NewReader(b), "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd, contentType = bytes.NewReader(raw), "application/json"
	}

	req := httptest.NewRequest(method, path, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID > 0 {
		req.Header.Set(testUserKey, strconv.FormatInt(userID, 10))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) user(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := e.svc.Users.Register(context.Background(), service.RegisterInput{Username: username, Password: testPassword})
	require.NoError(t, err)
	return u
}

func (e *testEnv) library(t *testing.T, owner *model.User, name, password string) *model.Library {
	t.Helper()
	lib, err := e.svc.Libraries.Create(context.Background(), owner.ID, service.CreateLibraryInput{Name: name, Password: password})
	require.NoError(t, err)
	return lib
}

func (e *testEnv) join(t *testing.T, u *model.User, lib *model.Library, password string) {
	t.Helper()
	_, err := e.svc.Libraries.Join(context.Background(), u.ID, lib.Name, password)
	require.NoError(t, err)
}

func (e *testEnv) book(t *testing.T, creator *model.User, lib *model.Library, title string) *model.Book {
	t.Helper()
	b, err := e.svc.Books.Create(context.Background(), creator.ID, lib.ID, service.BookInput{
		Author: "Frank Herbert",
		Title:  title,
		Genre:  "Sci-Fi",
	})
	require.NoError(t, err)
	return b
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func assertErrorBody(t *testing.T, rr *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, kind, body.Error)
	assert.NotEmpty(t, body.Message)
}

func idPath(format string, id int64) string {
	return strings.Replace(format, "{id}", strconv.FormatInt(id, 10), 1)
}
