package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
)

// =========================================================================
// USER API TESTS
// =========================================================================

func TestAPI_RegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, 0, http.MethodPost, "/api/users/register", map[string]string{
		"username": "reader1",
		"password": testPassword,
		"email":    "reader@example.com",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[model.User](t, rr)
	assert.Equal(t, "reader1", created.Username)
	assert.NotContains(t, rr.Body.String(), "password", "hash never serialised")

	rr = e.do(t, 0, http.MethodPost, "/api/users/login", map[string]string{"username": "reader1", "password": testPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[authResponse](t, rr)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "bearer", res.TokenType)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login sets the access_token cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, auth.CookieValue(res.AccessToken), cookie.Value)

	rr = e.do(t, 0, http.MethodPost, "/api/users/login", map[string]string{"username": "reader1", "password": "wrong-one"})
	assertErrorBody(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestAPI_RegisterRejectsBadInput(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, 0, http.MethodPost, "/api/users/register", map[string]string{"username": "abc", "password": testPassword})
	assertErrorBody(t, rr, http.StatusBadRequest, "validation_error")

	rr = e.do(t, 0, http.MethodPost, "/api/users/register", map[string]string{"user": "reader1"})
	assertErrorBody(t, rr, http.StatusBadRequest, "validation_error")

	e.user(t, "reader1")
	rr = e.do(t, 0, http.MethodPost, "/api/users/register", map[string]string{"username": "reader1", "password": testPassword})
	assertErrorBody(t, rr, http.StatusConflict, "conflict")
}

func TestAPI_Profile(t *testing.T) {
	e := newTestEnv(t)
	u := e.user(t, "reader1")

	rr := e.do(t, u.ID, http.MethodGet, "/api/users/me", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "reader1", decode[model.User](t, rr).Username)

	rr = e.do(t, u.ID, http.MethodPut, "/api/users/me", map[string]any{
		"currentPassword": testPassword,
		"firstname":       "Ada",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Ada", decode[model.User](t, rr).FirstName)

	rr = e.do(t, u.ID, http.MethodPut, "/api/users/me", map[string]any{"currentPassword": "nope", "firstname": "Eve"})
	assertErrorBody(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestAPI_DeleteMe(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner1")
	reader := e.user(t, "reader1")
	e.library(t, owner, "Home", "")

	rr := e.do(t, owner.ID, http.MethodDelete, "/api/users/me", nil)
	assertErrorBody(t, rr, http.StatusConflict, "conflict")

	rr = e.do(t, reader.ID, http.MethodDelete, "/api/users/me", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(t, reader.ID, http.MethodGet, "/api/users/me", nil)
	assertErrorBody(t, rr, http.StatusNotFound, "not_found")
}

// =========================================================================
// LIBRARY API TESTS
// =========================================================================

func TestAPI_LibraryMembership(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner1")
	member := e.user(t, "member1")

	rr := e.do(t, owner.ID, http.MethodPost, "/api/libraries", map[string]string{"name": "Home", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	lib := decode[model.Library](t, rr)
	assert.Equal(t, "home", lib.Slug)
	assert.NotContains(t, rr.Body.String(), "secret1")

	rr = e.do(t, member.ID, http.MethodGet, idPath("/api/libraries/{id}", lib.ID), nil)
	assertErrorBody(t, rr, http.StatusNotFound, "not_found")

	rr = e.do(t, member.ID, http.MethodPost, "/api/libraries/join", map[string]string{"library": "Home", "password": "wrong"})
	assertErrorBody(t, rr, http.StatusUnauthorized, "unauthorized")

	rr = e.do(t, member.ID, http.MethodPost, "/api/libraries/join", map[string]string{"library": "home", "password": "secret1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, member.ID, http.MethodGet, idPath("/api/libraries/{id}", lib.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.RoleMember, decode[model.LibraryWithRole](t, rr).Role)

	rr = e.do(t, member.ID, http.MethodGet, "/api/libraries/slug/home", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, owner.ID, http.MethodGet, idPath("/api/libraries/{id}/members", lib.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	members := decode[[]model.Member](t, rr)
	require.Len(t, members, 2)
	assert.Equal(t, model.RoleOwner, members[0].Role)

	rr = e.do(t, owner.ID, http.MethodPost, idPath("/api/libraries/{id}/leave", lib.ID), nil)
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")

	rr = e.do(t, member.ID, http.MethodGet, "/api/libraries", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.LibraryWithRole](t, rr), 1)
}

func TestAPI_LibraryOwnerActions(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner1")
	member := e.user(t, "member1")
	lib := e.library(t, owner, "Home", "")
	e.join(t, member, lib, "")

	rr := e.do(t, member.ID, http.MethodPut, "/api/libraries/edit_name", map[string]any{"libraryId": lib.ID, "name": "Mine"})
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")

	rr = e.do(t, owner.ID, http.MethodPut, "/api/libraries/edit_name", map[string]any{"libraryId": lib.ID, "name": "Cottage"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Cottage", decode[model.Library](t, rr).Name)

	rr = e.do(t, owner.ID, http.MethodPost, idPath("/api/libraries/{id}/transfer", lib.ID), map[string]any{"userId": member.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, owner.ID, http.MethodPost, idPath("/api/libraries/{id}/leave", lib.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code, "former owner may leave")

	rr = e.do(t, owner.ID, http.MethodDelete, idPath("/api/libraries/{id}", lib.ID), nil)
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")

	rr = e.do(t, member.ID, http.MethodDelete, idPath("/api/libraries/{id}", lib.ID), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAPI_LibrarySearch(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner1")
	other := e.user(t, "other1")
	e.library(t, owner, "Home", "")
	e.library(t, owner, "Holiday Home", "")

	rr := e.do(t, other.ID, http.MethodGet, "/api/libraries/search?q=home", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Library](t, rr), 2)

	rr = e.do(t, owner.ID, http.MethodGet, "/api/libraries/search?q=home", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]model.Library](t, rr), "already a member of both")

	rr = e.do(t, other.ID, http.MethodGet, "/api/libraries/search?q=", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestAPI_BadPathID(t *testing.T) {
	e := newTestEnv(t)
	u := e.user(t, "reader1")

	rr := e.do(t, u.ID, http.MethodGet, "/api/libraries/abc", nil)
	assertErrorBody(t, rr, http.StatusBadRequest, "validation_error")
}

// =========================================================================
// BOOK API TESTS
// =========================================================================

type apiFixture struct {
	owner, creator, member, outsider *model.User
	lib                              *model.Library
	book                             *model.Book
}

func newAPIFixture(t *testing.T, e *testEnv) apiFixture {
	t.Helper()
	f := apiFixture{
		owner:    e.user(t, "owner1"),
		creator:  e.user(t, "creator1"),
		member:   e.user(t, "member1"),
		outsider: e.user(t, "outsider"),
	}
	f.lib = e.library(t, f.owner, "Home", "")
	e.join(t, f.creator, f.lib, "")
	e.join(t, f.member, f.lib, "")
	f.book = e.book(t, f.creator, f.lib, "Dune")
	return f
}

func TestAPI_CreateBook(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)

	rr := e.do(t, f.member.ID, http.MethodPost, "/api/books", map[string]any{
		"libraryId": f.lib.ID,
		"author":    "Ursula K. Le Guin",
		"title":     "The Dispossessed",
		"room":      "Study",
		"status":    "reading",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	book := decode[model.Book](t, rr)
	assert.Equal(t, "Study", book.Room)

	rr = e.do(t, f.member.ID, http.MethodGet, idPath("/api/book/{id}/status", book.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.StatusReading, decode[statusResponse](t, rr).Status)

	rr = e.do(t, f.member.ID, http.MethodPost, "/api/books", map[string]any{
		"libraryId": f.lib.ID, "author": "A", "title": "B", "status": "finished",
	})
	assertErrorBody(t, rr, http.StatusBadRequest, "validation_error")

	rr = e.do(t, f.outsider.ID, http.MethodPost, "/api/books", map[string]any{
		"libraryId": f.lib.ID, "author": "A", "title": "B",
	})
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")
}

func TestAPI_GetBook(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)

	rr := e.do(t, f.member.ID, http.MethodGet, idPath("/api/book/{id}", f.book.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decode[model.BookDetail](t, rr)
	assert.Equal(t, "Dune", detail.Book.Title)
	assert.Equal(t, "Home", detail.LibraryName)
	assert.Equal(t, "creator1", detail.Creator)
	assert.Equal(t, model.StatusNotRead, detail.Status)
	assert.False(t, detail.Permissions.CanDelete)

	rr = e.do(t, f.outsider.ID, http.MethodGet, idPath("/api/book/{id}", f.book.ID), nil)
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")

	rr = e.do(t, f.member.ID, http.MethodGet, "/api/book/9999", nil)
	assertErrorBody(t, rr, http.StatusNotFound, "not_found")
}

func TestAPI_BookPermissions(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)

	tests := []struct {
		name string
		user *model.User
		want model.BookPermissions
	}{
		{"owner", f.owner, model.BookPermissions{CanEditFull: true, CanEditStatus: true, CanEditDescription: true, CanDelete: true, Role: model.RoleOwner}},
		{"creator", f.creator, model.BookPermissions{CanEditFull: true, CanEditStatus: true, CanEditDescription: true, CanDelete: true, Role: model.RoleMember}},
		{"member", f.member, model.BookPermissions{CanEditStatus: true, CanEditDescription: true, Role: model.RoleMember}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, tt.user.ID, http.MethodGet, idPath("/api/book/{id}/permissions", f.book.ID), nil)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, decode[model.BookPermissions](t, rr))
		})
	}

	rr := e.do(t, f.outsider.ID, http.MethodGet, idPath("/api/book/{id}/permissions", f.book.ID), nil)
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")
}

func TestAPI_UpdateBook_MemberPartialEdit(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)

	rr := e.do(t, f.member.ID, http.MethodPut, idPath("/api/book/{id}/edit", f.book.ID), map[string]any{
		"author":      "Someone Else",
		"description": "Desert planet",
		"status":      "read",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	book := decode[model.Book](t, rr)
	assert.Equal(t, "Frank Herbert", book.Author, "protected field dropped")
	assert.Equal(t, "Desert planet", book.Description)

	status, err := e.svc.Statuses.Get(context.Background(), f.member.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, status)

	rr = e.do(t, f.creator.ID, http.MethodPut, idPath("/api/book/{id}/edit", f.book.ID), map[string]any{"title": "Dune Messiah"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Dune Messiah", decode[model.Book](t, rr).Title)

	rr = e.do(t, f.outsider.ID, http.MethodPut, idPath("/api/book/{id}/edit", f.book.ID), map[string]any{"description": "x"})
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")
}

func TestAPI_ReadStatus(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)
	path := idPath("/api/book/{id}/status", f.book.ID)

	rr := e.do(t, f.member.ID, http.MethodPut, path, map[string]string{"status": "reading"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, f.member.ID, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.StatusReading, decode[statusResponse](t, rr).Status)

	rr = e.do(t, f.owner.ID, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.StatusNotRead, decode[statusResponse](t, rr).Status, "statuses are per user")

	rr = e.do(t, f.member.ID, http.MethodPut, path, map[string]string{"status": "skimmed"})
	assertErrorBody(t, rr, http.StatusBadRequest, "validation_error")

	rr = e.do(t, f.outsider.ID, http.MethodPut, path, map[string]string{"status": "read"})
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")
	rr = e.do(t, f.outsider.ID, http.MethodGet, path, nil)
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")
}

func TestAPI_DeleteBook(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)
	path := idPath("/api/book/{id}/delete", f.book.ID)

	rr := e.do(t, f.member.ID, http.MethodPost, path, nil)
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")

	rr = e.do(t, f.owner.ID, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, f.owner.ID, http.MethodGet, idPath("/api/book/{id}", f.book.ID), nil)
	assertErrorBody(t, rr, http.StatusNotFound, "not_found")
}

func TestAPI_BookCollections(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)
	e.book(t, f.member, f.lib, "Children of Dune")

	rr := e.do(t, f.member.ID, http.MethodGet, "/api/books?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Book](t, rr), 1)

	rr = e.do(t, f.member.ID, http.MethodGet, "/api/books/search?q=dune", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Book](t, rr), 2)

	rr = e.do(t, f.outsider.ID, http.MethodGet, "/api/books/search?q=dune", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]model.Book](t, rr))

	rr = e.do(t, f.member.ID, http.MethodGet, "/api/users/me/books", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	mine := decode[[]model.BookWithStatus](t, rr)
	require.Len(t, mine, 1)
	assert.Equal(t, "Children of Dune", mine[0].Title)

	rr = e.do(t, f.member.ID, http.MethodGet, "/api/books/popular", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	popular := decode[popularResponse](t, rr)
	require.NotEmpty(t, popular.Genres)
	assert.Equal(t, model.CountedValue{Value: "Sci-Fi", Count: 2}, popular.Genres[0])

	rr = e.do(t, f.member.ID, http.MethodGet, idPath("/api/libraries/{id}/books", f.lib.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Book](t, rr), 2)
}

// =========================================================================
// COMMENT API TESTS
// =========================================================================

func TestAPI_Comments(t *testing.T) {
	e := newTestEnv(t)
	f := newAPIFixture(t, e)
	path := idPath("/api/book/{id}/comments", f.book.ID)

	rr := e.do(t, f.member.ID, http.MethodPost, path, map[string]string{"message": "Loved it"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decode[model.Comment](t, rr)
	assert.Equal(t, "member1", c.Username)

	rr = e.do(t, f.member.ID, http.MethodPost, path, map[string]string{"message": "   "})
	assertErrorBody(t, rr, http.StatusBadRequest, "validation_error")

	rr = e.do(t, f.outsider.ID, http.MethodPost, path, map[string]string{"message": "hi"})
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")

	rr = e.do(t, f.creator.ID, http.MethodPut, idPath("/api/comments/{id}", c.ID), map[string]string{"message": "mine now"})
	assertErrorBody(t, rr, http.StatusForbidden, "forbidden")

	rr = e.do(t, f.member.ID, http.MethodPut, idPath("/api/comments/{id}", c.ID), map[string]string{"message": "Loved it, again"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Loved it, again", decode[model.Comment](t, rr).Message)

	rr = e.do(t, f.owner.ID, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Comment](t, rr), 1)

	rr = e.do(t, f.member.ID, http.MethodDelete, idPath("/api/comments/{id}", c.ID), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	comments, err := e.svc.Comments.List(context.Background(), f.owner.ID, f.book.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestAPI_UnknownRoute(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, 0, http.MethodGet, "/api/nope", nil)
	assertErrorBody(t, rr, http.StatusNotFound, "not_found")
}
