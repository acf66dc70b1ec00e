package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
)

// =========================================================================
// REGISTER / LOGIN TESTS
// =========================================================================

func TestRegister_Success(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	u, err := e.users.Register(ctx, RegisterInput{
		Username:  " reader ",
		Email:     "reader@example.com",
		Password:  testPassword,
		FirstName: "Ada",
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "reader", u.Username)
	require.NotNil(t, u.Email)
	assert.Equal(t, "reader@example.com", *u.Email)
	assert.NotEqual(t, testPassword, u.PasswordHash)
	assert.Equal(t, "Ada", u.FirstName)
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := map[string]RegisterInput{
		"short username":   {Username: "abcd", Password: testPassword},
		"long username":    {Username: strings.Repeat("a", MaxUsernameLength+1), Password: testPassword},
		"username spaces":  {Username: "two words", Password: testPassword},
		"short password":   {Username: "reader", Password: "1234"},
		"long password":    {Username: "reader", Password: strings.Repeat("p", auth.MaxPasswordBytes+1)},
		"email without at": {Username: "reader", Email: "reader.example.com", Password: testPassword},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := e.users.Register(ctx, in)
			assertKind(t, err, apperror.ErrValidation)
		})
	}
}

func TestRegister_Conflicts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.users.Register(ctx, RegisterInput{Username: "reader", Email: "r@example.com", Password: testPassword})
	require.NoError(t, err)

	_, err = e.users.Register(ctx, RegisterInput{Username: "reader", Password: testPassword})
	assertKind(t, err, apperror.ErrConflict)

	_, err = e.users.Register(ctx, RegisterInput{Username: "reader2", Email: "r@example.com", Password: testPassword})
	assertKind(t, err, apperror.ErrConflict)

	// No email at all never conflicts.
	_, err = e.users.Register(ctx, RegisterInput{Username: "reader3", Password: testPassword})
	require.NoError(t, err)
	_, err = e.users.Register(ctx, RegisterInput{Username: "reader4", Password: testPassword})
	require.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.register(t, "reader")

	got, err := e.users.Authenticate(ctx, "reader", testPassword)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, wrongPw := e.users.Authenticate(ctx, "reader", "nope-nope")
	_, unknown := e.users.Authenticate(ctx, "nobody", testPassword)
	assertKind(t, wrongPw, apperror.ErrUnauthorized)
	assertKind(t, unknown, apperror.ErrUnauthorized)
	assert.Equal(t, wrongPw.Error(), unknown.Error(), "same message either way")
}

func TestLoginAndVerifyToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.register(t, "reader")

	res, err := e.users.Login(ctx, "reader", testPassword)
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	require.NotEmpty(t, res.Token)

	id, err := e.users.VerifyToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	_, err = e.users.VerifyToken("not.a.token")
	assertKind(t, err, apperror.ErrUnauthorized)

	_, err = e.users.Login(ctx, "reader", "wrong-pass")
	assertKind(t, err, apperror.ErrUnauthorized)
}

// =========================================================================
// PROFILE TESTS
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.register(t, "reader")

	_, err := e.users.UpdateProfile(ctx, u.ID, ProfileUpdate{CurrentPassword: "wrong", FirstName: ptr("X")})
	assertKind(t, err, apperror.ErrUnauthorized)

	got, err := e.users.UpdateProfile(ctx, u.ID, ProfileUpdate{
		CurrentPassword: testPassword,
		FirstName:       ptr(" Ada "),
		LastName:        ptr("Lovelace"),
		Email:           ptr("ada@example.com"),
		NewPassword:     "new-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "Lovelace", got.LastName)

	_, err = e.users.Authenticate(ctx, "reader", testPassword)
	assertKind(t, err, apperror.ErrUnauthorized)
	_, err = e.users.Authenticate(ctx, "reader", "new-secret")
	require.NoError(t, err)

	stored, err := e.users.Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Email)
	assert.Equal(t, "ada@example.com", *stored.Email)

	got, err = e.users.UpdateProfile(ctx, u.ID, ProfileUpdate{CurrentPassword: "new-secret", Email: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, got.Email, "empty email clears it")
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDeleteUser_RefusedWhileOwningLibraries(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.register(t, "owner1")
	e.library(t, owner, "Home", "")

	assertKind(t, e.users.Delete(ctx, owner.ID), apperror.ErrConflict)

	_, err := e.users.Get(ctx, owner.ID)
	require.NoError(t, err, "user still exists")
}

func TestDeleteUser_KeepsBooks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	f := newBookFixture(t, e)
	_, err := e.comments.Create(ctx, f.creator.ID, f.book.ID, "mine")
	require.NoError(t, err)

	require.NoError(t, e.users.Delete(ctx, f.creator.ID))

	_, err = e.users.Get(ctx, f.creator.ID)
	assertKind(t, err, apperror.ErrNotFound)

	book, err := e.db.Books().GetByID(ctx, f.book.ID)
	require.NoError(t, err, "book survives its creator")
	assert.Nil(t, book.CreatorID)

	_, ok, err := e.access.IsLibraryMember(ctx, f.creator.ID, f.lib.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	comments, err := e.comments.List(ctx, f.owner.ID, f.book.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, comments)

	detail, err := e.books.Get(ctx, f.owner.ID, f.book.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Creator)
	assert.True(t, detail.Permissions.CanDelete, "owner can still manage orphaned books")

	assertKind(t, e.users.Delete(ctx, f.creator.ID), apperror.ErrNotFound)
}

func TestUserExists_FalseAfterDelete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.register(t, "reader1")

	ok, err := e.users.UserExists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.users.Delete(ctx, u.ID))

	ok, err = e.users.UserExists(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// A write on behalf of the deleted user hits the foreign key and comes
	// back typed instead of as a raw driver error.
	owner := e.register(t, "owner1")
	lib := e.library(t, owner, "Home", "")
	book := e.book(t, owner, lib, "Frank Herbert", "Dune")
	assertKind(t, e.db.Statuses().Upsert(ctx, u.ID, book.ID, model.StatusRead), apperror.ErrNotFound)
}

// =========================================================================
// GITHUB TESTS
// =========================================================================

func TestLoginWithGitHub_CreatesThenReuses(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	gh := &auth.GitHubUser{ID: 583231, Login: "octocat", Email: "octo@example.com", Name: "Mona Lisa Octocat"}

	first, err := e.users.LoginWithGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "octocat", first.User.Username)
	assert.Equal(t, "Mona", first.User.FirstName)
	assert.Equal(t, "Lisa Octocat", first.User.LastName)
	assert.NotEmpty(t, first.Token)
	assert.False(t, first.User.HasPassword())

	second, err := e.users.LoginWithGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	_, err = e.users.Authenticate(ctx, "octocat", "")
	assertKind(t, err, apperror.ErrUnauthorized)
}

func TestLoginWithGitHub_UsernameCollisions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "octocat")
	_, err := e.users.Register(ctx, RegisterInput{Username: "taken", Email: "octo@example.com", Password: testPassword})
	require.NoError(t, err)

	res, err := e.users.LoginWithGitHub(ctx, &auth.GitHubUser{ID: 1, Login: "octocat", Email: "octo@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "octocat2", res.User.Username)
	assert.Nil(t, res.User.Email, "email already used elsewhere is not copied")

	short, err := e.users.LoginWithGitHub(ctx, &auth.GitHubUser{ID: 2, Login: "bo"})
	require.NoError(t, err)
	assert.Equal(t, "github-bo", short.User.Username)

	long, err := e.users.LoginWithGitHub(ctx, &auth.GitHubUser{ID: 3, Login: "a-very-long-github-login"})
	require.NoError(t, err)
	assert.Len(t, long.User.Username, MaxUsernameLength)
}

func TestFreeUsername(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for _, name := range []string{"abcdefghijklmno", "abcdefghijklmn2"} {
		require.NoError(t, e.db.Users().Create(ctx, &model.User{Username: name}))
	}

	got, err := freeUsername(ctx, e.db.Users(), "abcdefghijklmnopq")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmn3", got, "truncated to make room for the suffix")
}
