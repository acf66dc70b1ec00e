package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)
	email := "reader@example.com"

	user := &model.User{Username: "reader", Email: &email, PasswordHash: "hash", FirstName: "Ann"}
	require.NoError(t, db.Users().Create(context.Background(), user))

	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := db.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "reader", got.Username)
	require.NotNil(t, got.Email)
	assert.Equal(t, email, *got.Email)
	assert.Equal(t, "Ann", got.FirstName)
	assert.Nil(t, got.GitHubID)
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "reader")

	err := db.Users().Create(context.Background(), &model.User{Username: "reader"})
	require.ErrorIs(t, err, apperror.ErrConflict)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "username", appErr.Field)
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	email := "same@example.com"

	require.NoError(t, db.Users().Create(ctx, &model.User{Username: "first", Email: &email}))
	err := db.Users().Create(ctx, &model.User{Username: "second", Email: &email})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUserCreate_NullEmailsDoNotCollide(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "noemail1")
	createTestUser(t, db, "noemail2")
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestUserLookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	email := "gh@example.com"
	ghID := int64(583231)

	user := &model.User{Username: "octocat", Email: &email, GitHubID: &ghID}
	require.NoError(t, db.Users().Create(ctx, user))

	byName, err := db.Users().GetByUsername(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := db.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byGH, err := db.Users().GetByGitHubID(ctx, ghID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byGH.ID)

	_, err = db.Users().GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.Users().GetByID(ctx, 9999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUserUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "reader")

	user.FirstName = "Ada"
	user.LastName = "Lovelace"
	user.PasswordHash = "new-hash"
	require.NoError(t, db.Users().Update(ctx, user))

	got, err := db.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "Lovelace", got.LastName)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func TestUserUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.Users().Update(context.Background(), &model.User{ID: 404})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUserDelete_KeepsBooksWithNullCreator(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")
	member := createTestUser(t, db, "member")
	lib := createTestLibrary(t, db, "Home", owner)
	require.NoError(t, db.Memberships().Create(ctx, &model.Membership{
		UserID: member.ID, LibraryID: lib.ID, Role: model.RoleMember,
	}))
	book := createTestBook(t, db, lib, member, "dune")
	require.NoError(t, db.Statuses().Upsert(ctx, member.ID, book.ID, model.StatusReading))

	require.NoError(t, db.Users().Delete(ctx, member.ID))

	got, err := db.Books().GetByID(ctx, book.ID)
	require.NoError(t, err, "book must survive its creator")
	assert.Nil(t, got.CreatorID)

	_, err = db.Memberships().Get(ctx, member.ID, lib.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.Statuses().Get(ctx, member.ID, book.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
