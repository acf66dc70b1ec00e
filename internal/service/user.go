package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
)

// badCredentials is returned for both an unknown username and a wrong
// password, so the response doesn't reveal which accounts exist.
const badCredentials = "incorrect username or password"

// UserService handles accounts and the authentication boundary: it is the
// only place raw credentials are checked. Everything past it works with a
// user id.
//
//	UserHandler (HTTP) → UserService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Setting and clearing the cookie is the handler's job.
type UserService struct {
	store     repository.Store
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued token so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a password account. A taken username or email is a
// Conflict.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if user.FirstName, err = limitText("firstname", in.FirstName, MaxBookFieldLength); err != nil {
		return nil, err
	}
	if user.LastName, err = limitText("lastname", in.LastName, MaxBookFieldLength); err != nil {
		return nil, err
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: registering %q: %w", username, err)
	}

	s.logger.Info("user registered", slog.Int64("userID", user.ID), slog.String("username", username))
	return user, nil
}

// Authenticate checks a username and password. Accounts created through
// GitHub have no password and can't sign in this way.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.store.Users().GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(badCredentials)
		}
		return nil, fmt.Errorf("service/user: looking up %q: %w", username, err)
	}
	if !user.HasPassword() {
		return nil, apperror.Unauthorized(badCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.Int64("userID", user.ID))
			return nil, apperror.Unauthorized(badCredentials)
		}
		return nil, fmt.Errorf("service/user: verifying password of %d: %w", user.ID, err)
	}
	return user, nil
}

// Login authenticates and issues a token.
func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// IssueToken signs a token whose subject is userID.
func (s *UserService) IssueToken(userID int64) (string, error) {
	token, err := s.tokens.Generate(userID)
	if err != nil {
		return "", fmt.Errorf("service/user: generating token for %d: %w", userID, err)
	}
	return token, nil
}

// VerifyToken returns the user id a token was issued for. Expired and
// malformed tokens are both Unauthorized.
func (s *UserService) VerifyToken(token string) (int64, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return 0, apperror.Unauthorized("token expired")
		}
		return 0, apperror.Unauthorized("invalid token")
	}
	return userID, nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	return s.store.Users().GetByID(ctx, userID)
}

// UserExists lets the auth middleware reject tokens of deleted accounts.
func (s *UserService) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, err := s.store.Users().GetByID(ctx, userID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// ProfileUpdate changes profile fields. nil fields are kept; an empty
// NewPassword keeps the current password.
type ProfileUpdate struct {
	CurrentPassword string
	Email           *string
	FirstName       *string
	LastName        *string
	NewPassword     string
}

// UpdateProfile requires the current password for accounts that have one.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (*model.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.HasPassword() {
		if err := s.passwords.Verify(user.PasswordHash, upd.CurrentPassword); err != nil {
			if errors.Is(err, auth.ErrPasswordMismatch) {
				return nil, apperror.Unauthorized("current password is incorrect")
			}
			return nil, fmt.Errorf("service/user: verifying password of %d: %w", userID, err)
		}
	}

	if upd.Email != nil {
		if user.Email, err = validateEmail(*upd.Email); err != nil {
			return nil, err
		}
	}
	if upd.FirstName != nil {
		if user.FirstName, err = limitText("firstname", *upd.FirstName, MaxBookFieldLength); err != nil {
			return nil, err
		}
	}
	if upd.LastName != nil {
		if user.LastName, err = limitText("lastname", *upd.LastName, MaxBookFieldLength); err != nil {
			return nil, err
		}
	}
	if upd.NewPassword != "" {
		if user.PasswordHash, err = s.hashPassword(upd.NewPassword); err != nil {
			return nil, err
		}
	}

	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: updating %d: %w", userID, err)
	}
	s.logger.Info("profile updated", slog.Int64("userID", userID))
	return user, nil
}

// Delete removes the account with its memberships, read statuses and
// comments. Books the user added stay in their libraries without a creator.
//
// A user who still owns a library must transfer or delete it first;
// otherwise the library would be left without an owner.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		if _, err := r.Users().GetByID(ctx, userID); err != nil {
			return err
		}
		owned, err := r.Libraries().CountOwnedBy(ctx, userID)
		if err != nil {
			return err
		}
		if owned > 0 {
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: fmt.Sprintf("you still own %d %s; transfer or delete them first", owned, plural(owned, "library", "libraries")),
			}
		}

		if err := r.Comments().DeleteByUser(ctx, userID); err != nil {
			return err
		}
		if err := r.Statuses().DeleteByUser(ctx, userID); err != nil {
			return err
		}
		if err := r.Memberships().DeleteByUser(ctx, userID); err != nil {
			return err
		}
		if err := r.Books().ClearCreator(ctx, userID); err != nil {
			return err
		}
		return r.Users().Delete(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("service/user: deleting %d: %w", userID, err)
	}

	s.logger.Info("user deleted", slog.Int64("userID", userID))
	return nil
}

// LoginWithGitHub finds the local account linked to a GitHub profile, or
// creates one, and issues a token.
//
// The local username is derived from the GitHub login and gets a numeric
// suffix when taken. The GitHub email is only stored if no other account
// uses it.
func (s *UserService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/user: GitHub user must not be empty")
	}

	user, err := s.store.Users().GetByGitHubID(ctx, gh.ID)
	if err == nil {
		s.logger.Info("user authenticated via GitHub", slog.Int64("userID", user.ID))
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/user: looking up GitHub id %d: %w", gh.ID, err)
	}

	githubID := gh.ID
	user = &model.User{GitHubID: &githubID}
	user.FirstName, user.LastName = splitName(gh.Name)

	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		username, err := freeUsername(ctx, r.Users(), gh.Login)
		if err != nil {
			return err
		}
		user.Username = username

		if email, _ := validateEmail(gh.Email); email != nil {
			_, err := r.Users().GetByEmail(ctx, *email)
			switch {
			case errors.Is(err, apperror.ErrNotFound):
				user.Email = email
			case err != nil:
				return err
			}
		}
		return r.Users().Create(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("service/user: creating account for GitHub user %q: %w", gh.Login, err)
	}

	s.logger.Info("user registered via GitHub",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

func (s *UserService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return "", fmt.Errorf("service/user: hashing password: %w", err)
	}
	return hash, nil
}

func validateUsername(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }) {
		return "", apperror.ValidationFailed("username", "username must not contain spaces")
	}
	return s, nil
}

// validateEmail returns nil for an empty address.
func validateEmail(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.Contains(s, "@") || len(s) > 254 {
		return nil, apperror.ValidationFailed("email", "email address is not valid")
	}
	return &s, nil
}

// freeUsername turns a GitHub login into a valid local username that
// nobody holds yet: "octocat", then "octocat2", "octocat3", ...
func freeUsername(ctx context.Context, users repository.UserRepository, login string) (string, error) {
	base := strings.ReplaceAll(strings.TrimSpace(login), " ", "-")
	if utf8.RuneCountInString(base) < MinUsernameLength {
		base = "github-" + base
	}

	for n := 1; n < 1000; n++ {
		suffix := ""
		if n > 1 {
			suffix = strconv.Itoa(n)
		}
		candidate := truncateRunes(base, MaxUsernameLength-len(suffix)) + suffix

		_, err := users.GetByUsername(ctx, candidate)
		if errors.Is(err, apperror.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("service/user: no free username for GitHub login %q", login)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
