package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CookieName is the cookie the login handlers set. Its value is
// "Bearer <jwt>"; a bare token is accepted too.
const CookieName = "access_token"

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the values stored under it.
type contextKey string

const userIDKey contextKey = "userID"

// ErrUnknownUser means the token verified but its account has since been
// deleted.
var ErrUnknownUser = errors.New("auth: account no longer exists")

// UserChecker confirms that a token's subject still has an account. A JWT
// stays valid until it expires, so the signature alone can't tell.
type UserChecker interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

// RequireAuth enforces authentication on JSON API routes.
//
// A missing, malformed or expired token, or one whose account was deleted,
// gets 401 with the standard error body; the handler never runs. A nil users
// skips the account check.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService, users UserChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(r, tokens, users)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				if !isAuthFailure(err) {
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal_error","message":"an unexpected error occurred"}` + "\n"))
					return
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// RequireAuthRedirect is the HTML-page variant of RequireAuth: instead of a
// 401 it sends the browser to loginPath. A cookie naming a deleted account
// is cleared on the way.
func RequireAuthRedirect(tokens *TokenService, users UserChecker, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(r, tokens, users)
			switch {
			case errors.Is(err, ErrUnknownUser):
				expireCookie(w)
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			case err != nil && !isAuthFailure(err):
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			case err != nil:
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth extracts the user identity if a valid token is present, but
// does NOT block the request if it's missing or invalid. Used on the home
// and login pages, which render differently for signed-in users.
func OptionalAuth(tokens *TokenService, users UserChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := authenticate(r, tokens, users); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying userID. Handler tests use it to
// skip token handling.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. It returns (0, false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

// TokenFromRequest finds the raw JWT on a request. The Authorization header
// wins over the cookie when both are present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := cutBearer(h); ok {
			return tok
		}
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	if tok, ok := cutBearer(cookie.Value); ok {
		return tok
	}
	return strings.TrimSpace(cookie.Value)
}

// CookieValue formats a token the way the access_token cookie stores it.
func CookieValue(token string) string {
	return "Bearer " + token
}

func cutBearer(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len("Bearer ") || !strings.EqualFold(s[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(s[len("Bearer "):]), true
}

func extractUserID(r *http.Request, tokens *TokenService) (int64, error) {
	tok := TokenFromRequest(r)
	if tok == "" {
		return 0, ErrTokenInvalid
	}
	return tokens.Validate(tok)
}

func authenticate(r *http.Request, tokens *TokenService, users UserChecker) (int64, error) {
	userID, err := extractUserID(r, tokens)
	if err != nil || users == nil {
		return userID, err
	}
	ok, err := users.UserExists(r.Context(), userID)
	if err != nil {
		return 0, fmt.Errorf("auth: checking user %d: %w", userID, err)
	}
	if !ok {
		return 0, ErrUnknownUser
	}
	return userID, nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrUnknownUser)
}

func expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
