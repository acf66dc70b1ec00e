package handler

import (
	"net/http"
	"time"

	"github.com/sakif/homelibrary/internal/auth"
)

// Session sets and clears the access_token cookie shared by the JSON API
// and the HTML pages.
//
// The cookie is HttpOnly so page scripts can't read the token, and
// SameSite=Lax so it isn't sent on cross-site POSTs. Secure is on whenever
// the site is served over HTTPS.
type Session struct {
	Secure bool
	TTL    time.Duration
}

func (s Session) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    auth.CookieValue(token),
		Path:     "/",
		MaxAge:   int(s.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s Session) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
