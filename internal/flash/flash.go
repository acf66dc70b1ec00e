// Package flash implements one-shot notices shown on the next rendered page
// ("Library created", "Wrong password").
//
// HOW IT WORKS:
// A handler that redirects calls Add. The messages ride along in a signed
// cookie. The page that renders next calls Pop, which returns them and
// deletes the cookie, so each message is shown exactly once.
//
// The cookie is signed, not encrypted: users can read their own flash text
// but cannot forge it.
package flash

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
)

const cookieName = "flash"

// maxMessages caps what one cookie carries; older messages are dropped.
const maxMessages = 5

// Category selects how a message is styled.
type Category string

const (
	Success Category = "success"
	Error   Category = "error"
	Warning Category = "warning"
	Info    Category = "info"
)

// Message is one notice.
type Message struct {
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// Store reads and writes flash cookies.
type Store struct {
	codec  *securecookie.SecureCookie
	secure bool
	logger *slog.Logger
}

// New returns a Store signing cookies with secret. Set secure when the site
// is served over HTTPS.
func New(secret string, secure bool, logger *slog.Logger) *Store {
	codec := securecookie.New([]byte(secret), nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(600)
	return &Store{codec: codec, secure: secure, logger: logger}
}

// Add queues a message for the next page. Messages already queued on this
// request are kept.
func (s *Store) Add(w http.ResponseWriter, r *http.Request, cat Category, text string) {
	msgs := s.read(r)
	msgs = append(msgs, Message{Category: cat, Text: text})
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	value, err := s.codec.Encode(cookieName, msgs)
	if err != nil {
		s.logger.Error("flash: encoding cookie", slog.String("error", err.Error()))
		return
	}
	http.SetCookie(w, s.cookie(value, 0))
}

// Pop returns the pending messages and clears them.
func (s *Store) Pop(w http.ResponseWriter, r *http.Request) []Message {
	if _, err := r.Cookie(cookieName); err != nil {
		return nil
	}
	msgs := s.read(r)
	http.SetCookie(w, s.cookie("", -1))
	return msgs
}

// read decodes the request cookie. A missing, expired or tampered cookie
// yields no messages.
func (s *Store) read(r *http.Request) []Message {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := s.codec.Decode(cookieName, c.Value, &msgs); err != nil {
		s.logger.Debug("flash: discarding cookie", slog.String("error", err.Error()))
		return nil
	}
	return msgs
}

func (s *Store) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
