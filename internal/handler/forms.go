package handler

import (
	"net/http"

	"github.com/gorilla/schema"

	"github.com/sakif/homelibrary/internal/apperror"
)

// formDecoder maps POSTed form values onto structs tagged `schema:"..."`.
// Unknown keys are ignored because every form also carries the CSRF token.
var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// parseForm decodes the request's form body into dst.
func parseForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return apperror.ValidationFailed("form", "malformed form data")
	}
	if err := formDecoder.Decode(dst, r.PostForm); err != nil {
		return apperror.ValidationFailed("form", "invalid form data")
	}
	return nil
}

type loginForm struct {
	Username string `schema:"username"`
	Password string `schema:"password"`
}

type registerForm struct {
	Username             string `schema:"username"`
	Email                string `schema:"email"`
	Password             string `schema:"password"`
	PasswordConfirmation string `schema:"password_confirmation"`
	FirstName            string `schema:"firstname"`
	LastName             string `schema:"lastname"`
}

// profileForm always carries every field the edit page renders. An empty
// new password keeps the current one.
type profileForm struct {
	CurrentPassword         string `schema:"current_password"`
	Email                   string `schema:"email"`
	FirstName               string `schema:"firstname"`
	LastName                string `schema:"lastname"`
	NewPassword             string `schema:"new_password"`
	NewPasswordConfirmation string `schema:"new_password_confirmation"`
}

type libraryForm struct {
	Name     string `schema:"name"`
	Password string `schema:"password"`
}

type libraryEditForm struct {
	Name string `schema:"name"`
}

type joinForm struct {
	Password string `schema:"password"`
}

type bookForm struct {
	LibraryID   int64  `schema:"library_id"`
	Author      string `schema:"author"`
	Title       string `schema:"title"`
	Description string `schema:"description"`
	Genre       string `schema:"genre"`
	Color       string `schema:"color"`
	LibAddress  string `schema:"lib_address"`
	Room        string `schema:"room"`
	Shelf       string `schema:"shelf"`
	Location    string `schema:"location"`
	Status      string `schema:"status"`
}

// bookEditForm uses pointers so fields the page didn't render (because the
// user can't edit them) stay nil and are left alone.
type bookEditForm struct {
	Author      *string `schema:"author"`
	Title       *string `schema:"title"`
	Description *string `schema:"description"`
	Genre       *string `schema:"genre"`
	Color       *string `schema:"color"`
	LibAddress  *string `schema:"lib_address"`
	Room        *string `schema:"room"`
	Shelf       *string `schema:"shelf"`
	Location    *string `schema:"location"`
	Status      *string `schema:"status"`
}

type statusForm struct {
	Status string `schema:"status"`
}

type commentForm struct {
	Message string `schema:"message"`
}
