// Package handler contains the HTTP handlers: the JSON API under /api and
// the server-rendered HTML pages.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, query, JSON or form body)
//  2. Call the service layer
//  3. Write the response (JSON, a rendered page, or a redirect)
//
// Handlers hold no business rules. Who may do what is decided by the
// services; handlers only translate their errors into status codes or
// flash messages.
package handler

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/flash"
	"github.com/sakif/homelibrary/internal/model"
	"github.com/sakif/homelibrary/internal/repository"
	"github.com/sakif/homelibrary/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames are the templates parsed at start-up, one per page. Each is
// parsed together with base.html, which supplies the layout.
var pageNames = []string{
	"home.html",
	"login.html",
	"register.html",
	"libraries.html",
	"library_form.html",
	"library_search.html",
	"library.html",
	"library_edit.html",
	"books.html",
	"book_form.html",
	"book.html",
	"book_edit.html",
	"profile.html",
	"profile_edit.html",
	"error.html",
}

var templateFuncs = template.FuncMap{
	"statusLabel": func(s model.ReadStatus) string {
		switch s {
		case model.StatusReading:
			return "Reading"
		case model.StatusRead:
			return "Read"
		}
		return "Not read"
	},
	"statuses": func() []model.ReadStatus {
		return []model.ReadStatus{model.StatusNotRead, model.StatusReading, model.StatusRead}
	},
}

// Services groups what the pages need from the service layer.
type Services struct {
	Users     *service.UserService
	Libraries *service.LibraryService
	Books     *service.BookService
	Statuses  *service.StatusService
	Comments  *service.CommentService
	Access    *service.AccessService
}

// PageOptions are the feature switches that change what pages offer.
type PageOptions struct {
	AppName      string
	Registration bool
	GitHub       bool
}

// PageHandler renders the HTML site.
//
// Every state-changing page follows post/redirect/get: the POST handler
// does the work, queues a flash message and redirects, so refreshing the
// result page never re-submits the form.
type PageHandler struct {
	pages   map[string]*template.Template
	svc     Services
	flash   *flash.Store
	session Session
	opts    PageOptions
	logger  *slog.Logger
}

// NewPageHandler parses the embedded templates once. A template error is a
// start-up failure rather than a 500 on first visit.
func NewPageHandler(svc Services, flashes *flash.Store, session Session, opts PageOptions, logger *slog.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &PageHandler{
		pages:   pages,
		svc:     svc,
		flash:   flashes,
		session: session,
		opts:    opts,
		logger:  logger,
	}, nil
}

// page is what every template receives. Page-specific values go in Data.
type page struct {
	Title        string
	AppName      string
	SignedIn     bool
	Registration bool
	GitHub       bool
	CSRF         template.HTML
	Flashes      []flash.Message
	Data         any
}

// render executes into a buffer first so a template error can still become
// a clean 500 instead of half a page.
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	_, signedIn := auth.UserIDFromContext(r.Context())
	p := page{
		Title:        title,
		AppName:      h.opts.AppName,
		SignedIn:     signedIn,
		Registration: h.opts.Registration,
		GitHub:       h.opts.GitHub,
		CSRF:         csrf.TemplateField(r),
		Flashes:      h.flash.Pop(w, r),
		Data:         data,
	}

	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "base", p); err != nil {
		h.logger.Error("rendering template",
			slog.String("template", name),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.Copy(w, &buf)
}

// renderError shows the error page with the status the JSON API would use.
func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := errorStatus(err)
	if status == http.StatusUnauthorized {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.render(w, r, status, "error.html", http.StatusText(status), map[string]any{
		"Status":  status,
		"Message": h.userMessage(err),
	})
}

// fail flashes err and sends the browser back to the form at dest.
func (h *PageHandler) fail(w http.ResponseWriter, r *http.Request, dest string, err error) {
	h.flash.Add(w, r, flash.Error, h.userMessage(err))
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (h *PageHandler) succeed(w http.ResponseWriter, r *http.Request, dest, msg string) {
	h.flash.Add(w, r, flash.Success, msg)
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// userMessage is the text shown for err. Internal errors are logged and
// replaced with a generic line.
func (h *PageHandler) userMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	h.logger.Error("unhandled error", slog.String("error", err.Error()))
	return "Something went wrong. Please try again."
}

// =========================================================================
// HOME AND ACCOUNTS
// =========================================================================

// HandleHome shows the caller's libraries and books, or a welcome page for
// anonymous visitors.
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.render(w, r, http.StatusOK, "home.html", "Welcome", nil)
		return
	}

	user, err := h.svc.Users.Get(r.Context(), userID)
	if err != nil {
		// Token for an account that has since been deleted.
		if errors.Is(err, apperror.ErrNotFound) {
			h.session.clear(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.renderError(w, r, err)
		return
	}
	libs, err := h.svc.Libraries.ListForUser(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	books, err := h.svc.Books.ListByCreator(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "home.html", "Home", map[string]any{
		"User":      user,
		"Libraries": libs,
		"Books":     books,
	})
}

// HandleLoginPage shows the sign-in form.
//
// HTTP: GET /login
func (h *PageHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserIDFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", "Sign in", nil)
}

// HandleLogin signs the user in and sets the cookie.
//
// HTTP: POST /login
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, "/login", err)
		return
	}

	res, err := h.svc.Users.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		h.fail(w, r, "/login", err)
		return
	}

	h.session.set(w, res.Token)
	h.succeed(w, r, "/", "Welcome back, "+res.User.Username+".")
}

// HandleRegisterPage shows the sign-up form.
//
// HTTP: GET /register
func (h *PageHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register.html", "Create an account", nil)
}

// HandleRegister creates the account and signs it in.
//
// HTTP: POST /register
func (h *PageHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, "/register", err)
		return
	}
	if form.Password != form.PasswordConfirmation {
		h.fail(w, r, "/register", apperror.ValidationFailed("password_confirmation", "passwords do not match"))
		return
	}

	user, err := h.svc.Users.Register(r.Context(), service.RegisterInput{
		Username:  form.Username,
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		h.fail(w, r, "/register", err)
		return
	}

	token, err := h.svc.Users.IssueToken(user.ID)
	if err != nil {
		h.fail(w, r, "/login", err)
		return
	}
	h.session.set(w, token)
	h.succeed(w, r, "/", "Account created. Create a library or join one to get started.")
}

// HandleLogout clears the cookie.
//
// HTTP: POST /logout
func (h *PageHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.session.clear(w)
	h.flash.Add(w, r, flash.Info, "You have been signed out.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// =========================================================================
// PROFILE
// =========================================================================

// HandleProfile shows the caller's account.
//
// HTTP: GET /user/me
func (h *PageHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Users.Get(r.Context(), currentUser(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "profile.html", user.Username, user)
}

// HandleProfileEditForm shows the profile form filled with current values.
//
// HTTP: GET /user/edit
func (h *PageHandler) HandleProfileEditForm(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Users.Get(r.Context(), currentUser(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "profile_edit.html", "Edit profile", user)
}

// HandleUpdateProfile applies the profile form. The current password is
// always required.
//
// HTTP: POST /user/edit
func (h *PageHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var form profileForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, "/user/edit", err)
		return
	}
	if form.NewPassword != form.NewPasswordConfirmation {
		h.fail(w, r, "/user/edit", apperror.ValidationFailed("new_password_confirmation", "passwords do not match"))
		return
	}

	_, err := h.svc.Users.UpdateProfile(r.Context(), currentUser(r), service.ProfileUpdate{
		CurrentPassword: form.CurrentPassword,
		Email:           &form.Email,
		FirstName:       &form.FirstName,
		LastName:        &form.LastName,
		NewPassword:     form.NewPassword,
	})
	if err != nil {
		h.fail(w, r, "/user/edit", err)
		return
	}
	h.succeed(w, r, "/user/me", "Profile updated.")
}

// HandleDeleteAccount deletes the caller's account and signs them out.
// Owners of a library are sent back to the profile with the reason.
//
// HTTP: POST /user/delete
func (h *PageHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Users.Delete(r.Context(), currentUser(r)); err != nil {
		h.fail(w, r, "/user/me", err)
		return
	}
	h.session.clear(w)
	h.succeed(w, r, "/login", "Your account has been deleted.")
}

// =========================================================================
// LIBRARIES
// =========================================================================

// HandleLibraries lists the caller's libraries.
//
// HTTP: GET /library/
func (h *PageHandler) HandleLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.svc.Libraries.ListForUser(r.Context(), currentUser(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "libraries.html", "Your libraries", libs)
}

// HandleLibraryForm shows the create form.
//
// HTTP: GET /library/create
func (h *PageHandler) HandleLibraryForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "library_form.html", "New library", nil)
}

// HandleCreateLibrary creates the library and opens it.
//
// HTTP: POST /library/create
func (h *PageHandler) HandleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var form libraryForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, "/library/create", err)
		return
	}

	lib, err := h.svc.Libraries.Create(r.Context(), currentUser(r), service.CreateLibraryInput(form))
	if err != nil {
		h.fail(w, r, "/library/create", err)
		return
	}
	h.succeed(w, r, libraryPath(lib.ID), "Library “"+lib.Name+"” created.")
}

// HandleLibrarySearch finds libraries to join.
//
// HTTP: GET /library/search?q=
func (h *PageHandler) HandleLibrarySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	libs, err := h.svc.Libraries.SearchToJoin(r.Context(), currentUser(r), q)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "library_search.html", "Find a library", map[string]any{
		"Query":   q,
		"Results": libs,
	})
}

// HandleLibrary shows a library with its books and members. ?address=
// narrows the books to one address.
//
// HTTP: GET /library/{id}
func (h *PageHandler) HandleLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	userID := currentUser(r)
	address := r.URL.Query().Get("address")

	lib, err := h.svc.Libraries.Get(r.Context(), userID, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	books, err := h.svc.Libraries.Books(r.Context(), userID, id, address)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	members, err := h.svc.Libraries.Members(r.Context(), userID, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "library.html", lib.Name, map[string]any{
		"Library": lib,
		"IsOwner": lib.Role == model.RoleOwner,
		"Books":   books,
		"Members": members,
		"Address": address,
	})
}

// HandleLibraryEditForm shows the rename form. Only the owner gets it.
//
// HTTP: GET /library/{id}/edit
func (h *PageHandler) HandleLibraryEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	lib, err := h.svc.Libraries.Get(r.Context(), currentUser(r), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if lib.Role != model.RoleOwner {
		h.renderError(w, r, apperror.Forbidden("only the owner can rename this library"))
		return
	}
	h.render(w, r, http.StatusOK, "library_edit.html", "Rename "+lib.Name, lib)
}

// HandleRenameLibrary applies the rename form.
//
// HTTP: POST /library/{id}/edit
func (h *PageHandler) HandleRenameLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	back := libraryPath(id) + "/edit"

	var form libraryEditForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, back, err)
		return
	}
	lib, err := h.svc.Libraries.UpdateName(r.Context(), currentUser(r), id, form.Name)
	if err != nil {
		h.fail(w, r, back, err)
		return
	}
	h.succeed(w, r, libraryPath(lib.ID), "Library renamed to “"+lib.Name+"”.")
}

// HandleJoinLibrary joins the library from the search results.
//
// HTTP: POST /library/{id}/join
func (h *PageHandler) HandleJoinLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	var form joinForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, "/library/search", err)
		return
	}

	lib, err := h.svc.Libraries.Join(r.Context(), currentUser(r), strconv.FormatInt(id, 10), form.Password)
	if err != nil {
		h.fail(w, r, "/library/search", err)
		return
	}
	h.succeed(w, r, libraryPath(lib.ID), "You joined “"+lib.Name+"”.")
}

// HandleLeaveLibrary leaves the library.
//
// HTTP: POST /library/{id}/leave
func (h *PageHandler) HandleLeaveLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := h.svc.Libraries.Leave(r.Context(), currentUser(r), id); err != nil {
		h.fail(w, r, libraryPath(id), err)
		return
	}
	h.succeed(w, r, "/library/", "You left the library.")
}

// HandleDeleteLibrary deletes the library and everything in it.
//
// HTTP: POST /library/{id}/delete
func (h *PageHandler) HandleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := h.svc.Libraries.Delete(r.Context(), currentUser(r), id, false); err != nil {
		h.fail(w, r, libraryPath(id), err)
		return
	}
	h.succeed(w, r, "/library/", "Library deleted.")
}

// =========================================================================
// BOOKS
// =========================================================================

// HandleBooks lists every book the caller can see, or search results when
// ?q= is set.
//
// HTTP: GET /book/
func (h *PageHandler) HandleBooks(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	q := r.URL.Query().Get("q")
	opts := listOptions(r).Normalize(service.DefaultBookLimit, service.MaxBookLimit)

	var (
		books []model.Book
		err   error
	)
	if q != "" {
		books, err = h.svc.Books.Search(r.Context(), userID, q)
	} else {
		books, err = h.svc.Books.ListAccessible(r.Context(), userID, opts)
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "books.html", "Books", map[string]any{
		"Query":      q,
		"Books":      books,
		"HasPrev":    q == "" && opts.Offset > 0,
		"PrevOffset": max(opts.Offset-opts.Limit, 0),
		"HasNext":    q == "" && len(books) == opts.Limit,
		"NextOffset": opts.Offset + opts.Limit,
	})
}

// HandleBookForm shows the add-book form. ?library= preselects a library.
//
// HTTP: GET /book/create
func (h *PageHandler) HandleBookForm(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	libs, err := h.svc.Libraries.ListForUser(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if len(libs) == 0 {
		h.flash.Add(w, r, flash.Warning, "Join or create a library before adding books.")
		http.Redirect(w, r, "/library/", http.StatusSeeOther)
		return
	}
	genres, err := h.svc.Books.PopularGenres(r.Context(), 0)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	authors, err := h.svc.Books.PopularAuthors(r.Context(), 0)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	selected, _ := strconv.ParseInt(r.URL.Query().Get("library"), 10, 64)
	h.render(w, r, http.StatusOK, "book_form.html", "Add a book", map[string]any{
		"Libraries": libs,
		"Selected":  selected,
		"Genres":    genres,
		"Authors":   authors,
	})
}

// HandleCreateBook adds the book and opens it.
//
// HTTP: POST /book/create
func (h *PageHandler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	var form bookForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, "/book/create", err)
		return
	}
	back := "/book/create?library=" + strconv.FormatInt(form.LibraryID, 10)
	status, err := parseStatus(form.Status)
	if err != nil {
		h.fail(w, r, back, err)
		return
	}

	book, err := h.svc.Books.Create(r.Context(), currentUser(r), form.LibraryID, service.BookInput{
		Author:      form.Author,
		Title:       form.Title,
		Description: form.Description,
		Genre:       form.Genre,
		Color:       form.Color,
		LibAddress:  form.LibAddress,
		Room:        form.Room,
		Shelf:       form.Shelf,
		Location:    form.Location,
		Status:      status,
	})
	if err != nil {
		h.fail(w, r, back, err)
		return
	}
	h.succeed(w, r, bookPath(book.ID), "“"+book.Title+"” added.")
}

// HandleBook shows a book with its comments and the caller's status.
//
// HTTP: GET /book/{id}
func (h *PageHandler) HandleBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	userID := currentUser(r)

	detail, err := h.svc.Books.Get(r.Context(), userID, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	comments, err := h.svc.Comments.List(r.Context(), userID, id, repository.ListOptions{})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "book.html", detail.Book.Title, map[string]any{
		"Detail":   detail,
		"Comments": comments,
		"UserID":   userID,
	})
}

// HandleBookEditForm shows only the fields the caller may change.
//
// HTTP: GET /book/{id}/edit
func (h *PageHandler) HandleBookEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	detail, err := h.svc.Books.Get(r.Context(), currentUser(r), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	perms := detail.Permissions
	if !perms.CanEditFull && !perms.CanEditDescription && !perms.CanEditStatus {
		h.renderError(w, r, apperror.Forbidden("you may not edit this book"))
		return
	}
	h.render(w, r, http.StatusOK, "book_edit.html", "Edit "+detail.Book.Title, detail)
}

// HandleUpdateBook applies the edit form.
//
// HTTP: POST /book/{id}/edit
func (h *PageHandler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	back := bookPath(id) + "/edit"

	var form bookEditForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, back, err)
		return
	}
	upd := service.BookUpdate{
		Author:      form.Author,
		Title:       form.Title,
		Description: form.Description,
		Genre:       form.Genre,
		Color:       form.Color,
		LibAddress:  form.LibAddress,
		Room:        form.Room,
		Shelf:       form.Shelf,
		Location:    form.Location,
	}
	if form.Status != nil {
		st, err := parseStatus(*form.Status)
		if err != nil {
			h.fail(w, r, back, err)
			return
		}
		upd.Status = &st
	}

	if _, err := h.svc.Books.Update(r.Context(), currentUser(r), id, upd); err != nil {
		h.fail(w, r, back, err)
		return
	}
	h.succeed(w, r, bookPath(id), "Book updated.")
}

// HandleDeleteBook removes the book and returns to its library.
//
// HTTP: POST /book/{id}/delete
func (h *PageHandler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	userID := currentUser(r)

	detail, err := h.svc.Books.Get(r.Context(), userID, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.svc.Books.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, bookPath(id), err)
		return
	}
	h.succeed(w, r, libraryPath(detail.Book.LibraryID), "“"+detail.Book.Title+"” deleted.")
}

// HandleBookStatus records the caller's read status from the book page.
//
// HTTP: POST /book/{id}/status
func (h *PageHandler) HandleBookStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	userID := currentUser(r)

	var form statusForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, bookPath(id), err)
		return
	}
	status, err := parseStatus(form.Status)
	if err != nil {
		h.fail(w, r, bookPath(id), err)
		return
	}

	perms, err := h.svc.Access.ResolveBookPermissions(r.Context(), userID, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if !perms.CanEditStatus {
		h.fail(w, r, bookPath(id), apperror.Forbidden("you may not change the status of this book"))
		return
	}
	if err := h.svc.Statuses.Update(r.Context(), userID, id, status); err != nil {
		h.fail(w, r, bookPath(id), err)
		return
	}
	h.succeed(w, r, bookPath(id), "Status updated.")
}

// HandleBookComment posts a comment from the book page.
//
// HTTP: POST /book/{id}/comments
func (h *PageHandler) HandleBookComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	var form commentForm
	if err := parseForm(r, &form); err != nil {
		h.fail(w, r, bookPath(id), err)
		return
	}
	if _, err := h.svc.Comments.Create(r.Context(), currentUser(r), id, form.Message); err != nil {
		h.fail(w, r, bookPath(id), err)
		return
	}
	http.Redirect(w, r, bookPath(id)+"#comments", http.StatusSeeOther)
}

// HandleNotFound answers unknown routes: JSON under /api, the 404 page
// everywhere else.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	err := &apperror.AppError{Err: apperror.ErrNotFound, Message: "page not found"}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, h.logger, err)
		return
	}
	h.renderError(w, r, err)
}

func libraryPath(id int64) string { return "/library/" + strconv.FormatInt(id, 10) }
func bookPath(id int64) string    { return "/book/" + strconv.FormatInt(id, 10) }
