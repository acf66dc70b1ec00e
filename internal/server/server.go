// Package server is the composition root: it opens the database, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → sqlite.DB → services → handlers → chi routes
//
// Each layer only receives what it needs. Handlers get services, services
// get the repository.Store interface, and nothing below this package knows
// how the others were constructed.
package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"

	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/config"
	"github.com/sakif/homelibrary/internal/flash"
	"github.com/sakif/homelibrary/internal/handler"
	"github.com/sakif/homelibrary/internal/middleware"
	sqliteRepo "github.com/sakif/homelibrary/internal/repository/sqlite"
	"github.com/sakif/homelibrary/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database and the rate limiters; Start releases them on
// shutdown.
type Server struct {
	router          *chi.Mux
	config          config.Config
	logger          *slog.Logger
	db              *sqliteRepo.DB
	registerLimiter *middleware.RateLimiter
	loginLimiter    *middleware.RateLimiter
}

// New opens the database and wires every route.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	if cfg.RateLimitEnabled {
		s.registerLimiter = middleware.NewRateLimiter(middleware.RegisterRate, middleware.RegisterBurst, logger)
		s.loginLimiter = middleware.NewRateLimiter(middleware.LoginRate, middleware.LoginBurst, logger)
	}

	if err := s.setupRoutes(); err != nil {
		s.release()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts the middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz          → liveness
//	     /api/...          → JSON API (CORS, Bearer or cookie auth)
//	     /auth/github/...  → OAuth sign-in, when configured
//	     everything else   → HTML pages (CSRF-protected forms)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can print it; RealIP before anything that
// looks at the client address (the rate limiter); Recoverer inside Logger
// so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.SecretKey, cfg.TokenTTL, cfg.AppName)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	svc := handler.Services{
		Users:     service.NewUserService(s.db, tokens, passwords, s.logger),
		Libraries: service.NewLibraryService(s.db, passwords, s.logger),
		Books:     service.NewBookService(s.db, s.logger),
		Statuses:  service.NewStatusService(s.db, s.logger),
		Comments:  service.NewCommentService(s.db, s.logger),
		Access:    service.NewAccessService(s.db),
	}
	session := handler.Session{Secure: cfg.SecureCookies, TTL: cfg.TokenTTL}

	pages, err := handler.NewPageHandler(
		svc,
		flash.New(cfg.SecretKey, cfg.SecureCookies, s.logger),
		session,
		handler.PageOptions{AppName: cfg.AppName, Registration: cfg.RegistrationEnabled, GitHub: cfg.GitHubEnabled()},
		s.logger,
	)
	if err != nil {
		return err
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
	s.router.NotFound(pages.HandleNotFound)

	s.router.Route("/api", func(r chi.Router) {
		s.mountAPI(r, svc, tokens, session)
	})

	if cfg.GitHubEnabled() {
		gh := handler.NewAuthHandler(
			auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL),
			svc.Users, session, s.logger,
		)
		s.router.Get("/auth/github/login", gh.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", gh.HandleGitHubCallback)
	}

	s.router.Group(func(r chi.Router) {
		s.mountPages(r, pages, tokens, svc.Users)
	})

	return nil
}

// rateLimited wraps h with rl when rate limiting is enabled. The API and the
// HTML form for the same action share one limiter.
func rateLimited(rl *middleware.RateLimiter, h http.HandlerFunc) http.Handler {
	if rl == nil {
		return h
	}
	return rl.Limit(h)
}

func (s *Server) mountAPI(r chi.Router, svc handler.Services, tokens *auth.TokenService, session handler.Session) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	users := handler.NewUserHandler(svc.Users, svc.Books, session, s.logger)
	libraries := handler.NewLibraryHandler(svc.Libraries, s.logger)
	books := handler.NewBookHandler(svc.Books, svc.Statuses, svc.Comments, svc.Access, s.logger)
	comments := handler.NewCommentHandler(svc.Comments, s.logger)

	if s.config.RegistrationEnabled {
		r.Method(http.MethodPost, "/users/register", rateLimited(s.registerLimiter, users.HandleRegister))
	}
	r.Method(http.MethodPost, "/users/login", rateLimited(s.loginLimiter, users.HandleLogin))
	r.Post("/users/logout", users.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, svc.Users))

		r.Get("/users/me", users.HandleMe)
		r.Put("/users/me", users.HandleUpdateMe)
		r.Delete("/users/me", users.HandleDeleteMe)
		r.Get("/users/me/books", users.HandleMyBooks)

		r.Get("/libraries", libraries.HandleList)
		r.Post("/libraries", libraries.HandleCreate)
		r.Post("/libraries/join", libraries.HandleJoin)
		r.Get("/libraries/search", libraries.HandleSearch)
		r.Put("/libraries/edit_name", libraries.HandleRename)
		r.Get("/libraries/slug/{slug}", libraries.HandleGetBySlug)
		r.Get("/libraries/{id}", libraries.HandleGet)
		r.Delete("/libraries/{id}", libraries.HandleDelete)
		r.Get("/libraries/{id}/books", libraries.HandleBooks)
		r.Get("/libraries/{id}/members", libraries.HandleMembers)
		r.Post("/libraries/{id}/leave", libraries.HandleLeave)
		r.Post("/libraries/{id}/transfer", libraries.HandleTransfer)

		r.Get("/books", books.HandleList)
		r.Post("/books", books.HandleCreate)
		r.Get("/books/search", books.HandleSearch)
		r.Get("/books/popular", books.HandlePopular)

		r.Get("/book/{id}", books.HandleGet)
		r.Put("/book/{id}/edit", books.HandleUpdate)
		r.Post("/book/{id}/delete", books.HandleDelete)
		r.Get("/book/{id}/permissions", books.HandlePermissions)
		r.Get("/book/{id}/status", books.HandleGetStatus)
		r.Put("/book/{id}/status", books.HandleUpdateStatus)
		r.Get("/book/{id}/comments", books.HandleListComments)
		r.Post("/book/{id}/comments", books.HandleCreateComment)

		r.Put("/comments/{id}", comments.HandleEdit)
		r.Delete("/comments/{id}", comments.HandleDelete)
	})
}

func (s *Server) mountPages(r chi.Router, pages *handler.PageHandler, tokens *auth.TokenService, users auth.UserChecker) {
	// The CSRF key is derived from the app secret so it survives restarts
	// without a second setting.
	key := sha256.Sum256([]byte("csrf:" + s.config.SecretKey))
	if !s.config.SecureCookies {
		// gorilla/csrf assumes HTTPS and checks the Referer unless the
		// request is marked as plaintext.
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, csrf.PlaintextHTTPRequest(req))
			})
		})
	}
	r.Use(csrf.Protect(key[:],
		csrf.Secure(s.config.SecureCookies),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			reason := "unknown"
			if err := csrf.FailureReason(req); err != nil {
				reason = err.Error()
			}
			s.logger.Warn("csrf check failed", slog.String("path", req.URL.Path), slog.String("reason", reason))
			http.Error(w, "Forbidden: the form has expired, go back and try again", http.StatusForbidden)
		})),
	))

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens, users))
		r.Get("/", pages.HandleHome)
		r.Get("/login", pages.HandleLoginPage)
		r.Method(http.MethodPost, "/login", rateLimited(s.loginLimiter, pages.HandleLogin))
		r.Post("/logout", pages.HandleLogout)
		if s.config.RegistrationEnabled {
			r.Get("/register", pages.HandleRegisterPage)
			r.Method(http.MethodPost, "/register", rateLimited(s.registerLimiter, pages.HandleRegister))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuthRedirect(tokens, users, "/login"))

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
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests (up to 30s)
//  3. Stop the rate limiters' cleanup goroutines
//  4. Close the database (flushes the WAL, releases the file lock)
func (s *Server) Start(ctx context.Context) error {
	defer s.release()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DatabasePath),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close releases resources for a Server that was never started.
func (s *Server) Close() error {
	return s.release()
}

func (s *Server) release() error {
	for _, rl := range []*middleware.RateLimiter{s.registerLimiter, s.loginLimiter} {
		if rl != nil {
			rl.Stop()
		}
	}
	return s.db.Close()
}
