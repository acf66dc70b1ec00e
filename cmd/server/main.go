// Package main is the entry point for the home library server.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (config.yaml, .env, environment, flags)
//  2. Create the logger
//  3. Hand everything to internal/server
//
// COMMANDS:
//
//	homelibrary            serve (default)
//	homelibrary serve      run the HTTP server
//	homelibrary migrate    apply pending database migrations and exit
//	homelibrary version    print the build version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/homelibrary/internal/config"
	sqliteRepo "github.com/sakif/homelibrary/internal/repository/sqlite"
	"github.com/sakif/homelibrary/internal/server"
)

// version is set at build time:
//
//	go build -ldflags "-X main.version=1.2.0" ./cmd/server
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "homelibrary",
		Short:         "Home library server: shared catalogues for the books in your home",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := root.PersistentFlags()
	flags.Int("port", 8000, "HTTP port to listen on")
	flags.String("database-path", "data/homelibrary.db", "path to the SQLite database file")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
	root.RunE = serve.RunE

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(root)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "homelibrary %s\n", version)
			},
		},
	)
	return root
}

// setup loads the configuration and builds the logger both commands share.
func setup(root *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{
		EnvFile: ".env",
		Flags:   root.PersistentFlags(),
	})
	if err != nil {
		return config.Config{}, nil, err
	}

	// Log levels, least to most severe: Debug → Info → Warn → Error.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := ensureDir(cfg.DatabasePath); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runServe(ctx context.Context, root *cobra.Command) error {
	cfg, logger, err := setup(root)
	if err != nil {
		return err
	}
	if !cfg.GitHubEnabled() {
		logger.Info("GitHub sign-in disabled (set HOMELIB_GITHUB_CLIENT_ID and HOMELIB_GITHUB_CLIENT_SECRET to enable)")
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Ctrl+C or SIGTERM cancels ctx; Start then shuts down gracefully.
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}

func runMigrate(root *cobra.Command) error {
	cfg, logger, err := setup(root)
	if err != nil {
		return err
	}

	db, err := sqliteRepo.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Migrate()
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Int("count", n), slog.String("database", cfg.DatabasePath))
	return nil
}

// ensureDir creates the database's parent directory (like `mkdir -p`).
// In-memory databases have none.
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
