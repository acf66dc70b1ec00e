// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the server builds without CGo and
// cross-compiles anywhere Go does.
//
// SCHEMA MIGRATIONS:
// The schema lives in migrations/*.sql, embedded into the binary and applied
// with rubenv/sql-migrate. Applied migrations are recorded in the
// schema_migrations table, so New is safe to call against an existing file.
//
// CONNECTIONS AND TRANSACTIONS:
// The pool is capped at one connection. SQLite serialises writers anyway, and
// ":memory:" databases exist per connection, so a larger pool would hand tests
// empty databases. Every repository runs its statements through a querier,
// which is either the pool itself or an open *sql.Tx.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationTable = "schema_migrations"

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repos binds every repository to one querier.
type repos struct {
	q querier
}

func (r repos) Users() repository.UserRepository             { return &UserDB{q: r.q} }
func (r repos) Libraries() repository.LibraryRepository      { return &LibraryDB{q: r.q} }
func (r repos) Memberships() repository.MembershipRepository { return &MembershipDB{q: r.q} }
func (r repos) Books() repository.BookRepository             { return &BookDB{q: r.q} }
func (r repos) Statuses() repository.ReadStatusRepository    { return &StatusDB{q: r.q} }
func (r repos) Comments() repository.CommentRepository       { return &CommentDB{q: r.q} }

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	repos
	conn *sql.DB
}

var _ repository.Store = (*DB)(nil)

// New opens the database at dbPath and brings the schema up to date.
//
// dbPath examples:
//   - "data/homelibrary.db"  → file-based database (persistent)
//   - ":memory:"             → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open opens and configures the connection without touching the schema.
// The migrate command uses it to report how many migrations ran.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed during a write. Foreign keys are off by
	// default in SQLite; the cascades in the schema depend on them.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	return &DB{repos: repos{q: conn}, conn: conn}, nil
}

// Migrate applies any pending migrations and reports how many ran.
func (db *DB) Migrate() (int, error) {
	migrate.SetTable(migrationTable)
	src := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}

	n, err := migrate.Exec(db.conn, "sqlite3", src, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return n, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn in a transaction, committing only if fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(repos{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// helpers shared by the per-table files
// ---------------------------------------------------------------------------

// now returns the current time truncated to microseconds in UTC, so values
// read back compare equal to what was written.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// uniqueColumn extracts the offending column from a message such as
// "UNIQUE constraint failed: user.username". Composite keys yield the
// first column.
func uniqueColumn(err error) string {
	msg := err.Error()
	i := strings.Index(msg, "UNIQUE constraint failed: ")
	if i < 0 {
		return ""
	}
	cols := msg[i+len("UNIQUE constraint failed: "):]
	if j := strings.IndexAny(cols, ", )"); j >= 0 {
		cols = cols[:j]
	}
	if k := strings.LastIndex(cols, "."); k >= 0 {
		cols = cols[k+1:]
	}
	return cols
}

// isForeignKeyViolation reports whether err came from a FOREIGN KEY
// constraint: the row refers to a user, library or book that is gone.
func isForeignKeyViolation(err error) bool {
	var se *sqlitedrv.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// translateWriteErr turns constraint violations into typed app errors and
// wraps everything else with the operation name.
//
//	UNIQUE       → Conflict
//	FOREIGN KEY  → NotFound (a referenced row was deleted meanwhile)
func translateWriteErr(resource, op string, err error) error {
	if isForeignKeyViolation(err) {
		return &apperror.AppError{
			Err:     apperror.ErrNotFound,
			Message: fmt.Sprintf("%s refers to a user, library or book that no longer exists", resource),
		}
	}
	if isUniqueViolation(err) {
		field := uniqueColumn(err)
		if field == "" {
			field = "key"
		}
		return apperror.Conflict(resource, field)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// likePattern case-folds user input, escapes LIKE wildcards and wraps it for
// a substring match. Queries using it must compare against fold(column) and
// declare ESCAPE '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(fold(q)) + "%"
}
