package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout is how long a statement waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// DB is the SQLite storage collaborator of a context.
//
// The pool holds a single connection: SQLite allows one writer, and a
// transaction's statements must all run on the connection that began it.
type DB struct {
	db      *sql.DB
	path    string
	metrics *Metrics
}

// Option configures Open.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
	metrics     *Metrics
}

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithMetrics records statement and transaction metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Open creates or opens the SQLite database at path. ":memory:" opens a
// private in-memory database.
//
// The database is configured with:
//   - WAL mode for file databases
//   - NORMAL synchronous mode
//   - a busy timeout (DefaultBusyTimeout unless overridden)
//   - foreign key enforcement
func Open(path string, opts ...Option) (*DB, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, path, o.busyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("store opened", "path", path)
	return &DB{db: db, path: path, metrics: o.metrics}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Path returns the path the database was opened with.
func (d *DB) Path() string { return d.path }

func applyPragmas(db *sql.DB, path string, busy time.Duration) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return &StorageError{Op: "pragma", SQL: pragma, Err: err}
		}
	}
	return nil
}
