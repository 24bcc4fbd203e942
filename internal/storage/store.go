package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"kakeibo/internal/core"

	_ "modernc.org/sqlite"
)

// Store owns the SQLite handle. Reads go through DB(); every mutation goes
// through Write so that it runs in one transaction and observers are told
// about it after commit.
type Store struct {
	db    *sql.DB
	hub   *Hub
	clock core.Clock
}

type Option func(*Store)

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(c core.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithHub shares an existing change hub instead of creating one.
func WithHub(h *Hub) Option {
	return func(s *Store) { s.hub = h }
}

// Open creates the database file if needed, migrates it to SchemaVersion and
// seeds the reference tables on a fresh database.
func Open(ctx context.Context, dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer: every statement is serialized through one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	fresh, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, clock: core.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}

	if fresh {
		if err := Seed(ctx, s); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed reference data: %w", err)
		}
	}

	slog.InfoContext(ctx, "Database ready", "path", dbPath, "fresh", fresh, "schema_version", SchemaVersion)
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the handle for read queries. It must not be used from inside a
// Write callback: the pool holds one connection, which the transaction owns.
func (s *Store) DB() Querier { return s.db }

func (s *Store) Hub() *Hub { return s.hub }

func (s *Store) Now() time.Time { return s.clock.Now() }

// Ping checks the connection is alive.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Write runs fn in a single transaction. If fn returns an error everything it
// did is rolled back. After a successful commit the touched tables are
// published on the hub.
func (s *Store) Write(ctx context.Context, fn func(w *Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	w := &Writer{tx: tx, now: s.clock.Now(), touched: map[string]struct{}{}}
	if err := fn(w); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	if tables := w.Touched(); len(tables) > 0 {
		s.hub.Publish(tables...)
	}
	return nil
}

// Writer is the transactional handle given to Write callbacks.
type Writer struct {
	tx      *sql.Tx
	now     time.Time
	touched map[string]struct{}
}

func (w *Writer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return w.tx.ExecContext(ctx, query, args...)
}

func (w *Writer) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return w.tx.QueryContext(ctx, query, args...)
}

func (w *Writer) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return w.tx.QueryRowContext(ctx, query, args...)
}

// Now is the single timestamp shared by every row written in this
// transaction.
func (w *Writer) Now() time.Time { return w.now }

// Touched lists the tables modified so far, sorted.
func (w *Writer) Touched() []string {
	out := make([]string, 0, len(w.touched))
	for t := range w.touched {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (w *Writer) touch(table string) { w.touched[table] = struct{}{} }
