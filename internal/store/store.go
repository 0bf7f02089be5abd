// Package store persists evidence chains, derived statuses, the changelog and
// source health in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/ppiankov/schemetrust/internal/model"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ProjectFunc computes the next status of a scheme from the previous status and
// its full evidence chain.
type ProjectFunc func(prev model.VerificationStatus, chain []model.EvidenceRecord) model.VerificationStatus

// Store is the SQLite evidence store
type Store struct {
	db          *sql.DB
	sq          squirrel.StatementBuilderType
	locks       *keyedLock
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLockTimeout bounds how long a commit waits for the per-scheme lock
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens the database at dsn and applies migrations
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	s := &Store{
		db:          db,
		sq:          squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		locks:       newKeyedLock(),
		lockTimeout: 5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return wrap("pragma", err)
		}
	}
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrap(fmt.Sprintf("migration %d", i+1), err)
		}
	}
	return nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// lockScheme acquires the per-scheme lock, waiting at most lockTimeout
func (s *Store) lockScheme(ctx context.Context, schemeID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	unlock, err := s.locks.Lock(lockCtx, schemeID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrPersistence, ErrLockTimeout, schemeID)
	}
	return unlock, nil
}

// inTx runs fn in a transaction, rolling back on error
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return wrap("commit", tx.Commit())
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exec(ctx context.Context, q querier, b squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.ExecContext(ctx, query, args...)
}

func query(ctx context.Context, q querier, b squirrel.Sqlizer) (*sql.Rows, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.QueryContext(ctx, stmt, args...)
}

func queryRow(ctx context.Context, q querier, b squirrel.Sqlizer) (*sql.Row, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.QueryRowContext(ctx, stmt, args...), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
