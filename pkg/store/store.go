// Package store is the single writer for tasks, projects, users and the
// bookkeeping tables that hang off them. Every mutation of a task record goes
// through a Store method so registered write hooks see it.
package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

//go:embed migrations
var migrations embed.FS

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// TaskChange describes one committed task write. After is nil for deletions.
type TaskChange struct {
	TaskID string
	Before *model.Task
	After  *model.Task
}

// TaskHook observes committed task writes. Hooks cannot fail the write.
type TaskHook func(ctx context.Context, change TaskChange)

type Store struct {
	log    *slog.Logger
	db     *sqlx.DB
	driver string
	now    func() time.Time

	mu    sync.RWMutex
	hooks []TaskHook
}

// Open connects to the database and returns a Store. driver is DriverSQLite
// or DriverPostgres.
func Open(log *slog.Logger, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		log.Error("connection problem", "driver", driver, "error", err)
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; serialise on a single connection.
		db.SetMaxOpenConns(1)
	}
	return New(log, db, driver), nil
}

// New wraps an existing connection.
func New(log *slog.Logger, db *sqlx.DB, driver string) *Store {
	return &Store{
		log:    log,
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the source of store-assigned timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

// OnTaskWrite registers a hook invoked after every committed task write.
func (s *Store) OnTaskWrite(h TaskHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	dir := "migrations/sqlite"
	if s.driver == DriverPostgres {
		dir = "migrations/postgres"
	}

	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	s.log.Debug("running migrations", "driver", s.driver, "count", len(entries))
	for _, e := range entries {
		script, err := migrations.ReadFile(dir + "/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
	}
	s.log.Debug("migrations finished")
	return nil
}

func (s *Store) notify(ctx context.Context, changes []TaskChange) {
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()

	for _, change := range changes {
		for _, h := range hooks {
			s.runHook(ctx, h, change)
		}
	}
}

func (s *Store) runHook(ctx context.Context, h TaskHook, change TaskChange) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task write hook panicked", "task_id", change.TaskID, "panic", r)
		}
	}()
	h(ctx, change)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
