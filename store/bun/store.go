package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/message"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ message.Store = (*Store)(nil)
	_ dlq.Store     = (*Store)(nil)
)

// Store is a Bun ORM implementation of store.Store.
type Store struct {
	db     *bun.DB
	owned  bool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle; Close
// leaves it open.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to driver ("sqlite" or "postgres") at dsn and returns a
// store that closes the connection on Close.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	var db *bun.DB
	switch driver {
	case "sqlite", "":
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("postmaster/bun: open sqlite: %w", err)
		}
		// SQLite allows a single writer.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case "postgres":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("postmaster/bun: unsupported driver %q", driver)
	}
	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates the tables and indexes when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	models := []interface{}{
		(*messageModel)(nil),
		(*dlqEntryModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("postmaster/bun: create table: %w", err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*messageModel)(nil), "postmaster_messages_order_idx", []string{"priority", "seq"}},
		{(*dlqEntryModel)(nil), "postmaster_dlq_failed_at_idx", []string{"failed_at"}},
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("postmaster/bun: create index %s: %w", idx.name, err)
		}
	}

	s.logger.Debug("schema migrated", "dialect", s.db.Dialect().Name().String())
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the database when the store was built with Open.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
