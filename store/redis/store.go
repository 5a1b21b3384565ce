// Package redis implements store.Store using Redis. Overflow messages are
// ordered in a Sorted Set (score = priority, member = zero-padded sequence
// and ID) with each record stored as a Hash. Batches are applied in
// MULTI/EXEC transactions so a batch is stored or removed as a whole.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/message"
)

// Compile-time interface checks.
var (
	_ message.Store = (*Store)(nil)
	_ dlq.Store     = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCloser makes Close release the given client. By default the caller
// owns the client lifecycle.
func WithCloser(c interface{ Close() error }) Option {
	return func(s *Store) { s.closer = c }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	closer interface{ Close() error }
	logger *slog.Logger
}

// New creates a new Redis-backed store.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the client when WithCloser was given.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// unavailable wraps a transport-level Redis error so callers can match
// postmaster.ErrPersistenceUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("postmaster/redis: %s: %w: %w", op, postmaster.ErrPersistenceUnavailable, err)
}
