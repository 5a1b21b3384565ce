// Package store defines the aggregate persistence interface. Each subsystem
// (message overflow, dlq) defines its own store interface and the composite
// Store composes them. Backends: Redis, Bun (SQLite, PostgreSQL) and Memory.
package store

import (
	"context"

	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/message"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store.
type Store interface {
	message.Store
	dlq.Store

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
