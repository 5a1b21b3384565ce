// Package store defines the aggregate persistence interface.
//
// Each subsystem (message overflow, dlq) defines its own store interface.
// The composite [Store] composes them. A single backend need only implement
// Store to satisfy every subsystem's persistence contract:
//
//	type Store interface {
//	    message.Store
//	    dlq.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/redis: Redis backend (sorted set + hash) using go-redis/v9
//   - store/bun: Bun ORM backend for SQLite (local) and PostgreSQL (remote)
//
// # Ordering
//
// Overflow records are kept sorted by priority and then by the
// scheduler-assigned sequence number. FetchTopMessages always returns the
// records that would be dispatched next.
//
// # Migrations
//
// Call Migrate once at startup. engine.Build does this for you.
package store
