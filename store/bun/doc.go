// Package bunstore implements store.Store using the Bun ORM. The same
// models serve two deployments:
//
//   - SQLite (sqlitedialect over modernc.org/sqlite) for a single node
//     keeping its overflow in a local file
//   - PostgreSQL (pgdialect over pgdriver) for a shared remote database
//
// The caller owns the *bun.DB lifecycle unless the store was built with
// Open, which takes ownership:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/xraph/postmaster/store/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	store.Migrate(ctx)
//
// Overflow rows are indexed on (priority, seq) so fetching the next batch is
// an index range scan.
package bunstore
