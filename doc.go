// Package postmaster schedules outbound email delivery by priority.
//
// Producers enqueue ready-to-send messages with a priority level. The
// scheduler hands them to a transport lowest level first, FIFO within a
// level. A bounded in-memory window holds the dispatchable records; when
// persistence is enabled, overflow beyond the window is moved in batches to
// a durable store (Redis, SQLite or PostgreSQL) and loaded back as the
// window drains, so queued mail survives restarts.
//
// # Quick Start
//
//	cfg := postmaster.DefaultConfig()
//	cfg.Enabled = true
//	eng, err := engine.Build(ctx, cfg, smtp.New(cfg.Mail))
//	if err != nil { ... }
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//	m, err := eng.Enqueue(ctx, rawMIME, 0)
//
// # Architecture
//
// The root package holds configuration, the operating Mode derived from it
// and the sentinel errors shared by every subpackage. Subpackages follow the
// flow of a message: ring (intake lanes), scheduler (window, batch mover and
// dispatcher), store (durable overflow), transport (delivery), dlq
// (terminal failures) and ext (lifecycle hooks).
package postmaster
