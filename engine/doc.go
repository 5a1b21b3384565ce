// Package engine wires all Postmaster subsystems together and provides
// the application-level API for enqueuing and withdrawing mail.
//
// # Building an Engine
//
//	cfg, err := postmaster.LoadConfig("postmaster.yaml")
//
//	eng, err := engine.Build(ctx, cfg, smtp.New(cfg.Mail),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(ctx)
//
// The store is chosen from [postmaster.Config.Mode]:
//
//   - memory only: no overflow store; dead letters live in memory
//   - persistent local: SQLite through bun
//   - persistent remote: Redis, or PostgreSQL when sql.driver is postgres
//
// # Enqueuing
//
//	m, err := eng.Enqueue(ctx, rawRFC5322, 0) // 0 is the highest priority
//	err = eng.Withdraw(ctx, m.ID)
//
// # Options
//
//   - [WithLogger]: set the shared logger
//   - [WithStore]: bring your own store
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the send chain
//   - [WithBackoff]: set the retry backoff strategy
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
