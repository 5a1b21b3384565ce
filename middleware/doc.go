// Package middleware provides composable middleware around message delivery.
//
// A [Middleware] wraps the transport call for one delivery attempt.
// Middleware are composed with [Chain]; the first in the list is the
// outermost wrapper.
//
//	chain := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Tracing(),
//	    middleware.Metrics(),
//	    middleware.Logging(logger),
//	    middleware.RateLimit(50, 10),
//	    middleware.Timeout(30*time.Second),
//	)
//
// # Built-in Middleware
//
//   - [Recover] converts transport panics into transient errors
//   - [Tracing] wraps each attempt in an OpenTelemetry span
//   - [Metrics] records attempt duration and outcome counters
//   - [Logging] logs each attempt and its outcome
//   - [RateLimit] caps deliveries per second (golang.org/x/time/rate)
//   - [Timeout] bounds each transport call
package middleware
