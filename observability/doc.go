// Package observability provides OpenTelemetry-based lifecycle metrics for
// Postmaster. The MetricsExtension implements every scheduler hook and
// records counters for enqueues, deliveries, retries, failures,
// withdrawals and batch moves, plus an end-to-end delivery latency
// histogram.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
