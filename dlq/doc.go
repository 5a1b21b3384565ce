// Package dlq provides the dead letter queue for messages that failed
// permanently or exhausted their delivery attempts. Failed mail is never
// silently dropped: it lands here for inspection, replay or purging.
//
// When a delivery fails for good, the scheduler calls [Service.Push]. The
// original payload, priority, attempt count and final error are preserved.
//
// # Replay
//
// [Service.Replay] enqueues a fresh copy of the message at its original
// priority and sets ReplayedAt on the entry.
//
// # Retention
//
// [Retention] runs a cron schedule (robfig/cron) that purges entries older
// than the configured maximum age.
//
// # Admin API
//
// The DLQ is exposed via the HTTP API:
//   - GET  /v1/dlq
//   - GET  /v1/dlq/{entryId}
//   - POST /v1/dlq/{entryId}/replay
//   - POST /v1/dlq/purge
package dlq
