// Package message defines the message record that flows through the
// scheduler, its delivery state machine and its ordering key.
//
// # Message Record
//
// A [Message] carries an opaque, ready-to-send payload (a complete RFC 5322
// message for the SMTP transport), the priority it was enqueued with and a
// scheduler-assigned sequence number. Records progress through:
//
//	queued → in_window → dispatching → delivered
//	queued → in_window → dispatching → retrying → queued → ...
//	queued → in_window → dispatching → failed → dlq
//	queued | in_window → withdrawn
//
// Records spilled to a durable store keep their state; they are "queued"
// while in the ring and "in_window" once promoted.
//
// # Ordering
//
// [Key] orders records by priority (0 first) and then by sequence number,
// which is the enqueue order. Every store and in-memory structure keeps
// records sorted by this key.
package message
