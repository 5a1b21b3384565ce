// Package audithook is a Postmaster extension that turns message lifecycle
// events into structured audit records.
//
// Every hook emits an [AuditEvent] through the [Recorder] interface with a
// severity (info for normal operations, warning for retries and
// withdrawals, critical for dead-lettered mail) and metadata such as
// priority, attempt and elapsed time. Message payloads are never recorded.
//
// # Usage
//
//	eng, err := engine.Build(ctx, cfg, tr,
//	    engine.WithExtension(audithook.New(audithook.SlogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionMessageFailed,
//	        audithook.ActionMessageWithdrawn,
//	    ),
//	)
package audithook
