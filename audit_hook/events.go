package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionMessageEnqueued  = "message.enqueued"
	ActionMessageDelivered = "message.delivered"
	ActionMessageRetrying  = "message.retrying"
	ActionMessageFailed    = "message.failed"
	ActionMessageWithdrawn = "message.withdrawn"
	ActionBatchSpilled     = "batch.spilled"
	ActionBatchLoaded      = "batch.loaded"
)

// Audit event categories group related actions.
const (
	CategoryMessage = "postmaster.message"
	CategoryStore   = "postmaster.store"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceMessage = "message"
	ResourceBatch   = "batch"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionMessageEnqueued,
		ActionMessageDelivered,
		ActionMessageRetrying,
		ActionMessageFailed,
		ActionMessageWithdrawn,
		ActionBatchSpilled,
		ActionBatchLoaded,
	}
}
