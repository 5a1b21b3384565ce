// Package ext defines the extension system for Postmaster.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, writing audit logs or alerting on failures. Each
// lifecycle hook is a separate interface so extensions opt in only to the
// events they care about.
//
// # Implementing an Extension
//
//	type Alerts struct{}
//
//	func (a *Alerts) Name() string { return "alerts" }
//
//	func (a *Alerts) OnMessageFailed(ctx context.Context, m *message.Message, err error) error {
//	    log.Printf("message %s dead-lettered after %d attempts: %v", m.ID, m.Attempts, err)
//	    return nil
//	}
//
// # Message Hooks
//
//   - [MessageEnqueued]: message was accepted into the ring
//   - [MessageDispatched]: an attempt is about to be made
//   - [MessageDelivered]: the transport accepted the message
//   - [MessageRetrying]: an attempt failed, another is scheduled
//   - [MessageFailed]: the message moved to the dead letter queue
//   - [MessageWithdrawn]: the message was removed before delivery
//
// # Mover and Lifecycle Hooks
//
//   - [BatchSpilled]: records moved from memory to the persistence store
//   - [BatchLoaded]: records moved from the store back into the window
//   - [Shutdown]: the scheduler is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never interrupt delivery.
package ext
