package postmaster

import "errors"

var (
	// Configuration errors.
	ErrInvalidConfiguration = errors.New("postmaster: invalid configuration")
	ErrDisabled             = errors.New("postmaster: scheduler disabled")

	// Enqueue errors.
	ErrInvalidPriority = errors.New("postmaster: invalid priority")
	ErrMessageExists   = errors.New("postmaster: message already exists")

	// Store errors.
	ErrNoStore                = errors.New("postmaster: no store configured")
	ErrStoreClosed            = errors.New("postmaster: store closed")
	ErrPersistenceUnavailable = errors.New("postmaster: persistence unavailable")

	// Not found errors.
	ErrMessageNotFound = errors.New("postmaster: message not found")
	ErrDLQNotFound     = errors.New("postmaster: dlq entry not found")

	// State errors.
	ErrMessageInFlight    = errors.New("postmaster: message is being dispatched")
	ErrSchedulerStopped   = errors.New("postmaster: scheduler stopped")
	ErrDeliveryFailed     = errors.New("postmaster: delivery failed")
	ErrMaxAttemptsReached = errors.New("postmaster: max delivery attempts reached")
)
