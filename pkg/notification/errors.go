package notification

import "errors"

var (
	// ErrNotFound is returned when no non-deleted record matches the lookup.
	ErrNotFound = errors.New("notification not found")

	// ErrValidation wraps malformed or incomplete input. Validation
	// failures never create persisted state.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned for operations illegal in the record's
	// current status, e.g. cancelling a notification that already left
	// PENDING/QUEUED.
	ErrConflict = errors.New("operation conflicts with current status")

	// ErrInvalidTransition is returned when a status change does not
	// follow an edge of the lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateIdempotencyKey is returned by Store.Create when a
	// notification with the same idempotency key already exists. The
	// storage layer is the real uniqueness guarantee; callers treat this
	// as "already exists" and return the original record.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already exists")

	// ErrNotRetryable is returned by ClaimForRetry when the record is not
	// in FAILED state or has exhausted its retry budget.
	ErrNotRetryable = errors.New("notification is not retryable")
)
