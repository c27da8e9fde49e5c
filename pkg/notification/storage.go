package notification

import (
	"context"

	"github.com/google/uuid"
)

// Store persists notifications, their audit logs, push tokens and the
// per-channel provider override records. Implementations must enforce
// idempotency-key uniqueness and the lifecycle state machine; all status
// mutations go through Transition or ClaimForRetry.
type Store interface {
	// Create inserts a new notification. Returns
	// ErrDuplicateIdempotencyKey when a record with the same key exists.
	Create(ctx context.Context, n *Notification) error

	// GetByID returns the non-deleted record or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)

	// GetByIdempotencyKey returns the record holding the key or ErrNotFound.
	GetByIdempotencyKey(ctx context.Context, key string) (*Notification, error)

	// Transition atomically moves the record to the target status,
	// applying the optional mutation alongside the status change. The
	// current status must have a legal edge to the target, otherwise
	// ErrInvalidTransition is returned and nothing is written.
	Transition(ctx context.Context, id uuid.UUID, to Status, apply func(*Notification)) (*Notification, error)

	// ClaimForRetry moves a FAILED record back to PROCESSING, but only
	// while RetryCount < MaxRetries and the status is still FAILED. This
	// check-then-transition is the per-record mutual exclusion that keeps
	// concurrent sweepers from re-entering the same notification.
	ClaimForRetry(ctx context.Context, id uuid.UUID) (*Notification, error)

	// ListRetryable returns up to limit FAILED notifications with retry
	// budget remaining, oldest first.
	ListRetryable(ctx context.Context, limit int) ([]*Notification, error)

	// AppendLog adds one audit entry. Logs are append-only.
	AppendLog(ctx context.Context, l *Log) error

	// Logs returns the audit trail for a notification, oldest first.
	Logs(ctx context.Context, notificationID uuid.UUID) ([]*Log, error)

	// SavePushToken inserts or reactivates a device registration.
	SavePushToken(ctx context.Context, t *PushToken) error

	// DeactivatePushToken flags a token reported as gone by a provider.
	DeactivatePushToken(ctx context.Context, token string) error

	// ActivePushTokens returns the active registrations for a user.
	ActivePushTokens(ctx context.Context, userID string) ([]*PushToken, error)

	// ProviderOverride returns the active default provider name for the
	// channel, or ErrNotFound when no override record exists.
	ProviderOverride(ctx context.Context, channel Channel) (string, error)

	// SetProviderOverride upserts the active default provider per channel.
	SetProviderOverride(ctx context.Context, channel Channel, provider string) error
}
