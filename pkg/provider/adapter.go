package provider

import (
	"context"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Payload is the generic, vendor-agnostic send request. Each adapter owns a
// pure mapping function from Payload to its vendor request shape, so the
// shaping is unit-testable without a live network call.
type Payload struct {
	Channel notification.Channel
	To      string
	From    string
	Email   *notification.EmailContent
	SMS     *notification.SMSContent
	Push    *notification.PushContent
}

// Result is a successful send outcome. Provider is filled by the selector
// with the name of the adapter that ultimately delivered the payload.
type Result struct {
	MessageID string
	Provider  string
}

// ItemResult is one recipient's outcome inside a bulk send. Outcomes are
// independent: one recipient's failure never aborts the batch.
type ItemResult struct {
	Index     int
	MessageID string
	Err       error
}

// BulkResult aggregates per-recipient outcomes of a bulk send.
type BulkResult struct {
	Sent    int
	Failed  int
	Results []ItemResult
}

// Adapter is the uniform vendor contract for one (channel, vendor) pair.
type Adapter interface {
	// Name identifies the vendor, e.g. "postmark" or "fcm".
	Name() string

	// Channel reports which delivery medium the adapter serves.
	Channel() notification.Channel

	// Send dispatches a single payload. Failures are returned as
	// *SendError tagged with an ErrorCode.
	Send(ctx context.Context, p Payload) (Result, error)

	// SendBulk dispatches many payloads, chunked to vendor-safe batch
	// sizes, collecting per-recipient outcomes independently.
	SendBulk(ctx context.Context, payloads []Payload) (BulkResult, error)

	// IsHealthy is a cheap, side-effect-free credential/connectivity
	// probe. Never a real send.
	IsHealthy(ctx context.Context) error
}
