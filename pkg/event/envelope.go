package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEnvelope is returned when a received event fails validation.
var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Metadata identifies and traces one event instance.
type Metadata struct {
	EventID       string    `json:"eventId"`
	EventVersion  string    `json:"eventVersion,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	SourceService string    `json:"sourceService"`
	CorrelationID string    `json:"correlationId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
}

// Envelope is the wire shape of a domain event. Payload stays raw until a
// handler that knows the event's schema decodes it.
type Envelope struct {
	EventName string          `json:"eventName"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

// Validate enforces the minimum contract every event must satisfy before
// any handler sees it.
func (e Envelope) Validate() error {
	if e.EventName == "" {
		return fmt.Errorf("%w: eventName is required", ErrInvalidEnvelope)
	}
	if e.Metadata.EventID == "" {
		return fmt.Errorf("%w: metadata.eventId is required", ErrInvalidEnvelope)
	}
	if e.Metadata.OccurredAt.IsZero() {
		return fmt.Errorf("%w: metadata.occurredAt is required", ErrInvalidEnvelope)
	}
	if e.Metadata.SourceService == "" {
		return fmt.Errorf("%w: metadata.sourceService is required", ErrInvalidEnvelope)
	}
	return nil
}

// Parse decodes and validates a raw envelope.
func Parse(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
