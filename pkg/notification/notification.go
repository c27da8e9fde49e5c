package notification

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the delivery medium of a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// Valid reports whether the channel is one of the supported media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transitions are possible from the
// status on its own. FAILED is only conditionally terminal: the retry
// sweeper may re-enter it while the retry ceiling has not been reached.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}

// Priority orders notifications within the dispatch queue.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Weight maps a priority to an ordinal used for queue ordering.
// Higher weight is claimed first.
func (p Priority) Weight() int8 {
	switch p {
	case PriorityCritical:
		return 100
	case PriorityHigh:
		return 75
	case PriorityLow:
		return 25
	default:
		return 50
	}
}

// Valid reports whether the priority is a known level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Notification is one record per send attempt series. The dispatch
// orchestrator and the retry sweeper are its only writers.
type Notification struct {
	ID                uuid.UUID         `json:"id"`
	Channel           Channel           `json:"channel"`
	Status            Status            `json:"status"`
	Priority          Priority          `json:"priority"`
	Recipient         string            `json:"recipient"`
	Sender            string            `json:"sender,omitempty"`
	Content           Content           `json:"content"`
	ScheduledAt       *time.Time        `json:"scheduled_at,omitempty"`
	IdempotencyKey    *string           `json:"idempotency_key,omitempty"`
	RetryCount        int               `json:"retry_count"`
	MaxRetries        int               `json:"max_retries"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	BatchID           string            `json:"batch_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty"`
}

// Retryable reports whether the retry sweeper may re-attempt delivery.
func (n *Notification) Retryable() bool {
	return n.Status == StatusFailed && n.RetryCount < n.MaxRetries
}

// Cancellable reports whether the notification may still be cancelled.
// Once dispatch has begun the in-flight attempt runs to completion.
func (n *Notification) Cancellable() bool {
	return n.Status == StatusPending || n.Status == StatusQueued
}

// transitions is the full set of legal status edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSent, StatusFailed},
	StatusFailed:     {StatusProcessing},
}

// CanTransition reports whether the edge from -> to exists in the state machine.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
