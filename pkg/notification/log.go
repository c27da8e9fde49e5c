package notification

import (
	"time"

	"github.com/google/uuid"
)

// LogEvent names a lifecycle transition recorded in the audit trail.
type LogEvent string

const (
	LogCreated   LogEvent = "CREATED"
	LogQueued    LogEvent = "QUEUED"
	LogSent      LogEvent = "SENT"
	LogFailed    LogEvent = "FAILED"
	LogCancelled LogEvent = "CANCELLED"
)

// Log is one append-only audit row per lifecycle transition. Logs are never
// mutated or deleted and are owned by the notification they describe.
type Log struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	Event          LogEvent  `json:"event"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewLog builds an audit entry for the given notification.
func NewLog(notificationID uuid.UUID, event LogEvent, message string) *Log {
	return &Log{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Event:          event,
		Message:        message,
		CreatedAt:      time.Now(),
	}
}
