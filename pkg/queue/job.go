package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// JobStatus represents the lifecycle of a delivery job. Job outcomes are
// terminal; delivery retries are scheduled at the notification level, not
// by requeueing jobs.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job points at a notification awaiting delivery. Weight is the numeric
// form of the notification priority and drives claim ordering.
type Job struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID uuid.UUID  `json:"notification_id"`
	Weight         int8       `json:"weight"`
	Status         JobStatus  `json:"status"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LockedBy       *uuid.UUID `json:"locked_by,omitempty"`
	Error          *string    `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// newJob builds a pending job for the given notification.
func newJob(notificationID uuid.UUID, priority notification.Priority, scheduledAt time.Time) *Job {
	return &Job{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Weight:         priority.Weight(),
		Status:         JobStatusPending,
		ScheduledAt:    scheduledAt,
		CreatedAt:      time.Now(),
	}
}
