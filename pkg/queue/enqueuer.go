package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// EnqueueOption customizes a single enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority    notification.Priority
	scheduledAt *time.Time
	delay       time.Duration
}

// WithPriority sets the job priority. Defaults to normal.
func WithPriority(p notification.Priority) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = p }
}

// WithScheduledAt delays the job until the given time.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.scheduledAt = &t }
}

// WithDelay delays the job by the given duration from now.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}

// Enqueuer creates delivery jobs.
type Enqueuer struct {
	storage Storage
}

// NewEnqueuer creates an Enqueuer over the given storage.
func NewEnqueuer(storage Storage) *Enqueuer {
	return &Enqueuer{storage: storage}
}

// Enqueue schedules delivery of the notification. The returned id
// identifies the job, not the notification.
func (e *Enqueuer) Enqueue(ctx context.Context, notificationID uuid.UUID, opts ...EnqueueOption) (uuid.UUID, error) {
	options := &enqueueOptions{priority: notification.PriorityNormal}
	for _, opt := range opts {
		opt(options)
	}

	scheduledAt := time.Now()
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = scheduledAt.Add(options.delay)
	}

	job := newJob(notificationID, options.priority, scheduledAt)
	if err := e.storage.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create job for notification %s: %w", notificationID, err)
	}
	return job.ID, nil
}

// Cancel removes the pending job for the notification, if any.
func (e *Enqueuer) Cancel(ctx context.Context, notificationID uuid.UUID) error {
	return e.storage.CancelByNotification(ctx, notificationID)
}
