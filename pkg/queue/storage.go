package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage persists delivery jobs. Implementations must make ClaimJob
// atomic: a job handed to one worker is never handed to another while the
// lock holds.
type Storage interface {
	// CreateJob stores a new pending job.
	CreateJob(ctx context.Context, job *Job) error

	// ClaimJob atomically claims the due job with the highest weight,
	// earliest scheduled time breaking ties. Returns ErrNoJobToClaim when
	// nothing is due.
	ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error)

	// CompleteJob finishes a claimed job. A non-empty errMsg records the
	// delivery outcome for inspection; the job is terminal either way.
	CompleteJob(ctx context.Context, jobID uuid.UUID, errMsg string) error

	// CancelByNotification cancels the pending job for the notification.
	// Returns ErrJobNotFound when no job references it and
	// ErrJobNotCancellable when the job was already claimed or finished.
	CancelByNotification(ctx context.Context, notificationID uuid.UUID) error

	// Close releases storage resources.
	Close() error
}
