package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage for tests and local development.
type MemoryStorage struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*Job
	byNotif map[uuid.UUID]uuid.UUID

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStorage creates an in-memory job storage. A background ticker
// recovers jobs whose worker died mid-delivery.
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		jobs:    make(map[uuid.UUID]*Job),
		byNotif: make(map[uuid.UUID]uuid.UUID),
		done:    make(chan struct{}),
	}
	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationLoop()
	return ms
}

// Close stops the lock recovery goroutine.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

func (ms *MemoryStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	clone := *job
	ms.jobs[job.ID] = &clone
	ms.byNotif[job.NotificationID] = job.ID
	return nil
}

func (ms *MemoryStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Job
	for _, job := range ms.jobs {
		if job.Status != JobStatusPending || job.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			job.Weight > best.Weight ||
			(job.Weight == best.Weight && job.ScheduledAt.Before(best.ScheduledAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockedUntil := now.Add(lockDuration)
	best.Status = JobStatusProcessing
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID

	clone := *best
	return &clone, nil
}

func (ms *MemoryStorage) CompleteJob(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	job.Status = JobStatusDone
	job.LockedUntil = nil
	job.LockedBy = nil
	if errMsg != "" {
		job.Error = &errMsg
	}
	delete(ms.byNotif, job.NotificationID)
	return nil
}

func (ms *MemoryStorage) CancelByNotification(ctx context.Context, notificationID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	jobID, ok := ms.byNotif[notificationID]
	if !ok {
		return ErrJobNotFound
	}
	job := ms.jobs[jobID]
	if job.Status != JobStatusPending {
		return ErrJobNotCancellable
	}

	job.Status = JobStatusCancelled
	delete(ms.byNotif, notificationID)
	return nil
}

// lockExpirationLoop resets jobs locked by dead workers back to pending.
func (ms *MemoryStorage) lockExpirationLoop() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, job := range ms.jobs {
		if job.Status == JobStatusProcessing && job.LockedUntil != nil && job.LockedUntil.Before(now) {
			job.Status = JobStatusPending
			job.LockedUntil = nil
			job.LockedBy = nil
		}
	}
}
