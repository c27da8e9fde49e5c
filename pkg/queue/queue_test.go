package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

func newStorage(t *testing.T) *queue.MemoryStorage {
	t.Helper()
	s := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueuer_PriorityOrdering(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	low := uuid.New()
	critical := uuid.New()
	normal := uuid.New()

	_, err := enq.Enqueue(ctx, low, queue.WithPriority(notification.PriorityLow))
	require.NoError(t, err)
	_, err = enq.Enqueue(ctx, critical, queue.WithPriority(notification.PriorityCritical))
	require.NoError(t, err)
	_, err = enq.Enqueue(ctx, normal)
	require.NoError(t, err)

	workerID := uuid.New()
	var claimed []uuid.UUID
	for range 3 {
		job, err := storage.ClaimJob(ctx, workerID, time.Minute)
		require.NoError(t, err)
		claimed = append(claimed, job.NotificationID)
	}

	assert.Equal(t, []uuid.UUID{critical, normal, low}, claimed,
		"jobs are claimed by descending priority weight")

	_, err = storage.ClaimJob(ctx, workerID, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
}

func TestEnqueuer_SamePriorityFIFO(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	base := time.Now().Add(-time.Minute)

	_, err := enq.Enqueue(ctx, first, queue.WithScheduledAt(base))
	require.NoError(t, err)
	_, err = enq.Enqueue(ctx, second, queue.WithScheduledAt(base.Add(time.Second)))
	require.NoError(t, err)

	job, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, job.NotificationID, "equal weight claims oldest scheduled first")
}

func TestEnqueuer_DelayedJobNotClaimable(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	_, err := enq.Enqueue(ctx, uuid.New(), queue.WithDelay(time.Hour))
	require.NoError(t, err)

	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim, "future jobs stay invisible until due")
}

func TestEnqueuer_CancelPendingJob(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	notifID := uuid.New()
	_, err := enq.Enqueue(ctx, notifID)
	require.NoError(t, err)

	require.NoError(t, enq.Cancel(ctx, notifID))

	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)

	assert.ErrorIs(t, enq.Cancel(ctx, notifID), queue.ErrJobNotFound,
		"a cancelled job releases its notification index")
}

func TestEnqueuer_CancelClaimedJobRefused(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	notifID := uuid.New()
	_, err := enq.Enqueue(ctx, notifID)
	require.NoError(t, err)

	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, enq.Cancel(ctx, notifID), queue.ErrJobNotCancellable,
		"in-flight deliveries run to completion")
}

func TestMemoryStorage_CompleteJob(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	jobID, err := enq.Enqueue(ctx, uuid.New())
	require.NoError(t, err)

	claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, jobID, claimed.ID)

	require.NoError(t, storage.CompleteJob(ctx, jobID, ""))

	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim, "completed jobs are never re-claimed")

	assert.ErrorIs(t, storage.CompleteJob(ctx, uuid.New(), ""), queue.ErrJobNotFound)
}

func TestMemoryStorage_LockExpirationRequeues(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	notifID := uuid.New()
	_, err := enq.Enqueue(ctx, notifID)
	require.NoError(t, err)

	// Claim with a lock that expires immediately, simulating a dead worker.
	_, err = storage.ClaimJob(ctx, uuid.New(), time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		return err == nil && job.NotificationID == notifID
	}, 5*time.Second, 50*time.Millisecond, "the expired lock returns the job to pending")
}

func TestWorker_ProcessesJobs(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	var mu sync.Mutex
	var handled []uuid.UUID
	handler := func(ctx context.Context, notificationID uuid.UUID) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, notificationID)
		return nil
	}

	worker, err := queue.NewWorker(storage, handler,
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithMaxConcurrent(2))
	require.NoError(t, err)

	first := uuid.New()
	second := uuid.New()
	_, err = enq.Enqueue(ctx, first)
	require.NoError(t, err)
	_, err = enq.Enqueue(ctx, second)
	require.NoError(t, err)

	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []uuid.UUID{first, second}, handled)
}

func TestWorker_HandlerPanicCompletesJob(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	enq := queue.NewEnqueuer(storage)
	ctx := context.Background()

	var calls sync.Map
	handler := func(ctx context.Context, notificationID uuid.UUID) error {
		calls.Store(notificationID, true)
		panic("boom")
	}

	worker, err := queue.NewWorker(storage, handler,
		queue.WithPullInterval(10*time.Millisecond))
	require.NoError(t, err)

	notifID := uuid.New()
	_, err = enq.Enqueue(ctx, notifID)
	require.NoError(t, err)

	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	require.Eventually(t, func() bool {
		_, ok := calls.Load(notifID)
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	// The panicked job is completed with an error, never re-claimed.
	require.Never(t, func() bool {
		job, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		return err == nil && job.NotificationID == notifID
	}, 300*time.Millisecond, 50*time.Millisecond)
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()

	storage := newStorage(t)
	handler := func(ctx context.Context, notificationID uuid.UUID) error { return nil }

	worker, err := queue.NewWorker(storage, handler)
	require.NoError(t, err)

	require.NoError(t, worker.Start(context.Background()))
	assert.Error(t, worker.Start(context.Background()), "double start is refused")
	require.NoError(t, worker.Stop())
	assert.Error(t, worker.Stop(), "double stop is refused")
}

func TestNewWorker_Validation(t *testing.T) {
	t.Parallel()

	_, err := queue.NewWorker(nil, func(ctx context.Context, id uuid.UUID) error { return nil })
	assert.ErrorIs(t, err, queue.ErrStorageNil)

	_, err = queue.NewWorker(newStorage(t), nil)
	assert.ErrorIs(t, err, queue.ErrHandlerNil)
}
