package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Handler processes one claimed delivery job. The worker records the
// returned error on the job; delivery outcome tracking happens on the
// notification record inside the handler.
type Handler func(ctx context.Context, notificationID uuid.UUID) error

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	pullInterval  time.Duration
	lockTimeout   time.Duration
	maxConcurrent int
	logger        *slog.Logger
}

// WithPullInterval sets how often the worker polls for due jobs.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed job stays locked. Must exceed
// the slowest expected delivery including adapter-level retries.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMaxConcurrent bounds how many jobs run at once.
func WithMaxConcurrent(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Worker claims and processes delivery jobs in the background.
type Worker struct {
	storage  Storage
	handler  Handler
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex
	stopping atomic.Bool

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorker creates a worker over the given storage and handler.
func NewWorker(storage Storage, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	options := &workerOptions{
		pullInterval:  time.Second,
		lockTimeout:   2 * time.Minute,
		maxConcurrent: 4,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		storage:      storage,
		handler:      handler,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrent),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger,
	}, nil
}

// Start begins claiming jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("queue worker started",
		logger.WorkerID(w.workerID),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels claiming and waits for in-flight jobs to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("queue worker stopped", logger.WorkerID(w.workerID))
	return nil
}

// Run returns a function suitable for errgroup wiring.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// Keep Stop's WaitGroup.Wait from racing a late Add.
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()
					w.pullAndProcess()
				}()
			default:
				// All slots busy, skip this tick.
			}
		}
	}
}

func (w *Worker) pullAndProcess() {
	job, err := w.storage.ClaimJob(w.ctx, w.workerID, w.lockTimeout)
	if err != nil {
		if !errors.Is(err, ErrNoJobToClaim) && !errors.Is(err, context.Canceled) {
			w.logger.Error("failed to claim job",
				logger.WorkerID(w.workerID),
				logger.Error(err))
		}
		return
	}

	w.process(job)
}

func (w *Worker) process(job *Job) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job handler panicked",
				logger.JobID(job.ID),
				logger.NotificationID(job.NotificationID),
				slog.Any("panic", r))
			_ = w.storage.CompleteJob(context.Background(), job.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	// Detached from the worker context so graceful shutdown lets the
	// in-flight delivery finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	var errMsg string
	if err := w.handler(ctx, job.NotificationID); err != nil {
		errMsg = err.Error()
		w.logger.Error("job delivery failed",
			logger.JobID(job.ID),
			logger.NotificationID(job.NotificationID),
			logger.Duration(time.Since(start)),
			slog.String("error", errMsg))
	} else {
		w.logger.Info("job delivered",
			logger.JobID(job.ID),
			logger.NotificationID(job.NotificationID),
			logger.Duration(time.Since(start)))
	}

	if err := w.storage.CompleteJob(ctx, job.ID, errMsg); err != nil {
		w.logger.Error("failed to complete job",
			logger.JobID(job.ID),
			logger.Error(err))
	}
}
