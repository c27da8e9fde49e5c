// Package sweeper re-drives failed notifications. On a fixed interval it
// lists FAILED records with retry budget remaining and hands each one back
// to the dispatcher. The per-record claim inside the dispatcher is
// conditional, so multiple sweeper instances can run against the same
// store without double-sending.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Config tunes the sweep loop.
type Config struct {
	Interval  time.Duration `env:"SWEEPER_INTERVAL" envDefault:"30s"`
	BatchSize int           `env:"SWEEPER_BATCH_SIZE" envDefault:"50"`
}

// Retrier re-attempts one failed notification. Satisfied by
// *dispatch.Dispatcher.
type Retrier interface {
	RetryFailed(ctx context.Context, id uuid.UUID) error
}

// Lister finds notifications eligible for retry. Satisfied by
// notification.Store.
type Lister interface {
	ListRetryable(ctx context.Context, limit int) ([]*notification.Notification, error)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the sweeper logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sweeper periodically retries failed notifications.
type Sweeper struct {
	lister  Lister
	retrier Retrier
	config  Config
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Sweeper.
func New(lister Lister, retrier Retrier, cfg Config, opts ...Option) (*Sweeper, error) {
	if lister == nil || retrier == nil {
		return nil, errors.New("sweeper: lister and retrier are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	s := &Sweeper{
		lister:  lister,
		retrier: retrier,
		config:  cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the sweep loop in the background.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("sweeper already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("sweeper started",
		slog.Duration("interval", s.config.Interval),
		slog.Int("batch_size", s.config.BatchSize))
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("sweeper not started")
	}
	cancel()
	<-done

	s.logger.Info("sweeper stopped")
	return nil
}

// Run returns a function suitable for errgroup wiring.
func (s *Sweeper) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return s.Stop()
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: list retryable records and re-attempt each. A
// failing record does not stop the pass; its error is logged and the next
// record proceeds.
func (s *Sweeper) Sweep(ctx context.Context) {
	records, err := s.lister.ListRetryable(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to list retryable notifications", logger.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	s.logger.Info("sweeping failed notifications", slog.Int("count", len(records)))

	for _, n := range records {
		if ctx.Err() != nil {
			return
		}
		if err := s.retrier.RetryFailed(ctx, n.ID); err != nil {
			// ErrNotRetryable means another sweeper claimed it first.
			if errors.Is(err, notification.ErrNotRetryable) {
				continue
			}
			s.logger.Warn("retry attempt failed",
				logger.NotificationID(n.ID),
				logger.Error(err))
		}
	}
}
