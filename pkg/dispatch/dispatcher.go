package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/attachment"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

// Renderer resolves a template into channel content. Satisfied by
// *template.Resolver.
type Renderer interface {
	Render(ctx context.Context, slug string, channel notification.Channel, vars map[string]string) (*notification.Content, error)
}

// Sender performs one delivery attempt with failover. Satisfied by
// *provider.Selector.
type Sender interface {
	SendWithFailover(ctx context.Context, channel notification.Channel, p provider.Payload) (provider.Result, error)
}

// Dispatcher is the notification orchestrator.
type Dispatcher struct {
	store    notification.Store
	renderer Renderer
	sender   Sender
	enqueuer *queue.Enqueuer
	fetcher  attachment.Fetcher
	logger   *slog.Logger

	defaultMaxRetries int
	bulkConcurrency   int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueue enables asynchronous delivery through the given enqueuer.
// Without it every Send delivers inline.
func WithQueue(enqueuer *queue.Enqueuer) Option {
	return func(d *Dispatcher) { d.enqueuer = enqueuer }
}

// WithAttachmentFetcher wires storage-key attachment resolution.
func WithAttachmentFetcher(fetcher attachment.Fetcher) Option {
	return func(d *Dispatcher) { d.fetcher = fetcher }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDefaultMaxRetries sets the retry budget applied when a request does
// not specify one.
func WithDefaultMaxRetries(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.defaultMaxRetries = n
		}
	}
}

// WithBulkConcurrency bounds the fan-out of SendBulk.
func WithBulkConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bulkConcurrency = n
		}
	}
}

// New creates a Dispatcher.
func New(store notification.Store, renderer Renderer, sender Sender, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("dispatch: store is required")
	}
	if sender == nil {
		return nil, errors.New("dispatch: sender is required")
	}

	d := &Dispatcher{
		store:             store,
		renderer:          renderer,
		sender:            sender,
		logger:            slog.Default(),
		defaultMaxRetries: 3,
		bulkConcurrency:   8,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Send validates, persists and delivers one notification. When the request
// carries an idempotency key already held by an existing record, that
// record is returned unchanged and nothing new is created or sent. An
// inline delivery failure returns the FAILED record together with the
// delivery error, so synchronous callers see both the outcome and the
// cause.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*notification.Notification, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := d.checkSchedulable(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := d.store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			d.logger.InfoContext(ctx, "idempotent replay, returning existing notification",
				logger.NotificationID(existing.ID),
				slog.String("idempotency_key", req.IdempotencyKey))
			return existing, nil
		}
		if !errors.Is(err, notification.ErrNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	content, err := d.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := content.Validate(req.Channel); err != nil {
		return nil, err
	}

	n := d.buildNotification(req, content)
	if err := d.store.Create(ctx, n); err != nil {
		// A concurrent request with the same key won the insert race;
		// surface its record instead of an error.
		if errors.Is(err, notification.ErrDuplicateIdempotencyKey) && req.IdempotencyKey != "" {
			return d.store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return nil, fmt.Errorf("create notification: %w", err)
	}
	d.appendLog(ctx, n.ID, notification.LogCreated, "notification accepted")

	if d.enqueuer != nil {
		if _, err := d.enqueuer.Enqueue(ctx, n.ID, enqueueOptionsFor(n)...); err != nil {
			return nil, fmt.Errorf("enqueue notification %s: %w", n.ID, err)
		}
		d.appendLog(ctx, n.ID, notification.LogQueued, "delivery job scheduled")
		return n, nil
	}

	execErr := d.Execute(ctx, n.ID)
	rec, err := d.store.GetByID(ctx, n.ID)
	if err != nil {
		return nil, errors.Join(execErr, err)
	}
	if execErr != nil {
		d.logger.ErrorContext(ctx, "inline delivery failed",
			logger.NotificationID(n.ID),
			logger.Error(execErr))
		return rec, execErr
	}
	return rec, nil
}

// checkSchedulable rejects deferred requests on a dispatcher with no
// queue: delivering a future ScheduledAt inline would ignore the schedule.
func (d *Dispatcher) checkSchedulable(req SendRequest) error {
	if d.enqueuer == nil && req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
		return fmt.Errorf("%w: scheduled delivery requires a queue", notification.ErrValidation)
	}
	return nil
}

// GetByID returns the notification or notification.ErrNotFound.
func (d *Dispatcher) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	return d.store.GetByID(ctx, id)
}

// Logs returns the audit trail for a notification, oldest first.
func (d *Dispatcher) Logs(ctx context.Context, id uuid.UUID) ([]*notification.Log, error) {
	return d.store.Logs(ctx, id)
}

// Cancel stops a notification that has not started delivering. Records in
// PROCESSING or a terminal state answer notification.ErrConflict.
func (d *Dispatcher) Cancel(ctx context.Context, id uuid.UUID) error {
	n, err := d.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !n.Cancellable() {
		return fmt.Errorf("%w: notification %s is %s", notification.ErrConflict, id, n.Status)
	}

	if _, err := d.store.Transition(ctx, id, notification.StatusCancelled, nil); err != nil {
		// A worker claimed the record between the check and the write.
		if errors.Is(err, notification.ErrInvalidTransition) {
			return fmt.Errorf("%w: notification %s is no longer cancellable", notification.ErrConflict, id)
		}
		return err
	}

	if d.enqueuer != nil {
		if err := d.enqueuer.Cancel(ctx, id); err != nil &&
			!errors.Is(err, queue.ErrJobNotFound) && !errors.Is(err, queue.ErrJobNotCancellable) {
			d.logger.WarnContext(ctx, "failed to cancel delivery job",
				logger.NotificationID(id),
				logger.Error(err))
		}
	}

	d.appendLog(ctx, id, notification.LogCancelled, "cancelled before delivery")
	return nil
}

// RegisterPushToken stores or reactivates a device registration.
func (d *Dispatcher) RegisterPushToken(ctx context.Context, t *notification.PushToken) error {
	if t == nil || t.Token == "" {
		return fmt.Errorf("%w: push token is required", notification.ErrValidation)
	}
	return d.store.SavePushToken(ctx, t)
}

// DeactivatePushToken flags a device registration as gone.
func (d *Dispatcher) DeactivatePushToken(ctx context.Context, token string) error {
	return d.store.DeactivatePushToken(ctx, token)
}

func (d *Dispatcher) resolveContent(ctx context.Context, req SendRequest) (*notification.Content, error) {
	if req.TemplateSlug == "" {
		return req.Content, nil
	}
	if d.renderer == nil {
		return nil, fmt.Errorf("%w: no template renderer configured", notification.ErrValidation)
	}

	content, err := d.renderer.Render(ctx, req.TemplateSlug, req.Channel, req.Variables)
	if err != nil {
		var missing *template.MissingVariableError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", notification.ErrValidation, missing.Error())
		}
		return nil, err
	}
	if content.Email != nil && len(req.Attachments) > 0 {
		content.Email.Attachments = append(content.Email.Attachments, req.Attachments...)
	}
	return content, nil
}

func (d *Dispatcher) buildNotification(req SendRequest, content *notification.Content) *notification.Notification {
	priority := req.Priority
	if priority == "" {
		priority = notification.PriorityNormal
	}
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = d.defaultMaxRetries
	}

	status := notification.StatusPending
	if d.enqueuer != nil {
		status = notification.StatusQueued
	}

	n := &notification.Notification{
		ID:          uuid.New(),
		Channel:     req.Channel,
		Status:      status,
		Priority:    priority,
		Recipient:   req.Recipient,
		Sender:      req.Sender,
		Content:     *content,
		ScheduledAt: req.ScheduledAt,
		MaxRetries:  maxRetries,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		n.IdempotencyKey = &key
	}
	return n
}

func enqueueOptionsFor(n *notification.Notification) []queue.EnqueueOption {
	opts := []queue.EnqueueOption{queue.WithPriority(n.Priority)}
	if n.ScheduledAt != nil {
		opts = append(opts, queue.WithScheduledAt(*n.ScheduledAt))
	}
	return opts
}

func (d *Dispatcher) appendLog(ctx context.Context, id uuid.UUID, event notification.LogEvent, message string) {
	if err := d.store.AppendLog(ctx, notification.NewLog(id, event, message)); err != nil {
		d.logger.ErrorContext(ctx, "failed to append audit log",
			logger.NotificationID(id),
			logger.Event(string(event)),
			logger.Error(err))
	}
}
