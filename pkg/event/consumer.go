package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Handler reacts to one event type.
type Handler interface {
	// EventName returns the event this handler subscribes to.
	EventName() string

	// Handle processes one validated envelope.
	Handle(ctx context.Context, e Envelope) error
}

// Consumer routes envelopes to their handlers.
type Consumer struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer creates a Consumer with the given handlers registered.
func NewConsumer(opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		handlers: make(map[string][]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register subscribes handlers to their event names. Multiple handlers per
// event are allowed and run in registration order.
func (c *Consumer) Register(handlers ...Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range handlers {
		if h == nil {
			continue
		}
		c.handlers[h.EventName()] = append(c.handlers[h.EventName()], h)
	}
}

// Consume validates the envelope and fans it out to every subscribed
// handler. A handler error or panic is logged and contained; remaining
// handlers still run. Events nobody subscribes to are dropped with a
// warning.
func (c *Consumer) Consume(ctx context.Context, e Envelope) error {
	if err := e.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	handlers := c.handlers[e.EventName]
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.WarnContext(ctx, "no handler subscribed to event",
			logger.Event(e.EventName),
			logger.EventID(e.Metadata.EventID))
		return nil
	}

	for _, h := range handlers {
		c.runHandler(ctx, h, e)
	}
	return nil
}

// ConsumeRaw parses raw bytes and consumes the resulting envelope.
func (c *Consumer) ConsumeRaw(ctx context.Context, raw []byte) error {
	e, err := Parse(raw)
	if err != nil {
		return err
	}
	return c.Consume(ctx, e)
}

func (c *Consumer) runHandler(ctx context.Context, h Handler, e Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "event handler panicked",
				logger.Event(e.EventName),
				logger.EventID(e.Metadata.EventID),
				logger.Handler(fmt.Sprintf("%T", h)),
				slog.Any("panic", r))
		}
	}()

	if err := h.Handle(ctx, e); err != nil {
		c.logger.ErrorContext(ctx, "event handler failed",
			logger.Event(e.EventName),
			logger.EventID(e.Metadata.EventID),
			logger.Handler(fmt.Sprintf("%T", h)),
			logger.Error(err))
	}
}
