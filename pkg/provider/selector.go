package provider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// OverrideSource reports the active default provider for a channel, or an
// error when no override record exists. Backed by the notification store's
// provider_overrides surface in production.
type OverrideSource func(ctx context.Context, channel notification.Channel) (string, error)

// SelectorConfig names the static primary provider per channel. A DB
// override, when present, takes precedence at resolve time.
type SelectorConfig struct {
	EmailProvider string `env:"PROVIDER_EMAIL" envDefault:"postmark"`
	SMSProvider   string `env:"PROVIDER_SMS" envDefault:"twilio"`
	PushProvider  string `env:"PROVIDER_PUSH" envDefault:"fcm"`
}

func (c SelectorConfig) primary(channel notification.Channel) string {
	switch channel {
	case notification.ChannelEmail:
		return c.EmailProvider
	case notification.ChannelSMS:
		return c.SMSProvider
	case notification.ChannelPush:
		return c.PushProvider
	}
	return ""
}

// Selector chooses the active provider per channel and applies the
// one-level failover policy.
type Selector struct {
	registry  *Registry
	config    SelectorConfig
	overrides OverrideSource
	logger    *slog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithOverrideSource wires the per-channel DB override lookup.
func WithOverrideSource(src OverrideSource) SelectorOption {
	return func(s *Selector) { s.overrides = src }
}

// WithSelectorLogger sets the logger for selection and failover events.
func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = logger }
}

// NewSelector creates a selector over the registry.
func NewSelector(registry *Registry, cfg SelectorConfig, opts ...SelectorOption) *Selector {
	s := &Selector{
		registry: registry,
		config:   cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the active adapter for a channel: the DB override when an
// active record exists, otherwise the static configuration value. A missing
// override is not an error; it is logged and the static primary is used.
func (s *Selector) Resolve(ctx context.Context, channel notification.Channel) (Adapter, error) {
	if len(s.registry.Channel(channel)) == 0 {
		return nil, ErrNoProvider
	}

	name := s.config.primary(channel)
	if s.overrides != nil {
		override, err := s.overrides(ctx, channel)
		switch {
		case err == nil && override != "":
			name = override
		case err != nil:
			s.logger.WarnContext(ctx, "no provider override record, using static configuration",
				logger.Channel(string(channel)),
				logger.Provider(name))
		}
	}

	return s.registry.Get(channel, name)
}

// fallbackFor returns the channel's other configured vendor, or nil when
// the channel has a single adapter. Failover is two-provider, not N-ary.
func (s *Selector) fallbackFor(channel notification.Channel, primary Adapter) Adapter {
	for _, a := range s.registry.Channel(channel) {
		if a.Name() != primary.Name() {
			return a
		}
	}
	return nil
}

// SendWithFailover invokes the channel's active adapter and, on any
// failure, attempts exactly one fallback. Failover is per-attempt: each
// individual send, including sweeper retries, runs its own primary to
// fallback sequence.
func (s *Selector) SendWithFailover(ctx context.Context, channel notification.Channel, p Payload) (Result, error) {
	primary, err := s.Resolve(ctx, channel)
	if err != nil {
		return Result{}, err
	}

	res, primaryErr := primary.Send(ctx, p)
	if primaryErr == nil {
		res.Provider = primary.Name()
		return res, nil
	}

	s.logger.WarnContext(ctx, "primary provider failed, attempting fallback",
		logger.Channel(string(channel)),
		logger.Provider(primary.Name()),
		logger.Error(primaryErr))

	fallback := s.fallbackFor(channel, primary)
	if fallback == nil {
		return Result{}, errors.Join(ErrServiceUnavailable, primaryErr)
	}

	res, fallbackErr := fallback.Send(ctx, p)
	if fallbackErr == nil {
		res.Provider = fallback.Name()
		return res, nil
	}

	s.logger.ErrorContext(ctx, "fallback provider failed",
		logger.Channel(string(channel)),
		logger.Provider(fallback.Name()),
		logger.Errors(primaryErr, fallbackErr))

	return Result{}, errors.Join(ErrServiceUnavailable, primaryErr, fallbackErr)
}
