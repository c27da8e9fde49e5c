// Package health aggregates provider health. Every registered adapter is
// probed concurrently with a bounded timeout, and the per-channel report
// names the currently active provider so operators can see at a glance
// whether traffic is flowing through a degraded vendor.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

// ProviderStatus is one adapter's probe outcome.
type ProviderStatus struct {
	Provider  string `json:"provider"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ChannelReport aggregates a channel's providers. Overall is true when the
// active provider is healthy; a degraded fallback alone does not fail the
// channel.
type ChannelReport struct {
	Channel        notification.Channel `json:"channel"`
	Overall        bool                 `json:"overall"`
	ActiveProvider string               `json:"active_provider"`
	Providers      []ProviderStatus     `json:"providers"`
}

// Report is the full system health view.
type Report struct {
	Healthy   bool            `json:"healthy"`
	Channels  []ChannelReport `json:"channels"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Aggregator probes registered providers.
type Aggregator struct {
	registry     *provider.Registry
	selector     *provider.Selector
	probeTimeout time.Duration
	logger       *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithProbeTimeout bounds each individual probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.probeTimeout = d
		}
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAggregator creates an Aggregator over the registry and selector.
func NewAggregator(registry *provider.Registry, selector *provider.Selector, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry:     registry,
		selector:     selector,
		probeTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CheckAll probes every registered adapter concurrently and assembles the
// report. A probe that exceeds the timeout counts as unhealthy.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	report := Report{Healthy: true, CheckedAt: time.Now()}

	for _, channel := range a.registry.Channels() {
		adapters := a.registry.Channel(channel)

		futures := make([]*async.Future[ProviderStatus], 0, len(adapters))
		for _, adapter := range adapters {
			futures = append(futures, async.Async(ctx, adapter, a.probe))
		}
		statuses, _ := async.WaitAll(futures...)

		channelReport := ChannelReport{Channel: channel, Providers: statuses}

		if active, err := a.selector.Resolve(ctx, channel); err == nil {
			channelReport.ActiveProvider = active.Name()
			for _, st := range statuses {
				if st.Provider == active.Name() {
					channelReport.Overall = st.Healthy
				}
			}
		}
		if !channelReport.Overall {
			report.Healthy = false
		}

		report.Channels = append(report.Channels, channelReport)
	}
	return report
}

func (a *Aggregator) probe(ctx context.Context, adapter provider.Adapter) (ProviderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	start := time.Now()
	err := adapter.IsHealthy(ctx)
	status := ProviderStatus{
		Provider:  adapter.Name(),
		Healthy:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
		a.logger.WarnContext(ctx, "provider health probe failed",
			logger.Provider(adapter.Name()),
			logger.Error(err))
	}
	return status, nil
}
