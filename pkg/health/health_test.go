package health_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/health"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

type probeAdapter struct {
	name      string
	channel   notification.Channel
	healthErr error
	delay     time.Duration
}

func (p *probeAdapter) Name() string                  { return p.name }
func (p *probeAdapter) Channel() notification.Channel { return p.channel }

func (p *probeAdapter) Send(ctx context.Context, payload provider.Payload) (provider.Result, error) {
	return provider.Result{}, errors.New("not used")
}

func (p *probeAdapter) SendBulk(ctx context.Context, payloads []provider.Payload) (provider.BulkResult, error) {
	return provider.BulkResult{}, errors.New("not used")
}

func (p *probeAdapter) IsHealthy(ctx context.Context) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.healthErr
}

func channelReport(t *testing.T, report health.Report, channel notification.Channel) health.ChannelReport {
	t.Helper()
	for _, cr := range report.Channels {
		if cr.Channel == channel {
			return cr
		}
	}
	t.Fatalf("no report for channel %s", channel)
	return health.ChannelReport{}
}

func TestAggregator_AllHealthy(t *testing.T) {
	t.Parallel()

	postmark := &probeAdapter{name: "postmark", channel: notification.ChannelEmail}
	smtp := &probeAdapter{name: "smtp", channel: notification.ChannelEmail}
	twilio := &probeAdapter{name: "twilio", channel: notification.ChannelSMS}
	registry, err := provider.NewRegistry(postmark, smtp, twilio)
	require.NoError(t, err)
	selector := provider.NewSelector(registry, provider.SelectorConfig{
		EmailProvider: "postmark",
		SMSProvider:   "twilio",
	})

	report := health.NewAggregator(registry, selector).CheckAll(context.Background())

	assert.True(t, report.Healthy)
	require.Len(t, report.Channels, 2)

	email := channelReport(t, report, notification.ChannelEmail)
	assert.True(t, email.Overall)
	assert.Equal(t, "postmark", email.ActiveProvider)
	assert.Len(t, email.Providers, 2)
}

func TestAggregator_DegradedFallbackDoesNotFailChannel(t *testing.T) {
	t.Parallel()

	postmark := &probeAdapter{name: "postmark", channel: notification.ChannelEmail}
	smtp := &probeAdapter{name: "smtp", channel: notification.ChannelEmail, healthErr: errors.New("connection refused")}
	registry, err := provider.NewRegistry(postmark, smtp)
	require.NoError(t, err)
	selector := provider.NewSelector(registry, provider.SelectorConfig{EmailProvider: "postmark"})

	report := health.NewAggregator(registry, selector).CheckAll(context.Background())

	assert.True(t, report.Healthy, "the active provider is healthy, so the channel is")
	email := channelReport(t, report, notification.ChannelEmail)
	assert.True(t, email.Overall)

	var smtpStatus health.ProviderStatus
	for _, st := range email.Providers {
		if st.Provider == "smtp" {
			smtpStatus = st
		}
	}
	assert.False(t, smtpStatus.Healthy)
	assert.Contains(t, smtpStatus.Error, "connection refused")
}

func TestAggregator_UnhealthyActiveProviderFailsChannel(t *testing.T) {
	t.Parallel()

	postmark := &probeAdapter{name: "postmark", channel: notification.ChannelEmail, healthErr: errors.New("401")}
	smtp := &probeAdapter{name: "smtp", channel: notification.ChannelEmail}
	registry, err := provider.NewRegistry(postmark, smtp)
	require.NoError(t, err)
	selector := provider.NewSelector(registry, provider.SelectorConfig{EmailProvider: "postmark"})

	report := health.NewAggregator(registry, selector).CheckAll(context.Background())

	assert.False(t, report.Healthy)
	email := channelReport(t, report, notification.ChannelEmail)
	assert.False(t, email.Overall)
}

func TestAggregator_ProbeTimeout(t *testing.T) {
	t.Parallel()

	slow := &probeAdapter{name: "postmark", channel: notification.ChannelEmail, delay: time.Second}
	registry, err := provider.NewRegistry(slow)
	require.NoError(t, err)
	selector := provider.NewSelector(registry, provider.SelectorConfig{EmailProvider: "postmark"})

	report := health.NewAggregator(registry, selector,
		health.WithProbeTimeout(20*time.Millisecond)).CheckAll(context.Background())

	assert.False(t, report.Healthy, "a probe exceeding the timeout counts as unhealthy")
}
