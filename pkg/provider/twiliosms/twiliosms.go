// Package twiliosms implements the SMS provider adapter backed by the
// Twilio Programmable Messaging API.
package twiliosms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

// AdapterName is the registry name of this vendor.
const AdapterName = "twilio"

// Config holds Twilio credentials and transport retry tuning.
type Config struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID,required"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN,required"`
	FromNumber string `env:"TWILIO_FROM_NUMBER,required"`
	// TransportRetries bounds the in-adapter retry of transient transport
	// errors. Application-level retries belong to the sweeper.
	TransportRetries int `env:"TWILIO_TRANSPORT_RETRIES" envDefault:"2"`
	BulkConcurrency  int `env:"TWILIO_BULK_CONCURRENCY" envDefault:"4"`
}

// api is the subset of the Twilio SDK the adapter uses.
type api interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
	FetchBalance(params *twilioapi.FetchBalanceParams) (*twilioapi.ApiV2010Balance, error)
}

// Adapter sends SMS through Twilio.
type Adapter struct {
	api     api
	config  Config
	backoff retry.BackoffStrategy
	sleep   func(time.Duration)
}

// New creates the Twilio SMS adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twiliosms: account sid and auth token are required")
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Adapter{
		api:     client.Api,
		config:  cfg,
		backoff: retry.DefaultBackoff(),
		sleep:   time.Sleep,
	}, nil
}

// NewWithAPI creates the adapter with a custom API implementation, for tests.
func NewWithAPI(a api, cfg Config) *Adapter {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	return &Adapter{api: a, config: cfg, backoff: retry.FixedBackoff{}, sleep: func(time.Duration) {}}
}

func (a *Adapter) Name() string                  { return AdapterName }
func (a *Adapter) Channel() notification.Channel { return notification.ChannelSMS }

func (a *Adapter) Send(ctx context.Context, p provider.Payload) (provider.Result, error) {
	if p.SMS == nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing sms content", nil)
	}

	from := p.From
	if from == "" {
		from = a.config.FromNumber
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(p.To)
	params.SetFrom(from)
	params.SetBody(p.SMS.Body)

	var lastErr error
	for attempt := 0; attempt <= a.config.TransportRetries; attempt++ {
		if attempt > 0 {
			a.sleep(a.backoff.NextInterval(attempt))
		}
		if err := ctx.Err(); err != nil {
			return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "context cancelled", err)
		}

		msg, err := a.api.CreateMessage(params)
		if err == nil {
			if msg.Sid == nil {
				return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeUnknown, "twilio response missing sid", nil)
			}
			return provider.Result{MessageID: *msg.Sid}, nil
		}

		lastErr = classify(err)
		if provider.CodeOf(lastErr) != provider.CodeTransient {
			return provider.Result{}, lastErr
		}
	}
	return provider.Result{}, lastErr
}

// SendBulk fans out individual sends with bounded concurrency; Twilio has
// no batch submission endpoint for plain SMS.
func (a *Adapter) SendBulk(ctx context.Context, payloads []provider.Payload) (provider.BulkResult, error) {
	sem := make(chan struct{}, a.config.BulkConcurrency)
	results := make([]provider.ItemResult, len(payloads))
	done := make(chan struct{})

	for i, p := range payloads {
		go func(idx int, payload provider.Payload) {
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := a.Send(ctx, payload)
			results[idx] = provider.ItemResult{Index: idx, MessageID: res.MessageID, Err: err}
			done <- struct{}{}
		}(i, p)
	}

	for range payloads {
		<-done
	}

	var result provider.BulkResult
	for _, item := range results {
		if item.Err != nil {
			result.Failed++
		} else {
			result.Sent++
		}
	}
	result.Results = results
	return result, nil
}

// IsHealthy fetches the account balance: a credential probe that sends
// nothing.
func (a *Adapter) IsHealthy(ctx context.Context) error {
	if _, err := a.api.FetchBalance(&twilioapi.FetchBalanceParams{}); err != nil {
		return fmt.Errorf("twilio health probe failed: %w", classify(err))
	}
	return nil
}

// classify maps Twilio REST errors to the adapter taxonomy using the HTTP
// status first, then the vendor error code.
func classify(err error) error {
	var restErr *twilioclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return provider.NewSendError(AdapterName, provider.CodeTransient, "twilio transport error", err)
	}

	code := provider.CodeUnknown
	switch {
	case restErr.Status == http.StatusTooManyRequests:
		code = provider.CodeRateLimited
	case restErr.Status == http.StatusUnauthorized || restErr.Status == http.StatusForbidden:
		code = provider.CodeAuth
	case restErr.Status >= 500:
		code = provider.CodeTransient
	case restErr.Status >= 400:
		// Invalid numbers, unsubscribed recipients, body violations.
		code = provider.CodeRejected
	}
	return provider.NewSendError(AdapterName, code, restErr.Message, err)
}
