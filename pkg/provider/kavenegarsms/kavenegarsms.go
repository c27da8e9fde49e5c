// Package kavenegarsms implements the SMS provider adapter backed by the
// Kavenegar API. Messages with a pre-registered template id go through the
// verify-lookup endpoint; free-body messages use the regular send endpoint.
package kavenegarsms

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/kavenegar/kavenegar-go"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

// AdapterName is the registry name of this vendor.
const AdapterName = "kavenegar"

// Config holds Kavenegar credentials and transport retry tuning.
type Config struct {
	APIKey string `env:"KAVENEGAR_API_KEY,required"`
	Sender string `env:"KAVENEGAR_SENDER,required"`
	// TransportRetries bounds the in-adapter retry of transient transport
	// errors. Application-level retries belong to the sweeper.
	TransportRetries int `env:"KAVENEGAR_TRANSPORT_RETRIES" envDefault:"2"`
}

// api is the subset of the Kavenegar SDK the adapter uses.
type api interface {
	Send(sender string, receptor []string, message string) ([]kavenegar.Message, error)
	VerifyLookup(receptor, template, token string) (kavenegar.Message, error)
	AccountInfo() (kavenegar.AccountInfo, error)
}

// sdkAPI adapts the concrete SDK client to the narrow api interface.
type sdkAPI struct {
	client *kavenegar.Kavenegar
}

func (s *sdkAPI) Send(sender string, receptor []string, message string) ([]kavenegar.Message, error) {
	return s.client.Message.Send(sender, receptor, message, nil)
}

func (s *sdkAPI) VerifyLookup(receptor, template, token string) (kavenegar.Message, error) {
	return s.client.Verify.Lookup(receptor, template, token, &kavenegar.VerifyLookupParam{})
}

func (s *sdkAPI) AccountInfo() (kavenegar.AccountInfo, error) {
	return s.client.Account.Info()
}

// Adapter sends SMS through Kavenegar.
type Adapter struct {
	api     api
	config  Config
	backoff retry.BackoffStrategy
	sleep   func(time.Duration)
}

// New creates the Kavenegar SMS adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("kavenegarsms: api key is required")
	}
	return &Adapter{
		api:     &sdkAPI{client: kavenegar.New(cfg.APIKey)},
		config:  cfg,
		backoff: retry.DefaultBackoff(),
		sleep:   time.Sleep,
	}, nil
}

// NewWithAPI creates the adapter with a custom API implementation, for tests.
func NewWithAPI(a api, cfg Config) *Adapter {
	return &Adapter{api: a, config: cfg, backoff: retry.FixedBackoff{}, sleep: func(time.Duration) {}}
}

func (a *Adapter) Name() string                  { return AdapterName }
func (a *Adapter) Channel() notification.Channel { return notification.ChannelSMS }

func (a *Adapter) Send(ctx context.Context, p provider.Payload) (provider.Result, error) {
	if p.SMS == nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing sms content", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.TransportRetries; attempt++ {
		if attempt > 0 {
			a.sleep(a.backoff.NextInterval(attempt))
		}
		if err := ctx.Err(); err != nil {
			return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "context cancelled", err)
		}

		messageID, err := a.sendOnce(p)
		if err == nil {
			return provider.Result{MessageID: messageID}, nil
		}
		lastErr = err

		// Only transient transport failures are worth an in-adapter retry.
		if provider.CodeOf(err) != provider.CodeTransient {
			return provider.Result{}, err
		}
	}
	return provider.Result{}, lastErr
}

// sendOnce maps the payload to the right vendor endpoint and performs one
// wire attempt.
func (a *Adapter) sendOnce(p provider.Payload) (string, error) {
	if p.SMS.TemplateID != "" {
		token := p.SMS.Tokens["token"]
		if token == "" {
			token = p.SMS.Tokens["code"]
		}
		res, err := a.api.VerifyLookup(p.To, p.SMS.TemplateID, token)
		if err != nil {
			return "", classify(err)
		}
		return strconv.Itoa(res.MessageID), nil
	}

	sender := p.From
	if sender == "" {
		sender = a.config.Sender
	}
	res, err := a.api.Send(sender, []string{p.To}, p.SMS.Body)
	if err != nil {
		return "", classify(err)
	}
	if len(res) == 0 {
		return "", provider.NewSendError(AdapterName, provider.CodeUnknown, "empty response from kavenegar", nil)
	}
	return strconv.Itoa(res[0].MessageID), nil
}

// SendBulk performs sequential sends; Kavenegar rate limits are strict
// enough that SMS batches stay small and ordered.
func (a *Adapter) SendBulk(ctx context.Context, payloads []provider.Payload) (provider.BulkResult, error) {
	var result provider.BulkResult
	result.Results = make([]provider.ItemResult, len(payloads))
	for i, p := range payloads {
		res, err := a.Send(ctx, p)
		result.Results[i] = provider.ItemResult{Index: i, MessageID: res.MessageID, Err: err}
		if err != nil {
			result.Failed++
		} else {
			result.Sent++
		}
	}
	return result, nil
}

// IsHealthy fetches account info: a credential probe that sends nothing.
func (a *Adapter) IsHealthy(ctx context.Context) error {
	if _, err := a.api.AccountInfo(); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps SDK error types to the adapter taxonomy: API errors are
// vendor-side rejections, HTTP errors are transport-level and transient.
func classify(err error) error {
	var apiErr *kavenegar.APIError
	if errors.As(err, &apiErr) {
		return provider.NewSendError(AdapterName, provider.CodeRejected, "kavenegar rejected the request", err)
	}
	var httpErr *kavenegar.HTTPError
	if errors.As(err, &httpErr) {
		return provider.NewSendError(AdapterName, provider.CodeTransient, "kavenegar transport error", err)
	}
	return provider.NewSendError(AdapterName, provider.CodeUnknown, "kavenegar send failed", err)
}
