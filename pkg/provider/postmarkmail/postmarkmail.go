// Package postmarkmail implements the email provider adapter backed by the
// Postmark transactional API.
package postmarkmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

// AdapterName is the registry name of this vendor.
const AdapterName = "postmark"

// Postmark rejects batches above 500 messages.
const maxBatchSize = 500

// Config holds Postmark credentials and bulk tuning.
type Config struct {
	ServerToken     string `env:"POSTMARK_SERVER_TOKEN,required"`
	AccountToken    string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	DefaultFrom     string `env:"POSTMARK_DEFAULT_FROM,required"`
	BulkConcurrency int    `env:"POSTMARK_BULK_CONCURRENCY" envDefault:"4"`
	TrackOpens      bool   `env:"POSTMARK_TRACK_OPENS" envDefault:"true"`
}

// client is the subset of the Postmark API the adapter uses, extracted for
// test doubles.
type client interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
	SendEmailBatch(ctx context.Context, emails []postmark.Email) ([]postmark.EmailResponse, error)
	GetCurrentServer(ctx context.Context) (postmark.Server, error)
}

// Adapter sends email through Postmark.
type Adapter struct {
	client client
	config Config
}

// New creates the Postmark email adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.ServerToken == "" || cfg.AccountToken == "" {
		return nil, fmt.Errorf("postmarkmail: server and account tokens are required")
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	return &Adapter{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

// NewWithClient creates the adapter with a custom API client, for tests.
func NewWithClient(c client, cfg Config) *Adapter {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	return &Adapter{client: c, config: cfg}
}

func (a *Adapter) Name() string                  { return AdapterName }
func (a *Adapter) Channel() notification.Channel { return notification.ChannelEmail }

// mapPayload converts the generic payload to the Postmark request shape.
// Pure function, unit-testable without a live call.
func (a *Adapter) mapPayload(p provider.Payload) postmark.Email {
	from := p.From
	if from == "" {
		from = a.config.DefaultFrom
	}
	email := postmark.Email{
		From:       from,
		To:         p.To,
		Subject:    p.Email.Subject,
		HTMLBody:   p.Email.HTMLBody,
		TextBody:   p.Email.TextBody,
		TrackOpens: a.config.TrackOpens,
	}
	for _, att := range p.Email.Attachments {
		email.Attachments = append(email.Attachments, postmark.Attachment{
			Name:        att.Name,
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			ContentType: att.ContentType,
		})
	}
	return email
}

func (a *Adapter) Send(ctx context.Context, p provider.Payload) (provider.Result, error) {
	if p.Email == nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing email content", nil)
	}

	resp, err := a.client.SendEmail(ctx, a.mapPayload(p))
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "postmark request failed", err)
	}
	if resp.ErrorCode > 0 {
		return provider.Result{}, provider.NewSendError(AdapterName, classify(resp.ErrorCode), resp.Message, nil)
	}
	return provider.Result{MessageID: resp.MessageID}, nil
}

// SendBulk chunks payloads into vendor-safe batches and executes them with
// a bounded fan-out. Per-recipient outcomes are independent.
func (a *Adapter) SendBulk(ctx context.Context, payloads []provider.Payload) (provider.BulkResult, error) {
	type chunkOutcome struct {
		offset    int
		responses []postmark.EmailResponse
		err       error
	}

	sem := make(chan struct{}, a.config.BulkConcurrency)
	var futures []*async.Future[chunkOutcome]

	for offset := 0; offset < len(payloads); offset += maxBatchSize {
		end := min(offset+maxBatchSize, len(payloads))
		chunk := payloads[offset:end]

		emails := make([]postmark.Email, 0, len(chunk))
		for _, p := range chunk {
			emails = append(emails, a.mapPayload(p))
		}

		off := offset
		futures = append(futures, async.Async(ctx, emails, func(ctx context.Context, batch []postmark.Email) (chunkOutcome, error) {
			sem <- struct{}{}
			defer func() { <-sem }()

			responses, err := a.client.SendEmailBatch(ctx, batch)
			return chunkOutcome{offset: off, responses: responses, err: err}, nil
		}))
	}

	outcomes, _ := async.WaitAll(futures...)

	var result provider.BulkResult
	result.Results = make([]provider.ItemResult, len(payloads))
	for _, oc := range outcomes {
		for i := range payloads[oc.offset:min(oc.offset+maxBatchSize, len(payloads))] {
			idx := oc.offset + i
			item := provider.ItemResult{Index: idx}
			switch {
			case oc.err != nil:
				item.Err = provider.NewSendError(AdapterName, provider.CodeTransient, "postmark batch failed", oc.err)
			case oc.responses[i].ErrorCode > 0:
				item.Err = provider.NewSendError(AdapterName, classify(oc.responses[i].ErrorCode), oc.responses[i].Message, nil)
			default:
				item.MessageID = oc.responses[i].MessageID
			}
			if item.Err != nil {
				result.Failed++
			} else {
				result.Sent++
			}
			result.Results[idx] = item
		}
	}
	return result, nil
}

// IsHealthy fetches the server record: a cheap credential probe that never
// sends mail.
func (a *Adapter) IsHealthy(ctx context.Context) error {
	if _, err := a.client.GetCurrentServer(ctx); err != nil {
		return fmt.Errorf("postmark health probe failed: %w", err)
	}
	return nil
}

// classify maps Postmark API error codes to the adapter error taxonomy.
func classify(code int64) provider.ErrorCode {
	switch code {
	case 300, 400, 405, 406: // invalid request, sender/recipient problems, inactive recipient
		return provider.CodeRejected
	case 401, 403, 10: // bad or missing token
		return provider.CodeAuth
	case int64(http.StatusTooManyRequests):
		return provider.CodeRateLimited
	default:
		return provider.CodeUnknown
	}
}
