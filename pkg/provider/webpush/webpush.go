// Package webpush implements the push provider adapter for browser push
// services speaking the Web Push protocol (RFC 8030). Payloads are
// end-to-end encrypted per RFC 8291 and requests carry RFC 8292 VAPID
// authorization, so the adapter works against any compliant push service
// without vendor credentials.
package webpush

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

// AdapterName is the registry name of this vendor.
const AdapterName = "webpush"

// Config holds VAPID keys and delivery settings.
type Config struct {
	VAPIDPrivateKey string `env:"WEBPUSH_VAPID_PRIVATE_KEY,required"`
	VAPIDPublicKey  string `env:"WEBPUSH_VAPID_PUBLIC_KEY"`
	// Subject is the operator contact URI push services may use, a
	// mailto: or https: URL.
	Subject         string        `env:"WEBPUSH_SUBJECT,required"`
	TTL             time.Duration `env:"WEBPUSH_TTL" envDefault:"24h"`
	RequestTimeout  time.Duration `env:"WEBPUSH_REQUEST_TIMEOUT" envDefault:"15s"`
	BulkConcurrency int           `env:"WEBPUSH_BULK_CONCURRENCY" envDefault:"8"`
}

// doer abstracts the HTTP client for tests.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Adapter delivers push messages to browser push service endpoints.
type Adapter struct {
	client doer
	signer *vapidSigner
	config Config
}

// New creates the web push adapter.
func New(cfg Config) (*Adapter, error) {
	signer, err := newVAPIDSigner(cfg.VAPIDPrivateKey, cfg.VAPIDPublicKey, cfg.Subject)
	if err != nil {
		return nil, fmt.Errorf("webpush: %w", err)
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 8
	}
	return &Adapter{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		signer: signer,
		config: cfg,
	}, nil
}

// NewWithClient creates the adapter with a custom HTTP client, for tests.
func NewWithClient(client doer, cfg Config) (*Adapter, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	a.client = client
	return a, nil
}

func (a *Adapter) Name() string                  { return AdapterName }
func (a *Adapter) Channel() notification.Channel { return notification.ChannelPush }

// message is the JSON shape the service worker receives after decryption.
type message struct {
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

func (a *Adapter) Send(ctx context.Context, p provider.Payload) (provider.Result, error) {
	if p.Push == nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing push content", nil)
	}
	sub := p.Push.Subscription
	if sub == nil || sub.Endpoint == "" {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing push subscription", nil)
	}

	plaintext, err := json.Marshal(message{Title: p.Push.Title, Body: p.Push.Body, Data: p.Push.Data})
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "encode message", err)
	}
	body, err := encrypt(plaintext, sub.P256DH, sub.Auth)
	if err != nil {
		// Malformed subscription keys cannot succeed on retry.
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "encrypt payload", err)
	}

	auth, err := a.signer.header(sub.Endpoint)
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeAuth, "sign vapid token", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "build request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("TTL", strconv.Itoa(int(a.config.TTL.Seconds())))
	req.Header.Set("Authorization", auth)

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "push service request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Result{}, classify(resp.StatusCode)
	}

	// Push services identify the message via the Location header; fall
	// back to a generated id when absent.
	messageID := resp.Header.Get("Location")
	if messageID == "" {
		messageID = uuid.New().String()
	}
	return provider.Result{MessageID: messageID}, nil
}

// SendBulk fans out per-subscription sends with bounded concurrency; the
// protocol has no batch submission.
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

// IsHealthy verifies the VAPID key pair can sign; there is no single push
// service to probe since every subscription names its own endpoint.
func (a *Adapter) IsHealthy(ctx context.Context) error {
	if _, err := a.signer.header("https://updates.push.services.mozilla.com"); err != nil {
		return errors.Join(provider.ErrServiceUnavailable, err)
	}
	return nil
}

// classify maps push service status codes to the adapter taxonomy. Expired
// and unsubscribed endpoints answer 404 or 410 and must be deactivated.
func classify(statusCode int) error {
	code := provider.CodeUnknown
	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		code = provider.CodeTokenGone
	case statusCode == http.StatusTooManyRequests:
		code = provider.CodeRateLimited
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = provider.CodeAuth
	case statusCode == http.StatusBadRequest || statusCode == http.StatusRequestEntityTooLarge:
		code = provider.CodeRejected
	case statusCode >= 500:
		code = provider.CodeTransient
	}
	return provider.NewSendError(AdapterName, code, http.StatusText(statusCode), nil)
}
