// Package fcmpush implements the push provider adapter backed by the
// Firebase Cloud Messaging HTTP v1 API. Authentication uses a service
// account JWT exchanged for OAuth2 access tokens.
package fcmpush

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

// AdapterName is the registry name of this vendor.
const AdapterName = "fcm"

const (
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	endpointFormat = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
)

// Config holds FCM project settings.
type Config struct {
	ProjectID string `env:"FCM_PROJECT_ID,required"`
	// CredentialsJSON is the raw service account key. Loaded from a file
	// path or secret store by the caller.
	CredentialsJSON []byte        `env:"FCM_CREDENTIALS_JSON,required"`
	RequestTimeout  time.Duration `env:"FCM_REQUEST_TIMEOUT" envDefault:"15s"`
	BulkConcurrency int           `env:"FCM_BULK_CONCURRENCY" envDefault:"8"`
}

// doer abstracts the authenticated HTTP client for tests.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Adapter sends push notifications through FCM.
type Adapter struct {
	client   doer
	endpoint string
	config   Config
}

// New creates the FCM push adapter. The OAuth2 client caches and refreshes
// access tokens transparently.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("fcmpush: project id is required")
	}
	jwtConf, err := google.JWTConfigFromJSON(cfg.CredentialsJSON, messagingScope)
	if err != nil {
		return nil, fmt.Errorf("fcmpush: parse credentials: %w", err)
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 8
	}

	client := jwtConf.Client(ctx)
	client.Timeout = cfg.RequestTimeout

	return &Adapter{
		client:   client,
		endpoint: fmt.Sprintf(endpointFormat, cfg.ProjectID),
		config:   cfg,
	}, nil
}

// NewWithClient creates the adapter with a custom HTTP client, for tests.
func NewWithClient(client doer, cfg Config) *Adapter {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 8
	}
	return &Adapter{
		client:   client,
		endpoint: fmt.Sprintf(endpointFormat, cfg.ProjectID),
		config:   cfg,
	}
}

func (a *Adapter) Name() string                  { return AdapterName }
func (a *Adapter) Channel() notification.Channel { return notification.ChannelPush }

// fcmMessage mirrors the HTTP v1 message shape. Data values must be
// strings per the API contract.
type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmResponse struct {
	Name  string `json:"name"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapPayload converts the generic payload to the FCM request shape. The
// recipient address is the device registration token.
func mapPayload(p provider.Payload) fcmRequest {
	msg := fcmMessage{Token: p.To, Data: p.Push.Data}
	if p.Push.Title != "" || p.Push.Body != "" {
		msg.Notification = &fcmNotification{Title: p.Push.Title, Body: p.Push.Body}
	}
	return fcmRequest{Message: msg}
}

func (a *Adapter) Send(ctx context.Context, p provider.Payload) (provider.Result, error) {
	if p.Push == nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing push content", nil)
	}
	if p.To == "" {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing device token", nil)
	}

	body, err := json.Marshal(mapPayload(p))
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "encode message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeUnknown, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "fcm request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "read fcm response", err)
	}

	var parsed fcmResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		return provider.Result{}, a.classify(resp.StatusCode, parsed)
	}
	return provider.Result{MessageID: parsed.Name}, nil
}

// SendBulk fans out per-device sends with bounded concurrency. The HTTP v1
// API retired batch endpoints, so multicast is client-side.
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

// IsHealthy validates that an access token can be minted; FCM has no
// dedicated ping endpoint and sending a probe message is not acceptable.
func (a *Adapter) IsHealthy(ctx context.Context) error {
	jwtConf, err := google.JWTConfigFromJSON(a.config.CredentialsJSON, messagingScope)
	if err != nil {
		return fmt.Errorf("fcm credentials invalid: %w", err)
	}
	if _, err := jwtConf.TokenSource(ctx).Token(); err != nil {
		return fmt.Errorf("fcm token exchange failed: %w", err)
	}
	return nil
}

// classify maps HTTP v1 error responses to the adapter taxonomy. The
// UNREGISTERED status marks a dead device token that must be deactivated.
func (a *Adapter) classify(statusCode int, parsed fcmResponse) error {
	status := ""
	message := http.StatusText(statusCode)
	if parsed.Error != nil {
		status = parsed.Error.Status
		message = parsed.Error.Message
	}

	code := provider.CodeUnknown
	switch {
	case status == "UNREGISTERED" || statusCode == http.StatusNotFound:
		code = provider.CodeTokenGone
	case statusCode == http.StatusTooManyRequests || status == "QUOTA_EXCEEDED":
		code = provider.CodeRateLimited
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = provider.CodeAuth
	case statusCode == http.StatusBadRequest:
		code = provider.CodeRejected
	case statusCode >= 500:
		code = provider.CodeTransient
	}
	return provider.NewSendError(AdapterName, code, message, nil)
}
