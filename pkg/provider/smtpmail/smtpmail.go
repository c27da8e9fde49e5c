// Package smtpmail implements the email provider adapter for a plain SMTP
// relay. It is the fallback vendor next to the Postmark API adapter and is
// also useful against local catch-all relays in development.
package smtpmail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

// AdapterName is the registry name of this vendor.
const AdapterName = "smtp"

// Config holds relay connection settings.
type Config struct {
	Host            string        `env:"SMTP_HOST,required"`
	Port            int           `env:"SMTP_PORT" envDefault:"587"`
	Username        string        `env:"SMTP_USERNAME"`
	Password        string        `env:"SMTP_PASSWORD"`
	DefaultFrom     string        `env:"SMTP_DEFAULT_FROM,required"`
	DialTimeout     time.Duration `env:"SMTP_DIAL_TIMEOUT" envDefault:"10s"`
	BulkConcurrency int           `env:"SMTP_BULK_CONCURRENCY" envDefault:"4"`
}

// sendFunc matches smtp.SendMail, extracted so tests can intercept the
// wire call.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Adapter sends email through an SMTP relay.
type Adapter struct {
	config Config
	send   sendFunc
	dial   func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// New creates the SMTP relay adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtpmail: host is required")
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	return &Adapter{config: cfg, send: smtp.SendMail, dial: net.DialTimeout}, nil
}

// NewWithSender creates the adapter with a custom wire function, for tests.
func NewWithSender(cfg Config, send sendFunc) *Adapter {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	return &Adapter{config: cfg, send: send, dial: net.DialTimeout}
}

func (a *Adapter) Name() string                  { return AdapterName }
func (a *Adapter) Channel() notification.Channel { return notification.ChannelEmail }

func (a *Adapter) addr() string {
	return net.JoinHostPort(a.config.Host, strconv.Itoa(a.config.Port))
}

func (a *Adapter) auth() smtp.Auth {
	if a.config.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", a.config.Username, a.config.Password, a.config.Host)
}

func (a *Adapter) Send(ctx context.Context, p provider.Payload) (provider.Result, error) {
	if p.Email == nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeRejected, "missing email content", nil)
	}
	if err := ctx.Err(); err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "context cancelled", err)
	}

	from := p.From
	if from == "" {
		from = a.config.DefaultFrom
	}

	// Relays do not assign ids; generate one so the lifecycle record still
	// carries a provider message id.
	messageID := uuid.New().String() + "@" + a.config.Host
	msg := buildMessage(messageID, from, p.To, p.Email)

	if err := a.send(a.addr(), a.auth(), from, []string{p.To}, msg); err != nil {
		return provider.Result{}, provider.NewSendError(AdapterName, provider.CodeTransient, "smtp delivery failed", err)
	}
	return provider.Result{MessageID: messageID}, nil
}

// SendBulk fans out individual deliveries with bounded concurrency; SMTP
// has no batch submission, so each recipient is an independent send.
func (a *Adapter) SendBulk(ctx context.Context, payloads []provider.Payload) (provider.BulkResult, error) {
	sem := make(chan struct{}, a.config.BulkConcurrency)
	results := make([]provider.ItemResult, len(payloads))
	done := make(chan int)

	for i, p := range payloads {
		go func(idx int, payload provider.Payload) {
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := a.Send(ctx, payload)
			results[idx] = provider.ItemResult{Index: idx, MessageID: res.MessageID, Err: err}
			done <- idx
		}(i, p)
	}

	var result provider.BulkResult
	for range payloads {
		<-done
	}
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

// IsHealthy probes relay connectivity with a TCP dial; no message is sent.
func (a *Adapter) IsHealthy(ctx context.Context) error {
	conn, err := a.dial("tcp", a.addr(), a.config.DialTimeout)
	if err != nil {
		return fmt.Errorf("smtp relay unreachable: %w", err)
	}
	return conn.Close()
}
