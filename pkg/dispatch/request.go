package dispatch

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// SendRequest describes one notification to deliver. Content is provided
// either directly or by naming a template; when TemplateSlug is set the
// rendered content wins and Content is ignored.
type SendRequest struct {
	Channel      notification.Channel
	Recipient    string
	Sender       string
	Priority     notification.Priority
	TemplateSlug string
	Variables    map[string]string
	Content      *notification.Content
	// Attachments are appended to rendered email content, so templated
	// emails can still carry per-send files.
	Attachments    []notification.Attachment
	ScheduledAt    *time.Time
	IdempotencyKey string
	MaxRetries     int
	Metadata       map[string]string
}

func (r SendRequest) validate() error {
	if !r.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", notification.ErrValidation, r.Channel)
	}
	if r.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", notification.ErrValidation)
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", notification.ErrValidation, r.Priority)
	}
	if r.TemplateSlug == "" && r.Content == nil {
		return fmt.Errorf("%w: content or template slug is required", notification.ErrValidation)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", notification.ErrValidation)
	}
	return nil
}

// BulkResult summarizes a bulk send. Per-item failures do not abort the
// batch; failed entries carry the request index and the error.
type BulkResult struct {
	BatchID         string
	TotalQueued     int
	TotalFailed     int
	NotificationIDs []string
	Failures        []BulkFailure
}

// BulkFailure is one rejected request inside a bulk send.
type BulkFailure struct {
	Index int
	Err   error
}
