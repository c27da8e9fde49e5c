package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
)

// Execute performs one delivery attempt for a created notification. It is
// the handler behind queue workers and the inline path of Send. Records
// cancelled between scheduling and claim are skipped silently.
func (d *Dispatcher) Execute(ctx context.Context, id uuid.UUID) error {
	n, err := d.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.Status == notification.StatusCancelled {
		return nil
	}

	n, err = d.store.Transition(ctx, id, notification.StatusProcessing, nil)
	if err != nil {
		// Lost the race with Cancel; nothing to deliver.
		if errors.Is(err, notification.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("claim notification %s: %w", id, err)
	}

	return d.deliver(ctx, n, false)
}

// RetryFailed re-attempts delivery of a failed notification. The claim is
// conditional on the record still being FAILED with retry budget left, so
// concurrent sweepers never double-send.
func (d *Dispatcher) RetryFailed(ctx context.Context, id uuid.UUID) error {
	n, err := d.store.ClaimForRetry(ctx, id)
	if err != nil {
		return err
	}

	d.logger.InfoContext(ctx, "retrying failed notification",
		logger.NotificationID(id),
		logger.RetryCount(n.RetryCount),
		slog.Int("max_retries", n.MaxRetries))

	return d.deliver(ctx, n, true)
}

// deliver runs the provider send and records the outcome. countRetry
// increments the retry counter on failure; the initial attempt does not
// consume retry budget.
func (d *Dispatcher) deliver(ctx context.Context, n *notification.Notification, countRetry bool) error {
	payload, err := d.buildPayload(ctx, n)
	if err != nil {
		d.recordFailure(ctx, n, countRetry, err)
		return err
	}

	res, err := d.sender.SendWithFailover(ctx, n.Channel, payload)
	if err != nil {
		if provider.CodeOf(err) == provider.CodeTokenGone {
			d.deactivateGoneToken(ctx, n)
		}
		d.recordFailure(ctx, n, countRetry, err)
		return err
	}

	if _, err := d.store.Transition(ctx, n.ID, notification.StatusSent, func(rec *notification.Notification) {
		rec.ProviderMessageID = res.MessageID
	}); err != nil {
		return fmt.Errorf("mark notification %s sent: %w", n.ID, err)
	}
	d.appendLog(ctx, n.ID, notification.LogSent,
		fmt.Sprintf("delivered via %s, message id %s", res.Provider, res.MessageID))

	d.logger.InfoContext(ctx, "notification delivered",
		logger.NotificationID(n.ID),
		logger.Channel(string(n.Channel)),
		logger.Provider(res.Provider),
		logger.MessageID(res.MessageID))
	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, n *notification.Notification, countRetry bool, cause error) {
	if _, err := d.store.Transition(ctx, n.ID, notification.StatusFailed, func(rec *notification.Notification) {
		if countRetry {
			rec.RetryCount++
		}
	}); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark notification failed",
			logger.NotificationID(n.ID),
			logger.Error(err))
		return
	}
	d.appendLog(ctx, n.ID, notification.LogFailed, cause.Error())
}

// buildPayload maps the stored record to the generic provider payload,
// hydrating storage-key attachments.
func (d *Dispatcher) buildPayload(ctx context.Context, n *notification.Notification) (provider.Payload, error) {
	p := provider.Payload{
		Channel: n.Channel,
		To:      n.Recipient,
		From:    n.Sender,
		Email:   n.Content.Email,
		SMS:     n.Content.SMS,
		Push:    n.Content.Push,
	}

	if p.Email == nil || len(p.Email.Attachments) == 0 {
		return p, nil
	}

	// Copy before hydration so fetched bytes never leak back into the
	// stored record.
	email := *p.Email
	email.Attachments = make([]notification.Attachment, len(p.Email.Attachments))
	copy(email.Attachments, p.Email.Attachments)

	for i := range email.Attachments {
		att := &email.Attachments[i]
		if len(att.Content) > 0 || att.StorageKey == "" {
			continue
		}
		if d.fetcher == nil {
			return provider.Payload{}, fmt.Errorf("attachment %q requires a fetcher, none configured", att.Name)
		}
		content, contentType, err := d.fetcher.Fetch(ctx, att.StorageKey)
		if err != nil {
			return provider.Payload{}, fmt.Errorf("resolve attachment %q: %w", att.Name, err)
		}
		att.Content = content
		if att.ContentType == "" {
			att.ContentType = contentType
		}
	}

	p.Email = &email
	return p, nil
}

// deactivateGoneToken retires the device token a provider reported as
// unregistered, so future sends stop targeting it.
func (d *Dispatcher) deactivateGoneToken(ctx context.Context, n *notification.Notification) {
	if n.Channel != notification.ChannelPush {
		return
	}
	if err := d.store.DeactivatePushToken(ctx, n.Recipient); err != nil &&
		!errors.Is(err, notification.ErrNotFound) {
		d.logger.WarnContext(ctx, "failed to deactivate gone push token",
			logger.NotificationID(n.ID),
			logger.Error(err))
		return
	}
	d.logger.InfoContext(ctx, "deactivated gone push token",
		logger.NotificationID(n.ID))
}
