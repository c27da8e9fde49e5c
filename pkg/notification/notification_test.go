package notification_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct {
		from, to notification.Status
	}{
		{notification.StatusPending, notification.StatusProcessing},
		{notification.StatusPending, notification.StatusCancelled},
		{notification.StatusQueued, notification.StatusProcessing},
		{notification.StatusQueued, notification.StatusCancelled},
		{notification.StatusProcessing, notification.StatusSent},
		{notification.StatusProcessing, notification.StatusFailed},
		{notification.StatusFailed, notification.StatusProcessing},
	}
	for _, tc := range allowed {
		assert.True(t, notification.CanTransition(tc.from, tc.to),
			"%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct {
		from, to notification.Status
	}{
		{notification.StatusSent, notification.StatusProcessing},
		{notification.StatusSent, notification.StatusFailed},
		{notification.StatusCancelled, notification.StatusProcessing},
		{notification.StatusProcessing, notification.StatusCancelled},
		{notification.StatusFailed, notification.StatusCancelled},
		{notification.StatusPending, notification.StatusSent},
	}
	for _, tc := range denied {
		assert.False(t, notification.CanTransition(tc.from, tc.to),
			"%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, notification.StatusSent.Terminal())
	assert.True(t, notification.StatusCancelled.Terminal())
	assert.False(t, notification.StatusFailed.Terminal())
	assert.False(t, notification.StatusProcessing.Terminal())
}

func TestNotificationRetryable(t *testing.T) {
	t.Parallel()

	n := notification.Notification{
		Status:     notification.StatusFailed,
		RetryCount: 2,
		MaxRetries: 3,
	}
	assert.True(t, n.Retryable())

	n.RetryCount = 3
	assert.False(t, n.Retryable(), "exhausted budget is not retryable")

	n.RetryCount = 0
	n.Status = notification.StatusSent
	assert.False(t, n.Retryable(), "only FAILED records are retryable")
}

func TestNotificationCancellable(t *testing.T) {
	t.Parallel()

	for _, status := range []notification.Status{notification.StatusPending, notification.StatusQueued} {
		n := notification.Notification{Status: status}
		assert.True(t, n.Cancellable(), "%s should be cancellable", status)
	}
	for _, status := range []notification.Status{
		notification.StatusProcessing,
		notification.StatusSent,
		notification.StatusFailed,
		notification.StatusCancelled,
	} {
		n := notification.Notification{Status: status}
		assert.False(t, n.Cancellable(), "%s should not be cancellable", status)
	}
}

func TestPriorityWeight(t *testing.T) {
	t.Parallel()

	assert.Less(t, notification.PriorityLow.Weight(), notification.PriorityNormal.Weight())
	assert.Less(t, notification.PriorityNormal.Weight(), notification.PriorityHigh.Weight())
	assert.Less(t, notification.PriorityHigh.Weight(), notification.PriorityCritical.Weight())
}

func TestContentValidate(t *testing.T) {
	t.Parallel()

	t.Run("email requires subject and body", func(t *testing.T) {
		t.Parallel()

		c := notification.Content{Email: &notification.EmailContent{Subject: "hi", TextBody: "hello"}}
		assert.NoError(t, c.Validate(notification.ChannelEmail))

		c = notification.Content{Email: &notification.EmailContent{TextBody: "hello"}}
		assert.ErrorIs(t, c.Validate(notification.ChannelEmail), notification.ErrValidation)

		c = notification.Content{Email: &notification.EmailContent{Subject: "hi"}}
		assert.ErrorIs(t, c.Validate(notification.ChannelEmail), notification.ErrValidation)

		c = notification.Content{}
		assert.ErrorIs(t, c.Validate(notification.ChannelEmail), notification.ErrValidation)
	})

	t.Run("email attachment needs content or storage key", func(t *testing.T) {
		t.Parallel()

		c := notification.Content{Email: &notification.EmailContent{
			Subject:  "hi",
			TextBody: "hello",
			Attachments: []notification.Attachment{
				{Name: "invoice.pdf", StorageKey: "invoices/42.pdf"},
			},
		}}
		assert.NoError(t, c.Validate(notification.ChannelEmail))

		c.Email.Attachments[0].StorageKey = ""
		assert.ErrorIs(t, c.Validate(notification.ChannelEmail), notification.ErrValidation)
	})

	t.Run("sms allows template without body", func(t *testing.T) {
		t.Parallel()

		c := notification.Content{SMS: &notification.SMSContent{TemplateID: "verify"}}
		assert.NoError(t, c.Validate(notification.ChannelSMS))

		c = notification.Content{SMS: &notification.SMSContent{}}
		assert.ErrorIs(t, c.Validate(notification.ChannelSMS), notification.ErrValidation)
	})

	t.Run("sms body length bound", func(t *testing.T) {
		t.Parallel()

		body := make([]byte, 1601)
		for i := range body {
			body[i] = 'a'
		}
		c := notification.Content{SMS: &notification.SMSContent{Body: string(body)}}
		assert.ErrorIs(t, c.Validate(notification.ChannelSMS), notification.ErrValidation)
	})

	t.Run("push requires title and body", func(t *testing.T) {
		t.Parallel()

		c := notification.Content{Push: &notification.PushContent{Title: "t", Body: "b"}}
		assert.NoError(t, c.Validate(notification.ChannelPush))

		c = notification.Content{Push: &notification.PushContent{Title: "t"}}
		assert.ErrorIs(t, c.Validate(notification.ChannelPush), notification.ErrValidation)
	})

	t.Run("unknown channel", func(t *testing.T) {
		t.Parallel()

		c := notification.Content{}
		assert.ErrorIs(t, c.Validate(notification.Channel("FAX")), notification.ErrValidation)
	})
}
