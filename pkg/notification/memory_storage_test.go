package notification_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

func newEmailNotification(status notification.Status) *notification.Notification {
	return &notification.Notification{
		ID:        uuid.New(),
		Channel:   notification.ChannelEmail,
		Status:    status,
		Priority:  notification.PriorityNormal,
		Recipient: "user@example.com",
		Content: notification.Content{
			Email: &notification.EmailContent{Subject: "hi", TextBody: "hello"},
		},
		MaxRetries: 3,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	n := newEmailNotification(notification.StatusPending)
	require.NoError(t, store.Create(ctx, n))

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, notification.StatusPending, got.Status)

	_, err = store.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, notification.ErrNotFound)
}

func TestMemoryStore_IdempotencyKeyUniqueness(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	key := "order-42"
	first := newEmailNotification(notification.StatusPending)
	first.IdempotencyKey = &key
	require.NoError(t, store.Create(ctx, first))

	second := newEmailNotification(notification.StatusPending)
	second.IdempotencyKey = &key
	assert.ErrorIs(t, store.Create(ctx, second), notification.ErrDuplicateIdempotencyKey)

	got, err := store.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestMemoryStore_TransitionEnforcesStateMachine(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	n := newEmailNotification(notification.StatusPending)
	require.NoError(t, store.Create(ctx, n))

	_, err := store.Transition(ctx, n.ID, notification.StatusSent, nil)
	assert.ErrorIs(t, err, notification.ErrInvalidTransition, "PENDING cannot jump straight to SENT")

	got, err := store.Transition(ctx, n.ID, notification.StatusProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusProcessing, got.Status)

	got, err = store.Transition(ctx, n.ID, notification.StatusSent, func(rec *notification.Notification) {
		rec.ProviderMessageID = "msg-1"
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", got.ProviderMessageID)

	_, err = store.Transition(ctx, n.ID, notification.StatusProcessing, nil)
	assert.ErrorIs(t, err, notification.ErrInvalidTransition, "SENT is terminal")
}

func TestMemoryStore_ClaimForRetry(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	n := newEmailNotification(notification.StatusPending)
	require.NoError(t, store.Create(ctx, n))
	_, err := store.Transition(ctx, n.ID, notification.StatusProcessing, nil)
	require.NoError(t, err)
	_, err = store.Transition(ctx, n.ID, notification.StatusFailed, nil)
	require.NoError(t, err)

	claimed, err := store.ClaimForRetry(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusProcessing, claimed.Status)

	// Second claim loses: the record is no longer FAILED.
	_, err = store.ClaimForRetry(ctx, n.ID)
	assert.ErrorIs(t, err, notification.ErrNotRetryable)
}

func TestMemoryStore_ClaimForRetryExhaustedBudget(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	n := newEmailNotification(notification.StatusPending)
	n.MaxRetries = 1
	require.NoError(t, store.Create(ctx, n))
	_, err := store.Transition(ctx, n.ID, notification.StatusProcessing, nil)
	require.NoError(t, err)
	_, err = store.Transition(ctx, n.ID, notification.StatusFailed, func(rec *notification.Notification) {
		rec.RetryCount = 1
	})
	require.NoError(t, err)

	_, err = store.ClaimForRetry(ctx, n.ID)
	assert.ErrorIs(t, err, notification.ErrNotRetryable)
}

func TestMemoryStore_ListRetryable(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	fail := func() uuid.UUID {
		n := newEmailNotification(notification.StatusPending)
		require.NoError(t, store.Create(ctx, n))
		_, err := store.Transition(ctx, n.ID, notification.StatusProcessing, nil)
		require.NoError(t, err)
		_, err = store.Transition(ctx, n.ID, notification.StatusFailed, nil)
		require.NoError(t, err)
		return n.ID
	}
	fail()
	fail()

	sent := newEmailNotification(notification.StatusPending)
	require.NoError(t, store.Create(ctx, sent))
	_, err := store.Transition(ctx, sent.ID, notification.StatusProcessing, nil)
	require.NoError(t, err)
	_, err = store.Transition(ctx, sent.ID, notification.StatusSent, nil)
	require.NoError(t, err)

	out, err := store.ListRetryable(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = store.ListRetryable(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestMemoryStore_PushTokens(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SavePushToken(ctx, &notification.PushToken{
		Token:  "device-1",
		UserID: "user-1",
	}))
	require.NoError(t, store.SavePushToken(ctx, &notification.PushToken{
		Token:  "device-2",
		UserID: "user-1",
	}))

	tokens, err := store.ActivePushTokens(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	require.NoError(t, store.DeactivatePushToken(ctx, "device-1"))
	tokens, err = store.ActivePushTokens(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "device-2", tokens[0].Token)

	assert.ErrorIs(t, store.DeactivatePushToken(ctx, "missing"), notification.ErrNotFound)

	// Re-registering reactivates.
	require.NoError(t, store.SavePushToken(ctx, &notification.PushToken{
		Token:  "device-1",
		UserID: "user-1",
	}))
	tokens, err = store.ActivePushTokens(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestMemoryStore_ProviderOverride(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	ctx := context.Background()

	_, err := store.ProviderOverride(ctx, notification.ChannelEmail)
	assert.ErrorIs(t, err, notification.ErrNotFound)

	require.NoError(t, store.SetProviderOverride(ctx, notification.ChannelEmail, "smtp"))
	got, err := store.ProviderOverride(ctx, notification.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "smtp", got)
}
