package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func TestErrors(t *testing.T) {
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	empty := logger.Errors(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestNotificationID(t *testing.T) {
	id := uuid.New()
	attr := logger.NotificationID(id)
	require.Equal(t, "notification_id", attr.Key)
	assert.Equal(t, id, attr.Value.Any())

	empty := logger.NotificationID(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestJobID(t *testing.T) {
	attr := logger.JobID("job-1")
	require.Equal(t, "job_id", attr.Key)
	assert.Equal(t, "job-1", attr.Value.Any())
}

func TestWorkerID(t *testing.T) {
	attr := logger.WorkerID("w-1")
	require.Equal(t, "worker_id", attr.Key)
	assert.Equal(t, "w-1", attr.Value.Any())
}

func TestBatchID(t *testing.T) {
	attr := logger.BatchID("batch-1")
	require.Equal(t, "batch_id", attr.Key)
	assert.Equal(t, "batch-1", attr.Value.String())
}

func TestChannel(t *testing.T) {
	attr := logger.Channel("EMAIL")
	require.Equal(t, "channel", attr.Key)
	assert.Equal(t, "EMAIL", attr.Value.String())
}

func TestProvider(t *testing.T) {
	attr := logger.Provider("postmark")
	require.Equal(t, "provider", attr.Key)
	assert.Equal(t, "postmark", attr.Value.String())
}

func TestMessageID(t *testing.T) {
	attr := logger.MessageID("pm-1")
	require.Equal(t, "message_id", attr.Key)
	assert.Equal(t, "pm-1", attr.Value.Any())
}

func TestRetryCount(t *testing.T) {
	attr := logger.RetryCount(2)
	require.Equal(t, "retry_count", attr.Key)
	assert.Equal(t, int64(2), attr.Value.Int64())
}

func TestDuration(t *testing.T) {
	attr := logger.Duration(time.Second)
	require.Equal(t, "duration", attr.Key)
	assert.Equal(t, time.Second, attr.Value.Any())
}

func TestComponent(t *testing.T) {
	attr := logger.Component("worker")
	require.Equal(t, "component", attr.Key)
	assert.Equal(t, "worker", attr.Value.String())
}

func TestEventAttrs(t *testing.T) {
	attr := logger.Event("user.created")
	require.Equal(t, "event", attr.Key)
	assert.Equal(t, "user.created", attr.Value.String())

	idAttr := logger.EventID("evt-1")
	require.Equal(t, "event_id", idAttr.Key)
	assert.Equal(t, "evt-1", idAttr.Value.String())

	h := logger.Handler("user-created")
	require.Equal(t, "handler", h.Key)
	assert.Equal(t, "user-created", h.Value.String())
}
