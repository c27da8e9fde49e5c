package fcmpush_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
	"github.com/dmitrymomot/notifykit/pkg/provider/fcmpush"
)

type stubDoer struct {
	mu       sync.Mutex
	status   int
	body     string
	err      error
	requests []capturedRequest

	// respond overrides the fixed status/body when set.
	respond func(body string) (int, string)
}

type capturedRequest struct {
	url  string
	body string
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	raw, _ := io.ReadAll(req.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, capturedRequest{url: req.URL.String(), body: string(raw)})
	if s.err != nil {
		return nil, s.err
	}

	status, body := s.status, s.body
	if s.respond != nil {
		status, body = s.respond(string(raw))
	}
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}, nil
}

func pushPayload() provider.Payload {
	return provider.Payload{
		Channel: notification.ChannelPush,
		To:      "device-token-1",
		Push: &notification.PushContent{
			Title: "Order shipped",
			Body:  "Your order is on its way",
			Data:  map[string]string{"order_id": "ord-42"},
		},
	}
}

func TestAdapter_Send(t *testing.T) {
	t.Parallel()

	doer := &stubDoer{body: `{"name":"projects/demo/messages/msg-1"}`}
	a := fcmpush.NewWithClient(doer, fcmpush.Config{ProjectID: "demo"})

	res, err := a.Send(context.Background(), pushPayload())
	require.NoError(t, err)
	assert.Equal(t, "projects/demo/messages/msg-1", res.MessageID)

	require.Len(t, doer.requests, 1)
	assert.Contains(t, doer.requests[0].url, "/v1/projects/demo/messages:send")
	assert.Contains(t, doer.requests[0].body, `"token":"device-token-1"`)
	assert.Contains(t, doer.requests[0].body, `"title":"Order shipped"`)
	assert.Contains(t, doer.requests[0].body, `"order_id":"ord-42"`)
}

func TestAdapter_SendDataOnly(t *testing.T) {
	t.Parallel()

	doer := &stubDoer{body: `{"name":"projects/demo/messages/msg-2"}`}
	a := fcmpush.NewWithClient(doer, fcmpush.Config{ProjectID: "demo"})

	p := provider.Payload{
		Channel: notification.ChannelPush,
		To:      "device-token-1",
		Push:    &notification.PushContent{Data: map[string]string{"kind": "silent"}},
	}
	_, err := a.Send(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, doer.requests, 1)
	assert.NotContains(t, doer.requests[0].body, `"notification"`, "no visible alert for data-only messages")
}

func TestAdapter_SendMissingContent(t *testing.T) {
	t.Parallel()

	a := fcmpush.NewWithClient(&stubDoer{}, fcmpush.Config{ProjectID: "demo"})

	_, err := a.Send(context.Background(), provider.Payload{To: "device-token-1"})
	require.Error(t, err)
	assert.Equal(t, provider.CodeRejected, provider.CodeOf(err))
}

func TestAdapter_SendMissingToken(t *testing.T) {
	t.Parallel()

	a := fcmpush.NewWithClient(&stubDoer{}, fcmpush.Config{ProjectID: "demo"})

	p := pushPayload()
	p.To = ""
	_, err := a.Send(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, provider.CodeRejected, provider.CodeOf(err))
}

func TestAdapter_SendErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   provider.ErrorCode
	}{
		{
			name:   "unregistered token",
			status: http.StatusNotFound,
			body:   `{"error":{"code":404,"status":"UNREGISTERED","message":"Requested entity was not found."}}`,
			want:   provider.CodeTokenGone,
		},
		{
			name:   "unregistered status on 400",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"status":"UNREGISTERED","message":"stale token"}}`,
			want:   provider.CodeTokenGone,
		},
		{
			name:   "quota exceeded",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"status":"QUOTA_EXCEEDED","message":"quota exceeded"}}`,
			want:   provider.CodeRateLimited,
		},
		{
			name:   "bad credentials",
			status: http.StatusUnauthorized,
			body:   `{"error":{"code":401,"status":"UNAUTHENTICATED","message":"invalid token"}}`,
			want:   provider.CodeAuth,
		},
		{
			name:   "invalid argument",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad payload"}}`,
			want:   provider.CodeRejected,
		},
		{
			name:   "backend unavailable",
			status: http.StatusServiceUnavailable,
			body:   `{"error":{"code":503,"status":"UNAVAILABLE","message":"try later"}}`,
			want:   provider.CodeTransient,
		},
		{
			name:   "unparseable error body",
			status: http.StatusTeapot,
			body:   `not json`,
			want:   provider.CodeUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doer := &stubDoer{status: tc.status, body: tc.body}
			a := fcmpush.NewWithClient(doer, fcmpush.Config{ProjectID: "demo"})

			_, err := a.Send(context.Background(), pushPayload())
			require.Error(t, err)
			assert.Equal(t, tc.want, provider.CodeOf(err))
		})
	}
}

func TestAdapter_SendTransportError(t *testing.T) {
	t.Parallel()

	doer := &stubDoer{err: errors.New("dial tcp: timeout")}
	a := fcmpush.NewWithClient(doer, fcmpush.Config{ProjectID: "demo"})

	_, err := a.Send(context.Background(), pushPayload())
	require.Error(t, err)
	assert.Equal(t, provider.CodeTransient, provider.CodeOf(err))
}

func TestAdapter_SendBulk(t *testing.T) {
	t.Parallel()

	doer := &stubDoer{respond: func(body string) (int, string) {
		if strings.Contains(body, `"token":"dead-token"`) {
			return http.StatusNotFound, `{"error":{"code":404,"status":"UNREGISTERED","message":"gone"}}`
		}
		return http.StatusOK, `{"name":"projects/demo/messages/ok"}`
	}}
	a := fcmpush.NewWithClient(doer, fcmpush.Config{ProjectID: "demo", BulkConcurrency: 2})

	dead := pushPayload()
	dead.To = "dead-token"

	result, err := a.SendBulk(context.Background(), []provider.Payload{pushPayload(), dead, pushPayload()})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)
	assert.Equal(t, provider.CodeTokenGone, provider.CodeOf(result.Results[1].Err))
	assert.Equal(t, "projects/demo/messages/ok", result.Results[0].MessageID)
	assert.Len(t, doer.requests, 3)
}
