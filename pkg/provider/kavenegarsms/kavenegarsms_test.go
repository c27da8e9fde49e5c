package kavenegarsms_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kavenegar/kavenegar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/provider"
	"github.com/dmitrymomot/notifykit/pkg/provider/kavenegarsms"
)

type stubAPI struct {
	sendErrs   []error
	sendCalls  int
	lastSender string
	lastBody   string

	lookupErr      error
	lookupCalls    int
	lastTemplate   string
	lastToken      string
	accountInfoErr error
}

func (s *stubAPI) Send(sender string, receptor []string, message string) ([]kavenegar.Message, error) {
	s.sendCalls++
	s.lastSender = sender
	s.lastBody = message
	if len(s.sendErrs) > 0 {
		err := s.sendErrs[0]
		s.sendErrs = s.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []kavenegar.Message{{MessageID: 1001}}, nil
}

func (s *stubAPI) VerifyLookup(receptor, template, token string) (kavenegar.Message, error) {
	s.lookupCalls++
	s.lastTemplate = template
	s.lastToken = token
	if s.lookupErr != nil {
		return kavenegar.Message{}, s.lookupErr
	}
	return kavenegar.Message{MessageID: 2002}, nil
}

func (s *stubAPI) AccountInfo() (kavenegar.AccountInfo, error) {
	return kavenegar.AccountInfo{}, s.accountInfoErr
}

func smsPayload(body string) provider.Payload {
	return provider.Payload{
		Channel: notification.ChannelSMS,
		To:      "+989121234567",
		SMS:     &notification.SMSContent{Body: body},
	}
}

func TestAdapter_SendFreeBody(t *testing.T) {
	t.Parallel()

	api := &stubAPI{}
	a := kavenegarsms.NewWithAPI(api, kavenegarsms.Config{Sender: "10004321"})

	res, err := a.Send(context.Background(), smsPayload("hello"))
	require.NoError(t, err)
	assert.Equal(t, "1001", res.MessageID)
	assert.Equal(t, "10004321", api.lastSender, "empty payload sender falls back to the configured line")
	assert.Equal(t, "hello", api.lastBody)
	assert.Zero(t, api.lookupCalls)
}

func TestAdapter_SendTemplateUsesVerifyLookup(t *testing.T) {
	t.Parallel()

	api := &stubAPI{}
	a := kavenegarsms.NewWithAPI(api, kavenegarsms.Config{Sender: "10004321"})

	p := provider.Payload{
		Channel: notification.ChannelSMS,
		To:      "+989121234567",
		SMS: &notification.SMSContent{
			TemplateID: "verify",
			Tokens:     map[string]string{"code": "123456"},
		},
	}
	res, err := a.Send(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "2002", res.MessageID)
	assert.Equal(t, 1, api.lookupCalls)
	assert.Equal(t, "verify", api.lastTemplate)
	assert.Equal(t, "123456", api.lastToken, "the code token backs the lookup when no token key is present")
	assert.Zero(t, api.sendCalls)
}

func TestAdapter_SendMissingContent(t *testing.T) {
	t.Parallel()

	a := kavenegarsms.NewWithAPI(&stubAPI{}, kavenegarsms.Config{})

	_, err := a.Send(context.Background(), provider.Payload{To: "+989121234567"})
	require.Error(t, err)
	assert.Equal(t, provider.CodeRejected, provider.CodeOf(err))
}

func TestAdapter_SendRetriesTransientOnly(t *testing.T) {
	t.Parallel()

	t.Run("transient errors are retried", func(t *testing.T) {
		t.Parallel()

		api := &stubAPI{sendErrs: []error{&kavenegar.HTTPError{}, &kavenegar.HTTPError{}, nil}}
		a := kavenegarsms.NewWithAPI(api, kavenegarsms.Config{Sender: "10004321", TransportRetries: 2})

		res, err := a.Send(context.Background(), smsPayload("hello"))
		require.NoError(t, err)
		assert.Equal(t, "1001", res.MessageID)
		assert.Equal(t, 3, api.sendCalls)
	})

	t.Run("rejections are not retried", func(t *testing.T) {
		t.Parallel()

		api := &stubAPI{sendErrs: []error{&kavenegar.APIError{}}}
		a := kavenegarsms.NewWithAPI(api, kavenegarsms.Config{Sender: "10004321", TransportRetries: 2})

		_, err := a.Send(context.Background(), smsPayload("hello"))
		require.Error(t, err)
		assert.Equal(t, provider.CodeRejected, provider.CodeOf(err))
		assert.Equal(t, 1, api.sendCalls)
	})

	t.Run("budget exhaustion surfaces the last transient error", func(t *testing.T) {
		t.Parallel()

		api := &stubAPI{sendErrs: []error{&kavenegar.HTTPError{}, &kavenegar.HTTPError{}}}
		a := kavenegarsms.NewWithAPI(api, kavenegarsms.Config{Sender: "10004321", TransportRetries: 1})

		_, err := a.Send(context.Background(), smsPayload("hello"))
		require.Error(t, err)
		assert.Equal(t, provider.CodeTransient, provider.CodeOf(err))
		assert.Equal(t, 2, api.sendCalls)
	})
}

func TestAdapter_SendBulkSequential(t *testing.T) {
	t.Parallel()

	api := &stubAPI{sendErrs: []error{nil, &kavenegar.APIError{}, nil}}
	a := kavenegarsms.NewWithAPI(api, kavenegarsms.Config{Sender: "10004321"})

	result, err := a.SendBulk(context.Background(), []provider.Payload{
		smsPayload("one"), smsPayload("two"), smsPayload("three"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.Error(t, result.Results[1].Err)
}

func TestAdapter_IsHealthy(t *testing.T) {
	t.Parallel()

	a := kavenegarsms.NewWithAPI(&stubAPI{}, kavenegarsms.Config{})
	assert.NoError(t, a.IsHealthy(context.Background()))

	a = kavenegarsms.NewWithAPI(&stubAPI{accountInfoErr: errors.New("down")}, kavenegarsms.Config{})
	assert.Error(t, a.IsHealthy(context.Background()))
}
