package notification

import (
	"fmt"
)

// Maximum SMS body length accepted before the provider would reject the
// message. Multipart concatenation is left to the vendor; this guards
// against unbounded bodies reaching the wire.
const maxSMSBodyLength = 1600

// Content carries the rendered, channel-specific message body. Exactly one
// of the channel sections must be populated, matching the notification's
// channel.
type Content struct {
	Email *EmailContent `json:"email,omitempty"`
	SMS   *SMSContent   `json:"sms,omitempty"`
	Push  *PushContent  `json:"push,omitempty"`
}

// EmailContent is the generic email payload mapped into vendor request
// shapes by the email adapters.
type EmailContent struct {
	Subject     string       `json:"subject"`
	HTMLBody    string       `json:"html_body,omitempty"`
	TextBody    string       `json:"text_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment references email attachment content either inline or by
// object-storage key. When only StorageKey is set the dispatcher resolves
// the bytes before handing the payload to a provider.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content,omitempty"`
	StorageKey  string `json:"storage_key,omitempty"`
}

// SMSContent is the generic SMS payload. TemplateID and Tokens serve
// vendors that require pre-registered templates instead of a free body.
type SMSContent struct {
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Tokens     map[string]string `json:"tokens,omitempty"`
}

// PushContent is the generic push payload. Subscription is required by
// Web Push style providers; token-based providers use the notification
// recipient as the device token.
type PushContent struct {
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
	Subscription *PushSubscription `json:"subscription,omitempty"`
}

// PushSubscription is a Web Push subscription object as registered by a
// browser: the push service endpoint plus the client's ECDH and auth keys.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Validate enforces channel-dependent content completeness. It never
// persists anything; validation failures must be surfaced before a
// notification row exists.
func (c Content) Validate(channel Channel) error {
	switch channel {
	case ChannelEmail:
		if c.Email == nil {
			return fmt.Errorf("%w: email content is required", ErrValidation)
		}
		if c.Email.Subject == "" {
			return fmt.Errorf("%w: email subject is required", ErrValidation)
		}
		if c.Email.HTMLBody == "" && c.Email.TextBody == "" {
			return fmt.Errorf("%w: email requires an html or text body", ErrValidation)
		}
		for _, a := range c.Email.Attachments {
			if a.Name == "" {
				return fmt.Errorf("%w: attachment name is required", ErrValidation)
			}
			if len(a.Content) == 0 && a.StorageKey == "" {
				return fmt.Errorf("%w: attachment %q has no content or storage key", ErrValidation, a.Name)
			}
		}
	case ChannelSMS:
		if c.SMS == nil {
			return fmt.Errorf("%w: sms content is required", ErrValidation)
		}
		if c.SMS.Body == "" && c.SMS.TemplateID == "" {
			return fmt.Errorf("%w: sms body is required", ErrValidation)
		}
		if len(c.SMS.Body) > maxSMSBodyLength {
			return fmt.Errorf("%w: sms body exceeds %d characters", ErrValidation, maxSMSBodyLength)
		}
	case ChannelPush:
		if c.Push == nil {
			return fmt.Errorf("%w: push content is required", ErrValidation)
		}
		if c.Push.Title == "" || c.Push.Body == "" {
			return fmt.Errorf("%w: push requires title and body", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrValidation, channel)
	}
	return nil
}
