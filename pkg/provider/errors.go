package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable is returned when both the primary and the
	// fallback provider failed for a channel.
	ErrServiceUnavailable = errors.New("all providers unavailable for channel")

	// ErrNoProvider is returned when a channel has no registered adapter.
	ErrNoProvider = errors.New("no provider registered for channel")

	// ErrUnknownProvider is returned when a named provider is not in the
	// registry for the channel.
	ErrUnknownProvider = errors.New("unknown provider for channel")
)

// ErrorCode classifies an adapter send failure so the failover policy and
// callers can react without inspecting vendor-specific error types.
type ErrorCode string

const (
	// CodeRejected: the vendor rejected the recipient or payload; retrying
	// the same request will not help.
	CodeRejected ErrorCode = "rejected"
	// CodeRateLimited: the vendor throttled the request.
	CodeRateLimited ErrorCode = "rate_limited"
	// CodeTokenGone: a push token was reported expired or unregistered;
	// the caller should deactivate the registration.
	CodeTokenGone ErrorCode = "token_gone"
	// CodeTransient: a transport-level failure worth retrying.
	CodeTransient ErrorCode = "transient"
	// CodeAuth: credentials were rejected by the vendor.
	CodeAuth ErrorCode = "auth"
	// CodeUnknown: anything the adapter could not classify.
	CodeUnknown ErrorCode = "unknown"
)

// SendError is the tagged failure result of an adapter send.
type SendError struct {
	Provider string
	Code     ErrorCode
	Message  string
	cause    error
}

// NewSendError builds a tagged send failure. cause may be nil.
func NewSendError(provider string, code ErrorCode, message string, cause error) *SendError {
	return &SendError{Provider: provider, Code: code, Message: message, cause: cause}
}

func (e *SendError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Message, e.Code, e.cause)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

func (e *SendError) Unwrap() error { return e.cause }

// CodeOf extracts the error code from a send failure, returning CodeUnknown
// for untagged errors.
func CodeOf(err error) ErrorCode {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}
