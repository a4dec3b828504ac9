package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimit means the model server asked us to slow down.
	ErrRateLimit = errors.New("provider rate limited")
	// ErrContextLength means the prompt did not fit the model's window.
	ErrContextLength = errors.New("context length exceeded")
	// ErrProviderDown means the model server is unreachable or failing.
	ErrProviderDown = errors.New("provider unavailable")
	// ErrAuthentication means the server rejected the API key.
	ErrAuthentication = errors.New("provider authentication failed")
)

// IsRetryable reports whether err is transient: the same request may
// succeed after a backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// APIError is a non-2xx answer from a model server. It unwraps to the
// sentinel matching its status, when there is one.
type APIError struct {
	Status  int
	Code    string // server error code, if the body carried one
	Message string
	kind    error
}

// NewAPIError classifies a failed response. contextLength tells whether
// the server's body described a prompt that was too long; servers
// disagree on how they say so.
func NewAPIError(status int, code, message string, contextLength bool) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	switch {
	case status == http.StatusTooManyRequests:
		e.kind = ErrRateLimit
	case status >= http.StatusInternalServerError:
		e.kind = ErrProviderDown
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.kind = ErrAuthentication
	case status == http.StatusBadRequest && contextLength:
		e.kind = ErrContextLength
	}
	return e
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.kind != nil {
		msg = e.kind.Error() + ": " + msg
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.kind }
