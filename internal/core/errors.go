// Package core provides core types and errors for the health proxy.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure surfaced to the caller.
type ErrorKind string

const (
	// KindMethodNotAllowed is returned for anything other than POST or OPTIONS (405)
	KindMethodNotAllowed ErrorKind = "method_not_allowed"
	// KindBadRequest indicates a missing body or a malformed field (400)
	KindBadRequest ErrorKind = "bad_request"
	// KindMisconfiguredCredential indicates the upstream API key is absent (500)
	KindMisconfiguredCredential ErrorKind = "misconfigured_credential"
	// KindRateLimited indicates the upstream provider answered 429 (429)
	KindRateLimited ErrorKind = "rate_limited"
	// KindPaymentRequired indicates the upstream provider answered 402 (402)
	KindPaymentRequired ErrorKind = "payment_required"
	// KindUpstreamFailure covers any other upstream failure (500)
	KindUpstreamFailure ErrorKind = "upstream_failure"
	// KindUnexpectedFailure covers everything not classified above (500)
	KindUnexpectedFailure ErrorKind = "unexpected_failure"
)

// ProxyError is the single error type translated into an HTTP response.
type ProxyError struct {
	Kind    ErrorKind
	Message string
	// Err is the underlying cause, kept for logs only.
	Err error
}

// Error implements the error interface
func (e *ProxyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code for this error
func (e *ProxyError) HTTPStatusCode() int {
	switch e.Kind {
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindBadRequest:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the client-facing envelope.
func (e *ProxyError) ToJSON() ErrorResponse {
	return ErrorResponse{Error: e.Message}
}

// NewMethodNotAllowedError creates a 405 error.
func NewMethodNotAllowedError() *ProxyError {
	return &ProxyError{Kind: KindMethodNotAllowed, Message: "Method not allowed"}
}

// NewBadRequestError creates a 400 error.
func NewBadRequestError(message string, err error) *ProxyError {
	return &ProxyError{Kind: KindBadRequest, Message: message, Err: err}
}

// NewMisconfiguredCredentialError creates the error returned when a provider
// API key is missing from the environment.
func NewMisconfiguredCredentialError(provider string) *ProxyError {
	return &ProxyError{
		Kind:    KindMisconfiguredCredential,
		Message: provider + " API key not configured",
	}
}

// NewRateLimitedError creates a 429 error.
func NewRateLimitedError(message string, err error) *ProxyError {
	return &ProxyError{Kind: KindRateLimited, Message: message, Err: err}
}

// NewPaymentRequiredError creates a 402 error.
func NewPaymentRequiredError(message string, err error) *ProxyError {
	return &ProxyError{Kind: KindPaymentRequired, Message: message, Err: err}
}

// NewUpstreamFailureError creates a generic 500 error for a failed upstream call.
func NewUpstreamFailureError(message string, err error) *ProxyError {
	return &ProxyError{Kind: KindUpstreamFailure, Message: message, Err: err}
}

// NewUnexpectedFailureError wraps an unclassified error. The message is taken
// from the error itself.
func NewUnexpectedFailureError(err error) *ProxyError {
	msg := "An unexpected error occurred"
	if err != nil {
		msg = err.Error()
	}
	return &ProxyError{Kind: KindUnexpectedFailure, Message: msg, Err: err}
}

// UpstreamStatusError reports a non-2xx answer from the upstream provider.
// Body is kept for diagnostics and must never be shown to clients.
type UpstreamStatusError struct {
	Provider   string
	StatusCode int
	Body       []byte
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s upstream returned status %d", e.Provider, e.StatusCode)
}

// AsProxyError returns err as a *ProxyError, wrapping it as an unexpected
// failure when it is not one already.
func AsProxyError(err error) *ProxyError {
	var proxyErr *ProxyError
	if errors.As(err, &proxyErr) {
		return proxyErr
	}
	return NewUnexpectedFailureError(err)
}
