package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies everything the gateway can surface to a client.
type ErrorKind string

const (
	KindBadRequest          ErrorKind = "bad_request"
	KindUnknownModel        ErrorKind = "unknown_model"
	KindMissingCredential   ErrorKind = "missing_credential"
	KindUpstreamTimeout     ErrorKind = "upstream_timeout"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindUpstreamError       ErrorKind = "upstream_error"
	KindInternal            ErrorKind = "internal_error"
)

// maxErrorDetail caps how much of an upstream error body leaks into a
// client-visible message.
const maxErrorDetail = 200

// GatewayError is the client-facing error: a taxonomy kind, the HTTP
// status to answer with, and a safe message. The wrapped cause is for
// logs only and never serialized.
type GatewayError struct {
	Kind    ErrorKind
	Status  int
	Message string
	cause   error
}

func (e *GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.cause }

// OpenAIType maps the kind onto the error.type values OpenAI clients
// pattern-match against.
func (e *GatewayError) OpenAIType() string {
	switch e.Kind {
	case KindBadRequest, KindUnknownModel:
		return "invalid_request_error"
	case KindUpstreamTimeout, KindUpstreamUnavailable, KindUpstreamError:
		return "upstream_error"
	default:
		return "internal_error"
	}
}

func NewBadRequest(message string) *GatewayError {
	return &GatewayError{Kind: KindBadRequest, Status: 400, Message: message}
}

func NewUnknownModel(model string) *GatewayError {
	return &GatewayError{Kind: KindUnknownModel, Status: 400, Message: fmt.Sprintf("Unknown model: %s", model)}
}

func NewMissingCredential(envName string) *GatewayError {
	return &GatewayError{Kind: KindMissingCredential, Status: 500, Message: fmt.Sprintf("credential environment variable %s is not set", envName)}
}

func NewUpstreamTimeout(backend string, cause error) *GatewayError {
	return &GatewayError{Kind: KindUpstreamTimeout, Status: 504, Message: fmt.Sprintf("Request timeout to %s", backend), cause: cause}
}

func NewUpstreamUnavailable(backend string, cause error) *GatewayError {
	return &GatewayError{Kind: KindUpstreamUnavailable, Status: 502, Message: fmt.Sprintf("Backend request to %s failed", backend), cause: cause}
}

// NewUpstreamError passes the upstream status through with a truncated
// message extracted from its error body.
func NewUpstreamError(status int, message string) *GatewayError {
	return &GatewayError{Kind: KindUpstreamError, Status: status, Message: Truncate(message, maxErrorDetail)}
}

func NewInternalError(cause error) *GatewayError {
	return &GatewayError{Kind: KindInternal, Status: 500, Message: "Internal server error", cause: cause}
}

// AsGatewayError unwraps err into a *GatewayError, or wraps it as an
// internal error when it is anything else.
func AsGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return NewInternalError(err)
}

// Truncate bounds s to max bytes.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
