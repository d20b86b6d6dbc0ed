package llm

import (
	"errors"
	"fmt"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Reason      string // Finish reason reported by the provider, for incomplete responses
	StatusCode  int
	Code        string // Provider error code, when the provider exposes one
	ProviderErr error  // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeTransport      ErrorType = "transport"
	ErrorTypeIncomplete     ErrorType = "incomplete_response"
	ErrorTypeEmptyResponse  ErrorType = "empty_response"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeNotAvailable   ErrorType = "not_available"
	ErrorTypeTemplate       ErrorType = "template"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// TypeOf returns the ErrorType of err, or "" if err is not an *Error.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ""
}

// IsTransportError checks if the underlying provider call failed.
func IsTransportError(err error) bool {
	return TypeOf(err) == ErrorTypeTransport
}

// IsIncompleteError checks if a completion finished for a reason other than a clean stop.
func IsIncompleteError(err error) bool {
	return TypeOf(err) == ErrorTypeIncomplete
}

// IsEmptyResponseError checks if a structurally valid response had no usable content.
func IsEmptyResponseError(err error) bool {
	return TypeOf(err) == ErrorTypeEmptyResponse
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}

// IsNotAvailableError checks if an error reports a missing tokenizer or context size.
func IsNotAvailableError(err error) bool {
	return TypeOf(err) == ErrorTypeNotAvailable
}

// IncompleteReason returns the finish reason carried by an incomplete response error.
func IncompleteReason(err error) (string, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) && llmErr.Type == ErrorTypeIncomplete {
		return llmErr.Reason, true
	}
	return "", false
}

// NewTransportError creates a new transport error.
func NewTransportError(message string, statusCode int, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeTransport,
		Message:     message,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
}

// NewIncompleteError creates an error for a completion that did not finish with "stop".
func NewIncompleteError(reason string) *Error {
	return &Error{
		Type:    ErrorTypeIncomplete,
		Message: fmt.Sprintf("not finished: %s", reason),
		Reason:  reason,
	}
}

// NewEmptyResponseError creates a new empty response error.
func NewEmptyResponseError(message string) *Error {
	return &Error{
		Type:    ErrorTypeEmptyResponse,
		Message: message,
	}
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, statusCode int, code string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		StatusCode:  statusCode,
		Code:        code,
		ProviderErr: providerErr,
	}
}

// NewNotAvailableError creates an error for a model without a known tokenizer or context size.
func NewNotAvailableError(model string) *Error {
	return &Error{
		Type:    ErrorTypeNotAvailable,
		Message: fmt.Sprintf("token counting not available for model %q", model),
	}
}

// NewTemplateError creates an error for a prompt that could not be rendered to text.
func NewTemplateError(message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeTemplate,
		Message:     message,
		ProviderErr: cause,
	}
}
