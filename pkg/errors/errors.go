// Package errors defines unified error types for LLM client operations.
// All provider-specific errors are mapped to these standard error types so
// the retry and fallback layers can classify failures without knowing which
// backend produced them.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LLMError represents a standardized error from an LLM provider.
// It contains all necessary information for error handling, logging,
// and retry/fallback decisions.
type LLMError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`

	// RetryAfter is the backend-requested cooldown, zero when the backend
	// did not supply one.
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *LLMError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error types as constants for consistency.
const (
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeTimeout            = "timeout_error"
	TypeConnection         = "connection_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
)

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeNotFound,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error (408).
func NewTimeoutError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewConnectionError creates a transport-level error. No status code is set
// because the request never produced an HTTP response.
func NewConnectionError(provider, model, message string) *LLMError {
	return &LLMError{
		Message:   message,
		Type:      TypeConnection,
		Provider:  provider,
		Model:     model,
		Retryable: true,
	}
}

// NewServiceUnavailableError creates a service unavailable error (503).
func NewServiceUnavailableError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeServiceUnavailable,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
// 5xx responses from a backend are treated as transient.
func NewInternalError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// RetryExhaustedError is raised when a single provider's retry budget ran out.
// It wraps the last error observed on the final attempt.
type RetryExhaustedError struct {
	Provider string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("provider %s failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// DebugEntry is the per-provider debug payload attached to a FallbackError
// when debug mode is enabled.
type DebugEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stack     string    `json:"stack"`
}

// FallbackError aggregates the failure of an entire fallback chain.
// It is the single error callers see when no provider produced a response.
type FallbackError struct {
	// AttemptedProviders lists, in order, every provider whose attempt
	// function was actually invoked and failed.
	AttemptedProviders []string
	// ProviderErrors maps each attempted provider to its failure message.
	ProviderErrors map[string]string
	// FallbackChain is the realized chain: every registered candidate that
	// was considered, in traversal order, regardless of outcome.
	FallbackChain []string
	// DebugInfo is only populated when debug mode is enabled.
	DebugInfo map[string]DebugEntry
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	if len(e.AttemptedProviders) == 0 {
		return fmt.Sprintf("all providers failed: none of %v was available", e.FallbackChain)
	}
	parts := make([]string, 0, len(e.AttemptedProviders))
	for _, name := range e.AttemptedProviders {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.ProviderErrors[name]))
	}
	return fmt.Sprintf("all providers failed: %s", strings.Join(parts, "; "))
}
