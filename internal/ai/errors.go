package ai

import (
	"errors"
	"fmt"
)

// ConfigError reports a missing or unusable provider credential. It is
// raised at construction time, leaves the provider unusable, and is never
// retried.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// ValidationError reports malformed, oversized, or unsupported input. It is
// raised before any network access and is never retried.
type ValidationError struct {
	Field  string // offending field or input aspect
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ProviderError is a transient failure from an external backend: network
// trouble, a non-200 status, an unusable response body. Eligible for retry.
type ProviderError struct {
	Provider string // "gemini", "whisper"
	Op       string // short description of the failing step
	Err      error  // underlying cause, may be nil for API-level errors
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RetryExhaustedError is the terminal failure after the whole retry budget
// is consumed. It wraps the last attempt's error.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("all %d retry attempts failed: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// translateErr wraps a low-level failure with provider and step context so it
// carries enough information by the time it reaches a result envelope.
// Errors that are already classified pass through unchanged.
func translateErr(provider, op string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// retryable reports whether another attempt could help. Credential and input
// problems are permanent; everything else is assumed transient.
func retryable(err error) bool {
	var ce *ConfigError
	var ve *ValidationError
	if errors.As(err, &ce) || errors.As(err, &ve) {
		return false
	}
	return true
}
