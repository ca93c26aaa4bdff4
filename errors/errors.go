package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrInvalidRequest indicates a malformed body, out-of-range parameter
	// or unsearchable metadata
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates the node id is unknown upstream
	ErrNotFound = errors.New("node not found")

	// ErrUpstreamTransient indicates a single upstream query failed after retries
	ErrUpstreamTransient = errors.New("upstream request failed")

	// ErrUpstreamFatal indicates every upstream call for a request failed
	ErrUpstreamFatal = errors.New("upstream unavailable")

	// ErrRateLimited indicates the per-IP rate limit was exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrForbidden indicates admin auth failure
	ErrForbidden = errors.New("forbidden")
)

// Wrap wraps an error with a context message
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidRequest checks if error is an invalid request error
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsUpstreamFatal checks if error is a fatal upstream error
func IsUpstreamFatal(err error) bool {
	return errors.Is(err, ErrUpstreamFatal)
}
