// Package apperr defines the error taxonomy shared across the pipeline.
// Callers classify with errors.Is; wrapping preserves the original cause.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input. Surfaced
	// synchronously, never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a reference to an unknown source, chunk or
	// interaction id.
	ErrNotFound = errors.New("not found")

	// ErrProvider marks a non-success response or timeout from an external
	// embedding/completion provider.
	ErrProvider = errors.New("external provider error")

	// ErrRateLimit is a retryable subtype of ErrProvider.
	ErrRateLimit = fmt.Errorf("%w: rate limited", ErrProvider)
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Provider(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

// Retryable reports whether the error should trigger bounded backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
