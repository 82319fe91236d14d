package helpers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mt-gateway/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type GatewayError struct {
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Helper to define distinct error types for type assertions if needed
type ConfigurationError struct{ GatewayError }
type NetworkError struct{ GatewayError }
type DatabaseError struct{ GatewayError }

// UpstreamUnavailableError means the terminal could not be reached or a query
// against it failed.
type UpstreamUnavailableError struct{ GatewayError }

// ValidationError is a rejected request. Reason is returned to the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// OrderRejectedError carries the terminal's own rejection details.
type OrderRejectedError struct {
	Retcode int
	Code    int
	Message string
	Comment string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected: retcode=%d code=%d message=%s comment=%s", e.Retcode, e.Code, e.Message, e.Comment)
}

// NoResultError is returned when order_send produced nothing at all.
type NoResultError struct {
	Code    int
	Message string
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("order failed - no response from terminal: code=%d message=%s", e.Code, e.Message)
}

// -----------------------------------------------------------------------------

// NewUpstreamUnavailable wraps cause as an UpstreamUnavailableError
func NewUpstreamUnavailable(op string, cause error) error {
	return &UpstreamUnavailableError{GatewayError{Message: fmt.Sprintf("upstream %s failed", op), Cause: cause}}
}

// NewValidation builds a ValidationError with the given reason
func NewValidation(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsUpstreamUnavailable reports whether err is (or wraps) an UpstreamUnavailableError
func IsUpstreamUnavailable(err error) bool {
	var target *UpstreamUnavailableError
	return errors.As(err, &target)
}

// -----------------------------------------------------------------------------

// HTTPStatus maps the error taxonomy onto response codes
func HTTPStatus(err error) int {
	var validation *ValidationError
	var rejected *OrderRejectedError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation), errors.As(err, &rejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryPolicy describes how many attempts are made and how long to wait between them.
type RetryPolicy struct {
	Attempts    int
	Delay       time.Duration
	Exponential bool
}

// PermanentError stops RetryWithBackoff immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryWithBackoff attempts to execute the operation up to policy.Attempts times.
// It stops early when ctx is cancelled or fn returns a Permanent error, whose
// inner error is returned.
func RetryWithBackoff(ctx context.Context, log *logger.Logger, operation string, policy RetryPolicy, fn func() error) error {
	var lastErr error
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var permanent *PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}

		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := policy.Delay
		if policy.Exponential {
			delay = policy.Delay * (1 << attempt)
		}
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, attempts, operation, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
