package helpers

import (
	"context"
	"fmt"
	"time"

	"market-broker/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type BrokerError struct {
	Message string
	Cause   error
}

func (e *BrokerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BrokerError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As checks
type ConfigurationError struct{ BrokerError }
type DecodeError struct{ BrokerError }
type SubscriptionError struct{ BrokerError }
type TransportError struct{ BrokerError }
type DatabaseError struct{ BrokerError }

// -----------------------------------------------------------------------------

func NewDecodeError(msg string, cause error) *DecodeError {
	return &DecodeError{BrokerError{Message: msg, Cause: cause}}
}

func NewSubscriptionError(msg string, cause error) *SubscriptionError {
	return &SubscriptionError{BrokerError{Message: msg, Cause: cause}}
}

func NewTransportError(msg string, cause error) *TransportError {
	return &TransportError{BrokerError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{BrokerError{Message: msg, Cause: cause}}
}

func NewConfigurationError(msg string, cause error) *ConfigurationError {
	return &ConfigurationError{BrokerError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
// It gives up early when ctx is cancelled.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if maxRetries <= 0 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, &BrokerError{Message: fmt.Sprintf("%s failed after %d attempts", operation, maxRetries), Cause: lastErr}
}
