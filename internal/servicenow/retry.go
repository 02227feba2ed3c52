// Package servicenow provides a client for interacting with the ServiceNow Table API.
package servicenow

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// apiError is an error response from the ServiceNow API. The message is the
// normalized error string: either the nested error object's message field or
// the raw response body.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return e.Message
}

// retryable reports whether an error is worth retrying. 4xx client errors
// are permanent; 5xx responses and transport failures are retried.
func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.StatusCode >= 500
	}
	return true
}

// withRetry executes fn with exponential backoff until it succeeds, returns a
// permanent error, or the attempt budget is exhausted.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt-1, cfg.BaseDelay, cfg.MaxDelay)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// backoff calculates the delay for a given attempt using exponential backoff.
func backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
