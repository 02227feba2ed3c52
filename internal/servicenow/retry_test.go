package servicenow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestWithRetry_SucceedsAfterServerError(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return &apiError{StatusCode: 503, Message: "service unavailable"}
		}
		return nil
	})

	if err != nil {
		t.Errorf("withRetry() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_ClientErrorIsPermanent(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return &apiError{StatusCode: 403, Message: "forbidden"}
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for a 4xx error, got %d", attempts)
	}
}

func TestWithRetry_TransportErrorIsRetried(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return errors.New("connection refused")
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, RetryConfig{MaxAttempts: 3, BaseDelay: time.Minute, MaxDelay: time.Minute}, func() error {
		return errors.New("connection refused")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped at MaxDelay
	}

	for _, tt := range tests {
		got := backoff(tt.attempt, 1*time.Second, 10*time.Second)
		if got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if retryable(&apiError{StatusCode: 404, Message: "not found"}) {
		t.Error("4xx errors must not be retryable")
	}
	if !retryable(&apiError{StatusCode: 500, Message: "server error"}) {
		t.Error("5xx errors must be retryable")
	}
	if !retryable(errors.New("connection reset")) {
		t.Error("transport errors must be retryable")
	}
}
