package synth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("breaker should be closed before failure %d", i)
		}
		cb.RecordFailure()
	}
	if cb.Allow() {
		t.Fatal("breaker should be open after threshold failures")
	}

	time.Sleep(25 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should allow a probe after the open timeout")
	}
	cb.RecordSuccess()
	cb.RecordSuccess()
	if !cb.Allow() {
		t.Fatal("breaker should close after enough probe successes")
	}
}

func TestCircuitBreakerReopensOnProbeFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected half-open probe")
	}
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("breaker should reopen on probe failure")
	}
}

func TestRetryWithBackoffRetriesTransientErrors(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, BackoffMultiplier: 2}

	calls := 0
	err := retryWithBackoff(context.Background(), cfg, nil, "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryWithBackoff: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoffStopsOnNonRetriable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialBackoff: time.Millisecond, BackoffMultiplier: 2}

	calls := 0
	err := retryWithBackoff(context.Background(), cfg, nil, "test", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("401 invalid api key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retriable error", calls)
	}
}

func TestRetryWithBackoffRespectsBreaker(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialBackoff: time.Millisecond, BackoffMultiplier: 2}
	cb := NewCircuitBreaker(2, 1, time.Minute)

	calls := 0
	err := retryWithBackoff(context.Background(), cfg, cb, "test", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("502 bad gateway")
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 before the breaker opened", calls)
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("429 rate limit exceeded"), true},
		{fmt.Errorf("connection reset by peer"), true},
		{fmt.Errorf("overloaded_error"), true},
		{fmt.Errorf("401 unauthorized"), false},
		{fmt.Errorf("authentication failed"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isRetriable(tt.err); got != tt.want {
			t.Errorf("isRetriable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
