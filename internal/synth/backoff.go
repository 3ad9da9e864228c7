package synth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// RetryConfig controls transport-level retry for provider calls. This is
// distinct from the artifact retry ladder in Controller: this layer
// retries transient API failures within a single synthesis attempt.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool

	CircuitBreakerEnabled bool
	FailureThreshold      int
	SuccessThreshold      int
	OpenTimeout           time.Duration
}

// DefaultRetryConfig returns production retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,

		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           60 * time.Second,
	}
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting it.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker trips after consecutive provider failures and rejects
// calls until the open timeout elapses, then probes in half-open state.
type CircuitBreaker struct {
	mu sync.Mutex

	state            breakerState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	openedAt         time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if openTimeout <= 0 {
		openTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(cb.openedAt) >= cb.openTimeout {
			cb.state = breakerHalfOpen
			cb.successes = 0
			return true
		}
		return false
	default: // half-open: allow probes
		return true
	}
}

// RecordSuccess notes a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = breakerClosed
			cb.failures = 0
		}
	case breakerClosed:
		cb.failures = 0
	}
}

// RecordFailure notes a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerHalfOpen:
		cb.state = breakerOpen
		cb.openedAt = time.Now()
	case breakerClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = breakerOpen
			cb.openedAt = time.Now()
		}
	}
}

// retryWithBackoff runs fn with exponential backoff on retriable errors.
// breaker may be nil.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, breaker *CircuitBreaker, label string, fn func(context.Context) error) error {
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 1 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if breaker != nil && !breaker.Allow() {
			return fmt.Errorf("%s: %w", label, ErrCircuitOpen)
		}

		err := fn(ctx)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			return nil
		}
		lastErr = err
		if breaker != nil {
			breaker.RecordFailure()
		}

		if !isRetriable(err) || attempt == cfg.MaxRetries {
			break
		}

		wait := backoff
		if cfg.Jitter {
			wait += time.Duration(rand.Int63n(int64(backoff)/2 + 1))
		}
		fmt.Printf("%s failed (attempt %d/%d), retrying in %v: %v\n",
			label, attempt+1, cfg.MaxRetries+1, wait, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}

// isRetriable reports whether the error is worth retrying at the
// transport layer. Context cancellation and auth failures are not.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"401", "403", "invalid api key", "authentication"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range []string{"429", "rate limit", "overloaded", "500", "502", "503", "529", "timeout", "connection reset", "connection refused", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
