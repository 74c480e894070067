package errors

import (
	"errors"
	"time"

	"github.com/c360/perfstreams/pkg/retry"
)

// RetryConfig is the retry policy carried by sink configurations.
// MaxRetries counts attempts after the first one.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// RetryableErrors limits retries to these errors. Empty means every
	// transient error.
	RetryableErrors []error
}

// DefaultRetryConfig returns 3 retries starting at 100ms, doubling up to 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ShouldRetry reports whether attempt (zero based) may be followed by another.
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rc.MaxRetries || !IsTransient(err) {
		return false
	}
	if len(rc.RetryableErrors) == 0 {
		return true
	}
	for _, target := range rc.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ToRetryConfig converts rc for pkg/retry, with jitter enabled.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
	}
}

// BackoffDelay returns the delay before retry number attempt, without jitter.
func (rc RetryConfig) BackoffDelay(attempt int) time.Duration {
	delay := rc.InitialDelay
	for range max(attempt, 0) {
		delay = time.Duration(float64(delay) * rc.BackoffFactor)
		if delay >= rc.MaxDelay {
			return rc.MaxDelay
		}
	}
	return delay
}
