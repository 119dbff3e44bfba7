package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Common retry errors.
var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// BackoffPolicy selects how the delay grows between attempts.
type BackoffPolicy string

const (
	// BackoffExponential waits initial * factor^(attempt-1).
	BackoffExponential BackoffPolicy = "exponential"
	// BackoffLinear waits initial * attempt.
	BackoffLinear BackoffPolicy = "linear"
	// BackoffNone retries immediately.
	BackoffNone BackoffPolicy = "none"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay. Zero leaves it uncapped.
	MaxBackoff time.Duration
	// Policy selects linear or exponential growth. Defaults to exponential.
	Policy BackoffPolicy
	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64
	// Jitter adds randomness to backoff (0.0 to 1.0), as a fraction of the delay.
	Jitter float64
	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error, backoff time.Duration)
	// Rand returns a value in [0,1) used for jitter. Defaults to math/rand.
	Rand func() float64
	// After schedules the resumption after a backoff. Defaults to time.After semantics.
	After func(d time.Duration) <-chan time.Time
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Policy:         BackoffExponential,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        DefaultRetryIf,
	}
}

// DefaultRetryIf retries all errors except context cancellation.
func DefaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (cfg *RetryConfig) applyDefaults() {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.Policy == "" {
		cfg.Policy = BackoffExponential
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
}

// Retry executes a function with retry logic.
// Returns the result of the function or the last error if all retries fail.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	cfg.applyDefaults()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			return zero, err
		}

		// Don't wait after the last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := Backoff(attempt, cfg)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, backoff)
		}

		if err := wait(ctx, cfg, backoff); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func wait(ctx context.Context, cfg RetryConfig, d time.Duration) error {
	if cfg.After != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cfg.After(d):
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-indexed).
// The result is positive for every policy except BackoffNone.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	cfg.applyDefaults()
	if cfg.Policy == BackoffNone {
		return 0
	}

	var backoffFloat float64
	switch cfg.Policy {
	case BackoffLinear:
		backoffFloat = float64(cfg.InitialBackoff) * float64(attempt)
	default:
		backoffFloat = float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	}

	if cfg.Jitter > 0 {
		jitterRange := backoffFloat * cfg.Jitter
		backoffFloat += (cfg.Rand()*2 - 1) * jitterRange
	}

	if cfg.MaxBackoff > 0 && backoffFloat > float64(cfg.MaxBackoff) {
		backoffFloat = float64(cfg.MaxBackoff)
	}

	if backoffFloat <= 0 {
		backoffFloat = float64(cfg.InitialBackoff)
	}

	return time.Duration(backoffFloat)
}
