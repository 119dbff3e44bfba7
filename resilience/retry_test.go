package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func instant(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestRetry_SuccessFirstAttempt(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.After = instant

	callCount := 0
	result, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		return "success", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %s", result)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_SuccessAfterFailures(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.After = instant

	callCount := 0
	result, err := Retry(context.Background(), cfg, func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errors.New("temporary")
		}
		return 42, nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_BoundedAttempts(t *testing.T) {
	for _, max := range []int{1, 2, 3, 5} {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = max
		cfg.After = instant

		boom := errors.New("boom")
		callCount := 0
		err := RetryFunc(context.Background(), cfg, func() error {
			callCount++
			return boom
		})

		if !errors.Is(err, boom) {
			t.Errorf("max=%d: expected last error, got %v", max, err)
		}
		if callCount != max {
			t.Errorf("max=%d: expected %d calls, got %d", max, max, callCount)
		}
	}
}

func TestRetry_NonRetryableStops(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.After = instant
	permanent := errors.New("permanent")
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, permanent) }

	callCount := 0
	err := RetryFunc(context.Background(), cfg, func() error {
		callCount++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_OnRetryReportsWaits(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 30 * time.Second,
		Policy:         BackoffLinear,
		Jitter:         0.2,
		Rand:           func() float64 { return 0.5 },
		After:          instant,
	}

	var waits []time.Duration
	var attempts []int
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		attempts = append(attempts, attempt)
		waits = append(waits, backoff)
	}

	_ = RetryFunc(context.Background(), cfg, func() error { return errors.New("fail") })

	want := []time.Duration{30 * time.Second, 60 * time.Second, 90 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("expected %d waits, got %d", len(want), len(waits))
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], waits[i])
		}
		if attempts[i] != i+1 {
			t.Errorf("attempt %d: got %d", i, attempts[i])
		}
	}
}

func TestRetry_ContextCanceledDuringWait(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.After = func(time.Duration) <-chan time.Time { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- RetryFunc(ctx, cfg, func() error {
			callCount++
			return errors.New("fail")
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestBackoff_LinearJitterBounds(t *testing.T) {
	base := 30 * time.Second
	for _, r := range []float64{0, 0.25, 0.5, 0.75, 0.999} {
		cfg := RetryConfig{
			InitialBackoff: base,
			Policy:         BackoffLinear,
			Jitter:         0.2,
			Rand:           func() float64 { return r },
		}
		for attempt := 1; attempt <= 4; attempt++ {
			d := Backoff(attempt, cfg)
			nominal := float64(base) * float64(attempt)
			if float64(d) < nominal*0.8-1 || float64(d) > nominal*1.2+1 {
				t.Errorf("rand=%v attempt=%d: backoff %v outside ±20%% of %v", r, attempt, d, time.Duration(nominal))
			}
			if d <= 0 {
				t.Errorf("rand=%v attempt=%d: backoff must be positive", r, attempt)
			}
		}
	}
}

func TestBackoff_ExponentialCapped(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Policy:         BackoffExponential,
		BackoffFactor:  2,
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := Backoff(i+1, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestBackoff_None(t *testing.T) {
	cfg := RetryConfig{Policy: BackoffNone, Jitter: 0.5, Rand: func() float64 { return 0.9 }}
	for attempt := 1; attempt <= 3; attempt++ {
		if got := Backoff(attempt, cfg); got != 0 {
			t.Errorf("attempt %d: expected no wait, got %v", attempt, got)
		}
	}
}

func TestDefaultRetryIf(t *testing.T) {
	if DefaultRetryIf(context.Canceled) {
		t.Error("context.Canceled should not be retried")
	}
	if DefaultRetryIf(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should not be retried")
	}
	if !DefaultRetryIf(errors.New("other")) {
		t.Error("generic errors should be retried")
	}
}
