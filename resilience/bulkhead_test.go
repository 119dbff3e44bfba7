package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBulkhead_LimitsConcurrency(t *testing.T) {
	bh := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 2})

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bh.Execute(context.Background(), func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent, saw %d", peak)
	}
	if bh.InUse() != 0 {
		t.Errorf("expected all slots released, %d in use", bh.InUse())
	}
}

func TestBulkhead_FailFastWhenNegativeWait(t *testing.T) {
	bh := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxWait: -1})

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = bh.Execute(context.Background(), func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	rejected := ""
	bh.config.OnReject = func(name string) { rejected = name }
	err := bh.Execute(context.Background(), func() error { return nil })
	close(hold)

	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	if rejected != "test" {
		t.Errorf("expected OnReject to be called, got %q", rejected)
	}
}

func TestBulkhead_ZeroWaitBlocksUntilContextDone(t *testing.T) {
	bh := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1})

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = bh.Execute(context.Background(), func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bh.Execute(ctx, func() error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestBulkhead_StatsCountWaiters(t *testing.T) {
	bh := NewBulkhead(BulkheadConfig{Name: "tasks", MaxConcurrent: 1})

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = bh.Execute(context.Background(), func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	queued := make(chan error, 1)
	go func() { queued <- bh.Execute(context.Background(), func() error { return nil }) }()

	deadline := time.Now().Add(5 * time.Second)
	for bh.Waiting() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("second caller never queued")
		}
		time.Sleep(time.Millisecond)
	}
	if got := bh.Stats(); got != (BulkheadStats{Name: "tasks", Max: 1, InUse: 1, Waiting: 1}) {
		t.Errorf("unexpected stats while busy: %+v", got)
	}

	close(hold)
	if err := <-queued; err != nil {
		t.Fatalf("queued caller failed: %v", err)
	}
	if got := bh.Stats(); got.InUse != 0 || got.Waiting != 0 || bh.Available() != bh.MaxConcurrent() {
		t.Errorf("expected an idle pool, got %+v", got)
	}
}

func TestBulkhead_MaxWaitTimesOut(t *testing.T) {
	bh := NewBulkhead(BulkheadConfig{Name: "tasks", MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = bh.Execute(context.Background(), func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	if err := bh.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("expected ErrBulkheadTimeout, got %v", err)
	}
	if bh.Waiting() != 0 {
		t.Errorf("timed-out caller still counted as waiting")
	}
}
