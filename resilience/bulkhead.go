package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Bulkhead errors.
var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies the pool in logs and stats.
	Name string
	// MaxConcurrent is the number of slots. Defaults to 4.
	MaxConcurrent int
	// MaxWait is how long to wait for a slot. Zero waits until the context
	// is done; a negative value fails immediately when no slot is free.
	MaxWait time.Duration
	// OnReject is called when no slot was obtained.
	OnReject func(name string)
}

// BulkheadStats is a point-in-time view of a bulkhead.
type BulkheadStats struct {
	Name    string `json:"name"`
	Max     int    `json:"max"`
	InUse   int    `json:"in_use"`
	Waiting int    `json:"waiting"`
}

// Bulkhead is a fixed pool of slots. The task runner holds one slot per
// running attempt, so slow tasks in backoff never starve the others.
type Bulkhead struct {
	config  BulkheadConfig
	sem     chan struct{}
	waiting atomic.Int32
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	return &Bulkhead{
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Execute runs fn while holding a slot. It returns ErrBulkheadFull,
// ErrBulkheadTimeout or the context error when no slot is obtained, and
// fn's error otherwise.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.acquire(ctx); err != nil {
		if b.config.OnReject != nil {
			b.config.OnReject(b.config.Name)
		}
		return err
	}
	defer func() { <-b.sem }()
	return fn()
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}
	if b.config.MaxWait < 0 {
		return ErrBulkheadFull
	}

	b.waiting.Add(1)
	defer b.waiting.Add(-1)

	var timeout <-chan time.Time
	if b.config.MaxWait > 0 {
		timer := time.NewTimer(b.config.MaxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.sem <- struct{}{}:
		return nil
	case <-timeout:
		return ErrBulkheadTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Available returns the number of free slots.
func (b *Bulkhead) Available() int { return cap(b.sem) - len(b.sem) }

// InUse returns the number of held slots.
func (b *Bulkhead) InUse() int { return len(b.sem) }

// Waiting returns the number of callers queued for a slot.
func (b *Bulkhead) Waiting() int { return int(b.waiting.Load()) }

// MaxConcurrent returns the pool size.
func (b *Bulkhead) MaxConcurrent() int { return cap(b.sem) }

// Stats returns the current pool usage.
func (b *Bulkhead) Stats() BulkheadStats {
	return BulkheadStats{
		Name:    b.config.Name,
		Max:     cap(b.sem),
		InUse:   b.InUse(),
		Waiting: b.Waiting(),
	}
}
