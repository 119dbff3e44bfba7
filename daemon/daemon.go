// Package daemon runs refresh cycles on a fixed interval until interrupted.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/medallion/cascade"
	goerrors "github.com/kbukum/medallion/errors"
	"github.com/kbukum/medallion/logger"
)

// CycleRunner runs one refresh cycle. *cascade.Orchestrator implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context, force bool) *cascade.Report
}

// ReportHook receives every completed report.
type ReportHook func(ctx context.Context, r *cascade.Report)

// Config configures the loop.
type Config struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gt=0"`
}

// ApplyDefaults sets a one hour interval when unset.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return goerrors.InvalidConfig("daemon.interval", "must be positive")
	}
	return nil
}

// Snapshot is the loop state exposed to the status endpoint.
type Snapshot struct {
	Running   bool            `json:"running"`
	Cycles    int             `json:"cycles"`
	Panics    int             `json:"panics"`
	Interval  string          `json:"interval"`
	NextCycle *time.Time      `json:"next_cycle,omitempty"`
	Last      *cascade.Report `json:"last,omitempty"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(d *Daemon) { d.log = l } }

// WithReportHook adds a hook called after each cycle that produced a report.
func WithReportHook(h ReportHook) Option { return func(d *Daemon) { d.hooks = append(d.hooks, h) } }

// WithForceFirst forces the first cycle only.
func WithForceFirst(force bool) Option { return func(d *Daemon) { d.forceFirst = force } }

// WithAbort cancels a running cycle when abort is closed.
func WithAbort(abort <-chan struct{}) Option { return func(d *Daemon) { d.abort = abort } }

// Daemon repeats cycles until its context is canceled.
type Daemon struct {
	cycles     CycleRunner
	cfg        Config
	log        *logger.Logger
	hooks      []ReportHook
	forceFirst bool
	abort      <-chan struct{}

	mu      sync.RWMutex
	running bool
	count   int
	panics  int
	next    time.Time
	last    *cascade.Report
}

// New creates a Daemon.
func New(cycles CycleRunner, cfg Config, opts ...Option) *Daemon {
	cfg.ApplyDefaults()
	d := &Daemon{cycles: cycles, cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logger.OrComponent(d.log, "daemon")
	return d
}

// RunForever runs a cycle, waits the interval, and repeats. Canceling ctx
// never interrupts a running cycle; the loop returns once that cycle is done.
func (d *Daemon) RunForever(ctx context.Context) error {
	d.setRunning(true)
	defer d.setRunning(false)

	d.log.Info("Daemon started", logger.Fields("interval", d.cfg.Interval.String(), "forced_first", d.forceFirst))

	force := d.forceFirst
	for {
		d.RunOnce(ctx, force)
		force = false

		if ctx.Err() != nil {
			d.log.Info("Daemon stopped after current cycle")
			return nil
		}

		next := time.Now().Add(d.cfg.Interval)
		d.mu.Lock()
		d.next = next
		d.mu.Unlock()
		d.log.Info("Next check scheduled", logger.Fields("next_check", next.Format(time.RFC3339)))

		timer := time.NewTimer(d.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.log.Info("Daemon stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce runs a single cycle detached from ctx cancellation; only the abort
// channel interrupts it. A panic is logged and counted, and the cycle yields
// no report.
func (d *Daemon) RunOnce(ctx context.Context, force bool) *cascade.Report {
	cycleCtx, cancel := d.detach(ctx)
	defer cancel()
	report := d.runCycle(cycleCtx, force)

	d.mu.Lock()
	d.count++
	if report == nil {
		d.panics++
	} else {
		d.last = report
	}
	d.mu.Unlock()

	if report == nil {
		return nil
	}
	report.Log(d.log)
	for _, h := range d.hooks {
		d.runHook(cycleCtx, h, report)
	}
	return report
}

func (d *Daemon) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if d.abort == nil {
		return cycleCtx, cancel
	}
	go func() {
		select {
		case <-d.abort:
			d.log.Warn("Aborting current cycle")
			cancel()
		case <-cycleCtx.Done():
		}
	}()
	return cycleCtx, cancel
}

func (d *Daemon) runCycle(ctx context.Context, force bool) (report *cascade.Report) {
	defer func() {
		if r := recover(); r != nil {
			err := goerrors.Internal(fmt.Errorf("cycle panicked: %v", r))
			d.log.Error("Cycle aborted; freshness records keep their previous state", logger.ErrorFields("run_cycle", err))
			report = nil
		}
	}()
	return d.cycles.RunCycle(ctx, force)
}

func (d *Daemon) runHook(ctx context.Context, h ReportHook, r *cascade.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("Report hook panicked", logger.ErrorFields("report_hook", fmt.Errorf("%v", rec)))
		}
	}()
	h(ctx, r)
}

// Snapshot returns the current loop state.
func (d *Daemon) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Snapshot{
		Running:  d.running,
		Cycles:   d.count,
		Panics:   d.panics,
		Interval: d.cfg.Interval.String(),
		Last:     d.last,
	}
	if !d.next.IsZero() {
		next := d.next.UTC()
		s.NextCycle = &next
	}
	return s
}

func (d *Daemon) setRunning(v bool) {
	d.mu.Lock()
	d.running = v
	d.mu.Unlock()
}
