package runner

import (
	"context"
	"errors"
	"math/rand"
	"time"

	goerrors "github.com/kbukum/medallion/errors"
	"github.com/kbukum/medallion/logger"
	"github.com/kbukum/medallion/process"
	"github.com/kbukum/medallion/resilience"
)

// Executor resolves and runs commands. *process.Adapter implements it.
type Executor interface {
	Resolve(cmd process.Command) (string, error)
	Execute(ctx context.Context, cmd process.Command) (*process.Result, error)
}

// AttemptObserver is notified after every attempt.
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, task string, attempt int, d time.Duration, err error)
}

// Defaults used when the config file leaves a key out.
const (
	DefaultBaseBackoff = 30 * time.Second
	DefaultJitter      = 0.2
)

// Config tunes retries and concurrency.
type Config struct {
	// BaseBackoff is multiplied by the attempt number to get the wait after it.
	// Zero retries immediately.
	BaseBackoff time.Duration `mapstructure:"base_backoff" validate:"gte=0"`
	// Jitter randomizes each wait by ±Jitter of its value. Zero disables it.
	Jitter float64 `mapstructure:"jitter" validate:"gte=0,lt=1"`
	// Workers bounds how many attempts run at once across all tasks.
	Workers int `mapstructure:"workers" validate:"gte=0"`
	// GracePeriod is the SIGTERM→SIGKILL delay for timed-out attempts.
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"gte=0"`
}

// DefaultConfig returns the configuration of an unconfigured runner.
func DefaultConfig() Config {
	c := Config{BaseBackoff: DefaultBaseBackoff, Jitter: DefaultJitter}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills Workers and GracePeriod when unset. BaseBackoff and
// Jitter are kept as given, since zero is a valid setting for both.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
}

// Option customizes a Runner.
type Option func(*Runner)

// WithExecutor replaces the subprocess executor.
func WithExecutor(e Executor) Option { return func(r *Runner) { r.exec = e } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(r *Runner) { r.log = l } }

// WithRand sets the jitter source, returning values in [0,1).
func WithRand(fn func() float64) Option { return func(r *Runner) { r.rand = fn } }

// WithAfter replaces the backoff timer.
func WithAfter(fn func(time.Duration) <-chan time.Time) Option {
	return func(r *Runner) { r.after = fn }
}

// WithObserver registers an attempt observer.
func WithObserver(o AttemptObserver) Option { return func(r *Runner) { r.observer = o } }

// Runner executes tasks with bounded retries.
// It never touches the freshness store.
type Runner struct {
	cfg      Config
	exec     Executor
	pool     *resilience.Bulkhead
	log      *logger.Logger
	rand     func() float64
	after    func(time.Duration) <-chan time.Time
	observer AttemptObserver
}

// New creates a Runner.
func New(cfg Config, opts ...Option) *Runner {
	cfg.ApplyDefaults()
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.exec == nil {
		r.exec = process.NewAdapter(process.Config{GracePeriod: cfg.GracePeriod})
	}
	if r.rand == nil {
		r.rand = rand.Float64
	}
	r.log = logger.OrComponent(r.log, "runner")
	r.pool = resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "tasks",
		MaxConcurrent: cfg.Workers,
	})
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

// Workers reports worker pool usage.
func (r *Runner) Workers() resilience.BulkheadStats { return r.pool.Stats() }

// Run executes task and classifies the outcome.
//
// An unresolvable executable fails permanently without an attempt (or is
// skipped for optional tasks). Otherwise up to MaxRetries attempts are made,
// each bounded by Timeout, waiting BaseBackoff*attempt ±Jitter between them.
// A worker slot is held only while an attempt runs.
func (r *Runner) Run(ctx context.Context, task Task) Outcome {
	start := time.Now()
	log := r.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldUnit, task.Name))

	if _, err := r.exec.Resolve(task.Command); err != nil {
		if task.Optional {
			return Skipped("optional task not available: " + err.Error())
		}
		return FailedPermanently(err, 0, time.Since(start))
	}

	policy := resilience.BackoffLinear
	if r.cfg.BaseBackoff == 0 {
		policy = resilience.BackoffNone
	}

	attempts := 0
	retryCfg := resilience.RetryConfig{
		MaxAttempts:    task.attempts(),
		InitialBackoff: r.cfg.BaseBackoff,
		Policy:         policy,
		Jitter:         r.cfg.Jitter,
		Rand:           r.rand,
		After:          r.after,
		RetryIf:        goerrors.IsRetryable,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			log.Warn("Attempt failed, retrying", logger.MergeWithError(logger.Fields(
				logger.FieldAttempt, attempt,
				"max_attempts", task.attempts(),
				"backoff", backoff.Round(time.Millisecond).String(),
			), err))
		},
	}

	log.Debug("Running task", logger.Fields("description", task.label(), "command", task.Command.String()))

	err := resilience.RetryFunc(ctx, retryCfg, func() error {
		attempts++
		return r.attempt(ctx, log, task, attempts)
	})
	d := time.Since(start)

	switch {
	case err == nil:
		return Succeeded(attempts, d)
	case goerrors.IsRetryable(err):
		return FailedAfterRetries(err, attempts, d)
	case goerrors.IsAppError(err):
		return FailedPermanently(err, attempts, d)
	default:
		// context ended during a backoff wait
		return FailedPermanently(goerrors.Interrupted(err), attempts, d)
	}
}

func (r *Runner) attempt(ctx context.Context, log *logger.Logger, task Task, n int) error {
	start := time.Now()
	if r.pool.Available() == 0 {
		w := r.pool.Stats()
		log.Debug("All workers busy, attempt queued", logger.Fields("workers", w.Max, "waiting", w.Waiting+1))
	}
	err := r.pool.Execute(ctx, func() error {
		actx := ctx
		if task.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, task.Timeout)
			defer cancel()
		}

		res, err := r.exec.Execute(actx, task.Command)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return goerrors.Interrupted(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return goerrors.ExecutionTimeout(task.label(), task.Timeout).WithCause(err)
		}
		code := -1
		if res != nil {
			code = res.ExitCode
		}
		return goerrors.ExecutionFailure(task.label(), code, res.StderrTail(200)).WithCause(err)
	})
	if err != nil && !goerrors.IsAppError(err) {
		err = goerrors.Interrupted(err)
	}

	if r.observer != nil {
		r.observer.ObserveAttempt(ctx, task.Name, n, time.Since(start), err)
	}
	return err
}
