package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/medallion/component"
	"github.com/kbukum/medallion/logger"
)

// Telemetry owns the tracer and meter providers.
type Telemetry struct {
	cfg     Config
	service string
	version string
	log     *logger.Logger

	mu      sync.Mutex
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	started bool
}

var (
	_ component.Component   = (*Telemetry)(nil)
	_ component.Describable = (*Telemetry)(nil)
)

// NewTelemetry creates the telemetry component.
func NewTelemetry(cfg Config, serviceName, serviceVersion string, log *logger.Logger) *Telemetry {
	cfg.ApplyDefaults()
	return &Telemetry{
		cfg:     cfg,
		service: serviceName,
		version: serviceVersion,
		log:     logger.OrComponent(log, "telemetry"),
	}
}

// Name returns the component name.
func (t *Telemetry) Name() string { return "telemetry" }

// Start installs the global providers. Exporters connect lazily, so an
// unreachable collector does not fail startup.
func (t *Telemetry) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}

	tp, err := InitTracer(ctx, t.cfg, t.service, t.version)
	if err != nil {
		return fmt.Errorf("telemetry start: %w", err)
	}
	mp, err := InitMeter(ctx, t.cfg, t.service, t.version)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("telemetry start: %w", err)
	}

	t.tracer, t.meter, t.started = tp, mp, true
	t.log.Info("Telemetry initialized", logger.Fields(
		"endpoint", t.cfg.Endpoint,
		"interval", t.cfg.Interval.String(),
		"sample_rate", t.cfg.SampleRate,
	))
	return nil
}

// Stop flushes and shuts down both providers.
func (t *Telemetry) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	t.started = false
	return errors.Join(t.tracer.Shutdown(ctx), t.meter.Shutdown(ctx))
}

// Health reports whether the providers are installed.
func (t *Telemetry) Health(_ context.Context) component.Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return component.Health{Name: t.Name(), Status: component.StatusUnhealthy, Message: "telemetry not started"}
	}
	return component.Health{Name: t.Name(), Status: component.StatusHealthy}
}

// Describe returns a startup summary.
func (t *Telemetry) Describe() component.Description {
	return component.Description{
		Name:    "Telemetry",
		Type:    "telemetry",
		Details: fmt.Sprintf("otlp http %s every %s", t.cfg.Endpoint, t.cfg.Interval),
	}
}
