package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/runner"
)

// MeterName is the instrumentation scope of the refresh metrics.
const MeterName = "github.com/kbukum/medallion"

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The provider must be shut down on exit.
func InitMeter(ctx context.Context, cfg Config, serviceName, serviceVersion string) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(serviceName, serviceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the refresh instruments. It observes cascade cycles and
// runner attempts.
type Metrics struct {
	cycleTotal      metric.Int64Counter
	cycleDuration   metric.Float64Histogram
	unitTotal       metric.Int64Counter
	unitDuration    metric.Float64Histogram
	attemptTotal    metric.Int64Counter
	attemptDuration metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	cycleTotal, err := meter.Int64Counter("medallion.cycle.total",
		metric.WithDescription("Refresh cycles by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating medallion.cycle.total counter: %w", err)
	}

	cycleDuration, err := meter.Float64Histogram("medallion.cycle.duration",
		metric.WithDescription("Duration of refresh cycles in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating medallion.cycle.duration histogram: %w", err)
	}

	unitTotal, err := meter.Int64Counter("medallion.unit.total",
		metric.WithDescription("Unit outcomes by unit, kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating medallion.unit.total counter: %w", err)
	}

	unitDuration, err := meter.Float64Histogram("medallion.unit.duration",
		metric.WithDescription("Time spent refreshing a unit in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating medallion.unit.duration histogram: %w", err)
	}

	attemptTotal, err := meter.Int64Counter("medallion.task.attempts",
		metric.WithDescription("Task attempts by task and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating medallion.task.attempts counter: %w", err)
	}

	attemptDuration, err := meter.Float64Histogram("medallion.task.attempt.duration",
		metric.WithDescription("Duration of single task attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating medallion.task.attempt.duration histogram: %w", err)
	}

	return &Metrics{
		cycleTotal:      cycleTotal,
		cycleDuration:   cycleDuration,
		unitTotal:       unitTotal,
		unitDuration:    unitDuration,
		attemptTotal:    attemptTotal,
		attemptDuration: attemptDuration,
	}, nil
}

// ObserveUnit records one unit outcome. Skipped units record no duration.
func (m *Metrics) ObserveUnit(ctx context.Context, unit string, kind freshness.Kind, out runner.Outcome) {
	m.unitTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("unit", unit),
		attribute.String("kind", string(kind)),
		attribute.String("status", string(out.Status)),
	))
	if out.Status != runner.StatusSkipped {
		m.unitDuration.Record(ctx, out.Duration.Seconds(), metric.WithAttributes(
			attribute.String("unit", unit),
			attribute.String("kind", string(kind)),
		))
	}
}

// ObserveCycle records a finished cycle. A cycle is "ok" when no unit failed
// or went unrecorded.
func (m *Metrics) ObserveCycle(ctx context.Context, d time.Duration, forced bool, statuses []runner.Status) {
	result := "ok"
	for _, s := range statuses {
		if !s.OK() {
			result = "failed"
			break
		}
	}
	m.cycleTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.Bool("forced", forced),
	))
	m.cycleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.Bool("forced", forced),
	))
}

// ObserveAttempt records one task attempt.
func (m *Metrics) ObserveAttempt(ctx context.Context, task string, _ int, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.attemptTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("result", result),
	))
	m.attemptDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("task", task),
	))
}
