// Package observability wires OpenTelemetry tracing and metrics for refresh
// cycles.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, cfg, "medallion", version.Short())
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "cascade.cycle")
//	defer span.End()
//
// Metrics:
//
//	metrics, err := observability.NewMetrics(observability.Meter(observability.MeterName))
//	orch, _ := cascade.New(plan, store, tasks, cascade.WithObserver(metrics))
//
// Telemetry bundles both providers as a component.Component so the registry
// starts and flushes them with the rest of the process.
package observability
