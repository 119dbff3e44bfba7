// Package bootstrap runs the medallion process lifecycle.
//
// An App owns the component registry (Redis, telemetry, the status server),
// starts components in registration order, runs lifecycle hooks, executes the
// orchestrator task with SIGINT/SIGTERM cancellation and stops everything in
// reverse order within a graceful timeout.
//
//	app, err := bootstrap.NewApp(cfg)
//	app.RegisterComponent(telemetry)
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//	    return loop.RunForever(ctx)
//	})
package bootstrap
