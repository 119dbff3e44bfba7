// Command medallion keeps the bronze, silver and gold datasets fresh. It
// runs one refresh cycle, or repeats cycles with --daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/kbukum/medallion/bootstrap"
	"github.com/kbukum/medallion/cascade"
	"github.com/kbukum/medallion/config"
	"github.com/kbukum/medallion/daemon"
	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/history"
	"github.com/kbukum/medallion/logger"
	"github.com/kbukum/medallion/observability"
	"github.com/kbukum/medallion/redis"
	"github.com/kbukum/medallion/runner"
	"github.com/kbukum/medallion/status"
	"github.com/kbukum/medallion/version"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	serviceName = "medallion"
)

type options struct {
	configPath string
	daemon     bool
	interval   int
	force      bool
	report     bool
	version    bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to the config file")
	fs.BoolVar(&o.daemon, "daemon", false, "repeat refresh cycles until interrupted")
	fs.IntVar(&o.interval, "interval", 0, "seconds between daemon cycles (default from config, 3600)")
	fs.BoolVar(&o.force, "force", false, "refresh every unit regardless of staleness (first cycle only in daemon mode)")
	fs.BoolVar(&o.report, "report", false, "print the freshness of every unit and exit")
	fs.BoolVar(&o.version, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.interval < 0 {
		return o, fmt.Errorf("--interval must be positive, got %d", o.interval)
	}
	return o, nil
}

// run returns the process exit code: 0 when every unit succeeded or was
// skipped, 1 on any unresolved failure, 2 on usage or config errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return exitUsage
	}
	if opts.version {
		fmt.Fprintln(stdout, version.Get().String())
		return exitOK
	}

	cfg, err := config.Load(config.WithConfigFile(opts.configPath))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return exitUsage
	}
	if opts.interval > 0 {
		cfg.Daemon.Interval = time.Duration(opts.interval) * time.Second
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return exitUsage
	}

	p, err := wire(app, opts)
	if err != nil {
		app.Logger.Error("Wiring failed", logger.ErrorFields("wire", err))
		return exitFailed
	}

	code := exitOK
	err = app.RunTask(ctx, func(ctx context.Context) error {
		switch {
		case opts.report:
			return cascade.WriteFreshness(stdout, p.Freshness(ctx))
		case opts.daemon:
			return p.loop.RunForever(ctx)
		default:
			report := p.loop.RunOnce(ctx, opts.force)
			if report == nil {
				code = exitFailed
				return nil
			}
			code = report.ExitCode()
			return nil
		}
	})
	if err != nil {
		app.Logger.Error("Run failed", logger.ErrorFields("run", err))
		return exitFailed
	}
	return code
}

// wire registers infrastructure components and builds the pipeline once
// they are started.
func wire(app *bootstrap.App[*config.Config], opts options) (*pipeline, error) {
	cfg := app.Cfg
	p := &pipeline{}

	var redisComp *redis.Component
	if cfg.Store.Backend == config.BackendRedis {
		redisComp = redis.NewComponent(cfg.Store.Redis, app.Logger)
		if err := app.RegisterComponent(redisComp); err != nil {
			return nil, err
		}
	}
	if cfg.Telemetry.Enabled {
		tel := observability.NewTelemetry(cfg.Telemetry, cfg.Name, app.Version, app.Logger)
		if err := app.RegisterComponent(tel); err != nil {
			return nil, err
		}
	}

	var hookOpts []daemon.Option
	if cfg.History.Path != "" && !opts.report {
		w, err := history.NewWriter(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		hookOpts = append(hookOpts, daemon.WithReportHook(historyHook(w, app.Logger)))
	}
	p.loop = daemon.New(p, cfg.Daemon, append(hookOpts,
		daemon.WithLogger(app.Logger),
		daemon.WithForceFirst(opts.daemon && opts.force),
		daemon.WithAbort(app.Aborted()),
	)...)

	if opts.daemon && cfg.Status.Enabled {
		srv := status.New(cfg.Status, status.Sources{
			Service:   cfg.Name,
			Loop:      p.loop,
			Freshness: p,
			Health:    app.Components.HealthAll,
		}, app.Logger)
		if err := app.RegisterComponent(srv); err != nil {
			return nil, err
		}
	}

	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*config.Config]) error {
		store, err := openStore(a.Cfg, redisComp)
		if err != nil {
			return err
		}
		plan, err := a.Cfg.Plan()
		if err != nil {
			return err
		}
		metrics, err := observability.NewMetrics(observability.Meter(observability.MeterName))
		if err != nil {
			return err
		}
		tasks := runner.New(a.Cfg.Runner,
			runner.WithLogger(a.Logger),
			runner.WithObserver(metrics),
		)
		orch, err := cascade.New(plan, store, tasks,
			cascade.WithLogger(a.Logger),
			cascade.WithObserver(metrics),
		)
		if err != nil {
			return err
		}
		p.set(orch)
		return nil
	})
	return p, nil
}

func openStore(cfg *config.Config, redisComp *redis.Component) (freshness.Store, error) {
	if cfg.Store.Backend == config.BackendRedis {
		if redisComp == nil || redisComp.Client() == nil {
			return nil, errors.New("redis store requested but redis is not started")
		}
		return freshness.NewRedisStore(redisComp.Client(), cfg.Store.KeyPrefix), nil
	}
	return freshness.NewFileStore(cfg.Store.Dir)
}

func historyHook(w *history.Writer, log *logger.Logger) daemon.ReportHook {
	return func(_ context.Context, r *cascade.Report) {
		if err := w.Append(r); err != nil {
			log.Warn("Cycle history not written", logger.MergeWithError(logger.Fields("path", w.Path()), err))
		}
	}
}
