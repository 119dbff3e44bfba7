package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/logger"
	"github.com/kbukum/medallion/observability"
	"github.com/kbukum/medallion/runner"
	"github.com/kbukum/medallion/staleness"
)

// TaskRunner runs a task to completion. *runner.Runner implements it.
type TaskRunner interface {
	Run(ctx context.Context, task runner.Task) runner.Outcome
}

// Observer is notified of unit and cycle outcomes.
type Observer interface {
	ObserveUnit(ctx context.Context, unit string, kind freshness.Kind, out runner.Outcome)
	ObserveCycle(ctx context.Context, d time.Duration, forced bool, statuses []runner.Status)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithObserver registers an outcome observer.
func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.observer = obs } }

// Orchestrator runs refresh cycles over a plan.
type Orchestrator struct {
	plan     Plan
	store    freshness.Store
	runner   TaskRunner
	log      *logger.Logger
	now      func() time.Time
	observer Observer
}

// New validates plan and returns an orchestrator.
func New(plan Plan, store freshness.Store, tasks TaskRunner, opts ...Option) (*Orchestrator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if store == nil || tasks == nil {
		return nil, fmt.Errorf("cascade: store and task runner are required")
	}
	o := &Orchestrator{plan: plan, store: store, runner: tasks, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logger.OrComponent(o.log, "cascade")
	return o, nil
}

// Plan returns the plan the orchestrator runs.
func (o *Orchestrator) Plan() Plan { return o.plan }

// RunCycle evaluates every unit once and returns the report. Unit failures
// never abort the cycle; they are recorded in the report.
func (o *Orchestrator) RunCycle(ctx context.Context, force bool) *Report {
	report := &Report{
		ID:        uuid.NewString(),
		StartedAt: o.now().UTC(),
		Forced:    force,
		Units:     make([]UnitResult, 0, len(o.plan.Sources)+len(o.plan.Layers)),
	}
	ctx = logger.ContextWithCycleID(ctx, report.ID)
	ctx, span := observability.StartSpan(ctx, SpanCycle)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrCycleID, report.ID)
	observability.SetSpanAttribute(ctx, observability.AttrForced, force)

	log := o.log.WithContext(ctx)
	log.Info("Cycle started", logger.Fields("sources", len(o.plan.Sources), "layers", len(o.plan.Layers), "forced", force))

	report.Units = append(report.Units, o.runSources(ctx, force)...)

	succeeded := make(map[string]bool, len(report.Units))
	for _, u := range report.Units {
		succeeded[u.Unit] = ranSuccessfully(u.Outcome.Status)
	}
	for _, layer := range o.plan.Layers {
		res := o.runLayer(ctx, layer, succeeded, force)
		o.observeUnit(ctx, res)
		succeeded[layer.Name] = ranSuccessfully(res.Outcome.Status)
		report.Units = append(report.Units, res)
	}

	report.Duration = o.now().Sub(report.StartedAt)
	if o.observer != nil {
		statuses := make([]runner.Status, len(report.Units))
		for i, u := range report.Units {
			statuses[i] = u.Outcome.Status
		}
		o.observer.ObserveCycle(ctx, report.Duration, force, statuses)
	}
	return report
}

// ranSuccessfully reports whether the unit's task produced new data this
// cycle, whether or not its freshness record could be written.
func ranSuccessfully(s runner.Status) bool {
	return s == runner.StatusSucceeded || s == runner.StatusUnrecorded
}

// runSources evaluates all sources concurrently and returns their results in
// plan order once every one has finished.
func (o *Orchestrator) runSources(ctx context.Context, force bool) []UnitResult {
	type indexed struct {
		i   int
		res UnitResult
	}

	done := make(chan indexed, len(o.plan.Sources))
	for i, src := range o.plan.Sources {
		go func(i int, src Source) {
			res := o.runSource(ctx, src, force)
			o.observeUnit(ctx, res)
			done <- indexed{i: i, res: res}
		}(i, src)
	}

	results := make([]UnitResult, len(o.plan.Sources))
	for range o.plan.Sources {
		r := <-done
		results[r.i] = r.res
	}
	return results
}

func (o *Orchestrator) runSource(ctx context.Context, src Source, force bool) (res UnitResult) {
	res = UnitResult{Unit: src.Name, Kind: freshness.KindSource}
	ctx, span := observability.StartSpan(ctx, SpanUnit)
	defer func() {
		observability.SetSpanAttribute(ctx, observability.AttrOutcome, string(res.Outcome.Status))
		span.End()
	}()
	observability.SetSpanAttribute(ctx, observability.AttrUnit, src.Name)

	rec, err := o.store.Get(ctx, src.Name)
	if err != nil {
		observability.SetSpanError(ctx, err)
		res.Decision = "freshness record unreadable"
		res.Outcome = runner.FailedPermanently(err, 0, 0)
		return res
	}

	decision := staleness.EvaluateSource(src.Rule, rec, o.now(), force)
	res.Decision = decision.Reason
	if !decision.Stale {
		res.Outcome = runner.Skipped(decision.Reason)
		return res
	}

	o.log.WithContext(ctx).Debug("Source is stale", logger.Fields(logger.FieldUnit, src.Name, logger.FieldReason, decision.Reason))

	res.Outcome = o.runner.Run(ctx, src.Task)
	if res.Outcome.Status != runner.StatusSucceeded {
		if res.Outcome.Err != nil {
			observability.SetSpanError(ctx, res.Outcome.Err)
		}
		return res
	}

	err = o.store.Put(ctx, freshness.Record{
		Unit:        src.Name,
		Kind:        freshness.KindSource,
		LastSuccess: o.now(),
	})
	if err != nil {
		observability.SetSpanError(ctx, err)
		res.Outcome = res.Outcome.Unrecorded(err)
	}
	return res
}

func (o *Orchestrator) runLayer(ctx context.Context, layer Layer, succeeded map[string]bool, force bool) (res UnitResult) {
	res = UnitResult{Unit: layer.Name, Kind: freshness.KindLayer}
	ctx, span := observability.StartSpan(ctx, SpanUnit)
	defer func() {
		observability.SetSpanAttribute(ctx, observability.AttrOutcome, string(res.Outcome.Status))
		span.End()
	}()
	observability.SetSpanAttribute(ctx, observability.AttrUnit, layer.Name)

	rec, err := o.store.Get(ctx, layer.Name)
	if err != nil {
		observability.SetSpanError(ctx, err)
		res.Decision = "freshness record unreadable"
		res.Outcome = runner.FailedPermanently(err, 0, 0)
		return res
	}
	upstream, err := freshness.LastSuccessTimes(ctx, o.store, layer.Upstream)
	if err != nil {
		observability.SetSpanError(ctx, err)
		res.Decision = "upstream freshness unreadable"
		res.Outcome = runner.FailedPermanently(err, 0, 0)
		return res
	}

	var advanced []string
	for _, u := range layer.Upstream {
		if succeeded[u] {
			advanced = append(advanced, u)
		}
	}

	decision := staleness.EvaluateLayer(rec, upstream, advanced, force)
	res.Decision = decision.Reason
	if !decision.Stale {
		res.Outcome = runner.Skipped(decision.Reason)
		return res
	}

	o.log.WithContext(ctx).Info("Rebuilding layer", logger.Fields(logger.FieldUnit, layer.Name, logger.FieldReason, decision.Reason))

	start := o.now()
	attempts := 0
	var failed *runner.Outcome
	var failedStep string
	for _, step := range layer.Steps {
		out := o.runner.Run(ctx, step)
		attempts += out.Attempts
		res.Steps = append(res.Steps, StepResult{Name: step.Name, Optional: step.Optional, Outcome: out})
		if !step.Optional && out.Status != runner.StatusSucceeded && failed == nil {
			failed = &out
			failedStep = step.Name
		}
	}
	elapsed := o.now().Sub(start)

	if failed != nil {
		observability.SetSpanError(ctx, failed.Err)
		res.Outcome = runner.Outcome{
			Status:   failed.Status,
			Reason:   fmt.Sprintf("step %s: %s", failedStep, failed.Reason),
			Attempts: attempts,
			Duration: elapsed,
			Err:      failed.Err,
		}
		return res
	}

	res.Outcome = runner.Succeeded(attempts, elapsed)
	err = o.store.Put(ctx, freshness.Record{
		Unit:        layer.Name,
		Kind:        freshness.KindLayer,
		LastSuccess: o.now(),
		Upstream:    upstream,
	})
	if err != nil {
		observability.SetSpanError(ctx, err)
		res.Outcome = res.Outcome.Unrecorded(err)
	}
	return res
}

func (o *Orchestrator) observeUnit(ctx context.Context, res UnitResult) {
	if o.observer != nil {
		o.observer.ObserveUnit(ctx, res.Unit, res.Kind, res.Outcome)
	}
}
