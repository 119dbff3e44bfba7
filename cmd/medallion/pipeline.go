package main

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/medallion/cascade"
	"github.com/kbukum/medallion/daemon"
)

// pipeline defers to the orchestrator built once infrastructure is started.
// The status server may query it before that.
type pipeline struct {
	orch atomic.Pointer[cascade.Orchestrator]
	loop *daemon.Daemon
}

func (p *pipeline) set(o *cascade.Orchestrator) { p.orch.Store(o) }

func (p *pipeline) RunCycle(ctx context.Context, force bool) *cascade.Report {
	return p.orch.Load().RunCycle(ctx, force)
}

func (p *pipeline) Freshness(ctx context.Context) []cascade.UnitFreshness {
	o := p.orch.Load()
	if o == nil {
		return nil
	}
	return o.Freshness(ctx)
}
