package cascade

import (
	"fmt"

	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/runner"
	"github.com/kbukum/medallion/schedule"
)

// Source is an independently scheduled external feed.
type Source struct {
	Name string
	Rule schedule.Rule
	Task runner.Task
}

// Layer is a derived dataset rebuilt from its upstream units by running
// Steps in order. Optional steps may fail without failing the layer.
type Layer struct {
	Name     string
	Upstream []string
	Steps    []runner.Task
}

// Plan is the immutable set of units a cycle evaluates.
// Layers are listed in dependency order.
type Plan struct {
	Sources []Source
	Layers  []Layer
}

// Validate checks unit names, dependency order and steps.
func (p Plan) Validate() error {
	seen := make(map[string]freshness.Kind)
	for _, s := range p.Sources {
		if err := freshness.ValidateUnit(s.Name); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("cascade: duplicate unit %q", s.Name)
		}
		seen[s.Name] = freshness.KindSource
	}
	for _, l := range p.Layers {
		if err := freshness.ValidateUnit(l.Name); err != nil {
			return err
		}
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("cascade: duplicate unit %q", l.Name)
		}
		if len(l.Upstream) == 0 {
			return fmt.Errorf("cascade: layer %q has no upstream units", l.Name)
		}
		for _, u := range l.Upstream {
			if _, ok := seen[u]; !ok {
				return fmt.Errorf("cascade: layer %q depends on %q, which is not a source or an earlier layer", l.Name, u)
			}
		}
		if len(l.Steps) == 0 {
			return fmt.Errorf("cascade: layer %q has no steps", l.Name)
		}
		mandatory := 0
		for _, st := range l.Steps {
			if !st.Optional {
				mandatory++
			}
		}
		if mandatory == 0 {
			return fmt.Errorf("cascade: layer %q has no mandatory steps", l.Name)
		}
		seen[l.Name] = freshness.KindLayer
	}
	return nil
}

// Unit describes one unit of the plan for reports and status views.
type Unit struct {
	Name     string
	Kind     freshness.Kind
	Upstream []string
	// Rule is set for sources only.
	Rule *schedule.Rule
}

// Units lists sources then layers in plan order.
func (p Plan) Units() []Unit {
	out := make([]Unit, 0, len(p.Sources)+len(p.Layers))
	for i := range p.Sources {
		out = append(out, Unit{Name: p.Sources[i].Name, Kind: freshness.KindSource, Rule: &p.Sources[i].Rule})
	}
	for _, l := range p.Layers {
		out = append(out, Unit{Name: l.Name, Kind: freshness.KindLayer, Upstream: l.Upstream})
	}
	return out
}
