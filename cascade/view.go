package cascade

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/staleness"
)

// Span names used by RunCycle.
const (
	SpanCycle = "cascade.cycle"
	SpanUnit  = "cascade.unit"
)

// UnitFreshness is the current freshness of one unit, as shown by the
// freshness report and the status endpoint.
type UnitFreshness struct {
	Unit        string         `json:"unit"`
	Kind        freshness.Kind `json:"kind"`
	Schedule    string         `json:"schedule,omitempty"`
	LastSuccess *time.Time     `json:"last_success,omitempty"`
	Age         string         `json:"age,omitempty"`
	// NextExpected is set for sources only.
	NextExpected *time.Time `json:"next_expected,omitempty"`
	Stale        bool       `json:"stale"`
	Reason       string     `json:"reason"`
	Error        string     `json:"error,omitempty"`
}

// Freshness reads every unit's record and evaluates it without running
// anything. Layers are judged on timestamps alone. A unit whose record cannot
// be read carries the error instead of failing the whole view.
func (o *Orchestrator) Freshness(ctx context.Context) []UnitFreshness {
	now := o.now()
	out := make([]UnitFreshness, 0, len(o.plan.Sources)+len(o.plan.Layers))

	for _, u := range o.plan.Units() {
		uf := UnitFreshness{Unit: u.Name, Kind: u.Kind}
		if u.Rule != nil {
			uf.Schedule = u.Rule.String()
			next := u.Rule.NextExpected(now).UTC()
			uf.NextExpected = &next
		}

		rec, err := o.store.Get(ctx, u.Name)
		if err != nil {
			uf.Error = err.Error()
			uf.Reason = "freshness record unreadable"
			out = append(out, uf)
			continue
		}
		if rec != nil {
			ts := rec.LastSuccess.UTC()
			uf.LastSuccess = &ts
			uf.Age = formatAge(now.Sub(ts))
		}

		var d staleness.Decision
		if u.Kind == freshness.KindSource {
			d = staleness.EvaluateSource(*u.Rule, rec, now, false)
		} else {
			upstream, err := freshness.LastSuccessTimes(ctx, o.store, u.Upstream)
			if err != nil {
				uf.Error = err.Error()
				uf.Reason = "upstream freshness unreadable"
				out = append(out, uf)
				continue
			}
			d = staleness.EvaluateLayer(rec, upstream, nil, false)
		}
		uf.Stale, uf.Reason = d.Stale, d.Reason
		out = append(out, uf)
	}
	return out
}

// WriteFreshness renders the view as an aligned text table.
func WriteFreshness(w io.Writer, units []UnitFreshness) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tKIND\tLAST SUCCESS\tAGE\tNEXT EXPECTED\tSTATE\tREASON")
	for _, u := range units {
		last, next := "never", "-"
		if u.LastSuccess != nil {
			last = u.LastSuccess.Format(time.RFC3339)
		}
		if u.NextExpected != nil {
			next = u.NextExpected.Format(time.RFC3339)
		}
		age := u.Age
		if age == "" {
			age = "-"
		}
		state := "fresh"
		switch {
		case u.Error != "":
			state = "error"
		case u.Stale:
			state = "stale"
		}
		reason := u.Reason
		if u.Error != "" {
			reason += ": " + u.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", u.Unit, u.Kind, last, age, next, state, strings.TrimSpace(reason))
	}
	return tw.Flush()
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, int(d.Minutes())%60)
	default:
		return d.Round(time.Second).String()
	}
}
