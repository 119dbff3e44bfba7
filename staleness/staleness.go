// Package staleness turns schedule rules and freshness records into
// update and rebuild decisions.
package staleness

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/schedule"
)

// Decision says whether a unit must run this cycle, and why.
type Decision struct {
	Stale  bool
	Reason string
}

// SourceNeedsUpdate applies rule to the source's record. A nil record means
// the source never succeeded.
func SourceNeedsUpdate(rule schedule.Rule, rec *freshness.Record, now time.Time, force bool) bool {
	return EvaluateSource(rule, rec, now, force).Stale
}

// EvaluateSource is SourceNeedsUpdate with the reason attached.
func EvaluateSource(rule schedule.Rule, rec *freshness.Record, now time.Time, force bool) Decision {
	var last time.Time
	if rec != nil {
		last = rec.LastSuccess
	}
	d := rule.Evaluate(now, last, force)
	return Decision{Stale: d.Due, Reason: d.Reason}
}

// LayerNeedsRebuild reports whether a layer built from the snapshot in layer
// is behind its upstream units. upstream holds each upstream unit's current
// LastSuccess; units that never succeeded are left out and never count as newer.
//
// The layer is stale when forced, when it was never built, or when any
// upstream timestamp is strictly newer than the snapshot entry (a missing
// entry counts as newer).
func LayerNeedsRebuild(layer *freshness.Record, upstream map[string]time.Time, force bool) bool {
	return EvaluateLayer(layer, upstream, nil, force).Stale
}

// EvaluateLayer decides a layer rebuild. advanced lists upstream units that
// succeeded earlier in this cycle; any of them makes the layer stale even
// when the timestamps alone would not.
func EvaluateLayer(layer *freshness.Record, upstream map[string]time.Time, advanced []string, force bool) Decision {
	if force {
		return Decision{Stale: true, Reason: "forced"}
	}
	if len(advanced) > 0 {
		return Decision{Stale: true, Reason: "upstream updated this cycle: " + strings.Join(sorted(advanced), ", ")}
	}
	if layer == nil {
		return Decision{Stale: true, Reason: "never built"}
	}

	var newer []string
	for _, name := range sortedKeys(upstream) {
		built, ok := layer.Upstream[name]
		if !ok {
			newer = append(newer, name+" (not in snapshot)")
			continue
		}
		if upstream[name].After(built) {
			newer = append(newer, fmt.Sprintf("%s (%s > %s)", name,
				upstream[name].UTC().Format(time.RFC3339), built.UTC().Format(time.RFC3339)))
		}
	}
	if len(newer) > 0 {
		return Decision{Stale: true, Reason: "upstream advanced: " + strings.Join(newer, ", ")}
	}
	return Decision{Stale: false, Reason: "up to date with upstream"}
}

func sortedKeys(m map[string]time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
