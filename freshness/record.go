package freshness

import (
	"context"
	"fmt"
	"regexp"
	"time"

	goerrors "github.com/kbukum/medallion/errors"
)

// Kind distinguishes source records from layer records.
type Kind string

const (
	KindSource Kind = "source"
	KindLayer  Kind = "layer"
)

// Record is the durable freshness state of one unit.
type Record struct {
	Unit        string    `json:"unit"`
	Kind        Kind      `json:"kind"`
	LastSuccess time.Time `json:"last_success"`
	// Upstream maps each upstream unit to the LastSuccess it had when this
	// layer was built. Empty for sources.
	Upstream map[string]time.Time `json:"upstream,omitempty"`
}

// Store reads and writes freshness records.
type Store interface {
	// Get returns the record for unit, or nil if it was never written.
	Get(ctx context.Context, unit string) (*Record, error)
	// Put durably records rec. LastSuccess never moves backwards.
	Put(ctx context.Context, rec Record) error
}

var unitName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateUnit reports whether name can be used as a unit key.
func ValidateUnit(name string) error {
	if !unitName.MatchString(name) {
		return fmt.Errorf("freshness: invalid unit name %q", name)
	}
	return nil
}

func (r Record) validate() error {
	if err := ValidateUnit(r.Unit); err != nil {
		return err
	}
	if r.Kind != KindSource && r.Kind != KindLayer {
		return fmt.Errorf("freshness: invalid kind %q for %s", r.Kind, r.Unit)
	}
	if r.LastSuccess.IsZero() {
		return fmt.Errorf("freshness: last success is required for %s", r.Unit)
	}
	return nil
}

// merge combines the stored record with an incoming one. Timestamps are
// normalized to UTC and clamped so that neither LastSuccess nor any upstream
// snapshot entry goes backwards.
func merge(prev *Record, next Record) Record {
	out := Record{
		Unit:        next.Unit,
		Kind:        next.Kind,
		LastSuccess: next.LastSuccess.UTC(),
	}
	if len(next.Upstream) > 0 {
		out.Upstream = make(map[string]time.Time, len(next.Upstream))
		for k, v := range next.Upstream {
			out.Upstream[k] = v.UTC()
		}
	}
	if prev == nil {
		return out
	}

	if prev.LastSuccess.After(out.LastSuccess) {
		out.LastSuccess = prev.LastSuccess.UTC()
	}
	for k, v := range prev.Upstream {
		if cur, ok := out.Upstream[k]; ok && v.After(cur) {
			out.Upstream[k] = v.UTC()
		}
	}
	return out
}

// LastSuccessTimes reads the current LastSuccess of each unit. Units that
// never succeeded are omitted from the result.
func LastSuccessTimes(ctx context.Context, s Store, units []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(units))
	for _, u := range units {
		rec, err := s.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[u] = rec.LastSuccess
		}
	}
	return out, nil
}

func readErr(unit string, err error) error {
	if goerrors.HasCode(err, goerrors.ErrCodeStore) {
		return err
	}
	return goerrors.StoreError("read", unit, err)
}

func writeErr(unit string, err error) error {
	if goerrors.HasCode(err, goerrors.ErrCodeStore) {
		return err
	}
	return goerrors.StoreError("write", unit, err)
}
