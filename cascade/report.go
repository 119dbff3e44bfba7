package cascade

import (
	"time"

	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/logger"
	"github.com/kbukum/medallion/runner"
)

// StepResult is the outcome of one layer step.
type StepResult struct {
	Name     string         `json:"name"`
	Optional bool           `json:"optional,omitempty"`
	Outcome  runner.Outcome `json:"outcome"`
}

// UnitResult is the outcome of one unit in a cycle.
type UnitResult struct {
	Unit    string         `json:"unit"`
	Kind    freshness.Kind `json:"kind"`
	Outcome runner.Outcome `json:"outcome"`
	// Decision is the staleness reason behind running or skipping the unit.
	Decision string       `json:"decision,omitempty"`
	Steps    []StepResult `json:"steps,omitempty"`
}

// Counts summarizes a report.
type Counts struct {
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Unrecorded int `json:"unrecorded"`
}

// Report is the result of one cycle. It is never merged across cycles.
type Report struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Forced    bool          `json:"forced"`
	// Units holds sources then layers, in plan order.
	Units []UnitResult `json:"units"`
}

// Outcome returns the outcome of unit.
func (r *Report) Outcome(unit string) (runner.Outcome, bool) {
	for _, u := range r.Units {
		if u.Unit == unit {
			return u.Outcome, true
		}
	}
	return runner.Outcome{}, false
}

// Outcomes maps every evaluated unit to its outcome.
func (r *Report) Outcomes() map[string]runner.Outcome {
	out := make(map[string]runner.Outcome, len(r.Units))
	for _, u := range r.Units {
		out[u.Unit] = u.Outcome
	}
	return out
}

// Counts tallies outcomes.
func (r *Report) Counts() Counts {
	var c Counts
	for _, u := range r.Units {
		switch u.Outcome.Status {
		case runner.StatusSucceeded:
			c.Updated++
		case runner.StatusSkipped:
			c.Skipped++
		case runner.StatusUnrecorded:
			c.Unrecorded++
		default:
			c.Failed++
		}
	}
	return c
}

// OK reports whether every unit succeeded or was skipped.
func (r *Report) OK() bool {
	for _, u := range r.Units {
		if !u.Outcome.Status.OK() {
			return false
		}
	}
	return true
}

// ExitCode is 0 when the report is OK and 1 otherwise.
func (r *Report) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

// Log writes one line per unit and a cycle summary.
func (r *Report) Log(log *logger.Logger) {
	for _, u := range r.Units {
		fields := logger.Fields(
			logger.FieldCycleID, r.ID,
			logger.FieldUnit, u.Unit,
			logger.FieldKind, string(u.Kind),
			logger.FieldOutcome, string(u.Outcome.Status),
			logger.FieldAttempts, u.Outcome.Attempts,
			logger.FieldDuration, u.Outcome.Duration.Milliseconds(),
		)
		switch u.Outcome.Status {
		case runner.StatusSkipped:
			fields[logger.FieldReason] = u.Outcome.Reason
			log.Info("Unit skipped", fields)
		case runner.StatusSucceeded:
			if u.Decision != "" {
				fields[logger.FieldReason] = u.Decision
			}
			log.Info("Unit updated", fields)
		case runner.StatusUnrecorded:
			fields[logger.FieldReason] = u.Outcome.Reason
			log.Error("Unit succeeded but freshness was not recorded", fields)
		default:
			fields[logger.FieldReason] = u.Outcome.Reason
			log.Error("Unit failed", fields)
		}
		for _, st := range u.Steps {
			if !st.Outcome.Status.OK() {
				log.Warn("Layer step failed", logger.Fields(
					logger.FieldCycleID, r.ID,
					logger.FieldUnit, u.Unit,
					logger.FieldStep, st.Name,
					"optional", st.Optional,
					logger.FieldOutcome, string(st.Outcome.Status),
					logger.FieldReason, st.Outcome.Reason,
				))
			}
		}
	}

	c := r.Counts()
	fields := logger.Fields(
		logger.FieldCycleID, r.ID,
		"updated", c.Updated,
		"skipped", c.Skipped,
		"failed", c.Failed,
		"unrecorded", c.Unrecorded,
		"forced", r.Forced,
		logger.FieldDuration, r.Duration.Milliseconds(),
	)
	if r.OK() {
		log.Info("Cycle complete", fields)
	} else {
		log.Warn("Cycle complete with failures", fields)
	}
}
