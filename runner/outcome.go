package runner

import (
	"time"
)

// Status classifies how a unit ended in a cycle.
type Status string

const (
	StatusSucceeded          Status = "succeeded"
	StatusFailedPermanently  Status = "failed_permanently"
	StatusFailedAfterRetries Status = "failed_after_retries"
	StatusSkipped            Status = "skipped"
	// StatusUnrecorded means the task succeeded but its freshness record
	// could not be written.
	StatusUnrecorded Status = "succeeded_unrecorded"
)

// OK reports whether the status needs no attention: succeeded or skipped.
func (s Status) OK() bool {
	return s == StatusSucceeded || s == StatusSkipped
}

// Failed reports whether the task itself failed.
func (s Status) Failed() bool {
	return s == StatusFailedPermanently || s == StatusFailedAfterRetries
}

// Outcome is the result of running (or not running) one task.
type Outcome struct {
	Status Status `json:"status"`
	// Reason explains a skip or failure; the last failure for FailedAfterRetries.
	Reason   string        `json:"reason,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	// Err is the last error, if any. Not serialized.
	Err error `json:"-"`
}

// Succeeded returns a success outcome.
func Succeeded(attempts int, d time.Duration) Outcome {
	return Outcome{Status: StatusSucceeded, Attempts: attempts, Duration: d}
}

// Skipped returns an outcome for a unit that did not need to run.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// FailedPermanently returns an outcome for a failure that is never retried.
func FailedPermanently(err error, attempts int, d time.Duration) Outcome {
	return Outcome{Status: StatusFailedPermanently, Reason: reasonOf(err), Attempts: attempts, Duration: d, Err: err}
}

// FailedAfterRetries returns an outcome for a task that exhausted its attempts.
func FailedAfterRetries(err error, attempts int, d time.Duration) Outcome {
	return Outcome{Status: StatusFailedAfterRetries, Reason: reasonOf(err), Attempts: attempts, Duration: d, Err: err}
}

// Unrecorded turns a success into a succeeded-but-unrecorded outcome.
func (o Outcome) Unrecorded(err error) Outcome {
	o.Status = StatusUnrecorded
	o.Reason = reasonOf(err)
	o.Err = err
	return o
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
