package runner

import (
	"time"

	"github.com/kbukum/medallion/process"
)

// Task describes one external step. It is stateless and may run once per cycle.
type Task struct {
	// Name identifies the task in logs, usually the unit or step name.
	Name string
	// Description is the human-readable label.
	Description string
	// Command is the executable reference.
	Command process.Command
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// MaxRetries is the total number of attempts. Values below 1 mean one attempt.
	MaxRetries int
	// Optional tasks whose executable is missing are skipped instead of failed.
	Optional bool
}

func (t Task) attempts() int {
	if t.MaxRetries < 1 {
		return 1
	}
	return t.MaxRetries
}

func (t Task) label() string {
	if t.Description != "" {
		return t.Description
	}
	return t.Name
}
