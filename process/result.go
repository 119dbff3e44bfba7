package process

import (
	"bytes"
	"time"
)

// Result holds the output and status of a completed subprocess.
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte
	// Stderr is the captured standard error.
	Stderr []byte
	// ExitCode is the process exit code. -1 if the process was killed.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
}

// StderrTail returns the last non-empty line of stderr, truncated to max bytes.
// Used as the failure detail of an attempt.
func (r *Result) StderrTail(max int) string {
	if r == nil {
		return ""
	}
	out := bytes.TrimSpace(r.Stderr)
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = bytes.TrimSpace(out[i+1:])
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
