// Package history persists cycle reports as CSV, one row per unit per cycle.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/kbukum/medallion/cascade"
)

// Row is one unit outcome within a cycle.
type Row struct {
	CycleID    string    `csv:"cycle_id"`
	StartedAt  time.Time `csv:"started_at"`
	Unit       string    `csv:"unit"`
	Kind       string    `csv:"kind"`
	Status     string    `csv:"status"`
	Reason     string    `csv:"reason"`
	Attempts   int       `csv:"attempts"`
	DurationMs int64     `csv:"duration_ms"`
}

// Rows flattens a report. Reason is the outcome reason, or the staleness
// decision for units that ran and succeeded.
func Rows(r *cascade.Report) []Row {
	rows := make([]Row, 0, len(r.Units))
	for _, u := range r.Units {
		reason := u.Outcome.Reason
		if reason == "" {
			reason = u.Decision
		}
		rows = append(rows, Row{
			CycleID:    r.ID,
			StartedAt:  r.StartedAt.UTC(),
			Unit:       u.Unit,
			Kind:       string(u.Kind),
			Status:     string(u.Outcome.Status),
			Reason:     reason,
			Attempts:   u.Outcome.Attempts,
			DurationMs: u.Outcome.Duration.Milliseconds(),
		})
	}
	return rows
}

// Writer appends reports to a CSV file. The header is written only when the
// file is new or empty.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates the parent directory of path.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("history: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	return &Writer{path: path}, nil
}

// Path returns the history file path.
func (w *Writer) Path() string { return w.path }

// Append writes one row per unit of r.
func (w *Writer) Append(r *cascade.Report) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open %s: %w", w.path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("history: close %s: %w", w.path, cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("history: stat %s: %w", w.path, err)
	}

	cw := csv.NewWriter(f)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = info.Size() == 0
	for _, row := range Rows(r) {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("history: encode: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("history: write %s: %w", w.path, err)
	}
	return f.Sync()
}

// Load reads every row of the history file. A missing or empty file yields
// no rows.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read header: %w", err)
	}

	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", path, err)
	}
	return rows, nil
}
