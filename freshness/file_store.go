package freshness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON document per unit at <dir>/<unit>_metadata.json.
// Writes go to a temp file in the same directory which is synced and renamed
// over the target, so a crash leaves either the old or the new record.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the backing directory if needed and returns a store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, writeErr("", fmt.Errorf("freshness: store directory is required"))
	}
	if err := ensureDirDurable(dir); err != nil {
		return nil, writeErr("", fmt.Errorf("create %s: %w", dir, err))
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(unit string) string {
	return filepath.Join(s.dir, unit+"_metadata.json")
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, unit string) (*Record, error) {
	if err := ValidateUnit(unit); err != nil {
		return nil, readErr(unit, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(unit)
}

func (s *FileStore) load(unit string) (*Record, error) {
	data, err := os.ReadFile(s.path(unit))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, readErr(unit, err)
	}

	var rec Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return nil, readErr(unit, fmt.Errorf("decode %s: %w", s.path(unit), err))
	}
	if rec.Unit != unit {
		return nil, readErr(unit, fmt.Errorf("record in %s belongs to %q", s.path(unit), rec.Unit))
	}
	return &rec, nil
}

// Put implements Store.
func (s *FileStore) Put(_ context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return writeErr(rec.Unit, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load(rec.Unit)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(merge(prev, rec), "", "  ")
	if err != nil {
		return writeErr(rec.Unit, err)
	}
	data = append(data, '\n')

	if err := writeFileAtomicDurable(s.path(rec.Unit), data, 0o644); err != nil {
		return writeErr(rec.Unit, err)
	}
	return nil
}

func ensureDirDurable(dir string) error {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return fsyncDir(filepath.Dir(dir))
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
