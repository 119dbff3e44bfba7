package freshness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	goerrors "github.com/kbukum/medallion/errors"
	"github.com/kbukum/medallion/logger"
	"github.com/kbukum/medallion/redis"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "metadata"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mini.Close() })

	client, err := redis.New(redis.Config{Addr: mini.Addr()}, logger.NewNop())
	if err != nil {
		t.Fatalf("redis.New: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ""), mini
}

func backends(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"file":  newFileStore(t),
		"redis": rs,
	}
}

var t0 = time.Date(2025, 1, 15, 20, 31, 0, 0, time.UTC)

func TestStore_GetAbsent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := s.Get(context.Background(), "eia")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if rec != nil {
				t.Fatalf("expected absent record, got %+v", rec)
			}
		})
	}
}

func TestStore_PutGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ny := time.FixedZone("EST", -5*3600)
			in := Record{
				Unit:        "silver",
				Kind:        KindLayer,
				LastSuccess: t0.In(ny),
				Upstream:    map[string]time.Time{"eia": t0.Add(-time.Hour), "rbob": t0.Add(-2 * time.Hour)},
			}
			if err := s.Put(ctx, in); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err := s.Get(ctx, "silver")
			if err != nil || got == nil {
				t.Fatalf("Get: %+v, %v", got, err)
			}
			if !got.LastSuccess.Equal(t0) || got.LastSuccess.Location() != time.UTC {
				t.Errorf("expected %v in UTC, got %v", t0, got.LastSuccess)
			}
			if got.Kind != KindLayer || len(got.Upstream) != 2 || !got.Upstream["eia"].Equal(t0.Add(-time.Hour)) {
				t.Errorf("unexpected record %+v", got)
			}
		})
	}
}

func TestStore_MonotonicPut(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seq := []time.Time{t0, t0.Add(time.Hour), t0.Add(-48 * time.Hour), t0.Add(30 * time.Minute), t0.Add(2 * time.Hour)}

			var high time.Time
			for _, ts := range seq {
				if err := s.Put(ctx, Record{Unit: "rbob", Kind: KindSource, LastSuccess: ts}); err != nil {
					t.Fatalf("Put: %v", err)
				}
				if ts.After(high) {
					high = ts
				}
				got, err := s.Get(ctx, "rbob")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if !got.LastSuccess.Equal(high) {
					t.Fatalf("after Put(%v) expected %v, got %v", ts, high, got.LastSuccess)
				}
			}
		})
	}
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bad := []Record{
				{Unit: "../escape", Kind: KindSource, LastSuccess: t0},
				{Unit: "", Kind: KindSource, LastSuccess: t0},
				{Unit: "eia", Kind: "bogus", LastSuccess: t0},
				{Unit: "eia", Kind: KindSource},
			}
			for _, rec := range bad {
				err := s.Put(ctx, rec)
				if !goerrors.HasCode(err, goerrors.ErrCodeStore) {
					t.Errorf("Put(%+v): expected STORE_ERROR, got %v", rec, err)
				}
			}
			if _, err := s.Get(ctx, "a/b"); !goerrors.HasCode(err, goerrors.ErrCodeStore) {
				t.Errorf("Get(a/b): expected STORE_ERROR, got %v", err)
			}
		})
	}
}

func TestFileStore_CreatesDirectoryAndLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "metadata")
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Put(context.Background(), Record{Unit: "eia", Kind: KindSource, LastSuccess: t0}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "eia_metadata.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only eia_metadata.json, got %v", names)
	}

	raw, _ := os.ReadFile(filepath.Join(dir, "eia_metadata.json"))
	if !strings.Contains(string(raw), `"last_success": "2025-01-15T20:31:00Z"`) {
		t.Errorf("expected RFC 3339 UTC timestamp, got %s", raw)
	}
}

func TestFileStore_CorruptRecordIsStoreError(t *testing.T) {
	s := newFileStore(t)
	if err := os.WriteFile(filepath.Join(s.Dir(), "eia_metadata.json"), []byte(`{"unit":"eia","last_`), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Get(context.Background(), "eia")
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}
	appErr, ok := goerrors.AsAppError(err)
	if !ok || appErr.Code != goerrors.ErrCodeStore {
		t.Fatalf("expected STORE_ERROR, got %v", err)
	}
	if appErr.Details["op"] != "read" {
		t.Errorf("expected read op, got %v", appErr.Details["op"])
	}

	// A corrupt record also blocks writes rather than being silently replaced.
	if err := s.Put(context.Background(), Record{Unit: "eia", Kind: KindSource, LastSuccess: t0}); !goerrors.HasCode(err, goerrors.ErrCodeStore) {
		t.Fatalf("expected STORE_ERROR on Put over corrupt record, got %v", err)
	}
}

func TestFileStore_MismatchedUnit(t *testing.T) {
	s := newFileStore(t)
	body := `{"unit":"rbob","kind":"source","last_success":"2025-01-15T20:31:00Z"}`
	if err := os.WriteFile(filepath.Join(s.Dir(), "eia_metadata.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), "eia"); !goerrors.HasCode(err, goerrors.ErrCodeStore) {
		t.Fatalf("expected STORE_ERROR, got %v", err)
	}
}

func TestNewFileStore_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(file); !goerrors.HasCode(err, goerrors.ErrCodeStore) {
		t.Fatalf("expected STORE_ERROR, got %v", err)
	}
}

func TestRedisStore_UnavailableIsStoreError(t *testing.T) {
	s, mini := newRedisStore(t)
	mini.Close()

	if _, err := s.Get(context.Background(), "eia"); !goerrors.HasCode(err, goerrors.ErrCodeStore) {
		t.Fatalf("expected STORE_ERROR on Get, got %v", err)
	}
	err := s.Put(context.Background(), Record{Unit: "eia", Kind: KindSource, LastSuccess: t0})
	if !goerrors.HasCode(err, goerrors.ErrCodeStore) {
		t.Fatalf("expected STORE_ERROR on Put, got %v", err)
	}
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mini := newRedisStore(t)
	if err := s.Put(context.Background(), Record{Unit: "retail", Kind: KindSource, LastSuccess: t0}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mini.Exists(DefaultKeyPrefix + ":retail") {
		t.Fatalf("expected key %s:retail", DefaultKeyPrefix)
	}
}

func TestLastSuccessTimes(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, Record{Unit: "eia", Kind: KindSource, LastSuccess: t0})
	_ = s.Put(ctx, Record{Unit: "rbob", Kind: KindSource, LastSuccess: t0.Add(time.Hour)})

	got, err := LastSuccessTimes(ctx, s, []string{"eia", "rbob", "retail"})
	if err != nil {
		t.Fatalf("LastSuccessTimes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if _, ok := got["retail"]; ok {
		t.Error("never-succeeded unit must be omitted")
	}
	if !got["rbob"].Equal(t0.Add(time.Hour)) {
		t.Errorf("unexpected rbob time %v", got["rbob"])
	}
}

func TestMergeClampsUpstream(t *testing.T) {
	prev := &Record{Unit: "gold", Kind: KindLayer, LastSuccess: t0, Upstream: map[string]time.Time{"silver": t0}}
	next := Record{Unit: "gold", Kind: KindLayer, LastSuccess: t0.Add(-time.Minute), Upstream: map[string]time.Time{"silver": t0.Add(-time.Hour)}}

	out := merge(prev, next)
	if !out.LastSuccess.Equal(t0) {
		t.Errorf("expected LastSuccess clamped to %v, got %v", t0, out.LastSuccess)
	}
	if !out.Upstream["silver"].Equal(t0) {
		t.Errorf("expected upstream clamped to %v, got %v", t0, out.Upstream["silver"])
	}
}
