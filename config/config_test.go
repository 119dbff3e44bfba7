package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	goerrors "github.com/kbukum/medallion/errors"
	"github.com/kbukum/medallion/logger"
	"github.com/kbukum/medallion/process"
	"github.com/kbukum/medallion/runner"
	"github.com/kbukum/medallion/schedule"
)

const sampleYAML = `
name: medallion-test
environment: staging
timezone: America/New_York
workdir: /srv/pipeline
logging:
  level: debug
  format: json
store:
  backend: file
  dir: /var/lib/medallion
daemon:
  interval: 30m
runner:
  base_backoff: 2s
sources:
  - name: eia
    command: python
    args: [fetch_eia.py]
    schedule:
      kind: fixed_weekly
      weekday: Wed
      time: "15:30"
      max_age: 168h
  - name: rbob
    command: python
    args: [fetch_rbob.py]
    env: ["RBOB_SYMBOL=RB=F"]
    schedule:
      kind: business_hours
      first_day: monday
      last_day: friday
      open_hour: 14
      close_hour: 21
      min_interval: 1h
layers:
  - name: silver
    upstream: [eia, rbob]
    steps:
      - name: clean_eia
        command: python
        args: [clean_eia.py]
      - name: noaa
        command: python
        args: [fetch_noaa.py]
        optional: true
  - name: gold
    upstream: [silver]
    steps:
      - name: build_gold
        command: python
        args: [build_gold_layer.py]
        timeout: 10m
        max_retries: 5
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func validConfig() *Config {
	cfg := &Config{
		Sources: []SourceConfig{
			{
				TaskConfig: TaskConfig{Name: "eia", Command: "python"},
				Schedule:   ScheduleConfig{Kind: "fixed_weekly", Weekday: "wed", Time: "15:30"},
			},
		},
		Layers: []LayerConfig{
			{
				Name:     "silver",
				Upstream: []string{"eia"},
				Steps:    []TaskConfig{{Name: "clean_eia", Command: "python"}},
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid development", ServiceConfig{Name: "svc", Environment: "development"}, ""},
		{"valid production", ServiceConfig{Name: "svc", Environment: "production"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "qa"}, "config.environment must be one of"},
		{"invalid log level", ServiceConfig{Name: "svc", Environment: "staging", Logging: logger.Config{Level: "loud"}}, "config.logging"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	var cfg ServiceConfig
	cfg.ApplyDefaults()
	if cfg.Name != "medallion" {
		t.Errorf("expected name 'medallion', got %q", cfg.Name)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected 'development', got %q", cfg.Environment)
	}
	if cfg.GetServiceConfig() != &cfg {
		t.Error("GetServiceConfig should return the receiver")
	}
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(WithConfigFile(writeConfig(t, sampleYAML)), WithFileSystem(&RealFileSystem{}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Name != "medallion-test" || cfg.Environment != "staging" {
		t.Errorf("service config not loaded: %+v", cfg.ServiceConfig)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging config not loaded: %+v", cfg.Logging)
	}
	if cfg.Daemon.Interval != 30*time.Minute {
		t.Errorf("expected 30m interval, got %s", cfg.Daemon.Interval)
	}
	if cfg.Runner.BaseBackoff != 2*time.Second {
		t.Errorf("expected 2s backoff, got %s", cfg.Runner.BaseBackoff)
	}
	if cfg.Store.Dir != "/var/lib/medallion" {
		t.Errorf("expected store dir, got %q", cfg.Store.Dir)
	}
	if len(cfg.Sources) != 2 || len(cfg.Layers) != 2 {
		t.Fatalf("expected 2 sources and 2 layers, got %d and %d", len(cfg.Sources), len(cfg.Layers))
	}
	if cfg.Sources[0].Schedule.MaxAge != 7*24*time.Hour {
		t.Errorf("expected 168h max age, got %s", cfg.Sources[0].Schedule.MaxAge)
	}
	if got := cfg.Sources[1].Env; len(got) != 1 || got[0] != "RBOB_SYMBOL=RB=F" {
		t.Errorf("unexpected env: %v", got)
	}

	noaa := cfg.Layers[0].Steps[1]
	if !noaa.Optional || noaa.MaxRetries != defaultOptionalRetries {
		t.Errorf("optional step defaults wrong: %+v", noaa)
	}
	gold := cfg.Layers[1].Steps[0]
	if gold.Timeout != 10*time.Minute || gold.MaxRetries != 5 {
		t.Errorf("explicit step values lost: %+v", gold)
	}
	if gold.Dir != "/srv/pipeline" {
		t.Errorf("expected workdir as default dir, got %q", gold.Dir)
	}
	if cfg.Sources[0].Timeout != defaultTaskTimeout || cfg.Sources[0].MaxRetries != defaultSourceRetries {
		t.Errorf("source defaults wrong: %+v", cfg.Sources[0].TaskConfig)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MEDALLION_STORE_DIR", "/tmp/override")
	t.Setenv("MEDALLION_DAEMON_INTERVAL", "45s")
	t.Setenv("MEDALLION_RUNNER_BASE_BACKOFF", "3s")

	cfg, err := Load(WithConfigFile(writeConfig(t, sampleYAML)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Dir != "/tmp/override" {
		t.Errorf("expected env override for store.dir, got %q", cfg.Store.Dir)
	}
	if cfg.Daemon.Interval != 45*time.Second {
		t.Errorf("expected env override for daemon.interval, got %s", cfg.Daemon.Interval)
	}
	if cfg.Runner.BaseBackoff != 3*time.Second {
		t.Errorf("expected env override for runner.base_backoff, got %s", cfg.Runner.BaseBackoff)
	}
}

func TestLoadRunnerBackoffAndJitter(t *testing.T) {
	tests := []struct {
		name        string
		runner      string
		wantBackoff time.Duration
		wantJitter  float64
	}{
		{"absent keys use defaults", "runner:\n  workers: 2\n", runner.DefaultBaseBackoff, runner.DefaultJitter},
		{"explicit zero is kept", "runner:\n  base_backoff: 0s\n  jitter: 0\n", 0, 0},
		{"explicit values", "runner:\n  base_backoff: 5s\n  jitter: 0.5\n", 5 * time.Second, 0.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Replace(sampleYAML, "runner:\n  base_backoff: 2s\n", tc.runner, 1)
			cfg, err := Load(WithConfigFile(writeConfig(t, body)))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Runner.BaseBackoff != tc.wantBackoff {
				t.Errorf("base_backoff = %s, want %s", cfg.Runner.BaseBackoff, tc.wantBackoff)
			}
			if cfg.Runner.Jitter != tc.wantJitter {
				t.Errorf("jitter = %v, want %v", cfg.Runner.Jitter, tc.wantJitter)
			}
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "sources: [unterminated\n  - name: eia")
	if _, err := Load(WithConfigFile(path)); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg Config
	err := LoadConfig("medallion", &cfg, WithConfigFile("/nonexistent/config.yml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if len(cfg.Sources) != 0 {
		t.Errorf("expected empty config, got %d sources", len(cfg.Sources))
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: sqlite\n")
	_, err := Load(WithConfigFile(path))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"store.backend", "sources"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error mentioning %q, got %v", want, err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"no sources", func(c *Config) { c.Sources = nil; c.Layers = nil }, "at least one source is required"},
		{"duplicate source", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }, "duplicate name"},
		{"missing command", func(c *Config) { c.Sources[0].Command = "" }, "sources[0].command"},
		{"bad weekday", func(c *Config) { c.Sources[0].Schedule.Weekday = "someday" }, "sources[0].schedule.weekday"},
		{"bad time", func(c *Config) { c.Sources[0].Schedule.Time = "3pm" }, "sources[0].schedule.time"},
		{"unknown kind", func(c *Config) { c.Sources[0].Schedule.Kind = "hourly" }, "sources[0].schedule.kind"},
		{"inverted window", func(c *Config) {
			c.Sources[0].Schedule = ScheduleConfig{Kind: "business_hours", FirstDay: "mon", LastDay: "fri", OpenHour: 21, CloseHour: 14}
		}, "close_hour"},
		{"bad env", func(c *Config) { c.Sources[0].Env = []string{"NOEQUALS"} }, "sources[0].env"},
		{"unknown upstream", func(c *Config) { c.Layers[0].Upstream = []string{"wti"} }, "layers[0].upstream"},
		{"optional steps only", func(c *Config) { c.Layers[0].Steps[0].Optional = true }, "at least one mandatory step"},
		{"layer named like source", func(c *Config) { c.Layers[0].Name = "eia" }, "layers[0].name"},
		{"zero interval", func(c *Config) { c.Daemon.Interval = 0 }, "daemon"},
		{"negative jitter", func(c *Config) { c.Runner.Jitter = -0.5 }, "runner.jitter"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	cfg, err := Load(WithConfigFile(writeConfig(t, sampleYAML)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	plan, err := cfg.Plan()
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(plan.Sources) != 2 || len(plan.Layers) != 2 {
		t.Fatalf("unexpected plan shape: %d sources, %d layers", len(plan.Sources), len(plan.Layers))
	}

	eia := plan.Sources[0].Rule
	if eia.Kind() != schedule.KindFixedWeekly {
		t.Fatalf("expected fixed weekly rule, got %s", eia.Kind())
	}
	w := eia.Weekly()
	if w.Day != time.Wednesday || w.Hour != 15 || w.Minute != 30 || w.MaxAge != 168*time.Hour {
		t.Errorf("unexpected weekly rule: %+v", w)
	}
	if eia.Location().String() != "America/New_York" {
		t.Errorf("expected New York location, got %s", eia.Location())
	}

	rbob := plan.Sources[1].Rule.Window()
	if rbob.FirstDay != time.Monday || rbob.LastDay != time.Friday || rbob.OpenHour != 14 || rbob.CloseHour != 21 {
		t.Errorf("unexpected window: %+v", rbob)
	}

	task := plan.Sources[0].Task
	if task.Command.Binary != "python" || len(task.Command.Args) != 1 || task.Command.Args[0] != "fetch_eia.py" {
		t.Errorf("unexpected command: %+v", task.Command)
	}
	if task.Command.Dir != "/srv/pipeline" {
		t.Errorf("expected workdir, got %q", task.Command.Dir)
	}
	if !plan.Layers[0].Steps[1].Optional {
		t.Error("noaa step should be optional")
	}
}

func TestShippedConfigDeclaresScripts(t *testing.T) {
	cfg, err := Load(WithConfigFile("../cmd/medallion/config.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	plan, err := cfg.Plan()
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	tasks := make([]runner.Task, 0)
	for _, src := range plan.Sources {
		tasks = append(tasks, src.Task)
	}
	for _, l := range plan.Layers {
		tasks = append(tasks, l.Steps...)
	}
	if len(tasks) != 10 {
		t.Fatalf("expected 10 tasks, got %d", len(tasks))
	}

	for _, task := range tasks {
		t.Run(task.Name, func(t *testing.T) {
			for _, arg := range task.Command.Args {
				if !strings.HasSuffix(arg, ".py") {
					continue
				}
				if !slices.Contains(task.Command.Requires, arg) {
					t.Fatalf("script %s is not listed in requires %v", arg, task.Command.Requires)
				}
			}
			if len(task.Command.Requires) == 0 {
				t.Fatal("task declares no required files")
			}

			// With an interpreter that always resolves, a missing script
			// must still fail resolution before any attempt.
			cmd := task.Command
			cmd.Binary = "sh"
			cmd.Dir = t.TempDir()
			_, err := process.Resolve(cmd)
			if !goerrors.HasCode(err, goerrors.ErrCodeResolution) {
				t.Errorf("expected RESOLUTION_ERROR for missing script, got %v", err)
			}
		})
	}

	for _, src := range cfg.Sources {
		if src.Name == "retail" && src.Schedule.Time != "12:00" {
			t.Errorf("retail should be due Monday noon, got %q", src.Schedule.Time)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{"Wednesday", time.Wednesday, false},
		{"wed", time.Wednesday, false},
		{" MON ", time.Monday, false},
		{"sun", time.Sunday, false},
		{"we", 0, true},
		{"", 0, true},
		{"funday", 0, true},
	}
	for _, tc := range tests {
		got, err := parseWeekday(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseWeekday(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseWeekday(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := parseClock("09:05")
	if err != nil || h != 9 || m != 5 {
		t.Errorf("parseClock(09:05) = %d, %d, %v", h, m, err)
	}
	for _, bad := range []string{"25:00", "9", "noon", ""} {
		if _, _, err := parseClock(bad); err == nil {
			t.Errorf("parseClock(%q) should fail", bad)
		}
	}
}

func TestGenerateEnvKeyVariants(t *testing.T) {
	got := generateEnvKeyVariants("RUNNER_BASE_BACKOFF")
	want := map[string]bool{
		"runner_base_backoff": true,
		"runner.base.backoff": true,
		"runner.base_backoff": true,
		"runner_base.backoff": true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for _, v := range got {
		if !want[v] {
			t.Errorf("unexpected variant %q", v)
		}
	}
	if got := generateEnvKeyVariants("TIMEZONE"); len(got) != 1 || got[0] != "timezone" {
		t.Errorf("single-part key: %v", got)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./config/config.yml":  true,
		"./config.yml":         true,
		"./cmd/medallion/.env": true,
	}}
	resolver := &Resolver{FileSystem: fs}

	files := resolver.ResolveFiles("medallion", LoaderConfig{})
	if files.ConfigFile != "./config/config.yml" {
		t.Errorf("expected ./config/config.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./cmd/medallion/.env" {
		t.Errorf("expected ./cmd/medallion/.env, got %q", files.EnvFile)
	}

	explicit := resolver.ResolveFiles("medallion", LoaderConfig{ConfigFile: "/etc/medallion.yml"})
	if explicit.ConfigFile != "/etc/medallion.yml" {
		t.Errorf("explicit path should win, got %q", explicit.ConfigFile)
	}

	empty := (&Resolver{FileSystem: &mockFS{}}).ResolveFiles("medallion", LoaderConfig{})
	if empty.ConfigFile != "" || empty.EnvFile != "" {
		t.Errorf("expected no files, got %+v", empty)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	fs := &mockFS{}
	for _, opt := range []LoaderOption{WithFileSystem(fs), WithConfigFile("/a.yml"), WithEnvFile("/b.env")} {
		opt(&lc)
	}
	if lc.FileSystem != fs || lc.ConfigFile != "/a.yml" || lc.EnvFile != "/b.env" {
		t.Errorf("options not applied: %+v", lc)
	}
}
