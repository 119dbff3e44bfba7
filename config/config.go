package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/medallion/daemon"
	"github.com/kbukum/medallion/freshness"
	"github.com/kbukum/medallion/observability"
	"github.com/kbukum/medallion/redis"
	"github.com/kbukum/medallion/runner"
	"github.com/kbukum/medallion/schedule"
	"github.com/kbukum/medallion/status"
	"github.com/kbukum/medallion/validation"
)

// Store backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

const (
	defaultTimezone        = "America/New_York"
	defaultTaskTimeout     = 5 * time.Minute
	defaultSourceRetries   = 3
	defaultStepRetries     = 3
	defaultOptionalRetries = 2
)

// Config is the complete orchestrator configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// Timezone is the IANA zone every schedule rule is expressed in.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
	// Workdir is the default working directory for tasks without one.
	Workdir string `yaml:"workdir" mapstructure:"workdir"`

	Store     StoreConfig          `yaml:"store" mapstructure:"store"`
	Runner    runner.Config        `yaml:"runner" mapstructure:"runner"`
	Daemon    daemon.Config        `yaml:"daemon" mapstructure:"daemon"`
	Status    status.Config        `yaml:"status" mapstructure:"status"`
	History   HistoryConfig        `yaml:"history" mapstructure:"history"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`

	Sources []SourceConfig `yaml:"sources" mapstructure:"sources"`
	// Layers are listed in dependency order.
	Layers []LayerConfig `yaml:"layers" mapstructure:"layers"`
}

// StoreConfig selects the freshness store backend.
type StoreConfig struct {
	Backend   string       `yaml:"backend" mapstructure:"backend"`
	Dir       string       `yaml:"dir" mapstructure:"dir"`
	Redis     redis.Config `yaml:"redis" mapstructure:"redis"`
	KeyPrefix string       `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// HistoryConfig enables the CSV cycle history when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// TaskConfig describes one external program.
type TaskConfig struct {
	Name        string   `yaml:"name" mapstructure:"name"`
	Description string   `yaml:"description" mapstructure:"description"`
	Command     string   `yaml:"command" mapstructure:"command"`
	Args        []string `yaml:"args" mapstructure:"args"`
	Dir         string   `yaml:"dir" mapstructure:"dir"`
	// Env holds KEY=VALUE pairs added to the inherited environment.
	Env []string `yaml:"env" mapstructure:"env"`
	// Requires lists files that must exist for the task to be runnable.
	Requires   []string      `yaml:"requires" mapstructure:"requires"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	Optional   bool          `yaml:"optional" mapstructure:"optional"`
}

// ScheduleConfig is the cadence of a source. Fixed weekly rules use Weekday,
// Time and MaxAge; business-hours rules use the window fields.
type ScheduleConfig struct {
	Kind string `yaml:"kind" mapstructure:"kind"`

	Weekday string        `yaml:"weekday" mapstructure:"weekday"`
	Time    string        `yaml:"time" mapstructure:"time"`
	MaxAge  time.Duration `yaml:"max_age" mapstructure:"max_age"`

	FirstDay    string        `yaml:"first_day" mapstructure:"first_day"`
	LastDay     string        `yaml:"last_day" mapstructure:"last_day"`
	OpenHour    int           `yaml:"open_hour" mapstructure:"open_hour"`
	CloseHour   int           `yaml:"close_hour" mapstructure:"close_hour"`
	MinInterval time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
}

// SourceConfig is an external feed and its fetch task.
type SourceConfig struct {
	TaskConfig `yaml:",inline" mapstructure:",squash"`
	Schedule   ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
}

// LayerConfig is a derived dataset rebuilt by its steps.
type LayerConfig struct {
	Name     string       `yaml:"name" mapstructure:"name"`
	Upstream []string     `yaml:"upstream" mapstructure:"upstream"`
	Steps    []TaskConfig `yaml:"steps" mapstructure:"steps"`
}

// keyDefaults are loader defaults for settings where zero is meaningful and
// ApplyDefaults therefore cannot tell "unset" from "off".
func keyDefaults() map[string]any {
	return map[string]any{
		"runner.base_backoff": runner.DefaultBaseBackoff,
		"runner.jitter":       runner.DefaultJitter,
	}
}

// ApplyDefaults fills unset fields of every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "data/metadata"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = freshness.DefaultKeyPrefix
	}
	if c.Store.Backend == BackendRedis {
		c.Store.Redis.ApplyDefaults()
	}

	c.Runner.ApplyDefaults()
	c.Daemon.ApplyDefaults()
	c.Status.ApplyDefaults()
	if c.Telemetry.Enabled {
		c.Telemetry.ApplyDefaults()
	}

	for i := range c.Sources {
		c.Sources[i].applyDefaults(c.Workdir, defaultSourceRetries)
	}
	for i := range c.Layers {
		for j := range c.Layers[i].Steps {
			step := &c.Layers[i].Steps[j]
			retries := defaultStepRetries
			if step.Optional {
				retries = defaultOptionalRetries
			}
			step.applyDefaults(c.Workdir, retries)
		}
	}
}

func (t *TaskConfig) applyDefaults(workdir string, retries int) {
	if t.Timeout <= 0 {
		t.Timeout = defaultTaskTimeout
	}
	if t.MaxRetries <= 0 {
		t.MaxRetries = retries
	}
	if t.Dir == "" {
		t.Dir = workdir
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	v := validation.New()

	v.Merge("", c.ServiceConfig.Validate())
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		v.AddError("timezone", fmt.Sprintf("unknown time zone %q", c.Timezone))
	}

	v.OneOf("store.backend", c.Store.Backend, []string{BackendFile, BackendRedis})
	switch c.Store.Backend {
	case BackendFile:
		v.Required("store.dir", c.Store.Dir)
	case BackendRedis:
		v.Merge("store.redis", c.Store.Redis.Validate())
	}

	v.Merge("runner", validation.Validate(c.Runner))
	v.Merge("daemon", c.Daemon.Validate())
	v.Merge("status", c.Status.Validate())
	v.Merge("telemetry", c.Telemetry.Validate())

	if len(c.Sources) == 0 {
		v.AddError("sources", "at least one source is required")
	}
	units := make(map[string]bool)
	for i, src := range c.Sources {
		path := fmt.Sprintf("sources[%d]", i)
		v.Required(path+".name", src.Name)
		v.Unique(path+".name", src.Name, units)
		src.TaskConfig.validate(v, path)
		src.Schedule.validate(v, path+".schedule")
	}
	for i, l := range c.Layers {
		path := fmt.Sprintf("layers[%d]", i)
		v.Required(path+".name", l.Name)
		for _, u := range l.Upstream {
			v.Custom(units[u], path+".upstream", fmt.Sprintf("%q is not a source or an earlier layer", u))
		}
		v.Custom(len(l.Upstream) > 0, path+".upstream", "at least one upstream unit is required")
		v.Unique(path+".name", l.Name, units)

		mandatory := 0
		for j, st := range l.Steps {
			st.validate(v, fmt.Sprintf("%s.steps[%d]", path, j))
			if !st.Optional {
				mandatory++
			}
		}
		v.Custom(mandatory > 0, path+".steps", "at least one mandatory step is required")
	}

	if !v.HasErrors() {
		if _, err := c.Plan(); err != nil {
			v.AddError("plan", err.Error())
		}
	}
	return v.Err()
}

func (t TaskConfig) validate(v *validation.Validator, path string) {
	v.Required(path+".name", t.Name)
	v.Required(path+".command", t.Command)
	v.Custom(t.Timeout >= 0, path+".timeout", "must not be negative")
	for _, kv := range t.Env {
		v.Custom(strings.Contains(kv, "="), path+".env", fmt.Sprintf("%q is not KEY=VALUE", kv))
	}
}

func (s ScheduleConfig) validate(v *validation.Validator, path string) {
	switch schedule.Kind(s.Kind) {
	case schedule.KindFixedWeekly:
		if _, err := parseWeekday(s.Weekday); err != nil {
			v.AddError(path+".weekday", err.Error())
		}
		if _, _, err := parseClock(s.Time); err != nil {
			v.AddError(path+".time", err.Error())
		}
		v.Custom(s.MaxAge >= 0, path+".max_age", "must not be negative")
	case schedule.KindBusinessHours:
		if _, err := parseWeekday(s.FirstDay); err != nil {
			v.AddError(path+".first_day", err.Error())
		}
		if _, err := parseWeekday(s.LastDay); err != nil {
			v.AddError(path+".last_day", err.Error())
		}
		v.Range(path+".open_hour", s.OpenHour, 0, 23)
		v.Range(path+".close_hour", s.CloseHour, 0, 23)
		v.Custom(s.OpenHour <= s.CloseHour, path+".close_hour", "must not be before open_hour")
		v.Custom(s.MinInterval >= 0, path+".min_interval", "must not be negative")
	default:
		v.OneOf(path+".kind", s.Kind, []string{string(schedule.KindFixedWeekly), string(schedule.KindBusinessHours)})
	}
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
