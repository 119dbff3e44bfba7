package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/medallion/cascade"
	"github.com/kbukum/medallion/process"
	"github.com/kbukum/medallion/runner"
	"github.com/kbukum/medallion/schedule"
)

// Plan builds the immutable cascade plan. Schedule rules are constructed
// once here, in the configured time zone.
func (c *Config) Plan() (cascade.Plan, error) {
	loc, err := c.Location()
	if err != nil {
		return cascade.Plan{}, fmt.Errorf("config: timezone: %w", err)
	}

	var plan cascade.Plan
	for _, src := range c.Sources {
		rule, err := src.Schedule.rule(loc)
		if err != nil {
			return cascade.Plan{}, fmt.Errorf("config: source %s: %w", src.Name, err)
		}
		plan.Sources = append(plan.Sources, cascade.Source{
			Name: src.Name,
			Rule: rule,
			Task: src.TaskConfig.task(),
		})
	}
	for _, l := range c.Layers {
		layer := cascade.Layer{
			Name:     l.Name,
			Upstream: append([]string(nil), l.Upstream...),
		}
		for _, st := range l.Steps {
			layer.Steps = append(layer.Steps, st.task())
		}
		plan.Layers = append(plan.Layers, layer)
	}

	if err := plan.Validate(); err != nil {
		return cascade.Plan{}, err
	}
	return plan, nil
}

func (t TaskConfig) task() runner.Task {
	return runner.Task{
		Name:        t.Name,
		Description: t.Description,
		Command: process.Command{
			Binary:   t.Command,
			Args:     append([]string(nil), t.Args...),
			Dir:      t.Dir,
			Env:      append([]string(nil), t.Env...),
			Requires: append([]string(nil), t.Requires...),
		},
		Timeout:    t.Timeout,
		MaxRetries: t.MaxRetries,
		Optional:   t.Optional,
	}
}

func (s ScheduleConfig) rule(loc *time.Location) (schedule.Rule, error) {
	switch schedule.Kind(s.Kind) {
	case schedule.KindFixedWeekly:
		day, err := parseWeekday(s.Weekday)
		if err != nil {
			return schedule.Rule{}, err
		}
		hour, minute, err := parseClock(s.Time)
		if err != nil {
			return schedule.Rule{}, err
		}
		return schedule.FixedWeekly(schedule.Weekly{Day: day, Hour: hour, Minute: minute, MaxAge: s.MaxAge}, loc)
	case schedule.KindBusinessHours:
		first, err := parseWeekday(s.FirstDay)
		if err != nil {
			return schedule.Rule{}, err
		}
		last, err := parseWeekday(s.LastDay)
		if err != nil {
			return schedule.Rule{}, err
		}
		return schedule.BusinessHours(schedule.Window{
			FirstDay:    first,
			LastDay:     last,
			OpenHour:    s.OpenHour,
			CloseHour:   s.CloseHour,
			MinInterval: s.MinInterval,
		}, loc)
	default:
		return schedule.Rule{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// parseWeekday accepts full or three-letter English day names in any case.
func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// parseClock parses a 24-hour HH:MM time of day.
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
