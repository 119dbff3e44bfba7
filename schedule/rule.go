package schedule

import (
	"fmt"
	"time"
)

// Kind is the cadence kind of a rule.
type Kind string

const (
	KindFixedWeekly   Kind = "fixed_weekly"
	KindBusinessHours Kind = "business_hours"
)

// Weekly describes a fixed weekly publish time.
type Weekly struct {
	Day    time.Weekday
	Hour   int
	Minute int
	// MaxAge marks data stale regardless of the publish time. Zero disables the check.
	MaxAge time.Duration
}

// Window describes a weekday/hour window. Both day and hour bounds are inclusive.
type Window struct {
	FirstDay    time.Weekday
	LastDay     time.Weekday
	OpenHour    int
	CloseHour   int
	MinInterval time.Duration
}

// Rule is an immutable cadence policy for one source.
type Rule struct {
	kind   Kind
	weekly Weekly
	window Window
	loc    *time.Location
}

// FixedWeekly builds a fixed-weekly-time rule evaluated in loc (UTC if nil).
func FixedWeekly(w Weekly, loc *time.Location) (Rule, error) {
	if w.Day < time.Sunday || w.Day > time.Saturday {
		return Rule{}, fmt.Errorf("schedule: invalid weekday %d", w.Day)
	}
	if w.Hour < 0 || w.Hour > 23 {
		return Rule{}, fmt.Errorf("schedule: hour %d out of range 0-23", w.Hour)
	}
	if w.Minute < 0 || w.Minute > 59 {
		return Rule{}, fmt.Errorf("schedule: minute %d out of range 0-59", w.Minute)
	}
	if w.MaxAge < 0 {
		return Rule{}, fmt.Errorf("schedule: negative max age %s", w.MaxAge)
	}
	return Rule{kind: KindFixedWeekly, weekly: w, loc: orUTC(loc)}, nil
}

// BusinessHours builds a business-hours-window rule evaluated in loc (UTC if nil).
func BusinessHours(w Window, loc *time.Location) (Rule, error) {
	for _, d := range []time.Weekday{w.FirstDay, w.LastDay} {
		if d < time.Sunday || d > time.Saturday {
			return Rule{}, fmt.Errorf("schedule: invalid weekday %d", d)
		}
	}
	if w.OpenHour < 0 || w.OpenHour > 23 || w.CloseHour < 0 || w.CloseHour > 23 {
		return Rule{}, fmt.Errorf("schedule: window hours %d-%d out of range 0-23", w.OpenHour, w.CloseHour)
	}
	if w.OpenHour > w.CloseHour {
		return Rule{}, fmt.Errorf("schedule: open hour %d after close hour %d", w.OpenHour, w.CloseHour)
	}
	if w.MinInterval < 0 {
		return Rule{}, fmt.Errorf("schedule: negative min interval %s", w.MinInterval)
	}
	return Rule{kind: KindBusinessHours, window: w, loc: orUTC(loc)}, nil
}

// MustFixedWeekly is like FixedWeekly but panics on an invalid rule.
func MustFixedWeekly(w Weekly, loc *time.Location) Rule {
	r, err := FixedWeekly(w, loc)
	if err != nil {
		panic(err)
	}
	return r
}

// MustBusinessHours is like BusinessHours but panics on an invalid rule.
func MustBusinessHours(w Window, loc *time.Location) Rule {
	r, err := BusinessHours(w, loc)
	if err != nil {
		panic(err)
	}
	return r
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Kind returns the cadence kind.
func (r Rule) Kind() Kind { return r.kind }

// Location returns the reference time zone.
func (r Rule) Location() *time.Location { return orUTC(r.loc) }

// Weekly returns the fixed-weekly parameters. Zero for other kinds.
func (r Rule) Weekly() Weekly { return r.weekly }

// Window returns the business-hours parameters. Zero for other kinds.
func (r Rule) Window() Window { return r.window }

// String describes the rule for logs and reports.
func (r Rule) String() string {
	switch r.kind {
	case KindFixedWeekly:
		s := fmt.Sprintf("weekly %s %02d:%02d %s", short(r.weekly.Day), r.weekly.Hour, r.weekly.Minute, r.Location())
		if r.weekly.MaxAge > 0 {
			s += fmt.Sprintf(", max age %s", humanDuration(r.weekly.MaxAge))
		}
		return s
	case KindBusinessHours:
		return fmt.Sprintf("%s-%s %02d:00-%02d:59 %s, every %s",
			short(r.window.FirstDay), short(r.window.LastDay),
			r.window.OpenHour, r.window.CloseHour, r.Location(), humanDuration(r.window.MinInterval))
	default:
		return "unscheduled"
	}
}

func short(d time.Weekday) string {
	return d.String()[:3]
}
