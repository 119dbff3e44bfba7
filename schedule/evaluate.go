package schedule

import (
	"fmt"
	"time"
)

// Decision is the outcome of evaluating a rule, with the reason logged next to it.
type Decision struct {
	Due    bool
	Reason string
}

// IsDue reports whether a source governed by rule should be updated now.
// A zero lastSuccess means the source never succeeded.
func IsDue(rule Rule, now, lastSuccess time.Time, force bool) bool {
	return rule.Evaluate(now, lastSuccess, force).Due
}

// IsDue is shorthand for Evaluate(...).Due.
func (r Rule) IsDue(now, lastSuccess time.Time, force bool) bool {
	return r.Evaluate(now, lastSuccess, force).Due
}

// Evaluate decides whether the source is due at now.
//
// Force always wins. A business-hours rule is never due while its window is
// closed; otherwise a source that never succeeded is due.
func (r Rule) Evaluate(now, lastSuccess time.Time, force bool) Decision {
	if force {
		return Decision{Due: true, Reason: "forced"}
	}

	switch r.kind {
	case KindFixedWeekly:
		return r.evaluateWeekly(now, lastSuccess)
	case KindBusinessHours:
		return r.evaluateWindow(now, lastSuccess)
	default:
		if lastSuccess.IsZero() {
			return Decision{Due: true, Reason: "no previous run"}
		}
		return Decision{Due: false, Reason: "no schedule"}
	}
}

func (r Rule) evaluateWeekly(now, last time.Time) Decision {
	if last.IsZero() {
		return Decision{Due: true, Reason: "no previous run"}
	}

	age := now.Sub(last)
	if r.weekly.MaxAge > 0 && age >= r.weekly.MaxAge {
		return Decision{Due: true, Reason: fmt.Sprintf("data is %s old (max %s)", humanDuration(age), humanDuration(r.weekly.MaxAge))}
	}

	if occ := r.MostRecent(now); occ.After(last) {
		return Decision{Due: true, Reason: fmt.Sprintf("scheduled publish %s passed", occ.Format("Mon 2006-01-02 15:04 MST"))}
	}

	return Decision{Due: false, Reason: fmt.Sprintf("fresh until %s", r.NextExpected(now).Format("Mon 2006-01-02 15:04 MST"))}
}

func (r Rule) evaluateWindow(now, last time.Time) Decision {
	if !r.InWindow(now) {
		return Decision{Due: false, Reason: "outside business hours"}
	}
	if last.IsZero() {
		return Decision{Due: true, Reason: "no previous run"}
	}

	age := now.Sub(last)
	if age >= r.window.MinInterval {
		return Decision{Due: true, Reason: fmt.Sprintf("data is %s old", humanDuration(age))}
	}
	return Decision{Due: false, Reason: fmt.Sprintf("data is fresh (%s old, interval %s)", humanDuration(age), humanDuration(r.window.MinInterval))}
}

// InWindow reports whether now falls inside a business-hours window.
// Always false for other kinds.
func (r Rule) InWindow(now time.Time) bool {
	if r.kind != KindBusinessHours {
		return false
	}
	local := now.In(r.Location())
	return dayInRange(local.Weekday(), r.window.FirstDay, r.window.LastDay) &&
		local.Hour() >= r.window.OpenHour && local.Hour() <= r.window.CloseHour
}

// dayInRange handles ranges that wrap past Saturday (e.g. Fri-Mon).
func dayInRange(d, first, last time.Weekday) bool {
	if first <= last {
		return d >= first && d <= last
	}
	return d >= first || d <= last
}

// MostRecent returns the latest publish moment at or before now for a
// fixed-weekly rule. It returns now for other kinds.
func (r Rule) MostRecent(now time.Time) time.Time {
	if r.kind != KindFixedWeekly {
		return now
	}
	local := now.In(r.Location())
	back := (int(local.Weekday()) - int(r.weekly.Day) + 7) % 7
	t := r.targetOn(local.AddDate(0, 0, -back))
	if t.After(local) {
		t = r.targetOn(local.AddDate(0, 0, -back-7))
	}
	return t
}

// NextExpected returns when the source is next expected to have new data.
// It is diagnostic only: the publish time after now for a fixed-weekly rule,
// or the next moment the window allows a refresh for a business-hours rule.
func (r Rule) NextExpected(now time.Time) time.Time {
	switch r.kind {
	case KindFixedWeekly:
		local := now.In(r.Location())
		ahead := (int(r.weekly.Day) - int(local.Weekday()) + 7) % 7
		t := r.targetOn(local.AddDate(0, 0, ahead))
		if !t.After(local) {
			t = r.targetOn(local.AddDate(0, 0, ahead+7))
		}
		return t
	case KindBusinessHours:
		return r.nextWindowMoment(now.Add(r.window.MinInterval))
	default:
		return now
	}
}

// nextWindowMoment returns t if it is inside the window, else the next opening.
func (r Rule) nextWindowMoment(t time.Time) time.Time {
	if r.InWindow(t) {
		return t
	}
	local := t.In(r.Location())
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		if !dayInRange(day.Weekday(), r.window.FirstDay, r.window.LastDay) {
			continue
		}
		open := time.Date(day.Year(), day.Month(), day.Day(), r.window.OpenHour, 0, 0, 0, r.Location())
		if open.After(local) {
			return open
		}
	}
	return t
}

func (r Rule) targetOn(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), r.weekly.Hour, r.weekly.Minute, 0, 0, r.Location())
}

// humanDuration renders d as days or hours in the register of the run logs.
func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%.0f days", d.Hours()/24)
	case d >= time.Hour:
		return fmt.Sprintf("%.1f hours", d.Hours())
	default:
		return d.Round(time.Second).String()
	}
}
