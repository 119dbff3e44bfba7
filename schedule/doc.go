// Package schedule decides whether a source is inside an eligible update
// window.
//
// A Rule is an immutable cadence policy evaluated in one explicit reference
// time zone. Two cadences exist:
//
//   - FixedWeekly: the source publishes once a week at a fixed wall-clock time
//     and is also refreshed when its data exceeds a maximum age.
//   - BusinessHours: the source updates continuously while a weekday/hour
//     window is open, no more often than a minimum interval.
//
// Rules perform no I/O and hold no state; the same inputs always produce the
// same Decision.
package schedule
