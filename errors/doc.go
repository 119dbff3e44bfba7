// Package errors provides the structured error type shared by every
// medallion component. Codes classify failures as permanent or transient so
// the task runner can decide whether another attempt is worthwhile.
package errors
