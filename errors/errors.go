package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// ResolutionError reports a task executable that cannot be resolved.
func ResolutionError(target string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeResolution, Message: fmt.Sprintf("executable %q cannot be resolved", target),
		Retryable: false, Details: map[string]any{"target": target}, Cause: cause,
	}
}

// ExecutionTimeout reports an attempt that did not finish within its timeout.
func ExecutionTimeout(task string, timeout time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeExecutionTimeout, Message: fmt.Sprintf("%s exceeded %s", task, timeout),
		Retryable: true, Details: map[string]any{"task": task, "timeout": timeout.String()},
	}
}

// ExecutionFailure reports an attempt that terminated with an error.
func ExecutionFailure(task string, exitCode int, detail string) *AppError {
	msg := fmt.Sprintf("%s exited with code %d", task, exitCode)
	if detail != "" {
		msg += ": " + detail
	}
	return &AppError{
		Code: ErrCodeExecutionFailure, Message: msg,
		Retryable: true, Details: map[string]any{"task": task, "exit_code": exitCode},
	}
}

// StoreError reports a freshness store failure. op is "read" or "write".
func StoreError(op, unit string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStore, Message: fmt.Sprintf("freshness %s failed for %s", op, unit),
		Retryable: false, Details: map[string]any{"op": op, "unit": unit}, Cause: cause,
	}
}

// InvalidConfig reports an invalid configuration value.
func InvalidConfig(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid config: %s", reason),
		Retryable: false, Details: details,
	}
}

// Interrupted reports work abandoned because the caller canceled it.
func Interrupted(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInterrupted, Message: "interrupted",
		Retryable: false, Cause: cause,
	}
}

// Internal creates a new AppError for an unexpected failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		Retryable: false, Cause: cause,
	}
}

// --- Inspection ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsRetryable reports whether err is an AppError marked retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}
