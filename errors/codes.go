package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Task execution errors
const (
	// ErrCodeResolution indicates the task executable could not be found. Never retried.
	ErrCodeResolution ErrorCode = "RESOLUTION_ERROR"
	// ErrCodeExecutionTimeout indicates an attempt exceeded its timeout.
	ErrCodeExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
	// ErrCodeExecutionFailure indicates an attempt exited non-zero or could not be started.
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	// ErrCodeInterrupted indicates the caller canceled the work.
	ErrCodeInterrupted ErrorCode = "INTERRUPTED"
)

// State errors
const (
	// ErrCodeStore indicates a freshness store read or write failed.
	ErrCodeStore ErrorCode = "STORE_ERROR"
)

// Configuration errors
const (
	// ErrCodeInvalidConfig indicates the orchestrator configuration is invalid.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeExecutionTimeout: true,
	ErrCodeExecutionFailure: true,
	ErrCodeResolution:       false,
	ErrCodeInterrupted:      false,
	ErrCodeStore:            false,
}

// IsRetryableCode returns true if the error code indicates a transient failure.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
