package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Sampling errors
	ErrInvalidPeriod   ErrorCode = "invalid_period"
	ErrInvalidCapacity ErrorCode = "invalid_capacity"
	ErrInvalidUnit     ErrorCode = "invalid_unit"
	ErrInvalidSource   ErrorCode = "invalid_source"
	ErrNilSource       ErrorCode = "nil_source"
	ErrSourceFailed    ErrorCode = "source_failed"
	ErrListenerFailed  ErrorCode = "listener_failed"
	ErrListenerPanic   ErrorCode = "listener_panicked"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read config file",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrInvalidPeriod:   "Sampling period must be positive",
	ErrInvalidCapacity: "Buffer capacity must be positive",
	ErrInvalidUnit:     "Unknown measurement unit",
	ErrInvalidSource:   "Unknown value source",
	ErrNilSource:       "Value source is required",
	ErrSourceFailed:    "Value source failed",
	ErrListenerFailed:  "Listener failed",
	ErrListenerPanic:   "Listener panicked",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
