package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Meter log errors
	ErrSerialOpen  ErrorCode = "serial_open_failed"
	ErrOpenLog     ErrorCode = "open_log_failed"
	ErrWriteLog    ErrorCode = "write_log_failed"
	ErrParseLine   ErrorCode = "parse_line_failed"
	ErrLogNotReady ErrorCode = "log_not_ready"

	// Feed errors
	ErrTransport  ErrorCode = "transport_failed"
	ErrFeedStatus ErrorCode = "feed_status"
	ErrEncode     ErrorCode = "encode_payload_failed"

	// Application errors
	ErrMainLoop    ErrorCode = "main_loop_failed"
	ErrPollCycle   ErrorCode = "poll_cycle_failed"
	ErrTimeout     ErrorCode = "operation_timeout"
	ErrLiveData    ErrorCode = "live_data_failed"
	ErrInitHistory ErrorCode = "init_history_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrMissingConfig:   "Missing configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read config file",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrSerialOpen:      "Failed to open serial device",
	ErrOpenLog:         "Failed to open meter log",
	ErrWriteLog:        "Failed to write meter log",
	ErrParseLine:       "Malformed meter log line",
	ErrLogNotReady:     "Meter log for today does not exist yet",
	ErrTransport:       "Feed request failed",
	ErrFeedStatus:      "Feed returned an error status",
	ErrEncode:          "Failed to encode feed payload",
	ErrMainLoop:        "Error in main loop",
	ErrPollCycle:       "Poll cycle failed",
	ErrTimeout:         "Operation timed out",
	ErrLiveData:        "Failed to write live data file",
	ErrInitHistory:     "Failed to initialize history",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
