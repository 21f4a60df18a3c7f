package domain

import "errors"

// Domain errors
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrSessionRunning     = errors.New("session already running")
	ErrSessionNotRunning  = errors.New("session not running")
	ErrSessionStopped     = errors.New("session already stopped")
	ErrPortNotOpen        = errors.New("port not open")
	ErrInvalidPattern     = errors.New("invalid filter pattern")
	ErrInvalidBaudRate    = errors.New("invalid baud rate")
	ErrEmptyPortName      = errors.New("empty port name")
	ErrDumpActive         = errors.New("dump already active")
	ErrDumpNotActive      = errors.New("dump not active")
	ErrRecordingActive    = errors.New("recording already active")
	ErrRecordingNotActive = errors.New("recording not active")
	ErrFeedClosed         = errors.New("feed closed")
	ErrTooManySubscribers = errors.New("too many subscribers")
	ErrShutdownInProgress = errors.New("shutdown in progress")
	ErrConfigNotFound     = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Error codes for API responses
const (
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeSessionExists      = "SESSION_EXISTS"
	ErrCodeSessionRunning     = "SESSION_RUNNING"
	ErrCodeSessionNotRunning  = "SESSION_NOT_RUNNING"
	ErrCodeSessionStopped     = "SESSION_STOPPED"
	ErrCodePortNotOpen        = "PORT_NOT_OPEN"
	ErrCodeInvalidPattern     = "INVALID_PATTERN"
	ErrCodeInvalidBaudRate    = "INVALID_BAUD_RATE"
	ErrCodeEmptyPortName      = "EMPTY_PORT_NAME"
	ErrCodeDumpActive         = "DUMP_ACTIVE"
	ErrCodeDumpNotActive      = "DUMP_NOT_ACTIVE"
	ErrCodeRecordingActive    = "RECORDING_ACTIVE"
	ErrCodeRecordingNotActive = "RECORDING_NOT_ACTIVE"
	ErrCodeFeedClosed         = "FEED_CLOSED"
	ErrCodeTooManySubscribers = "TOO_MANY_SUBSCRIBERS"
	ErrCodeShutdownInProgress = "SHUTDOWN_IN_PROGRESS"

	// API-only error codes, used for HTTP response formatting without a
	// matching sentinel error
	ErrCodeStreamingNotSupported = "STREAMING_NOT_SUPPORTED"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
)

// ErrorCode returns the API error code for a domain error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return ErrCodeSessionNotFound
	case errors.Is(err, ErrSessionExists):
		return ErrCodeSessionExists
	case errors.Is(err, ErrSessionRunning):
		return ErrCodeSessionRunning
	case errors.Is(err, ErrSessionNotRunning):
		return ErrCodeSessionNotRunning
	case errors.Is(err, ErrSessionStopped):
		return ErrCodeSessionStopped
	case errors.Is(err, ErrPortNotOpen):
		return ErrCodePortNotOpen
	case errors.Is(err, ErrInvalidPattern):
		return ErrCodeInvalidPattern
	case errors.Is(err, ErrInvalidBaudRate):
		return ErrCodeInvalidBaudRate
	case errors.Is(err, ErrEmptyPortName):
		return ErrCodeEmptyPortName
	case errors.Is(err, ErrDumpActive):
		return ErrCodeDumpActive
	case errors.Is(err, ErrDumpNotActive):
		return ErrCodeDumpNotActive
	case errors.Is(err, ErrRecordingActive):
		return ErrCodeRecordingActive
	case errors.Is(err, ErrRecordingNotActive):
		return ErrCodeRecordingNotActive
	case errors.Is(err, ErrFeedClosed):
		return ErrCodeFeedClosed
	case errors.Is(err, ErrTooManySubscribers):
		return ErrCodeTooManySubscribers
	case errors.Is(err, ErrShutdownInProgress):
		return ErrCodeShutdownInProgress
	default:
		return "INTERNAL_ERROR"
	}
}
