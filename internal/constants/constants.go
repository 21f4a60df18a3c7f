// Package constants provides shared configuration values used across the serialscope application.
package constants

import "time"

// Configuration file defaults
const (
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "serialscope.yaml"

	// DefaultAPIHost is the default host for the API server
	DefaultAPIHost = "127.0.0.1"

	// DefaultAPIPort is the default port for the API server
	DefaultAPIPort = 5650

	// DefaultAPIAddress is the base URL client commands fall back to
	DefaultAPIAddress = "http://127.0.0.1:5650"
)

// Serial port defaults
const (
	// DefaultBaudRate is used when a port entry does not specify one
	DefaultBaudRate = 115200

	// ReadTimeout bounds each blocking read on the serial handle so the
	// read loop observes stop requests promptly
	ReadTimeout = 100 * time.Millisecond

	// IdleSleep is the pause after a read that returned no data
	IdleSleep = 10 * time.Millisecond

	// ReadBufferSize is the per-read scratch buffer for the read loop
	ReadBufferSize = 4096

	// DefaultDumpMarker flags a line as binary dump payload
	DefaultDumpMarker = "[dump]"
)

// Timeout and duration defaults
const (
	// DefaultRequestTimeout is the default timeout for API requests
	DefaultRequestTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second

	// StopJoinTimeout is how long Stop waits for a read loop to exit
	// before proceeding with a warning
	StopJoinTimeout = 2 * time.Second
)

// Line feed configuration
const (
	// DefaultLineLimit is the default number of buffered lines to return
	DefaultLineLimit = 100

	// MaxLineLimit is the maximum number of buffered lines that can be
	// requested to prevent memory exhaustion (DoS protection)
	MaxLineLimit = 10000
)

// Buffer sizes
const (
	// DefaultFeedBufferSize is the default size of the recent-line ring buffer
	DefaultFeedBufferSize = 2000

	// DefaultSubscriptionBuffer is the default size for subscription buffers
	DefaultSubscriptionBuffer = 100

	// MaxSubscribers caps concurrent feed subscriptions
	MaxSubscribers = 64

	// DispatchQueueSize is the per-session callback queue; the read loop
	// drops the newest event when the queue is full rather than block
	DispatchQueueSize = 256
)

// File locations
const (
	// DefaultLogDir holds per-session .log files
	DefaultLogDir = "logs"

	// DefaultDumpDir holds per-activation .bin dump files
	DefaultDumpDir = "dumps"

	// DefaultRecordingDir holds saved traffic recordings
	DefaultRecordingDir = "recordings"

	// DefaultHistoryFile stores the keyword-set history
	DefaultHistoryFile = "filter_history.json"
)
