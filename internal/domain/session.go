package domain

import "time"

// SessionState represents the lifecycle state of a port session.
// Sessions move forward only: a stopped session is never restarted,
// a new one is created in its place.
type SessionState string

const (
	// SessionStateCreated indicates the session exists but has not opened its port
	SessionStateCreated SessionState = "created"
	// SessionStateRunning indicates the port is open and the read loop is active
	SessionStateRunning SessionState = "running"
	// SessionStateStopping indicates the session is shutting down
	SessionStateStopping SessionState = "stopping"
	// SessionStateStopped indicates the session has released its port (terminal)
	SessionStateStopped SessionState = "stopped"
)

// String returns the string representation of SessionState
func (s SessionState) String() string {
	return string(s)
}

// IsRunning returns true if the session is in a running state
func (s SessionState) IsRunning() bool {
	return s == SessionStateRunning
}

// IsStopped returns true if the session has reached its terminal state
func (s SessionState) IsStopped() bool {
	return s == SessionStateStopped
}

// LineCallback is invoked once per matched line. The timestamp is
// pre-formatted with millisecond precision. formattedLine carries the
// full log rendering, colored when the session has color output enabled.
type LineCallback func(port, timestamp, line, formattedLine string)

// DumpConfig configures binary dump extraction for a session
type DumpConfig struct {
	// Marker is the in-band substring that flags a line as dump payload
	Marker string
	// AutoStart opens the dump sink as soon as the session starts
	AutoStart bool
}

// SessionOptions holds per-session behavior toggles
type SessionOptions struct {
	// SaveAllToLog writes every framed line to the session log, not just
	// filter matches
	SaveAllToLog bool
	// ColorOutput enables ANSI color rendering of formattedLine
	ColorOutput bool
	// CaseInsensitive applies one case policy to all keywords and regex
	// patterns of the session
	CaseInsensitive bool
	// CallbackThrottle paces callback delivery; zero means no pacing
	CallbackThrottle time.Duration
	// Dump configures binary payload extraction
	Dump DumpConfig
}

// SessionConfig defines the configuration for a single port session
type SessionConfig struct {
	Port          string
	BaudRate      int
	Keywords      []string
	RegexPatterns []string
	Callback      LineCallback
	Options       SessionOptions
}

// Stats is a point-in-time snapshot of one session's counters.
// TotalBytes counts every byte read from the OS handle, including dump
// payloads and malformed text, and is monotonic for the session's life.
type Stats struct {
	Port             string       `json:"port"`
	BaudRate         int          `json:"baud_rate"`
	State            SessionState `json:"state"`
	TotalBytes       uint64       `json:"total_bytes"`
	Lines            uint64       `json:"lines"`
	MatchedLines     uint64       `json:"matched_lines"`
	DroppedCallbacks uint64       `json:"dropped_callbacks"`
	DumpActive       bool         `json:"dump_active"`
	DumpedBytes      uint64       `json:"dumped_bytes"`
	DumpFile         string       `json:"dump_file,omitempty"`
	LogFile          string       `json:"log_file,omitempty"`
	StartedAt        time.Time    `json:"started_at,omitempty"`
}

// UptimeSeconds returns the number of seconds the session has been running
func (s Stats) UptimeSeconds() int64 {
	if s.StartedAt.IsZero() {
		return 0
	}
	return int64(time.Since(s.StartedAt).Seconds())
}
