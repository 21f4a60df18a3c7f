package domain

import "time"

// TimestampLayout is the millisecond-precision format used for line
// timestamps, both in session logs and in callback delivery.
const TimestampLayout = "2006-01-02 15:04:05.000"

// FileStampLayout is the format used in log and dump file names.
const FileStampLayout = "20060102_150405"

// LineEvent represents a single matched line from a port session
type LineEvent struct {
	Port      string    `json:"port"`
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
	Formatted string    `json:"formatted,omitempty"`
}

// TimestampString returns the event timestamp in the callback format
func (e LineEvent) TimestampString() string {
	return e.Timestamp.Format(TimestampLayout)
}

// LineSink receives matched line events for aggregation. Implementations
// must not block; delivery happens on the session read loop.
type LineSink interface {
	Append(LineEvent)
}

// LineFilter defines criteria for querying buffered line events
type LineFilter struct {
	Ports   []string // Filter to specific port names
	Pattern string   // Filter by pattern match
	IsRegex bool     // If true, Pattern is a regex; otherwise substring match
}

// IsEmpty returns true if no filters are set
func (f LineFilter) IsEmpty() bool {
	return len(f.Ports) == 0 && f.Pattern == ""
}

// MatchesPort returns true if the port name matches the filter
func (f LineFilter) MatchesPort(name string) bool {
	if len(f.Ports) == 0 {
		return true
	}
	for _, p := range f.Ports {
		if p == name {
			return true
		}
	}
	return false
}

// FeedStats contains statistics about the line feed buffer
type FeedStats struct {
	TotalEvents int
	BufferSize  int
	Subscribers int
}
