package api

import (
	"github.com/serialscope/serialscope/internal/domain"
)

// StatusResponse represents the response for GET /status
type StatusResponse struct {
	Status        string `json:"status"`
	ActivePorts   int    `json:"active_ports"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ConfigFile    string `json:"config_file,omitempty"`
	APIVersion    string `json:"api_version"`
}

// PortListResponse represents the response for GET /ports
type PortListResponse struct {
	Ports []PortResponse `json:"ports"`
}

// PortResponse represents a single port session in responses
type PortResponse struct {
	Port             string `json:"port"`
	BaudRate         int    `json:"baud_rate"`
	State            string `json:"state"`
	TotalBytes       uint64 `json:"total_bytes"`
	Lines            uint64 `json:"lines"`
	MatchedLines     uint64 `json:"matched_lines"`
	DroppedCallbacks uint64 `json:"dropped_callbacks"`
	DumpActive       bool   `json:"dump_active"`
	DumpedBytes      uint64 `json:"dumped_bytes"`
	DumpFile         string `json:"dump_file,omitempty"`
	LogFile          string `json:"log_file,omitempty"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Recording        bool   `json:"recording"`
}

// AvailablePortsResponse represents the response for GET /ports/available
type AvailablePortsResponse struct {
	Ports []string `json:"ports"`
}

// BatchResult is the per-port outcome of a batch operation
type BatchResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// BatchResponse maps port names to their operation outcome
type BatchResponse struct {
	Results map[string]BatchResult `json:"results"`
}

// LinesResponse represents the response for GET /lines
type LinesResponse struct {
	Lines         []LineResponse `json:"lines"`
	FilteredCount int            `json:"filtered_count"`
	TotalCount    int            `json:"total_count"`
}

// LineResponse represents a single buffered line event
type LineResponse struct {
	Port      string `json:"port"`
	Timestamp string `json:"timestamp"`
	Line      string `json:"line"`
	Formatted string `json:"formatted"`
}

// FeedStatsResponse summarizes the line feed
type FeedStatsResponse struct {
	BufferedEvents int `json:"buffered_events"`
	BufferSize     int `json:"buffer_size"`
	Subscribers    int `json:"subscribers"`
}

// StatsResponse represents the response for GET /stats
type StatsResponse struct {
	Ports map[string]PortResponse `json:"ports"`
	Feed  FeedStatsResponse       `json:"feed"`
}

// RecordStopResponse carries the saved recording path
type RecordStopResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

// SuccessResponse represents a simple success response
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToPortResponse converts a stats snapshot to a PortResponse
func ToPortResponse(st domain.Stats, recording bool) PortResponse {
	return PortResponse{
		Port:             st.Port,
		BaudRate:         st.BaudRate,
		State:            st.State.String(),
		TotalBytes:       st.TotalBytes,
		Lines:            st.Lines,
		MatchedLines:     st.MatchedLines,
		DroppedCallbacks: st.DroppedCallbacks,
		DumpActive:       st.DumpActive,
		DumpedBytes:      st.DumpedBytes,
		DumpFile:         st.DumpFile,
		LogFile:          st.LogFile,
		UptimeSeconds:    st.UptimeSeconds(),
		Recording:        recording,
	}
}

// ToLineResponse converts a line event to a LineResponse
func ToLineResponse(ev domain.LineEvent) LineResponse {
	return LineResponse{
		Port:      ev.Port,
		Timestamp: ev.TimestampString(),
		Line:      ev.Line,
		Formatted: ev.Formatted,
	}
}

// ToFeedStatsResponse converts feed stats to a FeedStatsResponse
func ToFeedStatsResponse(fs domain.FeedStats) FeedStatsResponse {
	return FeedStatsResponse{
		BufferedEvents: fs.TotalEvents,
		BufferSize:     fs.BufferSize,
		Subscribers:    fs.Subscribers,
	}
}
