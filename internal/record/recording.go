// Package record captures session traffic to JSON files and replays the
// captured send events into a live port.
package record

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventType distinguishes traffic directions in a recording.
type EventType string

const (
	// EventSend is data written to the port.
	EventSend EventType = "send"
	// EventReceive is a matched line read from the port.
	EventReceive EventType = "receive"
)

// Meta describes the session a recording was captured from.
type Meta struct {
	Port          string    `json:"port"`
	BaudRate      int       `json:"baud_rate"`
	Keywords      []string  `json:"keywords,omitempty"`
	RegexPatterns []string  `json:"regex_patterns,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

// Event is one captured exchange. Offset is the time since the recording
// started; playback uses the gaps between send offsets.
type Event struct {
	Type   EventType     `json:"type"`
	Data   string        `json:"data"`
	At     time.Time     `json:"at"`
	Offset time.Duration `json:"offset_ns"`
}

// Recording is the persisted capture format.
type Recording struct {
	Meta   Meta    `json:"meta"`
	Events []Event `json:"events"`
}
