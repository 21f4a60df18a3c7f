package feed

import (
	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
)

// ManagerConfig holds configuration for the feed manager
type ManagerConfig struct {
	BufferSize         int // number of events kept in the ring buffer
	SubscriptionBuffer int // channel buffer per subscriber
	Logger             *logrus.Logger
}

// DefaultManagerConfig returns the default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BufferSize:         constants.DefaultFeedBufferSize,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
	}
}

// Manager owns the event buffer and the live subscribers. It implements
// domain.LineSink, so sessions append to it directly.
type Manager struct {
	buffer        *RingBuffer
	subscriptions *SubscriptionManager
}

// NewManager creates a feed manager
func NewManager(config ManagerConfig) *Manager {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultManagerConfig().BufferSize
	}
	if config.SubscriptionBuffer <= 0 {
		config.SubscriptionBuffer = DefaultManagerConfig().SubscriptionBuffer
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Manager{
		buffer:        NewRingBuffer(config.BufferSize),
		subscriptions: NewSubscriptionManager(config.SubscriptionBuffer, config.Logger.WithField("component", "feed")),
	}
}

// Append buffers an event and broadcasts it to subscribers. It never
// blocks, so it is safe to call from session read loops.
func (m *Manager) Append(ev domain.LineEvent) {
	m.buffer.Append(ev)
	m.subscriptions.Broadcast(ev)
}

// Query retrieves buffered events matching the filter, newest-limited.
// It returns the events and the total match count before limiting.
func (m *Manager) Query(f domain.LineFilter, limit int) ([]domain.LineEvent, int, error) {
	return FilterEventsLimit(m.buffer.Events(), f, limit)
}

// QueryLast retrieves the newest n events matching the filter
func (m *Manager) QueryLast(f domain.LineFilter, n int) ([]domain.LineEvent, int, error) {
	filtered, err := FilterEvents(m.buffer.Events(), f)
	if err != nil {
		return nil, 0, err
	}

	total := len(filtered)
	if n > 0 && len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}

	return filtered, total, nil
}

// Subscribe creates a live subscription for events matching the filter
func (m *Manager) Subscribe(f domain.LineFilter) (string, <-chan domain.LineEvent, error) {
	return m.subscriptions.Subscribe(f)
}

// Unsubscribe removes a subscription
func (m *Manager) Unsubscribe(id string) {
	m.subscriptions.Unsubscribe(id)
}

// Stats returns buffer and subscriber statistics
func (m *Manager) Stats() domain.FeedStats {
	return domain.FeedStats{
		TotalEvents: m.buffer.Count(),
		BufferSize:  m.buffer.Capacity(),
		Subscribers: m.subscriptions.Count(),
	}
}

// Close closes all subscriptions
func (m *Manager) Close() {
	m.subscriptions.Close()
}
