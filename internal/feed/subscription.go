package feed

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
)

var subscriptionIDCounter atomic.Uint64

// Subscription is one live consumer of the feed. Events are filtered before
// delivery; a consumer that stops draining its channel loses events instead
// of stalling the sessions.
type Subscription struct {
	id     string
	ch     chan domain.LineEvent
	filter *Filter
	log    *logrus.Entry
	closed atomic.Bool
}

func newSubscription(f domain.LineFilter, bufferSize int, log *logrus.Entry) (*Subscription, error) {
	compiled, err := NewFilter(f)
	if err != nil {
		return nil, err
	}

	id := "sub-" + strconv.FormatUint(subscriptionIDCounter.Add(1), 10)

	return &Subscription{
		id:     id,
		ch:     make(chan domain.LineEvent, bufferSize),
		filter: compiled,
		log:    log.WithField("subscription", id),
	}, nil
}

// ID returns the subscription identifier
func (s *Subscription) ID() string {
	return s.id
}

// Channel returns the channel events are delivered on
func (s *Subscription) Channel() <-chan domain.LineEvent {
	return s.ch
}

// Send offers an event to the subscriber. It returns false when the event
// was lost: the channel was full or the subscription closed. Events the
// filter rejects are not failures.
func (s *Subscription) Send(ev domain.LineEvent) bool {
	if s.closed.Load() {
		return false
	}

	if !s.filter.Matches(ev) {
		return true
	}

	select {
	case s.ch <- ev:
		return true
	default:
		s.log.WithField("port", ev.Port).Warn("subscriber channel full, dropping event")
		return false
	}
}

// Close closes the subscription channel exactly once
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// SubscriptionManager tracks the feed's live subscribers
type SubscriptionManager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	bufferSize    int
	log           *logrus.Entry
	closed        bool
}

// NewSubscriptionManager creates an empty subscriber registry
func NewSubscriptionManager(bufferSize int, log *logrus.Entry) *SubscriptionManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &SubscriptionManager{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    bufferSize,
		log:           log,
	}
}

// Subscribe registers a new filtered subscriber. It fails once the manager
// has closed or the subscriber cap is reached.
func (m *SubscriptionManager) Subscribe(f domain.LineFilter) (string, <-chan domain.LineEvent, error) {
	sub, err := newSubscription(f, m.bufferSize, m.log)
	if err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", nil, domain.ErrFeedClosed
	}
	if len(m.subscriptions) >= constants.MaxSubscribers {
		return "", nil, domain.ErrTooManySubscribers
	}
	m.subscriptions[sub.id] = sub

	return sub.id, sub.ch, nil
}

// Unsubscribe removes and closes a subscription
func (m *SubscriptionManager) Unsubscribe(id string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[id]
	if ok {
		delete(m.subscriptions, id)
	}
	m.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Broadcast offers an event to every subscriber
func (m *SubscriptionManager) Broadcast(ev domain.LineEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		sub.Send(ev)
	}
}

// Count returns the number of active subscriptions
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes every subscription and rejects further subscribes
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.subscriptions = make(map[string]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
