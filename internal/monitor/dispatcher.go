package monitor

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
)

// dispatcher delivers matched lines to the session callback without blocking
// the read loop. Delivery is serialized and FIFO within a session; when the
// queue backs up the newest event is dropped and counted rather than stalling
// reads. The read loop is the only sender and closes the queue on exit.
type dispatcher struct {
	cb       domain.LineCallback
	throttle time.Duration
	log      *logrus.Entry

	ch      chan domain.LineEvent
	done    chan struct{}
	dropped atomic.Uint64
}

func newDispatcher(cb domain.LineCallback, throttle time.Duration, log *logrus.Entry) *dispatcher {
	d := &dispatcher{
		cb:       cb,
		throttle: throttle,
		log:      log,
		ch:       make(chan domain.LineEvent, constants.DispatchQueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		d.deliver(ev)
		if d.throttle > 0 {
			time.Sleep(d.throttle)
		}
	}
}

// deliver invokes the callback, recovering panics so a misbehaving handler
// cannot kill the session.
func (d *dispatcher) deliver(ev domain.LineEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("line callback panicked")
		}
	}()
	d.cb(ev.Port, ev.TimestampString(), ev.Line, ev.Formatted)
}

// dispatch enqueues an event for delivery. Only the read loop may call this.
func (d *dispatcher) dispatch(ev domain.LineEvent) {
	if d.cb == nil {
		return
	}
	select {
	case d.ch <- ev:
	default:
		if n := d.dropped.Add(1); n == 1 || n%1000 == 0 {
			d.log.WithField("dropped", n).Warn("callback queue full, dropping lines")
		}
	}
}

// closeQueue ends intake. Called by the read loop as it exits; queued events
// still flush to the callback.
func (d *dispatcher) closeQueue() {
	close(d.ch)
}

// wait blocks until all queued events have been delivered, bounded by the
// timeout. Returns false if delivery did not finish in time.
func (d *dispatcher) wait(timeout time.Duration) bool {
	select {
	case <-d.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *dispatcher) droppedCount() uint64 {
	return d.dropped.Load()
}
