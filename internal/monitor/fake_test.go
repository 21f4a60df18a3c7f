package monitor

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/serialport"
)

// fakePort is a scripted serial connection. Tests feed byte chunks through
// feed; Read drains them one chunk per call and otherwise behaves like a
// timed-out read, returning (0, nil).
type fakePort struct {
	mu       sync.Mutex
	data     chan []byte
	errs     chan error
	written  [][]byte
	writeErr error
	bauds    []int
	baudErr  error
	closed   bool
}

func newFakePort() *fakePort {
	return &fakePort{
		data: make(chan []byte, 64),
		errs: make(chan error, 1),
	}
}

func (p *fakePort) feed(chunk string) {
	p.data <- []byte(chunk)
}

func (p *fakePort) fail(err error) {
	p.errs <- err
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case err := <-p.errs:
		return 0, err
	case chunk := <-p.data:
		return copy(buf, chunk), nil
	default:
	}
	if p.isClosed() {
		return 0, os.ErrClosed
	}
	return 0, nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, append([]byte(nil), data...))
	return len(data), nil
}

func (p *fakePort) SetBaudRate(rate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.baudErr != nil {
		return p.baudErr
	}
	p.bauds = append(p.bauds, rate)
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePort) writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

func (p *fakePort) baudCalls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.bauds...)
}

type openCall struct {
	name string
	baud int
}

// fakeOpener hands out fakePorts by name and can be scripted to fail or to
// delay, which is how the parallel-startup tests measure concurrency.
type fakeOpener struct {
	mu        sync.Mutex
	ports     map[string]*fakePort
	failures  map[string]error
	opens     []openCall
	openDelay time.Duration
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		ports:    make(map[string]*fakePort),
		failures: make(map[string]error),
	}
}

func (o *fakeOpener) failWith(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[name] = err
}

func (o *fakeOpener) clearFailure(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.failures, name)
}

func (o *fakeOpener) Open(name string, baudRate int) (serialport.Port, error) {
	if o.openDelay > 0 {
		time.Sleep(o.openDelay)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.opens = append(o.opens, openCall{name: name, baud: baudRate})
	if err, ok := o.failures[name]; ok {
		return nil, err
	}

	p := newFakePort()
	o.ports[name] = p
	return p, nil
}

// port returns the most recently opened connection for name. Open must have
// succeeded first.
func (o *fakeOpener) port(name string) *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[name]
}

func (o *fakeOpener) openCalls() []openCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]openCall(nil), o.opens...)
}

type callbackEvent struct {
	port      string
	timestamp string
	line      string
	formatted string
	at        time.Time
}

// collector records callback invocations for assertion.
type collector struct {
	mu     sync.Mutex
	events []callbackEvent
}

func newCollector() *collector {
	return &collector{}
}

func (c *collector) callback(port, timestamp, line, formatted string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, callbackEvent{
		port:      port,
		timestamp: timestamp,
		line:      line,
		formatted: formatted,
		at:        time.Now(),
	})
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) all() []callbackEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]callbackEvent(nil), c.events...)
}

func (c *collector) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.line
	}
	return out
}

// waitFor blocks until the collector has seen at least n events or fails the
// test after timeout.
func (c *collector) waitFor(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d callback events within %v, got %d", n, timeout, c.count())
}

// recordingSink captures events appended to the live feed.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.LineEvent
}

func (s *recordingSink) Append(ev domain.LineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) all() []domain.LineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LineEvent(nil), s.events...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// waitUntil polls cond until it holds or fails the test after timeout.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
