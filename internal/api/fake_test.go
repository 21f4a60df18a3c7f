package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/serialscope/serialscope/internal/feed"
	"github.com/serialscope/serialscope/internal/monitor"
	"github.com/serialscope/serialscope/internal/record"
	"github.com/serialscope/serialscope/internal/serialport"
)

// stubPort is a scripted serial connection for handler tests. Read drains
// fed chunks one per call and otherwise behaves like a timed-out read.
type stubPort struct {
	mu      sync.Mutex
	data    chan []byte
	written [][]byte
	bauds   []int
	closed  bool
}

func newStubPort() *stubPort {
	return &stubPort{data: make(chan []byte, 16)}
}

func (p *stubPort) feed(chunk string) {
	p.data <- []byte(chunk)
}

func (p *stubPort) Read(buf []byte) (int, error) {
	select {
	case chunk := <-p.data:
		return copy(buf, chunk), nil
	default:
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}
	return 0, nil
}

func (p *stubPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, append([]byte(nil), data...))
	return len(data), nil
}

func (p *stubPort) SetBaudRate(rate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bauds = append(p.bauds, rate)
	return nil
}

func (p *stubPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *stubPort) writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

func (p *stubPort) baudCalls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.bauds...)
}

// stubOpener hands out stubPorts by name and can be scripted to fail
type stubOpener struct {
	mu       sync.Mutex
	ports    map[string]*stubPort
	failures map[string]error
}

func newStubOpener() *stubOpener {
	return &stubOpener{
		ports:    make(map[string]*stubPort),
		failures: make(map[string]error),
	}
}

func (o *stubOpener) failWith(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[name] = err
}

func (o *stubOpener) Open(name string, baudRate int) (serialport.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err, ok := o.failures[name]; ok {
		return nil, err
	}

	p := newStubPort()
	o.ports[name] = p
	return p, nil
}

func (o *stubOpener) port(name string) *stubPort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[name]
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// testEnv wires a full server around a registry with stubbed serial devices
type testEnv struct {
	server   *Server
	handlers *Handlers
	registry *monitor.Registry
	feed     *feed.Manager
	recorder *record.Recorder
	opener   *stubOpener
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := quietLogger()

	feedMgr := feed.NewManager(feed.ManagerConfig{BufferSize: 100, Logger: logger})
	opener := newStubOpener()
	registry := monitor.NewRegistry(t.TempDir(), monitor.RegistryConfig{
		DumpDir: t.TempDir(),
		Opener:  opener,
		Sink:    feedMgr,
		Logger:  logger,
	})
	recorder := record.NewRecorder(t.TempDir(), feedMgr, logger)

	handlers := NewHandlers(registry, feedMgr, recorder, "serialscope.yaml", nil, logger)
	server := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, handlers, nil)

	t.Cleanup(func() {
		recorder.StopAll()
		registry.Close()
		feedMgr.Close()
	})

	return &testEnv{
		server:   server,
		handlers: handlers,
		registry: registry,
		feed:     feedMgr,
		recorder: recorder,
		opener:   opener,
	}
}

// do routes a request through the full middleware stack
func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	e.server.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}
