package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/feed"
	"github.com/serialscope/serialscope/internal/serialport"
)

// Recorder captures per-port traffic into Recording files. Receive events
// come from a feed subscription scoped to the port; send events are reported
// by whoever writes to the port via RecordSend.
type Recorder struct {
	dir  string
	feed *feed.Manager
	log  *logrus.Entry

	mu     sync.Mutex
	active map[string]*capture
}

// capture is one in-progress recording.
type capture struct {
	meta  Meta
	subID string
	done  chan struct{}

	mu     sync.Mutex
	events []Event
}

func (c *capture) append(ev Event) {
	if ev.Offset < 0 {
		ev.Offset = 0
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *capture) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// NewRecorder returns a Recorder that writes files under dir and sources
// receive events from feedMgr.
func NewRecorder(dir string, feedMgr *feed.Manager, logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recorder{
		dir:    dir,
		feed:   feedMgr,
		log:    logger.WithField("component", "record"),
		active: make(map[string]*capture),
	}
}

// Start begins capturing traffic for meta.Port. The recording stays in
// memory until Stop writes it out.
func (r *Recorder) Start(meta Meta) error {
	if meta.Port == "" {
		return domain.ErrEmptyPortName
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}

	r.mu.Lock()
	if _, ok := r.active[meta.Port]; ok {
		r.mu.Unlock()
		return fmt.Errorf("recording %s: %w", meta.Port, domain.ErrRecordingActive)
	}
	c := &capture{meta: meta, done: make(chan struct{})}
	r.active[meta.Port] = c
	r.mu.Unlock()

	subID, ch, err := r.feed.Subscribe(domain.LineFilter{Ports: []string{meta.Port}})
	if err != nil {
		r.mu.Lock()
		delete(r.active, meta.Port)
		r.mu.Unlock()
		return fmt.Errorf("subscribing to %s: %w", meta.Port, err)
	}
	c.subID = subID

	go func() {
		defer close(c.done)
		for ev := range ch {
			c.append(Event{
				Type:   EventReceive,
				Data:   ev.Line,
				At:     ev.Timestamp,
				Offset: ev.Timestamp.Sub(c.meta.StartedAt),
			})
		}
	}()

	r.log.WithField("port", meta.Port).Info("recording started")
	return nil
}

// RecordSend captures data written to port. A no-op when the port is not
// being recorded.
func (r *Recorder) RecordSend(port string, data []byte) {
	r.mu.Lock()
	c := r.active[port]
	r.mu.Unlock()
	if c == nil {
		return
	}
	now := time.Now()
	c.append(Event{
		Type:   EventSend,
		Data:   string(data),
		At:     now,
		Offset: now.Sub(c.meta.StartedAt),
	})
}

// Stop ends the capture for port and writes the recording to disk,
// returning the file path.
func (r *Recorder) Stop(port string) (string, error) {
	r.mu.Lock()
	c := r.active[port]
	if c == nil {
		r.mu.Unlock()
		return "", fmt.Errorf("recording %s: %w", port, domain.ErrRecordingNotActive)
	}
	delete(r.active, port)
	r.mu.Unlock()

	r.feed.Unsubscribe(c.subID)
	<-c.done

	rec := Recording{Meta: c.meta, Events: c.snapshot()}
	path, err := r.save(rec)
	if err != nil {
		return "", err
	}
	r.log.WithField("port", port).WithField("path", path).Info("recording saved")
	return path, nil
}

func (r *Recorder) save(rec Recording) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recording directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.json",
		serialport.SanitizeName(rec.Meta.Port),
		rec.Meta.StartedAt.Format(domain.FileStampLayout))
	path := filepath.Join(r.dir, name)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding recording: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing recording: %w", err)
	}
	return path, nil
}

// Active reports whether port is currently being recorded.
func (r *Recorder) Active(port string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[port]
	return ok
}

// ActivePorts returns the ports with recordings in progress, sorted.
func (r *Recorder) ActivePorts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ports := make([]string, 0, len(r.active))
	for port := range r.active {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	return ports
}

// StopAll finishes every in-progress recording. Failures are logged, not
// returned, so shutdown keeps going.
func (r *Recorder) StopAll() {
	for _, port := range r.ActivePorts() {
		if _, err := r.Stop(port); err != nil {
			r.log.WithField("port", port).WithError(err).Warn("error stopping recording")
		}
	}
}
