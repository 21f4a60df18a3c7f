package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/serialport"
)

// dumpSink owns a session's binary dump file. Start, stop, and the read
// loop's writes can race, so all state sits behind one mutex. The byte
// counter accumulates across activations and is retained after the sink
// closes, until the session itself goes away.
type dumpSink struct {
	mu      sync.Mutex
	dir     string
	port    string
	marker  string
	file    *os.File
	path    string
	written uint64
}

func newDumpSink(dir, port, marker string) *dumpSink {
	return &dumpSink{dir: dir, port: port, marker: marker}
}

// Start opens a fresh sink file in append mode. Starting an active sink
// fails with ErrDumpActive.
func (d *dumpSink) Start(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file != nil {
		return domain.ErrDumpActive
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.bin", serialport.SanitizeName(d.port), now.Format(domain.FileStampLayout))
	path := filepath.Join(d.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening dump file: %w", err)
	}

	d.file = f
	d.path = path
	return nil
}

// Consume checks a line for the marker while the sink is active. On a hit
// the payload after the marker is appended to the sink and synced, and the
// line is reported as consumed so it skips logging, filtering, and callback
// delivery.
func (d *dumpSink) Consume(line string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return false, nil
	}
	idx := strings.Index(line, d.marker)
	if idx < 0 {
		return false, nil
	}

	payload := []byte(line[idx+len(d.marker):])
	if _, err := d.file.Write(payload); err != nil {
		return true, err
	}
	d.written += uint64(len(payload))
	return true, d.file.Sync()
}

// Stop flushes and closes the sink. Stopping an inactive sink fails with
// ErrDumpNotActive.
func (d *dumpSink) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return domain.ErrDumpNotActive
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Snapshot returns the active flag, total bytes written, and the most
// recent sink path.
func (d *dumpSink) Snapshot() (active bool, written uint64, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file != nil, d.written, d.path
}
