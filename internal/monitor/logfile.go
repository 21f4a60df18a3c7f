package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/serialport"
)

// logAppender writes session log entries with open-append-close semantics,
// so every acknowledged line is on disk even if the process dies mid-session.
// The path is fixed at session creation and never rotated.
type logAppender struct {
	mu   sync.Mutex
	path string
}

func newLogAppender(dir, port string, createdAt time.Time) *logAppender {
	name := fmt.Sprintf("%s_%s.log", serialport.SanitizeName(port), createdAt.Format(domain.FileStampLayout))
	return &logAppender{path: filepath.Join(dir, name)}
}

// Path returns the log file location.
func (a *logAppender) Path() string {
	return a.path
}

// Touch creates the log file (and its directory) without writing an entry.
func (a *logAppender) Touch() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	return f.Close()
}

// Append writes one entry and closes the file again.
func (a *logAppender) Append(entry string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(entry + "\n")
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}
