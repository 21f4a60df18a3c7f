// Package history persists the keyword sets used for watch filters, most
// recent first, so callers can offer them for quick reuse.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxEntries caps the history length. Adding beyond it drops the oldest.
const MaxEntries = 100

const stampLayout = "2006-01-02 15:04:05"

// Entry is one remembered keyword set. Keywords keeps the user's original
// comma-separated form.
type Entry struct {
	Keywords  string `json:"keywords"`
	AddedTime string `json:"added_time"`
	LastUsed  string `json:"last_used"`
	UseCount  int    `json:"use_count"`
}

type fileDoc struct {
	History     []Entry `json:"history"`
	LastUpdated string  `json:"last_updated"`
}

// Store is a file-backed keyword history. Every mutation is written through
// to disk.
type Store struct {
	path string
	log  *logrus.Entry
	now  func() time.Time

	mu      sync.Mutex
	entries []Entry
}

// NewStore loads the history at path, starting empty when the file is
// missing or unreadable.
func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{
		path: path,
		log:  logger.WithField("component", "history"),
		now:  time.Now,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("could not read keyword history")
		}
		return
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.WithError(err).Warn("keyword history is corrupt, starting empty")
		return
	}
	if len(doc.History) > MaxEntries {
		doc.History = doc.History[:MaxEntries]
	}
	s.entries = doc.History
}

// Add records a keyword set. A set already present keeps its position and
// gets its use count and last-used time bumped; a new set goes to the front.
// Empty input is ignored.
func (s *Store) Add(keywords string) error {
	kw := strings.TrimSpace(keywords)
	if kw == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().Format(stampLayout)
	for i := range s.entries {
		if s.entries[i].Keywords == kw {
			s.entries[i].LastUsed = stamp
			s.entries[i].UseCount++
			return s.saveLocked()
		}
	}

	s.entries = append([]Entry{{
		Keywords:  kw,
		AddedTime: stamp,
		LastUsed:  stamp,
		UseCount:  1,
	}}, s.entries...)
	if len(s.entries) > MaxEntries {
		s.entries = s.entries[:MaxEntries]
	}
	return s.saveLocked()
}

// All returns the entries, most recent first.
func (s *Store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Search returns the entries whose keyword text contains keyword,
// case-insensitively. An empty query returns everything.
func (s *Store) Search(keyword string) []Entry {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return s.All()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.Keywords), needle) {
			out = append(out, e)
		}
	}
	return out
}

// DeleteIndices removes the entries at the given positions in the current
// ordering, ignoring out-of-range values, and returns how many were removed.
func (s *Store) DeleteIndices(indices []int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]struct{}, len(indices))
	targets := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.entries) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		targets = append(targets, idx)
	}
	if len(targets) == 0 {
		return 0, nil
	}

	sort.Sort(sort.Reverse(sort.IntSlice(targets)))
	for _, idx := range targets {
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	}
	return len(targets), s.saveLocked()
}

// Clear drops every entry and returns how many were removed.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := len(s.entries)
	s.entries = nil
	return count, s.saveLocked()
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) saveLocked() error {
	doc := fileDoc{History: s.entries, LastUpdated: s.now().Format(stampLayout)}
	if doc.History == nil {
		doc.History = []Entry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding keyword history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating history directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing keyword history: %w", err)
	}
	return nil
}
