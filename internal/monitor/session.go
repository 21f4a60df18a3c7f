// Package monitor implements the serial monitoring engine: per-port sessions
// with dedicated read loops, and the registry that manages them.
package monitor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/ansi"
	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/filter"
	"github.com/serialscope/serialscope/internal/framing"
	"github.com/serialscope/serialscope/internal/serialport"
)

// Session owns one serial connection: its read loop, line framer, filter
// rules, log file, dump sink, statistics, and callback dispatch. The
// connection handle is never shared; everything reaches the device through
// the session.
type Session struct {
	mu sync.RWMutex

	cfg    domain.SessionConfig
	opener serialport.Opener
	sink   domain.LineSink
	log    *logrus.Entry

	state     domain.SessionState
	port      serialport.Port
	baud      int
	startedAt time.Time

	// engine holds the compiled rule set; live filter updates swap the
	// whole pointer so no line is evaluated against a mixed set
	engine   atomic.Pointer[filter.Engine]
	updateMu sync.Mutex

	appender *logAppender
	dump     *dumpSink
	disp     *dispatcher

	totalBytes atomic.Uint64
	lines      atomic.Uint64
	matched    atomic.Uint64

	running      atomic.Bool
	done         chan struct{}
	doneOnce     sync.Once
	finalizeOnce sync.Once
}

// NewSession builds a session in the created state. Filter rules compile
// here, so configuration errors surface before any port is opened.
func NewSession(cfg domain.SessionConfig, logDir, dumpDir string, opener serialport.Opener, sink domain.LineSink, logger *logrus.Logger) (*Session, error) {
	if cfg.Port == "" {
		return nil, domain.ErrEmptyPortName
	}
	if cfg.BaudRate < 0 {
		return nil, domain.ErrInvalidBaudRate
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = constants.DefaultBaudRate
	}
	if cfg.Options.Dump.Marker == "" {
		cfg.Options.Dump.Marker = constants.DefaultDumpMarker
	}
	if opener == nil {
		opener = serialport.NewSystemOpener(constants.ReadTimeout)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	eng, err := filter.New(cfg.Keywords, cfg.RegexPatterns, cfg.Options.CaseInsensitive)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		opener:   opener,
		sink:     sink,
		log:      logger.WithField("port", cfg.Port),
		state:    domain.SessionStateCreated,
		baud:     cfg.BaudRate,
		appender: newLogAppender(logDir, cfg.Port, time.Now()),
		dump:     newDumpSink(dumpDir, cfg.Port, cfg.Options.Dump.Marker),
		done:     make(chan struct{}),
	}
	s.engine.Store(eng)
	return s, nil
}

// Name returns the port name the session monitors.
func (s *Session) Name() string {
	return s.cfg.Port
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LogPath returns the session's log file location.
func (s *Session) LogPath() string {
	return s.appender.Path()
}

// Keywords returns the currently installed keyword rules.
func (s *Session) Keywords() []string {
	return s.engine.Load().Keywords()
}

// Patterns returns the currently installed regex rules.
func (s *Session) Patterns() []string {
	return s.engine.Load().Patterns()
}

// Start opens the port and launches the read loop. On failure the session
// stays in the created state with no resources held. A stopped session is
// never restarted; build a new one instead.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.SessionStateRunning:
		return domain.ErrSessionRunning
	case domain.SessionStateStopping, domain.SessionStateStopped:
		return domain.ErrSessionStopped
	}

	port, err := s.opener.Open(s.cfg.Port, s.baud)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.cfg.Port, err)
	}

	if err := s.appender.Touch(); err != nil {
		port.Close()
		return err
	}

	if s.cfg.Options.Dump.AutoStart {
		if err := s.dump.Start(time.Now()); err != nil {
			port.Close()
			return err
		}
	}

	s.port = port
	s.startedAt = time.Now()
	s.state = domain.SessionStateRunning
	s.disp = newDispatcher(s.cfg.Callback, s.cfg.Options.CallbackThrottle, s.log)
	s.running.Store(true)

	go s.readLoop()

	s.log.WithField("baud", s.baud).Info("session started")
	return nil
}

// readLoop pulls bytes from the port until the session stops or the
// connection fails fatally. It is the dispatcher's only producer and closes
// the queue on the way out.
func (s *Session) readLoop() {
	defer s.closeDone()
	defer s.disp.closeQueue()

	var framer framing.Framer
	buf := make([]byte, constants.ReadBufferSize)

	for s.running.Load() {
		n, err := s.port.Read(buf)
		if err != nil {
			if serialport.IsFatal(err) {
				if s.running.Load() {
					s.log.WithError(err).Error("connection lost")
				}
				break
			}
			s.log.WithError(err).Warn("read error")
			time.Sleep(constants.IdleSleep)
			continue
		}
		if n == 0 {
			time.Sleep(constants.IdleSleep)
			continue
		}

		s.totalBytes.Add(uint64(n))
		for _, line := range framer.Push(buf[:n]) {
			s.handleLine(line, time.Now())
		}
	}

	// Fatal exit without a Stop call: release resources here.
	if s.running.CompareAndSwap(true, false) {
		s.finalize()
	}
}

// handleLine routes one framed line: dump extraction first, then logging
// with exactly-once semantics, then filter evaluation and delivery.
func (s *Session) handleLine(line string, now time.Time) {
	s.lines.Add(1)

	consumed, err := s.dump.Consume(line)
	if err != nil {
		s.log.WithError(err).Warn("dump write failed")
	}
	if consumed {
		return
	}

	ts := now.Format(domain.TimestampLayout)
	entry := ansi.FormatLine(s.cfg.Port, ts, line, false)

	if s.cfg.Options.SaveAllToLog {
		if err := s.appender.Append(entry); err != nil {
			s.log.WithError(err).Warn("log write failed")
		}
	}

	if !s.engine.Load().Matches(line) {
		return
	}
	s.matched.Add(1)

	if !s.cfg.Options.SaveAllToLog {
		if err := s.appender.Append(entry); err != nil {
			s.log.WithError(err).Warn("log write failed")
		}
	}

	ev := domain.LineEvent{
		Port:      s.cfg.Port,
		Timestamp: now,
		Line:      line,
		Formatted: ansi.FormatLine(s.cfg.Port, ts, line, s.cfg.Options.ColorOutput),
	}
	if s.sink != nil {
		s.sink.Append(ev)
	}
	s.disp.dispatch(ev)
}

// Stop halts the read loop, flushes pending callbacks, and releases the
// port and any open dump sink. Safe to call from any goroutine and more
// than once. The wait for the read loop is bounded; on timeout Stop logs a
// warning and proceeds rather than hanging the caller.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case domain.SessionStateCreated:
		s.state = domain.SessionStateStopped
		s.mu.Unlock()
		return nil
	case domain.SessionStateStopped:
		s.mu.Unlock()
		return nil
	}
	s.state = domain.SessionStateStopping
	s.mu.Unlock()

	s.running.Store(false)

	select {
	case <-s.done:
		if !s.disp.wait(constants.StopJoinTimeout) {
			s.log.Warn("callback flush timed out")
		}
	case <-time.After(constants.StopJoinTimeout):
		s.log.Warn("read loop did not exit in time")
	}

	s.finalize()
	return nil
}

// finalize releases the dump sink and port exactly once and marks the
// session stopped.
func (s *Session) finalize() {
	s.finalizeOnce.Do(func() {
		if active, _, _ := s.dump.Snapshot(); active {
			if err := s.dump.Stop(); err != nil {
				s.log.WithError(err).Warn("closing dump sink")
			}
		}

		s.mu.Lock()
		if s.port != nil {
			if err := s.port.Close(); err != nil {
				s.log.WithError(err).Debug("closing port")
			}
		}
		s.state = domain.SessionStateStopped
		s.mu.Unlock()

		s.log.Info("session stopped")
	})
}

// Send writes bytes directly to the open connection. Nothing is buffered;
// an error means the OS write did not succeed.
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != domain.SessionStateRunning || s.port == nil {
		return domain.ErrPortNotOpen
	}
	if _, err := s.port.Write(data); err != nil {
		return fmt.Errorf("writing to %s: %w", s.cfg.Port, err)
	}
	return nil
}

// UpdateFilters replaces the installed rule set while the read loop keeps
// running. A nil slice keeps that rule kind unchanged; an empty non-nil
// slice clears it. The new set compiles before installation, so an invalid
// pattern leaves the previous rules in effect.
func (s *Session) UpdateFilters(keywords, regexPatterns []string) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cur := s.engine.Load()
	if keywords == nil {
		keywords = cur.Keywords()
	}
	if regexPatterns == nil {
		regexPatterns = cur.Patterns()
	}

	eng, err := filter.New(keywords, regexPatterns, s.cfg.Options.CaseInsensitive)
	if err != nil {
		return err
	}
	s.engine.Store(eng)

	s.log.WithFields(logrus.Fields{
		"keywords": len(keywords),
		"patterns": len(regexPatterns),
	}).Info("filters updated")
	return nil
}

// ChangeBaudRate reconfigures the live connection without reopening it.
// The running state and counters are unaffected.
func (s *Session) ChangeBaudRate(rate int) error {
	if rate <= 0 {
		return domain.ErrInvalidBaudRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SessionStateRunning || s.port == nil {
		return domain.ErrPortNotOpen
	}
	if err := s.port.SetBaudRate(rate); err != nil {
		return fmt.Errorf("changing baud rate on %s: %w", s.cfg.Port, err)
	}
	s.baud = rate

	ts := time.Now().Format(domain.TimestampLayout)
	entry := ansi.FormatLine(s.cfg.Port, ts, fmt.Sprintf("Baud rate changed to %d", rate), false)
	if err := s.appender.Append(entry); err != nil {
		s.log.WithError(err).Warn("log write failed")
	}

	s.log.WithField("baud", rate).Info("baud rate changed")
	return nil
}

// StartDump opens the binary dump sink for a running session. Starting an
// already-active dump fails with ErrDumpActive.
func (s *Session) StartDump() error {
	s.mu.RLock()
	running := s.state == domain.SessionStateRunning
	s.mu.RUnlock()

	if !running {
		return domain.ErrSessionNotRunning
	}
	if err := s.dump.Start(time.Now()); err != nil {
		return err
	}

	_, _, path := s.dump.Snapshot()
	s.log.WithField("file", path).Info("dump started")
	return nil
}

// StopDump flushes and closes the dump sink. The dumped-bytes counter is
// retained for reporting. Stopping an inactive dump fails with
// ErrDumpNotActive.
func (s *Session) StopDump() error {
	if err := s.dump.Stop(); err != nil {
		return err
	}
	s.log.Info("dump stopped")
	return nil
}

// Stats returns a point-in-time snapshot of the session counters. Safe to
// call concurrently with the read loop.
func (s *Session) Stats() domain.Stats {
	s.mu.RLock()
	state := s.state
	baud := s.baud
	startedAt := s.startedAt
	disp := s.disp
	s.mu.RUnlock()

	dumpActive, dumpedBytes, dumpPath := s.dump.Snapshot()

	st := domain.Stats{
		Port:         s.cfg.Port,
		BaudRate:     baud,
		State:        state,
		TotalBytes:   s.totalBytes.Load(),
		Lines:        s.lines.Load(),
		MatchedLines: s.matched.Load(),
		DumpActive:   dumpActive,
		DumpedBytes:  dumpedBytes,
		DumpFile:     dumpPath,
		LogFile:      s.appender.Path(),
		StartedAt:    startedAt,
	}
	if disp != nil {
		st.DroppedCallbacks = disp.droppedCount()
	}
	return st
}

// closeDone marks read-loop exit exactly once.
func (s *Session) closeDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
