package monitor

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/serialport"
)

// RegistryConfig holds construction options for a Registry. Zero values
// fall back to defaults: the system serial driver, the standard logger, and
// the default dump directory.
type RegistryConfig struct {
	DumpDir string
	Opener  serialport.Opener
	Sink    domain.LineSink
	Logger  *logrus.Logger
}

// Registry owns the collection of active sessions, keyed by port name. At
// most one session exists per port, including while parallel adds race.
// Closing the registry stops everything it owns.
type Registry struct {
	mu sync.RWMutex

	logDir  string
	dumpDir string
	opener  serialport.Opener
	sink    domain.LineSink
	log     *logrus.Logger

	sessions map[string]*Session
	// pending reserves port names between the duplicate check and session
	// registration so concurrent adds of the same port get one winner
	pending map[string]struct{}
	closed  bool
}

// NewRegistry creates a registry whose sessions log under logDir.
func NewRegistry(logDir string, cfg RegistryConfig) *Registry {
	if cfg.DumpDir == "" {
		cfg.DumpDir = constants.DefaultDumpDir
	}
	if cfg.Opener == nil {
		cfg.Opener = serialport.NewSystemOpener(constants.ReadTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Registry{
		logDir:   logDir,
		dumpDir:  cfg.DumpDir,
		opener:   cfg.Opener,
		sink:     cfg.Sink,
		log:      cfg.Logger,
		sessions: make(map[string]*Session),
		pending:  make(map[string]struct{}),
	}
}

// Add constructs and starts a session for the config's port. It fails when
// the port is already monitored, the filter rules do not compile, or the
// device cannot be opened; no session is registered in any failure case.
func (r *Registry) Add(cfg domain.SessionConfig) error {
	if err := r.reserve(cfg.Port); err != nil {
		return err
	}

	sess, err := NewSession(cfg, r.logDir, r.dumpDir, r.opener, r.sink, r.log)
	if err != nil {
		r.release(cfg.Port)
		return err
	}

	if err := sess.Start(); err != nil {
		r.release(cfg.Port)
		r.log.WithField("port", cfg.Port).WithError(err).Error("failed to start session")
		return err
	}

	r.mu.Lock()
	delete(r.pending, cfg.Port)
	r.sessions[cfg.Port] = sess
	r.mu.Unlock()
	return nil
}

// AddManyParallel starts one session per config concurrently and blocks
// until every attempt has reported, so N device-open latencies cost one
// parallel wait instead of a sequential sum. Results are per-port; partial
// failure is expected and does not abort the rest.
func (r *Registry) AddManyParallel(configs []domain.SessionConfig) map[string]error {
	results := make(map[string]error, len(configs))

	var wg sync.WaitGroup
	var resultMu sync.Mutex

	for _, cfg := range configs {
		wg.Add(1)
		go func(cfg domain.SessionConfig) {
			defer wg.Done()
			err := r.Add(cfg)
			resultMu.Lock()
			results[cfg.Port] = err
			resultMu.Unlock()
		}(cfg)
	}
	wg.Wait()

	return results
}

// Remove stops the port's session and unregisters it.
func (r *Registry) Remove(port string) error {
	r.mu.Lock()
	sess, ok := r.sessions[port]
	if ok {
		delete(r.sessions, port)
	}
	r.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	return sess.Stop()
}

// StopAll stops every session concurrently and clears the registry. The
// registry stays usable afterwards; sessions already stopped or failed are
// tolerated.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			if err := sess.Stop(); err != nil {
				r.log.WithField("port", sess.Name()).WithError(err).Warn("error stopping session")
			}
		}(sess)
	}
	wg.Wait()
}

// Close stops all sessions and rejects further adds.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.StopAll()
}

// Send writes bytes to the named port's open connection.
func (r *Registry) Send(port string, data []byte) error {
	sess, err := r.session(port)
	if err != nil {
		return err
	}
	return sess.Send(data)
}

// UpdateFilters atomically replaces the named session's rule set. A nil
// slice keeps that rule kind; an empty non-nil slice clears it.
func (r *Registry) UpdateFilters(port string, keywords, regexPatterns []string) error {
	sess, err := r.session(port)
	if err != nil {
		return err
	}
	return sess.UpdateFilters(keywords, regexPatterns)
}

// ChangeBaudRate reconfigures the named session's live connection.
func (r *Registry) ChangeBaudRate(port string, rate int) error {
	sess, err := r.session(port)
	if err != nil {
		return err
	}
	return sess.ChangeBaudRate(rate)
}

// ChangeAllBaudRates applies ChangeBaudRate to every registered session.
// Results are per-port; one failure never aborts the others.
func (r *Registry) ChangeAllBaudRates(rate int) map[string]error {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(sessions))
	for _, sess := range sessions {
		results[sess.Name()] = sess.ChangeBaudRate(rate)
	}
	return results
}

// StartDump opens the binary dump sink on the named session.
func (r *Registry) StartDump(port string) error {
	sess, err := r.session(port)
	if err != nil {
		return err
	}
	return sess.StartDump()
}

// StopDump closes the binary dump sink on the named session.
func (r *Registry) StopDump(port string) error {
	sess, err := r.session(port)
	if err != nil {
		return err
	}
	return sess.StopDump()
}

// ActivePorts returns the monitored port names in sorted order.
func (r *Registry) ActivePorts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ports := make([]string, 0, len(r.sessions))
	for port := range r.sessions {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	return ports
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats returns the named session's counter snapshot.
func (r *Registry) Stats(port string) (domain.Stats, error) {
	sess, err := r.session(port)
	if err != nil {
		return domain.Stats{}, err
	}
	return sess.Stats(), nil
}

// Rules returns the named session's installed filter rules.
func (r *Registry) Rules(port string) (keywords, patterns []string, err error) {
	sess, err := r.session(port)
	if err != nil {
		return nil, nil, err
	}
	return sess.Keywords(), sess.Patterns(), nil
}

// AllStats aggregates counter snapshots across all sessions.
func (r *Registry) AllStats() map[string]domain.Stats {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	stats := make(map[string]domain.Stats, len(sessions))
	for _, sess := range sessions {
		stats[sess.Name()] = sess.Stats()
	}
	return stats
}

// ListAvailablePorts enumerates serial devices visible to the OS. This is
// a driver query, independent of what the registry monitors.
func ListAvailablePorts() ([]string, error) {
	return serialport.List()
}

func (r *Registry) session(port string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[port]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (r *Registry) reserve(port string) error {
	if port == "" {
		return domain.ErrEmptyPortName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrShutdownInProgress
	}
	if _, ok := r.sessions[port]; ok {
		return domain.ErrSessionExists
	}
	if _, ok := r.pending[port]; ok {
		return domain.ErrSessionExists
	}
	r.pending[port] = struct{}{}
	return nil
}

func (r *Registry) release(port string) {
	r.mu.Lock()
	delete(r.pending, port)
	r.mu.Unlock()
}
