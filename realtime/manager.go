package realtime

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultIdleTimeout = 5 * time.Minute
	DefaultMaxSessions = 100

	minReapInterval = 10 * time.Millisecond
)

// ManagerOption tunes a Manager at construction.
type ManagerOption func(m *Manager)

// WithIdleTimeout closes sessions that had no client interaction and no
// attached events consumer for d.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithMaxSessions caps the number of open sessions.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// Manager keeps live sessions keyed by session id.
type Manager struct {
	notifier    Notifier
	fetch       FetchFunc
	interval    time.Duration
	historySize int
	idleTimeout time.Duration
	maxSessions int
	logger      *logrus.Logger

	// mu serializes Open so the session cap holds under concurrent creates.
	mu       sync.Mutex
	sessions sync.Map

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

func NewManager(notifier Notifier, fetch FetchFunc, interval time.Duration, historySize int, logger *logrus.Logger, opts ...ManagerOption) *Manager {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	m := &Manager{
		notifier:    notifier,
		fetch:       fetch,
		interval:    interval,
		historySize: historySize,
		idleTimeout: DefaultIdleTimeout,
		maxSessions: DefaultMaxSessions,
		logger:      logger,
		shutdown:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.wg.Add(1)
	go m.reapLoop()
	return m
}

// Open creates a session in ModeOff, replacing and stopping any previous
// session with the same id. ErrTooManySessions is returned at the cap.
func (m *Manager) Open(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.shutdown:
		return nil, ErrSessionNotFound
	default:
	}
	if v, ok := m.sessions.LoadAndDelete(id); ok {
		v.(*Session).close()
	}
	if m.Len() >= m.maxSessions {
		return nil, ErrTooManySessions
	}
	session := &Session{
		ID:       id,
		mode:     ModeOff,
		history:  NewHistory(m.historySize),
		events:   make(chan Event, eventBuffer),
		notifier: m.notifier,
		fetch:    m.fetch,
		interval: m.interval,
		logger:   m.logger,
	}
	session.Touch()
	m.sessions.Store(id, session)
	m.logger.WithField("session", id).Info("Success to open the session")
	return session, nil
}

// Get returns the session and marks it as used.
func (m *Manager) Get(id string) (*Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	session := v.(*Session)
	session.Touch()
	return session, true
}

func (m *Manager) Close(id string) error {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return ErrSessionNotFound
	}
	v.(*Session).close()
	m.logger.WithField("session", id).Info("Success to close the session")
	return nil
}

func (m *Manager) Len() int {
	n := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()
	every := m.idleTimeout / 4
	if every < minReapInterval {
		every = minReapInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reap(time.Now().Add(-m.idleTimeout))
		case <-m.shutdown:
			return
		}
	}
}

// reap closes every session idle since deadline.
func (m *Manager) reap(deadline time.Time) {
	m.sessions.Range(func(key, value interface{}) bool {
		session := value.(*Session)
		if !session.idleSince(deadline) {
			return true
		}
		// a concurrent Open may have replaced the entry
		if !m.sessions.CompareAndDelete(key, session) {
			return true
		}
		session.close()
		m.logger.WithFields(logrus.Fields{
			"session": key,
			"idle":    m.idleTimeout.String(),
		}).Info("Close the idle session")
		return true
	})
}

// Shutdown stops the reaper and every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdownOnce.Do(func() {
		close(m.shutdown)
	})
	m.mu.Unlock()
	m.wg.Wait()
	m.sessions.Range(func(key, value interface{}) bool {
		value.(*Session).close()
		m.sessions.Delete(key)
		return true
	})
}
