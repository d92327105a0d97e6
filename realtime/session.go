package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/cacheoracle/cacheoracle/model"
)

type Mode string

const (
	ModeOff      Mode = "off"
	ModePolling  Mode = "polling"
	ModeRealtime Mode = "realtime"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOff, ModePolling, ModeRealtime:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

var (
	ErrNoTarget        = errors.New("no active connection")
	ErrNoConnectionID  = errors.New("realtime mode needs a connection id")
	ErrNoFetcher       = errors.New("polling mode needs a connection string")
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
)

// Target is the connection a session currently watches.
type Target struct {
	ConnectionID     string
	ConnectionString string
}

// FetchFunc runs one full collection for target.
type FetchFunc func(ctx context.Context, target Target) (*model.Snapshot, error)

// Event is delivered to the session consumer. Exactly one of Snapshot and
// Err is set.
type Event struct {
	Snapshot *model.Snapshot
	Err      error
}

const eventBuffer = 16

// Session owns one delivery loop at a time. Switching mode or target tears
// the running loop down and waits for it to exit before starting the next.
type Session struct {
	ID string

	mu       sync.Mutex
	mode     Mode
	target   Target
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
	history  *History
	events   chan Event
	notifier Notifier
	fetch    FetchFunc
	interval time.Duration
	logger   *logrus.Logger

	// lastSeen is unix nanos of the last client interaction.
	lastSeen  atomic.Int64
	consumers atomic.Int32
}

// Touch marks the session as used by a client now.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// Attach registers an events consumer. The session is never idle while a
// consumer is attached; the returned func detaches it.
func (s *Session) Attach() (detach func()) {
	s.consumers.Inc()
	s.Touch()
	return func() {
		s.consumers.Dec()
		s.Touch()
	}
}

// idleSince reports whether no consumer is attached and no client touched
// the session after deadline.
func (s *Session) idleSince(deadline time.Time) bool {
	return s.consumers.Load() == 0 && s.lastSeen.Load() < deadline.UnixNano()
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Session) History() *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// Events is never closed while the session is alive; consumers should stop
// on their own context. Events are dropped when the consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

// SetActive points the session at a new connection and restarts the current
// mode against it. The history is reset since it belongs to the old target.
func (s *Session) SetActive(target Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	s.teardown()
	if target != s.target {
		s.history = NewHistory(s.history.Cap())
	}
	s.target = target
	return s.start()
}

func (s *Session) SetMode(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	s.teardown()
	s.mode = mode
	return s.start()
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
	s.closed = true
}

// teardown must be called with mu held.
func (s *Session) teardown() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// start must be called with mu held. On error the session stays off.
func (s *Session) start() error {
	if s.mode == ModeOff || s.mode == "" {
		return nil
	}
	if s.target == (Target{}) {
		s.mode = ModeOff
		return ErrNoTarget
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	history := s.history
	target := s.target

	switch s.mode {
	case ModeRealtime:
		if target.ConnectionID == "" {
			cancel()
			s.mode = ModeOff
			return ErrNoConnectionID
		}
		sub, err := s.notifier.Subscribe(ctx, target.ConnectionID)
		if err != nil {
			cancel()
			s.mode = ModeOff
			return err
		}
		subscriber := NewSubscriber(sub, history)
		subscriber.OnSnapshot = s.emitSnapshot
		go func() {
			defer close(done)
			subscriber.Run(ctx)
		}()
	case ModePolling:
		if target.ConnectionString == "" || s.fetch == nil {
			cancel()
			s.mode = ModeOff
			return ErrNoFetcher
		}
		fetch := s.fetch
		poller := NewPoller(s.interval, func(ctx context.Context) (*model.Snapshot, error) {
			return fetch(ctx, target)
		})
		poller.OnSnapshot = func(snapshot *model.Snapshot) {
			if history.Push(snapshot) {
				s.emitSnapshot(snapshot)
			}
		}
		poller.OnError = s.emitError
		go func() {
			defer close(done)
			poller.Run(ctx)
		}()
	default:
		cancel()
		return fmt.Errorf("unknown mode %q", s.mode)
	}
	s.cancel = cancel
	s.done = done
	s.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"mode":    s.mode,
		"conn_id": target.ConnectionID,
	}).Debug("Session loop started")
	return nil
}

func (s *Session) emitSnapshot(snapshot *model.Snapshot) {
	s.emit(Event{Snapshot: snapshot})
}

func (s *Session) emitError(err error) {
	s.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"err":     err,
	}).Warn("Failed to poll the connection")
	s.emit(Event{Err: err})
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
	}
}
