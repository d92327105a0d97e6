package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cacheoracle/cacheoracle/model"
)

const (
	channelPrefix = "cacheoracle:snapshots:"
	subjectPrefix = "cacheoracle.snapshots."

	subscriptionBuffer = 16
)

// Notifier announces newly persisted snapshot rows, one stream per connection.
type Notifier interface {
	Publish(ctx context.Context, connID string, row *model.Row) error
	Subscribe(ctx context.Context, connID string) (Subscription, error)
	Close() error
}

// Subscription delivers rows of one connection until closed. C is closed
// once Close returns.
type Subscription interface {
	C() <-chan *model.Row
	Close() error
}

func Channel(connID string) string {
	return channelPrefix + connID
}

func Subject(connID string) string {
	return subjectPrefix + connID
}

func encodeRow(row *model.Row) ([]byte, error) {
	return json.Marshal(row)
}

func decodeRow(data []byte) (*model.Row, error) {
	row := new(model.Row)
	if err := json.Unmarshal(data, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Local fans rows out inside one process. It backs sessions when no
// external broker is configured.
type Local struct {
	mu   sync.RWMutex
	subs map[string]map[*localSubscription]struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[*localSubscription]struct{})}
}

func (l *Local) Publish(ctx context.Context, connID string, row *model.Row) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for sub := range l.subs[connID] {
		sub.deliver(row)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, connID string) (Subscription, error) {
	sub := &localSubscription{
		out:    make(chan *model.Row, subscriptionBuffer),
		parent: l,
		connID: connID,
	}
	l.mu.Lock()
	if l.subs[connID] == nil {
		l.subs[connID] = make(map[*localSubscription]struct{})
	}
	l.subs[connID][sub] = struct{}{}
	l.mu.Unlock()
	return sub, nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	subs := l.subs
	l.subs = make(map[string]map[*localSubscription]struct{})
	l.mu.Unlock()
	for _, set := range subs {
		for sub := range set {
			sub.closeChan()
		}
	}
	return nil
}

type localSubscription struct {
	mu     sync.Mutex
	closed bool
	out    chan *model.Row
	parent *Local
	connID string
}

// deliver drops the row when the consumer is not keeping up.
func (s *localSubscription) deliver(row *model.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- row:
	default:
	}
}

func (s *localSubscription) C() <-chan *model.Row {
	return s.out
}

func (s *localSubscription) Close() error {
	s.parent.mu.Lock()
	delete(s.parent.subs[s.connID], s)
	if len(s.parent.subs[s.connID]) == 0 {
		delete(s.parent.subs, s.connID)
	}
	s.parent.mu.Unlock()
	s.closeChan()
	return nil
}

func (s *localSubscription) closeChan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
