package realtime

import (
	"context"
	"time"

	"github.com/cacheoracle/cacheoracle/model"
)

const DefaultPollInterval = 10 * time.Second

// Poller re-runs Fetch every Interval. A failed fetch is reported through
// OnError and the poller simply waits for the next tick.
type Poller struct {
	Interval   time.Duration
	Fetch      func(ctx context.Context) (*model.Snapshot, error)
	OnSnapshot func(s *model.Snapshot)
	OnError    func(err error)

	shutdown chan struct{}
}

func NewPoller(interval time.Duration, fetch func(ctx context.Context) (*model.Snapshot, error)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		Interval: interval,
		Fetch:    fetch,
		shutdown: make(chan struct{}),
	}
}

// Run fetches once immediately and then on every tick, until ctx is done or
// Shutdown is called.
func (p *Poller) Run(ctx context.Context) {
	if p.shutdown == nil {
		p.shutdown = make(chan struct{})
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	snapshot, err := p.Fetch(ctx)
	if err != nil {
		if p.OnError != nil && ctx.Err() == nil {
			p.OnError(err)
		}
		return
	}
	if p.OnSnapshot != nil && snapshot != nil {
		p.OnSnapshot(snapshot)
	}
}

// Shutdown stops a Poller created by NewPoller. It must be called at most once.
func (p *Poller) Shutdown() {
	close(p.shutdown)
}
