package realtime

import (
	"context"

	"github.com/cacheoracle/cacheoracle/model"
)

// Subscriber turns notified rows into snapshots and keeps them in History.
// Rows History rejects as stale or duplicated are not passed to OnSnapshot.
type Subscriber struct {
	Subscription Subscription
	History      *History
	OnSnapshot   func(s *model.Snapshot)
}

func NewSubscriber(sub Subscription, history *History) *Subscriber {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	return &Subscriber{Subscription: sub, History: history}
}

// Run consumes the subscription until ctx is done or the subscription
// closes. The subscription is closed on return.
func (s *Subscriber) Run(ctx context.Context) {
	defer s.Subscription.Close()
	rows := s.Subscription.C()
	for {
		select {
		case <-ctx.Done():
			return
		case row, ok := <-rows:
			if !ok {
				return
			}
			if row == nil {
				continue
			}
			snapshot := row.Snapshot()
			if !s.History.Push(snapshot) {
				continue
			}
			if s.OnSnapshot != nil {
				s.OnSnapshot(snapshot)
			}
		}
	}
}
