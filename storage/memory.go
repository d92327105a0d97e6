package storage

import (
	"context"
	"sync"
	"time"

	"github.com/cacheoracle/cacheoracle/model"
)

type memoryConnection struct {
	seq       int64
	snapshots []*model.Snapshot
	uptimes   []model.UptimeRecord
	reboots   []model.RebootEvent
}

// Memory keeps everything in process. Every operation holds one mutex, which
// also makes the uptime compare-and-append atomic.
type Memory struct {
	mu           sync.Mutex
	maxSnapshots int
	conns        map[string]*memoryConnection
}

// NewMemory keeps at most maxSnapshots snapshots per connection, unbounded when 0.
func NewMemory(maxSnapshots int) *Memory {
	return &Memory{
		maxSnapshots: maxSnapshots,
		conns:        make(map[string]*memoryConnection),
	}
}

func (m *Memory) conn(connID string) *memoryConnection {
	c, ok := m.conns[connID]
	if !ok {
		c = &memoryConnection{}
		m.conns[connID] = c
	}
	return c
}

func (m *Memory) SaveSnapshot(ctx context.Context, connID string, s *model.Snapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conn(connID)
	c.seq++
	stored := *s
	stored.Seq = c.seq
	c.snapshots = append(c.snapshots, &stored)
	if m.maxSnapshots > 0 && len(c.snapshots) > m.maxSnapshots {
		c.snapshots = c.snapshots[len(c.snapshots)-m.maxSnapshots:]
	}
	return c.seq, nil
}

func (m *Memory) ListSnapshots(ctx context.Context, connID string, limit int) ([]*model.Snapshot, error) {
	limit = PageLimit(limit, SnapshotPageSize)
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connID]
	if !ok {
		return []*model.Snapshot{}, nil
	}
	out := make([]*model.Snapshot, 0, limit)
	for i := len(c.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		s := *c.snapshots[i]
		out = append(out, &s)
	}
	return out, nil
}

func (m *Memory) RecordUptime(ctx context.Context, connID string, uptimeSeconds int64, now time.Time) (*model.UptimeRecord, *model.RebootEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conn(connID)
	var previous *model.UptimeRecord
	if n := len(c.uptimes); n > 0 {
		previous = &c.uptimes[n-1]
	}
	record, reboot := Detect(connID, previous, uptimeSeconds, now)
	c.uptimes = append(c.uptimes, *record)
	if reboot != nil {
		c.reboots = append(c.reboots, *reboot)
	}
	return record, reboot, nil
}

func (m *Memory) UptimeHistory(ctx context.Context, connID string, limit int) ([]model.UptimeRecord, error) {
	limit = PageLimit(limit, HistoryPageSize)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.UptimeRecord, 0, limit)
	if c, ok := m.conns[connID]; ok {
		for i := len(c.uptimes) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, c.uptimes[i])
		}
	}
	return out, nil
}

func (m *Memory) Reboots(ctx context.Context, connID string, limit int) ([]model.RebootEvent, error) {
	limit = PageLimit(limit, HistoryPageSize)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RebootEvent, 0, limit)
	if c, ok := m.conns[connID]; ok {
		for i := len(c.reboots) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, c.reboots[i])
		}
	}
	return out, nil
}

func (m *Memory) DeleteConnection(ctx context.Context, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
	return nil
}

func (m *Memory) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for _, c := range m.conns {
		n := 0
		for n < len(c.snapshots)-1 && c.snapshots[n].Time().Before(before) {
			n++
		}
		c.snapshots = c.snapshots[n:]
		pruned += int64(n)

		n = 0
		for n < len(c.uptimes)-1 && c.uptimes[n].RecordedAt.Before(before) {
			n++
		}
		c.uptimes = c.uptimes[n:]
		pruned += int64(n)

		n = 0
		for n < len(c.reboots) && c.reboots[n].DetectedAt.Before(before) {
			n++
		}
		c.reboots = c.reboots[n:]
		pruned += int64(n)
	}
	return pruned, nil
}

func (m *Memory) Close() error {
	return nil
}
