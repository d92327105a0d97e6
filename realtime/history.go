// Package realtime delivers new snapshots of a connection to a live session,
// either by subscribing to persisted-snapshot notifications or by polling.
package realtime

import (
	"sync"

	"github.com/cacheoracle/cacheoracle/model"
)

// DefaultHistorySize is the number of snapshots retained per session.
const DefaultHistorySize = 100

// History is a fixed-size FIFO of snapshots. Snapshots that are not newer
// than the newest one already held are rejected, which drops duplicates and
// late out-of-order deliveries. A lower sequence observed after everything
// held means the store numbered the connection afresh, and the history
// restarts from it.
type History struct {
	mu    sync.RWMutex
	data  []*model.Snapshot
	head  int
	count int

	lastSeq       int64
	lastTimestamp int64
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{data: make([]*model.Snapshot, size)}
}

// Push appends s, evicting the oldest entry when full. It reports whether s
// was accepted.
func (h *History) Push(s *model.Snapshot) bool {
	if s == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count > 0 && h.restarted(s) {
		h.reset()
	}
	if h.count > 0 && !h.isNewer(s) {
		return false
	}
	h.data[h.head] = s
	h.head = (h.head + 1) % len(h.data)
	if h.count < len(h.data) {
		h.count++
	}
	if s.Seq > h.lastSeq {
		h.lastSeq = s.Seq
	}
	if s.Timestamp > h.lastTimestamp {
		h.lastTimestamp = s.Timestamp
	}
	return true
}

// isNewer orders by sequence when both sides carry one, by timestamp otherwise.
func (h *History) isNewer(s *model.Snapshot) bool {
	if s.Seq > 0 && h.lastSeq > 0 {
		return s.Seq > h.lastSeq
	}
	return s.Timestamp > h.lastTimestamp
}

// restarted reports a sequence that went backwards while time moved forward,
// as happens once a deleted connection is recorded again.
func (h *History) restarted(s *model.Snapshot) bool {
	return s.Seq > 0 && s.Seq < h.lastSeq && s.Timestamp > h.lastTimestamp
}

func (h *History) reset() {
	for i := range h.data {
		h.data[i] = nil
	}
	h.head, h.count = 0, 0
	h.lastSeq, h.lastTimestamp = 0, 0
}

// Latest returns the most recently accepted snapshot, nil when empty.
func (h *History) Latest() *model.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return nil
	}
	return h.data[(h.head-1+len(h.data))%len(h.data)]
}

// All returns the held snapshots, oldest first.
func (h *History) All() []*model.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*model.Snapshot, 0, h.count)
	start := (h.head - h.count + len(h.data)) % len(h.data)
	for i := 0; i < h.count; i++ {
		out = append(out, h.data[(start+i)%len(h.data)])
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *History) Cap() int {
	return len(h.data)
}
