// Package storage persists snapshots and uptime observations per connection
// and detects server reboots from consecutive uptime readings.
package storage

import (
	"context"
	"time"

	"github.com/cacheoracle/cacheoracle/model"
)

const (
	// HistoryPageSize is the default and maximum size of an uptime or reboot page.
	HistoryPageSize = 50
	// SnapshotPageSize is the default and maximum size of a snapshot page.
	SnapshotPageSize = 100
)

// SnapshotStore keeps the snapshot history of each connection.
type SnapshotStore interface {
	// SaveSnapshot appends s and returns its per-connection sequence number
	SaveSnapshot(ctx context.Context, connID string, s *model.Snapshot) (seq int64, err error)
	// ListSnapshots returns the latest snapshots, most recent first
	ListSnapshots(ctx context.Context, connID string, limit int) ([]*model.Snapshot, error)
}

// UptimeStore keeps the append-only uptime log and the reboot events derived from it.
type UptimeStore interface {
	// RecordUptime appends an observation, comparing it with the previous one
	// atomically. The reboot event is nil unless a reboot was detected.
	RecordUptime(ctx context.Context, connID string, uptimeSeconds int64, now time.Time) (*model.UptimeRecord, *model.RebootEvent, error)
	// UptimeHistory returns the latest observations, most recent first
	UptimeHistory(ctx context.Context, connID string, limit int) ([]model.UptimeRecord, error)
	// Reboots returns the latest reboot events, most recent first
	Reboots(ctx context.Context, connID string, limit int) ([]model.RebootEvent, error)
}

// Persistence is everything the monitor needs from a storage backend.
type Persistence interface {
	SnapshotStore
	UptimeStore
	// DeleteConnection removes every record that belongs to connID
	DeleteConnection(ctx context.Context, connID string) error
	// Prune drops snapshots, uptime records and reboot events older than
	// before. The newest snapshot and uptime record of a connection are kept
	// so sequence numbers and reboot detection carry on.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// PageLimit clamps a requested page size to (0, max], using max for non-positive values.
func PageLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
