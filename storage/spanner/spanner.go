// Package spanner stores snapshots and uptime history in Cloud Spanner.
package spanner

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cacheoracle/cacheoracle/config"
	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/storage"
	"github.com/cacheoracle/cacheoracle/uuid"
)

type metricsRow struct {
	ConnectionID    string    `spanner:"connection_id"`
	Seq             int64     `spanner:"seq"`
	ID              string    `spanner:"id"`
	Timestamp       time.Time `spanner:"timestamp"`
	HitRatio        float64   `spanner:"hit_ratio"`
	MemoryUsedBytes int64     `spanner:"memory_used_bytes"`
	OpsPerSec       int64     `spanner:"ops_per_sec"`
	UptimeInSeconds int64     `spanner:"uptime_in_seconds"`
	RowData         []byte    `spanner:"row_data"`
}

type uptimeRow struct {
	ConnectionID   string    `spanner:"connection_id"`
	Seq            int64     `spanner:"seq"`
	UptimeSeconds  int64     `spanner:"uptime_seconds"`
	RecordedAt     time.Time `spanner:"recorded_at"`
	ServerRebooted bool      `spanner:"server_rebooted"`
}

type rebootRow struct {
	ConnectionID          string    `spanner:"connection_id"`
	Seq                   int64     `spanner:"seq"`
	PreviousUptimeSeconds int64     `spanner:"previous_uptime_seconds"`
	RebootTime            time.Time `spanner:"reboot_time"`
	DetectedAt            time.Time `spanner:"detected_at"`
}

type Store struct {
	cli          *spanner.Client
	maxSnapshots int
}

func CreateSpannerClient(cfg *config.SpannerConfig) (*spanner.Client, error) {
	if cfg.CredentialsFile != "" {
		opt := option.WithCredentialsFile(cfg.CredentialsFile)
		return spanner.NewClient(context.Background(), cfg.DatabaseURI(), opt)
	}
	return spanner.NewClient(context.Background(), cfg.DatabaseURI())
}

func New(cfg *config.SpannerConfig, maxSnapshots int) (*Store, error) {
	client, err := CreateSpannerClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{cli: client, maxSnapshots: maxSnapshots}, nil
}

// lastSeq returns the highest seq of connID in table, 0 if there is none.
func lastSeq(ctx context.Context, txn *spanner.ReadWriteTransaction, table, connID string) (int64, error) {
	iter := txn.Query(ctx, spanner.Statement{
		SQL:    "SELECT seq FROM " + table + " WHERE connection_id = @conn ORDER BY seq DESC LIMIT 1",
		Params: map[string]interface{}{"conn": connID},
	})
	defer iter.Stop()
	row, err := iter.Next()
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq int64
	if err := row.Column(0, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, connID string, snapshot *model.Snapshot) (seq int64, err error) {
	_, err = s.cli.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		last, err := lastSeq(ctx, txn, metricsTable, connID)
		if err != nil {
			return err
		}
		seq = last + 1
		row := model.NewRow(connID, snapshot)
		row.ID = uuid.GenUniqueIDAt(snapshot.Time())
		row.Seq = seq
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		mut, err := spanner.InsertStruct(metricsTable, &metricsRow{
			ConnectionID:    connID,
			Seq:             seq,
			ID:              row.ID,
			Timestamp:       row.Timestamp,
			HitRatio:        row.HitRatio,
			MemoryUsedBytes: row.MemoryUsedBytes,
			OpsPerSec:       row.InstantaneousOpsPerSec,
			UptimeInSeconds: row.UptimeInSeconds,
			RowData:         data,
		})
		if err != nil {
			return err
		}
		if s.maxSnapshots > 0 && seq > int64(s.maxSnapshots) {
			_, err = txn.Update(ctx, spanner.Statement{
				SQL: "DELETE FROM redis_metrics WHERE connection_id = @conn AND seq <= @cut",
				Params: map[string]interface{}{
					"conn": connID,
					"cut":  seq - int64(s.maxSnapshots),
				},
			})
			if err != nil {
				return err
			}
		}
		return txn.BufferWrite([]*spanner.Mutation{mut})
	})
	return seq, err
}

func (s *Store) ListSnapshots(ctx context.Context, connID string, limit int) ([]*model.Snapshot, error) {
	limit = storage.PageLimit(limit, storage.SnapshotPageSize)
	iter := s.cli.Single().Query(ctx, spanner.Statement{
		SQL: "SELECT row_data FROM redis_metrics WHERE connection_id = @conn ORDER BY seq DESC LIMIT @limit",
		Params: map[string]interface{}{
			"conn":  connID,
			"limit": int64(limit),
		},
	})
	snapshots := make([]*model.Snapshot, 0, limit)
	err := iter.Do(func(r *spanner.Row) error {
		var data []byte
		if err := r.Column(0, &data); err != nil {
			return err
		}
		var row model.Row
		if err := json.Unmarshal(data, &row); err != nil {
			return err
		}
		snapshots = append(snapshots, row.Snapshot())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// RecordUptime reads the predecessor and appends in one read-write
// transaction, which spanner aborts and retries on a concurrent writer.
func (s *Store) RecordUptime(ctx context.Context, connID string, uptimeSeconds int64, now time.Time) (record *model.UptimeRecord, reboot *model.RebootEvent, err error) {
	now = now.UTC()
	_, err = s.cli.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		iter := txn.Query(ctx, spanner.Statement{
			SQL: "SELECT connection_id, seq, uptime_seconds, recorded_at, server_rebooted " +
				"FROM redis_uptime_history WHERE connection_id = @conn ORDER BY seq DESC LIMIT 1",
			Params: map[string]interface{}{"conn": connID},
		})
		var previous *model.UptimeRecord
		var prevSeq int64
		err := iter.Do(func(r *spanner.Row) error {
			prev := &uptimeRow{}
			if err := r.ToStruct(prev); err != nil {
				return err
			}
			prevSeq = prev.Seq
			previous = &model.UptimeRecord{
				ConnectionID:   prev.ConnectionID,
				UptimeSeconds:  prev.UptimeSeconds,
				RecordedAt:     prev.RecordedAt,
				ServerRebooted: prev.ServerRebooted,
			}
			return nil
		})
		if err != nil {
			return err
		}

		record, reboot = storage.Detect(connID, previous, uptimeSeconds, now)
		mutations := make([]*spanner.Mutation, 0, 2)
		mut, err := spanner.InsertStruct(uptimeTable, &uptimeRow{
			ConnectionID:   connID,
			Seq:            prevSeq + 1,
			UptimeSeconds:  record.UptimeSeconds,
			RecordedAt:     record.RecordedAt,
			ServerRebooted: record.ServerRebooted,
		})
		if err != nil {
			return err
		}
		mutations = append(mutations, mut)
		if reboot != nil {
			mut, err = spanner.InsertStruct(rebootsTable, &rebootRow{
				ConnectionID:          connID,
				Seq:                   prevSeq + 1,
				PreviousUptimeSeconds: reboot.PreviousUptimeSeconds,
				RebootTime:            reboot.RebootTime,
				DetectedAt:            reboot.DetectedAt,
			})
			if err != nil {
				return err
			}
			mutations = append(mutations, mut)
		}
		return txn.BufferWrite(mutations)
	})
	if err != nil {
		return nil, nil, err
	}
	return record, reboot, nil
}

func (s *Store) UptimeHistory(ctx context.Context, connID string, limit int) ([]model.UptimeRecord, error) {
	limit = storage.PageLimit(limit, storage.HistoryPageSize)
	iter := s.cli.Single().Query(ctx, spanner.Statement{
		SQL: "SELECT connection_id, seq, uptime_seconds, recorded_at, server_rebooted " +
			"FROM redis_uptime_history WHERE connection_id = @conn ORDER BY seq DESC LIMIT @limit",
		Params: map[string]interface{}{
			"conn":  connID,
			"limit": int64(limit),
		},
	})
	records := make([]model.UptimeRecord, 0, limit)
	err := iter.Do(func(r *spanner.Row) error {
		elem := &uptimeRow{}
		if err := r.ToStruct(elem); err != nil {
			return err
		}
		records = append(records, model.UptimeRecord{
			ConnectionID:   elem.ConnectionID,
			UptimeSeconds:  elem.UptimeSeconds,
			RecordedAt:     elem.RecordedAt,
			ServerRebooted: elem.ServerRebooted,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) Reboots(ctx context.Context, connID string, limit int) ([]model.RebootEvent, error) {
	limit = storage.PageLimit(limit, storage.HistoryPageSize)
	iter := s.cli.Single().Query(ctx, spanner.Statement{
		SQL: "SELECT connection_id, seq, previous_uptime_seconds, reboot_time, detected_at " +
			"FROM redis_reboots WHERE connection_id = @conn ORDER BY seq DESC LIMIT @limit",
		Params: map[string]interface{}{
			"conn":  connID,
			"limit": int64(limit),
		},
	})
	events := make([]model.RebootEvent, 0, limit)
	err := iter.Do(func(r *spanner.Row) error {
		elem := &rebootRow{}
		if err := r.ToStruct(elem); err != nil {
			return err
		}
		events = append(events, model.RebootEvent{
			ConnectionID:          elem.ConnectionID,
			PreviousUptimeSeconds: elem.PreviousUptimeSeconds,
			RebootTime:            elem.RebootTime,
			DetectedAt:            elem.DetectedAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteConnection removes the rows of connID from every table in one transaction.
func (s *Store) DeleteConnection(ctx context.Context, connID string) error {
	_, err := s.cli.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		for _, table := range []string{metricsTable, uptimeTable, rebootsTable} {
			_, err := txn.Update(ctx, spanner.Statement{
				SQL:    "DELETE FROM " + table + " WHERE connection_id = @conn",
				Params: map[string]interface{}{"conn": connID},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// Prune deletes old rows in one transaction. The latest metrics and uptime
// rows of each connection stay since the next seq is derived from them.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	statements := []spanner.Statement{
		{
			SQL: "DELETE FROM redis_metrics m WHERE m.timestamp < @before AND m.seq < " +
				"(SELECT MAX(seq) FROM redis_metrics WHERE connection_id = m.connection_id)",
		},
		{
			SQL: "DELETE FROM redis_uptime_history h WHERE h.recorded_at < @before AND h.seq < " +
				"(SELECT MAX(seq) FROM redis_uptime_history WHERE connection_id = h.connection_id)",
		},
		{
			SQL: "DELETE FROM redis_reboots WHERE detected_at < @before",
		},
	}
	var pruned int64
	_, err := s.cli.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		pruned = 0
		for _, stmt := range statements {
			stmt.Params = map[string]interface{}{"before": before.UTC()}
			n, err := txn.Update(ctx, stmt)
			if err != nil {
				return err
			}
			pruned += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

func (s *Store) Close() error {
	s.cli.Close()
	return nil
}
