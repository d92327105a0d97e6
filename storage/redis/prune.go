package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const pruneScanCount = 100

type listRetention struct {
	kind string
	// keep is the number of entries that survive whatever their age
	keep int64
	at   func(data []byte) (time.Time, error)
}

var retentions = []listRetention{
	{kind: "snapshots", keep: 1, at: func(data []byte) (time.Time, error) {
		var v struct {
			Timestamp time.Time `json:"timestamp"`
		}
		err := json.Unmarshal(data, &v)
		return v.Timestamp, err
	}},
	{kind: "uptime", keep: 1, at: func(data []byte) (time.Time, error) {
		var v struct {
			RecordedAt time.Time `json:"recorded_at"`
		}
		err := json.Unmarshal(data, &v)
		return v.RecordedAt, err
	}},
	{kind: "reboots", keep: 0, at: func(data []byte) (time.Time, error) {
		var v struct {
			DetectedAt time.Time `json:"detected_at"`
		}
		err := json.Unmarshal(data, &v)
		return v.DetectedAt, err
	}},
}

// Prune pops entries older than before from the tail of every connection
// list. Lists are newest first, so it stops at the first recent entry.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	var pruned int64
	for _, r := range retentions {
		iter := s.cli.Scan(ctx, 0, connKey("*", r.kind), pruneScanCount).Iterator()
		for iter.Next(ctx) {
			n, err := s.pruneList(ctx, iter.Val(), r, before)
			pruned += n
			if err != nil {
				return pruned, err
			}
		}
		if err := iter.Err(); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

func (s *Store) pruneList(ctx context.Context, key string, r listRetention, before time.Time) (int64, error) {
	var pruned int64
	for {
		popped := false
		// the watch makes sure a concurrent LTRIM never turns our RPOP into
		// removing a fresh entry
		err := s.cli.Watch(ctx, func(tx *redis.Tx) error {
			size, err := tx.LLen(ctx, key).Result()
			if err != nil || size <= r.keep {
				return err
			}
			tail, err := tx.LIndex(ctx, key, -1).Bytes()
			if err != nil {
				return err
			}
			at, err := r.at(tail)
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"key": key,
					"err": err,
				}).Warn("Drop the malformed entry while pruning")
			} else if !at.Before(before) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.RPop(ctx, key)
				return nil
			})
			if err == nil {
				popped = true
			}
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return pruned, err
		}
		if !popped {
			return pruned, nil
		}
		pruned++
	}
}
