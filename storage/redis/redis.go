// Package redis stores snapshots and uptime history in a redis instance.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/storage"
	"github.com/cacheoracle/cacheoracle/uuid"
)

const (
	keyPrefix = "cacheoracle"

	// uptime records kept per connection
	maxUptimeRecords = 10000
	maxRebootEvents  = 1000

	// KEYS[1] last uptime, KEYS[2] uptime list, KEYS[3] reboot list
	// ARGV[1] connection id, ARGV[2] uptime seconds, ARGV[3] recorded at,
	// ARGV[4] estimated reboot time, ARGV[5] uptime cap, ARGV[6] reboot cap
	recordUptimeLuaScript = `
local uptime = tonumber(ARGV[2])
local prev = redis.call("get", KEYS[1])
local rebooted = false
if prev then
	prev = tonumber(prev)
	rebooted = uptime < prev
end
redis.call("set", KEYS[1], uptime)
local record = cjson.encode({
	connection_id = ARGV[1],
	uptime_seconds = uptime,
	recorded_at = ARGV[3],
	server_rebooted = rebooted,
})
redis.call("lpush", KEYS[2], record)
redis.call("ltrim", KEYS[2], 0, tonumber(ARGV[5]) - 1)
if not rebooted then
	return {record}
end
local event = cjson.encode({
	connection_id = ARGV[1],
	previous_uptime_seconds = prev,
	reboot_time = ARGV[4],
	detected_at = ARGV[3],
})
redis.call("lpush", KEYS[3], event)
redis.call("ltrim", KEYS[3], 0, tonumber(ARGV[6]) - 1)
return {record, event}
`
)

// Store keeps each connection under its own hash tag so that every key of a
// connection lands on the same slot.
type Store struct {
	cli          *redis.Client
	maxSnapshots int
	logger       *logrus.Logger

	mu        sync.RWMutex
	uptimeSHA string
}

func New(cli *redis.Client, maxSnapshots int, logger *logrus.Logger) (*Store, error) {
	s := &Store{cli: cli, maxSnapshots: maxSnapshots, logger: logger}
	if err := s.loadScript(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadScript(ctx context.Context) error {
	sha, err := s.cli.ScriptLoad(ctx, recordUptimeLuaScript).Result()
	if err != nil {
		return fmt.Errorf("failed to load the uptime script: %s", err)
	}
	s.mu.Lock()
	s.uptimeSHA = sha
	s.mu.Unlock()
	return nil
}

func connKey(connID, kind string) string {
	return fmt.Sprintf("%s:{%s}:%s", keyPrefix, connID, kind)
}

func (s *Store) SaveSnapshot(ctx context.Context, connID string, snapshot *model.Snapshot) (int64, error) {
	seq, err := s.cli.Incr(ctx, connKey(connID, "seq")).Result()
	if err != nil {
		return 0, err
	}
	row := model.NewRow(connID, snapshot)
	row.ID = uuid.GenUniqueIDAt(snapshot.Time())
	row.Seq = seq
	data, err := json.Marshal(row)
	if err != nil {
		return 0, err
	}
	key := connKey(connID, "snapshots")
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		if s.maxSnapshots > 0 {
			pipe.LTrim(ctx, key, 0, int64(s.maxSnapshots-1))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) ListSnapshots(ctx context.Context, connID string, limit int) ([]*model.Snapshot, error) {
	limit = storage.PageLimit(limit, storage.SnapshotPageSize)
	vals, err := s.cli.LRange(ctx, connKey(connID, "snapshots"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	snapshots := make([]*model.Snapshot, 0, len(vals))
	for _, val := range vals {
		var row model.Row
		if err := json.Unmarshal([]byte(val), &row); err != nil {
			s.logger.WithFields(logrus.Fields{
				"conn_id": connID,
				"err":     err,
			}).Warn("Skip the malformed snapshot row")
			continue
		}
		snapshots = append(snapshots, row.Snapshot())
	}
	return snapshots, nil
}

func (s *Store) evalUptime(ctx context.Context, keys []string, args ...interface{}) (interface{}, error) {
	s.mu.RLock()
	sha := s.uptimeSHA
	s.mu.RUnlock()
	val, err := s.cli.EvalSha(ctx, sha, keys, args...).Result()
	if err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT") {
		if err := s.loadScript(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		sha = s.uptimeSHA
		s.mu.RUnlock()
		val, err = s.cli.EvalSha(ctx, sha, keys, args...).Result()
	}
	return val, err
}

// RecordUptime compares and appends in a single script, so concurrent
// writers of one connection never both observe the same predecessor.
func (s *Store) RecordUptime(ctx context.Context, connID string, uptimeSeconds int64, now time.Time) (*model.UptimeRecord, *model.RebootEvent, error) {
	now = now.UTC()
	rebootTime := now.Add(-time.Duration(uptimeSeconds) * time.Second)
	keys := []string{connKey(connID, "last_uptime"), connKey(connID, "uptime"), connKey(connID, "reboots")}
	val, err := s.evalUptime(ctx, keys,
		connID, uptimeSeconds,
		now.Format(time.RFC3339Nano), rebootTime.Format(time.RFC3339Nano),
		maxUptimeRecords, maxRebootEvents)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to eval the uptime script: %s", err)
	}
	replies, ok := val.([]interface{})
	if !ok || len(replies) == 0 {
		return nil, nil, fmt.Errorf("unexpected uptime script reply: %v", val)
	}
	record := new(model.UptimeRecord)
	if err := decodeReply(replies[0], record); err != nil {
		return nil, nil, err
	}
	if len(replies) < 2 {
		return record, nil, nil
	}
	event := new(model.RebootEvent)
	if err := decodeReply(replies[1], event); err != nil {
		return nil, nil, err
	}
	return record, event, nil
}

func decodeReply(reply interface{}, v interface{}) error {
	str, ok := reply.(string)
	if !ok {
		return fmt.Errorf("unexpected uptime script reply: %v", reply)
	}
	return json.Unmarshal([]byte(str), v)
}

func (s *Store) UptimeHistory(ctx context.Context, connID string, limit int) ([]model.UptimeRecord, error) {
	limit = storage.PageLimit(limit, storage.HistoryPageSize)
	vals, err := s.cli.LRange(ctx, connKey(connID, "uptime"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	records := make([]model.UptimeRecord, 0, len(vals))
	for _, val := range vals {
		var record model.UptimeRecord
		if err := json.Unmarshal([]byte(val), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *Store) Reboots(ctx context.Context, connID string, limit int) ([]model.RebootEvent, error) {
	limit = storage.PageLimit(limit, storage.HistoryPageSize)
	vals, err := s.cli.LRange(ctx, connKey(connID, "reboots"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]model.RebootEvent, 0, len(vals))
	for _, val := range vals {
		var event model.RebootEvent
		if err := json.Unmarshal([]byte(val), &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Store) DeleteConnection(ctx context.Context, connID string) error {
	return s.cli.Del(ctx,
		connKey(connID, "seq"),
		connKey(connID, "snapshots"),
		connKey(connID, "last_uptime"),
		connKey(connID, "uptime"),
		connKey(connID, "reboots"),
	).Err()
}

func (s *Store) Close() error {
	return s.cli.Close()
}
