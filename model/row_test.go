package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Seq:              7,
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		OverallHitRatio:  0.9,
		KeyspaceHits:     900,
		KeyspaceMisses:   100,
		TotalRequests:    5000,
		AvgResponseTime:  0.42,
		MemoryUsedBytes:  104857600,
		MemoryTotalBytes: 1073741824,
		MemoryUsage:      MemoryUsage{Used: 100, Total: 1024},
		Operations:       Operations{Reads: 5, Writes: 3, Deletes: 2},
		MemoryAnalysis: MemoryAnalysis{
			FragmentationRatio: 1.3,
			WastedBytes:        2048,
		},
		Persistence: Persistence{AofCurrentSize: 300, AofBaseSize: 200, TotalForks: 4},
		Clients:     Clients{ConnectedClients: 12, MaxClients: 10000},
		Slowlog: []SlowlogEntry{
			{ID: 3, Timestamp: 1700000000, Duration: 15000, Command: []string{"KEYS", "*"}},
		},
		DBSize:          42,
		UptimeInSeconds: 86400,
		RedisVersion:    "7.2.4",
	}
}

func TestRow_Snapshot_RecomputesDerived(t *testing.T) {
	s := sampleSnapshot()
	row := NewRow("conn-1", s)
	assert.Equal(t, "conn-1", row.ConnectionID)
	require.Len(t, row.CacheLevels, 1)
	assert.Equal(t, int64(1000), row.CacheLevels[0].TotalRequests)

	back := row.Snapshot()
	assert.Equal(t, s.Timestamp, back.Timestamp)
	assert.Equal(t, s.Seq, back.Seq)
	assert.Equal(t, int64(100), back.MemoryUsage.Used)
	assert.Equal(t, int64(1024), back.MemoryUsage.Total)
	assert.InDelta(t, 9.765625, back.MemoryUsage.UtilizationPercentage, 1e-9)
	assert.Equal(t, 1.0, back.UptimeInDays)
	assert.Equal(t, s.Operations, back.Operations)
	assert.Equal(t, s.DBSize, back.DBSize)
	assert.Equal(t, s.Slowlog, back.Slowlog)
	assert.Equal(t, int64(2048), back.MemoryAnalysis.WastedBytes)
}

func TestRow_Snapshot_NilSlowlog(t *testing.T) {
	row := &Row{Timestamp: time.Now()}
	s := row.Snapshot()
	assert.NotNil(t, s.Slowlog)
	assert.Empty(t, s.Slowlog)
}

func TestRow_JSONColumnNames(t *testing.T) {
	data, err := json.Marshal(NewRow("c", sampleSnapshot()))
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, column := range []string{
		"connection_id", "hit_ratio", "cache_hits", "cache_misses", "memory_used_bytes",
		"memory_peak_bytes", "memory_total_bytes", "cpu_utilization", "total_commands_processed",
		"avg_response_time", "operations", "cache_levels", "mem_fragmentation_ratio",
		"evicted_keys", "expired_keys", "rdb_last_save_time", "aof_current_size",
		"last_fork_usec", "connected_clients", "max_clients", "slowlog", "uptime_in_seconds",
	} {
		assert.Contains(t, fields, column)
	}
}

func TestCoalesce(t *testing.T) {
	older := &Snapshot{Timestamp: 1000}
	newer := &Snapshot{Timestamp: 2000}
	tie := &Snapshot{Timestamp: 1000}

	assert.Nil(t, Coalesce(nil, nil))
	assert.Same(t, older, Coalesce(older, nil))
	assert.Same(t, newer, Coalesce(nil, newer))
	assert.Same(t, newer, Coalesce(older, newer))
	assert.Same(t, newer, Coalesce(newer, older))
	assert.Same(t, older, Coalesce(older, tie))
}

func TestBytesToMB(t *testing.T) {
	assert.Equal(t, int64(100), BytesToMB(104857600))
	assert.Equal(t, int64(1), BytesToMB(524288))
	assert.Equal(t, int64(0), BytesToMB(524287))
}
