package model

import (
	"time"

	"github.com/cacheoracle/cacheoracle/calc"
)

// CacheLevel is a per-level hit breakdown. The keyspace is reported as level 1.
type CacheLevel struct {
	Level           int     `json:"level"`
	HitRatio        float64 `json:"hitRatio"`
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	TotalRequests   int64   `json:"totalRequests"`
	AvgResponseTime float64 `json:"avgResponseTime"`
}

// KeyspaceLevel summarizes the keyspace counters of s as a single cache level.
func KeyspaceLevel(s *Snapshot) CacheLevel {
	return CacheLevel{
		Level:           1,
		HitRatio:        s.OverallHitRatio,
		Hits:            s.KeyspaceHits,
		Misses:          s.KeyspaceMisses,
		TotalRequests:   s.KeyspaceHits + s.KeyspaceMisses,
		AvgResponseTime: s.AvgResponseTime,
	}
}

// Row is the flat persisted form of a snapshot, one per observation keyed by
// connection and timestamp. Realtime notifications carry the same shape.
type Row struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`

	HitRatio               float64 `json:"hit_ratio"`
	CacheHits              int64   `json:"cache_hits"`
	CacheMisses            int64   `json:"cache_misses"`
	TotalCommandsProcessed int64   `json:"total_commands_processed"`
	InstantaneousOpsPerSec int64   `json:"instantaneous_ops_per_sec"`
	AvgResponseTime        float64 `json:"avg_response_time"`
	DBSize                 int64   `json:"db_size"`

	MemoryUsedBytes       int64   `json:"memory_used_bytes"`
	MemoryPeakBytes       int64   `json:"memory_peak_bytes"`
	MemoryTotalBytes      int64   `json:"memory_total_bytes"`
	MemoryWasted          int64   `json:"memory_wasted"`
	MemFragmentationRatio float64 `json:"mem_fragmentation_ratio"`
	EvictedKeys           int64   `json:"evicted_keys"`
	ExpiredKeys           int64   `json:"expired_keys"`

	CPUUtilization             float64 `json:"cpu_utilization"`
	UsedCPUSys                 float64 `json:"used_cpu_sys"`
	UsedCPUUser                float64 `json:"used_cpu_user"`
	InstantaneousCPUPercentage float64 `json:"instantaneous_cpu_percentage"`

	RdbLastSaveTime         int64   `json:"rdb_last_save_time"`
	RdbChangesSinceLastSave int64   `json:"rdb_changes_since_last_save"`
	RdbLastBgsaveTimeSec    int64   `json:"rdb_last_bgsave_time_sec"`
	RdbLastCowSize          int64   `json:"rdb_last_cow_size"`
	RdbBgsaveInProgress     int64   `json:"rdb_bgsave_in_progress"`
	AofCurrentSize          int64   `json:"aof_current_size"`
	AofBaseSize             int64   `json:"aof_base_size"`
	LastForkUsec            int64   `json:"last_fork_usec"`
	CurrentCowSize          int64   `json:"current_cow_size"`
	CurrentForkPerc         float64 `json:"current_fork_perc"`
	TotalForks              int64   `json:"total_forks"`

	ConnectedClients         int64 `json:"connected_clients"`
	TotalConnectionsReceived int64 `json:"total_connections_received"`
	RejectedConnections      int64 `json:"rejected_connections"`
	MaxClients               int64 `json:"max_clients"`

	UptimeInSeconds int64  `json:"uptime_in_seconds"`
	RedisVersion    string `json:"redis_version"`

	Operations  Operations     `json:"operations"`
	CacheLevels []CacheLevel   `json:"cache_levels"`
	Slowlog     []SlowlogEntry `json:"slowlog"`
}

// NewRow flattens s for persistence under connID.
func NewRow(connID string, s *Snapshot) *Row {
	return &Row{
		ConnectionID: connID,
		Seq:          s.Seq,
		Timestamp:    s.Time().UTC(),

		HitRatio:               s.OverallHitRatio,
		CacheHits:              s.KeyspaceHits,
		CacheMisses:            s.KeyspaceMisses,
		TotalCommandsProcessed: s.TotalRequests,
		InstantaneousOpsPerSec: s.InstantaneousOpsPerSec,
		AvgResponseTime:        s.AvgResponseTime,
		DBSize:                 s.DBSize,

		MemoryUsedBytes:       s.MemoryUsedBytes,
		MemoryPeakBytes:       s.MemoryPeakBytes,
		MemoryTotalBytes:      s.MemoryTotalBytes,
		MemoryWasted:          s.MemoryAnalysis.WastedBytes,
		MemFragmentationRatio: s.MemoryAnalysis.FragmentationRatio,
		EvictedKeys:           s.MemoryAnalysis.EvictedKeys,
		ExpiredKeys:           s.MemoryAnalysis.ExpiredKeys,

		CPUUtilization:             s.CPUUtilization,
		UsedCPUSys:                 s.CPUUsage.UsedCPUSys,
		UsedCPUUser:                s.CPUUsage.UsedCPUUser,
		InstantaneousCPUPercentage: s.CPUUsage.InstantaneousCPUPercentage,

		RdbLastSaveTime:         s.Persistence.RdbLastSaveTime,
		RdbChangesSinceLastSave: s.Persistence.RdbChangesSinceLastSave,
		RdbLastBgsaveTimeSec:    s.Persistence.RdbLastBgsaveTimeSec,
		RdbLastCowSize:          s.Persistence.RdbLastCowSize,
		RdbBgsaveInProgress:     s.Persistence.RdbBgsaveInProgress,
		AofCurrentSize:          s.Persistence.AofCurrentSize,
		AofBaseSize:             s.Persistence.AofBaseSize,
		LastForkUsec:            s.Persistence.LastForkUsec,
		CurrentCowSize:          s.Persistence.CurrentCowSize,
		CurrentForkPerc:         s.Persistence.CurrentForkPerc,
		TotalForks:              s.Persistence.TotalForks,

		ConnectedClients:         s.Clients.ConnectedClients,
		TotalConnectionsReceived: s.Clients.TotalConnectionsReceived,
		RejectedConnections:      s.Clients.RejectedConnections,
		MaxClients:               s.Clients.MaxClients,

		UptimeInSeconds: s.UptimeInSeconds,
		RedisVersion:    s.RedisVersion,

		Operations:  s.Operations,
		CacheLevels: []CacheLevel{KeyspaceLevel(s)},
		Slowlog:     s.Slowlog,
	}
}

// Snapshot rebuilds the canonical snapshot from a persisted row. Values that
// are only ever derived (ratios, megabytes) are recomputed from the raw columns.
func (r *Row) Snapshot() *Snapshot {
	s := &Snapshot{
		Seq:                    r.Seq,
		Timestamp:              r.Timestamp.UnixMilli(),
		OverallHitRatio:        r.HitRatio,
		TotalRequests:          r.TotalCommandsProcessed,
		KeyspaceHits:           r.CacheHits,
		KeyspaceMisses:         r.CacheMisses,
		InstantaneousOpsPerSec: r.InstantaneousOpsPerSec,
		AvgResponseTime:        r.AvgResponseTime,
		MemoryUsedBytes:        r.MemoryUsedBytes,
		MemoryPeakBytes:        r.MemoryPeakBytes,
		MemoryTotalBytes:       r.MemoryTotalBytes,
		MemoryUsage: MemoryUsage{
			Used:  BytesToMB(r.MemoryUsedBytes),
			Peak:  BytesToMB(r.MemoryPeakBytes),
			Total: BytesToMB(r.MemoryTotalBytes),
		},
		Operations:     r.Operations,
		CPUUtilization: r.CPUUtilization,
		CPUUsage: CPUUsage{
			UsedCPUSys:                 r.UsedCPUSys,
			UsedCPUUser:                r.UsedCPUUser,
			InstantaneousCPUPercentage: r.InstantaneousCPUPercentage,
		},
		MemoryAnalysis: MemoryAnalysis{
			FragmentationRatio: r.MemFragmentationRatio,
			EvictedKeys:        r.EvictedKeys,
			ExpiredKeys:        r.ExpiredKeys,
			WastedBytes:        r.MemoryWasted,
		},
		Persistence: Persistence{
			RdbLastSaveTime:         r.RdbLastSaveTime,
			RdbChangesSinceLastSave: r.RdbChangesSinceLastSave,
			AofCurrentSize:          r.AofCurrentSize,
			AofBaseSize:             r.AofBaseSize,
			LastForkUsec:            r.LastForkUsec,
			RdbLastBgsaveTimeSec:    r.RdbLastBgsaveTimeSec,
			CurrentCowSize:          r.CurrentCowSize,
			CurrentForkPerc:         r.CurrentForkPerc,
			RdbLastCowSize:          r.RdbLastCowSize,
			RdbBgsaveInProgress:     r.RdbBgsaveInProgress,
			TotalForks:              r.TotalForks,
		},
		Clients: Clients{
			ConnectedClients:         r.ConnectedClients,
			TotalConnectionsReceived: r.TotalConnectionsReceived,
			RejectedConnections:      r.RejectedConnections,
			MaxClients:               r.MaxClients,
		},
		Slowlog:         r.Slowlog,
		DBSize:          r.DBSize,
		UptimeInSeconds: r.UptimeInSeconds,
		UptimeInDays:    calc.UptimeDays(r.UptimeInSeconds),
		RedisVersion:    r.RedisVersion,
	}
	s.MemoryUsage.UtilizationPercentage = calc.UtilizationPercentage(s.MemoryUsage.Used, s.MemoryUsage.Total)
	if s.Slowlog == nil {
		s.Slowlog = []SlowlogEntry{}
	}
	return s
}
