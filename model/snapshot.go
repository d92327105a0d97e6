package model

import "time"

const bytesPerMB = 1024 * 1024

// Snapshot is one point-in-time set of server metrics produced by a single
// diagnostic session. Every numeric field is zero when the server omits it.
type Snapshot struct {
	// Seq is assigned by storage, monotonic per connection. Zero when not persisted.
	Seq       int64 `json:"seq,omitempty"`
	Timestamp int64 `json:"timestamp"` // unix milliseconds

	OverallHitRatio        float64 `json:"overallHitRatio"`
	TotalRequests          int64   `json:"totalRequests"`
	KeyspaceHits           int64   `json:"keyspaceHits"`
	KeyspaceMisses         int64   `json:"keyspaceMisses"`
	InstantaneousOpsPerSec int64   `json:"instantaneousOpsPerSec"`
	AvgResponseTime        float64 `json:"avgResponseTime"` // milliseconds

	MemoryUsage         MemoryUsage `json:"memoryUsage"`
	MemoryUsedBytes     int64       `json:"memoryUsedBytes"`
	MemoryPeakBytes     int64       `json:"memoryPeakBytes"`
	MemoryTotalBytes    int64       `json:"memoryTotalBytes"`
	UsedMemoryHuman     string      `json:"usedMemoryHuman"`
	UsedMemoryPeakHuman string      `json:"usedMemoryPeakHuman"`

	Operations Operations `json:"operations"`

	// CPUUtilization mirrors used_cpu_sys, kept for the persisted cpu_utilization column.
	CPUUtilization float64  `json:"cpuUtilization"`
	CPUUsage       CPUUsage `json:"cpuUsage"`

	MemoryAnalysis MemoryAnalysis `json:"memoryAnalysis"`
	Persistence    Persistence    `json:"persistence"`
	Clients        Clients        `json:"clients"`

	Slowlog []SlowlogEntry `json:"slowlog"`
	DBSize  int64          `json:"dbSize"`

	UptimeInSeconds int64   `json:"uptimeInSeconds"`
	UptimeInDays    float64 `json:"uptimeInDays"`
	RedisVersion    string  `json:"redisVersion,omitempty"`
}

// MemoryUsage values are megabytes.
type MemoryUsage struct {
	Used                  int64   `json:"used"`
	Peak                  int64   `json:"peak"`
	Total                 int64   `json:"total"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
}

type Operations struct {
	Reads   int64 `json:"reads"`
	Writes  int64 `json:"writes"`
	Deletes int64 `json:"deletes"`
}

func (o Operations) Total() int64 {
	return o.Reads + o.Writes + o.Deletes
}

// CPUUsage holds cumulative CPU seconds. InstantaneousCPUPercentage is the
// lifetime average (sys+user)/uptime, not a point-in-time rate.
type CPUUsage struct {
	UsedCPUSys                 float64 `json:"usedCpuSys"`
	UsedCPUUser                float64 `json:"usedCpuUser"`
	InstantaneousCPUPercentage float64 `json:"instantaneousCpuPercentage"`
}

func (c CPUUsage) Seconds() float64 {
	return c.UsedCPUSys + c.UsedCPUUser
}

type MemoryAnalysis struct {
	FragmentationRatio float64 `json:"fragmentationRatio"`
	EvictedKeys        int64   `json:"evictedKeys"`
	ExpiredKeys        int64   `json:"expiredKeys"`
	// WastedBytes is used_memory_rss - used_memory, floored at zero.
	WastedBytes int64 `json:"wastedBytes"`
}

type Persistence struct {
	RdbLastSaveTime         int64   `json:"rdbLastSaveTime"`
	RdbChangesSinceLastSave int64   `json:"rdbChangesSinceLastSave"`
	AofCurrentSize          int64   `json:"aofCurrentSize"`
	AofBaseSize             int64   `json:"aofBaseSize"`
	LastForkUsec            int64   `json:"lastForkUsec"`
	RdbLastBgsaveTimeSec    int64   `json:"rdbLastBgsaveTimeSec"`
	CurrentCowSize          int64   `json:"currentCowSize"`
	CurrentForkPerc         float64 `json:"currentForkPerc"`
	RdbLastCowSize          int64   `json:"rdbLastCowSize"`
	RdbBgsaveInProgress     int64   `json:"rdbBgsaveInProgress"`
	TotalForks              int64   `json:"totalForks"`
}

type Clients struct {
	ConnectedClients         int64 `json:"connectedClients"`
	TotalConnectionsReceived int64 `json:"totalConnectionsReceived"`
	RejectedConnections      int64 `json:"rejectedConnections"`
	MaxClients               int64 `json:"maxClients"`
}

// SlowlogEntry is one SLOWLOG GET record. Duration is in microseconds.
type SlowlogEntry struct {
	ID         int64    `json:"id"`
	Timestamp  int64    `json:"timestamp"`
	Duration   int64    `json:"duration"`
	Command    []string `json:"command"`
	ClientIP   string   `json:"clientIp,omitempty"`
	ClientName string   `json:"clientName,omitempty"`
}

// UptimeRecord is one append-only observation of a server's uptime.
type UptimeRecord struct {
	ConnectionID   string    `json:"connection_id"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	RecordedAt     time.Time `json:"recorded_at"`
	ServerRebooted bool      `json:"server_rebooted"`
}

// RebootEvent is emitted when a record's uptime is lower than its predecessor's.
type RebootEvent struct {
	ConnectionID          string    `json:"connection_id"`
	PreviousUptimeSeconds int64     `json:"previous_uptime_seconds"`
	RebootTime            time.Time `json:"reboot_time"`
	DetectedAt            time.Time `json:"detected_at"`
}

// BytesToMB rounds to the nearest megabyte.
func BytesToMB(b int64) int64 {
	return (b + bytesPerMB/2) / bytesPerMB
}

// Time returns the snapshot timestamp as time.Time.
func (s *Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Coalesce picks the snapshot to display when both a polled and a live
// snapshot are available. The newer one wins; on a tie the polled snapshot
// wins because it carries the full diagnostic payload.
func Coalesce(polled, live *Snapshot) *Snapshot {
	switch {
	case polled == nil:
		return live
	case live == nil:
		return polled
	case live.Timestamp > polled.Timestamp:
		return live
	default:
		return polled
	}
}
