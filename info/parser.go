// Package info turns the text reply of the INFO command into a Snapshot.
package info

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cacheoracle/cacheoracle/calc"
	"github.com/cacheoracle/cacheoracle/errs"
	"github.com/cacheoracle/cacheoracle/model"
)

type accumulator struct {
	snapshot *model.Snapshot
	rss      int64
}

type field struct {
	name string
	set  func(acc *accumulator, value string)
}

// fields is the ordered list of INFO keys the parser understands.
var fields = []field{
	{"redis_version", func(a *accumulator, v string) { a.snapshot.RedisVersion = v }},
	{"uptime_in_seconds", func(a *accumulator, v string) { a.snapshot.UptimeInSeconds = parseInt(v) }},

	{"connected_clients", func(a *accumulator, v string) { a.snapshot.Clients.ConnectedClients = parseInt(v) }},
	{"maxclients", func(a *accumulator, v string) { a.snapshot.Clients.MaxClients = parseInt(v) }},

	{"used_memory", func(a *accumulator, v string) { a.snapshot.MemoryUsedBytes = parseInt(v) }},
	{"used_memory_human", func(a *accumulator, v string) { a.snapshot.UsedMemoryHuman = v }},
	{"used_memory_rss", func(a *accumulator, v string) { a.rss = parseInt(v) }},
	{"used_memory_peak", func(a *accumulator, v string) { a.snapshot.MemoryPeakBytes = parseInt(v) }},
	{"used_memory_peak_human", func(a *accumulator, v string) { a.snapshot.UsedMemoryPeakHuman = v }},
	{"total_system_memory", func(a *accumulator, v string) { a.snapshot.MemoryTotalBytes = parseInt(v) }},
	{"mem_fragmentation_ratio", func(a *accumulator, v string) {
		a.snapshot.MemoryAnalysis.FragmentationRatio = parseFloat(v)
	}},

	{"rdb_changes_since_last_save", func(a *accumulator, v string) {
		a.snapshot.Persistence.RdbChangesSinceLastSave = parseInt(v)
	}},
	{"rdb_bgsave_in_progress", func(a *accumulator, v string) { a.snapshot.Persistence.RdbBgsaveInProgress = parseInt(v) }},
	{"rdb_last_save_time", func(a *accumulator, v string) { a.snapshot.Persistence.RdbLastSaveTime = parseInt(v) }},
	{"rdb_last_bgsave_time_sec", func(a *accumulator, v string) { a.snapshot.Persistence.RdbLastBgsaveTimeSec = parseInt(v) }},
	{"rdb_last_cow_size", func(a *accumulator, v string) { a.snapshot.Persistence.RdbLastCowSize = parseInt(v) }},
	{"current_cow_size", func(a *accumulator, v string) { a.snapshot.Persistence.CurrentCowSize = parseInt(v) }},
	{"current_fork_perc", func(a *accumulator, v string) { a.snapshot.Persistence.CurrentForkPerc = parseFloat(v) }},
	{"aof_current_size", func(a *accumulator, v string) { a.snapshot.Persistence.AofCurrentSize = parseInt(v) }},
	{"aof_base_size", func(a *accumulator, v string) { a.snapshot.Persistence.AofBaseSize = parseInt(v) }},

	{"total_connections_received", func(a *accumulator, v string) {
		a.snapshot.Clients.TotalConnectionsReceived = parseInt(v)
	}},
	{"total_commands_processed", func(a *accumulator, v string) { a.snapshot.TotalRequests = parseInt(v) }},
	{"instantaneous_ops_per_sec", func(a *accumulator, v string) { a.snapshot.InstantaneousOpsPerSec = parseInt(v) }},
	{"rejected_connections", func(a *accumulator, v string) { a.snapshot.Clients.RejectedConnections = parseInt(v) }},
	{"expired_keys", func(a *accumulator, v string) { a.snapshot.MemoryAnalysis.ExpiredKeys = parseInt(v) }},
	{"evicted_keys", func(a *accumulator, v string) { a.snapshot.MemoryAnalysis.EvictedKeys = parseInt(v) }},
	{"keyspace_hits", func(a *accumulator, v string) { a.snapshot.KeyspaceHits = parseInt(v) }},
	{"keyspace_misses", func(a *accumulator, v string) { a.snapshot.KeyspaceMisses = parseInt(v) }},
	{"latest_fork_usec", func(a *accumulator, v string) { a.snapshot.Persistence.LastForkUsec = parseInt(v) }},
	{"total_forks", func(a *accumulator, v string) { a.snapshot.Persistence.TotalForks = parseInt(v) }},

	{"used_cpu_sys", func(a *accumulator, v string) {
		a.snapshot.CPUUsage.UsedCPUSys = parseFloat(v)
		a.snapshot.CPUUtilization = a.snapshot.CPUUsage.UsedCPUSys
	}},
	{"used_cpu_user", func(a *accumulator, v string) { a.snapshot.CPUUsage.UsedCPUUser = parseFloat(v) }},
}

var fieldIndex = make(map[string]int, len(fields))

func init() {
	for i, f := range fields {
		fieldIndex[f.name] = i
	}
}

// fieldNames returns the INFO keys the parser recognizes, in dispatch order.
func fieldNames() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

func newAccumulator() *accumulator {
	return &accumulator{
		snapshot: &model.Snapshot{
			Slowlog: []model.SlowlogEntry{},
		},
	}
}

// Parse builds a snapshot from the text of `INFO all`. Missing or malformed
// fields stay at zero; only an empty payload is an error. DBSize, Slowlog and
// AvgResponseTime are left for the caller.
func Parse(text string) (*model.Snapshot, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.ParseError, "empty diagnostic payload")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	acc := newAccumulator()
	for _, section := range strings.Split(text, "\n\n") {
		for _, line := range strings.Split(section, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			splits := strings.SplitN(line, ":", 2)
			if len(splits) != 2 || splits[0] == "" || splits[1] == "" {
				continue
			}
			acc.apply(splits[0], splits[1])
		}
	}
	return acc.finish(), nil
}

func (acc *accumulator) apply(key, value string) {
	if strings.HasPrefix(key, cmdstatPrefix) {
		addCommandStat(&acc.snapshot.Operations, key, value)
		return
	}
	if i, ok := fieldIndex[key]; ok {
		fields[i].set(acc, value)
	}
}

func (acc *accumulator) finish() *model.Snapshot {
	s := acc.snapshot
	s.OverallHitRatio = calc.HitRatio(s.KeyspaceHits, s.KeyspaceMisses)

	s.MemoryUsage.Used = model.BytesToMB(s.MemoryUsedBytes)
	s.MemoryUsage.Peak = model.BytesToMB(s.MemoryPeakBytes)
	s.MemoryUsage.Total = model.BytesToMB(s.MemoryTotalBytes)
	s.MemoryUsage.UtilizationPercentage = calc.UtilizationPercentage(s.MemoryUsage.Used, s.MemoryUsage.Total)

	s.CPUUsage.InstantaneousCPUPercentage = calc.CPUPercentage(
		s.CPUUsage.UsedCPUSys, s.CPUUsage.UsedCPUUser, s.UptimeInSeconds)
	s.UptimeInDays = calc.UptimeDays(s.UptimeInSeconds)

	if acc.rss > s.MemoryUsedBytes {
		s.MemoryAnalysis.WastedBytes = acc.rss - s.MemoryUsedBytes
	}
	return s
}

// parseInt reads the leading integer of v, 0 if there is none.
func parseInt(v string) int64 {
	v = strings.TrimSpace(v)
	end := 0
	if end < len(v) && (v[end] == '-' || v[end] == '+') {
		end++
	}
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(v[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseFloat reads the leading decimal number of v, 0 if there is none.
func parseFloat(v string) float64 {
	v = strings.TrimSpace(v)
	end := 0
	if end < len(v) && (v[end] == '-' || v[end] == '+') {
		end++
	}
	seenDot := false
	for end < len(v) {
		c := rune(v[end])
		if c == '.' && !seenDot {
			seenDot = true
		} else if !unicode.IsDigit(c) {
			break
		}
		end++
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v[:end], "."), 64)
	if err != nil {
		return 0
	}
	return f
}
