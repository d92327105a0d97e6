package health

import (
	"fmt"

	"github.com/cacheoracle/cacheoracle/model"
)

type Level string

const (
	LevelCritical Level = "critical"
	LevelWarning  Level = "warning"
	LevelInfo     Level = "info"
	LevelSuccess  Level = "success"
)

type Insight struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type rule func(s *model.Snapshot) *Insight

// rules run in this order; each one may contribute at most one insight.
var rules = []rule{
	fragmentationRule,
	hitRatioRule,
	cpuRule,
	memoryRule,
	latencyRule,
	throughputRule,
	workloadRule,
	uptimeRule,
}

var nominal = Insight{
	Level:   LevelSuccess,
	Title:   "All systems nominal",
	Message: "No performance issues detected.",
}

// Insights evaluates every rule against s. When nothing fires it returns a
// single nominal insight.
func Insights(s *model.Snapshot) []Insight {
	insights := make([]Insight, 0, len(rules))
	for _, r := range rules {
		if in := r(s); in != nil {
			insights = append(insights, *in)
		}
	}
	if len(insights) == 0 {
		insights = append(insights, nominal)
	}
	return insights
}

func fragmentationRule(s *model.Snapshot) *Insight {
	ratio := s.MemoryAnalysis.FragmentationRatio
	if ratio <= 1.5 {
		return nil
	}
	return &Insight{
		Level:   LevelCritical,
		Title:   "High memory fragmentation",
		Message: fmt.Sprintf("Fragmentation ratio is %.2f. Consider enabling active defragmentation or restarting during a maintenance window.", ratio),
	}
}

func hitRatioRule(s *model.Snapshot) *Insight {
	ratio := s.OverallHitRatio
	switch {
	case ratio < 0.5:
		return &Insight{
			Level:   LevelCritical,
			Title:   "Low cache hit ratio",
			Message: fmt.Sprintf("Only %.1f%% of lookups hit the cache. Review key expiry and caching strategy.", ratio*100),
		}
	case ratio < 0.7:
		return &Insight{
			Level:   LevelWarning,
			Title:   "Cache hit ratio can be improved",
			Message: fmt.Sprintf("Hit ratio is %.1f%%. Warming hot keys or raising TTLs may help.", ratio*100),
		}
	case ratio > 0.95:
		return &Insight{
			Level:   LevelSuccess,
			Title:   "Excellent cache hit ratio",
			Message: fmt.Sprintf("%.1f%% of lookups are served from the cache.", ratio*100),
		}
	}
	return nil
}

func cpuRule(s *model.Snapshot) *Insight {
	seconds := s.CPUUsage.Seconds()
	if seconds <= cpuBusySeconds {
		return nil
	}
	return &Insight{
		Level:   LevelWarning,
		Title:   "High CPU usage",
		Message: fmt.Sprintf("The server has consumed %.0f CPU seconds. Look for expensive commands in the slowlog.", seconds),
	}
}

func memoryRule(s *model.Snapshot) *Insight {
	used := s.MemoryUsage.UtilizationPercentage / 100
	switch {
	case used > 0.9:
		return &Insight{
			Level:   LevelCritical,
			Title:   "High memory usage",
			Message: fmt.Sprintf("%.1f%% of system memory is in use. Evictions or OOM errors are likely.", used*100),
		}
	case used > 0.75:
		return &Insight{
			Level:   LevelWarning,
			Title:   "Moderate memory usage",
			Message: fmt.Sprintf("%.1f%% of system memory is in use. Plan for additional capacity.", used*100),
		}
	}
	return nil
}

func latencyRule(s *model.Snapshot) *Insight {
	ms := s.AvgResponseTime
	switch {
	case ms > 10:
		return &Insight{
			Level:   LevelWarning,
			Title:   "High response time",
			Message: fmt.Sprintf("Average round trip is %.2f ms. Check network distance and server load.", ms),
		}
	case ms < 1:
		return &Insight{
			Level:   LevelSuccess,
			Title:   "Excellent response time",
			Message: fmt.Sprintf("Average round trip is %.2f ms.", ms),
		}
	}
	return nil
}

func throughputRule(s *model.Snapshot) *Insight {
	ops := s.InstantaneousOpsPerSec
	switch {
	case ops > 10000:
		return &Insight{
			Level:   LevelInfo,
			Title:   "High load",
			Message: fmt.Sprintf("The server is handling %d operations per second.", ops),
		}
	case ops < 100:
		return &Insight{
			Level:   LevelInfo,
			Title:   "Low traffic",
			Message: fmt.Sprintf("Only %d operations per second. The instance may be oversized.", ops),
		}
	}
	return nil
}

func workloadRule(s *model.Snapshot) *Insight {
	total := s.Operations.Total()
	if total <= 0 {
		return nil
	}
	writes := float64(s.Operations.Writes) / float64(total)
	reads := float64(s.Operations.Reads) / float64(total)
	switch {
	case writes > 0.7:
		return &Insight{
			Level:   LevelInfo,
			Title:   "Write-heavy workload",
			Message: fmt.Sprintf("%.0f%% of tracked operations are writes. Review persistence settings.", writes*100),
		}
	case reads > 0.9:
		return &Insight{
			Level:   LevelInfo,
			Title:   "Read-heavy workload",
			Message: fmt.Sprintf("%.0f%% of tracked operations are reads. Read replicas could spread the load.", reads*100),
		}
	}
	return nil
}

func uptimeRule(s *model.Snapshot) *Insight {
	days := s.UptimeInDays
	if days <= 30 {
		return nil
	}
	return &Insight{
		Level:   LevelSuccess,
		Title:   "Stable uptime",
		Message: fmt.Sprintf("The server has been running for %.0f days.", days),
	}
}
