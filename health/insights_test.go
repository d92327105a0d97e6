package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cacheoracle/cacheoracle/model"
)

func titles(insights []Insight) []string {
	out := make([]string, len(insights))
	for i, in := range insights {
		out[i] = in.Title
	}
	return out
}

func TestInsights_Nominal(t *testing.T) {
	insights := Insights(quiet())
	assert.Len(t, insights, 1)
	assert.Equal(t, LevelSuccess, insights[0].Level)
	assert.Equal(t, "All systems nominal", insights[0].Title)
}

func TestInsights_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *model.Snapshot)
		title  string
	}{
		{"fragmentation", func(s *model.Snapshot) { s.MemoryAnalysis.FragmentationRatio = 1.8 }, "High memory fragmentation"},
		{"low hit ratio", func(s *model.Snapshot) { s.OverallHitRatio = 0.3 }, "Low cache hit ratio"},
		{"improvable hit ratio", func(s *model.Snapshot) { s.OverallHitRatio = 0.6 }, "Cache hit ratio can be improved"},
		{"excellent hit ratio", func(s *model.Snapshot) { s.OverallHitRatio = 0.99 }, "Excellent cache hit ratio"},
		{"cpu", func(s *model.Snapshot) { s.CPUUsage.UsedCPUUser = 2000 }, "High CPU usage"},
		{"memory high", func(s *model.Snapshot) { s.MemoryUsage.UtilizationPercentage = 95 }, "High memory usage"},
		{"memory moderate", func(s *model.Snapshot) { s.MemoryUsage.UtilizationPercentage = 80 }, "Moderate memory usage"},
		{"slow", func(s *model.Snapshot) { s.AvgResponseTime = 25 }, "High response time"},
		{"fast", func(s *model.Snapshot) { s.AvgResponseTime = 0.4 }, "Excellent response time"},
		{"high load", func(s *model.Snapshot) { s.InstantaneousOpsPerSec = 20000 }, "High load"},
		{"low traffic", func(s *model.Snapshot) { s.InstantaneousOpsPerSec = 10 }, "Low traffic"},
		{"write heavy", func(s *model.Snapshot) { s.Operations = model.Operations{Reads: 10, Writes: 80, Deletes: 10} }, "Write-heavy workload"},
		{"read heavy", func(s *model.Snapshot) { s.Operations = model.Operations{Reads: 95, Writes: 5} }, "Read-heavy workload"},
		{"uptime", func(s *model.Snapshot) { s.UptimeInDays = 45 }, "Stable uptime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := quiet()
			tt.mutate(s)
			assert.Equal(t, []string{tt.title}, titles(Insights(s)))
		})
	}
}

func TestInsights_StableOrder(t *testing.T) {
	s := quiet()
	s.UptimeInDays = 60
	s.AvgResponseTime = 0.2
	s.OverallHitRatio = 0.2
	s.MemoryAnalysis.FragmentationRatio = 2

	expected := []string{
		"High memory fragmentation",
		"Low cache hit ratio",
		"Excellent response time",
		"Stable uptime",
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, expected, titles(Insights(s)))
	}
}
