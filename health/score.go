// Package health scores a snapshot and derives human-readable insights from it.
package health

import (
	"math"

	"github.com/cacheoracle/cacheoracle/calc"
	"github.com/cacheoracle/cacheoracle/model"
)

const (
	hitWeight        = 0.40
	latencyWeight    = 0.25
	cpuWeight        = 0.25
	throughputWeight = 0.10

	cpuBusySeconds = 1000
	cpuIdleSeconds = 10
	cpuIdleScore   = 80
)

type Status string

const (
	StatusCritical     Status = "Critical"
	StatusPoor         Status = "Poor"
	StatusBelowAverage Status = "Below Average"
	StatusGood         Status = "Good"
	StatusVeryGood     Status = "Very Good"
	StatusExcellent    Status = "Excellent"
)

// Assessment is the scored view of one snapshot.
type Assessment struct {
	Score    int       `json:"score"`
	Status   Status    `json:"status"`
	Insights []Insight `json:"insights"`

	// AOFGrowth is the AOF size growth over its rewrite base, in percent.
	AOFGrowth               float64 `json:"aofGrowthPercentage"`
	FragmentationStatus     string  `json:"fragmentationStatus"`
	ClientUtilizationStatus string  `json:"clientUtilizationStatus"`
	CPUStatus               string  `json:"cpuStatus"`
}

func Assess(s *model.Snapshot) *Assessment {
	score := Score(s)
	return &Assessment{
		Score:                   score,
		Status:                  StatusFor(score),
		Insights:                Insights(s),
		AOFGrowth:               calc.AOFGrowthPercentage(s.Persistence.AofCurrentSize, s.Persistence.AofBaseSize),
		FragmentationStatus:     FragmentationStatus(s.MemoryAnalysis.FragmentationRatio),
		ClientUtilizationStatus: ClientUtilizationStatus(s.Clients),
		CPUStatus:               CPUStatus(s.CPUUsage.InstantaneousCPUPercentage),
	}
}

// Score blends hit ratio, latency, CPU and throughput into [0,100].
func Score(s *model.Snapshot) int {
	sum := hitTerm(s.OverallHitRatio)*hitWeight +
		latencyTerm(s.AvgResponseTime)*latencyWeight +
		cpuTerm(s.CPUUsage.Seconds())*cpuWeight +
		throughputTerm(s.InstantaneousOpsPerSec)*throughputWeight
	return int(math.Round(calc.Clamp(sum, 0, 100)))
}

func hitTerm(ratio float64) float64 {
	return calc.Clamp(ratio, 0, 1) * 100
}

// latencyTerm penalizes response time superlinearly.
func latencyTerm(ms float64) float64 {
	if ms <= 0 || math.IsNaN(ms) {
		return 100
	}
	return math.Max(0, 100-math.Pow(ms, 1.5))
}

// cpuTerm treats very low cumulative CPU as possible underutilization
// rather than perfect health.
func cpuTerm(cpuSeconds float64) float64 {
	switch {
	case cpuSeconds > cpuBusySeconds:
		return math.Max(0, 100-cpuSeconds/cpuBusySeconds*10)
	case cpuSeconds < cpuIdleSeconds:
		return cpuIdleScore
	}
	return 100
}

func throughputTerm(opsPerSec int64) float64 {
	if opsPerSec <= 0 {
		return 0
	}
	return math.Min(100, float64(opsPerSec)/1000*20)
}

func StatusFor(score int) Status {
	switch {
	case score < 30:
		return StatusCritical
	case score < 50:
		return StatusPoor
	case score < 65:
		return StatusBelowAverage
	case score < 80:
		return StatusGood
	case score < 90:
		return StatusVeryGood
	}
	return StatusExcellent
}

// FragmentationStatus labels the memory fragmentation ratio.
func FragmentationStatus(ratio float64) string {
	switch {
	case ratio > 1.5:
		return "High"
	case ratio > 1.2:
		return "Medium"
	}
	return "Normal"
}

// ClientUtilizationStatus labels connected clients as a share of maxclients.
func ClientUtilizationStatus(c model.Clients) string {
	utilization := calc.ClientUtilization(c.ConnectedClients, c.MaxClients)
	switch {
	case utilization > 80:
		return "Critical"
	case utilization > 60:
		return "High"
	case utilization > 40:
		return "Medium"
	}
	return "Low"
}

func CPUStatus(percentage float64) string {
	switch {
	case percentage > 80:
		return "High"
	case percentage > 50:
		return "Medium"
	}
	return "Low"
}
