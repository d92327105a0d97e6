// Package calc holds the derived-metric formulas. Every division is guarded so
// a zero denominator yields 0 rather than NaN or Inf.
package calc

import "math"

const secondsPerDay = 24 * 60 * 60

// HitRatio returns hits/(hits+misses) in [0,1].
func HitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total <= 0 || hits < 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// UtilizationPercentage returns used/total*100.
func UtilizationPercentage(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

// CPUPercentage approximates CPU load as cumulative CPU seconds over uptime.
// This is a lifetime average, not an instantaneous rate.
func CPUPercentage(sysSeconds, userSeconds float64, uptimeSeconds int64) float64 {
	if uptimeSeconds <= 0 {
		return 0
	}
	return (sysSeconds + userSeconds) / float64(uptimeSeconds) * 100
}

// AOFGrowthPercentage returns how much the AOF has grown since its last rewrite.
func AOFGrowthPercentage(currentSize, baseSize int64) float64 {
	if baseSize <= 0 {
		return 0
	}
	return float64(currentSize-baseSize) / float64(baseSize) * 100
}

// ClientUtilization returns connected/max*100.
func ClientUtilization(connected, maxClients int64) float64 {
	return UtilizationPercentage(connected, maxClients)
}

func UptimeDays(uptimeSeconds int64) float64 {
	return float64(uptimeSeconds) / secondsPerDay
}

// Clamp bounds v to [lo, hi]. NaN is treated as lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
