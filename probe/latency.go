package probe

import (
	"context"
	"time"
)

// Pinger is anything that can round-trip a PING.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeLatency pings p n times in sequence and returns the mean round trip
// in milliseconds.
func ProbeLatency(ctx context.Context, p Pinger, n int) (float64, error) {
	if n <= 0 {
		n = DefaultLatencySamples
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return 0, classify(err, "latency probe failed")
		}
		total += time.Since(start)
	}
	return float64(total) / float64(n) / float64(time.Millisecond), nil
}
