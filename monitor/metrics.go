package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	collections   *prometheus.CounterVec
	errors        *prometheus.CounterVec
	persistWarns  *prometheus.CounterVec
	collectTimeMs prometheus.Histogram
	healthScores  prometheus.Histogram
}

var metrics *Metrics

const (
	Namespace = "infra"
	Subsystem = "cacheoracle_monitor"
)

func setupMetrics() {
	metrics = &Metrics{
		collections:   newCounterVecHelper("collections", "outcome"),
		errors:        newCounterVecHelper("errors", "kind"),
		persistWarns:  newCounterVecHelper("persist_warnings", "op"),
		collectTimeMs: newHistogramHelper("collect_ms", prometheus.ExponentialBuckets(1, 2, 15)),
		healthScores:  newHistogramHelper("health_score", prometheus.LinearBuckets(0, 10, 11)),
	}
}

func newCounterVecHelper(name string, labels ...string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{}
	opts.Namespace = Namespace
	opts.Subsystem = Subsystem
	opts.Name = name
	opts.Help = name
	counters := prometheus.NewCounterVec(opts, labels)
	prometheus.MustRegister(counters)
	return counters
}

func newHistogramHelper(name string, buckets []float64) prometheus.Histogram {
	opts := prometheus.HistogramOpts{}
	opts.Namespace = Namespace
	opts.Subsystem = Subsystem
	opts.Name = name
	opts.Help = name
	opts.Buckets = buckets
	histogram := prometheus.NewHistogram(opts)
	prometheus.MustRegister(histogram)
	return histogram
}

func init() {
	setupMetrics()
}
