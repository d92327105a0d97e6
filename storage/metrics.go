package storage

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cacheoracle/cacheoracle/errs"
	"github.com/cacheoracle/cacheoracle/model"
)

// Metrics contains storage related metrics
type Metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	reboots    *prometheus.CounterVec
	latencies  *prometheus.HistogramVec
}

var (
	metrics *Metrics
)

const (
	Namespace = "infra"
	Subsystem = "cacheoracle_storage"
)

func setupMetrics() {
	cv := newCounterVecHelper
	metrics = &Metrics{
		operations: cv("operations", "op"),
		failures:   cv("failures", "op"),
		reboots:    cv("reboots_detected"),
		latencies:  newHistogramHelper("latency_ms", "op"),
	}
}

func newCounterVecHelper(name string, labels ...string) *prometheus.CounterVec {
	labels = append([]string{"backend"}, labels...) // all metrics has this common field `backend`
	opts := prometheus.CounterOpts{}
	opts.Namespace = Namespace
	opts.Subsystem = Subsystem
	opts.Name = name
	opts.Help = name
	counters := prometheus.NewCounterVec(opts, labels)
	prometheus.MustRegister(counters)
	return counters
}

func newHistogramHelper(name string, labels ...string) *prometheus.HistogramVec {
	labels = append([]string{"backend"}, labels...)
	opts := prometheus.HistogramOpts{}
	opts.Namespace = Namespace
	opts.Subsystem = Subsystem
	opts.Name = name
	opts.Help = name
	opts.Buckets = prometheus.ExponentialBuckets(1, 2, 14)
	histogram := prometheus.NewHistogramVec(opts, labels)
	prometheus.MustRegister(histogram)
	return histogram
}

func init() {
	setupMetrics()
}

type instrumented struct {
	backend string
	next    Persistence
}

// Instrument records operation counts and latencies of p. Backend failures
// that carry no kind are wrapped as PersistenceError.
func Instrument(backend string, p Persistence) Persistence {
	return &instrumented{backend: backend, next: p}
}

func (i *instrumented) observe(op string, start time.Time, err error) error {
	metrics.operations.WithLabelValues(i.backend, op).Inc()
	metrics.latencies.WithLabelValues(i.backend, op).Observe(float64(time.Since(start).Milliseconds()))
	if err == nil {
		return nil
	}
	metrics.failures.WithLabelValues(i.backend, op).Inc()
	if errs.KindOf(err) != 0 {
		return err
	}
	return errs.Wrap(errs.PersistenceError, err, op+" failed")
}

func (i *instrumented) SaveSnapshot(ctx context.Context, connID string, s *model.Snapshot) (int64, error) {
	start := time.Now()
	seq, err := i.next.SaveSnapshot(ctx, connID, s)
	return seq, i.observe("save_snapshot", start, err)
}

func (i *instrumented) ListSnapshots(ctx context.Context, connID string, limit int) ([]*model.Snapshot, error) {
	start := time.Now()
	snapshots, err := i.next.ListSnapshots(ctx, connID, limit)
	return snapshots, i.observe("list_snapshots", start, err)
}

func (i *instrumented) RecordUptime(ctx context.Context, connID string, uptimeSeconds int64, now time.Time) (*model.UptimeRecord, *model.RebootEvent, error) {
	start := time.Now()
	record, reboot, err := i.next.RecordUptime(ctx, connID, uptimeSeconds, now)
	if reboot != nil {
		metrics.reboots.WithLabelValues(i.backend).Inc()
	}
	return record, reboot, i.observe("record_uptime", start, err)
}

func (i *instrumented) UptimeHistory(ctx context.Context, connID string, limit int) ([]model.UptimeRecord, error) {
	start := time.Now()
	records, err := i.next.UptimeHistory(ctx, connID, limit)
	return records, i.observe("uptime_history", start, err)
}

func (i *instrumented) Reboots(ctx context.Context, connID string, limit int) ([]model.RebootEvent, error) {
	start := time.Now()
	events, err := i.next.Reboots(ctx, connID, limit)
	return events, i.observe("reboots", start, err)
}

func (i *instrumented) DeleteConnection(ctx context.Context, connID string) error {
	start := time.Now()
	return i.observe("delete_connection", start, i.next.DeleteConnection(ctx, connID))
}

func (i *instrumented) Prune(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	n, err := i.next.Prune(ctx, before)
	return n, i.observe("prune", start, err)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
