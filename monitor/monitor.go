// Package monitor runs the full collection pipeline for one connection:
// parse the descriptor, probe the server, derive the snapshot, score it and
// record it.
package monitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/descriptor"
	"github.com/cacheoracle/cacheoracle/errs"
	"github.com/cacheoracle/cacheoracle/health"
	"github.com/cacheoracle/cacheoracle/info"
	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/probe"
	"github.com/cacheoracle/cacheoracle/realtime"
	"github.com/cacheoracle/cacheoracle/storage"
	"github.com/cacheoracle/cacheoracle/throttler"
)

const persistTimeout = 5 * time.Second

type Request struct {
	ConnectionID     string `json:"connectionId"`
	ConnectionString string `json:"connectionString"`
}

type Result struct {
	Success    bool               `json:"success"`
	Metrics    *model.Snapshot    `json:"metrics,omitempty"`
	Assessment *health.Assessment `json:"assessment,omitempty"`
	Reboot     *model.RebootEvent `json:"reboot,omitempty"`
	Error      string             `json:"error,omitempty"`
	Warning    string             `json:"warning,omitempty"`
}

type Options struct {
	Probe        probe.Options
	AllowedHosts []string
	// Throttler caps collections per target, nil disables it
	Throttler *throttler.Throttler
}

// Monitor is safe for concurrent use; every call opens its own session.
type Monitor struct {
	store    storage.Persistence
	notifier realtime.Notifier
	opts     Options
	logger   *logrus.Logger

	now func() time.Time
}

// New builds a monitor. store and notifier may be nil, in which case
// snapshots are only returned to the caller.
func New(store storage.Persistence, notifier realtime.Notifier, opts Options, logger *logrus.Logger) *Monitor {
	return &Monitor{
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// GetMetrics never returns an error: failures are reported through
// Result.Error, persistence problems through Result.Warning.
func (m *Monitor) GetMetrics(ctx context.Context, req Request) *Result {
	result, _ := m.run(ctx, req)
	return result
}

// Collect is GetMetrics for callers that need the kind of a failure, the
// result is filled in either way.
func (m *Monitor) Collect(ctx context.Context, req Request) (*Result, error) {
	return m.run(ctx, req)
}

// Snapshot runs the same pipeline for callers that drive their own loop,
// such as a polling session, and keeps the error kind.
func (m *Monitor) Snapshot(ctx context.Context, target realtime.Target) (*model.Snapshot, error) {
	result, err := m.run(ctx, Request{
		ConnectionID:     target.ConnectionID,
		ConnectionString: target.ConnectionString,
	})
	if err != nil {
		return nil, err
	}
	return result.Metrics, nil
}

func (m *Monitor) run(ctx context.Context, req Request) (*Result, error) {
	start := m.now()
	snapshot, err := m.collect(ctx, req.ConnectionString)
	if err != nil {
		kind := errs.KindOf(err)
		metrics.collections.WithLabelValues("failure").Inc()
		metrics.errors.WithLabelValues(kind.String()).Inc()
		m.logger.WithFields(logrus.Fields{
			"conn_id": req.ConnectionID,
			"kind":    kind.String(),
			"err":     errs.RedactIPs(err.Error()),
		}).Warn("Failed to collect metrics")
		return &Result{Success: false, Error: errs.Public(err)}, err
	}
	metrics.collections.WithLabelValues("success").Inc()
	metrics.collectTimeMs.Observe(float64(m.now().Sub(start).Milliseconds()))

	assessment := health.Assess(snapshot)
	metrics.healthScores.Observe(float64(assessment.Score))
	result := &Result{
		Success:    true,
		Metrics:    snapshot,
		Assessment: assessment,
	}
	if req.ConnectionID != "" {
		m.record(ctx, req.ConnectionID, snapshot, result)
	}
	return result, nil
}

func (m *Monitor) collect(ctx context.Context, text string) (*model.Snapshot, error) {
	d, err := descriptor.ParseWithOptions(text, descriptor.Options{AllowHosts: m.opts.AllowedHosts})
	if err != nil {
		return nil, err
	}
	if m.opts.Throttler != nil && m.opts.Throttler.IsReachRateLimit(ctx, d.Addr()) {
		return nil, errs.New(errs.RateLimitError, "too many collections for this server, retry later")
	}

	var (
		latency     float64
		diagnostics *probe.Diagnostics
	)
	err = probe.Collect(ctx, d, m.opts.Probe, func(session *probe.Session) error {
		var err error
		if latency, err = session.ProbeLatency(ctx, m.opts.Probe.LatencySamples); err != nil {
			return err
		}
		diagnostics, err = session.FetchDiagnostics(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	snapshot, err := info.Parse(diagnostics.Info)
	if err != nil {
		return nil, err
	}
	snapshot.Timestamp = m.now().UnixMilli()
	snapshot.DBSize = diagnostics.DBSize
	snapshot.Slowlog = diagnostics.Slowlog
	if snapshot.Slowlog == nil {
		snapshot.Slowlog = []model.SlowlogEntry{}
	}
	snapshot.AvgResponseTime = latency
	return snapshot, nil
}

func persistWarning(saveErr, uptimeErr error) string {
	switch {
	case saveErr != nil && uptimeErr != nil:
		return "metrics collected but could not be saved, uptime tracking failed"
	case saveErr != nil:
		return "metrics collected but could not be saved"
	case uptimeErr != nil:
		return "metrics saved but uptime tracking failed"
	}
	return ""
}

// record persists the snapshot and the uptime observation, then announces
// the row. Nothing here can fail the request.
func (m *Monitor) record(ctx context.Context, connID string, snapshot *model.Snapshot, result *Result) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	logger := m.logger.WithField("conn_id", connID)
	seq, saveErr := m.store.SaveSnapshot(ctx, connID, snapshot)
	if saveErr != nil {
		metrics.persistWarns.WithLabelValues("save_snapshot").Inc()
		logger.WithField("err", saveErr).Error("Failed to save the snapshot")
	} else {
		snapshot.Seq = seq
	}

	_, reboot, uptimeErr := m.store.RecordUptime(ctx, connID, snapshot.UptimeInSeconds, snapshot.Time())
	if uptimeErr != nil {
		metrics.persistWarns.WithLabelValues("record_uptime").Inc()
		logger.WithField("err", uptimeErr).Error("Failed to record the uptime")
	} else if reboot != nil {
		result.Reboot = reboot
		logger.WithFields(logrus.Fields{
			"previous_uptime": reboot.PreviousUptimeSeconds,
			"reboot_time":     reboot.RebootTime,
		}).Warn("Detected a server reboot")
	}
	result.Warning = persistWarning(saveErr, uptimeErr)

	// unsaved rows have no sequence for subscribers to order by
	if saveErr != nil || m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, connID, model.NewRow(connID, snapshot)); err != nil {
		metrics.persistWarns.WithLabelValues("publish").Inc()
		logger.WithField("err", err).Warn("Failed to publish the snapshot")
	}
}
