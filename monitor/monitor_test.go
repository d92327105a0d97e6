package monitor

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacheoracle/cacheoracle/errs"
	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/probe"
	"github.com/cacheoracle/cacheoracle/realtime"
	"github.com/cacheoracle/cacheoracle/storage"
	"github.com/cacheoracle/cacheoracle/throttler"
)

func newMonitor(store storage.Persistence, notifier realtime.Notifier) *Monitor {
	return New(store, notifier, Options{
		Probe:        probe.Options{ConnectTimeout: 2 * time.Second, LatencySamples: 3},
		AllowedHosts: []string{targetHost},
	}, logger)
}

type failingStore struct {
	storage.Persistence
}

func (failingStore) SaveSnapshot(ctx context.Context, connID string, s *model.Snapshot) (int64, error) {
	return 0, errors.New("disk full")
}

func TestGetMetrics_WithoutConnectionID(t *testing.T) {
	store := storage.NewMemory(0)
	m := newMonitor(store, nil)

	result := m.GetMetrics(context.Background(), Request{ConnectionString: connectionString()})
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Metrics)
	assert.NotEmpty(t, result.Metrics.RedisVersion)
	assert.True(t, result.Metrics.UptimeInSeconds >= 0)
	assert.NotNil(t, result.Metrics.Slowlog)
	assert.True(t, result.Metrics.Timestamp > 0)
	assert.True(t, result.Metrics.AvgResponseTime >= 0)
	require.NotNil(t, result.Assessment)
	assert.True(t, result.Assessment.Score >= 0 && result.Assessment.Score <= 100)
	assert.NotEmpty(t, result.Assessment.Insights)
	assert.Empty(t, result.Warning)
	assert.Equal(t, int64(0), result.Metrics.Seq)

	snapshots, err := store.ListSnapshots(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, snapshots, "nothing is persisted without a connection id")
}

func TestGetMetrics_PersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory(0)
	local := realtime.NewLocal()
	defer local.Close()
	sub, err := local.Subscribe(ctx, "conn-1")
	require.NoError(t, err)

	m := newMonitor(store, local)
	req := Request{ConnectionID: "conn-1", ConnectionString: connectionString()}

	first := m.GetMetrics(ctx, req)
	require.True(t, first.Success, first.Error)
	assert.Equal(t, int64(1), first.Metrics.Seq)
	assert.Nil(t, first.Reboot)

	second := m.GetMetrics(ctx, req)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, int64(2), second.Metrics.Seq)
	assert.Nil(t, second.Reboot)

	for _, want := range []int64{1, 2} {
		select {
		case row := <-sub.C():
			assert.Equal(t, want, row.Seq)
			assert.Equal(t, "conn-1", row.ConnectionID)
		case <-time.After(time.Second):
			t.Fatalf("row %d was not published", want)
		}
	}

	snapshots, err := store.ListSnapshots(ctx, "conn-1", 10)
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)
	history, err := store.UptimeHistory(ctx, "conn-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestGetMetrics_DetectsReboot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory(0)
	// an earlier observation far beyond the fresh container's uptime
	_, _, err := store.RecordUptime(ctx, "conn-r", 10_000_000, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	result := newMonitor(store, nil).GetMetrics(ctx, Request{ConnectionID: "conn-r", ConnectionString: connectionString()})
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Reboot)
	assert.Equal(t, int64(10_000_000), result.Reboot.PreviousUptimeSeconds)
	assert.Equal(t, "conn-r", result.Reboot.ConnectionID)

	reboots, err := store.Reboots(ctx, "conn-r", 10)
	require.NoError(t, err)
	assert.Len(t, reboots, 1)
}

func TestGetMetrics_PersistenceFailureIsAWarning(t *testing.T) {
	memory := storage.NewMemory(0)
	m := newMonitor(failingStore{memory}, nil)
	result := m.GetMetrics(context.Background(), Request{ConnectionID: "conn-f", ConnectionString: connectionString()})
	assert.True(t, result.Success)
	assert.NotNil(t, result.Metrics)
	assert.Equal(t, "metrics collected but could not be saved", result.Warning)
	assert.Empty(t, result.Error)

	// uptime tracking does not depend on the snapshot being saved
	records, err := memory.UptimeHistory(context.Background(), "conn-f", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPersistWarning(t *testing.T) {
	saveErr := errors.New("disk full")
	uptimeErr := errors.New("timeout")
	assert.Empty(t, persistWarning(nil, nil))
	assert.Equal(t, "metrics collected but could not be saved", persistWarning(saveErr, nil))
	assert.Equal(t, "metrics saved but uptime tracking failed", persistWarning(nil, uptimeErr))
	assert.Equal(t, "metrics collected but could not be saved, uptime tracking failed", persistWarning(saveErr, uptimeErr))
}

func TestGetMetrics_Failures(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	m := New(nil, nil, Options{
		Probe:        probe.Options{ConnectTimeout: time.Second},
		AllowedHosts: []string{"127.0.0.1"},
	}, logger)

	tests := []struct {
		name  string
		input string
		check func(t *testing.T, msg string)
	}{
		{
			name:  "empty",
			input: "   ",
			check: func(t *testing.T, msg string) { assert.Equal(t, "connection string is required", msg) },
		},
		{
			name:  "format",
			input: "telnet 10.0.0.1 6379",
			check: func(t *testing.T, msg string) { assert.Equal(t, "invalid connection string format", msg) },
		},
		{
			name:  "port",
			input: "redis-cli -h cache.example.com -p 70000",
			check: func(t *testing.T, msg string) { assert.Equal(t, "invalid port number", msg) },
		},
		{
			name:  "blocked host",
			input: "redis-cli -h localhost -p 6379",
			check: func(t *testing.T, msg string) { assert.NotContains(t, msg, "localhost") },
		},
		{
			name:  "refused",
			input: "redis-cli -h 127.0.0.1 -p " + strconv.Itoa(closedPort),
			check: func(t *testing.T, msg string) {
				assert.NotEmpty(t, msg)
				assert.False(t, strings.Contains(msg, "127.0.0.1"), msg)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.GetMetrics(context.Background(), Request{ConnectionString: tt.input})
			assert.False(t, result.Success)
			assert.Nil(t, result.Metrics)
			tt.check(t, result.Error)
		})
	}
}

func TestSnapshot_KeepsErrorKind(t *testing.T) {
	m := newMonitor(nil, nil)
	_, err := m.Snapshot(context.Background(), realtime.Target{ConnectionString: "redis-cli -p abc"})
	assert.True(t, errs.IsKind(err, errs.ValidationError), "got %v", err)

	snapshot, err := m.Snapshot(context.Background(), realtime.Target{ConnectionString: connectionString()})
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot.RedisVersion)
}

func TestCollect_Throttled(t *testing.T) {
	limiter, err := throttler.NewLocal(throttler.Limiter{Limit: 1, Interval: time.Minute}, logger)
	require.NoError(t, err)
	m := New(nil, nil, Options{
		Probe:        probe.Options{ConnectTimeout: 2 * time.Second, LatencySamples: 3},
		AllowedHosts: []string{targetHost},
		Throttler:    limiter,
	}, logger)

	result, err := m.Collect(context.Background(), Request{ConnectionString: connectionString()})
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = m.Collect(context.Background(), Request{ConnectionString: connectionString()})
	assert.True(t, errs.IsKind(err, errs.RateLimitError))
	assert.False(t, result.Success)
	assert.Equal(t, "too many collections for this server, retry later", result.Error)

	// malformed input is rejected before it counts against any target
	_, err = m.Collect(context.Background(), Request{ConnectionString: "redis-cli -p abc"})
	assert.False(t, errs.IsKind(err, errs.RateLimitError))
}
