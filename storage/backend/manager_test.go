package backend

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacheoracle/cacheoracle/config"
	"github.com/cacheoracle/cacheoracle/model"
)

var (
	presetConfig *config.PresetConfigForTest
	logger       *logrus.Logger
)

func TestMain(m *testing.M) {
	logger = logrus.New()
	logger.SetOutput(ioutil.Discard)

	var err error
	presetConfig, err = config.CreatePresetForTest()
	if err != nil {
		panic(fmt.Sprintf("CreatePresetForTest failed with error: %s", err))
	}
	ret := m.Run()
	presetConfig.Destroy()
	os.Exit(ret)
}

func memoryConfig() *config.Config {
	cfg := *presetConfig.Config
	cfg.Storage.Backend = config.BackendMemory
	cfg.Notifier.Kind = config.NotifierNone
	return &cfg
}

func TestNewManager_Redis(t *testing.T) {
	cfg := *presetConfig.Config
	m, err := NewManager(&cfg, logger)
	require.NoError(t, err)
	defer m.Shutdown()
	require.NotNil(t, m.Throttler())
	assert.Equal(t, cfg.Monitor.CollectLimit, m.Throttler().Limiter().Limit)

	ctx := context.Background()
	sub, err := m.Notifier().Subscribe(ctx, "backend-conn")
	require.NoError(t, err)
	defer sub.Close()

	snapshot := &model.Snapshot{Timestamp: time.Now().UnixMilli()}
	seq, err := m.Persistence().SaveSnapshot(ctx, "backend-conn", snapshot)
	require.NoError(t, err)
	snapshot.Seq = seq
	require.NoError(t, m.Notifier().Publish(ctx, "backend-conn", model.NewRow("backend-conn", snapshot)))
	select {
	case row := <-sub.C():
		assert.Equal(t, seq, row.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the published row")
	}
}

func TestNewManager_Memory(t *testing.T) {
	require.NoError(t, Init(memoryConfig(), logger))
	m := Get()
	require.NotNil(t, m)
	defer m.Shutdown()

	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := m.Persistence().SaveSnapshot(ctx, "mem-conn", &model.Snapshot{
			Timestamp: old.Add(time.Duration(i) * time.Minute).UnixMilli(),
		})
		require.NoError(t, err)
	}
	assert.False(t, m.PruneFn(30*24*time.Hour)())
	snapshots, err := m.Persistence().ListSnapshots(ctx, "mem-conn", 0)
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}

func TestNewManager_Invalid(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "cassandra"
	_, err := NewManager(cfg, logger)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Notifier.Kind = config.NotifierRedis
	_, err = NewManager(cfg, logger)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis = config.RedisConf{Addr: "127.0.0.1:1"}
	_, err = NewManager(cfg, logger)
	assert.Error(t, err)
}

func TestNewManager_NoThrottler(t *testing.T) {
	cfg := memoryConfig()
	cfg.Monitor.CollectLimit = 0
	m, err := NewManager(cfg, logger)
	require.NoError(t, err)
	defer m.Shutdown()
	assert.Nil(t, m.Throttler())
}
