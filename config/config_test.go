package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpannerConfig_Validate(t *testing.T) {
	conf := StorageConf{Backend: BackendSpanner}
	assert.NotNil(t, conf.validate())
	conf.Spanner = &SpannerConfig{}
	assert.NotNil(t, conf.validate())
	conf.Spanner = SpannerEmulator
	assert.Nil(t, conf.validate())
	assert.Equal(t, "projects/test-project/instances/test-instance/databases/test-db", SpannerEmulator.DatabaseURI())
}

func TestRedisConfig_Validate(t *testing.T) {
	conf := &RedisConf{}
	if err := conf.validate(); err == nil {
		t.Fatal("validate addr error was expected, but got nil")
	}
	conf.Addr = "abc"
	if err := conf.validate(); err != nil {
		t.Fatalf("no error was expected, but got %v", err)
	}
	conf.DB = -1
	if err := conf.validate(); err == nil {
		t.Fatalf("validate db error was expected, but got nil")
	}
	conf.DB = 0
	conf.mode = sentinelMode
	if err := conf.validate(); err == nil {
		t.Fatal("validate master name error was expected, but got nil")
	}
	conf.MasterName = "test"
	if err := conf.validate(); err != nil {
		t.Fatalf("no error was expected, but got %v", err)
	}
}

func TestNotifierConfig_Validate(t *testing.T) {
	assert.Nil(t, (&NotifierConf{Kind: NotifierNone}).validate(BackendMemory))
	assert.Nil(t, (&NotifierConf{Kind: NotifierRedis}).validate(BackendRedis))
	assert.NotNil(t, (&NotifierConf{Kind: NotifierRedis}).validate(BackendSpanner))
	assert.NotNil(t, (&NotifierConf{Kind: NotifierNATS}).validate(BackendSpanner))
	assert.Nil(t, (&NotifierConf{Kind: NotifierNATS, NatsURL: "nats://127.0.0.1:4222"}).validate(BackendSpanner))
	assert.NotNil(t, (&NotifierConf{Kind: "kafka"}).validate(BackendRedis))
}

func TestMonitorConfig_Defaults(t *testing.T) {
	conf := new(Config)
	setDefaults(conf)
	assert.Nil(t, conf.Monitor.validate())
	assert.Equal(t, 5, conf.Monitor.ConnectTimeoutSecond)
	assert.Equal(t, 10, conf.Monitor.LatencySamples)
	assert.Equal(t, 10, conf.Monitor.PollIntervalSecond)
	assert.Equal(t, 100, conf.Monitor.HistorySize)

	conf.Monitor.LatencySamples = 0
	assert.NotNil(t, conf.Monitor.validate())
}

func TestMustLoad_MemoryBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.toml")
	content := `
Host = "0.0.0.0"
Port = 7777
AdminPort = 7778
LogLevel = "debug"

[Monitor]
ConnectTimeoutSecond = 3
AllowedHosts = ["localhost"]

[Storage]
Backend = "memory"

[Notifier]
Kind = "none"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	conf, err := MustLoad(path)
	require.NoError(t, err)
	assert.Equal(t, 3, conf.Monitor.ConnectTimeoutSecond)
	assert.Equal(t, 10, conf.Monitor.LatencySamples)
	assert.Equal(t, []string{"localhost"}, conf.Monitor.AllowedHosts)
	assert.Equal(t, BackendMemory, conf.Storage.Backend)
	assert.Equal(t, "127.0.0.1", conf.AdminHost)
}

func TestMustLoad_Invalid(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NotNil(t, err)

	path := filepath.Join(t.TempDir(), "conf.toml")
	require.NoError(t, os.WriteFile(path, []byte("Host = \"0.0.0.0\"\nPort = 7777\nAdminPort = 7778\n[Storage]\nBackend = \"cassandra\"\n"), 0644))
	_, err = MustLoad(path)
	assert.NotNil(t, err)
}

func TestMustLoad_StorePasswordEnv(t *testing.T) {
	preset, err := CreatePresetForTest()
	require.NoError(t, err)
	defer preset.Destroy()

	path := filepath.Join(t.TempDir(), "conf.toml")
	content := "Host = \"0.0.0.0\"\nPort = 7777\nAdminPort = 7778\n[Storage.Redis]\nAddr = \"" + preset.Storage.Redis.Addr + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	conf, err := MustLoad(path)
	require.NoError(t, err)
	assert.False(t, conf.Storage.Redis.IsSentinel())
	assert.Empty(t, conf.Storage.Redis.Password)

	// the preset redis has no password, so an overridden one fails AUTH
	t.Setenv(StorePasswordEnv, "from-env")
	_, err = MustLoad(path)
	assert.NotNil(t, err)
}

func TestStorageConfig_Retention(t *testing.T) {
	conf := new(Config)
	setDefaults(conf)
	conf.Storage.Backend = BackendMemory
	assert.Nil(t, conf.Storage.validate())
	assert.Equal(t, 30*24*time.Hour, conf.Storage.Retention())
	assert.Equal(t, time.Hour, conf.Storage.PruneInterval())

	conf.Storage.PruneIntervalSecond = 0
	assert.NotNil(t, conf.Storage.validate())
	conf.Storage.RetentionDays = 0
	assert.Nil(t, conf.Storage.validate(), "pruning disabled needs no interval")
	conf.Storage.RetentionDays = -1
	assert.NotNil(t, conf.Storage.validate())
	conf.Storage.RetentionDays = 0
	conf.Storage.MaxSnapshots = -1
	assert.NotNil(t, conf.Storage.validate())
}

func TestMonitorConfig_CollectLimit(t *testing.T) {
	conf := new(Config)
	setDefaults(conf)
	assert.Nil(t, conf.Monitor.validate())
	assert.Equal(t, int64(60), conf.Monitor.CollectLimit)
	assert.Equal(t, time.Minute, conf.Monitor.CollectWindow())

	conf.Monitor.CollectWindowSecond = 0
	assert.NotNil(t, conf.Monitor.validate())
	conf.Monitor.CollectLimit = 0
	assert.Nil(t, conf.Monitor.validate(), "no limit needs no window")
	conf.Monitor.CollectLimit = -1
	assert.NotNil(t, conf.Monitor.validate())
}

func TestMonitorConfig_Sessions(t *testing.T) {
	conf := new(Config)
	setDefaults(conf)
	assert.Equal(t, 5*time.Minute, conf.Monitor.SessionIdle())
	assert.Equal(t, 100, conf.Monitor.MaxSessions)

	conf.Monitor.SessionIdleSecond = 0
	assert.NotNil(t, conf.Monitor.validate())
	conf.Monitor.SessionIdleSecond = 60
	conf.Monitor.MaxSessions = 0
	assert.NotNil(t, conf.Monitor.validate())
}
