package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	BackendRedis   = "redis"
	BackendSpanner = "spanner"
	BackendMemory  = "memory"

	NotifierRedis = "redis"
	NotifierNATS  = "nats"
	NotifierNone  = "none"

	// StorePasswordEnv overrides Storage.Redis.Password when set.
	StorePasswordEnv = "CACHEORACLE_STORE_PASSWORD"
)

const (
	unsupportedMode = iota + 1
	standaloneMode
	sentinelMode
)

type Config struct {
	Host            string
	Port            int
	AdminHost       string
	AdminPort       int
	LogLevel        string
	LogDir          string
	LogFormat       string
	EnableAccessLog bool

	Monitor  MonitorConf
	Storage  StorageConf
	Notifier NotifierConf
}

// MonitorConf tunes the diagnostic session against monitored servers.
type MonitorConf struct {
	ConnectTimeoutSecond int
	LatencySamples       int
	SlowlogLimit         int
	PollIntervalSecond   int
	HistorySize          int
	// AllowedHosts lifts the internal-host blocklist for the listed hosts.
	AllowedHosts []string
	// CollectLimit caps collections per target within CollectWindowSecond, 0 disables
	CollectLimit        int64
	CollectWindowSecond int
	// SessionIdleSecond closes live sessions nobody used for that long
	SessionIdleSecond int
	MaxSessions       int
}

func (mc *MonitorConf) ConnectTimeout() time.Duration {
	return time.Duration(mc.ConnectTimeoutSecond) * time.Second
}

func (mc *MonitorConf) PollInterval() time.Duration {
	return time.Duration(mc.PollIntervalSecond) * time.Second
}

func (mc *MonitorConf) CollectWindow() time.Duration {
	return time.Duration(mc.CollectWindowSecond) * time.Second
}

func (mc *MonitorConf) SessionIdle() time.Duration {
	return time.Duration(mc.SessionIdleSecond) * time.Second
}

type StorageConf struct {
	Backend      string
	MaxSnapshots int
	// RetentionDays bounds the age of stored history, 0 keeps everything
	RetentionDays       int
	PruneIntervalSecond int
	Redis               RedisConf
	Spanner             *SpannerConfig
}

func (sc *StorageConf) Retention() time.Duration {
	return time.Duration(sc.RetentionDays) * 24 * time.Hour
}

func (sc *StorageConf) PruneInterval() time.Duration {
	return time.Duration(sc.PruneIntervalSecond) * time.Second
}

type NotifierConf struct {
	Kind    string
	NatsURL string
}

type RedisConf struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	mode       int
	MasterName string
}

type SpannerConfig struct {
	Project         string
	Instance        string
	Database        string
	CredentialsFile string
}

// DatabaseURI returns the fully qualified spanner database name.
func (sc *SpannerConfig) DatabaseURI() string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", sc.Project, sc.Instance, sc.Database)
}

func (sc *SpannerConfig) validate() error {
	if sc.Project == "" {
		return errors.New("invalid spanner project")
	}
	if sc.Instance == "" {
		return errors.New("invalid spanner instance")
	}
	if sc.Database == "" {
		return errors.New("invalid spanner database")
	}
	return nil
}

func detectRedisMode(rc *RedisConf) (int, error) {
	// the sentinel addrs would be split with comma
	addrs := strings.Split(rc.Addr, ",")
	cli := redis.NewClient(&redis.Options{
		Addr:     addrs[0],
		Password: rc.Password,
		PoolSize: 1,
	})
	defer cli.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	infoStr, err := cli.Info(ctx, "server").Result()
	if err != nil {
		return -1, err
	}
	lines := strings.Split(infoStr, "\r\n")
	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "redis_version":
			// the uptime compare-and-append script relies on redis.call in EVALSHA
			// and PUBLISH semantics available since 2.6
			versionField := strings.Split(fields[1], ".")
			major, err := strconv.ParseInt(versionField[0], 10, 64)
			if err != nil || major < 3 {
				return unsupportedMode, errors.New("redis version should be >= 3.x.x")
			}
		case "redis_mode":
			switch fields[1] {
			case "standalone":
				return standaloneMode, nil
			case "sentinel":
				return sentinelMode, nil
			default:
				return unsupportedMode, errors.New("unsupported redis mode")
			}
		}
	}
	// redis mode was not found in INFO command, treat it as standalone
	return standaloneMode, nil
}

func (rc *RedisConf) validate() error {
	if rc.Addr == "" {
		return errors.New("the store addr must not be empty")
	}
	if rc.DB < 0 {
		return errors.New("the store db must be greater than 0 or equal to 0")
	}
	if rc.IsSentinel() && rc.MasterName == "" {
		return errors.New("the master name must not be empty in sentinel mode")
	}
	return nil
}

// IsSentinel return whether the store was running in sentinel mode
func (rc *RedisConf) IsSentinel() bool {
	return rc.mode == sentinelMode
}

func (sc *StorageConf) validate() error {
	if sc.MaxSnapshots < 0 {
		return errors.New("the max snapshots must not be negative")
	}
	if sc.RetentionDays < 0 {
		return errors.New("the retention days must not be negative")
	}
	if sc.RetentionDays > 0 && sc.PruneIntervalSecond <= 0 {
		return errors.New("invalid prune interval")
	}
	switch sc.Backend {
	case BackendRedis:
		return sc.Redis.validate()
	case BackendSpanner:
		if sc.Spanner == nil {
			return errors.New("spanner backend requires the [Storage.Spanner] section")
		}
		return sc.Spanner.validate()
	case BackendMemory:
		return nil
	}
	return fmt.Errorf("unknown storage backend '%s'", sc.Backend)
}

func (nc *NotifierConf) validate(backend string) error {
	switch nc.Kind {
	case NotifierNone:
		return nil
	case NotifierRedis:
		if backend != BackendRedis {
			return errors.New("the redis notifier requires the redis storage backend")
		}
		return nil
	case NotifierNATS:
		if nc.NatsURL == "" {
			return errors.New("the nats notifier requires NatsURL")
		}
		return nil
	}
	return fmt.Errorf("unknown notifier '%s'", nc.Kind)
}

func (mc *MonitorConf) validate() error {
	if mc.ConnectTimeoutSecond <= 0 {
		return errors.New("invalid connect timeout")
	}
	if mc.LatencySamples <= 0 {
		return errors.New("invalid latency samples")
	}
	if mc.SlowlogLimit < 0 {
		return errors.New("invalid slowlog limit")
	}
	if mc.PollIntervalSecond <= 0 {
		return errors.New("invalid poll interval")
	}
	if mc.HistorySize <= 0 {
		return errors.New("invalid history size")
	}
	if mc.CollectLimit < 0 {
		return errors.New("invalid collect limit")
	}
	if mc.CollectLimit > 0 && mc.CollectWindowSecond <= 0 {
		return errors.New("collect limit requires a positive window")
	}
	if mc.SessionIdleSecond <= 0 {
		return errors.New("invalid session idle timeout")
	}
	if mc.MaxSessions <= 0 {
		return errors.New("invalid max sessions")
	}
	return nil
}

// setDefaults fills every value that may be omitted from the config file.
func setDefaults(conf *Config) {
	conf.LogLevel = "info"
	conf.AdminHost = "127.0.0.1"

	conf.Monitor.ConnectTimeoutSecond = 5
	conf.Monitor.LatencySamples = 10
	conf.Monitor.SlowlogLimit = 10
	conf.Monitor.PollIntervalSecond = 10
	conf.Monitor.HistorySize = 100
	conf.Monitor.CollectLimit = 60
	conf.Monitor.CollectWindowSecond = 60
	conf.Monitor.SessionIdleSecond = 300
	conf.Monitor.MaxSessions = 100

	conf.Storage.Backend = BackendRedis
	conf.Storage.MaxSnapshots = 1000
	conf.Storage.RetentionDays = 30
	conf.Storage.PruneIntervalSecond = 3600
	conf.Notifier.Kind = NotifierRedis
}

// MustLoad load config file with specified path, an error returned if any condition not met
func MustLoad(path string) (*Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	conf := new(Config)
	setDefaults(conf)

	if _, err := toml.DecodeFile(path, conf); err != nil {
		panic(err)
	}
	if password := os.Getenv(StorePasswordEnv); password != "" {
		conf.Storage.Redis.Password = password
	}

	if conf.Host == "" {
		return nil, errors.New("invalid host")
	}
	if conf.Port == 0 {
		return nil, errors.New("invalid port")
	}
	if conf.AdminPort == 0 {
		return nil, errors.New("invalid admin port")
	}
	if err := conf.Monitor.validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor config: %s", err)
	}
	if conf.Storage.Backend == BackendRedis {
		if conf.Storage.Redis.mode, err = detectRedisMode(&conf.Storage.Redis); err != nil {
			return nil, fmt.Errorf("failed to get redis mode in store: %s", err)
		}
	}
	if err := conf.Storage.validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %s", err)
	}
	if err := conf.Notifier.validate(conf.Storage.Backend); err != nil {
		return nil, fmt.Errorf("invalid notifier config: %s", err)
	}

	_, err = logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, errors.New("invalid log level")
	}
	return conf, nil
}
