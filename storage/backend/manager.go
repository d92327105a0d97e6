// Package backend assembles the configured persistence, the snapshot
// notifier, the collection throttler and the retention sweeper.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/config"
	redis_helper "github.com/cacheoracle/cacheoracle/helper/redis"
	"github.com/cacheoracle/cacheoracle/realtime"
	"github.com/cacheoracle/cacheoracle/storage"
	"github.com/cacheoracle/cacheoracle/storage/lock"
	"github.com/cacheoracle/cacheoracle/storage/pumper"
	storage_redis "github.com/cacheoracle/cacheoracle/storage/redis"
	storage_spanner "github.com/cacheoracle/cacheoracle/storage/spanner"
	"github.com/cacheoracle/cacheoracle/throttler"
)

const (
	retentionLockName   = "retention"
	defaultLockExpiry   = 15 * time.Second
	defaultPruneTimeout = time.Minute
	defaultPingTimeout  = 5 * time.Second
)

type Manager struct {
	persistence storage.Persistence
	notifier    realtime.Notifier
	throttler   *throttler.Throttler
	redisCli    *redis.Client
	pumper      pumper.Pumper
	logger      *logrus.Logger
}

var manager *Manager

func Init(cfg *config.Config, logger *logrus.Logger) (err error) {
	manager, err = NewManager(cfg, logger)
	return err
}

func Get() *Manager {
	return manager
}

func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	m := &Manager{logger: logger}
	var (
		store storage.Persistence
		l     lock.Lock
	)
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		m.redisCli = redis_helper.NewClient(&cfg.Storage.Redis, nil)
		if err := redis_helper.Ping(context.Background(), m.redisCli, defaultPingTimeout); err != nil {
			m.redisCli.Close()
			return nil, err
		}
		redisStore, err := storage_redis.New(m.redisCli, cfg.Storage.MaxSnapshots, logger)
		if err != nil {
			m.redisCli.Close()
			return nil, err
		}
		store = redisStore
		l = lock.NewRedisLock(m.redisCli, retentionLockName, defaultLockExpiry)
	case config.BackendSpanner:
		spannerStore, err := storage_spanner.New(cfg.Storage.Spanner, cfg.Storage.MaxSnapshots)
		if err != nil {
			return nil, err
		}
		store = spannerStore
		l = lock.NewLocalLock(retentionLockName, defaultLockExpiry)
	case config.BackendMemory:
		store = storage.NewMemory(cfg.Storage.MaxSnapshots)
		l = lock.NewLocalLock(retentionLockName, defaultLockExpiry)
	default:
		return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Storage.Backend)
	}
	m.persistence = storage.Instrument(cfg.Storage.Backend, store)

	notifier, err := m.newNotifier(&cfg.Notifier)
	if err != nil {
		m.persistence.Close()
		return nil, err
	}
	m.notifier = notifier

	if cfg.Monitor.CollectLimit > 0 {
		if m.throttler, err = m.newThrottler(&cfg.Monitor); err != nil {
			m.notifier.Close()
			m.persistence.Close()
			return nil, err
		}
	}

	if retention := cfg.Storage.Retention(); retention > 0 {
		p := pumper.NewDefault(l, cfg.Storage.PruneInterval(), logger)
		go p.Loop(m.PruneFn(retention))
		m.pumper = p
	}
	logger.WithFields(logrus.Fields{
		"backend":  cfg.Storage.Backend,
		"notifier": cfg.Notifier.Kind,
	}).Info("Storage is ready")
	return m, nil
}

func (m *Manager) newNotifier(conf *config.NotifierConf) (realtime.Notifier, error) {
	switch conf.Kind {
	case config.NotifierRedis:
		if m.redisCli == nil {
			return nil, fmt.Errorf("the redis notifier requires the redis storage backend")
		}
		return realtime.NewRedisNotifier(m.redisCli, m.logger), nil
	case config.NotifierNATS:
		return realtime.NewNATSNotifier(conf.NatsURL, m.logger)
	case config.NotifierNone, "":
		return realtime.NewLocal(), nil
	}
	return nil, fmt.Errorf("unknown notifier '%s'", conf.Kind)
}

// newThrottler shares the counters through redis when it is the backend.
func (m *Manager) newThrottler(conf *config.MonitorConf) (*throttler.Throttler, error) {
	limiter := throttler.Limiter{Limit: conf.CollectLimit, Interval: conf.CollectWindow()}
	if m.redisCli != nil {
		return throttler.NewRedis(m.redisCli, limiter, m.logger)
	}
	return throttler.NewLocal(limiter, m.logger)
}

// PruneFn drops everything older than retention, one pass per tick.
func (m *Manager) PruneFn(retention time.Duration) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPruneTimeout)
		defer cancel()
		before := time.Now().Add(-retention)
		pruned, err := m.persistence.Prune(ctx, before)
		if err != nil {
			m.logger.WithField("err", err).Error("Failed to prune the history")
			return false
		}
		if pruned > 0 {
			m.logger.WithFields(logrus.Fields{
				"pruned": pruned,
				"before": before,
			}).Info("Pruned the history")
		}
		return false
	}
}

func (m *Manager) Persistence() storage.Persistence {
	return m.persistence
}

func (m *Manager) Notifier() realtime.Notifier {
	return m.notifier
}

// Throttler is nil when collections are not limited.
func (m *Manager) Throttler() *throttler.Throttler {
	return m.throttler
}

func (m *Manager) Shutdown() {
	if m.pumper != nil {
		m.pumper.Shutdown()
	}
	if err := m.notifier.Close(); err != nil {
		m.logger.WithField("err", err).Error("Failed to close the notifier")
	}
	if err := m.persistence.Close(); err != nil {
		m.logger.WithField("err", err).Error("Failed to close the storage")
	}
}
