// Package redis builds the client of the backing store. Monitored servers get
// their own short-lived clients in package probe.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cacheoracle/cacheoracle/config"
	"github.com/cacheoracle/cacheoracle/helper/redis/hooks"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// NewClient connects to the store described by conf, through sentinel when
// conf names a master. Zero timeouts in opt fall back to the defaults.
func NewClient(conf *config.RedisConf, opt *redis.Options) *redis.Client {
	if opt == nil {
		opt = &redis.Options{}
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = defaultDialTimeout
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = defaultReadTimeout
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = defaultWriteTimeout
	}

	var client *redis.Client
	if conf.IsSentinel() {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    conf.MasterName,
			SentinelAddrs: strings.Split(conf.Addr, ","),
			Password:      conf.Password,
			DB:            conf.DB,
			PoolSize:      conf.PoolSize,
			MinIdleConns:  opt.MinIdleConns,
			DialTimeout:   opt.DialTimeout,
			ReadTimeout:   opt.ReadTimeout,
			WriteTimeout:  opt.WriteTimeout,
		})
	} else {
		opt.Addr = conf.Addr
		opt.Password = conf.Password
		opt.DB = conf.DB
		opt.PoolSize = conf.PoolSize
		client = redis.NewClient(opt)
	}
	client.AddHook(hooks.NewMetricsHook(hooks.RoleStore, storeNode(conf)))
	return client
}

// storeNode is the metrics label of the store, the master name under sentinel.
func storeNode(conf *config.RedisConf) string {
	if conf.IsSentinel() {
		return conf.MasterName
	}
	return conf.Addr
}

// Ping checks the store within timeout.
func Ping(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("can not connect to the store: %w", err)
	}
	return nil
}
