// Package throttler caps how often a single monitored server gets probed.
// Counters are fixed windows keyed by the target address; the redis counter
// is shared by every instance while the local one only sees its own process.
package throttler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix = "cacheoracle:throttle"

	// sweep expired local windows once the table grows past this
	localSweepSize = 1024

	throttleIncrLuaScript = `
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
local v = redis.call("incr", key)
if v == 1 then
	redis.call("pexpire", key, ttl)
end
return v
`
)

// Limiter allows Limit collections per target within Interval.
type Limiter struct {
	Limit    int64
	Interval time.Duration
}

func (l *Limiter) validate() error {
	if l.Interval <= 0 {
		return errors.New("limiter interval should be > 0")
	}
	if l.Limit <= 0 {
		return errors.New("limiter limit should be > 0")
	}
	return nil
}

type counter interface {
	incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Throttler is safe for concurrent use.
type Throttler struct {
	limiter Limiter
	counter counter
	logger  *logrus.Logger
}

// NewRedis counts in redis, so every instance sharing cli shares the limit.
func NewRedis(cli *redis.Client, limiter Limiter, logger *logrus.Logger) (*Throttler, error) {
	if err := limiter.validate(); err != nil {
		return nil, err
	}
	sha, err := cli.ScriptLoad(context.Background(), throttleIncrLuaScript).Result()
	if err != nil {
		return nil, fmt.Errorf("load the throttle incr script: %s", err.Error())
	}
	return &Throttler{
		limiter: limiter,
		counter: &redisCounter{cli: cli, incrSHA: sha},
		logger:  logger,
	}, nil
}

// NewLocal counts in process.
func NewLocal(limiter Limiter, logger *logrus.Logger) (*Throttler, error) {
	if err := limiter.validate(); err != nil {
		return nil, err
	}
	return &Throttler{
		limiter: limiter,
		counter: newLocalCounter(time.Now),
		logger:  logger,
	}, nil
}

func buildCounterKey(target string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, target)
}

// IsReachRateLimit counts one collection against target and reports whether
// the limit was exceeded. A counter failure lets the collection through.
func (t *Throttler) IsReachRateLimit(ctx context.Context, target string) bool {
	val, err := t.counter.incr(ctx, buildCounterKey(target), t.limiter.Interval)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"target": target,
			"err":    err,
		}).Warn("Failed to count the collection, let it through")
		return false
	}
	return val > t.limiter.Limit
}

func (t *Throttler) Limiter() Limiter {
	return t.limiter
}

type redisCounter struct {
	cli *redis.Client

	mu      sync.RWMutex
	incrSHA string
}

func (c *redisCounter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.RLock()
	sha := c.incrSHA
	c.mu.RUnlock()
	ttl := window.Milliseconds()
	val, err := c.cli.EvalSha(ctx, sha, []string{key}, ttl).Int64()
	if err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT") {
		sha, err = c.cli.ScriptLoad(ctx, throttleIncrLuaScript).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to load the throttler incr script err: %s", err.Error())
		}
		c.mu.Lock()
		c.incrSHA = sha
		c.mu.Unlock()
		val, err = c.cli.EvalSha(ctx, sha, []string{key}, ttl).Int64()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to eval the throttler incr script err: %s", err.Error())
	}
	return val, nil
}

type window struct {
	count    int64
	expireAt time.Time
}

type localCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
}

func newLocalCounter(now func() time.Time) *localCounter {
	return &localCounter{now: now, windows: make(map[string]*window)}
}

func (c *localCounter) incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.windows) > localSweepSize {
		for k, w := range c.windows {
			if !now.Before(w.expireAt) {
				delete(c.windows, k)
			}
		}
	}
	w, ok := c.windows[key]
	if !ok || !now.Before(w.expireAt) {
		w = &window{expireAt: now.Add(ttl)}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}
