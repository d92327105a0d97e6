// Package lock elects a single instance to run cluster-wide background jobs.
package lock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

type Lock interface {
	Name() string
	Acquire() error
	Expiry() time.Duration
	ExtendLease() (bool, error)
	Release() (bool, error)
}

type RedisLock struct {
	name   string
	mu     *redsync.Mutex
	expiry time.Duration
}

func NewRedisLock(redisCli *redis.Client, name string, expiry time.Duration) *RedisLock {
	pool := goredis.NewPool(redisCli)
	rs := redsync.New(pool)
	mu := rs.NewMutex(fmt.Sprintf("cacheoracle:lock:%s", name),
		redsync.WithExpiry(expiry),
		redsync.WithTries(1))
	return &RedisLock{
		name:   name,
		expiry: expiry,
		mu:     mu,
	}
}

func (l *RedisLock) Name() string {
	return l.name
}

func (l *RedisLock) Acquire() error {
	return l.mu.Lock()
}

func (l *RedisLock) Expiry() time.Duration {
	return l.expiry
}

func (l *RedisLock) ExtendLease() (bool, error) {
	return l.mu.Extend()
}

func (l *RedisLock) Release() (bool, error) {
	return l.mu.Unlock()
}

var ErrLocked = errors.New("lock is held by another owner")

// LocalLock only excludes owners inside this process. It stands in for the
// redis lock when the backend has no shared redis.
type LocalLock struct {
	name   string
	expiry time.Duration

	mu   sync.Mutex
	held bool
}

func NewLocalLock(name string, expiry time.Duration) *LocalLock {
	return &LocalLock{name: name, expiry: expiry}
}

func (l *LocalLock) Name() string {
	return l.name
}

func (l *LocalLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return ErrLocked
	}
	l.held = true
	return nil
}

func (l *LocalLock) Expiry() time.Duration {
	return l.expiry
}

func (l *LocalLock) ExtendLease() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held, nil
}

func (l *LocalLock) Release() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	released := l.held
	l.held = false
	return released, nil
}
