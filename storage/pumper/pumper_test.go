package pumper

import (
	"io/ioutil"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/redis"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/cacheoracle/cacheoracle/storage/lock"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func TestNewDefault_FailOver(t *testing.T) {
	mockRedis, err := gnomock.Start(redis.Preset())
	require.Empty(t, err)
	defer gnomock.Stop(mockRedis)
	redisCli := goredis.NewClient(&goredis.Options{
		Addr: mockRedis.DefaultAddress(),
	})
	defer redisCli.Close()
	interval := time.Second
	l := lock.NewRedisLock(redisCli, "test-fail-over", interval)
	p1 := NewDefault(l, interval/2, quietLogger())
	p2 := NewDefault(l, interval/2, quietLogger())

	var counter atomic.Int32
	go p1.Loop(func() bool {
		counter.Add(1)
		return false
	})
	go p2.Loop(func() bool {
		counter.Add(1)
		return false
	})
	time.Sleep(2 * time.Second)
	assert.GreaterOrEqual(t, counter.Load(), int32(2))
	assert.LessOrEqual(t, counter.Load(), int32(5))
	p1.Shutdown()
	time.Sleep(2 * time.Second)
	assert.LessOrEqual(t, counter.Load(), int32(8))
	p2.Shutdown()
}

func TestNewDefault_Batches(t *testing.T) {
	p := NewDefault(lock.NewLocalLock("batches", time.Second), 50*time.Millisecond, quietLogger())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		p.Loop(func() bool {
			// the first tick drains three batches in a row
			return calls.Inc()%3 != 0
		})
		close(done)
	}()
	time.Sleep(80 * time.Millisecond)
	p.Shutdown()
	<-done
	assert.Equal(t, int32(3), calls.Load())
}
