package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacheoracle/cacheoracle/config"
)

var CONF *config.Config

func TestMain(m *testing.M) {
	presetConfig, err := config.CreatePresetForTest()
	if err != nil {
		panic(fmt.Sprintf("CreatePresetForTest failed with error: %s", err))
	}
	CONF = presetConfig.Config
	ret := m.Run()
	presetConfig.Destroy()
	os.Exit(ret)
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	cli := NewClient(&CONF.Storage.Redis, nil)
	defer cli.Close()
	require.Nil(t, cli.Set(ctx, "helper-key", "v", 0).Err())
	val, err := cli.Get(ctx, "helper-key").Result()
	require.Nil(t, err)
	assert.Equal(t, "v", val)
	assert.Equal(t, CONF.Storage.Redis.Addr, cli.Options().Addr)
}

func TestNewClient_Defaults(t *testing.T) {
	cli := NewClient(&CONF.Storage.Redis, nil)
	defer cli.Close()
	assert.Equal(t, defaultDialTimeout, cli.Options().DialTimeout)
	assert.Equal(t, defaultReadTimeout, cli.Options().ReadTimeout)
	assert.Equal(t, CONF.Storage.Redis.Addr, storeNode(&CONF.Storage.Redis))
}

func TestPing(t *testing.T) {
	cli := NewClient(&CONF.Storage.Redis, nil)
	defer cli.Close()
	assert.NoError(t, Ping(context.Background(), cli, time.Second))

	down := NewClient(&config.RedisConf{Addr: "127.0.0.1:1"}, nil)
	defer down.Close()
	assert.Error(t, Ping(context.Background(), down, time.Second))
}
