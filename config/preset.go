package config

import (
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/redis"
)

var SpannerEmulator = &SpannerConfig{
	Project:  "test-project",
	Instance: "test-instance",
	Database: "test-db",
}

type PresetConfigForTest struct {
	*Config
	containers []*gnomock.Container
}

// CreatePresetForTest starts a throwaway redis and returns a config whose
// store points at it.
func CreatePresetForTest() (*PresetConfigForTest, error) {
	cfg := &Config{
		Host:      "127.0.0.1",
		Port:      7777,
		AdminHost: "127.0.0.1",
		AdminPort: 7778,
	}
	setDefaults(cfg)
	cfg.LogLevel = "INFO"

	container, err := gnomock.Start(redis.Preset())
	if err != nil {
		return nil, err
	}
	cfg.Storage.Redis = RedisConf{Addr: container.DefaultAddress(), mode: standaloneMode}
	return &PresetConfigForTest{
		Config:     cfg,
		containers: []*gnomock.Container{container},
	}, nil
}

func (presetConfig *PresetConfigForTest) Destroy() {
	gnomock.Stop(presetConfig.containers...)
	presetConfig.Config = nil
}
