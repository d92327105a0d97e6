package client

import (
	"fmt"
	"io/ioutil"
	"net"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/config"
	"github.com/cacheoracle/cacheoracle/monitor"
	"github.com/cacheoracle/cacheoracle/probe"
	"github.com/cacheoracle/cacheoracle/realtime"
	"github.com/cacheoracle/cacheoracle/server/handlers"
	"github.com/cacheoracle/cacheoracle/storage"
)

var (
	Host             string
	Port             int
	ConnectionString string

	server *httptest.Server
)

// setup serves the api handlers in process against an in-memory store and
// the preset redis as the monitored server.
func setup(conf *config.Config) {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)

	host, port, err := net.SplitHostPort(conf.Storage.Redis.Addr)
	if err != nil {
		panic(fmt.Sprintf("invalid preset addr: %s", err))
	}
	ConnectionString = fmt.Sprintf("redis-cli -h %s -p %s", host, port)

	store := storage.NewMemory(conf.Storage.MaxSnapshots)
	notifier := realtime.NewLocal()
	mon := monitor.New(store, notifier, monitor.Options{
		Probe:        probe.Options{ConnectTimeout: 2 * time.Second, LatencySamples: 3},
		AllowedHosts: []string{host},
	}, logger)
	handlers.Setup(logger, handlers.Deps{
		Monitor:  mon,
		Store:    store,
		Notifier: notifier,
		Sessions: realtime.NewManager(notifier, mon.Snapshot, time.Second, conf.Monitor.HistorySize, logger),
	})

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	api := e.Group("/api")
	api.POST("/metrics", handlers.GetMetrics)
	conn := api.Group("/connections/:id", handlers.ValidateConnectionID)
	conn.GET("/uptime", handlers.UptimeHistory)
	conn.GET("/reboots", handlers.Reboots)
	conn.GET("/snapshots", handlers.Snapshots)
	conn.DELETE("", handlers.DeleteConnection)
	server = httptest.NewServer(e)

	addr := server.Listener.Addr().(*net.TCPAddr)
	Host = addr.IP.String()
	Port = addr.Port
}

func TestMain(m *testing.M) {
	presetConfig, err := config.CreatePresetForTest()
	if err != nil {
		panic(fmt.Sprintf("CreatePresetForTest failed with error: %s", err))
	}
	setup(presetConfig.Config)
	ret := m.Run()
	server.Close()
	presetConfig.Destroy()
	os.Exit(ret)
}
