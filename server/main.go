package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"

	"github.com/cacheoracle/cacheoracle/config"
	"github.com/cacheoracle/cacheoracle/log"
	"github.com/cacheoracle/cacheoracle/monitor"
	"github.com/cacheoracle/cacheoracle/probe"
	"github.com/cacheoracle/cacheoracle/realtime"
	"github.com/cacheoracle/cacheoracle/server/handlers"
	"github.com/cacheoracle/cacheoracle/server/middleware"
	"github.com/cacheoracle/cacheoracle/storage/backend"
	"github.com/cacheoracle/cacheoracle/version"
)

type optionFlags struct {
	ConfFile       string
	EnvFile        string
	PidFile        string
	ShowVersion    bool
	BackTrackLevel string
}

var (
	Flags optionFlags
)

func registerSignal(shutdown chan struct{}, logsReopenCallback func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1}...)
	go func() {
		for sig := range c {
			if handleSignals(sig, logsReopenCallback) {
				close(shutdown)
				return
			}
		}
	}()
}

func handleSignals(sig os.Signal, logsReopenCallback func()) (exitNow bool) {
	switch sig {
	case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM:
		return true
	case syscall.SIGUSR1:
		logsReopenCallback()
		return false
	}
	return false
}

func parseFlags() {
	flagSet := flag.NewFlagSet("cacheoracle", flag.ExitOnError)
	flagSet.StringVar(&Flags.ConfFile, "c", "conf/config.toml", "config file path")
	flagSet.StringVar(&Flags.EnvFile, "e", ".env", "optional env file loaded before the config")
	flagSet.BoolVar(&Flags.ShowVersion, "v", false, "show current version")
	flagSet.StringVar(&Flags.BackTrackLevel, "bt", "warn", "show backtrack in the log >= {level}")
	flagSet.StringVar(&Flags.PidFile, "p", "running.pid", "pid file path")
	flagSet.Parse(os.Args[1:])
}

func printVersion() {
	fmt.Printf("version: %s\nbuilt at: %s\ncommit: %s\n", version.Version, version.BuildDate, version.BuildCommit)
}

func apiServer(conf *config.Config, accessLogger, errorLogger *logrus.Logger, deps handlers.Deps) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.AccessLogMiddleware(accessLogger),
		gin.RecoveryWithWriter(errorLogger.Out),
	)
	SetupRoutes(engine, errorLogger, deps)
	addr := fmt.Sprintf("%s:%d", conf.Host, conf.Port)
	errorLogger.Infof("Server listening at %s", addr)
	srv := http.Server{
		Addr:    addr,
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				return
			}
			panic(fmt.Sprintf("API server failed: %s", err))
		}
	}()
	return &srv
}

func adminServer(conf *config.Config, accessLogger *logrus.Logger, errorLogger *logrus.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.RequestIDMiddleware, middleware.AccessLogMiddleware(accessLogger), gin.RecoveryWithWriter(errorLogger.Out))

	engine.GET("/ping", handlers.Ping)
	engine.GET("/version", handlers.Version)
	engine.GET("/metrics", handlers.PrometheusMetrics)
	engine.Any("/debug/pprof/*profile", handlers.PProf)
	errorLogger.Infof("Admin port %d", conf.AdminPort)
	srv := http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.AdminHost, conf.AdminPort),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				return
			}
			panic(fmt.Sprintf("Admin server failed: %s", err))
		}
	}()
	return &srv
}

func createPidFile(logger *logrus.Logger) {
	f, err := os.OpenFile(Flags.PidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		panic("failed to create pid file")
	}
	io.WriteString(f, fmt.Sprintf("%d", os.Getpid()))
	f.Close()
	logger.Infof("Server pid: %d", os.Getpid())
}

func removePidFile() {
	os.Remove(Flags.PidFile)
}

func main() {
	parseFlags()
	if Flags.ShowVersion {
		printVersion()
		return
	}
	// a missing env file is fine, the environment may already be set
	if err := godotenv.Load(Flags.EnvFile); err != nil && !os.IsNotExist(err) {
		panic(fmt.Sprintf("Failed to load the env file: %s", err))
	}
	conf, err := config.MustLoad(Flags.ConfFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config file: %s", err))
	}
	shutdown := make(chan struct{})
	if err := log.Setup(conf.LogFormat, conf.LogDir, conf.LogLevel, Flags.BackTrackLevel); err != nil {
		panic(fmt.Sprintf("Failed to setup logger: %s", err))
	}
	logger := log.Get()
	if conf.EnableAccessLog {
		middleware.EnableAccessLog()
	}
	registerSignal(shutdown, func() {
		if err := log.ReopenLogs(conf.LogDir); err != nil {
			logger.WithError(err).Error("Failed to reopen the logs")
		}
	})

	if err := backend.Init(conf, logger); err != nil {
		panic(fmt.Sprintf("Failed to init the storage: %s", err))
	}
	store := backend.Get()
	mon := monitor.New(store.Persistence(), store.Notifier(), monitor.Options{
		Probe: probe.Options{
			ConnectTimeout: conf.Monitor.ConnectTimeout(),
			LatencySamples: conf.Monitor.LatencySamples,
			SlowlogLimit:   conf.Monitor.SlowlogLimit,
		},
		AllowedHosts: conf.Monitor.AllowedHosts,
		Throttler:    store.Throttler(),
	}, logger)
	sessions := realtime.NewManager(store.Notifier(), mon.Snapshot,
		conf.Monitor.PollInterval(), conf.Monitor.HistorySize, logger,
		realtime.WithIdleTimeout(conf.Monitor.SessionIdle()),
		realtime.WithMaxSessions(conf.Monitor.MaxSessions))

	apiSrv := apiServer(conf, log.GetAccessLogger(), logger, handlers.Deps{
		Monitor:  mon,
		Store:    store.Persistence(),
		Notifier: store.Notifier(),
		Sessions: sessions,
	})
	adminSrv := adminServer(conf, log.GetAccessLogger(), logger)

	createPidFile(logger)

	<-shutdown
	logger.Infof("[%d] Shutting down...", os.Getpid())
	removePidFile()
	adminSrv.Close() // Admin server does not need to be stopped gracefully
	// open event streams would hold a graceful shutdown forever
	sessions.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	apiSrv.Shutdown(ctx)
	store.Shutdown()
	logger.Infof("[%d] Bye bye", os.Getpid())
}
