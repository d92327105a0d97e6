package handlers

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/monitor"
	"github.com/cacheoracle/cacheoracle/realtime"
	"github.com/cacheoracle/cacheoracle/storage"
)

var setupOnce sync.Once

var (
	_logger   *logrus.Logger
	_monitor  *monitor.Monitor
	_store    storage.Persistence
	_notifier realtime.Notifier
	_sessions *realtime.Manager
)

// Deps are the components the handlers serve from.
type Deps struct {
	Monitor  *monitor.Monitor
	Store    storage.Persistence
	Notifier realtime.Notifier
	Sessions *realtime.Manager
}

func Setup(l *logrus.Logger, deps Deps) {
	setupOnce.Do(setupMetrics)
	_logger = l
	_monitor = deps.Monitor
	_store = deps.Store
	_notifier = deps.Notifier
	_sessions = deps.Sessions
}

func GetHTTPLogger(c *gin.Context) *logrus.Entry {
	reqID := c.GetString("req_id")
	if reqID == "" {
		return logrus.NewEntry(_logger)
	}
	return _logger.WithField("req_id", reqID)
}
