package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/uuid"
)

// enableAccessLog control whether accesslog output
var enableAccessLog = false

// AccessLogStatus return whether whether accesslog output
func AccessLogStatus() bool {
	return enableAccessLog
}

// EnableAccessLog enable accesslog output
func EnableAccessLog() {
	enableAccessLog = true
}

// DisableAccessLog disable accesslog output
func DisableAccessLog() {
	enableAccessLog = false
}

// RequestIDMiddleware set request uuid into context
func RequestIDMiddleware(c *gin.Context) {
	reqID := uuid.GenUniqueID()
	c.Set("req_id", reqID)
	c.Header("X-Request-ID", reqID)
}

// CORSMiddleware lets browser dashboards on any origin call the API
func CORSMiddleware(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
}

// AccessLogMiddleware generate accesslog and output
func AccessLogMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Start timer
		start := time.Now()
		path := c.Request.URL.Path

		// Process request
		c.Next()

		if !enableAccessLog {
			return
		}

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		fields := logrus.Fields{
			"conn_id": c.Param("id"),
			"path":    path,
			"latency": latency,
			"ip":      c.ClientIP(),
			"method":  c.Request.Method,
			"code":    statusCode,
			"req_id":  c.GetString("req_id"),
		}

		if statusCode >= 500 {
			logger.WithFields(fields).Error()
		} else if statusCode >= 400 && statusCode != 404 {
			logger.WithFields(fields).Warn()
		} else {
			logger.WithFields(fields).Info()
		}
	}
}
