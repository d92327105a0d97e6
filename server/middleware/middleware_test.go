package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newEngine(logger *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(RequestIDMiddleware, CORSMiddleware, AccessLogMiddleware(logger))
	e.GET("/api/connections/:id/uptime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"req_id": c.GetString("req_id")})
	})
	return e
}

func TestMiddlewares(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	e := newEngine(logger)

	DisableAccessLog()
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connections/c1/uptime", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get("X-Request-ID"), 26)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, buf.Len())

	EnableAccessLog()
	defer DisableAccessLog()
	assert.True(t, AccessLogStatus())
	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connections/c1/uptime", nil))
	assert.Contains(t, buf.String(), `"conn_id":"c1"`)
	assert.Contains(t, buf.String(), `"code":200`)
}

func TestCORSPreflight(t *testing.T) {
	e := newEngine(logrus.New())
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/connections/c1/uptime", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}
