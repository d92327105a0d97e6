package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type PerformanceMetrics struct {
	Latencies *prometheus.SummaryVec
	HTTPCodes *prometheus.CounterVec
	Streams   *prometheus.GaugeVec
}

var metrics *PerformanceMetrics

func setupMetrics() {
	metrics = &PerformanceMetrics{}
	latencies := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "infra",
			Subsystem:  "cacheoracle_http",
			Name:       "latency_milliseconds",
			Help:       "rest api latencies",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.95: 0.001},
		},
		[]string{"api"},
	)

	httpCodes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infra",
			Subsystem: "cacheoracle_http",
			Name:      "http_codes",
			Help:      "rest api response code",
		},
		[]string{"api", "code"},
	)

	streams := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "infra",
			Subsystem: "cacheoracle_http",
			Name:      "open_streams",
			Help:      "server-sent event streams currently open",
		},
		[]string{"api"},
	)
	prometheus.MustRegister(latencies)
	prometheus.MustRegister(httpCodes)
	prometheus.MustRegister(streams)
	metrics.Latencies = latencies
	metrics.HTTPCodes = httpCodes
	metrics.Streams = streams
}

func CollectMetrics(apiName string) func(*gin.Context) {
	return func(c *gin.Context) {
		before := time.Now()
		c.Next()
		after := time.Now()
		duration := after.Sub(before)
		code := c.Writer.Status()
		if code < 300 {
			metrics.Latencies.WithLabelValues(apiName).Observe(duration.Seconds() * 1000)
		}
		metrics.HTTPCodes.WithLabelValues(apiName, strconv.Itoa(code)).Inc()
	}
}
