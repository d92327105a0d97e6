package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/magiconair/properties/assert"

	"github.com/cacheoracle/cacheoracle/monitor"
	"github.com/cacheoracle/cacheoracle/server/handlers"
)

func postMetrics(t *testing.T, body interface{}) (int, *monitor.Result) {
	data, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", "http://localhost/api/metrics", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	c, e, resp := ginTest(req)
	e.POST("/api/metrics", handlers.GetMetrics)
	e.HandleContext(c)
	result := new(monitor.Result)
	if err := json.Unmarshal(resp.Body.Bytes(), result); err != nil {
		t.Fatalf("Failed to decode the response: %s", resp.Body.String())
	}
	return resp.Code, result
}

func TestGetMetrics(t *testing.T) {
	code, result := postMetrics(t, map[string]string{
		"connectionString": connectionString,
		"connectionId":     "collect-conn",
	})
	if code != http.StatusOK {
		t.Fatalf("Failed to collect metrics: %s", result.Error)
	}
	assert.Equal(t, result.Success, true)
	assert.Equal(t, result.Metrics.Seq, int64(1))
	assert.Equal(t, result.Assessment != nil, true)
	assert.Equal(t, result.Warning, "")
}

func TestGetMetrics_Invalid(t *testing.T) {
	code, result := postMetrics(t, map[string]string{"connectionString": "telnet cache 6379"})
	assert.Equal(t, code, http.StatusBadRequest)
	assert.Equal(t, result.Success, false)
	assert.Equal(t, result.Error, "invalid connection string format")

	code, result = postMetrics(t, map[string]string{"connectionString": "redis-cli -h 169.254.169.254"})
	assert.Equal(t, code, http.StatusBadRequest)
	assert.Equal(t, result.Error, "connection to internal hosts is not allowed")

	code, result = postMetrics(t, map[string]string{"connectionString": connectionString, "connectionId": "bad id!"})
	assert.Equal(t, code, http.StatusBadRequest)
	assert.Equal(t, result.Error, "invalid connection id")

	code, result = postMetrics(t, "not an object")
	assert.Equal(t, code, http.StatusBadRequest)
	assert.Equal(t, result.Error, "invalid request body")
}
