package handlers_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/magiconair/properties/assert"

	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/server/handlers"
)

// readEvent returns the first "event:" name and its data line.
func readEvent(t *testing.T, scanner *bufio.Scanner) (string, string) {
	var name string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && name != "":
			return name, strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	t.Fatalf("stream ended before an event: %v", scanner.Err())
	return "", ""
}

func TestStreamSnapshots(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.GET("/api/connections/:id/stream", handlers.ValidateConnectionID, handlers.StreamSnapshots)
	srv := httptest.NewServer(e)
	defer srv.Close()

	// headers go out with the first event, so publish until one arrives
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for seq := int64(1); ; seq++ {
			snapshot := &model.Snapshot{Seq: seq, Timestamp: time.Now().UnixMilli(), OverallHitRatio: 97.5}
			notifier.Publish(context.Background(), "stream-conn", model.NewRow("stream-conn", snapshot))
			select {
			case <-stop:
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/connections/stream-conn/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open the stream: %s", err)
	}
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	name, data := readEvent(t, bufio.NewScanner(resp.Body))
	assert.Equal(t, name, "snapshot")
	assert.Equal(t, strings.Contains(data, `"overallHitRatio":97.5`), true)
}
