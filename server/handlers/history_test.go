package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/magiconair/properties/assert"

	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/server/handlers"
)

func seedConnection(t *testing.T, connID string) {
	ctx := context.Background()
	now := time.Now()
	for i, uptime := range []int64{100, 200, 10} {
		at := now.Add(time.Duration(i) * time.Second)
		if _, err := store.SaveSnapshot(ctx, connID, &model.Snapshot{Timestamp: at.UnixMilli()}); err != nil {
			t.Fatalf("Failed to seed the snapshot: %s", err)
		}
		if _, _, err := store.RecordUptime(ctx, connID, uptime, at); err != nil {
			t.Fatalf("Failed to seed the uptime: %s", err)
		}
	}
}

func serveConnection(t *testing.T, method, target string, handler gin.HandlerFunc) (int, map[string]json.RawMessage) {
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		t.Fatalf("Failed to create request")
	}
	c, e, resp := ginTest(req)
	e.Handle(method, "/api/connections/:id/*action", handlers.ValidateConnectionID, handler)
	e.HandleContext(c)
	body := make(map[string]json.RawMessage)
	if resp.Body.Len() > 0 {
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode the response: %s", resp.Body.String())
		}
	}
	return resp.Code, body
}

func TestUptimeHistory(t *testing.T) {
	seedConnection(t, "uptime-conn")
	code, body := serveConnection(t, "GET", "http://localhost/api/connections/uptime-conn/uptime", handlers.UptimeHistory)
	assert.Equal(t, code, http.StatusOK)
	var records []model.UptimeRecord
	json.Unmarshal(body["uptime"], &records)
	assert.Equal(t, len(records), 3)
	assert.Equal(t, records[0].UptimeSeconds, int64(10))
	assert.Equal(t, records[0].ServerRebooted, true)

	code, body = serveConnection(t, "GET", "http://localhost/api/connections/uptime-conn/uptime?limit=1", handlers.UptimeHistory)
	assert.Equal(t, code, http.StatusOK)
	json.Unmarshal(body["uptime"], &records)
	assert.Equal(t, len(records), 1)

	code, _ = serveConnection(t, "GET", "http://localhost/api/connections/uptime-conn/uptime?limit=abc", handlers.UptimeHistory)
	assert.Equal(t, code, http.StatusBadRequest)
}

func TestReboots(t *testing.T) {
	seedConnection(t, "reboot-conn")
	code, body := serveConnection(t, "GET", "http://localhost/api/connections/reboot-conn/reboots", handlers.Reboots)
	assert.Equal(t, code, http.StatusOK)
	var events []model.RebootEvent
	json.Unmarshal(body["reboots"], &events)
	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].PreviousUptimeSeconds, int64(200))
}

func TestSnapshots(t *testing.T) {
	seedConnection(t, "snapshot-conn")
	code, body := serveConnection(t, "GET", "http://localhost/api/connections/snapshot-conn/snapshots", handlers.Snapshots)
	assert.Equal(t, code, http.StatusOK)
	var snapshots []model.Snapshot
	json.Unmarshal(body["snapshots"], &snapshots)
	assert.Equal(t, len(snapshots), 3)
	assert.Equal(t, snapshots[0].Seq, int64(3))
}

func TestDeleteConnection(t *testing.T) {
	seedConnection(t, "delete-conn")
	code, _ := serveConnection(t, "DELETE", "http://localhost/api/connections/delete-conn/", handlers.DeleteConnection)
	assert.Equal(t, code, http.StatusNoContent)

	snapshots, _ := store.ListSnapshots(context.Background(), "delete-conn", 0)
	assert.Equal(t, len(snapshots), 0)
	records, _ := store.UptimeHistory(context.Background(), "delete-conn", 0)
	assert.Equal(t, len(records), 0)
}

func TestValidateConnectionID(t *testing.T) {
	code, body := serveConnection(t, "GET", "http://localhost/api/connections/bad%20id/uptime", handlers.UptimeHistory)
	assert.Equal(t, code, http.StatusBadRequest)
	assert.Equal(t, string(body["error"]), `"invalid connection id"`)
}
