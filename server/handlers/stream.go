package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/realtime"
)

const streamKeepalive = 15 * time.Second

type sseEvent struct {
	name string
	data interface{}
}

// GET /api/connections/:id/stream
// Server-sent events of every new snapshot persisted for the connection.
func StreamSnapshots(c *gin.Context) {
	connID := c.Param("id")
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := _notifier.Subscribe(ctx, connID)
	if err != nil {
		internalError(c, "subscribe to the connection", err)
		return
	}
	events := make(chan sseEvent, 1)
	subscriber := realtime.NewSubscriber(sub, nil)
	subscriber.OnSnapshot = func(s *model.Snapshot) {
		select {
		case events <- sseEvent{name: "snapshot", data: s}:
		case <-ctx.Done():
		}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(events)
		// closes the subscription on return
		subscriber.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	metrics.Streams.WithLabelValues("connection").Inc()
	defer metrics.Streams.WithLabelValues("connection").Dec()
	GetHTTPLogger(c).WithField("conn_id", connID).Debug("Snapshot stream opened")
	streamEvents(c, ctx, events)
}

// streamEvents writes events until the channel closes or ctx ends. An idle
// stream gets a ping every streamKeepalive.
func streamEvents(c *gin.Context, ctx context.Context, events <-chan sseEvent) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.name, ev.data)
			return true
		case <-keepalive.C:
			c.SSEvent("ping", time.Now().UnixMilli())
			return true
		case <-ctx.Done():
			return false
		}
	})
}
