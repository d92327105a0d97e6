package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/errs"
	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/realtime"
	"github.com/cacheoracle/cacheoracle/uuid"
)

type sessionRequest struct {
	ConnectionID     string `json:"connectionId"`
	ConnectionString string `json:"connectionString"`
	Mode             string `json:"mode"`
}

func (r *sessionRequest) target() realtime.Target {
	return realtime.Target{ConnectionID: r.ConnectionID, ConnectionString: r.ConnectionString}
}

func sessionView(s *realtime.Session) gin.H {
	return gin.H{
		"sessionId":    s.ID,
		"mode":         s.Mode(),
		"connectionId": s.Target().ConnectionID,
	}
}

func bindSessionRequest(c *gin.Context) (*sessionRequest, bool) {
	req := new(sessionRequest)
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	if req.ConnectionID != "" && !validConnectionID(req.ConnectionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return nil, false
	}
	return req, true
}

// applySession points s at the requested target and mode. Requests that
// leave a field empty keep the current value.
func applySession(c *gin.Context, s *realtime.Session, req *sessionRequest) bool {
	if req.ConnectionID != "" || req.ConnectionString != "" {
		if err := s.SetActive(req.target()); err != nil {
			sessionError(c, err)
			return false
		}
	}
	if req.Mode == "" {
		return true
	}
	mode, err := realtime.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := s.SetMode(mode); err != nil {
		sessionError(c, err)
		return false
	}
	return true
}

func sessionError(c *gin.Context, err error) {
	switch err {
	case realtime.ErrNoTarget, realtime.ErrNoConnectionID, realtime.ErrNoFetcher:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case realtime.ErrSessionNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case realtime.ErrTooManySessions:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		GetHTTPLogger(c).WithFields(logrus.Fields{
			"session": c.Param("session_id"),
			"err":     err,
		}).Error("Failed to switch the session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errs.Public(err)})
	}
}

func loadSession(c *gin.Context) (*realtime.Session, bool) {
	s, ok := _sessions.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": realtime.ErrSessionNotFound.Error()})
		return nil, false
	}
	return s, true
}

// storedLatest returns the newest persisted snapshot of connID. Lookup
// failures only cost the session view its fallback, so they are logged.
func storedLatest(c *gin.Context, connID string) *model.Snapshot {
	if connID == "" {
		return nil
	}
	snapshots, err := _store.ListSnapshots(c.Request.Context(), connID, 1)
	if err != nil {
		GetHTTPLogger(c).WithFields(logrus.Fields{
			"conn_id": connID,
			"err":     err,
		}).Warn("Failed to load the latest snapshot")
		return nil
	}
	if len(snapshots) == 0 {
		return nil
	}
	return snapshots[0]
}

// POST /api/sessions
func CreateSession(c *gin.Context) {
	req, ok := bindSessionRequest(c)
	if !ok {
		return
	}
	s, err := _sessions.Open(uuid.GenUniqueID())
	if err != nil {
		sessionError(c, err)
		return
	}
	if !applySession(c, s, req) {
		_sessions.Close(s.ID)
		return
	}
	c.JSON(http.StatusCreated, sessionView(s))
}

// PUT /api/sessions/:session_id
func UpdateSession(c *gin.Context) {
	s, ok := loadSession(c)
	if !ok {
		return
	}
	req, ok := bindSessionRequest(c)
	if !ok {
		return
	}
	if !applySession(c, s, req) {
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

// GET /api/sessions/:session_id
func GetSession(c *gin.Context) {
	s, ok := loadSession(c)
	if !ok {
		return
	}
	view := sessionView(s)
	history := s.History()
	view["history"] = history.All()
	view["latest"] = model.Coalesce(history.Latest(), storedLatest(c, s.Target().ConnectionID))
	c.JSON(http.StatusOK, view)
}

// DELETE /api/sessions/:session_id
func DeleteSession(c *gin.Context) {
	if err := _sessions.Close(c.Param("session_id")); err != nil {
		sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/sessions/:session_id/events
// Server-sent events of the session, whatever its current mode.
func SessionEvents(c *gin.Context) {
	s, ok := loadSession(c)
	if !ok {
		return
	}
	detach := s.Attach()
	defer detach()
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan sseEvent)
	go func() {
		defer close(events)
		for {
			var ev sseEvent
			select {
			case e := <-s.Events():
				if e.Err != nil {
					ev = sseEvent{name: "error", data: gin.H{"error": errs.Public(e.Err)}}
				} else {
					ev = sseEvent{name: "snapshot", data: e.Snapshot}
				}
			case <-ctx.Done():
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	metrics.Streams.WithLabelValues("session").Inc()
	defer metrics.Streams.WithLabelValues("session").Dec()
	streamEvents(c, ctx, events)
}
