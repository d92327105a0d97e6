package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func internalError(c *gin.Context, op string, err error) {
	GetHTTPLogger(c).WithFields(logrus.Fields{
		"conn_id": c.Param("id"),
		"err":     err,
	}).Errorf("Failed to %s", op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// GET /api/connections/:id/uptime?limit=
func UptimeHistory(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	records, err := _store.UptimeHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		internalError(c, "list the uptime history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connectionId": c.Param("id"), "uptime": records})
}

// GET /api/connections/:id/reboots?limit=
func Reboots(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	events, err := _store.Reboots(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		internalError(c, "list the reboots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connectionId": c.Param("id"), "reboots": events})
}

// GET /api/connections/:id/snapshots?limit=
func Snapshots(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	snapshots, err := _store.ListSnapshots(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		internalError(c, "list the snapshots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connectionId": c.Param("id"), "snapshots": snapshots})
}

// DELETE /api/connections/:id
func DeleteConnection(c *gin.Context) {
	if err := _store.DeleteConnection(c.Request.Context(), c.Param("id")); err != nil {
		internalError(c, "delete the connection", err)
		return
	}
	c.Status(http.StatusNoContent)
}
