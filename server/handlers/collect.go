package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cacheoracle/cacheoracle/errs"
	"github.com/cacheoracle/cacheoracle/monitor"
)

// POST /api/metrics
func GetMetrics(c *gin.Context) {
	var req monitor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, monitor.Result{Success: false, Error: "invalid request body"})
		return
	}
	if req.ConnectionID != "" && !validConnectionID(req.ConnectionID) {
		c.JSON(http.StatusBadRequest, monitor.Result{Success: false, Error: "invalid connection id"})
		return
	}
	result, err := _monitor.Collect(c.Request.Context(), req)
	if errs.IsKind(err, errs.RateLimitError) {
		c.JSON(http.StatusTooManyRequests, result)
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
