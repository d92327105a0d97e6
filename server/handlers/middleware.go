package handlers

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxConnectionIDLength = 128

var paramRegex = regexp.MustCompile("^[-_.[:alnum:]]+$")

func validConnectionID(id string) bool {
	return id != "" && len(id) <= maxConnectionIDLength && paramRegex.MatchString(id)
}

// ValidateConnectionID rejects ids that could not have been issued by a client
func ValidateConnectionID(c *gin.Context) {
	if !validConnectionID(c.Param("id")) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return
	}
}

// parseLimit reads ?limit=, 0 when absent. Clamping happens in storage.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}
