package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/server/handlers"
)

func SetupRoutes(e *gin.Engine, logger *logrus.Logger, deps handlers.Deps) {
	handlers.Setup(logger, deps)

	group := e.Group("/api")
	group.POST("/metrics", handlers.CollectMetrics("metrics"), handlers.GetMetrics)

	conn := group.Group("/connections/:id")
	conn.Use(handlers.ValidateConnectionID)
	conn.GET("/uptime", handlers.CollectMetrics("uptime"), handlers.UptimeHistory)
	conn.GET("/reboots", handlers.CollectMetrics("reboots"), handlers.Reboots)
	conn.GET("/snapshots", handlers.CollectMetrics("snapshots"), handlers.Snapshots)
	conn.GET("/stream", handlers.StreamSnapshots)
	conn.DELETE("", handlers.CollectMetrics("delete_connection"), handlers.DeleteConnection)

	sessions := group.Group("/sessions")
	sessions.POST("", handlers.CollectMetrics("create_session"), handlers.CreateSession)
	sessions.GET("/:session_id", handlers.GetSession)
	sessions.PUT("/:session_id", handlers.CollectMetrics("update_session"), handlers.UpdateSession)
	sessions.DELETE("/:session_id", handlers.DeleteSession)
	sessions.GET("/:session_id/events", handlers.SessionEvents)

	e.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "api not found"})
	})
}
