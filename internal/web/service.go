package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServiceInfo is returned by the index endpoint.
type ServiceInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MountServiceRoutes registers / and /health.
func MountServiceRoutes(router gin.IRouter, info ServiceInfo, database Pinger, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("/", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, info)
	})

	router.GET("/health", func(contextGin *gin.Context) {
		if database != nil {
			if pingErr := database.Ping(contextGin.Request.Context()); pingErr != nil {
				logger.Error("health check failed",
					zap.String("code", "health.database_unreachable"),
					zap.Error(pingErr))
				contextGin.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		contextGin.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
}
