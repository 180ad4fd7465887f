package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/handlers"
)

func registerMonitoringRoutes(admin *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if admin == nil || handler == nil {
		return
	}

	group := admin.Group("/monitoring")
	group.GET("/summary", handler.Summary)
}
