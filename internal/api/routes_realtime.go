package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/handlers"
)

func registerRealtimeRoutes(engine *gin.Engine, handler *handlers.RealtimeHandler) {
	engine.GET("/ws/:stream", handler.Stream)
}

func registerMediaRoutes(engine *gin.Engine, source handlers.MediaSource) {
	if source == nil {
		return
	}
	media := handlers.Media(source)
	engine.GET("/media/*key", media)
	engine.HEAD("/media/*key", media)
}
