package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/handlers"
)

func registerGalleryRoutes(admin *gin.RouterGroup, handler *handlers.GalleryHandler) {
	collections := admin.Group("/gallery/:kind")
	{
		collections.GET("", handler.List)
		collections.POST("", handler.Append)
		collections.POST("/reorder", handler.Reorder)
		collections.POST("/refresh", handler.Refresh)
		collections.PUT("/:id", handler.Replace)
		collections.DELETE("/:id", handler.Delete)
	}
}
