package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/handlers"
)

func registerInviteRoutes(admin *gin.RouterGroup, handler *handlers.InviteHandler) {
	invites := admin.Group("/invites")
	{
		invites.GET("", handler.List)
		invites.POST("", handler.Create)
	}
}
