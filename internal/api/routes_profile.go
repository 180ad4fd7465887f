package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/handlers"
)

func registerProfileRoutes(admin *gin.RouterGroup, handler *handlers.ProfileHandler) {
	account := admin.Group("/account")
	{
		account.PATCH("/profile", handler.Update)
		account.POST("/password", handler.ChangePassword)
		account.POST("/email", handler.ChangeEmail)
		account.POST("/verify-email", handler.SendVerification)
	}
}
