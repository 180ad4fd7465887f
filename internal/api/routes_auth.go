package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/handlers"
	"github.com/charlesng35/studiofolio/internal/middleware"
)

type authRouteDeps struct {
	AuthHandler *handlers.AuthHandler
	Cookie      handlers.CookieOptions
}

func registerAuthRoutes(engine *gin.Engine, admin *gin.RouterGroup, deps authRouteDeps) {
	// Login and refresh travel with the refresh cookie, so they carry the
	// double-submit token.
	cookie := engine.Group("/api/auth", middleware.CSRF(middleware.CSRFConfig{
		Path:          handlers.RefreshCookiePath,
		Domain:        deps.Cookie.Domain,
		Secure:        deps.Cookie.Secure,
		SessionCookie: handlers.RefreshCookieName,
		CookieOnly:    []string{"/api/auth/refresh"},
		RotateOn:      []string{"/api/auth/login", "/api/auth/refresh"},
	}))
	{
		cookie.GET("/csrf", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		cookie.POST("/login", deps.AuthHandler.Login)
		cookie.POST("/refresh", deps.AuthHandler.Refresh)
	}

	public := engine.Group("/api/auth")
	{
		public.POST("/password/forgot", deps.AuthHandler.ForgotPassword)
		public.POST("/password/reset", deps.AuthHandler.ResetPassword)
		public.POST("/verify-email", deps.AuthHandler.VerifyEmail)
	}

	admin.GET("/auth/me", deps.AuthHandler.Me)
	admin.POST("/auth/logout", deps.AuthHandler.Logout)
}
