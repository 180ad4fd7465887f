package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

func userIDFrom(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.CtxUserIDKey)
	return id, id != ""
}

func sessionIDFrom(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.CtxSessionIDKey)
	return id, id != ""
}
