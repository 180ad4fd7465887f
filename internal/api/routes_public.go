package api

import (
	"time"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/handlers"
	"github.com/charlesng35/studiofolio/internal/middleware"
)

type publicRouteDeps struct {
	Handler         *handlers.PublicHandler
	RateStore       middleware.RateStore
	SubmissionLimit int
	Window          time.Duration
	ResponseCache   persist.CacheStore
	ResponseTTL     time.Duration
}

func registerPublicRoutes(engine *gin.Engine, deps publicRouteDeps) {
	store := deps.ResponseCache
	if store == nil {
		store = persist.NewMemoryStore(time.Minute)
	}

	public := engine.Group("/api/public")
	{
		public.GET("/gallery/:kind", deps.Handler.Gallery)
		public.GET("/testimonials", cache.CacheByRequestURI(store, deps.ResponseTTL), deps.Handler.Testimonials)
		public.GET("/invites/:token", deps.Handler.Invite)
		public.POST("/invites/:token/testimonial",
			middleware.ScopedRateLimit("submit", deps.RateStore, deps.SubmissionLimit, deps.Window),
			deps.Handler.Submit,
		)
	}
}
