package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/app"
	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/handlers"
	"github.com/charlesng35/studiofolio/internal/middleware"
	"github.com/charlesng35/studiofolio/internal/monitoring"
	"github.com/charlesng35/studiofolio/internal/realtime"
	"github.com/charlesng35/studiofolio/internal/services"
)

const defaultResponseTTL = 30 * time.Second

// Dependencies are the long-lived services the routes are built from.
type Dependencies struct {
	JWT          *iauth.JWTService
	Sessions     *iauth.SessionService
	Accounts     *services.AccountService
	Verification *services.EmailVerificationService
	Invites      *services.InviteService
	Testimonials *services.TestimonialService
	Registry     *gallery.Registry
	Snapshots    *gallery.SnapshotCache
	Hub          *realtime.Hub
	Monitoring   *monitoring.Module

	// RateStore counts requests; nil keeps counters in process.
	RateStore middleware.RateStore
	// ResponseCache backs cached public responses; nil uses process memory.
	ResponseCache persist.CacheStore
	// Media serves stored objects when the in-memory storage driver is active.
	Media handlers.MediaSource
}

func (d Dependencies) validate() error {
	switch {
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Sessions == nil:
		return fmt.Errorf("session service must be provided")
	case d.Accounts == nil:
		return fmt.Errorf("account service must be provided")
	case d.Invites == nil:
		return fmt.Errorf("invite service must be provided")
	case d.Testimonials == nil:
		return fmt.Errorf("testimonial service must be provided")
	case d.Registry == nil:
		return fmt.Errorf("gallery registry must be provided")
	case d.Snapshots == nil:
		return fmt.Errorf("snapshot cache must be provided")
	case d.Hub == nil:
		return fmt.Errorf("realtime hub must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger("/health", "/health/live", "/health/ready", metricsPath(cfg)))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	registerHealthRoutes(r, cfg, deps.Monitoring)
	registerMetricsRoutes(r, cfg, deps.Monitoring)

	maxBytes := cfg.Media.MaxUploadBytes

	cookie := handlers.CookieOptions{
		Domain: strings.TrimSpace(cfg.Server.Cookie.Domain),
		Secure: cfg.Server.Cookie.Secure,
	}
	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Sessions, deps.Verification, cookie)

	// Everything under /api except the public surface belongs to the administrator.
	admin := r.Group("/api")
	admin.Use(middleware.Auth(deps.JWT), middleware.RequireAdmin(deps.Accounts))

	registerAuthRoutes(r, admin, authRouteDeps{AuthHandler: authHandler, Cookie: cookie})
	registerProfileRoutes(admin, handlers.NewProfileHandler(deps.Accounts))
	registerGalleryRoutes(admin, handlers.NewGalleryHandler(deps.Registry, maxBytes))
	registerInviteRoutes(admin, handlers.NewInviteHandler(deps.Invites, deps.Hub, maxBytes))

	if deps.Monitoring != nil {
		monitoringHandler := handlers.NewMonitoringHandler(deps.Monitoring, deps.Registry, deps.Hub, realtime.AdminStreams()...)
		registerMonitoringRoutes(admin, monitoringHandler)
	}

	registerPublicRoutes(r, publicRouteDeps{
		Handler:         handlers.NewPublicHandler(deps.Snapshots, deps.Invites, deps.Testimonials, deps.Hub),
		RateStore:       deps.RateStore,
		SubmissionLimit: cfg.Server.RateLimit.Submissions,
		Window:          cfg.Server.RateLimit.Window,
		ResponseCache:   deps.ResponseCache,
		ResponseTTL:     responseTTL(cfg),
	})
	registerRealtimeRoutes(r, handlers.NewRealtimeHandler(deps.Hub, deps.JWT, deps.Accounts))
	registerMediaRoutes(r, deps.Media)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func metricsPath(cfg *app.Config) string {
	if path := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint); path != "" {
		return path
	}
	return "/metrics"
}

func responseTTL(cfg *app.Config) time.Duration {
	if cfg.Cache.ResponseTTL > 0 {
		return cfg.Cache.ResponseTTL
	}
	return defaultResponseTTL
}
