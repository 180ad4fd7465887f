package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/api"
	"github.com/charlesng35/studiofolio/internal/app"
	"github.com/charlesng35/studiofolio/internal/app/maintenance"
	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/cache"
	"github.com/charlesng35/studiofolio/internal/database"
	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/handlers"
	"github.com/charlesng35/studiofolio/internal/middleware"
	"github.com/charlesng35/studiofolio/internal/monitoring"
	"github.com/charlesng35/studiofolio/internal/monitoring/checks"
	"github.com/charlesng35/studiofolio/internal/realtime"
	"github.com/charlesng35/studiofolio/internal/services"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/internal/transcode"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *cache.RedisStore
	Store    storage.ObjectStore
	Registry *gallery.Registry
	Hub      *realtime.Hub
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine

	stopSnapshots context.CancelFunc
	snapshotsDone chan struct{}
}

// bootstrapRuntime initialises databases, caches, storage, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background(), log); shutdownErr != nil {
				log.Warn("cleanup after failed start", zap.Error(shutdownErr))
			}
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := app.PersistGeneratedSecrets(ctx, stack.DB, cfg, generated); err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	var (
		store        cache.Store = dbStore
		cacheBackend             = "database"
	)
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			store, cacheBackend = stack.Redis, "redis"
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewSessionCache(store)
	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	objects, media, err := openObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	driver := cfg.Storage.DriverName()
	stack.Store = storage.Instrument(storage.NewBreakerStore(objects, cfg.Storage.BreakerStoreConfig()), driver)
	log.Info("object storage ready", zap.String("driver", driver))

	transcoder := transcode.New(
		transcode.WithMaxEdge(cfg.Media.MaxEdge),
		transcode.WithQuality(cfg.Media.Quality),
	)

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	siteURL := strings.TrimRight(strings.TrimSpace(cfg.Site.BaseURL), "/")
	verification, err := services.NewEmailVerificationService(stack.DB, mailer, services.WithVerificationBaseURL(siteURL))
	if err != nil {
		return nil, fmt.Errorf("initialise email verification: %w", err)
	}
	accounts, err := services.NewAccountService(stack.DB, sessionSvc, mailer,
		services.WithVerification(verification),
		services.WithResetBaseURL(siteURL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise account service: %w", err)
	}
	if err := accounts.Bootstrap(ctx, database.AdminSeed{
		Email:       cfg.Admin.Email,
		Password:    cfg.Admin.Password,
		DisplayName: cfg.Admin.DisplayName,
	}); err != nil {
		return nil, err
	}

	invites, err := services.NewInviteService(stack.DB, stack.Store, transcoder,
		services.WithInviteBaseURL(siteURL),
		services.WithAvatarCacheControl(cfg.Storage.CacheControl),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise invite service: %w", err)
	}

	var testimonialOpts []services.TestimonialOption
	if cfg.Email.NotifySubmissions {
		testimonialOpts = append(testimonialOpts, services.WithSubmissionNotice(mailer, accounts.AdminEmail()))
	}
	testimonials, err := services.NewTestimonialService(stack.DB, testimonialOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise testimonial service: %w", err)
	}

	repo := gallery.NewGormRepository(stack.DB)
	feed := gallery.NewFeed(repo)
	stack.Registry, err = gallery.NewRegistry(feed, repo, stack.Store, transcoder,
		gallery.WithCacheControl(cfg.Storage.CacheControl),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise gallery: %w", err)
	}
	if err := stack.Registry.Start(ctx); err != nil {
		return nil, fmt.Errorf("start gallery: %w", err)
	}

	snapshots := gallery.NewSnapshotCache(store, feed, cfg.Cache.SnapshotTTL)
	snapshotCtx, stopSnapshots := context.WithCancel(context.WithoutCancel(ctx))
	stack.stopSnapshots = stopSnapshots
	stack.snapshotsDone = make(chan struct{})
	go func() {
		defer close(stack.snapshotsDone)
		snapshots.Run(snapshotCtx)
	}()

	stack.Hub = realtime.NewHub(
		realtime.WithAllowedOrigins(cfg.Server.CORSOrigins...),
		realtime.WithInitial(realtime.InitialState(snapshots, testimonials, 0)),
	)
	realtime.ForwardSnapshots(feed, stack.Hub)

	module := monitoring.NewModule(monitoring.Options{CheckTimeout: cfg.Monitoring.Health.Timeout})
	module.Health().RegisterReadiness(checks.Database(stack.DB))
	module.Health().RegisterReadiness(checks.Cache(store, cacheBackend))
	storePinger, _ := stack.Store.(checks.Pinger)
	module.Health().RegisterReadiness(checks.Storage(storePinger, driver))
	module.Health().RegisterReadiness(checks.Maintenance(module.Jobs(), cfg.Maintenance.MaxJobAge))

	stack.Cleaner = maintenance.NewCleaner(stack.DB,
		maintenance.WithSessions(sessionSvc),
		maintenance.WithCache(dbStore),
		maintenance.WithObjectStore(stack.Store),
		maintenance.WithOrphanGrace(cfg.Maintenance.OrphanGrace),
		maintenance.WithRecorder(module.Jobs()),
		maintenance.WithSessionSchedule(cfg.Maintenance.Sessions),
		maintenance.WithTokenSchedule(cfg.Maintenance.Tokens),
		maintenance.WithOrphanSchedule(cfg.Maintenance.Orphans),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		Accounts:      accounts,
		Verification:  verification,
		Invites:       invites,
		Testimonials:  testimonials,
		Registry:      stack.Registry,
		Snapshots:     snapshots,
		Hub:           stack.Hub,
		Monitoring:    module,
		RateStore:     middleware.NewStoreRateStore(store),
		ResponseCache: responseCache(stack.Redis),
		Media:         media,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// openObjectStore returns the configured store. The in-memory store is also
// returned as the media source served under /media.
func openObjectStore(ctx context.Context, cfg *app.Config) (storage.ObjectStore, handlers.MediaSource, error) {
	switch cfg.Storage.DriverName() {
	case "s3":
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage.S3StoreConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 storage: %w", err)
		}
		return s3Store, nil, nil
	case "memory", "":
		baseURL := strings.TrimRight(strings.TrimSpace(cfg.Storage.PublicBaseURL), "/")
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d/media", cfg.Server.Port)
		}
		mem := storage.NewMemoryStore(baseURL)
		return mem, mem, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// responseCache shares cached public responses through Redis when it is
// connected; otherwise the router keeps them in process memory.
func responseCache(store *cache.RedisStore) persist.CacheStore {
	if store == nil {
		return nil
	}
	client, ok := store.Client().(*redis.Client)
	if !ok {
		return nil
	}
	return persist.NewRedisStore(client)
}

// Shutdown stops background work and releases resources in reverse start order.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance: %w", err))
		}
	}

	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.Registry != nil {
		s.Registry.Close()
	}

	if s.stopSnapshots != nil {
		s.stopSnapshots()
		select {
		case <-s.snapshotsDone:
		case <-time.After(5 * time.Second):
			log.Warn("snapshot cache did not flush in time")
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:   strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:     strings.TrimSpace(cfg.Database.Path),
		DSN:      strings.TrimSpace(cfg.Database.DSN),
		LogLevel: cfg.Database.LogLevel,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		applyDBAuth(&dbCfg, cfg.Database.Postgres)
	case "mysql":
		applyDBAuth(&dbCfg, cfg.Database.MySQL)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func applyDBAuth(dbCfg *database.Config, auth app.DBAuthConfig) {
	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
