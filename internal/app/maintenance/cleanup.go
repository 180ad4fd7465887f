// Package maintenance runs the periodic cleanup jobs.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

const (
	defaultSessionSpec = "@hourly"
	defaultTokenSpec   = "@daily"
	defaultCacheSpec   = "@hourly"
	defaultOrphanSpec  = "@daily"

	// Appends upload before the record is written, so young prefixes may
	// still belong to an upload in flight.
	defaultOrphanGrace = time.Hour
)

// Job names reported to the job tracker.
const (
	JobSessions = "sessions"
	JobTokens   = "tokens"
	JobCache    = "cache"
	JobOrphans  = "orphans"
)

// ExpiringCache is the part of the database cache store the cleaner needs.
type ExpiringCache interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RunRecorder receives the outcome of every job run.
type RunRecorder interface {
	Register(job string)
	RecordRun(job string, err error, duration time.Duration)
}

// Cleaner coordinates background maintenance: expired sessions, used or
// expired tokens, expired cache rows and orphaned gallery objects.
type Cleaner struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	cache    ExpiringCache
	store    storage.ObjectStore
	recorder RunRecorder
	cron     *cron.Cron
	now      func() time.Time
	grace    time.Duration
	log      *zap.Logger

	sessionSchedule string
	tokenSchedule   string
	cacheSchedule   string
	orphanSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSessions enables the session cleanup job.
func WithSessions(sessions *iauth.SessionService) Option {
	return func(cleaner *Cleaner) {
		cleaner.sessions = sessions
	}
}

// WithCache enables purging of expired database cache entries.
func WithCache(cache ExpiringCache) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = cache
	}
}

// WithObjectStore enables the orphaned object sweep.
func WithObjectStore(store storage.ObjectStore) Option {
	return func(cleaner *Cleaner) {
		cleaner.store = store
	}
}

// WithOrphanGrace sets how old an unreferenced prefix must be before removal.
func WithOrphanGrace(grace time.Duration) Option {
	return func(cleaner *Cleaner) {
		if grace > 0 {
			cleaner.grace = grace
		}
	}
}

// WithRecorder reports job outcomes, typically to the monitoring job tracker.
func WithRecorder(recorder RunRecorder) Option {
	return func(cleaner *Cleaner) {
		cleaner.recorder = recorder
	}
}

// WithSessionSchedule overrides the cron expression for session cleanup.
func WithSessionSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.sessionSchedule = expr
		}
	}
}

// WithTokenSchedule overrides the cron expression for token cleanup.
func WithTokenSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.tokenSchedule = expr
		}
	}
}

// WithOrphanSchedule overrides the cron expression for the object sweep.
func WithOrphanSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.orphanSchedule = expr
		}
	}
}

// NewCleaner constructs a Cleaner. Jobs whose dependency was not supplied are skipped.
func NewCleaner(db *gorm.DB, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		now:             time.Now,
		grace:           defaultOrphanGrace,
		sessionSchedule: defaultSessionSpec,
		tokenSchedule:   defaultTokenSpec,
		cacheSchedule:   defaultCacheSpec,
		orphanSchedule:  defaultOrphanSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name     string
	schedule string
	// run returns how many records or objects were removed.
	run func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.sessions != nil {
		jobs = append(jobs, job{JobSessions, c.sessionSchedule, c.sessions.CleanupExpired})
	}
	if c.db != nil {
		jobs = append(jobs, job{JobTokens, c.tokenSchedule, func(ctx context.Context) (int64, error) {
			stats, err := CleanupTokens(ctx, c.db, c.now())
			return stats.PasswordResets + stats.EmailVerifications, err
		}})
	}
	if c.cache != nil {
		jobs = append(jobs, job{JobCache, c.cacheSchedule, func(ctx context.Context) (int64, error) {
			return c.cache.PurgeExpired(ctx, c.now())
		}})
	}
	if c.db != nil && c.store != nil {
		jobs = append(jobs, job{JobOrphans, c.orphanSchedule, func(ctx context.Context) (int64, error) {
			removed, err := CleanupOrphans(ctx, c.db, c.store, c.now().Add(-c.grace))
			return int64(len(removed)), err
		}})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		if c.recorder != nil {
			c.recorder.Register(j.name)
		}
		if _, err := c.cron.AddFunc(j.schedule, func() {
			if err := c.execute(context.Background(), j); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Used on shutdown and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	removed, err := j.run(ctx)
	if removed > 0 {
		metrics.MaintenanceRemoved.WithLabelValues(j.name).Add(float64(removed))
	}
	if c.recorder != nil {
		c.recorder.RecordRun(j.name, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("maintenance: %s: %w", j.name, err)
	}
	return nil
}

// TokenCleanupStats captures the number of records removed for each token type.
type TokenCleanupStats struct {
	PasswordResets     int64
	EmailVerifications int64
}

// CleanupTokens removes expired or consumed tokens.
func CleanupTokens(ctx context.Context, db *gorm.DB, now time.Time) (TokenCleanupStats, error) {
	if db == nil {
		return TokenCleanupStats{}, errors.New("cleanup tokens: db is required")
	}

	stats := TokenCleanupStats{}

	result := db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", now).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return stats, fmt.Errorf("cleanup tokens: password reset tokens: %w", result.Error)
	}
	stats.PasswordResets = result.RowsAffected

	result = db.WithContext(ctx).
		Where("expires_at < ? OR verified_at IS NOT NULL", now).
		Delete(&models.EmailVerification{})
	if result.Error != nil {
		return stats, fmt.Errorf("cleanup tokens: email verification: %w", result.Error)
	}
	stats.EmailVerifications = result.RowsAffected

	return stats, nil
}

// CleanupOrphans deletes object prefixes that no record references: gallery
// item folders without a media item and avatar folders without an invite.
// Prefixes holding an object modified after cutoff are left alone. It returns
// the removed prefixes.
func CleanupOrphans(ctx context.Context, db *gorm.DB, store storage.ObjectStore, cutoff time.Time) ([]string, error) {
	if db == nil || store == nil {
		return nil, errors.New("cleanup orphans: db and store are required")
	}

	var (
		removed []string
		errs    error
	)
	sweep := func(root string, known map[string]struct{}) {
		listing, err := store.ListChildren(ctx, root)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cleanup orphans: list %s: %w", root, err))
			return
		}
		for _, prefix := range listing.Prefixes {
			id := strings.TrimSuffix(strings.TrimPrefix(prefix, root), "/")
			if _, ok := known[id]; ok {
				continue
			}
			recent, err := touchedAfter(ctx, store, prefix, cutoff)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if recent {
				continue
			}
			if err := storage.DeleteTree(ctx, store, prefix); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			removed = append(removed, prefix)
		}
	}

	for _, kind := range gallery.Kinds() {
		var ids []string
		if err := db.WithContext(ctx).Model(&models.MediaItem{}).
			Where("collection = ?", kind.String()).
			Pluck("id", &ids).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cleanup orphans: load %s: %w", kind, err))
			continue
		}
		sweep(kind.String()+"/", toSet(ids))
	}

	var tokens []string
	if err := db.WithContext(ctx).Model(&models.Invite{}).Pluck("token", &tokens).Error; err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cleanup orphans: load invites: %w", err))
	} else {
		sweep(storage.AvatarsPrefix, toSet(tokens))
	}

	return removed, errs
}

func touchedAfter(ctx context.Context, store storage.ObjectStore, prefix string, cutoff time.Time) (bool, error) {
	listing, err := store.ListChildren(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("cleanup orphans: list %s: %w", prefix, err)
	}
	for _, obj := range listing.Objects {
		if obj.LastModified.After(cutoff) {
			return true, nil
		}
	}
	for _, sub := range listing.Prefixes {
		recent, err := touchedAfter(ctx, store, sub, cutoff)
		if err != nil || recent {
			return recent, err
		}
	}
	return false, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
