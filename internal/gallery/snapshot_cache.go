package gallery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/studiofolio/internal/cache"
	"github.com/charlesng35/studiofolio/pkg/logger"
)

// DefaultSnapshotTTL bounds how long a mirrored snapshot is served without a publish.
const DefaultSnapshotTTL = 24 * time.Hour

// SnapshotKey is the cache key holding the public snapshot of kind.
func SnapshotKey(kind Kind) string {
	return "gallery:snapshot:" + kind.String()
}

// SnapshotCache mirrors the newest snapshot of every collection into a
// shared cache so public page loads skip the database. Writes happen on a
// background loop; only the latest pending snapshot per kind is written.
type SnapshotCache struct {
	store cache.Store
	feed  *Feed
	ttl   time.Duration
	log   *zap.Logger

	mu      sync.Mutex
	pending map[Kind]Snapshot
	wake    chan struct{}
}

// NewSnapshotCache hooks into feed. Call Run to start writing.
func NewSnapshotCache(store cache.Store, feed *Feed, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	c := &SnapshotCache{
		store:   store,
		feed:    feed,
		ttl:     ttl,
		log:     logger.WithModule("gallery"),
		pending: make(map[Kind]Snapshot),
		wake:    make(chan struct{}, 1),
	}
	feed.OnSnapshot(c.enqueue)
	return c
}

func (c *SnapshotCache) enqueue(snap Snapshot) {
	c.mu.Lock()
	if current, ok := c.pending[snap.Kind]; !ok || snap.Version > current.Version {
		c.pending[snap.Kind] = snap
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run writes pending snapshots until ctx is done, then flushes once more.
func (c *SnapshotCache) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.Flush(flushCtx)
			cancel()
			return
		case <-c.wake:
			c.Flush(ctx)
		}
	}
}

// Flush writes every pending snapshot now.
func (c *SnapshotCache) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[Kind]Snapshot)
	c.mu.Unlock()

	for kind, snap := range batch {
		if err := cache.SetJSON(ctx, c.store, SnapshotKey(kind), snap, c.ttl); err != nil {
			c.log.Warn("snapshot cache write failed", zap.String("kind", kind.String()), zap.Error(err))
		}
	}
}

// Get returns the cached snapshot of kind. On a miss or a cache failure the
// feed's snapshot is returned and written back.
func (c *SnapshotCache) Get(ctx context.Context, kind Kind) (Snapshot, error) {
	if !kind.Valid() {
		return Snapshot{}, ErrUnknownKind
	}

	var snap Snapshot
	ok, err := cache.GetJSON(ctx, c.store, SnapshotKey(kind), &snap)
	if err != nil {
		c.log.Debug("snapshot cache read failed", zap.String("kind", kind.String()), zap.Error(err))
	}
	if ok {
		return snap, nil
	}

	snap, err = c.feed.Snapshot(ctx, kind)
	if err != nil {
		return Snapshot{}, err
	}
	if err := cache.SetJSON(ctx, c.store, SnapshotKey(kind), snap, c.ttl); err != nil {
		c.log.Debug("snapshot cache fill failed", zap.String("kind", kind.String()), zap.Error(err))
	}
	return snap, nil
}
