package gallery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

// Snapshot is the full ordered content of a collection at one version.
type Snapshot struct {
	Kind    Kind               `json:"kind"`
	Version uint64             `json:"version"`
	Items   []models.MediaItem `json:"items"`
	At      time.Time          `json:"at"`
}

// Feed publishes versioned snapshots of every collection to subscribers.
// Versions increase monotonically per kind, in commit order of the writes
// that went through a wrapped repository.
type Feed struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time

	// pubMu orders list+version assignment so a higher version never holds older data.
	pubMu sync.Mutex

	mu       sync.Mutex
	versions map[Kind]uint64
	latest   map[Kind]*Snapshot
	subs     map[Kind]map[*Subscription]struct{}
	hooks    []func(Snapshot)
}

// NewFeed returns a feed that reads snapshots from repo.
func NewFeed(repo Repository) *Feed {
	return &Feed{
		repo:     repo,
		log:      logger.WithModule("gallery"),
		now:      func() time.Time { return time.Now().UTC() },
		versions: make(map[Kind]uint64),
		latest:   make(map[Kind]*Snapshot),
		subs:     make(map[Kind]map[*Subscription]struct{}),
	}
}

// OnSnapshot registers fn to run, in publish order, for every new snapshot.
// fn must not block.
func (f *Feed) OnSnapshot(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.hooks = append(f.hooks, fn)
	f.mu.Unlock()
}

// Publish reads the collection and broadcasts it under the next version.
func (f *Feed) Publish(ctx context.Context, kind Kind) (Snapshot, error) {
	f.pubMu.Lock()
	defer f.pubMu.Unlock()

	items, err := f.repo.List(ctx, kind, kind.Capacity())
	if err != nil {
		return Snapshot{}, err
	}

	f.mu.Lock()
	f.versions[kind]++
	snap := Snapshot{Kind: kind, Version: f.versions[kind], Items: items, At: f.now()}
	f.latest[kind] = &snap
	for sub := range f.subs[kind] {
		sub.deliver(snap)
	}
	hooks := append([]func(Snapshot){}, f.hooks...)
	f.mu.Unlock()

	metrics.GalleryItems.WithLabelValues(kind.String()).Set(float64(len(items)))
	for _, hook := range hooks {
		hook(cloneSnapshot(snap))
	}
	return cloneSnapshot(snap), nil
}

// Snapshot returns the latest published snapshot, publishing a first one if needed.
func (f *Feed) Snapshot(ctx context.Context, kind Kind) (Snapshot, error) {
	f.mu.Lock()
	latest := f.latest[kind]
	f.mu.Unlock()
	if latest != nil {
		return cloneSnapshot(*latest), nil
	}
	return f.Publish(ctx, kind)
}

// Version is the latest published version of kind, zero before the first publish.
func (f *Feed) Version(kind Kind) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[kind]
}

// Subscribe returns a subscription whose channel first yields the current snapshot.
// The subscription is closed when ctx is done.
func (f *Feed) Subscribe(ctx context.Context, kind Kind) (*Subscription, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	current, err := f.Snapshot(ctx, kind)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{feed: f, kind: kind, ch: make(chan Snapshot, 1)}

	f.mu.Lock()
	if f.subs[kind] == nil {
		f.subs[kind] = make(map[*Subscription]struct{})
	}
	f.subs[kind][sub] = struct{}{}
	// A publish may have happened since current was read.
	if latest := f.latest[kind]; latest != nil && latest.Version > current.Version {
		current = cloneSnapshot(*latest)
	}
	sub.deliver(current)
	f.mu.Unlock()

	context.AfterFunc(ctx, sub.Close)
	return sub, nil
}

func (f *Feed) unsubscribe(sub *Subscription) {
	f.mu.Lock()
	delete(f.subs[sub.kind], sub)
	f.mu.Unlock()
}

// Wrap returns a repository that publishes a snapshot after each committed write.
func (f *Feed) Wrap(repo Repository) Repository {
	return &publishingRepository{Repository: repo, feed: f}
}

// Subscription receives snapshots of one collection. Only the newest
// undelivered snapshot is kept.
type Subscription struct {
	feed *Feed
	kind Kind

	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
}

// C yields snapshots; it is closed by Close.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.feed.unsubscribe(s)
}

func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- cloneSnapshot(snap)
}

type publishingRepository struct {
	Repository
	feed *Feed
}

func (r *publishingRepository) Append(ctx context.Context, item *models.MediaItem) error {
	if err := r.Repository.Append(ctx, item); err != nil {
		return err
	}
	r.publish(ctx, Kind(item.Collection))
	return nil
}

func (r *publishingRepository) UpdateAssets(ctx context.Context, item *models.MediaItem) error {
	if err := r.Repository.UpdateAssets(ctx, item); err != nil {
		return err
	}
	r.publish(ctx, Kind(item.Collection))
	return nil
}

func (r *publishingRepository) Delete(ctx context.Context, kind Kind, id string, reindex []IndexUpdate) error {
	if err := r.Repository.Delete(ctx, kind, id, reindex); err != nil {
		return err
	}
	r.publish(ctx, kind)
	return nil
}

func (r *publishingRepository) Reorder(ctx context.Context, kind Kind, updates []IndexUpdate) error {
	if err := r.Repository.Reorder(ctx, kind, updates); err != nil {
		return err
	}
	r.publish(ctx, kind)
	return nil
}

// publish failures are logged only; the write itself is already committed.
func (r *publishingRepository) publish(ctx context.Context, kind Kind) {
	if _, err := r.feed.Publish(context.WithoutCancel(ctx), kind); err != nil {
		r.feed.log.Warn("publish snapshot failed", zap.String("collection", kind.String()), zap.Error(err))
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Items = cloneItems(s.Items)
	return s
}
