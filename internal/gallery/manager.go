package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/internal/transcode"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

const uploadPurpose = "gallery"

// Transcoder produces the display variant and placeholder of an upload.
type Transcoder interface {
	Transcode(ctx context.Context, in transcode.Input) (*transcode.Output, error)
}

// Upload is one file handed to Append or Replace.
type Upload = transcode.Input

// AppendResult lists the items written by Append and how many files were
// dropped because the collection had no room for them.
type AppendResult struct {
	Items   []models.MediaItem `json:"items"`
	Skipped int                `json:"skipped"`
}

// Manager is one editing session over a collection. Its operations run one
// at a time; snapshots from the feed replace local state wholesale.
type Manager struct {
	kind       Kind
	capacity   int
	repo       Repository
	store      storage.ObjectStore
	transcoder Transcoder
	feed       *Feed

	cacheControl string
	newID        func() string
	log          *zap.Logger

	opMu sync.Mutex

	mu      sync.RWMutex
	items   []models.MediaItem
	version uint64
	busy    map[string]struct{}
	closed  bool

	progress progressTracker

	sub  *Subscription
	done chan struct{}
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithFeed makes the manager follow the feed's snapshots of its collection.
// The repository should then be one returned by feed.Wrap.
func WithFeed(feed *Feed) ManagerOption {
	return func(m *Manager) {
		m.feed = feed
	}
}

// WithCacheControl sets the Cache-Control header stored with uploaded objects.
func WithCacheControl(value string) ManagerOption {
	return func(m *Manager) {
		m.cacheControl = value
	}
}

// WithIDGenerator replaces the item id generator.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithLogger overrides the manager logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager creates a session over kind. Call Start before use.
func NewManager(kind Kind, repo Repository, store storage.ObjectStore, transcoder Transcoder, opts ...ManagerOption) (*Manager, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	if repo == nil || store == nil || transcoder == nil {
		return nil, errors.New("gallery: repository, store and transcoder are required")
	}

	m := &Manager{
		kind:         kind,
		capacity:     kind.Capacity(),
		repo:         repo,
		store:        store,
		transcoder:   transcoder,
		cacheControl: "public, max-age=31536000, immutable",
		newID:        uuid.NewString,
		log:          logger.WithModule("gallery").With(zap.String("collection", kind.String())),
		busy:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start loads the collection. With a feed, the first snapshot is applied
// before Start returns and later ones are applied in the background.
func (m *Manager) Start(ctx context.Context) error {
	if m.feed == nil {
		return m.Refresh(ctx)
	}

	sub, err := m.feed.Subscribe(context.WithoutCancel(ctx), m.kind)
	if err != nil {
		return fmt.Errorf("gallery: subscribe %s: %w", m.kind, err)
	}
	first, ok := <-sub.C()
	if ok {
		m.ApplySnapshot(first)
	}

	m.sub = sub
	m.done = make(chan struct{})
	go m.pump(sub)
	return nil
}

func (m *Manager) pump(sub *Subscription) {
	defer close(m.done)
	for snap := range sub.C() {
		m.ApplySnapshot(snap)
	}
}

// Close unsubscribes from the feed. Pending operations finish normally.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	if m.sub != nil {
		m.sub.Close()
		<-m.done
	}
}

// Refresh replaces local state with the stored collection. With a feed a new
// snapshot is published, so every session converges on it.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.feed != nil {
		snap, err := m.feed.Publish(ctx, m.kind)
		if err != nil {
			return err
		}
		m.ApplySnapshot(snap)
		return nil
	}

	items, err := m.repo.List(ctx, m.kind, m.capacity)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items = items
	m.version++
	m.mu.Unlock()
	return nil
}

// ApplySnapshot replaces local items when snap is newer than the applied one.
func (m *Manager) ApplySnapshot(snap Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Kind != m.kind || snap.Version <= m.version {
		return false
	}
	m.items = cloneItems(snap.Items)
	m.version = snap.Version
	return true
}

// Kind is the managed collection.
func (m *Manager) Kind() Kind { return m.kind }

// Capacity is the maximum number of items.
func (m *Manager) Capacity() int { return m.capacity }

// Items returns a copy of the local ordered items.
func (m *Manager) Items() []models.MediaItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneItems(m.items)
}

// Version is the version of the last applied snapshot.
func (m *Manager) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Busy reports whether an operation is in flight for id.
func (m *Manager) Busy(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.busy[id]
	return ok
}

// BusyIDs lists the ids with an operation in flight.
func (m *Manager) BusyIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.busy))
	for id := range m.busy {
		ids = append(ids, id)
	}
	return ids
}

// Progress returns aggregate upload progress.
func (m *Manager) Progress() Progress {
	return m.progress.snapshot()
}

func (m *Manager) setBusy(id string, busy bool) {
	m.mu.Lock()
	if busy {
		m.busy[id] = struct{}{}
	} else {
		delete(m.busy, id)
	}
	m.mu.Unlock()
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) record(op string, err error) {
	metrics.GalleryOperations.WithLabelValues(m.kind.String(), op, metrics.Result(err)).Inc()
}

// Append adds files to the end of the collection, one after another. Files
// beyond the remaining capacity are skipped. The first failure stops the batch;
// items written before it stay.
func (m *Manager) Append(ctx context.Context, files []Upload) (result AppendResult, err error) {
	defer func() { m.record("append", err) }()

	if len(files) == 0 {
		return result, ErrNoFiles
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.isClosed() {
		return result, ErrClosed
	}

	m.mu.RLock()
	base := len(m.items)
	m.mu.RUnlock()

	if base >= m.capacity {
		return result, ErrFull
	}
	if room := m.capacity - base; len(files) > room {
		result.Skipped = len(files) - room
		files = files[:room]
	}

	for i, file := range files {
		item, err := m.appendOne(ctx, file, base+1+i)
		if err != nil {
			m.log.Warn("append failed", zap.String("file", file.Name), zap.Error(err))
			return result, &UploadError{File: file.Name, Err: err}
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (m *Manager) appendOne(ctx context.Context, file Upload, index int) (models.MediaItem, error) {
	id := m.newID()
	m.setBusy(id, true)
	defer m.setBusy(id, false)

	assets, err := m.uploadAssets(ctx, id, file)
	if err != nil {
		return models.MediaItem{}, err
	}

	item := models.MediaItem{BaseModel: models.BaseModel{ID: id}, Collection: m.kind.String(), Index: index}
	assets.apply(&item)

	if err := m.repo.Append(ctx, &item); err != nil {
		if cleanupErr := storage.DeleteTree(context.WithoutCancel(ctx), m.store, storage.ItemPrefix(m.kind.String(), id)); cleanupErr != nil {
			m.log.Warn("remove objects of unsaved item", zap.String("id", id), zap.Error(cleanupErr))
		}
		return models.MediaItem{}, err
	}

	m.mu.Lock()
	if findItem(m.items, id) < 0 {
		m.items = append(m.items, item)
	}
	m.mu.Unlock()
	return item, nil
}

// Replace swaps the binaries of an existing item, keeping its position.
func (m *Manager) Replace(ctx context.Context, id string, file Upload) (item models.MediaItem, err error) {
	defer func() { m.record("replace", err) }()

	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.isClosed() {
		return item, ErrClosed
	}

	m.mu.RLock()
	pos := findItem(m.items, id)
	if pos >= 0 {
		item = m.items[pos]
	}
	m.mu.RUnlock()
	if pos < 0 {
		return models.MediaItem{}, ErrNotFound
	}
	previous := item

	m.setBusy(id, true)
	defer m.setBusy(id, false)

	assets, err := m.uploadAssets(ctx, id, file)
	if err != nil {
		return models.MediaItem{}, &UploadError{File: file.Name, Err: err}
	}
	assets.apply(&item)

	if err := m.repo.UpdateAssets(ctx, &item); err != nil {
		m.deleteObjects(ctx, item.OriginalRef, item.OptimizedRef)
		return models.MediaItem{}, err
	}
	m.deleteObjects(ctx, previous.OriginalRef, previous.OptimizedRef)

	m.mu.Lock()
	if p := findItem(m.items, id); p >= 0 && m.items[p].OptimizedRef == previous.OptimizedRef {
		m.items[p] = item
	}
	m.mu.Unlock()
	return item, nil
}

// Delete removes an item and closes the gap. Local state changes immediately;
// if persisting fails it is restored unless a newer snapshot arrived meanwhile.
func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	defer func() { m.record("delete", err) }()

	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.isClosed() {
		return ErrClosed
	}

	m.mu.Lock()
	pos := findItem(m.items, id)
	if pos < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	before := cloneItems(m.items)
	versionBefore := m.version

	next := make([]models.MediaItem, 0, len(m.items)-1)
	next = append(next, m.items[:pos]...)
	next = append(next, m.items[pos+1:]...)
	updates := reindex(next)
	m.items = next
	m.busy[id] = struct{}{}
	m.mu.Unlock()

	defer m.setBusy(id, false)

	if err = m.repo.Delete(ctx, m.kind, id, updates); err != nil {
		m.mu.Lock()
		if m.version == versionBefore {
			m.items = before
		}
		m.mu.Unlock()
		m.log.Warn("delete failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	// Objects left behind here are swept by the maintenance orphan job.
	m.deleteTree(ctx, storage.ItemPrefix(m.kind.String(), id))
	return nil
}

// Reorder moves the item at position from to position to (both 0-based) and
// saves the full order. On failure local state keeps the new order and
// ErrReorderFailed is returned; callers should Refresh.
func (m *Manager) Reorder(ctx context.Context, from, to int) (err error) {
	defer func() { m.record("reorder", err) }()

	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.isClosed() {
		return ErrClosed
	}

	m.mu.Lock()
	n := len(m.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		m.mu.Unlock()
		return ErrInvalidPosition
	}
	if from == to {
		m.mu.Unlock()
		return nil
	}
	next := splice(m.items, from, to)
	updates := reindex(next)
	m.items = next
	m.mu.Unlock()

	if err := m.repo.Reorder(ctx, m.kind, updates); err != nil {
		m.log.Warn("reorder failed", zap.Int("from", from), zap.Int("to", to), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrReorderFailed, err)
	}
	return nil
}

// splice removes the element at from and inserts it at to.
func splice(items []models.MediaItem, from, to int) []models.MediaItem {
	moved := items[from]
	rest := make([]models.MediaItem, 0, len(items))
	rest = append(rest, items[:from]...)
	rest = append(rest, items[from+1:]...)

	out := make([]models.MediaItem, 0, len(items))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	return out
}

type assets struct {
	originalRef  string
	optimizedRef string
	originalURL  string
	optimizedURL string
	out          *transcode.Output
	contentType  string
	size         int64
}

func (a assets) apply(item *models.MediaItem) {
	item.OriginalRef = a.originalRef
	item.OptimizedRef = a.optimizedRef
	item.OriginalURL = a.originalURL
	item.OptimizedURL = a.optimizedURL
	item.BlurPlaceholder = a.out.Placeholder
	item.ContentType = a.contentType
	item.Width = a.out.Width
	item.Height = a.out.Height
	item.SizeBytes = a.size
}

// uploadAssets transcodes file and stores both variants under a fresh revision.
func (m *Manager) uploadAssets(ctx context.Context, id string, file Upload) (assets, error) {
	size := int64(len(file.Data))
	m.progress.begin(size)
	defer m.progress.end()

	out, err := m.transcoder.Transcode(ctx, file)
	if err != nil {
		return assets{}, err
	}
	m.progress.grow(int64(len(out.Optimized)))

	declared := transcode.DeclaredType(file)
	rev := storage.NewRevision()
	originalKey := storage.OriginalKey(m.kind.String(), id, rev, transcode.Extension(file.Data))
	optimizedKey := storage.OptimizedKey(m.kind.String(), id, rev)

	original, err := m.put(ctx, originalKey, file.Data, declared)
	if err != nil {
		return assets{}, err
	}
	optimized, err := m.put(ctx, optimizedKey, out.Optimized, out.ContentType)
	if err != nil {
		m.deleteObjects(ctx, originalKey)
		return assets{}, err
	}

	return assets{
		originalRef:  original.Key,
		optimizedRef: optimized.Key,
		originalURL:  original.URL,
		optimizedURL: optimized.URL,
		out:          out,
		contentType:  declared,
		size:         size,
	}, nil
}

func (m *Manager) put(ctx context.Context, key string, data []byte, contentType string) (storage.Object, error) {
	obj, err := m.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), storage.UploadOptions{
		ContentType:  contentType,
		CacheControl: m.cacheControl,
		Progress:     m.progress.advance,
	})
	metrics.Uploads.WithLabelValues(uploadPurpose, metrics.Result(err)).Inc()
	if err != nil {
		return storage.Object{}, err
	}
	metrics.UploadBytes.WithLabelValues(uploadPurpose).Add(float64(len(data)))
	if obj.URL == "" {
		obj.URL = m.store.PublicURL(obj.Key)
	}
	return obj, nil
}

// deleteObjects removes objects best-effort; leftovers are swept by maintenance.
func (m *Manager) deleteTree(ctx context.Context, prefix string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := storage.DeleteTree(ctx, m.store, prefix); err != nil {
		m.log.Warn("delete item objects", zap.String("prefix", prefix), zap.Error(err))
	}
}

func (m *Manager) deleteObjects(ctx context.Context, keys ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := m.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn("delete object", zap.String("key", key), zap.Error(err))
		}
	}
}
