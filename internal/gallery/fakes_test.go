package gallery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/internal/transcode"
)

var errUnavailable = errors.New("store unavailable")

// fakeRepo is an in-memory Repository whose writes can be made to fail or
// interleaved with other sessions.
type fakeRepo struct {
	mu    sync.Mutex
	items map[Kind][]models.MediaItem

	beforeAppend func(item *models.MediaItem)
	onDelete     func()

	failAppend  error
	failUpdate  error
	failDelete  error
	failReorder error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[Kind][]models.MediaItem)}
}

func (r *fakeRepo) seed(kind Kind, ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		n := len(r.items[kind]) + 1
		r.items[kind] = append(r.items[kind], models.MediaItem{
			BaseModel:    models.BaseModel{ID: id},
			Collection:   kind.String(),
			Index:        n,
			OriginalRef:  storage.OriginalKey(kind.String(), id, "seed", ".jpg"),
			OptimizedRef: storage.OptimizedKey(kind.String(), id, "seed"),
			OriginalURL:  "https://cdn.test/" + id + "/original.jpg",
			OptimizedURL: "https://cdn.test/" + id + "/optimized.jpg",
		})
	}
}

func (r *fakeRepo) List(_ context.Context, kind Kind, limit int) ([]models.MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := cloneItems(r.items[kind])
	sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []models.MediaItem{}
	}
	return items, nil
}

func (r *fakeRepo) Get(_ context.Context, kind Kind, id string) (*models.MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := findItem(r.items[kind], id)
	if pos < 0 {
		return nil, ErrNotFound
	}
	item := r.items[kind][pos]
	return &item, nil
}

func (r *fakeRepo) Append(_ context.Context, item *models.MediaItem) error {
	if hook := r.beforeAppend; hook != nil {
		r.beforeAppend = nil
		hook(item)
	}
	if r.failAppend != nil {
		return r.failAppend
	}
	if err := item.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := Kind(item.Collection)
	r.items[kind] = append(r.items[kind], *item)
	return nil
}

func (r *fakeRepo) UpdateAssets(_ context.Context, item *models.MediaItem) error {
	if r.failUpdate != nil {
		return r.failUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := Kind(item.Collection)
	pos := findItem(r.items[kind], item.ID)
	if pos < 0 {
		return ErrNotFound
	}
	index := r.items[kind][pos].Index
	r.items[kind][pos] = *item
	r.items[kind][pos].Index = index
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, kind Kind, id string, reindex []IndexUpdate) error {
	if r.onDelete != nil {
		r.onDelete()
	}
	if r.failDelete != nil {
		return r.failDelete
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := findItem(r.items[kind], id)
	if pos < 0 {
		return ErrNotFound
	}
	r.items[kind] = append(r.items[kind][:pos], r.items[kind][pos+1:]...)
	return r.applyLocked(kind, reindex)
}

func (r *fakeRepo) Reorder(_ context.Context, kind Kind, updates []IndexUpdate) error {
	if r.failReorder != nil {
		return r.failReorder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(kind, updates)
}

func (r *fakeRepo) applyLocked(kind Kind, updates []IndexUpdate) error {
	for _, u := range updates {
		pos := findItem(r.items[kind], u.ID)
		if pos < 0 {
			return ErrNotFound
		}
		r.items[kind][pos].Index = u.Index
	}
	return nil
}

func (r *fakeRepo) indexes(kind Kind) map[string]int {
	items, _ := r.List(context.Background(), kind, 0)
	out := make(map[string]int, len(items))
	for _, item := range items {
		out[item.ID] = item.Index
	}
	return out
}

// fakeTranscoder returns the input bytes as the optimized variant.
type fakeTranscoder struct {
	failOn string
	during func()
}

func (f *fakeTranscoder) Transcode(_ context.Context, in transcode.Input) (*transcode.Output, error) {
	if f.during != nil {
		f.during()
	}
	if in.Name == f.failOn {
		return nil, &transcode.DecodeError{Err: errors.New("not an image")}
	}
	return &transcode.Output{
		Optimized:   append([]byte(nil), in.Data...),
		ContentType: transcode.OutputContentType,
		Placeholder: "data:image/jpeg;base64,AA==",
		Width:       10,
		Height:      10,
		Reused:      true,
	}, nil
}

func uploads(names ...string) []Upload {
	files := make([]Upload, len(names))
	for i, name := range names {
		files[i] = Upload{
			Name:        name,
			ContentType: "image/jpeg",
			Data:        []byte{0xff, 0xd8, 0xff, 0xe0, byte(i), 'x'},
		}
	}
	return files
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestManager(t *testing.T, kind Kind, repo Repository, opts ...ManagerOption) (*Manager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore("https://cdn.test")
	opts = append([]ManagerOption{WithIDGenerator(sequentialIDs(kind.String()))}, opts...)
	m, err := NewManager(kind, repo, store, &fakeTranscoder{}, opts...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Close)
	return m, store
}

func ids(items []models.MediaItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func requireDense(t *testing.T, items []models.MediaItem) {
	t.Helper()
	for i, item := range items {
		require.Equal(t, i+1, item.Index, "item %s at position %d", item.ID, i)
	}
}
