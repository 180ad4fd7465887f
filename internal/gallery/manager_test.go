package gallery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/internal/transcode"
)

func TestNewManagerValidatesArguments(t *testing.T) {
	store := storage.NewMemoryStore("")

	_, err := NewManager(Kind("grid"), newFakeRepo(), store, &fakeTranscoder{})
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = NewManager(Carousel, nil, store, &fakeTranscoder{})
	require.Error(t, err)
}

func TestAppendAssignsIndexesAfterExistingItems(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Masonry, "a", "b")
	m, store := newTestManager(t, Masonry, repo)

	res, err := m.Append(context.Background(), uploads("one.jpg", "two.jpg"))
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Zero(t, res.Skipped)
	require.Equal(t, 3, res.Items[0].Index)
	require.Equal(t, 4, res.Items[1].Index)

	items := m.Items()
	require.Equal(t, []string{"a", "b", "masonry-1", "masonry-2"}, ids(items))
	requireDense(t, items)
	require.Equal(t, map[string]int{"a": 1, "b": 2, "masonry-1": 3, "masonry-2": 4}, repo.indexes(Masonry))

	item := res.Items[0]
	require.True(t, strings.HasPrefix(item.OriginalRef, "masonry/masonry-1/"))
	require.True(t, strings.HasSuffix(item.OptimizedRef, "-optimized.jpg"))
	require.Equal(t, "https://cdn.test/"+item.OptimizedRef, item.OptimizedURL)
	require.Equal(t, "data:image/jpeg;base64,AA==", item.BlurPlaceholder)
	require.Len(t, store.Keys(), 4)
}

func TestAppendCapsToRemainingCapacity(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Carousel, "a", "b", "c", "d")
	m, _ := newTestManager(t, Carousel, repo)

	res, err := m.Append(context.Background(), uploads("1.jpg", "2.jpg", "3.jpg"))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, 2, res.Skipped)
	require.Equal(t, 5, res.Items[0].Index)

	before := m.Items()
	_, err = m.Append(context.Background(), uploads("4.jpg"))
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, before, m.Items())
	require.Len(t, repo.indexes(Carousel), CarouselCapacity)
}

func TestAppendRequiresFiles(t *testing.T) {
	m, _ := newTestManager(t, Carousel, newFakeRepo())
	_, err := m.Append(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoFiles)
}

func TestAppendStopsAtFirstFailure(t *testing.T) {
	repo := newFakeRepo()
	store := storage.NewMemoryStore("https://cdn.test")
	m, err := NewManager(Masonry, repo, store, &fakeTranscoder{failOn: "broken.png"}, WithIDGenerator(sequentialIDs("m")))
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	res, err := m.Append(context.Background(), uploads("ok.jpg", "broken.png", "never.jpg"))

	var uploadErr *UploadError
	require.True(t, errors.As(err, &uploadErr))
	require.Equal(t, "broken.png", uploadErr.File)
	var decodeErr *transcode.DecodeError
	require.True(t, errors.As(err, &decodeErr))

	require.Len(t, res.Items, 1)
	require.Equal(t, []string{"m-1"}, ids(m.Items()))
	require.Len(t, repo.indexes(Masonry), 1)
	require.Empty(t, m.BusyIDs())
	require.Equal(t, Progress{}, m.Progress())
}

func TestAppendRemovesObjectsWhenRecordWriteFails(t *testing.T) {
	repo := newFakeRepo()
	repo.failAppend = errUnavailable
	m, store := newTestManager(t, Carousel, repo)

	_, err := m.Append(context.Background(), uploads("one.jpg"))
	require.ErrorIs(t, err, errUnavailable)
	require.Empty(t, store.Keys())
	require.Empty(t, m.Items())
}

func TestAppendReportsProgressWhileUploading(t *testing.T) {
	var m *Manager
	var seen Progress
	tr := &fakeTranscoder{during: func() { seen = m.Progress() }}

	var err error
	m, err = NewManager(Carousel, newFakeRepo(), storage.NewMemoryStore(""), tr)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	files := uploads("one.jpg")
	_, err = m.Append(context.Background(), files)
	require.NoError(t, err)

	require.Equal(t, 1, seen.ActiveJobs)
	require.Equal(t, int64(len(files[0].Data)), seen.TotalBytes)
	require.Equal(t, Progress{}, m.Progress())
}

func TestAppendWithImageTranscoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(64, 32, color.NRGBA{R: 200, A: 255})))

	repo := newFakeRepo()
	store := storage.NewMemoryStore("https://cdn.test")
	m, err := NewManager(Carousel, repo, store, transcode.New())
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	res, err := m.Append(context.Background(), []Upload{{Name: "red.png", Data: buf.Bytes()}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	item := res.Items[0]
	require.Equal(t, "image/png", item.ContentType)
	require.True(t, strings.HasSuffix(item.OriginalRef, "-original.png"))
	require.Equal(t, 64, item.Width)
	require.Equal(t, 32, item.Height)
	require.True(t, strings.HasPrefix(item.BlurPlaceholder, "data:image/jpeg;base64,"))

	original, ok := store.Bytes(item.OriginalRef)
	require.True(t, ok)
	require.Equal(t, buf.Bytes(), original)

	optimized, ok := store.Bytes(item.OptimizedRef)
	require.True(t, ok)
	_, format, err := image.DecodeConfig(bytes.NewReader(optimized))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
}

func TestReplaceKeepsIndexAndSwapsObjects(t *testing.T) {
	m, store := newTestManager(t, Masonry, newFakeRepo())
	res, err := m.Append(context.Background(), uploads("one.jpg", "two.jpg"))
	require.NoError(t, err)
	old := res.Items[1]

	updated, err := m.Replace(context.Background(), old.ID, uploads("new.jpg")[0])
	require.NoError(t, err)
	require.Equal(t, old.ID, updated.ID)
	require.Equal(t, 2, updated.Index)
	require.NotEqual(t, old.OptimizedRef, updated.OptimizedRef)

	keys := store.Keys()
	require.NotContains(t, keys, old.OriginalRef)
	require.NotContains(t, keys, old.OptimizedRef)
	require.Contains(t, keys, updated.OriginalRef)
	require.Contains(t, keys, updated.OptimizedRef)

	require.Equal(t, updated, m.Items()[1])
	require.False(t, m.Busy(old.ID))
}

func TestReplaceUnknownItem(t *testing.T) {
	m, _ := newTestManager(t, Masonry, newFakeRepo())
	_, err := m.Replace(context.Background(), "missing", uploads("x.jpg")[0])
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceFailureKeepsOldObjects(t *testing.T) {
	repo := newFakeRepo()
	m, store := newTestManager(t, Masonry, repo)
	res, err := m.Append(context.Background(), uploads("one.jpg"))
	require.NoError(t, err)
	before := store.Keys()

	repo.failUpdate = errUnavailable
	_, err = m.Replace(context.Background(), res.Items[0].ID, uploads("new.jpg")[0])
	require.ErrorIs(t, err, errUnavailable)
	require.Equal(t, before, store.Keys())
	require.Equal(t, res.Items, m.Items())
}

func TestDeleteReindexesRemainingItems(t *testing.T) {
	repo := newFakeRepo()
	m, store := newTestManager(t, Masonry, repo)
	res, err := m.Append(context.Background(), uploads("1.jpg", "2.jpg", "3.jpg", "4.jpg"))
	require.NoError(t, err)
	victim := res.Items[1]

	require.NoError(t, m.Delete(context.Background(), victim.ID))

	items := m.Items()
	require.Equal(t, []string{"masonry-1", "masonry-3", "masonry-4"}, ids(items))
	requireDense(t, items)
	require.Equal(t, map[string]int{"masonry-1": 1, "masonry-3": 2, "masonry-4": 3}, repo.indexes(Masonry))

	for _, key := range store.Keys() {
		require.False(t, strings.HasPrefix(key, storage.ItemPrefix("masonry", victim.ID)), key)
	}
	require.Len(t, store.Keys(), 6)
}

func TestDeleteUnknownItem(t *testing.T) {
	m, _ := newTestManager(t, Carousel, newFakeRepo())
	require.ErrorIs(t, m.Delete(context.Background(), "missing"), ErrNotFound)
}

func TestDeleteRollsBackWhenRecordDeleteFails(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Carousel, "a", "b", "c")
	m, _ := newTestManager(t, Carousel, repo)
	before := m.Items()

	var busyDuring bool
	repo.onDelete = func() { busyDuring = m.Busy("b") }
	repo.failDelete = errUnavailable

	err := m.Delete(context.Background(), "b")
	require.ErrorIs(t, err, ErrDeleteFailed)
	require.ErrorContains(t, err, errUnavailable.Error())
	require.True(t, busyDuring)

	require.Equal(t, before, m.Items())
	require.False(t, m.Busy("b"))
	require.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, repo.indexes(Carousel))
}

func TestDeleteKeepsObjectsWhenRecordDeleteFails(t *testing.T) {
	repo := newFakeRepo()
	m, store := newTestManager(t, Carousel, repo)
	_, err := m.Append(context.Background(), uploads("1.jpg", "2.jpg"))
	require.NoError(t, err)
	before := m.Items()
	keysBefore := store.Keys()

	repo.failDelete = errUnavailable
	err = m.Delete(context.Background(), "carousel-1")
	require.ErrorIs(t, err, ErrDeleteFailed)
	require.Equal(t, before, m.Items())
	require.Equal(t, keysBefore, store.Keys())
	require.Equal(t, map[string]int{"carousel-1": 1, "carousel-2": 2}, repo.indexes(Carousel))
}

func TestDeleteSucceedsWhenObjectCleanupFails(t *testing.T) {
	repo := newFakeRepo()
	m, store := newTestManager(t, Carousel, repo)
	_, err := m.Append(context.Background(), uploads("1.jpg", "2.jpg"))
	require.NoError(t, err)

	store.FailDelete = func(string) error { return errUnavailable }
	require.NoError(t, m.Delete(context.Background(), "carousel-1"))
	require.Equal(t, []string{"carousel-2"}, ids(m.Items()))
	require.Equal(t, map[string]int{"carousel-2": 1}, repo.indexes(Carousel))

	leftover := 0
	for _, key := range store.Keys() {
		if strings.HasPrefix(key, storage.ItemPrefix("carousel", "carousel-1")) {
			leftover++
		}
	}
	require.Equal(t, 2, leftover)
}

func TestDeleteFailureKeepsNewerSnapshot(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Carousel, "a", "b", "c")
	m, _ := newTestManager(t, Carousel, repo)

	newer := Snapshot{
		Kind:    Carousel,
		Version: m.Version() + 1,
		Items:   []models.MediaItem{{BaseModel: models.BaseModel{ID: "z"}, Collection: "carousel", Index: 1}},
	}
	repo.onDelete = func() { require.True(t, m.ApplySnapshot(newer)) }
	repo.failDelete = errUnavailable

	require.ErrorIs(t, m.Delete(context.Background(), "b"), ErrDeleteFailed)
	require.Equal(t, []string{"z"}, ids(m.Items()))
	require.Equal(t, newer.Version, m.Version())
}

func TestReorderMatchesSplice(t *testing.T) {
	start := []string{"a", "b", "c", "d", "e"}

	for from := range start {
		for to := range start {
			repo := newFakeRepo()
			repo.seed(Carousel, start...)
			m, _ := newTestManager(t, Carousel, repo)

			require.NoError(t, m.Reorder(context.Background(), from, to))

			want := append([]string{}, start...)
			moved := want[from]
			want = append(want[:from], want[from+1:]...)
			want = append(want[:to], append([]string{moved}, want[to:]...)...)

			items := m.Items()
			require.Equal(t, want, ids(items), "from=%d to=%d", from, to)
			requireDense(t, items)

			stored, err := repo.List(context.Background(), Carousel, 0)
			require.NoError(t, err)
			require.Equal(t, want, ids(stored), "from=%d to=%d", from, to)
		}
	}
}

func TestReorderRejectsOutOfRange(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Carousel, "a", "b")
	m, _ := newTestManager(t, Carousel, repo)

	require.ErrorIs(t, m.Reorder(context.Background(), -1, 0), ErrInvalidPosition)
	require.ErrorIs(t, m.Reorder(context.Background(), 0, 2), ErrInvalidPosition)
	require.Equal(t, []string{"a", "b"}, ids(m.Items()))
}

func TestReorderFailureAsksForReload(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Carousel, "a", "b", "c")
	m, _ := newTestManager(t, Carousel, repo)

	repo.failReorder = errUnavailable
	err := m.Reorder(context.Background(), 0, 2)
	require.ErrorIs(t, err, ErrReorderFailed)
	require.Equal(t, []string{"b", "c", "a"}, ids(m.Items()))
	require.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, repo.indexes(Carousel))

	require.NoError(t, m.Refresh(context.Background()))
	require.Equal(t, []string{"a", "b", "c"}, ids(m.Items()))
}

func TestIndexesStayDenseAcrossOperations(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestManager(t, Masonry, repo)
	ctx := context.Background()

	check := func() {
		t.Helper()
		requireDense(t, m.Items())
		stored, err := repo.List(ctx, Masonry, 0)
		require.NoError(t, err)
		requireDense(t, stored)
		require.Equal(t, ids(m.Items()), ids(stored))
	}

	_, err := m.Append(ctx, uploads("1.jpg", "2.jpg", "3.jpg"))
	require.NoError(t, err)
	check()

	require.NoError(t, m.Delete(ctx, "masonry-1"))
	check()

	_, err = m.Append(ctx, uploads("4.jpg", "5.jpg"))
	require.NoError(t, err)
	check()

	require.NoError(t, m.Reorder(ctx, 0, 3))
	check()

	last := m.Items()[len(m.Items())-1]
	require.NoError(t, m.Delete(ctx, last.ID))
	check()

	_, err = m.Replace(ctx, m.Items()[0].ID, uploads("6.jpg")[0])
	require.NoError(t, err)
	check()
}

func TestConcurrentSessionsCanAssignSameIndex(t *testing.T) {
	repo := newFakeRepo()
	a, _ := newTestManager(t, Carousel, repo, WithIDGenerator(sequentialIDs("a")))
	b, _ := newTestManager(t, Carousel, repo, WithIDGenerator(sequentialIDs("b")))

	// Session b writes while session a is between reading its snapshot and
	// writing its record; both computed the index from an empty collection.
	repo.beforeAppend = func(*models.MediaItem) {
		_, err := b.Append(context.Background(), uploads("from-b.jpg"))
		require.NoError(t, err)
	}

	_, err := a.Append(context.Background(), uploads("from-a.jpg"))
	require.NoError(t, err)

	require.Equal(t, map[string]int{"a-1": 1, "b-1": 1}, repo.indexes(Carousel))
}

func TestApplySnapshotIgnoresStaleVersions(t *testing.T) {
	m, _ := newTestManager(t, Carousel, newFakeRepo())
	v := m.Version()

	one := []models.MediaItem{{BaseModel: models.BaseModel{ID: "one"}, Index: 1}}
	two := []models.MediaItem{{BaseModel: models.BaseModel{ID: "two"}, Index: 1}}

	require.True(t, m.ApplySnapshot(Snapshot{Kind: Carousel, Version: v + 2, Items: one}))
	require.False(t, m.ApplySnapshot(Snapshot{Kind: Carousel, Version: v + 1, Items: two}))
	require.False(t, m.ApplySnapshot(Snapshot{Kind: Carousel, Version: v + 2, Items: two}))
	require.False(t, m.ApplySnapshot(Snapshot{Kind: Masonry, Version: v + 9, Items: two}))
	require.Equal(t, []string{"one"}, ids(m.Items()))
}

func TestSnapshotOverridesOptimisticReorder(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(Carousel, "a", "b")
	m, _ := newTestManager(t, Carousel, repo)

	repo.failReorder = errUnavailable
	require.ErrorIs(t, m.Reorder(context.Background(), 0, 1), ErrReorderFailed)
	require.Equal(t, []string{"b", "a"}, ids(m.Items()))

	stored, err := repo.List(context.Background(), Carousel, 0)
	require.NoError(t, err)
	require.True(t, m.ApplySnapshot(Snapshot{Kind: Carousel, Version: m.Version() + 1, Items: stored}))
	require.Equal(t, []string{"a", "b"}, ids(m.Items()))
}

func TestClosedManagerRejectsOperations(t *testing.T) {
	m, _ := newTestManager(t, Carousel, newFakeRepo())
	m.Close()
	m.Close()

	_, err := m.Append(context.Background(), uploads("x.jpg"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, m.Delete(context.Background(), "x"), ErrClosed)
	require.ErrorIs(t, m.Reorder(context.Background(), 0, 0), ErrClosed)
}

func TestSplice(t *testing.T) {
	items := []models.MediaItem{
		{BaseModel: models.BaseModel{ID: "a"}},
		{BaseModel: models.BaseModel{ID: "b"}},
		{BaseModel: models.BaseModel{ID: "c"}},
	}
	require.Equal(t, []string{"c", "a", "b"}, ids(splice(items, 2, 0)))
	require.Equal(t, []string{"b", "a", "c"}, ids(splice(items, 0, 1)))
	require.Equal(t, []string{"a", "b", "c"}, ids(items))
}
