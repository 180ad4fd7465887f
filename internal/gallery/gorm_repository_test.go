package gallery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/database/testutil"
	"github.com/charlesng35/studiofolio/internal/models"
)

func newItem(kind Kind, id string, index int) *models.MediaItem {
	return &models.MediaItem{
		BaseModel:    models.BaseModel{ID: id},
		Collection:   kind.String(),
		Index:        index,
		OriginalRef:  kind.String() + "/" + id + "/r-original.jpg",
		OptimizedRef: kind.String() + "/" + id + "/r-optimized.jpg",
		OriginalURL:  "https://cdn.test/" + id + "/original.jpg",
		OptimizedURL: "https://cdn.test/" + id + "/optimized.jpg",
	}
}

func newGormRepo(t *testing.T, kind Kind, ids ...string) *GormRepository {
	t.Helper()
	repo := NewGormRepository(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	for i, id := range ids {
		require.NoError(t, repo.Append(context.Background(), newItem(kind, id, i+1)))
	}
	return repo
}

func TestGormRepositoryListOrdersByIndex(t *testing.T) {
	ctx := context.Background()
	repo := newGormRepo(t, Masonry)
	require.NoError(t, repo.Append(ctx, newItem(Masonry, "c", 3)))
	require.NoError(t, repo.Append(ctx, newItem(Masonry, "a", 1)))
	require.NoError(t, repo.Append(ctx, newItem(Masonry, "b", 2)))
	require.NoError(t, repo.Append(ctx, newItem(Carousel, "x", 1)))

	items, err := repo.List(ctx, Masonry, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(items))

	limited, err := repo.List(ctx, Masonry, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids(limited))
}

func TestGormRepositoryAppendValidates(t *testing.T) {
	repo := newGormRepo(t, Carousel)
	item := newItem(Carousel, "a", 0)

	var fieldErr *models.FieldError
	require.True(t, errors.As(repo.Append(context.Background(), item), &fieldErr))
	require.Equal(t, "index", fieldErr.Field)
}

func TestGormRepositoryGet(t *testing.T) {
	repo := newGormRepo(t, Carousel, "a")

	item, err := repo.Get(context.Background(), Carousel, "a")
	require.NoError(t, err)
	require.Equal(t, 1, item.Index)

	_, err = repo.Get(context.Background(), Masonry, "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGormRepositoryUpdateAssetsKeepsIndex(t *testing.T) {
	ctx := context.Background()
	repo := newGormRepo(t, Carousel, "a", "b")

	update := newItem(Carousel, "b", 1)
	update.OptimizedRef = "carousel/b/new-optimized.jpg"
	update.OptimizedURL = "https://cdn.test/b/new.jpg"
	update.Width = 800
	require.NoError(t, repo.UpdateAssets(ctx, update))

	item, err := repo.Get(ctx, Carousel, "b")
	require.NoError(t, err)
	require.Equal(t, 2, item.Index)
	require.Equal(t, "carousel/b/new-optimized.jpg", item.OptimizedRef)
	require.Equal(t, 800, item.Width)

	require.ErrorIs(t, repo.UpdateAssets(ctx, newItem(Carousel, "missing", 1)), ErrNotFound)
}

func TestGormRepositoryDeleteReindexesAtomically(t *testing.T) {
	ctx := context.Background()
	repo := newGormRepo(t, Carousel, "a", "b", "c")

	err := repo.Delete(ctx, Carousel, "a", []IndexUpdate{{ID: "b", Index: 1}, {ID: "ghost", Index: 2}})
	require.ErrorIs(t, err, ErrNotFound)

	items, err := repo.List(ctx, Carousel, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(items))
	requireDense(t, items)

	require.NoError(t, repo.Delete(ctx, Carousel, "a", []IndexUpdate{{ID: "b", Index: 1}, {ID: "c", Index: 2}}))
	items, err = repo.List(ctx, Carousel, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, ids(items))
	requireDense(t, items)

	require.ErrorIs(t, repo.Delete(ctx, Carousel, "a", nil), ErrNotFound)
}

func TestGormRepositoryReorderIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := newGormRepo(t, Masonry, "a", "b")

	err := repo.Reorder(ctx, Masonry, []IndexUpdate{{ID: "a", Index: 2}, {ID: "zzz", Index: 1}})
	require.ErrorIs(t, err, ErrNotFound)
	items, err := repo.List(ctx, Masonry, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids(items))

	require.NoError(t, repo.Reorder(ctx, Masonry, []IndexUpdate{{ID: "a", Index: 2}, {ID: "b", Index: 1}}))
	items, err = repo.List(ctx, Masonry, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, ids(items))
	require.WithinDuration(t, time.Now(), items[0].UpdatedAt, time.Minute)
}
