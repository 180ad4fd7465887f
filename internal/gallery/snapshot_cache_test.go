package gallery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/cache"
	"github.com/charlesng35/studiofolio/internal/database/testutil"
)

func TestSnapshotCacheFillsOnMissAndMirrorsPublishes(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	repo := newFakeRepo()
	repo.seed(Carousel, "a")
	feed := NewFeed(repo)
	snapshots := NewSnapshotCache(store, feed, time.Hour)

	first, err := snapshots.Get(ctx, Carousel)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ids(first.Items))

	// Unpublished repository changes are not visible through the cache.
	repo.seed(Carousel, "b")
	again, err := snapshots.Get(ctx, Carousel)
	require.NoError(t, err)
	require.Equal(t, first.Version, again.Version)
	require.Equal(t, []string{"a"}, ids(again.Items))

	_, err = feed.Publish(ctx, Carousel)
	require.NoError(t, err)
	snapshots.Flush(ctx)

	latest, err := snapshots.Get(ctx, Carousel)
	require.NoError(t, err)
	require.Equal(t, first.Version+1, latest.Version)
	require.Equal(t, []string{"a", "b"}, ids(latest.Items))

	_, err = snapshots.Get(ctx, Kind("portraits"))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestSnapshotCacheRunFlushesOnShutdown(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	repo := newFakeRepo()
	repo.seed(Masonry, "m1")
	feed := NewFeed(repo)
	snapshots := NewSnapshotCache(store, feed, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		snapshots.Run(ctx)
		close(done)
	}()

	_, err := feed.Publish(context.Background(), Masonry)
	require.NoError(t, err)
	cancel()
	<-done

	var cached Snapshot
	ok, err := cache.GetJSON(context.Background(), store, SnapshotKey(Masonry), &cached)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), cached.Version)
	require.Equal(t, []string{"m1"}, ids(cached.Items))
}
