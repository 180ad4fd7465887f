package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/database/testutil"
	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/models"
)

type fixedSnapshots map[gallery.Kind]gallery.Snapshot

func (f fixedSnapshots) Get(_ context.Context, kind gallery.Kind) (gallery.Snapshot, error) {
	snap, ok := f[kind]
	if !ok {
		return gallery.Snapshot{}, errors.New("offline")
	}
	return snap, nil
}

type fixedTestimonials []models.Testimonial

func (f fixedTestimonials) ListPublic(context.Context, int) ([]models.Testimonial, error) {
	return f, nil
}

func TestSnapshotMessage(t *testing.T) {
	msg := SnapshotMessage(gallery.Snapshot{Kind: gallery.Masonry, Version: 4})
	require.Equal(t, StreamGalleryMasonry, msg.Stream)
	require.Equal(t, EventSnapshot, msg.Event)
	require.Equal(t, []models.MediaItem{}, msg.Data)
	require.Equal(t, uint64(4), msg.Meta["version"])
	require.Equal(t, gallery.MasonryCapacity, msg.Meta["capacity"])
}

func TestInitialState(t *testing.T) {
	initial := InitialState(
		fixedSnapshots{gallery.Carousel: {Kind: gallery.Carousel, Version: 2}},
		fixedTestimonials{{Token: "abc", Stars: 5}},
		time.Second,
	)

	msg, ok := initial(StreamGalleryCarousel)
	require.True(t, ok)
	require.Equal(t, uint64(2), msg.Meta["version"])

	_, ok = initial(StreamGalleryMasonry)
	require.False(t, ok, "a failing source sends nothing")

	msg, ok = initial(StreamTestimonials)
	require.True(t, ok)
	require.Len(t, msg.Data, 1)

	_, ok = initial(StreamInvites)
	require.False(t, ok)
}

func TestForwardSnapshotsBroadcastsToStream(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	feed := gallery.NewFeed(gallery.NewGormRepository(db))
	ForwardSnapshots(feed, hub)

	conn := dial(t, hub, []string{StreamGalleryCarousel}, StreamSet(PublicStreams()...))
	require.Eventually(t, func() bool { return hub.Subscribers(StreamGalleryCarousel) == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := feed.Publish(context.Background(), gallery.Carousel)
	require.NoError(t, err)

	msg := readMessage(t, conn)
	require.Equal(t, StreamGalleryCarousel, msg.Stream)
	require.Equal(t, EventSnapshot, msg.Event)
	require.Equal(t, float64(1), msg.Meta["version"])
}
