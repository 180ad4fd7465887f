package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/logger"
)

const (
	defaultInitialTimeout = 5 * time.Second
	initialTestimonials   = 50
)

// SnapshotSource returns the current snapshot of a collection.
type SnapshotSource interface {
	Get(ctx context.Context, kind gallery.Kind) (gallery.Snapshot, error)
}

// TestimonialSource lists published testimonials, newest first.
type TestimonialSource interface {
	ListPublic(ctx context.Context, limit int) ([]models.Testimonial, error)
}

// SnapshotMessage wraps a collection snapshot for its stream.
func SnapshotMessage(snap gallery.Snapshot) Message {
	items := snap.Items
	if items == nil {
		items = []models.MediaItem{}
	}
	return Message{
		Stream: snap.Kind.Stream(),
		Event:  EventSnapshot,
		Data:   items,
		Meta: map[string]any{
			"version":  snap.Version,
			"capacity": snap.Kind.Capacity(),
		},
	}
}

// ForwardSnapshots broadcasts every snapshot feed publishes on the
// collection's stream.
func ForwardSnapshots(feed *gallery.Feed, hub *Hub) {
	feed.OnSnapshot(func(snap gallery.Snapshot) {
		msg := SnapshotMessage(snap)
		hub.BroadcastStream(msg.Stream, msg)
	})
}

// InitialState serves the current gallery snapshot or the latest
// testimonials to clients joining those streams. Either source may be nil.
func InitialState(snapshots SnapshotSource, testimonials TestimonialSource, timeout time.Duration) InitialFunc {
	if timeout <= 0 {
		timeout = defaultInitialTimeout
	}
	log := logger.WithModule("realtime")
	kinds := make(map[string]gallery.Kind, len(gallery.Kinds()))
	for _, kind := range gallery.Kinds() {
		kinds[kind.Stream()] = kind
	}

	return func(stream string) (Message, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if kind, ok := kinds[stream]; ok && snapshots != nil {
			snap, err := snapshots.Get(ctx, kind)
			if err != nil {
				log.Warn("initial snapshot unavailable", zap.String("stream", stream), zap.Error(err))
				return Message{}, false
			}
			return SnapshotMessage(snap), true
		}

		if stream == StreamTestimonials && testimonials != nil {
			items, err := testimonials.ListPublic(ctx, initialTestimonials)
			if err != nil {
				log.Warn("initial testimonials unavailable", zap.Error(err))
				return Message{}, false
			}
			return Message{Stream: stream, Event: EventSnapshot, Data: items}, true
		}
		return Message{}, false
	}
}
