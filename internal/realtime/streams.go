package realtime

// Named realtime streams.
const (
	StreamGalleryCarousel = "gallery.carousel"
	StreamGalleryMasonry  = "gallery.masonry"
	StreamTestimonials    = "testimonials"
	// StreamInvites carries invite status changes and is restricted to the administrator.
	StreamInvites = "invites"
)

// Events sent on the streams.
const (
	EventSnapshot = "snapshot"
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventPong     = "pong"
)

// PublicStreams may be joined without signing in.
func PublicStreams() []string {
	return []string{StreamGalleryCarousel, StreamGalleryMasonry, StreamTestimonials}
}

// AdminStreams are open to the signed-in administrator.
func AdminStreams() []string {
	return append(PublicStreams(), StreamInvites)
}

// StreamSet turns stream names into the allowed set accepted by Serve.
func StreamSet(streams ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		if stream = normalizeStream(stream); stream != "" {
			set[stream] = struct{}{}
		}
	}
	return set
}
