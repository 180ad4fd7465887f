package gallery

import (
	"context"
	"fmt"

	"github.com/charlesng35/studiofolio/internal/storage"
)

// Registry holds the server's editing session for every collection.
type Registry struct {
	feed     *Feed
	managers map[Kind]*Manager
}

// NewRegistry builds one Manager per kind. repo is wrapped by feed so that
// every write publishes a snapshot.
func NewRegistry(feed *Feed, repo Repository, store storage.ObjectStore, transcoder Transcoder, opts ...ManagerOption) (*Registry, error) {
	if feed == nil {
		return nil, fmt.Errorf("gallery: registry requires a feed")
	}
	wrapped := feed.Wrap(repo)

	r := &Registry{feed: feed, managers: make(map[Kind]*Manager, len(Kinds()))}
	for _, kind := range Kinds() {
		m, err := NewManager(kind, wrapped, store, transcoder, append([]ManagerOption{WithFeed(feed)}, opts...)...)
		if err != nil {
			return nil, err
		}
		r.managers[kind] = m
	}
	return r, nil
}

// Start loads every collection.
func (r *Registry) Start(ctx context.Context) error {
	for _, kind := range Kinds() {
		if err := r.managers[kind].Start(ctx); err != nil {
			r.Close()
			return err
		}
	}
	return nil
}

// Close stops every manager.
func (r *Registry) Close() {
	for _, m := range r.managers {
		m.Close()
	}
}

// Manager returns the session of kind.
func (r *Registry) Manager(kind Kind) (*Manager, error) {
	m, ok := r.managers[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	return m, nil
}

// Feed is the snapshot feed shared by the managers.
func (r *Registry) Feed() *Feed {
	return r.feed
}
