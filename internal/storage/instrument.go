package storage

import (
	"context"
	"io"

	"github.com/charlesng35/studiofolio/pkg/metrics"
)

type instrumented struct {
	next   ObjectStore
	driver string
}

// Instrument records storage_operations_total for every call on next.
func Instrument(next ObjectStore, driver string) ObjectStore {
	return &instrumented{next: next, driver: driver}
}

func (i *instrumented) observe(op string, err error) {
	metrics.StorageOperations.WithLabelValues(i.driver, op, metrics.Result(err)).Inc()
}

func (i *instrumented) Upload(ctx context.Context, key string, body io.Reader, size int64, opts UploadOptions) (Object, error) {
	obj, err := i.next.Upload(ctx, key, body, size, opts)
	i.observe("upload", err)
	return obj, err
}

func (i *instrumented) PublicURL(key string) string {
	return i.next.PublicURL(key)
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	err := i.next.Delete(ctx, key)
	i.observe("delete", err)
	return err
}

func (i *instrumented) ListChildren(ctx context.Context, prefix string) (Listing, error) {
	listing, err := i.next.ListChildren(ctx, prefix)
	i.observe("list", err)
	return listing, err
}

func (i *instrumented) Ping(ctx context.Context) error {
	if p, ok := i.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
