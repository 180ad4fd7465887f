// Package storage stores the binary variants of gallery items and invite avatars.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrStorageUnavailable is returned while the storage circuit breaker is open.
	ErrStorageUnavailable = errors.New("storage: temporarily unavailable")
	// ErrInvalidKey is returned for empty keys or keys escaping the bucket root.
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// Object describes a stored binary.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	URL          string    `json:"url,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// UploadOptions control metadata and progress reporting of an upload.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	// Progress receives the number of bytes read since the previous call.
	Progress func(n int64)
}

// Listing is the direct content of a folder-like prefix.
type Listing struct {
	Objects  []Object
	Prefixes []string
}

// ObjectStore is the binary object store used by the gallery and invites.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, opts UploadOptions) (Object, error)
	PublicURL(key string) string
	Delete(ctx context.Context, key string) error
	ListChildren(ctx context.Context, prefix string) (Listing, error)
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
