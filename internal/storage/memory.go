package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data         []byte
	contentType  string
	cacheControl string
	modTime      time.Time
}

// MemoryStore keeps objects in process memory. It backs development setups,
// where objects are served by the application under BaseURL, and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
	now     func() time.Time

	// FailDelete and FailUpload let tests inject storage failures per key.
	FailDelete func(key string) error
	FailUpload func(key string) error
}

// NewMemoryStore returns an empty store whose public URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

func (m *MemoryStore) Upload(ctx context.Context, key string, body io.Reader, size int64, opts UploadOptions) (Object, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if m.FailUpload != nil {
		if err := m.FailUpload(key); err != nil {
			return Object{}, err
		}
	}

	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, withProgress(body, opts.Progress)); err != nil {
		return Object{}, err
	}

	obj := memoryObject{
		data:         buf.Bytes(),
		contentType:  opts.ContentType,
		cacheControl: opts.CacheControl,
		modTime:      m.now(),
	}

	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()

	return Object{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		URL:          m.PublicURL(key),
		LastModified: obj.modTime,
	}, nil
}

func (m *MemoryStore) PublicURL(key string) string {
	return m.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if m.FailDelete != nil {
		if err := m.FailDelete(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListChildren(ctx context.Context, prefix string) (Listing, error) {
	prefix = normalizePrefix(prefix)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var listing Listing
	seen := make(map[string]struct{})
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if idx := strings.Index(rest, "/"); idx != -1 {
			sub := prefix + rest[:idx+1]
			if _, ok := seen[sub]; !ok {
				seen[sub] = struct{}{}
				listing.Prefixes = append(listing.Prefixes, sub)
			}
			continue
		}
		listing.Objects = append(listing.Objects, Object{
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			URL:          m.PublicURL(key),
			LastModified: obj.modTime,
		})
	}

	sort.Strings(listing.Prefixes)
	sort.Slice(listing.Objects, func(i, j int) bool { return listing.Objects[i].Key < listing.Objects[j].Key })
	return listing, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Open returns the object content for serving over HTTP.
func (m *MemoryStore) Open(key string) (io.ReadSeeker, Object, string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, Object{}, "", err
	}

	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, Object{}, "", ErrNotFound
	}

	return bytes.NewReader(obj.data), Object{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modTime,
	}, obj.cacheControl, nil
}

// Keys lists every stored key in order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Bytes returns a copy of the stored object.
func (m *MemoryStore) Bytes(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}
