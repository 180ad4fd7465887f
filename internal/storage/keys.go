package storage

import (
	"path"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	revisionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	revisionLength   = 12

	// AvatarsPrefix holds invite avatars.
	AvatarsPrefix = "avatars/"
)

// NewRevision returns a short random segment that makes every upload a new key,
// so replaced images are never served stale from a CDN.
func NewRevision() string {
	rev, err := gonanoid.Generate(revisionAlphabet, revisionLength)
	if err != nil {
		return gonanoid.Must(revisionLength)
	}
	return rev
}

// ItemPrefix is the folder holding every object of one gallery item.
func ItemPrefix(collection, itemID string) string {
	return collection + "/" + itemID + "/"
}

// OriginalKey is the key of the untouched upload.
func OriginalKey(collection, itemID, rev, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ItemPrefix(collection, itemID) + rev + "-original" + ext
}

// OptimizedKey is the key of the display variant.
func OptimizedKey(collection, itemID, rev string) string {
	return ItemPrefix(collection, itemID) + rev + "-optimized.jpg"
}

// AvatarKey is the key of an invite avatar.
func AvatarKey(token, rev string) string {
	return AvatarsPrefix + token + "/" + rev + ".jpg"
}

// CleanKey normalises a key and rejects traversal outside the root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", ErrInvalidKey
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if strings.HasSuffix(key, "/") {
		cleaned += "/"
	}
	return cleaned, nil
}

// normalizePrefix returns a prefix ending in "/" or "" for the root.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
