// Package gallery keeps the ordered, capacity-bounded image collections shown
// on the public site consistent between editing sessions and the database.
package gallery

import (
	"fmt"
	"strings"
)

// Kind names an ordered collection.
type Kind string

const (
	Carousel Kind = "carousel"
	Masonry  Kind = "masonry"
)

const (
	CarouselCapacity = 5
	MasonryCapacity  = 40
)

// Kinds lists every collection.
func Kinds() []Kind {
	return []Kind{Carousel, Masonry}
}

// ParseKind resolves a collection name.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
	return kind, nil
}

// Valid reports whether k is a known collection.
func (k Kind) Valid() bool {
	return k == Carousel || k == Masonry
}

// Capacity is the fixed maximum number of items in the collection.
func (k Kind) Capacity() int {
	switch k {
	case Carousel:
		return CarouselCapacity
	case Masonry:
		return MasonryCapacity
	}
	return 0
}

func (k Kind) String() string {
	return string(k)
}

// Stream is the realtime stream carrying snapshots of the collection.
func (k Kind) Stream() string {
	return "gallery." + string(k)
}
