package models

import "strings"

// MediaItem is one image in an ordered gallery collection.
//
// Index is 1-based and, within a collection, expected to form the set {1..N}.
// No unique constraint is placed on (collection, index): concurrent editors
// appending from stale snapshots can produce duplicates until the next reorder.
type MediaItem struct {
	BaseModel

	Collection string `gorm:"size:32;not null;index:idx_media_collection_index,priority:1" json:"collection"`
	Index      int    `gorm:"column:sort_index;not null;index:idx_media_collection_index,priority:2" json:"index"`

	OriginalRef     string `gorm:"not null" json:"original_ref"`
	OptimizedRef    string `gorm:"not null" json:"optimized_ref"`
	OriginalURL     string `gorm:"not null" json:"original_url"`
	OptimizedURL    string `gorm:"not null" json:"optimized_url"`
	BlurPlaceholder string `gorm:"type:text" json:"blur_placeholder"`

	ContentType string `gorm:"size:64" json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Validate rejects records that would break rendering if persisted.
func (m *MediaItem) Validate() error {
	const model = "media item"
	if err := required(model, "id", strings.TrimSpace(m.ID)); err != nil {
		return err
	}
	if err := required(model, "collection", strings.TrimSpace(m.Collection)); err != nil {
		return err
	}
	if m.Index < 1 {
		return &FieldError{Model: model, Field: "index", Reason: "must be at least 1"}
	}
	refs := [][2]string{
		{"original_ref", m.OriginalRef},
		{"optimized_ref", m.OptimizedRef},
		{"original_url", m.OriginalURL},
		{"optimized_url", m.OptimizedURL},
	}
	for _, ref := range refs {
		if err := required(model, ref[0], strings.TrimSpace(ref[1])); err != nil {
			return err
		}
	}
	return nil
}
