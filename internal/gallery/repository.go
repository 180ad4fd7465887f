package gallery

import (
	"context"

	"github.com/charlesng35/studiofolio/internal/models"
)

// IndexUpdate assigns a new 1-based index to an item.
type IndexUpdate struct {
	ID    string
	Index int
}

// Repository is the ordered record store behind a collection.
type Repository interface {
	// List returns up to limit items ordered by index ascending.
	List(ctx context.Context, kind Kind, limit int) ([]models.MediaItem, error)
	Get(ctx context.Context, kind Kind, id string) (*models.MediaItem, error)
	Append(ctx context.Context, item *models.MediaItem) error
	// UpdateAssets rewrites the binary-derived fields of an item, keeping its index.
	UpdateAssets(ctx context.Context, item *models.MediaItem) error
	// Delete removes the record and applies reindex in one atomic batch.
	Delete(ctx context.Context, kind Kind, id string, reindex []IndexUpdate) error
	// Reorder applies every update in one atomic batch.
	Reorder(ctx context.Context, kind Kind, updates []IndexUpdate) error
}

// reindex assigns index = position+1 and returns the batch covering every item.
func reindex(items []models.MediaItem) []IndexUpdate {
	updates := make([]IndexUpdate, len(items))
	for i := range items {
		items[i].Index = i + 1
		updates[i] = IndexUpdate{ID: items[i].ID, Index: i + 1}
	}
	return updates
}

func cloneItems(items []models.MediaItem) []models.MediaItem {
	if items == nil {
		return nil
	}
	out := make([]models.MediaItem, len(items))
	copy(out, items)
	return out
}

func findItem(items []models.MediaItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
