package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/models"
)

// GormRepository stores collections in the media_items table.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository returns a Repository backed by db.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) List(ctx context.Context, kind Kind, limit int) ([]models.MediaItem, error) {
	query := r.db.WithContext(ctx).
		Where("collection = ?", kind.String()).
		Order("sort_index ASC").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []models.MediaItem
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("gallery: list %s: %w", kind, err)
	}
	return items, nil
}

func (r *GormRepository) Get(ctx context.Context, kind Kind, id string) (*models.MediaItem, error) {
	var item models.MediaItem
	err := r.db.WithContext(ctx).
		Where("collection = ? AND id = ?", kind.String(), id).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gallery: get %s/%s: %w", kind, id, err)
	}
	return &item, nil
}

func (r *GormRepository) Append(ctx context.Context, item *models.MediaItem) error {
	if item == nil {
		return errors.New("gallery: item is nil")
	}
	if err := item.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("gallery: append %s/%s: %w", item.Collection, item.ID, err)
	}
	return nil
}

func (r *GormRepository) UpdateAssets(ctx context.Context, item *models.MediaItem) error {
	if item == nil {
		return errors.New("gallery: item is nil")
	}
	if err := item.Validate(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("collection = ? AND id = ?", item.Collection, item.ID).
		Updates(map[string]any{
			"original_ref":     item.OriginalRef,
			"optimized_ref":    item.OptimizedRef,
			"original_url":     item.OriginalURL,
			"optimized_url":    item.OptimizedURL,
			"blur_placeholder": item.BlurPlaceholder,
			"content_type":     item.ContentType,
			"width":            item.Width,
			"height":           item.Height,
			"size_bytes":       item.SizeBytes,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("gallery: update %s/%s: %w", item.Collection, item.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, kind Kind, id string, reindex []IndexUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("collection = ? AND id = ?", kind.String(), id).Delete(&models.MediaItem{})
		if res.Error != nil {
			return fmt.Errorf("gallery: delete %s/%s: %w", kind, id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return applyIndexes(tx, kind, reindex)
	})
}

func (r *GormRepository) Reorder(ctx context.Context, kind Kind, updates []IndexUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyIndexes(tx, kind, updates)
	})
}

func applyIndexes(tx *gorm.DB, kind Kind, updates []IndexUpdate) error {
	now := time.Now().UTC()
	for _, u := range updates {
		res := tx.Model(&models.MediaItem{}).
			Where("collection = ? AND id = ?", kind.String(), u.ID).
			Updates(map[string]any{"sort_index": u.Index, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("gallery: set index of %s/%s: %w", kind, u.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("gallery: set index of %s/%s: %w", kind, u.ID, ErrNotFound)
		}
	}
	return nil
}
