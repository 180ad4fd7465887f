package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// DeleteTree removes every object below prefix, descending into sub-prefixes.
// Individual failures do not stop the walk; they are returned together.
func DeleteTree(ctx context.Context, store ObjectStore, prefix string) error {
	prefix = normalizePrefix(prefix)
	if prefix == "" {
		return fmt.Errorf("storage: refusing to delete the bucket root")
	}
	return deleteTree(ctx, store, prefix)
}

func deleteTree(ctx context.Context, store ObjectStore, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	listing, err := store.ListChildren(ctx, prefix)
	if err != nil {
		return fmt.Errorf("storage: list %s: %w", prefix, err)
	}

	var errs error
	for _, obj := range listing.Objects {
		if err := store.Delete(ctx, obj.Key); err != nil && !errors.Is(err, ErrNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("storage: delete %s: %w", obj.Key, err))
		}
	}
	for _, sub := range listing.Prefixes {
		errs = multierr.Append(errs, deleteTree(ctx, store, sub))
	}
	return errs
}
