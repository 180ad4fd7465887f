package gallery

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind = errors.New("gallery: unknown collection")
	// ErrFull is returned when an append finds the collection at capacity.
	ErrFull = errors.New("gallery: collection is full")
	// ErrNotFound is returned for ids that are not part of the collection.
	ErrNotFound = errors.New("gallery: item not found")
	// ErrInvalidPosition is returned for reorder positions outside the list.
	ErrInvalidPosition = errors.New("gallery: position out of range")
	// ErrNoFiles is returned by Append when called without files.
	ErrNoFiles = errors.New("gallery: no files to upload")
	// ErrDeleteFailed wraps persistence failures of Delete; local state was rolled back.
	ErrDeleteFailed = errors.New("gallery: delete failed")
	// ErrReorderFailed means the new order may not have been saved; callers should reload.
	ErrReorderFailed = errors.New("gallery: failed to save new order, please reload")
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("gallery: manager closed")
)

// UploadError reports the file that stopped an append or replace.
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("gallery: upload %q failed: %v", e.File, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
