package handlers

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/transcode"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
)

// DefaultMaxUploadBytes bounds a single uploaded image.
const DefaultMaxUploadBytes int64 = 25 << 20

// readUpload loads one multipart file and checks that it is an image within
// maxBytes. The declared content type is kept; mimetype fills it in when the
// browser sent none.
func readUpload(fh *multipart.FileHeader, maxBytes int64) (transcode.Input, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if fh.Size > maxBytes {
		return transcode.Input{}, appErrors.ErrPayloadTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return transcode.Input{}, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return transcode.Input{}, fmt.Errorf("read upload %q: %w", fh.Filename, err)
	}
	if int64(len(data)) > maxBytes {
		return transcode.Input{}, appErrors.ErrPayloadTooLarge
	}
	if len(data) == 0 {
		return transcode.Input{}, transcode.ErrEmptyInput
	}
	if !transcode.IsImage(data) {
		return transcode.Input{}, appErrors.ErrUnsupportedMedia
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	return transcode.Input{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// readUploads loads the files of a multipart field in form order. Reading
// stops at the first rejected file: the files before it are returned together
// with the rejection, so the caller can still process them.
func readUploads(c *gin.Context, field string, maxBytes int64) ([]transcode.Input, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, appErrors.NewBadRequest("multipart form expected")
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, appErrors.NewBadRequest(field + " is required")
	}

	files := make([]transcode.Input, 0, len(headers))
	for _, fh := range headers {
		in, err := readUpload(fh, maxBytes)
		if err != nil {
			return files, err
		}
		files = append(files, in)
	}
	return files, nil
}
