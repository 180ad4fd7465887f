// Package transcode turns uploaded images into a bounded display JPEG and a
// tiny inline placeholder.
package transcode

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"mime"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // register webp decoding

	"github.com/charlesng35/studiofolio/pkg/metrics"
)

const (
	DefaultMaxEdge            = 2400
	DefaultSkipEdge           = 2200
	DefaultSkipSize           = 2.5 * 1024 * 1024
	DefaultQuality            = 90
	DefaultPlaceholderEdge    = 20
	DefaultPlaceholderQuality = 70

	// OutputContentType is the media type of every re-encoded variant.
	OutputContentType = "image/jpeg"
	placeholderPrefix = "data:image/jpeg;base64,"
)

// ErrEmptyInput is returned for zero-length uploads.
var ErrEmptyInput = errors.New("transcode: empty input")

// Input is one uploaded file.
type Input struct {
	Name        string
	ContentType string
	// Size is the declared byte size; len(Data) is used when zero.
	Size int64
	Data []byte
}

// Output holds the display variant and the placeholder.
type Output struct {
	Optimized   []byte
	ContentType string
	Placeholder string
	Width       int
	Height      int
	// Reused is true when Optimized is the original upload, byte for byte.
	Reused bool
}

// DecodeError reports input that is not a decodable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("transcode: decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Transcoder is safe for concurrent use.
type Transcoder struct {
	maxEdge            int
	skipEdge           int
	skipSize           int64
	quality            int
	placeholderEdge    int
	placeholderQuality int
}

// Option customises a Transcoder.
type Option func(*Transcoder)

// WithMaxEdge bounds the longer edge of re-encoded output.
func WithMaxEdge(px int) Option {
	return func(t *Transcoder) {
		if px > 0 {
			t.maxEdge = px
		}
	}
}

// WithSkipLimits sets the bounds under which a JPEG upload is reused verbatim.
func WithSkipLimits(edge int, size int64) Option {
	return func(t *Transcoder) {
		if edge > 0 {
			t.skipEdge = edge
		}
		if size > 0 {
			t.skipSize = size
		}
	}
}

// WithQuality sets the JPEG quality of the display variant.
func WithQuality(q int) Option {
	return func(t *Transcoder) {
		if q > 0 && q <= 100 {
			t.quality = q
		}
	}
}

// New returns a Transcoder with the default limits.
func New(opts ...Option) *Transcoder {
	t := &Transcoder{
		maxEdge:            DefaultMaxEdge,
		skipEdge:           DefaultSkipEdge,
		skipSize:           DefaultSkipSize,
		quality:            DefaultQuality,
		placeholderEdge:    DefaultPlaceholderEdge,
		placeholderQuality: DefaultPlaceholderQuality,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcode produces the display variant and placeholder for in.
func (t *Transcoder) Transcode(ctx context.Context, in Input) (out *Output, err error) {
	start := time.Now()
	defer func() {
		outcome := "failed"
		if err == nil {
			outcome = "encoded"
			if out.Reused {
				outcome = "reused"
			}
		}
		metrics.TranscodeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if len(in.Data) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	bounds := img.Bounds()
	longest := max(bounds.Dx(), bounds.Dy())
	if longest == 0 {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}

	placeholder, err := t.placeholder(img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := in.Size
	if size <= 0 {
		size = int64(len(in.Data))
	}

	if isJPEG(DeclaredType(in)) && longest <= t.skipEdge && size <= t.skipSize {
		return &Output{
			Optimized:   in.Data,
			ContentType: OutputContentType,
			Placeholder: placeholder,
			Width:       bounds.Dx(),
			Height:      bounds.Dy(),
			Reused:      true,
		}, nil
	}

	resized := imaging.Fit(img, t.maxEdge, t.maxEdge, imaging.Lanczos)
	encoded, err := encodeJPEG(resized, t.quality)
	if err != nil {
		return nil, err
	}

	rb := resized.Bounds()
	return &Output{
		Optimized:   encoded,
		ContentType: OutputContentType,
		Placeholder: placeholder,
		Width:       rb.Dx(),
		Height:      rb.Dy(),
	}, nil
}

func (t *Transcoder) placeholder(img image.Image) (string, error) {
	small := imaging.Fit(img, t.placeholderEdge, t.placeholderEdge, imaging.Lanczos)
	encoded, err := encodeJPEG(small, t.placeholderQuality)
	if err != nil {
		return "", err
	}
	return placeholderPrefix + base64.StdEncoding.EncodeToString(encoded), nil
}

// encodeJPEG flattens transparency onto white, which JPEG cannot carry.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("transcode: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DeclaredType returns the media type of in without parameters, sniffing the
// content when none was declared.
func DeclaredType(in Input) string {
	declared := strings.TrimSpace(in.ContentType)
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			return strings.ToLower(parsed)
		}
		return strings.ToLower(declared)
	}
	return mimetype.Detect(in.Data).String()
}

// IsImage reports whether data sniffs as an image type.
func IsImage(data []byte) bool {
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "image/") {
			return true
		}
	}
	return false
}

// Extension returns the canonical file extension for data, e.g. ".png".
func Extension(data []byte) string {
	return mimetype.Detect(data).Extension()
}

func isJPEG(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return true
	}
	return false
}
