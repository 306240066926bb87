// Package capture decides whether the clipboard holds an image and, if so,
// decodes it into an immutable Snapshot.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"go.klb.dev/clip2web/internal/clip"
)

// Snapshot is a decoded copy of a clipboard image.
type Snapshot struct {
	format     clip.Format
	img        *image.NRGBA
	capturedAt time.Time
}

// NewSnapshot copies img into a new Snapshot.
func NewSnapshot(format clip.Format, img image.Image, at time.Time) *Snapshot {
	return &Snapshot{format: format, img: toNRGBA(img), capturedAt: at}
}

// Format is the clipboard format the image was read from.
func (s *Snapshot) Format() clip.Format { return s.format }

// Image returns the pixels. The image is shared and must not be modified.
func (s *Snapshot) Image() image.Image { return s.img }

// CapturedAt is when the clipboard was read.
func (s *Snapshot) CapturedAt() time.Time { return s.capturedAt }

// Size returns the image width and height.
func (s *Snapshot) Size() image.Point { return s.img.Bounds().Size() }

// AccessError reports that the clipboard could not be read or its image
// could not be decoded. No snapshot is produced and the read is not retried.
type AccessError struct {
	Op  string
	Err error
}

func (e *AccessError) Error() string { return fmt.Sprintf("clipboard %s: %v", e.Op, e.Err) }
func (e *AccessError) Unwrap() error { return e.Err }

// Extractor reads images off a clipboard backend.
type Extractor struct {
	backend clip.Backend
	now     func() time.Time
}

// NewExtractor returns an Extractor reading from backend.
func NewExtractor(backend clip.Backend) *Extractor {
	return &Extractor{backend: backend, now: time.Now}
}

// Extract inspects the current clipboard. It returns (nil, nil) when the
// clipboard holds no image, which is the common case and not an error.
func (e *Extractor) Extract() (*Snapshot, error) {
	formats, err := e.backend.Formats()
	if err != nil {
		return nil, &AccessError{Op: "list formats", Err: err}
	}
	if !clip.HasImage(formats) {
		slog.Debug("clipboard holds no image", "formats", formats)
		return nil, nil
	}

	at := e.now()
	f, data, err := e.backend.ReadImage()
	switch {
	case errors.Is(err, clip.ErrFormatUnavailable):
		// Replaced between listing and reading; the replacement brings its
		// own notification.
		slog.Debug("clipboard image vanished before read", "formats", formats)
		return nil, nil
	case err != nil:
		return nil, &AccessError{Op: "read image", Err: err}
	}

	img, err := decode(f, data)
	if err != nil {
		return nil, &AccessError{Op: "decode " + string(f), Err: err}
	}
	snap := &Snapshot{format: f, img: toNRGBA(img), capturedAt: at}
	slog.Debug("clipboard image captured", "format", f, "size", snap.Size(), "bytes", len(data))
	return snap, nil
}

func decode(f clip.Format, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch f {
	case clip.FormatPNG:
		return png.Decode(r)
	case clip.FormatBMP:
		return bmp.Decode(r)
	case clip.FormatTIFF:
		return tiff.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported image format %q", f)
	}
}

// toNRGBA copies src into a fresh NRGBA image anchored at the origin.
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
