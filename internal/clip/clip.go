// Package clip reads and writes the system clipboard. Build constraints pick
// the backend:
//
//	design.go       shared golang.design/x/clipboard calls (darwin, linux, windows)
//	clip_darwin.go  change detection via the pasteboard changeCount
//	clip_linux.go   content polling; headless when no display is reachable
//	clip_windows.go format probing via IsClipboardFormatAvailable
//	clip_other.go   headless everywhere else
//
// Backends only move bytes. Deciding what a change means is up to callers.
package clip

import (
	"errors"
	"slices"
)

// Format is a clipboard representation, named by MIME type.
type Format string

const (
	FormatText Format = "text/plain"
	FormatPNG  Format = "image/png"
	FormatBMP  Format = "image/bmp"
	FormatTIFF Format = "image/tiff"
)

// IsImage reports whether f is a raster image format.
func (f Format) IsImage() bool {
	switch f {
	case FormatPNG, FormatBMP, FormatTIFF:
		return true
	}
	return false
}

var (
	// ErrFormatUnavailable means the clipboard does not hold the requested format.
	ErrFormatUnavailable = errors.New("clipboard format unavailable")

	// ErrAccessDenied means the clipboard could not be opened, usually because
	// another process holds it.
	ErrAccessDenied = errors.New("clipboard access denied")
)

// Backend is the interface that all platform clipboard implementations satisfy.
// Every call re-reads the system clipboard; nothing is cached between calls.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Formats lists the formats currently offered by the clipboard.
	Formats() ([]Format, error)

	// ReadImage returns the clipboard image and its encoding. It fails with
	// ErrFormatUnavailable when no image is present and ErrAccessDenied when
	// the clipboard cannot be read.
	ReadImage() (Format, []byte, error)

	// WriteText replaces the clipboard contents with text.
	WriteText(text string) error

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed. On platforms without native change
	// notification (Linux X11/Wayland) this is implemented via polling. On
	// Windows it never fires: the viewer chain delivers change notifications.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// HasImage reports whether formats contains a raster image format.
func HasImage(formats []Format) bool {
	return slices.ContainsFunc(formats, Format.IsImage)
}

// Owner is implemented by backends whose written text only lives as long as
// the writing process, as with X11 selections.
type Owner interface {
	// Overwritten fires once the text from the last WriteText has been
	// replaced by another application. It is nil before the first write.
	Overwritten() <-chan struct{}
}

// imageSource is one clipboard representation an image can be read from.
type imageSource struct {
	format  Format
	offered func() bool
	read    func() ([]byte, error)
}

// readFirst reads the first offered source that still holds data. A source
// that was offered but vanished falls through to the next one; only an
// access failure stops the search.
func readFirst(sources []imageSource) (Format, []byte, error) {
	for _, s := range sources {
		if !s.offered() {
			continue
		}
		data, err := s.read()
		switch {
		case err == nil:
			return s.format, data, nil
		case errors.Is(err, ErrFormatUnavailable):
			continue
		default:
			return "", nil, err
		}
	}
	return "", nil, ErrFormatUnavailable
}
