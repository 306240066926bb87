//go:build darwin || linux || windows

package clip

import (
	"sync"

	"golang.design/x/clipboard"
)

// Indirection over golang.design/x/clipboard so tests can run without a
// display.
var (
	clipboardRead  = clipboard.Read
	clipboardWrite = clipboard.Write
)

// designReader lists and reads clipboard content through
// golang.design/x/clipboard, which converts every native image
// representation to PNG. The library has no way to list formats without
// transferring them, so the image fetched by formats is handed to the next
// readImage instead of being transferred twice.
type designReader struct {
	mu      sync.Mutex
	pending []byte
}

func (r *designReader) formats() []Format {
	var out []Format
	if clipboardRead(clipboard.FmtText) != nil {
		out = append(out, FormatText)
	}
	img := clipboardRead(clipboard.FmtImage)
	if img != nil {
		out = append(out, FormatPNG)
	}
	r.mu.Lock()
	r.pending = img
	r.mu.Unlock()
	return out
}

func (r *designReader) readImage() (Format, []byte, error) {
	r.mu.Lock()
	img := r.pending
	r.pending = nil
	r.mu.Unlock()
	if img == nil {
		img = clipboardRead(clipboard.FmtImage)
	}
	if img == nil {
		return "", nil, ErrFormatUnavailable
	}
	return FormatPNG, img, nil
}

// designWriteText writes text and returns the library's ownership channel,
// which fires once another application replaces the text. The library
// reports a failed write only by returning a nil channel.
func designWriteText(text string) (<-chan struct{}, error) {
	ch := clipboardWrite(clipboard.FmtText, []byte(text))
	if ch == nil {
		return nil, ErrAccessDenied
	}
	return ch, nil
}
