//go:build windows

package clip

import (
	"log/slog"
	"unsafe"

	"golang.design/x/clipboard"
	"golang.org/x/sys/windows"
)

// Standard clipboard formats (winuser.h).
const (
	cfText        = 1
	cfBitmap      = 2
	cfDIB         = 8
	cfUnicodeText = 13
	cfDIBV5       = 17
)

var (
	user32                         = windows.NewLazySystemDLL("user32.dll")
	kernel32                       = windows.NewLazySystemDLL("kernel32.dll")
	procIsClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	procRegisterClipboardFormatW   = user32.NewProc("RegisterClipboardFormatW")
	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procGetClipboardData           = user32.NewProc("GetClipboardData")
	procGlobalLock                 = kernel32.NewProc("GlobalLock")
	procGlobalUnlock               = kernel32.NewProc("GlobalUnlock")
	procGlobalSize                 = kernel32.NewProc("GlobalSize")
)

type windowsBackend struct {
	cfPNG   uintptr
	watchCh chan struct{}
}

// New returns the Windows clipboard backend. Text and bitmaps go through
// golang.design/x/clipboard; the registered "PNG" format and format
// availability are handled directly.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
	}
	return &windowsBackend{
		cfPNG:   registerFormat("PNG"),
		watchCh: make(chan struct{}),
	}
}

func (b *windowsBackend) Name() string { return "Windows clipboard (viewer chain)" }

func (b *windowsBackend) Formats() ([]Format, error) {
	var out []Format
	if available(cfUnicodeText) || available(cfText) {
		out = append(out, FormatText)
	}
	if available(b.cfPNG) {
		out = append(out, FormatPNG)
	}
	if hasBitmap() {
		out = append(out, FormatBMP)
	}
	return out, nil
}

// ReadImage prefers the application's own PNG over the bitmap, which loses
// transparency in most producers.
func (b *windowsBackend) ReadImage() (Format, []byte, error) {
	return readFirst([]imageSource{
		{
			format:  FormatPNG,
			offered: func() bool { return available(b.cfPNG) },
			read:    func() ([]byte, error) { return readGlobal(b.cfPNG) },
		},
		{
			// golang.design converts CF_DIBV5 to PNG.
			format:  FormatPNG,
			offered: hasBitmap,
			read:    readBitmap,
		},
	})
}

func (b *windowsBackend) WriteText(text string) error {
	_, err := designWriteText(text)
	return err
}

func (b *windowsBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *windowsBackend) Close()                 {}

func hasBitmap() bool {
	return available(cfDIBV5) || available(cfDIB) || available(cfBitmap)
}

// readBitmap reads through golang.design, which returns nil both when the
// bitmap is gone and when the clipboard could not be opened. Opening it
// here tells the two apart.
func readBitmap() ([]byte, error) {
	if img := clipboardRead(clipboard.FmtImage); img != nil {
		return img, nil
	}
	if err := openClipboard(); err != nil {
		return nil, err
	}
	_, _, _ = procCloseClipboard.Call()
	return nil, ErrFormatUnavailable
}

// readGlobal copies the HGLOBAL behind a clipboard format. Not retried:
// the next change notification reads again.
func readGlobal(format uintptr) ([]byte, error) {
	if err := openClipboard(); err != nil {
		return nil, err
	}
	defer procCloseClipboard.Call()

	h, _, _ := procGetClipboardData.Call(format)
	if h == 0 {
		return nil, ErrFormatUnavailable
	}
	p, _, _ := procGlobalLock.Call(h)
	if p == 0 {
		return nil, ErrFormatUnavailable
	}
	defer procGlobalUnlock.Call(h)

	n, _, _ := procGlobalSize.Call(h)
	if n == 0 {
		return nil, ErrFormatUnavailable
	}
	data := make([]byte, n)
	copy(data, unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
	return data, nil
}

func openClipboard() error {
	if r, _, err := procOpenClipboard.Call(0); r == 0 {
		slog.Debug("OpenClipboard failed", "err", err)
		return ErrAccessDenied
	}
	return nil
}

func registerFormat(name string) uintptr {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0
	}
	r, _, _ := procRegisterClipboardFormatW.Call(uintptr(unsafe.Pointer(p)))
	return r
}

func available(format uintptr) bool {
	if format == 0 {
		return false
	}
	r, _, _ := procIsClipboardFormatAvailable.Call(format)
	return r != 0
}
