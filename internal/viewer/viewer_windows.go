//go:build windows

package viewer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"go.klb.dev/clip2web/internal/chain"
	"go.klb.dev/clip2web/internal/clip"
)

const (
	wmDestroy       = 0x0002
	wmClose         = 0x0010
	wmDrawClipboard = 0x0308
	wmChangeCBChain = 0x030D

	// HWND_MESSAGE, (HWND)-3: parent of message-only windows.
	hwndMessage = ^uintptr(2)

	className = "Clip2WebViewer"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetClipboardViewer   = user32.NewProc("SetClipboardViewer")
	procChangeClipboardChain = user32.NewProc("ChangeClipboardChain")
	procSendMessageW         = user32.NewProc("SendMessageW")
	procPostMessageW         = user32.NewProc("PostMessageW")
	procRegisterClassExW     = user32.NewProc("RegisterClassExW")
	procCreateWindowExW      = user32.NewProc("CreateWindowExW")
	procDestroyWindow        = user32.NewProc("DestroyWindow")
	procDefWindowProcW       = user32.NewProc("DefWindowProcW")
	procGetMessageW          = user32.NewProc("GetMessageW")
	procTranslateMessage     = user32.NewProc("TranslateMessage")
	procDispatchMessageW     = user32.NewProc("DispatchMessageW")
	procPostQuitMessage      = user32.NewProc("PostQuitMessage")
	procSetLastError         = kernel32.NewProc("SetLastError")
)

type wndClassEx struct {
	size       uint32
	style      uint32
	wndProc    uintptr
	clsExtra   int32
	wndExtra   int32
	instance   windows.Handle
	icon       windows.Handle
	cursor     windows.Handle
	background windows.Handle
	menuName   *uint16
	className  *uint16
	iconSm     windows.Handle
}

type point struct{ x, y int32 }

type winMsg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

// current is the session behind the viewer window. It is only touched on
// the locked thread that owns the window.
var (
	current    Session
	wndProcPtr = windows.NewCallback(wndProc)
)

// Run creates the viewer window on a dedicated OS thread, joins the chain
// and pumps window messages until ctx is done. The backend is not needed:
// the chain delivers change notifications.
func Run(ctx context.Context, _ clip.Backend, bind Binder) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hwnd, err := createWindow()
	if err != nil {
		return err
	}
	s := bind(windowEndpoint{hwnd: hwnd})
	current = s
	defer func() {
		leave(s)
		current = nil
		_, _, _ = procDestroyWindow.Call(hwnd)
	}()

	if err := s.Register(); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_, _, _ = procPostMessageW.Call(hwnd, wmClose, 0, 0)
		case <-stop:
		}
	}()

	return pumpMessages()
}

func pumpMessages() error {
	var m winMsg
	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			return fmt.Errorf("GetMessage: %w", err)
		case 0:
			return nil
		}
		_, _, _ = procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		_, _, _ = procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func wndProc(hwnd, msg, wParam, lParam uintptr) uintptr {
	switch msg {
	case wmDrawClipboard:
		if current != nil {
			current.Dispatch(chain.Message{Kind: chain.ContentChanged, WParam: wParam, LParam: lParam})
		}
		return 0
	case wmChangeCBChain:
		if current != nil {
			current.Dispatch(chain.Message{Kind: chain.MembershipChanged, WParam: wParam, LParam: lParam})
		}
		return 0
	case wmClose:
		// Leave while the window still exists so the splice reaches the
		// member upstream of us.
		if current != nil {
			leave(current)
		}
		_, _, _ = procDestroyWindow.Call(hwnd)
		return 0
	case wmDestroy:
		_, _, _ = procPostQuitMessage.Call(0)
		return 0
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, msg, wParam, lParam)
	return r
}

func createWindow() (uintptr, error) {
	var inst windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &inst); err != nil {
		return 0, fmt.Errorf("GetModuleHandleEx: %w", err)
	}
	cls, err := windows.UTF16PtrFromString(className)
	if err != nil {
		return 0, err
	}
	wc := wndClassEx{
		wndProc:   wndProcPtr,
		instance:  inst,
		className: cls,
	}
	wc.size = uint32(unsafe.Sizeof(wc))
	if r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
		if !errors.Is(err, windows.ERROR_CLASS_ALREADY_EXISTS) {
			return 0, fmt.Errorf("RegisterClassEx: %w", err)
		}
	}
	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(cls)),
		0, 0,
		0, 0, 0, 0,
		hwndMessage,
		0,
		uintptr(inst),
		0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("CreateWindowEx: %w", err)
	}
	return hwnd, nil
}

// windowEndpoint speaks the Win32 viewer chain protocol for one window.
type windowEndpoint struct {
	hwnd uintptr
}

func (e windowEndpoint) Self() chain.Handle { return chain.Handle(e.hwnd) }

func (e windowEndpoint) SetViewer(self chain.Handle) (chain.Handle, error) {
	// NULL is both "no previous viewer" and failure; only the last error
	// tells them apart.
	_, _, _ = procSetLastError.Call(0)
	r, _, err := procSetClipboardViewer.Call(uintptr(self))
	if r == 0 && isErrno(err) {
		return chain.NoHandle, fmt.Errorf("SetClipboardViewer: %w", err)
	}
	return chain.Handle(r), nil
}

func (e windowEndpoint) ChangeChain(self, next chain.Handle) error {
	// The return value is whatever the upstream member answered to
	// WM_CHANGECBCHAIN, usually FALSE; only the last error is meaningful.
	_, _, _ = procSetLastError.Call(0)
	r, _, err := procChangeClipboardChain.Call(uintptr(self), uintptr(next))
	if r == 0 && isErrno(err) {
		return fmt.Errorf("ChangeClipboardChain: %w", err)
	}
	return nil
}

func (e windowEndpoint) Forward(target chain.Handle, m chain.Message) error {
	if target == chain.NoHandle {
		return nil
	}
	id := uintptr(wmDrawClipboard)
	if m.Kind == chain.MembershipChanged {
		id = wmChangeCBChain
	}
	_, _, _ = procSendMessageW.Call(uintptr(target), id, m.WParam, m.LParam)
	return nil
}

func isErrno(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno != 0
}
