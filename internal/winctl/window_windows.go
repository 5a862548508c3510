//go:build windows

package winctl

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procFindWindowW      = user32.NewProc("FindWindowW")
	procGetWindowLongW   = user32.NewProc("GetWindowLongW")
	procSetWindowLongW   = user32.NewProc("SetWindowLongW")
	procGetWindowRect    = user32.NewProc("GetWindowRect")
	procSetWindowPos     = user32.NewProc("SetWindowPos")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
	procIsWindow         = user32.NewProc("IsWindow")
)

const (
	wsBorder       = 0x00800000
	wsCaption      = 0x00C00000
	wsThickFrame   = 0x00040000
	swpFrameChange = 0x0020
	smCXScreen     = 0
	smCYScreen     = 1
	hwndTop        = 0
)

var (
	gwlStyle      int32 = -16
	hwndNoTopmost int32 = -2
)

type borderless struct {
	title string

	mu     sync.Mutex
	active bool
	hwnd   uintptr
	style  uint32
	rect   windows.Rect
}

// NewBorderless returns a Toggler that strips the frame of the window titled
// title and stretches it over the primary screen.
func NewBorderless(title string) Toggler {
	return &borderless{title: title}
}

func (b *borderless) Enable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return nil
	}
	title, err := windows.UTF16PtrFromString(b.title)
	if err != nil {
		return err
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(title)))
	if hwnd == 0 {
		return ErrWindowNotFound
	}
	style, _, callErr := procGetWindowLongW.Call(hwnd, uintptr(gwlStyle))
	if style == 0 {
		return fmt.Errorf("get window style: %w", callErr)
	}
	var rect windows.Rect
	if ok, _, callErr := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&rect))); ok == 0 {
		return fmt.Errorf("get window rect: %w", callErr)
	}

	b.hwnd = hwnd
	b.style = uint32(style)
	b.rect = rect

	frameless := b.style &^ (wsCaption | wsThickFrame | wsBorder)
	procSetWindowLongW.Call(hwnd, uintptr(gwlStyle), uintptr(frameless))
	width, _, _ := procGetSystemMetrics.Call(smCXScreen)
	height, _, _ := procGetSystemMetrics.Call(smCYScreen)
	procSetWindowPos.Call(hwnd, hwndTop, 0, 0, width, height, swpFrameChange)
	b.active = true
	return nil
}

func (b *borderless) Disable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}
	b.active = false
	if ok, _, _ := procIsWindow.Call(b.hwnd); ok == 0 {
		return ErrWindowNotFound
	}
	r := b.rect
	procSetWindowLongW.Call(b.hwnd, uintptr(gwlStyle), uintptr(b.style))
	procSetWindowPos.Call(b.hwnd, uintptr(hwndNoTopmost),
		uintptr(r.Left), uintptr(r.Top), uintptr(r.Right-r.Left), uintptr(r.Bottom-r.Top), swpFrameChange)
	return nil
}
