//go:build windows

package adapter

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
)

const (
	whKeyboardLL = 13
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105
)

type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// WindowsAdapter keeps the teacher's WH_KEYBOARD_LL hook, ported onto
// golang.org/x/sys/windows typed syscalls instead of raw
// syscall.NewLazyDLL/NewCallback.
type WindowsAdapter struct {
	hook  windows.Handle
	out   chan RawEvent
	start time.Time
}

var activeWindowsAdapter *WindowsAdapter // the hook callback has no user-data slot

// NewWindowsAdapter returns an unopened adapter.
func NewWindowsAdapter() *WindowsAdapter {
	return &WindowsAdapter{out: make(chan RawEvent, 128)}
}

// Open installs the low-level keyboard hook and pumps its message loop on
// a dedicated goroutine (the hook must run on the thread that installed
// it).
func (a *WindowsAdapter) Open() error {
	a.start = time.Now()
	activeWindowsAdapter = a

	installed := make(chan error, 1)
	go func() {
		hookProc := windows.NewCallback(keyboardProc)
		h, _, callErr := procSetWindowsHookEx.Call(
			uintptr(whKeyboardLL),
			hookProc,
			0,
			0,
		)
		if h == 0 {
			installed <- fmt.Errorf("adapter: SetWindowsHookExW failed: %w", callErr)
			return
		}
		a.hook = windows.Handle(h)
		installed <- nil

		var m msg
		for {
			ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			if ret == 0 {
				return
			}
		}
	}()
	return <-installed
}

// Events returns the adapter's output channel.
func (a *WindowsAdapter) Events() <-chan RawEvent { return a.out }

// Close uninstalls the hook.
func (a *WindowsAdapter) Close() error {
	if a.hook != 0 {
		procUnhookWindowsHookEx.Call(uintptr(a.hook))
		a.hook = 0
	}
	activeWindowsAdapter = nil
	return nil
}

func keyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	a := activeWindowsAdapter
	if a != nil && nCode >= 0 {
		kb := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		code := translateVKCode(kb.VkCode)
		if code != oscode.Unknown {
			switch wParam {
			case wmKeyDown, wmSysKeyDown:
				a.publish(code, engine.Down)
			case wmKeyUp, wmSysKeyUp:
				a.publish(code, engine.Up)
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func (a *WindowsAdapter) publish(code oscode.Code, dir engine.Direction) {
	select {
	case a.out <- RawEvent{Code: code, Dir: dir, TsMs: time.Since(a.start).Milliseconds()}:
	default:
	}
}

// translateVKCode maps a Windows virtual-key code to oscode.Code.
func translateVKCode(vk uint32) oscode.Code {
	if c, ok := vkToOs[vk]; ok {
		return c
	}
	return oscode.Unknown
}

var vkToOs = map[uint32]oscode.Code{
	0x41: oscode.A, 0x42: oscode.B, 0x43: oscode.C, 0x44: oscode.D, 0x45: oscode.E,
	0x46: oscode.F, 0x47: oscode.G, 0x48: oscode.H, 0x49: oscode.I, 0x4A: oscode.J,
	0x4B: oscode.K, 0x4C: oscode.L, 0x4D: oscode.M, 0x4E: oscode.N, 0x4F: oscode.O,
	0x50: oscode.P, 0x51: oscode.Q, 0x52: oscode.R, 0x53: oscode.S, 0x54: oscode.T,
	0x55: oscode.U, 0x56: oscode.V, 0x57: oscode.W, 0x58: oscode.X, 0x59: oscode.Y, 0x5A: oscode.Z,
	0x31: oscode.Num1, 0x32: oscode.Num2, 0x33: oscode.Num3, 0x34: oscode.Num4, 0x35: oscode.Num5,
	0x36: oscode.Num6, 0x37: oscode.Num7, 0x38: oscode.Num8, 0x39: oscode.Num9, 0x30: oscode.Num0,
	0x0D: oscode.Enter, 0x1B: oscode.Escape, 0x08: oscode.Backspace, 0x09: oscode.Tab, 0x20: oscode.Space,
	0x14: oscode.CapsLock,
	0x70: oscode.F1, 0x71: oscode.F2, 0x72: oscode.F3, 0x73: oscode.F4, 0x74: oscode.F5, 0x75: oscode.F6,
	0x76: oscode.F7, 0x77: oscode.F8, 0x78: oscode.F9, 0x79: oscode.F10, 0x7A: oscode.F11, 0x7B: oscode.F12,
	0xA2: oscode.LeftCtrl, 0xA0: oscode.LeftShift, 0xA4: oscode.LeftAlt, 0x5B: oscode.LeftMeta,
	0xA3: oscode.RightCtrl, 0xA1: oscode.RightShift, 0xA5: oscode.RightAlt, 0x5C: oscode.RightMeta,
}
