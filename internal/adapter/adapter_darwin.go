//go:build darwin

package adapter

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>

extern CGEventRef kanataEventCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

static CFMachPortRef kanataCreateEventTap() {
    CGEventMask mask = (1 << kCGEventKeyDown) | (1 << kCGEventKeyUp) | (1 << kCGEventFlagsChanged);
    CFMachPortRef tap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionDefault,
        mask,
        kanataEventCallback,
        NULL
    );
    return tap;
}

static void kanataRunEventTap(CFMachPortRef tap) {
    CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
    CFRunLoopAddSource(CFRunLoopGetCurrent(), source, kCFRunLoopCommonModes);
    CGEventTapEnable(tap, true);
    CFRunLoopRun();
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// DarwinAdapter keeps the teacher's CGEventTapCreate cgo block verbatim in
// shape, generalized to report (OsCode, direction, ts_ms) for every key it
// can translate (defsrc filtering is left to Filter) instead of driving a
// single hard-coded MouseController.
type DarwinAdapter struct {
	mu      sync.Mutex
	running bool
	out     chan RawEvent
	start   time.Time
}

var activeDarwinAdapter *DarwinAdapter // cgo callback has no user-data pointer slot

// NewDarwinAdapter returns an unopened adapter.
func NewDarwinAdapter() *DarwinAdapter {
	return &DarwinAdapter{out: make(chan RawEvent, 128)}
}

// Open creates and enables the event tap on its own OS thread.
func (a *DarwinAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.start = time.Now()
	activeDarwinAdapter = a

	go func() {
		tap := C.kanataCreateEventTap()
		if tap == C.CFMachPortRef(0) {
			fmt.Println("adapter: failed to create event tap; grant Accessibility permissions and retry")
			return
		}
		C.kanataRunEventTap(tap)
	}()
	return nil
}

// Events returns the adapter's output channel.
func (a *DarwinAdapter) Events() <-chan RawEvent { return a.out }

// Close stops delivering further events. The run loop thread is left
// alive; there is no CoreGraphics call to tear down a CFRunLoopRun cleanly
// from outside, matching the teacher's own lifecycle.
func (a *DarwinAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	activeDarwinAdapter = nil
	return nil
}

func (a *DarwinAdapter) publish(code oscode.Code, dir engine.Direction) {
	if code == oscode.Unknown {
		return
	}
	select {
	case a.out <- RawEvent{Code: code, Dir: dir, TsMs: time.Since(a.start).Milliseconds()}:
	default: // bounded channel: the orchestrator's own queue applies the real overflow policy
	}
}

//export kanataEventCallback
func kanataEventCallback(proxy C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	a := activeDarwinAdapter
	if a == nil {
		return event
	}
	keycode := int64(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
	code := translateDarwinKeycode(keycode)

	switch eventType {
	case C.kCGEventFlagsChanged:
		flags := uint64(C.CGEventGetFlags(event))
		if code != oscode.Unknown {
			if modifierFlagSet(code, flags) {
				a.publish(code, engine.Down)
			} else {
				a.publish(code, engine.Up)
			}
		}
	case C.kCGEventKeyDown:
		a.publish(code, engine.Down)
	case C.kCGEventKeyUp:
		a.publish(code, engine.Up)
	}
	return event
}

// modifierFlagSet reports whether the CGEventFlags mask shows code's side
// currently held, for the subset of modifiers reported via FlagsChanged
// rather than KeyDown/KeyUp.
func modifierFlagSet(code oscode.Code, flags uint64) bool {
	const (
		maskShift = 1 << 17
		maskCtrl  = 1 << 18
		maskAlt   = 1 << 19
		maskMeta  = 1 << 20
	)
	switch code {
	case oscode.LeftShift, oscode.RightShift:
		return flags&maskShift != 0
	case oscode.LeftCtrl, oscode.RightCtrl:
		return flags&maskCtrl != 0
	case oscode.LeftAlt, oscode.RightAlt:
		return flags&maskAlt != 0
	case oscode.LeftMeta, oscode.RightMeta:
		return flags&maskMeta != 0
	default:
		return false
	}
}

// translateDarwinKeycode maps a macOS virtual keycode to oscode.Code.
func translateDarwinKeycode(keycode int64) oscode.Code {
	if c, ok := darwinToOs[keycode]; ok {
		return c
	}
	return oscode.Unknown
}

var darwinToOs = map[int64]oscode.Code{
	0: oscode.A, 11: oscode.B, 8: oscode.C, 2: oscode.D, 14: oscode.E,
	3: oscode.F, 5: oscode.G, 4: oscode.H, 34: oscode.I, 38: oscode.J,
	40: oscode.K, 37: oscode.L, 46: oscode.M, 45: oscode.N, 31: oscode.O,
	35: oscode.P, 12: oscode.Q, 15: oscode.R, 1: oscode.S, 17: oscode.T,
	32: oscode.U, 9: oscode.V, 13: oscode.W, 7: oscode.X, 16: oscode.Y, 6: oscode.Z,
	18: oscode.Num1, 19: oscode.Num2, 20: oscode.Num3, 21: oscode.Num4, 23: oscode.Num5,
	22: oscode.Num6, 26: oscode.Num7, 28: oscode.Num8, 25: oscode.Num9, 29: oscode.Num0,
	36: oscode.Enter, 53: oscode.Escape, 51: oscode.Backspace, 48: oscode.Tab, 49: oscode.Space,
	57: oscode.CapsLock,
	122: oscode.F1, 120: oscode.F2, 99: oscode.F3, 118: oscode.F4, 96: oscode.F5, 97: oscode.F6,
	98: oscode.F7, 100: oscode.F8, 101: oscode.F9, 109: oscode.F10, 103: oscode.F11, 111: oscode.F12,
	59: oscode.LeftCtrl, 56: oscode.LeftShift, 58: oscode.LeftAlt, 55: oscode.LeftMeta,
	62: oscode.RightCtrl, 60: oscode.RightShift, 61: oscode.RightAlt, 54: oscode.RightMeta,
}
