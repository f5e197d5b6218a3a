//go:build linux

package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// LinuxAdapter reads raw key events off every /dev/input device that looks
// like a keyboard, using github.com/holoplot/go-evdev instead of the
// hand-rolled ioctl probing the teacher's keyboard_hook_linux.go used.
type LinuxAdapter struct {
	log     *logrus.Entry
	devices []*evdev.InputDevice
	out     chan RawEvent
	stop    chan struct{}
	start   time.Time
}

// NewLinuxAdapter returns an unopened adapter.
func NewLinuxAdapter(log *logrus.Entry) *LinuxAdapter {
	return &LinuxAdapter{
		log:  log,
		out:  make(chan RawEvent, 128),
		stop: make(chan struct{}),
	}
}

// Open enumerates keyboard-capable devices and starts one reader goroutine
// per device (spec.md §5 "one Input Adapter thread per OS input source").
func (a *LinuxAdapter) Open() error {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return fmt.Errorf("adapter: list input devices: %w", err)
	}

	a.start = time.Now()
	var opened int
	for _, p := range paths {
		if !looksLikeKeyboard(p.Name) {
			continue
		}
		dev, err := evdev.Open(p.Path)
		if err != nil {
			a.log.WithError(err).WithField("path", p.Path).Warn("adapter: failed to open device")
			continue
		}
		a.devices = append(a.devices, dev)
		opened++
		go a.readLoop(dev)
	}
	if opened == 0 {
		return fmt.Errorf("adapter: no keyboard device could be opened (try running as root or adding the user to the 'input' group)")
	}
	return nil
}

func looksLikeKeyboard(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "keyboard") || strings.Contains(n, "kbd")
}

func (a *LinuxAdapter) readLoop(dev *evdev.InputDevice) {
	for {
		select {
		case <-a.stop:
			return
		default:
		}
		ev, err := dev.ReadOne()
		if err != nil {
			a.log.WithError(err).Warn("adapter: device read failed, reader stopped without releasing held keys")
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		code := translateEvdevCode(uint16(ev.Code))
		if code == oscode.Unknown {
			continue
		}
		var dir engine.Direction
		switch ev.Value {
		case 1:
			dir = engine.Down
		case 0:
			dir = engine.Up
		default: // autorepeat: the engine's own timers own repeat semantics
			continue
		}
		a.out <- RawEvent{Code: code, Dir: dir, TsMs: time.Since(a.start).Milliseconds()}
	}
}

// Events returns the adapter's output channel.
func (a *LinuxAdapter) Events() <-chan RawEvent { return a.out }

// Close stops every reader goroutine and releases device handles.
func (a *LinuxAdapter) Close() error {
	close(a.stop)
	for _, dev := range a.devices {
		dev.Close()
	}
	return nil
}

// translateEvdevCode maps Linux evdev KEY_* codes to oscode.Code. Unlike
// the teacher's fixed eight-key switch, this covers the full alphanumeric
// row plus modifiers and function keys, since the engine's defsrc can name
// any of them.
func translateEvdevCode(code uint16) oscode.Code {
	if c, ok := evdevToOs[code]; ok {
		return c
	}
	return oscode.Unknown
}

var evdevToOs = map[uint16]oscode.Code{
	30: oscode.A, 48: oscode.B, 46: oscode.C, 32: oscode.D, 18: oscode.E,
	33: oscode.F, 34: oscode.G, 35: oscode.H, 23: oscode.I, 36: oscode.J,
	37: oscode.K, 38: oscode.L, 50: oscode.M, 49: oscode.N, 24: oscode.O,
	25: oscode.P, 16: oscode.Q, 19: oscode.R, 31: oscode.S, 20: oscode.T,
	22: oscode.U, 47: oscode.V, 17: oscode.W, 45: oscode.X, 21: oscode.Y,
	44: oscode.Z,
	2: oscode.Num1, 3: oscode.Num2, 4: oscode.Num3, 5: oscode.Num4, 6: oscode.Num5,
	7: oscode.Num6, 8: oscode.Num7, 9: oscode.Num8, 10: oscode.Num9, 11: oscode.Num0,
	28: oscode.Enter, 1: oscode.Escape, 14: oscode.Backspace, 15: oscode.Tab, 57: oscode.Space,
	58: oscode.CapsLock,
	59: oscode.F1, 60: oscode.F2, 61: oscode.F3, 62: oscode.F4, 63: oscode.F5, 64: oscode.F6,
	65: oscode.F7, 66: oscode.F8, 67: oscode.F9, 68: oscode.F10, 87: oscode.F11, 88: oscode.F12,
	29: oscode.LeftCtrl, 42: oscode.LeftShift, 56: oscode.LeftAlt, 125: oscode.LeftMeta,
	97: oscode.RightCtrl, 54: oscode.RightShift, 100: oscode.RightAlt, 126: oscode.RightMeta,
}
