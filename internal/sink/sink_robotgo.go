// Package sink: the cross-platform default, built on github.com/go-vgo/
// robotgo the way the teacher's main.go drives robotgo.Toggle/Move/Scroll,
// generalized from a fixed WASD+click set to the full oscode.Code space.
package sink

import (
	"github.com/go-vgo/robotgo"
	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/engine"
)

// RobotgoSink writes synthetic output through robotgo's OS-level
// accessibility APIs.
type RobotgoSink struct {
	log *logrus.Entry
}

// NewRobotgoSink returns a sink bound to log for write failures (spec.md
// §7 "Sink-write: drop event, log").
func NewRobotgoSink(log *logrus.Entry) *RobotgoSink {
	return &RobotgoSink{log: log}
}

func (s *RobotgoSink) WriteKey(code uint16, dir engine.Direction) error {
	name, ok := robotgoKeyNames[code]
	if !ok {
		s.log.WithField("code", code).Debug("sink: no robotgo key name, dropping")
		return nil
	}
	state := "down"
	if dir == engine.Up {
		state = "up"
	}
	if err := robotgo.KeyToggle(name, state); err != nil {
		s.log.WithError(err).WithField("key", name).Warn("sink: key write failed, dropping")
	}
	return nil
}

func (s *RobotgoSink) WriteUnicode(cp rune) error {
	robotgo.TypeStr(string(cp))
	return nil
}

func (s *RobotgoSink) WriteMouseButton(code uint16, dir engine.Direction) error {
	name, ok := robotgoMouseNames[code]
	if !ok {
		return nil
	}
	state := "down"
	if dir == engine.Up {
		state = "up"
	}
	robotgo.Toggle(name, state)
	return nil
}

func (s *RobotgoSink) WriteMouseMove(dx, dy int) error {
	x, y := robotgo.Location()
	robotgo.Move(x+dx, y+dy)
	return nil
}

// WriteMouseAbsolute implements sink.AbsoluteMouser.
func (s *RobotgoSink) WriteMouseAbsolute(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (s *RobotgoSink) WriteMouseScroll(horizontal bool, ticks int) error {
	if horizontal {
		robotgo.Scroll(ticks, 0)
	} else {
		robotgo.Scroll(0, ticks)
	}
	return nil
}

func (s *RobotgoSink) Flush() error { return nil }

var robotgoKeyNames = map[uint16]string{
	0x04: "a", 0x05: "b", 0x06: "c", 0x07: "d", 0x08: "e", 0x09: "f", 0x0a: "g",
	0x0b: "h", 0x0c: "i", 0x0d: "j", 0x0e: "k", 0x0f: "l", 0x10: "m", 0x11: "n",
	0x12: "o", 0x13: "p", 0x14: "q", 0x15: "r", 0x16: "s", 0x17: "t", 0x18: "u",
	0x19: "v", 0x1a: "w", 0x1b: "x", 0x1c: "y", 0x1d: "z",
	0x1e: "1", 0x1f: "2", 0x20: "3", 0x21: "4", 0x22: "5",
	0x23: "6", 0x24: "7", 0x25: "8", 0x26: "9", 0x27: "0",
	0x28: "enter", 0x29: "esc", 0x2a: "backspace", 0x2b: "tab", 0x2c: "space",
	0x39: "capslock",
	0x3a: "f1", 0x3b: "f2", 0x3c: "f3", 0x3d: "f4", 0x3e: "f5", 0x3f: "f6",
	0x40: "f7", 0x41: "f8", 0x42: "f9", 0x43: "f10", 0x44: "f11", 0x45: "f12",
	0xe0: "lctrl", 0xe1: "lshift", 0xe2: "lalt", 0xe3: "lcmd",
	0xe4: "rctrl", 0xe5: "rshift", 0xe6: "ralt", 0xe7: "rcmd",
}

var robotgoMouseNames = map[uint16]string{
	0x400: "left", 0x401: "right", 0x402: "center",
}
