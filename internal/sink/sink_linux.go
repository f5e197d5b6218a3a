//go:build linux

package sink

import (
	"fmt"

	"github.com/holoplot/go-evdev"
	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/engine"
)

// UinputSink writes key events through a real virtual keyboard node via
// github.com/holoplot/go-evdev, preferred on Linux over the accessibility-
// API-based RobotgoSink since it works under Wayland compositors that
// block synthetic input from userspace accessibility APIs. Mouse and
// unicode output still go through a RobotgoSink, since uinput mouse/
// unicode composition is out of scope here.
type UinputSink struct {
	log    *logrus.Entry
	dev    *evdev.InputDevice
	mouse  *RobotgoSink
}

// NewUinputSink opens /dev/uinput and creates a virtual keyboard cloning a
// real one's key capabilities. Returns an error if /dev/uinput can't be
// opened, so the caller falls back to NewRobotgoSink (spec.md §4.7).
func NewUinputSink(log *logrus.Entry, templatePath string) (*UinputSink, error) {
	tmpl, err := evdev.Open(templatePath)
	if err != nil {
		return nil, fmt.Errorf("sink: open template device: %w", err)
	}
	defer tmpl.Close()

	dev, err := evdev.CloneDevice("kanata-go virtual keyboard", tmpl)
	if err != nil {
		return nil, fmt.Errorf("sink: create uinput device: %w", err)
	}
	return &UinputSink{log: log, dev: dev, mouse: NewRobotgoSink(log)}, nil
}

func (s *UinputSink) WriteKey(code uint16, dir engine.Direction) error {
	val := int32(0)
	if dir == engine.Down {
		val = 1
	}
	if err := s.dev.WriteOne(&evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.EvCode(code), Value: val}); err != nil {
		s.log.WithError(err).Warn("sink: uinput key write failed, dropping")
		return nil
	}
	return s.dev.WriteOne(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT, Value: 0})
}

func (s *UinputSink) WriteUnicode(cp rune) error { return s.mouse.WriteUnicode(cp) }

func (s *UinputSink) WriteMouseButton(code uint16, dir engine.Direction) error {
	return s.mouse.WriteMouseButton(code, dir)
}

func (s *UinputSink) WriteMouseMove(dx, dy int) error { return s.mouse.WriteMouseMove(dx, dy) }

// WriteMouseAbsolute implements sink.AbsoluteMouser by delegating to the
// embedded RobotgoSink.
func (s *UinputSink) WriteMouseAbsolute(x, y int) error { return s.mouse.WriteMouseAbsolute(x, y) }

func (s *UinputSink) WriteMouseScroll(horizontal bool, ticks int) error {
	return s.mouse.WriteMouseScroll(horizontal, ticks)
}

func (s *UinputSink) Flush() error { return nil }

// Close releases the uinput device.
func (s *UinputSink) Close() error {
	if s.dev != nil {
		return s.dev.Close()
	}
	return nil
}
