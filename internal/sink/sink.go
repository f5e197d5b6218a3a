// Package sink defines the per-OS Output Sink contract of spec.md §4.7.
package sink

import "github.com/kidandcat/kanata-go/internal/engine"

// Sink accepts synthetic output and writes it to the OS. Implementations
// must preserve ordering end to end and never reorder a release before its
// matching press (spec.md §5 ordering guarantees).
type Sink interface {
	WriteKey(code uint16, dir engine.Direction) error
	WriteUnicode(cp rune) error
	WriteMouseButton(code uint16, dir engine.Direction) error
	WriteMouseMove(dx, dy int) error
	WriteMouseScroll(horizontal bool, ticks int) error
	Flush() error
}

// AbsoluteMouser is an optional capability a Sink implements if it can move
// the pointer to an absolute screen position (control.SetMouse). Sinks that
// can't support this (e.g. a bare uinput keyboard node) simply don't
// implement it.
type AbsoluteMouser interface {
	WriteMouseAbsolute(x, y int) error
}

// Write dispatches one engine.OutputEvent to sk, translating its Kind to
// the matching Sink method.
func Write(sk Sink, ev engine.OutputEvent) error {
	switch ev.Kind {
	case engine.OutKey:
		return sk.WriteKey(uint16(ev.Code), ev.Dir)
	case engine.OutUnicode:
		return sk.WriteUnicode(ev.Codepoint)
	case engine.OutMouseButton:
		return sk.WriteMouseButton(uint16(ev.Code), ev.Dir)
	case engine.OutMouseMove:
		return sk.WriteMouseMove(ev.Dx, ev.Dy)
	case engine.OutMouseScroll:
		return sk.WriteMouseScroll(ev.Horizontal, ev.Ticks)
	}
	return nil
}
