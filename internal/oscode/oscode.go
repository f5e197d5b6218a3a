// Package oscode defines the platform-agnostic key identifier used
// throughout the engine. Every physical key and every supported virtual
// output (mouse button, unicode sentinel, fake-key) has a distinct Code.
package oscode

// Code is an engine-internal key identifier, independent of the host OS
// encoding. Values are chosen so the low range mirrors the USB HID keyboard
// usage page; higher ranges are reserved for virtual outputs the OS keyboard
// page has no slot for.
type Code uint16

// Reserved ranges. Real HID keyboard codes live below 0x200; everything at
// or above that is an engine-local virtual code with no native OS encoding
// of its own.
const (
	RangeMouse   Code = 0x400
	RangeUnicode Code = 0x500
	RangeFakeKey Code = 0x600
	MaxCode      Code = 0x700
)

// Standard alphanumeric and modifier keys, numbered to match the USB HID
// keyboard usage page directly so adapters can translate with a lookup
// table instead of a switch.
const (
	Unknown Code = 0x00

	A Code = 0x04
	B Code = 0x05
	C Code = 0x06
	D Code = 0x07
	E Code = 0x08
	F Code = 0x09
	G Code = 0x0a
	H Code = 0x0b
	I Code = 0x0c
	J Code = 0x0d
	K Code = 0x0e
	L Code = 0x0f
	M Code = 0x10
	N Code = 0x11
	O Code = 0x12
	P Code = 0x13
	Q Code = 0x14
	R Code = 0x15
	S Code = 0x16
	T Code = 0x17
	U Code = 0x18
	V Code = 0x19
	W Code = 0x1a
	X Code = 0x1b
	Y Code = 0x1c
	Z Code = 0x1d

	Num1 Code = 0x1e
	Num2 Code = 0x1f
	Num3 Code = 0x20
	Num4 Code = 0x21
	Num5 Code = 0x22
	Num6 Code = 0x23
	Num7 Code = 0x24
	Num8 Code = 0x25
	Num9 Code = 0x26
	Num0 Code = 0x27

	Enter     Code = 0x28
	Escape    Code = 0x29
	Backspace Code = 0x2a
	Tab       Code = 0x2b
	Space     Code = 0x2c

	CapsLock Code = 0x39

	F1  Code = 0x3a
	F2  Code = 0x3b
	F3  Code = 0x3c
	F4  Code = 0x3d
	F5  Code = 0x3e
	F6  Code = 0x3f
	F7  Code = 0x40
	F8  Code = 0x41
	F9  Code = 0x42
	F10 Code = 0x43
	F11 Code = 0x44
	F12 Code = 0x45

	LeftCtrl   Code = 0xe0
	LeftShift  Code = 0xe1
	LeftAlt    Code = 0xe2
	LeftMeta   Code = 0xe3
	RightCtrl  Code = 0xe4
	RightShift Code = 0xe5
	RightAlt   Code = 0xe6
	RightMeta  Code = 0xe7
)

// Virtual mouse codes, offset into the mouse range so they never alias a
// real keyboard code.
const (
	MouseLeft Code = RangeMouse + iota
	MouseRight
	MouseMiddle
	MouseMove
	MouseScrollUp
	MouseScrollDown
)

// UnicodeSentinel marks an Action as carrying a unicode code point out of
// band; macro players treat it as a single logical atom (spec: "a macro's
// release pass does not attempt to release unicode").
const UnicodeSentinel Code = RangeUnicode

// IsModifier reports whether code is one of the eight standard modifier
// keys, used by the sequence engine to decide whether to set the
// modifier-high-bits on a buffered run.
func IsModifier(code Code) bool {
	switch code {
	case LeftCtrl, LeftShift, LeftAlt, LeftMeta, RightCtrl, RightShift, RightAlt, RightMeta:
		return true
	default:
		return false
	}
}

// IsMouse reports whether code names a virtual mouse output rather than a
// keyboard key.
func IsMouse(code Code) bool {
	return code >= RangeMouse && code < RangeUnicode
}

// Name returns a human-readable name for code, falling back to a hex
// representation for codes with no registered name. Used by
// RequestCurrentLayerInfo responses and log lines.
func Name(code Code) string {
	if name, ok := names[code]; ok {
		return name
	}
	return "0x" + hex(uint16(code))
}

var names = map[Code]string{
	A: "a", B: "b", C: "c", D: "d", E: "e", F: "f", G: "g", H: "h", I: "i",
	J: "j", K: "k", L: "l", M: "m", N: "n", O: "o", P: "p", Q: "q", R: "r",
	S: "s", T: "t", U: "u", V: "v", W: "w", X: "x", Y: "y", Z: "z",
	Num1: "1", Num2: "2", Num3: "3", Num4: "4", Num5: "5",
	Num6: "6", Num7: "7", Num8: "8", Num9: "9", Num0: "0",
	Enter: "ret", Escape: "esc", Backspace: "bspc", Tab: "tab", Space: "spc",
	CapsLock: "caps",
	F1:       "f1", F2: "f2", F3: "f3", F4: "f4", F5: "f5", F6: "f6",
	F7: "f7", F8: "f8", F9: "f9", F10: "f10", F11: "f11", F12: "f12",
	LeftCtrl: "lctl", LeftShift: "lsft", LeftAlt: "lalt", LeftMeta: "lmet",
	RightCtrl: "rctl", RightShift: "rsft", RightAlt: "ralt", RightMeta: "rmet",
	MouseLeft: "mouse-left", MouseRight: "mouse-right", MouseMiddle: "mouse-middle",
}

const hexDigits = "0123456789abcdef"

func hex(v uint16) string {
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 0, 4)
	for v > 0 {
		buf = append([]byte{hexDigits[v&0xf]}, buf...)
		v >>= 4
	}
	return string(buf)
}
