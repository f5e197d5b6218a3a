// Package action defines the tagged variant that describes what one source
// key does on one layer of the keymap.
package action

import "github.com/kidandcat/kanata-go/internal/oscode"

// Action is implemented by every variant below. The marker method keeps the
// set closed to this package.
type Action interface {
	isAction()
}

// LayerMode selects how a Layer action affects the active-layer stack.
type LayerMode int

const (
	LayerWhileHeld LayerMode = iota
	LayerToggle
	LayerSwitchBase
	LayerTapToggle
)

// TapHoldPolicy selects which condition, besides the plain timeout, can
// resolve a TapHold to hold.
type TapHoldPolicy int

const (
	PolicyDefault TapHoldPolicy = iota
	PolicyPress
	PolicyRelease
	PolicyExceptKeys
	PolicyHoldOnOtherPress
)

// OneShotEndPolicy selects when an active one-shot's inner action is
// released.
type OneShotEndPolicy int

const (
	EndOnFirstRelease OneShotEndPolicy = iota
	EndOnFirstPress
	EndOnFirstPressOrRepress
)

// FakeKeyOp selects the operation a FakeKey action or control command
// performs against a named virtual key.
type FakeKeyOp int

const (
	FakeKeyPress FakeKeyOp = iota
	FakeKeyRelease
	FakeKeyTap
	FakeKeyToggle
	FakeKeyDelay
)

// KeyCode emits a single key on press, releases it on release.
type KeyCode struct {
	Code oscode.Code
}

func (KeyCode) isAction() {}

// MultipleKeyCodes presses a set in order on press, releases in reverse
// order on release.
type MultipleKeyCodes struct {
	Codes []oscode.Code
}

func (MultipleKeyCodes) isAction() {}

// Layer pushes, toggles, or switches a layer by index. Index, never a
// pointer, so Keymap stays a plain immutable value (spec.md §9).
type Layer struct {
	Index int
	Mode  LayerMode
}

func (Layer) isAction() {}

// TapHold resolves to Tap or Hold depending on timing and policy.
type TapHold struct {
	Tap           Action
	Hold          Action
	TapTimeoutMs  uint32
	HoldTimeoutMs uint32
	Policy        TapHoldPolicy
	ExceptKeys    map[oscode.Code]struct{} // only meaningful for PolicyExceptKeys
}

func (TapHold) isAction() {}

// TapDance picks the nth action for the nth tap within TimeoutMs.
type TapDance struct {
	Steps     []Action
	TimeoutMs uint32
}

func (TapDance) isAction() {}

// OneShot asserts Inner until end conditions fire.
type OneShot struct {
	Inner     Action
	TimeoutMs uint32
	EndPolicy OneShotEndPolicy
}

func (OneShot) isAction() {}

// MacroAtomKind enumerates the instructions a macro script is built from.
type MacroAtomKind int

const (
	MacroPress MacroAtomKind = iota
	MacroRelease
	MacroTap
	MacroDelay
	MacroUnicode
	MacroMouse
)

// MacroAtom is one instruction of a macro script.
type MacroAtom struct {
	Kind      MacroAtomKind
	Code      oscode.Code // Press/Release/Tap/Mouse
	DelayMs   uint32      // Delay
	Codepoint rune        // Unicode
}

// Macro plays a finite script of press/release/tap/delay/unicode/mouse
// atoms.
type Macro struct {
	Script  []MacroAtom
	Cleanup bool // if true, force-release any atom this macro pressed on completion
}

func (Macro) isAction() {}

// Sequence enters sequence/leader mode; the token is the human-readable
// leader name. It does not select a trie: every Sequence walks the
// keymap's single sequence trie.
type Sequence struct {
	LeaderToken string
}

func (Sequence) isAction() {}

// Unicode emits a single code point.
type Unicode struct {
	Codepoint rune
}

func (Unicode) isAction() {}

// MouseButton presses/releases a virtual mouse button.
type MouseButton struct {
	Code oscode.Code
}

func (MouseButton) isAction() {}

// MouseMove moves the pointer by the relative delta (Dx, Dy) once, when
// the key is pressed; holding the key does not repeat the move.
type MouseMove struct {
	Dx, Dy int
}

func (MouseMove) isAction() {}

// MouseScroll emits wheel ticks along an axis.
type MouseScroll struct {
	Horizontal bool
	Ticks      int
}

func (MouseScroll) isAction() {}

// FakeKey drives a named virtual key by reference.
type FakeKey struct {
	Ref   string
	Op    FakeKeyOp
	Delay uint32 // only meaningful for FakeKeyDelay
}

func (FakeKey) isAction() {}

// Transparent falls through to the next-lower active layer; on the base
// layer it resolves to the defsrc key (or NoOp, per options).
type Transparent struct{}

func (Transparent) isAction() {}

// NoOp does nothing on press or release.
type NoOp struct{}

func (NoOp) isAction() {}
