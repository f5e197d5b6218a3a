// Package sequence implements the leader/sequence engine of spec.md §4.4: a
// trie walk over key runs entered after a Sequence action fires, with
// modifier-high-bit tagging so a run typed while holding shift can resolve
// to a different binding than the same run typed plain.
package sequence

import (
	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// Modifier-high-bits, packed above the real HID/virtual code ranges
// (oscode.MaxCode == 0x700) so a tagged code never aliases a plain one.
const (
	modShift oscode.Code = 0x1000
	modCtrl  oscode.Code = 0x2000
	modAlt   oscode.Code = 0x4000
	modMeta  oscode.Code = 0x8000
)

// TaggedCode combines a base code with modifier bits for trie construction;
// internal/config calls this when compiling a (defseq ...) form whose run
// specifies held modifiers.
func TaggedCode(code oscode.Code, shift, ctrl, alt, meta bool) oscode.Code {
	tagged := code
	if shift {
		tagged |= modShift
	}
	if ctrl {
		tagged |= modCtrl
	}
	if alt {
		tagged |= modAlt
	}
	if meta {
		tagged |= modMeta
	}
	return tagged
}

// Engine holds the sequence/leader walk state. Not safe for concurrent use;
// the orchestrator owns one per Machine.
type Engine struct {
	root               *keymap.SequenceNode
	timeoutMs          uint32
	backtrackModcancel bool

	active   bool
	cur      *keymap.SequenceNode
	deadline int64
	modsHeld map[oscode.Code]bool
}

// New builds an Engine over the keymap's sequence trie and global options.
func New(root *keymap.SequenceNode, opts keymap.Options) *Engine {
	return &Engine{
		root:               root,
		timeoutMs:          opts.SequenceTimeoutMs,
		backtrackModcancel: opts.BacktrackModcancel,
		modsHeld:           make(map[oscode.Code]bool),
	}
}

// Active reports whether a sequence walk is in progress.
func (e *Engine) Active() bool { return e.active }

// Enter starts a new walk at the trie root, called when a Sequence action
// fires (spec.md §4.2 dispatch of action.Sequence).
func (e *Engine) Enter(startTs int64) {
	e.active = true
	e.cur = e.root
	e.deadline = startTs + int64(e.timeoutMs)
	e.modsHeld = make(map[oscode.Code]bool)
}

func (e *Engine) currentModMask() oscode.Code {
	var m oscode.Code
	for code, held := range e.modsHeld {
		if !held {
			continue
		}
		switch code {
		case oscode.LeftShift, oscode.RightShift:
			m |= modShift
		case oscode.LeftCtrl, oscode.RightCtrl:
			m |= modCtrl
		case oscode.LeftAlt, oscode.RightAlt:
			m |= modAlt
		case oscode.LeftMeta, oscode.RightMeta:
			m |= modMeta
		}
	}
	return m
}

// HandlePress offers one key-down while a walk is active. A modifier key
// press/release only updates the ambient mod mask and is otherwise absorbed
// (it is not itself a trie step). A non-modifier key advances the walk:
// fired is true once a terminal node is reached (act is its bound Action);
// aborted is true when the run has no matching branch, with one plain-bits
// retry per spec.md §4.4 when backtrack-modcancel is enabled and the step
// used modifier bits.
func (e *Engine) HandlePress(code oscode.Code, ts int64) (act action.Action, fired bool, aborted bool) {
	if !e.active {
		return nil, false, false
	}
	if oscode.IsModifier(code) {
		e.modsHeld[code] = true
		return nil, false, false
	}

	mods := e.currentModMask()
	tagged := code | mods
	next := e.cur.Walk(tagged)
	if next == nil && mods != 0 && e.backtrackModcancel {
		next = e.cur.Walk(code)
	}
	if next == nil {
		e.active = false
		return nil, false, true
	}

	e.cur = next
	e.deadline = ts + int64(e.timeoutMs)
	if next.Action != nil {
		act = next.Action
		e.active = false
		return act, true, false
	}
	return nil, false, false
}

// HandleRelease clears modifier tracking; non-modifier releases are not
// trie steps and are ignored.
func (e *Engine) HandleRelease(code oscode.Code) {
	if oscode.IsModifier(code) {
		delete(e.modsHeld, code)
	}
}

// Tick checks the inter-key deadline (spec.md §8 "Sequence last-step at
// exactly sequence_timeout aborts"). Returns true if this tick aborted an
// active walk.
func (e *Engine) Tick(nowMs int64) bool {
	if !e.active {
		return false
	}
	if nowMs >= e.deadline {
		e.active = false
		return true
	}
	return false
}
