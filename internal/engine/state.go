package engine

import (
	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// fsmKind names the per-key automaton driving one held binding (spec.md
// §4.2's state transition table, generalized across variants).
type fsmKind int

const (
	fsmIdle fsmKind = iota
	fsmWaitingTapHold
	fsmHeldAsHold
	fsmAssertedSimple  // KeyCode, MultipleKeyCodes, MouseButton, FakeKey-as-hold
	fsmLayerPushed     // Layer{while-held} or Layer{tap-toggle} resolved to hold
	fsmTapDanceWaiting
)

// binding is the record created when a physical press resolves to an
// action; spec.md §4.2 point 3 requires release to always consult this
// record rather than the layer active at release time.
type binding struct {
	layer int
	act   action.Action
	fsm   fsmKind

	// tap-hold bookkeeping
	tapAction     action.Action
	holdAction    action.Action
	policy        action.TapHoldPolicy
	exceptKeys    map[oscode.Code]struct{}
	pressTs       int64
	tapDeadline   int64
	holdDeadline  int64
	resolvedHold  bool // true once Waiting has resolved to hold

	// tap-dance bookkeeping
	tdSteps     []action.Action
	tdTimeoutMs uint32
	tdCount     int
	tdDeadline  int64

	// layer-while-held / tap-toggle bookkeeping
	pushedLayerIdx     int
	isTapToggle        bool
	tapToggleTimeoutMs uint32

	// heldNow distinguishes "physically down right now" from "binding
	// still tracked between taps" (tap-dance) or "still the record of a
	// finished press/release cycle" more generally.
	heldNow bool
}

// oneShotState is RuntimeState's single active one-shot (spec.md §3).
type oneShotState struct {
	inner      action.Action
	sourceCode oscode.Code
	endPolicy  action.OneShotEndPolicy
	deadlineMs int64
	// waitingRelease is set once a non-oneshot key's press has been
	// observed, for EndOnFirstRelease: the shot ends on that key's release.
	waitingRelease bool
	timeoutMs      int64 // original duration, for on-first-press-or-repress extension
}

// RuntimeState is the engine's complete mutable state, matching spec.md §3
// field for field.
type RuntimeState struct {
	activeLayers []int // stack; top = effective layer
	baseLayer    int

	bindings map[oscode.Code]*binding

	oneshot *oneShotState

	pressedPhysical map[oscode.Code]struct{}
	virtualPressed  map[oscode.Code]int // refcount; released only at 0

	nowMs int64
}

func newRuntimeState(baseLayer int) *RuntimeState {
	return &RuntimeState{
		activeLayers:    []int{baseLayer},
		baseLayer:       baseLayer,
		bindings:        make(map[oscode.Code]*binding),
		pressedPhysical: make(map[oscode.Code]struct{}),
		virtualPressed:  make(map[oscode.Code]int),
	}
}

// topLayer returns the currently-effective layer index (top of stack).
func (s *RuntimeState) topLayer() int {
	return s.activeLayers[len(s.activeLayers)-1]
}

// pushLayer pushes idx on top of the stack.
func (s *RuntimeState) pushLayer(idx int) {
	s.activeLayers = append(s.activeLayers, idx)
}

// popLayerPushedBy removes the most recent stack entry equal to idx,
// searching from the top; used to pop "specifically this push" on a
// while-held release (spec.md §4.2).
func (s *RuntimeState) popLayerPushedBy(idx int) {
	for i := len(s.activeLayers) - 1; i >= 1; i-- {
		if s.activeLayers[i] == idx {
			s.activeLayers = append(s.activeLayers[:i], s.activeLayers[i+1:]...)
			return
		}
	}
}

// toggleLayer flips idx's presence in the stack (spec.md §4.2 "toggle").
func (s *RuntimeState) toggleLayer(idx int) {
	for i := len(s.activeLayers) - 1; i >= 1; i-- {
		if s.activeLayers[i] == idx {
			s.activeLayers = append(s.activeLayers[:i], s.activeLayers[i+1:]...)
			return
		}
	}
	s.pushLayer(idx)
}

// retainVirtual increments the refcount for code; used whenever the engine
// asserts an output key so a later release only clears the OS state once
// every source has released it (spec.md invariant 2).
func (s *RuntimeState) retainVirtual(code oscode.Code) {
	s.virtualPressed[code]++
}

// releaseVirtual decrements the refcount for code, returning true if this
// release should be emitted to the OS (count dropped to/through zero).
func (s *RuntimeState) releaseVirtual(code oscode.Code) bool {
	n, ok := s.virtualPressed[code]
	if !ok || n <= 0 {
		return false
	}
	n--
	if n <= 0 {
		delete(s.virtualPressed, code)
		return true
	}
	s.virtualPressed[code] = n
	return false
}

// ReleaseAll emits a release for every key currently asserted to the OS, in
// no particular order, and clears virtualPressed. The orchestrator calls it
// on shutdown only; adapter disconnects do not trigger it, and reload uses
// ReleaseOrphaned instead.
func (s *RuntimeState) ReleaseAll() []OutputEvent {
	var out []OutputEvent
	for code := range s.virtualPressed {
		out = append(out, keyEvent(code, Up))
	}
	s.virtualPressed = make(map[oscode.Code]int)
	return out
}
