// Package engine implements the layered state machine of spec.md §4.2: the
// keyberon-style engine that holds active layers, per-key finite state
// automata, and the one-shot, tap-hold, tap-dance, and layer-operation
// resolution rules.
package engine

import (
	"fmt"
	"strings"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// SequenceEnter signals that a Sequence action resolved on press; the
// orchestrator routes subsequent raw events to the sequence engine instead
// of Machine until the sequence engine reports exit (spec.md §4.4).
type SequenceEnter struct {
	LeaderToken string
}

// Result carries everything one HandleEvent or Tick call produced.
type Result struct {
	Outputs       []OutputEvent
	MacroTriggers []action.Macro
	Sequence      *SequenceEnter
}

func (r *Result) merge(other Result) {
	r.Outputs = append(r.Outputs, other.Outputs...)
	r.MacroTriggers = append(r.MacroTriggers, other.MacroTriggers...)
	if other.Sequence != nil {
		r.Sequence = other.Sequence
	}
}

// Machine is the layered state machine. Not safe for concurrent use; the
// Orchestrator is its only caller and already serializes access (spec.md
// §5).
type Machine struct {
	km       *keymap.Keymap
	state    *RuntimeState
	fakeHeld map[string]bool
}

// New constructs a Machine with the base layer at index 0.
func New(km *keymap.Keymap) *Machine {
	return &Machine{
		km:       km,
		state:    newRuntimeState(0),
		fakeHeld: make(map[string]bool),
	}
}

// NowMs returns the engine's current monotonic time basis.
func (m *Machine) NowMs() int64 { return m.state.nowMs }

func (m *Machine) clampNow(ts int64) int64 {
	if ts < m.state.nowMs {
		ts = m.state.nowMs // invariant 4: clamp a stale timestamp
	}
	m.state.nowMs = ts
	return ts
}

// HandleEvent resolves one physical key event and returns the resulting
// synthetic output (spec.md §4.2).
func (m *Machine) HandleEvent(code oscode.Code, dir Direction, tsMs int64) Result {
	ts := m.clampNow(tsMs)
	if dir == Down {
		return m.handlePress(code, ts)
	}
	return m.handleRelease(code, ts)
}

func (m *Machine) handlePress(code oscode.Code, ts int64) Result {
	var res Result

	// A repress of the one-shot's own source key under
	// on-first-press-or-repress just extends the window (spec.md §4.2
	// OneShot "same one-shot is pressed again ... extend the timeout").
	if os := m.state.oneshot; os != nil && os.endPolicy == action.EndOnFirstPressOrRepress && code == os.sourceCode {
		os.deadlineMs = ts + os.timeoutMs
		m.state.pressedPhysical[code] = struct{}{}
		return res
	}

	// Other-key-press can resolve a waiting tap-hold to hold, and can end
	// an active one-shot, before this key's own press is dispatched.
	for k, b := range m.state.bindings {
		if k == code {
			continue
		}
		if b.fsm == fsmWaitingTapHold && shouldTriggerHoldOnOtherPress(b, code) {
			res.Outputs = append(res.Outputs, m.resolveHold(b)...)
		}
	}
	if os := m.state.oneshot; os != nil && code != os.sourceCode {
		res.Outputs = append(res.Outputs, m.maybeEndOneShotOnPress()...)
	}

	if b, already := m.state.bindings[code]; already {
		if b.fsm == fsmTapDanceWaiting && !b.heldNow {
			// next tap of a tap-dance run
			b.heldNow = true
			b.tdCount++
			b.tdDeadline = ts + int64(b.tdTimeoutMs)
			m.state.pressedPhysical[code] = struct{}{}
			return res
		}
		// key repeat while already held: no new action
		m.state.pressedPhysical[code] = struct{}{}
		return res
	}

	m.state.pressedPhysical[code] = struct{}{}
	layerIdx, act := m.resolve(code)
	b := &binding{layer: layerIdx, act: act, pressTs: ts, heldNow: true}
	m.state.bindings[code] = b

	pressRes := m.dispatchPress(b, code, ts, act)
	res.merge(pressRes)
	return res
}

func (m *Machine) dispatchPress(b *binding, code oscode.Code, ts int64, act action.Action) Result {
	var res Result
	if isCustomCmd(act) {
		b.fsm = fsmAssertedSimple
		return res
	}
	switch a := act.(type) {
	case action.Layer:
		m.dispatchLayerPress(b, a, ts)

	case action.TapHold:
		b.fsm = fsmWaitingTapHold
		b.tapAction = a.Tap
		b.holdAction = a.Hold
		b.policy = a.Policy
		b.exceptKeys = a.ExceptKeys
		b.tapDeadline = ts + int64(a.TapTimeoutMs)
		b.holdDeadline = ts + int64(a.HoldTimeoutMs)

	case action.TapDance:
		b.fsm = fsmTapDanceWaiting
		b.tdSteps = a.Steps
		b.tdTimeoutMs = a.TimeoutMs
		b.tdCount = 1
		b.tdDeadline = ts + int64(a.TimeoutMs)

	case action.OneShot:
		// asserted on release, once the triggering tap completes.
		b.fsm = fsmAssertedSimple

	case action.Macro:
		res.MacroTriggers = append(res.MacroTriggers, a)
		b.fsm = fsmAssertedSimple

	case action.Sequence:
		res.Sequence = &SequenceEnter{LeaderToken: a.LeaderToken}
		b.fsm = fsmAssertedSimple

	case action.FakeKey:
		res.Outputs = append(res.Outputs, m.applyFakeKeyOp(a.Ref, a.Op)...)
		b.fsm = fsmAssertedSimple

	case action.NoOp:
		b.fsm = fsmAssertedSimple

	default: // KeyCode, MultipleKeyCodes, Unicode, MouseButton, MouseMove, MouseScroll
		b.fsm = fsmAssertedSimple
		res.Outputs = append(res.Outputs, pressActionOutputs(m.state, act)...)
	}
	return res
}

func (m *Machine) dispatchLayerPress(b *binding, a action.Layer, ts int64) {
	switch a.Mode {
	case action.LayerWhileHeld:
		m.state.pushLayer(a.Index)
		b.fsm = fsmLayerPushed
		b.pushedLayerIdx = a.Index
	case action.LayerToggle:
		m.state.toggleLayer(a.Index)
		b.fsm = fsmAssertedSimple
	case action.LayerSwitchBase:
		m.state.baseLayer = a.Index
		m.state.activeLayers[0] = a.Index
		b.fsm = fsmAssertedSimple
	case action.LayerTapToggle:
		m.state.pushLayer(a.Index)
		b.fsm = fsmLayerPushed
		b.pushedLayerIdx = a.Index
		b.isTapToggle = true
		b.tapToggleTimeoutMs = m.km.Options.DefaultTapTimeoutMs
	}
}

func (m *Machine) handleRelease(code oscode.Code, ts int64) Result {
	var res Result
	delete(m.state.pressedPhysical, code)

	b, ok := m.state.bindings[code]
	if !ok {
		return res // invariant 2: release with no matching press is suppressed
	}

	if os, isOneShot := b.act.(action.OneShot); isOneShot {
		res.Outputs = append(res.Outputs, pressActionOutputs(m.state, os.Inner)...)
		m.state.oneshot = &oneShotState{
			inner:      os.Inner,
			sourceCode: code,
			endPolicy:  os.EndPolicy,
			deadlineMs: ts + int64(os.TimeoutMs),
			timeoutMs:  int64(os.TimeoutMs),
		}
		delete(m.state.bindings, code)
		return res
	}

	switch b.fsm {
	case fsmWaitingTapHold:
		if b.policy == action.PolicyRelease && ts >= b.tapDeadline {
			res.Outputs = append(res.Outputs, m.resolveHold(b)...)
			res.Outputs = append(res.Outputs, m.releaseResolvedHold(b)...)
		} else {
			res.Outputs = append(res.Outputs, m.resolveTap(b)...)
		}
		delete(m.state.bindings, code)

	case fsmHeldAsHold:
		res.Outputs = append(res.Outputs, m.releaseResolvedHold(b)...)
		delete(m.state.bindings, code)

	case fsmLayerPushed:
		m.state.popLayerPushedBy(b.pushedLayerIdx)
		if b.isTapToggle && ts-b.pressTs < int64(b.tapToggleTimeoutMs) {
			m.state.toggleLayer(b.pushedLayerIdx)
		}
		delete(m.state.bindings, code)

	case fsmTapDanceWaiting:
		b.heldNow = false // wait for either another tap or the timeout

	case fsmAssertedSimple:
		res.Outputs = append(res.Outputs, releaseSimple(m.state, b.act)...)
		delete(m.state.bindings, code)
	}

	if m.state.oneshot != nil {
		res.Outputs = append(res.Outputs, m.maybeEndOneShotOnRelease(code)...)
	}
	return res
}

// Tick advances all independent timers by deltaMs (spec.md §5 "Timeouts...
// computed in monotonic ms"). Chord, sequence, and macro timers live in
// their own engines and are ticked separately by the orchestrator.
func (m *Machine) Tick(deltaMs int64) Result {
	var res Result
	m.state.nowMs += deltaMs
	now := m.state.nowMs

	for code, b := range m.state.bindings {
		switch b.fsm {
		case fsmWaitingTapHold:
			if now >= b.holdDeadline {
				res.Outputs = append(res.Outputs, m.resolveHold(b)...)
			}
		case fsmTapDanceWaiting:
			if now >= b.tdDeadline {
				res.Outputs = append(res.Outputs, m.resolveTapDance(code, b)...)
			}
		}
	}

	if os := m.state.oneshot; os != nil && now >= os.deadlineMs {
		res.Outputs = append(res.Outputs, m.endOneShot()...)
	}
	return res
}

func (m *Machine) resolveHold(b *binding) []OutputEvent {
	b.fsm = fsmHeldAsHold
	b.resolvedHold = true
	return pressActionOutputs(m.state, b.holdAction)
}

func (m *Machine) releaseResolvedHold(b *binding) []OutputEvent {
	return releaseActionOutputs(m.state, b.holdAction)
}

func (m *Machine) resolveTap(b *binding) []OutputEvent {
	out := pressActionOutputs(m.state, b.tapAction)
	out = append(out, releaseActionOutputs(m.state, b.tapAction)...)
	return out
}

func (m *Machine) resolveTapDance(code oscode.Code, b *binding) []OutputEvent {
	idx := b.tdCount - 1
	if idx >= len(b.tdSteps) {
		idx = len(b.tdSteps) - 1
	}
	if idx < 0 {
		delete(m.state.bindings, code)
		return nil
	}
	step := b.tdSteps[idx]
	out := pressActionOutputs(m.state, step)
	if !b.heldNow {
		out = append(out, releaseActionOutputs(m.state, step)...)
		delete(m.state.bindings, code)
	} else {
		b.fsm = fsmAssertedSimple
		b.act = step
	}
	return out
}

func shouldTriggerHoldOnOtherPress(b *binding, otherCode oscode.Code) bool {
	switch b.policy {
	case action.PolicyHoldOnOtherPress, action.PolicyPress:
		return true
	case action.PolicyExceptKeys:
		if b.exceptKeys != nil {
			if _, excepted := b.exceptKeys[otherCode]; excepted {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (m *Machine) maybeEndOneShotOnPress() []OutputEvent {
	os := m.state.oneshot
	switch os.endPolicy {
	case action.EndOnFirstPress, action.EndOnFirstPressOrRepress:
		return m.endOneShot()
	case action.EndOnFirstRelease:
		os.waitingRelease = true
	}
	return nil
}

func (m *Machine) maybeEndOneShotOnRelease(code oscode.Code) []OutputEvent {
	os := m.state.oneshot
	if os == nil || code == os.sourceCode {
		return nil
	}
	if os.endPolicy == action.EndOnFirstRelease && os.waitingRelease {
		return m.endOneShot()
	}
	return nil
}

func (m *Machine) endOneShot() []OutputEvent {
	os := m.state.oneshot
	m.state.oneshot = nil
	return releaseActionOutputs(m.state, os.inner)
}

func (m *Machine) applyFakeKeyOp(ref string, op action.FakeKeyOp) []OutputEvent {
	act, ok := m.km.FakeKeys[ref]
	if !ok {
		return nil
	}
	switch op {
	case action.FakeKeyPress:
		m.fakeHeld[ref] = true
		return pressActionOutputs(m.state, act)
	case action.FakeKeyRelease:
		if !m.fakeHeld[ref] {
			return nil
		}
		delete(m.fakeHeld, ref)
		return releaseActionOutputs(m.state, act)
	case action.FakeKeyTap:
		out := pressActionOutputs(m.state, act)
		return append(out, releaseActionOutputs(m.state, act)...)
	case action.FakeKeyToggle:
		if m.fakeHeld[ref] {
			delete(m.fakeHeld, ref)
			return releaseActionOutputs(m.state, act)
		}
		m.fakeHeld[ref] = true
		return pressActionOutputs(m.state, act)
	default: // FakeKeyDelay: pacing is the macro player's job, not the engine's
		return nil
	}
}

// resolve walks the active-layer stack top-down and returns the first
// non-Transparent action bound to code, falling back to the defsrc key at
// the base layer (spec.md §3 invariant 6).
func (m *Machine) resolve(code oscode.Code) (int, action.Action) {
	stack := m.state.activeLayers
	for i := len(stack) - 1; i >= 0; i-- {
		li := stack[i]
		if act, ok := m.km.ActionFor(li, code); ok {
			if _, isTransparent := act.(action.Transparent); !isTransparent {
				return li, act
			}
		}
		if i == 0 {
			return li, action.KeyCode{Code: code}
		}
	}
	return m.state.baseLayer, action.KeyCode{Code: code}
}

func retainActionOutputs(s *RuntimeState, raw []OutputEvent) {
	for _, ev := range raw {
		if ev.Kind == OutKey || ev.Kind == OutMouseButton {
			s.retainVirtual(ev.Code)
		}
	}
}

func pressActionOutputs(s *RuntimeState, act action.Action) []OutputEvent {
	raw := DispatchSimple(act, Down)
	retainActionOutputs(s, raw)
	return raw
}

func releaseActionOutputs(s *RuntimeState, act action.Action) []OutputEvent {
	raw := DispatchSimple(act, Up)
	var out []OutputEvent
	for _, ev := range raw {
		if ev.Kind == OutKey || ev.Kind == OutMouseButton {
			if s.releaseVirtual(ev.Code) {
				out = append(out, ev)
			}
			continue
		}
		out = append(out, ev)
	}
	return out
}

func releaseSimple(s *RuntimeState, act action.Action) []OutputEvent {
	if isCustomCmd(act) {
		return nil
	}
	switch act.(type) {
	case action.FakeKey, action.Macro, action.Sequence, action.NoOp:
		return nil
	default:
		return releaseActionOutputs(s, act)
	}
}

func addActionCodes(act action.Action, out map[oscode.Code]struct{}) {
	switch a := act.(type) {
	case action.KeyCode:
		out[a.Code] = struct{}{}
	case action.MultipleKeyCodes:
		for _, c := range a.Codes {
			out[c] = struct{}{}
		}
	case action.MouseButton:
		out[a.Code] = struct{}{}
	}
}

// ExpectedHeldCodes returns every output key the engine believes should
// currently be down, derived from bindings whose source key is still
// physically pressed plus any active one-shot's inner action.
func (m *Machine) ExpectedHeldCodes() map[oscode.Code]struct{} {
	held := make(map[oscode.Code]struct{})
	for code := range m.state.pressedPhysical {
		if b, ok := m.state.bindings[code]; ok {
			switch b.fsm {
			case fsmAssertedSimple:
				addActionCodes(b.act, held)
			case fsmHeldAsHold:
				addActionCodes(b.holdAction, held)
			}
		}
	}
	if m.state.oneshot != nil {
		addActionCodes(m.state.oneshot.inner, held)
	}
	return held
}

// ReleaseOrphaned emits a release for every key asserted to the OS with no
// corresponding physical press backing it, per spec.md §4.1's reload
// sequence ("releases all synthetic keys that have no corresponding
// physical press").
func (m *Machine) ReleaseOrphaned() []OutputEvent {
	expected := m.ExpectedHeldCodes()
	var out []OutputEvent
	for code := range m.state.virtualPressed {
		if _, ok := expected[code]; !ok {
			delete(m.state.virtualPressed, code)
			out = append(out, keyEvent(code, Up))
		}
	}
	return out
}

// ReleaseAll emits a release for everything currently asserted, used on
// shutdown (spec.md §5); adapter disconnects do not call it.
func (m *Machine) ReleaseAll() []OutputEvent {
	return m.state.ReleaseAll()
}

// Reload swaps in a new Keymap. Bindings already recorded for physically
// held keys are untouched, so a key held across a reload keeps releasing
// against the action chosen at press time (spec.md §3 Lifecycle); only the
// next press of any key resolves against newKm.
func (m *Machine) Reload(newKm *keymap.Keymap) {
	m.km = newKm
	if m.state.baseLayer >= len(newKm.Layers) {
		m.state.baseLayer = 0
	}
	for i, li := range m.state.activeLayers {
		if li >= len(newKm.Layers) {
			m.state.activeLayers[i] = m.state.baseLayer
		}
	}
}

// CurrentLayerName returns the name of the active base layer.
func (m *Machine) CurrentLayerName() string {
	return m.km.Layers[m.state.baseLayer].Name
}

// LayerNames returns every layer name in declaration order.
func (m *Machine) LayerNames() []string {
	return m.km.LayerNames()
}

// ChangeLayer moves the base-layer cursor (spec.md §6 ChangeLayer).
func (m *Machine) ChangeLayer(name string) error {
	idx, ok := m.km.LayerIndexByName(name)
	if !ok {
		return fmt.Errorf("change layer %q: %w", name, keymap.ErrUnknownLayer)
	}
	m.state.baseLayer = idx
	m.state.activeLayers[0] = idx
	return nil
}

// SnapshotActiveLayer returns a textual representation of the
// currently-effective layer's bindings (spec.md §6
// RequestCurrentLayerInfo).
func (m *Machine) SnapshotActiveLayer() string {
	li := m.state.topLayer()
	layer := m.km.Layers[li]
	var b strings.Builder
	fmt.Fprintf(&b, "layer %s (base %s):\n", layer.Name, m.km.Layers[m.state.baseLayer].Name)
	for i, code := range m.km.Defsrc {
		fmt.Fprintf(&b, "  %-6s -> %T\n", oscode.Name(code), layer.Actions[i])
	}
	return b.String()
}

// InjectFakeKeyOp drives a named virtual key from a control command
// (spec.md §6 FakeKeyOp), outside of the per-key FSM.
func (m *Machine) InjectFakeKeyOp(ref string, op action.FakeKeyOp) []OutputEvent {
	return m.applyFakeKeyOp(ref, op)
}
