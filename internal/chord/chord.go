// Package chord implements the chord recognizer of spec.md §4.3: a
// tick-driven subordinate state machine that accumulates member-key
// presses within a window and fires a bound Action when the full set
// completes, or replays the original presses on timeout.
package chord

import (
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// Recognizer tracks at most one in-flight candidate window at a time. A key
// belonging to several overlapping chord groups keeps all of them as
// candidates until the accumulated press set rules one out; completion
// picks the earliest-completing group, tie-broken by largest member set
// then lowest group id (spec.md §4.3).
type Recognizer struct {
	groups []keymap.ChordGroup
	w      *window
}

type window struct {
	candidates   []int
	pressedCodes []oscode.Code
	pressedTs    []int64
	startTs      int64
	deadline     int64

	engaged      bool
	engagedGroup int
	lastReleases map[oscode.Code]bool
	held         map[oscode.Code]int
}

// New builds a Recognizer over the keymap's chord groups.
func New(groups []keymap.ChordGroup) *Recognizer {
	return &Recognizer{groups: groups}
}

func containsCode(members []oscode.Code, code oscode.Code) bool {
	for _, m := range members {
		if m == code {
			return true
		}
	}
	return false
}

func matchesPrefix(members, pressed []oscode.Code) bool {
	set := make(map[oscode.Code]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	for _, c := range pressed {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

func allPressed(members, pressed []oscode.Code) bool {
	have := make(map[oscode.Code]struct{}, len(pressed))
	for _, c := range pressed {
		have[c] = struct{}{}
	}
	for _, m := range members {
		if _, ok := have[m]; !ok {
			return false
		}
	}
	return true
}

func (r *Recognizer) minTimeout(candidates []int) int64 {
	var min int64 = -1
	for _, idx := range candidates {
		t := int64(r.groups[idx].TimeoutMs)
		if min < 0 || t < min {
			min = t
		}
	}
	if min < 0 {
		min = 0
	}
	return min
}

// HandlePress offers one physical key-down to the recognizer. If forward is
// non-nil, the orchestrator must feed those InputEvents (in order) to
// Machine.HandleEvent itself; outs is output the chord action produced
// directly.
func (r *Recognizer) HandlePress(code oscode.Code, ts int64) (outs []engine.OutputEvent, forward []engine.InputEvent) {
	if r.w == nil {
		var candidates []int
		for i, g := range r.groups {
			if containsCode(g.Members, code) {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return nil, []engine.InputEvent{{Code: code, Dir: engine.Down, TsMs: ts}}
		}
		r.w = &window{
			candidates:   candidates,
			pressedCodes: []oscode.Code{code},
			pressedTs:    []int64{ts},
			startTs:      ts,
		}
		r.w.deadline = ts + r.minTimeout(candidates)
		if idx, ok := r.checkComplete(); ok {
			return r.engage(idx), nil
		}
		return nil, nil
	}

	newPressed := append(append([]oscode.Code(nil), r.w.pressedCodes...), code)
	var still []int
	for _, idx := range r.w.candidates {
		if matchesPrefix(r.groups[idx].Members, newPressed) {
			still = append(still, idx)
		}
	}
	if len(still) == 0 {
		replay := r.abort()
		replay = append(replay, engine.InputEvent{Code: code, Dir: engine.Down, TsMs: ts})
		return nil, replay
	}
	r.w.candidates = still
	r.w.pressedCodes = newPressed
	r.w.pressedTs = append(r.w.pressedTs, ts)
	if idx, ok := r.checkComplete(); ok {
		return r.engage(idx), nil
	}
	return nil, nil
}

// HandleRelease offers one physical key-up. Behaves symmetrically to
// HandlePress: while a candidate window is still accumulating, any member
// release aborts it (a chord can't complete once a member lifts before the
// set is full) and replays the buffered presses plus this release.
func (r *Recognizer) HandleRelease(code oscode.Code, ts int64) (outs []engine.OutputEvent, forward []engine.InputEvent) {
	if r.w == nil {
		return nil, []engine.InputEvent{{Code: code, Dir: engine.Up, TsMs: ts}}
	}
	if !r.w.engaged {
		replay := r.abort()
		replay = append(replay, engine.InputEvent{Code: code, Dir: engine.Up, TsMs: ts})
		return nil, replay
	}

	g := r.groups[r.w.engagedGroup]
	if !containsCode(g.Members, code) {
		return nil, []engine.InputEvent{{Code: code, Dir: engine.Up, TsMs: ts}}
	}
	r.w.lastReleases[code] = true
	if len(r.w.lastReleases) < len(g.Members) {
		return nil, nil // intermediate member release: absorbed
	}
	// last member released: emit the chord action's release and clear.
	raw := engine.DispatchSimple(g.Action, engine.Up)
	for _, ev := range raw {
		if ev.Kind == engine.OutKey || ev.Kind == engine.OutMouseButton {
			if n := r.w.held[ev.Code]; n > 0 {
				r.w.held[ev.Code] = n - 1
			}
		}
	}
	r.w = nil
	return raw, nil
}

// Tick advances the chord timeout independently of any other timer
// (spec.md §5 "independent timers"). On expiry with a partial member set,
// the original presses are replayed in arrival order (Testable Property 4).
func (r *Recognizer) Tick(nowMs int64) (outs []engine.OutputEvent, forward []engine.InputEvent) {
	if r.w == nil || r.w.engaged {
		return nil, nil
	}
	if nowMs >= r.w.deadline {
		return nil, r.abort()
	}
	return nil, nil
}

func (r *Recognizer) checkComplete() (int, bool) {
	var completed []int
	for _, idx := range r.w.candidates {
		if allPressed(r.groups[idx].Members, r.w.pressedCodes) {
			completed = append(completed, idx)
		}
	}
	if len(completed) == 0 {
		return 0, false
	}
	best := completed[0]
	for _, idx := range completed[1:] {
		if len(r.groups[idx].Members) > len(r.groups[best].Members) {
			best = idx
		} else if len(r.groups[idx].Members) == len(r.groups[best].Members) && r.groups[idx].ID < r.groups[best].ID {
			best = idx
		}
	}
	return best, true
}

func (r *Recognizer) engage(idx int) []engine.OutputEvent {
	g := r.groups[idx]
	raw := engine.DispatchSimple(g.Action, engine.Down)
	held := make(map[oscode.Code]int)
	for _, ev := range raw {
		if ev.Kind == engine.OutKey || ev.Kind == engine.OutMouseButton {
			held[ev.Code]++
		}
	}
	r.w.engaged = true
	r.w.engagedGroup = idx
	r.w.lastReleases = make(map[oscode.Code]bool)
	r.w.held = held
	return raw
}

// abort clears the window and returns the buffered presses as replayable
// InputEvents, in original arrival order with timestamps clamped
// non-decreasing (invariant 4).
func (r *Recognizer) abort() []engine.InputEvent {
	w := r.w
	r.w = nil
	var last int64
	out := make([]engine.InputEvent, 0, len(w.pressedCodes))
	for i, code := range w.pressedCodes {
		ts := w.pressedTs[i]
		if ts < last {
			ts = last
		}
		last = ts
		out = append(out, engine.InputEvent{Code: code, Dir: engine.Down, TsMs: ts})
	}
	return out
}
