// Package macromachine plays the finite press/release/tap/delay/unicode/
// mouse scripts bound to action.Macro (spec.md §4.5): one atom consumed per
// tick once a macro's cumulative delay budget has elapsed, multiple macros
// interleaved FIFO-of-submission, with an optional cleanup pass that force-
// releases anything the macro left pressed.
package macromachine

import (
	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

type running struct {
	id      uint64
	atoms   []action.MacroAtom
	pos     int
	cleanup bool
	held    map[oscode.Code]int
	readyAt int64
}

// Player owns the set of in-flight macros. Not safe for concurrent use; the
// orchestrator owns one per Machine and calls Tick once per orchestrator
// tick, in the fixed aux-engine order spec.md §4.1 names.
type Player struct {
	queue  []*running
	nextID uint64
}

// New returns an empty Player.
func New() *Player {
	return &Player{}
}

// Submit enqueues script for playback starting no earlier than nowMs,
// returning an id callers can use to correlate completion (e.g. logging).
// Concurrent macros interleave FIFO of submission: Submit appends to the
// tail of the queue.
func (p *Player) Submit(script []action.MacroAtom, cleanup bool, nowMs int64) uint64 {
	p.nextID++
	p.queue = append(p.queue, &running{
		id:      p.nextID,
		atoms:   script,
		cleanup: cleanup,
		held:    make(map[oscode.Code]int),
		readyAt: nowMs,
	})
	return p.nextID
}

// Active reports whether any macro is still playing.
func (p *Player) Active() bool { return len(p.queue) > 0 }

// Tick advances every running macro by at most one atom, in submission
// order, and returns the synthetic output produced this tick.
func (p *Player) Tick(nowMs int64) []engine.OutputEvent {
	var out []engine.OutputEvent
	alive := p.queue[:0]
	for _, r := range p.queue {
		out = append(out, p.step(r, nowMs)...)
		if r.pos < len(r.atoms) {
			alive = append(alive, r)
		} else if r.cleanup {
			out = append(out, r.cleanupRelease()...)
		}
	}
	p.queue = alive
	return out
}

func (p *Player) step(r *running, nowMs int64) []engine.OutputEvent {
	if nowMs < r.readyAt || r.pos >= len(r.atoms) {
		return nil
	}
	a := r.atoms[r.pos]
	r.pos++
	switch a.Kind {
	case action.MacroDelay:
		r.readyAt = nowMs + int64(a.DelayMs)
		return nil
	case action.MacroPress:
		r.held[a.Code]++
		r.readyAt = nowMs
		return []engine.OutputEvent{{Kind: engine.OutKey, Code: a.Code, Dir: engine.Down}}
	case action.MacroRelease:
		if r.held[a.Code] > 0 {
			r.held[a.Code]--
		}
		r.readyAt = nowMs
		return []engine.OutputEvent{{Kind: engine.OutKey, Code: a.Code, Dir: engine.Up}}
	case action.MacroTap:
		r.readyAt = nowMs
		return []engine.OutputEvent{
			{Kind: engine.OutKey, Code: a.Code, Dir: engine.Down},
			{Kind: engine.OutKey, Code: a.Code, Dir: engine.Up},
		}
	case action.MacroUnicode:
		r.readyAt = nowMs
		return []engine.OutputEvent{{Kind: engine.OutUnicode, Codepoint: a.Codepoint}}
	case action.MacroMouse:
		r.readyAt = nowMs
		return []engine.OutputEvent{
			{Kind: engine.OutMouseButton, Code: a.Code, Dir: engine.Down},
			{Kind: engine.OutMouseButton, Code: a.Code, Dir: engine.Up},
		}
	default:
		r.readyAt = nowMs
		return nil
	}
}

// cleanupRelease force-releases anything this macro pressed but never
// released, so a macro interrupted or ending mid-hold never leaves a
// hanging press (spec.md §4.5).
func (r *running) cleanupRelease() []engine.OutputEvent {
	var out []engine.OutputEvent
	for code, n := range r.held {
		for ; n > 0; n-- {
			out = append(out, engine.OutputEvent{Kind: engine.OutKey, Code: code, Dir: engine.Up})
		}
	}
	r.held = nil
	return out
}
