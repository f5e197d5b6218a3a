package engine

import "github.com/kidandcat/kanata-go/internal/oscode"

// Direction is the press/release edge of a physical or synthetic key event.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// InputEvent is the uniform tuple the Input Adapter publishes and the
// Orchestrator feeds to Machine.HandleEvent (spec.md §2).
type InputEvent struct {
	Code  oscode.Code
	Dir   Direction
	TsMs  int64
}

// OutputKind enumerates the shapes of synthetic output the engine can
// produce; the Output Sink dispatches on this.
type OutputKind int

const (
	OutKey OutputKind = iota
	OutUnicode
	OutMouseButton
	OutMouseMove
	OutMouseScroll
)

// OutputEvent is one synthetic event queued for the Output Sink. Only the
// fields relevant to Kind are populated.
type OutputEvent struct {
	Kind       OutputKind
	Code       oscode.Code // OutKey, OutMouseButton
	Dir        Direction   // OutKey, OutMouseButton
	Codepoint  rune        // OutUnicode
	Dx, Dy     int         // OutMouseMove
	Horizontal bool        // OutMouseScroll
	Ticks      int         // OutMouseScroll
}

func keyEvent(code oscode.Code, dir Direction) OutputEvent {
	return OutputEvent{Kind: OutKey, Code: code, Dir: dir}
}
