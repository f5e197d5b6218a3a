package engine

import (
	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// DispatchSimple emits the press or release of one of the "terminal" action
// kinds: the ones a chord group or a sequence trie leaf fires directly
// (spec.md §4.3, §4.4), and the ones a FakeKeyOp drives (spec.md §3
// Action.FakeKey). Stateful variants (TapHold, TapDance, OneShot, Layer,
// Sequence, Macro) are not valid here and are dispatched by Machine itself.
func DispatchSimple(act action.Action, dir Direction) []OutputEvent {
	switch a := act.(type) {
	case action.KeyCode:
		return []OutputEvent{keyEvent(a.Code, dir)}
	case action.MultipleKeyCodes:
		return multiKeyEvents(a.Codes, dir)
	case action.Unicode:
		if dir == Down {
			return []OutputEvent{{Kind: OutUnicode, Codepoint: a.Codepoint}}
		}
		return nil
	case action.MouseButton:
		return []OutputEvent{{Kind: OutMouseButton, Code: a.Code, Dir: dir}}
	case action.MouseMove:
		if dir == Down {
			return []OutputEvent{{Kind: OutMouseMove, Dx: a.Dx, Dy: a.Dy}}
		}
		return nil
	case action.MouseScroll:
		if dir == Down {
			return []OutputEvent{{Kind: OutMouseScroll, Horizontal: a.Horizontal, Ticks: a.Ticks}}
		}
		return nil
	case action.NoOp, action.Transparent:
		return nil
	default:
		return nil
	}
}

func multiKeyEvents(codes []oscode.Code, dir Direction) []OutputEvent {
	out := make([]OutputEvent, 0, len(codes))
	if dir == Down {
		for _, c := range codes {
			out = append(out, keyEvent(c, Down))
		}
	} else {
		for i := len(codes) - 1; i >= 0; i-- {
			out = append(out, keyEvent(codes[i], Up))
		}
	}
	return out
}
