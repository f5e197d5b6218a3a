package macromachine

import (
	"testing"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

func TestMacroPlaysOneAtomPerTick(t *testing.T) {
	p := New()
	p.Submit([]action.MacroAtom{
		{Kind: action.MacroPress, Code: oscode.A},
		{Kind: action.MacroRelease, Code: oscode.A},
	}, false, 0)

	out1 := p.Tick(0)
	if len(out1) != 1 || out1[0].Code != oscode.A || out1[0].Dir != engine.Down {
		t.Fatalf("tick 1: got %v", out1)
	}
	out2 := p.Tick(1)
	if len(out2) != 1 || out2[0].Code != oscode.A || out2[0].Dir != engine.Up {
		t.Fatalf("tick 2: got %v", out2)
	}
	if p.Active() {
		t.Fatalf("macro should be done")
	}
}

func TestMacroDelayYieldsUntilBudgetElapsed(t *testing.T) {
	p := New()
	p.Submit([]action.MacroAtom{
		{Kind: action.MacroDelay, DelayMs: 50},
		{Kind: action.MacroTap, Code: oscode.B},
	}, false, 0)

	out := p.Tick(0) // consumes the delay atom itself, no output
	if len(out) != 0 {
		t.Fatalf("delay atom should not emit output, got %v", out)
	}
	out = p.Tick(40)
	if len(out) != 0 {
		t.Fatalf("should still be waiting for the delay budget, got %v", out)
	}
	out = p.Tick(50)
	if len(out) != 2 || out[0].Code != oscode.B || out[0].Dir != engine.Down || out[1].Dir != engine.Up {
		t.Fatalf("expected tap once budget elapsed, got %v", out)
	}
}

func TestMacrosInterleaveFIFOOfSubmission(t *testing.T) {
	p := New()
	p.Submit([]action.MacroAtom{{Kind: action.MacroTap, Code: oscode.A}}, false, 0)
	p.Submit([]action.MacroAtom{{Kind: action.MacroTap, Code: oscode.B}}, false, 0)

	out := p.Tick(0)
	if len(out) != 4 {
		t.Fatalf("expected both taps in one tick, got %v", out)
	}
	if out[0].Code != oscode.A || out[2].Code != oscode.B {
		t.Fatalf("expected first-submitted macro's output before the second's, got %v", out)
	}
}

func TestMacroCleanupReleasesHangingPress(t *testing.T) {
	p := New()
	p.Submit([]action.MacroAtom{
		{Kind: action.MacroPress, Code: oscode.LeftShift},
		{Kind: action.MacroTap, Code: oscode.A},
	}, true, 0)

	p.Tick(0) // press shift
	out := p.Tick(1) // tap A, then completes -> cleanup releases shift
	var sawShiftRelease bool
	for _, ev := range out {
		if ev.Code == oscode.LeftShift && ev.Dir == engine.Up {
			sawShiftRelease = true
		}
	}
	if !sawShiftRelease {
		t.Fatalf("expected cleanup release of hanging shift press, got %v", out)
	}
	if p.Active() {
		t.Fatalf("macro should be complete after cleanup")
	}
}
