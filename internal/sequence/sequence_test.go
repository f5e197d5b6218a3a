package sequence

import (
	"testing"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

func TestSequenceMatchesPlainRun(t *testing.T) {
	root := keymap.NewSequenceNode()
	want := action.Unicode{Codepoint: 'é'}
	root.Insert([]oscode.Code{oscode.E, oscode.Num1}, want)

	e := New(root, keymap.DefaultOptions())
	e.Enter(0)

	_, fired, aborted := e.HandlePress(oscode.E, 10)
	if fired || aborted {
		t.Fatalf("first step should neither fire nor abort")
	}
	act, fired, aborted := e.HandlePress(oscode.Num1, 20)
	if aborted || !fired {
		t.Fatalf("second step should fire, got fired=%v aborted=%v", fired, aborted)
	}
	if act != want {
		t.Fatalf("got %v, want %v", act, want)
	}
	if e.Active() {
		t.Fatalf("engine should exit sequence mode after firing")
	}
}

func TestSequenceShiftedRunResolvesDifferentBinding(t *testing.T) {
	root := keymap.NewSequenceNode()
	plain := action.KeyCode{Code: oscode.A}
	shifted := action.KeyCode{Code: oscode.B}
	root.Insert([]oscode.Code{oscode.E}, plain)
	root.Insert([]oscode.Code{TaggedCode(oscode.E, true, false, false, false)}, shifted)

	e := New(root, keymap.DefaultOptions())
	e.Enter(0)
	e.HandlePress(oscode.LeftShift, 5)
	act, fired, aborted := e.HandlePress(oscode.E, 10)
	if !fired || aborted {
		t.Fatalf("expected immediate fire on single-step run, got fired=%v aborted=%v", fired, aborted)
	}
	if act != shifted {
		t.Fatalf("got %v, want shifted binding %v", act, shifted)
	}
}

func TestSequenceBacktrackModcancelRetriesPlain(t *testing.T) {
	root := keymap.NewSequenceNode()
	want := action.KeyCode{Code: oscode.A}
	root.Insert([]oscode.Code{oscode.E}, want)

	opts := keymap.DefaultOptions()
	opts.BacktrackModcancel = true
	e := New(root, opts)
	e.Enter(0)
	e.HandlePress(oscode.LeftShift, 5)
	act, fired, aborted := e.HandlePress(oscode.E, 10)
	if !fired || aborted {
		t.Fatalf("backtrack-modcancel should retry plain bits and fire, got fired=%v aborted=%v", fired, aborted)
	}
	if act != want {
		t.Fatalf("got %v, want %v", act, want)
	}
}

func TestSequenceUnmatchedStepAbortsWithoutBacktrack(t *testing.T) {
	root := keymap.NewSequenceNode()
	root.Insert([]oscode.Code{oscode.E}, action.KeyCode{Code: oscode.A})

	opts := keymap.DefaultOptions()
	opts.BacktrackModcancel = false
	e := New(root, opts)
	e.Enter(0)
	e.HandlePress(oscode.LeftShift, 5)
	_, fired, aborted := e.HandlePress(oscode.E, 10)
	if fired || !aborted {
		t.Fatalf("expected abort with backtrack disabled, got fired=%v aborted=%v", fired, aborted)
	}
	if e.Active() {
		t.Fatalf("engine should have exited sequence mode on abort")
	}
}

func TestSequenceTimeoutAborts(t *testing.T) {
	root := keymap.NewSequenceNode()
	root.Insert([]oscode.Code{oscode.E, oscode.Num1}, action.KeyCode{Code: oscode.A})

	opts := keymap.DefaultOptions()
	opts.SequenceTimeoutMs = 100
	e := New(root, opts)
	e.Enter(0)
	e.HandlePress(oscode.E, 10)

	if aborted := e.Tick(109); aborted {
		t.Fatalf("should not abort before deadline")
	}
	if aborted := e.Tick(110); !aborted {
		t.Fatalf("expected abort at deadline")
	}
	if e.Active() {
		t.Fatalf("engine should have exited sequence mode on timeout")
	}
}
