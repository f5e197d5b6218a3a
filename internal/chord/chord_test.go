package chord

import (
	"testing"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

func group(id int, members []oscode.Code, timeoutMs uint32, act action.Action) keymap.ChordGroup {
	return keymap.ChordGroup{ID: id, Name: "g", Members: members, TimeoutMs: timeoutMs, Action: act}
}

func TestChordCompletesAndFiresAction(t *testing.T) {
	r := New([]keymap.ChordGroup{
		group(0, []oscode.Code{oscode.J, oscode.K}, 50, action.KeyCode{Code: oscode.Escape}),
	})

	outs, fwd := r.HandlePress(oscode.J, 0)
	if outs != nil || fwd != nil {
		t.Fatalf("single member should just buffer, got outs=%v fwd=%v", outs, fwd)
	}
	outs, fwd = r.HandlePress(oscode.K, 10)
	if fwd != nil {
		t.Fatalf("completing chord should not forward, got %v", fwd)
	}
	if len(outs) != 1 || outs[0].Code != oscode.Escape || outs[0].Dir != engine.Down {
		t.Fatalf("expected Escape down, got %v", outs)
	}

	// intermediate release absorbed
	outs, fwd = r.HandleRelease(oscode.J, 20)
	if outs != nil || fwd != nil {
		t.Fatalf("intermediate release should be absorbed, got outs=%v fwd=%v", outs, fwd)
	}
	// last release fires the chord's release
	outs, fwd = r.HandleRelease(oscode.K, 30)
	if fwd != nil || len(outs) != 1 || outs[0].Code != oscode.Escape || outs[0].Dir != engine.Up {
		t.Fatalf("expected Escape up on last member release, got outs=%v fwd=%v", outs, fwd)
	}
}

func TestChordTimeoutReplaysBufferedPresses(t *testing.T) {
	r := New([]keymap.ChordGroup{
		group(0, []oscode.Code{oscode.J, oscode.K}, 50, action.KeyCode{Code: oscode.Escape}),
	})

	r.HandlePress(oscode.J, 0)
	outs, fwd := r.Tick(49)
	if outs != nil || fwd != nil {
		t.Fatalf("should not time out before deadline, got outs=%v fwd=%v", outs, fwd)
	}
	outs, fwd = r.Tick(50)
	if outs != nil {
		t.Fatalf("timeout produces no direct output, got %v", outs)
	}
	if len(fwd) != 1 || fwd[0].Code != oscode.J || fwd[0].Dir != engine.Down || fwd[0].TsMs != 0 {
		t.Fatalf("expected replay of buffered J press, got %v", fwd)
	}
}

func TestChordReleaseBeforeCompletionAborts(t *testing.T) {
	r := New([]keymap.ChordGroup{
		group(0, []oscode.Code{oscode.J, oscode.K}, 50, action.KeyCode{Code: oscode.Escape}),
	})

	r.HandlePress(oscode.J, 0)
	outs, fwd := r.HandleRelease(oscode.J, 5)
	if outs != nil {
		t.Fatalf("abort produces no direct output, got %v", outs)
	}
	if len(fwd) != 2 || fwd[0].Code != oscode.J || fwd[0].Dir != engine.Down || fwd[1].Code != oscode.J || fwd[1].Dir != engine.Up {
		t.Fatalf("expected replayed press then the release, got %v", fwd)
	}
}

// An earlier-completing group wins outright, even if a still-open
// candidate with more members was also in the running.
func TestChordEarliestCompletingGroupWinsOutright(t *testing.T) {
	r := New([]keymap.ChordGroup{
		group(0, []oscode.Code{oscode.J, oscode.K}, 50, action.KeyCode{Code: oscode.Escape}),
		group(1, []oscode.Code{oscode.J, oscode.K, oscode.L}, 50, action.KeyCode{Code: oscode.Tab}),
	})

	r.HandlePress(oscode.J, 0)
	outs, fwd := r.HandlePress(oscode.K, 5)
	if fwd != nil || len(outs) != 1 || outs[0].Code != oscode.Escape {
		t.Fatalf("two-member group should fire as soon as it completes, got outs=%v fwd=%v", outs, fwd)
	}
}

// When two groups complete on the very same press, the lower group id wins.
func TestChordTiebreakLowestGroupID(t *testing.T) {
	r := New([]keymap.ChordGroup{
		group(5, []oscode.Code{oscode.J, oscode.K}, 50, action.KeyCode{Code: oscode.Tab}),
		group(1, []oscode.Code{oscode.J, oscode.K}, 50, action.KeyCode{Code: oscode.Escape}),
	})

	r.HandlePress(oscode.J, 0)
	outs, fwd := r.HandlePress(oscode.K, 5)
	if fwd != nil || len(outs) != 1 || outs[0].Code != oscode.Escape {
		t.Fatalf("lowest group id should win the tie, got outs=%v fwd=%v", outs, fwd)
	}
}

func TestChordNonMemberKeyAbortsAndForwards(t *testing.T) {
	r := New([]keymap.ChordGroup{
		group(0, []oscode.Code{oscode.J, oscode.K}, 50, action.KeyCode{Code: oscode.Escape}),
	})

	r.HandlePress(oscode.J, 0)
	outs, fwd := r.HandlePress(oscode.A, 5)
	if outs != nil {
		t.Fatalf("abort produces no direct output, got %v", outs)
	}
	if len(fwd) != 2 || fwd[0].Code != oscode.J || fwd[1].Code != oscode.A {
		t.Fatalf("expected replayed J press then forwarded A press, got %v", fwd)
	}
}
