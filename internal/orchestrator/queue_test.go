package orchestrator

import (
	"testing"

	"github.com/kidandcat/kanata-go/internal/adapter"
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

func TestQueueDrainReturnsInOrder(t *testing.T) {
	q := newInputQueue(4)
	q.push(adapter.RawEvent{Code: oscode.A, Dir: engine.Down, TsMs: 1})
	q.push(adapter.RawEvent{Code: oscode.B, Dir: engine.Down, TsMs: 2})

	got := q.drain()
	if len(got) != 2 || got[0].Code != oscode.A || got[1].Code != oscode.B {
		t.Fatalf("drain() = %+v, want [A, B]", got)
	}
	if got := q.drain(); len(got) != 0 {
		t.Fatalf("second drain() = %+v, want empty", got)
	}
}

func TestQueueDropsNewestPressAtCapacity(t *testing.T) {
	q := newInputQueue(2)
	q.push(adapter.RawEvent{Code: oscode.A, Dir: engine.Down, TsMs: 1})
	q.push(adapter.RawEvent{Code: oscode.B, Dir: engine.Down, TsMs: 2})
	q.push(adapter.RawEvent{Code: oscode.C, Dir: engine.Down, TsMs: 3}) // dropped: full, and a press

	got := q.drain()
	if len(got) != 2 || got[0].Code != oscode.A || got[1].Code != oscode.B {
		t.Fatalf("drain() = %+v, want [A, B]", got)
	}
}

func TestQueueNeverDropsRelease(t *testing.T) {
	q := newInputQueue(2)
	q.push(adapter.RawEvent{Code: oscode.A, Dir: engine.Down, TsMs: 1})
	q.push(adapter.RawEvent{Code: oscode.B, Dir: engine.Down, TsMs: 2})
	// full of presses; a release must still get in, evicting a buffered press.
	q.push(adapter.RawEvent{Code: oscode.A, Dir: engine.Up, TsMs: 3})

	got := q.drain()
	if len(got) != 2 {
		t.Fatalf("drain() = %+v, want 2 events", got)
	}
	foundRelease := false
	for _, ev := range got {
		if ev.Code == oscode.A && ev.Dir == engine.Up {
			foundRelease = true
		}
	}
	if !foundRelease {
		t.Fatalf("drain() = %+v, want the release for A present", got)
	}
}
