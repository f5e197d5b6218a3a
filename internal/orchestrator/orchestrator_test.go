package orchestrator

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/adapter"
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeAdapter lets a test push RawEvents directly without a real device.
type fakeAdapter struct {
	ch     chan adapter.RawEvent
	closed bool
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{ch: make(chan adapter.RawEvent, 16)} }

func (f *fakeAdapter) Open() error                        { return nil }
func (f *fakeAdapter) Events() <-chan adapter.RawEvent     { return f.ch }
func (f *fakeAdapter) Close() error                        { f.closed = true; close(f.ch); return nil }

// fakeSink records every write for assertion instead of touching the OS.
type fakeSink struct {
	keys []struct {
		code uint16
		dir  engine.Direction
	}
}

func (s *fakeSink) WriteKey(code uint16, dir engine.Direction) error {
	s.keys = append(s.keys, struct {
		code uint16
		dir  engine.Direction
	}{code, dir})
	return nil
}
func (s *fakeSink) WriteUnicode(rune) error                    { return nil }
func (s *fakeSink) WriteMouseButton(uint16, engine.Direction) error { return nil }
func (s *fakeSink) WriteMouseMove(int, int) error              { return nil }
func (s *fakeSink) WriteMouseScroll(bool, int) error           { return nil }
func (s *fakeSink) Flush() error                               { return nil }

func simpleKeymap(t *testing.T) *keymap.Keymap {
	t.Helper()
	km, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.A, oscode.B}).
		AddLayer("base", []action.Action{
			action.KeyCode{Code: oscode.Z},
			action.KeyCode{Code: oscode.B},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return km
}

func TestOrchestratorRoutesRemappedKeyToSink(t *testing.T) {
	km := simpleKeymap(t)
	out := &fakeSink{}
	o := New(testLogger(), km, nil, out)

	o.route(adapter.RawEvent{Code: oscode.A, Dir: engine.Down, TsMs: 1})
	o.route(adapter.RawEvent{Code: oscode.A, Dir: engine.Up, TsMs: 2})

	if len(out.keys) != 2 {
		t.Fatalf("got %d key writes, want 2: %+v", len(out.keys), out.keys)
	}
	if out.keys[0].code != uint16(oscode.Z) || out.keys[0].dir != engine.Down {
		t.Fatalf("first write = %+v, want Z down (remap of A)", out.keys[0])
	}
	if out.keys[1].code != uint16(oscode.Z) || out.keys[1].dir != engine.Up {
		t.Fatalf("second write = %+v, want Z up", out.keys[1])
	}
}

func TestOrchestratorFilterDropsUnmappedKey(t *testing.T) {
	km := simpleKeymap(t) // defsrc is {A, B}; process-unmapped-keys defaults false
	out := &fakeSink{}
	o := New(testLogger(), km, nil, out)

	if o.filter.Load().Allow(oscode.C) {
		t.Fatalf("filter should drop C: not in defsrc and process-unmapped-keys is false")
	}
	if !o.filter.Load().Allow(oscode.A) {
		t.Fatalf("filter should allow A: present in defsrc")
	}
}

func TestOrchestratorReloadSwapsKeymapAndFilter(t *testing.T) {
	km := simpleKeymap(t)
	out := &fakeSink{}
	o := New(testLogger(), km, nil, out)

	newKm, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.A, oscode.C}).
		AddLayer("base", []action.Action{
			action.KeyCode{Code: oscode.A},
			action.KeyCode{Code: oscode.C},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	o.applyReload(newKm)

	if o.km != newKm {
		t.Fatalf("applyReload did not swap the keymap")
	}
	if o.filter.Load().Allow(oscode.B) {
		t.Fatalf("new filter should no longer allow B: dropped from defsrc")
	}
	if !o.filter.Load().Allow(oscode.C) {
		t.Fatalf("new filter should allow C: added to new defsrc")
	}
}

func TestOrchestratorShutdownReleasesHeldKeys(t *testing.T) {
	km := simpleKeymap(t)
	out := &fakeSink{}
	o := New(testLogger(), km, nil, out)

	o.route(adapter.RawEvent{Code: oscode.B, Dir: engine.Down, TsMs: 1}) // B -> B, a plain key, stays held

	o.shutdown()

	releasedB := false
	for _, k := range out.keys {
		if k.code == uint16(oscode.B) && k.dir == engine.Up {
			releasedB = true
		}
	}
	if !releasedB {
		t.Fatalf("shutdown did not release held key B: %+v", out.keys)
	}
}

func TestOrchestratorRunFailsWithNoOpenableAdapter(t *testing.T) {
	km := simpleKeymap(t)
	o := New(testLogger(), km, nil, &fakeSink{})
	if err := o.Run(); err == nil {
		t.Fatalf("Run() with zero adapters should fail")
	}
}
