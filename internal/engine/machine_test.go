package engine

import (
	"testing"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

func outKeys(res Result) []OutputEvent {
	var keys []OutputEvent
	for _, ev := range res.Outputs {
		if ev.Kind == OutKey {
			keys = append(keys, ev)
		}
	}
	return keys
}

func assertKeys(t *testing.T, got []OutputEvent, want ...OutputEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d key events %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i].Code != want[i].Code || got[i].Dir != want[i].Dir {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

// Scenario A — simple remap.
func TestSimpleRemap(t *testing.T) {
	km, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.CapsLock}).
		AddLayer("base", []action.Action{action.KeyCode{Code: oscode.LeftCtrl}}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	m := New(km)

	r1 := m.HandleEvent(oscode.CapsLock, Down, 0)
	r2 := m.HandleEvent(oscode.CapsLock, Up, 50)

	assertKeys(t, outKeys(r1), keyEvent(oscode.LeftCtrl, Down))
	assertKeys(t, outKeys(r2), keyEvent(oscode.LeftCtrl, Up))
}

func tapHoldKeymap(policy action.TapHoldPolicy, except map[oscode.Code]struct{}) *keymap.Keymap {
	b := keymap.NewBuilder().SetDefsrc([]oscode.Code{oscode.A, oscode.J, oscode.F})
	th := action.TapHold{
		Tap: action.KeyCode{Code: oscode.A}, Hold: action.KeyCode{Code: oscode.LeftCtrl},
		TapTimeoutMs: 200, HoldTimeoutMs: 200, Policy: policy, ExceptKeys: except,
	}
	km, err := b.AddLayer("base", []action.Action{th, action.KeyCode{Code: oscode.J}, action.KeyCode{Code: oscode.F}}).Build()
	if err != nil {
		panic(err)
	}
	return km
}

// Scenario B — tap-hold resolves as tap.
func TestTapHoldResolvesTap(t *testing.T) {
	km := tapHoldKeymap(action.PolicyDefault, nil)
	m := New(km)

	r1 := m.HandleEvent(oscode.A, Down, 0)
	r2 := m.HandleEvent(oscode.A, Up, 100)

	if len(outKeys(r1)) != 0 {
		t.Fatalf("press should not emit yet, got %v", r1)
	}
	assertKeys(t, outKeys(r2), keyEvent(oscode.A, Down), keyEvent(oscode.A, Up))
}

// Scenario C — tap-hold resolves as hold via timeout.
func TestTapHoldResolvesHoldOnTimeout(t *testing.T) {
	km := tapHoldKeymap(action.PolicyDefault, nil)
	m := New(km)

	m.HandleEvent(oscode.A, Down, 0)
	tick := m.Tick(200)
	assertKeys(t, outKeys(tick), keyEvent(oscode.LeftCtrl, Down))

	rel := m.HandleEvent(oscode.A, Up, 300)
	assertKeys(t, outKeys(rel), keyEvent(oscode.LeftCtrl, Up))
}

// Scenario D — hold-on-other-press.
func TestTapHoldHoldOnOtherPress(t *testing.T) {
	km, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.F, oscode.J}).
		AddLayer("base", []action.Action{
			action.TapHold{
				Tap: action.KeyCode{Code: oscode.F}, Hold: action.KeyCode{Code: oscode.LeftShift},
				TapTimeoutMs: 200, HoldTimeoutMs: 200, Policy: action.PolicyHoldOnOtherPress,
			},
			action.KeyCode{Code: oscode.J},
		}).Build()
	if err != nil {
		t.Fatal(err)
	}
	m := New(km)

	r1 := m.HandleEvent(oscode.F, Down, 0)
	r2 := m.HandleEvent(oscode.J, Down, 50)
	r3 := m.HandleEvent(oscode.J, Up, 80)
	r4 := m.HandleEvent(oscode.F, Up, 120)

	var all []OutputEvent
	all = append(all, outKeys(r1)...)
	all = append(all, outKeys(r2)...)
	all = append(all, outKeys(r3)...)
	all = append(all, outKeys(r4)...)

	assertKeys(t, all,
		keyEvent(oscode.LeftShift, Down),
		keyEvent(oscode.J, Down),
		keyEvent(oscode.J, Up),
		keyEvent(oscode.LeftShift, Up),
	)
}

// Scenario G — one-shot.
func TestOneShotEndOnFirstRelease(t *testing.T) {
	km, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.O, oscode.A}).
		AddLayer("base", []action.Action{
			action.OneShot{Inner: action.KeyCode{Code: oscode.LeftShift}, TimeoutMs: 500, EndPolicy: action.EndOnFirstRelease},
			action.KeyCode{Code: oscode.A},
		}).Build()
	if err != nil {
		t.Fatal(err)
	}
	m := New(km)

	r1 := m.HandleEvent(oscode.O, Down, 0)
	r2 := m.HandleEvent(oscode.O, Up, 50)
	r3 := m.HandleEvent(oscode.A, Down, 100)
	r4 := m.HandleEvent(oscode.A, Up, 150)

	var all []OutputEvent
	all = append(all, outKeys(r1)...)
	all = append(all, outKeys(r2)...)
	all = append(all, outKeys(r3)...)
	all = append(all, outKeys(r4)...)

	assertKeys(t, all,
		keyEvent(oscode.LeftShift, Down),
		keyEvent(oscode.A, Down),
		keyEvent(oscode.A, Up),
		keyEvent(oscode.LeftShift, Up),
	)
}

// Scenario H — reload mid-hold: release binds to the action chosen on
// press, even though a reload installed a different binding in between.
func TestReloadMidHoldKeepsOriginalBinding(t *testing.T) {
	km1, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.Q}).
		AddLayer("base", []action.Action{action.KeyCode{Code: oscode.Q}}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	km2, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.Q}).
		AddLayer("base", []action.Action{action.KeyCode{Code: oscode.W}}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(km1)
	press := m.HandleEvent(oscode.Q, Down, 0)
	m.Reload(km2)
	release := m.HandleEvent(oscode.Q, Up, 200)

	assertKeys(t, outKeys(press), keyEvent(oscode.Q, Down))
	assertKeys(t, outKeys(release), keyEvent(oscode.Q, Up))
}

func TestReleaseWithNoMatchingPressIsSuppressed(t *testing.T) {
	km, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.A}).
		AddLayer("base", []action.Action{action.KeyCode{Code: oscode.A}}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	m := New(km)
	res := m.HandleEvent(oscode.A, Up, 0)
	if len(res.Outputs) != 0 {
		t.Fatalf("expected no output for an unmatched release, got %v", res.Outputs)
	}
}

func TestTransparentFallsThroughToDefsrc(t *testing.T) {
	km, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.A}).
		AddLayer("base", []action.Action{action.Transparent{}}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	m := New(km)
	r1 := m.HandleEvent(oscode.A, Down, 0)
	r2 := m.HandleEvent(oscode.A, Up, 10)
	assertKeys(t, outKeys(r1), keyEvent(oscode.A, Down))
	assertKeys(t, outKeys(r2), keyEvent(oscode.A, Up))
}

func TestLayerWhileHeld(t *testing.T) {
	km, err := keymap.NewBuilder().
		SetDefsrc([]oscode.Code{oscode.Space, oscode.A}).
		AddLayer("base", []action.Action{
			action.Layer{Index: 1, Mode: action.LayerWhileHeld},
			action.KeyCode{Code: oscode.A},
		}).
		AddLayer("nav", []action.Action{
			action.Transparent{},
			action.KeyCode{Code: oscode.Escape},
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	m := New(km)

	m.HandleEvent(oscode.Space, Down, 0)
	r := m.HandleEvent(oscode.A, Down, 10)
	assertKeys(t, outKeys(r), keyEvent(oscode.Escape, Down))

	rRel := m.HandleEvent(oscode.A, Up, 20)
	assertKeys(t, outKeys(rRel), keyEvent(oscode.Escape, Up))

	m.HandleEvent(oscode.Space, Up, 30)
	r2 := m.HandleEvent(oscode.A, Down, 40)
	assertKeys(t, outKeys(r2), keyEvent(oscode.A, Down))
}
