package config

import (
	"testing"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

func TestCompileSimpleRemap(t *testing.T) {
	km, err := Compile(`
		(defsrc a b)
		(deflayer base z b)
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(km.Defsrc) != 2 || km.Defsrc[0] != oscode.A || km.Defsrc[1] != oscode.B {
		t.Fatalf("Defsrc = %v, want [A B]", km.Defsrc)
	}
	act, ok := km.ActionFor(0, oscode.A)
	if !ok {
		t.Fatalf("ActionFor(base, a) not found")
	}
	kc, ok := act.(action.KeyCode)
	if !ok || kc.Code != oscode.Z {
		t.Fatalf("action for a = %#v, want KeyCode{Z}", act)
	}
}

func TestCompileTransparentAndNoOp(t *testing.T) {
	km, err := Compile(`
		(defsrc a b)
		(deflayer base _ XX)
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	act, _ := km.ActionFor(0, oscode.A)
	if _, ok := act.(action.Transparent); !ok {
		t.Fatalf("action for a = %#v, want Transparent", act)
	}
	act, _ = km.ActionFor(0, oscode.B)
	if _, ok := act.(action.NoOp); !ok {
		t.Fatalf("action for b = %#v, want NoOp", act)
	}
}

func TestCompileAliasResolution(t *testing.T) {
	km, err := Compile(`
		(defalias esc esc)
		(defsrc a)
		(deflayer base @esc)
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	act, _ := km.ActionFor(0, oscode.A)
	kc, ok := act.(action.KeyCode)
	if !ok || kc.Code != oscode.Escape {
		t.Fatalf("action for a = %#v, want KeyCode{Escape}", act)
	}
}

func TestCompileAliasCycleIsError(t *testing.T) {
	_, err := Compile(`
		(defalias x (tap-hold 200 200 @x a))
		(defsrc a)
		(deflayer base @x)
	`)
	if err == nil {
		t.Fatalf("Compile() error = nil, want a cycle error")
	}
}

func TestCompileUndefinedAliasIsError(t *testing.T) {
	_, err := Compile(`
		(defsrc a)
		(deflayer base @nope)
	`)
	if err == nil {
		t.Fatalf("Compile() error = nil, want undefined alias error")
	}
}

func TestCompileLayerForwardReference(t *testing.T) {
	km, err := Compile(`
		(defsrc a b)
		(deflayer base (layer-while-held nav) b)
		(deflayer nav a b)
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	act, _ := km.ActionFor(0, oscode.A)
	layer, ok := act.(action.Layer)
	if !ok || layer.Mode != action.LayerWhileHeld {
		t.Fatalf("action for a = %#v, want Layer{Mode: LayerWhileHeld}", act)
	}
	idx, ok := km.LayerIndexByName("nav")
	if !ok || layer.Index != idx {
		t.Fatalf("layer.Index = %d, want index of nav layer (%d)", layer.Index, idx)
	}
}

func TestCompileTapHold(t *testing.T) {
	km, err := Compile(`
		(defsrc a)
		(deflayer base (tap-hold 200 200 esc lsft))
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	act, _ := km.ActionFor(0, oscode.A)
	th, ok := act.(action.TapHold)
	if !ok {
		t.Fatalf("action for a = %#v, want TapHold", act)
	}
	if tap, ok := th.Tap.(action.KeyCode); !ok || tap.Code != oscode.Escape {
		t.Fatalf("TapHold.Tap = %#v, want KeyCode{Escape}", th.Tap)
	}
	if hold, ok := th.Hold.(action.KeyCode); !ok || hold.Code != oscode.LeftShift {
		t.Fatalf("TapHold.Hold = %#v, want KeyCode{LeftShift}", th.Hold)
	}
}

func TestCompileTapHoldExceptKeys(t *testing.T) {
	km, err := Compile(`
		(defsrc a)
		(deflayer base (tap-hold-except-keys 200 200 esc lsft (lctl lsft)))
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	act, _ := km.ActionFor(0, oscode.A)
	th, ok := act.(action.TapHold)
	if !ok {
		t.Fatalf("action for a = %#v, want TapHold", act)
	}
	if th.Policy != action.PolicyExceptKeys {
		t.Fatalf("TapHold.Policy = %v, want PolicyExceptKeys", th.Policy)
	}
	if _, ok := th.ExceptKeys[oscode.LeftCtrl]; !ok {
		t.Fatalf("TapHold.ExceptKeys missing lctl: %#v", th.ExceptKeys)
	}
	if _, ok := th.ExceptKeys[oscode.LeftShift]; !ok {
		t.Fatalf("TapHold.ExceptKeys missing lsft: %#v", th.ExceptKeys)
	}
}

func TestCompileMacro(t *testing.T) {
	km, err := Compile(`
		(defsrc a)
		(deflayer base (macro h e l l o 50 (unicode !)))
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	act, _ := km.ActionFor(0, oscode.A)
	mac, ok := act.(action.Macro)
	if !ok {
		t.Fatalf("action for a = %#v, want Macro", act)
	}
	if len(mac.Script) != 7 {
		t.Fatalf("len(Script) = %d, want 7", len(mac.Script))
	}
	if mac.Script[5].Kind != action.MacroDelay || mac.Script[5].DelayMs != 50 {
		t.Fatalf("Script[5] = %#v, want a 50ms delay", mac.Script[5])
	}
	if mac.Script[6].Kind != action.MacroUnicode || mac.Script[6].Codepoint != '!' {
		t.Fatalf("Script[6] = %#v, want unicode '!'", mac.Script[6])
	}
}

func TestCompileChordGroup(t *testing.T) {
	km, err := Compile(`
		(defsrc a b)
		(deflayer base a b)
		(defchords cg1 50 (a b) esc)
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(km.Chords) != 1 {
		t.Fatalf("len(Chords) = %d, want 1", len(km.Chords))
	}
	if km.Chords[0].TimeoutMs != 50 || len(km.Chords[0].Members) != 2 {
		t.Fatalf("Chords[0] = %#v", km.Chords[0])
	}
}

func TestCompileSequenceWithModifier(t *testing.T) {
	km, err := Compile(`
		(defsrc a)
		(deflayer base a)
		(defseq leader (S-a b) esc)
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if km.Seq == nil {
		t.Fatalf("Seq is nil")
	}
}

func TestCompileDefcfgOverridesOptions(t *testing.T) {
	km, err := Compile(`
		(defcfg
		  process-unmapped-keys yes
		  chord-timeout 75)
		(defsrc a)
		(deflayer base a)
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !km.Options.ProcessUnmappedKeys {
		t.Fatalf("ProcessUnmappedKeys = false, want true")
	}
	if km.Options.ChordTimeoutMs != 75 {
		t.Fatalf("ChordTimeoutMs = %d, want 75", km.Options.ChordTimeoutMs)
	}
}

func TestCompileWrongLayerWidthIsError(t *testing.T) {
	_, err := Compile(`
		(defsrc a b)
		(deflayer base a)
	`)
	if err == nil {
		t.Fatalf("Compile() error = nil, want layer-width mismatch error")
	}
}

func TestCompileVirtualKeys(t *testing.T) {
	km, err := Compile(`
		(defsrc a)
		(deflayer base a)
		(defvirtualkeys (mykey lsft))
	`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	act, ok := km.FakeKeys["mykey"]
	if !ok {
		t.Fatalf("FakeKeys[mykey] not found")
	}
	if kc, ok := act.(action.KeyCode); !ok || kc.Code != oscode.LeftShift {
		t.Fatalf("FakeKeys[mykey] = %#v, want KeyCode{LeftShift}", act)
	}
}
