package sexpr

import "testing"

func TestParseSimpleForm(t *testing.T) {
	forms, err := Parse(`(defsrc a b c)`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(forms) != 1 {
		t.Fatalf("len(forms) = %d, want 1", len(forms))
	}
	if Head(forms[0]) != "defsrc" {
		t.Fatalf("Head() = %q, want defsrc", Head(forms[0]))
	}
	if len(forms[0].List) != 4 {
		t.Fatalf("len(List) = %d, want 4", len(forms[0].List))
	}
}

func TestParseNestedLists(t *testing.T) {
	forms, err := Parse(`(deflayer base a (tap-hold 200 200 b c) d)`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	layer := forms[0]
	if len(layer.List) != 5 {
		t.Fatalf("len(List) = %d, want 5", len(layer.List))
	}
	nested := layer.List[3]
	if nested.IsAtom() || Head(nested) != "tap-hold" {
		t.Fatalf("nested form = %v, want tap-hold list", nested)
	}
}

func TestParseSkipsCommentsAndWhitespace(t *testing.T) {
	src := "; a leading comment\n(defcfg\n  process-unmapped-keys yes ; trailing comment\n)\n"
	forms, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(forms) != 1 || Head(forms[0]) != "defcfg" {
		t.Fatalf("forms = %v, want single defcfg form", forms)
	}
}

func TestParseMultipleTopLevelForms(t *testing.T) {
	forms, err := Parse(`(defsrc a) (deflayer base a)`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(forms) != 2 {
		t.Fatalf("len(forms) = %d, want 2", len(forms))
	}
}

func TestParseUnterminatedListIsError(t *testing.T) {
	_, err := Parse(`(defsrc a b`)
	if err == nil {
		t.Fatalf("Parse() error = nil, want unterminated-list error")
	}
}

func TestParseBareTopLevelAtomIsError(t *testing.T) {
	_, err := Parse(`a (defsrc a)`)
	if err == nil {
		t.Fatalf("Parse() error = nil, want top-level-atom error")
	}
}

func TestIntAtom(t *testing.T) {
	forms, err := Parse(`(defcfg chord-timeout 50)`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	n, err := forms[0].List[2].Int()
	if err != nil || n != 50 {
		t.Fatalf("Int() = (%d, %v), want (50, nil)", n, err)
	}
}
