//go:build !customcmd

package config

import "testing"

func TestCompileCmdRejectedWithoutCustomCmdTag(t *testing.T) {
	_, err := Compile(`
		(defsrc a)
		(deflayer base (cmd reload))
	`)
	if err == nil {
		t.Fatalf("Compile() error = nil, want (cmd ...) rejected without the customcmd build tag")
	}
}
