//go:build customcmd

package engine

import "github.com/kidandcat/kanata-go/internal/action"

// isCustomCmd reports whether act is an opaque custom command, asserted
// simple on press and silent on release, just like NoOp. Only built with
// the customcmd tag, mirroring action.CustomCmd's own gating.
func isCustomCmd(act action.Action) bool {
	_, ok := act.(action.CustomCmd)
	return ok
}
