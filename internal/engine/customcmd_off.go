//go:build !customcmd

package engine

import "github.com/kidandcat/kanata-go/internal/action"

// isCustomCmd always reports false in the default build: action.CustomCmd
// does not exist without the customcmd tag.
func isCustomCmd(act action.Action) bool {
	return false
}
