//go:build customcmd

package config

import (
	"fmt"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/sexpr"
)

// compileCmdAction compiles (cmd name args...) into action.CustomCmd. Only
// built with the customcmd tag, mirroring action.CustomCmd's own gating.
func compileCmdAction(args []sexpr.Node) (action.Action, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("config: cmd takes (name args...)")
	}
	var cmdArgs []string
	for _, a := range args[1:] {
		cmdArgs = append(cmdArgs, a.Atom)
	}
	return action.CustomCmd{Name: args[0].Atom, Args: cmdArgs}, nil
}
