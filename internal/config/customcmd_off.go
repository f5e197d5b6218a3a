//go:build !customcmd

package config

import (
	"fmt"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/sexpr"
)

// compileCmdAction rejects (cmd ...) forms in the default build; custom
// commands are an opt-in compile-time flag per spec.md §3.
func compileCmdAction(args []sexpr.Node) (action.Action, error) {
	return nil, fmt.Errorf("config: cmd action requires the customcmd build tag")
}
