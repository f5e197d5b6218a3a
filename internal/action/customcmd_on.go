//go:build customcmd

package action

// CustomCmd is an opaque side effect executed by the orchestrator (reload,
// layer query, ...). Only compiled in when the customcmd build tag is set,
// per spec.md §3 "gated behind a compile-time flag."
type CustomCmd struct {
	Name string
	Args []string
}

func (CustomCmd) isAction() {}
