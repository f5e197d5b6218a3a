// Package config compiles the parenthesized form of a configuration file
// (read by internal/sexpr) into a keymap.Keymap, and wires a file watcher
// that feeds recompiled Keymaps to an orchestrator.Orchestrator on change.
// Grounded on the teacher's config handling and generalized the find-or-
// create trie walk from other_examples/cellux-mixtape__keymap.go (see
// internal/keymap's SequenceNode, which this package populates).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/oscode"
	"github.com/kidandcat/kanata-go/internal/sequence"
	"github.com/kidandcat/kanata-go/internal/sexpr"
)

// compiler holds the state threaded through one Compile call: the parsed
// top-level forms, in-progress alias resolution (for cycle detection), and
// the Builder being filled in.
type compiler struct {
	aliases    map[string]sexpr.Node
	resolved   map[string]action.Action
	resolving  map[string]bool
	layerIndex map[string]int
	b          *keymap.Builder
}

// Compile parses src and compiles it into a validated Keymap.
func Compile(src string) (*keymap.Keymap, error) {
	forms, err := sexpr.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	c := &compiler{
		aliases:   make(map[string]sexpr.Node),
		resolved:  make(map[string]action.Action),
		resolving: make(map[string]bool),
		b:         keymap.NewBuilder(),
	}

	// First pass: collect defcfg and defalias bodies so later forms (which
	// may reference an alias before its defalias form textually, or depend
	// on defcfg options like backtrack-modcancel while compiling a defseq)
	// see the complete picture.
	var defsrc []sexpr.Node
	var deflayers []sexpr.Node
	var defchords []sexpr.Node
	var defseqs []sexpr.Node
	var defvirtualkeys []sexpr.Node

	for _, f := range forms {
		switch sexpr.Head(f) {
		case "defcfg":
			if err := c.applyDefcfg(f); err != nil {
				return nil, err
			}
		case "defalias":
			c.collectAliases(f)
		case "defsrc":
			defsrc = f.List[1:]
		case "deflayer":
			deflayers = append(deflayers, f)
		case "defchords":
			defchords = append(defchords, f)
		case "defseq":
			defseqs = append(defseqs, f)
		case "defvirtualkeys":
			defvirtualkeys = append(defvirtualkeys, f)
		default:
			return nil, fmt.Errorf("config: line %d: unknown top-level form %q", f.Line, sexpr.Head(f))
		}
	}

	srcCodes := make([]oscode.Code, 0, len(defsrc))
	for _, n := range defsrc {
		code, ok := lookupCode(n.Atom)
		if !ok {
			return nil, fmt.Errorf("config: line %d: unknown key %q in defsrc", n.Line, n.Atom)
		}
		srcCodes = append(srcCodes, code)
	}
	c.b.SetDefsrc(srcCodes)

	// Layer actions (layer-while-held and friends) refer to layers by name,
	// possibly ones declared later in the file, so every layer's index is
	// known up front before any action form is compiled.
	c.layerIndex = make(map[string]int, len(deflayers))
	for i, f := range deflayers {
		if len(f.List) < 2 {
			return nil, fmt.Errorf("config: line %d: deflayer missing a name", f.Line)
		}
		c.layerIndex[f.List[1].Atom] = i
	}

	for _, f := range deflayers {
		if err := c.compileLayer(f, len(srcCodes)); err != nil {
			return nil, err
		}
	}
	for _, f := range defchords {
		if err := c.compileChordGroup(f); err != nil {
			return nil, err
		}
	}
	for _, f := range defseqs {
		if err := c.compileSequence(f); err != nil {
			return nil, err
		}
	}
	for _, f := range defvirtualkeys {
		if err := c.compileVirtualKeys(f); err != nil {
			return nil, err
		}
	}

	return c.b.Build()
}

func (c *compiler) collectAliases(f sexpr.Node) {
	// (defalias name1 action1 name2 action2 ...)
	body := f.List[1:]
	for i := 0; i+1 < len(body); i += 2 {
		c.aliases[body[i].Atom] = body[i+1]
	}
}

func (c *compiler) applyDefcfg(f sexpr.Node) error {
	opts := keymap.DefaultOptions()
	body := f.List[1:]
	for i := 0; i+1 < len(body); i += 2 {
		key := body[i].Atom
		val := body[i+1]
		switch key {
		case "process-unmapped-keys":
			opts.ProcessUnmappedKeys = val.Atom == "yes"
		case "backtrack-modcancel":
			opts.BacktrackModcancel = val.Atom == "yes"
		case "tap-timeout":
			n, err := val.Int()
			if err != nil {
				return fmt.Errorf("config: line %d: tap-timeout: %w", val.Line, err)
			}
			opts.DefaultTapTimeoutMs = uint32(n)
		case "hold-timeout":
			n, err := val.Int()
			if err != nil {
				return fmt.Errorf("config: line %d: hold-timeout: %w", val.Line, err)
			}
			opts.DefaultHoldTimeoutMs = uint32(n)
		case "chord-timeout":
			n, err := val.Int()
			if err != nil {
				return fmt.Errorf("config: line %d: chord-timeout: %w", val.Line, err)
			}
			opts.ChordTimeoutMs = uint32(n)
		case "sequence-timeout":
			n, err := val.Int()
			if err != nil {
				return fmt.Errorf("config: line %d: sequence-timeout: %w", val.Line, err)
			}
			opts.SequenceTimeoutMs = uint32(n)
		default:
			return fmt.Errorf("config: line %d: unknown defcfg key %q", val.Line, key)
		}
	}
	c.b.SetOptions(opts)
	return nil
}

func (c *compiler) compileLayer(f sexpr.Node, want int) error {
	body := f.List[1:]
	if len(body) == 0 {
		return fmt.Errorf("config: line %d: deflayer missing a name", f.Line)
	}
	name := body[0].Atom
	actionForms := body[1:]
	if len(actionForms) != want {
		return fmt.Errorf("config: line %d: layer %q has %d actions, defsrc has %d", f.Line, name, len(actionForms), want)
	}
	actions := make([]action.Action, len(actionForms))
	for i, af := range actionForms {
		act, err := c.compileAction(af)
		if err != nil {
			return err
		}
		actions[i] = act
	}
	c.b.AddLayer(name, actions)
	return nil
}

// compileAction resolves one action form: an atom (key name, "_", "XX", or
// "@alias"), or a list headed by an action keyword.
func (c *compiler) compileAction(n sexpr.Node) (action.Action, error) {
	if n.IsAtom() {
		return c.compileAtomAction(n)
	}
	if len(n.List) == 0 {
		return action.NoOp{}, nil
	}
	head := sexpr.Head(n)
	args := n.List[1:]
	switch head {
	case "layer-while-held":
		return c.layerAction(args, action.LayerWhileHeld)
	case "layer-toggle":
		return c.layerAction(args, action.LayerToggle)
	case "layer-switch":
		return c.layerAction(args, action.LayerSwitchBase)
	case "layer-tap-toggle":
		return c.layerAction(args, action.LayerTapToggle)
	case "tap-hold", "tap-hold-press", "tap-hold-release", "tap-hold-except-keys":
		return c.tapHoldAction(head, args)
	case "tap-dance":
		return c.tapDanceAction(args)
	case "one-shot", "one-shot-press", "one-shot-press-or-repress":
		return c.oneShotAction(head, args)
	case "macro", "macro-cleanup":
		return c.macroAction(head, args)
	case "sequence":
		if len(args) != 1 {
			return nil, fmt.Errorf("config: line %d: sequence takes one leader-token name", n.Line)
		}
		return action.Sequence{LeaderToken: args[0].Atom}, nil
	case "unicode":
		return c.unicodeAction(args)
	case "mouse-button":
		if len(args) != 1 {
			return nil, fmt.Errorf("config: line %d: mouse-button takes one name", n.Line)
		}
		code, ok := lookupCode(args[0].Atom)
		if !ok || !oscode.IsMouse(code) {
			return nil, fmt.Errorf("config: line %d: unknown mouse button %q", args[0].Line, args[0].Atom)
		}
		return action.MouseButton{Code: code}, nil
	case "mouse-move":
		return c.mouseMoveAction(args)
	case "mouse-scroll":
		return c.mouseScrollAction(args)
	case "fake-key":
		return c.fakeKeyAction(args)
	case "cmd":
		return compileCmdAction(args)
	case "multi":
		var codes []oscode.Code
		for _, a := range args {
			code, ok := lookupCode(a.Atom)
			if !ok {
				return nil, fmt.Errorf("config: line %d: unknown key %q in multi", a.Line, a.Atom)
			}
			codes = append(codes, code)
		}
		return action.MultipleKeyCodes{Codes: codes}, nil
	default:
		return nil, fmt.Errorf("config: line %d: unknown action form %q", n.Line, head)
	}
}

func (c *compiler) compileAtomAction(n sexpr.Node) (action.Action, error) {
	switch n.Atom {
	case "_":
		return action.Transparent{}, nil
	case "XX":
		return action.NoOp{}, nil
	}
	if strings.HasPrefix(n.Atom, "@") {
		return c.resolveAlias(n.Atom[1:], n.Line)
	}
	code, ok := lookupCode(n.Atom)
	if !ok {
		return nil, fmt.Errorf("config: line %d: unknown key %q", n.Line, n.Atom)
	}
	return action.KeyCode{Code: code}, nil
}

func (c *compiler) resolveAlias(name string, line int) (action.Action, error) {
	if act, ok := c.resolved[name]; ok {
		return act, nil
	}
	if c.resolving[name] {
		return nil, fmt.Errorf("config: line %d: alias %q is defined in terms of itself", line, name)
	}
	body, ok := c.aliases[name]
	if !ok {
		return nil, fmt.Errorf("config: line %d: undefined alias %q", line, name)
	}
	c.resolving[name] = true
	act, err := c.compileAction(body)
	delete(c.resolving, name)
	if err != nil {
		return nil, err
	}
	c.resolved[name] = act
	return act, nil
}

func (c *compiler) layerAction(args []sexpr.Node, mode action.LayerMode) (action.Action, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("config: layer action takes one layer name")
	}
	idx, ok := c.layerIndex[args[0].Atom]
	if !ok {
		return nil, fmt.Errorf("config: line %d: unknown layer %q", args[0].Line, args[0].Atom)
	}
	return action.Layer{Index: idx, Mode: mode}, nil
}

func (c *compiler) tapHoldAction(head string, args []sexpr.Node) (action.Action, error) {
	wantLen := 4
	if head == "tap-hold-except-keys" {
		wantLen = 5
	}
	if len(args) != wantLen {
		if head == "tap-hold-except-keys" {
			return nil, fmt.Errorf("config: %s takes (tap-ms hold-ms tap-action hold-action (except-key...))", head)
		}
		return nil, fmt.Errorf("config: %s takes (tap-ms hold-ms tap-action hold-action)", head)
	}
	tapMs, err := args[0].Int()
	if err != nil {
		return nil, fmt.Errorf("config: %s tap-ms: %w", head, err)
	}
	holdMs, err := args[1].Int()
	if err != nil {
		return nil, fmt.Errorf("config: %s hold-ms: %w", head, err)
	}
	tap, err := c.compileAction(args[2])
	if err != nil {
		return nil, err
	}
	hold, err := c.compileAction(args[3])
	if err != nil {
		return nil, err
	}
	policy := action.PolicyDefault
	switch head {
	case "tap-hold-press":
		policy = action.PolicyPress
	case "tap-hold-release":
		policy = action.PolicyRelease
	case "tap-hold-except-keys":
		policy = action.PolicyExceptKeys
	}
	var exceptKeys map[oscode.Code]struct{}
	if head == "tap-hold-except-keys" {
		exceptKeys = make(map[oscode.Code]struct{}, len(args[4].List))
		for _, k := range args[4].List {
			code, ok := lookupCode(k.Atom)
			if !ok {
				return nil, fmt.Errorf("config: line %d: unknown key %q in tap-hold-except-keys", k.Line, k.Atom)
			}
			exceptKeys[code] = struct{}{}
		}
	}
	return action.TapHold{
		Tap: tap, Hold: hold,
		TapTimeoutMs: uint32(tapMs), HoldTimeoutMs: uint32(holdMs),
		Policy:     policy,
		ExceptKeys: exceptKeys,
	}, nil
}

func (c *compiler) tapDanceAction(args []sexpr.Node) (action.Action, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("config: tap-dance takes (timeout-ms action...)")
	}
	timeout, err := args[0].Int()
	if err != nil {
		return nil, fmt.Errorf("config: tap-dance timeout-ms: %w", err)
	}
	steps := make([]action.Action, 0, len(args)-1)
	for _, a := range args[1:] {
		act, err := c.compileAction(a)
		if err != nil {
			return nil, err
		}
		steps = append(steps, act)
	}
	return action.TapDance{Steps: steps, TimeoutMs: uint32(timeout)}, nil
}

func (c *compiler) oneShotAction(head string, args []sexpr.Node) (action.Action, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("config: %s takes (timeout-ms action)", head)
	}
	timeout, err := args[0].Int()
	if err != nil {
		return nil, fmt.Errorf("config: %s timeout-ms: %w", head, err)
	}
	inner, err := c.compileAction(args[1])
	if err != nil {
		return nil, err
	}
	policy := action.EndOnFirstRelease
	switch head {
	case "one-shot-press":
		policy = action.EndOnFirstPress
	case "one-shot-press-or-repress":
		policy = action.EndOnFirstPressOrRepress
	}
	return action.OneShot{Inner: inner, TimeoutMs: uint32(timeout), EndPolicy: policy}, nil
}

func (c *compiler) macroAction(head string, args []sexpr.Node) (action.Action, error) {
	var atoms []action.MacroAtom
	for _, a := range args {
		if a.IsAtom() {
			if n, err := strconv.Atoi(a.Atom); err == nil {
				atoms = append(atoms, action.MacroAtom{Kind: action.MacroDelay, DelayMs: uint32(n)})
				continue
			}
			code, ok := lookupCode(a.Atom)
			if !ok {
				return nil, fmt.Errorf("config: line %d: unknown macro key %q", a.Line, a.Atom)
			}
			atoms = append(atoms, action.MacroAtom{Kind: action.MacroTap, Code: code})
			continue
		}
		switch sexpr.Head(a) {
		case "down":
			code, ok := lookupCode(a.List[1].Atom)
			if !ok {
				return nil, fmt.Errorf("config: line %d: unknown macro key %q", a.List[1].Line, a.List[1].Atom)
			}
			atoms = append(atoms, action.MacroAtom{Kind: action.MacroPress, Code: code})
		case "up":
			code, ok := lookupCode(a.List[1].Atom)
			if !ok {
				return nil, fmt.Errorf("config: line %d: unknown macro key %q", a.List[1].Line, a.List[1].Atom)
			}
			atoms = append(atoms, action.MacroAtom{Kind: action.MacroRelease, Code: code})
		case "unicode":
			cp, err := parseCodepoint(a.List[1])
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, action.MacroAtom{Kind: action.MacroUnicode, Codepoint: cp})
		case "mouse-button":
			code, ok := lookupCode(a.List[1].Atom)
			if !ok {
				return nil, fmt.Errorf("config: line %d: unknown mouse button %q", a.List[1].Line, a.List[1].Atom)
			}
			atoms = append(atoms, action.MacroAtom{Kind: action.MacroMouse, Code: code})
		default:
			return nil, fmt.Errorf("config: line %d: unknown macro atom %q", a.Line, sexpr.Head(a))
		}
	}
	return action.Macro{Script: atoms, Cleanup: head == "macro-cleanup"}, nil
}

func (c *compiler) unicodeAction(args []sexpr.Node) (action.Action, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("config: unicode takes one code point")
	}
	cp, err := parseCodepoint(args[0])
	if err != nil {
		return nil, err
	}
	return action.Unicode{Codepoint: cp}, nil
}

func parseCodepoint(n sexpr.Node) (rune, error) {
	if strings.HasPrefix(n.Atom, "U+") || strings.HasPrefix(n.Atom, "0x") {
		v, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimPrefix(n.Atom, "U+"), "0x"), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("config: line %d: bad unicode code point %q: %w", n.Line, n.Atom, err)
		}
		return rune(v), nil
	}
	runes := []rune(n.Atom)
	if len(runes) != 1 {
		return 0, fmt.Errorf("config: line %d: unicode wants a single character or U+XXXX, got %q", n.Line, n.Atom)
	}
	return runes[0], nil
}

func (c *compiler) mouseMoveAction(args []sexpr.Node) (action.Action, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("config: mouse-move takes (dx dy)")
	}
	dx, err := args[0].Int()
	if err != nil {
		return nil, fmt.Errorf("config: mouse-move dx: %w", err)
	}
	dy, err := args[1].Int()
	if err != nil {
		return nil, fmt.Errorf("config: mouse-move dy: %w", err)
	}
	return action.MouseMove{Dx: dx, Dy: dy}, nil
}

func (c *compiler) mouseScrollAction(args []sexpr.Node) (action.Action, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("config: mouse-scroll takes (axis ticks)")
	}
	horizontal := args[0].Atom == "horizontal"
	ticks, err := args[1].Int()
	if err != nil {
		return nil, fmt.Errorf("config: mouse-scroll ticks: %w", err)
	}
	return action.MouseScroll{Horizontal: horizontal, Ticks: ticks}, nil
}

func (c *compiler) fakeKeyAction(args []sexpr.Node) (action.Action, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("config: fake-key takes (ref op)")
	}
	op, ok := fakeKeyOps[args[1].Atom]
	if !ok {
		return nil, fmt.Errorf("config: line %d: unknown fake-key op %q", args[1].Line, args[1].Atom)
	}
	return action.FakeKey{Ref: args[0].Atom, Op: op}, nil
}

var fakeKeyOps = map[string]action.FakeKeyOp{
	"press": action.FakeKeyPress, "release": action.FakeKeyRelease,
	"tap": action.FakeKeyTap, "toggle": action.FakeKeyToggle,
}

func (c *compiler) compileChordGroup(f sexpr.Node) error {
	// (defchords name timeout-ms (member...) action)
	body := f.List[1:]
	if len(body) != 4 {
		return fmt.Errorf("config: line %d: defchords takes (name timeout-ms (members...) action)", f.Line)
	}
	name := body[0].Atom
	timeout, err := body[1].Int()
	if err != nil {
		return fmt.Errorf("config: line %d: defchords timeout-ms: %w", f.Line, err)
	}
	var members []oscode.Code
	for _, m := range body[2].List {
		code, ok := lookupCode(m.Atom)
		if !ok {
			return fmt.Errorf("config: line %d: unknown chord member %q", m.Line, m.Atom)
		}
		members = append(members, code)
	}
	act, err := c.compileAction(body[3])
	if err != nil {
		return err
	}
	c.b.AddChordGroup(name, members, uint32(timeout), act)
	return nil
}

func (c *compiler) compileSequence(f sexpr.Node) error {
	// (defseq name (run...) action), where a run element may carry modifier
	// prefixes like "S-a" or "C-S-a".
	body := f.List[1:]
	if len(body) != 3 {
		return fmt.Errorf("config: line %d: defseq takes (name (run...) action)", f.Line)
	}
	var run []oscode.Code
	for _, r := range body[1].List {
		code, err := parseSequenceStep(r)
		if err != nil {
			return err
		}
		run = append(run, code)
	}
	act, err := c.compileAction(body[2])
	if err != nil {
		return err
	}
	c.b.AddSequence(run, act)
	return nil
}

func parseSequenceStep(n sexpr.Node) (oscode.Code, error) {
	var shift, ctrl, alt, meta bool
	tok := n.Atom
	for {
		switch {
		case strings.HasPrefix(tok, "S-"):
			shift = true
			tok = tok[2:]
		case strings.HasPrefix(tok, "C-"):
			ctrl = true
			tok = tok[2:]
		case strings.HasPrefix(tok, "A-"):
			alt = true
			tok = tok[2:]
		case strings.HasPrefix(tok, "M-"):
			meta = true
			tok = tok[2:]
		default:
			code, ok := lookupCode(tok)
			if !ok {
				return 0, fmt.Errorf("config: line %d: unknown sequence key %q", n.Line, n.Atom)
			}
			return sequence.TaggedCode(code, shift, ctrl, alt, meta), nil
		}
	}
}

func (c *compiler) compileVirtualKeys(f sexpr.Node) error {
	body := f.List[1:]
	for _, pair := range body {
		if pair.IsAtom() || len(pair.List) != 2 {
			return fmt.Errorf("config: line %d: defvirtualkeys entries are (ref action)", pair.Line)
		}
		act, err := c.compileAction(pair.List[1])
		if err != nil {
			return err
		}
		c.b.AddFakeKey(pair.List[0].Atom, act)
	}
	return nil
}

// Watcher recompiles a config file on write and forwards the result to a
// callback (the orchestrator's RequestReload), using fsnotify the way
// spec.md §3 Lifecycle names file-watch reload as a supported trigger.
type Watcher struct {
	log    *logrus.Entry
	path   string
	fsw    *fsnotify.Watcher
	onLoad func(*keymap.Keymap)
	onErr  func(error)
}

// NewWatcher creates an fsnotify watcher for path; Run adds the directory
// to watch (watching the directory, not the file, survives editors that
// replace-on-save).
func NewWatcher(log *logrus.Entry, path string, onLoad func(*keymap.Keymap), onErr func(error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	w := &Watcher{log: log, path: path, fsw: fsw, onLoad: onLoad, onErr: onErr}
	return w, nil
}

// Run adds dir to the watch and starts the watch loop in the background,
// returning at once; the loop ends when Close is called.
func (w *Watcher) Run(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if ev.Name != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.onErr(err)
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.onErr(fmt.Errorf("config: reload: %w", err))
		return
	}
	km, err := Compile(string(data))
	if err != nil {
		w.log.WithError(err).Warn("config: reload produced an invalid keymap, keeping previous one")
		w.onErr(err)
		return
	}
	w.onLoad(km)
}

// Close stops the watch.
func (w *Watcher) Close() error { return w.fsw.Close() }
