// Package keymap holds the immutable parsed configuration value the engine
// consumes: source key order, layers, chord groups, sequence trie, and
// global options. A Keymap is built once (by internal/config, or directly
// via Builder in tests) and never mutated afterward.
package keymap

import (
	"errors"
	"fmt"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// Sentinel errors surfaced on reload/control-command failure (spec.md §7).
var (
	ErrUnknownLayer     = errors.New("keymap: unknown layer")
	ErrEmptyDefsrc      = errors.New("keymap: defsrc is empty")
	ErrDuplicateDefsrc  = errors.New("keymap: duplicate key in defsrc")
	ErrLayerSizeMismatch = errors.New("keymap: layer action count does not match defsrc")
	ErrBadChordGroup    = errors.New("keymap: chord group has fewer than two members")
	ErrDanglingLayerRef = errors.New("keymap: action references an out-of-range layer index")
)

// Layer maps each defsrc index to an Action. Dense: len(Actions) ==
// len(Keymap.Defsrc).
type Layer struct {
	Name    string
	Actions []action.Action
}

// ChordGroup is a set of keys that, held together within TimeoutMs, fire
// Action as a single virtual press.
type ChordGroup struct {
	ID        int
	Name      string
	Members   []oscode.Code
	TimeoutMs uint32
	Action    action.Action
}

// SequenceNode is one node of the sequence trie: a run of OsCodes (with
// optional modifier-high-bits set, see internal/sequence) walks Children;
// reaching a node with a non-nil Action terminates the walk.
type SequenceNode struct {
	Children map[oscode.Code]*SequenceNode
	Action   action.Action
}

// NewSequenceNode returns an empty trie node.
func NewSequenceNode() *SequenceNode {
	return &SequenceNode{Children: make(map[oscode.Code]*SequenceNode)}
}

// Insert adds run -> act to the trie rooted at n, creating intermediate
// nodes as needed. Grounded on the find-or-create walk in
// other_examples/cellux-mixtape__keymap.go, adapted from string keys to
// oscode.Code and from KeyHandler to action.Action.
func (n *SequenceNode) Insert(run []oscode.Code, act action.Action) {
	cur := n
	for _, code := range run {
		next, ok := cur.Children[code]
		if !ok {
			next = NewSequenceNode()
			cur.Children[code] = next
		}
		cur = next
	}
	cur.Action = act
}

// Walk advances from n by one code, returning the child node (possibly
// terminal) or nil if there is no matching branch.
func (n *SequenceNode) Walk(code oscode.Code) *SequenceNode {
	return n.Children[code]
}

// Options collects the global, config-wide knobs spec.md §3(e) names.
type Options struct {
	DefaultTapTimeoutMs  uint32
	DefaultHoldTimeoutMs uint32
	ChordTimeoutMs       uint32
	SequenceTimeoutMs    uint32
	BacktrackModcancel   bool
	ProcessUnmappedKeys  bool
}

// DefaultOptions mirrors conventional kanata defaults.
func DefaultOptions() Options {
	return Options{
		DefaultTapTimeoutMs:  200,
		DefaultHoldTimeoutMs: 200,
		ChordTimeoutMs:       50,
		SequenceTimeoutMs:    1000,
		BacktrackModcancel:   true,
		ProcessUnmappedKeys:  false,
	}
}

// Keymap is the complete, validated, immutable configuration value.
type Keymap struct {
	Defsrc   []oscode.Code
	Layers   []Layer
	Chords   []ChordGroup
	Seq      *SequenceNode
	Options  Options
	FakeKeys map[string]action.Action

	// defsrcIndex maps an OsCode to its position in Defsrc for O(1) lookup.
	defsrcIndex map[oscode.Code]int
}

// IndexOf returns the defsrc index of code and true, or (0, false) if code
// is not in defsrc.
func (k *Keymap) IndexOf(code oscode.Code) (int, bool) {
	i, ok := k.defsrcIndex[code]
	return i, ok
}

// LayerIndexByName returns the index of the named layer.
func (k *Keymap) LayerIndexByName(name string) (int, bool) {
	for i, l := range k.Layers {
		if l.Name == name {
			return i, true
		}
	}
	return 0, false
}

// LayerNames returns layer names in declaration order (RequestLayerNames).
func (k *Keymap) LayerNames() []string {
	names := make([]string, len(k.Layers))
	for i, l := range k.Layers {
		names[i] = l.Name
	}
	return names
}

// ActionFor returns the action bound to code on layer index li, or false if
// code is outside defsrc.
func (k *Keymap) ActionFor(li int, code oscode.Code) (action.Action, bool) {
	idx, ok := k.defsrcIndex[code]
	if !ok {
		return nil, false
	}
	return k.Layers[li].Actions[idx], true
}

// Validate checks the structural invariants a freshly-built Keymap must
// satisfy before the orchestrator will install it (spec.md §7 "Bad keymap
// on reload").
func (k *Keymap) Validate() error {
	if len(k.Defsrc) == 0 {
		return ErrEmptyDefsrc
	}
	seen := make(map[oscode.Code]struct{}, len(k.Defsrc))
	for _, c := range k.Defsrc {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateDefsrc, oscode.Name(c))
		}
		seen[c] = struct{}{}
	}
	for _, l := range k.Layers {
		if len(l.Actions) != len(k.Defsrc) {
			return fmt.Errorf("%w: layer %q has %d actions, want %d", ErrLayerSizeMismatch, l.Name, len(l.Actions), len(k.Defsrc))
		}
	}
	for _, cg := range k.Chords {
		if len(cg.Members) < 2 {
			return fmt.Errorf("%w: %q", ErrBadChordGroup, cg.Name)
		}
	}
	for li, l := range k.Layers {
		for _, act := range l.Actions {
			if ref, ok := act.(action.Layer); ok {
				if ref.Index < 0 || ref.Index >= len(k.Layers) {
					return fmt.Errorf("%w: layer %q (%d) -> %d", ErrDanglingLayerRef, l.Name, li, ref.Index)
				}
			}
		}
	}
	return nil
}

// Builder assembles a Keymap incrementally; used by internal/config and by
// tests that want to construct a Keymap without writing config text.
type Builder struct {
	defsrc  []oscode.Code
	layers  []Layer
	chords  []ChordGroup
	seq      *SequenceNode
	options  Options
	fakeKeys map[string]action.Action
}

// NewBuilder returns a Builder seeded with DefaultOptions.
func NewBuilder() *Builder {
	return &Builder{seq: NewSequenceNode(), options: DefaultOptions(), fakeKeys: make(map[string]action.Action)}
}

func (b *Builder) SetDefsrc(codes []oscode.Code) *Builder {
	b.defsrc = append([]oscode.Code(nil), codes...)
	return b
}

func (b *Builder) AddLayer(name string, actions []action.Action) *Builder {
	b.layers = append(b.layers, Layer{Name: name, Actions: actions})
	return b
}

func (b *Builder) AddChordGroup(name string, members []oscode.Code, timeoutMs uint32, act action.Action) *Builder {
	b.chords = append(b.chords, ChordGroup{ID: len(b.chords), Name: name, Members: members, TimeoutMs: timeoutMs, Action: act})
	return b
}

func (b *Builder) AddSequence(run []oscode.Code, act action.Action) *Builder {
	b.seq.Insert(run, act)
	return b
}

func (b *Builder) SetOptions(o Options) *Builder {
	b.options = o
	return b
}

// AddFakeKey registers a named virtual key a FakeKeyOp control command or
// action.FakeKey binding can drive (spec.md §3 Action.FakeKey).
func (b *Builder) AddFakeKey(ref string, act action.Action) *Builder {
	b.fakeKeys[ref] = act
	return b
}

// Build validates and returns the finished Keymap.
func (b *Builder) Build() (*Keymap, error) {
	idx := make(map[oscode.Code]int, len(b.defsrc))
	for i, c := range b.defsrc {
		idx[c] = i
	}
	k := &Keymap{
		Defsrc:      b.defsrc,
		Layers:      b.layers,
		Chords:      b.chords,
		Seq:         b.seq,
		Options:     b.options,
		FakeKeys:    b.fakeKeys,
		defsrcIndex: idx,
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}
