// Package machine defines the static, read-only hierarchical state machine
// model (spec section 3): a tree of states with guards, entry/exit
// actions, transitions, emissions, and event schemas. A Definition is
// identified by (Name, Version) and is safe to share across activations
// (spec section 5: "Machine definitions are read-only and safe to share").
//
// Definitions are declared as data — target paths are plain dotted
// strings resolved at interpret time, never back-pointers — so a
// Definition round-trips cleanly through YAML/JSON (spec section 9,
// "Cyclic references in machine tree").
package machine

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comalice/xorca/schema"
)

// StateType is one of the three state kinds spec section 3 defines.
type StateType string

const (
	Compound StateType = "compound"
	Parallel StateType = "parallel"
	Final    StateType = "final"
)

// ActionID and GuardID are the stable string identifiers machine authors
// reference from transitions and entry/exit lists. The interpreter
// resolves them against an ActionTable/GuardTable compiled for a
// Definition (spec section 9, "Action/guard identities").
type ActionID string
type GuardID string

const (
	// BuiltinUpdateContext shallow-merges event data (sans "type") into
	// context.
	BuiltinUpdateContext ActionID = "updateContext"
	// BuiltinUpdateLogs appends a log record.
	BuiltinUpdateLogs ActionID = "updateLogs"
	// BuiltinUpdateCheckpoint appends an orchestration-time record.
	BuiltinUpdateCheckpoint ActionID = "updateCheckpoint"
)

// EmitKind distinguishes the two Emit variants (spec section 9, Open
// Question (b)): a fixed topic string, or a function computing {type,
// data} from context and the triggering event.
type EmitKind string

const (
	EmitFixed    EmitKind = "fixed"
	EmitFunction EmitKind = "function"
)

// EmitFunc computes the outbound event's {type, data} pair when the
// owning state is newly entered.
type EmitFunc func(ctx map[string]any, event Event) (eventType string, data any)

// Emit is the tagged variant spec section 3 describes for a state's
// "emit" declaration: Kind names the variant. Fixed holds the topic of a
// fixed emit; Func is set for both variants (FixedEmit wraps its topic in
// a Func), and it is the only field the interpreter calls.
type Emit struct {
	Kind  EmitKind
	Fixed string
	Func  EmitFunc
}

// FixedEmit declares a state that always emits the given topic, with data
// produced by the optional dataFn (nil means emit with no data payload).
func FixedEmit(topic string, dataFn func(ctx map[string]any, event Event) any) Emit {
	fn := dataFn
	return Emit{
		Kind:  EmitFixed,
		Fixed: topic,
		Func: func(ctx map[string]any, event Event) (string, any) {
			if fn == nil {
				return topic, nil
			}
			return topic, fn(ctx, event)
		},
	}
}

// FunctionEmit declares a state whose outbound {type, data} is entirely
// computed by fn.
func FunctionEmit(fn EmitFunc) Emit {
	return Emit{Kind: EmitFunction, Func: fn}
}

// Event is the inbound event fed to the interpreter: a dotted type and
// its structured data.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Transformer pre-processes inbound event data before it reaches a guard
// or action (spec section 3: transition's optional "transformer").
type Transformer func(data map[string]any) map[string]any

// ActionFunc is the pure function an ActionID resolves to. It receives the
// context and event, and yields a delta to be merged into context (spec
// section 4.3 step 5).
type ActionFunc func(ctx map[string]any, event Event) (delta map[string]any, err error)

// GuardFunc is the pure function a GuardID resolves to.
type GuardFunc func(ctx map[string]any, event Event) bool

// ActionTable and GuardTable bind the stable identifiers a Definition
// references to their pure functions. They are compiled alongside a
// Definition and passed to the interpreter together (spec section 9:
// "lets the interpreter compile a machine into a pair of (identifier ->
// function) tables").
type ActionTable map[ActionID]ActionFunc
type GuardTable map[GuardID]GuardFunc

// Transition is one outgoing edge from a state's event-transition map.
type Transition struct {
	Target      string       `json:"target" yaml:"target"`
	Guard       GuardID      `json:"guard,omitempty" yaml:"guard,omitempty"`
	Actions     []ActionID   `json:"actions,omitempty" yaml:"actions,omitempty"`
	EventSchema *schema.Schema `json:"-" yaml:"-"`
	Transformer Transformer  `json:"-" yaml:"-"`
}

// State is one node of the hierarchical tree.
type State struct {
	ID       string            `json:"id" yaml:"id"`
	Type     StateType         `json:"type" yaml:"type"`
	Initial  string            `json:"initial,omitempty" yaml:"initial,omitempty"`
	Children map[string]*State `json:"children,omitempty" yaml:"children,omitempty"`
	Entry    []ActionID        `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit     []ActionID        `json:"exit,omitempty" yaml:"exit,omitempty"`
	Emit     *Emit             `json:"-" yaml:"-"`
	// On maps accepted event types to one or more candidate transitions,
	// tried in declaration order (spec section 4.3 step 2-3 tie-break).
	On map[string][]Transition `json:"on,omitempty" yaml:"on,omitempty"`
	// OnDone fires when every region of a Parallel state has reached a
	// Final child (spec section 4.3 step 6).
	OnDone *Transition `json:"onDone,omitempty" yaml:"onDone,omitempty"`

	parent *State
}

// Definition is a complete, named, versioned machine: the tree rooted at
// Root plus the initial-context schema for the start payload.
type Definition struct {
	Name               string  `json:"name" yaml:"name"`
	Version            string  `json:"version" yaml:"version"`
	Root               *State  `json:"root" yaml:"root"`
	InitialContextSchema *schema.Schema `json:"-" yaml:"-"`
}

// New constructs a Definition and links parent pointers across its tree
// (an in-memory convenience only — targets are still resolved by dotted
// path string, never by pointer, so the tree remains acyclic data).
func New(name, version string, root *State) *Definition {
	linkParents(root, nil)
	return &Definition{Name: name, Version: version, Root: root}
}

func linkParents(s *State, parent *State) {
	s.parent = parent
	for _, c := range s.Children {
		linkParents(c, s)
	}
}

// Path returns the dotted path from the root to s (e.g. "A.B.leaf").
func (s *State) Path() string {
	if s.parent == nil {
		return s.ID
	}
	return s.parent.Path() + "." + s.ID
}

// Ancestors returns s and every ancestor, root first.
func (s *State) Ancestors() []*State {
	var chain []*State
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	// reverse to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Parent returns s's parent, or nil at the root.
func (s *State) Parent() *State { return s.parent }

// IsLeaf reports whether s has no substates to descend into: either a
// Final state, or a Compound state declared without Children.
func (s *State) IsLeaf() bool {
	return s.Type == Final || (s.Type == Compound && len(s.Children) == 0)
}

// FindByPath resolves a dotted path against d's tree.
func (d *Definition) FindByPath(path string) (*State, error) {
	if path == "" {
		return nil, fmt.Errorf("empty state path")
	}
	segs := strings.Split(path, ".")
	if d.Root.ID != segs[0] {
		return nil, fmt.Errorf("state %q not found: root is %q", segs[0], d.Root.ID)
	}
	cur := d.Root
	for i := 1; i < len(segs); i++ {
		child, ok := cur.Children[segs[i]]
		if !ok {
			return nil, fmt.Errorf("child %q not found under %q", segs[i], cur.Path())
		}
		cur = child
	}
	return cur, nil
}

// Validate recursively checks structural invariants: a Compound state
// with children names an existing child as Initial, a Parallel state has
// at least one region, Final states have no children, every state has a
// known Type, and every transition and onDone target resolves within the
// tree.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("machine name is required")
	}
	if d.Version == "" {
		return fmt.Errorf("machine version is required")
	}
	if d.Root == nil {
		return fmt.Errorf("machine %q: root state is required", d.Name)
	}
	if err := d.Root.validate(); err != nil {
		return fmt.Errorf("machine %q: %w", d.Name, err)
	}
	return d.Root.validateTransitionTargets(d)
}

func (s *State) validate() error {
	switch s.Type {
	case Compound:
		// A Compound state with no Children is a plain leaf (spec
		// section 3 enumerates only {compound, parallel, final}; an
		// ordinary, non-terminal leaf is a Compound with nothing to
		// descend into). One with Children behaves as the classic
		// hierarchical "exactly one active child" container and must
		// name a valid Initial child.
		if len(s.Children) > 0 {
			if s.Initial == "" {
				return fmt.Errorf("compound state %q requires an initial child", s.Path())
			}
			if _, ok := s.Children[s.Initial]; !ok {
				return fmt.Errorf("compound state %q: initial child %q not found", s.Path(), s.Initial)
			}
		}
	case Parallel:
		if len(s.Children) == 0 {
			return fmt.Errorf("parallel state %q requires at least one region", s.Path())
		}
	case Final:
		if len(s.Children) > 0 {
			return fmt.Errorf("final state %q cannot have children", s.Path())
		}
	default:
		return fmt.Errorf("state %q: invalid type %q", s.Path(), s.Type)
	}
	for _, c := range s.Children {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) validateTransitionTargets(d *Definition) error {
	for event, transitions := range s.On {
		for i, t := range transitions {
			if _, err := d.FindByPath(t.Target); err != nil {
				return fmt.Errorf("state %q, event %q, transition %d: invalid target %q: %w", s.Path(), event, i, t.Target, err)
			}
		}
	}
	if s.OnDone != nil {
		if _, err := d.FindByPath(s.OnDone.Target); err != nil {
			return fmt.Errorf("state %q: invalid onDone target %q: %w", s.Path(), s.OnDone.Target, err)
		}
	}
	for _, c := range s.Children {
		if err := c.validateTransitionTargets(d); err != nil {
			return err
		}
	}
	return nil
}

// --- YAML load/dump (ambient stack: teacher's gopkg.in/yaml.v3 dependency) ---

// MarshalYAML and Load go through an anonymous name/version/root struct,
// since ActionFunc/GuardFunc/Transformer/EmitFunc are not serializable and
// On's Transition also carries the runtime-only EventSchema/Transformer
// fields omitted above with yaml:"-".

// MarshalYAML renders the Definition's wire-safe fields.
func (d *Definition) MarshalYAML() (any, error) {
	return struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Root    *State `yaml:"root"`
	}{d.Name, d.Version, d.Root}, nil
}

// Dump serializes the Definition to YAML (structure only; guard/action
// identifiers are preserved as strings, their bound functions are not).
func (d *Definition) Dump() ([]byte, error) {
	return yaml.Marshal(d)
}

// Load parses a Definition's structure from YAML and re-links parent
// pointers. Callers must still compile an ActionTable/GuardTable for the
// identifiers referenced within before handing the Definition to the
// interpreter.
func Load(data []byte) (*Definition, error) {
	var wire struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Root    *State `yaml:"root"`
	}
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("machine: yaml unmarshal: %w", err)
	}
	return New(wire.Name, wire.Version, wire.Root), nil
}
