// Package builder provides a fluent API for constructing machine.Definition
// trees using dotted string state names instead of hand-built
// machine.State literals (spec section 3's tree is plain data; this
// package is the ergonomic front door to it). Grounded on the teacher's
// root-level MachineBuilder/StateBuilder (builder.go): the same
// dot-notation auto-parenting and deferred validate-then-build flow,
// retargeted from int StateIDs onto machine.State's native dotted paths.
package builder

import (
	"fmt"
	"strings"

	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/schema"
)

// MachineBuilder accumulates named states and their configuration, then
// produces a validated machine.Definition.
type MachineBuilder struct {
	name    string
	version string
	root    *machine.State
	states  map[string]*machine.State
	rootID  string
	initSch *schema.Schema
}

// StateBuilder configures one state registered against a MachineBuilder.
type StateBuilder struct {
	b     *MachineBuilder
	state *machine.State
	path  string
}

// New starts a builder for a machine named name at version, whose root
// state is called rootID and enters initialChild by default.
func New(name, version, rootID, initialChild string) *MachineBuilder {
	root := &machine.State{ID: rootID, Type: machine.Compound, Initial: initialChild, Children: map[string]*machine.State{}}
	b := &MachineBuilder{
		name:    name,
		version: version,
		root:    root,
		states:  map[string]*machine.State{rootID: root},
		rootID:  rootID,
	}
	return b
}

// InitialContextSchema sets the built Definition's InitialContextSchema.
// The router does not read that field: it validates an init envelope's
// context only against a schema passed with router.WithInitialContextSchema
// (spec section 4.6 step 3).
func (b *MachineBuilder) InitialContextSchema(s *schema.Schema) *MachineBuilder {
	b.initSch = s
	return b
}

// State returns the StateBuilder for the dotted path (e.g.
// "root.work.a"), auto-creating any missing ancestor as a childless
// Compound state (teacher's builder.go State() auto-parenting).
func (b *MachineBuilder) State(path string) *StateBuilder {
	st := b.ensure(path)
	return &StateBuilder{b: b, state: st, path: path}
}

func (b *MachineBuilder) ensure(path string) *machine.State {
	if st, ok := b.states[path]; ok {
		return st
	}
	segs := strings.Split(path, ".")
	if segs[0] != b.rootID {
		panic(fmt.Sprintf("builder: path %q does not start at root %q", path, b.rootID))
	}
	parentPath := b.rootID
	parent := b.root
	for i := 1; i < len(segs); i++ {
		childPath := parentPath + "." + segs[i]
		child, ok := b.states[childPath]
		if !ok {
			child = &machine.State{ID: segs[i], Type: machine.Compound, Children: map[string]*machine.State{}}
			b.states[childPath] = child
			parent.Children[segs[i]] = child
		}
		parent = child
		parentPath = childPath
	}
	return parent
}

// Build validates the accumulated tree (machine.Definition.Validate) and
// returns the finished Definition.
func (b *MachineBuilder) Build() (*machine.Definition, error) {
	def := machine.New(b.name, b.version, b.root)
	def.InitialContextSchema = b.initSch
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Compound marks the state as a Compound container with the given
// initial child (a bare child ID, not a full path).
func (sb *StateBuilder) Compound(initialChild string) *StateBuilder {
	sb.state.Type = machine.Compound
	sb.state.Initial = initialChild
	if sb.state.Children == nil {
		sb.state.Children = map[string]*machine.State{}
	}
	return sb
}

// Parallel marks the state as a Parallel container; its children are its
// regions, all active simultaneously once entered.
func (sb *StateBuilder) Parallel() *StateBuilder {
	sb.state.Type = machine.Parallel
	if sb.state.Children == nil {
		sb.state.Children = map[string]*machine.State{}
	}
	return sb
}

// Final marks the state as Final (no children).
func (sb *StateBuilder) Final() *StateBuilder {
	sb.state.Type = machine.Final
	return sb
}

// Entry appends an entry action ID, run in declaration order whenever
// this state is newly entered.
func (sb *StateBuilder) Entry(ids ...machine.ActionID) *StateBuilder {
	sb.state.Entry = append(sb.state.Entry, ids...)
	return sb
}

// Exit appends an exit action ID, run in declaration order whenever this
// state is exited.
func (sb *StateBuilder) Exit(ids ...machine.ActionID) *StateBuilder {
	sb.state.Exit = append(sb.state.Exit, ids...)
	return sb
}

// Emit declares this state's outbound emission.
func (sb *StateBuilder) Emit(e machine.Emit) *StateBuilder {
	sb.state.Emit = &e
	return sb
}

// On registers a candidate transition for eventType, tried after any
// earlier-registered candidates for the same event on this state (spec
// section 4.3's declaration-order tie-break). target is a full dotted
// path, not a bare child ID.
func (sb *StateBuilder) On(eventType, target string, opts ...TransitionOption) *StateBuilder {
	t := machine.Transition{Target: target}
	for _, o := range opts {
		o(&t)
	}
	if sb.state.On == nil {
		sb.state.On = map[string][]machine.Transition{}
	}
	sb.state.On[eventType] = append(sb.state.On[eventType], t)
	return sb
}

// OnDone registers the transition a Parallel state fires once every
// region has reached a Final child (spec section 4.3 step 6).
func (sb *StateBuilder) OnDone(target string, opts ...TransitionOption) *StateBuilder {
	t := machine.Transition{Target: target}
	for _, o := range opts {
		o(&t)
	}
	sb.state.OnDone = &t
	return sb
}

// TransitionOption configures an individual Transition built by On/OnDone.
type TransitionOption func(*machine.Transition)

func WithGuard(id machine.GuardID) TransitionOption {
	return func(t *machine.Transition) { t.Guard = id }
}

func WithActions(ids ...machine.ActionID) TransitionOption {
	return func(t *machine.Transition) { t.Actions = ids }
}

func WithEventSchema(s *schema.Schema) TransitionOption {
	return func(t *machine.Transition) { t.EventSchema = s }
}

func WithTransformer(fn machine.Transformer) TransitionOption {
	return func(t *machine.Transition) { t.Transformer = fn }
}
