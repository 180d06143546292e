package interpreter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/xorcaerr"
)

// edge is one resolved transition ready to be applied: the ancestor state
// that declared it (sourcePath, which may be the triggering leaf itself or
// any of its ancestors), its target path, and the Transition value (for
// its Actions/Guard/Transformer).
type edge struct {
	sourcePath string
	target     string
	trans      machine.Transition
}

// findMatch implements spec section 4.3 step 2-3: for each currently
// active leaf (innermost first), walk ancestors until an event-matching,
// guard-satisfied transition is found. The first one found under this
// ordering wins outright (spec's tie-break rule).
func findMatch(def *machine.Definition, leaves []string, ctx map[string]any, ev machine.Event, guards machine.GuardTable) (*edge, error) {
	for _, leaf := range byDepthDesc(leaves) {
		for _, ancestorPath := range ancestorChainLeafFirst(leaf) {
			state, err := def.FindByPath(ancestorPath)
			if err != nil {
				return nil, err
			}
			candidates, ok := state.On[ev.Type]
			if !ok {
				continue
			}
			for _, t := range candidates {
				if !guardSatisfied(t.Guard, guards, ctx, ev) {
					continue
				}
				return &edge{sourcePath: ancestorPath, target: t.Target, trans: t}, nil
			}
		}
	}
	return nil, nil
}

func guardSatisfied(id machine.GuardID, table machine.GuardTable, ctx map[string]any, ev machine.Event) bool {
	if id == "" {
		return true
	}
	fn, ok := table[id]
	if !ok {
		return false // unregistered guards fail closed
	}
	return fn(ctx, ev)
}

// applyEdge computes the exit/entry sets for one edge and returns the new
// active-leaf set. exited is in reverse document order (deepest first),
// the order Step runs exit actions in;
// entry order is document order (outer first, down to the newly settled
// leaves) (spec section 4.3 step 4).
func applyEdge(def *machine.Definition, leaves []string, e *edge) (newLeaves []string, exited, entered []*machine.State, err error) {
	lcca := computeLCCA(e.sourcePath, e.target)

	removedSet := map[string]bool{}
	for _, l := range leaves {
		if l == e.sourcePath || strings.HasPrefix(l, e.sourcePath+".") {
			for _, anc := range exitChain(l, computeLCCA(e.sourcePath, l)) {
				removedSet[anc] = true
			}
			removedSet[e.sourcePath] = true
		}
	}
	for _, p := range exitChain(e.sourcePath, lcca) {
		removedSet[p] = true
	}

	exitedPaths := make([]string, 0, len(removedSet))
	for p := range removedSet {
		exitedPaths = append(exitedPaths, p)
	}
	sort.Slice(exitedPaths, func(i, j int) bool {
		di, dj := strings.Count(exitedPaths[i], "."), strings.Count(exitedPaths[j], ".")
		if di != dj {
			return di > dj
		}
		return exitedPaths[i] < exitedPaths[j]
	})
	for _, p := range exitedPaths {
		st, ferr := def.FindByPath(p)
		if ferr != nil {
			return nil, nil, nil, ferr
		}
		exited = append(exited, st)
	}

	targetState, terr := def.FindByPath(e.target)
	if terr != nil {
		return nil, nil, nil, terr
	}

	var entryAncestors []*machine.State
	for _, p := range entryChainExclusive(lcca, e.target) {
		st, ferr := def.FindByPath(p)
		if ferr != nil {
			return nil, nil, nil, ferr
		}
		entryAncestors = append(entryAncestors, st)
	}
	descended, targetLeaves := descend(targetState)
	entered = append(entryAncestors, descended...)

	kept := make([]string, 0, len(leaves))
	for _, l := range leaves {
		if !removedSet[l] {
			kept = append(kept, l)
		}
	}
	newLeaves = append(kept, targetLeaves...)
	return newLeaves, exited, entered, nil
}

// entryChainExclusive is entryChain without the final (target) segment,
// since descend(targetState) supplies target itself as its first entered
// state.
func entryChainExclusive(lcca, target string) []string {
	full := entryChain(lcca, target)
	if len(full) == 0 {
		return nil
	}
	return full[:len(full)-1]
}

// findOnDone implements spec section 4.3 step 6: a Parallel state whose
// every region has settled on a Final leaf triggers its OnDone transition.
// triggered tracks Parallel paths already fired within this Step so a
// settled region isn't retriggered on a later micro-step.
func findOnDone(def *machine.Definition, leaves []string, triggered map[string]bool) (*edge, error) {
	seen := map[string]bool{}
	for _, leaf := range leaves {
		st, err := def.FindByPath(leaf)
		if err != nil {
			return nil, err
		}
		for _, anc := range st.Ancestors() {
			if anc.Type != machine.Parallel || anc.OnDone == nil {
				continue
			}
			path := anc.Path()
			if seen[path] || triggered[path] {
				continue
			}
			seen[path] = true
			if parallelSettled(def, anc, leaves) {
				return &edge{sourcePath: path, target: anc.OnDone.Target, trans: *anc.OnDone}, nil
			}
		}
	}
	return nil, nil
}

// parallelSettled reports whether every region (direct child) of p has an
// active leaf of Type Final.
func parallelSettled(def *machine.Definition, p *machine.State, leaves []string) bool {
	for _, regionID := range sortedChildIDs(p) {
		region := p.Children[regionID]
		regionDone := false
		for _, l := range leaves {
			if l == region.Path() || strings.HasPrefix(l, region.Path()+".") {
				st, err := def.FindByPath(l)
				if err == nil && st.Type == machine.Final {
					regionDone = true
				}
			}
		}
		if !regionDone {
			return false
		}
	}
	return true
}

// runActions runs a list of ActionIDs (falling back to built-ins), merging
// each yielded delta into context in order; it returns the updated context
// or a wrapped xorcaerr.ActionFailure.
func runActions(ids []machine.ActionID, table machine.ActionTable, ctx map[string]any, ev machine.Event, clock Clock) (map[string]any, error) {
	for _, id := range ids {
		fn, ok := table[id]
		if !ok {
			fn, ok = builtins(clock)[id]
		}
		if !ok {
			return ctx, xorcaerr.New(xorcaerr.ActionFailure, fmt.Sprintf("unregistered action %q", id))
		}
		delta, err := fn(ctx, ev)
		if err != nil {
			return ctx, xorcaerr.Wrap(xorcaerr.ActionFailure, fmt.Sprintf("action %q failed", id), err)
		}
		for k, v := range delta {
			ctx[k] = v
		}
	}
	return ctx, nil
}

func builtins(clock Clock) machine.ActionTable {
	return machine.ActionTable{
		machine.BuiltinUpdateContext: func(ctx map[string]any, ev machine.Event) (map[string]any, error) {
			delta := map[string]any{}
			for k, v := range ev.Data {
				if k == "type" {
					continue
				}
				delta[k] = v
			}
			return delta, nil
		},
		machine.BuiltinUpdateLogs: func(ctx map[string]any, ev machine.Event) (map[string]any, error) {
			raw, _ := ctx[KeyMachineLogs].([]any)
			raw = append(raw, map[string]any{"eventType": ev.Type, "timestampMs": clock()})
			return map[string]any{KeyMachineLogs: raw}, nil
		},
		machine.BuiltinUpdateCheckpoint: func(ctx map[string]any, ev machine.Event) (map[string]any, error) {
			raw, _ := ctx[KeyOrchestrationTime].([]any)
			raw = append(raw, map[string]any{"eventType": ev.Type, "timestampMs": clock()})
			return map[string]any{KeyOrchestrationTime: raw}, nil
		},
	}
}

// emit materializes the {type, data} pair for a newly-entered state's Emit
// declaration, if any.
func emit(s *machine.State, ctx map[string]any, ev machine.Event) (EmittedEvent, bool) {
	if s.Emit == nil || s.Emit.Func == nil {
		return EmittedEvent{}, false
	}
	t, data := s.Emit.Func(ctx, ev)
	return EmittedEvent{StatePath: s.Path(), Type: t, Data: data}, true
}
