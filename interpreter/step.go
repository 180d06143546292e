package interpreter

import (
	"time"

	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/xorcaerr"
)

func defaultClock() int64 { return time.Now().UnixMilli() }

// Init constructs the initial Snapshot for a Definition (spec section 4.3
// step 1): descend from the root entering every Initial child of a
// Compound and every region of a Parallel, stopping at leaves; seed
// context with the caller-supplied input plus the reserved fields; and
// collect emissions for every entered state.
func Init(def *machine.Definition, actions machine.ActionTable, input map[string]any, traceID string, clock Clock) (*Snapshot, []EmittedEvent, error) {
	if clock == nil {
		clock = defaultClock
	}
	entered, leaves := descend(def.Root)

	ctx := map[string]any{}
	for k, v := range input {
		ctx[k] = v
	}
	ctx[KeyTraceID] = traceID
	ctx[KeyMachineLogs] = []any{}
	ctx[KeyCumulativeExecutionUnits] = 0

	now := clock()
	snap := &Snapshot{
		Value:   leaves,
		Context: ctx,
		Status:  StatusActive,
		History: []HistoryEntry{{EventType: "init", StartMs: now, CheckpointMs: now, ElapsedMs: 0}},
		Logs: []LogEntry{{
			EventType:     "init",
			Matched:       true,
			EnteredStates: leaves,
			TimestampMs:   now,
		}},
		TraceID: traceID,
	}

	initEv := machine.Event{Type: "init"}
	var emitted []EmittedEvent
	for _, s := range entered {
		if s.Entry != nil {
			updated, err := runActions(s.Entry, actions, snap.Context, initEv, clock)
			if err != nil {
				return nil, nil, err
			}
			snap.Context = updated
		}
		if e, ok := emit(s, snap.Context, initEv); ok {
			emitted = append(emitted, e)
		}
	}

	leafStates_, err := leafStates(def, snap.Value)
	if err != nil {
		return nil, nil, err
	}
	if isDone(leafStates_) {
		snap.Status = StatusDone
	}
	return snap, emitted, nil
}

// Step applies ev to prev (spec section 4.3 steps 2-8), returning the new
// Snapshot and the events newly-entered states emit. The state paths newly
// entered are recorded in the EnteredStates of the log entry Step appends
// to the new Snapshot.
//
// An event matching no transition anywhere is ignored: the active
// configuration and context are unchanged, but the framework-owned
// history/logs bookkeeping in step 8 still runs (spec section 8, scenario
// "unknown event ignored").
func Step(def *machine.Definition, actions machine.ActionTable, guards machine.GuardTable, prev *Snapshot, ev machine.Event, clock Clock) (*Snapshot, []EmittedEvent, error) {
	if clock == nil {
		clock = defaultClock
	}
	if prev.Status != StatusActive {
		return nil, nil, xorcaerr.New(xorcaerr.ActionFailure, "cannot step a snapshot that is not active")
	}

	snap := prev.clone()
	start := int64(0)
	if len(prev.History) > 0 {
		start = prev.History[0].StartMs
	}
	now := clock()

	e, err := findMatch(def, snap.Value, snap.Context, ev, guards)
	if err != nil {
		return nil, nil, err
	}

	var allEntered []*machine.State
	matched := false

	if e != nil {
		data := ev.Data
		if e.trans.Transformer != nil {
			data = e.trans.Transformer(data)
		}
		transformedEv := machine.Event{Type: ev.Type, Data: data}
		if e.trans.EventSchema != nil {
			if verr := e.trans.EventSchema.Validate(data); verr != nil {
				return nil, nil, xorcaerr.Wrap(xorcaerr.SchemaViolation, "event data failed declared schema", verr).WithEventData(ev.Data)
			}
		}

		newLeaves, exited, entered, aerr := applyEdge(def, snap.Value, e)
		if aerr != nil {
			return nil, nil, aerr
		}

		for _, s := range exited {
			if s.Exit != nil {
				ctx, rerr := runActions(s.Exit, actions, snap.Context, transformedEv, clock)
				if rerr != nil {
					return nil, nil, rerr
				}
				snap.Context = ctx
			}
		}

		if len(e.trans.Actions) > 0 {
			ctx, rerr := runActions(e.trans.Actions, actions, snap.Context, transformedEv, clock)
			if rerr != nil {
				return nil, nil, rerr
			}
			snap.Context = ctx
		}

		for _, s := range entered {
			if s.Entry != nil {
				ctx, rerr := runActions(s.Entry, actions, snap.Context, transformedEv, clock)
				if rerr != nil {
					return nil, nil, rerr
				}
				snap.Context = ctx
			}
		}

		snap.Value = newLeaves
		allEntered = append(allEntered, entered...)
		matched = true
	}

	// onDone micro-steps: keep firing until no Parallel region settles
	// newly (spec section 4.3 step 6).
	triggered := map[string]bool{}
	for {
		done, derr := findOnDone(def, snap.Value, triggered)
		if derr != nil {
			return nil, nil, derr
		}
		if done == nil {
			break
		}
		triggered[done.sourcePath] = true
		newLeaves, exited, entered, aerr := applyEdge(def, snap.Value, done)
		if aerr != nil {
			return nil, nil, aerr
		}
		doneEv := machine.Event{Type: "__done." + done.sourcePath}
		for _, s := range exited {
			if s.Exit != nil {
				ctx, rerr := runActions(s.Exit, actions, snap.Context, doneEv, clock)
				if rerr != nil {
					return nil, nil, rerr
				}
				snap.Context = ctx
			}
		}
		if len(done.trans.Actions) > 0 {
			ctx, rerr := runActions(done.trans.Actions, actions, snap.Context, doneEv, clock)
			if rerr != nil {
				return nil, nil, rerr
			}
			snap.Context = ctx
		}
		for _, s := range entered {
			if s.Entry != nil {
				ctx, rerr := runActions(s.Entry, actions, snap.Context, doneEv, clock)
				if rerr != nil {
					return nil, nil, rerr
				}
				snap.Context = ctx
			}
		}
		snap.Value = newLeaves
		allEntered = append(allEntered, entered...)
	}

	// Snapshot diffing (spec section 4.3): only genuinely newly-entered
	// states emit. Re-entry into an already-active parallel region within
	// the same activation does not re-emit.
	emittedDedup := map[string]bool{}
	var emitted []EmittedEvent
	for _, s := range allEntered {
		if emittedDedup[s.Path()] {
			continue
		}
		emittedDedup[s.Path()] = true
		if e, ok := emit(s, snap.Context, ev); ok {
			emitted = append(emitted, e)
		}
	}

	leafStates_, lerr := leafStates(def, snap.Value)
	if lerr != nil {
		return nil, nil, lerr
	}
	if isDone(leafStates_) {
		snap.Status = StatusDone
	}

	elapsed := now - start
	snap.History = append(snap.History, HistoryEntry{
		EventType:    ev.Type,
		StartMs:      start,
		CheckpointMs: now,
		ElapsedMs:    elapsed,
	})
	var enteredPaths []string
	for _, s := range allEntered {
		enteredPaths = append(enteredPaths, s.Path())
	}
	snap.Logs = append(snap.Logs, LogEntry{
		EventType:     ev.Type,
		Matched:       matched,
		EnteredStates: enteredPaths,
		TimestampMs:   now,
	})
	snap.ExecutionUnits++
	switch cu := snap.Context[KeyCumulativeExecutionUnits].(type) {
	case int:
		snap.Context[KeyCumulativeExecutionUnits] = cu + 1
	case float64: // a snapshot rehydrated from JSON carries numbers as float64
		snap.Context[KeyCumulativeExecutionUnits] = int(cu) + 1
	default:
		snap.Context[KeyCumulativeExecutionUnits] = 1
	}

	return snap, emitted, nil
}
