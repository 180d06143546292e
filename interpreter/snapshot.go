// Package interpreter implements the state-machine interpreter: given a
// machine definition, a prior snapshot, and an inbound event, it produces a
// new snapshot, the set of newly-entered state paths, and the outbound
// events those entries emit (spec section 4.3). The interpreter is a pure,
// synchronous function of (definition, snapshot, event) -> (snapshot,
// emissions); it never suspends and owns no I/O (spec section 9,
// "Coroutine-free design").
package interpreter

import "github.com/comalice/xorca/machine"

// Status is the snapshot's lifecycle status (spec section 3, invariant
// I3).
type Status string

const (
	StatusActive Status = "active"
	StatusDone   Status = "done"
	StatusError  Status = "error"
)

// HistoryEntry records one processed event's timing (spec section 3). The
// very first entry for any snapshot has EventType "init" (invariant I4).
type HistoryEntry struct {
	EventType    string `json:"eventType"`
	StartMs      int64  `json:"startMs"`
	CheckpointMs int64  `json:"checkpointMs"`
	ElapsedMs    int64  `json:"elapsedMs"`
}

// LogEntry is one append-only log record (spec section 3's "logs" field).
// Framework-owned entries are emitted automatically once per processed
// event. Note is optional free text; the updateLogs built-in action does
// not write here, it appends to the __machineLogs context key instead.
type LogEntry struct {
	EventType     string   `json:"eventType"`
	Matched       bool     `json:"matched"`
	EnteredStates []string `json:"enteredStates,omitempty"`
	TimestampMs   int64    `json:"timestampMs"`
	Note          string   `json:"note,omitempty"`
}

// Snapshot is the per-process persisted state (spec section 3). Value is
// the set of active leaf paths: because compound states have exactly one
// active child and parallel states have one active child per region, the
// leaf set alone determines the full configuration given the Definition —
// the same representation the teacher's own MachineSnapshot.Current uses.
type Snapshot struct {
	Value          []string         `json:"value"`
	Context        map[string]any   `json:"context"`
	Status         Status           `json:"status"`
	History        []HistoryEntry   `json:"history"`
	Logs           []LogEntry       `json:"logs"`
	ExecutionUnits int              `json:"executionUnits"`
	TraceID        string           `json:"traceId"`
}

// Reserved context keys the interpreter owns exclusively (spec section
// 4.3); machine authors must not read or write them directly.
const (
	KeyTraceID                  = "__traceId"
	KeyMachineLogs              = "__machineLogs"
	KeyCloudEvent               = "__cloudevent"
	KeyOrchestrationTime        = "__orchestrationTime"
	KeyCumulativeExecutionUnits = "__cumulativeExecutionUnits"
)

// EmittedEvent is one outbound event materialized by a newly-entered
// state's Emit declaration (spec section 4.3 step 7).
type EmittedEvent struct {
	StatePath string
	Type      string
	Data      any
}

// Clock abstracts time.Now for deterministic tests; timestamps are
// explicitly excluded from the snapshot-determinism property (spec section
// 8), so production code is free to use a real wall clock.
type Clock func() (unixMs int64)

func (s *Snapshot) clone() *Snapshot {
	cp := &Snapshot{
		Status:         s.Status,
		ExecutionUnits: s.ExecutionUnits,
		TraceID:        s.TraceID,
	}
	cp.Value = append([]string(nil), s.Value...)
	cp.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		cp.Context[k] = v
	}
	cp.History = append([]HistoryEntry(nil), s.History...)
	cp.Logs = append([]LogEntry(nil), s.Logs...)
	return cp
}

// leafStates resolves the Snapshot's active Value paths to machine.State
// pointers, in the same order.
func leafStates(def *machine.Definition, value []string) ([]*machine.State, error) {
	out := make([]*machine.State, 0, len(value))
	for _, path := range value {
		s, err := def.FindByPath(path)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// isDone implements invariant I3: done iff every leaf of the active
// configuration is Final.
func isDone(leaves []*machine.State) bool {
	if len(leaves) == 0 {
		return false
	}
	for _, s := range leaves {
		if s.Type != machine.Final {
			return false
		}
	}
	return true
}
