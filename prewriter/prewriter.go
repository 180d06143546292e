// Package prewriter implements the pre-writer hook (spec section 4.7): an
// index projection derived from the bytes an actor is about to write,
// which the underlying store may persist alongside the raw snapshot blob
// for cheap querying. Grounded on the teacher's internal/production
// persister adapters' encode-then-write shape, generalized into a
// read-only projection step run before the write rather than the write
// itself.
package prewriter

import (
	"context"
	"encoding/json"

	"github.com/comalice/xorca/actor"
	"github.com/comalice/xorca/interpreter"
	"github.com/comalice/xorca/subject"
)

// Projection is the auxiliary index record spec section 4.7 describes.
type Projection struct {
	Stage                    json.RawMessage `json:"stage"`
	Status                   string          `json:"status"`
	Context                  json.RawMessage `json:"context"`
	TraceID                  string          `json:"traceId"`
	Name                     string          `json:"name"`
	ProcessID                string          `json:"processId"`
	Version                  string          `json:"version"`
	OrchestrationCheckpoints json.RawMessage `json:"orchestrationCheckpoints"`
	OrchestrationLogs        json.RawMessage `json:"orchestrationLogs"`
}

// Sink receives a successfully computed Projection. Implementations
// decide whether/how to persist it (e.g. writing it to a secondary index
// table); prewriter itself makes no storage decisions.
type Sink func(key string, p Projection)

// New returns an actor.PreWriter that decodes the raw snapshot bytes,
// builds a Projection, and hands it to sink. Any failure (malformed
// bytes, a field that cannot be re-encoded) is swallowed: the hook yields no
// projection and the underlying write proceeds regardless (spec section
// 4.7: "Failure is swallowed and yields an empty projection").
func New(sink Sink) actor.PreWriter {
	return func(ctx context.Context, raw []byte, key string, subj subject.Subject) {
		p, ok := project(raw, subj)
		if !ok {
			return
		}
		sink(key, p)
	}
}

func project(raw []byte, subj subject.Subject) (Projection, bool) {
	var snap interpreter.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Projection{}, false
	}

	stage, err := json.Marshal(snap.Value)
	if err != nil {
		return Projection{}, false
	}

	ctx := map[string]any{}
	for k, v := range snap.Context {
		if isReservedKey(k) {
			continue
		}
		ctx[k] = v
	}
	ctxJSON, err := json.Marshal(ctx)
	if err != nil {
		return Projection{}, false
	}

	checkpoints, err := json.Marshal(snap.History)
	if err != nil {
		return Projection{}, false
	}
	logs, err := json.Marshal(snap.Logs)
	if err != nil {
		return Projection{}, false
	}

	return Projection{
		Stage:                    stage,
		Status:                   string(snap.Status),
		Context:                  ctxJSON,
		TraceID:                  snap.TraceID,
		Name:                     subj.Name,
		ProcessID:                subj.ProcessID,
		Version:                  subj.Version,
		OrchestrationCheckpoints: checkpoints,
		OrchestrationLogs:        logs,
	}, true
}

func isReservedKey(k string) bool {
	switch k {
	case interpreter.KeyTraceID, interpreter.KeyMachineLogs, interpreter.KeyCloudEvent,
		interpreter.KeyOrchestrationTime, interpreter.KeyCumulativeExecutionUnits:
		return true
	default:
		return false
	}
}
