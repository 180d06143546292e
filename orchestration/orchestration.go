package orchestration

import (
	"fmt"
	"strings"

	"github.com/comalice/xorca/actor"
	"github.com/comalice/xorca/interpreter"
	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/subject"
	"github.com/comalice/xorca/xorcaerr"
)

// EventTransformer adapts inbound envelope data before it reaches the
// interpreter as machine event data (spec section 4.5,
// onOrchestrationEvent).
type EventTransformer func(data map[string]any) map[string]any

// StateMiddleware produces the {type, data} pair for an outbound envelope
// when its owning state is newly entered (spec section 4.5,
// onOrchestrationState). It runs only for states whose own machine.Emit
// declaration produced an event, and replaces that event's {type, data};
// a newly entered state with no Emit declaration never reaches its
// middleware.
type StateMiddleware func(ctx map[string]any, ev machine.Event) (eventType string, data any)

// Actor wraps a persistent actor.Actor with the envelope translation
// layer spec section 4.5 describes.
type Actor struct {
	inner   *actor.Actor
	subj    subject.Subject
	name    string
	version string
	source  string

	onEvent map[string]EventTransformer
	onState map[string]StateMiddleware

	lastTraceParent string
	lastTraceState  string
}

// New wraps inner with envelope semantics for a machine named name at
// version, identified by subj. Every outbound envelope's `source`
// attribute is "/orchestrationActor/xstate/<name>/<version>/" (spec
// section 4.5).
func New(inner *actor.Actor, subj subject.Subject, name, version string, onEvent map[string]EventTransformer, onState map[string]StateMiddleware) *Actor {
	if onEvent == nil {
		onEvent = map[string]EventTransformer{}
	}
	if onState == nil {
		onState = map[string]StateMiddleware{}
	}
	return &Actor{
		inner:   inner,
		subj:    subj,
		name:    name,
		version: version,
		source:  fmt.Sprintf("/orchestrationActor/xstate/%s/%s/", name, version),
		onEvent: onEvent,
		onState: onState,
	}
}

// Inner exposes the wrapped persistent actor, for callers (the router)
// that need to drive Init/Start/Save/Close directly.
func (a *Actor) Inner() *actor.Actor { return a.inner }

// Dispatch implements spec section 4.5's dispatch operation: validate the
// envelope's content type, check statemachineversion agreement, apply any
// registered onOrchestrationEvent transformer, inject the raw envelope
// under the reserved __cloudevent context key, then step the wrapped
// actor.
func (a *Actor) Dispatch(env Envelope) error {
	if !ValidContentType(env.DataContentType) {
		return xorcaerr.New(xorcaerr.InvalidContentType, fmt.Sprintf("unsupported datacontenttype %q", env.DataContentType)).WithEventData(env.Data)
	}
	if env.StateMachineVersion != "" && env.StateMachineVersion != a.version {
		return xorcaerr.New(xorcaerr.VersionMismatch, fmt.Sprintf("envelope targets version %q, actor is running %q", env.StateMachineVersion, a.version))
	}
	a.lastTraceParent, a.lastTraceState = env.TraceParent, env.TraceState

	data := env.Data
	if t, ok := a.onEvent[env.Type]; ok && t != nil {
		data = t(data)
	}

	if snap := a.inner.Snapshot(); snap != nil {
		snap.Context[interpreter.KeyCloudEvent] = env
	}

	return a.inner.Step(machine.Event{Type: env.Type, Data: data})
}

// EmittedEnvelopes implements spec section 4.5's emittedEnvelopes
// operation: renders every event emitted so far this activation into an
// outbound Envelope, running onOrchestrationState for any state path it
// covers (which overrides the machine.Emit-declared {type, data}).
func (a *Actor) EmittedEnvelopes(idFactory func() string) []Envelope {
	emitted := a.inner.Emitted()
	out := make([]Envelope, 0, len(emitted))
	ctx := map[string]any{}
	if snap := a.inner.Snapshot(); snap != nil {
		ctx = snap.Context
	}
	for _, e := range emitted {
		t, data := e.Type, e.Data
		statePath := dottedStatePath(e.StatePath)
		if mw, ok := a.onState[statePath]; ok && mw != nil {
			t, data = mw(ctx, machine.Event{Type: e.Type})
		}
		dataMap, _ := data.(map[string]any)
		out = append(out, Envelope{
			ID:                  idFactory(),
			Type:                t,
			Source:              a.source,
			Subject:             a.subj.String(),
			DataContentType:     EnvelopeContentType,
			Data:                dataMap,
			TraceParent:         a.lastTraceParent,
			TraceState:          a.lastTraceState,
			StateMachineVersion: a.version,
		})
	}
	return out
}

// dottedStatePath renders a machine.State.Path()-style dotted path (e.g.
// "root.work.a.a1") into the `#A.#B.leaf` form onOrchestrationState keys
// are registered under (spec section 4.5): the implicit root segment is
// dropped, the leaf itself is never `#`-prefixed, and every ancestor
// between them is. A state directly under root renders as its bare ID.
func dottedStatePath(path string) string {
	segs := strings.Split(path, ".")
	if len(segs) <= 2 {
		return segs[len(segs)-1]
	}
	middle := segs[1 : len(segs)-1]
	leaf := segs[len(segs)-1]
	prefixed := make([]string, len(middle))
	for i, m := range middle {
		prefixed[i] = "#" + m
	}
	return strings.Join(append(prefixed, leaf), ".")
}
