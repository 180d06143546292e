package orchestration

import (
	"context"
	"testing"

	"github.com/comalice/xorca/actor"
	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/store"
	"github.com/comalice/xorca/store/memstore"
	"github.com/comalice/xorca/subject"
)

func demoDef() *machine.Definition {
	greenEmit := machine.FixedEmit("light.green", nil)
	green := &machine.State{ID: "green", Type: machine.Compound, Emit: &greenEmit, On: map[string][]machine.Transition{
		"caution": {{Target: "root.yellow"}},
	}}
	yellow := &machine.State{ID: "yellow", Type: machine.Compound}
	red := &machine.State{ID: "red", Type: machine.Compound, On: map[string][]machine.Transition{
		"go": {{Target: "root.green"}},
	}}
	root := &machine.State{ID: "root", Type: machine.Compound, Initial: "red",
		Children: map[string]*machine.State{"red": red, "green": green, "yellow": yellow}}
	return machine.New("traffic", "1.0.0", root)
}

func newOrchestrationActor(t *testing.T) *Actor {
	t.Helper()
	ms := memstore.New(0)
	subj, _ := subject.New("p1", "traffic", "1.0.0")
	inner := actor.New(demoDef(), machine.ActionTable{}, machine.GuardTable{}, ms, ms, store.ModeNone, store.RetryOptions{}, subj)
	if err := inner.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := inner.Start(nil, "trace-1"); err != nil {
		t.Fatal(err)
	}
	return New(inner, subj, "traffic", "1.0.0", nil, nil)
}

func TestDispatch_VersionMismatchRejected(t *testing.T) {
	a := newOrchestrationActor(t)
	err := a.Dispatch(Envelope{Type: "go", StateMachineVersion: "2.0.0"})
	if err == nil {
		t.Fatal("expected a version mismatch error")
	}
}

func TestDispatch_StepsAndCollectsEmittedEnvelopes(t *testing.T) {
	a := newOrchestrationActor(t)
	if err := a.Dispatch(Envelope{Type: "go"}); err != nil {
		t.Fatal(err)
	}
	n := 0
	ids := func() string { n++; return "id-" + string(rune('0'+n)) }
	envs := a.EmittedEnvelopes(ids)
	if len(envs) != 1 || envs[0].Type != "light.green" {
		t.Fatalf("expected a single light.green envelope, got %v", envs)
	}
	if envs[0].Source != "/orchestrationActor/xstate/traffic/1.0.0/" {
		t.Fatalf("unexpected source: %s", envs[0].Source)
	}
}

func TestDottedStatePath(t *testing.T) {
	cases := map[string]string{
		"root.idle":         "idle",
		"root.work.a.a1":    "#work.#a.a1",
		"root.work.a.b.leaf": "#work.#a.#b.leaf",
	}
	for in, want := range cases {
		if got := dottedStatePath(in); got != want {
			t.Errorf("dottedStatePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOnStateMiddlewareOverridesEmit(t *testing.T) {
	ms := memstore.New(0)
	subj, _ := subject.New("p1", "traffic", "1.0.0")
	inner := actor.New(demoDef(), machine.ActionTable{}, machine.GuardTable{}, ms, ms, store.ModeNone, store.RetryOptions{}, subj)
	if err := inner.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := inner.Start(nil, "trace-1"); err != nil {
		t.Fatal(err)
	}
	onState := map[string]StateMiddleware{
		"green": func(ctx map[string]any, ev machine.Event) (string, any) {
			return "overridden.green", map[string]any{"overridden": true}
		},
	}
	a := New(inner, subj, "traffic", "1.0.0", nil, onState)
	if err := a.Dispatch(Envelope{Type: "go"}); err != nil {
		t.Fatal(err)
	}
	envs := a.EmittedEnvelopes(func() string { return "id" })
	if len(envs) != 1 || envs[0].Type != "overridden.green" {
		t.Fatalf("expected middleware override, got %v", envs)
	}
}
