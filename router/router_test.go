package router

import (
	"context"
	"testing"

	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/orchestration"
	"github.com/comalice/xorca/schema"
	"github.com/comalice/xorca/store"
	"github.com/comalice/xorca/store/memstore"
	"github.com/comalice/xorca/subject"
)

func demoDef(version string) *machine.Definition {
	greenEmit := machine.FixedEmit("light.green", nil)
	green := &machine.State{ID: "green", Type: machine.Compound, Emit: &greenEmit}
	red := &machine.State{ID: "red", Type: machine.Compound, On: map[string][]machine.Transition{
		"evt.go": {{Target: "root.green"}},
	}}
	root := &machine.State{ID: "root", Type: machine.Compound, Initial: "red",
		Children: map[string]*machine.State{"red": red, "green": green}}
	return machine.New("traffic", version, root)
}

func newTestRouter(t *testing.T) (*Router, *memstore.Store) {
	t.Helper()
	ms := memstore.New(0)
	r, err := New("traffic", ms, ms, store.ModeReadWrite, []MachineVersion{
		{Version: "1.0.0", Def: demoDef("1.0.0"), Actions: machine.ActionTable{}, Guards: machine.GuardTable{}},
	}, WithInitialContextSchema(schema.Required()), WithErrorOnNotFound(true))
	if err != nil {
		t.Fatal(err)
	}
	return r, ms
}

func TestRouter_DuplicateVersionFailsConstruction(t *testing.T) {
	ms := memstore.New(0)
	_, err := New("traffic", ms, ms, store.ModeNone, []MachineVersion{
		{Version: "1.0.0", Def: demoDef("1.0.0"), Actions: machine.ActionTable{}, Guards: machine.GuardTable{}},
		{Version: "1.0.0", Def: demoDef("1.0.0"), Actions: machine.ActionTable{}, Guards: machine.GuardTable{}},
	})
	if err == nil {
		t.Fatal("expected duplicate version construction failure")
	}
}

func TestRouter_InitThenContinuation(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	startEnvs := []orchestration.Envelope{{Type: "xorca.traffic.start", Data: map[string]any{}}}
	out := r.Handle(ctx, startEnvs)
	if len(out) != 0 {
		// The demo machine's initial state ("red") has no Emit
		// declaration, so init itself produces no outbound envelopes;
		// a non-empty result here would be a regression.
		t.Fatalf("expected no outbound envelopes from an Emit-less init, got %v", out)
	}

	// Discover the minted subject the way a real caller would: by
	// replaying init with a processId the test controls.
	startWithID := []orchestration.Envelope{{Type: "xorca.traffic.start", Data: map[string]any{"processId": "p-test", "context": map[string]any{}}}}
	if out := r.Handle(ctx, startWithID); len(out) != 0 {
		t.Fatalf("expected no outbound envelopes, got %v", out)
	}

	encoded := subject.Encode("p-test", "traffic", "1.0.0")

	cont := []orchestration.Envelope{{Type: "evt.go", Subject: encoded}}
	out3 := r.Handle(ctx, cont)
	if len(out3) != 1 || out3[0].Type != "light.green" {
		t.Fatalf("expected a single light.green envelope from continuation, got %v", out3)
	}

	unknown := []orchestration.Envelope{{Type: "bogus.type", Subject: "whatever"}}
	out2 := r.Handle(ctx, unknown)
	if len(out2) != 1 {
		t.Fatalf("expected a single unroutable-event error envelope, got %v", out2)
	}
}

func TestRouter_ContinuationWithUndecodableSubjectFails(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()
	out := r.Handle(ctx, []orchestration.Envelope{{Type: "evt.go", Subject: "not-valid-base64!!"}})
	if len(out) != 1 {
		t.Fatalf("expected a single decode-failure error envelope, got %v", out)
	}
}
