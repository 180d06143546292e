package builder

import (
	"testing"

	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/schema"
)

func TestBuilder_TrafficLight(t *testing.T) {
	b := New("traffic", "1.0.0", "root", "red")
	b.State("root.red").On("go", "root.green")
	b.State("root.green").On("caution", "root.yellow")
	b.State("root.yellow").On("stop", "root.red")

	def, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if def.Root.Initial != "red" {
		t.Fatalf("expected root initial child 'red', got %q", def.Root.Initial)
	}
	st, err := def.FindByPath("root.green")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.On["caution"]) != 1 || st.On["caution"][0].Target != "root.yellow" {
		t.Fatalf("expected green's caution transition to yellow, got %v", st.On["caution"])
	}
}

func TestBuilder_ParallelWithOnDone(t *testing.T) {
	b := New("checkout", "1.0.0", "root", "work")
	b.State("root.work").Parallel()
	b.State("root.work.payment").Compound("pending")
	b.State("root.work.payment.pending").On("pay", "root.work.payment.paid")
	b.State("root.work.payment.paid").Final()
	b.State("root.work.shipping").Compound("pending")
	b.State("root.work.shipping.pending").On("ship", "root.work.shipping.shipped")
	b.State("root.work.shipping.shipped").Final()
	b.State("root.work").OnDone("root.done")
	b.State("root.done").Final()

	def, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	work, err := def.FindByPath("root.work")
	if err != nil {
		t.Fatal(err)
	}
	if work.Type != machine.Parallel {
		t.Fatalf("expected root.work to be Parallel, got %v", work.Type)
	}
	if work.OnDone == nil || work.OnDone.Target != "root.done" {
		t.Fatalf("expected root.work.OnDone -> root.done, got %v", work.OnDone)
	}
}

func TestBuilder_InvalidTransitionTargetFailsValidate(t *testing.T) {
	b := New("broken", "1.0.0", "root", "a")
	b.State("root.a").On("go", "root.nonexistent")
	b.State("root.b").Final()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected build to fail validation on an unresolvable transition target")
	}
}

func TestBuilder_InitialContextSchema(t *testing.T) {
	b := New("order", "1.0.0", "root", "idle")
	b.InitialContextSchema(schema.Required("orderId"))
	b.State("root.idle").Final()

	def, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := def.InitialContextSchema.Validate(map[string]any{}); err == nil {
		t.Fatal("expected missing orderId to fail the declared initial-context schema")
	}
}
