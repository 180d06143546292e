// Command demo walks the "summary" machine from spec section 8's
// happy-path scenario end to end: FetchData -> Summarize -> a parallel
// Checks state (Grounded/Compliant regions) -> Done, driven entirely
// through the router the way a real event-loop consumer would, using an
// in-memory store. Grounded on the teacher's cmd/demo/main.go (construct
// a machine with the builder, drive it with a scripted event sequence,
// print state transitions as they happen) retargeted from a free-running
// ticker loop onto the router's envelope-in/envelope-out contract.
package main

import (
	"context"
	"fmt"

	"github.com/comalice/xorca/builder"
	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/orchestration"
	"github.com/comalice/xorca/router"
	"github.com/comalice/xorca/schema"
	"github.com/comalice/xorca/store"
	"github.com/comalice/xorca/store/memstore"
)

func summaryMachine() *machine.Definition {
	b := builder.New("summary", "1.0.0", "root", "FetchData")
	b.InitialContextSchema(schema.Required("bookId"))

	b.State("root.FetchData").
		Emit(machine.FunctionEmit(func(ctx map[string]any, _ machine.Event) (string, any) {
			return "cmd.book.fetch", map[string]any{"bookId": ctx["bookId"]}
		})).
		On("evt.book.fetch.success", "root.Summarize")

	b.State("root.Summarize").
		Emit(machine.FunctionEmit(func(ctx map[string]any, _ machine.Event) (string, any) {
			return "cmd.gpt.summary", map[string]any{"bookId": ctx["bookId"]}
		})).
		On("evt.gpt.summary.success", "root.Checks")

	b.State("root.Checks").Parallel().OnDone("root.Done")

	b.State("root.Checks.Grounded").Compound("Pending")
	b.State("root.Checks.Grounded.Pending").
		Emit(machine.FixedEmit("cmd.regulations.grounded", nil)).
		On("evt.regulations.grounded.success", "root.Checks.Grounded.Done")
	b.State("root.Checks.Grounded.Done").Final()

	b.State("root.Checks.Compliant").Compound("Pending")
	b.State("root.Checks.Compliant.Pending").
		Emit(machine.FixedEmit("cmd.regulations.compliant", nil)).
		On("evt.regulations.compliant.success", "root.Checks.Compliant.Done")
	b.State("root.Checks.Compliant.Done").Final()

	b.State("root.Done").Final().
		Emit(machine.FunctionEmit(func(ctx map[string]any, _ machine.Event) (string, any) {
			return "notif.done", ctx
		}))

	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

func main() {
	ms := memstore.New(0)
	r, err := router.New("summary", ms, ms, store.ModeReadWrite, []router.MachineVersion{
		{Version: "1.0.0", Def: summaryMachine(), Actions: machine.ActionTable{}, Guards: machine.GuardTable{}},
	}, router.WithErrorOnNotFound(true))
	if err != nil {
		panic(err)
	}

	ctx := context.Background()

	step := func(label string, envs []orchestration.Envelope) []orchestration.Envelope {
		out := r.Handle(ctx, envs)
		fmt.Printf("--- %s ---\n", label)
		for _, e := range out {
			fmt.Printf("  emitted: %s subject=%s data=%v\n", e.Type, e.Subject, e.Data)
		}
		return out
	}

	started := step("init", []orchestration.Envelope{{
		Type: "xorca.summary.start",
		Data: map[string]any{
			"processId": "P1",
			"context":   map[string]any{"bookId": "b.pdf"},
		},
	}})
	if len(started) != 1 || started[0].Type != "cmd.book.fetch" {
		panic(fmt.Sprintf("expected a single cmd.book.fetch envelope, got %v", started))
	}
	subj := started[0].Subject

	out := step("book fetched", []orchestration.Envelope{{Type: "evt.book.fetch.success", Subject: subj}})
	if len(out) != 1 || out[0].Type != "cmd.gpt.summary" {
		panic(fmt.Sprintf("expected a single cmd.gpt.summary envelope, got %v", out))
	}

	out = step("summary ready", []orchestration.Envelope{{Type: "evt.gpt.summary.success", Subject: subj}})
	if len(out) != 2 {
		panic(fmt.Sprintf("expected both Checks regions to emit on entry, got %v", out))
	}

	out = step("compliant check passes", []orchestration.Envelope{{Type: "evt.regulations.compliant.success", Subject: subj}})
	if len(out) != 0 {
		panic(fmt.Sprintf("Compliant region settling alone must not trigger OnDone, got %v", out))
	}

	out = step("grounded check passes", []orchestration.Envelope{{Type: "evt.regulations.grounded.success", Subject: subj}})
	if len(out) != 1 || out[0].Type != "notif.done" {
		panic(fmt.Sprintf("expected the final notif.done envelope, got %v", out))
	}

	fmt.Println("process complete.")
}
