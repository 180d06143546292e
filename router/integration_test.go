package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/orchestration"
	"github.com/comalice/xorca/schema"
	"github.com/comalice/xorca/store"
	"github.com/comalice/xorca/store/memstore"
)

// summaryDef mirrors spec section 8's "happy path" scenario: FetchData ->
// Summarize -> a parallel Checks state (Grounded/Compliant regions) ->
// Done. Exercises router+orchestration+actor together end to end, the
// way cmd/demo drives them, but asserted with testify instead of printed.
func summaryDef() *machine.Definition {
	grounded := &machine.State{ID: "Grounded", Type: machine.Compound, Initial: "Pending", Children: map[string]*machine.State{
		"Pending": {ID: "Pending", Type: machine.Compound, Emit: emitFixed("cmd.regulations.grounded"), On: map[string][]machine.Transition{
			"evt.regulations.grounded.success": {{Target: "root.Checks.Grounded.Done"}},
		}},
		"Done": {ID: "Done", Type: machine.Final},
	}}
	compliant := &machine.State{ID: "Compliant", Type: machine.Compound, Initial: "Pending", Children: map[string]*machine.State{
		"Pending": {ID: "Pending", Type: machine.Compound, Emit: emitFixed("cmd.regulations.compliant"), On: map[string][]machine.Transition{
			"evt.regulations.compliant.success": {{Target: "root.Checks.Compliant.Done"}},
		}},
		"Done": {ID: "Done", Type: machine.Final},
	}}
	checks := &machine.State{ID: "Checks", Type: machine.Parallel, Children: map[string]*machine.State{
		"Grounded": grounded, "Compliant": compliant,
	}, OnDone: &machine.Transition{Target: "root.Done"}}

	done := &machine.State{ID: "Done", Type: machine.Final, Emit: &machine.Emit{
		Kind: machine.EmitFunction,
		Func: func(ctx map[string]any, _ machine.Event) (string, any) { return "notif.done", ctx },
	}}

	summarize := &machine.State{ID: "Summarize", Type: machine.Compound, Emit: &machine.Emit{
		Kind: machine.EmitFunction,
		Func: func(ctx map[string]any, _ machine.Event) (string, any) {
			return "cmd.gpt.summary", map[string]any{"bookId": ctx["bookId"]}
		},
	}, On: map[string][]machine.Transition{
		"evt.gpt.summary.success": {{Target: "root.Checks"}},
	}}
	fetch := &machine.State{ID: "FetchData", Type: machine.Compound, Emit: &machine.Emit{
		Kind: machine.EmitFunction,
		Func: func(ctx map[string]any, _ machine.Event) (string, any) {
			return "cmd.book.fetch", map[string]any{"bookId": ctx["bookId"]}
		},
	}, On: map[string][]machine.Transition{
		"evt.book.fetch.success": {{Target: "root.Summarize"}},
	}}

	root := &machine.State{ID: "root", Type: machine.Compound, Initial: "FetchData", Children: map[string]*machine.State{
		"FetchData": fetch, "Summarize": summarize, "Checks": checks, "Done": done,
	}}
	def := machine.New("summary", "1.0.0", root)
	def.InitialContextSchema = schema.Required("bookId")
	return def
}

func emitFixed(topic string) *machine.Emit {
	e := machine.FixedEmit(topic, nil)
	return &e
}

func TestRouter_SummaryHappyPath(t *testing.T) {
	ms := memstore.New(0)
	r, err := New("summary", ms, ms, store.ModeReadWrite, []MachineVersion{
		{Version: "1.0.0", Def: summaryDef(), Actions: machine.ActionTable{}, Guards: machine.GuardTable{}},
	}, WithErrorOnNotFound(true))
	require.NoError(t, err)
	ctx := context.Background()

	out := r.Handle(ctx, []orchestration.Envelope{{
		Type: "xorca.summary.start",
		Data: map[string]any{"processId": "P1", "context": map[string]any{"bookId": "b.pdf"}},
	}})
	require.Len(t, out, 1)
	require.Equal(t, "cmd.book.fetch", out[0].Type)
	subj := out[0].Subject
	require.NotEmpty(t, subj)

	out = r.Handle(ctx, []orchestration.Envelope{{Type: "evt.book.fetch.success", Subject: subj}})
	require.Len(t, out, 1)
	require.Equal(t, "cmd.gpt.summary", out[0].Type)

	out = r.Handle(ctx, []orchestration.Envelope{{Type: "evt.gpt.summary.success", Subject: subj}})
	require.Len(t, out, 2, "entering both Checks regions must emit exactly two envelopes")
	types := map[string]bool{}
	for _, e := range out {
		types[e.Type] = true
	}
	require.True(t, types["cmd.regulations.grounded"])
	require.True(t, types["cmd.regulations.compliant"])

	out = r.Handle(ctx, []orchestration.Envelope{{Type: "evt.regulations.compliant.success", Subject: subj}})
	require.Empty(t, out, "one region settling alone must not trigger OnDone")

	out = r.Handle(ctx, []orchestration.Envelope{{Type: "evt.regulations.grounded.success", Subject: subj}})
	require.Len(t, out, 1)
	require.Equal(t, "notif.done", out[0].Type)
}
