// Package actor implements the persistent orchestration actor (spec
// section 4.4): it binds a machine.Definition and the interpreter to a
// store.LockableStore/store.LockingManager pair, and exposes the
// rehydrate -> step -> persist lifecycle every router activation drives.
// Grounded on the teacher's internal/production.JSONPersister file-keyed
// save/load convention, generalized with the locking discipline spec
// section 4.2 describes.
package actor

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/comalice/xorca/interpreter"
	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/store"
	"github.com/comalice/xorca/subject"
	"github.com/comalice/xorca/telemetry"
	"github.com/comalice/xorca/xorcaerr"
)

// Actor is a single activation's binding of one subject to one machine
// definition. It is not safe for concurrent use — each activation owns
// its own Actor.
type Actor struct {
	def     *machine.Definition
	actions machine.ActionTable
	guards  machine.GuardTable
	store   store.LockableStore
	lock    store.LockingManager
	mode    store.Mode
	lockOpt store.RetryOptions
	clock   interpreter.Clock

	subj    subject.Subject
	key     string
	snap    *interpreter.Snapshot
	started bool
	closed  bool
	locked  bool
	emitted []interpreter.EmittedEvent

	log    telemetry.Logger
	tracer *telemetry.Tracer
	// actCtx carries the in-progress activation's span context (set by
	// Init) so Start/Step, which take no context of their own, can still
	// open child phase spans under it.
	actCtx context.Context
}

// Option configures cross-cutting Actor concerns, mirroring the teacher's
// core.Option pattern (WithActionRunner, WithPersister, ...).
type Option func(*Actor)

// WithLogger attaches a structured logger; the default is a no-op.
func WithLogger(l telemetry.Logger) Option {
	return func(a *Actor) { a.log = l }
}

// WithTracer attaches a span tracer; the default leaves activations
// unspanned.
func WithTracer(t *telemetry.Tracer) Option {
	return func(a *Actor) { a.tracer = t }
}

// New constructs an Actor bound to subj, ready for Init.
func New(def *machine.Definition, actions machine.ActionTable, guards machine.GuardTable, st store.LockableStore, lm store.LockingManager, mode store.Mode, lockOpt store.RetryOptions, subj subject.Subject, opts ...Option) *Actor {
	a := &Actor{
		def:     def,
		actions: actions,
		guards:  guards,
		store:   st,
		lock:    lm,
		mode:    mode,
		lockOpt: lockOpt,
		subj:    subj,
		key:     subj.StorageKey(),
		log:     telemetry.NewLogger(nil),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// WithClock overrides the interpreter's clock (tests only; production
// callers leave this unset and get a real wall clock).
func (a *Actor) WithClock(c interpreter.Clock) *Actor {
	a.clock = c
	return a
}

// Init implements spec section 4.4's init operation: optionally acquire a
// read-write lock, read the existing snapshot (if any), and leave the
// actor ready for Step/Start. Calling Init twice without an intervening
// Close fails with xorcaerr.AlreadyInitialized.
func (a *Actor) Init(ctx context.Context) error {
	if a.started {
		return xorcaerr.New(xorcaerr.AlreadyInitialized, fmt.Sprintf("actor for subject %q already initialized", a.subj))
	}
	a.actCtx = ctx
	if a.tracer != nil {
		var span trace.Span
		a.actCtx, span = a.tracer.StartPhase(a.actCtx, "load")
		defer span.End()
	}
	ctx = a.actCtx

	if a.mode == store.ModeReadWrite {
		if err := store.AcquireLock(ctx, a.lock, a.key, a.lockOpt); err != nil {
			return err
		}
		a.locked = true
	}

	raw, err := a.store.Read(ctx, a.key)
	if err != nil {
		a.releaseIfLocked(ctx)
		return xorcaerr.Wrap(xorcaerr.StoreFailure, fmt.Sprintf("reading snapshot %q", a.key), err)
	}
	if raw != nil {
		var snap interpreter.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			a.releaseIfLocked(ctx)
			return xorcaerr.Wrap(xorcaerr.StoreFailure, fmt.Sprintf("decoding snapshot %q", a.key), err)
		}
		a.snap = &snap
	}
	a.started = true
	a.log.Debug("actor initialized", zap.String("subject", a.key), zap.Bool("rehydrated", a.snap != nil))
	return nil
}

// Snapshot returns the actor's current snapshot, or nil until Init reads
// one from the store or Start constructs one.
func (a *Actor) Snapshot() *interpreter.Snapshot { return a.snap }

// Emitted returns every event emitted across the activation so far.
func (a *Actor) Emitted() []interpreter.EmittedEvent { return a.emitted }

// Start runs the synthetic init event when no snapshot was read by Init.
// It is idempotent: once a snapshot exists (read or constructed), later
// calls are no-ops.
func (a *Actor) Start(input map[string]any, traceID string) error {
	if a.snap != nil {
		return nil
	}
	if a.tracer != nil {
		_, span := a.tracer.StartPhase(a.phaseCtx(), "step")
		defer span.End()
	}
	snap, emitted, err := interpreter.Init(a.def, a.actions, input, traceID, a.clock)
	if err != nil {
		return err
	}
	a.snap = snap
	a.emitted = append(a.emitted, emitted...)
	return nil
}

// Step feeds ev to the interpreter against the actor's current snapshot,
// accumulating outbound events (spec section 4.4).
func (a *Actor) Step(ev machine.Event) error {
	if a.snap == nil {
		return xorcaerr.New(xorcaerr.StoreFailure, "actor stepped before start/init produced a snapshot")
	}
	if a.tracer != nil {
		_, span := a.tracer.StartPhase(a.phaseCtx(), "step")
		defer span.End()
	}
	snap, emitted, err := interpreter.Step(a.def, a.actions, a.guards, a.snap, ev, a.clock)
	if err != nil {
		return err
	}
	a.snap = snap
	a.emitted = append(a.emitted, emitted...)
	return nil
}

// Save implements spec section 4.4's save operation: optionally acquire a
// write-only lock, JSON-encode the snapshot, write it, then release. The
// pre-writer hook (section 4.7) is invoked by PreWriter if one is set.
func (a *Actor) Save(ctx context.Context, preWriter PreWriter) error {
	if a.tracer != nil {
		var span trace.Span
		ctx, span = a.tracer.StartPhase(ctx, "save")
		defer span.End()
	}
	if a.mode == store.ModeWriteOnly {
		if err := store.AcquireLock(ctx, a.lock, a.key, a.lockOpt); err != nil {
			return err
		}
		a.locked = true
	}
	defer a.releaseIfLocked(ctx)

	raw, err := json.Marshal(a.snap)
	if err != nil {
		return xorcaerr.Wrap(xorcaerr.StoreFailure, "encoding snapshot", err)
	}
	if preWriter != nil {
		preWriter(ctx, raw, a.key, a.subj)
	}
	if err := a.store.Write(ctx, a.key, raw); err != nil {
		return xorcaerr.Wrap(xorcaerr.StoreFailure, fmt.Sprintf("writing snapshot %q", a.key), err)
	}
	a.log.Debug("actor snapshot saved", zap.String("subject", a.key), zap.Int("bytes", len(raw)))
	return nil
}

// Close releases any held lock and drops the interpreter binding. It is
// idempotent.
func (a *Actor) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.started = false
	return a.releaseIfLocked(ctx)
}

// phaseCtx returns the context Start/Step should open their phase span
// under: the one Init captured, or a background context if Init was
// never called with tracing enabled (e.g. direct unit tests).
func (a *Actor) phaseCtx() context.Context {
	if a.actCtx != nil {
		return a.actCtx
	}
	return context.Background()
}

func (a *Actor) releaseIfLocked(ctx context.Context) error {
	if !a.locked {
		return nil
	}
	a.locked = false
	if _, err := a.lock.Unlock(ctx, a.key); err != nil {
		return xorcaerr.Wrap(xorcaerr.StoreFailure, fmt.Sprintf("unlocking %q", a.key), err)
	}
	return nil
}

// PreWriter is the hook spec section 4.7 describes, invoked during Save
// with the about-to-be-written bytes. Implementations must not mutate
// raw. The hook returns nothing, so it cannot fail the save; the prewriter
// package swallows its own errors.
type PreWriter func(ctx context.Context, raw []byte, key string, subj subject.Subject)
