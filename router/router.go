// Package router implements the router (spec section 4.6): it groups
// inbound envelopes by subject, pattern-matches each group's leading
// envelope against the init/continuation/system-error handler table, and
// drives the orchestration actor lifecycle for each group, flattening
// outbound envelopes while preserving per-subject order. Grounded on the
// teacher's internal/core.Machine construction-time validation style
// (unique-registry checks failing fast) generalized to version
// registration, and on the hyperfleet-adapter executor's
// validate-then-dispatch handler shape.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/comalice/xorca/actor"
	"github.com/comalice/xorca/machine"
	"github.com/comalice/xorca/orchestration"
	"github.com/comalice/xorca/schema"
	"github.com/comalice/xorca/store"
	"github.com/comalice/xorca/subject"
	"github.com/comalice/xorca/telemetry"
	"github.com/comalice/xorca/xorcaerr"
)

// MachineVersion binds one (version, Definition, ActionTable, GuardTable)
// tuple a Router can select against (spec section 4.6, "Version
// selection").
type MachineVersion struct {
	Version string
	Def     *machine.Definition
	Actions machine.ActionTable
	Guards  machine.GuardTable
}

// Router dispatches envelopes for a single named orchestration across all
// of its registered machine versions.
type Router struct {
	name     string
	versions map[string]MachineVersion
	semvers  []*semver.Version // registered versions, sorted descending

	store store.LockableStore
	lock  store.LockingManager
	mode  store.Mode

	initialContextSchema *schema.Schema

	errorOnNotFound                     bool
	raiseErrorOnInvalidOrchestratorName bool

	onEvent map[string]orchestration.EventTransformer
	onState map[string]orchestration.StateMiddleware

	idFactory func() string
	log       telemetry.Logger
	tracer    *telemetry.Tracer
	preWriter actor.PreWriter
}

// Option configures a Router, following the teacher's functional-options
// convention (core.Option).
type Option func(*Router)

func WithInitialContextSchema(s *schema.Schema) Option {
	return func(r *Router) { r.initialContextSchema = s }
}

func WithErrorOnNotFound(v bool) Option {
	return func(r *Router) { r.errorOnNotFound = v }
}

func WithRaiseErrorOnInvalidOrchestratorName(v bool) Option {
	return func(r *Router) { r.raiseErrorOnInvalidOrchestratorName = v }
}

func WithEventMiddleware(m map[string]orchestration.EventTransformer) Option {
	return func(r *Router) { r.onEvent = m }
}

func WithStateMiddleware(m map[string]orchestration.StateMiddleware) Option {
	return func(r *Router) { r.onState = m }
}

func WithIDFactory(f func() string) Option {
	return func(r *Router) { r.idFactory = f }
}

func WithLogger(l telemetry.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithTracer attaches a span tracer: one activation span per handled
// group, with child phase spans (validate/load/step/save) propagated
// down into the actor it constructs (spec section 2 component 9,
// SPEC_FULL "Tracing").
func WithTracer(t *telemetry.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// WithPreWriter attaches the pre-writer hook (spec section 4.7) invoked
// during every Save this router performs.
func WithPreWriter(pw actor.PreWriter) Option {
	return func(r *Router) { r.preWriter = pw }
}

// New constructs a Router for name, bound to st/lm under mode, registered
// against versions. Versions must be unique; a duplicate fails
// construction with xorcaerr.DuplicateMachineVersion (spec section 4.6,
// "Versions must be unique; if duplicated, construction fails").
func New(name string, st store.LockableStore, lm store.LockingManager, mode store.Mode, versions []MachineVersion, opts ...Option) (*Router, error) {
	r := &Router{
		name:     name,
		versions: map[string]MachineVersion{},
		store:    st,
		lock:     lm,
		mode:     mode,
		onEvent:  map[string]orchestration.EventTransformer{},
		onState:  map[string]orchestration.StateMiddleware{},
		log:      telemetry.NewLogger(nil),
	}
	for _, v := range versions {
		if _, dup := r.versions[v.Version]; dup {
			return nil, xorcaerr.New(xorcaerr.DuplicateMachineVersion, fmt.Sprintf("machine %q: version %q registered more than once", name, v.Version))
		}
		r.versions[v.Version] = v
	}
	for _, o := range opts {
		o(r)
	}
	if r.idFactory == nil {
		r.idFactory = func() string { s, _ := subject.New("", "", ""); return s.ProcessID }
	}
	if err := r.indexSemvers(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Router) indexSemvers() error {
	for vs := range r.versions {
		sv, err := semver.NewVersion(vs)
		if err != nil {
			return fmt.Errorf("router %q: version %q is not valid semver: %w", r.name, vs, err)
		}
		r.semvers = append(r.semvers, sv)
	}
	sort.Sort(sort.Reverse(byVersion(r.semvers)))
	return nil
}

type byVersion []*semver.Version

func (b byVersion) Len() int           { return len(b) }
func (b byVersion) Less(i, j int) bool { return b[i].LessThan(b[j]) }
func (b byVersion) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

// highestVersion returns the declared version string with the largest
// semver precedence.
func (r *Router) highestVersion() string {
	if len(r.semvers) == 0 {
		return ""
	}
	return r.semvers[0].Original()
}

func (r *Router) startType() string { return fmt.Sprintf("xorca.%s.start", r.name) }

type handlerKind int

const (
	handlerNone handlerKind = iota
	handlerInit
	handlerContinuation
	handlerSystemError
)

func (r *Router) matchHandler(eventType string) handlerKind {
	switch {
	case eventType == r.startType():
		return handlerInit
	case strings.HasPrefix(eventType, "evt."):
		return handlerContinuation
	case strings.HasPrefix(eventType, "sys."):
		return handlerSystemError
	default:
		return handlerNone
	}
}

// Handle implements spec section 4.6's per-envelope flow end to end:
// group by subject, dispatch each group to its matched handler, and
// flatten the outbound envelopes preserving per-subject order.
func (r *Router) Handle(ctx context.Context, envs []orchestration.Envelope) []orchestration.Envelope {
	groups, order := groupBySubject(envs)
	var out []orchestration.Envelope
	for _, key := range order {
		out = append(out, r.handleGroup(ctx, groups[key])...)
	}
	return out
}

// groupBySubject buckets envelopes by Subject, except start envelopes
// (empty Subject), which each become their own singleton group (spec
// section 4.6 step 1: "start envelopes have no subject yet; one subject
// is minted per init"). order preserves first-occurrence order of each
// group key.
func groupBySubject(envs []orchestration.Envelope) (map[string][]orchestration.Envelope, []string) {
	groups := map[string][]orchestration.Envelope{}
	var order []string
	initCounter := 0
	for _, e := range envs {
		key := e.Subject
		if key == "" {
			key = fmt.Sprintf("__init_%d", initCounter)
			initCounter++
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}
	return groups, order
}

// handleGroup validates every envelope's datacontenttype before any
// handler runs (spec section 6/7: InvalidContentType -> sys.*.error, and
// section 8 scenario 5: "no store access" on that failure — content type
// is checked here, ahead of handleInit/handleContinuation, so a bad
// envelope never reaches a.Init's lock/read).
func (r *Router) handleGroup(ctx context.Context, group []orchestration.Envelope) []orchestration.Envelope {
	if len(group) == 0 {
		return nil
	}
	for _, env := range group {
		if !orchestration.ValidContentType(env.DataContentType) {
			err := xorcaerr.New(xorcaerr.InvalidContentType, fmt.Sprintf("unsupported datacontenttype %q", env.DataContentType)).WithEventData(env.Data)
			return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("sys.xorca.%s.error", r.name), err, env.Subject)}
		}
	}
	switch r.matchHandler(group[0].Type) {
	case handlerInit:
		return r.handleInit(ctx, group[0])
	case handlerContinuation:
		return r.handleContinuation(ctx, group)
	case handlerSystemError:
		return r.handleSystemError(ctx, group)
	default:
		if r.errorOnNotFound {
			return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("sys.xorca.%s.error", r.name), xorcaerr.New(xorcaerr.UnroutableEvent, fmt.Sprintf("no handler registered for event type %q", group[0].Type)), "")}
		}
		return nil
	}
}

func (r *Router) errorEnvelope(eventType string, err error, subj string) orchestration.Envelope {
	ed := xorcaerr.ToEnvelopeData(err)
	return orchestration.Envelope{
		ID:              r.idFactory(),
		Type:            eventType,
		Source:          fmt.Sprintf("xorca.orchestrator.%s", r.name),
		Subject:         subj,
		DataContentType: orchestration.EnvelopeContentType,
		Data: map[string]any{
			"errorName":    ed.ErrorName,
			"errorMessage": ed.ErrorMessage,
			"errorStack":   ed.ErrorStack,
			"eventData":    ed.EventData,
		},
	}
}

// startActivation opens the span wrapping one handleInit/handleContinuation
// call, propagating the inbound traceparent/tracestate (spec section 4.5;
// SPEC_FULL "Tracing": one span per activation, phase spans nested under
// it). Returns a no-op end func when no tracer is configured.
func (r *Router) startActivation(ctx context.Context, env orchestration.Envelope, subjStr string) (context.Context, func()) {
	if r.tracer == nil {
		return ctx, func() {}
	}
	ctx = telemetry.ExtractTraceContext(ctx, env.TraceParent, env.TraceState)
	ctx, span := r.tracer.StartActivation(ctx, subjStr)
	return ctx, span.End
}

// startPhase opens a child span for one named handler phase (validate,
// load, step, save). Returns a no-op end func when no tracer is
// configured.
func (r *Router) startPhase(ctx context.Context, phase string) (context.Context, func()) {
	if r.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := r.tracer.StartPhase(ctx, phase)
	return ctx, span.End
}

func (r *Router) resolveLockMode() store.Mode {
	if r.mode == store.ModeNone {
		return store.ModeNone
	}
	return store.ModeReadWrite
}

// handleInit implements spec section 4.6 step 3. The init payload schema
// is { processId?, context, version? } (spec section 6): the declared
// initial-context schema validates env.Data["context"], not env.Data
// itself.
func (r *Router) handleInit(ctx context.Context, env orchestration.Envelope) []orchestration.Envelope {
	ctx, endActivation := r.startActivation(ctx, env, "")
	defer endActivation()

	initialContext, _ := env.Data["context"].(map[string]any)

	if r.initialContextSchema != nil {
		_, endValidate := r.startPhase(ctx, "validate")
		err := r.initialContextSchema.Validate(initialContext)
		endValidate()
		if err != nil {
			return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("sys.xorca.%s.start.error", r.name), xorcaerr.Wrap(xorcaerr.SchemaViolation, "initial context failed declared schema", err).WithEventData(initialContext), "")}
		}
	}

	version := env.StateMachineVersion
	if version == "" {
		if raw, ok := env.Data["version"].(string); ok && raw != "" {
			version = raw
		}
	}
	if version == "" {
		version = r.highestVersion()
	}
	mv, ok := r.versions[version]
	if !ok {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.%s.start.error", r.name), xorcaerr.New(xorcaerr.UnknownMachineVersion, fmt.Sprintf("machine %q has no registered version %q", r.name, version)), "")}
	}

	var processID string
	if raw, ok := env.Data["processId"].(string); ok {
		processID = raw
	}
	subj, subjStr := subject.New(processID, r.name, mv.Version)

	if processID != "" {
		existing, err := r.store.Read(ctx, subj.StorageKey())
		if err != nil {
			return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.%s.start.error", r.name), xorcaerr.Wrap(xorcaerr.StoreFailure, "checking for an existing snapshot", err), subjStr)}
		}
		if existing != nil {
			return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.%s.start.error", r.name), xorcaerr.New(xorcaerr.SubjectAlreadyExists, fmt.Sprintf("subject %q already has a persisted snapshot", subjStr)), subjStr)}
		}
	}

	a := actor.New(mv.Def, mv.Actions, mv.Guards, r.store, r.lock, r.resolveLockMode(), store.RetryOptions{}, subj, actor.WithLogger(r.log), actor.WithTracer(r.tracer))
	if err := a.Init(ctx); err != nil {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.%s.start.error", r.name), err, subjStr)}
	}
	defer a.Close(ctx)

	traceID := env.TraceParent
	if err := a.Start(initialContext, traceID); err != nil {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.%s.start.error", r.name), err, subjStr)}
	}
	if err := a.Save(ctx, r.preWriter); err != nil {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.%s.start.error", r.name), err, subjStr)}
	}

	oa := orchestration.New(a, subj, r.name, mv.Version, r.onEvent, r.onState)
	return oa.EmittedEnvelopes(r.idFactory)
}

// handleContinuation implements spec section 4.6 step 4.
func (r *Router) handleContinuation(ctx context.Context, group []orchestration.Envelope) []orchestration.Envelope {
	subjStr := group[0].Subject
	ctx, endActivation := r.startActivation(ctx, group[0], subjStr)
	defer endActivation()

	subj, err := subject.Decode(subjStr)
	if err != nil {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("sys.xorca.orchestrator.%s.error", r.name), err, subjStr)}
	}
	if subj.Name != r.name {
		if r.raiseErrorOnInvalidOrchestratorName {
			return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.orchestrator.%s.error", r.name), xorcaerr.New(xorcaerr.InvalidSubject, fmt.Sprintf("subject names machine %q, this router serves %q", subj.Name, r.name)), subjStr)}
		}
		return nil
	}

	version := subj.Version
	if version == "" {
		version = r.highestVersion()
	}
	mv, ok := r.versions[version]
	if !ok {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.orchestrator.%s.error", r.name), xorcaerr.New(xorcaerr.UnknownMachineVersion, fmt.Sprintf("machine %q has no registered version %q", r.name, version)), subjStr)}
	}

	a := actor.New(mv.Def, mv.Actions, mv.Guards, r.store, r.lock, r.resolveLockMode(), store.RetryOptions{}, subj, actor.WithLogger(r.log), actor.WithTracer(r.tracer))
	if err := a.Init(ctx); err != nil {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.orchestrator.%s.error", r.name), err, subjStr)}
	}
	defer a.Close(ctx)
	if a.Snapshot() == nil {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.orchestrator.%s.error", r.name), xorcaerr.New(xorcaerr.SubjectNotInitialized, fmt.Sprintf("subject %q has no persisted snapshot", subjStr)), subjStr)}
	}

	oa := orchestration.New(a, subj, r.name, mv.Version, r.onEvent, r.onState)
	for _, env := range group {
		if err := oa.Dispatch(env); err != nil {
			return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.orchestrator.%s.error", r.name), err, subjStr)}
		}
	}
	if err := a.Save(ctx, r.preWriter); err != nil {
		return []orchestration.Envelope{r.errorEnvelope(fmt.Sprintf("xorca.orchestrator.%s.error", r.name), err, subjStr)}
	}
	return oa.EmittedEnvelopes(r.idFactory)
}

// handleSystemError implements the sys.* handler (spec section 4.6): it
// records (logs) pre-processing errors and surfaces them unchanged.
func (r *Router) handleSystemError(ctx context.Context, group []orchestration.Envelope) []orchestration.Envelope {
	for _, env := range group {
		r.log.Warn("system error envelope received", zap.String("type", env.Type), zap.String("subject", env.Subject))
	}
	return group
}
