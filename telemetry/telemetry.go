// Package telemetry wires structured logging and distributed tracing
// around a router activation and the actor lifecycle it drives (spec
// section 5's suspension points call out "external logger/telemetry
// emission" as one of the operations callers may observe blocking).
// Logging is grounded on the zap usage across the pack's service
// examples (e.g. the orchestration provider in ovasabi and the
// hyperfleet-adapter executor); tracing follows the hyperfleet-adapter
// executor's otel.Tracer/otel/trace pairing, extended here to propagate
// the W3C traceparent/tracestate carried on an inbound envelope.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Logger is the structured logging surface the rest of the module takes
// as a dependency, rather than importing zap directly everywhere.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// NewLogger wraps a *zap.Logger (nop logger if l is nil).
func NewLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{l: l}
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger       { return &zapLogger{l: z.l.With(fields...)} }

// componentName is the tracer name every span in this module is started
// under.
const componentName = "xorca"

// Tracer starts spans for router/actor activations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer off the global otel TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(componentName)}
}

// StartActivation starts the span wrapping one router activation's
// lifecycle: validate -> load -> step(s) -> save -> close.
func (t *Tracer) StartActivation(ctx context.Context, subjectStr string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "orchestration.activation", trace.WithAttributes(attribute.String("xorca.subject", subjectStr)))
}

// StartPhase starts a child span for one named phase of an activation
// (validate, load, step, save), nesting under whatever span ctx already
// carries.
func (t *Tracer) StartPhase(ctx context.Context, phase string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "orchestration."+phase, trace.WithAttributes(attribute.String("xorca.phase", phase)))
}

// ExtractTraceContext pulls a W3C traceparent/tracestate pair (as carried
// on an inbound CloudEvents-shaped envelope's attributes) into ctx, so a
// span started afterward links to the caller's trace.
func ExtractTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	carrier := propagation.MapCarrier{}
	if traceparent != "" {
		carrier["traceparent"] = traceparent
	}
	if tracestate != "" {
		carrier["tracestate"] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectTraceContext renders ctx's active span as a traceparent/tracestate
// pair for an outbound envelope (spec section 4.5: "traceparent =
// propagated from the inbound envelope").
func InjectTraceContext(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier["traceparent"], carrier["tracestate"]
}
