// Package orchestration implements the orchestration actor (spec section
// 4.5): it wraps the persistent actor with CloudEvents-shaped envelope
// semantics, translating inbound envelopes to machine events and
// collecting the envelopes newly-entered states emit. Grounded on the
// hyperfleet-adapter executor's event.Event/otel pairing for envelope
// handling and trace propagation, adapted from a one-shot HTTP handler
// into a pure translation layer around the actor lifecycle.
package orchestration

import (
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2/event"

	"github.com/comalice/xorca/xorcaerr"
)

// EnvelopeContentType is the datacontenttype every outbound envelope
// carries (spec section 4.5).
const EnvelopeContentType = "application/cloudevents+json; charset=UTF-8"

// ValidContentType reports whether ct is acceptable on an inbound
// envelope (spec section 6): empty is allowed, otherwise the string must
// contain one of the two accepted substrings; a parameter suffix (e.g.
// "; charset=...") is allowed. The match is case-sensitive.
func ValidContentType(ct string) bool {
	if ct == "" {
		return true
	}
	return strings.Contains(ct, "application/cloudevents+json") || strings.Contains(ct, "application/json")
}

// Envelope is the CloudEvents-shaped wire record the router/orchestration
// actor exchange (spec section 2's "envelope I/O model"). It mirrors
// cloudevents.Event's fields directly rather than embedding the SDK type,
// so callers unfamiliar with the SDK's builder API can construct one as a
// plain struct literal; ToCloudEvent/FromCloudEvent convert at the
// boundary where the SDK's own encoding is wanted (e.g. an HTTP
// transport binding).
type Envelope struct {
	ID                  string
	Type                string
	Source              string
	Subject             string
	DataContentType     string
	Data                map[string]any
	TraceParent         string
	TraceState          string
	StateMachineVersion string
}

// ToCloudEvent renders e as a *cloudevents.Event, the shape an HTTP/AMQP/
// Kafka CloudEvents transport binding expects.
func (e Envelope) ToCloudEvent() (*cloudevents.Event, error) {
	ev := cloudevents.New()
	ev.SetID(e.ID)
	ev.SetType(e.Type)
	ev.SetSource(e.Source)
	if e.Subject != "" {
		ev.SetSubject(e.Subject)
	}
	if e.TraceParent != "" {
		if err := ev.SetExtension("traceparent", e.TraceParent); err != nil {
			return nil, fmt.Errorf("orchestration: setting traceparent extension: %w", err)
		}
	}
	if e.TraceState != "" {
		if err := ev.SetExtension("tracestate", e.TraceState); err != nil {
			return nil, fmt.Errorf("orchestration: setting tracestate extension: %w", err)
		}
	}
	if e.StateMachineVersion != "" {
		if err := ev.SetExtension("statemachineversion", e.StateMachineVersion); err != nil {
			return nil, fmt.Errorf("orchestration: setting statemachineversion extension: %w", err)
		}
	}
	contentType := e.DataContentType
	if contentType == "" {
		contentType = EnvelopeContentType
	}
	if e.Data != nil {
		if err := ev.SetData(contentType, e.Data); err != nil {
			return nil, fmt.Errorf("orchestration: encoding envelope data: %w", err)
		}
	} else {
		ev.SetDataContentType(contentType)
	}
	return &ev, nil
}

// FromCloudEvent decodes a *cloudevents.Event into the plain Envelope
// shape the orchestration actor consumes.
func FromCloudEvent(ev *cloudevents.Event) (Envelope, error) {
	data := map[string]any{}
	if len(ev.Data()) > 0 {
		if err := ev.DataAs(&data); err != nil {
			return Envelope{}, xorcaerr.Wrap(xorcaerr.InvalidContentType, "decoding cloudevents payload", err)
		}
	}
	e := Envelope{
		ID:              ev.ID(),
		Type:            ev.Type(),
		Source:          ev.Source(),
		Subject:         ev.Subject(),
		DataContentType: ev.DataContentType(),
		Data:            data,
	}
	if v, ok := ev.Extensions()["traceparent"]; ok {
		e.TraceParent = fmt.Sprint(v)
	}
	if v, ok := ev.Extensions()["tracestate"]; ok {
		e.TraceState = fmt.Sprint(v)
	}
	if v, ok := ev.Extensions()["statemachineversion"]; ok {
		e.StateMachineVersion = fmt.Sprint(v)
	}
	return e, nil
}
