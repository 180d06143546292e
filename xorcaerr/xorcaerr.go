// Package xorcaerr defines the error taxonomy carried across every xOrca
// handler boundary. Handler failures are reported with the Kinds below;
// any other error that reaches a router handler is surfaced as an opaque
// "InternalError" (see ToEnvelopeData), so nothing escapes a router
// handler as a bare error.
package xorcaerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories in spec section 7.
type Kind string

const (
	InvalidContentType     Kind = "InvalidContentType"
	SchemaViolation        Kind = "SchemaViolation"
	InvalidSubject         Kind = "InvalidSubject"
	SubjectAlreadyExists   Kind = "SubjectAlreadyExists"
	SubjectNotInitialized  Kind = "SubjectNotInitialized"
	UnknownMachineVersion  Kind = "UnknownMachineVersion"
	VersionMismatch        Kind = "VersionMismatch"
	DuplicateMachineVersion Kind = "DuplicateMachineVersion"
	LockAcquisitionTimeout Kind = "LockAcquisitionTimeout"
	StoreFailure           Kind = "StoreFailure"
	ActionFailure          Kind = "ActionFailure"
	UnroutableEvent        Kind = "UnroutableEvent"
	AlreadyInitialized     Kind = "AlreadyInitialized"
)

// Error is the concrete error type carried by every xOrca failure path.
// It formats directly into the error-envelope data shape (errorName,
// errorMessage, errorStack).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// EventData is the inbound event data that triggered the failure, if
	// any; carried through to the error envelope's eventData field.
	EventData any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, xorcaerr.New(xorcaerr.InvalidSubject, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithEventData attaches the inbound event data to the error and returns e
// for chaining at the construction site.
func (e *Error) WithEventData(data any) *Error {
	e.EventData = data
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and
// reports false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// EnvelopeData is the {errorName, errorMessage, errorStack, eventData}
// shape mandated by spec section 6 for error envelope `data` fields.
type EnvelopeData struct {
	ErrorName    string `json:"errorName"`
	ErrorMessage string `json:"errorMessage"`
	ErrorStack   string `json:"errorStack,omitempty"`
	EventData    any    `json:"eventData,omitempty"`
}

// ToEnvelopeData converts any error into the error-envelope data shape.
// If err is not a *xorcaerr.Error, it is surfaced as an opaque internal
// error with no named Kind.
func ToEnvelopeData(err error) EnvelopeData {
	var e *Error
	if errors.As(err, &e) {
		return EnvelopeData{
			ErrorName:    string(e.Kind),
			ErrorMessage: e.Message,
			ErrorStack:   causeChain(e),
			EventData:    e.EventData,
		}
	}
	return EnvelopeData{
		ErrorName:    "InternalError",
		ErrorMessage: err.Error(),
	}
}

func causeChain(e *Error) string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}
