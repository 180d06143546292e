// Package subject implements the versioned subject scheme that binds an
// inbound event to a specific orchestration process and machine version
// (spec section 4.1). A subject is the base64 encoding of a canonical JSON
// object {processId, name, version}; it is the only routing token the core
// ever persists or compares.
package subject

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/comalice/xorca/xorcaerr"
)

// Subject identifies one orchestration instance: a process, the machine
// name it runs, and the exact machine version it was minted against.
type Subject struct {
	ProcessID string `json:"processId"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

// Encode serializes (processId, name, version) as a canonical JSON object
// and base64-encodes it. The field order is fixed so Encode is
// deterministic for identical inputs.
func Encode(processID, name, version string) string {
	payload := Subject{ProcessID: processID, Name: name, Version: version}
	raw, _ := json.Marshal(payload) // Subject's fields are all strings; never fails
	return base64.StdEncoding.EncodeToString(raw)
}

// New mints a fresh subject for (name, version), generating a random
// processId via uuid.NewString when none is supplied by the caller (the
// init payload's processId field is optional per spec section 6).
func New(processID, name, version string) (Subject, string) {
	if processID == "" {
		processID = uuid.NewString()
	}
	return Subject{ProcessID: processID, Name: name, Version: version}, Encode(processID, name, version)
}

// Decode reverses Encode, failing with xorcaerr.InvalidSubject when the
// string is not valid base64, the decoded payload is not a JSON object, or
// any of the three fields is absent or empty.
func Decode(raw string) (Subject, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Subject{}, xorcaerr.Wrap(xorcaerr.InvalidSubject, "subject is not valid base64", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Subject{}, xorcaerr.Wrap(xorcaerr.InvalidSubject, "decoded subject is not a JSON object", err)
	}

	s := Subject{}
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"processId", &s.ProcessID},
		{"name", &s.Name},
		{"version", &s.Version},
	} {
		v, ok := fields[f.name]
		if !ok {
			return Subject{}, xorcaerr.New(xorcaerr.InvalidSubject, fmt.Sprintf("subject missing field %q", f.name))
		}
		str, ok := v.(string)
		if !ok || str == "" {
			return Subject{}, xorcaerr.New(xorcaerr.InvalidSubject, fmt.Sprintf("subject field %q must be a non-empty string", f.name))
		}
		*f.dst = str
	}

	return s, nil
}

// String renders the Subject back to its encoded form.
func (s Subject) String() string {
	return Encode(s.ProcessID, s.Name, s.Version)
}

// StorageKey is the key under which the snapshot for this subject lives in
// the underlying store (spec section 6: "one object per subject at key
// <subject>.json").
func (s Subject) StorageKey() string {
	return s.String() + ".json"
}
