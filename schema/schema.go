// Package schema implements the minimal structural validator used to check
// init-context payloads and event data against a machine author's declared
// shape (spec section 3: "event schema declaration", section 4.6 step 3:
// validate init data against the initial-context schema).
//
// This intentionally does not implement full JSON Schema: machine authors
// declare a flat set of required fields and, optionally, the Go-level kind
// each field's value must have. That is enough to express the examples in
// spec section 8 and keeps the validator a pure function of (Schema,
// map[string]any) with no reflection beyond basic type switches.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names the primitive shapes a field's value may take. KindAny skips
// the type check and only requires presence.
type Kind string

const (
	KindAny    Kind = "any"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// Field declares one required or optional field of a Schema.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// Schema is an ordered set of field declarations. A nil Schema always
// validates (machine authors may omit a schema entirely).
type Schema struct {
	Fields []Field
}

// Required is a convenience constructor for schemas built from required
// field names with no type constraint, the common case in spec section 8's
// examples (e.g. {bookId: string}).
func Required(fields ...string) *Schema {
	s := &Schema{}
	for _, f := range fields {
		s.Fields = append(s.Fields, Field{Name: f, Kind: KindAny, Required: true})
	}
	return s
}

// Validate checks data against the schema, returning a non-nil error
// describing every violation found (not just the first) so a single
// SchemaViolation error can report the complete picture.
func (s *Schema) Validate(data map[string]any) error {
	if s == nil {
		return nil
	}
	var problems []string
	for _, f := range s.Fields {
		v, present := data[f.Name]
		if !present {
			if f.Required {
				problems = append(problems, fmt.Sprintf("missing required field %q", f.Name))
			}
			continue
		}
		if f.Kind != KindAny && !kindMatches(f.Kind, v) {
			problems = append(problems, fmt.Sprintf("field %q: expected %s, got %T", f.Name, f.Kind, v))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

func kindMatches(k Kind, v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
