package schema

import "testing"

func TestValidate_NilSchemaAlwaysPasses(t *testing.T) {
	var s *Schema
	if err := s.Validate(map[string]any{"anything": 1}); err != nil {
		t.Errorf("nil schema should always validate, got %v", err)
	}
}

func TestValidate_RequiredFieldMissing(t *testing.T) {
	s := Required("bookId")
	if err := s.Validate(map[string]any{}); err == nil {
		t.Error("expected error for missing required field")
	}
}

func TestValidate_RequiredFieldPresent(t *testing.T) {
	s := Required("bookId")
	if err := s.Validate(map[string]any{"bookId": "b.pdf"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_KindMismatch(t *testing.T) {
	s := &Schema{Fields: []Field{{Name: "count", Kind: KindNumber, Required: true}}}
	if err := s.Validate(map[string]any{"count": "not a number"}); err == nil {
		t.Error("expected kind mismatch error")
	}
}

func TestValidate_OptionalFieldAbsentOK(t *testing.T) {
	s := &Schema{Fields: []Field{{Name: "nickname", Kind: KindString, Required: false}}}
	if err := s.Validate(map[string]any{}); err != nil {
		t.Errorf("optional absent field should not error: %v", err)
	}
}

func TestValidate_MultipleProblemsReported(t *testing.T) {
	s := &Schema{Fields: []Field{
		{Name: "a", Kind: KindAny, Required: true},
		{Name: "b", Kind: KindNumber, Required: true},
	}}
	err := s.Validate(map[string]any{"b": "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
}
