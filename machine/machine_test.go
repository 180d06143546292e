package machine

import "testing"

func sampleTree() *State {
	return &State{
		ID:      "root",
		Type:    Compound,
		Initial: "idle",
		Children: map[string]*State{
			"idle": {
				ID:   "idle",
				Type: Final,
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	d := New("m", "1.0.0", sampleTree())
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingName(t *testing.T) {
	d := New("", "1.0.0", sampleTree())
	if err := d.Validate(); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestValidate_CompoundMissingInitial(t *testing.T) {
	root := &State{
		ID:   "root",
		Type: Compound,
		Children: map[string]*State{
			"a": {ID: "a", Type: Final},
		},
	}
	d := New("m", "1.0.0", root)
	if err := d.Validate(); err == nil {
		t.Error("expected error for missing initial")
	}
}

func TestValidate_FinalWithChildren(t *testing.T) {
	root := &State{
		ID:      "root",
		Type:    Final,
		Children: map[string]*State{"x": {ID: "x", Type: Final}},
	}
	d := New("m", "1.0.0", root)
	if err := d.Validate(); err == nil {
		t.Error("expected error for final state with children")
	}
}

func TestValidate_InvalidTransitionTarget(t *testing.T) {
	root := sampleTree()
	root.On = map[string][]Transition{
		"evt": {{Target: "nonexistent"}},
	}
	d := New("m", "1.0.0", root)
	if err := d.Validate(); err == nil {
		t.Error("expected error for invalid transition target")
	}
}

func TestPath(t *testing.T) {
	root := &State{
		ID:      "root",
		Type:    Compound,
		Initial: "a",
		Children: map[string]*State{
			"a": {
				ID:      "a",
				Type:    Compound,
				Initial: "b",
				Children: map[string]*State{
					"b": {ID: "b", Type: Final},
				},
			},
		},
	}
	d := New("m", "1.0.0", root)
	leaf, err := d.FindByPath("root.a.b")
	if err != nil {
		t.Fatal(err)
	}
	if got := leaf.Path(); got != "root.a.b" {
		t.Errorf("Path() = %q, want root.a.b", got)
	}
	anc := leaf.Ancestors()
	if len(anc) != 3 || anc[0].ID != "root" || anc[2].ID != "b" {
		t.Errorf("Ancestors() = %v", anc)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	d := New("m", "1.0.0", sampleTree())
	data, err := d.Dump()
	if err != nil {
		t.Fatalf("Dump() error: %v", err)
	}
	loaded, err := Load(data)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Name != d.Name || loaded.Version != d.Version {
		t.Errorf("round trip mismatch: got %+v", loaded)
	}
	if loaded.Root.Initial != "idle" {
		t.Errorf("round trip lost Initial: %+v", loaded.Root)
	}
}
