package subject

import (
	"encoding/base64"
	"testing"

	"github.com/comalice/xorca/xorcaerr"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		processID, name, version string
	}{
		{"p1", "summary", "1.0.0"},
		{"proc-xyz", "regulations", "2.3.4"},
		{"p3", "name-only", "0.0.1"},
	}
	for _, c := range cases {
		enc := Encode(c.processID, c.name, c.version)
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", enc, err)
		}
		if got.ProcessID != c.processID || got.Name != c.name || got.Version != c.version {
			t.Errorf("round trip mismatch: got %+v, want {%q %q %q}", got, c.processID, c.name, c.version)
		}
	}
}

func TestDecode_InvalidBase64(t *testing.T) {
	_, err := Decode("not-valid-base64!!!")
	assertInvalidSubject(t, err)
}

func TestDecode_NotJSONObject(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte(`"just a string"`))
	_, err := Decode(enc)
	assertInvalidSubject(t, err)
}

func TestDecode_MissingField(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte(`{"processId":"p1","name":"n"}`))
	_, err := Decode(enc)
	assertInvalidSubject(t, err)
}

func TestDecode_EmptyField(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte(`{"processId":"","name":"n","version":"1.0.0"}`))
	_, err := Decode(enc)
	assertInvalidSubject(t, err)
}

func TestNew_GeneratesProcessIDWhenMissing(t *testing.T) {
	sub, enc := New("", "summary", "1.0.0")
	if sub.ProcessID == "" {
		t.Fatal("New() did not generate a processId")
	}
	decoded, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if decoded.ProcessID != sub.ProcessID {
		t.Errorf("decoded processId %q != minted %q", decoded.ProcessID, sub.ProcessID)
	}
}

func TestNew_PreservesSuppliedProcessID(t *testing.T) {
	sub, _ := New("P1", "summary", "1.0.0")
	if sub.ProcessID != "P1" {
		t.Errorf("New() overwrote supplied processId: got %q", sub.ProcessID)
	}
}

func TestStorageKey(t *testing.T) {
	sub := Subject{ProcessID: "p1", Name: "summary", Version: "1.0.0"}
	want := sub.String() + ".json"
	if got := sub.StorageKey(); got != want {
		t.Errorf("StorageKey() = %q, want %q", got, want)
	}
}

func assertInvalidSubject(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	kind, ok := xorcaerr.KindOf(err)
	if !ok || kind != xorcaerr.InvalidSubject {
		t.Errorf("expected InvalidSubject, got %v (ok=%v)", kind, ok)
	}
}
