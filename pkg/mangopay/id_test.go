package mangopay

import (
	"encoding/json"
	"testing"
)

func TestIDUnmarshalAcceptsStringsAndNumbers(t *testing.T) {
	cases := map[string]ID{
		`"12345"`: 12345,
		`12345`:   12345,
		`null`:    0,
		`""`:      0,
		`" 77 "`:  77,
	}
	for raw, want := range cases {
		var got ID
		if err := json.Unmarshal([]byte(raw), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if got != want {
			t.Fatalf("unmarshal %s: expected %d got %d", raw, want, got)
		}
	}
}

func TestIDUnmarshalRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"abc"`, `true`, `"-4"`, `1.5`} {
		var got ID
		if err := json.Unmarshal([]byte(raw), &got); err == nil {
			t.Fatalf("expected error for %s, got %d", raw, got)
		}
	}
}

func TestIDMarshalEmitsString(t *testing.T) {
	payload, err := json.Marshal(struct {
		Owners []ID
		Author ID
		Empty  ID
	}{Owners: []ID{1, 22}, Author: 9})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"Owners":["1","22"],"Author":"9","Empty":null}`
	if string(payload) != want {
		t.Fatalf("expected %s got %s", want, payload)
	}
}

func TestIDMatches(t *testing.T) {
	if !ID(5).Matches(0, 5) {
		t.Fatalf("expected match")
	}
	if ID(0).Matches(0) {
		t.Fatalf("zero id must never match")
	}
	if ID(5).Matches(6, 0) {
		t.Fatalf("unexpected match")
	}
}

func TestParseID(t *testing.T) {
	if _, err := ParseID(" "); err == nil {
		t.Fatalf("expected error for blank id")
	}
	id, err := ParseID("42")
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}
	if _, err := IDFromJSON(json.RawMessage(`null`)); err == nil {
		t.Fatalf("expected error for null id")
	}
}
