package mrf

import "testing"

func TestHash_Deterministic(t *testing.T) {
	d := map[string]any{"billing_code": "99213", "billing_code_type": "CPT"}
	h1, err := Hash(d)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(d)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("same input hashed differently: %d vs %d", h1, h2)
	}
}

func TestHash_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"x": 1.0, "y": "two", "z": []string{"a", "b"}}
	b := map[string]any{"z": []string{"a", "b"}, "y": "two", "x": 1.0}

	ha, err := Hash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("map construction order changed the hash: %d vs %d", ha, hb)
	}
}

func TestHash_DifferentContentDifferentHash(t *testing.T) {
	a := map[string]any{"billing_code": "99213"}
	b := map[string]any{"billing_code": "99214"}

	ha, err := Hash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha == hb {
		t.Fatalf("distinct content hashed to the same value: %d", ha)
	}
}

func TestHash_EmptyDictRejected(t *testing.T) {
	if _, err := Hash(map[string]any{}); err == nil {
		t.Fatal("expected an error hashing an empty dict")
	}
}

func TestFilenameHash_MatchesFilenameKeyedHash(t *testing.T) {
	got, err := filenameHash("plan")
	if err != nil {
		t.Fatal(err)
	}
	want, err := Hash(map[string]any{"filename": "plan"})
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("filenameHash diverged from Hash({filename: ...}): %d vs %d", got, want)
	}
}
