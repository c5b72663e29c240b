package mrf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildReferenceMap_InlineGroups(t *testing.T) {
	body := `{"provider_references": [
		{"provider_group_id": 1, "provider_groups": [{"npi": [111], "tin": {"type": "ein", "value": "1"}}]},
		{"provider_group_id": 2, "provider_groups": [{"npi": [222], "tin": {"type": "ein", "value": "2"}}]}
	], "in_network": []}`
	p := NewParser(strings.NewReader(body))
	p.Next() // start_map of the root object
	p.Next() // map_key "provider_references"

	refMap, structuralCase, err := BuildReferenceMap(context.Background(), &Config{}, p)
	if err != nil {
		t.Fatal(err)
	}
	if structuralCase != 1 {
		t.Fatalf("expected structural case 1, got %d", structuralCase)
	}
	if len(refMap) != 2 {
		t.Fatalf("expected 2 resolved references, got %d", len(refMap))
	}
	if refMap[1][0].NPI[0] != "111" {
		t.Fatalf("unexpected group for id 1: %#v", refMap[1])
	}
}

func TestBuildReferenceMap_AbsentReferences(t *testing.T) {
	body := `{"in_network": []}`
	p := NewParser(strings.NewReader(body))
	p.Next() // start_map
	p.Next() // map_key "in_network"

	refMap, structuralCase, err := BuildReferenceMap(context.Background(), &Config{}, p)
	if err != nil {
		t.Fatal(err)
	}
	if structuralCase != 3 {
		t.Fatalf("expected structural case 3 (absent), got %d", structuralCase)
	}
	if len(refMap) != 0 {
		t.Fatalf("expected an empty reference map, got %d entries", len(refMap))
	}
}

func TestBuildReferenceMap_RemoteLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"provider_groups": [{"npi": [333], "tin": {"type": "ein", "value": "3"}}]}`))
	}))
	defer srv.Close()

	body := `{"provider_references": [{"provider_group_id": 9, "location": "` + srv.URL + `"}], "in_network": []}`
	p := NewParser(strings.NewReader(body))
	p.Next()
	p.Next()

	refMap, _, err := BuildReferenceMap(context.Background(), &Config{}, p)
	if err != nil {
		t.Fatal(err)
	}
	if len(refMap[9]) != 1 || refMap[9][0].NPI[0] != "333" {
		t.Fatalf("expected the remote reference to resolve to NPI 333, got %#v", refMap[9])
	}
}

func TestBuildReferenceMap_TransientFetchFailureIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	body := `{"provider_references": [{"provider_group_id": 9, "location": "` + srv.URL + `"}], "in_network": []}`
	p := NewParser(strings.NewReader(body))
	p.Next()
	p.Next()

	var warnings []string
	cfg := &Config{OnDebug: func(format string, args ...any) { warnings = append(warnings, format) }}

	refMap, _, err := BuildReferenceMap(context.Background(), cfg, p)
	if err != nil {
		t.Fatalf("a transient fetch failure must not be fatal: %v", err)
	}
	if len(refMap) != 0 {
		t.Fatalf("expected no groups resolved after a failed fetch, got %#v", refMap)
	}
	if len(warnings) == 0 {
		t.Fatal("expected the transient failure to be logged via OnDebug")
	}
}

func TestBuildReferenceMap_RemoteNPIFilterApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"provider_groups": [{"npi": [111, 222], "tin": {"type": "ein", "value": "1"}}]}`))
	}))
	defer srv.Close()

	body := `{"provider_references": [{"provider_group_id": 1, "location": "` + srv.URL + `"}], "in_network": []}`
	p := NewParser(strings.NewReader(body))
	p.Next()
	p.Next()

	cfg := &Config{NPIFilter: NPIFilter{"222": {}}}
	refMap, _, err := BuildReferenceMap(context.Background(), cfg, p)
	if err != nil {
		t.Fatal(err)
	}
	if len(refMap[1]) != 1 || len(refMap[1][0].NPI) != 1 || refMap[1][0].NPI[0] != "222" {
		t.Fatalf("expected only NPI 222 to survive, got %#v", refMap[1])
	}
}
