package domain

import (
	"encoding/json"
	"testing"
)

func TestIterationSlot_Best(t *testing.T) {
	slot := &IterationSlot{Draft: "draft"}
	if got := slot.Best(); got != "draft" {
		t.Errorf("Best() = %q, want draft", got)
	}

	slot.Critiques = append(slot.Critiques, "c1")
	slot.Revisions = append(slot.Revisions, "r1")
	if got := slot.Best(); got != "r1" {
		t.Errorf("Best() = %q, want r1", got)
	}
}

func TestIterationSlot_Clone(t *testing.T) {
	score := 0.91
	slot := &IterationSlot{
		Query:           "q",
		Draft:           "d",
		Critiques:       []string{"c1"},
		Revisions:       []string{"r1"},
		SimilarityScore: &score,
	}

	clone := slot.Clone()
	clone.Critiques = append(clone.Critiques, "c2")
	*clone.SimilarityScore = 0.5

	if len(slot.Critiques) != 1 {
		t.Error("mutating the clone leaked into the original critiques")
	}
	if *slot.SimilarityScore != 0.91 {
		t.Error("mutating the clone leaked into the original score")
	}
}

func TestIterationSlot_JSON(t *testing.T) {
	score := 0.995
	slot := &IterationSlot{
		Query:           "why did engagement drop?",
		Draft:           "baseline",
		Critiques:       []string{"c1", "c2"},
		Revisions:       []string{"r1", "r2"},
		SimilarityScore: &score,
		Variant:         "marketing",
		Sampling:        SamplingConfig{Model: "gpt-4o-mini", Temperature: 0.8},
	}

	data, err := json.Marshal(slot)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// Wire names follow the serialized record shape: singular critique
	// and revision keys holding arrays.
	for _, key := range []string{"query", "draft", "critique", "revision", "similarity_score", "variant", "sampling"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("serialized slot missing key %q", key)
		}
	}

	var back IterationSlot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("round-trip error = %v", err)
	}
	if back.SimilarityScore == nil || *back.SimilarityScore != 0.995 {
		t.Error("similarity score did not survive the round trip")
	}
}

func TestIterationSlot_NullScore(t *testing.T) {
	data, err := json.Marshal(&IterationSlot{Query: "q", Draft: "d"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v, ok := raw["similarity_score"]; !ok || v != nil {
		t.Errorf("similarity_score = %v, want explicit null", v)
	}
}
