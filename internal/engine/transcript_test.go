package engine

import (
	"strings"
	"testing"

	"recursive-companion/internal/domain"
)

func transcriptSlots() []*domain.IterationSlot {
	score := 0.99
	return []*domain.IterationSlot{
		{
			Query:           "why did engagement drop?",
			Draft:           "baseline answer",
			Critiques:       []string{"too vague", "still thin"},
			Revisions:       []string{"better answer", "final answer text"},
			SimilarityScore: &score,
			Variant:         "marketing",
		},
	}
}

func TestRenderTranscript(t *testing.T) {
	out := RenderTranscript(transcriptSlots())

	for _, want := range []string{
		"# Query 1: why did engagement drop?",
		"## Initial Draft",
		"baseline answer",
		"### Critique 1",
		"too vague",
		"### Revision 1",
		"### Critique 2",
		"### Final Answer",
		"final answer text",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q", want)
		}
	}
}

func TestRenderTranscript_Idempotent(t *testing.T) {
	slots := transcriptSlots()
	first := RenderTranscript(slots)
	second := RenderTranscript(slots)
	if first != second {
		t.Error("rendering the same slots twice must produce identical output")
	}
}

func TestRenderTranscript_UnansweredCritique(t *testing.T) {
	slots := []*domain.IterationSlot{{
		Query:     "q",
		Draft:     "d",
		Critiques: []string{"no further improvements"},
	}}
	out := RenderTranscript(slots)
	if !strings.Contains(out, "no further improvements") {
		t.Error("transcript should include the terminal critique")
	}
	if strings.Contains(out, "### Final Answer") {
		t.Error("no revision exists, so no final-answer section should render")
	}
}

func TestRenderTranscript_MultipleQueries(t *testing.T) {
	slots := []*domain.IterationSlot{
		{Query: "first", Draft: "d1"},
		{Query: "second", Draft: "d2"},
	}
	out := RenderTranscript(slots)
	if !strings.Contains(out, "# Query 1: first") || !strings.Contains(out, "# Query 2: second") {
		t.Error("transcript should render queries in chronological order")
	}
	if strings.Index(out, "first") > strings.Index(out, "second") {
		t.Error("queries rendered out of order")
	}
}
