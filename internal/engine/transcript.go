package engine

import (
	"fmt"
	"strings"

	"recursive-companion/internal/domain"
)

const transcriptRule = "--------------------------------------------------------------------------------"

// RenderTranscript produces a deterministic markdown rendering of an
// iteration record: per query, the baseline draft followed by each
// critique/revision pair in order, with the last revision labeled as the
// final answer. Pure: same slots in, same text out.
func RenderTranscript(slots []*domain.IterationSlot) string {
	var b strings.Builder

	for qi, slot := range slots {
		if qi > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# Query %d: %s\n\n", qi+1, slot.Query)

		b.WriteString("## Initial Draft\n")
		b.WriteString(transcriptRule + "\n")
		b.WriteString(slot.Draft + "\n")

		for i, critique := range slot.Critiques {
			fmt.Fprintf(&b, "\n## Iteration %d\n", i+1)

			fmt.Fprintf(&b, "\n### Critique %d\n", i+1)
			b.WriteString(transcriptRule + "\n")
			b.WriteString(critique + "\n")

			if i < len(slot.Revisions) {
				if i == len(slot.Revisions)-1 {
					b.WriteString("\n### Final Answer\n")
				} else {
					fmt.Fprintf(&b, "\n### Revision %d\n", i+1)
				}
				b.WriteString(transcriptRule + "\n")
				b.WriteString(slot.Revisions[i] + "\n")
			}
		}

		if slot.SimilarityScore != nil {
			fmt.Fprintf(&b, "\nFinal similarity: %.3f\n", *slot.SimilarityScore)
		}
	}

	return b.String()
}

// Transcript renders the companion's full iteration log.
func (c *Companion) Transcript() string {
	return RenderTranscript(c.Slots())
}
