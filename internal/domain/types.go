package domain

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleHuman marks caller-authored input.
	RoleHuman Role = "human"

	// RoleAgent marks model-authored output.
	RoleAgent Role = "agent"
)

// Message is one role-tagged turn in a companion's conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Phase is one step of the refinement cycle. The legal next phase for a
// slot is derived from its array lengths, never stored.
type Phase string

const (
	PhaseDraft    Phase = "draft"
	PhaseCritique Phase = "critique"
	PhaseRevise   Phase = "revise"
)

// StopReason records why a refinement loop terminated.
type StopReason string

const (
	// StopTextualSignal means the critique contained a configured
	// completion phrase ("no further improvements").
	StopTextualSignal StopReason = "textual_signal"

	// StopSimilarity means two successive revisions scored at or above
	// the similarity threshold.
	StopSimilarity StopReason = "similarity_threshold"

	// StopMaxIterations means the critique/revise budget ran out.
	StopMaxIterations StopReason = "max_iterations"

	// StopNone means the loop has not terminated yet.
	StopNone StopReason = "none"
)

// SamplingConfig identifies the generation configuration that produced a
// slot. Zero values mean "use the variant default".
type SamplingConfig struct {
	Model               string  `json:"model,omitempty"`
	Temperature         float32 `json:"temperature,omitempty"`
	MaxIterations       int     `json:"max_iterations,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// IterationSlot is the full refinement record for one logical query: the
// immutable baseline draft plus the ordered critique/revision trajectory.
//
// Invariant: len(Revisions) <= len(Critiques) <= len(Revisions)+1. The
// array lengths are the sole source of truth for what phase comes next.
type IterationSlot struct {
	Query string `json:"query"`

	// Draft is the baseline answer. Once set it is never mutated.
	Draft string `json:"draft"`

	Critiques []string `json:"critique"`
	Revisions []string `json:"revision"`

	// SimilarityScore is the cosine similarity between the newest
	// revision and its predecessor (the prior revision, or the baseline
	// draft for the first revision). Nil until a revision exists or when
	// the embedding call failed.
	SimilarityScore *float64 `json:"similarity_score"`

	Variant  string         `json:"variant"`
	Sampling SamplingConfig `json:"sampling"`
}

// Best returns the current best answer for the slot: the latest revision,
// or the baseline draft when no revision exists yet.
func (s *IterationSlot) Best() string {
	if n := len(s.Revisions); n > 0 {
		return s.Revisions[n-1]
	}
	return s.Draft
}

// Iteration is the number of completed critique rounds.
func (s *IterationSlot) Iteration() int {
	return len(s.Critiques)
}

// Clone returns a deep copy of the slot, so callers can inspect state
// without racing with an in-flight phase call.
func (s *IterationSlot) Clone() *IterationSlot {
	out := *s
	out.Critiques = append([]string(nil), s.Critiques...)
	out.Revisions = append([]string(nil), s.Revisions...)
	if s.SimilarityScore != nil {
		score := *s.SimilarityScore
		out.SimilarityScore = &score
	}
	return &out
}

// PhaseResult is the outcome of one stepwise phase call.
type PhaseResult struct {
	Content    string     `json:"content"`
	Phase      Phase      `json:"phase"`
	Iteration  int        `json:"iteration_number"`
	Done       bool       `json:"done"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}
