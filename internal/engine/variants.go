package engine

import (
	"fmt"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/template"
)

// Agent variants are a closed set of named configurations: a template set
// plus default hyperparameters. Selecting one at construction time is the
// whole of "domain specialization" — there is no subclassing.
const (
	VariantGeneric   = "generic"
	VariantMarketing = "marketing"
	VariantBugTriage = "bug_triage"
	VariantStrategy  = "strategy"
)

// Default hyperparameters shared by the variants.
const (
	DefaultMaxIterations       = 3
	DefaultSimilarityThreshold = 0.98
	DefaultTemperature         = 0.7
	DefaultHistoryPairs        = 10
	DefaultCritiqueWindow      = 3
)

// DefaultCompletionSignals are the critique phrases that end a loop early.
// Matching is case-insensitive substring.
var DefaultCompletionSignals = []string{
	"no further improvements",
	"minimal revisions",
}

// Config is a companion's immutable configuration, fixed at construction.
type Config struct {
	Variant   string
	Templates template.Set

	Model               string
	Temperature         float32
	MaxIterations       int
	SimilarityThreshold float64

	// CompletionSignals are checked against each critique before a
	// revision is generated.
	CompletionSignals []string

	// CritiqueWindow is k: the critic sees the baseline draft plus up to
	// the last k-1 revisions.
	CritiqueWindow int

	// HistoryPairs bounds conversation history to the most recent N
	// human/agent pairs. HistoryTokenBudget additionally trims to a
	// model-token budget when > 0.
	HistoryPairs       int
	HistoryTokenBudget int

	// ClearHistoryAfterLoop wipes conversation history when a batch loop
	// completes, for one-shot usage.
	ClearHistoryAfterLoop bool
}

// VariantConfig returns the named variant's default configuration.
func VariantConfig(variant string) (Config, error) {
	cfg := Config{
		Variant:             variant,
		Temperature:         DefaultTemperature,
		MaxIterations:       DefaultMaxIterations,
		SimilarityThreshold: DefaultSimilarityThreshold,
		CompletionSignals:   DefaultCompletionSignals,
		CritiqueWindow:      DefaultCritiqueWindow,
		HistoryPairs:        DefaultHistoryPairs,
	}

	switch variant {
	case VariantGeneric, "":
		cfg.Variant = VariantGeneric
		cfg.Templates = template.Generic()
	case VariantMarketing:
		// Fewer loops for faster, more decisive marketing reads.
		cfg.Templates = template.Marketing()
		cfg.MaxIterations = 2
	case VariantBugTriage:
		cfg.Templates = template.BugTriage()
	case VariantStrategy:
		// A slightly lower bar lets near-identical final drafts stop the
		// loop when perspectives already align.
		cfg.Templates = template.Strategy()
		cfg.SimilarityThreshold = 0.97
	default:
		return Config{}, fmt.Errorf("unknown agent variant %q", variant)
	}
	return cfg, nil
}

// Variants lists the closed set of known variant names.
func Variants() []string {
	return []string{VariantGeneric, VariantMarketing, VariantBugTriage, VariantStrategy}
}

// ApplySampling overlays non-zero sampling fields onto the config.
func (c Config) ApplySampling(s domain.SamplingConfig) Config {
	if s.Model != "" {
		c.Model = s.Model
	}
	if s.Temperature != 0 {
		c.Temperature = s.Temperature
	}
	if s.MaxIterations != 0 {
		c.MaxIterations = s.MaxIterations
	}
	if s.SimilarityThreshold != 0 {
		c.SimilarityThreshold = s.SimilarityThreshold
	}
	return c
}

// Sampling reports the effective sampling fields, recorded on each slot.
func (c Config) Sampling() domain.SamplingConfig {
	return domain.SamplingConfig{
		Model:               c.Model,
		Temperature:         c.Temperature,
		MaxIterations:       c.MaxIterations,
		SimilarityThreshold: c.SimilarityThreshold,
	}
}
