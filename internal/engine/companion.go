// Package engine implements the refinement companion: a draft, critique,
// revise loop that re-runs until the answer stabilizes or the iteration
// budget is spent. One companion owns one conversation's state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/provider"
	"recursive-companion/internal/template"
	"recursive-companion/internal/tokens"
)

// Scorer decides how close two revisions are. Satisfied by
// similarity.Scorer; tests substitute fakes.
type Scorer interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Result is the outcome of one batch Loop call.
type Result struct {
	// Answer is the final text: the last revision, or the draft when the
	// loop stopped before any revision.
	Answer string

	// StopReason is exactly one of the three termination causes.
	StopReason domain.StopReason

	// Iterations is the number of critique rounds performed.
	Iterations int

	// Slots holds a copy of the iteration record for this query.
	Slots []*domain.IterationSlot
}

// Companion runs the refinement loop for one conversation. All phase
// entry points serialize on an internal mutex: concurrent calls against
// the same companion are legal but execute one at a time.
type Companion struct {
	mu      sync.Mutex
	cfg     Config
	gen     provider.Generator
	scorer  Scorer
	logger  *slog.Logger
	history *history
	slots   []*domain.IterationSlot
}

// New builds a companion from an immutable config, a generator, and the
// process-shared scorer.
func New(cfg Config, gen provider.Generator, scorer Scorer, logger *slog.Logger) (*Companion, error) {
	if err := cfg.Templates.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be >= 1, got %d", cfg.MaxIterations)
	}
	if cfg.CritiqueWindow < 1 {
		cfg.CritiqueWindow = DefaultCritiqueWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	var counter *tokens.Counter
	if cfg.HistoryTokenBudget > 0 {
		counter = tokens.NewCounter(cfg.Model)
	}

	return &Companion{
		cfg:     cfg,
		gen:     gen,
		scorer:  scorer,
		logger:  logger,
		history: newHistory(cfg.HistoryPairs, cfg.HistoryTokenBudget, counter),
	}, nil
}

// Config returns the companion's effective configuration.
func (c *Companion) Config() Config { return c.cfg }

// Slots returns a deep copy of the companion's full iteration record.
func (c *Companion) Slots() []*domain.IterationSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.IterationSlot, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.Clone()
	}
	return out
}

// Loop runs the full refinement cycle for query and returns the final
// answer. Termination is always one of: a textual completion signal in a
// critique, revision similarity at or above threshold, or the iteration
// cap.
func (c *Companion) Loop(ctx context.Context, query string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, err := c.beginSlot(query)
	if err != nil {
		return nil, err
	}

	if slot.Draft == "" {
		if err := c.runDraft(ctx, slot); err != nil {
			return nil, err
		}
	}

	reason := domain.StopNone
	for reason == domain.StopNone {
		var critique string
		if len(slot.Critiques) > len(slot.Revisions) {
			// A resumed slot may carry an unanswered critique from an
			// earlier failed revise call. Answer it instead of
			// critiquing twice.
			critique = slot.Critiques[len(slot.Critiques)-1]
		} else {
			var err error
			critique, err = c.runCritique(ctx, slot)
			if err != nil {
				return nil, err
			}
		}
		if c.hasCompletionSignal(critique) {
			reason = domain.StopTextualSignal
			break
		}

		if err := c.runRevise(ctx, slot); err != nil {
			return nil, err
		}

		if c.converged(ctx, slot) {
			reason = domain.StopSimilarity
		} else if len(slot.Critiques) >= c.cfg.MaxIterations {
			reason = domain.StopMaxIterations
		}
	}

	if c.cfg.ClearHistoryAfterLoop {
		c.history.clear()
	}

	c.logger.Debug("loop finished",
		slog.String("variant", c.cfg.Variant),
		slog.String("stop_reason", string(reason)),
		slog.Int("iterations", slot.Iteration()),
	)

	return &Result{
		Answer:     slot.Best(),
		StopReason: reason,
		Iterations: slot.Iteration(),
		Slots:      []*domain.IterationSlot{slot.Clone()},
	}, nil
}

// Draft runs the stepwise draft phase. An exact-match query against a
// slot that already has revisions is rejected; retrying the same query
// before any revision returns the existing baseline unchanged. An empty
// query continues the previous slot's query.
func (c *Companion) Draft(ctx context.Context, query string) (domain.PhaseResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.lastSlot()
	if query == "" {
		if last == nil {
			return domain.PhaseResult{}, &domain.PhaseOrderError{
				Requested: domain.PhaseDraft,
				Reason:    "no query provided and no previous query to continue",
			}
		}
		query = last.Query
	}

	var slot *domain.IterationSlot
	if last != nil && last.Query == query {
		if err := domain.CheckPhase(last, domain.PhaseDraft); err != nil {
			return domain.PhaseResult{}, err
		}
		slot = last
	} else {
		slot = c.appendSlot(query)
	}

	if slot.Draft == "" {
		if err := c.runDraft(ctx, slot); err != nil {
			return domain.PhaseResult{}, err
		}
	}

	return domain.PhaseResult{
		Content:    slot.Draft,
		Phase:      domain.PhaseDraft,
		Iteration:  slot.Iteration(),
		Done:       false,
		StopReason: domain.StopNone,
	}, nil
}

// Critique runs the stepwise critique phase against the current slot.
// When the critique carries a completion signal the result is marked done
// and no revision is owed for it.
func (c *Companion) Critique(ctx context.Context) (domain.PhaseResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.lastSlot()
	if err := domain.CheckPhase(slot, domain.PhaseCritique); err != nil {
		return domain.PhaseResult{}, err
	}

	critique, err := c.runCritique(ctx, slot)
	if err != nil {
		return domain.PhaseResult{}, err
	}

	res := domain.PhaseResult{
		Content:    critique,
		Phase:      domain.PhaseCritique,
		Iteration:  slot.Iteration(),
		StopReason: domain.StopNone,
	}
	if c.hasCompletionSignal(critique) {
		res.Done = true
		res.StopReason = domain.StopTextualSignal
	}
	return res, nil
}

// Revise runs the stepwise revise phase: it answers the latest critique,
// updates history, and performs the convergence check.
func (c *Companion) Revise(ctx context.Context) (domain.PhaseResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.lastSlot()
	if err := domain.CheckPhase(slot, domain.PhaseRevise); err != nil {
		return domain.PhaseResult{}, err
	}

	if err := c.runRevise(ctx, slot); err != nil {
		return domain.PhaseResult{}, err
	}

	res := domain.PhaseResult{
		Content:    slot.Best(),
		Phase:      domain.PhaseRevise,
		Iteration:  slot.Iteration(),
		StopReason: domain.StopNone,
	}
	if c.converged(ctx, slot) {
		res.Done = true
		res.StopReason = domain.StopSimilarity
	} else if len(slot.Critiques) >= c.cfg.MaxIterations {
		res.Done = true
		res.StopReason = domain.StopMaxIterations
	}
	return res, nil
}

// ClearHistory wipes the conversation window, keeping the iteration log.
func (c *Companion) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.clear()
}

// beginSlot locates or creates the slot for a batch loop over query.
func (c *Companion) beginSlot(query string) (*domain.IterationSlot, error) {
	if query == "" {
		return nil, &domain.PhaseOrderError{
			Requested: domain.PhaseDraft,
			Reason:    "query must not be empty",
		}
	}
	last := c.lastSlot()
	if last != nil && last.Query == query {
		if err := domain.CheckPhase(last, domain.PhaseDraft); err != nil {
			return nil, err
		}
		// Incomplete earlier attempt (for example a failed draft call):
		// resume it rather than duplicating the query.
		return last, nil
	}
	return c.appendSlot(query), nil
}

func (c *Companion) appendSlot(query string) *domain.IterationSlot {
	slot := &domain.IterationSlot{
		Query:    query,
		Variant:  c.cfg.Variant,
		Sampling: c.cfg.Sampling(),
	}
	c.slots = append(c.slots, slot)
	return slot
}

func (c *Companion) lastSlot() *domain.IterationSlot {
	if len(c.slots) == 0 {
		return nil
	}
	return c.slots[len(c.slots)-1]
}

// runDraft generates the baseline and commits it together with the
// history pair. Nothing is committed on failure.
func (c *Companion) runDraft(ctx context.Context, slot *domain.IterationSlot) error {
	system, err := c.cfg.Templates.Render(template.InitialSystem, nil)
	if err != nil {
		return err
	}

	draft, err := c.gen.Generate(ctx, provider.GenerateRequest{
		System:      system,
		History:     c.history.snapshot(),
		User:        slot.Query,
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return &domain.GenerationError{Phase: domain.PhaseDraft, SlotIndex: c.slotIndex(slot), Err: err}
	}

	slot.Draft = draft
	c.history.appendPair(slot.Query, draft)
	return nil
}

// runCritique generates and commits one critique over the sliding
// context window.
func (c *Companion) runCritique(ctx context.Context, slot *domain.IterationSlot) (string, error) {
	system, err := c.cfg.Templates.Render(template.CritiqueSystem, nil)
	if err != nil {
		return "", err
	}
	user, err := c.cfg.Templates.Render(template.CritiqueUser, map[string]string{
		"user_input": slot.Query,
		"draft":      c.critiqueContext(slot),
	})
	if err != nil {
		return "", err
	}

	critique, err := c.gen.Generate(ctx, provider.GenerateRequest{
		System:      system,
		User:        user,
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", &domain.GenerationError{Phase: domain.PhaseCritique, SlotIndex: c.slotIndex(slot), Err: err}
	}

	slot.Critiques = append(slot.Critiques, critique)
	return critique, nil
}

// runRevise generates a revision for the latest critique, commits it, and
// swaps it into the history as the current best answer.
func (c *Companion) runRevise(ctx context.Context, slot *domain.IterationSlot) error {
	system, err := c.cfg.Templates.Render(template.RevisionSystem, nil)
	if err != nil {
		return err
	}
	user, err := c.cfg.Templates.Render(template.RevisionUser, map[string]string{
		"user_input": slot.Query,
		"draft":      slot.Best(),
		"critique":   slot.Critiques[len(slot.Critiques)-1],
	})
	if err != nil {
		return err
	}

	revision, err := c.gen.Generate(ctx, provider.GenerateRequest{
		System:      system,
		User:        user,
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return &domain.GenerationError{Phase: domain.PhaseRevise, SlotIndex: c.slotIndex(slot), Err: err}
	}

	slot.Revisions = append(slot.Revisions, revision)
	c.history.replaceLastAgent(revision)
	return nil
}

// converged compares the newest revision to its predecessor: the prior
// revision, or the baseline draft for the first one. Embedding failures
// degrade to "not converged": the score stays nil and the loop keeps
// running toward the iteration cap.
func (c *Companion) converged(ctx context.Context, slot *domain.IterationSlot) bool {
	n := len(slot.Revisions)
	if n == 0 {
		return false
	}
	prev := slot.Draft
	if n >= 2 {
		prev = slot.Revisions[n-2]
	}

	score, err := c.scorer.Similarity(ctx, prev, slot.Revisions[n-1])
	if err != nil {
		c.logger.Warn("similarity check failed, continuing loop",
			slog.String("variant", c.cfg.Variant),
			slog.Int("iteration", slot.Iteration()),
			slog.Any("error", err),
		)
		return false
	}

	slot.SimilarityScore = &score
	return score >= c.cfg.SimilarityThreshold
}

// critiqueContext builds the critic's sliding window: always the baseline
// draft, plus up to the last CritiqueWindow-1 revisions, so the critic
// sees the trajectory without unbounded growth.
func (c *Companion) critiqueContext(slot *domain.IterationSlot) string {
	var b strings.Builder
	b.WriteString("Baseline draft:\n")
	b.WriteString(slot.Draft)

	revs := slot.Revisions
	first := 0
	if keep := c.cfg.CritiqueWindow - 1; len(revs) > keep {
		first = len(revs) - keep
	}
	for i := first; i < len(revs); i++ {
		fmt.Fprintf(&b, "\n\nRevision %d:\n%s", i+1, revs[i])
	}
	return b.String()
}

func (c *Companion) hasCompletionSignal(critique string) bool {
	lower := strings.ToLower(critique)
	for _, signal := range c.cfg.CompletionSignals {
		if signal != "" && strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}

func (c *Companion) slotIndex(slot *domain.IterationSlot) int {
	for i, s := range c.slots {
		if s == slot {
			return i
		}
	}
	return -1
}
