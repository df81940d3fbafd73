package engine

import (
	"recursive-companion/internal/domain"
	"recursive-companion/internal/tokens"
)

// history is a companion's bounded conversation window: the most recent N
// human/agent pairs, optionally further trimmed to a token budget. It
// holds the current best answer per query, not every intermediate draft.
type history struct {
	pairs       int
	tokenBudget int
	counter     *tokens.Counter
	messages    []domain.Message
}

func newHistory(pairs, tokenBudget int, counter *tokens.Counter) *history {
	if pairs <= 0 {
		pairs = DefaultHistoryPairs
	}
	return &history{pairs: pairs, tokenBudget: tokenBudget, counter: counter}
}

// appendPair records one (human, agent) exchange and trims the window.
func (h *history) appendPair(human, agent string) {
	h.messages = append(h.messages,
		domain.Message{Role: domain.RoleHuman, Content: human},
		domain.Message{Role: domain.RoleAgent, Content: agent},
	)
	h.trim()
}

// replaceLastAgent swaps the most recent agent turn for content, so the
// history reflects the current best answer rather than a stale draft.
func (h *history) replaceLastAgent(content string) {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == domain.RoleAgent {
			h.messages[i].Content = content
			return
		}
	}
}

func (h *history) trim() {
	if max := h.pairs * 2; len(h.messages) > max {
		h.messages = append(h.messages[:0:0], h.messages[len(h.messages)-max:]...)
	}
	if h.tokenBudget <= 0 || h.counter == nil {
		return
	}
	// Drop whole pairs from the front until the window fits the budget;
	// always keep the most recent pair.
	for len(h.messages) > 2 && h.counter.CountMessages(h.messages) > h.tokenBudget {
		h.messages = append(h.messages[:0:0], h.messages[2:]...)
	}
}

// snapshot returns a copy safe to hand to a generation call.
func (h *history) snapshot() []domain.Message {
	return append([]domain.Message(nil), h.messages...)
}

func (h *history) clear() {
	h.messages = nil
}
