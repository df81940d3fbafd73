// Package storage defines the optional persistence contract for completed
// refinement slots. The engine and registry never depend on it; the daemon
// records slots when a store is configured.
package storage

import (
	"context"
	"time"

	"recursive-companion/internal/domain"
)

// SlotRecord is one persisted refinement cycle.
type SlotRecord struct {
	SessionID       string            `json:"session_id"`
	AgentType       string            `json:"agent_type"`
	SlotIndex       int               `json:"slot_index"`
	Query           string            `json:"query"`
	Draft           string            `json:"draft"`
	Critiques       []string          `json:"critiques"`
	Revisions       []string          `json:"revisions"`
	SimilarityScore *float64          `json:"similarity_score"`
	StopReason      domain.StopReason `json:"stop_reason"`
	CreatedAt       time.Time         `json:"created_at"`
}

// SlotStore persists completed slots.
type SlotStore interface {
	// SaveSlot inserts or replaces the record for
	// (session id, agent type, slot index).
	SaveSlot(ctx context.Context, rec *SlotRecord) error

	// ListSlots returns a session's records for one agent type, ordered
	// by slot index.
	ListSlots(ctx context.Context, sessionID, agentType string) ([]*SlotRecord, error)

	// DeleteSession removes all records for the session id across agent
	// types and reports how many were removed.
	DeleteSession(ctx context.Context, sessionID string) (int, error)

	Close() error
}

// RecordFromSlot builds a persistable record from a finished slot.
func RecordFromSlot(sessionID, agentType string, index int, slot *domain.IterationSlot, stop domain.StopReason) *SlotRecord {
	return &SlotRecord{
		SessionID:       sessionID,
		AgentType:       agentType,
		SlotIndex:       index,
		Query:           slot.Query,
		Draft:           slot.Draft,
		Critiques:       append([]string(nil), slot.Critiques...),
		Revisions:       append([]string(nil), slot.Revisions...),
		SimilarityScore: slot.SimilarityScore,
		StopReason:      stop,
		CreatedAt:       time.Now().UTC(),
	}
}
