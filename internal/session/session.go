package session

import (
	"time"

	"recursive-companion/internal/engine"
)

// State tracks a session's lifecycle. Transitions only move forward:
// Active -> Expired -> Evicted.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateEvicted State = "evicted"
)

// Session binds one companion instance to a (session id, agent type) pair.
// The registry guarantees at most one live instance per pair.
type Session struct {
	ID        string
	AgentType string
	Companion *engine.Companion

	// Guarded by the owning registry's mutex.
	createdAt    time.Time
	lastAccessed time.Time
	state        State
}

// Info is a read-only snapshot of session metadata.
type Info struct {
	ID           string    `json:"session_id"`
	AgentType    string    `json:"agent_type"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Queries      int       `json:"queries"`
	Iterations   int       `json:"iterations"`
}

func (s *Session) info() Info {
	slots := s.Companion.Slots()
	iterations := 0
	for _, slot := range slots {
		iterations += slot.Iteration()
	}
	return Info{
		ID:           s.ID,
		AgentType:    s.AgentType,
		State:        s.state,
		CreatedAt:    s.createdAt,
		LastAccessed: s.lastAccessed,
		Queries:      len(slots),
		Iterations:   iterations,
	}
}
