// Package memory provides an in-memory SlotStore for tests and
// storage-less deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"recursive-companion/internal/storage"
)

type pairKey struct {
	sessionID string
	agentType string
}

// Store is an in-memory implementation of SlotStore.
type Store struct {
	mu    sync.RWMutex
	slots map[pairKey]map[int]*storage.SlotRecord
}

var _ storage.SlotStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		slots: make(map[pairKey]map[int]*storage.SlotRecord),
	}
}

func (s *Store) SaveSlot(ctx context.Context, rec *storage.SlotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{sessionID: rec.SessionID, agentType: rec.AgentType}
	if s.slots[k] == nil {
		s.slots[k] = make(map[int]*storage.SlotRecord)
	}
	cp := *rec
	s.slots[k][rec.SlotIndex] = &cp
	return nil
}

func (s *Store) ListSlots(ctx context.Context, sessionID, agentType string) ([]*storage.SlotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k := pairKey{sessionID: sessionID, agentType: agentType}
	var out []*storage.SlotRecord
	for _, rec := range s.slots[k] {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotIndex < out[j].SlotIndex })
	return out, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, recs := range s.slots {
		if k.sessionID == sessionID {
			n += len(recs)
			delete(s.slots, k)
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
