// Package session provides the multi-tenant registry that maps
// (session id, agent type) pairs to live companion instances, with TTL
// eviction and first-writer-wins configuration.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/engine"
	"recursive-companion/internal/provider"
)

// DefaultHighWater is the session count past which GetOrCreate sweeps
// expired sessions opportunistically.
const DefaultHighWater = 256

type key struct {
	id        string
	agentType string
}

// Registry manages companion instances keyed by session id and agent type.
// A single mutex covers the check-then-create path so concurrent
// GetOrCreate calls for the same pair observe exactly one instance.
type Registry struct {
	mu       sync.Mutex
	sessions map[key]*Session

	gen       provider.Generator
	scorer    engine.Scorer
	ttl       time.Duration
	highWater int
	logger    *slog.Logger

	now func() time.Time
}

// NewRegistry creates a registry. A zero ttl disables expiry.
func NewRegistry(gen provider.Generator, scorer engine.Scorer, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:  make(map[key]*Session),
		gen:       gen,
		scorer:    scorer,
		ttl:       ttl,
		highWater: DefaultHighWater,
		logger:    logger,
		now:       time.Now,
	}
}

// GetOrCreate returns the companion for the pair, creating it on first use.
// A missing session id mints a new one. When the pair already exists and the
// caller supplied a different sampling config, the existing config wins and
// the ignored values are returned as a ConfigConflict warning.
func (r *Registry) GetOrCreate(sessionID, agentType string, sampling domain.SamplingConfig) (*Session, bool, *domain.ConfigConflict, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if agentType == "" {
		agentType = engine.VariantGeneric
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.sessions) > r.highWater {
		r.evictExpiredLocked(now)
	}

	k := key{id: sessionID, agentType: agentType}
	if sess, ok := r.sessions[k]; ok {
		if !r.expired(sess, now) {
			sess.lastAccessed = now
			var warn *domain.ConfigConflict
			if conflicts(sess.Companion.Config().Sampling(), sampling) {
				warn = &domain.ConfigConflict{
					SessionID: sessionID,
					AgentType: agentType,
					Ignored:   sampling,
				}
				r.logger.Warn("session config conflict, keeping existing config",
					"session_id", sessionID,
					"agent_type", agentType)
			}
			return sess, false, warn, nil
		}
		r.evictLocked(k, StateExpired)
	}

	cfg, err := engine.VariantConfig(agentType)
	if err != nil {
		return nil, false, nil, err
	}
	cfg = cfg.ApplySampling(sampling)

	companion, err := engine.New(cfg, r.gen, r.scorer,
		r.logger.With("session_id", sessionID, "agent_type", agentType))
	if err != nil {
		return nil, false, nil, err
	}

	sess := &Session{
		ID:           sessionID,
		AgentType:    agentType,
		Companion:    companion,
		createdAt:    now,
		lastAccessed: now,
		state:        StateActive,
	}
	r.sessions[k] = sess
	r.logger.Info("session created", "session_id", sessionID, "agent_type", agentType)
	return sess, true, nil, nil
}

// Lookup returns an existing active session or a typed SessionError.
func (r *Registry) Lookup(sessionID, agentType string) (*Session, error) {
	if agentType == "" {
		agentType = engine.VariantGeneric
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{id: sessionID, agentType: agentType}
	sess, ok := r.sessions[k]
	if !ok {
		return nil, &domain.SessionError{
			Type:      domain.ErrorTypeSessionNotFound,
			SessionID: sessionID,
			AgentType: agentType,
		}
	}
	now := r.now()
	if r.expired(sess, now) {
		r.evictLocked(k, StateExpired)
		return nil, &domain.SessionError{
			Type:      domain.ErrorTypeSessionExpired,
			SessionID: sessionID,
			AgentType: agentType,
		}
	}
	sess.lastAccessed = now
	return sess, nil
}

// Evict removes every agent-type entry for the session id. It returns the
// number of companions unlinked. In-flight calls holding a companion finish
// normally; eviction only unlinks it from the registry.
func (r *Registry) Evict(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k := range r.sessions {
		if k.id == sessionID {
			r.evictLocked(k, StateEvicted)
			n++
		}
	}
	return n
}

// EvictExpired removes sessions whose TTL elapsed before now and reports
// how many were removed.
func (r *Registry) EvictExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictExpiredLocked(now)
}

// Sweep runs EvictExpired on a ticker until the context is cancelled.
// Intended to be started as a goroutine by the daemon.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.EvictExpired(now); n > 0 {
				r.logger.Info("evicted expired sessions", "count", n)
			}
		}
	}
}

// List returns metadata snapshots for all live sessions, ordered by
// session id then agent type.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].AgentType < out[j].AgentType
	})
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) expired(sess *Session, now time.Time) bool {
	return r.ttl > 0 && sess.lastAccessed.Add(r.ttl).Before(now)
}

func (r *Registry) evictExpiredLocked(now time.Time) int {
	n := 0
	for k, sess := range r.sessions {
		if r.expired(sess, now) {
			r.evictLocked(k, StateExpired)
			n++
		}
	}
	return n
}

func (r *Registry) evictLocked(k key, terminal State) {
	if sess, ok := r.sessions[k]; ok {
		sess.state = terminal
		delete(r.sessions, k)
	}
}

// conflicts reports whether the caller asked for sampling values that
// differ from the effective config. Zero-valued fields mean "no opinion".
func conflicts(effective, requested domain.SamplingConfig) bool {
	if requested.Model != "" && requested.Model != effective.Model {
		return true
	}
	if requested.Temperature != 0 && requested.Temperature != effective.Temperature {
		return true
	}
	if requested.MaxIterations != 0 && requested.MaxIterations != effective.MaxIterations {
		return true
	}
	if requested.SimilarityThreshold != 0 && requested.SimilarityThreshold != effective.SimilarityThreshold {
		return true
	}
	return false
}
