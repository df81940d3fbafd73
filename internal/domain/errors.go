// Package domain provides the refinement data model and canonical error
// types shared by the engine, the session registry, and the API surfaces.
package domain

import (
	"errors"
	"fmt"
)

// ErrorType categorizes a companion error for API mapping and logging.
type ErrorType string

const (
	// ErrorTypePhaseOrder indicates a phase was requested out of legal
	// sequence. Recoverable by the caller choosing the correct phase;
	// never retried automatically.
	ErrorTypePhaseOrder ErrorType = "phase_order"

	// ErrorTypeGeneration indicates the text-generation call failed.
	// The phase does not commit; retry policy is the caller's.
	ErrorTypeGeneration ErrorType = "generation_service"

	// ErrorTypeSimilarity indicates the embedding call failed. Non-fatal:
	// the loop degrades to "similarity not reached".
	ErrorTypeSimilarity ErrorType = "similarity_computation"

	// ErrorTypeSessionNotFound indicates the requested session or
	// agent-type pair is absent from the registry.
	ErrorTypeSessionNotFound ErrorType = "session_not_found"

	// ErrorTypeSessionExpired indicates the session existed but has
	// passed its TTL and been evicted.
	ErrorTypeSessionExpired ErrorType = "session_expired"
)

// PhaseOrderError reports an attempted phase transition that violates the
// slot's array-length invariants.
type PhaseOrderError struct {
	Requested Phase
	Reason    string
}

func (e *PhaseOrderError) Error() string {
	return fmt.Sprintf("phase %q not permitted: %s", e.Requested, e.Reason)
}

// GenerationError wraps a failed generation-service call with enough
// context (phase, slot index) for caller-side retry.
type GenerationError struct {
	Phase     Phase
	SlotIndex int
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed in %s phase (slot %d): %v", e.Phase, e.SlotIndex, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SimilarityError wraps a failed embedding call. Callers treat it as
// "convergence not reached" rather than aborting the loop.
type SimilarityError struct {
	Err error
}

func (e *SimilarityError) Error() string {
	return fmt.Sprintf("similarity computation failed: %v", e.Err)
}

func (e *SimilarityError) Unwrap() error { return e.Err }

// SessionError reports a missing or expired session.
type SessionError struct {
	Type      ErrorType
	SessionID string
	AgentType string
}

func (e *SessionError) Error() string {
	if e.AgentType != "" {
		return fmt.Sprintf("%s: session %q agent %q", e.Type, e.SessionID, e.AgentType)
	}
	return fmt.Sprintf("%s: session %q", e.Type, e.SessionID)
}

// ConfigConflict is a warning, not an error: a GetOrCreate call supplied a
// different configuration than the one already in effect for the pair.
// First-writer-wins; the later config is ignored and the conflict surfaced.
type ConfigConflict struct {
	SessionID string
	AgentType string
	Ignored   SamplingConfig
}

// TypeOf returns the error's category, or "" for untyped errors.
func TypeOf(err error) ErrorType {
	var phase *PhaseOrderError
	var gen *GenerationError
	var sim *SimilarityError
	var sess *SessionError
	switch {
	case errors.As(err, &phase):
		return ErrorTypePhaseOrder
	case errors.As(err, &gen):
		return ErrorTypeGeneration
	case errors.As(err, &sim):
		return ErrorTypeSimilarity
	case errors.As(err, &sess):
		return sess.Type
	}
	return ""
}
