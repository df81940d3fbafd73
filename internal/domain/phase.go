package domain

// Phase legality is a pure derivation over a slot's array lengths. No
// hidden counters: any process holding a serialized slot can re-derive
// the same answers.

// NextPhase returns the phase the slot's shape calls for next. A nil slot
// (no query yet) starts with a draft.
func NextPhase(slot *IterationSlot) Phase {
	switch {
	case slot == nil || slot.Draft == "":
		return PhaseDraft
	case len(slot.Critiques) > len(slot.Revisions):
		return PhaseRevise
	default:
		return PhaseCritique
	}
}

// CheckPhase reports whether requesting the given phase against the slot
// is legal, returning a PhaseOrderError describing the violation if not.
func CheckPhase(slot *IterationSlot, phase Phase) error {
	switch phase {
	case PhaseDraft:
		if slot != nil && len(slot.Revisions) > 0 {
			return &PhaseOrderError{
				Requested: PhaseDraft,
				Reason:    "revisions exist for this query; a new baseline would corrupt the iteration chain, start a new query instead",
			}
		}
		return nil

	case PhaseCritique:
		if slot == nil || slot.Draft == "" {
			return &PhaseOrderError{
				Requested: PhaseCritique,
				Reason:    "no draft exists yet, run the draft phase first",
			}
		}
		if len(slot.Critiques) > len(slot.Revisions) {
			return &PhaseOrderError{
				Requested: PhaseCritique,
				Reason:    "the latest critique has no revision yet, run the revise phase first",
			}
		}
		return nil

	case PhaseRevise:
		if slot == nil || slot.Draft == "" {
			return &PhaseOrderError{
				Requested: PhaseRevise,
				Reason:    "no draft exists yet, run the draft phase first",
			}
		}
		if len(slot.Critiques) == 0 {
			return &PhaseOrderError{
				Requested: PhaseRevise,
				Reason:    "no critique exists yet, run the critique phase first",
			}
		}
		if len(slot.Critiques) == len(slot.Revisions) {
			return &PhaseOrderError{
				Requested: PhaseRevise,
				Reason:    "every critique already has a revision, run the critique phase first",
			}
		}
		return nil

	default:
		return &PhaseOrderError{Requested: phase, Reason: "unknown phase"}
	}
}

// CheckInvariant verifies the slot's array-length relationship:
// len(revisions) <= len(critiques) <= len(revisions)+1.
func CheckInvariant(slot *IterationSlot) bool {
	if slot == nil {
		return true
	}
	c, r := len(slot.Critiques), len(slot.Revisions)
	return r <= c && c <= r+1
}
