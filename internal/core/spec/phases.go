// Package spec contains the pure lifecycle logic for spec-driven work:
// phases, transitions, guards, and worktree fingerprints. Nothing in this
// package touches disk or git.
package spec

// Phase is a stage in the spec lifecycle.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseImplementing Phase = "implementing"
	PhaseVerifying    Phase = "verifying"
	PhaseFixing       Phase = "fixing"
	PhaseLearning     Phase = "learning"
	PhaseDone         Phase = "done"
	PhaseAborted      Phase = "aborted"
)

// validTransitions maps each phase to the phases it may move to. Abort is
// handled separately: every non-terminal phase may move to aborted.
var validTransitions = map[Phase][]Phase{
	PhasePlanning:     {PhaseImplementing},
	PhaseImplementing: {PhaseVerifying},
	PhaseVerifying:    {PhaseFixing, PhaseLearning},
	PhaseFixing:       {PhaseImplementing},
	PhaseLearning:     {PhaseDone},
	PhaseDone:         {},
	PhaseAborted:      {},
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	_, ok := validTransitions[p]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// IsActive reports whether the phase represents in-flight execution. Used by
// the busy check: a spec in one of these phases blocks concurrent mutation.
func (p Phase) IsActive() bool {
	return p == PhaseImplementing || p == PhaseVerifying || p == PhaseFixing
}

// CanTransition reports whether moving from one phase to another is allowed.
func CanTransition(from, to Phase) bool {
	if to == PhaseAborted {
		return !from.IsTerminal()
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
