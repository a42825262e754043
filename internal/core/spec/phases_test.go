package spec

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		to   Phase
		want bool
	}{
		{"approve plan", PhasePlanning, PhaseImplementing, true},
		{"start verify", PhaseImplementing, PhaseVerifying, true},
		{"verify fails", PhaseVerifying, PhaseFixing, true},
		{"verify passes", PhaseVerifying, PhaseLearning, true},
		{"fix loop", PhaseFixing, PhaseImplementing, true},
		{"finish learning", PhaseLearning, PhaseDone, true},
		{"abort mid-flight", PhaseImplementing, PhaseAborted, true},
		{"abort from planning", PhasePlanning, PhaseAborted, true},
		{"skip verification", PhaseImplementing, PhaseLearning, false},
		{"skip implementation", PhasePlanning, PhaseVerifying, false},
		{"resurrect done", PhaseDone, PhaseImplementing, false},
		{"abort done", PhaseDone, PhaseAborted, false},
		{"abort aborted", PhaseAborted, PhaseAborted, false},
		{"backwards", PhaseVerifying, PhaseImplementing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("%s: CanTransition(%s, %s) = %v, want %v", tt.name, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !PhaseDone.IsTerminal() || !PhaseAborted.IsTerminal() {
		t.Error("done and aborted must be terminal")
	}
	if PhaseVerifying.IsTerminal() {
		t.Error("verifying must not be terminal")
	}
}

func TestIsBusy(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	stale := 4 * time.Hour

	s := &State{Phase: PhaseImplementing, UpdatedAt: now.Add(-time.Hour)}
	if !s.IsBusy(now, stale) {
		t.Error("recently updated implementing spec should be busy")
	}

	s.UpdatedAt = now.Add(-5 * time.Hour)
	if s.IsBusy(now, stale) {
		t.Error("spec beyond staleness window should not be busy")
	}

	s = &State{Phase: PhasePlanning, UpdatedAt: now}
	if s.IsBusy(now, stale) {
		t.Error("planning spec should never be busy")
	}
}
