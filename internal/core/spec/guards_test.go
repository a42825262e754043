package spec

import "testing"

func TestCanApprovePlan(t *testing.T) {
	tests := []struct {
		name       string
		phase      Phase
		totalTasks int
		allowed    bool
	}{
		{"valid plan", PhasePlanning, 3, true},
		{"zero tasks", PhasePlanning, 0, false},
		{"negative tasks", PhasePlanning, -1, false},
		{"wrong phase", PhaseImplementing, 3, false},
	}
	for _, tt := range tests {
		got := CanApprovePlan(tt.phase, tt.totalTasks)
		if got.Allowed != tt.allowed {
			t.Errorf("%s: allowed = %v, want %v (reason: %s)", tt.name, got.Allowed, tt.allowed, got.Reason)
		}
	}
}

func TestCanStartTask(t *testing.T) {
	tests := []struct {
		name      string
		phase     Phase
		task      int
		completed int
		total     int
		allowed   bool
	}{
		{"first task", PhaseImplementing, 1, 0, 3, true},
		{"next task", PhaseImplementing, 3, 2, 3, true},
		{"out of order", PhaseImplementing, 3, 0, 3, false},
		{"already done", PhaseImplementing, 1, 1, 3, false},
		{"out of range high", PhaseImplementing, 4, 3, 3, false},
		{"out of range low", PhaseImplementing, 0, 0, 3, false},
		{"wrong phase", PhaseVerifying, 1, 0, 3, false},
	}
	for _, tt := range tests {
		got := CanStartTask(tt.phase, tt.task, tt.completed, tt.total)
		if got.Allowed != tt.allowed {
			t.Errorf("%s: allowed = %v, want %v (reason: %s)", tt.name, got.Allowed, tt.allowed, got.Reason)
		}
	}
}

func TestCanStartVerify(t *testing.T) {
	if got := CanStartVerify(PhaseImplementing, 3, 3); !got.Allowed {
		t.Errorf("all tasks complete should allow verify: %s", got.Reason)
	}
	if got := CanStartVerify(PhaseImplementing, 2, 3); got.Allowed {
		t.Error("incomplete tasks must block verify")
	}
	if got := CanStartVerify(PhaseFixing, 3, 3); got.Allowed {
		t.Error("verify only starts from implementing")
	}
}

func TestCanResolveVerify(t *testing.T) {
	if got := CanResolveVerify(PhaseVerifying, true, 3, 3); !got.Allowed {
		t.Errorf("passing round resolves regardless of iteration count: %s", got.Reason)
	}
	if got := CanResolveVerify(PhaseVerifying, false, 1, 3); !got.Allowed {
		t.Errorf("failing round within budget enters fix loop: %s", got.Reason)
	}
	if got := CanResolveVerify(PhaseVerifying, false, 3, 3); got.Allowed {
		t.Error("failing round at iteration limit must be blocked")
	}
	if got := CanResolveVerify(PhaseImplementing, true, 0, 3); got.Allowed {
		t.Error("resolve only applies while verifying")
	}
}

func TestCanAbort(t *testing.T) {
	for _, phase := range []Phase{PhasePlanning, PhaseImplementing, PhaseVerifying, PhaseFixing, PhaseLearning} {
		if got := CanAbort(phase); !got.Allowed {
			t.Errorf("abort from %s should be allowed: %s", phase, got.Reason)
		}
	}
	if got := CanAbort(PhaseDone); got.Allowed {
		t.Error("abort from done must be blocked")
	}
}
