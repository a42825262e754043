package spec

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

func denyf(format string, args ...any) GuardResult {
	return GuardResult{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

func allow() GuardResult {
	return GuardResult{Allowed: true}
}

// CanApprovePlan evaluates whether a plan can be approved.
// Rules:
// - Phase must be planning
// - The plan must declare at least one task
func CanApprovePlan(phase Phase, totalTasks int) GuardResult {
	if phase != PhasePlanning {
		return denyf("can only approve a plan while planning (current phase: %s)", phase)
	}
	if totalTasks <= 0 {
		return denyf("plan must declare at least one task (got %d)", totalTasks)
	}
	return allow()
}

// CanStartTask evaluates whether a task can be started.
// Rules:
// - Phase must be implementing
// - Task index must be in range and the next uncompleted task
func CanStartTask(phase Phase, taskIndex, completedTasks, totalTasks int) GuardResult {
	if phase != PhaseImplementing {
		return denyf("can only start tasks while implementing (current phase: %s)", phase)
	}
	if taskIndex < 1 || taskIndex > totalTasks {
		return denyf("task %d out of range [1..%d]", taskIndex, totalTasks)
	}
	if taskIndex != completedTasks+1 {
		return denyf("tasks run in order: next task is %d, not %d", completedTasks+1, taskIndex)
	}
	return allow()
}

// CanCompleteTask evaluates whether a task can be marked complete.
func CanCompleteTask(phase Phase, taskIndex, completedTasks int) GuardResult {
	if phase != PhaseImplementing {
		return denyf("can only complete tasks while implementing (current phase: %s)", phase)
	}
	if taskIndex != completedTasks+1 {
		return denyf("task %d is not in progress (completed: %d)", taskIndex, completedTasks)
	}
	return allow()
}

// CanStartVerify evaluates whether verification can begin.
// Rules:
// - Phase must be implementing
// - All declared tasks must be complete
func CanStartVerify(phase Phase, completedTasks, totalTasks int) GuardResult {
	if phase != PhaseImplementing {
		return denyf("can only verify after implementing (current phase: %s)", phase)
	}
	if completedTasks < totalTasks {
		return denyf("cannot verify with %d of %d tasks incomplete", totalTasks-completedTasks, totalTasks)
	}
	return allow()
}

// CanResolveVerify evaluates whether a verification round can be resolved.
// Rules:
// - Phase must be verifying
// - A failing round may only enter the fix loop while iterations remain
func CanResolveVerify(phase Phase, pass bool, reviewIteration, maxIterations int) GuardResult {
	if phase != PhaseVerifying {
		return denyf("can only resolve verification while verifying (current phase: %s)", phase)
	}
	if !pass && reviewIteration >= maxIterations {
		return denyf("review iteration limit reached (%d of %d); abort or resolve manually", reviewIteration, maxIterations)
	}
	return allow()
}

// CanComplete evaluates whether the spec can be marked done.
func CanComplete(phase Phase) GuardResult {
	if phase != PhaseLearning {
		return denyf("can only complete after learning (current phase: %s)", phase)
	}
	return allow()
}

// CanAbort evaluates whether the spec can be aborted.
func CanAbort(phase Phase) GuardResult {
	if phase.IsTerminal() {
		return denyf("spec already %s", phase)
	}
	return allow()
}
