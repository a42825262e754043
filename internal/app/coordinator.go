package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/core/review"
	"github.com/example/loom/internal/core/spec"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

// AbortReasonUnfixed marks specs aborted because the fix loop ran out of
// iterations.
const AbortReasonUnfixed = "unfixed"

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// CoordinatorImpl drives the spec lifecycle state machine. Transitions for a
// single slug are serialized behind a per-slug lock; worktree side effects
// run before the state write, so a failed git operation leaves the phase
// unchanged.
type CoordinatorImpl struct {
	store     *SpecStore
	worktrees primary.WorktreeManager
	memory    secondary.MemoryRepository
	log       zerolog.Logger

	maxIterations int
	staleAfter    time.Duration
	now           func() time.Time

	mu       sync.Mutex
	slugMu   map[string]*sync.Mutex
	verdicts map[string][]review.ReviewerVerdict
}

// NewCoordinator creates a coordinator with injected collaborators.
func NewCoordinator(
	store *SpecStore,
	worktrees primary.WorktreeManager,
	memory secondary.MemoryRepository,
	maxIterations int,
	staleAfter time.Duration,
	log zerolog.Logger,
) *CoordinatorImpl {
	if maxIterations <= 0 {
		maxIterations = 3
	}
	if staleAfter <= 0 {
		staleAfter = 4 * time.Hour
	}
	return &CoordinatorImpl{
		store:         store,
		worktrees:     worktrees,
		memory:        memory,
		log:           log,
		maxIterations: maxIterations,
		staleAfter:    staleAfter,
		now:           time.Now,
		slugMu:        map[string]*sync.Mutex{},
		verdicts:      map[string][]review.ReviewerVerdict{},
	}
}

// Start creates a spec in planning.
func (c *CoordinatorImpl) Start(ctx context.Context, req primary.StartSpecRequest) (*spec.State, error) {
	if !slugRe.MatchString(req.Slug) {
		return nil, apperr.Validationf("slug must be lowercase alphanumeric with hyphens, got %q", req.Slug)
	}
	unlock := c.lock(req.Slug)
	defer unlock()

	if existing, err := c.store.Load(req.Slug); err == nil && !existing.Phase.IsTerminal() {
		return nil, fmt.Errorf("%w: spec %q already in phase %s", apperr.ErrConflict, req.Slug, existing.Phase)
	}

	now := c.now().UTC()
	state := spec.New(req.Slug, req.Title, req.PlanPath, now)
	if err := c.store.Save(state); err != nil {
		return nil, err
	}
	c.log.Info().Str("slug", req.Slug).Msg("spec started")
	return state, nil
}

// ApprovePlan moves planning → implementing and creates the worktree. The
// worktree is created first; if that fails the spec stays in planning.
func (c *CoordinatorImpl) ApprovePlan(ctx context.Context, slug string, totalTasks int) (*spec.State, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if result := spec.CanApprovePlan(state.Phase, totalTasks); !result.Allowed {
		return nil, guardErr(result, totalTasks <= 0)
	}

	created, err := c.worktrees.Create(ctx, slug, state.PlanPath)
	if err != nil {
		return nil, err
	}

	state.Phase = spec.PhaseImplementing
	state.TotalTasks = totalTasks
	state.WorktreePath = created.Path
	state.Branch = created.Branch
	state.Fingerprint = fingerprintFromPath(created.Path)
	return c.save(state)
}

// StartTask checks that task n is next; it records no extra state beyond the
// freshened updated_at, which keeps the busy probe accurate.
func (c *CoordinatorImpl) StartTask(ctx context.Context, slug string, taskNum int) (*spec.State, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if result := spec.CanStartTask(state.Phase, taskNum, state.CompletedTasks, state.TotalTasks); !result.Allowed {
		return nil, apperr.Statef("%s", result.Reason)
	}
	return c.save(state)
}

// CompleteTask marks task n done.
func (c *CoordinatorImpl) CompleteTask(ctx context.Context, slug string, taskNum int) (*spec.State, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if result := spec.CanCompleteTask(state.Phase, taskNum, state.CompletedTasks); !result.Allowed {
		return nil, apperr.Statef("%s", result.Reason)
	}
	state.CompletedTasks++
	return c.save(state)
}

// StartVerify moves implementing → verifying once every task is complete and
// resets the verdict set for the new iteration.
func (c *CoordinatorImpl) StartVerify(ctx context.Context, slug string) (*spec.State, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if result := spec.CanStartVerify(state.Phase, state.CompletedTasks, state.TotalTasks); !result.Allowed {
		return nil, apperr.Statef("%s", result.Reason)
	}
	state.Phase = spec.PhaseVerifying
	c.verdicts[slug] = nil
	return c.save(state)
}

// SubmitVerdict appends one reviewer verdict to the current iteration.
// Verdicts are held in memory only; the caller decides when the set is
// complete and calls ResolveVerify.
func (c *CoordinatorImpl) SubmitVerdict(ctx context.Context, slug string, verdict review.ReviewerVerdict) (*spec.State, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if state.Phase != spec.PhaseVerifying {
		return nil, apperr.Statef("verdicts only accepted while verifying (current phase: %s)", state.Phase)
	}
	c.verdicts[slug] = append(c.verdicts[slug], verdict)
	return c.save(state)
}

// ResolveVerify settles the current verification round. All pass → learning
// and the spec branch is squash-merged; fail with iterations left → fixing →
// implementing with fix instructions; fail at the limit → aborted.
func (c *CoordinatorImpl) ResolveVerify(ctx context.Context, slug string) (*primary.ResolveVerifyResponse, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if state.Phase != spec.PhaseVerifying {
		return nil, apperr.Statef("can only resolve verification while verifying (current phase: %s)", state.Phase)
	}

	verdicts := c.verdicts[slug]
	summary := review.Aggregate(verdicts)

	if summary.AllPassed {
		if _, err := c.worktrees.Sync(ctx, slug); err != nil {
			return nil, err
		}
		state.Phase = spec.PhaseLearning
		saved, err := c.save(state)
		if err != nil {
			return nil, err
		}
		return &primary.ResolveVerifyResponse{State: saved, Passed: true}, nil
	}

	if state.ReviewIteration < c.maxIterations {
		state.ReviewIteration++
		// fixing is a transit phase; record it, then resume implementing.
		state.Phase = spec.PhaseFixing
		if _, err := c.save(state); err != nil {
			return nil, err
		}
		state.Phase = spec.PhaseImplementing
		c.verdicts[slug] = nil
		saved, err := c.save(state)
		if err != nil {
			return nil, err
		}
		return &primary.ResolveVerifyResponse{
			State:           saved,
			FixInstructions: review.BuildFixInstructions(verdicts),
		}, nil
	}

	state.Phase = spec.PhaseAborted
	saved, err := c.save(state)
	if err != nil {
		return nil, err
	}
	c.recordAbort(ctx, saved, AbortReasonUnfixed)
	return &primary.ResolveVerifyResponse{State: saved}, nil
}

// Complete moves learning → done, cleans up the worktree, and records a
// memory event summarizing the run.
func (c *CoordinatorImpl) Complete(ctx context.Context, slug string) (*spec.State, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if result := spec.CanComplete(state.Phase); !result.Allowed {
		return nil, apperr.Statef("%s", result.Reason)
	}

	// The path recorded at creation, not a fresh derivation: the plan file
	// may have changed since and would fingerprint to a different directory.
	if _, err := c.worktrees.Cleanup(ctx, slug, state.WorktreePath); err != nil {
		return nil, err
	}

	state.Phase = spec.PhaseDone
	saved, err := c.save(state)
	if err != nil {
		return nil, err
	}
	delete(c.verdicts, slug)

	c.saveMemoryEvent(ctx, &secondary.MemoryEventRecord{
		TS:    c.now().UTC().Format(time.RFC3339Nano),
		Type:  "decision",
		Title: fmt.Sprintf("Spec %s completed", slug),
		Text: fmt.Sprintf("Completed %d tasks in %d review iteration(s).",
			saved.TotalTasks, saved.ReviewIteration+1),
		Tags:           []string{"spec", "orchestration"},
		Refs:           map[string]string{"spec": slug},
		Importance:     0.6,
		CreatedAtEpoch: c.now().Unix(),
	})
	return saved, nil
}

// Abort moves any non-terminal phase to aborted. The worktree is left in
// place for inspection.
func (c *CoordinatorImpl) Abort(ctx context.Context, slug, reason string) (*spec.State, error) {
	unlock := c.lock(slug)
	defer unlock()

	state, err := c.store.Load(slug)
	if err != nil {
		return nil, err
	}
	if result := spec.CanAbort(state.Phase); !result.Allowed {
		return nil, apperr.Statef("%s", result.Reason)
	}
	state.Phase = spec.PhaseAborted
	saved, err := c.save(state)
	if err != nil {
		return nil, err
	}
	delete(c.verdicts, slug)
	c.recordAbort(ctx, saved, reason)
	return saved, nil
}

// Get returns the state for one spec.
func (c *CoordinatorImpl) Get(ctx context.Context, slug string) (*spec.State, error) {
	return c.store.Load(slug)
}

// List returns all known spec states.
func (c *CoordinatorImpl) List(ctx context.Context) ([]*spec.State, error) {
	return c.store.List()
}

// IsBusy reports whether any spec is actively worked on. Specs idle past the
// staleness window no longer count, so a crashed run cannot block session
// exits forever.
func (c *CoordinatorImpl) IsBusy(ctx context.Context) (bool, string, error) {
	states, err := c.store.List()
	if err != nil {
		return false, "", err
	}
	now := c.now().UTC()
	for _, state := range states {
		if state.IsBusy(now, c.staleAfter) {
			return true, state.Slug, nil
		}
	}
	return false, "", nil
}

func (c *CoordinatorImpl) save(state *spec.State) (*spec.State, error) {
	state.UpdatedAt = c.now().UTC()
	if err := c.store.Save(state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *CoordinatorImpl) lock(slug string) func() {
	c.mu.Lock()
	m, ok := c.slugMu[slug]
	if !ok {
		m = &sync.Mutex{}
		c.slugMu[slug] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (c *CoordinatorImpl) recordAbort(ctx context.Context, state *spec.State, reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	c.log.Warn().Str("slug", state.Slug).Str("reason", reason).Msg("spec aborted")
	c.saveMemoryEvent(ctx, &secondary.MemoryEventRecord{
		TS:             c.now().UTC().Format(time.RFC3339Nano),
		Type:           "discovery",
		Title:          fmt.Sprintf("Spec %s aborted", state.Slug),
		Text:           fmt.Sprintf("Aborted in phase transition: %s.", reason),
		Tags:           []string{"spec", "orchestration"},
		Refs:           map[string]string{"spec": state.Slug, "reason": reason},
		Importance:     0.5,
		CreatedAtEpoch: c.now().Unix(),
	})
}

// saveMemoryEvent is best-effort: orchestration never fails because the
// memory stream is down.
func (c *CoordinatorImpl) saveMemoryEvent(ctx context.Context, event *secondary.MemoryEventRecord) {
	if c.memory == nil {
		return
	}
	if _, err := c.memory.Save(ctx, event); err != nil {
		c.log.Warn().Err(err).Msg("failed to record orchestration memory event")
	}
}

func guardErr(result spec.GuardResult, validation bool) error {
	if validation {
		return apperr.Validationf("%s", result.Reason)
	}
	return apperr.Statef("%s", result.Reason)
}

func fingerprintFromPath(path string) string {
	// spec-<slug>-<sha8>
	idx := strings.LastIndex(path, "-")
	if idx == -1 || idx == len(path)-1 {
		return ""
	}
	return path[idx+1:]
}

var _ primary.SpecCoordinator = (*CoordinatorImpl)(nil)
