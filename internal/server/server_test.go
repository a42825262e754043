package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/loom/internal/adapters/sqlite"
	"github.com/example/loom/internal/app"
	"github.com/example/loom/internal/config"
	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/logging"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

// stubGit answers every git invocation with a canned success.
type stubGit struct {
	stdout map[string]string
}

func (s stubGit) Run(ctx context.Context, cwd string, args ...string) (secondary.GitResult, error) {
	call := strings.Join(args, " ")
	for prefix, out := range s.stdout {
		if strings.HasPrefix(call, prefix) {
			return secondary.GitResult{Stdout: out}, nil
		}
	}
	return secondary.GitResult{}, nil
}

// stubWorktrees satisfies the worktree port without touching git.
type stubWorktrees struct{ present map[string]bool }

func (f *stubWorktrees) Detect(ctx context.Context, slug, planPath string) (*primary.WorktreeInfo, error) {
	return &primary.WorktreeInfo{Present: f.present[slug], BaseBranch: "main"}, nil
}

func (f *stubWorktrees) Create(ctx context.Context, slug, planPath string) (*primary.WorktreeCreateResult, error) {
	f.present[slug] = true
	return &primary.WorktreeCreateResult{Path: "/repo/.worktrees/spec-" + slug, Branch: "spec/" + slug, BaseBranch: "main"}, nil
}

func (f *stubWorktrees) Diff(ctx context.Context, slug, planPath string) (string, error) {
	return "", nil
}

func (f *stubWorktrees) Sync(ctx context.Context, slug string) (*primary.WorktreeSyncResult, error) {
	return &primary.WorktreeSyncResult{Merged: true}, nil
}

func (f *stubWorktrees) Cleanup(ctx context.Context, slug, worktreePath string) (*primary.WorktreeCleanupResult, error) {
	delete(f.present, slug)
	return &primary.WorktreeCleanupResult{Removed: true}, nil
}

func (f *stubWorktrees) Status(ctx context.Context, slug, planPath string) (*primary.WorktreeStatus, error) {
	return &primary.WorktreeStatus{Present: f.present[slug], BaseBranch: "main"}, nil
}

// stubCode is an always-absent code backend; hybrid queries degrade to
// governance only.
type stubCode struct{}

func (stubCode) Available(ctx context.Context) bool { return false }

func (stubCode) Search(ctx context.Context, query string, top int, path string) ([]secondary.CodeHit, error) {
	return nil, nil
}

func (stubCode) IndexInfo(ctx context.Context, path string) (*secondary.CodeIndexInfo, error) {
	return nil, nil
}

func (stubCode) Reindex(ctx context.Context, path string, full bool) error { return nil }

type testEnv struct {
	server   *Server
	http     *httptest.Server
	learning *sqlite.LearningRepository
	root     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()
	root := t.TempDir()
	log := logging.Nop()

	memDB, err := db.OpenMemory(dataDir)
	if err != nil {
		t.Fatalf("failed to open memory db: %v", err)
	}
	govDB, err := db.OpenGovernance(dataDir)
	if err != nil {
		t.Fatalf("failed to open governance db: %v", err)
	}
	learnDB, err := db.OpenLearning(dataDir)
	if err != nil {
		t.Fatalf("failed to open learning db: %v", err)
	}
	t.Cleanup(func() { memDB.Close(); govDB.Close(); learnDB.Close() })

	memRepo := sqlite.NewMemoryRepository(memDB)
	learnRepo := sqlite.NewLearningRepository(learnDB)
	analyticsRepo := sqlite.NewAnalyticsRepository(learnDB)

	cfg := config.Default()
	cfg.Learning.GlobalEnabled = true

	git := stubGit{stdout: map[string]string{"rev-parse HEAD": "abc123\n"}}
	gitlog := app.NewGitAnalyzer(git, root)

	memory := app.NewMemoryService(memRepo)
	indexer := app.NewGovernanceIndexer(sqlite.NewGovernanceRepository(govDB), root, log)
	retriever := app.NewRetriever(indexer, stubCode{}, root, true, true, log)
	learning := app.NewLearningService(learnRepo, analyticsRepo, memRepo, gitlog, cfg, root, log)
	analytics := app.NewAnalyticsService(analyticsRepo, log)
	coordinator := app.NewCoordinator(app.NewSpecStore(root), &stubWorktrees{present: map[string]bool{}}, memRepo, 3, 4*time.Hour, log)

	srv := New(memory, retriever, learning, analytics, coordinator, &stubWorktrees{present: map[string]bool{}}, cfg, dataDir, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, http: ts, learning: learnRepo, root: root}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
	}
	resp, err := http.Post(e.http.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestMemorySaveAndSearch(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/memory/save", map[string]any{
		"type":  "decision",
		"title": "Adopt structured logging",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var saved map[string]int64
	decodeBody(t, resp, &saved)
	if saved["id"] == 0 {
		t.Error("expected a row id")
	}

	resp = env.post(t, "/memory/search", map[string]any{"query": "structured logging"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var results struct {
		Events []primary.MemoryEvent `json:"events"`
	}
	decodeBody(t, resp, &results)
	if len(results.Events) != 1 {
		t.Errorf("expected the saved event back, got %d", len(results.Events))
	}
}

func TestMemorySaveValidationMapsTo400(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/memory/save", map[string]any{"type": "gossip", "title": "x"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHookOriginSaveSwallowsErrors(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/memory/save", map[string]any{
		"type":        "gossip",
		"title":       "x",
		"hook_origin": true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("hook-origin save must return 204, got %d", resp.StatusCode)
	}
}

func TestAnalyticsFailureAlways204(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/analytics/failures", map[string]any{"category": "not_a_category"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("failure report must return 204, got %d", resp.StatusCode)
	}

	resp = env.post(t, "/analytics/failures", map[string]any{
		"category":  "lint_error",
		"file_path": "a.go",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	resp = env.get(t, "/analytics/summary?days=7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var summary primary.FailureSummary
	decodeBody(t, resp, &summary)
	if summary.Total != 1 {
		t.Errorf("expected the recorded failure in the summary, got %d", summary.Total)
	}
}

func TestSpecLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/spec/start", map[string]any{"slug": "add-auth", "title": "Add auth"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Verdict outside verifying is a state error.
	resp = env.post(t, "/spec/add-auth/verdict", map[string]any{"reviewer": "codex", "verdict": "pass"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("verdict in planning: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "/spec/add-auth/approve_plan", map[string]any{"total_tasks": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve_plan: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get(t, "/spec/state/add-auth")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var state struct {
		Phase string `json:"phase"`
	}
	decodeBody(t, resp, &state)
	if state.Phase != "implementing" {
		t.Errorf("expected implementing, got %q", state.Phase)
	}

	resp = env.get(t, "/spec/busy")
	var busy struct {
		Busy bool   `json:"busy"`
		Slug string `json:"slug"`
	}
	decodeBody(t, resp, &busy)
	if !busy.Busy || busy.Slug != "add-auth" {
		t.Errorf("expected busy on add-auth, got %+v", busy)
	}
}

func TestSpecUnknownSlugMapsTo404(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/spec/state/ghost")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSpecZeroTasksMapsTo400(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/spec/start", map[string]any{"slug": "add-auth"})
	resp.Body.Close()

	resp = env.post(t, "/spec/add-auth/approve_plan", map[string]any{"total_tasks": 0})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSpecAssess(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/spec/assess", map[string]any{
		"spec_text":      "Rename one helper function.",
		"affected_files": []string{"a.go"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["complexity"] == "" {
		t.Error("expected a complexity classification")
	}
}

func TestHybridSearchDegradesTo200(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/retrieval/search", map[string]any{
		"query":  "error handling convention",
		"corpus": "hybrid",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("degraded hybrid search must stay 200, got %d", resp.StatusCode)
	}
	var body primary.RetrievalResponse
	decodeBody(t, resp, &body)
	if len(body.Degraded) == 0 {
		t.Error("expected the dead code backend reported as degraded")
	}
}

func TestLearningDecideIdempotentOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.learning.SaveCandidate(ctx, &secondary.CandidateRecord{
		ID:            "cand-p-1",
		DetectionType: "error_handling",
		Status:        "proposed",
	}); err != nil {
		t.Fatalf("failed to seed candidate: %v", err)
	}
	if err := env.learning.SaveProposal(ctx, &secondary.ProposalRecord{
		ID:              "p-1",
		CandidateID:     "cand-p-1",
		Type:            "rule",
		Title:           "Wrap errors",
		Description:     "Handlers return bare errors",
		ProposedContent: "body",
		ProposedPath:    ".claude/rules/learning-wrap-errors.md",
		Confidence:      0.9,
		Status:          "pending",
	}); err != nil {
		t.Fatalf("failed to seed proposal: %v", err)
	}

	resp := env.post(t, "/learning/decide", map[string]any{
		"proposal_id": "p-1",
		"decision":    "reject",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first decide: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "/learning/decide", map[string]any{
		"proposal_id": "p-1",
		"decision":    "accept",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat decide: expected 200, got %d", resp.StatusCode)
	}
	var outcome primary.DecideResponse
	decodeBody(t, resp, &outcome)
	if !outcome.AlreadyDone || outcome.Decision != "reject" {
		t.Errorf("repeat decide must return the prior outcome, got %+v", outcome)
	}
}

func TestLearningConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/learning/config")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["min_confidence"] != 0.7 {
		t.Errorf("expected conservative min_confidence 0.7, got %v", body["min_confidence"])
	}
}

func TestMalformedJSONMapsTo400(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.http.URL+"/memory/save", "application/json", strings.NewReader("{truncated"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPortLockRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	go func() { _ = env.server.Start(0) }()

	// Start binds asynchronously; poll until the lock appears.
	deadline := time.Now().Add(2 * time.Second)
	var baseURL string
	var err error
	for time.Now().Before(deadline) {
		baseURL, err = ReadPortLock(env.server.dataDir)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("port.lock never appeared: %v", err)
	}

	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		t.Fatalf("health over port.lock failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := ReadPortLock(env.server.dataDir); err == nil {
		t.Error("port.lock must be removed on shutdown")
	}
}
