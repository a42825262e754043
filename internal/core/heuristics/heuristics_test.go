package heuristics

import (
	"testing"
	"time"

	"github.com/example/loom/internal/analyzer"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func fn(name string, params ...string) analyzer.FunctionShape {
	return analyzer.FunctionShape{Name: name, Params: params}
}

func TestDetectRepeatedBlocks(t *testing.T) {
	in := Input{
		Patterns: map[string]analyzer.FilePatterns{
			"internal/a/a.go": {Functions: []analyzer.FunctionShape{fn("Validate", "token")}},
			"internal/b/b.go": {Functions: []analyzer.FunctionShape{fn("Validate", "token")}},
			"internal/c/c.go": {Functions: []analyzer.FunctionShape{fn("Validate", "token")}},
		},
		CommitTime: testNow,
	}
	dets := detectRepeatedBlocks(in)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	d := dets[0]
	if d.Heuristic != H1RepeatedBlock || d.Count != 3 {
		t.Errorf("unexpected detection: %+v", d)
	}
	if len(d.Files) != 3 {
		t.Errorf("expected 3 files, got %v", d.Files)
	}
}

func TestDetectMissingStandard(t *testing.T) {
	withImport := analyzer.FilePatterns{Imports: []analyzer.ImportShape{{Module: "github.com/rs/zerolog"}}}
	in := Input{
		Patterns: map[string]analyzer.FilePatterns{
			"internal/svc/a.go": withImport,
			"internal/svc/b.go": withImport,
			"internal/svc/c.go": withImport,
			"internal/svc/d.go": {},
		},
		CommitTime: testNow,
	}
	dets := detectMissingStandard(in)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Heuristic != H2MissingStandard {
		t.Errorf("unexpected heuristic: %s", dets[0].Heuristic)
	}
}

func TestDetectMissingStandardUnanimousIsQuiet(t *testing.T) {
	withImport := analyzer.FilePatterns{Imports: []analyzer.ImportShape{{Module: "fmt"}}}
	in := Input{
		Patterns: map[string]analyzer.FilePatterns{
			"pkg/a.go": withImport,
			"pkg/b.go": withImport,
			"pkg/c.go": withImport,
		},
		CommitTime: testNow,
	}
	if dets := detectMissingStandard(in); len(dets) != 0 {
		t.Errorf("unanimous import should not fire: %+v", dets)
	}
}

func TestDetectInconsistentNaming(t *testing.T) {
	in := Input{
		Patterns: map[string]analyzer.FilePatterns{
			"a.py": {Functions: []analyzer.FunctionShape{fn("parse_verdict"), fn("load_state")}},
			"b.py": {Functions: []analyzer.FunctionShape{fn("parseVerdict"), fn("loadState")}},
		},
		CommitTime: testNow,
	}
	dets := detectInconsistentNaming(in)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Heuristic != H3Inconsistent || dets[0].Count != 4 {
		t.Errorf("unexpected detection: %+v", dets[0])
	}
}

func TestDetectSecurityShapes(t *testing.T) {
	in := Input{
		Sources: map[string]string{
			"store.go": `q := "SELECT * FROM users WHERE name = '" + name + "'"`,
		},
		CommitTime: testNow,
	}
	dets := detectSecurityShapes(in)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Heuristic != H4SecurityShape || dets[0].Type != TypeSecurityShape {
		t.Errorf("unexpected detection: %+v", dets[0])
	}
}

func TestDetectPerformanceShapes(t *testing.T) {
	source := `func load(db *sql.DB, users []User) {
	for _, u := range users {
		for _, o := range u.Orders {
			db.Query("SELECT * FROM items WHERE id = ?", o.ID)
		}
	}
}`
	in := Input{
		Sources:    map[string]string{"load.go": source, "load.go2": source},
		CommitTime: testNow,
	}
	dets := detectPerformanceShapes(in)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Count != 2 {
		t.Errorf("expected 2 hits, got %d", dets[0].Count)
	}
}

func TestDetectPerformanceShapesPython(t *testing.T) {
	source := `def load(users):
    for u in users:
        for o in u.orders:
            rows = db.execute("select * from items")
    return rows
`
	in := Input{Sources: map[string]string{"load.py": source}, CommitTime: testNow}
	dets := detectPerformanceShapes(in)
	if len(dets) != 1 || dets[0].Count != 1 {
		t.Fatalf("expected nested python call to fire once, got %+v", dets)
	}
}

func TestDetectTestGaps(t *testing.T) {
	in := Input{
		NewFiles: []string{"internal/auth/token.go", "internal/auth/session.go", "README.md"},
		RepoFiles: map[string]bool{
			"internal/auth/token.go":      true,
			"internal/auth/token_test.go": true,
			"internal/auth/session.go":    true,
		},
		CommitTime: testNow,
	}
	dets := detectTestGaps(in)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Files[0] != "internal/auth/session.go" {
		t.Errorf("unexpected file: %v", dets[0].Files)
	}
}

func TestDetectDocGaps(t *testing.T) {
	in := Input{
		NewFiles: []string{"billing/invoice.go", "shipping/rates.go"},
		RepoFiles: map[string]bool{
			"billing/invoice.go": true,
			"billing/README.md":  true,
			"shipping/rates.go":  true,
		},
		CommitTime: testNow,
	}
	dets := detectDocGaps(in)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Files[0] != "shipping" {
		t.Errorf("unexpected dir: %v", dets[0].Files)
	}
}

func TestBaseScore(t *testing.T) {
	// Below threshold scores near zero.
	if got := baseScore(TypeCodePattern, 2); got >= 0.1 {
		t.Errorf("sub-threshold score too high: %v", got)
	}
	// At threshold: 0.3 + 0.5*(3/6) = 0.55.
	if got := baseScore(TypeCodePattern, 3); got != 0.55 {
		t.Errorf("at-threshold score = %v, want 0.55", got)
	}
	// Saturates at 0.8.
	if got := baseScore(TypeCodePattern, 100); got != 0.8 {
		t.Errorf("saturated score = %v, want 0.8", got)
	}
}

func TestConsistencyFactor(t *testing.T) {
	identical := []Instance{{"k": "a"}, {"k": "a"}, {"k": "a"}}
	if got := consistencyFactor(identical); got != 1.0 {
		t.Errorf("identical instances = %v, want 1.0", got)
	}
	distinct := []Instance{{"k": "a"}, {"k": "b"}}
	if got := consistencyFactor(distinct); got != 0.75 {
		t.Errorf("distinct instances = %v, want 0.75", got)
	}
}

func TestRecencyFactor(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{time.Hour, 1.0},
		{48 * time.Hour, 0.9},
		{400 * time.Hour, 0.7},
		{1000 * time.Hour, 0.5},
	}
	for _, tt := range tests {
		inst := []Instance{{"detected_at": testNow.Add(-tt.age).Format(time.RFC3339)}}
		if got := recencyFactor(inst, testNow); got != tt.want {
			t.Errorf("age %v: recency = %v, want %v", tt.age, got, tt.want)
		}
	}
	if got := recencyFactor(nil, testNow); got != 1.0 {
		t.Errorf("no instances should default to 1.0, got %v", got)
	}
}

func TestScopeFactor(t *testing.T) {
	if got := scopeFactor([]string{"a/x/f.go", "a/x/g.go"}); got != 0.8 {
		t.Errorf("single dir = %v, want 0.8", got)
	}
	if got := scopeFactor([]string{"a/x/f.go", "a/y/g.go"}); got != 1.0 {
		t.Errorf("two dirs = %v, want 1.0", got)
	}
	got := scopeFactor([]string{"a/x/f.go", "a/y/g.go", "b/z/h.go", "c/w/i.go"})
	if got < 1.19 || got > 1.21 {
		t.Errorf("four dirs = %v, want 1.2", got)
	}
}

func TestConfidenceClamped(t *testing.T) {
	d := Detection{Type: TypeCodePattern, Count: 6, Files: []string{"a/x/f.go", "b/y/g.go", "c/z/h.go", "d/w/i.go"}}
	if got := Confidence(d, 1.5, testNow); got > 1.0 {
		t.Errorf("confidence must clamp to 1.0, got %v", got)
	}
}

func TestFilterDecisionTree(t *testing.T) {
	mkDet := func(h, typ string, count int, files ...string) Detection {
		return Detection{Heuristic: h, Type: typ, Count: count, Files: files, Description: h + " det"}
	}
	dets := []Detection{
		mkDet(H1RepeatedBlock, TypeCodePattern, 2, "a.go", "b.go"),          // below threshold
		mkDet(H1RepeatedBlock, TypeCodePattern, 4, "a.go"),                  // single file
		mkDet(H6TestGap, TypeTestGap, 1, "a.go"),                            // single file but exempt
		mkDet(H1RepeatedBlock, TypeCodePattern, 4, "a.go", "b.go", "c.go"),  // survives
		mkDet(H3Inconsistent, TypeCodePattern, 5, "cool.go", "cooler.go"),   // cooldown
		mkDet(H4SecurityShape, TypeSecurityShape, 1, "store.go"),            // existing rule
	}
	ctx := FilterContext{
		InCooldown: func(typ, hash string) bool {
			return hash == DescriptionHash("H3 det")
		},
		ExistingRuleFingerprint: func(hash string) bool {
			return hash == DescriptionHash("H4 det")
		},
		PriorFactor: func(string) float64 { return 1.0 },
		Now:         testNow,
	}
	got := Filter(dets, ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	byHeuristic := map[string]Candidate{}
	for _, c := range got {
		byHeuristic[c.Heuristic] = c
	}
	if _, ok := byHeuristic[H6TestGap]; !ok {
		t.Error("test gap should survive single-file filter")
	}
	surv, ok := byHeuristic[H1RepeatedBlock]
	if !ok {
		t.Fatal("repeated block above threshold should survive")
	}
	if surv.ConfidenceFinal <= 0 || surv.ConfidenceFinal > 1 {
		t.Errorf("confidence out of range: %v", surv.ConfidenceFinal)
	}
	if surv.DescriptionHash != DescriptionHash("H1 det") {
		t.Errorf("unexpected hash: %s", surv.DescriptionHash)
	}
}

func TestFilterPriorFactorShifts(t *testing.T) {
	d := Detection{Heuristic: H1RepeatedBlock, Type: TypeCodePattern, Count: 4, Files: []string{"a/x.go", "b/y.go"}, Description: "d"}
	score := func(prior float64) float64 {
		got := Filter([]Detection{d}, FilterContext{
			PriorFactor: func(string) float64 { return prior },
			Now:         testNow,
		})
		if len(got) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(got))
		}
		return got[0].ConfidenceFinal
	}
	if score(1.5) <= score(0.5) {
		t.Error("higher prior factor must raise confidence")
	}
}
