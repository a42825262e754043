package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Add rule: wrap errors", "add-rule-wrap-errors"},
		{"  Spaces   everywhere  ", "spaces-everywhere"},
		{"Symbols & punctuation!", "symbols-punctuation"},
		{"UPPER Case", "upper-case"},
	}
	for _, tc := range cases {
		if got := Slug(tc.title); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestSlugCapsLength(t *testing.T) {
	long := strings.Repeat("word ", 30)
	slug := Slug(long)
	if len(slug) > 60 {
		t.Errorf("slug exceeds 60 chars: %d", len(slug))
	}
	if strings.HasSuffix(slug, "-") {
		t.Errorf("capped slug must not end with a hyphen: %q", slug)
	}
}

func TestPathPerType(t *testing.T) {
	root := "/proj"
	cases := []struct {
		artifactType string
		want         string
	}{
		{TypeRule, "/proj/.claude/rules/learning-wrap-errors.md"},
		{TypeADR, "/proj/docs/decisions/wrap-errors.md"},
		{TypeTemplate, "/proj/.claude/templates/wrap-errors.md"},
		{TypeSkill, "/proj/.claude/skills/wrap-errors/prompt.md"},
		{TypeProjectGraph, "/proj/.ai-framework/project-graph.json"},
	}
	for _, tc := range cases {
		got := Path(root, tc.artifactType, "Wrap errors")
		if got != filepath.FromSlash(tc.want) {
			t.Errorf("Path(%s) = %q, want %q", tc.artifactType, got, tc.want)
		}
	}
}

func TestRenderFrontmatter(t *testing.T) {
	content, err := Render(Input{
		ProposalID:  "p-1",
		Type:        TypeRule,
		Title:       "Wrap errors with context",
		Description: "Handlers return bare errors",
		Body:        "Always wrap with fmt.Errorf and %w.",
		Tags:        []string{"learning", "rule"},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.HasPrefix(content, "---\n") {
		t.Error("missing opening frontmatter fence")
	}
	for _, want := range []string{
		"name: wrap-errors-with-context",
		"description: Handlers return bare errors",
		"source: learning",
		"proposal_id: p-1",
		"## Rule",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("rendered artifact missing %q", want)
		}
	}
}

func TestRenderADRSections(t *testing.T) {
	content, err := Render(Input{
		ProposalID:  "p-2",
		Type:        TypeADR,
		Title:       "Use SQLite",
		Description: "Embedded storage",
		Body:        "SQLite with WAL.",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for _, section := range []string{"## Status", "## Context", "## Decision", "## Consequences"} {
		if !strings.Contains(content, section) {
			t.Errorf("ADR missing section %q", section)
		}
	}
}

func TestWriteRule(t *testing.T) {
	root := t.TempDir()

	path, err := Write(root, Input{
		ProposalID:  "p-1",
		Type:        TypeRule,
		Title:       "Wrap errors",
		Description: "desc",
		Body:        "body",
	}, "")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != filepath.Join(root, ".claude", "rules", "learning-wrap-errors.md") {
		t.Errorf("unexpected path: %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact not on disk: %v", err)
	}
}

func TestWriteEditedContentVerbatim(t *testing.T) {
	root := t.TempDir()
	edited := "# My own version\n"

	path, err := Write(root, Input{Type: TypeRule, Title: "Wrap errors"}, edited)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != edited {
		t.Errorf("edited content altered: %q", data)
	}
}

func TestFingerprintMatchesDescriptionHash(t *testing.T) {
	description := "Handlers return bare errors"
	content, err := Render(Input{
		ProposalID:  "p-1",
		Type:        TypeRule,
		Title:       "Wrap errors",
		Description: description,
		Body:        "body",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	sum := sha256.Sum256([]byte(description))
	want := hex.EncodeToString(sum[:])[:16]
	if got := Fingerprint(content); got != want {
		t.Errorf("Fingerprint = %q, want description hash %q", got, want)
	}
}

func TestFingerprintWithoutFrontmatter(t *testing.T) {
	a := Fingerprint("# No frontmatter here\n")
	b := Fingerprint("# Different content\n")
	if a == b {
		t.Error("distinct files must fingerprint differently")
	}
	if len(a) != 16 {
		t.Errorf("expected 16-char fingerprint, got %d", len(a))
	}
}

func TestExistingRuleFingerprints(t *testing.T) {
	root := t.TempDir()

	if _, err := Write(root, Input{
		ProposalID:  "p-1",
		Type:        TypeRule,
		Title:       "Wrap errors",
		Description: "Handlers return bare errors",
		Body:        "body",
	}, ""); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	fingerprints := ExistingRuleFingerprints(root)
	sum := sha256.Sum256([]byte("Handlers return bare errors"))
	want := hex.EncodeToString(sum[:])[:16]
	if !fingerprints[want] {
		t.Errorf("written rule's fingerprint missing from %v", fingerprints)
	}
}

func TestExistingRuleFingerprintsEmptyDir(t *testing.T) {
	if got := ExistingRuleFingerprints(t.TempDir()); len(got) != 0 {
		t.Errorf("expected empty set, got %v", got)
	}
}

func TestProjectGraphMerge(t *testing.T) {
	root := t.TempDir()

	if _, err := Write(root, Input{
		Type: TypeProjectGraph,
		Body: `{"services": ["api"], "owner": "platform"}`,
	}, ""); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	path, err := Write(root, Input{
		Type: TypeProjectGraph,
		Body: `{"services": ["api", "worker"]}`,
	}, "")
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var graph map[string]json.RawMessage
	if err := json.Unmarshal(data, &graph); err != nil {
		t.Fatalf("merged graph is not valid JSON: %v", err)
	}
	if string(graph["owner"]) != `"platform"` {
		t.Errorf("merge dropped untouched key: %s", graph["owner"])
	}
	if !strings.Contains(string(graph["services"]), "worker") {
		t.Errorf("merge did not take updated key: %s", graph["services"])
	}
}

func TestProjectGraphConcurrentMerges(t *testing.T) {
	root := t.TempDir()

	// Concurrent accepts each contribute a distinct key; the lock around the
	// read-modify-write means none of them can be lost.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := Write(root, Input{
				Type: TypeProjectGraph,
				Body: fmt.Sprintf(`{"key-%d": %d}`, n, n),
			}, "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Write failed: %v", err)
		}
	}

	data, err := os.ReadFile(Path(root, TypeProjectGraph, ""))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var graph map[string]json.RawMessage
	if err := json.Unmarshal(data, &graph); err != nil {
		t.Fatalf("merged graph is not valid JSON: %v", err)
	}
	for i := 0; i < writers; i++ {
		if _, ok := graph[fmt.Sprintf("key-%d", i)]; !ok {
			t.Errorf("merge lost key-%d", i)
		}
	}
}

func TestProjectGraphRejectsInvalidUpdate(t *testing.T) {
	if _, err := Write(t.TempDir(), Input{Type: TypeProjectGraph, Body: "not json"}, ""); err == nil {
		t.Error("expected error for malformed graph update")
	}
}
