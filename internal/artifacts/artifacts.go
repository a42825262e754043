// Package artifacts writes accepted learning proposals to their canonical
// locations in the governance tree. All writes go through a temp file and
// rename, so readers never observe a half-written artifact.
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"
)

// Proposal types.
const (
	TypeRule         = "rule"
	TypeADR          = "adr"
	TypeTemplate     = "template"
	TypeSkill        = "skill"
	TypeProjectGraph = "project_graph"
)

// Frontmatter is the YAML block prepended to markdown artifacts.
type Frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags,omitempty"`
	Source      string   `yaml:"source"`
	ProposalID  string   `yaml:"proposal_id"`
}

// Input describes the artifact to write.
type Input struct {
	ProposalID  string
	Type        string
	Title       string
	Description string
	Body        string
	Tags        []string
}

var (
	nonSlugRe      = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	repeatHyphenRe = regexp.MustCompile(`-{2,}`)
	frontmatterRe  = regexp.MustCompile(`(?s)\A---\n(.*?)\n---\n`)
)

// Slug converts a title to a filesystem-safe slug, capped at 60 characters.
func Slug(title string) string {
	slug := strings.ToLower(title)
	slug = nonSlugRe.ReplaceAllString(slug, "")
	slug = whitespaceRe.ReplaceAllString(strings.TrimSpace(slug), "-")
	slug = repeatHyphenRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	return slug
}

// Path computes the canonical location for an artifact, relative to root.
func Path(root, artifactType, title string) string {
	slug := Slug(title)
	switch artifactType {
	case TypeRule:
		return filepath.Join(root, ".claude", "rules", "learning-"+slug+".md")
	case TypeADR:
		return filepath.Join(root, "docs", "decisions", slug+".md")
	case TypeTemplate:
		return filepath.Join(root, ".claude", "templates", slug+".md")
	case TypeSkill:
		return filepath.Join(root, ".claude", "skills", slug, "prompt.md")
	case TypeProjectGraph:
		return filepath.Join(root, ".ai-framework", "project-graph.json")
	default:
		return filepath.Join(root, ".claude", "rules", "learning-"+slug+".md")
	}
}

// Write renders and writes the artifact, returning its path. Project-graph
// artifacts merge into the existing JSON document; everything else is a
// markdown file with YAML frontmatter.
func Write(root string, in Input, editedContent string) (string, error) {
	path := Path(root, in.Type, in.Title)

	if in.Type == TypeProjectGraph {
		if err := mergeProjectGraph(path, in.Body, editedContent); err != nil {
			return "", err
		}
		return path, nil
	}

	content := editedContent
	if content == "" {
		var err error
		content, err = Render(in)
		if err != nil {
			return "", err
		}
	}
	if err := writeAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}

// Render produces the full markdown artifact with frontmatter.
func Render(in Input) (string, error) {
	fm := Frontmatter{
		Name:        Slug(in.Title),
		Description: in.Description,
		Tags:        in.Tags,
		Source:      "learning",
		ProposalID:  in.ProposalID,
	}
	encoded, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(encoded)
	b.WriteString("---\n\n")
	b.WriteString(body(in))
	return b.String(), nil
}

func body(in Input) string {
	switch in.Type {
	case TypeADR:
		return fmt.Sprintf(`# %s

## Status

Accepted

## Context

%s

## Decision

%s

## Consequences

This decision was derived from repeated patterns observed in the codebase.
`, in.Title, in.Description, in.Body)
	case TypeSkill:
		return fmt.Sprintf("# %s\n\n%s\n\n## Instructions\n\n%s\n", in.Title, in.Description, in.Body)
	case TypeTemplate:
		return fmt.Sprintf("# %s\n\n%s\n", in.Title, in.Body)
	default:
		return fmt.Sprintf("# %s\n\n%s\n\n## Rule\n\n%s\n", in.Title, in.Description, in.Body)
	}
}

// Fingerprint identifies a rule by the description carried in its
// frontmatter, hashed the same way detections hash theirs, so a fresh
// detection of an already-codified pattern is recognized. Files without
// parseable frontmatter hash the frontmatter block verbatim, or the whole
// file when no block exists.
func Fingerprint(content string) string {
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return shortHash(content)
	}
	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil || fm.Description == "" {
		return shortHash(m[1])
	}
	return shortHash(fm.Description)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// ExistingRuleFingerprints scans the rules directory and returns the set of
// fingerprints for the rules already on disk.
func ExistingRuleFingerprints(root string) map[string]bool {
	out := map[string]bool{}
	dir := filepath.Join(root, ".claude", "rules")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		out[Fingerprint(string(data))] = true
	}
	return out
}

// mergeProjectGraph folds the update into the graph on disk. The
// read-modify-write runs under an exclusive lock on a sibling lock file, so
// concurrent accepts cannot drop each other's keys.
func mergeProjectGraph(path, proposed, edited string) error {
	raw := proposed
	if edited != "" {
		raw = edited
	}

	var incoming map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &incoming); err != nil {
		return fmt.Errorf("failed to parse project graph update: %w", err)
	}

	unlock, err := lockFile(path + ".lock")
	if err != nil {
		return fmt.Errorf("failed to lock project graph: %w", err)
	}
	defer unlock()

	merged := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		// A corrupt existing graph starts over rather than blocking.
		_ = json.Unmarshal(data, &merged)
	}
	for k, v := range incoming {
		merged[k] = v
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project graph: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

// lockFile takes an exclusive flock on path, creating it if needed. The
// returned func releases the lock. flock serializes across processes and
// across goroutines holding separate descriptors.
func lockFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace artifact: %w", err)
	}
	return nil
}
