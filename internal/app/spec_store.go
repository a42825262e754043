package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/core/spec"
)

// SpecStore persists spec lifecycle state as JSON files under
// <git_root>/.ai-framework/specs/<slug>.json.
type SpecStore struct {
	dir string
}

// NewSpecStore creates a store rooted at the project's git root.
func NewSpecStore(gitRoot string) *SpecStore {
	return &SpecStore{dir: filepath.Join(gitRoot, ".ai-framework", "specs")}
}

// Load reads the state for a slug.
func (s *SpecStore) Load(slug string) (*spec.State, error) {
	data, err := os.ReadFile(s.path(slug))
	if os.IsNotExist(err) {
		return nil, apperr.NotFoundf("no spec named %q", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read spec state: %w", err)
	}
	var state spec.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse spec state for %q: %w", slug, err)
	}
	return &state, nil
}

// Save writes the state atomically via a temp file and rename, so a crash
// mid-write never leaves a truncated state file.
func (s *SpecStore) Save(state *spec.State) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create spec state dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal spec state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, state.Slug+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write spec state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(state.Slug)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace spec state: %w", err)
	}
	return nil
}

// List returns all stored spec states, sorted by slug.
func (s *SpecStore) List() ([]*spec.State, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read spec state dir: %w", err)
	}

	var states []*spec.State
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		state, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Slug < states[j].Slug })
	return states, nil
}

func (s *SpecStore) path(slug string) string {
	return filepath.Join(s.dir, slug+".json")
}
