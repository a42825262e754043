package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const indexStateFile = "index-state.json"

// IndexState records which commit the code index was last built against.
// Staleness is derived, never stored: HEAD differing from the recorded
// commit means the index is stale.
type IndexState struct {
	LastIndexedCommit string `json:"last_indexed_commit,omitempty"`
	LastIndexedAt     string `json:"last_indexed_at,omitempty"`
}

// IndexStateStore persists the index cursor as JSON in the data directory.
type IndexStateStore struct {
	path string
}

// NewIndexStateStore creates a store rooted at the data directory.
func NewIndexStateStore(dataDir string) *IndexStateStore {
	return &IndexStateStore{path: filepath.Join(dataDir, indexStateFile)}
}

// Load returns the stored state, or a zero state when none exists yet.
func (s *IndexStateStore) Load() (*IndexState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &IndexState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index state: %w", err)
	}
	var state IndexState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse index state: %w", err)
	}
	return &state, nil
}

// Record stamps the commit and time of a completed reindex.
func (s *IndexStateStore) Record(commit string, at time.Time) error {
	state := IndexState{
		LastIndexedCommit: commit,
		LastIndexedAt:     at.UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write index state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace index state: %w", err)
	}
	return nil
}
