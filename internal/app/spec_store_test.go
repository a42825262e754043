package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/core/spec"
)

func TestSpecStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewSpecStore(root)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	state := spec.New("add-auth", "Add authentication", "docs/plans/add-auth.md", now)
	state.Phase = spec.PhaseImplementing
	state.TotalTasks = 3
	state.CompletedTasks = 1

	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("add-auth")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Phase != spec.PhaseImplementing || loaded.TotalTasks != 3 || loaded.CompletedTasks != 1 {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if !loaded.CreatedAt.Equal(now) {
		t.Errorf("timestamps not preserved: %v", loaded.CreatedAt)
	}
}

func TestSpecStoreLoadMissing(t *testing.T) {
	store := NewSpecStore(t.TempDir())

	if _, err := store.Load("ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSpecStoreListSorted(t *testing.T) {
	root := t.TempDir()
	store := NewSpecStore(root)
	now := time.Now().UTC()

	for _, slug := range []string{"zeta", "alpha", "mid"} {
		if err := store.Save(spec.New(slug, "", "", now)); err != nil {
			t.Fatalf("Save %s failed: %v", slug, err)
		}
	}

	states, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}
	if states[0].Slug != "alpha" || states[2].Slug != "zeta" {
		t.Errorf("list not sorted by slug: %v", []string{states[0].Slug, states[1].Slug, states[2].Slug})
	}
}

func TestSpecStoreListSkipsCorruptFiles(t *testing.T) {
	root := t.TempDir()
	store := NewSpecStore(root)

	if err := store.Save(spec.New("good", "", "", time.Now().UTC())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	dir := filepath.Join(root, ".ai-framework", "specs")
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{truncated"), 0644); err != nil {
		t.Fatalf("failed to plant corrupt file: %v", err)
	}

	states, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(states) != 1 || states[0].Slug != "good" {
		t.Errorf("corrupt file should be skipped, got %+v", states)
	}
}

func TestSpecStoreListEmpty(t *testing.T) {
	store := NewSpecStore(t.TempDir())

	states, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected no states, got %d", len(states))
	}
}
