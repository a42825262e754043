package app

import (
	"testing"
	"time"
)

func TestIndexStateRoundTrip(t *testing.T) {
	store := NewIndexStateStore(t.TempDir())

	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	if err := store.Record("deadbeef", at); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.LastIndexedCommit != "deadbeef" {
		t.Errorf("unexpected commit: %q", state.LastIndexedCommit)
	}
	if state.LastIndexedAt != "2026-08-26T10:00:00Z" {
		t.Errorf("unexpected timestamp: %q", state.LastIndexedAt)
	}
}

func TestIndexStateLoadMissing(t *testing.T) {
	store := NewIndexStateStore(t.TempDir())

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.LastIndexedCommit != "" {
		t.Errorf("expected zero state, got %+v", state)
	}
}

func TestIndexStateRecordOverwrites(t *testing.T) {
	store := NewIndexStateStore(t.TempDir())

	if err := store.Record("aaa", time.Now()); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if err := store.Record("bbb", time.Now()); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.LastIndexedCommit != "bbb" {
		t.Errorf("expected the newer commit, got %q", state.LastIndexedCommit)
	}
}
