package spec

import "testing"

func TestFingerprintIsStableOverContents(t *testing.T) {
	plan := []byte("# Plan\n\n1. do the thing\n")
	a := Fingerprint("add-auth", plan)
	b := Fingerprint("other-slug", plan)
	if a != b {
		t.Errorf("fingerprint should depend on contents only: %s vs %s", a, b)
	}
	if len(a) != 8 {
		t.Errorf("fingerprint should be 8 hex chars, got %q", a)
	}
}

func TestFingerprintChangesWithPlan(t *testing.T) {
	a := Fingerprint("add-auth", []byte("v1"))
	b := Fingerprint("add-auth", []byte("v2"))
	if a == b {
		t.Error("revised plan must produce a different fingerprint")
	}
}

func TestFingerprintFallsBackToSlug(t *testing.T) {
	a := Fingerprint("add-auth", nil)
	b := Fingerprint("add-auth", nil)
	c := Fingerprint("drop-auth", nil)
	if a != b {
		t.Error("slug fallback must be deterministic")
	}
	if a == c {
		t.Error("different slugs must produce different fingerprints")
	}
}

func TestWorktreeNaming(t *testing.T) {
	if got := WorktreeDirName("add-auth", "deadbeef"); got != "spec-add-auth-deadbeef" {
		t.Errorf("unexpected worktree dir name: %s", got)
	}
	if got := BranchName("add-auth"); got != "spec/add-auth" {
		t.Errorf("unexpected branch name: %s", got)
	}
}
