package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint derives the short identity hash used in worktree directory
// names: the first 8 hex characters of SHA-256 over the plan file contents,
// or over the slug when no plan exists yet. Hashing contents means a revised
// plan gets a fresh worktree instead of silently reusing a stale one.
func Fingerprint(slug string, planContents []byte) string {
	var sum [32]byte
	if len(planContents) > 0 {
		sum = sha256.Sum256(planContents)
	} else {
		sum = sha256.Sum256([]byte(slug))
	}
	return hex.EncodeToString(sum[:])[:8]
}

// WorktreeDirName returns the directory name for a spec worktree under the
// project's .worktrees directory.
func WorktreeDirName(slug, fingerprint string) string {
	return fmt.Sprintf("spec-%s-%s", slug, fingerprint)
}

// BranchName returns the git branch a spec works on.
func BranchName(slug string) string {
	return "spec/" + slug
}
