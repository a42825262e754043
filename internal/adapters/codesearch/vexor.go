// Package codesearch wraps the external semantic code-search binary behind
// the CodeSearcher port. A missing binary is degraded mode, never an error.
package codesearch

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/ports/secondary"
)

const (
	probeTimeout  = 5 * time.Second
	searchTimeout = 10 * time.Second
)

// Client shells out to the configured code-search binary.
type Client struct {
	binary string
}

// NewClient creates a client for the given binary ("vexor" by default).
func NewClient(binary string) *Client {
	if binary == "" {
		binary = "vexor"
	}
	return &Client{binary: binary}
}

// Available probes the binary with --version.
func (c *Client) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(probeCtx, c.binary, "--version").Run() == nil
}

// Search runs a semantic query rooted at path. A missing binary or non-zero
// exit surfaces as ErrBackendUnavailable so callers can skip the corpus.
func (c *Client) Search(ctx context.Context, query string, top int, path string) ([]secondary.CodeHit, error) {
	if top <= 0 {
		top = 10
	}
	args := []string{"search", "--format", "porcelain", "--top", strconv.Itoa(top)}
	if path != "" {
		args = append(args, "--path", path)
	}
	args = append(args, query)

	stdout, err := c.run(ctx, searchTimeout, args...)
	if err != nil {
		return nil, err
	}
	return parsePorcelain(stdout), nil
}

// Reindex asks the binary to rebuild its index.
func (c *Client) Reindex(ctx context.Context, path string, full bool) error {
	args := []string{"index"}
	if path != "" {
		args = append(args, "--path", path)
	}
	mode := "incremental"
	if full {
		mode = "full"
	}
	args = append(args, "--mode", mode)

	_, err := c.run(ctx, searchTimeout, args...)
	return err
}

// IndexInfo reports index metadata via `index --show`, or nil when the
// backend cannot answer.
func (c *Client) IndexInfo(ctx context.Context, path string) (*secondary.CodeIndexInfo, error) {
	args := []string{"index", "--show"}
	if path != "" {
		args = append(args, "--path", path)
	}
	stdout, err := c.run(ctx, searchTimeout, args...)
	if err != nil {
		return nil, nil
	}
	return parseShow(stdout), nil
}

func (c *Client) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", apperr.Backendf("%s %s: %s", c.binary, args[0], detail)
	}
	return stdout.String(), nil
}

// parsePorcelain decodes tab-separated result lines:
// rank score file_path chunk_index line_start line_end heading :: excerpt
func parsePorcelain(output string) []secondary.CodeHit {
	var hits []secondary.CodeHit
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 7)
		if len(parts) < 7 {
			continue
		}
		rank, err1 := strconv.Atoi(parts[0])
		score, err2 := strconv.ParseFloat(parts[1], 64)
		chunk, err3 := strconv.Atoi(parts[3])
		lineStart, err4 := strconv.Atoi(parts[4])
		lineEnd, err5 := strconv.Atoi(parts[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}

		heading := parts[6]
		excerpt := heading
		if idx := strings.Index(heading, " :: "); idx >= 0 {
			excerpt = heading[idx+len(" :: "):]
			heading = heading[:idx]
		} else {
			heading = ""
		}

		hits = append(hits, secondary.CodeHit{
			Rank:       rank,
			Score:      score,
			FilePath:   parts[2],
			ChunkIndex: chunk,
			LineStart:  lineStart,
			LineEnd:    lineEnd,
			Heading:    heading,
			Excerpt:    excerpt,
		})
	}
	return hits
}

// parseShow decodes the key: value metadata block from `index --show`.
func parseShow(output string) *secondary.CodeIndexInfo {
	info := &secondary.CodeIndexInfo{}
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		key = strings.ReplaceAll(key, " ", "_")
		value = strings.TrimSpace(value)
		switch key {
		case "files":
			if n, err := strconv.Atoi(value); err == nil {
				info.Files = n
			}
		case "model":
			info.Model = value
		case "generated_at":
			info.GeneratedAt = value
		}
	}
	return info
}

var _ secondary.CodeSearcher = (*Client)(nil)
