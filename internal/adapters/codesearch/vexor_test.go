package codesearch

import "testing"

func TestParsePorcelain(t *testing.T) {
	output := "1\t0.92\tinternal/app/handler.go\t0\t10\t42\tfunc Handle :: returns 500 on nil body\n" +
		"2\t0.85\tinternal/app/middleware.go\t3\t1\t20\t :: wraps the auth check\n"

	hits := parsePorcelain(output)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}

	first := hits[0]
	if first.Rank != 1 || first.Score != 0.92 {
		t.Errorf("unexpected rank/score: %+v", first)
	}
	if first.FilePath != "internal/app/handler.go" {
		t.Errorf("unexpected path: %q", first.FilePath)
	}
	if first.LineStart != 10 || first.LineEnd != 42 {
		t.Errorf("unexpected lines: %+v", first)
	}
	if first.Heading != "func Handle" {
		t.Errorf("unexpected heading: %q", first.Heading)
	}
	if first.Excerpt != "returns 500 on nil body" {
		t.Errorf("unexpected excerpt: %q", first.Excerpt)
	}
}

func TestParsePorcelainWithoutHeading(t *testing.T) {
	hits := parsePorcelain("1\t0.5\ta.go\t0\t1\t5\tjust an excerpt\n")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Heading != "" {
		t.Errorf("line without separator should have no heading, got %q", hits[0].Heading)
	}
	if hits[0].Excerpt != "just an excerpt" {
		t.Errorf("unexpected excerpt: %q", hits[0].Excerpt)
	}
}

func TestParsePorcelainSkipsMalformedLines(t *testing.T) {
	output := "garbage line\n" +
		"1\t0.9\ta.go\t0\t1\n" + // too few fields
		"x\t0.9\ta.go\t0\t1\t2\tok\n" + // non-numeric rank
		"1\t0.9\ta.go\t0\t1\t2\tok\n"

	hits := parsePorcelain(output)
	if len(hits) != 1 {
		t.Errorf("expected only the well-formed line, got %d hits", len(hits))
	}
}

func TestParsePorcelainEmpty(t *testing.T) {
	if hits := parsePorcelain(""); len(hits) != 0 {
		t.Errorf("expected no hits for empty output, got %d", len(hits))
	}
}

func TestParseShow(t *testing.T) {
	output := "Files: 412\nModel: nomic-embed-text\nGenerated At: 2026-08-26T10:15:00Z\nUnknown Key: ignored\n"

	info := parseShow(output)
	if info.Files != 412 {
		t.Errorf("unexpected files: %d", info.Files)
	}
	if info.Model != "nomic-embed-text" {
		t.Errorf("unexpected model: %q", info.Model)
	}
	if info.GeneratedAt != "2026-08-26T10:15:00Z" {
		t.Errorf("timestamp must keep its colons, got %q", info.GeneratedAt)
	}
}

func TestNewClientDefaultsBinary(t *testing.T) {
	c := NewClient("")
	if c.binary != "vexor" {
		t.Errorf("expected default binary vexor, got %q", c.binary)
	}
}
