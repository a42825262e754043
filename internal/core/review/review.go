// Package review parses reviewer output into structured verdicts and
// aggregates them into a single pass/fail decision for the fix loop.
package review

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Verdict is a reviewer's overall judgement.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Finding severities, in decreasing order of weight.
const (
	SeverityMustFix    = "must_fix"
	SeverityShouldFix  = "should_fix"
	SeveritySuggestion = "suggestion"
)

// Finding is one reviewer remark, optionally anchored to a file and line.
type Finding struct {
	FilePath    string `json:"file_path"`
	Line        int    `json:"line,omitempty"` // 0 means no line given
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// ReviewerVerdict is the parsed output of one reviewer.
type ReviewerVerdict struct {
	Reviewer  string    `json:"reviewer"`
	Verdict   Verdict   `json:"verdict"`
	Findings  []Finding `json:"findings"`
	RawOutput string    `json:"raw_output,omitempty"`
}

// Summary aggregates all reviewer verdicts for one verification round.
type Summary struct {
	AllPassed       bool     `json:"all_passed"`
	FailedReviewers []string `json:"failed_reviewers"`
	TotalFindings   int      `json:"total_findings"`
	MustFixCount    int      `json:"must_fix_count"`
	ShouldFixCount  int      `json:"should_fix_count"`
}

var (
	// Matches "Verdict: PASS" or "Verdict: FAIL" anywhere in the output.
	verdictRe = regexp.MustCompile(`(?i)verdict\s*:\s*(pass|fail)`)

	// Matches finding bullets like "- must_fix: body".
	findingRe = regexp.MustCompile(`(?im)^\s*-\s*(must_fix|should_fix|suggestion)\s*:\s*(.+)$`)

	// Matches an optional "path/to/file.go:42 — description" prefix in a
	// finding body.
	fileRe = regexp.MustCompile(`^([\w./\\-]+\.\w+)(?::(\d+))?\s*(?:—|--)?\s*(.*)`)
)

// ParseVerdict extracts the verdict line and finding bullets from raw
// reviewer output. Output with no verdict line is treated as a failure and
// gains a synthetic must_fix finding so the fix loop surfaces the problem
// instead of silently passing garbage.
func ParseVerdict(output, reviewer string) ReviewerVerdict {
	rv := ReviewerVerdict{
		Reviewer:  reviewer,
		RawOutput: output,
	}

	if m := verdictRe.FindStringSubmatch(output); m != nil {
		if strings.EqualFold(m[1], "pass") {
			rv.Verdict = VerdictPass
		} else {
			rv.Verdict = VerdictFail
		}
	} else {
		rv.Verdict = VerdictFail
		rv.Findings = append(rv.Findings, Finding{
			Severity:    SeverityMustFix,
			Description: "reviewer_output_malformed: no verdict line found",
		})
	}

	for _, m := range findingRe.FindAllStringSubmatch(output, -1) {
		rv.Findings = append(rv.Findings, parseFinding(strings.ToLower(m[1]), m[2]))
	}
	return rv
}

func parseFinding(severity, body string) Finding {
	body = strings.TrimSpace(body)
	f := Finding{Severity: severity, Description: body}

	if m := fileRe.FindStringSubmatch(body); m != nil {
		f.FilePath = m[1]
		if m[2] != "" {
			f.Line, _ = strconv.Atoi(m[2])
		}
		if desc := strings.TrimSpace(m[3]); desc != "" {
			f.Description = desc
		}
	}
	return f
}

// Aggregate folds all reviewer verdicts into one summary. The round passes
// only when every reviewer passed and no must_fix finding exists anywhere.
func Aggregate(verdicts []ReviewerVerdict) Summary {
	s := Summary{FailedReviewers: []string{}}
	for _, v := range verdicts {
		if v.Verdict == VerdictFail {
			s.FailedReviewers = append(s.FailedReviewers, v.Reviewer)
		}
		for _, f := range v.Findings {
			s.TotalFindings++
			switch f.Severity {
			case SeverityMustFix:
				s.MustFixCount++
			case SeverityShouldFix:
				s.ShouldFixCount++
			}
		}
	}
	s.AllPassed = len(s.FailedReviewers) == 0 && s.MustFixCount == 0
	return s
}

// BuildFixInstructions renders the findings as markdown grouped by file, in
// first-seen file order. Returns "" when there is nothing to fix.
func BuildFixInstructions(verdicts []ReviewerVerdict) string {
	var order []string
	grouped := map[string][]Finding{}
	for _, v := range verdicts {
		for _, f := range v.Findings {
			if _, seen := grouped[f.FilePath]; !seen {
				order = append(order, f.FilePath)
			}
			grouped[f.FilePath] = append(grouped[f.FilePath], f)
		}
	}
	if len(order) == 0 {
		return ""
	}

	var b strings.Builder
	for _, path := range order {
		fmt.Fprintf(&b, "## %s\n", path)
		for _, f := range grouped[path] {
			linePart := ""
			if f.Line > 0 {
				linePart = fmt.Sprintf(" line %d:", f.Line)
			}
			fmt.Fprintf(&b, "- [%s]%s %s\n", f.Severity, linePart, f.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
