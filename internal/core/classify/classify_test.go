package classify

import (
	"strings"
	"testing"
)

func TestQuery(t *testing.T) {
	tests := []struct {
		query string
		want  Corpus
	}{
		{"where is the retry function defined", CorpusCode},
		{"class hierarchy for handlers", CorpusCode},
		{"internal/auth/token.go timeout", CorpusCode},
		{"what does parseVerdict() do", CorpusCode},
		{"snake_case_helper usage", CorpusCode},
		{"what is our error handling convention", CorpusGovernance},
		{"adr about database choice", CorpusGovernance},
		{"policy on secrets in logs", CorpusGovernance},
		{"how do retries work", CorpusHybrid},
		{"timeout configuration", CorpusHybrid},
	}
	for _, tt := range tests {
		if got := Query(tt.query); got != tt.want {
			t.Errorf("Query(%q) = %s, want %s", tt.query, got, tt.want)
		}
	}
}

func TestQueryCodeWinsOverGovernance(t *testing.T) {
	// A query with both shapes routes to code: identifiers are the
	// stronger signal.
	if got := Query("convention for naming the parse_verdict function"); got != CorpusCode {
		t.Errorf("expected code, got %s", got)
	}
}

func TestAssessComplexity(t *testing.T) {
	tests := []struct {
		name  string
		spec  string
		files []string
		want  Complexity
	}{
		{"plain", "rename the CLI output columns", nil, ComplexitySimple},
		{"security keyword", "add oauth login flow", nil, ComplexityComplex},
		{"data keyword", "add a schema migration for tags", nil, ComplexityComplex},
		{"many files", "tidy imports", []string{"a", "b", "c", "d"}, ComplexityComplex},
		{"few files", "tidy imports", []string{"a", "b"}, ComplexitySimple},
		{"short api spec", "add an api endpoint", nil, ComplexitySimple},
		{"long api spec", "add an api endpoint " + strings.Repeat("with details ", 20), nil, ComplexityComplex},
	}
	for _, tt := range tests {
		if got := AssessComplexity(tt.spec, tt.files); got != tt.want {
			t.Errorf("%s: AssessComplexity = %s, want %s", tt.name, got, tt.want)
		}
	}
}
