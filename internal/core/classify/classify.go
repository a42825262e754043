// Package classify routes free-form queries to a retrieval corpus and
// assesses spec complexity. Pure functions only.
package classify

import (
	"regexp"
	"strings"
)

// Corpus is the retrieval backend a query should go to.
type Corpus string

const (
	CorpusCode       Corpus = "code"
	CorpusGovernance Corpus = "governance"
	CorpusHybrid     Corpus = "hybrid"
)

var codeKeywords = []string{"function", "class", "import", "endpoint"}

var governanceKeywords = []string{"rule", "adr", "decision", "policy", "standard", "convention"}

var (
	// Path-like tokens: "src/auth/token.go", "pkg/db", "./cmd".
	pathTokenRe = regexp.MustCompile(`(?:^|\s)\.?[\w-]+(?:/[\w.-]+)+`)

	// Code identifier shapes: CamelCase, snake_case, or call syntax.
	identifierRe = regexp.MustCompile(`\b[a-z]+[A-Z]\w*\b|\b\w+_\w+\b|\w+\(\)`)
)

// Query classifies a free-form query. Code-shaped queries go to the code
// corpus, governance vocabulary goes to the governance corpus, everything
// else fans out to both.
func Query(query string) Corpus {
	lower := strings.ToLower(query)

	if pathTokenRe.MatchString(query) || identifierRe.MatchString(query) {
		return CorpusCode
	}
	for _, kw := range codeKeywords {
		if strings.Contains(lower, kw) {
			return CorpusCode
		}
	}
	for _, kw := range governanceKeywords {
		if containsWord(lower, kw) {
			return CorpusGovernance
		}
	}
	return CorpusHybrid
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// Complexity is the advisory pre-orchestration classification of a spec.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

var complexityKeywords = map[string][]string{
	"security":    {"auth", "authentication", "authorization", "security", "password", "token", "jwt", "oauth", "encrypt"},
	"data":        {"database", "migration", "schema", "sql", "orm", "table", "query", "data"},
	"api":         {"api", "endpoint", "route", "handler", "controller", "rest", "graphql"},
	"integration": {"integration", "external", "third-party", "webhook", "callback", "sync"},
	"infra":       {"deploy", "docker", "kubernetes", "infrastructure", "ci", "cd", "pipeline"},
}

// AssessComplexity classifies a spec description. Advisory only: callers use
// it to pick a review depth, it never changes state.
func AssessComplexity(specText string, affectedFiles []string) Complexity {
	lower := strings.ToLower(specText)

	matches := func(group string) bool {
		for _, kw := range complexityKeywords[group] {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	if len(affectedFiles) > 3 {
		return ComplexityComplex
	}
	if matches("security") || matches("data") || matches("integration") || matches("infra") {
		return ComplexityComplex
	}
	if matches("api") && len(lower) > 200 {
		return ComplexityComplex
	}
	return ComplexitySimple
}
