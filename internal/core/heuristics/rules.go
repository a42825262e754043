package heuristics

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/example/loom/internal/analyzer"
)

// Additional detection types emitted by the gap and shape rules.
const (
	TypeSecurityShape    = "security_shape"
	TypePerformanceShape = "performance_shape"
	TypeTestGap          = "test_gap"
	TypeDocGap           = "doc_gap"
)

func init() {
	minCounts[TypeSecurityShape] = 1
	minCounts[TypePerformanceShape] = 2
	minCounts[TypeTestGap] = 1
	minCounts[TypeDocGap] = 1
}

// detectRepeatedBlocks (H1) finds the same normalized shape recurring across
// files: function signatures, base types, and error-handler sets.
func detectRepeatedBlocks(in Input) []Detection {
	sigs := map[string]*hit{}
	bases := map[string]*hit{}
	handlers := map[string]*hit{}

	for _, file := range sortedKeys(in.Patterns) {
		p := in.Patterns[file]
		for _, fn := range p.Functions {
			record(sigs, fn.Signature(), file)
		}
		for _, t := range p.Types {
			for _, base := range t.Bases {
				record(bases, base, file)
			}
		}
		for _, h := range p.ErrorHandlers {
			if key := h.Key(); key != "" {
				record(handlers, key, file)
			}
		}
	}

	var out []Detection
	ts := instanceTime(in.CommitTime)
	emit := func(m map[string]*hit, format string) {
		for _, key := range sortedHitKeys(m) {
			h := m[key]
			count := len(h.files)
			if count < 2 {
				continue
			}
			out = append(out, Detection{
				Heuristic:     H1RepeatedBlock,
				Type:          TypeCodePattern,
				Count:         count,
				ConfidenceRaw: capAt(0.4+float64(count)*0.1, 0.9),
				Files:         h.files,
				Description:   describe(format, key),
				Instances:     []Instance{{"key": key, "count": count, "detected_at": ts}},
			})
		}
	}
	emit(sigs, "Repeated function signature: %s")
	emit(bases, "Repeated type hierarchy: extends %s")
	emit(handlers, "Repeated error handler: %s")
	return out
}

// detectMissingStandard (H2) flags files missing an import that at least 75%
// of their directory peers carry.
func detectMissingStandard(in Input) []Detection {
	const peerShare = 0.75

	// Peer group: same directory, same extension.
	groups := map[string][]string{}
	for _, file := range sortedKeys(in.Patterns) {
		key := path.Dir(file) + "|" + path.Ext(file)
		groups[key] = append(groups[key], file)
	}

	var out []Detection
	ts := instanceTime(in.CommitTime)
	for _, key := range sortedKeys(groups) {
		peers := groups[key]
		if len(peers) < 3 {
			continue
		}
		importCounts := map[string]int{}
		for _, file := range peers {
			seen := map[string]bool{}
			for _, imp := range in.Patterns[file].Imports {
				if !seen[imp.Module] {
					seen[imp.Module] = true
					importCounts[imp.Module]++
				}
			}
		}
		for _, module := range sortedKeys(importCounts) {
			n := importCounts[module]
			if float64(n)/float64(len(peers)) < peerShare || n == len(peers) {
				continue
			}
			var missing []string
			for _, file := range peers {
				if !fileImports(in.Patterns[file], module) {
					missing = append(missing, file)
				}
			}
			out = append(out, Detection{
				Heuristic:     H2MissingStandard,
				Type:          TypeStructuralChange,
				Count:         n,
				ConfidenceRaw: capAt(0.3+float64(n)*0.1, 0.85),
				Files:         append(missing, peers...),
				Description:   describe("Peers import %s but %d file(s) in the group do not", module, len(missing)),
				Instances:     []Instance{{"module": module, "missing": len(missing), "detected_at": ts}},
			})
		}
	}
	return out
}

var (
	snakeNameRe = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)+$`)
	camelNameRe = regexp.MustCompile(`^[a-z]+[A-Z]\w*$|^[A-Z]\w*[a-z]\w*$`)
)

// detectInconsistentNaming (H3) fires when both snake_case and camelCase
// function names coexist within the same language.
func detectInconsistentNaming(in Input) []Detection {
	type styleCount struct {
		snake, camel int
		snakeFiles   map[string]bool
		camelFiles   map[string]bool
	}
	byExt := map[string]*styleCount{}

	for _, file := range sortedKeys(in.Patterns) {
		ext := path.Ext(file)
		sc, ok := byExt[ext]
		if !ok {
			sc = &styleCount{snakeFiles: map[string]bool{}, camelFiles: map[string]bool{}}
			byExt[ext] = sc
		}
		for _, fn := range in.Patterns[file].Functions {
			switch {
			case snakeNameRe.MatchString(fn.Name):
				sc.snake++
				sc.snakeFiles[file] = true
			case camelNameRe.MatchString(fn.Name):
				sc.camel++
				sc.camelFiles[file] = true
			}
		}
	}

	var out []Detection
	ts := instanceTime(in.CommitTime)
	for _, ext := range sortedKeys(byExt) {
		sc := byExt[ext]
		if sc.snake < 2 || sc.camel < 2 {
			continue
		}
		files := append(sortedKeys(sc.snakeFiles), sortedKeys(sc.camelFiles)...)
		count := sc.snake + sc.camel
		out = append(out, Detection{
			Heuristic:     H3Inconsistent,
			Type:          TypeCodePattern,
			Count:         count,
			ConfidenceRaw: capAt(0.3+float64(count)*0.05, 0.8),
			Files:         files,
			Description:   describe("Competing naming styles in %s files: %d snake_case vs %d camelCase functions", ext, sc.snake, sc.camel),
			Instances:     []Instance{{"ext": ext, "snake": sc.snake, "camel": sc.camel, "detected_at": ts}},
		})
	}
	return out
}

var securityShapes = []struct {
	name string
	re   *regexp.Regexp
}{
	{
		"string-assembled query",
		regexp.MustCompile(`(?i)"[^"\n]*\b(select|insert into|update|delete from)\b[^"\n]*"\s*\+|\+\s*"[^"\n]*\b(where|and|or)\b[^"\n]*"`),
	},
	{
		"format-assembled query",
		regexp.MustCompile(`(?i)(sprintf|format|f")[^\n]*\b(select|insert into|update|delete from)\b[^\n]*%s|f"[^"\n]*\bselect\b[^"\n]*\{`),
	},
	{
		"unchecked path join",
		regexp.MustCompile(`(?i)(join|open|readfile)\([^)\n]*(request|req\.|params|input|user)[^)\n]*\)`),
	},
}

// detectSecurityShapes (H4) scans raw sources for known anti-patterns.
// Single-file hits are meaningful here.
func detectSecurityShapes(in Input) []Detection {
	var out []Detection
	ts := instanceTime(in.CommitTime)
	for _, shape := range securityShapes {
		var files []string
		count := 0
		for _, file := range sortedKeys(in.Sources) {
			hits := len(shape.re.FindAllString(in.Sources[file], -1))
			if hits > 0 {
				files = append(files, file)
				count += hits
			}
		}
		if count == 0 {
			continue
		}
		out = append(out, Detection{
			Heuristic:     H4SecurityShape,
			Type:          TypeSecurityShape,
			Count:         count,
			ConfidenceRaw: capAt(0.5+float64(count)*0.1, 0.95),
			Files:         files,
			Description:   describe("Security anti-pattern: %s", shape.name),
			Instances:     []Instance{{"shape": shape.name, "count": count, "detected_at": ts}},
		})
	}
	return out
}

var (
	loopOpenRe = regexp.MustCompile(`^\s*(for|while)\b`)
	ioCallRe   = regexp.MustCompile(`\.(Query|QueryRow|Exec|Get|Post|Do|Fetch|execute|fetchall|get|post)\s*\(|requests\.|http\.|fetch\(`)
)

// detectPerformanceShapes (H5) flags IO or query calls nested two loops
// deep. Depth tracking is line-based: braces for brace languages, indent for
// Python. An approximation, but repetition is what matters.
func detectPerformanceShapes(in Input) []Detection {
	var files []string
	count := 0
	for _, file := range sortedKeys(in.Sources) {
		hits := nestedIOCalls(in.Sources[file], strings.HasSuffix(file, ".py"))
		if hits > 0 {
			files = append(files, file)
			count += hits
		}
	}
	if count == 0 {
		return nil
	}
	ts := instanceTime(in.CommitTime)
	return []Detection{{
		Heuristic:     H5Performance,
		Type:          TypePerformanceShape,
		Count:         count,
		ConfidenceRaw: capAt(0.4+float64(count)*0.1, 0.9),
		Files:         files,
		Description:   "IO or query call inside nested loops",
		Instances:     []Instance{{"count": count, "detected_at": ts}},
	}}
}

func nestedIOCalls(source string, indentBased bool) int {
	hits := 0
	if indentBased {
		type frame struct{ indent int }
		var loops []frame
		for _, line := range strings.Split(source, "\n") {
			trimmed := strings.TrimLeft(line, " \t")
			if trimmed == "" {
				continue
			}
			indent := len(line) - len(trimmed)
			for len(loops) > 0 && indent <= loops[len(loops)-1].indent {
				loops = loops[:len(loops)-1]
			}
			if len(loops) >= 2 && ioCallRe.MatchString(line) {
				hits++
			}
			if loopOpenRe.MatchString(line) {
				loops = append(loops, frame{indent: indent})
			}
		}
		return hits
	}

	depth := 0
	loopDepths := []int{}
	for _, line := range strings.Split(source, "\n") {
		if len(loopDepths) >= 2 && ioCallRe.MatchString(line) {
			hits++
		}
		if loopOpenRe.MatchString(line) && strings.Contains(line, "{") {
			loopDepths = append(loopDepths, depth)
		}
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		for len(loopDepths) > 0 && depth <= loopDepths[len(loopDepths)-1] {
			loopDepths = loopDepths[:len(loopDepths)-1]
		}
	}
	return hits
}

// detectTestGaps (H6) flags new source files without a sibling test.
func detectTestGaps(in Input) []Detection {
	var out []Detection
	ts := instanceTime(in.CommitTime)
	for _, file := range in.NewFiles {
		if !isSourceFile(file) || isTestFile(file) {
			continue
		}
		if hasSiblingTest(file, in.RepoFiles) {
			continue
		}
		out = append(out, Detection{
			Heuristic:     H6TestGap,
			Type:          TypeTestGap,
			Count:         1,
			ConfidenceRaw: 0.6,
			Files:         []string{file},
			Description:   describe("New file %s has no sibling test", file),
			Instances:     []Instance{{"file": file, "detected_at": ts}},
		})
	}
	return out
}

// detectDocGaps (H7) flags new top-level directories without a descriptor.
func detectDocGaps(in Input) []Detection {
	newDirs := map[string]bool{}
	for _, file := range in.NewFiles {
		parts := strings.Split(path.Clean(file), "/")
		if len(parts) >= 2 {
			newDirs[parts[0]] = true
		}
	}

	var out []Detection
	ts := instanceTime(in.CommitTime)
	for _, dir := range sortedKeys(newDirs) {
		if in.RepoFiles[dir+"/README.md"] || in.RepoFiles[dir+"/CLAUDE.md"] || in.RepoFiles[dir+"/doc.go"] {
			continue
		}
		out = append(out, Detection{
			Heuristic:     H7DocGap,
			Type:          TypeDocGap,
			Count:         1,
			ConfidenceRaw: 0.5,
			Files:         []string{dir},
			Description:   describe("New top-level directory %s has no descriptor file", dir),
			Instances:     []Instance{{"dir": dir, "detected_at": ts}},
		})
	}
	return out
}

type hit struct {
	files []string
}

func record(m map[string]*hit, key, file string) {
	h, ok := m[key]
	if !ok {
		h = &hit{}
		m[key] = h
	}
	h.files = append(h.files, file)
}

func sortedHitKeys(m map[string]*hit) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fileImports(p analyzer.FilePatterns, module string) bool {
	for _, imp := range p.Imports {
		if imp.Module == module {
			return true
		}
	}
	return false
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

func isSourceFile(file string) bool {
	switch path.Ext(file) {
	case ".go", ".py", ".ts", ".tsx", ".js", ".jsx":
		return true
	}
	return false
}

func isTestFile(file string) bool {
	base := path.Base(file)
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}

func hasSiblingTest(file string, repoFiles map[string]bool) bool {
	dir := path.Dir(file)
	base := path.Base(file)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var candidates []string
	switch ext {
	case ".go":
		candidates = []string{path.Join(dir, stem+"_test.go")}
	case ".py":
		candidates = []string{
			path.Join(dir, "test_"+base),
			path.Join(dir, stem+"_test.py"),
			path.Join(dir, "tests", "test_"+base),
		}
	case ".ts", ".tsx", ".js", ".jsx":
		candidates = []string{
			path.Join(dir, stem+".test"+ext),
			path.Join(dir, stem+".spec"+ext),
		}
	}
	for _, c := range candidates {
		if repoFiles[c] {
			return true
		}
	}
	return false
}
