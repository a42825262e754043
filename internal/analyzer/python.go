package analyzer

import (
	"regexp"
	"strings"
)

// Python has no bundled parser here, so shapes come from line-oriented
// regexes. Good enough for repetition counting; not a parser.
var (
	pyFuncRe    = regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)\s*\(([^)]*)\)\s*(?:->\s*([^:]+))?:`)
	pyClassRe   = regexp.MustCompile(`(?m)^\s*class\s+(\w+)\s*(?:\(([^)]*)\))?\s*:`)
	pyImportRe  = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)
	pyFromRe    = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\s+(.+)$`)
	pyExceptRe  = regexp.MustCompile(`(?m)^\s*except(?:\s+\(?([\w.,\s]+?)\)?)?(?:\s+as\s+\w+)?\s*:`)
	pyRethrowRe = regexp.MustCompile(`(?m)^\s*raise\b`)
)

func extractPython(source string) FilePatterns {
	if strings.TrimSpace(source) == "" {
		return FilePatterns{}
	}

	var out FilePatterns

	for _, m := range pyFuncRe.FindAllStringSubmatch(source, -1) {
		shape := FunctionShape{Name: m[1], Kind: "function", Params: []string{}}
		for _, param := range strings.Split(m[2], ",") {
			param = strings.TrimSpace(param)
			if param == "" || param == "self" || param == "cls" || strings.HasPrefix(param, "*") {
				continue
			}
			// Drop annotations and defaults.
			if i := strings.IndexAny(param, ":="); i >= 0 {
				param = strings.TrimSpace(param[:i])
			}
			shape.Params = append(shape.Params, param)
		}
		if ret := strings.TrimSpace(m[3]); ret != "" {
			shape.Results = []string{ret}
		}
		out.Functions = append(out.Functions, shape)
	}

	for _, m := range pyClassRe.FindAllStringSubmatch(source, -1) {
		shape := TypeShape{Name: m[1]}
		for _, base := range strings.Split(m[2], ",") {
			base = strings.TrimSpace(base)
			if base != "" && base != "object" {
				shape.Bases = append(shape.Bases, base)
			}
		}
		out.Types = append(out.Types, shape)
	}

	for _, m := range pyImportRe.FindAllStringSubmatch(source, -1) {
		out.Imports = append(out.Imports, ImportShape{Module: m[1]})
	}
	for _, m := range pyFromRe.FindAllStringSubmatch(source, -1) {
		names := []string{}
		for _, n := range strings.Split(m[2], ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		out.Imports = append(out.Imports, ImportShape{Module: m[1], Names: names})
	}

	rethrows := pyRethrowRe.MatchString(source)
	for _, m := range pyExceptRe.FindAllStringSubmatch(source, -1) {
		shape := ErrorHandlerShape{Rethrows: rethrows}
		caught := strings.TrimSpace(m[1])
		if caught == "" || caught == "Exception" || caught == "BaseException" {
			shape.Broad = true
			if caught != "" {
				shape.Caught = []string{caught}
			}
		} else {
			for _, c := range strings.Split(caught, ",") {
				if c = strings.TrimSpace(c); c != "" {
					shape.Caught = append(shape.Caught, c)
				}
			}
		}
		out.ErrorHandlers = append(out.ErrorHandlers, shape)
	}

	return out
}
