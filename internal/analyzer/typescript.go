package analyzer

import (
	"regexp"
	"strings"
)

var (
	tsFuncRe   = regexp.MustCompile(`(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)
	tsArrowRe  = regexp.MustCompile(`(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?\(`)
	tsClassRe  = regexp.MustCompile(`class\s+(\w+)(?:\s+extends\s+(\w+))?`)
	tsImportRe = regexp.MustCompile(`import\s+.+?\s+from\s+['"]([^'"]+)['"]`)
	tsCatchRe  = regexp.MustCompile(`catch\s*(?:\(\s*(\w+)(?:\s*:\s*(\w+))?\s*\))?`)
	tsThrowRe  = regexp.MustCompile(`\bthrow\b`)
)

func extractTypeScript(source string) FilePatterns {
	if strings.TrimSpace(source) == "" {
		return FilePatterns{}
	}

	var out FilePatterns

	for _, m := range tsFuncRe.FindAllStringSubmatch(source, -1) {
		out.Functions = append(out.Functions, FunctionShape{Name: m[1], Kind: "function", Params: []string{}})
	}
	for _, m := range tsArrowRe.FindAllStringSubmatch(source, -1) {
		out.Functions = append(out.Functions, FunctionShape{Name: m[1], Kind: "arrow", Params: []string{}})
	}

	for _, m := range tsClassRe.FindAllStringSubmatch(source, -1) {
		shape := TypeShape{Name: m[1]}
		if m[2] != "" {
			shape.Bases = []string{m[2]}
		}
		out.Types = append(out.Types, shape)
	}

	for _, m := range tsImportRe.FindAllStringSubmatch(source, -1) {
		out.Imports = append(out.Imports, ImportShape{Module: m[1]})
	}

	rethrows := tsThrowRe.MatchString(source)
	for _, m := range tsCatchRe.FindAllStringSubmatch(source, -1) {
		shape := ErrorHandlerShape{Rethrows: rethrows}
		// catch in JS/TS is untyped: a bare binding is a broad catch,
		// a type annotation narrows it.
		if m[2] != "" {
			shape.Caught = []string{m[2]}
		} else {
			shape.Broad = true
		}
		out.ErrorHandlers = append(out.ErrorHandlers, shape)
	}

	return out
}
