// Package analyzer extracts language-normalized structural shapes from
// source files: function signatures, type hierarchies, imports, and error
// handling. Go files get a real AST walk; Python and TypeScript fall back to
// regex extraction with lower confidence. Malformed input yields an empty
// result, never an error.
package analyzer

import (
	"bytes"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest file the analyzer will look at. Bigger files
// are skipped and reported through the Skipped flag.
const MaxFileSize = 1 << 20

// FunctionShape is one extracted function or method signature.
type FunctionShape struct {
	Name     string   `json:"name"`
	Receiver string   `json:"receiver,omitempty"`
	Params   []string `json:"params"`
	Results  []string `json:"results,omitempty"`
	Kind     string   `json:"kind,omitempty"` // "function", "method", "arrow"
}

// Signature renders the cross-file identity key for a function.
func (f FunctionShape) Signature() string {
	return f.Name + "(" + strings.Join(f.Params, ",") + ")"
}

// TypeShape is one extracted class/struct/interface and its bases.
type TypeShape struct {
	Name  string   `json:"name"`
	Bases []string `json:"bases,omitempty"`
}

// ImportShape is one import site.
type ImportShape struct {
	Module string   `json:"module"`
	Names  []string `json:"names,omitempty"`
}

// ErrorHandlerShape is one error-handling site.
type ErrorHandlerShape struct {
	Caught   []string `json:"caught,omitempty"`
	Broad    bool     `json:"broad,omitempty"`
	Rethrows bool     `json:"rethrows,omitempty"`
}

// Key renders the cross-file identity key for an error handler.
func (h ErrorHandlerShape) Key() string {
	if h.Broad && len(h.Caught) == 0 {
		return "<broad>"
	}
	sorted := append([]string(nil), h.Caught...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return strings.Join(sorted, ",")
}

// FilePatterns is everything extracted from one file.
type FilePatterns struct {
	Functions     []FunctionShape     `json:"functions"`
	Types         []TypeShape         `json:"types"`
	Imports       []ImportShape       `json:"imports"`
	ErrorHandlers []ErrorHandlerShape `json:"error_handlers"`

	// Skipped is set when the file was too large or binary.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// Extract dispatches on file extension. Unknown extensions and unparsable
// content produce an empty FilePatterns.
func Extract(path string, source []byte) FilePatterns {
	if len(source) > MaxFileSize {
		return FilePatterns{Skipped: true, SkipReason: "file exceeds size limit"}
	}
	if bytes.IndexByte(source, 0) >= 0 {
		return FilePatterns{Skipped: true, SkipReason: "binary content"}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return extractGo(source)
	case ".py":
		return extractPython(string(source))
	case ".ts", ".tsx", ".js", ".jsx":
		return extractTypeScript(string(source))
	default:
		return FilePatterns{}
	}
}
