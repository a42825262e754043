// Package heuristics turns analyzer shapes and git facts into scored
// pattern detections. Seven rules (H1..H7) each emit detections; confidence
// combines occurrence count, instance consistency, recency, file spread, and
// the user's accept/reject history. Everything here is pure: storage lookups
// needed for filtering are passed in as functions.
package heuristics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/example/loom/internal/analyzer"
)

// Heuristic identifiers.
const (
	H1RepeatedBlock   = "H1"
	H2MissingStandard = "H2"
	H3Inconsistent    = "H3"
	H4SecurityShape   = "H4"
	H5Performance     = "H5"
	H6TestGap         = "H6"
	H7DocGap          = "H7"
)

// Detection types, used for threshold selection and persistence.
const (
	TypeCodePattern      = "code_pattern"
	TypeStructuralChange = "structural_change"
	TypeFixPattern       = "fix_pattern"
	TypeImportPattern    = "import_pattern"
	TypeConfigPattern    = "config_pattern"
	TypeServiceDetected  = "service_detected"
)

// minCounts is the occurrence floor per detection type.
var minCounts = map[string]int{
	TypeCodePattern:      3,
	TypeStructuralChange: 2,
	TypeFixPattern:       5,
	TypeImportPattern:    3,
	TypeConfigPattern:    2,
	TypeServiceDetected:  1,
}

// singleFileAllowed lists heuristics whose detections may live in one file.
var singleFileAllowed = map[string]bool{
	H4SecurityShape: true,
	H6TestGap:       true,
	H7DocGap:        true,
}

// Instance is one concrete occurrence backing a detection.
type Instance map[string]any

// Detection is one raw heuristic hit before filtering and scoring.
type Detection struct {
	Heuristic     string     `json:"heuristic"`
	Type          string     `json:"type"`
	Count         int        `json:"count"`
	ConfidenceRaw float64    `json:"confidence_raw"`
	Files         []string   `json:"files"`
	Description   string     `json:"description"`
	Instances     []Instance `json:"instances"`
}

// Candidate is a detection that survived filtering, with final confidence.
type Candidate struct {
	ID              string     `json:"id"`
	Heuristic       string     `json:"heuristic"`
	DetectionType   string     `json:"detection_type"`
	Count           int        `json:"count"`
	ConfidenceRaw   float64    `json:"confidence_raw"`
	ConfidenceFinal float64    `json:"confidence_final"`
	Files           []string   `json:"files"`
	Description     string     `json:"description"`
	Instances       []Instance `json:"instances"`
	DescriptionHash string     `json:"description_hash"`
}

// Input is the window of facts the rules look at.
type Input struct {
	// Patterns holds analyzer output per changed file.
	Patterns map[string]analyzer.FilePatterns

	// Sources holds raw text per changed file, for the shape scans.
	Sources map[string]string

	// NewFiles are paths added within the window.
	NewFiles []string

	// RepoFiles answers membership for the whole checkout, for the gap rules.
	RepoFiles map[string]bool

	// CommitTime is the most recent commit in the window.
	CommitTime time.Time
}

// Detect runs all seven rules over the input.
func Detect(in Input) []Detection {
	var out []Detection
	out = append(out, detectRepeatedBlocks(in)...)
	out = append(out, detectMissingStandard(in)...)
	out = append(out, detectInconsistentNaming(in)...)
	out = append(out, detectSecurityShapes(in)...)
	out = append(out, detectPerformanceShapes(in)...)
	out = append(out, detectTestGaps(in)...)
	out = append(out, detectDocGaps(in)...)
	return out
}

// DescriptionHash is the cross-run identity of a detection.
func DescriptionHash(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:])[:16]
}

// FilterContext supplies the storage-backed checks that decide whether a
// detection becomes a candidate.
type FilterContext struct {
	// InCooldown reports whether a (type, hash) pair was recently rejected.
	InCooldown func(detectionType, descriptionHash string) bool

	// ExistingRuleFingerprint reports whether an accepted rule already
	// covers this hash.
	ExistingRuleFingerprint func(descriptionHash string) bool

	// PriorFactor returns the accept/reject prior in [0.5, 1.5].
	PriorFactor func(detectionType string) float64

	// NewID mints candidate IDs; tests pin it.
	NewID func() string

	// Now anchors the recency factor.
	Now time.Time
}

// Filter applies the decision tree and scores the survivors.
func Filter(detections []Detection, ctx FilterContext) []Candidate {
	var out []Candidate
	for _, d := range detections {
		if d.Count < minCountFor(d.Type) {
			continue
		}
		if !singleFileAllowed[d.Heuristic] && uniqueCount(d.Files) <= 1 {
			continue
		}
		hash := DescriptionHash(d.Description)
		if ctx.InCooldown != nil && ctx.InCooldown(d.Type, hash) {
			continue
		}
		if ctx.ExistingRuleFingerprint != nil && ctx.ExistingRuleFingerprint(hash) {
			continue
		}

		prior := 1.0
		if ctx.PriorFactor != nil {
			prior = ctx.PriorFactor(d.Type)
		}
		id := hash
		if ctx.NewID != nil {
			id = ctx.NewID()
		}
		out = append(out, Candidate{
			ID:              id,
			Heuristic:       d.Heuristic,
			DetectionType:   d.Type,
			Count:           d.Count,
			ConfidenceRaw:   d.ConfidenceRaw,
			ConfidenceFinal: Confidence(d, prior, ctx.Now),
			Files:           d.Files,
			Description:     d.Description,
			Instances:       d.Instances,
			DescriptionHash: hash,
		})
	}
	return out
}

// Confidence combines the scoring factors, clamped to [0, 1].
func Confidence(d Detection, priorFactor float64, now time.Time) float64 {
	score := baseScore(d.Type, d.Count) *
		consistencyFactor(d.Instances) *
		recencyFactor(d.Instances, now) *
		scopeFactor(d.Files) *
		priorFactor
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

func minCountFor(detectionType string) int {
	if n, ok := minCounts[detectionType]; ok {
		return n
	}
	return 3
}

// baseScore grows from 0.3 at the threshold toward 0.8 at twice the
// threshold; sub-threshold counts score near zero.
func baseScore(detectionType string, count int) float64 {
	threshold := minCountFor(detectionType)
	if count < threshold {
		return 0.1 * float64(count) / float64(threshold)
	}
	ratio := float64(count) / float64(threshold*2)
	if ratio > 1 {
		ratio = 1
	}
	return 0.3 + 0.5*ratio
}

// consistencyFactor drops as instances diverge: all-identical → 1.0, all
// distinct → just above 0.5.
func consistencyFactor(instances []Instance) float64 {
	if len(instances) == 0 {
		return 1.0
	}
	seen := map[string]bool{}
	for _, inst := range instances {
		encoded, err := json.Marshal(inst)
		if err != nil {
			continue
		}
		seen[string(encoded)] = true
	}
	unique := len(seen)
	return 1.0 - float64(unique-1)/float64(len(instances))*0.5
}

// recencyFactor weights by the age of the newest instance.
func recencyFactor(instances []Instance, now time.Time) float64 {
	var newest time.Time
	for _, inst := range instances {
		raw, ok := inst["detected_at"].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		if ts.After(newest) {
			newest = ts
		}
	}
	if newest.IsZero() {
		return 1.0
	}
	age := now.Sub(newest)
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 168*time.Hour:
		return 0.9
	case age < 720*time.Hour:
		return 0.7
	default:
		return 0.5
	}
}

// scopeFactor rewards cross-directory spread and dampens single-directory
// patterns.
func scopeFactor(files []string) float64 {
	if len(files) == 0 {
		return 1.0
	}
	dirs := map[string]bool{}
	for _, f := range files {
		parts := strings.Split(path.Clean(f), "/")
		switch {
		case len(parts) > 2:
			dirs[parts[0]+"/"+parts[1]] = true
		case len(parts) == 2:
			dirs[parts[0]] = true
		case len(parts) == 1:
			dirs[parts[0]] = true
		}
	}
	switch n := len(dirs); {
	case n <= 1:
		return 0.8
	case n == 2:
		return 1.0
	default:
		return 1.0 + float64(n-2)*0.1
	}
}

func uniqueCount(files []string) int {
	seen := map[string]bool{}
	for _, f := range files {
		seen[f] = true
	}
	return len(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func instanceTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func describe(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
