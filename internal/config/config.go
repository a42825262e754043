// Package config reads and writes the .ai-framework.json project
// configuration. Unknown keys are preserved verbatim on read-modify-write.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the project configuration file, located at the git root.
const ConfigFileName = ".ai-framework.json"

// Sensitivity levels for the learning pipeline.
const (
	SensitivityConservative = "conservative"
	SensitivityModerate     = "moderate"
	SensitivityAggressive   = "aggressive"
)

var sensitivityConfidence = map[string]float64{
	SensitivityConservative: 0.7,
	SensitivityModerate:     0.5,
	SensitivityAggressive:   0.3,
}

// Project identifies the project the daemon serves.
type Project struct {
	Name string `json:"name,omitempty"`
	Root string `json:"root,omitempty"`
}

// Learning holds the adaptive-learning options with anti-annoyance controls.
type Learning struct {
	GlobalEnabled          bool   `json:"global_enabled"`
	Sensitivity            string `json:"sensitivity,omitempty"`
	MaxProposalsPerSession int    `json:"max_proposals_per_session,omitempty"`
	CooldownDays           int    `json:"cooldown_days,omitempty"`
	WarmupHours            int    `json:"warmup_hours,omitempty"`
	CommitsPerTrigger      int    `json:"commits_per_trigger,omitempty"`
}

// Retrieval holds the retrieval backend toggles.
type Retrieval struct {
	CodeEnabled       bool   `json:"code_enabled"`
	GovernanceEnabled bool   `json:"governance_enabled"`
	CodeBinary        string `json:"code_binary,omitempty"`
}

// Orchestration holds the spec lifecycle options.
type Orchestration struct {
	MaxReviewIterations int `json:"max_review_iterations,omitempty"`
	StaleBusyHours      int `json:"stale_busy_hours,omitempty"`
}

// Config is the recognized subset of .ai-framework.json.
type Config struct {
	Project       Project       `json:"project"`
	Learning      Learning      `json:"learning"`
	Retrieval     Retrieval     `json:"retrieval"`
	Orchestration Orchestration `json:"orchestration"`

	// raw holds the full decoded document so unknown keys survive a save.
	raw map[string]json.RawMessage
}

// Default returns a Config with the documented defaults applied.
func Default() *Config {
	return &Config{
		Learning: Learning{
			GlobalEnabled:          false,
			Sensitivity:            SensitivityConservative,
			MaxProposalsPerSession: 3,
			CooldownDays:           7,
			WarmupHours:            24,
			CommitsPerTrigger:      5,
		},
		Retrieval: Retrieval{
			CodeEnabled:       true,
			GovernanceEnabled: true,
			CodeBinary:        "vexor",
		},
		Orchestration: Orchestration{
			MaxReviewIterations: 3,
			StaleBusyHours:      4,
		},
	}
}

// Load reads .ai-framework.json from the given directory. A missing file
// returns defaults; a malformed file returns an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.raw = raw

	if err := overlay(raw, "project", &cfg.Project); err != nil {
		return nil, err
	}
	if err := overlay(raw, "learning", &cfg.Learning); err != nil {
		return nil, err
	}
	if err := overlay(raw, "retrieval", &cfg.Retrieval); err != nil {
		return nil, err
	}
	if err := overlay(raw, "orchestration", &cfg.Orchestration); err != nil {
		return nil, err
	}

	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config back to dir, merging the recognized sections over
// the originally loaded document so unknown keys are kept.
func (c *Config) Save(dir string) error {
	doc := map[string]json.RawMessage{}
	for k, v := range c.raw {
		doc[k] = v
	}

	for key, section := range map[string]any{
		"project":       c.Project,
		"learning":      c.Learning,
		"retrieval":     c.Retrieval,
		"orchestration": c.Orchestration,
	} {
		encoded, err := json.Marshal(section)
		if err != nil {
			return fmt.Errorf("failed to marshal config section %s: %w", key, err)
		}
		doc[key] = encoded
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// MinConfidence maps the learning sensitivity to a proposal threshold.
func (c *Config) MinConfidence() float64 {
	if v, ok := sensitivityConfidence[c.Learning.Sensitivity]; ok {
		return v
	}
	return sensitivityConfidence[SensitivityConservative]
}

// DataDir returns the daemon data directory, honoring LOOM_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv("LOOM_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ai-framework", "data")
	}
	return filepath.Join(home, ".ai-framework", "data")
}

func (c *Config) normalize() {
	d := Default()
	if c.Learning.Sensitivity == "" {
		c.Learning.Sensitivity = d.Learning.Sensitivity
	}
	if c.Learning.MaxProposalsPerSession == 0 {
		c.Learning.MaxProposalsPerSession = d.Learning.MaxProposalsPerSession
	}
	if c.Learning.CooldownDays == 0 {
		c.Learning.CooldownDays = d.Learning.CooldownDays
	}
	if c.Learning.WarmupHours == 0 {
		c.Learning.WarmupHours = d.Learning.WarmupHours
	}
	if c.Learning.CommitsPerTrigger == 0 {
		c.Learning.CommitsPerTrigger = d.Learning.CommitsPerTrigger
	}
	if c.Retrieval.CodeBinary == "" {
		c.Retrieval.CodeBinary = d.Retrieval.CodeBinary
	}
	if c.Orchestration.MaxReviewIterations == 0 {
		c.Orchestration.MaxReviewIterations = d.Orchestration.MaxReviewIterations
	}
	if c.Orchestration.StaleBusyHours == 0 {
		c.Orchestration.StaleBusyHours = d.Orchestration.StaleBusyHours
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOOM_LEARNING_ENABLED"); v != "" {
		c.Learning.GlobalEnabled = v == "true" || v == "1"
	}
}

func overlay(raw map[string]json.RawMessage, key string, dst any) error {
	section, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(section, dst); err != nil {
		return fmt.Errorf("failed to parse config section %s: %w", key, err)
	}
	return nil
}
