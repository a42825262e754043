package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Learning.GlobalEnabled {
		t.Error("expected learning disabled by default")
	}
	if cfg.Learning.CommitsPerTrigger != 5 {
		t.Errorf("expected commits_per_trigger 5, got %d", cfg.Learning.CommitsPerTrigger)
	}
	if cfg.Orchestration.MaxReviewIterations != 3 {
		t.Errorf("expected max_review_iterations 3, got %d", cfg.Orchestration.MaxReviewIterations)
	}
}

func TestLoad_OverlaysKnownSections(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"project": {"name": "demo"},
		"learning": {"global_enabled": true, "sensitivity": "aggressive"},
		"orchestration": {"max_review_iterations": 2}
	}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Project.Name != "demo" {
		t.Errorf("expected project name demo, got %q", cfg.Project.Name)
	}
	if !cfg.Learning.GlobalEnabled {
		t.Error("expected learning enabled")
	}
	if got := cfg.MinConfidence(); got != 0.3 {
		t.Errorf("expected aggressive min confidence 0.3, got %v", got)
	}
	if cfg.Orchestration.MaxReviewIterations != 2 {
		t.Errorf("expected max_review_iterations 2, got %d", cfg.Orchestration.MaxReviewIterations)
	}
	// Unset fields keep defaults.
	if cfg.Learning.CooldownDays != 7 {
		t.Errorf("expected cooldown_days default 7, got %d", cfg.Learning.CooldownDays)
	}
}

func TestSave_PreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"learning": {"global_enabled": true},
		"agent_teams": {"enabled": true, "roster": ["lead", "reviewer"]}
	}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Learning.CooldownDays = 14
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse saved config: %v", err)
	}
	if _, ok := doc["agent_teams"]; !ok {
		t.Error("expected agent_teams to survive read-modify-write")
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Learning.CooldownDays != 14 {
		t.Errorf("expected cooldown_days 14 after save, got %d", reloaded.Learning.CooldownDays)
	}
}

func TestMinConfidence_UnknownSensitivityFallsBack(t *testing.T) {
	cfg := Default()
	cfg.Learning.Sensitivity = "bogus"
	if got := cfg.MinConfidence(); got != 0.7 {
		t.Errorf("expected conservative fallback 0.7, got %v", got)
	}
}
