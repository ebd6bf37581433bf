package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AmbiguousConfidence != DefaultConfig().AmbiguousConfidence {
		t.Fatalf("AmbiguousConfidence = %v, want %v", cfg.AmbiguousConfidence, DefaultConfig().AmbiguousConfidence)
	}
	if cfg.MinEvidenceBytes != 10 {
		t.Fatalf("MinEvidenceBytes = %d, want 10", cfg.MinEvidenceBytes)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"ambiguous_confidence": 0.65, "max_similar_results": 10}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AmbiguousConfidence != 0.65 {
		t.Fatalf("AmbiguousConfidence = %v, want 0.65", cfg.AmbiguousConfidence)
	}
	if cfg.MaxSimilarResults != 10 {
		t.Fatalf("MaxSimilarResults = %d, want 10", cfg.MaxSimilarResults)
	}
	// Untouched keys keep defaults
	if cfg.NormalizedConfidence != 0.85 {
		t.Fatalf("NormalizedConfidence = %v, want 0.85", cfg.NormalizedConfidence)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoadWithRepo_RepoOverridesGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(filepath.Join(repoRoot, ".vouch"), 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(globalDir, "config.json"),
		[]byte(`{"similarity_threshold": 0.4, "claim_lease_seconds": 60}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, ".vouch", "config.json"),
		[]byte(`{"similarity_threshold": 0.5}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.SimilarityThreshold != 0.5 {
		t.Fatalf("SimilarityThreshold = %v, want 0.5 (repo wins)", cfg.SimilarityThreshold)
	}
	if cfg.ClaimLeaseSeconds != 60 {
		t.Fatalf("ClaimLeaseSeconds = %d, want 60 (global)", cfg.ClaimLeaseSeconds)
	}
}

func TestMerge_ArraysDeduplicated(t *testing.T) {
	base := &Config{DisabledTools: []string{"candidate_stage", "stats"}}
	overlay := &Config{DisabledTools: []string{"stats", "snapshot_put"}}

	merged := Merge(base, overlay)
	want := []string{"candidate_stage", "stats", "snapshot_put"}
	if len(merged.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", merged.DisabledTools, want)
	}
	for i, s := range want {
		if merged.DisabledTools[i] != s {
			t.Fatalf("DisabledTools[%d] = %q, want %q", i, merged.DisabledTools[i], s)
		}
	}
}
