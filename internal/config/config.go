package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
//
// The verification confidence constants are deliberately configurable:
// deployments tune the ambiguity and quality-gate thresholds without a
// rebuild, and tests pin them explicitly.
type Config struct {
	// ExactConfidence is assigned when evidence occurs verbatim exactly once.
	ExactConfidence float64 `json:"exact_confidence,omitempty"`

	// AmbiguousConfidence is assigned when evidence occurs verbatim more than once.
	AmbiguousConfidence float64 `json:"ambiguous_confidence,omitempty"`

	// NormalizedConfidence is assigned when evidence matches only after
	// whitespace/line-ending normalization.
	NormalizedConfidence float64 `json:"normalized_confidence,omitempty"`

	// MinStorageConfidence is the quality-gate floor: a candidate is
	// storage-eligible only if verified with at least this confidence.
	MinStorageConfidence float64 `json:"min_storage_confidence,omitempty"`

	// MinEvidenceBytes / MaxEvidenceBytes bound a plausible evidence quote.
	MinEvidenceBytes int `json:"min_evidence_bytes,omitempty"`
	MaxEvidenceBytes int `json:"max_evidence_bytes,omitempty"`

	// MinUniqueTokenRatio rejects degenerate/repetitive evidence.
	MinUniqueTokenRatio float64 `json:"min_unique_token_ratio,omitempty"`

	// SimilarityThreshold is the minimum score for a near-duplicate match.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// MaxSimilarResults caps the near-duplicate result list.
	MaxSimilarResults int `json:"max_similar_results,omitempty"`

	// ContainmentScore is the fixed score assigned by the substring-containment
	// heuristic when the similarity ranker scores a containing pair below threshold.
	ContainmentScore float64 `json:"containment_score,omitempty"`

	// ClaimLeaseSeconds is how long a claimed work item stays locked before
	// it becomes re-claimable by another worker.
	ClaimLeaseSeconds int `json:"claim_lease_seconds,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// All tools belonging to disabled types are excluded from registration.
	// Known types: "candidate", "snapshot". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ExactConfidence:      1.0,
		AmbiguousConfidence:  0.7,
		NormalizedConfidence: 0.85,
		MinStorageConfidence: 0.5,
		MinEvidenceBytes:     10,
		MaxEvidenceBytes:     10000,
		MinUniqueTokenRatio:  0.3,
		SimilarityThreshold:  0.3,
		MaxSimilarResults:    5,
		ContainmentScore:     0.55,
		ClaimLeaseSeconds:    300,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.vouch.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.vouch) and repo (.vouch) directories.
// Repo config is found by walking upward from startDir to find the nearest .vouch/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .vouch/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".vouch", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.ExactConfidence = overlayFloat(base.ExactConfidence, overlay.ExactConfidence)
	result.AmbiguousConfidence = overlayFloat(base.AmbiguousConfidence, overlay.AmbiguousConfidence)
	result.NormalizedConfidence = overlayFloat(base.NormalizedConfidence, overlay.NormalizedConfidence)
	result.MinStorageConfidence = overlayFloat(base.MinStorageConfidence, overlay.MinStorageConfidence)
	result.MinUniqueTokenRatio = overlayFloat(base.MinUniqueTokenRatio, overlay.MinUniqueTokenRatio)
	result.SimilarityThreshold = overlayFloat(base.SimilarityThreshold, overlay.SimilarityThreshold)
	result.ContainmentScore = overlayFloat(base.ContainmentScore, overlay.ContainmentScore)

	result.MinEvidenceBytes = overlayInt(base.MinEvidenceBytes, overlay.MinEvidenceBytes)
	result.MaxEvidenceBytes = overlayInt(base.MaxEvidenceBytes, overlay.MaxEvidenceBytes)
	result.MaxSimilarResults = overlayInt(base.MaxSimilarResults, overlay.MaxSimilarResults)
	result.ClaimLeaseSeconds = overlayInt(base.ClaimLeaseSeconds, overlay.ClaimLeaseSeconds)
	result.DBMaxOpenConns = overlayInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = overlayInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// overlayFloat returns overlay if non-zero, else base.
// A zero float is "unset": none of the tunables have a meaningful zero value.
func overlayFloat(base, overlay float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

// overlayInt returns overlay if non-zero, else base.
func overlayInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
