package lineage

import "strings"

// Gate is the staging-time quality gate. It never changes a verification
// result; it decides whether a verified candidate is strong enough to be
// promoted without further evidence, and names the reasons when it is not.
type Gate struct {
	// MinEvidenceBytes / MaxEvidenceBytes bound a plausible quote
	MinEvidenceBytes int
	MaxEvidenceBytes int

	// MinUniqueTokenRatio rejects degenerate/repetitive evidence
	MinUniqueTokenRatio float64

	// MinStorageConfidence is the floor on verification confidence
	MinStorageConfidence float64
}

// DefaultGate returns the reference gate thresholds.
func DefaultGate() Gate {
	return Gate{
		MinEvidenceBytes:     10,
		MaxEvidenceBytes:     10000,
		MinUniqueTokenRatio:  0.3,
		MinStorageConfidence: 0.5,
	}
}

// GateResult reports the gate checks for one candidate.
type GateResult struct {
	// LengthOK is true when the evidence byte length is in range
	LengthOK bool `json:"length_ok"`

	// UniqueTokenRatio is unique tokens / total tokens
	UniqueTokenRatio float64 `json:"unique_token_ratio"`

	// RatioOK is true when the evidence is not degenerate
	RatioOK bool `json:"ratio_ok"`

	// StorageEligible is true when the candidate may be promoted as-is
	StorageEligible bool `json:"storage_eligible"`

	// Reasons names each failed check, for reviewer display
	Reasons []string `json:"reasons,omitempty"`
}

// Check evaluates the gate for an evidence quote and its verification result.
func (g Gate) Check(evidenceText string, res Result) GateResult {
	var out GateResult
	n := len(evidenceText)

	out.LengthOK = n >= g.MinEvidenceBytes && n <= g.MaxEvidenceBytes
	if n < g.MinEvidenceBytes {
		out.Reasons = append(out.Reasons, "evidence too short to be a plausible quote")
	}
	if n > g.MaxEvidenceBytes {
		out.Reasons = append(out.Reasons, "evidence too long to be a plausible quote")
	}

	out.UniqueTokenRatio = uniqueTokenRatio(evidenceText)
	out.RatioOK = out.UniqueTokenRatio >= g.MinUniqueTokenRatio
	if !out.RatioOK {
		out.Reasons = append(out.Reasons, "evidence is repetitive (low unique-token ratio)")
	}

	if !res.Verified {
		out.Reasons = append(out.Reasons, "evidence not found in snapshot")
	} else if res.Confidence < g.MinStorageConfidence {
		out.Reasons = append(out.Reasons, "verification confidence below storage floor")
	}

	out.StorageEligible = res.Verified &&
		res.Confidence >= g.MinStorageConfidence &&
		out.LengthOK && out.RatioOK

	return out
}

// uniqueTokenRatio returns unique tokens / total tokens, 0 for no tokens.
func uniqueTokenRatio(text string) float64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		unique[tok] = true
	}
	return float64(len(unique)) / float64(len(tokens))
}
